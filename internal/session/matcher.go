package session

import "strings"

// Speech engines often emit typographic apostrophes.
var apostrophes = strings.NewReplacer("\u2019", "'", "\u2018", "'")

// DefaultCommands are the phrases that start a lookup.
var DefaultCommands = []string{
	"air quality",
	"aqi",
	"pollution",
	"how's the air",
	"how is the air",
}

// CommandMatcher recognizes lookup requests in transcribed speech by
// lowercased substring match, tolerating transcription noise around the phrase.
type CommandMatcher struct {
	phrases []string
}

// NewCommandMatcher builds a matcher. Blank phrases are dropped; an empty
// list falls back to DefaultCommands.
func NewCommandMatcher(phrases []string) *CommandMatcher {
	m := &CommandMatcher{}
	for _, p := range phrases {
		if p = apostrophes.Replace(strings.ToLower(strings.TrimSpace(p))); p != "" {
			m.phrases = append(m.phrases, p)
		}
	}
	if len(m.phrases) == 0 {
		m.phrases = append(m.phrases, DefaultCommands...)
	}
	return m
}

// Matches reports whether text contains any phrase.
func (m *CommandMatcher) Matches(text string) bool {
	text = apostrophes.Replace(strings.ToLower(text))
	for _, p := range m.phrases {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}

// Phrases returns a copy of the configured phrases.
func (m *CommandMatcher) Phrases() []string {
	return append([]string(nil), m.phrases...)
}
