// Package present formats lookup outcomes into display messages.
package present

import (
	"fmt"
	"strings"
	"time"

	"github.com/breatheroute/airvoice/internal/airquality"
	"github.com/breatheroute/airvoice/internal/location"
)

// DefaultDuration is how long a message stays on the display.
const DefaultDuration = 10 * time.Second

// UnavailableText is shown when no reading could be produced.
const UnavailableText = "Air quality data is unavailable right now."

// Staleness describes how a reading was obtained.
type Staleness int

const (
	// Fresh means the reading was just fetched.
	Fresh Staleness = iota
	// Repeated means a recent cached reading was reused.
	Repeated
	// Aged means an older cached reading was reused.
	Aged
)

// Outcome is everything a cycle produced for presentation.
// A nil Reading means the lookup failed.
type Outcome struct {
	Location  location.Resolved
	Reading   *airquality.Reading
	Staleness Staleness
	Age       time.Duration
}

// Message is a rendered display message.
type Message struct {
	Text     string
	Duration time.Duration
}

// Config controls formatting.
type Config struct {
	// DiscloseApproximate prefixes non-device places with "Approximate location".
	DiscloseApproximate bool

	// Duration is the requested display duration (default 10s).
	Duration time.Duration

	// Severity classifies indices (defaults to airquality.DefaultSeverityTable).
	Severity airquality.SeverityTable
}

// Presenter turns outcomes into messages.
type Presenter struct {
	cfg Config
}

// New creates a presenter.
func New(cfg Config) *Presenter {
	if cfg.Duration <= 0 {
		cfg.Duration = DefaultDuration
	}
	if len(cfg.Severity) == 0 {
		cfg.Severity = airquality.DefaultSeverityTable
	}
	return &Presenter{cfg: cfg}
}

// Format renders an outcome.
func (p *Presenter) Format(o Outcome) Message {
	var lines []string
	if line := p.placeLine(o.Location); line != "" {
		lines = append(lines, line)
	}

	if o.Reading == nil {
		lines = append([]string{UnavailableText}, lines...)
		return Message{Text: strings.Join(lines, "\n"), Duration: p.cfg.Duration}
	}

	level := p.cfg.Severity.Classify(o.Reading.Index)
	lines = append(lines, fmt.Sprintf("AQI %d %s %s", o.Reading.Index, level.Pictogram, level.Label))
	if o.Reading.StationName != "" {
		lines = append(lines, fmt.Sprintf("Station: %s (%.1f km)", o.Reading.StationName, o.Reading.DistanceMeters/1000))
	}
	if level.Advice != "" {
		lines = append(lines, level.Advice)
	}
	if note := Annotation(o.Staleness, o.Age); note != "" {
		lines = append(lines, note)
	}

	return Message{Text: strings.Join(lines, "\n"), Duration: p.cfg.Duration}
}

func (p *Presenter) placeLine(loc location.Resolved) string {
	if loc.PlaceName == "" {
		return ""
	}
	if p.cfg.DiscloseApproximate && loc.Approximate() {
		return "Approximate location: " + loc.PlaceName
	}
	return loc.PlaceName
}

// Annotation describes the age of a reused reading.
func Annotation(s Staleness, age time.Duration) string {
	switch s {
	case Repeated:
		return fmt.Sprintf("(same as ~%ds ago)", int(age.Round(time.Second)/time.Second))
	case Aged:
		return fmt.Sprintf("(~%dm old)", int(age.Round(time.Minute)/time.Minute))
	default:
		return ""
	}
}
