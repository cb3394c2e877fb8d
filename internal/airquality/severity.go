package airquality

import (
	"errors"
	"fmt"
	"math"
)

// Unbounded is the ThresholdMax of the catch-all severity level.
const Unbounded = math.MaxInt

// ErrInvalidSeverityTable is returned for empty or unsorted tables.
var ErrInvalidSeverityTable = errors.New("invalid severity table")

// SeverityLevel is one row of the severity table.
type SeverityLevel struct {
	// ThresholdMax is the highest index (inclusive) covered by this level.
	ThresholdMax int
	Label        string
	Pictogram    string
	Advice       string
}

// SeverityTable is ordered ascending by ThresholdMax. The last entry catches
// everything above the previous thresholds.
type SeverityTable []SeverityLevel

// DefaultSeverityTable follows the US EPA AQI bands.
var DefaultSeverityTable = SeverityTable{
	{
		ThresholdMax: 50,
		Label:        "Good",
		Pictogram:    "🟢",
		Advice:       "Air quality is satisfactory. Enjoy your time outside.",
	},
	{
		ThresholdMax: 100,
		Label:        "Moderate",
		Pictogram:    "🟡",
		Advice:       "Acceptable. Unusually sensitive people should limit long outdoor exertion.",
	},
	{
		ThresholdMax: 150,
		Label:        "Unhealthy for Sensitive Groups",
		Pictogram:    "🟠",
		Advice:       "Sensitive groups should reduce prolonged outdoor exertion.",
	},
	{
		ThresholdMax: 200,
		Label:        "Unhealthy",
		Pictogram:    "🔴",
		Advice:       "Everyone should reduce prolonged outdoor exertion.",
	},
	{
		ThresholdMax: 300,
		Label:        "Very Unhealthy",
		Pictogram:    "🟣",
		Advice:       "Avoid outdoor exertion. Consider moving activities indoors.",
	},
	{
		ThresholdMax: Unbounded,
		Label:        "Hazardous",
		Pictogram:    "⚫",
		Advice:       "Health alert. Stay indoors and keep windows closed.",
	},
}

// NewSeverityTable validates levels and returns them as a table.
// The last level's threshold is raised to Unbounded so the table always has a catch-all.
func NewSeverityTable(levels []SeverityLevel) (SeverityTable, error) {
	if len(levels) == 0 {
		return nil, fmt.Errorf("%w: no levels", ErrInvalidSeverityTable)
	}
	table := make(SeverityTable, len(levels))
	copy(table, levels)
	for i := 1; i < len(table); i++ {
		if table[i].ThresholdMax <= table[i-1].ThresholdMax {
			return nil, fmt.Errorf("%w: level %q threshold %d not above %d",
				ErrInvalidSeverityTable, table[i].Label, table[i].ThresholdMax, table[i-1].ThresholdMax)
		}
	}
	table[len(table)-1].ThresholdMax = Unbounded
	return table, nil
}

// Classify returns the first level whose ThresholdMax is >= index, or the last level.
func (t SeverityTable) Classify(index int) SeverityLevel {
	for _, level := range t {
		if level.ThresholdMax >= index {
			return level
		}
	}
	return t[len(t)-1]
}

// Classify classifies index against DefaultSeverityTable.
func Classify(index int) SeverityLevel {
	return DefaultSeverityTable.Classify(index)
}
