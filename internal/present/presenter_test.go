package present_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/breatheroute/airvoice/internal/airquality"
	"github.com/breatheroute/airvoice/internal/geo"
	"github.com/breatheroute/airvoice/internal/location"
	"github.com/breatheroute/airvoice/internal/present"
)

func reading(index int) *airquality.Reading {
	return &airquality.Reading{
		Index:          index,
		StationName:    "Amsterdam-Vondelpark",
		Station:        geo.Coordinate{Lat: 52.358, Lon: 4.868},
		DistanceMeters: 2340,
	}
}

func TestPresenter_FormatFreshDeviceReading(t *testing.T) {
	p := present.New(present.Config{DiscloseApproximate: true})

	msg := p.Format(present.Outcome{
		Location: location.Resolved{PlaceName: "Amsterdam", Source: location.SourceDevice},
		Reading:  reading(55),
	})

	assert.Equal(t, "Amsterdam\n"+
		"AQI 55 🟡 Moderate\n"+
		"Station: Amsterdam-Vondelpark (2.3 km)\n"+
		"Acceptable. Unusually sensitive people should limit long outdoor exertion.", msg.Text)
	assert.Equal(t, present.DefaultDuration, msg.Duration)
}

func TestPresenter_ApproximateDisclosure(t *testing.T) {
	loc := location.Resolved{PlaceName: "Amsterdam, Netherlands", Source: location.SourceIP}

	disclosing := present.New(present.Config{DiscloseApproximate: true})
	assert.Contains(t, disclosing.Format(present.Outcome{Location: loc, Reading: reading(10)}).Text,
		"Approximate location: Amsterdam, Netherlands")

	silent := present.New(present.Config{DiscloseApproximate: false})
	text := silent.Format(present.Outcome{Location: loc, Reading: reading(10)}).Text
	assert.NotContains(t, text, "Approximate")
	assert.Contains(t, text, "Amsterdam, Netherlands")
}

func TestPresenter_StalenessAnnotations(t *testing.T) {
	p := present.New(present.Config{})
	loc := location.Resolved{PlaceName: "Utrecht", Source: location.SourceDevice}

	repeated := p.Format(present.Outcome{Location: loc, Reading: reading(42), Staleness: present.Repeated, Age: 60 * time.Second})
	assert.Contains(t, repeated.Text, "(same as ~60s ago)")

	aged := p.Format(present.Outcome{Location: loc, Reading: reading(42), Staleness: present.Aged, Age: 10 * time.Minute})
	assert.Contains(t, aged.Text, "(~10m old)")

	fresh := p.Format(present.Outcome{Location: loc, Reading: reading(42)})
	assert.NotContains(t, fresh.Text, "ago")
	assert.NotContains(t, fresh.Text, "old)")
}

func TestPresenter_Unavailable(t *testing.T) {
	p := present.New(present.Config{DiscloseApproximate: true, Duration: 5 * time.Second})

	msg := p.Format(present.Outcome{
		Location: location.Resolved{PlaceName: "Rotterdam", Source: location.SourceStaticDefault},
	})

	assert.Equal(t, present.UnavailableText+"\nApproximate location: Rotterdam", msg.Text)
	assert.Equal(t, 5*time.Second, msg.Duration)
}

func TestPresenter_CustomSeverityTable(t *testing.T) {
	table, err := airquality.NewSeverityTable([]airquality.SeverityLevel{
		{ThresholdMax: 20, Label: "Low", Pictogram: "+"},
		{ThresholdMax: 40, Label: "High", Pictogram: "!"},
	})
	assert.NoError(t, err)

	p := present.New(present.Config{Severity: table})
	msg := p.Format(present.Outcome{Reading: reading(99)})

	assert.Contains(t, msg.Text, "AQI 99 ! High")
}

func TestAnnotation(t *testing.T) {
	assert.Equal(t, "(same as ~45s ago)", present.Annotation(present.Repeated, 44600*time.Millisecond))
	assert.Equal(t, "(~3m old)", present.Annotation(present.Aged, 3*time.Minute+10*time.Second))
	assert.Empty(t, present.Annotation(present.Fresh, time.Hour))
}
