package cdr

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

func TestGenerateFlat(t *testing.T) {
	g := NewGenerator(WithSeed(7), WithClock(fixedClock))
	records := g.GenerateFlat(500)
	require.Len(t, records, 500)

	jitterPattern := regexp.MustCompile(`^PT0\.0\d\dS$`)
	withJitter, withDegradation := 0, 0
	ids := make(map[string]bool)

	for _, r := range records {
		assert.NotEmpty(t, r.ConferenceID)
		ids[r.ConferenceID] = true
		assert.Contains(t, DefaultUPNs, r.OrganizerUPN)
		assert.Contains(t, FlatPlatforms, r.ClientPlatform)
		assert.Contains(t, []CallType{CallTypeGroup, CallTypePeerToPeer}, r.CallType)

		assert.GreaterOrEqual(t, len(r.Modalities), 1)
		assert.LessOrEqual(t, len(r.Modalities), 3)

		start, err := time.Parse(FlatTimeLayout, r.StartDateTime)
		require.NoError(t, err)
		age := fixedNow.Sub(start)
		assert.GreaterOrEqual(t, age, 5*time.Minute)
		assert.LessOrEqual(t, age, 120*time.Minute)

		if r.AverageJitter != nil {
			withJitter++
			assert.Regexp(t, jitterPattern, *r.AverageJitter)
			d, err := ParseDuration(*r.AverageJitter)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, d, 5*time.Millisecond)
			assert.LessOrEqual(t, d, 80*time.Millisecond)
		}
		if r.AverageAudioDegradation != nil {
			withDegradation++
			assert.GreaterOrEqual(t, *r.AverageAudioDegradation, 0.1)
			assert.LessOrEqual(t, *r.AverageAudioDegradation, 1.0)
		}
	}

	assert.Len(t, ids, 500)
	assert.InDelta(t, 0.7, float64(withJitter)/500, 0.1)
	assert.InDelta(t, 0.4, float64(withDegradation)/500, 0.1)
}

func TestGenerateDeterministic(t *testing.T) {
	a := NewGenerator(WithSeed(42), WithClock(fixedClock)).Generate(5)
	b := NewGenerator(WithSeed(42), WithClock(fixedClock)).Generate(5)
	require.Len(t, a, 5)
	for i := range a {
		assert.Equal(t, a[i].ID, b[i].ID)
		assert.Equal(t, Flatten(&a[i]).Text, Flatten(&b[i]).Text)
	}

	c := NewGenerator(WithSeed(43), WithClock(fixedClock)).Generate(1)
	assert.NotEqual(t, a[0].ID, c[0].ID)
}

func TestGenerateNestedShape(t *testing.T) {
	g := NewGenerator(WithSeed(1), WithClock(fixedClock))
	for _, rec := range g.Generate(50) {
		assert.Equal(t, 1, rec.Version)
		assert.True(t, rec.EndDateTime.After(rec.StartDateTime))
		require.NotEmpty(t, rec.Sessions)

		parts := rec.Participants()
		if rec.CallType == CallTypePeerToPeer {
			assert.Len(t, parts, 2)
			assert.Len(t, rec.Sessions, 1)
		} else {
			assert.GreaterOrEqual(t, len(parts), 2)
			assert.LessOrEqual(t, len(parts), 4)
		}
		assert.Equal(t, rec.Organizer.UPN, parts[0].Identity.UPN)

		for _, s := range rec.Sessions {
			for _, p := range s.Participants {
				assert.Len(t, p.Streams, 2*len(rec.Modalities))
				assert.NotNil(t, p.Device.MicGlitchRate)
			}
		}
	}
}

func TestGenerateHealthyOnly(t *testing.T) {
	g := NewGenerator(WithSeed(3), WithClock(fixedClock), WithPoorQualityRatio(0), WithVDIRatio(0))
	for _, rec := range g.Generate(40) {
		w := rec.Worst()
		require.NotNil(t, w.Jitter)
		assert.LessOrEqual(t, w.Jitter.Ms(), 25.0)
		assert.LessOrEqual(t, *w.PacketLoss, 0.05)
		assert.LessOrEqual(t, *w.MicGlitchRate, 5.0)
		assert.GreaterOrEqual(t, *w.SignalLevel, -35.0)
		for _, p := range rec.Participants() {
			assert.Contains(t, DesktopPlatforms, p.Platform)
		}
	}
}

func TestGenerateAllDegraded(t *testing.T) {
	g := NewGenerator(WithSeed(9), WithClock(fixedClock), WithPoorQualityRatio(1), WithVDIRatio(1))
	for _, rec := range g.Generate(40) {
		w := rec.Worst()
		networkBad := w.Jitter.Ms() >= 35
		deviceBad := *w.MicGlitchRate >= 12
		assert.True(t, networkBad || deviceBad, "record %s should be degraded", rec.ID)
		for _, p := range rec.Participants() {
			assert.Contains(t, VDIPlatforms, p.Platform)
			assert.Equal(t, "teamsVDI", p.ProductFamily)
		}
	}
}

func TestWithUPNs(t *testing.T) {
	g := NewGenerator(WithSeed(5), WithUPNs("only.one@contoso.com"))
	for _, r := range g.GenerateFlat(10) {
		assert.Equal(t, "only.one@contoso.com", r.OrganizerUPN)
	}
	for _, r := range g.Generate(5) {
		assert.Len(t, r.Participants(), 1)
	}
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "Adele Vance", displayName("adele.vance@contoso.com"))
	assert.Equal(t, "Bob", displayName("bob"))
}
