package cdr

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"PT0.012S", 12 * time.Millisecond},
		{"PT0S", 0},
		{"PT1M2.5S", 62500 * time.Millisecond},
		{"P1DT2H", 26 * time.Hour},
		{"pt0,5s", 500 * time.Millisecond},
		{"-PT1S", -time.Second},
		{" PT2M ", 2 * time.Minute},
		{"PT2562047H", 2562047 * time.Hour},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDuration(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseDurationInvalid(t *testing.T) {
	for _, in := range []string{"", "P", "PT", "PTS", "1S", "PT5X", "P1Y", "P1H", "PT1S1", "PTT1S", "PT1.2.3S",
		"P1DT", "-P2DT", "PT2562048H", "P106752D"} {
		t.Run(in, func(t *testing.T) {
			_, err := ParseDuration(in)
			assert.ErrorIs(t, err, ErrInvalidDuration)
		})
	}
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "PT0S", FormatDuration(0))
	assert.Equal(t, "PT0.045S", FormatDuration(45*time.Millisecond))
	assert.Equal(t, "PT1M2.5S", FormatDuration(62500*time.Millisecond))
	assert.Equal(t, "PT26H", FormatDuration(26*time.Hour))
	assert.Equal(t, "-PT1S", FormatDuration(-time.Second))
}

func TestDurationJSON(t *testing.T) {
	type wrapper struct {
		Jitter *Duration `json:"jitter"`
	}

	out, err := json.Marshal(wrapper{Jitter: Millis(45)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"jitter":"PT0.045S"}`, string(out))

	var w wrapper
	require.NoError(t, json.Unmarshal([]byte(`{"jitter":"PT0.030S"}`), &w))
	require.NotNil(t, w.Jitter)
	assert.Equal(t, 30.0, w.Jitter.Ms())

	w = wrapper{}
	require.NoError(t, json.Unmarshal([]byte(`{"jitter":0.25}`), &w))
	assert.Equal(t, 250*time.Millisecond, w.Jitter.Duration)

	w = wrapper{}
	require.NoError(t, json.Unmarshal([]byte(`{"jitter":null}`), &w))
	assert.Nil(t, w.Jitter)

	err = json.Unmarshal([]byte(`{"jitter":"soon"}`), &w)
	assert.ErrorIs(t, err, ErrInvalidDuration)
}
