package cdr

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONLRoundTrip(t *testing.T) {
	g := NewGenerator(WithSeed(11), WithClock(fixedClock))
	records := g.Generate(4)

	var buf bytes.Buffer
	require.NoError(t, WriteJSONL(&buf, records))
	assert.Equal(t, 4, strings.Count(buf.String(), "\n"))

	got, err := ReadJSONL(&buf)
	require.NoError(t, err)
	require.Len(t, got, 4)
	for i := range records {
		assert.Equal(t, records[i].ID, got[i].ID)
		assert.True(t, records[i].StartDateTime.Equal(got[i].StartDateTime))
		assert.Equal(t, Flatten(&records[i]).Text, Flatten(&got[i]).Text)
	}
}

func TestFlatJSONLRoundTrip(t *testing.T) {
	g := NewGenerator(WithSeed(12), WithClock(fixedClock))
	records := g.GenerateFlat(20)

	var buf bytes.Buffer
	require.NoError(t, WriteFlatJSONL(&buf, records))
	assert.Contains(t, buf.String(), `"averageJitter":null`)

	got, err := ReadFlatJSONL(&buf)
	require.NoError(t, err)
	assert.Equal(t, records, got)
}

func TestReadEntriesMixed(t *testing.T) {
	input := strings.Join([]string{
		`{"conferenceId":"c1","callType":"peerToPeer","organizerUPN":"a@contoso.com","clientPlatform":"windows","averageJitter":null,"averageAudioDegradation":0.3}`,
		``,
		`{"id":"x","sessions":[]}`,
		`{"kind":"custom","jitter_ms":51}`,
	}, "\n")

	entries, err := ReadEntries(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, KindFlat, entries[0].Kind)
	assert.Equal(t, 1, entries[0].Line)
	assert.Equal(t, KindCall, entries[1].Kind)
	assert.Equal(t, 3, entries[1].Line)
	assert.Equal(t, KindGeneric, entries[2].Kind)

	s, err := entries[2].Summary()
	require.NoError(t, err)
	assert.Equal(t, "line-4", s.RecordID)
	assert.Equal(t, "51", s.Fields["jitter_ms"])

	s, err = entries[0].Summary()
	require.NoError(t, err)
	assert.Contains(t, s.Text, "average jitter of N/A and audio degradation of 0.3")
}

func TestReadEntriesMalformed(t *testing.T) {
	_, err := ReadEntries(strings.NewReader("{\"a\":1}\nnot json\n"))
	var lineErr *LineError
	require.True(t, errors.As(err, &lineErr))
	assert.Equal(t, 2, lineErr.Line)
}

func TestReadJSONLWrongKind(t *testing.T) {
	_, err := ReadJSONL(strings.NewReader(`{"conferenceId":"c1"}`))
	assert.ErrorContains(t, err, "expected call record")

	_, err = ReadFlatJSONL(strings.NewReader(`{"sessions":[]}`))
	assert.ErrorContains(t, err, "expected flat record")
}

func TestReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cdrs.jsonl")
	var buf bytes.Buffer
	require.NoError(t, WriteFlatJSONL(&buf, NewGenerator(WithSeed(1)).GenerateFlat(3)))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	entries, err := ReadFile(path)
	require.NoError(t, err)
	assert.Len(t, entries, 3)

	_, err = ReadFile(filepath.Join(t.TempDir(), "missing.jsonl"))
	assert.Error(t, err)
}
