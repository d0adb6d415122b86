package session

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srg/senselog/internal/protocol"
)

func TestWriteCSVEmptySession(t *testing.T) {
	// GOAL: An empty session still serializes the documented header
	//
	// TEST SCENARIO: No readings → header-only file

	s := New("2234", "dev", "addr")
	var buf bytes.Buffer
	require.NoError(t, writeCSV(&buf, s))
	assert.Equal(t, "timestamp,timestamp_local,ax,ay,az\n", buf.String())
}

func TestCSVSinkCreatesAndOverwrites(t *testing.T) {
	// GOAL: The sink creates the named file and overwrites stale content
	//
	// TEST SCENARIO: Pre-existing file with junk → Write replaces it

	path := filepath.Join(t.TempDir(), "out.csv")
	require.NoError(t, os.WriteFile(path, []byte("stale"), 0o644))

	s := New("2234", "dev", "addr")
	require.NoError(t, s.Append(protocol.Reading{
		SensorMillis: 1,
		Received:     time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}))

	sink := &CSVSink{Path: path}
	require.NoError(t, sink.Write(s))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "stale")
	assert.Contains(t, string(data), "timestamp,timestamp_local,ax,ay,az")
}

func TestCSVSinkReportsWriteFailure(t *testing.T) {
	// GOAL: An unwritable target surfaces an error instead of silently
	// dropping the snapshot
	//
	// TEST SCENARIO: Path inside a missing directory → error, buffer intact

	s := New("2234", "dev", "addr")
	require.NoError(t, s.Append(protocol.Reading{SensorMillis: 1, Received: time.Now()}))

	sink := &CSVSink{Path: filepath.Join(t.TempDir(), "missing", "out.csv")}
	err := sink.Write(s)
	require.Error(t, err)
	assert.Equal(t, 1, s.Len())
}
