package snapshot

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jpalmerr/pulsewatch/internal/engine"
	"github.com/jpalmerr/pulsewatch/service"
)

func TestLoad_MissingFile(t *testing.T) {
	records, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "pulsewatch.json")
	t0 := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

	records := []engine.Record{
		{
			Name: "api",
			Spec: service.Spec{Description: "Public API", URL: "https://api.example.com", Group: "edge"},
			History: []service.TimedStatus{
				service.At(t0, service.Up(12*time.Millisecond)),
				service.At(t0.Add(5*time.Second), service.Down("HTTP error: 502 Bad Gateway")),
				service.At(t0.Add(10*time.Second), service.Unknown("timeout")),
			},
		},
		{Name: "db", Spec: service.Spec{Description: "Database"}},
	}

	require.NoError(t, Save(path, records))

	got, err := Load(path)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "api", got[0].Name)
	assert.Equal(t, records[0].Spec, got[0].Spec)
	require.Len(t, got[0].History, 3)
	for i, ts := range got[0].History {
		assert.True(t, ts.Time.Equal(records[0].History[i].Time))
		assert.Equal(t, records[0].History[i].Status, ts.Status)
	}

	assert.Equal(t, "db", got[1].Name)
	assert.Empty(t, got[1].History)
}

func TestSave_OverwritesAndLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")

	require.NoError(t, Save(path, []engine.Record{{Name: "a", Spec: service.Spec{Description: "A"}}}))
	require.NoError(t, Save(path, []engine.Record{{Name: "b", Spec: service.Spec{Description: "B"}}}))

	got, err := Load(path)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].Name)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestLoad_Invalid(t *testing.T) {
	dir := t.TempDir()

	garbage := filepath.Join(dir, "garbage.json")
	require.NoError(t, os.WriteFile(garbage, []byte("{not json"), 0o644))
	_, err := Load(garbage)
	assert.ErrorContains(t, err, "failed to parse snapshot")

	future := filepath.Join(dir, "future.json")
	require.NoError(t, os.WriteFile(future, []byte(`{"version": 99, "services": {}}`), 0o644))
	_, err = Load(future)
	assert.ErrorContains(t, err, "unsupported snapshot version")

	badStatus := filepath.Join(dir, "bad-status.json")
	require.NoError(t, os.WriteFile(badStatus, []byte(`{"version": 1, "services": {"a": {"spec": {"description": "A"}, "statuses": [{"time": "2024-01-01T00:00:00Z", "status": {"kind": "sideways"}}]}}}`), 0o644))
	_, err = Load(badStatus)
	assert.Error(t, err)
}

func TestSnapshotSeedsEngine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	t0 := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	require.NoError(t, Save(path, []engine.Record{{
		Name:    "api",
		Spec:    service.Spec{Description: "Public API"},
		History: []service.TimedStatus{service.At(t0, service.Up(time.Millisecond))},
	}}))

	records, err := Load(path)
	require.NoError(t, err)

	e, err := engine.New(engine.Config{Seed: records}, nil)
	require.NoError(t, err)
	h := e.Start(context.Background())
	defer e.Stop()

	history, err := h.GetHistory(context.Background(), "api")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.True(t, history[0].Time.Equal(t0))
}
