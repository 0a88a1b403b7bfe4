// Package snapshot saves and loads pulsewatch state as a JSON file.
//
// The engine itself never touches disk. The orchestrator loads a snapshot to
// seed the engine at start and saves one from [engine.Handle.Snapshot] at
// shutdown. Histories are stored in their buffer's sequence form, so a
// reload rebuilds equivalent buffers.
package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/jpalmerr/pulsewatch/internal/engine"
	"github.com/jpalmerr/pulsewatch/service"
)

// Version is the current file format version.
const Version = 1

// File is the on-disk layout.
type File struct {
	Version  int                     `json:"version"`
	SavedAt  time.Time               `json:"saved_at"`
	Services map[string]ServiceState `json:"services"`
}

// ServiceState is one service in the file.
type ServiceState struct {
	Spec     service.Spec          `json:"spec"`
	Statuses []service.TimedStatus `json:"statuses"`
}

// Load reads the snapshot at path and returns its records sorted by name.
//
// A missing file is not an error: it yields no records, so a first start
// begins with empty state.
func Load(path string) ([]engine.Record, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot %s: %w", path, err)
	}
	if f.Version != Version {
		return nil, fmt.Errorf("unsupported snapshot version %d (want %d)", f.Version, Version)
	}

	names := make([]string, 0, len(f.Services))
	for name := range f.Services {
		names = append(names, name)
	}
	sort.Strings(names)

	records := make([]engine.Record, 0, len(names))
	for _, name := range names {
		st := f.Services[name]
		records = append(records, engine.Record{
			Name:    name,
			Spec:    st.Spec,
			History: st.Statuses,
		})
	}
	return records, nil
}

// Save writes records to path atomically: the data goes to a temporary file
// in the same directory which is then renamed over path.
func Save(path string, records []engine.Record) error {
	f := File{
		Version:  Version,
		SavedAt:  time.Now().UTC(),
		Services: make(map[string]ServiceState, len(records)),
	}
	for _, r := range records {
		statuses := r.History
		if statuses == nil {
			statuses = []service.TimedStatus{}
		}
		f.Services[r.Name] = ServiceState{Spec: r.Spec, Statuses: statuses}
	}

	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("ensure snapshot directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".pulsewatch-snapshot-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}
	return nil
}
