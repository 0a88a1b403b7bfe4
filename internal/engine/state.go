package engine

import (
	"fmt"
	"sort"
	"time"

	"github.com/jpalmerr/pulsewatch/internal/buffer"
	"github.com/jpalmerr/pulsewatch/service"
)

// Record is a detached copy of one service, used to seed the engine and to
// export its state.
type Record struct {
	// Name is the unique, case-sensitive service name.
	Name string

	// Spec is the service's human-readable description.
	Spec service.Spec

	// History is the status history in the buffer's Get order.
	History []service.TimedStatus
}

// record is the engine-owned service entry.
type record struct {
	spec    service.Spec
	history buffer.Buffer
}

// state is the mapping from service name to record. Only the engine's worker
// goroutine touches it.
type state struct {
	services map[string]*record
	strategy buffer.Strategy
	capacity int
}

func newState(strategy buffer.Strategy, capacity int) *state {
	return &state{
		services: make(map[string]*record),
		strategy: strategy,
		capacity: capacity,
	}
}

// seed loads records before the worker starts. Duplicate names are rejected
// so a corrupt snapshot cannot silently drop a service.
func (s *state) seed(records []Record) error {
	for _, r := range records {
		if _, exists := s.services[r.Name]; exists {
			return fmt.Errorf("seed: duplicate service %q", r.Name)
		}
		history, err := buffer.FromSequence(s.strategy, s.capacity, r.History)
		if err != nil {
			return fmt.Errorf("seed %q: %w", r.Name, err)
		}
		s.services[r.Name] = &record{spec: r.Spec, history: history}
	}
	return nil
}

func (s *state) apply(name string, action service.Action) error {
	switch action.Kind {
	case service.ActionCreate:
		if _, exists := s.services[name]; exists {
			return fmt.Errorf("%w: %q", service.ErrNameConflict, name)
		}
		history, err := buffer.New(s.strategy, s.capacity)
		if err != nil {
			return err
		}
		s.services[name] = &record{spec: *action.Spec, history: history}

	case service.ActionUpdateSpec:
		r, err := s.lookup(name)
		if err != nil {
			return err
		}
		r.spec = *action.Spec

	case service.ActionDelete:
		if _, err := s.lookup(name); err != nil {
			return err
		}
		delete(s.services, name)

	case service.ActionAppendStatus:
		r, err := s.lookup(name)
		if err != nil {
			return err
		}
		r.history.Push(*action.Status)
	}
	return nil
}

func (s *state) lookup(name string) (*record, error) {
	r, ok := s.services[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", service.ErrNotFound, name)
	}
	return r, nil
}

func (s *state) spec(name string) (service.Spec, error) {
	r, err := s.lookup(name)
	if err != nil {
		return service.Spec{}, err
	}
	return r.spec, nil
}

func (s *state) history(name string) ([]service.TimedStatus, error) {
	r, err := s.lookup(name)
	if err != nil {
		return nil, err
	}
	return r.history.Sequence(), nil
}

func (s *state) nearest(name string, t time.Time) (service.TimedStatus, bool, error) {
	r, err := s.lookup(name)
	if err != nil {
		return service.TimedStatus{}, false, err
	}
	ts, ok := r.history.Nearest(t)
	return ts, ok, nil
}

func (s *state) names() []string {
	out := make([]string, 0, len(s.services))
	for name := range s.services {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (s *state) snapshot() []Record {
	out := make([]Record, 0, len(s.services))
	for _, name := range s.names() {
		r := s.services[name]
		out = append(out, Record{
			Name:    name,
			Spec:    r.spec,
			History: r.history.Sequence(),
		})
	}
	return out
}
