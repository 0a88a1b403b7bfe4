package main

import (
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"sync"
	"time"
)

// mockPhase is one step of a mock target's health cycle.
type mockPhase struct {
	name  string
	code  int
	delay time.Duration
}

var mockCycle = []mockPhase{
	{name: "ok", code: http.StatusOK, delay: 20 * time.Millisecond},
	{name: "slow", code: http.StatusOK, delay: 400 * time.Millisecond},
	{name: "down", code: http.StatusServiceUnavailable},
}

// mockState tracks the phase and next change time for a single target.
type mockState struct {
	phase        int
	nextChangeAt time.Time
}

// NewMockHealthServer returns a handler whose /health targets cycle through
// ok, slow and down. Each target, keyed by its svc and env query
// parameters, changes phase every 15-45 seconds.
func NewMockHealthServer() http.Handler {
	var (
		states = make(map[string]*mockState)
		mu     sync.Mutex
	)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.Query().Get("svc") + "-" + r.URL.Query().Get("env")

		mu.Lock()
		state, exists := states[key]
		if !exists {
			state = &mockState{nextChangeAt: nextChange()}
			states[key] = state
		}
		if time.Now().After(state.nextChangeAt) {
			from := mockCycle[state.phase].name
			state.phase = (state.phase + 1) % len(mockCycle)
			state.nextChangeAt = nextChange()
			slog.Info("mock phase change", "target", key, "from", from, "to", mockCycle[state.phase].name)
		}
		phase := mockCycle[state.phase]
		mu.Unlock()

		// small jitter on top of the phase latency
		time.Sleep(phase.delay + time.Duration(rand.Intn(50))*time.Millisecond)

		w.WriteHeader(phase.code)
		fmt.Fprintln(w, phase.name)
	})
	return mux
}

func nextChange() time.Time {
	return time.Now().Add(time.Duration(15+rand.Intn(31)) * time.Second)
}
