package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/jpalmerr/pulsewatch/service"
)

// ServiceView is one service as shown on the dashboard: its spec and the
// most recent observation, if any.
type ServiceView struct {
	Name   string               `json:"name"`
	Spec   service.Spec         `json:"spec"`
	Latest *service.TimedStatus `json:"latest"`
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Info{
		Name:     "pulsewatch",
		Version:  s.cfg.Version,
		Writable: true,
		Capacity: s.cfg.Capacity,
		Strategy: s.cfg.Strategy,
	})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	names, err := s.backend.ListServices(r.Context())
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, names)
}

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	views, err := s.overview(r)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

// overview builds the dashboard view from one engine snapshot, so every
// service is read at the same point in the queue.
func (s *Server) overview(r *http.Request) ([]ServiceView, error) {
	records, err := s.backend.Snapshot(r.Context())
	if err != nil {
		return nil, err
	}

	views := make([]ServiceView, 0, len(records))
	for _, rec := range records {
		view := ServiceView{Name: rec.Name, Spec: rec.Spec}
		if latest, ok := latestOf(rec.History); ok {
			view.Latest = &latest
		}
		views = append(views, view)
	}
	return views, nil
}

// latestOf returns the entry with the newest timestamp; on ties the later
// entry in the slice wins.
func latestOf(history []service.TimedStatus) (service.TimedStatus, bool) {
	if len(history) == 0 {
		return service.TimedStatus{}, false
	}
	latest := history[0]
	for _, ts := range history[1:] {
		if !ts.Time.Before(latest.Time) {
			latest = ts
		}
	}
	return latest, true
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var spec service.Spec
	if err := decodeJSON(w, r, &spec); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := spec.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.backend.Apply(r.Context(), r.PathValue("name"), service.Create(spec)); err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handleUpdateSpec(w http.ResponseWriter, r *http.Request) {
	var spec service.Spec
	if err := decodeJSON(w, r, &spec); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := spec.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.backend.Apply(r.Context(), r.PathValue("name"), service.UpdateSpec(spec)); err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.backend.Apply(r.Context(), r.PathValue("name"), service.Delete()); err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetSpec(w http.ResponseWriter, r *http.Request) {
	spec, err := s.backend.GetSpec(r.Context(), r.PathValue("name"))
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, spec)
}

func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	history, err := s.backend.GetHistory(r.Context(), r.PathValue("name"))
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

// handleAppendStatus appends a TimedStatus body. A missing time means "now".
func (s *Server) handleAppendStatus(w http.ResponseWriter, r *http.Request) {
	var ts service.TimedStatus
	if err := decodeJSON(w, r, &ts); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := ts.Status.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if ts.Time.IsZero() {
		ts.Time = time.Now().UTC()
	}

	if err := s.backend.Apply(r.Context(), r.PathValue("name"), service.AppendStatus(ts)); err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

// handleGetStatusNear answers with the observation nearest to ?at=, or to
// now when at is omitted. The body is null when the history is empty.
// parseAt parses the ?at= query value. An unescaped "+" in a zone offset
// arrives as a space after query decoding, so a space is read back as "+".
func parseAt(raw string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil && strings.Contains(raw, " ") {
		return time.Parse(time.RFC3339Nano, strings.ReplaceAll(raw, " ", "+"))
	}
	return t, err
}

func (s *Server) handleGetStatusNear(w http.ResponseWriter, r *http.Request) {
	at := time.Now()
	if raw := r.URL.Query().Get("at"); raw != "" {
		parsed, err := parseAt(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid at: expected RFC3339 timestamp")
			return
		}
		at = parsed
	}

	ts, found, err := s.backend.GetStatusNear(r.Context(), r.PathValue("name"), at)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	if !found {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	writeJSON(w, http.StatusOK, ts)
}
