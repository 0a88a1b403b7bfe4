package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/jpalmerr/pulsewatch/internal/engine"
	"github.com/jpalmerr/pulsewatch/service"
)

const (
	// maxRequestBodySize bounds JSON request bodies.
	maxRequestBodySize = 1 << 20 // 1MB

	// shutdownTimeout is how long in-flight requests get after the context
	// is cancelled.
	shutdownTimeout = 5 * time.Second

	// defaultTitle is used when no custom title is configured.
	defaultTitle = "pulsewatch"
)

// Backend is the engine surface the HTTP layer needs. [engine.Handle]
// implements it.
type Backend interface {
	Apply(ctx context.Context, name string, action service.Action) error
	GetSpec(ctx context.Context, name string) (service.Spec, error)
	GetHistory(ctx context.Context, name string) ([]service.TimedStatus, error)
	GetStatusNear(ctx context.Context, name string, t time.Time) (service.TimedStatus, bool, error)
	ListServices(ctx context.Context) ([]string, error)
	Snapshot(ctx context.Context) ([]engine.Record, error)
	Subscribe(ctx context.Context) (<-chan service.Notification, error)
	Unsubscribe(ch <-chan service.Notification)
}

// Config holds the settings reported by the info endpoint and used to bind.
type Config struct {
	// Port is the TCP port to listen on.
	Port int

	// Title is the dashboard title. Defaults to "pulsewatch".
	Title string

	// Version is reported by GET /api/v1/info.
	Version string

	// Capacity and Strategy describe the engine's history buffers.
	Capacity int
	Strategy string
}

// Info is the body of GET /api/v1/info.
type Info struct {
	Name     string `json:"name"`
	Version  string `json:"version"`
	Writable bool   `json:"writable"`
	Capacity int    `json:"capacity"`
	Strategy string `json:"strategy"`
}

// Server handles HTTP requests for the pulsewatch API and dashboard.
//
// Routes:
//   - GET  /api/v1/info
//   - GET  /api/v1/services
//   - GET  /api/v1/overview
//   - POST, PUT, DELETE /api/v1/services/{name}
//   - GET  /api/v1/services/{name}/spec
//   - GET, POST /api/v1/services/{name}/statuses
//   - GET  /api/v1/services/{name}/status?at=<RFC3339>
//   - GET  /api/v1/events (Server-Sent Events)
//   - GET  /api/v1/ws (WebSocket)
//   - GET  / (dashboard, when assets are provided)
//
// The server is designed for graceful shutdown via context cancellation.
type Server struct {
	backend    Backend
	cfg        Config
	httpServer *http.Server
	assets     fs.FS
	logger     *slog.Logger

	// done is closed once a started server has finished shutting down.
	done chan struct{}
}

// NewServer creates a new HTTP [Server].
//
// Parameters:
//   - backend: engine handle serving the requests
//   - cfg: port, title and reported engine settings
//   - assets: embedded filesystem containing dashboard assets (may be nil)
//   - logger: logger for server events
//
// The server is not started until [Server.Start] is called.
func NewServer(backend Backend, cfg Config, assets fs.FS, logger *slog.Logger) *Server {
	if cfg.Title == "" {
		cfg.Title = defaultTitle
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		backend: backend,
		cfg:     cfg,
		assets:  assets,
		logger:  logger,
		done:    make(chan struct{}),
	}
}

// Done returns a channel that is closed when the server has shut down after
// its Start context was cancelled. Requests in flight at cancellation have
// completed by then, or the shutdown timeout has passed.
func (s *Server) Done() <-chan struct{} {
	return s.done
}

// Handler returns the server's routes wrapped in the request-id, logging
// and recovery middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/info", s.handleInfo)
	mux.HandleFunc("GET /api/v1/services", s.handleList)
	mux.HandleFunc("GET /api/v1/overview", s.handleOverview)

	mux.HandleFunc("POST /api/v1/services/{name}", s.handleCreate)
	mux.HandleFunc("PUT /api/v1/services/{name}", s.handleUpdateSpec)
	mux.HandleFunc("DELETE /api/v1/services/{name}", s.handleDelete)
	mux.HandleFunc("GET /api/v1/services/{name}/spec", s.handleGetSpec)
	mux.HandleFunc("GET /api/v1/services/{name}/statuses", s.handleGetHistory)
	mux.HandleFunc("POST /api/v1/services/{name}/statuses", s.handleAppendStatus)
	mux.HandleFunc("GET /api/v1/services/{name}/status", s.handleGetStatusNear)

	mux.HandleFunc("GET /api/v1/events", s.handleEvents)
	mux.HandleFunc("GET /api/v1/ws", s.handleWebSocket)

	if s.assets != nil {
		mux.HandleFunc("GET /{$}", s.handleDashboard)
	}

	return s.withMiddleware(mux)
}

// Start begins serving HTTP requests in a background goroutine.
//
// Start is non-blocking and returns immediately after confirming the server
// is listening. The server will continue running until the context is
// cancelled, at which point it initiates a graceful shutdown.
//
// Returns an error if the server fails to bind to the configured port.
func (s *Server) Start(ctx context.Context) error {
	// create listener first to verify port availability synchronously
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind to port %d: %w", s.cfg.Port, err)
	}

	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// BaseContext derives all request contexts from the server context.
		// When ctx is cancelled, all request contexts are also cancelled,
		// enabling graceful shutdown of long-running handlers like SSE.
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server error", "error", err)
		}
	}()

	// shutdown on context cancellation
	go func() {
		defer close(s.done)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("http server shutdown error", "error", err)
			return
		}
		s.logger.Info("http server stopped")
	}()

	s.logger.Info("http server listening", "addr", ln.Addr().String())
	return nil
}

// errorBody is the JSON body of every error response.
type errorBody struct {
	Error string `json:"error"`
}

// statusForError maps engine errors to HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrNameConflict):
		return http.StatusConflict
	case errors.Is(err, service.ErrEngineUnavailable),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeEngineError answers with the status mapped from err. Unexpected
// errors are logged; the taxonomy errors are ordinary outcomes.
func (s *Server) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusForError(err)
	if code == http.StatusInternalServerError || errors.Is(err, service.ErrEngineUnavailable) {
		s.logger.Error("engine request failed",
			"request_id", requestID(r.Context()),
			"path", r.URL.Path,
			"error", err,
		)
	}
	writeError(w, code, err.Error())
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorBody{Error: msg})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeJSON reads a bounded JSON body into v, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}
