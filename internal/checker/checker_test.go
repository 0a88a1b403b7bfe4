package checker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jpalmerr/pulsewatch/internal/apiclient"
	"github.com/jpalmerr/pulsewatch/internal/engine"
	"github.com/jpalmerr/pulsewatch/internal/poller"
	"github.com/jpalmerr/pulsewatch/internal/server"
	"github.com/jpalmerr/pulsewatch/service"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeAPI is an in-memory API with call counters.
type fakeAPI struct {
	mu       sync.Mutex
	specs    map[string]service.Spec
	statuses map[string][]service.TimedStatus
	creates  int
	updates  int
	failGet  error
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		specs:    make(map[string]service.Spec),
		statuses: make(map[string][]service.TimedStatus),
	}
}

func (f *fakeAPI) GetSpec(_ context.Context, name string) (service.Spec, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failGet != nil {
		return service.Spec{}, f.failGet
	}
	spec, ok := f.specs[name]
	if !ok {
		return service.Spec{}, service.ErrNotFound
	}
	return spec, nil
}

func (f *fakeAPI) CreateService(_ context.Context, name string, spec service.Spec) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.specs[name]; ok {
		return service.ErrNameConflict
	}
	f.creates++
	f.specs[name] = spec
	return nil
}

func (f *fakeAPI) UpdateSpec(_ context.Context, name string, spec service.Spec) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.specs[name]; !ok {
		return service.ErrNotFound
	}
	f.updates++
	f.specs[name] = spec
	return nil
}

func (f *fakeAPI) AppendStatus(_ context.Context, name string, ts service.TimedStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.specs[name]; !ok {
		return service.ErrNotFound
	}
	f.statuses[name] = append(f.statuses[name], ts)
	return nil
}

func (f *fakeAPI) deleteService(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.specs, name)
	delete(f.statuses, name)
}

func TestRegister_CreateOrUpdate(t *testing.T) {
	api := newFakeAPI()
	api.specs["db"] = service.Spec{Description: "old"}
	api.specs["cache"] = service.Spec{Description: "Cache"}

	targets := []poller.Target{
		{Name: "api", Spec: service.Spec{Description: "API"}},
		{Name: "db", Spec: service.Spec{Description: "Database"}},
		{Name: "cache", Spec: service.Spec{Description: "Cache"}},
	}
	r := New(api, targets, 0, 0, testLogger())

	if err := r.Register(context.Background()); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	if api.creates != 1 {
		t.Errorf("creates = %d, want 1 (only api is new)", api.creates)
	}
	if api.updates != 1 {
		t.Errorf("updates = %d, want 1 (only db differs)", api.updates)
	}
	if got := api.specs["db"].Description; got != "Database" {
		t.Errorf("db description = %q, want Database", got)
	}
}

func TestRegister_ReportsFailures(t *testing.T) {
	api := newFakeAPI()
	api.failGet = service.ErrEngineUnavailable

	r := New(api, []poller.Target{{Name: "api", Spec: service.Spec{Description: "API"}}}, 0, 0, testLogger())

	err := r.Register(context.Background())
	if !errors.Is(err, service.ErrEngineUnavailable) {
		t.Fatalf("Register() error = %v, want ErrEngineUnavailable", err)
	}
	if !strings.Contains(err.Error(), "api") {
		t.Errorf("error %q should name the failing service", err)
	}
}

func TestSubmit_ReRegistersDeletedService(t *testing.T) {
	api := newFakeAPI()
	target := poller.Target{Name: "api", Spec: service.Spec{Description: "API"}}
	r := New(api, []poller.Target{target}, 0, 0, testLogger())
	if err := r.Register(context.Background()); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	api.deleteService("api")

	r.submit(context.Background(), poller.Result{
		Target:      "api",
		Observation: service.At(time.Now(), service.Up(time.Millisecond)),
	})

	if api.creates != 2 {
		t.Errorf("creates = %d, want 2", api.creates)
	}
	if n := len(api.statuses["api"]); n != 1 {
		t.Errorf("len(statuses) = %d, want 1", n)
	}
}

func TestSubmit_UnknownTargetIsLoggedNotFatal(t *testing.T) {
	api := newFakeAPI()
	r := New(api, nil, 0, 0, testLogger())

	// must not panic or block
	r.submit(context.Background(), poller.Result{
		Target:      "ghost",
		Observation: service.At(time.Now(), service.Up(0)),
	})
	if len(api.statuses) != 0 {
		t.Errorf("statuses = %v, want none", api.statuses)
	}
}

func TestRun_RegisterFailureIsReturned(t *testing.T) {
	api := newFakeAPI()
	api.failGet = errors.New("connection refused")

	r := New(api, []poller.Target{{Name: "api", Spec: service.Spec{Description: "API"}}}, 0, 0, testLogger())
	err := r.Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "failed to register services") {
		t.Errorf("Run() error = %v, want register failure", err)
	}
}

// TestRun_EndToEnd checks a local target and submits through the real API.
func TestRun_EndToEnd(t *testing.T) {
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/down" {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer target.Close()

	e, err := engine.New(engine.Config{}, testLogger())
	if err != nil {
		t.Fatalf("engine.New() error = %v", err)
	}
	h := e.Start(context.Background())
	defer e.Stop()

	api := httptest.NewServer(server.NewServer(h, server.Config{}, nil, testLogger()).Handler())
	defer api.Close()

	client, err := apiclient.New(api.URL, apiclient.WithLogger(testLogger()))
	if err != nil {
		t.Fatalf("apiclient.New() error = %v", err)
	}

	targets := []poller.Target{
		{Name: "web", Spec: service.Spec{Description: "Web", URL: target.URL}, URL: target.URL, Timeout: time.Second},
		{Name: "worker", Spec: service.Spec{Description: "Worker"}, URL: target.URL + "/down", Timeout: time.Second},
	}
	r := New(client, targets, time.Hour, 2, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	bg := context.Background()
	deadline := time.Now().Add(5 * time.Second)
	for {
		web, err1 := h.GetHistory(bg, "web")
		worker, err2 := h.GetHistory(bg, "worker")
		if err1 == nil && err2 == nil && len(web) == 1 && len(worker) == 1 {
			break
		}
		if time.Now().After(deadline) {
			cancel()
			<-done
			t.Fatal("timeout waiting for both targets to be recorded")
		}
		time.Sleep(20 * time.Millisecond)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	web, err := h.GetHistory(bg, "web")
	if err != nil {
		t.Fatalf("GetHistory(web) error = %v", err)
	}
	if !web[0].Status.IsUp() {
		t.Errorf("web status = %v, want up", web[0].Status)
	}

	worker, err := h.GetHistory(bg, "worker")
	if err != nil {
		t.Fatalf("GetHistory(worker) error = %v", err)
	}
	if got := worker[0].Status.Reason(); got != "HTTP error: 503 Service Unavailable" {
		t.Errorf("worker reason = %q", got)
	}

	spec, err := h.GetSpec(bg, "web")
	if err != nil {
		t.Fatalf("GetSpec(web) error = %v", err)
	}
	if spec.URL != target.URL {
		t.Errorf("web spec URL = %q, want %q", spec.URL, target.URL)
	}
}
