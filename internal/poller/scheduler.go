package poller

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jpalmerr/pulsewatch/service"
)

const (
	// DefaultInterval is the probe interval for targets without their own.
	DefaultInterval = 5 * time.Second

	// DefaultTimeout bounds one probe.
	DefaultTimeout = 10 * time.Second
)

// Classifier turns a probe response into a status. It is only called for
// responses that arrived; transport failures are always down.
type Classifier func(resp Response) service.Status

// Target is one service to probe.
type Target struct {
	// Name is the service name the observations are filed under.
	Name string

	// Spec is registered for the service before probing starts.
	Spec service.Spec

	// URL is the probe URL.
	URL string

	// Method is the HTTP method (GET, HEAD, POST). Empty defaults to GET.
	Method string

	// Headers are sent with every probe.
	Headers map[string]string

	// Timeout is the per-probe timeout. Zero uses [DefaultTimeout].
	Timeout time.Duration

	// Interval is the time between probes. Zero uses the scheduler default.
	Interval time.Duration

	// Classifier overrides the default 2xx rule when set.
	Classifier Classifier
}

// Result is one observation of one target.
type Result struct {
	// Target is the service name.
	Target string

	// Observation is the status to submit.
	Observation service.TimedStatus

	// StatusCode is the HTTP status, zero on transport failure.
	StatusCode int

	// Err is set when the classifier panicked.
	Err error
}

// Classify is the default rule: 2xx is up with the probe latency, any other
// status is down, and a transport failure is down with the error text.
func Classify(resp Response) service.Status {
	if resp.Error != nil {
		return service.Down("Error: " + resp.Error.Error())
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return service.Up(resp.Latency)
	}
	return service.Down(fmt.Sprintf("HTTP error: %d %s", resp.StatusCode, http.StatusText(resp.StatusCode)))
}

// ExpectStatus returns a classifier treating only the listed codes as up.
func ExpectStatus(codes ...int) Classifier {
	return func(resp Response) service.Status {
		if slices.Contains(codes, resp.StatusCode) {
			return service.Up(resp.Latency)
		}
		return service.Down(fmt.Sprintf("HTTP error: %d %s", resp.StatusCode, http.StatusText(resp.StatusCode)))
	}
}

// Scheduler manages periodic probing of multiple targets.
//
// Scheduler implements a worker pool pattern, probing targets at their
// respective intervals with bounded concurrency. All targets are probed
// immediately on start; afterwards the scheduler ticks at the GCD of all
// target intervals and probes only the targets that are due.
//
// All lifecycle methods (Start, Stop) are safe for concurrent use.
type Scheduler struct {
	targets        []Target
	interval       time.Duration // global default interval
	maxConcurrency int
	client         *Client
	results        chan Result
	logger         *slog.Logger
	ctx            context.Context
	cancel         context.CancelFunc
	wg             sync.WaitGroup

	mu        sync.Mutex
	started   bool
	stopped   bool
	closeOnce sync.Once

	// per-target timing for tick-and-check pattern
	lastPolledAt map[string]time.Time
	baseInterval time.Duration
}

// NewScheduler creates a new probing [Scheduler].
//
// A non-positive interval selects [DefaultInterval]; a non-positive
// maxConcurrency means one worker per target.
func NewScheduler(targets []Target, interval time.Duration, maxConcurrency int, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if maxConcurrency <= 0 {
		maxConcurrency = max(len(targets), 1)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		targets:        targets,
		interval:       interval,
		maxConcurrency: maxConcurrency,
		client:         NewClient(),
		results:        make(chan Result, len(targets)),
		logger:         logger,
	}
}

// Results returns the observation channel. It is closed when the scheduler
// stops.
func (s *Scheduler) Results() <-chan Result {
	return s.results
}

// calculateBaseInterval determines the tick interval for the scheduler.
// Uses the GCD of all target intervals to ensure timely probing.
func (s *Scheduler) calculateBaseInterval() time.Duration {
	if len(s.targets) == 0 {
		return s.interval
	}

	result := s.intervalOf(s.targets[0])
	for _, t := range s.targets[1:] {
		result = gcdDuration(result, s.intervalOf(t))
	}

	// floor at 1 second to prevent CPU thrashing
	if result < time.Second {
		result = time.Second
	}

	return result
}

func (s *Scheduler) intervalOf(t Target) time.Duration {
	if t.Interval > 0 {
		return t.Interval
	}
	return s.interval
}

// gcdDuration calculates the greatest common divisor of two durations.
func gcdDuration(a, b time.Duration) time.Duration {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

// Start begins the probing loop in a background goroutine.
//
// Start is non-blocking and idempotent. If Stop was called before Start,
// Start is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started || s.stopped {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.lastPolledAt = make(map[string]time.Time, len(s.targets))
	s.baseInterval = s.calculateBaseInterval()

	if ctx == nil {
		ctx = context.Background()
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	pollCtx := s.ctx // capture under lock to avoid race
	s.wg.Add(1)
	s.mu.Unlock()

	s.logger.Info("scheduler started",
		"targets", len(s.targets),
		"tick", s.baseInterval,
		"max_concurrency", s.maxConcurrency,
	)

	go func() {
		defer s.wg.Done()
		defer s.closeOnce.Do(func() { close(s.results) })

		s.pollDue(pollCtx, true)

		ticker := time.NewTicker(s.baseInterval)
		defer ticker.Stop()

		for {
			select {
			case <-pollCtx.Done():
				return
			case <-ticker.C:
				s.pollDue(pollCtx, false)
			}
		}
	}()
}

// Stop halts the scheduler, waits for in-flight probes and closes the
// results channel. Stop is idempotent and safe to call before Start.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.stopped {
		s.stopped = true
		if s.cancel != nil {
			s.cancel()
		}
	}
	s.mu.Unlock()

	s.wg.Wait()

	// clean up client connections after all goroutines complete
	if s.client != nil {
		s.client.Close()
	}

	// ensure channel is closed even if Start() was never called
	s.closeOnce.Do(func() { close(s.results) })
}

// pollDue probes the targets whose interval has elapsed, or all of them when
// immediate is true.
//
// lastPolledAt is updated when a probe STARTS, not when it completes, so a
// slow target's effective interval is its interval plus the probe duration.
func (s *Scheduler) pollDue(ctx context.Context, immediate bool) {
	now := time.Now()
	due := make([]Target, 0, len(s.targets))

	s.mu.Lock()
	for _, t := range s.targets {
		last, seen := s.lastPolledAt[t.Name]
		if immediate || !seen || now.Sub(last) >= s.intervalOf(t) {
			due = append(due, t)
			s.lastPolledAt[t.Name] = now
		}
	}
	s.mu.Unlock()

	if len(due) == 0 {
		return
	}

	s.pollTargets(ctx, due)
}

// pollTargets probes targets concurrently, respecting maxConcurrency.
func (s *Scheduler) pollTargets(ctx context.Context, targets []Target) {
	jobs := make(chan Target, len(targets))

	var wg sync.WaitGroup
	for i := 0; i < min(s.maxConcurrency, len(targets)); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range jobs {
				result := s.poll(ctx, t)
				select {
				case s.results <- result:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	for _, t := range targets {
		select {
		case jobs <- t:
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return
		}
	}
	close(jobs)

	wg.Wait()
}

// poll probes one target and classifies the response.
func (s *Scheduler) poll(ctx context.Context, t Target) Result {
	resp := s.client.Probe(ctx, t)

	result := Result{
		Target:     t.Name,
		StatusCode: resp.StatusCode,
	}

	var status service.Status
	switch {
	case resp.Error != nil || t.Classifier == nil:
		status = Classify(resp)
	default:
		status, result.Err = s.safeClassify(t.Classifier, resp)
	}

	result.Observation = service.At(time.Now().UTC(), status)
	return result
}

// safeClassify calls the classifier with panic recovery.
// A panic is logged with its stack under a correlation ID and reported as a
// down status carrying that ID.
func (s *Scheduler) safeClassify(classify Classifier, resp Response) (status service.Status, err error) {
	defer func() {
		if r := recover(); r != nil {
			correlationID := uuid.NewString()

			// log full context server-side for debugging
			s.logger.Error("classifier panic",
				"correlation_id", correlationID,
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)

			err = fmt.Errorf("classifier panic (correlation_id: %s)", correlationID)
			status = service.Down(err.Error())
		}
	}()
	return classify(resp), nil
}
