// Package checker feeds probe results into a pulsewatch server.
//
// A [Runner] makes sure every target is registered with its spec, then
// forwards each scheduler observation through the HTTP API. Submission
// failures are logged and skipped; the next probe tries again.
package checker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jpalmerr/pulsewatch/internal/poller"
	"github.com/jpalmerr/pulsewatch/service"
)

// submitTimeout bounds one status submission, retries included.
const submitTimeout = 15 * time.Second

// API is the subset of the API client the runner needs.
// *apiclient.Client implements it.
type API interface {
	GetSpec(ctx context.Context, name string) (service.Spec, error)
	CreateService(ctx context.Context, name string, spec service.Spec) error
	UpdateSpec(ctx context.Context, name string, spec service.Spec) error
	AppendStatus(ctx context.Context, name string, ts service.TimedStatus) error
}

// Runner registers targets and submits their observations.
type Runner struct {
	api            API
	targets        map[string]poller.Target
	order          []poller.Target
	interval       time.Duration
	maxConcurrency int
	logger         *slog.Logger
}

// New creates a [Runner]. interval and maxConcurrency are passed to the
// scheduler; zero values select its defaults.
func New(api API, targets []poller.Target, interval time.Duration, maxConcurrency int, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	byName := make(map[string]poller.Target, len(targets))
	for _, t := range targets {
		byName[t.Name] = t
	}
	return &Runner{
		api:            api,
		targets:        byName,
		order:          targets,
		interval:       interval,
		maxConcurrency: maxConcurrency,
		logger:         logger,
	}
}

// Register creates each target's service, or updates its spec when the
// service already exists with a different one.
func (r *Runner) Register(ctx context.Context) error {
	var errs []error
	for _, t := range r.order {
		if err := r.ensure(ctx, t); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", t.Name, err))
		}
	}
	return errors.Join(errs...)
}

// ensure is create-or-update for one target.
func (r *Runner) ensure(ctx context.Context, t poller.Target) error {
	current, err := r.api.GetSpec(ctx, t.Name)
	switch {
	case errors.Is(err, service.ErrNotFound):
		err = r.api.CreateService(ctx, t.Name, t.Spec)
		if errors.Is(err, service.ErrNameConflict) {
			// created concurrently; make sure our spec wins
			return r.api.UpdateSpec(ctx, t.Name, t.Spec)
		}
		if err == nil {
			r.logger.Info("service registered", "service", t.Name)
		}
		return err
	case err != nil:
		return err
	case current == t.Spec:
		return nil
	default:
		if err := r.api.UpdateSpec(ctx, t.Name, t.Spec); err != nil {
			return err
		}
		r.logger.Info("service spec updated", "service", t.Name)
		return nil
	}
}

// Run registers all targets, then probes and submits until ctx is
// cancelled. It returns an error only if registration fails.
func (r *Runner) Run(ctx context.Context) error {
	if err := r.Register(ctx); err != nil {
		return fmt.Errorf("failed to register services: %w", err)
	}

	scheduler := poller.NewScheduler(r.order, r.interval, r.maxConcurrency, r.logger)
	scheduler.Start(ctx)
	defer scheduler.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case result, ok := <-scheduler.Results():
			if !ok {
				return nil
			}
			r.submit(ctx, result)
		}
	}
}

// submit posts one observation. A service deleted behind our back is
// registered again and the observation resubmitted once.
func (r *Runner) submit(ctx context.Context, result poller.Result) {
	ctx, cancel := context.WithTimeout(ctx, submitTimeout)
	defer cancel()

	err := r.api.AppendStatus(ctx, result.Target, result.Observation)
	if errors.Is(err, service.ErrNotFound) {
		if t, ok := r.targets[result.Target]; ok {
			if err = r.ensure(ctx, t); err == nil {
				err = r.api.AppendStatus(ctx, result.Target, result.Observation)
			}
		}
	}

	if err != nil {
		r.logger.Warn("failed to submit status",
			"service", result.Target,
			"status", result.Observation.Status.String(),
			"error", err,
		)
		return
	}

	r.logger.Debug("status submitted",
		"service", result.Target,
		"status", result.Observation.Status.String(),
		"http_status", result.StatusCode,
	)
}
