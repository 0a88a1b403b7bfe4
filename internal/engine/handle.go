package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/jpalmerr/pulsewatch/service"
)

// Handle submits requests to an [Engine] and waits for the replies.
//
// Handle is a small value; copy it freely and use the copies from any number
// of goroutines. Every call sends one request to the worker and waits for
// exactly one reply. If the engine has stopped, calls return
// [service.ErrEngineUnavailable]. If ctx ends first, calls return ctx.Err();
// a mutation the worker already applied stands regardless.
//
// The zero Handle is not usable.
type Handle struct {
	requests chan<- request
	done     <-chan struct{}
}

// exchange sends req and waits for its reply.
func (h Handle) exchange(ctx context.Context, req request) (response, error) {
	return h.exchangeOr(ctx, req, nil)
}

// exchangeOr is exchange with a hook for replies nobody waits for. If ctx
// ends after req was queued, abandoned receives the worker's late reply from
// a background goroutine. It is not called if the engine stops first.
func (h Handle) exchangeOr(ctx context.Context, req request, abandoned func(response)) (response, error) {
	if h.requests == nil {
		return response{}, service.ErrEngineUnavailable
	}

	req.reply = make(chan response, 1)

	select {
	case h.requests <- req:
	case <-h.done:
		return response{}, service.ErrEngineUnavailable
	case <-ctx.Done():
		return response{}, ctx.Err()
	}

	select {
	case resp := <-req.reply:
		return resp, resp.err
	case <-h.done:
		// the worker may have replied just before exiting
		select {
		case resp := <-req.reply:
			return resp, resp.err
		default:
			return response{}, service.ErrEngineUnavailable
		}
	case <-ctx.Done():
		if abandoned != nil {
			go func() {
				select {
				case resp := <-req.reply:
					abandoned(resp)
				case <-h.done:
				}
			}()
		}
		return response{}, ctx.Err()
	}
}

// Apply runs action against the named service.
//
// Create fails with [service.ErrNameConflict] if the name exists; the other
// actions fail with [service.ErrNotFound] if it does not. Accepted actions
// are published to subscribers.
func (h Handle) Apply(ctx context.Context, name string, action service.Action) error {
	if err := action.Validate(); err != nil {
		return fmt.Errorf("invalid action: %w", err)
	}
	_, err := h.exchange(ctx, request{op: opWrite, name: name, action: action})
	return err
}

// CreateService creates name with spec and an empty history.
func (h Handle) CreateService(ctx context.Context, name string, spec service.Spec) error {
	return h.Apply(ctx, name, service.Create(spec))
}

// UpdateSpec replaces the spec of an existing service.
func (h Handle) UpdateSpec(ctx context.Context, name string, spec service.Spec) error {
	return h.Apply(ctx, name, service.UpdateSpec(spec))
}

// DeleteService removes name and its history.
func (h Handle) DeleteService(ctx context.Context, name string) error {
	return h.Apply(ctx, name, service.Delete())
}

// AppendStatus pushes ts into the history of name.
func (h Handle) AppendStatus(ctx context.Context, name string, ts service.TimedStatus) error {
	return h.Apply(ctx, name, service.AppendStatus(ts))
}

// GetSpec returns the spec of name.
func (h Handle) GetSpec(ctx context.Context, name string) (service.Spec, error) {
	resp, err := h.exchange(ctx, request{op: opGetSpec, name: name})
	if err != nil {
		return service.Spec{}, err
	}
	return resp.spec, nil
}

// GetHistory returns a copy of the status history of name.
func (h Handle) GetHistory(ctx context.Context, name string) ([]service.TimedStatus, error) {
	resp, err := h.exchange(ctx, request{op: opGetHistory, name: name})
	if err != nil {
		return nil, err
	}
	return resp.history, nil
}

// GetStatusNear returns the entry of name's history closest to t. The
// boolean is false, with a nil error, when the history is empty.
func (h Handle) GetStatusNear(ctx context.Context, name string, t time.Time) (service.TimedStatus, bool, error) {
	resp, err := h.exchange(ctx, request{op: opGetStatusNear, name: name, at: t})
	if err != nil {
		return service.TimedStatus{}, false, err
	}
	return resp.status, resp.found, nil
}

// ListServices returns the names of all services in sorted order.
func (h Handle) ListServices(ctx context.Context) ([]string, error) {
	resp, err := h.exchange(ctx, request{op: opList})
	if err != nil {
		return nil, err
	}
	return resp.names, nil
}

// Snapshot returns a copy of every service record, sorted by name.
func (h Handle) Snapshot(ctx context.Context) ([]Record, error) {
	resp, err := h.exchange(ctx, request{op: opSnapshot})
	if err != nil {
		return nil, err
	}
	return resp.records, nil
}

// Subscribe returns a channel receiving a [service.Notification] for every
// mutation accepted after this call.
//
// The channel is buffered; a subscriber that falls behind misses
// notifications rather than stalling the engine. The channel is closed by
// [Handle.Unsubscribe] or when the engine stops. Callers must call
// Unsubscribe when done to prevent resource leaks.
func (h Handle) Subscribe(ctx context.Context) (<-chan service.Notification, error) {
	// a channel registered after the caller gave up is released right away
	resp, err := h.exchangeOr(ctx, request{op: opSubscribe}, func(late response) {
		h.Unsubscribe(late.sub)
	})
	if err != nil {
		return nil, err
	}
	return resp.sub, nil
}

// Unsubscribe removes a subscription and closes its channel. It does not
// wait for the worker and is a no-op once the engine has stopped.
func (h Handle) Unsubscribe(ch <-chan service.Notification) {
	if h.requests == nil || ch == nil {
		return
	}
	select {
	case h.requests <- request{op: opUnsubscribe, sub: ch}:
	case <-h.done:
	}
}
