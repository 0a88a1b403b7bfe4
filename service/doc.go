// Package service defines the domain types shared by every part of pulsewatch.
//
// The main types are:
//
//   - [Status]: one up/down/unknown observation, built with [Up], [Down] or [Unknown]
//   - [TimedStatus]: a Status with the instant it was observed
//   - [Spec]: human-readable description of a service
//   - [Action]: a mutation applied to a service (create, update spec, delete, append status)
//   - [Notification]: an accepted Action broadcast to subscribers
//
// The error taxonomy is also defined here so that the engine, the HTTP API
// and the HTTP client agree on it: [ErrNotFound], [ErrNameConflict] and
// [ErrEngineUnavailable]. Errors returned by other packages wrap these
// sentinels; test them with errors.Is.
package service
