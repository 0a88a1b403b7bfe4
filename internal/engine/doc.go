// Package engine owns pulsewatch's service state.
//
// The engine is a single-writer actor: one goroutine holds the map from
// service name to record (spec plus bounded history) and applies requests
// that arrive on a queue, one at a time. Nothing else reads or writes that
// map, so the package uses no locks around state.
//
// The main components are:
//
//   - [Engine]: owns the worker goroutine and its lifecycle
//   - [Handle]: copyable client used by any number of goroutines to send
//     requests and wait for replies
//   - the notification bus: subscriber channels fed by the worker after
//     every accepted mutation (see [Handle.Subscribe])
//   - [Record]: detached copy of a service used for seeding and export
//
// Ordering: every request passes through the same queue, so a read issued
// after a write was acknowledged observes that write. Requests from
// different goroutines are ordered by queue arrival only.
//
// Cancellation: a caller whose context ends before the reply arrives gets
// ctx.Err(); the worker's reply goes to a buffered channel nobody reads and
// is dropped. The mutation, if applied, stands and is still published.
package engine
