// Package poller probes HTTP targets on a schedule and turns each response
// into a timestamped service status.
//
// The main components are:
//
//   - [Client]: HTTP client wrapper with per-probe timeouts and size limits
//   - [Scheduler]: polls targets at their intervals through a worker pool
//   - [Target]: one probe configuration
//   - [Result]: one observation, ready to submit to the API
//
// By default a 2xx response is up with the measured latency, any other
// status is down with "HTTP error: <status>", and a transport failure is down
// with "Error: <err>". A [Classifier] replaces that rule per target.
package poller
