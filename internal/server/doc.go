// Package server provides the HTTP surface of pulsewatch: the JSON API,
// live event streams and the dashboard.
//
// This package is internal to pulsewatch and handles all HTTP concerns:
//
//   - REST API: service lifecycle and history queries under "/api/v1"
//   - Server-Sent Events: live notifications at "/api/v1/events"
//   - WebSocket: the same frames at "/api/v1/ws"
//   - Dashboard serving: the embedded HTML page at "/"
//
// Every request goes through the engine [Backend]; the server holds no state
// of its own. Engine errors map to 404 (unknown service), 409 (name taken)
// and 503 (engine stopped).
//
// The server supports graceful shutdown via context cancellation, with a
// 5-second timeout for in-flight requests.
package server
