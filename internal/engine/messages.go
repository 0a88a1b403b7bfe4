package engine

import (
	"time"

	"github.com/jpalmerr/pulsewatch/service"
)

// op tags a request sent to the worker.
type op int

const (
	opWrite op = iota
	opGetSpec
	opGetHistory
	opGetStatusNear
	opList
	opSnapshot
	opSubscribe
	opUnsubscribe
)

func (o op) String() string {
	switch o {
	case opWrite:
		return "write"
	case opGetSpec:
		return "get_spec"
	case opGetHistory:
		return "get_history"
	case opGetStatusNear:
		return "get_status_near"
	case opList:
		return "list"
	case opSnapshot:
		return "snapshot"
	case opSubscribe:
		return "subscribe"
	case opUnsubscribe:
		return "unsubscribe"
	default:
		return "unknown"
	}
}

// request is one message on the engine queue. Only the fields relevant to op
// are set.
type request struct {
	op     op
	name   string
	action service.Action
	at     time.Time
	sub    <-chan service.Notification

	// reply has a buffer of one so the worker never blocks on it, even when
	// the caller has stopped waiting. Nil for fire-and-forget requests.
	reply chan response
}

// response carries the result of a request back to its caller.
type response struct {
	err     error
	spec    service.Spec
	history []service.TimedStatus
	status  service.TimedStatus
	found   bool
	names   []string
	records []Record
	sub     <-chan service.Notification
}
