package buffer

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/jpalmerr/pulsewatch/service"
)

// DefaultCapacity is the number of observations kept per service when no
// capacity is configured.
const DefaultCapacity = 32

// Buffer is a bounded history of status observations for one service.
//
// Implementations are not safe for concurrent use; the engine owns every
// buffer exclusively.
type Buffer interface {
	// Push inserts one observation, evicting one entry first if the buffer
	// is full. The eviction rule depends on the strategy.
	Push(ts service.TimedStatus)

	// Get returns the entry at position i. For [Sequence] buffers i is the
	// insertion position (0 is the oldest retained push); for [TimeIndexed]
	// buffers i is the position in chronological order.
	Get(i int) (service.TimedStatus, bool)

	// Len returns the number of stored entries. Never exceeds Cap.
	Len() int

	// IsEmpty reports whether Len is zero.
	IsEmpty() bool

	// Cap returns the configured capacity.
	Cap() int

	// Sequence returns a copy of all entries in Get order. Passing the result
	// to [FromSequence] with the same strategy rebuilds an equivalent buffer.
	Sequence() []service.TimedStatus

	// Nearest returns the entry whose timestamp is closest to t. The boolean
	// is false when the buffer is empty.
	Nearest(t time.Time) (service.TimedStatus, bool)
}

// Strategy selects a [Buffer] implementation.
type Strategy string

const (
	// Sequence keeps entries in push order in a ring. Duplicate and
	// out-of-order timestamps are preserved; the oldest push is evicted.
	Sequence Strategy = "sequence"

	// TimeIndexed keeps entries ordered by timestamp. Entries with the same
	// instant collapse (last write wins); the chronologically oldest entry
	// is evicted.
	TimeIndexed Strategy = "time-indexed"
)

// String returns the configuration token of the strategy.
func (s Strategy) String() string {
	return string(s)
}

// ParseStrategy parses a strategy name. The empty string selects [Sequence].
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "sequence", "seq":
		return Sequence, nil
	case "time-indexed", "time_indexed", "time":
		return TimeIndexed, nil
	default:
		return "", fmt.Errorf("unknown buffer strategy %q (expected 'sequence' or 'time-indexed')", s)
	}
}

// New returns an empty buffer of the given strategy and capacity.
func New(strategy Strategy, capacity int) (Buffer, error) {
	if capacity < 1 {
		return nil, fmt.Errorf("buffer capacity must be at least 1, got %d", capacity)
	}

	switch strategy {
	case Sequence:
		return newRing(capacity), nil
	case TimeIndexed:
		return newTimeIndex(capacity), nil
	case "":
		return nil, errors.New("buffer strategy is required")
	default:
		return nil, fmt.Errorf("unknown buffer strategy %q", strategy)
	}
}

// FromSequence builds a buffer by pushing every entry of seq in order.
//
// A sequence longer than capacity is trimmed by the strategy's eviction rule,
// exactly as if the entries had been pushed one by one.
func FromSequence(strategy Strategy, capacity int, seq []service.TimedStatus) (Buffer, error) {
	buf, err := New(strategy, capacity)
	if err != nil {
		return nil, err
	}
	for _, ts := range seq {
		buf.Push(ts)
	}
	return buf, nil
}

// distance returns |a - b|, saturating instead of overflowing for instants
// more than ~292 years apart.
func distance(a, b time.Time) time.Duration {
	d := a.Sub(b)
	if d < 0 {
		if d == math.MinInt64 {
			return math.MaxInt64
		}
		d = -d
	}
	return d
}
