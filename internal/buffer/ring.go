package buffer

import (
	"time"

	"github.com/jpalmerr/pulsewatch/service"
)

// ring is the [Sequence] strategy: a fixed-size circular buffer in push order.
type ring struct {
	items []service.TimedStatus
	head  int // index of the oldest entry
	size  int
}

func newRing(capacity int) *ring {
	return &ring{items: make([]service.TimedStatus, capacity)}
}

func (r *ring) Push(ts service.TimedStatus) {
	if r.size < len(r.items) {
		r.items[(r.head+r.size)%len(r.items)] = ts
		r.size++
		return
	}
	// full: overwrite the oldest push and advance head past it
	r.items[r.head] = ts
	r.head = (r.head + 1) % len(r.items)
}

func (r *ring) Get(i int) (service.TimedStatus, bool) {
	if i < 0 || i >= r.size {
		return service.TimedStatus{}, false
	}
	return r.items[(r.head+i)%len(r.items)], true
}

func (r *ring) Len() int {
	return r.size
}

func (r *ring) IsEmpty() bool {
	return r.size == 0
}

func (r *ring) Cap() int {
	return len(r.items)
}

func (r *ring) Sequence() []service.TimedStatus {
	out := make([]service.TimedStatus, r.size)
	for i := range out {
		out[i] = r.items[(r.head+i)%len(r.items)]
	}
	return out
}

// Nearest scans every entry. On a tie the earliest push wins.
func (r *ring) Nearest(t time.Time) (service.TimedStatus, bool) {
	if r.size == 0 {
		return service.TimedStatus{}, false
	}

	best := r.items[r.head]
	bestDist := distance(best.Time, t)
	for i := 1; i < r.size; i++ {
		ts := r.items[(r.head+i)%len(r.items)]
		if d := distance(ts.Time, t); d < bestDist {
			best, bestDist = ts, d
		}
	}
	return best, true
}
