package buffer

import (
	"time"

	"github.com/google/btree"

	"github.com/jpalmerr/pulsewatch/service"
)

// btreeDegree is the B-tree node degree. Histories are small, so a low
// degree keeps nodes compact.
const btreeDegree = 8

// timeIndex is the [TimeIndexed] strategy: entries ordered by instant in a
// B-tree, giving O(log n) nearest lookups.
type timeIndex struct {
	tree     *btree.BTreeG[service.TimedStatus]
	capacity int
}

func byTime(a, b service.TimedStatus) bool {
	return a.Time.Before(b.Time)
}

func newTimeIndex(capacity int) *timeIndex {
	return &timeIndex{
		tree:     btree.NewG(btreeDegree, byTime),
		capacity: capacity,
	}
}

// Push inserts ts keyed by its instant, replacing any entry at the same
// instant. When the insert grows the tree past capacity, the chronologically
// oldest entry is dropped, which may be ts itself.
func (x *timeIndex) Push(ts service.TimedStatus) {
	x.tree.ReplaceOrInsert(ts)
	if x.tree.Len() > x.capacity {
		x.tree.DeleteMin()
	}
}

// Get walks the tree in order, so it costs O(i).
func (x *timeIndex) Get(i int) (service.TimedStatus, bool) {
	if i < 0 || i >= x.tree.Len() {
		return service.TimedStatus{}, false
	}

	var (
		out service.TimedStatus
		n   int
	)
	x.tree.Ascend(func(ts service.TimedStatus) bool {
		if n == i {
			out = ts
			return false
		}
		n++
		return true
	})
	return out, true
}

func (x *timeIndex) Len() int {
	return x.tree.Len()
}

func (x *timeIndex) IsEmpty() bool {
	return x.tree.Len() == 0
}

func (x *timeIndex) Cap() int {
	return x.capacity
}

func (x *timeIndex) Sequence() []service.TimedStatus {
	out := make([]service.TimedStatus, 0, x.tree.Len())
	x.tree.Ascend(func(ts service.TimedStatus) bool {
		out = append(out, ts)
		return true
	})
	return out
}

// Nearest looks up the predecessor and successor of t. On a tie the earlier
// entry wins.
func (x *timeIndex) Nearest(t time.Time) (service.TimedStatus, bool) {
	pivot := service.TimedStatus{Time: t}

	var (
		before, after       service.TimedStatus
		hasBefore, hasAfter bool
	)
	x.tree.DescendLessOrEqual(pivot, func(ts service.TimedStatus) bool {
		before, hasBefore = ts, true
		return false
	})
	x.tree.AscendGreaterOrEqual(pivot, func(ts service.TimedStatus) bool {
		after, hasAfter = ts, true
		return false
	})

	switch {
	case hasBefore && hasAfter:
		if distance(after.Time, t) < distance(before.Time, t) {
			return after, true
		}
		return before, true
	case hasBefore:
		return before, true
	case hasAfter:
		return after, true
	default:
		return service.TimedStatus{}, false
	}
}
