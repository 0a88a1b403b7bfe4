package engine

import (
	"github.com/jpalmerr/pulsewatch/service"
)

// DefaultSubscriberBuffer is the channel buffer given to each subscriber.
const DefaultSubscriberBuffer = 100

// bus fans accepted mutations out to subscribers.
//
// The bus is owned by the engine's worker goroutine, which is the only caller
// of every method, so it needs no locking. Sends are non-blocking: if a
// subscriber's buffer is full the notification is dropped for that
// subscriber rather than stalling the worker.
type bus struct {
	subscribers map[chan service.Notification]struct{}
	bufferSize  int
	dropped     uint64
}

func newBus(bufferSize int) *bus {
	return &bus{
		subscribers: make(map[chan service.Notification]struct{}),
		bufferSize:  bufferSize,
	}
}

// subscribe registers a new subscriber. It only sees notifications published
// after this call.
func (b *bus) subscribe() chan service.Notification {
	ch := make(chan service.Notification, b.bufferSize)
	b.subscribers[ch] = struct{}{}
	return ch
}

// unsubscribe removes and closes ch. Unknown channels are ignored, so this is
// safe to call twice.
func (b *bus) unsubscribe(ch <-chan service.Notification) {
	for subCh := range b.subscribers {
		if subCh == ch {
			delete(b.subscribers, subCh)
			close(subCh)
			return
		}
	}
}

// publish sends a copy of n to every subscriber without blocking and returns
// how many subscribers missed it.
func (b *bus) publish(n service.Notification) int {
	missed := 0
	for ch := range b.subscribers {
		select {
		case ch <- service.Notification{Service: n.Service, Action: n.Action.Clone()}:
		default:
			// subscriber is slow, drop the notification
			missed++
		}
	}
	b.dropped += uint64(missed)
	return missed
}

// closeAll closes every subscriber channel. Called once when the worker exits.
func (b *bus) closeAll() {
	for ch := range b.subscribers {
		close(ch)
	}
	b.subscribers = make(map[chan service.Notification]struct{})
}

func (b *bus) len() int {
	return len(b.subscribers)
}
