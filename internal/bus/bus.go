// Package bus implements the in-process fan-out of typed events with a
// per-id "latest" cache, used for three channels in the bot: the global
// event bus (song-progress, song-current), the YouTube control bus
// (play/pause/stop/volume), and the chat-log viewer's message stream.
//
// The fan-out/cache-map shape is grounded on internal/player/state.go's
// StateManager (listeners slice guarded by a mutex, non-blocking send
// that drops a full/closed subscriber) and internal/cache/memory.go's
// TTL map for the "latest" half.
package bus

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Identifiable is implemented by event types that want latest-value
// caching: BusID returns a cache key, or "" to opt out of caching.
type Identifiable interface {
	BusID() string
}

// Bus fans out values of type T to any number of subscribers and keeps
// a "latest event per id" cache for any T implementing Identifiable.
type Bus[T any] struct {
	mu          sync.Mutex
	subscribers []chan T
	latest      map[string]T
	logger      *logrus.Logger
}

// New builds an empty Bus. logger may be nil, in which case dropped
// broadcasts are not logged.
func New[T any](logger *logrus.Logger) *Bus[T] {
	return &Bus[T]{latest: make(map[string]T), logger: logger}
}

// Send updates the latest-cache (if e implements Identifiable with a
// non-empty id) and attempts a non-blocking broadcast to every
// subscriber. A full subscriber channel means that send is dropped for
// that subscriber — the bus never blocks a publisher waiting on a slow
// consumer.
func (b *Bus[T]) Send(e T) {
	b.mu.Lock()
	if ider, ok := any(e).(Identifiable); ok {
		if id := ider.BusID(); id != "" {
			b.latest[id] = e
		}
	}
	subs := append([]chan T{}, b.subscribers...)
	b.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- e:
		default:
			if b.logger != nil {
				b.logger.Warn("bus: dropped event for a full subscriber")
			}
		}
	}
}

// Subscribe registers a new receiver with the given buffer size and
// returns it along with an unsubscribe function. Callers should always
// defer the unsubscribe function to avoid leaking a slot in
// b.subscribers.
func (b *Bus[T]) Subscribe(buffer int) (<-chan T, func()) {
	ch := make(chan T, buffer)

	b.mu.Lock()
	b.subscribers = append(b.subscribers, ch)
	b.mu.Unlock()

	unsub := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, sub := range b.subscribers {
			if sub == ch {
				b.subscribers = append(b.subscribers[:i], b.subscribers[i+1:]...)
				return
			}
		}
	}
	return ch, unsub
}

// Latest returns one copy of each cached event, keyed by BusID.
func (b *Bus[T]) Latest() map[string]T {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make(map[string]T, len(b.latest))
	for k, v := range b.latest {
		out[k] = v
	}
	return out
}
