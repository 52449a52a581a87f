// Package mixer implements the next-song selection policy: sidelined
// songs (displaced by a theme) drain first, then the durable queue,
// then a shuffled fallback pool.
//
// The shuffle-buffer-refill shape is grounded on internal/cache/memory.go's
// TTL cache: a bounded buffer that is replenished in bulk once it runs
// low, rather than recomputed per request.
package mixer

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/oxidizebot/oxidizebot-go/internal/queue"
	"github.com/oxidizebot/oxidizebot-go/internal/song"
	"github.com/oxidizebot/oxidizebot-go/pkg/models"
)

// FallbackMin is the minimum number of entries kept in the shuffled
// fallback buffer; refilled in whole-playlist chunks whenever it drops
// below this.
const FallbackMin = 10

// Mixer holds the queue reference plus the sidelined stack and
// fallback pool.
type Mixer struct {
	mu sync.Mutex

	queue *queue.Queue

	sidelined     []*song.Song
	fallbackItems []models.Item
	fallbackQueue []models.Item

	rng *rand.Rand
}

// New builds a Mixer over queue q with an empty fallback pool.
func New(q *queue.Queue) *Mixer {
	return &Mixer{
		queue: q,
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// newWithRand is used by tests for deterministic shuffles.
func newWithRand(q *queue.Queue, rng *rand.Rand) *Mixer {
	return &Mixer{queue: q, rng: rng}
}

// NextSong implements the three-tier selection policy: sidelined, then
// queue, then fallback. Returns ok=false if every tier is empty.
func (m *Mixer) NextSong(ctx context.Context) (*song.Song, bool, error) {
	if s, ok := m.popSidelined(); ok {
		return s, true, nil
	}

	if item, ok, err := m.queue.PopFront(ctx); err != nil {
		return nil, false, err
	} else if ok {
		return song.New(item), true, nil
	}

	if item, ok := m.NextFallbackItem(); ok {
		return song.New(item), true, nil
	}

	return nil, false, nil
}

func (m *Mixer) popSidelined() (*song.Song, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sidelined) == 0 {
		return nil, false
	}
	s := m.sidelined[0]
	m.sidelined = m.sidelined[1:]
	return s, true
}

// PushSidelined appends s to the back of the sidelined FIFO — used when
// a theme song or other injected track displaces whatever was about to
// play, so it can resume afterward.
func (m *Mixer) PushSidelined(s *song.Song) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sidelined = append(m.sidelined, s)
}

// NextFallbackItem pops one item from the shuffle buffer, refilling it
// with a freshly shuffled copy of fallbackItems whenever it runs below
// FallbackMin. Returns ok=false only if fallbackItems itself is empty.
func (m *Mixer) NextFallbackItem() (models.Item, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.fallbackItems) == 0 {
		return models.Item{}, false
	}

	for len(m.fallbackQueue) < FallbackMin {
		m.fallbackQueue = append(m.fallbackQueue, shuffled(m.fallbackItems, m.rng)...)
	}

	item := m.fallbackQueue[0]
	m.fallbackQueue = m.fallbackQueue[1:]
	return item, true
}

// shuffled returns a freshly Fisher-Yates-shuffled copy of items.
func shuffled(items []models.Item, rng *rand.Rand) []models.Item {
	out := make([]models.Item, len(items))
	copy(out, items)
	for i := len(out) - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// UpdateFallbackItems replaces the fallback snapshot and clears the
// shuffle buffer so the new pool takes effect on the next pull.
func (m *Mixer) UpdateFallbackItems(items []models.Item) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallbackItems = append([]models.Item(nil), items...)
	m.fallbackQueue = nil
}

// SidelinedLen reports how many songs are waiting in the sidelined
// FIFO, for status reporting.
func (m *Mixer) SidelinedLen() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sidelined)
}
