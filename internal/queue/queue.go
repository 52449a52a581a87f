// Package queue backs the durable song request FIFO: every mutation
// updates storage and the in-memory mirror inside the same critical
// section, so the two never diverge even if the calling goroutine is
// cancelled mid-operation (a method that fails returns with the mirror
// matching what storage committed: a Purge that fails part-way drops
// only the rows it already soft-deleted).
//
// Grounded on internal/player/state.go's StateManager, which keeps a
// database-backed value behind a single mutex and refuses to let any
// method return before both the persisted and in-memory copies agree.
package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/oxidizebot/oxidizebot-go/internal/storage"
	"github.com/oxidizebot/oxidizebot-go/internal/trackid"
	"github.com/oxidizebot/oxidizebot-go/pkg/models"
)

// entry pairs a storage row id with the Item it represents, so mutation
// methods can address a specific row without re-deriving it from the
// Item's content.
type entry struct {
	id   int64
	item models.Item
	user string
}

// Queue is the ordered sequence of pending song requests for one
// channel, mirrored in memory for O(1) front/length reads.
type Queue struct {
	mu      sync.Mutex
	store   *storage.Storage
	logger  *logrus.Logger
	channel string
	items   []entry
}

// Open loads the current active-song view from storage and returns a
// ready Queue.
func Open(ctx context.Context, store *storage.Storage, channel string, logger *logrus.Logger) (*Queue, error) {
	if logger == nil {
		logger = logrus.New()
	}
	q := &Queue{store: store, logger: logger, channel: channel}
	if err := q.reload(ctx); err != nil {
		return nil, fmt.Errorf("queue: initial load: %w", err)
	}
	return q, nil
}

func (q *Queue) reload(ctx context.Context) error {
	rows, err := q.store.ActiveSongs(ctx)
	if err != nil {
		return err
	}
	items := make([]entry, 0, len(rows))
	for _, row := range rows {
		id, err := trackid.Parse(row.TrackID)
		if err != nil {
			q.logger.WithError(err).WithField("track_id", row.TrackID).Warn("queue: skipping row with unparseable track id")
			continue
		}
		user := ""
		if row.User.Valid {
			user = row.User.String
		}
		item := models.NewItem(id, models.TrackMetadata{Title: row.Title, Artist: row.Artist, Album: row.Album}, user, int(row.Duration.Seconds()))
		items = append(items, entry{id: row.ID, item: item, user: user})
	}
	q.items = items
	return nil
}

// Front returns the first pending item, if any.
func (q *Queue) Front() (models.Item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return models.Item{}, false
	}
	return q.items[0].item, true
}

// Len returns the number of pending items.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Snapshot returns a copy of every pending item, front first.
func (q *Queue) Snapshot() []models.Item {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]models.Item, len(q.items))
	for i, e := range q.items {
		out[i] = e.item
	}
	return out
}

// PopFront removes and returns the front item, marking it played in
// storage.
func (q *Queue) PopFront(ctx context.Context) (models.Item, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return models.Item{}, false, nil
	}
	front := q.items[0]
	if err := q.store.MarkPlayed(ctx, front.id, time.Now()); err != nil {
		return models.Item{}, false, fmt.Errorf("queue: pop_front: %w", err)
	}
	q.items = q.items[1:]
	return front.item, true, nil
}

// PushBack appends item to the end of the queue, persisting it first.
func (q *Queue) PushBack(ctx context.Context, item models.Item) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	user := ""
	if item.RequestingUser != nil {
		user = *item.RequestingUser
	}
	id, err := q.store.InsertSong(ctx, item.TrackID.String(), item.Metadata.Title, item.Metadata.Artist, item.Metadata.Album,
		time.Duration(item.DurationSecs)*time.Second, user)
	if err != nil {
		return fmt.Errorf("queue: push_back: %w", err)
	}
	q.items = append(q.items, entry{id: id, item: item, user: user})
	return nil
}

// Purge soft-deletes every pending item.
func (q *Queue) Purge(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, e := range q.items {
		if err := q.store.SoftDelete(ctx, e.id); err != nil {
			q.items = q.items[i:]
			return fmt.Errorf("queue: purge: %w", err)
		}
	}
	q.items = nil
	return nil
}

// RemoveAt removes the item at position n (0-based), if present.
func (q *Queue) RemoveAt(ctx context.Context, n int) (models.Item, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if n < 0 || n >= len(q.items) {
		return models.Item{}, false, nil
	}
	target := q.items[n]
	if err := q.store.SoftDelete(ctx, target.id); err != nil {
		return models.Item{}, false, fmt.Errorf("queue: remove_at: %w", err)
	}
	q.items = append(q.items[:n:n], q.items[n+1:]...)
	return target.item, true, nil
}

// RemoveLast removes the most recently added item.
func (q *Queue) RemoveLast(ctx context.Context) (models.Item, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return models.Item{}, false, nil
	}
	return q.removeIndexLocked(ctx, len(q.items)-1)
}

// RemoveLastByUser removes the most recently added item requested by
// user, if any.
func (q *Queue) RemoveLastByUser(ctx context.Context, user string) (models.Item, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i := len(q.items) - 1; i >= 0; i-- {
		if q.items[i].user == user {
			return q.removeIndexLocked(ctx, i)
		}
	}
	return models.Item{}, false, nil
}

func (q *Queue) removeIndexLocked(ctx context.Context, i int) (models.Item, bool, error) {
	target := q.items[i]
	if err := q.store.SoftDelete(ctx, target.id); err != nil {
		return models.Item{}, false, fmt.Errorf("queue: remove: %w", err)
	}
	q.items = append(q.items[:i:i], q.items[i+1:]...)
	return target.item, true, nil
}

// PromoteSong moves the item at position n to the front, persisting a
// promotion timestamp and the promoting user. Front tie-break among
// already-promoted entries is most-recently-promoted first, per the
// storage load order.
func (q *Queue) PromoteSong(ctx context.Context, promoter string, n int) (models.Item, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if n < 0 || n >= len(q.items) {
		return models.Item{}, false, nil
	}
	target := q.items[n]
	now := time.Now()
	if err := q.store.PromoteSong(ctx, target.id, promoter, now); err != nil {
		return models.Item{}, false, fmt.Errorf("queue: promote_song: %w", err)
	}

	q.items = append(q.items[:n:n], q.items[n+1:]...)
	q.items = append([]entry{target}, q.items...)
	return target.item, true, nil
}

// LastSongWithin reports whether trackID was played within the given
// window, supporting the duplicate-request cooldown policy.
func (q *Queue) LastSongWithin(ctx context.Context, id trackid.ID, window time.Duration) (bool, error) {
	return q.store.LastPlayedWithin(ctx, id.String(), window, time.Now())
}
