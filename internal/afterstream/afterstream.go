// Package afterstream implements the after-stream log: short notes
// chat leaves for the streamer to read back once they're off air,
// scoped per channel.
package afterstream

import (
	"context"
	"fmt"
	"strings"

	"github.com/oxidizebot/oxidizebot-go/internal/storage"
)

// Log is a thin, channel-scoped view over the after-streams table.
type Log struct {
	store   *storage.Storage
	channel string
}

// Open builds a Log for channel.
func Open(store *storage.Storage, channel string) *Log {
	return &Log{store: store, channel: channel}
}

// Add appends a note from user, normalizing the login the same way
// every other user-facing record does.
func (l *Log) Add(ctx context.Context, user, message string) error {
	if err := l.store.AddAfterStream(ctx, l.channel, normalizeUser(user), message); err != nil {
		return fmt.Errorf("afterstream: add: %w", err)
	}
	return nil
}

// List returns every logged note for the channel, oldest first.
func (l *Log) List(ctx context.Context) ([]storage.AfterStreamEntry, error) {
	entries, err := l.store.ListAfterStreams(ctx, l.channel)
	if err != nil {
		return nil, fmt.Errorf("afterstream: list: %w", err)
	}
	return entries, nil
}

// Clear deletes every logged note for the channel, once it has been
// read back.
func (l *Log) Clear(ctx context.Context) error {
	if err := l.store.ClearAfterStreams(ctx, l.channel); err != nil {
		return fmt.Errorf("afterstream: clear: %w", err)
	}
	return nil
}

func normalizeUser(user string) string {
	return strings.ToLower(strings.TrimPrefix(user, "@"))
}
