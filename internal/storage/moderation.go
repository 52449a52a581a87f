package storage

import (
	"context"
	"time"
)

// BadWord is one entry in the swear-jar filter list.
type BadWord struct {
	Word string
	Why  string
}

// ListBadWords returns the whole filter list.
func (s *Storage) ListBadWords(ctx context.Context) ([]BadWord, error) {
	rows, err := s.conn.QueryContext(ctx, `SELECT word, COALESCE(why, '') FROM bad_words`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []BadWord
	for rows.Next() {
		var b BadWord
		if err := rows.Scan(&b.Word, &b.Why); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// PutBadWord adds or updates a filtered word.
func (s *Storage) PutBadWord(ctx context.Context, word, why string) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO bad_words (word, why) VALUES (?, ?)
		ON CONFLICT(word) DO UPDATE SET why = excluded.why
	`, word, why)
	return err
}

// DeleteBadWord removes word from the filter list.
func (s *Storage) DeleteBadWord(ctx context.Context, word string) error {
	_, err := s.conn.ExecContext(ctx, `DELETE FROM bad_words WHERE word = ?`, word)
	return err
}

// AfterStreamEntry is one logged note left for after the stream ends.
type AfterStreamEntry struct {
	ID      int64
	Channel string
	User    string
	Message string
	AddedAt time.Time
}

// AddAfterStream appends a note to the after-stream log.
func (s *Storage) AddAfterStream(ctx context.Context, channel, user, message string) error {
	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO after_streams (channel, user, message) VALUES (?, ?, ?)`, channel, user, message)
	return err
}

// ListAfterStreams returns every logged note for channel, oldest first.
func (s *Storage) ListAfterStreams(ctx context.Context, channel string) ([]AfterStreamEntry, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, channel, user, message, added_at FROM after_streams WHERE channel = ? ORDER BY added_at ASC
	`, channel)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AfterStreamEntry
	for rows.Next() {
		var e AfterStreamEntry
		if err := rows.Scan(&e.ID, &e.Channel, &e.User, &e.Message, &e.AddedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ClearAfterStreams deletes every logged note for channel, after it has
// been read back to the broadcaster.
func (s *Storage) ClearAfterStreams(ctx context.Context, channel string) error {
	_, err := s.conn.ExecContext(ctx, `DELETE FROM after_streams WHERE channel = ?`, channel)
	return err
}
