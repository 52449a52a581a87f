package storage

import (
	"context"
	"database/sql"
	"time"
)

// Song is a persisted queue row. Rows are never hard-deleted; Deleted
// and Played mark them out of the live view so promote/remove history
// stays auditable.
type Song struct {
	ID         int64
	TrackID    string
	Title      string
	Artist     string
	Album      string
	Duration   time.Duration
	User       sql.NullString
	AddedAt    time.Time
	PromotedAt sql.NullTime
	PromotedBy sql.NullString
	Played     bool
	PlayedAt   sql.NullTime
	Deleted    bool
}

// InsertSong appends a new queue entry and returns its id.
func (s *Storage) InsertSong(ctx context.Context, trackID, title, artist, album string, duration time.Duration, user string) (int64, error) {
	var userArg interface{}
	if user != "" {
		userArg = user
	}
	res, err := s.insertSongStmt.ExecContext(ctx, trackID, title, artist, album, int64(duration.Seconds()), userArg)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

const activeSongColumns = `id, track_id, title, artist, album, duration, user, added_at, promoted_at, promoted_by, played, played_at, deleted`

func scanSong(row interface{ Scan(...interface{}) error }) (Song, error) {
	var sng Song
	var durSecs int64
	if err := row.Scan(
		&sng.ID, &sng.TrackID, &sng.Title, &sng.Artist, &sng.Album, &durSecs,
		&sng.User, &sng.AddedAt, &sng.PromotedAt, &sng.PromotedBy, &sng.Played, &sng.PlayedAt, &sng.Deleted,
	); err != nil {
		return Song{}, err
	}
	sng.Duration = time.Duration(durSecs) * time.Second
	return sng, nil
}

// ActiveSongs returns every non-deleted, not-yet-played song ordered the
// way the scheduler expects to consume them: promoted entries first
// (most recently promoted first), then by arrival order.
func (s *Storage) ActiveSongs(ctx context.Context) ([]Song, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT `+activeSongColumns+` FROM songs
		WHERE deleted = FALSE AND played = FALSE
		ORDER BY (promoted_at IS NULL) ASC, promoted_at DESC, added_at ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Song
	for rows.Next() {
		sng, err := scanSong(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sng)
	}
	return out, rows.Err()
}

// MarkPlayed flags id as played so it drops out of ActiveSongs.
func (s *Storage) MarkPlayed(ctx context.Context, id int64, now time.Time) error {
	_, err := s.conn.ExecContext(ctx, `UPDATE songs SET played = TRUE, played_at = ? WHERE id = ?`, now, id)
	return err
}

// SoftDelete flags id as deleted so it drops out of ActiveSongs.
func (s *Storage) SoftDelete(ctx context.Context, id int64) error {
	_, err := s.conn.ExecContext(ctx, `UPDATE songs SET deleted = TRUE WHERE id = ?`, id)
	return err
}

// PromoteSong stamps id with a promotion timestamp and promoter, moving
// it to the front of ActiveSongs' order.
func (s *Storage) PromoteSong(ctx context.Context, id int64, promoter string, now time.Time) error {
	_, err := s.conn.ExecContext(ctx,
		`UPDATE songs SET promoted_at = ?, promoted_by = ? WHERE id = ?`, now, promoter, id)
	return err
}

// LastSongByUser returns the most recently added, still-active song
// added by user, for the "remove my last request" command.
func (s *Storage) LastSongByUser(ctx context.Context, user string) (Song, bool, error) {
	row := s.conn.QueryRowContext(ctx, `
		SELECT `+activeSongColumns+` FROM songs
		WHERE deleted = FALSE AND played = FALSE AND user = ?
		ORDER BY added_at DESC LIMIT 1
	`, user)
	sng, err := scanSong(row)
	if err == sql.ErrNoRows {
		return Song{}, false, nil
	}
	if err != nil {
		return Song{}, false, err
	}
	return sng, true, nil
}

// LastPlayedWithin reports whether trackID was marked played at any
// point within window of now — used to prevent the
// same song being queued again too soon.
func (s *Storage) LastPlayedWithin(ctx context.Context, trackID string, window time.Duration, now time.Time) (bool, error) {
	cutoff := now.Add(-window)
	var count int
	err := s.conn.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM songs
		WHERE track_id = ? AND played = TRUE AND played_at >= ?
	`, trackID, cutoff).Scan(&count)
	return count > 0, err
}
