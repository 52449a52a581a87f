package storage

import (
	"context"
	"database/sql"
)

// AliasRow is a persisted alias definition (channel-scoped textual
// rewrite rule).
type AliasRow struct {
	Channel  string
	Name     string
	Pattern  string
	Template string
	Disabled bool
}

// CommandRow is a persisted command definition.
type CommandRow struct {
	Channel   string
	Name      string
	Pattern   string
	Template  string
	Disabled  bool
	GroupName string
}

// PromotionRow is a persisted periodic-promotion definition.
type PromotionRow struct {
	Channel       string
	Name          string
	Template      string
	FrequencySecs int64
	Disabled      bool
	PromotedAt    sql.NullTime
}

// ThemeRow is a persisted theme-song assignment.
type ThemeRow struct {
	Channel   string
	Name      string
	TrackID   string
	StartSecs int64
	EndSecs   *int64
	Disabled  bool
}

// ListAliases returns every alias row, across all channels, for the
// matcher registry to index at startup.
func (s *Storage) ListAliases(ctx context.Context) ([]AliasRow, error) {
	rows, err := s.conn.QueryContext(ctx, `SELECT channel, name, pattern, template, disabled FROM aliases`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AliasRow
	for rows.Next() {
		var a AliasRow
		if err := rows.Scan(&a.Channel, &a.Name, &a.Pattern, &a.Template, &a.Disabled); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// PutAlias inserts or replaces an alias definition.
func (s *Storage) PutAlias(ctx context.Context, a AliasRow) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO aliases (channel, name, pattern, template, disabled) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(channel, name) DO UPDATE SET pattern = excluded.pattern, template = excluded.template, disabled = excluded.disabled
	`, a.Channel, a.Name, a.Pattern, a.Template, a.Disabled)
	return err
}

// DeleteAlias removes an alias definition.
func (s *Storage) DeleteAlias(ctx context.Context, channel, name string) error {
	_, err := s.conn.ExecContext(ctx, `DELETE FROM aliases WHERE channel = ? AND name = ?`, channel, name)
	return err
}

// ListCommands returns every command row across all channels.
func (s *Storage) ListCommands(ctx context.Context) ([]CommandRow, error) {
	rows, err := s.conn.QueryContext(ctx, `SELECT channel, name, pattern, template, disabled, COALESCE(group_name, '') FROM commands`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []CommandRow
	for rows.Next() {
		var c CommandRow
		if err := rows.Scan(&c.Channel, &c.Name, &c.Pattern, &c.Template, &c.Disabled, &c.GroupName); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// PutCommand inserts or replaces a command definition.
func (s *Storage) PutCommand(ctx context.Context, c CommandRow) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO commands (channel, name, pattern, template, disabled, group_name) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(channel, name) DO UPDATE SET pattern = excluded.pattern, template = excluded.template, disabled = excluded.disabled, group_name = excluded.group_name
	`, c.Channel, c.Name, c.Pattern, c.Template, c.Disabled, c.GroupName)
	return err
}

// DeleteCommand removes a command definition.
func (s *Storage) DeleteCommand(ctx context.Context, channel, name string) error {
	_, err := s.conn.ExecContext(ctx, `DELETE FROM commands WHERE channel = ? AND name = ?`, channel, name)
	return err
}

// ListPromotions returns every promotion row across all channels.
func (s *Storage) ListPromotions(ctx context.Context) ([]PromotionRow, error) {
	rows, err := s.conn.QueryContext(ctx, `SELECT channel, name, template, frequency, disabled, promoted_at FROM promotions`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []PromotionRow
	for rows.Next() {
		var p PromotionRow
		if err := rows.Scan(&p.Channel, &p.Name, &p.Template, &p.FrequencySecs, &p.Disabled, &p.PromotedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// PutPromotion inserts or replaces a promotion definition.
func (s *Storage) PutPromotion(ctx context.Context, p PromotionRow) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO promotions (channel, name, template, frequency, disabled) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(channel, name) DO UPDATE SET template = excluded.template, frequency = excluded.frequency, disabled = excluded.disabled
	`, p.Channel, p.Name, p.Template, p.FrequencySecs, p.Disabled)
	return err
}

// TouchPromotion stamps a promotion's last-sent time.
func (s *Storage) TouchPromotion(ctx context.Context, channel, name string, now int64) error {
	_, err := s.conn.ExecContext(ctx, `UPDATE promotions SET promoted_at = datetime(?, 'unixepoch') WHERE channel = ? AND name = ?`, now, channel, name)
	return err
}

// DeletePromotion removes a promotion definition.
func (s *Storage) DeletePromotion(ctx context.Context, channel, name string) error {
	_, err := s.conn.ExecContext(ctx, `DELETE FROM promotions WHERE channel = ? AND name = ?`, channel, name)
	return err
}

// ListThemes returns every theme row across all channels.
func (s *Storage) ListThemes(ctx context.Context) ([]ThemeRow, error) {
	rows, err := s.conn.QueryContext(ctx, `SELECT channel, name, track_id, start_secs, end_secs, disabled FROM themes`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ThemeRow
	for rows.Next() {
		var th ThemeRow
		if err := rows.Scan(&th.Channel, &th.Name, &th.TrackID, &th.StartSecs, &th.EndSecs, &th.Disabled); err != nil {
			return nil, err
		}
		out = append(out, th)
	}
	return out, rows.Err()
}

// PutTheme inserts or replaces a theme definition.
func (s *Storage) PutTheme(ctx context.Context, th ThemeRow) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO themes (channel, name, track_id, start_secs, end_secs, disabled) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(channel, name) DO UPDATE SET track_id = excluded.track_id, start_secs = excluded.start_secs, end_secs = excluded.end_secs, disabled = excluded.disabled
	`, th.Channel, th.Name, th.TrackID, th.StartSecs, th.EndSecs, th.Disabled)
	return err
}

// DeleteTheme removes a theme definition.
func (s *Storage) DeleteTheme(ctx context.Context, channel, name string) error {
	_, err := s.conn.ExecContext(ctx, `DELETE FROM themes WHERE channel = ? AND name = ?`, channel, name)
	return err
}
