package storage

import (
	"context"
	"database/sql"
	"errors"
)

// AssignScope grants role the named scope.
func (s *Storage) AssignScope(ctx context.Context, scope, role string) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO scopes (scope, role) VALUES (?, ?) ON CONFLICT(scope, role) DO NOTHING
	`, scope, role)
	return err
}

// RevokeScope removes a previously granted scope/role pairing.
func (s *Storage) RevokeScope(ctx context.Context, scope, role string) error {
	_, err := s.conn.ExecContext(ctx, `DELETE FROM scopes WHERE scope = ? AND role = ?`, scope, role)
	return err
}

// RolesForScope returns every role granted a scope.
func (s *Storage) RolesForScope(ctx context.Context, scope string) ([]string, error) {
	rows, err := s.conn.QueryContext(ctx, `SELECT role FROM scopes WHERE scope = ?`, scope)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return nil, err
		}
		out = append(out, role)
	}
	return out, rows.Err()
}

// SetScriptKey stores a channel-scoped opaque key/value pair (the
// script_keys passthrough used by chat-triggered scripts to stash
// state between invocations).
func (s *Storage) SetScriptKey(ctx context.Context, channel, key, value string) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO script_keys (channel, key, value) VALUES (?, ?, ?)
		ON CONFLICT(channel, key) DO UPDATE SET value = excluded.value
	`, channel, key, value)
	return err
}

// GetScriptKey retrieves a previously stored script key, if any.
func (s *Storage) GetScriptKey(ctx context.Context, channel, key string) (string, bool, error) {
	var value string
	err := s.conn.QueryRowContext(ctx, `SELECT value FROM script_keys WHERE channel = ? AND key = ?`, channel, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// DeleteScriptKey removes a stored script key.
func (s *Storage) DeleteScriptKey(ctx context.Context, channel, key string) error {
	_, err := s.conn.ExecContext(ctx, `DELETE FROM script_keys WHERE channel = ? AND key = ?`, channel, key)
	return err
}
