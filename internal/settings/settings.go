// Package settings implements a persisted key->JSON store: named values
// with a YAML schema declaring type, default, optional feature flag, and
// UI hints, each readable as a one-shot Get, a Stream of updates, or a
// self-updating Var. The schema is recorded at Open; Set does not check
// values against it.
//
// Persistence follows the same database conventions as
// internal/database/database.go: a dedicated SQLite table, prepared
// statements, WAL pragmas. The in-memory map guarding reads/writes uses
// the same short-synchronous-lock style as
// internal/player/state.go's StateManager.
package settings

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// Schema describes one setting definition, as loaded from a YAML schema
// file (schema.go).
type Schema struct {
	Key         string          `yaml:"key"`
	Type        string          `yaml:"type"`
	Default     json.RawMessage `yaml:"default"`
	Feature     string          `yaml:"feature,omitempty"`
	Title       string          `yaml:"title,omitempty"`
	Description string          `yaml:"description,omitempty"`
}

type cell struct {
	raw         json.RawMessage
	set         bool
	subscribers []chan json.RawMessage
}

// Settings is the store. Construct with Open.
type Settings struct {
	db     *sql.DB
	logger *logrus.Logger

	mu     sync.Mutex
	cells  map[string]*cell
	schema map[string]Schema

	insertOrReplace *sql.Stmt
	deleteStmt      *sql.Stmt
}

// Open creates the backing table (if absent) and loads any persisted
// values into memory. db is a shared *sql.DB the caller owns; Settings
// does not close it.
func Open(ctx context.Context, db *sql.DB, schemas []Schema, logger *logrus.Logger) (*Settings, error) {
	if logger == nil {
		logger = logrus.New()
	}

	const createTable = `
	CREATE TABLE IF NOT EXISTS settings (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);`
	if _, err := db.ExecContext(ctx, createTable); err != nil {
		return nil, fmt.Errorf("settings: create table: %w", err)
	}

	insertOrReplace, err := db.PrepareContext(ctx, `INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value=excluded.value`)
	if err != nil {
		return nil, fmt.Errorf("settings: prepare upsert: %w", err)
	}
	deleteStmt, err := db.PrepareContext(ctx, `DELETE FROM settings WHERE key = ?`)
	if err != nil {
		return nil, fmt.Errorf("settings: prepare delete: %w", err)
	}

	s := &Settings{
		db:              db,
		logger:          logger,
		cells:           make(map[string]*cell),
		schema:          make(map[string]Schema),
		insertOrReplace: insertOrReplace,
		deleteStmt:      deleteStmt,
	}
	for _, sch := range schemas {
		s.schema[sch.Key] = sch
	}

	rows, err := db.QueryContext(ctx, `SELECT key, value FROM settings`)
	if err != nil {
		return nil, fmt.Errorf("settings: load: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("settings: scan: %w", err)
		}
		s.cells[key] = &cell{raw: json.RawMessage(value), set: true}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("settings: rows: %w", err)
	}

	return s, nil
}

// Scoped returns a view that prefixes every key with prefix + "/".
func (s *Settings) Scoped(prefix string) *Scoped {
	return &Scoped{s: s, prefix: prefix}
}

func (s *Settings) cellFor(key string) *cell {
	c, ok := s.cells[key]
	if !ok {
		c = &cell{}
		s.cells[key] = c
	}
	return c
}

// Set persists v under key, atomically: the database write happens
// before the in-memory cell and its subscribers are updated, so a
// stream reader never observes a value that failed to persist.
func Set[T any](ctx context.Context, s *Settings, key string, v T) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("settings: marshal %s: %w", key, err)
	}

	if _, err := s.insertOrReplace.ExecContext(ctx, key, string(raw)); err != nil {
		return fmt.Errorf("settings: persist %s: %w", key, err)
	}

	s.mu.Lock()
	c := s.cellFor(key)
	c.raw = raw
	c.set = true
	subs := append([]chan json.RawMessage{}, c.subscribers...)
	s.mu.Unlock()

	broadcast(subs, raw)
	return nil
}

// Clear removes key's persisted value and notifies subscribers with
// ok=false (consumers of Optional/Stream see no value; consumers of a
// plain Stream/Var fall back to their configured default).
func (s *Settings) Clear(ctx context.Context, key string) error {
	if _, err := s.deleteStmt.ExecContext(ctx, key); err != nil {
		return fmt.Errorf("settings: clear %s: %w", key, err)
	}

	s.mu.Lock()
	c := s.cellFor(key)
	c.raw = nil
	c.set = false
	subs := append([]chan json.RawMessage{}, c.subscribers...)
	s.mu.Unlock()

	broadcast(subs, nil)
	return nil
}

// Get returns the current value of key, decoded into T, and whether a
// value is set at all (false means: use a schema default or the
// combinator-supplied one).
func Get[T any](s *Settings, key string) (T, bool) {
	var zero T
	s.mu.Lock()
	c, ok := s.cells[key]
	s.mu.Unlock()
	if !ok || !c.set {
		return zero, false
	}
	var v T
	if err := json.Unmarshal(c.raw, &v); err != nil {
		return zero, false
	}
	return v, true
}

func broadcast(subs []chan json.RawMessage, raw json.RawMessage) {
	for _, ch := range subs {
		select {
		case ch <- raw:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- raw:
			default:
			}
		}
	}
}

// streamRaw subscribes to key and returns a channel of raw update deltas
// (nil means Clear) torn down when ctx is done, plus the setting's
// current raw value and whether it was set.
func (s *Settings) streamRaw(ctx context.Context, key string) (<-chan json.RawMessage, json.RawMessage, bool) {
	raw := make(chan json.RawMessage, 1)

	s.mu.Lock()
	c := s.cellFor(key)
	c.subscribers = append(c.subscribers, raw)
	current, ok := c.raw, c.set
	s.mu.Unlock()

	out := make(chan json.RawMessage, 1)
	go func() {
		defer close(out)
		defer s.unsubscribe(key, raw)
		for {
			select {
			case <-ctx.Done():
				return
			case v, open := <-raw:
				if !open {
					return
				}
				select {
				case out <- v:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, current, ok
}

func (s *Settings) unsubscribe(key string, raw chan json.RawMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cells[key]
	if !ok {
		return
	}
	for i, ch := range c.subscribers {
		if ch == raw {
			c.subscribers = append(c.subscribers[:i], c.subscribers[i+1:]...)
			break
		}
	}
}

// Stream is the typed stream combinator: NewStream[T](ctx, s, key) yields a
// Stream value whose Values() channel emits decoded updates and whose
// Combinators (.Or, .OrWith, .OrDefault, .Optional) reshape the default
// behavior for missing/cleared values.
type Stream[T any] struct {
	ctx     context.Context
	s       *Settings
	key     string
	raw     <-chan json.RawMessage
	current T
	ok      bool
}

// NewStream subscribes to key, decoding into T.
func NewStream[T any](ctx context.Context, s *Settings, key string) *Stream[T] {
	raw, current, ok := s.streamRaw(ctx, key)
	st := &Stream[T]{ctx: ctx, s: s, key: key, raw: raw}
	if ok {
		var v T
		if err := json.Unmarshal(current, &v); err == nil {
			st.current, st.ok = v, true
		}
	}
	return st
}

// Current returns the last known decoded value and whether it was set.
func (st *Stream[T]) Current() (T, bool) { return st.current, st.ok }

// Or returns a channel yielding decoded values, substituting def whenever
// a Clear is observed (so the channel never closes due to a missing
// value).
func (st *Stream[T]) Or(def T) <-chan T {
	return st.orWith(func() T { return def })
}

// OrWith is Or with a lazily computed default.
func (st *Stream[T]) OrWith(f func() T) <-chan T {
	return st.orWith(f)
}

// OrDefault is Or using T's zero value.
func (st *Stream[T]) OrDefault() <-chan T {
	var zero T
	return st.Or(zero)
}

func (st *Stream[T]) orWith(def func() T) <-chan T {
	out := make(chan T, 1)
	go func() {
		defer close(out)
		for raw := range st.raw {
			var v T
			if raw == nil {
				v = def()
			} else if err := json.Unmarshal(raw, &v); err != nil {
				continue
			}
			select {
			case out <- v:
			case <-st.ctx.Done():
				return
			}
		}
	}()
	return out
}

// Optional is a Delta-like (value, ok) pair, keeping a cleared setting
// (Ok=false) distinct from one that holds a default value.
type Optional[T any] struct {
	Value T
	Ok    bool
}

// Optional returns a channel of Optional[T], propagating clears as
// Ok=false rather than substituting a default.
func (st *Stream[T]) Optional() <-chan Optional[T] {
	out := make(chan Optional[T], 1)
	go func() {
		defer close(out)
		for raw := range st.raw {
			var o Optional[T]
			if raw != nil {
				var v T
				if err := json.Unmarshal(raw, &v); err == nil {
					o = Optional[T]{Value: v, Ok: true}
				}
			}
			select {
			case out <- o:
			case <-st.ctx.Done():
				return
			}
		}
	}()
	return out
}

// Var is a shared, concurrently readable cell that self-updates from the
// underlying setting stream. Reading it never blocks on I/O.
type Var[T any] struct {
	mu  sync.RWMutex
	val T
}

// NewVar builds a Var seeded with either the current setting value or
// def, and starts a goroutine (torn down with ctx) that keeps it current.
func NewVar[T any](ctx context.Context, s *Settings, key string, def T) *Var[T] {
	st := NewStream[T](ctx, s, key)
	v := &Var[T]{val: def}
	if cur, ok := st.Current(); ok {
		v.val = cur
	}

	ch := st.Or(def)
	go func() {
		for val := range ch {
			v.mu.Lock()
			v.val = val
			v.mu.Unlock()
		}
	}()

	return v
}

// Get reads the current value.
func (v *Var[T]) Get() T {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.val
}

// Scoped prefixes every key it is asked to operate on with
// "<prefix>/".
type Scoped struct {
	s      *Settings
	prefix string
}

func (sc *Scoped) key(key string) string {
	return sc.prefix + "/" + key
}

// ScopedGet reads a scoped setting.
func ScopedGet[T any](sc *Scoped, key string) (T, bool) {
	return Get[T](sc.s, sc.key(key))
}

// ScopedSet writes a scoped setting.
func ScopedSet[T any](ctx context.Context, sc *Scoped, key string, v T) error {
	return Set(ctx, sc.s, sc.key(key), v)
}
