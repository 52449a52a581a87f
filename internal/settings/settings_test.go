package settings

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSetGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	s, err := Open(ctx, db, nil, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if err := Set(ctx, s, "player/volume", 42); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, ok := Get[int](s, "player/volume")
	if !ok || got != 42 {
		t.Fatalf("Get = %d, %v, want 42, true", got, ok)
	}
}

func TestSetPersistsBeforeBroadcast(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	s, err := Open(ctx, db, nil, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	st := NewStream[string](streamCtx, s, "currency/name")
	ch := st.Or("coins")

	if err := Set(ctx, s, "currency/name", "points"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	select {
	case v := <-ch:
		if v != "points" {
			t.Fatalf("got %q, want %q", v, "points")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for stream update")
	}

	// And it really is persisted: re-opening sees it.
	s2, err := Open(ctx, db, nil, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	got, ok := Get[string](s2, "currency/name")
	if !ok || got != "points" {
		t.Fatalf("after reopen: got %q, %v", got, ok)
	}
}

func TestClearFallsBackToDefault(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	s, err := Open(ctx, db, nil, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if err := Set(ctx, s, "player/detached", true); err != nil {
		t.Fatalf("Set: %v", err)
	}

	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	st := NewStream[bool](streamCtx, s, "player/detached")
	ch := st.Or(false)

	if err := s.Clear(ctx, "player/detached"); err != nil {
		t.Fatalf("Clear: %v", err)
	}

	select {
	case v := <-ch:
		if v != false {
			t.Fatalf("got %v, want false (the default)", v)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for clear")
	}
}

func TestOptionalPreservesClearDistinctFromDefault(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	s, err := Open(ctx, db, nil, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := Set(ctx, s, "player/volume-scale", 80); err != nil {
		t.Fatalf("Set: %v", err)
	}

	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	st := NewStream[int](streamCtx, s, "player/volume-scale")
	ch := st.Optional()

	if err := s.Clear(ctx, "player/volume-scale"); err != nil {
		t.Fatalf("Clear: %v", err)
	}

	select {
	case o := <-ch:
		if o.Ok {
			t.Fatalf("expected Ok=false after clear, got %+v", o)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out")
	}
}

func TestScopedPrefixesKeys(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	s, err := Open(ctx, db, nil, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	sc := s.Scoped("currency")
	if err := ScopedSet(ctx, sc, "name", "gems"); err != nil {
		t.Fatalf("ScopedSet: %v", err)
	}

	got, ok := Get[string](s, "currency/name")
	if !ok || got != "gems" {
		t.Fatalf("expected unscoped lookup to see prefixed key, got %q %v", got, ok)
	}
}

func TestVarSelfUpdates(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	db := openTestDB(t)
	s, err := Open(ctx, db, nil, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	v := NewVar[int](ctx, s, "player/update-interval", 10)
	if got := v.Get(); got != 10 {
		t.Fatalf("initial Var = %d, want 10", got)
	}

	if err := Set(ctx, s, "player/update-interval", 30); err != nil {
		t.Fatalf("Set: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if v.Get() == 30 {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("Var did not pick up update, got %d", v.Get())
}
