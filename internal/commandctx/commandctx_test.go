package commandctx

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/oxidizebot/oxidizebot-go/internal/boterr"
	"github.com/oxidizebot/oxidizebot-go/internal/scopes"
	"github.com/oxidizebot/oxidizebot-go/internal/storage"
)

func TestArgsNextAndRest(t *testing.T) {
	a := NewArgs("add 5 to the pile")
	w, ok := a.Next()
	if !ok || w != "add" {
		t.Fatalf("got %q, %v", w, ok)
	}
	if rest := a.Rest(); rest != "5 to the pile" {
		t.Fatalf("got %q", rest)
	}
	if _, ok := a.Next(); ok {
		t.Fatal("expected the cursor to be exhausted after Rest")
	}
}

func TestNextParseInt(t *testing.T) {
	a := NewArgs("42 rest")
	n, err := NextParse[int](a, "amount")
	if err != nil {
		t.Fatalf("NextParse: %v", err)
	}
	if n != 42 {
		t.Fatalf("got %d", n)
	}
}

func TestNextParseFailureIsBadArgument(t *testing.T) {
	a := NewArgs("notanumber")
	_, err := NextParse[int](a, "amount")
	if err == nil {
		t.Fatal("expected a parse error")
	}
	if _, ok := err.(*boterr.BadArgumentError); !ok {
		t.Fatalf("expected a BadArgumentError, got %v", err)
	}
}

func TestNextParseMissingArgument(t *testing.T) {
	a := NewArgs("")
	_, err := NextParse[int](a, "amount")
	if err == nil {
		t.Fatal("expected a missing-argument error")
	}
}

func TestHookRegistryRemovesOnFalseReturn(t *testing.T) {
	r := NewHookRegistry()
	calls := 0
	id := r.Insert(func(ctx context.Context, user, channel, message string) bool {
		calls++
		return false
	})
	r.Dispatch(context.Background(), "alice", "#chan", "one")
	r.Dispatch(context.Background(), "alice", "#chan", "two")
	if calls != 1 {
		t.Fatalf("expected the hook to fire once before removing itself, got %d", calls)
	}
	r.Remove(id) // no-op, already gone
}

func TestCooldownsBlockUntilElapsed(t *testing.T) {
	c := NewCooldowns(50 * time.Millisecond)
	now := time.Now()

	ok, _ := c.Check(scopes.Song, now)
	if !ok {
		t.Fatal("expected the first check to succeed")
	}
	c.Poke(scopes.Song, now)

	ok, remaining := c.Check(scopes.Song, now.Add(10*time.Millisecond))
	if ok {
		t.Fatal("expected the cooldown to still be in effect")
	}
	if remaining <= 0 {
		t.Fatal("expected a positive remaining duration")
	}

	ok, _ = c.Check(scopes.Song, now.Add(60*time.Millisecond))
	if !ok {
		t.Fatal("expected the cooldown to have elapsed")
	}
}

type fakeSender struct{ sent []string }

func (f *fakeSender) Privmsg(ctx context.Context, channel, message string) error {
	f.sent = append(f.sent, message)
	return nil
}
func (f *fakeSender) PrivmsgImmediate(ctx context.Context, channel, message string) error {
	return f.Privmsg(ctx, channel, message)
}
func (f *fakeSender) Delete(ctx context.Context, channel, messageID string) error { return nil }
func (f *fakeSender) CapReq(ctx context.Context, capability string) error        { return nil }

func openTestRegistry(t *testing.T) *scopes.Registry {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.Open(filepath.Join(dir, "test.db"), nil)
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return scopes.New(store)
}

func TestCheckScopeDeniesWithoutGrant(t *testing.T) {
	registry := openTestRegistry(t)
	sender := &fakeSender{}
	user := scopes.User{Login: "alice", Roles: []scopes.Role{scopes.Other}}
	c := New(user, "#chan", "", sender, registry, NewCooldowns(time.Minute), NewHookRegistry(), "Nope.")

	err := c.CheckScope(context.Background(), scopes.Poll)
	if err == nil {
		t.Fatal("expected a denial")
	}
	if err != boterr.ErrEmpty {
		t.Fatalf("expected ErrEmpty, got %v", err)
	}
	if len(sender.sent) != 1 || sender.sent[0] != "Nope." {
		t.Fatalf("expected the rude auth-failed message, got %+v", sender.sent)
	}
}

func TestCheckScopeEnforcesCooldown(t *testing.T) {
	registry := openTestRegistry(t)
	ctx := context.Background()
	registry.Assign(ctx, scopes.Poll, scopes.Moderator)

	sender := &fakeSender{}
	user := scopes.User{Login: "mod", Roles: []scopes.Role{scopes.Moderator}}
	c := New(user, "#chan", "", sender, registry, NewCooldowns(time.Hour), NewHookRegistry(), "")

	if err := c.CheckScope(ctx, scopes.Poll); err != nil {
		t.Fatalf("expected the first use to succeed, got %v", err)
	}
	err := c.CheckScope(ctx, scopes.Poll)
	if err == nil {
		t.Fatal("expected the second use within the cooldown window to fail")
	}
	if _, ok := err.(*boterr.CooldownError); !ok {
		t.Fatalf("expected a CooldownError, got %v", err)
	}
}

func TestCheckScopeBypassCooldownsSkipsCooldown(t *testing.T) {
	registry := openTestRegistry(t)
	ctx := context.Background()
	registry.Assign(ctx, scopes.Poll, scopes.Streamer)
	registry.Assign(ctx, scopes.BypassCooldowns, scopes.Streamer)

	user := scopes.User{Login: "streamer", Roles: []scopes.Role{scopes.Streamer}}
	c := New(user, "#chan", "", nil, registry, NewCooldowns(time.Hour), NewHookRegistry(), "")

	if err := c.CheckScope(ctx, scopes.Poll); err != nil {
		t.Fatalf("first use: %v", err)
	}
	if err := c.CheckScope(ctx, scopes.Poll); err != nil {
		t.Fatalf("expected BypassCooldowns to skip the cooldown, got %v", err)
	}
}
