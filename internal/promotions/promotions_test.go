package promotions

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/oxidizebot/oxidizebot-go/internal/storage"
)

type fakeIdle struct{ idle bool }

func (f fakeIdle) IsIdle(ctx context.Context, channel string) (bool, error) { return f.idle, nil }

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

func openTestStore(t *testing.T) *storage.Storage {
	t.Helper()
	dir := t.TempDir()
	s, err := storage.Open(filepath.Join(dir, "test.db"), nil)
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestTickFiresDuePromotion(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	store.PutPromotion(ctx, storage.PromotionRow{Channel: "#chan", Name: "discord", Template: "Join our Discord!", FrequencySecs: 60})

	sender := &fakeSender{}
	r := New(store, sender, fakeIdle{idle: false}, "#chan", time.Second, nil)

	if err := r.tick(ctx); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if len(sender.sent) != 1 || sender.sent[0] != "Join our Discord!" {
		t.Fatalf("expected promotion to fire once, got %+v", sender.sent)
	}
}

func TestTickSkipsWhenIdle(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	store.PutPromotion(ctx, storage.PromotionRow{Channel: "#chan", Name: "discord", Template: "Join!", FrequencySecs: 60})

	sender := &fakeSender{}
	r := New(store, sender, fakeIdle{idle: true}, "#chan", time.Second, nil)

	if err := r.tick(ctx); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if len(sender.sent) != 0 {
		t.Fatalf("expected no promotion while idle, got %+v", sender.sent)
	}
}

func TestTickRespectsFrequency(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	store.PutPromotion(ctx, storage.PromotionRow{Channel: "#chan", Name: "discord", Template: "Join!", FrequencySecs: 3600})

	sender := &fakeSender{}
	r := New(store, sender, fakeIdle{idle: false}, "#chan", time.Second, nil)

	if err := r.tick(ctx); err != nil {
		t.Fatalf("first tick: %v", err)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("expected first tick to fire, got %+v", sender.sent)
	}

	if err := r.tick(ctx); err != nil {
		t.Fatalf("second tick: %v", err)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("expected second tick within the frequency window to be suppressed, got %+v", sender.sent)
	}
}

func TestTickSkipsDisabledPromotion(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	store.PutPromotion(ctx, storage.PromotionRow{Channel: "#chan", Name: "discord", Template: "Join!", FrequencySecs: 60, Disabled: true})

	sender := &fakeSender{}
	r := New(store, sender, fakeIdle{idle: false}, "#chan", time.Second, nil)

	if err := r.tick(ctx); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if len(sender.sent) != 0 {
		t.Fatalf("expected disabled promotion not to fire, got %+v", sender.sent)
	}
}

func TestTickIgnoresOtherChannels(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	store.PutPromotion(ctx, storage.PromotionRow{Channel: "#other", Name: "discord", Template: "Join!", FrequencySecs: 60})

	sender := &fakeSender{}
	r := New(store, sender, fakeIdle{idle: false}, "#chan", time.Second, nil)

	if err := r.tick(ctx); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if len(sender.sent) != 0 {
		t.Fatalf("expected promotion from a different channel not to fire here, got %+v", sender.sent)
	}
}
