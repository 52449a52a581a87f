package connectstream

import (
	"context"
	"testing"
	"time"

	"github.com/oxidizebot/oxidizebot-go/pkg/models"
)

type fakeBackend struct {
	events    chan Event
	plays     int
	pauses    int
	stops     int
	volumes   []uint32
	closed    bool
	playErr   error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{events: make(chan Event, 16)}
}

func (f *fakeBackend) Play(ctx context.Context, item *models.Item) error {
	f.plays++
	return f.playErr
}
func (f *fakeBackend) Pause(ctx context.Context) error          { f.pauses++; return nil }
func (f *fakeBackend) Stop(ctx context.Context) error            { f.stops++; return nil }
func (f *fakeBackend) SetVolume(ctx context.Context, v uint32) error {
	f.volumes = append(f.volumes, v)
	return nil
}
func (f *fakeBackend) Events() <-chan Event { return f.events }
func (f *fakeBackend) Close() error          { f.closed = true; return nil }

func TestStreamForwardsCommandsToActiveBackend(t *testing.T) {
	s := New(nil)
	b := newFakeBackend()
	s.SetBackend(b)

	ctx := context.Background()
	if err := s.Play(ctx, nil); err != nil {
		t.Fatalf("Play: %v", err)
	}
	if err := s.Pause(ctx); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if err := s.SetVolume(ctx, 50); err != nil {
		t.Fatalf("SetVolume: %v", err)
	}
	if b.plays != 1 || b.pauses != 1 || len(b.volumes) != 1 || b.volumes[0] != 50 {
		t.Fatalf("unexpected backend state: %+v", b)
	}
}

func TestStreamCommandsFailWithoutBackend(t *testing.T) {
	s := New(nil)
	if err := s.Play(context.Background(), nil); err == nil {
		t.Fatal("expected an error with no backend configured")
	}

	select {
	case e := <-s.Recv():
		if e.Kind != NotConfigured {
			t.Fatalf("expected NotConfigured, got %v", e.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("expected a NotConfigured event")
	}
}

func TestStreamRelaysBackendEvents(t *testing.T) {
	s := New(nil)
	b := newFakeBackend()
	s.SetBackend(b)

	b.events <- Event{Kind: EndOfTrack, Source: SourceAutomatic}

	select {
	case e := <-s.Recv():
		if e.Kind != EndOfTrack {
			t.Fatalf("got %v", e.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for relayed event")
	}
}

func TestSetBackendClosesPrevious(t *testing.T) {
	s := New(nil)
	first := newFakeBackend()
	s.SetBackend(first)

	second := newFakeBackend()
	s.SetBackend(second)

	if !first.closed {
		t.Fatal("expected the previous backend to be closed on swap")
	}
	if second.closed {
		t.Fatal("new backend should not be closed")
	}
}

func TestConfiguredReflectsActiveBackend(t *testing.T) {
	s := New(nil)
	if s.Configured() {
		t.Fatal("expected not configured initially")
	}
	s.SetBackend(newFakeBackend())
	if !s.Configured() {
		t.Fatal("expected configured after SetBackend")
	}
	s.SetBackend(nil)
	if s.Configured() {
		t.Fatal("expected not configured after clearing backend")
	}
}
