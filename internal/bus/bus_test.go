package bus

import (
	"testing"
	"time"
)

type songCurrent struct {
	TrackID   string
	IsPlaying bool
}

func (s songCurrent) BusID() string { return "song-current" }

func TestSubscribeReceivesSend(t *testing.T) {
	b := New[songCurrent](nil)
	ch, unsub := b.Subscribe(1)
	defer unsub()

	b.Send(songCurrent{TrackID: "a", IsPlaying: true})

	select {
	case e := <-ch:
		if e.TrackID != "a" {
			t.Fatalf("got %+v", e)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out")
	}
}

func TestLatestCachesByID(t *testing.T) {
	b := New[songCurrent](nil)
	b.Send(songCurrent{TrackID: "a", IsPlaying: true})
	b.Send(songCurrent{TrackID: "b", IsPlaying: false})

	latest := b.Latest()
	if len(latest) != 1 {
		t.Fatalf("expected one cached id, got %d", len(latest))
	}
	if latest["song-current"].TrackID != "b" {
		t.Fatalf("expected latest to be the most recent send, got %+v", latest["song-current"])
	}
}

func TestFullSubscriberDoesNotBlockSend(t *testing.T) {
	b := New[songCurrent](nil)
	ch, unsub := b.Subscribe(1)
	defer unsub()

	// Fill the buffer, then send again — must not block.
	b.Send(songCurrent{TrackID: "first"})

	done := make(chan struct{})
	go func() {
		b.Send(songCurrent{TrackID: "second"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Send blocked on a full subscriber")
	}

	<-ch // drain the one buffered event
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New[songCurrent](nil)
	ch, unsub := b.Subscribe(1)
	unsub()

	b.Send(songCurrent{TrackID: "a"})

	select {
	case e, ok := <-ch:
		if ok {
			t.Fatalf("expected no delivery after unsubscribe, got %+v", e)
		}
	case <-time.After(50 * time.Millisecond):
		// No delivery within the grace period: expected.
	}
}
