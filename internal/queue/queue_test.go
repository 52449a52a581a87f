package queue

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/oxidizebot/oxidizebot-go/internal/storage"
	"github.com/oxidizebot/oxidizebot-go/internal/trackid"
	"github.com/oxidizebot/oxidizebot-go/pkg/models"
)

func openTestQueue(t *testing.T) (*Queue, *storage.Storage) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.Open(filepath.Join(dir, "test.db"), nil)
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	q, err := Open(context.Background(), store, "#chan", nil)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	return q, store
}

func testItem(id, user string) models.Item {
	return models.NewItem(trackid.NewSpotify(id), models.TrackMetadata{Title: "Song " + id}, user, 180)
}

func TestPushBackAndFront(t *testing.T) {
	q, _ := openTestQueue(t)
	ctx := context.Background()

	if _, ok := q.Front(); ok {
		t.Fatal("expected empty queue to have no front")
	}

	if err := q.PushBack(ctx, testItem("a", "alice")); err != nil {
		t.Fatalf("PushBack: %v", err)
	}
	if err := q.PushBack(ctx, testItem("b", "bob")); err != nil {
		t.Fatalf("PushBack: %v", err)
	}

	front, ok := q.Front()
	if !ok || front.TrackID.Raw() != "a" {
		t.Fatalf("expected front to be a, got %+v ok=%v", front, ok)
	}
	if q.Len() != 2 {
		t.Fatalf("expected len 2, got %d", q.Len())
	}
}

func TestPopFrontMarksPlayedAndAdvances(t *testing.T) {
	q, _ := openTestQueue(t)
	ctx := context.Background()

	q.PushBack(ctx, testItem("a", "alice"))
	q.PushBack(ctx, testItem("b", "bob"))

	popped, ok, err := q.PopFront(ctx)
	if err != nil {
		t.Fatalf("PopFront: %v", err)
	}
	if !ok || popped.TrackID.Raw() != "a" {
		t.Fatalf("expected to pop a, got %+v ok=%v", popped, ok)
	}

	front, ok := q.Front()
	if !ok || front.TrackID.Raw() != "b" {
		t.Fatalf("expected new front b, got %+v", front)
	}

	played, err := q.LastSongWithin(ctx, trackid.NewSpotify("a"), time.Hour)
	if err != nil {
		t.Fatalf("LastSongWithin: %v", err)
	}
	if !played {
		t.Fatal("expected popped song to register as recently played")
	}
}

func TestPersistenceSurvivesReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.db")

	store, err := storage.Open(path, nil)
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}

	q, err := Open(context.Background(), store, "#chan", nil)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	q.PushBack(context.Background(), testItem("a", "alice"))
	q.PushBack(context.Background(), testItem("b", "bob"))
	store.Close()

	store2, err := storage.Open(path, nil)
	if err != nil {
		t.Fatalf("storage.Open (reopen): %v", err)
	}
	defer store2.Close()

	q2, err := Open(context.Background(), store2, "#chan", nil)
	if err != nil {
		t.Fatalf("queue.Open (reload): %v", err)
	}
	if q2.Len() != 2 {
		t.Fatalf("expected reloaded queue to have 2 items, got %d", q2.Len())
	}
	front, ok := q2.Front()
	if !ok || front.TrackID.Raw() != "a" {
		t.Fatalf("expected reloaded front to be a, got %+v", front)
	}
}

func TestRemoveLastByUser(t *testing.T) {
	q, _ := openTestQueue(t)
	ctx := context.Background()

	q.PushBack(ctx, testItem("a", "alice"))
	q.PushBack(ctx, testItem("b", "bob"))
	q.PushBack(ctx, testItem("c", "alice"))

	removed, ok, err := q.RemoveLastByUser(ctx, "alice")
	if err != nil {
		t.Fatalf("RemoveLastByUser: %v", err)
	}
	if !ok || removed.TrackID.Raw() != "c" {
		t.Fatalf("expected to remove c, got %+v ok=%v", removed, ok)
	}
	if q.Len() != 2 {
		t.Fatalf("expected len 2 after removal, got %d", q.Len())
	}

	_, ok, err = q.RemoveLastByUser(ctx, "nobody")
	if err != nil {
		t.Fatalf("RemoveLastByUser(nobody): %v", err)
	}
	if ok {
		t.Fatal("expected no removal for a user with no items")
	}
}

func TestPromoteSongMovesToFront(t *testing.T) {
	q, _ := openTestQueue(t)
	ctx := context.Background()

	q.PushBack(ctx, testItem("a", "alice"))
	q.PushBack(ctx, testItem("b", "bob"))
	q.PushBack(ctx, testItem("c", "carol"))

	promoted, ok, err := q.PromoteSong(ctx, "mod", 2)
	if err != nil {
		t.Fatalf("PromoteSong: %v", err)
	}
	if !ok || promoted.TrackID.Raw() != "c" {
		t.Fatalf("expected to promote c, got %+v ok=%v", promoted, ok)
	}

	front, _ := q.Front()
	if front.TrackID.Raw() != "c" {
		t.Fatalf("expected promoted item at front, got %+v", front)
	}
}

func TestPurgeClearsQueue(t *testing.T) {
	q, _ := openTestQueue(t)
	ctx := context.Background()

	q.PushBack(ctx, testItem("a", "alice"))
	q.PushBack(ctx, testItem("b", "bob"))

	if err := q.Purge(ctx); err != nil {
		t.Fatalf("Purge: %v", err)
	}
	if q.Len() != 0 {
		t.Fatalf("expected empty queue after purge, got len %d", q.Len())
	}
}
