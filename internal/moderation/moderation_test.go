package moderation

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/oxidizebot/oxidizebot-go/internal/storage"
)

func openTestFilter(t *testing.T) (*Filter, context.Context) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.Open(filepath.Join(dir, "test.db"), nil)
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	f, err := Open(ctx, store)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return f, ctx
}

func TestCheckMatchesWholeWordsOnly(t *testing.T) {
	f, ctx := openTestFilter(t)
	if err := f.Add(ctx, "ass", "rude"); err != nil {
		t.Fatalf("Add: %v", err)
	}

	if hits := f.Check("that's a classic move"); len(hits) != 0 {
		t.Fatalf("expected no match against a substring, got %+v", hits)
	}
	hits := f.Check("don't be an ass about it")
	if len(hits) != 1 || hits[0].Word != "ass" {
		t.Fatalf("expected one whole-word match, got %+v", hits)
	}
}

func TestCheckIsCaseInsensitive(t *testing.T) {
	f, ctx := openTestFilter(t)
	f.Add(ctx, "darn", "mild")

	hits := f.Check("DARN it")
	if len(hits) != 1 {
		t.Fatalf("expected a case-insensitive match, got %+v", hits)
	}
}

func TestRemoveStopsMatching(t *testing.T) {
	f, ctx := openTestFilter(t)
	f.Add(ctx, "darn", "mild")
	if err := f.Remove(ctx, "darn"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if hits := f.Check("darn it"); len(hits) != 0 {
		t.Fatalf("expected no match after removal, got %+v", hits)
	}
}

func TestCheckDedupesRepeatedWords(t *testing.T) {
	f, ctx := openTestFilter(t)
	f.Add(ctx, "ugh", "mild")

	hits := f.Check("ugh ugh ugh")
	if len(hits) != 1 {
		t.Fatalf("expected one deduplicated hit, got %+v", hits)
	}
}

func TestLoadFileUpsertsEveryLine(t *testing.T) {
	f, ctx := openTestFilter(t)

	path := filepath.Join(t.TempDir(), "bad_words.txt")
	contents := "# comment\n\ndarn: mild\nheck\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if err := f.LoadFile(ctx, path); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	hits := f.Check("darn, heck, classic")
	if len(hits) != 2 {
		t.Fatalf("expected both listed words to load, got %+v", hits)
	}
}

func TestLoadFileMissingReturnsError(t *testing.T) {
	f, ctx := openTestFilter(t)
	if err := f.LoadFile(ctx, filepath.Join(t.TempDir(), "missing.txt")); err == nil {
		t.Fatal("expected an error for a missing bad-words file")
	}
}
