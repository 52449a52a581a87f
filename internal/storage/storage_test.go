package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func openTestStorage(t *testing.T) *Storage {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "test.db"), nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSongLifecycle(t *testing.T) {
	s := openTestStorage(t)
	ctx := context.Background()

	id, err := s.InsertSong(ctx, "spotify:track:abc", "Song", "Artist", "Album", 200*time.Second, "alice")
	if err != nil {
		t.Fatalf("InsertSong: %v", err)
	}

	active, err := s.ActiveSongs(ctx)
	if err != nil {
		t.Fatalf("ActiveSongs: %v", err)
	}
	if len(active) != 1 || active[0].ID != id {
		t.Fatalf("expected one active song with id %d, got %+v", id, active)
	}

	if err := s.MarkPlayed(ctx, id, time.Now()); err != nil {
		t.Fatalf("MarkPlayed: %v", err)
	}
	active, err = s.ActiveSongs(ctx)
	if err != nil {
		t.Fatalf("ActiveSongs after play: %v", err)
	}
	if len(active) != 0 {
		t.Fatalf("expected played song to drop out of active view, got %+v", active)
	}

	played, err := s.LastPlayedWithin(ctx, "spotify:track:abc", time.Hour, time.Now())
	if err != nil {
		t.Fatalf("LastPlayedWithin: %v", err)
	}
	if !played {
		t.Fatal("expected LastPlayedWithin to report a recent play")
	}
}

func TestSongOrderingPromotedFirst(t *testing.T) {
	s := openTestStorage(t)
	ctx := context.Background()

	id1, _ := s.InsertSong(ctx, "a", "A", "Artist", "", time.Minute, "alice")
	id2, _ := s.InsertSong(ctx, "b", "B", "Artist", "", time.Minute, "bob")
	id3, _ := s.InsertSong(ctx, "c", "C", "Artist", "", time.Minute, "carol")

	if err := s.PromoteSong(ctx, id3, "mod", time.Now()); err != nil {
		t.Fatalf("PromoteSong: %v", err)
	}

	active, err := s.ActiveSongs(ctx)
	if err != nil {
		t.Fatalf("ActiveSongs: %v", err)
	}
	if len(active) != 3 || active[0].ID != id3 {
		t.Fatalf("expected promoted song first, got %+v", active)
	}
	if active[1].ID != id1 || active[2].ID != id2 {
		t.Fatalf("expected remaining songs in arrival order, got %+v", active)
	}
}

func TestSoftDeleteRemovesFromActiveView(t *testing.T) {
	s := openTestStorage(t)
	ctx := context.Background()

	id, _ := s.InsertSong(ctx, "x", "X", "Artist", "", time.Minute, "alice")
	if err := s.SoftDelete(ctx, id); err != nil {
		t.Fatalf("SoftDelete: %v", err)
	}
	active, err := s.ActiveSongs(ctx)
	if err != nil {
		t.Fatalf("ActiveSongs: %v", err)
	}
	if len(active) != 0 {
		t.Fatalf("expected deleted song excluded, got %+v", active)
	}
}

func TestLastSongByUser(t *testing.T) {
	s := openTestStorage(t)
	ctx := context.Background()

	s.InsertSong(ctx, "x", "X", "Artist", "", time.Minute, "alice")
	time.Sleep(10 * time.Millisecond)
	id2, _ := s.InsertSong(ctx, "y", "Y", "Artist", "", time.Minute, "alice")

	last, ok, err := s.LastSongByUser(ctx, "alice")
	if err != nil {
		t.Fatalf("LastSongByUser: %v", err)
	}
	if !ok || last.ID != id2 {
		t.Fatalf("expected most recent song by alice, got %+v ok=%v", last, ok)
	}

	_, ok, err = s.LastSongByUser(ctx, "nobody")
	if err != nil {
		t.Fatalf("LastSongByUser(nobody): %v", err)
	}
	if ok {
		t.Fatal("expected no song for a user who never queued")
	}
}

func TestBalanceAddAndTransfer(t *testing.T) {
	s := openTestStorage(t)
	ctx := context.Background()

	if err := s.BalanceAdd(ctx, "#chan", "alice", 100); err != nil {
		t.Fatalf("BalanceAdd: %v", err)
	}
	bal, err := s.BalanceOf(ctx, "#chan", "alice")
	if err != nil {
		t.Fatalf("BalanceOf: %v", err)
	}
	if bal.Amount != 100 {
		t.Fatalf("expected balance 100, got %d", bal.Amount)
	}

	if err := s.BalanceTransfer(ctx, "#chan", "alice", "bob", 40, false); err != nil {
		t.Fatalf("BalanceTransfer: %v", err)
	}

	aliceBal, _ := s.BalanceOf(ctx, "#chan", "alice")
	bobBal, _ := s.BalanceOf(ctx, "#chan", "bob")
	if aliceBal.Amount != 60 {
		t.Fatalf("expected alice to have 60 after transfer, got %d", aliceBal.Amount)
	}
	if bobBal.Amount != 40 {
		t.Fatalf("expected bob to have 40 after transfer, got %d", bobBal.Amount)
	}
}

func TestBalanceTransferInsufficientFundsRefused(t *testing.T) {
	s := openTestStorage(t)
	ctx := context.Background()

	s.BalanceAdd(ctx, "#chan", "alice", 10)
	if err := s.BalanceTransfer(ctx, "#chan", "alice", "bob", 50, false); err == nil {
		t.Fatal("expected an error transferring more than the balance holds")
	}

	aliceBal, _ := s.BalanceOf(ctx, "#chan", "alice")
	if aliceBal.Amount != 10 {
		t.Fatalf("expected failed transfer to leave balance untouched, got %d", aliceBal.Amount)
	}
}

func TestBalancesIncrement(t *testing.T) {
	s := openTestStorage(t)
	ctx := context.Background()

	if err := s.BalancesIncrement(ctx, "#chan", []string{"alice", "bob"}, 5, time.Minute); err != nil {
		t.Fatalf("BalancesIncrement: %v", err)
	}
	aliceBal, _ := s.BalanceOf(ctx, "#chan", "alice")
	if aliceBal.Amount != 5 || aliceBal.WatchTime != time.Minute {
		t.Fatalf("unexpected balance after increment: %+v", aliceBal)
	}

	if err := s.BalancesIncrement(ctx, "#chan", []string{"alice"}, 5, time.Minute); err != nil {
		t.Fatalf("BalancesIncrement second tick: %v", err)
	}
	aliceBal, _ = s.BalanceOf(ctx, "#chan", "alice")
	if aliceBal.Amount != 10 || aliceBal.WatchTime != 2*time.Minute {
		t.Fatalf("expected increments to accumulate, got %+v", aliceBal)
	}
}

func TestAliasRegistryRoundTrip(t *testing.T) {
	s := openTestStorage(t)
	ctx := context.Background()

	if err := s.PutAlias(ctx, AliasRow{Channel: "#chan", Name: "!sr", Pattern: "!sr", Template: "!song request {{rest}}"}); err != nil {
		t.Fatalf("PutAlias: %v", err)
	}
	aliases, err := s.ListAliases(ctx)
	if err != nil {
		t.Fatalf("ListAliases: %v", err)
	}
	if len(aliases) != 1 || aliases[0].Name != "!sr" {
		t.Fatalf("expected one alias, got %+v", aliases)
	}

	if err := s.DeleteAlias(ctx, "#chan", "!sr"); err != nil {
		t.Fatalf("DeleteAlias: %v", err)
	}
	aliases, err = s.ListAliases(ctx)
	if err != nil {
		t.Fatalf("ListAliases after delete: %v", err)
	}
	if len(aliases) != 0 {
		t.Fatalf("expected alias removed, got %+v", aliases)
	}
}

func TestBadWordsRoundTrip(t *testing.T) {
	s := openTestStorage(t)
	ctx := context.Background()

	if err := s.PutBadWord(ctx, "darn", "mild"); err != nil {
		t.Fatalf("PutBadWord: %v", err)
	}
	words, err := s.ListBadWords(ctx)
	if err != nil {
		t.Fatalf("ListBadWords: %v", err)
	}
	if len(words) != 1 || words[0].Word != "darn" {
		t.Fatalf("expected one bad word, got %+v", words)
	}

	if err := s.DeleteBadWord(ctx, "darn"); err != nil {
		t.Fatalf("DeleteBadWord: %v", err)
	}
	words, err = s.ListBadWords(ctx)
	if err != nil {
		t.Fatalf("ListBadWords after delete: %v", err)
	}
	if len(words) != 0 {
		t.Fatalf("expected bad word removed, got %+v", words)
	}
}

func TestAfterStreamsRoundTrip(t *testing.T) {
	s := openTestStorage(t)
	ctx := context.Background()

	if err := s.AddAfterStream(ctx, "#chan", "alice", "great stream!"); err != nil {
		t.Fatalf("AddAfterStream: %v", err)
	}
	entries, err := s.ListAfterStreams(ctx, "#chan")
	if err != nil {
		t.Fatalf("ListAfterStreams: %v", err)
	}
	if len(entries) != 1 || entries[0].Message != "great stream!" {
		t.Fatalf("expected one entry, got %+v", entries)
	}

	if err := s.ClearAfterStreams(ctx, "#chan"); err != nil {
		t.Fatalf("ClearAfterStreams: %v", err)
	}
	entries, err = s.ListAfterStreams(ctx, "#chan")
	if err != nil {
		t.Fatalf("ListAfterStreams after clear: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected entries cleared, got %+v", entries)
	}
}

func TestScriptKeyRoundTrip(t *testing.T) {
	s := openTestStorage(t)
	ctx := context.Background()

	if err := s.SetScriptKey(ctx, "#chan", "counter", "1"); err != nil {
		t.Fatalf("SetScriptKey: %v", err)
	}
	value, ok, err := s.GetScriptKey(ctx, "#chan", "counter")
	if err != nil {
		t.Fatalf("GetScriptKey: %v", err)
	}
	if !ok || value != "1" {
		t.Fatalf("expected value 1, got %q ok=%v", value, ok)
	}

	if err := s.SetScriptKey(ctx, "#chan", "counter", "2"); err != nil {
		t.Fatalf("SetScriptKey update: %v", err)
	}
	value, _, _ = s.GetScriptKey(ctx, "#chan", "counter")
	if value != "2" {
		t.Fatalf("expected updated value 2, got %q", value)
	}

	if err := s.DeleteScriptKey(ctx, "#chan", "counter"); err != nil {
		t.Fatalf("DeleteScriptKey: %v", err)
	}
	_, ok, _ = s.GetScriptKey(ctx, "#chan", "counter")
	if ok {
		t.Fatal("expected key removed")
	}
}
