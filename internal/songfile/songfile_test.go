package songfile

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/oxidizebot/oxidizebot-go/internal/trackid"
	"github.com/oxidizebot/oxidizebot-go/pkg/models"
)

func TestUpdateWritesPlayingTemplate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "song.txt")
	s := New(path, "{{.Title}} - {{.Artist}} ({{.Elapsed}}/{{.Duration}})", "", nil)

	item := models.NewItem(trackid.NewSpotify("a"), models.TrackMetadata{Title: "Song", Artist: "Artist"}, "alice", 200)
	if err := s.Update(&item, 65*time.Second, 200*time.Second); err != nil {
		t.Fatalf("Update: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	want := "Song - Artist (1:05/3:20)"
	if string(got) != want {
		t.Fatalf("got %q, want %q", string(got), want)
	}
}

func TestUpdateWritesStoppedTemplateWhenIdle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "song.txt")
	s := New(path, "", "nothing playing", nil)

	if err := s.Update(nil, 0, 0); err != nil {
		t.Fatalf("Update: %v", err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != "nothing playing" {
		t.Fatalf("got %q", string(got))
	}
}

func TestDefaultTemplatesUsedWhenEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "song.txt")
	s := New(path, "", "", nil)

	item := models.NewItem(trackid.NewSpotify("a"), models.TrackMetadata{Title: "Song", Artist: "Artist"}, "", 100)
	if err := s.Update(&item, 0, 100*time.Second); err != nil {
		t.Fatalf("Update: %v", err)
	}
	got, _ := os.ReadFile(path)
	if string(got) != "Song by Artist" {
		t.Fatalf("got %q", string(got))
	}
}
