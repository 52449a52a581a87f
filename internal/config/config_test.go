package config

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestLoadConfigCreatesDefaultsWhenMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected a config file to be written, got %v", err)
	}
	if cfg.Port != "8080" || cfg.Database.Path == "" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadConfigRoundTripsCustomValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg := DefaultConfig()
	cfg.Host = "127.0.0.1"
	cfg.Port = "1234"
	cfg.Database.Path = "custom.db"
	cfg.BadWords = "bad_words.txt"
	if err := cfg.SaveToFile(path); err != nil {
		t.Fatalf("SaveToFile: %v", err)
	}

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if loaded.Host != "127.0.0.1" || loaded.Port != "1234" || loaded.Database.Path != "custom.db" || loaded.BadWords != "bad_words.txt" {
		t.Fatalf("got %+v", loaded)
	}
}

func TestValidateRejectsEmptyHost(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Host = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error for an empty host")
	}
}

func TestValidateRejectsBadLogLevel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Logging.Level = "verbose"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error for an invalid log level")
	}
}

func TestValidateRequiresNgrokTokenWhenEnabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Statuspage.Ngrok.Enabled = true
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error for a missing ngrok auth token")
	}
}

func TestGetAddress(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Host = "0.0.0.0"
	cfg.Port = "9999"
	if got, want := cfg.GetAddress(), "0.0.0.0:9999"; got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestWatchBadWordsIsNoopWhenUnset(t *testing.T) {
	cfg := DefaultConfig()
	called := false
	err := cfg.WatchBadWords(context.Background(), nil, func(ctx context.Context, path string) error {
		called = true
		return nil
	})
	if err != nil {
		t.Fatalf("WatchBadWords: %v", err)
	}
	if called {
		t.Fatal("expected no load call when BadWords is unset")
	}
}

func TestWatchBadWordsLoadsOnceUpFrontAndOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad_words.txt")
	if err := os.WriteFile(path, []byte("darn\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg := DefaultConfig()
	cfg.BadWords = path

	var mu sync.Mutex
	calls := 0
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := cfg.WatchBadWords(ctx, nil, func(ctx context.Context, p string) error {
		mu.Lock()
		calls++
		mu.Unlock()
		return nil
	}); err != nil {
		t.Fatalf("WatchBadWords: %v", err)
	}

	mu.Lock()
	initial := calls
	mu.Unlock()
	if initial != 1 {
		t.Fatalf("expected one up-front load call, got %d", initial)
	}

	if err := os.WriteFile(path, []byte("darn\nheck\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		n := calls
		mu.Unlock()
		if n > initial {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("expected a reload call after the bad-words file changed")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
