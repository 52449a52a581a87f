// Package moderation implements the swear-jar word filter: a
// channel-wide list of disallowed words, checked against each chat
// message so a command layer can dock currency or warn the sender.
package moderation

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/oxidizebot/oxidizebot-go/internal/storage"
)

// Filter checks chat messages against a cached copy of the bad-words
// list, reloading on every mutation rather than per message.
type Filter struct {
	store *storage.Storage

	mu    sync.RWMutex
	words map[string]string // lowercased word -> why
}

// Open builds a Filter and loads the current word list.
func Open(ctx context.Context, store *storage.Storage) (*Filter, error) {
	f := &Filter{store: store}
	if err := f.Reload(ctx); err != nil {
		return nil, err
	}
	return f, nil
}

// Reload re-reads the full word list from storage.
func (f *Filter) Reload(ctx context.Context) error {
	rows, err := f.store.ListBadWords(ctx)
	if err != nil {
		return fmt.Errorf("moderation: reload: %w", err)
	}
	words := make(map[string]string, len(rows))
	for _, row := range rows {
		words[strings.ToLower(row.Word)] = row.Why
	}

	f.mu.Lock()
	f.words = words
	f.mu.Unlock()
	return nil
}

// Add inserts or updates a filtered word and refreshes the cache.
func (f *Filter) Add(ctx context.Context, word, why string) error {
	if err := f.store.PutBadWord(ctx, word, why); err != nil {
		return fmt.Errorf("moderation: add %q: %w", word, err)
	}
	return f.Reload(ctx)
}

// Remove deletes a filtered word and refreshes the cache.
func (f *Filter) Remove(ctx context.Context, word string) error {
	if err := f.store.DeleteBadWord(ctx, word); err != nil {
		return fmt.Errorf("moderation: remove %q: %w", word, err)
	}
	return f.Reload(ctx)
}

// LoadFile reads a bad-words list file — one entry per line, "word" or
// "word: why" — and upserts every entry into storage before reloading
// the cache. Blank lines and lines starting with "#" are skipped. It is
// meant to be called both at startup (config.BadWords) and whenever a
// watched bad-words file changes on disk.
func (f *Filter) LoadFile(ctx context.Context, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("moderation: load file %q: %w", path, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		word, why, _ := strings.Cut(line, ":")
		word = strings.TrimSpace(word)
		why = strings.TrimSpace(why)
		if word == "" {
			continue
		}
		if err := f.store.PutBadWord(ctx, word, why); err != nil {
			return fmt.Errorf("moderation: load file %q: put %q: %w", path, word, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("moderation: load file %q: %w", path, err)
	}

	return f.Reload(ctx)
}

// Hit is one filtered word found in a checked message.
type Hit struct {
	Word string
	Why  string
}

// Check tokenizes message on whitespace and reports every bad word
// found, matched as a whole word (case-insensitive) rather than a
// substring, so "classic" doesn't trip a filter on "ass".
func (f *Filter) Check(message string) []Hit {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if len(f.words) == 0 {
		return nil
	}

	var hits []Hit
	seen := make(map[string]bool)
	for _, raw := range strings.Fields(message) {
		word := strings.ToLower(strings.Trim(raw, ".,!?;:\"'"))
		if word == "" || seen[word] {
			continue
		}
		if why, ok := f.words[word]; ok {
			hits = append(hits, Hit{Word: word, Why: why})
			seen[word] = true
		}
	}
	return hits
}
