// Package trackmeta reads embedded tag metadata from a locally cached
// audio file, to backfill a TrackMetadata whose provider response left
// title, artist, album, or art blank. It never computes duration: that
// always comes from the provider, never from decoding audio frames.
package trackmeta

import (
	"crypto/md5"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dhowden/tag"

	"github.com/oxidizebot/oxidizebot-go/pkg/models"
)

// Extractor reads tag.Metadata from files and caches any embedded
// album art it finds, keyed by a content hash.
type Extractor struct {
	artMu sync.RWMutex
	art   map[string][]byte
}

// New builds an Extractor with an empty art cache.
func New() *Extractor {
	return &Extractor{art: make(map[string][]byte)}
}

// Extract reads path's embedded tags and returns a TrackMetadata. If
// the file carries no readable tags, title falls back to the filename
// with its extension stripped and artist/album are left blank.
func (e *Extractor) Extract(path string) (models.TrackMetadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return models.TrackMetadata{}, fmt.Errorf("trackmeta: open %s: %w", path, err)
	}
	defer f.Close()

	meta, err := tag.ReadFrom(f)
	if err != nil {
		name := filepath.Base(path)
		name = strings.TrimSuffix(name, filepath.Ext(name))
		return models.TrackMetadata{Title: name}, nil
	}

	out := models.TrackMetadata{
		Title:  meta.Title(),
		Artist: meta.Artist(),
		Album:  meta.Album(),
	}
	if out.Title == "" {
		name := filepath.Base(path)
		out.Title = strings.TrimSuffix(name, filepath.Ext(name))
	}

	if artID, ok := e.cacheArt(meta); ok {
		out.ArtURL = artID
		out.HasArt = true
	}
	return out, nil
}

// cacheArt stores meta's embedded picture, if any, under a hash of its
// bytes and returns that hash as an opaque art id.
func (e *Extractor) cacheArt(meta tag.Metadata) (string, bool) {
	pic := meta.Picture()
	if pic == nil || len(pic.Data) == 0 {
		return "", false
	}
	sum := md5.Sum(pic.Data)
	id := fmt.Sprintf("%x", sum)

	e.artMu.Lock()
	e.art[id] = pic.Data
	e.artMu.Unlock()
	return id, true
}

// Art returns the cached album art for id, previously returned from
// Extract's TrackMetadata.ArtURL.
func (e *Extractor) Art(id string) ([]byte, bool) {
	e.artMu.RLock()
	defer e.artMu.RUnlock()
	data, ok := e.art[id]
	return data, ok
}
