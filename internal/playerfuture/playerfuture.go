// Package playerfuture wires PlayerInternal to its asynchronous inputs:
// the settings that reconfigure it, the connected backend's event
// stream, the end-of-track timer, and the periodic progress tick. It is
// the only place that owns a ticker or a timer for the scheduler — the
// player package itself is purely synchronous.
package playerfuture

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/oxidizebot/oxidizebot-go/internal/connectstream"
	"github.com/oxidizebot/oxidizebot-go/internal/injector"
	"github.com/oxidizebot/oxidizebot-go/internal/mixer"
	"github.com/oxidizebot/oxidizebot-go/internal/player"
	"github.com/oxidizebot/oxidizebot-go/internal/settings"
	"github.com/oxidizebot/oxidizebot-go/internal/trackid"
	"github.com/oxidizebot/oxidizebot-go/pkg/models"
)

const (
	defaultProgressInterval = 5 * time.Second
	fallbackCacheTTL        = 4 * time.Hour
	backoffBase             = 2 * time.Second
	backoffCap              = 2 * time.Minute
)

// FallbackLoader fetches the current fallback playlist for uri (a
// provider-specific playlist/album reference). Implementations live
// outside this package — one per track-id provider.
type FallbackLoader func(ctx context.Context, uri string) ([]models.Item, error)

// Future owns the goroutine that drives a Player from its settings,
// the injector, and the connected backend.
type Future struct {
	player    *player.Player
	mixer     *mixer.Mixer
	stream    *connectstream.Stream
	inj       *injector.Injector
	settings  *settings.Settings
	loader    FallbackLoader
	cachePath string
	logger    *logrus.Logger

	cache fallbackCache
}

type fallbackCache struct {
	items     []models.Item
	uri       string
	expiresAt time.Time
}

// New builds a Future. loader may be nil, in which case fallback-uri
// changes are logged and ignored. cachePath may be empty to disable the
// on-disk fallback-playlist cache entirely; when set, a successful
// loader fetch is persisted there, and the file is watched via fsnotify
// so that an externally replaced cache (another process prefetching a
// playlist, or an operator editing it by hand) is picked up without a
// restart.
func New(p *player.Player, m *mixer.Mixer, stream *connectstream.Stream, inj *injector.Injector, s *settings.Settings, loader FallbackLoader, cachePath string, logger *logrus.Logger) *Future {
	if logger == nil {
		logger = logrus.New()
	}
	return &Future{player: p, mixer: m, stream: stream, inj: inj, settings: s, loader: loader, cachePath: cachePath, logger: logger}
}

// Run is the main select loop. It returns when ctx is done.
func (f *Future) Run(ctx context.Context) {
	injectCh, _, _ := injector.StreamTag[models.Item](ctx, f.inj, "inject")

	detachedCh := settings.NewStream[bool](ctx, f.settings, "player/detached").Or(false)
	modeCh := settings.NewStream[string](ctx, f.settings, "player/playback-mode").Or("queue")
	intervalCh := settings.NewStream[int](ctx, f.settings, "player/song-update-interval").Or(int(defaultProgressInterval / time.Second))
	fallbackURICh := settings.NewStream[string](ctx, f.settings, "player/fallback-uri").Or("")

	progressTicker := time.NewTicker(defaultProgressInterval)
	defer progressTicker.Stop()

	endOfTrackTimer := time.NewTimer(time.Hour)
	endOfTrackTimer.Stop()
	defer endOfTrackTimer.Stop()

	songBus, unsubSong := f.player.SongBus().Subscribe(4)
	defer unsubSong()

	if f.cachePath != "" {
		f.startCacheWatcher(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			return

		case delta, ok := <-injectCh:
			if !ok {
				injectCh = nil
				continue
			}
			if delta.Ok {
				if err := f.player.Inject(ctx, delta.Value, player.Sideline); err != nil {
					f.logger.WithError(err).Warn("playerfuture: inject failed")
				}
			}

		case <-endOfTrackTimer.C:
			if err := f.player.HandleEndOfTrack(ctx); err != nil {
				f.logger.WithError(err).Warn("playerfuture: end-of-track handling failed")
			}

		case detached, ok := <-detachedCh:
			if !ok {
				detachedCh = nil
				continue
			}
			f.player.SetDetached(ctx, detached)

		case mode, ok := <-modeCh:
			if !ok {
				modeCh = nil
				continue
			}
			f.player.SetMode(parseMode(mode))

		case secs, ok := <-intervalCh:
			if !ok {
				intervalCh = nil
				continue
			}
			if secs <= 0 {
				secs = int(defaultProgressInterval / time.Second)
			}
			progressTicker.Reset(time.Duration(secs) * time.Second)

		case <-progressTicker.C:
			f.player.PublishProgress()

		case e, ok := <-f.stream.Recv():
			if !ok {
				continue
			}
			f.handlePlayerEvent(ctx, e)

		case uri, ok := <-fallbackURICh:
			if !ok {
				fallbackURICh = nil
				continue
			}
			go f.reloadFallbackWithBackoff(ctx, uri)

		case sc, ok := <-songBus:
			if !ok {
				continue
			}
			rearmEndOfTrackTimer(endOfTrackTimer, sc)
		}
	}
}

func parseMode(s string) player.Mode {
	if s == "default" {
		return player.ModeDefault
	}
	return player.ModeQueue
}

// rearmEndOfTrackTimer re-arms timer to fire at now + (duration -
// elapsed) whenever the bus reports a song is actively playing, and
// disarms it otherwise (paused or idle never needs an end-of-track
// timer).
func rearmEndOfTrackTimer(timer *time.Timer, sc player.SongCurrent) {
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
	if !sc.IsPlaying {
		return
	}
	remaining := sc.Duration - sc.Elapsed
	if remaining < 0 {
		remaining = 0
	}
	timer.Reset(remaining)
}

func (f *Future) handlePlayerEvent(ctx context.Context, e connectstream.Event) {
	switch e.Kind {
	case connectstream.EndOfTrack:
		if err := f.player.HandleEndOfTrack(ctx); err != nil {
			f.logger.WithError(err).Warn("playerfuture: end-of-track handling failed")
		}
	case connectstream.NotConfigured:
		f.logger.Warn("playerfuture: backend reports not configured")
	default:
		f.logger.WithField("kind", e.Kind.String()).Debug("playerfuture: observed backend event")
	}
}

// reloadFallbackWithBackoff fetches uri's fallback playlist, retrying
// with exponential backoff (base 2s, capped) on error, and installs the
// result on the mixer once it succeeds. A cache hit within 4 hours skips
// the fetch entirely.
func (f *Future) reloadFallbackWithBackoff(ctx context.Context, uri string) {
	if uri == "" || f.loader == nil {
		return
	}

	if items, ok := f.cachedFallback(uri); ok {
		f.mixer.UpdateFallbackItems(items)
		return
	}

	backoff := backoffBase
	for {
		items, err := f.loader(ctx, uri)
		if err == nil {
			f.setCachedFallback(uri, items)
			f.mixer.UpdateFallbackItems(items)
			return
		}
		f.logger.WithError(err).WithField("uri", uri).Warn("playerfuture: fallback playlist load failed, retrying")

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > backoffCap {
			backoff = backoffCap
		}
	}
}

// cachedFallback returns a still-fresh cached playlist for uri, first
// from the in-memory cache and, failing that, from the on-disk cache
// file (so a restart doesn't force an immediate refetch within the TTL
// of whatever a prior process run — or an external writer — left
// behind).
func (f *Future) cachedFallback(uri string) ([]models.Item, bool) {
	c := f.cache
	if c.uri == uri && !time.Now().After(c.expiresAt) {
		return c.items, true
	}

	if f.cachePath == "" {
		return nil, false
	}
	info, err := os.Stat(f.cachePath)
	if err != nil || time.Since(info.ModTime()) > fallbackCacheTTL {
		return nil, false
	}
	diskURI, items, err := readCacheFile(f.cachePath)
	if err != nil || diskURI != uri {
		return nil, false
	}
	f.cache = fallbackCache{items: items, uri: uri, expiresAt: info.ModTime().Add(fallbackCacheTTL)}
	return items, true
}

func (f *Future) setCachedFallback(uri string, items []models.Item) {
	f.cache = fallbackCache{items: items, uri: uri, expiresAt: time.Now().Add(fallbackCacheTTL)}
	if f.cachePath != "" {
		if err := writeCacheFile(f.cachePath, uri, items); err != nil {
			f.logger.WithError(err).WithField("path", f.cachePath).Warn("playerfuture: writing fallback cache file failed")
		}
	}
}

// startCacheWatcher watches the directory holding f.cachePath and
// installs the fallback playlist from disk whenever that file is
// created or written, until ctx is done. Grounded on the teacher's
// internal/server/watcher.go: fsnotify.NewWatcher, Add the containing
// directory, drain Events/Errors in a select loop.
func (f *Future) startCacheWatcher(ctx context.Context) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		f.logger.WithError(err).Warn("playerfuture: fallback cache watcher disabled")
		return
	}

	dir := filepath.Dir(f.cachePath)
	if err := watcher.Add(dir); err != nil {
		f.logger.WithError(err).WithField("dir", dir).Warn("playerfuture: cannot watch fallback cache directory")
		watcher.Close()
		return
	}

	target := filepath.Clean(f.cachePath)
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				uri, items, err := readCacheFile(f.cachePath)
				if err != nil {
					f.logger.WithError(err).WithField("path", f.cachePath).Warn("playerfuture: fallback cache file reload failed")
					continue
				}
				f.logger.WithField("path", f.cachePath).Info("playerfuture: fallback cache file changed, reloading")
				if info, err := os.Stat(f.cachePath); err == nil {
					f.cache = fallbackCache{items: items, uri: uri, expiresAt: info.ModTime().Add(fallbackCacheTTL)}
				}
				f.mixer.UpdateFallbackItems(items)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				f.logger.WithError(err).Warn("playerfuture: fallback cache watcher error")
			}
		}
	}()
}

// cachedItem is the on-disk shape of a fallback-playlist entry. It
// exists because trackid.ID keeps its fields unexported (so it can only
// ever be constructed through Parse/NewSpotify/NewYouTube) and so does
// not round-trip through encoding/json on its own.
type cachedItem struct {
	TrackID        string `json:"trackId"`
	Title          string `json:"title"`
	Artist         string `json:"artist"`
	Album          string `json:"album,omitempty"`
	ArtURL         string `json:"artUrl,omitempty"`
	HasArt         bool   `json:"hasArt"`
	RequestingUser string `json:"requestingUser,omitempty"`
	DurationSecs   int    `json:"durationSeconds"`
}

// cacheFile is the on-disk envelope: the fallback-uri the playlist was
// fetched for, alongside the playlist itself, so a reload can tell
// whether a cache hit actually matches the currently configured uri.
type cacheFile struct {
	URI   string       `json:"uri"`
	Items []cachedItem `json:"items"`
}

func writeCacheFile(path, uri string, items []models.Item) error {
	out := cacheFile{URI: uri, Items: make([]cachedItem, len(items))}
	for i, it := range items {
		c := cachedItem{
			TrackID:      it.TrackID.String(),
			Title:        it.Metadata.Title,
			Artist:       it.Metadata.Artist,
			Album:        it.Metadata.Album,
			ArtURL:       it.Metadata.ArtURL,
			HasArt:       it.Metadata.HasArt,
			DurationSecs: it.DurationSecs,
		}
		if it.RequestingUser != nil {
			c.RequestingUser = *it.RequestingUser
		}
		out.Items[i] = c
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func readCacheFile(path string) (string, []models.Item, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", nil, err
	}
	var in cacheFile
	if err := json.Unmarshal(data, &in); err != nil {
		return "", nil, err
	}

	items := make([]models.Item, 0, len(in.Items))
	for _, c := range in.Items {
		id, err := trackid.Parse(c.TrackID)
		if err != nil {
			continue
		}
		items = append(items, models.NewItem(id, models.TrackMetadata{
			Title:  c.Title,
			Artist: c.Artist,
			Album:  c.Album,
			ArtURL: c.ArtURL,
			HasArt: c.HasArt,
		}, c.RequestingUser, c.DurationSecs))
	}
	return in.URI, items, nil
}
