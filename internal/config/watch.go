package config

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// BadWordsLoader loads the bad-words list file at path into the
// moderation filter. internal/moderation.Filter.LoadFile satisfies
// this; it is passed in rather than imported directly so this package
// doesn't need to depend on storage/moderation just to watch a file.
type BadWordsLoader func(ctx context.Context, path string) error

// WatchBadWords loads c.BadWords once up front and then watches it for
// changes, calling load again on every write so an operator editing
// the list by hand (or a config-management tool replacing it) takes
// effect without a restart. It is a no-op if c.BadWords is empty.
// Grounded on the teacher's internal/server/watcher.go fsnotify idiom.
func (c *Config) WatchBadWords(ctx context.Context, logger *logrus.Logger, load BadWordsLoader) error {
	if c.BadWords == "" {
		return nil
	}
	if logger == nil {
		logger = logrus.New()
	}

	if err := load(ctx, c.BadWords); err != nil {
		logger.WithError(err).WithField("path", c.BadWords).Warn("config: initial bad-words load failed")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	dir := filepath.Dir(c.BadWords)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return err
	}

	target := filepath.Clean(c.BadWords)
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
				logger.WithField("path", c.BadWords).Info("config: bad-words file changed, reloading")
				if err := load(ctx, c.BadWords); err != nil {
					logger.WithError(err).WithField("path", c.BadWords).Warn("config: bad-words reload failed")
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.WithError(err).Warn("config: bad-words watcher error")
			}
		}
	}()

	return nil
}
