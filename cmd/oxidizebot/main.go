// Command oxidizebot wires the bot core together: storage, settings,
// the injector, the player scheduler and its async future, currency,
// promotions, moderation, and the command-matching registries. The
// chat protocol client itself, and any playback transport beyond
// ConnectStream, are out of scope — this entrypoint stands the core up
// against a console chat sender so everything else can run end to end.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/oxidizebot/oxidizebot-go/internal/afterstream"
	"github.com/oxidizebot/oxidizebot-go/internal/bus"
	"github.com/oxidizebot/oxidizebot-go/internal/chat"
	"github.com/oxidizebot/oxidizebot-go/internal/config"
	"github.com/oxidizebot/oxidizebot-go/internal/connectstream"
	"github.com/oxidizebot/oxidizebot-go/internal/currency"
	"github.com/oxidizebot/oxidizebot-go/internal/injector"
	"github.com/oxidizebot/oxidizebot-go/internal/mixer"
	"github.com/oxidizebot/oxidizebot-go/internal/moderation"
	"github.com/oxidizebot/oxidizebot-go/internal/player"
	"github.com/oxidizebot/oxidizebot-go/internal/playerfuture"
	"github.com/oxidizebot/oxidizebot-go/internal/promotions"
	"github.com/oxidizebot/oxidizebot-go/internal/queue"
	"github.com/oxidizebot/oxidizebot-go/internal/registry"
	"github.com/oxidizebot/oxidizebot-go/internal/scopes"
	"github.com/oxidizebot/oxidizebot-go/internal/session"
	"github.com/oxidizebot/oxidizebot-go/internal/setbac"
	"github.com/oxidizebot/oxidizebot-go/internal/settings"
	"github.com/oxidizebot/oxidizebot-go/internal/songfile"
	"github.com/oxidizebot/oxidizebot-go/internal/statuspage"
	"github.com/oxidizebot/oxidizebot-go/internal/storage"
)

// channel is the single chat channel this process serves. A real
// deployment reads this from whatever joins the chat protocol client to
// a channel; since that client is out of scope here, it's a constant.
const channel = "#channel"

func main() {
	logger := logrus.New()

	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			logger.WithError(err).Warn("could not load .env")
		}
	}

	cfg, err := config.LoadConfig("./config.toml")
	if err != nil {
		logger.WithError(err).Fatal("loading configuration")
	}
	configureLogger(logger, cfg.Logging)

	store, err := storage.Open(cfg.Database.Path, logger)
	if err != nil {
		logger.WithError(err).Fatal("opening storage")
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var schemas []settings.Schema
	if s, err := settings.LoadSchemaFile("settings.yaml"); err == nil {
		schemas = s
	} else {
		logger.WithError(err).Debug("no settings schema file, continuing with an empty schema")
	}
	settingsStore, err := settings.Open(ctx, store.DB(), schemas, logger)
	if err != nil {
		logger.WithError(err).Fatal("opening settings")
	}

	scopeRegistry := scopes.New(store)
	if err := scopeRegistry.Seed(ctx); err != nil {
		logger.WithError(err).Fatal("seeding scopes")
	}

	moderationFilter, err := moderation.Open(ctx, store)
	if err != nil {
		logger.WithError(err).Fatal("opening moderation filter")
	}
	afterstreamLog := afterstream.Open(store, channel)

	if _, err := registry.OpenAliases(ctx, store); err != nil {
		logger.WithError(err).Fatal("opening alias registry")
	}
	if _, err := registry.OpenCommands(ctx, store); err != nil {
		logger.WithError(err).Fatal("opening command registry")
	}
	if _, err := registry.OpenThemes(ctx, store); err != nil {
		logger.WithError(err).Fatal("opening theme registry")
	}

	if cfg.Session.Secret != "" {
		if _, err := session.NewSealer(cfg.Session.Secret); err != nil {
			logger.WithError(err).Warn("auth session sealing disabled")
		}
	}

	sender := newConsoleSender(logger)
	q, err := queue.Open(ctx, store, channel, logger)
	if err != nil {
		logger.WithError(err).Fatal("opening queue")
	}
	m := mixer.New(q)

	stream := connectstream.New(logger)
	stream.SetBackend(connectstream.NewBrowserBackend(logger))

	inj := injector.New()

	songBus := bus.New[player.SongCurrent](logger)
	progBus := bus.New[player.SongProgress](logger)
	songFileSink := songfile.New("./song.txt", "", "", logger)
	var remoteSink *setbac.Sink
	if cfg.SecretsURL != "" {
		remoteSink = setbac.New(cfg.SecretsURL, logger)
	}

	p := player.New(m, q, stream, sender, songBus, progBus, songFileSink, remoteSink, player.Config{
		Channel:           channel,
		DuplicateDuration: 30 * time.Minute,
		QueueLimit:        30,
		ChatFeedback:      true,
	}, logger)

	future := playerfuture.New(p, m, stream, inj, settingsStore, nil, "./fallback_cache.json", logger)

	viewers := staticViewerLister{}
	idle := neverIdleChecker{}
	cur := currency.New(store, sender, viewers, idle, channel, settingsStore, logger)
	promo := promotions.New(store, sender, idle, channel, time.Minute, logger)
	page := statuspage.New(cfg.Statuspage, nil, logger)

	if err := cfg.WatchBadWords(ctx, logger, moderationFilter.LoadFile); err != nil {
		logger.WithError(err).Warn("bad-words file watcher disabled")
	}

	_ = afterstreamLog
	_ = scopeRegistry

	errCh := make(chan error, 3)
	go future.Run(ctx)
	go func() { errCh <- cur.Run(ctx) }()
	go func() { errCh <- promo.Run(ctx) }()
	go func() { errCh <- page.Run(ctx) }()

	<-ctx.Done()
	logger.Info("shutting down")
	for i := 0; i < cap(errCh); i++ {
		select {
		case err := <-errCh:
			if err != nil {
				logger.WithError(err).Warn("component exited with error")
			}
		case <-time.After(5 * time.Second):
		}
	}
}

func configureLogger(logger *logrus.Logger, cfg config.LoggingConfig) {
	if level, err := logrus.ParseLevel(cfg.Level); err == nil {
		logger.SetLevel(level)
	}
	if cfg.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{})
	}
}

type staticViewerLister struct{}

func (staticViewerLister) CurrentViewers(ctx context.Context, channel string) ([]string, error) {
	return nil, nil
}

type neverIdleChecker struct{}

func (neverIdleChecker) IsIdle(ctx context.Context, channel string) (bool, error) {
	return false, nil
}

// consoleSender is a minimal chat.Sender that logs outgoing messages.
// The real chat protocol client is out of scope; this exists so the
// rest of the core has something concrete to drive.
type consoleSender struct {
	logger *logrus.Logger
}

func newConsoleSender(logger *logrus.Logger) *consoleSender {
	return &consoleSender{logger: logger}
}

func (c *consoleSender) Privmsg(ctx context.Context, channel, message string) error {
	c.logger.WithField("channel", channel).Info(message)
	return nil
}

func (c *consoleSender) PrivmsgImmediate(ctx context.Context, channel, message string) error {
	return c.Privmsg(ctx, channel, message)
}

func (c *consoleSender) Delete(ctx context.Context, channel, messageID string) error {
	c.logger.WithFields(logrus.Fields{"channel": channel, "id": messageID}).Info("delete requested")
	return nil
}

func (c *consoleSender) CapReq(ctx context.Context, capability string) error {
	c.logger.WithField("capability", capability).Debug("cap requested")
	return nil
}

var _ chat.Sender = (*consoleSender)(nil)
