// Package promotions runs the idle-aware periodic chat poster: each
// registered promotion fires at most once per its configured frequency,
// and only while the channel is not idle.
//
// Grounded on the same ticker-driven loop shape as internal/currency,
// itself adapted from internal/auth/session.go's
// cleanupExpiredSessions.
package promotions

import (
	"context"
	"strings"
	"text/template"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/oxidizebot/oxidizebot-go/internal/chat"
	"github.com/oxidizebot/oxidizebot-go/internal/storage"
)

// IdleChecker reports whether a channel is currently idle.
type IdleChecker interface {
	IsIdle(ctx context.Context, channel string) (bool, error)
}

// Runner polls the promotions registry and posts due entries to chat.
type Runner struct {
	store    *storage.Storage
	chat     chat.Sender
	idle     IdleChecker
	channel  string
	logger   *logrus.Logger
	interval time.Duration
}

// New builds a Runner for channel, checking for due promotions every
// pollInterval.
func New(store *storage.Storage, sender chat.Sender, idle IdleChecker, channel string, pollInterval time.Duration, logger *logrus.Logger) *Runner {
	if logger == nil {
		logger = logrus.New()
	}
	if pollInterval <= 0 {
		pollInterval = 30 * time.Second
	}
	return &Runner{store: store, chat: sender, idle: idle, channel: channel, logger: logger, interval: pollInterval}
}

// Run polls until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := r.tick(ctx); err != nil {
				r.logger.WithError(err).Warn("promotions: tick failed")
			}
		}
	}
}

func (r *Runner) tick(ctx context.Context) error {
	if r.idle != nil {
		idle, err := r.idle.IsIdle(ctx, r.channel)
		if err != nil {
			return err
		}
		if idle {
			return nil
		}
	}

	rows, err := r.store.ListPromotions(ctx)
	if err != nil {
		return err
	}

	now := time.Now()
	for _, p := range rows {
		if p.Channel != r.channel || p.Disabled {
			continue
		}
		if err := r.maybeFire(ctx, p, now); err != nil {
			r.logger.WithError(err).WithField("promotion", p.Name).Warn("promotions: failed to fire")
		}
	}
	return nil
}

func (r *Runner) maybeFire(ctx context.Context, p storage.PromotionRow, now time.Time) error {
	frequency := time.Duration(p.FrequencySecs) * time.Second
	if p.PromotedAt.Valid && now.Sub(p.PromotedAt.Time) < frequency {
		return nil
	}

	rendered, err := render(p.Template, p)
	if err != nil {
		return err
	}
	if r.chat == nil {
		return nil
	}
	if err := r.chat.Privmsg(ctx, p.Channel, rendered); err != nil {
		return err
	}
	return r.store.TouchPromotion(ctx, p.Channel, p.Name, now.Unix())
}

// render executes tmpl as a text/template with p as its data. A
// malformed template degrades to posting the raw text rather than
// failing the whole tick.
func render(tmpl string, p storage.PromotionRow) (string, error) {
	t, err := template.New(p.Name).Parse(tmpl)
	if err != nil {
		return tmpl, nil
	}
	var sb strings.Builder
	if err := t.Execute(&sb, p); err != nil {
		return tmpl, nil
	}
	return sb.String(), nil
}
