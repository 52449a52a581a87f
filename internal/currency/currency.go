// Package currency implements the periodic viewer-reward loop and the
// transactional balance operations backing it.
//
// The ticker-driven loop is grounded on internal/auth/session.go's
// cleanupExpiredSessions: a ticker consumed in a for-range/select,
// guarded only as long as it takes to touch shared state.
package currency

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/oxidizebot/oxidizebot-go/internal/chat"
	"github.com/oxidizebot/oxidizebot-go/internal/settings"
	"github.com/oxidizebot/oxidizebot-go/internal/storage"
)

// ViewerLister supplies the current viewer population for a channel —
// an out-of-scope collaborator, backed by whatever tracks chat
// presence.
type ViewerLister interface {
	CurrentViewers(ctx context.Context, channel string) ([]string, error)
}

// IdleChecker reports whether the channel is currently considered idle
// (e.g. the stream is offline); rewards are suppressed while idle.
type IdleChecker interface {
	IsIdle(ctx context.Context, channel string) (bool, error)
}

// Currency runs the periodic reward loop for one channel and exposes
// the transactional balance operations chat commands call directly.
type Currency struct {
	store   *storage.Storage
	chat    chat.Sender
	viewers ViewerLister
	idle    IdleChecker
	channel string
	logger  *logrus.Logger

	enabled        *settings.Var[bool]
	notify         *settings.Var[bool]
	name           *settings.Var[string]
	reward         *settings.Var[int64]
	rewardPercent  *settings.Var[int64]
	rewardInterval *settings.Var[int64] // seconds
}

// New builds a Currency runner reading its configuration from the
// "currency/" scoped settings.
func New(store *storage.Storage, sender chat.Sender, viewers ViewerLister, idle IdleChecker, channel string, s *settings.Settings, logger *logrus.Logger) *Currency {
	if logger == nil {
		logger = logrus.New()
	}
	ctx := context.Background()
	return &Currency{
		store:   store,
		chat:    sender,
		viewers: viewers,
		idle:    idle,
		channel: channel,
		logger:  logger,

		enabled:        settings.NewVar[bool](ctx, s, "currency/enabled", true),
		notify:         settings.NewVar[bool](ctx, s, "currency/notify-on-reward", false),
		name:           settings.NewVar[string](ctx, s, "currency/name", "coins"),
		reward:         settings.NewVar[int64](ctx, s, "currency/reward", 10),
		rewardPercent:  settings.NewVar[int64](ctx, s, "currency/reward-percentage", 100),
		rewardInterval: settings.NewVar[int64](ctx, s, "currency/reward-interval", 300),
	}
}

// Run drives the periodic reward loop until ctx is cancelled.
func (c *Currency) Run(ctx context.Context) error {
	interval := time.Duration(c.rewardInterval.Get()) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := c.tick(ctx); err != nil {
				c.logger.WithError(err).Warn("currency: reward tick failed")
			}
			// The interval setting may have changed since the ticker
			// was armed; re-arm if so.
			if newInterval := time.Duration(c.rewardInterval.Get()) * time.Second; newInterval > 0 && newInterval != interval {
				interval = newInterval
				ticker.Reset(interval)
			}
		}
	}
}

func (c *Currency) tick(ctx context.Context) error {
	if !c.enabled.Get() {
		return nil
	}
	if c.idle != nil {
		idle, err := c.idle.IsIdle(ctx, c.channel)
		if err != nil {
			return fmt.Errorf("currency: idle check: %w", err)
		}
		if idle {
			return nil
		}
	}

	users, err := c.viewers.CurrentViewers(ctx, c.channel)
	if err != nil {
		return fmt.Errorf("currency: list viewers: %w", err)
	}
	if len(users) == 0 {
		return nil
	}

	reward := c.reward.Get() * c.rewardPercent.Get() / 100
	interval := time.Duration(c.rewardInterval.Get()) * time.Second

	for i, u := range users {
		users[i] = NormalizeUser(u)
	}
	if err := c.store.BalancesIncrement(ctx, c.channel, users, reward, interval); err != nil {
		return fmt.Errorf("currency: increment: %w", err)
	}

	if reward > 0 && c.notify.Get() && c.chat != nil {
		msg := fmt.Sprintf("Distributed %d %s to %d viewers!", reward, c.name.Get(), len(users))
		if err := c.chat.Privmsg(ctx, c.channel, msg); err != nil {
			c.logger.WithError(err).Warn("currency: failed to post reward notification")
		}
	}
	return nil
}

// NormalizeUser lowercases a login and strips a leading '@', the
// canonical user-id form used for balance lookups.
func NormalizeUser(user string) string {
	return strings.ToLower(strings.TrimPrefix(user, "@"))
}

// BalanceOf returns a user's balance in the channel.
func (c *Currency) BalanceOf(ctx context.Context, user string) (storage.Balance, error) {
	return c.store.BalanceOf(ctx, c.channel, NormalizeUser(user))
}

// BalanceAdd credits (or debits) a single user's balance.
func (c *Currency) BalanceAdd(ctx context.Context, user string, delta int64) error {
	return c.store.BalanceAdd(ctx, c.channel, NormalizeUser(user), delta)
}

// BalancesIncrement bulk-credits every listed user.
func (c *Currency) BalancesIncrement(ctx context.Context, users []string, deltaAmount int64, deltaWatchTime time.Duration) error {
	normalized := make([]string, len(users))
	for i, u := range users {
		normalized[i] = NormalizeUser(u)
	}
	return c.store.BalancesIncrement(ctx, c.channel, normalized, deltaAmount, deltaWatchTime)
}

// BalanceTransfer moves amount from giver to taker. override bypasses
// the insufficient-funds check. Returns an error wrapping
// boterr.ErrNoBalance if giver cannot afford it and override is false.
func (c *Currency) BalanceTransfer(ctx context.Context, giver, taker string, amount int64, override bool) error {
	return c.store.BalanceTransfer(ctx, c.channel, NormalizeUser(giver), NormalizeUser(taker), amount, override)
}
