package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/oxidizebot/oxidizebot-go/internal/boterr"
)

// Balance is one user's currency position in a channel.
type Balance struct {
	Channel   string
	User      string
	Amount    int64
	WatchTime time.Duration
}

// BalanceOf returns user's balance, or the zero Balance if they have
// never been credited.
func (s *Storage) BalanceOf(ctx context.Context, channel, user string) (Balance, error) {
	var amount, watchSecs int64
	err := s.getBalanceStmt.QueryRowContext(ctx, channel, user).Scan(&amount, &watchSecs)
	if err == sql.ErrNoRows {
		return Balance{Channel: channel, User: user}, nil
	}
	if err != nil {
		return Balance{}, err
	}
	return Balance{Channel: channel, User: user, Amount: amount, WatchTime: time.Duration(watchSecs) * time.Second}, nil
}

// BalanceAdd credits (or, with a negative amount, debits) a single
// user's balance.
func (s *Storage) BalanceAdd(ctx context.Context, channel, user string, amount int64) error {
	_, err := s.upsertBalanceStmt.ExecContext(ctx, channel, user, amount, int64(0))
	return err
}

// BalancesIncrement credits every user in users by amount, and bumps their accumulated watch time by watchTime, inside a
// single transaction — the periodic reward tick from the currency
// runner.
func (s *Storage) BalancesIncrement(ctx context.Context, channel string, users []string, amount int64, watchTime time.Duration) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`
			INSERT INTO balances (channel, user, amount, watch_time) VALUES (?, ?, ?, ?)
			ON CONFLICT(channel, user) DO UPDATE SET
				amount = amount + excluded.amount,
				watch_time = watch_time + excluded.watch_time
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, user := range users {
			if _, err := stmt.ExecContext(ctx, channel, user, amount, int64(watchTime.Seconds())); err != nil {
				return fmt.Errorf("increment %s: %w", user, err)
			}
		}
		return nil
	})
}

// BalanceTransfer atomically moves amount from giver to taker. Unless
// override is set, it refuses the transfer (without touching either
// balance) if giver's resulting balance would go negative, returning an
// error wrapping boterr.ErrNoBalance.
func (s *Storage) BalanceTransfer(ctx context.Context, channel, giver, taker string, amount int64, override bool) error {
	if amount <= 0 {
		return fmt.Errorf("storage: transfer amount must be positive, got %d", amount)
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var giverAmount int64
		err := tx.QueryRowContext(ctx, `SELECT amount FROM balances WHERE channel = ? AND user = ?`, channel, giver).Scan(&giverAmount)
		if err != nil && err != sql.ErrNoRows {
			return err
		}
		if !override && giverAmount < amount {
			return fmt.Errorf("storage: insufficient balance (have %d, need %d): %w", giverAmount, amount, boterr.ErrNoBalance)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO balances (channel, user, amount, watch_time) VALUES (?, ?, ?, 0)
			ON CONFLICT(channel, user) DO UPDATE SET amount = amount - ?
		`, channel, giver, -amount, amount); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO balances (channel, user, amount, watch_time) VALUES (?, ?, ?, 0)
			ON CONFLICT(channel, user) DO UPDATE SET amount = amount + excluded.amount
		`, channel, taker, amount); err != nil {
			return err
		}
		return nil
	})
}

// AllUsers returns every user with a recorded balance row in channel,
// the population the reward tick iterates over.
func (s *Storage) AllUsers(ctx context.Context, channel string) ([]string, error) {
	rows, err := s.conn.QueryContext(ctx, `SELECT user FROM balances WHERE channel = ?`, channel)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}
