// Package song implements the play/pause timekeeping state machine that
// backs the player's notion of "how far into this track are we".
package song

import (
	"time"

	"github.com/oxidizebot/oxidizebot-go/pkg/models"
)

// State is the coarse playing/paused state derived from whether a run
// segment is currently open.
type State int

const (
	Paused State = iota
	Playing
)

func (s State) String() string {
	if s == Playing {
		return "playing"
	}
	return "paused"
}

// Song owns an Item and the timing state machine described in the data
// model: elapsed accumulates completed run segments, startedAt marks the
// wall-clock instant the current run began (zero when paused).
//
// Invariant: startedAt.IsZero() == (state is Paused). play()/pause() are
// idempotent against a clock that goes backwards — elapsed never
// decreases from either call.
type Song struct {
	item      models.Item
	elapsed   time.Duration
	startedAt time.Time
	now       func() time.Time
}

// New builds a Song for item, paused at zero elapsed.
func New(item models.Item) *Song {
	return &Song{item: item, now: time.Now}
}

// NewAt builds a Song with a pre-existing elapsed offset, still paused.
func NewAt(item models.Item, elapsed time.Duration) *Song {
	return &Song{item: item, elapsed: elapsed, now: time.Now}
}

// withClock overrides the time source, for deterministic tests.
func (s *Song) withClock(now func() time.Time) *Song {
	s.now = now
	return s
}

// Item returns the underlying immutable item.
func (s *Song) Item() models.Item { return s.item }

// Duration is the track's total length.
func (s *Song) Duration() time.Duration {
	return time.Duration(s.item.DurationSecs) * time.Second
}

// State reports Playing or Paused from the presence of startedAt.
func (s *Song) State() State {
	if s.startedAt.IsZero() {
		return Paused
	}
	return Playing
}

// Elapsed is the total time played: the folded elapsed plus the open run
// segment if one is active. Saturates at zero (a clock that runs
// backwards can never produce a negative elapsed).
func (s *Song) Elapsed() time.Duration {
	e := s.elapsed
	if !s.startedAt.IsZero() {
		if d := s.now().Sub(s.startedAt); d > 0 {
			e += d
		}
	}
	if e < 0 {
		e = 0
	}
	return e
}

// Remaining is Duration - Elapsed, saturating at zero when overdue
// (clock skew or a missed end-of-track tick).
func (s *Song) Remaining() time.Duration {
	r := s.Duration() - s.Elapsed()
	if r < 0 {
		return 0
	}
	return r
}

// Deadline is now + Remaining; used to arm the end-of-track timer.
func (s *Song) Deadline() time.Time {
	return s.now().Add(s.Remaining())
}

// Play folds any prior open run into elapsed (a no-op if already
// playing, since the fold is against the same startedAt) and opens a
// fresh run at now. Idempotent: calling Play twice in a row only resets
// the run's start instant, it never double-counts the interval between
// the two calls incorrectly because the fold happens before the reset.
func (s *Song) Play() {
	now := s.now()
	if !s.startedAt.IsZero() {
		if d := now.Sub(s.startedAt); d > 0 {
			s.elapsed += d
		}
	}
	s.startedAt = now
}

// Pause folds the open run into elapsed and clears startedAt. A second
// consecutive Pause is a no-op: elapsed is unchanged because startedAt
// is already zero.
func (s *Song) Pause() {
	if s.startedAt.IsZero() {
		return
	}
	now := s.now()
	if d := now.Sub(s.startedAt); d > 0 {
		s.elapsed += d
	}
	s.startedAt = time.Time{}
}
