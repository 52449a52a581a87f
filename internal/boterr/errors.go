// Package boterr defines the error taxonomy shared across the bot core.
//
// Errors are modeled as values, not exceptions: sentinel kinds are wrapped
// with fmt.Errorf("...: %w", err) at every layer so callers can still
// errors.Is/errors.As through to the root cause while commands fold
// everything down to a user-facing Respond at the boundary.
package boterr

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel kinds. Compare with errors.Is, not ==, since these are always
// wrapped on their way up through a call stack.
var (
	// ErrNotConfigured means a required dependency is absent from the
	// Injector (no database, no player, no token, ...).
	ErrNotConfigured = errors.New("not configured")
	// ErrUnauthorized means an upstream token is missing or expired.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrDuplicate means a requested track is already queued or was
	// played within the configured duplicate-duration window.
	ErrDuplicate = errors.New("duplicate")
	// ErrNoBalance means a currency transfer was attempted without
	// sufficient funds and override_balance was not set.
	ErrNoBalance = errors.New("no balance")
	// ErrNoPlayback means there is no current playback backend able to
	// honor a command.
	ErrNoPlayback = errors.New("no playback")
	// ErrEmpty means a command has already sent its own response (an
	// auth failure, typically) and the caller should fail silently
	// rather than send anything further.
	ErrEmpty = errors.New("empty")
	// ErrClosed means the owning component has shut down.
	ErrClosed = errors.New("closed")
	// ErrTransient marks an error a long-running loop should retry with
	// backoff rather than give up on.
	ErrTransient = errors.New("transient")
	// ErrFatal marks an invariant violation; the owning task should
	// terminate rather than continue operating on corrupted state.
	ErrFatal = errors.New("fatal")
)

// QueueFullError is returned when a non-streamer has reached their
// per-user queue length limit.
type QueueFullError struct {
	Limit int
}

func (e *QueueFullError) Error() string {
	return fmt.Sprintf("queue full (limit %d)", e.Limit)
}

// NewQueueFull builds a QueueFullError.
func NewQueueFull(limit int) error { return &QueueFullError{Limit: limit} }

// BadArgumentError carries enough structure to build a labelled chat
// response for a command-argument parse failure.
type BadArgumentError struct {
	Label  string
	Value  string
	Reason string
}

func (e *BadArgumentError) Error() string {
	return fmt.Sprintf("bad argument %q (value %q): %s", e.Label, e.Value, e.Reason)
}

// NewBadArgument builds a BadArgumentError.
func NewBadArgument(label, value, reason string) error {
	return &BadArgumentError{Label: label, Value: value, Reason: reason}
}

// RespondError is the designated carrier for "fail with this user-visible
// chat message". Commands convert internal errors into a RespondError at
// the boundary so raw upstream error text never reaches chat.
type RespondError struct {
	Message string
}

func (e *RespondError) Error() string { return e.Message }

// Respond builds a RespondError with the given chat-facing message.
func Respond(format string, args ...any) error {
	return &RespondError{Message: fmt.Sprintf(format, args...)}
}

// CooldownError is returned by scope cooldown checks; Remaining is the
// time left before the scope may be exercised again.
type CooldownError struct {
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("cooldown in effect for %s", CompactDuration(e.Remaining))
}

// CompactDuration renders a duration the way chat responses do: "25s",
// "3m12s", "1h4m", dropping units that are zero and never showing
// sub-second precision.
func CompactDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Round(time.Second)

	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	switch {
	case h > 0 && m > 0:
		return fmt.Sprintf("%dh%dm", h, m)
	case h > 0:
		return fmt.Sprintf("%dh", h)
	case m > 0 && s > 0:
		return fmt.Sprintf("%dm%ds", m, s)
	case m > 0:
		return fmt.Sprintf("%dm", m)
	default:
		return fmt.Sprintf("%ds", s)
	}
}
