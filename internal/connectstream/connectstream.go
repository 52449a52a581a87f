// Package connectstream presents a single interface over whichever
// playback backend is currently authoritative: the remote HTTP-controlled
// device, or a connected in-browser player reached over a websocket. The
// scheduler (internal/player) only ever talks to a Stream; it never knows
// which backend is behind it.
package connectstream

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/oxidizebot/oxidizebot-go/pkg/models"
)

// Source tags who originated a command or an inbound event: the
// scheduler itself, a chat user's explicit request, the backend device
// (e.g. someone pressed pause on a physical remote), or an automatic
// transition the bot made on its own (end-of-track advance).
type Source int

const (
	SourceScheduler Source = iota
	SourceChatUser
	SourceDevice
	SourceAutomatic
)

func (s Source) String() string {
	switch s {
	case SourceScheduler:
		return "scheduler"
	case SourceChatUser:
		return "chat-user"
	case SourceDevice:
		return "device"
	case SourceAutomatic:
		return "automatic"
	default:
		return "unknown"
	}
}

// EventKind enumerates the inbound notifications a Backend can raise.
type EventKind int

const (
	// EndOfTrack: the backend finished playing the current item on its
	// own; the scheduler should advance the queue.
	EndOfTrack EventKind = iota
	// DeviceChanged: playback moved to a different physical/browser
	// device than the one the bot was last driving.
	DeviceChanged
	// Filtered: the backend refused or skipped an item (e.g. region
	// lock, explicit-content filter).
	Filtered
	// Playing: playback started or resumed. Item is set when the backend
	// reports it (the HTTP device's polled status does not).
	Playing
	// Pausing: playback paused.
	Pausing
	// VolumeChanged: the volume was changed out from under the bot.
	VolumeChanged
	// NotConfigured: no backend is currently reachable.
	NotConfigured
)

func (k EventKind) String() string {
	switch k {
	case EndOfTrack:
		return "end-of-track"
	case DeviceChanged:
		return "device-changed"
	case Filtered:
		return "filtered"
	case Playing:
		return "playing"
	case Pausing:
		return "pausing"
	case VolumeChanged:
		return "volume-changed"
	case NotConfigured:
		return "not-configured"
	default:
		return "unknown"
	}
}

// Event is one notification raised by a Backend, tagged with the Source
// that caused it where that is knowable.
type Event struct {
	Kind   EventKind
	Source Source
	Item   *models.Item
	Volume uint32
}

// Backend is implemented by each concrete playback transport: the
// remote HTTP-controlled device and the in-browser websocket player.
type Backend interface {
	Play(ctx context.Context, item *models.Item) error
	Pause(ctx context.Context) error
	Stop(ctx context.Context) error
	SetVolume(ctx context.Context, volume uint32) error
	// Events returns a channel of inbound notifications. Stream stops
	// forwarding if it is closed; the backends in this package never
	// close it and report an unreachable device with a NotConfigured
	// event instead.
	Events() <-chan Event
	Close() error
}

// Stream is the uniform façade PlayerInternal drives. It wraps whichever
// Backend is currently active and re-multiplexes that backend's event
// channel onto a single stable channel, so callers never have to resubscribe
// when the active backend changes underneath them.
type Stream struct {
	mu      sync.Mutex
	active  Backend
	events  chan Event
	cancel  func()
	logger  *logrus.Logger
}

// New builds an empty Stream with no active backend. Commands sent
// before SetBackend is called return an error and also emit a
// NotConfigured event on the event channel, matching how a
// disconnected remote device looks to the scheduler.
func New(logger *logrus.Logger) *Stream {
	if logger == nil {
		logger = logrus.New()
	}
	return &Stream{events: make(chan Event, 16), logger: logger}
}

// SetBackend swaps the active backend, closing the previous one (if
// any) and starting to forward its events. Passing nil detaches the
// current backend without installing a replacement.
func (s *Stream) SetBackend(b Backend) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if s.active != nil {
		if err := s.active.Close(); err != nil {
			s.logger.WithError(err).Warn("connectstream: error closing previous backend")
		}
	}
	s.active = b
	if b == nil {
		return
	}

	done := make(chan struct{})
	s.cancel = func() { close(done) }
	go s.pump(b, done)
}

func (s *Stream) pump(b Backend, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case e, ok := <-b.Events():
			if !ok {
				return
			}
			select {
			case s.events <- e:
			default:
				s.logger.Warn("connectstream: dropped event for a full subscriber")
			}
		}
	}
}

// Recv returns the stable event channel. It is never closed by Stream
// itself; it lives for the Stream's lifetime.
func (s *Stream) Recv() <-chan Event { return s.events }

// emitNotConfigured is used by the command methods below when no
// backend is active, so a caller selecting on Recv() still observes a
// NotConfigured notification instead of silently doing nothing.
func (s *Stream) emitNotConfigured(source Source) {
	select {
	case s.events <- Event{Kind: NotConfigured, Source: source}:
	default:
	}
}

func (s *Stream) Play(ctx context.Context, item *models.Item) error {
	s.mu.Lock()
	b := s.active
	s.mu.Unlock()
	if b == nil {
		s.emitNotConfigured(SourceScheduler)
		return fmt.Errorf("connectstream: no backend configured")
	}
	return b.Play(ctx, item)
}

func (s *Stream) Pause(ctx context.Context) error {
	s.mu.Lock()
	b := s.active
	s.mu.Unlock()
	if b == nil {
		s.emitNotConfigured(SourceScheduler)
		return fmt.Errorf("connectstream: no backend configured")
	}
	return b.Pause(ctx)
}

func (s *Stream) Stop(ctx context.Context) error {
	s.mu.Lock()
	b := s.active
	s.mu.Unlock()
	if b == nil {
		s.emitNotConfigured(SourceScheduler)
		return fmt.Errorf("connectstream: no backend configured")
	}
	return b.Stop(ctx)
}

func (s *Stream) SetVolume(ctx context.Context, volume uint32) error {
	s.mu.Lock()
	b := s.active
	s.mu.Unlock()
	if b == nil {
		s.emitNotConfigured(SourceScheduler)
		return fmt.Errorf("connectstream: no backend configured")
	}
	return b.SetVolume(ctx, volume)
}

// Configured reports whether a backend is currently active.
func (s *Stream) Configured() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active != nil
}

// Close detaches and closes the active backend, if any.
func (s *Stream) Close() error {
	s.SetBackend(nil)
	return nil
}
