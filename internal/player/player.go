// Package player implements PlayerInternal: the single-writer scheduler
// state machine that owns "what is currently playing", pulls the next
// song from the Mixer, and drives the connected playback backend.
package player

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/oxidizebot/oxidizebot-go/internal/boterr"
	"github.com/oxidizebot/oxidizebot-go/internal/bus"
	"github.com/oxidizebot/oxidizebot-go/internal/chat"
	"github.com/oxidizebot/oxidizebot-go/internal/connectstream"
	"github.com/oxidizebot/oxidizebot-go/internal/mixer"
	"github.com/oxidizebot/oxidizebot-go/internal/queue"
	"github.com/oxidizebot/oxidizebot-go/internal/setbac"
	"github.com/oxidizebot/oxidizebot-go/internal/song"
	"github.com/oxidizebot/oxidizebot-go/internal/songfile"
	"github.com/oxidizebot/oxidizebot-go/internal/trackid"
	"github.com/oxidizebot/oxidizebot-go/pkg/models"
)

// State is one of the four scheduler states.
type State int

const (
	NoneState State = iota
	Paused
	Playing
	Detached
)

func (s State) String() string {
	switch s {
	case NoneState:
		return "none"
	case Paused:
		return "paused"
	case Playing:
		return "playing"
	case Detached:
		return "detached"
	default:
		return "unknown"
	}
}

// Mode selects how the scheduler reacts to backend events.
type Mode int

const (
	// ModeQueue is the full scheduler described by the transition
	// table: the bot owns what plays next.
	ModeQueue Mode = iota
	// ModeDefault defers to whatever the backend itself decides to
	// play; the scheduler only observes and republishes events.
	ModeDefault
)

// SidelinePolicy controls what happens to the currently-playing song
// when a track is injected ahead of the normal schedule.
type SidelinePolicy int

const (
	// Sideline pushes the current song onto the mixer's sidelined
	// stack so it resumes (from where it left off) once the injected
	// song and anything already sidelined finishes.
	Sideline SidelinePolicy = iota
	// Replace discards the current song outright.
	Replace
)

// SongCurrent is published to the global bus on every transition of
// interest. TrackID/Track/User are empty when IsPlaying is false and
// nothing is current.
type SongCurrent struct {
	TrackID   string
	Track     *models.TrackMetadata
	User      string
	IsPlaying bool
	Elapsed   time.Duration
	Duration  time.Duration
}

// BusID caches one "latest song-current" entry.
func (SongCurrent) BusID() string { return "song-current" }

// SongProgress is published on a configured cadence while playing.
type SongProgress struct {
	TrackID  string
	Elapsed  time.Duration
	Duration time.Duration
}

func (SongProgress) BusID() string { return "song-progress" }

// Config holds the scheduler's tunables. Both fields may be updated at
// runtime via SetDuplicateDuration/SetQueueLimit as settings change.
type Config struct {
	Channel           string
	DuplicateDuration time.Duration
	QueueLimit        int
	ChatFeedback      bool
}

// Player is the scheduler. All exported methods are safe to call
// concurrently; the internal mutex serializes every state transition so
// the end-of-track timer firing can never race a concurrent Play/Pause/
// Skip/Inject command.
type Player struct {
	mu sync.Mutex

	mixer   *mixer.Mixer
	queue   *queue.Queue
	backend *connectstream.Stream
	chat    chat.Sender
	songBus *bus.Bus[SongCurrent]
	progBus *bus.Bus[SongProgress]
	songFile *songfile.Sink
	remote   *setbac.Sink
	logger   *logrus.Logger

	channel           string
	duplicateDuration time.Duration
	queueLimit        int
	chatFeedback      bool

	state    State
	mode     Mode
	detached bool
	current  *song.Song
}

// New builds a Player. songFile and remote may be nil to disable those
// sinks.
func New(m *mixer.Mixer, q *queue.Queue, backend *connectstream.Stream, sender chat.Sender, songBus *bus.Bus[SongCurrent], progBus *bus.Bus[SongProgress], songFile *songfile.Sink, remote *setbac.Sink, cfg Config, logger *logrus.Logger) *Player {
	if logger == nil {
		logger = logrus.New()
	}
	return &Player{
		mixer:             m,
		queue:             q,
		backend:           backend,
		chat:              sender,
		songBus:           songBus,
		progBus:           progBus,
		songFile:          songFile,
		remote:            remote,
		logger:            logger,
		channel:           cfg.Channel,
		duplicateDuration: cfg.DuplicateDuration,
		queueLimit:        cfg.QueueLimit,
		chatFeedback:      cfg.ChatFeedback,
		state:             NoneState,
		mode:              ModeQueue,
	}
}

// State reports the current scheduler state.
func (p *Player) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Current returns a snapshot of the currently-loaded song, or nil if
// nothing is current.
func (p *Player) Current() *song.Song {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// SongBus returns the bus SongCurrent transitions are published to, for
// subscribers like playerfuture's end-of-track timer arming.
func (p *Player) SongBus() *bus.Bus[SongCurrent] { return p.songBus }

// SetDuplicateDuration updates the duplicate-request guard window.
func (p *Player) SetDuplicateDuration(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.duplicateDuration = d
}

// SetQueueLimit updates the per-user pending-request cap.
func (p *Player) SetQueueLimit(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queueLimit = n
}

// SetMode switches between ModeQueue and ModeDefault.
func (p *Player) SetMode(mode Mode) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.mode = mode
}

// SetDetached toggles Detached state per the transition table: entering
// detached suppresses all backend commands from this point on;
// leaving it moves to Paused without auto-playing.
func (p *Player) SetDetached(ctx context.Context, detached bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if detached == p.detached {
		return
	}
	p.detached = detached

	if detached {
		p.state = Detached
		p.respond(ctx, "Player is detached!")
		return
	}

	if p.current != nil {
		p.state = Paused
	} else {
		p.state = NoneState
	}
}

// Enqueue validates and appends a request to the durable queue, per the
// duplicate-request and max-queue-length guards. streamer bypasses
// both.
func (p *Player) Enqueue(ctx context.Context, item models.Item, user string, streamer bool) error {
	if !streamer {
		within, err := p.queue.LastSongWithin(ctx, item.TrackID, p.dupDuration())
		if err != nil {
			return fmt.Errorf("player: duplicate check: %w", err)
		}
		if within || p.queueHasTrack(item.TrackID) {
			return boterr.ErrDuplicate
		}

		if limit := p.queueLimitFor(); limit > 0 && p.userPendingCount(user) >= limit {
			return boterr.NewQueueFull(limit)
		}
	}

	return p.queue.PushBack(ctx, item)
}

func (p *Player) dupDuration() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.duplicateDuration
}

func (p *Player) queueLimitFor() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queueLimit
}

func (p *Player) queueHasTrack(id trackid.ID) bool {
	for _, item := range p.queue.Snapshot() {
		if item.TrackID == id {
			return true
		}
	}
	return false
}

func (p *Player) userPendingCount(user string) int {
	n := 0
	for _, item := range p.queue.Snapshot() {
		if item.RequestingUser != nil && *item.RequestingUser == user {
			n++
		}
	}
	return n
}

// Play handles the command `Play`: from NoneState it pulls from the
// Mixer; from Paused it resumes the current song. Under ModeDefault the
// scheduler defers to the backend's own playback decisions: from
// NoneState nothing is pulled, and from Paused only the scheduler's own
// state returns to Playing (with the usual chat response and publish);
// no backend command is issued. See pullNextLocked and
// startPlayingLocked, which are the two choke points that gate every
// command-initiated mixer pull and backend.play on ModeQueue.
func (p *Player) Play(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == Detached {
		return nil
	}

	switch p.state {
	case NoneState:
		if !p.pullNextLocked(ctx) {
			if p.mode == ModeQueue {
				p.respondLocked(ctx, "Song queue is empty.")
			}
			return nil
		}
		return p.startPlayingLocked(ctx)
	case Paused:
		if p.current == nil {
			p.state = NoneState
			return nil
		}
		p.current.Play()
		return p.startPlayingLocked(ctx)
	default:
		return nil
	}
}

// Pause handles the command `Pause`. Under ModeDefault the backend owns
// the pause decision, so this never issues a backend command — see
// pullNextLocked's doc comment.
func (p *Player) Pause(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != Playing {
		return nil
	}
	p.current.Pause()
	p.state = Paused
	if p.mode == ModeQueue {
		if err := p.backend.Pause(ctx); err != nil {
			p.logger.WithError(err).Warn("player: backend pause failed")
		}
	}
	p.respondLocked(ctx, "Pausing playback.")
	p.publishLocked(ctx)
	return nil
}

// Skip discards whatever is current (if anything) and advances.
func (p *Player) Skip(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.current = nil
	p.state = NoneState
	p.respondLocked(ctx, "Skipping song.")
	if !p.pullNextLocked(ctx) {
		p.publishLocked(ctx)
		return nil
	}
	return p.startPlayingLocked(ctx)
}

// HandleEndOfTrack is invoked when the backend (or the end-of-track
// timer armed by PlaybackFuture) signals the current song finished.
func (p *Player) HandleEndOfTrack(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != Playing {
		return nil
	}
	p.current = nil
	p.state = NoneState
	if !p.pullNextLocked(ctx) {
		p.publishLocked(ctx)
		return nil
	}
	return p.startPlayingLocked(ctx)
}

// Inject places song ahead of the normal schedule. Under Sideline, the
// current song (if any) is pushed onto the mixer's sidelined stack so
// it resumes afterward; under Replace it is discarded outright.
func (p *Player) Inject(ctx context.Context, item models.Item, policy SidelinePolicy) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current != nil && policy == Sideline {
		p.current.Pause()
		p.mixer.PushSidelined(p.current)
	}
	p.current = song.New(item)
	return p.startPlayingLocked(ctx)
}

// pullNextLocked tries to pull a song from the mixer into p.current.
// Under ModeDefault the scheduler only observes the backend's own
// playback decisions (§4.9) rather than driving them, so it never pulls
// from the mixer itself; the only mixer-free way for p.current to
// change in that mode is an explicit Inject. Caller must hold p.mu.
func (p *Player) pullNextLocked(ctx context.Context) bool {
	if p.mode != ModeQueue {
		return false
	}
	s, ok, err := p.mixer.NextSong(ctx)
	if err != nil {
		p.logger.WithError(err).Warn("player: mixer pull failed")
		return false
	}
	if !ok {
		return false
	}
	p.current = s
	return true
}

// startPlayingLocked issues backend.play for p.current and publishes
// the resulting state. The backend.play command is only issued under
// ModeQueue: under ModeDefault the backend's own playback decisions are
// authoritative, so the scheduler updates its own bookkeeping (for
// chat/bus/sink reporting) without commanding the backend. Caller must
// hold p.mu.
func (p *Player) startPlayingLocked(ctx context.Context) error {
	if p.current == nil {
		p.state = NoneState
		return nil
	}
	p.current.Play()
	p.state = Playing

	if !p.detached && p.mode == ModeQueue {
		if err := p.backend.Play(ctx, itemPtr(p.current)); err != nil {
			p.logger.WithError(err).Warn("player: backend play failed")
		}
	}

	item := p.current.Item()
	user := ""
	if item.RequestingUser != nil {
		user = *item.RequestingUser
	}
	if user != "" {
		p.respondLocked(ctx, fmt.Sprintf("Now playing %s, requested by %s.", item.Metadata.Title, user))
	} else {
		p.respondLocked(ctx, fmt.Sprintf("Now playing %s.", item.Metadata.Title))
	}
	p.publishLocked(ctx)
	return nil
}

func itemPtr(s *song.Song) *models.Item {
	item := s.Item()
	return &item
}

// publishLocked emits SongCurrent to the bus and the song-file/remote
// sinks. Caller must hold p.mu.
func (p *Player) publishLocked(ctx context.Context) {
	var sc SongCurrent
	if p.current != nil {
		item := p.current.Item()
		sc = SongCurrent{
			TrackID:   item.TrackID.String(),
			Track:     &item.Metadata,
			IsPlaying: p.state == Playing,
			Elapsed:   p.current.Elapsed(),
			Duration:  p.current.Duration(),
		}
		if item.RequestingUser != nil {
			sc.User = *item.RequestingUser
		}
	}
	if p.songBus != nil {
		p.songBus.Send(sc)
	}

	if p.songFile != nil {
		var item *models.Item
		var elapsed, duration time.Duration
		if p.current != nil {
			it := p.current.Item()
			item = &it
			elapsed = p.current.Elapsed()
			duration = p.current.Duration()
		}
		if err := p.songFile.Update(item, elapsed, duration); err != nil {
			p.logger.WithError(err).Warn("player: song-file sink update failed")
		}
	}

	if p.remote != nil {
		var item *models.Item
		if p.current != nil {
			it := p.current.Item()
			item = &it
		}
		items := p.queue.Snapshot()
		if err := p.remote.Push(ctx, item, items); err != nil {
			p.logger.WithError(err).Warn("player: remote sink push failed")
		}
	}
}

// PublishProgress emits a SongProgress tick for the currently playing
// song. It is a no-op when nothing is playing. Called by PlaybackFuture
// on its periodic cadence.
func (p *Player) PublishProgress() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != Playing || p.current == nil || p.progBus == nil {
		return
	}
	item := p.current.Item()
	p.progBus.Send(SongProgress{
		TrackID:  item.TrackID.String(),
		Elapsed:  p.current.Elapsed(),
		Duration: p.current.Duration(),
	})
}

// respondLocked posts a chat feedback line if enabled and a sender is
// configured. Caller must hold p.mu.
func (p *Player) respondLocked(ctx context.Context, message string) {
	p.respond(ctx, message)
}

func (p *Player) respond(ctx context.Context, message string) {
	if !p.chatFeedback || p.chat == nil {
		return
	}
	if err := p.chat.Privmsg(ctx, p.channel, message); err != nil {
		p.logger.WithError(err).Warn("player: chat feedback send failed")
	}
}
