package connectstream

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/oxidizebot/oxidizebot-go/pkg/models"
)

// BrowserBackend is the in-browser player backend: any number of
// browser tabs can connect over websocket, but exactly one is
// "active" at a time — the one driving playback. Priority arbitration
// is SessionPriority-style (internal/session/manager.go's default
// mode): the most recently connected client takes over as
// active, and the previous active client falls back to background
// on disconnect of the new one, it is in turn the most-recently-connected
// survivor that is promoted.
type BrowserBackend struct {
	upgrader websocket.Upgrader
	logger   *logrus.Logger

	mu       sync.Mutex
	clients  map[string]*browserClient
	order    []string // connection order, most recent last
	activeID string

	events chan Event
}

type browserClient struct {
	id   string
	conn *websocket.Conn
	send chan wireMessage
}

// wireMessage is the JSON envelope exchanged with a browser client in
// both directions.
type wireMessage struct {
	Kind   string       `json:"kind"`
	Volume uint32       `json:"volume,omitempty"`
	Item   *models.Item `json:"item,omitempty"`
}

// NewBrowserBackend builds an empty BrowserBackend. Register it as an
// http.Handler on the websocket endpoint to accept connections.
func NewBrowserBackend(logger *logrus.Logger) *BrowserBackend {
	if logger == nil {
		logger = logrus.New()
	}
	return &BrowserBackend{
		upgrader: websocket.Upgrader{ReadBufferSize: 4096, WriteBufferSize: 4096},
		logger:   logger,
		clients:  make(map[string]*browserClient),
		events:   make(chan Event, 16),
	}
}

// ServeHTTP upgrades the request to a websocket connection and
// registers it as a new client, immediately promoting it to active per
// SessionPriority.
func (b *BrowserBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.WithError(err).Warn("connectstream: websocket upgrade failed")
		return
	}

	c := &browserClient{id: uuid.NewString(), conn: conn, send: make(chan wireMessage, 16)}

	b.mu.Lock()
	b.clients[c.id] = c
	b.order = append(b.order, c.id)
	b.activeID = c.id
	b.mu.Unlock()

	b.emit(Event{Kind: DeviceChanged, Source: SourceDevice})

	go b.writePump(c)
	b.readPump(c)
}

func (b *BrowserBackend) writePump(c *browserClient) {
	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			b.logger.WithError(err).Debug("connectstream: write to browser client failed")
			return
		}
	}
}

func (b *BrowserBackend) readPump(c *browserClient) {
	defer b.disconnect(c)
	for {
		var msg wireMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}
		b.handleInbound(c, msg)
	}
}

func (b *BrowserBackend) handleInbound(c *browserClient, msg wireMessage) {
	b.mu.Lock()
	isActive := c.id == b.activeID
	b.mu.Unlock()
	if !isActive {
		return
	}

	switch msg.Kind {
	case "end-of-track":
		b.emit(Event{Kind: EndOfTrack, Source: SourceDevice})
	case "playing":
		b.emit(Event{Kind: Playing, Source: SourceDevice, Item: msg.Item})
	case "pausing":
		b.emit(Event{Kind: Pausing, Source: SourceDevice})
	case "volume-changed":
		b.emit(Event{Kind: VolumeChanged, Source: SourceDevice, Volume: msg.Volume})
	case "filtered":
		b.emit(Event{Kind: Filtered, Source: SourceDevice})
	default:
		b.logger.WithField("kind", msg.Kind).Debug("connectstream: unrecognized inbound browser message")
	}
}

func (b *BrowserBackend) disconnect(c *browserClient) {
	close(c.send)

	b.mu.Lock()
	delete(b.clients, c.id)
	for i, id := range b.order {
		if id == c.id {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
	wasActive := b.activeID == c.id
	var promoted string
	if wasActive {
		if len(b.order) > 0 {
			promoted = b.order[len(b.order)-1]
			b.activeID = promoted
		} else {
			b.activeID = ""
		}
	}
	b.mu.Unlock()

	if wasActive {
		if promoted != "" {
			b.emit(Event{Kind: DeviceChanged, Source: SourceDevice})
		} else {
			b.emit(Event{Kind: NotConfigured, Source: SourceDevice})
		}
	}
}

func (b *BrowserBackend) activeClient() *browserClient {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.activeID == "" {
		return nil
	}
	return b.clients[b.activeID]
}

func (b *BrowserBackend) sendCommand(ctx context.Context, msg wireMessage) error {
	c := b.activeClient()
	if c == nil {
		return fmt.Errorf("connectstream: no browser client connected")
	}
	select {
	case c.send <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(time.Second):
		return fmt.Errorf("connectstream: browser client send timed out")
	}
}

func (b *BrowserBackend) Play(ctx context.Context, item *models.Item) error {
	return b.sendCommand(ctx, wireMessage{Kind: "play", Item: item})
}

func (b *BrowserBackend) Pause(ctx context.Context) error {
	return b.sendCommand(ctx, wireMessage{Kind: "pause"})
}

func (b *BrowserBackend) Stop(ctx context.Context) error {
	return b.sendCommand(ctx, wireMessage{Kind: "stop"})
}

func (b *BrowserBackend) SetVolume(ctx context.Context, volume uint32) error {
	return b.sendCommand(ctx, wireMessage{Kind: "volume", Volume: volume})
}

func (b *BrowserBackend) Events() <-chan Event { return b.events }

func (b *BrowserBackend) Close() error {
	b.mu.Lock()
	clients := make([]*browserClient, 0, len(b.clients))
	for _, c := range b.clients {
		clients = append(clients, c)
	}
	b.mu.Unlock()

	for _, c := range clients {
		c.conn.Close()
	}
	return nil
}

func (b *BrowserBackend) emit(e Event) {
	select {
	case b.events <- e:
	default:
		b.logger.Warn("connectstream: dropped browser event for a full subscriber")
	}
}

// ClientCount reports how many browser clients are currently connected.
func (b *BrowserBackend) ClientCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

// ActiveClientID returns the id of the client currently driving
// playback, or "" if none are connected.
func (b *BrowserBackend) ActiveClientID() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.activeID
}
