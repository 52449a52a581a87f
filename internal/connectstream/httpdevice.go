package connectstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/oxidizebot/oxidizebot-go/pkg/models"
)

// HTTPDevice drives a remote, physically-separate playback device (a
// smart speaker, a set-top box) over a small JSON/HTTP control API:
// POST commands, and a polled status endpoint standing in for push
// notifications the device can't send itself.
type HTTPDevice struct {
	client       *http.Client
	host         string
	pollInterval time.Duration
	logger       *logrus.Logger

	events chan Event
	cancel context.CancelFunc

	mu   sync.Mutex
	last deviceStatus
}

type deviceStatus struct {
	Playing  bool   `json:"playing"`
	TrackID  string `json:"trackId"`
	Volume   uint32 `json:"volume"`
	reported bool
}

// NewHTTPDevice builds an HTTPDevice polling host's /player/status
// endpoint every pollInterval (defaulting to 2s).
func NewHTTPDevice(host string, pollInterval time.Duration, logger *logrus.Logger) *HTTPDevice {
	if logger == nil {
		logger = logrus.New()
	}
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	d := &HTTPDevice{
		client:       &http.Client{Timeout: 5 * time.Second},
		host:         host,
		pollInterval: pollInterval,
		logger:       logger,
		events:       make(chan Event, 16),
		cancel:       cancel,
	}
	go d.pollLoop(ctx)
	return d
}

func (d *HTTPDevice) Events() <-chan Event { return d.events }

func (d *HTTPDevice) Close() error {
	d.cancel()
	return nil
}

func (d *HTTPDevice) Play(ctx context.Context, item *models.Item) error {
	return d.command(ctx, "play", item, 0)
}

func (d *HTTPDevice) Pause(ctx context.Context) error {
	return d.command(ctx, "pause", nil, 0)
}

func (d *HTTPDevice) Stop(ctx context.Context) error {
	return d.command(ctx, "stop", nil, 0)
}

func (d *HTTPDevice) SetVolume(ctx context.Context, volume uint32) error {
	return d.command(ctx, "volume", nil, volume)
}

type commandBody struct {
	Item   *models.Item `json:"item,omitempty"`
	Volume uint32       `json:"volume,omitempty"`
}

func (d *HTTPDevice) command(ctx context.Context, name string, item *models.Item, volume uint32) error {
	body, err := json.Marshal(commandBody{Item: item, Volume: volume})
	if err != nil {
		return fmt.Errorf("connectstream: marshal %s command: %w", name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.host+"/player/"+name, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("connectstream: build %s request: %w", name, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("connectstream: %s request failed: %w", name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("connectstream: %s returned status %d", name, resp.StatusCode)
	}
	return nil
}

func (d *HTTPDevice) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.poll(ctx)
		}
	}
}

func (d *HTTPDevice) poll(ctx context.Context) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.host+"/player/status", nil)
	if err != nil {
		return
	}
	resp, err := d.client.Do(req)
	if err != nil {
		d.emit(Event{Kind: NotConfigured, Source: SourceDevice})
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		d.emit(Event{Kind: NotConfigured, Source: SourceDevice})
		return
	}

	var status deviceStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		d.logger.WithError(err).Warn("connectstream: decode status response")
		return
	}
	status.reported = true
	d.diff(status)
}

// diff compares the freshly polled status against the previously
// observed one and emits the events implied by whatever changed.
func (d *HTTPDevice) diff(status deviceStatus) {
	d.mu.Lock()
	prev := d.last
	d.last = status
	d.mu.Unlock()

	if !prev.reported {
		return
	}
	if status.Playing && !prev.Playing {
		d.emit(Event{Kind: Playing, Source: SourceDevice})
	}
	if !status.Playing && prev.Playing {
		if status.TrackID == "" {
			d.emit(Event{Kind: EndOfTrack, Source: SourceDevice})
		} else {
			d.emit(Event{Kind: Pausing, Source: SourceDevice})
		}
	}
	if status.Volume != prev.Volume {
		d.emit(Event{Kind: VolumeChanged, Source: SourceDevice, Volume: status.Volume})
	}
	if status.TrackID != prev.TrackID && prev.TrackID != "" && status.TrackID != "" {
		d.emit(Event{Kind: DeviceChanged, Source: SourceDevice})
	}
}

func (d *HTTPDevice) emit(e Event) {
	select {
	case d.events <- e:
	default:
		d.logger.Warn("connectstream: dropped http device event for a full subscriber")
	}
}
