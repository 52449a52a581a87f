// Package setbac implements the remote telemetry sink: on every
// SongModified notification it POSTs the current song and queue
// snapshot to a configured HTTP endpoint, authenticating with either a
// shared-secret header or an OAuth2 bearer token.
package setbac

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/oxidizebot/oxidizebot-go/pkg/models"
)

// TokenSource supplies an OAuth2 bearer token, refreshed on demand.
// Implementations should force a refresh when asked, per the "retry
// once after Unauthorized" contract.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	ForceRefresh(ctx context.Context) error
}

// Sink posts player state to a remote host.
type Sink struct {
	client *http.Client
	host   string
	secret string
	tokens TokenSource
	logger *logrus.Logger
}

// Option configures a Sink.
type Option func(*Sink)

// WithSharedSecret authenticates outgoing requests with
// "Authorization: key:<secret>".
func WithSharedSecret(secret string) Option {
	return func(s *Sink) { s.secret = secret }
}

// WithTokenSource authenticates outgoing requests with an OAuth2
// bearer token, force-refreshed once on a 401 response.
func WithTokenSource(ts TokenSource) Option {
	return func(s *Sink) { s.tokens = ts }
}

// New builds a Sink posting to api/player under host.
func New(host string, logger *logrus.Logger, opts ...Option) *Sink {
	if logger == nil {
		logger = logrus.New()
	}
	s := &Sink{
		client: &http.Client{Timeout: 10 * time.Second},
		host:   host,
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// payload is the wire shape POSTed to api/player.
type payload struct {
	Current *models.Item  `json:"current"`
	Items   []models.Item `json:"items"`
}

// Push sends the current song (nil if idle) and the pending queue
// snapshot to the remote endpoint. On a 401, it force-refreshes the
// token source (if configured) and retries exactly once.
func (s *Sink) Push(ctx context.Context, current *models.Item, items []models.Item) error {
	body, err := json.Marshal(payload{Current: current, Items: items})
	if err != nil {
		return fmt.Errorf("setbac: marshal payload: %w", err)
	}

	status, err := s.post(ctx, body)
	if err != nil {
		return err
	}
	if status == http.StatusUnauthorized && s.tokens != nil {
		if refreshErr := s.tokens.ForceRefresh(ctx); refreshErr != nil {
			return fmt.Errorf("setbac: force refresh after 401: %w", refreshErr)
		}
		status, err = s.post(ctx, body)
		if err != nil {
			return err
		}
	}
	if status >= 300 {
		return fmt.Errorf("setbac: unexpected status %d", status)
	}
	return nil
}

func (s *Sink) post(ctx context.Context, body []byte) (int, error) {
	url := s.host + "/api/player"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("setbac: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if err := s.authenticate(ctx, req); err != nil {
		return 0, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("setbac: request failed: %w", err)
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}

func (s *Sink) authenticate(ctx context.Context, req *http.Request) error {
	if s.secret != "" {
		req.Header.Set("Authorization", "key:"+s.secret)
		return nil
	}
	if s.tokens != nil {
		token, err := s.tokens.Token(ctx)
		if err != nil {
			return fmt.Errorf("setbac: fetch token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return nil
}
