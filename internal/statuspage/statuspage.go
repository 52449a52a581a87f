// Package statuspage exposes the bot's minimal health endpoint and,
// optionally, tunnels it through ngrok. The web UI proper is out of
// scope; this is only enough for an external uptime check to see the
// bot is alive.
package statuspage

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"golang.ngrok.com/ngrok/v2"

	"github.com/oxidizebot/oxidizebot-go/internal/config"
)

// Status reports whatever a caller wants surfaced at /healthz.
type Status struct {
	Connected bool      `json:"connected"`
	StartedAt time.Time `json:"startedAt"`
}

// StatusFunc produces the current Status on each request.
type StatusFunc func() Status

// Page serves /healthz and, when configured, forwards it through an
// ngrok tunnel.
type Page struct {
	cfg    config.StatuspageConfig
	status StatusFunc
	logger *logrus.Logger

	server *http.Server
	agent  ngrok.Agent
	tunnel ngrok.EndpointForwarder
}

// New builds a Page. status may be nil, in which case /healthz always
// reports Connected: true.
func New(cfg config.StatuspageConfig, status StatusFunc, logger *logrus.Logger) *Page {
	if logger == nil {
		logger = logrus.New()
	}
	if status == nil {
		status = func() Status { return Status{Connected: true, StartedAt: time.Now()} }
	}
	return &Page{cfg: cfg, status: status, logger: logger}
}

// Run starts the HTTP listener (and tunnel, if enabled) and blocks
// until ctx is done, then shuts both down.
func (p *Page) Run(ctx context.Context) error {
	if !p.cfg.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", p.handleHealthz)
	p.server = &http.Server{Addr: p.cfg.Addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		if err := p.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("statuspage: listen: %w", err)
			return
		}
		errCh <- nil
	}()

	if p.cfg.Ngrok.Enabled {
		if err := p.startTunnel(ctx); err != nil {
			p.logger.WithError(err).Warn("statuspage: ngrok tunnel did not start")
		}
	}

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if p.tunnel != nil {
		p.tunnel.Close()
	}
	return p.server.Shutdown(shutdownCtx)
}

func (p *Page) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s := p.status()
	w.Header().Set("Content-Type", "application/json")
	if !s.Connected {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	fmt.Fprintf(w, `{"connected":%t,"startedAt":%q}`, s.Connected, s.StartedAt.Format(time.RFC3339))
}

// startTunnel brings up an ngrok forwarder pointed at the status page's
// own listener, picking up NGROK_AUTHTOKEN from .env when the config
// leaves AuthToken blank.
func (p *Page) startTunnel(ctx context.Context) error {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			p.logger.WithError(err).Warn("statuspage: could not load .env")
		}
	}

	authToken := p.cfg.Ngrok.AuthToken
	if authToken == "" {
		authToken = os.Getenv("NGROK_AUTHTOKEN")
	}
	if authToken == "" {
		return fmt.Errorf("statuspage: ngrok auth token not found")
	}

	agent, err := ngrok.NewAgent(ngrok.WithAuthtoken(authToken))
	if err != nil {
		return fmt.Errorf("statuspage: ngrok agent: %w", err)
	}
	p.agent = agent

	var opts []ngrok.EndpointOption
	if p.cfg.Ngrok.Domain != "" {
		opts = append(opts, ngrok.WithURL(p.cfg.Ngrok.Domain))
	}

	tunnel, err := agent.Forward(ctx, ngrok.WithUpstream("http://"+p.cfg.Addr), opts...)
	if err != nil {
		return fmt.Errorf("statuspage: ngrok forward: %w", err)
	}
	p.tunnel = tunnel
	p.logger.WithField("url", tunnel.URL().String()).Info("statuspage: ngrok tunnel active")
	return nil
}

// PublicURL returns the tunnel's public URL, or "" if no tunnel is
// active.
func (p *Page) PublicURL() string {
	if p.tunnel == nil {
		return ""
	}
	return p.tunnel.URL().String()
}
