// Package songfile renders the current-song template to a configured
// filesystem path on each state change, writing a "stopped" template
// when nothing is playing. Used by streaming-software overlays that
// poll a text file rather than an API.
package songfile

import (
	"fmt"
	"os"
	"strings"
	"text/template"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/oxidizebot/oxidizebot-go/pkg/models"
)

// View is the template data made available to the rendered output.
type View struct {
	Title    string
	Artist   string
	Album    string
	User     string
	Elapsed  string
	Duration string
}

// Sink writes a rendered template to Path on each Update call.
type Sink struct {
	Path            string
	PlayingTemplate string
	StoppedTemplate string
	logger          *logrus.Logger
}

const defaultPlayingTemplate = `{{.Title}} by {{.Artist}}`
const defaultStoppedTemplate = `(no song playing)`

// New builds a Sink writing to path, using templates falling back to
// sensible defaults when empty.
func New(path, playingTemplate, stoppedTemplate string, logger *logrus.Logger) *Sink {
	if logger == nil {
		logger = logrus.New()
	}
	if playingTemplate == "" {
		playingTemplate = defaultPlayingTemplate
	}
	if stoppedTemplate == "" {
		stoppedTemplate = defaultStoppedTemplate
	}
	return &Sink{Path: path, PlayingTemplate: playingTemplate, StoppedTemplate: stoppedTemplate, logger: logger}
}

// Update renders item's view (or the stopped template if item is nil)
// and writes it to Path.
func (s *Sink) Update(item *models.Item, elapsed, duration time.Duration) error {
	rendered, err := s.render(item, elapsed, duration)
	if err != nil {
		return fmt.Errorf("songfile: render: %w", err)
	}
	if err := os.WriteFile(s.Path, []byte(rendered), 0644); err != nil {
		return fmt.Errorf("songfile: write %s: %w", s.Path, err)
	}
	return nil
}

func (s *Sink) render(item *models.Item, elapsed, duration time.Duration) (string, error) {
	if item == nil {
		t, err := template.New("stopped").Parse(s.StoppedTemplate)
		if err != nil {
			return s.StoppedTemplate, nil
		}
		var sb strings.Builder
		if err := t.Execute(&sb, nil); err != nil {
			return s.StoppedTemplate, nil
		}
		return sb.String(), nil
	}

	view := View{
		Title:    item.Metadata.Title,
		Artist:   item.Metadata.Artist,
		Album:    item.Metadata.Album,
		Elapsed:  compactDuration(elapsed),
		Duration: compactDuration(duration),
	}
	if item.RequestingUser != nil {
		view.User = *item.RequestingUser
	}

	t, err := template.New("playing").Parse(s.PlayingTemplate)
	if err != nil {
		return s.PlayingTemplate, nil
	}
	var sb strings.Builder
	if err := t.Execute(&sb, view); err != nil {
		return s.PlayingTemplate, nil
	}
	return sb.String(), nil
}

func compactDuration(d time.Duration) string {
	d = d.Round(time.Second)
	m := d / time.Minute
	s := (d % time.Minute) / time.Second
	return fmt.Sprintf("%d:%02d", m, s)
}
