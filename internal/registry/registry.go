// Package registry wraps internal/matcher around the three
// template-bearing entities the data model stores: aliases, commands,
// and themes. Each gets its own Matcher[T] instance, loaded from
// storage at startup and kept live through Put/Delete.
package registry

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"text/template"

	"github.com/oxidizebot/oxidizebot-go/internal/matcher"
	"github.com/oxidizebot/oxidizebot-go/internal/storage"
	"github.com/oxidizebot/oxidizebot-go/internal/trackid"
)

// compilePattern decides how a stored pattern string indexes: an empty
// pattern matches its entry's name verbatim (PatternName), anything
// else compiles as a per-channel regex.
func compilePattern(pattern string) (matcher.PatternKind, *regexp.Regexp, error) {
	if pattern == "" {
		return matcher.PatternName, nil, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return 0, nil, fmt.Errorf("registry: compile pattern %q: %w", pattern, err)
	}
	return matcher.PatternRegex, re, nil
}

// Alias adapts an AliasRow into a Matchable.
type Alias struct {
	storage.AliasRow
	kind matcher.PatternKind
	re   *regexp.Regexp
}

func (a Alias) MatchKey() matcher.Key { return matcher.Key{Channel: a.Channel, Name: strings.ToLower(a.Name)} }
func (a Alias) MatchPattern() (matcher.PatternKind, *regexp.Regexp) { return a.kind, a.re }

// Render executes the alias template against captures rendered from a
// successful match.
func (a Alias) Render(captures map[string]interface{}) (string, error) {
	return renderTemplate(a.Name, a.Template, captures)
}

// Aliases is the live, storage-backed alias registry.
type Aliases struct {
	store *storage.Storage
	m     *matcher.Matcher[Alias]
}

// OpenAliases loads every alias row into a fresh Matcher.
func OpenAliases(ctx context.Context, store *storage.Storage) (*Aliases, error) {
	a := &Aliases{store: store, m: matcher.New[Alias]()}
	if err := a.Reload(ctx); err != nil {
		return nil, err
	}
	return a, nil
}

// Reload re-reads every alias from storage.
func (a *Aliases) Reload(ctx context.Context) error {
	rows, err := a.store.ListAliases(ctx)
	if err != nil {
		return fmt.Errorf("registry: list aliases: %w", err)
	}
	m := matcher.New[Alias]()
	for _, row := range rows {
		if row.Disabled {
			continue
		}
		kind, re, err := compilePattern(row.Pattern)
		if err != nil {
			continue
		}
		m.Insert(Alias{AliasRow: row, kind: kind, re: re})
	}
	a.m = m
	return nil
}

// Put persists an alias and reloads the live index.
func (a *Aliases) Put(ctx context.Context, row storage.AliasRow) error {
	if err := a.store.PutAlias(ctx, row); err != nil {
		return fmt.Errorf("registry: put alias: %w", err)
	}
	return a.Reload(ctx)
}

// Delete removes an alias and reloads the live index.
func (a *Aliases) Delete(ctx context.Context, channel, name string) error {
	if err := a.store.DeleteAlias(ctx, channel, name); err != nil {
		return fmt.Errorf("registry: delete alias: %w", err)
	}
	return a.Reload(ctx)
}

// Resolve finds the alias matching firstWord/fullMessage in channel and
// renders its template against the match.
func (a *Aliases) Resolve(channel, firstWord, fullMessage string) (string, bool, error) {
	value, captures, ok := a.m.Resolve(channel, firstWord, fullMessage)
	if !ok {
		return "", false, nil
	}
	rendered, err := value.Render(captures.Render())
	if err != nil {
		return "", true, err
	}
	return rendered, true, nil
}

// Command adapts a CommandRow into a Matchable.
type Command struct {
	storage.CommandRow
	kind matcher.PatternKind
	re   *regexp.Regexp
}

func (c Command) MatchKey() matcher.Key {
	return matcher.Key{Channel: c.Channel, Name: strings.ToLower(c.Name)}
}
func (c Command) MatchPattern() (matcher.PatternKind, *regexp.Regexp) { return c.kind, c.re }

// Render executes the command template against captures from a match.
func (c Command) Render(captures map[string]interface{}) (string, error) {
	return renderTemplate(c.Name, c.Template, captures)
}

// Commands is the live, storage-backed custom-command registry.
type Commands struct {
	store *storage.Storage
	m     *matcher.Matcher[Command]
}

// OpenCommands loads every command row into a fresh Matcher.
func OpenCommands(ctx context.Context, store *storage.Storage) (*Commands, error) {
	c := &Commands{store: store, m: matcher.New[Command]()}
	if err := c.Reload(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// Reload re-reads every command from storage.
func (c *Commands) Reload(ctx context.Context) error {
	rows, err := c.store.ListCommands(ctx)
	if err != nil {
		return fmt.Errorf("registry: list commands: %w", err)
	}
	m := matcher.New[Command]()
	for _, row := range rows {
		if row.Disabled {
			continue
		}
		kind, re, err := compilePattern(row.Pattern)
		if err != nil {
			continue
		}
		m.Insert(Command{CommandRow: row, kind: kind, re: re})
	}
	c.m = m
	return nil
}

// Put persists a command and reloads the live index.
func (c *Commands) Put(ctx context.Context, row storage.CommandRow) error {
	if err := c.store.PutCommand(ctx, row); err != nil {
		return fmt.Errorf("registry: put command: %w", err)
	}
	return c.Reload(ctx)
}

// Delete removes a command and reloads the live index.
func (c *Commands) Delete(ctx context.Context, channel, name string) error {
	if err := c.store.DeleteCommand(ctx, channel, name); err != nil {
		return fmt.Errorf("registry: delete command: %w", err)
	}
	return c.Reload(ctx)
}

// Resolve finds the command matching firstWord/fullMessage in channel
// and renders its template against the match.
func (c *Commands) Resolve(channel, firstWord, fullMessage string) (string, bool, error) {
	value, captures, ok := c.m.Resolve(channel, firstWord, fullMessage)
	if !ok {
		return "", false, nil
	}
	rendered, err := value.Render(captures.Render())
	if err != nil {
		return "", true, err
	}
	return rendered, true, nil
}

// Theme adapts a ThemeRow into a Matchable: a named trigger that
// injects a track_id into the player with a sideline policy, the same
// way a queued song would be, but chat-triggered rather than
// requested.
type Theme struct {
	storage.ThemeRow
}

func (t Theme) MatchKey() matcher.Key {
	return matcher.Key{Channel: t.Channel, Name: strings.ToLower(t.Name)}
}

// MatchPattern is always PatternName: themes are triggered by exact
// command name, never by regex.
func (t Theme) MatchPattern() (matcher.PatternKind, *regexp.Regexp) { return matcher.PatternName, nil }

// ID parses the theme's stored track id.
func (t Theme) ID() (trackid.ID, error) { return trackid.Parse(t.TrackID) }

// Themes is the live, storage-backed theme registry.
type Themes struct {
	store *storage.Storage
	m     *matcher.Matcher[Theme]
}

// OpenThemes loads every theme row into a fresh Matcher.
func OpenThemes(ctx context.Context, store *storage.Storage) (*Themes, error) {
	t := &Themes{store: store, m: matcher.New[Theme]()}
	if err := t.Reload(ctx); err != nil {
		return nil, err
	}
	return t, nil
}

// Reload re-reads every theme from storage.
func (t *Themes) Reload(ctx context.Context) error {
	rows, err := t.store.ListThemes(ctx)
	if err != nil {
		return fmt.Errorf("registry: list themes: %w", err)
	}
	m := matcher.New[Theme]()
	for _, row := range rows {
		if row.Disabled {
			continue
		}
		m.Insert(Theme{ThemeRow: row})
	}
	t.m = m
	return nil
}

// Put persists a theme and reloads the live index.
func (t *Themes) Put(ctx context.Context, row storage.ThemeRow) error {
	if err := t.store.PutTheme(ctx, row); err != nil {
		return fmt.Errorf("registry: put theme: %w", err)
	}
	return t.Reload(ctx)
}

// Delete removes a theme and reloads the live index.
func (t *Themes) Delete(ctx context.Context, channel, name string) error {
	if err := t.store.DeleteTheme(ctx, channel, name); err != nil {
		return fmt.Errorf("registry: delete theme: %w", err)
	}
	return t.Reload(ctx)
}

// Lookup finds the theme named name in channel, by exact match only.
func (t *Themes) Lookup(channel, name string) (Theme, bool) {
	return t.m.Get(matcher.Key{Channel: channel, Name: strings.ToLower(name)})
}

// renderTemplate executes tmpl as a text/template against captures,
// degrading to the raw template text on any parse or execution error
// rather than failing the calling command.
func renderTemplate(name, tmpl string, captures map[string]interface{}) (string, error) {
	t, err := template.New(name).Parse(tmpl)
	if err != nil {
		return tmpl, nil
	}
	var sb strings.Builder
	if err := t.Execute(&sb, captures); err != nil {
		return tmpl, nil
	}
	return sb.String(), nil
}
