// Package commandctx implements the per-invocation Context a matched
// chat command handler runs with: the invoking user, argument parsing,
// scope/cooldown enforcement, and the message-hook registry used by
// stateful multi-message commands like an active poll.
package commandctx

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oxidizebot/oxidizebot-go/internal/boterr"
	"github.com/oxidizebot/oxidizebot-go/internal/chat"
	"github.com/oxidizebot/oxidizebot-go/internal/scopes"
)

// Args is a cursor over a command line's whitespace-separated words,
// consumed left to right by a handler.
type Args struct {
	words []string
	pos   int
}

// NewArgs splits line on whitespace into an Args cursor.
func NewArgs(line string) *Args {
	return &Args{words: strings.Fields(line)}
}

// Next returns the next word, or ("", false) if exhausted.
func (a *Args) Next() (string, bool) {
	if a.pos >= len(a.words) {
		return "", false
	}
	w := a.words[a.pos]
	a.pos++
	return w, true
}

// Rest returns every remaining word re-joined with single spaces,
// consuming the whole cursor.
func (a *Args) Rest() string {
	if a.pos >= len(a.words) {
		return ""
	}
	rest := strings.Join(a.words[a.pos:], " ")
	a.pos = len(a.words)
	return rest
}

// NextStr requires a next word to exist, failing with a labelled error
// otherwise.
func (a *Args) NextStr(label string) (string, error) {
	w, ok := a.Next()
	if !ok {
		return "", boterr.NewBadArgument(label, "", "missing argument")
	}
	return w, nil
}

// NextParse consumes the next word and parses it as T, failing with a
// labelled error on a missing argument or a parse failure.
func NextParse[T any](a *Args, label string) (T, error) {
	var zero T
	w, ok := a.Next()
	if !ok {
		return zero, boterr.NewBadArgument(label, "", "missing argument")
	}
	return parseAs[T](label, w)
}

// RestParse consumes every remaining word and parses it as T.
func RestParse[T any](a *Args, label string) (T, error) {
	var zero T
	rest := a.Rest()
	if rest == "" {
		return zero, boterr.NewBadArgument(label, "", "missing argument")
	}
	return parseAs[T](label, rest)
}

func parseAs[T any](label, value string) (T, error) {
	var v T
	if _, err := fmt.Sscan(value, &v); err != nil {
		return v, boterr.NewBadArgument(label, value, "could not be parsed")
	}
	return v, nil
}

// HookID identifies an installed message hook for later removal.
type HookID int64

// Hook inspects a chat message seen after normal command dispatch.
// Returning false causes the hook to be removed automatically.
type Hook func(ctx context.Context, user, channel, message string) bool

// HookRegistry holds hooks installed by in-progress multi-message
// commands (an active !poll collecting votes, say).
type HookRegistry struct {
	mu     sync.Mutex
	nextID HookID
	hooks  map[HookID]Hook
}

// NewHookRegistry builds an empty registry.
func NewHookRegistry() *HookRegistry {
	return &HookRegistry{hooks: make(map[HookID]Hook)}
}

// Insert installs h and returns its id.
func (r *HookRegistry) Insert(h Hook) HookID {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	id := r.nextID
	r.hooks[id] = h
	return id
}

// Remove uninstalls the hook with id, if still present.
func (r *HookRegistry) Remove(id HookID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.hooks, id)
}

// Dispatch runs every installed hook against message, after normal
// command dispatch has already completed; it never blocks or affects
// that dispatch. Hooks returning false are removed.
func (r *HookRegistry) Dispatch(ctx context.Context, user, channel, message string) {
	r.mu.Lock()
	snapshot := make(map[HookID]Hook, len(r.hooks))
	for id, h := range r.hooks {
		snapshot[id] = h
	}
	r.mu.Unlock()

	for id, h := range snapshot {
		if !h(ctx, user, channel, message) {
			r.Remove(id)
		}
	}
}

// Cooldowns tracks, per scope, the last instant it was successfully
// exercised. It is shared across every Context created for a channel so
// a cooldown rate-limits the scope globally, not per user.
type Cooldowns struct {
	mu       sync.Mutex
	duration time.Duration
	last     map[scopes.Scope]time.Time
}

// NewCooldowns builds a Cooldowns enforcing duration between successful
// uses of any single scope.
func NewCooldowns(duration time.Duration) *Cooldowns {
	return &Cooldowns{duration: duration, last: make(map[scopes.Scope]time.Time)}
}

// Check reports whether scope's cooldown has elapsed as of now, and if
// not, how much longer remains.
func (c *Cooldowns) Check(scope scopes.Scope, now time.Time) (ok bool, remaining time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	last, ok := c.last[scope]
	if !ok {
		return true, 0
	}
	elapsed := now.Sub(last)
	if elapsed >= c.duration {
		return true, 0
	}
	return false, c.duration - elapsed
}

// Poke records now as the last successful use of scope.
func (c *Cooldowns) Poke(scope scopes.Scope, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last[scope] = now
}

// Context is built fresh for each chat message matched to a command
// handler.
type Context struct {
	User    scopes.User
	Channel string
	Args    *Args

	messages              chat.Sender
	scopeRegistry         *scopes.Registry
	cooldowns             *Cooldowns
	hooks                 *HookRegistry
	authFailedRudeMessage string
}

// New builds a Context for one invocation.
func New(user scopes.User, channel, argline string, messages chat.Sender, scopeRegistry *scopes.Registry, cooldowns *Cooldowns, hooks *HookRegistry, authFailedRudeMessage string) *Context {
	if authFailedRudeMessage == "" {
		authFailedRudeMessage = "You don't have permission to do that."
	}
	return &Context{
		User:                  user,
		Channel:               channel,
		Args:                  NewArgs(argline),
		messages:              messages,
		scopeRegistry:         scopeRegistry,
		cooldowns:             cooldowns,
		hooks:                 hooks,
		authFailedRudeMessage: authFailedRudeMessage,
	}
}

// Hooks exposes the hook registry so a handler can install a follow-up
// hook (e.g. to collect poll votes).
func (c *Context) Hooks() *HookRegistry { return c.hooks }

// Respond sends message to the invoking channel, if a sink is
// configured.
func (c *Context) Respond(ctx context.Context, message string) error {
	if c.messages == nil {
		return nil
	}
	return c.messages.Privmsg(ctx, c.Channel, message)
}

// CheckScope implements the three-step authorization algorithm: deny
// and respond rudely if the user lacks scope outright; succeed
// immediately if the user holds BypassCooldowns; otherwise enforce (and
// poke) the shared per-scope cooldown.
func (c *Context) CheckScope(ctx context.Context, scope scopes.Scope) error {
	has, err := c.scopeRegistry.HasScope(ctx, c.User.Roles, scope)
	if err != nil {
		return fmt.Errorf("commandctx: check scope %s: %w", scope, err)
	}
	if !has {
		c.Respond(ctx, c.authFailedRudeMessage)
		return boterr.ErrEmpty
	}

	bypass, err := c.scopeRegistry.HasScope(ctx, c.User.Roles, scopes.BypassCooldowns)
	if err != nil {
		return fmt.Errorf("commandctx: check bypass-cooldowns: %w", err)
	}
	if bypass {
		return nil
	}

	if c.cooldowns == nil {
		return nil
	}
	now := time.Now()
	ok, remaining := c.cooldowns.Check(scope, now)
	if !ok {
		c.Respond(ctx, fmt.Sprintf("Cooldown in effect for %s", boterr.CompactDuration(remaining)))
		return &boterr.CooldownError{Remaining: remaining}
	}
	c.cooldowns.Poke(scope, now)
	return nil
}
