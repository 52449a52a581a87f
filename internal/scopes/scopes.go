// Package scopes implements the closed Scope/Role enumerations and the
// scope<->role many-to-many authorization table described in the data
// model, backed by internal/storage's scopes table.
package scopes

import (
	"context"
	"fmt"
	"sync"

	"github.com/oxidizebot/oxidizebot-go/internal/storage"
)

// Scope is a closed permission identifier checked by Command Context
// before running a guarded command.
type Scope string

const (
	PlayerDetach  Scope = "player/detach"
	Clip          Scope = "clip"
	Poll          Scope = "poll"
	Song          Scope = "song"
	SwearJar      Scope = "swearjar"
	CurrencyShow  Scope = "currency/show"
	AfterStream   Scope = "after-stream"
	Promote       Scope = "promote"
	// BypassCooldowns, when granted, exempts a role from every
	// scope's cooldown check entirely.
	BypassCooldowns Scope = "bypass-cooldowns"
)

// Role is a closed coarse authorization tier, generally derived from
// chat platform badges.
type Role string

const (
	Streamer   Role = "streamer"
	Moderator  Role = "moderator"
	Subscriber Role = "subscriber"
	Other      Role = "other"
	Everyone   Role = "@everyone"
)

// User identifies a chat participant and the roles they hold in a
// channel.
type User struct {
	Login string
	Roles []Role
}

// HasRole reports whether u holds role r.
func (u User) HasRole(r Role) bool {
	for _, have := range u.Roles {
		if have == r {
			return true
		}
	}
	return false
}

// DefaultAssignments is the baseline scope->role grant table installed
// by Seed: the streamer can do everything, moderators get the
// channel-management scopes, subscribers and everyone else get the
// lightweight, always-safe ones.
func DefaultAssignments() map[Scope][]Role {
	return map[Scope][]Role{
		PlayerDetach:    {Streamer, Moderator},
		Clip:            {Streamer, Moderator, Subscriber},
		Poll:            {Streamer, Moderator},
		Song:            {Streamer, Moderator, Subscriber, Other},
		SwearJar:        {Streamer, Moderator},
		CurrencyShow:    {Streamer, Moderator, Subscriber, Other, Everyone},
		AfterStream:     {Streamer, Moderator},
		Promote:         {Streamer, Moderator},
		BypassCooldowns: {Streamer, Moderator},
	}
}

// Registry checks role membership against the persisted scopes table,
// with a read-through cache invalidated on every Assign/Revoke.
type Registry struct {
	store *storage.Storage

	mu    sync.RWMutex
	cache map[Scope]map[Role]bool
}

// New builds a Registry over store.
func New(store *storage.Storage) *Registry {
	return &Registry{store: store, cache: make(map[Scope]map[Role]bool)}
}

// Seed idempotently installs DefaultAssignments, for first-run
// bootstrap. Safe to call on every startup.
func (r *Registry) Seed(ctx context.Context) error {
	for scope, roles := range DefaultAssignments() {
		for _, role := range roles {
			if err := r.Assign(ctx, scope, role); err != nil {
				return err
			}
		}
	}
	return nil
}

// Assign grants role the scope, persisting it and invalidating the
// cache entry for scope.
func (r *Registry) Assign(ctx context.Context, scope Scope, role Role) error {
	if err := r.store.AssignScope(ctx, string(scope), string(role)); err != nil {
		return fmt.Errorf("scopes: assign %s to %s: %w", scope, role, err)
	}
	r.invalidate(scope)
	return nil
}

// Revoke removes a previously granted scope/role pairing.
func (r *Registry) Revoke(ctx context.Context, scope Scope, role Role) error {
	if err := r.store.RevokeScope(ctx, string(scope), string(role)); err != nil {
		return fmt.Errorf("scopes: revoke %s from %s: %w", scope, role, err)
	}
	r.invalidate(scope)
	return nil
}

// HasScope reports whether any of roles has been granted scope.
func (r *Registry) HasScope(ctx context.Context, roles []Role, scope Scope) (bool, error) {
	granted, err := r.rolesFor(ctx, scope)
	if err != nil {
		return false, err
	}
	for _, role := range roles {
		if granted[role] {
			return true, nil
		}
	}
	return false, nil
}

func (r *Registry) rolesFor(ctx context.Context, scope Scope) (map[Role]bool, error) {
	r.mu.RLock()
	cached, ok := r.cache[scope]
	r.mu.RUnlock()
	if ok {
		return cached, nil
	}

	names, err := r.store.RolesForScope(ctx, string(scope))
	if err != nil {
		return nil, fmt.Errorf("scopes: load roles for %s: %w", scope, err)
	}
	granted := make(map[Role]bool, len(names))
	for _, name := range names {
		granted[Role(name)] = true
	}

	r.mu.Lock()
	r.cache[scope] = granted
	r.mu.Unlock()
	return granted, nil
}

func (r *Registry) invalidate(scope Scope) {
	r.mu.Lock()
	delete(r.cache, scope)
	r.mu.Unlock()
}
