// Package matcher implements the dual-indexed registry of
// template-bearing entities (aliases, commands, promotions, themes):
// each entry owns a Key (channel, lowercased name) and a Pattern (exact
// name or per-channel regex), resolved against an incoming chat line by
// exact first-word lookup first, then regex scan.
//
// The three-coupled-maps-under-one-lock shape follows
// internal/auth/session.go's SessionManager and
// internal/session/manager.go's SessionManager: a short synchronous lock
// guarding a handful of related maps, never held across I/O.
package matcher

import (
	"regexp"
	"strconv"
	"strings"
	"sync"
)

// Key identifies one entry: the channel it's scoped to, and its
// lowercased name.
type Key struct {
	Channel string
	Name    string
}

// PatternKind distinguishes how an entry is matched.
type PatternKind int

const (
	PatternName PatternKind = iota
	PatternRegex
)

// Matchable is implemented by values the Matcher indexes.
type Matchable interface {
	MatchKey() Key
	MatchPattern() (PatternKind, *regexp.Regexp)
}

// Captures is the result of a successful resolve: either the remainder
// of the commandline after a matched name, or the groups of a matched
// regex.
type Captures struct {
	kind    PatternKind
	rest    string
	regex   *regexp.Regexp
	matches []string
	present []bool
}

// IsPrefix reports whether this capture came from a Name match.
func (c Captures) IsPrefix() bool { return c.kind == PatternName }

// Rest returns the remainder of the commandline after the matched name
// and any separating whitespace. Valid only when IsPrefix().
func (c Captures) Rest() string { return c.rest }

// Group returns capture group i (0 is the whole match) for a Regex
// match, or "" if the group did not participate. Valid only when
// !IsPrefix().
func (c Captures) Group(i int) string {
	if i < 0 || i >= len(c.matches) {
		return ""
	}
	return c.matches[i]
}

// Render builds the template-rendering view: Prefix serializes as
// {"rest": "<string>"}, Regex as {"0": whole, "1": group1, ...} with
// absent groups as null.
func (c Captures) Render() map[string]interface{} {
	if c.IsPrefix() {
		return map[string]interface{}{"rest": c.rest}
	}
	out := make(map[string]interface{}, len(c.matches))
	names := c.regex.SubexpNames()
	for i, m := range c.matches {
		var v interface{}
		if i < len(c.present) && c.present[i] {
			v = m
		}
		out[indexKey(i)] = v
		if i < len(names) && names[i] != "" {
			out[names[i]] = v
		}
	}
	return out
}

func indexKey(i int) string {
	return strconv.Itoa(i)
}

// Matcher is the registry. Zero value is not usable; use New.
type Matcher[T Matchable] struct {
	mu     sync.Mutex
	all    map[Key]T
	byName map[Key]struct{}
	// byChannelRegex preserves insertion order per channel: scan order
	// is otherwise unspecified but must be deterministic, and insertion
	// order is the simplest deterministic choice.
	byChannelRegex map[string][]Key
}

// New builds an empty Matcher.
func New[T Matchable]() *Matcher[T] {
	return &Matcher[T]{
		all:            make(map[Key]T),
		byName:         make(map[Key]struct{}),
		byChannelRegex: make(map[string][]Key),
	}
}

// Insert adds or replaces value under key, routing it into the index
// matching its pattern.
func (m *Matcher[T]) Insert(value T) {
	key := value.MatchKey()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(key)
	m.all[key] = value
	m.indexLocked(key, value)
}

// Remove deletes key from both the primary map and whichever index it
// was filed under.
func (m *Matcher[T]) Remove(key Key) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(key)
}

func (m *Matcher[T]) removeLocked(key Key) {
	if _, ok := m.all[key]; !ok {
		return
	}
	delete(m.all, key)
	delete(m.byName, key)
	regexKeys := m.byChannelRegex[key.Channel]
	for i, k := range regexKeys {
		if k == key {
			m.byChannelRegex[key.Channel] = append(regexKeys[:i], regexKeys[i+1:]...)
			break
		}
	}
}

func (m *Matcher[T]) indexLocked(key Key, value T) {
	kind, _ := value.MatchPattern()
	if kind == PatternName {
		m.byName[key] = struct{}{}
		return
	}
	m.byChannelRegex[key.Channel] = append(m.byChannelRegex[key.Channel], key)
}

// Modify applies f to a clone of the value at key (if present) and
// re-indexes it if the pattern kind changed. Returns false if key was
// not present.
func (m *Matcher[T]) Modify(key Key, f func(T) T) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.all[key]
	if !ok {
		return false
	}
	updated := f(v)
	newKey := updated.MatchKey()

	m.removeLocked(key)
	m.all[newKey] = updated
	m.indexLocked(newKey, updated)
	return true
}

// Get returns the value at key, if present.
func (m *Matcher[T]) Get(key Key) (T, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.all[key]
	return v, ok
}

// All returns a snapshot of every registered value.
func (m *Matcher[T]) All() []T {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]T, 0, len(m.all))
	for _, v := range m.all {
		out = append(out, v)
	}
	return out
}

// Resolve implements the two-stage lookup:
//  1. If firstWord is non-empty and (channel, lower(firstWord)) is
//     registered under Name, return it with Captures::Prefix{rest}.
//  2. Otherwise scan byChannelRegex[channel] in insertion order; the
//     first regex whose pattern matches the full message wins.
//  3. Otherwise, no match.
func (m *Matcher[T]) Resolve(channel, firstWord, fullMessage string) (T, Captures, bool) {
	var zero T

	m.mu.Lock()
	defer m.mu.Unlock()

	if firstWord != "" {
		key := Key{Channel: channel, Name: strings.ToLower(firstWord)}
		if _, ok := m.byName[key]; ok {
			value := m.all[key]
			rest := strings.TrimPrefix(fullMessage, firstWord)
			rest = strings.TrimLeft(rest, " \t")
			return value, Captures{kind: PatternName, rest: rest}, true
		}
	}

	for _, key := range m.byChannelRegex[channel] {
		value, ok := m.all[key]
		if !ok {
			continue
		}
		_, re := value.MatchPattern()
		if re == nil {
			continue
		}
		if idx := re.FindStringSubmatchIndex(fullMessage); idx != nil {
			n := len(idx) / 2
			matches := make([]string, n)
			present := make([]bool, n)
			for i := 0; i < n; i++ {
				if idx[2*i] >= 0 {
					matches[i] = fullMessage[idx[2*i]:idx[2*i+1]]
					present[i] = true
				}
			}
			return value, Captures{kind: PatternRegex, regex: re, matches: matches, present: present}, true
		}
	}

	return zero, Captures{}, false
}
