// Package trackid implements the tagged track-identifier value from the
// data model: a Spotify base62 id or a YouTube opaque id, with a
// canonical serialization and a URL form.
package trackid

import (
	"fmt"
	"strings"
)

// Provider distinguishes the two backends a track id can name.
type Provider int

const (
	// Unknown is the zero value; never produced by Parse on success.
	Unknown Provider = iota
	Spotify
	YouTube
)

func (p Provider) String() string {
	switch p {
	case Spotify:
		return "spotify"
	case YouTube:
		return "youtube"
	default:
		return "unknown"
	}
}

// ID is an immutable tagged track identifier. The zero value is invalid;
// construct with NewSpotify, NewYouTube, or Parse.
type ID struct {
	provider Provider
	id       string
}

// NewSpotify builds a Spotify track id from a bare base62 id.
func NewSpotify(id string) ID { return ID{provider: Spotify, id: id} }

// NewYouTube builds a YouTube track id from a bare video id.
func NewYouTube(id string) ID { return ID{provider: YouTube, id: id} }

// Provider reports which backend this id names.
func (t ID) Provider() Provider { return t.provider }

// Raw returns the bare opaque id with no provider prefix.
func (t ID) Raw() string { return t.id }

// IsZero reports whether this is the zero value (no id set).
func (t ID) IsZero() bool { return t.provider == Unknown }

// String renders the canonical wire form: "spotify:track:<id>" or
// "youtube:video:<id>".
func (t ID) String() string {
	switch t.provider {
	case Spotify:
		return fmt.Sprintf("spotify:track:%s", t.id)
	case YouTube:
		return fmt.Sprintf("youtube:video:%s", t.id)
	default:
		return ""
	}
}

// URL renders a web URL for the track. Spotify yields
// https://open.spotify.com/track/<id>, YouTube yields
// https://youtu.be/<id>. These are never parsed back from String output;
// they exist purely for chat-facing links.
func (t ID) URL() string {
	switch t.provider {
	case Spotify:
		return fmt.Sprintf("https://open.spotify.com/track/%s", t.id)
	case YouTube:
		return fmt.Sprintf("https://youtu.be/%s", t.id)
	default:
		return ""
	}
}

// Equal reports whether two ids name the same track.
func (t ID) Equal(other ID) bool {
	return t.provider == other.provider && t.id == other.id
}

// MarshalText encodes the id in its canonical wire form (see String).
func (t ID) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

// UnmarshalText decodes anything Parse accepts; empty text is the zero ID.
func (t *ID) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*t = ID{}
		return nil
	}
	id, err := Parse(string(b))
	*t = id
	return err
}

// Parse accepts either the canonical wire form ("spotify:track:<id>",
// "youtube:video:<id>") or a recognized input URL
// (open.spotify.com/track/<id>, youtu.be/<id>, youtube.com/watch?v=<id>)
// and returns the corresponding ID. Parse(t.String()) == t and
// Parse(t.URL()) == t for every constructible t.
func Parse(s string) (ID, error) {
	s = strings.TrimSpace(s)

	if id, ok := strings.CutPrefix(s, "spotify:track:"); ok && id != "" {
		return NewSpotify(id), nil
	}
	if id, ok := strings.CutPrefix(s, "youtube:video:"); ok && id != "" {
		return NewYouTube(id), nil
	}

	if id, ok := cutAnyPrefix(s, "https://open.spotify.com/track/", "http://open.spotify.com/track/"); ok {
		return NewSpotify(trimQuery(id)), nil
	}
	if id, ok := cutAnyPrefix(s, "https://youtu.be/", "http://youtu.be/"); ok {
		return NewYouTube(trimQuery(id)), nil
	}
	if id, ok := extractYouTubeWatchID(s); ok {
		return NewYouTube(id), nil
	}

	return ID{}, fmt.Errorf("trackid: cannot parse %q as a track identifier", s)
}

func cutAnyPrefix(s string, prefixes ...string) (string, bool) {
	for _, p := range prefixes {
		if rest, ok := strings.CutPrefix(s, p); ok && rest != "" {
			return rest, true
		}
	}
	return "", false
}

func trimQuery(s string) string {
	if i := strings.IndexAny(s, "?#/"); i >= 0 {
		return s[:i]
	}
	return s
}

func extractYouTubeWatchID(s string) (string, bool) {
	const marker = "v="
	for _, host := range []string{"https://www.youtube.com/watch", "https://youtube.com/watch", "http://www.youtube.com/watch", "http://youtube.com/watch"} {
		if !strings.HasPrefix(s, host) {
			continue
		}
		rest := strings.TrimPrefix(s, host)
		rest = strings.TrimPrefix(rest, "?")
		for _, part := range strings.Split(rest, "&") {
			if id, ok := strings.CutPrefix(part, marker); ok && id != "" {
				return trimQuery(id), true
			}
		}
	}
	return "", false
}
