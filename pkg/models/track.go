// Package models holds the data shared across the bot core: the
// metadata describing a track and the immutable Item that wraps it once
// enqueued or played.
package models

import (
	"github.com/oxidizebot/oxidizebot-go/internal/trackid"
)

// TrackMetadata is the descriptive information about a track as returned
// by whichever provider owns its trackid.ID. It never carries playback
// state — see song.Song for that.
type TrackMetadata struct {
	Title    string `json:"title"`
	Artist   string `json:"artist"`
	Album    string `json:"album,omitempty"`
	ArtURL   string `json:"artUrl,omitempty"`
	HasArt   bool   `json:"hasArt"`
}

// Item is an immutable record of an enqueued or playing thing. It is
// shared (conceptually Arc'd) between the queue, the mixer's sidelined
// stack, and the current song slot — callers must never mutate an Item
// in place; build a new one instead.
type Item struct {
	TrackID        trackid.ID    `json:"trackId"`
	Metadata       TrackMetadata `json:"metadata"`
	RequestingUser *string       `json:"requestingUser,omitempty"`
	DurationSecs   int           `json:"durationSeconds"`
}

// NewItem builds an Item. requestingUser may be empty to represent a
// fallback-pool or theme track with no requester.
func NewItem(id trackid.ID, meta TrackMetadata, requestingUser string, durationSecs int) Item {
	it := Item{TrackID: id, Metadata: meta, DurationSecs: durationSecs}
	if requestingUser != "" {
		it.RequestingUser = &requestingUser
	}
	return it
}

// FallbackPlaylist is an immutable snapshot of the pool Mixer draws from
// when both the queue and the sidelined stack are empty.
type FallbackPlaylist struct {
	Items []Item `json:"items"`
}
