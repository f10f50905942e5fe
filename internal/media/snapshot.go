// Package media reads the active BlueZ media player over the system bus and
// encodes its state into the music frame sent to the UI.
package media

import (
	"strconv"
	"strings"
)

// Status is the transport state carried in a snapshot.
type Status string

const (
	StatusPlaying Status = "Playing"
	StatusPaused  Status = "Paused"
	StatusStopped Status = "Stopped"
)

// Defaults substituted for fields the player withholds.
const (
	DefaultTitle  = "Unknown Title"
	DefaultArtist = "Unknown Artist"
	DefaultAlbum  = ""
	DefaultStatus = StatusPaused
)

// FieldSeparator delimits the six fields of a music frame. Fields are not
// escaped, so a separator inside metadata shifts the consumer's parse.
const FieldSeparator = "|"

// RecommendedFrameSize is the largest music frame the UI is known to read
// without truncating. Encode does not enforce it.
const RecommendedFrameSize = 128

// Snapshot is the media player state captured during one poll tick.
type Snapshot struct {
	Title       string `json:"title"`
	Artist      string `json:"artist"`
	Album       string `json:"album"`
	DurationSec uint64 `json:"duration_sec"`
	PositionSec uint64 `json:"position_sec"`
	Status      Status `json:"status"`
}

// MillisToSeconds converts a bus millisecond value using floor division.
func MillisToSeconds(ms uint64) uint64 {
	return ms / 1000
}

// ParseStatus normalizes a player status string. BlueZ reports lowercase
// values; seeking counts as playing and anything unrecognised as paused.
func ParseStatus(s string) Status {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "playing", "forward-seek", "reverse-seek":
		return StatusPlaying
	case "stopped":
		return StatusStopped
	case "paused":
		return StatusPaused
	default:
		return DefaultStatus
	}
}

// Encode renders the snapshot as
// title|artist|album|duration_sec|position_sec|status in UTF-8.
func (s Snapshot) Encode() []byte {
	var b strings.Builder
	b.Grow(len(s.Title) + len(s.Artist) + len(s.Album) + 32)

	b.WriteString(s.Title)
	b.WriteString(FieldSeparator)
	b.WriteString(s.Artist)
	b.WriteString(FieldSeparator)
	b.WriteString(s.Album)
	b.WriteString(FieldSeparator)
	b.WriteString(strconv.FormatUint(s.DurationSec, 10))
	b.WriteString(FieldSeparator)
	b.WriteString(strconv.FormatUint(s.PositionSec, 10))
	b.WriteString(FieldSeparator)
	b.WriteString(string(s.Status))

	return []byte(b.String())
}
