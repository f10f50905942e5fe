package command

import (
	"context"
	"errors"
	"fmt"

	"github.com/hneelabh/LVGL-Cockpit/internal/media"
)

// ErrNoPlayer is returned when no media player is present on the bus.
var ErrNoPlayer = errors.New("no media player on the bus")

// Bluez calls MediaPlayer1 methods on the first player found, using the same
// first-match rule as the snapshot reader.
type Bluez struct {
	bus media.Bus
}

// NewBluez returns a BlueZ-backed actuator.
func NewBluez(bus media.Bus) *Bluez {
	return &Bluez{bus: bus}
}

func (b *Bluez) Invoke(ctx context.Context, action Action) error {
	objects, err := b.bus.ManagedObjects(ctx)
	if err != nil {
		return err
	}
	players := media.Players(objects)
	if len(players) == 0 {
		return ErrNoPlayer
	}
	player := players[0]

	var method string
	switch action {
	case ActionNext:
		method = media.MethodNext
	case ActionPrevious:
		method = media.MethodPrevious
	case ActionPlayPause:
		// MediaPlayer1 has no toggle; an unreadable status is treated as
		// paused, so the toggle resumes playback.
		status, _ := media.ReadStatus(ctx, b.bus, player)
		method = media.MethodPlay
		if status == media.StatusPlaying {
			method = media.MethodPause
		}
	default:
		return fmt.Errorf("unsupported action %q", action)
	}
	return b.bus.Call(ctx, player, method)
}
