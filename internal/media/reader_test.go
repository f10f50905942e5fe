package media_test

import (
	"context"
	"errors"
	"testing"

	"github.com/godbus/dbus/v5"
	"go.uber.org/zap/zaptest"

	"github.com/hneelabh/LVGL-Cockpit/internal/media"
	"github.com/hneelabh/LVGL-Cockpit/internal/media/mediatest"
)

const (
	phoneA = dbus.ObjectPath("/org/bluez/hci0/dev_AA_BB_CC_DD_EE_01/player0")
	phoneB = dbus.ObjectPath("/org/bluez/hci0/dev_AA_BB_CC_DD_EE_02/player0")
)

func read(t *testing.T, bus media.Bus) (media.Snapshot, bool) {
	t.Helper()
	return media.NewReader(bus, zaptest.NewLogger(t)).ReadSnapshot(context.Background())
}

func TestReadSnapshotFullPlayer(t *testing.T) {
	bus := mediatest.NewBus()
	bus.AddObject("/org/bluez/hci0", "org.bluez.Adapter1")
	bus.AddPlayer(phoneA, map[string]interface{}{
		"Track": map[string]interface{}{
			"Title":    "Song",
			"Artist":   "Band",
			"Album":    "Record",
			"Duration": uint32(125000),
		},
		"Position": uint32(30000),
		"Status":   "playing",
	})

	snap, ok := read(t, bus)
	if !ok {
		t.Fatal("expected a snapshot")
	}
	want := media.Snapshot{
		Title:       "Song",
		Artist:      "Band",
		Album:       "Record",
		DurationSec: 125,
		PositionSec: 30,
		Status:      media.StatusPlaying,
	}
	if snap != want {
		t.Errorf("snapshot = %+v, want %+v", snap, want)
	}
	if got := string(snap.Encode()); got != "Song|Band|Record|125|30|Playing" {
		t.Errorf("encoded = %q", got)
	}
}

func TestReadSnapshotNoPlayer(t *testing.T) {
	bus := mediatest.NewBus()
	bus.AddObject("/org/bluez/hci0", "org.bluez.Adapter1")
	bus.AddObject("/org/bluez/hci0/dev_AA_BB_CC_DD_EE_01", "org.bluez.Device1")

	if _, ok := read(t, bus); ok {
		t.Fatal("expected no snapshot without a media player")
	}
}

func TestReadSnapshotBusUnavailable(t *testing.T) {
	bus := mediatest.NewBus()
	bus.ObjectsErr = errors.New("org.freedesktop.DBus.Error.ServiceUnknown")

	if _, ok := read(t, bus); ok {
		t.Fatal("expected no snapshot when the bus is down")
	}
}

func TestReadSnapshotMissingAlbum(t *testing.T) {
	bus := mediatest.NewBus()
	bus.AddPlayer(phoneA, map[string]interface{}{
		"Track": map[string]interface{}{
			"Title":  "Song",
			"Artist": "Band",
		},
		"Status": "paused",
	})

	snap, ok := read(t, bus)
	if !ok {
		t.Fatal("expected a snapshot")
	}
	if snap.Album != "" {
		t.Errorf("album = %q, want empty", snap.Album)
	}
	if snap.Title != "Song" || snap.Artist != "Band" {
		t.Errorf("title/artist should be kept, got %q/%q", snap.Title, snap.Artist)
	}
}

func TestReadSnapshotEmptyTrack(t *testing.T) {
	bus := mediatest.NewBus()
	bus.AddPlayer(phoneA, map[string]interface{}{
		"Track": map[string]interface{}{},
	})

	snap, ok := read(t, bus)
	if !ok {
		t.Fatal("expected a snapshot")
	}
	want := media.Snapshot{
		Title:  media.DefaultTitle,
		Artist: media.DefaultArtist,
		Album:  "",
		Status: media.StatusPaused,
	}
	if snap != want {
		t.Errorf("snapshot = %+v, want %+v", snap, want)
	}
}

func TestReadSnapshotKeepsPresentEmptyTitle(t *testing.T) {
	bus := mediatest.NewBus()
	bus.AddPlayer(phoneA, map[string]interface{}{
		"Track": map[string]interface{}{"Title": "", "Artist": "Band"},
	})

	snap, ok := read(t, bus)
	if !ok {
		t.Fatal("expected a snapshot")
	}
	if snap.Title != "" {
		t.Errorf("title = %q, want the empty string the player sent", snap.Title)
	}
}

func TestReadSnapshotFieldFailuresAreIndependent(t *testing.T) {
	bus := mediatest.NewBus()
	bus.AddPlayer(phoneA, map[string]interface{}{
		"Track": map[string]interface{}{
			"Title":    "Song",
			"Duration": uint32(1000),
		},
		"Position": uint32(999),
		"Status":   "playing",
	})
	bus.FailProperty(phoneA, "Position", errors.New("timeout"))
	bus.FailProperty(phoneA, "Status", errors.New("timeout"))

	snap, ok := read(t, bus)
	if !ok {
		t.Fatal("expected a snapshot")
	}
	if snap.Title != "Song" || snap.DurationSec != 1 {
		t.Errorf("track fields lost: %+v", snap)
	}
	if snap.PositionSec != 0 {
		t.Errorf("position = %d, want 0 on failure", snap.PositionSec)
	}
	if snap.Status != media.StatusPaused {
		t.Errorf("status = %q, want Paused on failure", snap.Status)
	}
}

func TestReadSnapshotPositionFloor(t *testing.T) {
	bus := mediatest.NewBus()
	bus.AddPlayer(phoneA, map[string]interface{}{
		"Track":    map[string]interface{}{"Duration": uint32(999)},
		"Position": uint32(1000),
	})

	snap, ok := read(t, bus)
	if !ok {
		t.Fatal("expected a snapshot")
	}
	if snap.DurationSec != 0 || snap.PositionSec != 1 {
		t.Errorf("duration/position = %d/%d, want 0/1", snap.DurationSec, snap.PositionSec)
	}
}

func TestReadSnapshotFirstPlayerWins(t *testing.T) {
	bus := mediatest.NewBus()
	bus.AddPlayer(phoneB, map[string]interface{}{
		"Track": map[string]interface{}{"Title": "From B"},
	})
	bus.AddPlayer(phoneA, map[string]interface{}{
		"Track": map[string]interface{}{"Title": "From A"},
	})

	for i := 0; i < 20; i++ {
		snap, ok := read(t, bus)
		if !ok {
			t.Fatal("expected a snapshot")
		}
		if snap.Title != "From A" {
			t.Fatalf("iteration %d: title = %q, want the first player by path", i, snap.Title)
		}
	}
}

func TestReadSnapshotSkipsUnreadableTrack(t *testing.T) {
	bus := mediatest.NewBus()
	bus.AddPlayer(phoneA, map[string]interface{}{
		"Status": "playing",
	})
	bus.AddPlayer(phoneB, map[string]interface{}{
		"Track":  map[string]interface{}{"Title": "From B", "Artist": "Second"},
		"Status": "stopped",
	})

	snap, ok := read(t, bus)
	if !ok {
		t.Fatal("expected the next player to be used")
	}
	if snap.Title != "From B" || snap.Status != media.StatusStopped {
		t.Errorf("snapshot = %+v, fields must all come from the second player", snap)
	}
}

func TestReadSnapshotAllTracksUnreadable(t *testing.T) {
	bus := mediatest.NewBus()
	bus.AddPlayer(phoneA, map[string]interface{}{"Status": "playing"})
	bus.FailProperty(phoneA, "Track", errors.New("not available"))

	if _, ok := read(t, bus); ok {
		t.Fatal("expected no snapshot")
	}
}

func TestReadSnapshotFollowsPlayerChanges(t *testing.T) {
	bus := mediatest.NewBus()
	bus.AddPlayer(phoneA, map[string]interface{}{
		"Track": map[string]interface{}{"Title": "First"},
	})
	r := media.NewReader(bus, zaptest.NewLogger(t))
	ctx := context.Background()

	if snap, ok := r.ReadSnapshot(ctx); !ok || snap.Title != "First" {
		t.Fatalf("tick 1: %+v %v", snap, ok)
	}

	bus.RemovePlayer(phoneA)
	if _, ok := r.ReadSnapshot(ctx); ok {
		t.Fatal("tick 2: player disconnected, expected no snapshot")
	}

	bus.AddPlayer(phoneB, map[string]interface{}{
		"Track": map[string]interface{}{"Title": "Second"},
	})
	if snap, ok := r.ReadSnapshot(ctx); !ok || snap.Title != "Second" {
		t.Fatalf("tick 3: %+v %v", snap, ok)
	}
	if n := bus.Enumerations(); n != 3 {
		t.Errorf("enumerations = %d, want one per read", n)
	}
}

func TestReadSnapshotIntegerTypes(t *testing.T) {
	bus := mediatest.NewBus()
	bus.AddPlayer(phoneA, map[string]interface{}{
		"Track":    map[string]interface{}{"Duration": uint64(61000)},
		"Position": int64(-5),
	})

	snap, ok := read(t, bus)
	if !ok {
		t.Fatal("expected a snapshot")
	}
	if snap.DurationSec != 61 {
		t.Errorf("duration = %d, want 61", snap.DurationSec)
	}
	if snap.PositionSec != 0 {
		t.Errorf("negative position should read as 0, got %d", snap.PositionSec)
	}
}

func TestPlayersOrder(t *testing.T) {
	objects := media.ManagedObjects{
		phoneB:            {media.MediaPlayerIface: {}},
		"/org/bluez/hci0": {"org.bluez.Adapter1": {}},
		phoneA:            {media.MediaPlayerIface: {}},
	}
	got := media.Players(objects)
	if len(got) != 2 || got[0] != phoneA || got[1] != phoneB {
		t.Errorf("Players() = %v", got)
	}
}
