package media

import (
	"context"

	"github.com/godbus/dbus/v5"
	"go.uber.org/zap"
)

// Reader extracts a Snapshot from the first media player on the bus.
type Reader struct {
	bus    Bus
	logger *zap.Logger
}

// NewReader returns a Reader over bus.
func NewReader(bus Bus, logger *zap.Logger) *Reader {
	return &Reader{bus: bus, logger: logger}
}

// ReadSnapshot enumerates the bus and returns the state of the first player
// whose track can be read. It reports false when the bus is unreachable or
// no player is present; both are the normal idle state and are only logged
// at debug level. Nothing is cached between calls.
func (r *Reader) ReadSnapshot(ctx context.Context) (Snapshot, bool) {
	objects, err := r.bus.ManagedObjects(ctx)
	if err != nil {
		r.logger.Debug("bus unavailable", zap.Error(err))
		return Snapshot{}, false
	}

	players := Players(objects)
	if len(players) == 0 {
		r.logger.Debug("no active player")
		return Snapshot{}, false
	}

	for _, path := range players {
		track, ok := r.track(ctx, path)
		if !ok {
			continue
		}

		snap := Snapshot{
			Title:       stringField(track, "Title", DefaultTitle),
			Artist:      stringField(track, "Artist", DefaultArtist),
			Album:       stringField(track, "Album", DefaultAlbum),
			DurationSec: MillisToSeconds(uintField(track, "Duration")),
			PositionSec: MillisToSeconds(r.position(ctx, path)),
			Status:      r.status(ctx, path),
		}
		return snap, true
	}

	r.logger.Debug("no player with a readable track", zap.Int("players", len(players)))
	return Snapshot{}, false
}

func (r *Reader) track(ctx context.Context, path dbus.ObjectPath) (map[string]dbus.Variant, bool) {
	v, err := r.bus.Property(ctx, path, MediaPlayerIface, propTrack)
	if err != nil {
		r.logger.Debug("track unreadable", zap.String("player", string(path)), zap.Error(err))
		return nil, false
	}
	track, ok := v.Value().(map[string]dbus.Variant)
	if !ok {
		r.logger.Debug("track has unexpected type",
			zap.String("player", string(path)),
			zap.String("signature", v.Signature().String()))
		return nil, false
	}
	return track, true
}

func (r *Reader) position(ctx context.Context, path dbus.ObjectPath) uint64 {
	v, err := r.bus.Property(ctx, path, MediaPlayerIface, propPosition)
	if err != nil {
		r.logger.Debug("position unreadable", zap.String("player", string(path)), zap.Error(err))
		return 0
	}
	ms, _ := toUint(v.Value())
	return ms
}

func (r *Reader) status(ctx context.Context, path dbus.ObjectPath) Status {
	st, err := ReadStatus(ctx, r.bus, path)
	if err != nil {
		r.logger.Debug("status unreadable", zap.String("player", string(path)), zap.Error(err))
	}
	return st
}

// ReadStatus returns the normalized transport status of the player at path,
// or DefaultStatus with an error when it cannot be read.
func ReadStatus(ctx context.Context, bus Bus, path dbus.ObjectPath) (Status, error) {
	v, err := bus.Property(ctx, path, MediaPlayerIface, propStatus)
	if err != nil {
		return DefaultStatus, err
	}
	s, ok := v.Value().(string)
	if !ok {
		return DefaultStatus, nil
	}
	return ParseStatus(s), nil
}

// stringField returns def only when key is absent or not a string; a present
// empty string is kept.
func stringField(bag map[string]dbus.Variant, key, def string) string {
	v, ok := bag[key]
	if !ok {
		return def
	}
	s, ok := v.Value().(string)
	if !ok {
		return def
	}
	return s
}

func uintField(bag map[string]dbus.Variant, key string) uint64 {
	v, ok := bag[key]
	if !ok {
		return 0
	}
	n, _ := toUint(v.Value())
	return n
}

// toUint accepts any integer wire type. Negative values are rejected.
func toUint(v interface{}) (uint64, bool) {
	switch n := v.(type) {
	case uint8:
		return uint64(n), true
	case uint16:
		return uint64(n), true
	case uint32:
		return uint64(n), true
	case uint64:
		return n, true
	case int16:
		if n >= 0 {
			return uint64(n), true
		}
	case int32:
		if n >= 0 {
			return uint64(n), true
		}
	case int64:
		if n >= 0 {
			return uint64(n), true
		}
	}
	return 0, false
}
