package media

import (
	"context"
	"fmt"
	"sort"

	"github.com/godbus/dbus/v5"
)

// BlueZ bus names and interfaces.
const (
	BluezService      = "org.bluez"
	MediaPlayerIface  = "org.bluez.MediaPlayer1"
	dbusProperties    = "org.freedesktop.DBus.Properties"
	dbusObjectManager = "org.freedesktop.DBus.ObjectManager"

	propTrack    = "Track"
	propPosition = "Position"
	propStatus   = "Status"
)

// MediaPlayer1 transport methods.
const (
	MethodNext     = MediaPlayerIface + ".Next"
	MethodPrevious = MediaPlayerIface + ".Previous"
	MethodPlay     = MediaPlayerIface + ".Play"
	MethodPause    = MediaPlayerIface + ".Pause"
)

// ManagedObjects is the result of ObjectManager.GetManagedObjects:
// path -> interface -> property -> value.
type ManagedObjects map[dbus.ObjectPath]map[string]map[string]dbus.Variant

// Bus is the subset of the system bus the bridge uses. Every method is a
// single independent round trip.
type Bus interface {
	ManagedObjects(ctx context.Context) (ManagedObjects, error)
	Property(ctx context.Context, path dbus.ObjectPath, iface, name string) (dbus.Variant, error)
	Call(ctx context.Context, path dbus.ObjectPath, method string, args ...interface{}) error
}

// SystemBus talks to a service on the system bus. The connection is looked
// up on every call so a restarted bus daemon or bluetoothd is picked up on
// the next tick.
type SystemBus struct {
	Service string
}

// NewSystemBus returns a Bus bound to BlueZ.
func NewSystemBus() *SystemBus {
	return &SystemBus{Service: BluezService}
}

func (b *SystemBus) object(path dbus.ObjectPath) (dbus.BusObject, error) {
	// dbus.SystemBus returns a shared, cached connection; it must not be
	// closed here.
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, fmt.Errorf("connect system bus: %w", err)
	}
	return conn.Object(b.Service, path), nil
}

// ManagedObjects enumerates every object the service exports in one call.
func (b *SystemBus) ManagedObjects(ctx context.Context) (ManagedObjects, error) {
	obj, err := b.object("/")
	if err != nil {
		return nil, err
	}

	var objects ManagedObjects
	call := obj.CallWithContext(ctx, dbusObjectManager+".GetManagedObjects", 0)
	if call.Err != nil {
		return nil, fmt.Errorf("GetManagedObjects: %w", call.Err)
	}
	if err := call.Store(&objects); err != nil {
		return nil, fmt.Errorf("GetManagedObjects decode: %w", err)
	}
	return objects, nil
}

// Property reads a single property.
func (b *SystemBus) Property(ctx context.Context, path dbus.ObjectPath, iface, name string) (dbus.Variant, error) {
	obj, err := b.object(path)
	if err != nil {
		return dbus.Variant{}, err
	}

	var v dbus.Variant
	if err := obj.CallWithContext(ctx, dbusProperties+".Get", 0, iface, name).Store(&v); err != nil {
		return dbus.Variant{}, fmt.Errorf("get %s.%s on %s: %w", iface, name, path, err)
	}
	return v, nil
}

// Call invokes a method and discards its reply.
func (b *SystemBus) Call(ctx context.Context, path dbus.ObjectPath, method string, args ...interface{}) error {
	obj, err := b.object(path)
	if err != nil {
		return err
	}
	if call := obj.CallWithContext(ctx, method, 0, args...); call.Err != nil {
		return fmt.Errorf("%s on %s: %w", method, path, call.Err)
	}
	return nil
}

// Players returns the paths exposing the media-player interface, ordered by
// path so that "first" is stable for a given enumeration.
func Players(objects ManagedObjects) []dbus.ObjectPath {
	var paths []dbus.ObjectPath
	for path, ifaces := range objects {
		if _, ok := ifaces[MediaPlayerIface]; ok {
			paths = append(paths, path)
		}
	}
	sort.Slice(paths, func(i, j int) bool { return paths[i] < paths[j] })
	return paths
}
