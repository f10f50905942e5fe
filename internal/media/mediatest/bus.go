// Package mediatest provides an in-memory media.Bus for tests.
package mediatest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"

	"github.com/hneelabh/LVGL-Cockpit/internal/media"
)

// ErrNoSuchProperty mirrors the bus error for an unset property.
var ErrNoSuchProperty = errors.New("org.freedesktop.DBus.Error.InvalidArgs: No such property")

// Call records one method invocation.
type Call struct {
	Path   dbus.ObjectPath
	Method string
	Args   []interface{}
}

// Bus is a fake system bus holding media players.
type Bus struct {
	mu sync.Mutex

	// ObjectsErr, when set, fails enumeration as if the service were down.
	ObjectsErr error
	// CallErr, when set, fails every method call.
	CallErr error

	objects  media.ManagedObjects
	props    map[dbus.ObjectPath]map[string]dbus.Variant
	propErrs map[dbus.ObjectPath]map[string]error
	calls    []Call
	enumN    int
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{
		objects:  media.ManagedObjects{},
		props:    map[dbus.ObjectPath]map[string]dbus.Variant{},
		propErrs: map[dbus.ObjectPath]map[string]error{},
	}
}

// AddObject registers a non-player object with the given interfaces.
func (b *Bus) AddObject(path dbus.ObjectPath, ifaces ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	entry := map[string]map[string]dbus.Variant{}
	for _, iface := range ifaces {
		entry[iface] = map[string]dbus.Variant{}
	}
	b.objects[path] = entry
}

// AddPlayer registers a MediaPlayer1 object. A "Track" entry given as
// map[string]interface{} is converted to a property bag.
func (b *Bus) AddPlayer(path dbus.ObjectPath, props map[string]interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()

	bag := map[string]dbus.Variant{}
	for name, value := range props {
		if track, ok := value.(map[string]interface{}); ok {
			value = Track(track)
		}
		bag[name] = dbus.MakeVariant(value)
	}
	b.objects[path] = map[string]map[string]dbus.Variant{media.MediaPlayerIface: bag}
	b.props[path] = bag
}

// RemovePlayer drops a player, as when the phone disconnects.
func (b *Bus) RemovePlayer(path dbus.ObjectPath) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.objects, path)
	delete(b.props, path)
	delete(b.propErrs, path)
}

// FailProperty makes reads of name on path return err.
func (b *Bus) FailProperty(path dbus.ObjectPath, name string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.propErrs[path] == nil {
		b.propErrs[path] = map[string]error{}
	}
	b.propErrs[path][name] = err
}

// Track converts a plain map into a track property bag.
func Track(fields map[string]interface{}) map[string]dbus.Variant {
	bag := make(map[string]dbus.Variant, len(fields))
	for k, v := range fields {
		bag[k] = dbus.MakeVariant(v)
	}
	return bag
}

// Enumerations reports how many times ManagedObjects was called.
func (b *Bus) Enumerations() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.enumN
}

// Calls returns a copy of the recorded method calls.
func (b *Bus) Calls() []Call {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Call(nil), b.calls...)
}

func (b *Bus) ManagedObjects(ctx context.Context) (media.ManagedObjects, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.enumN++
	if b.ObjectsErr != nil {
		return nil, b.ObjectsErr
	}
	out := make(media.ManagedObjects, len(b.objects))
	for k, v := range b.objects {
		out[k] = v
	}
	return out, nil
}

func (b *Bus) Property(ctx context.Context, path dbus.ObjectPath, iface, name string) (dbus.Variant, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.propErrs[path][name]; err != nil {
		return dbus.Variant{}, err
	}
	if iface != media.MediaPlayerIface {
		return dbus.Variant{}, fmt.Errorf("unknown interface %s", iface)
	}
	v, ok := b.props[path][name]
	if !ok {
		return dbus.Variant{}, ErrNoSuchProperty
	}
	return v, nil
}

func (b *Bus) Call(ctx context.Context, path dbus.ObjectPath, method string, args ...interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.CallErr != nil {
		return b.CallErr
	}
	b.calls = append(b.calls, Call{Path: path, Method: method, Args: args})
	return nil
}
