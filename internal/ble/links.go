package ble

import (
	"github.com/godbus/dbus/v5"
)

const (
	bluezDeviceIface  = "org.bluez.Device1"
	dbusProperties    = "org.freedesktop.DBus.Properties"
	dbusObjectManager = "org.freedesktop.DBus.ObjectManager"

	propertiesChanged = dbusProperties + ".PropertiesChanged"
	interfacesRemoved = dbusObjectManager + ".InterfacesRemoved"
)

// linkTracker turns BlueZ Device1 signals into connect and disconnect
// events. Each device reports at most one event per actual change.
type linkTracker struct {
	connected map[dbus.ObjectPath]bool
	fn        func(connected bool)
}

func newLinkTracker(fn func(connected bool)) *linkTracker {
	return &linkTracker{connected: make(map[dbus.ObjectPath]bool), fn: fn}
}

func (t *linkTracker) handle(sig *dbus.Signal) {
	switch sig.Name {
	case propertiesChanged:
		// Body: interface, changed properties, invalidated properties.
		if len(sig.Body) < 2 {
			return
		}
		if iface, _ := sig.Body[0].(string); iface != bluezDeviceIface {
			return
		}
		changed, ok := sig.Body[1].(map[string]dbus.Variant)
		if !ok {
			return
		}
		v, ok := changed["Connected"]
		if !ok {
			return
		}
		up, ok := v.Value().(bool)
		if !ok {
			return
		}
		t.set(sig.Path, up)

	case interfacesRemoved:
		// A device removed while connected never reports Connected=false.
		if len(sig.Body) < 2 {
			return
		}
		path, ok := sig.Body[0].(dbus.ObjectPath)
		if !ok {
			return
		}
		ifaces, _ := sig.Body[1].([]string)
		for _, iface := range ifaces {
			if iface == bluezDeviceIface {
				t.set(path, false)
				return
			}
		}
	}
}

func (t *linkTracker) set(path dbus.ObjectPath, up bool) {
	if t.connected[path] == up {
		return
	}
	if up {
		t.connected[path] = true
	} else {
		delete(t.connected, path)
	}
	t.fn(up)
}

// watchLinks feeds signals to fn until the channel is closed.
func watchLinks(signals <-chan *dbus.Signal, fn func(connected bool)) {
	t := newLinkTracker(fn)
	for sig := range signals {
		t.handle(sig)
	}
}
