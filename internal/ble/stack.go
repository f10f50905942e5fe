package ble

import (
	"fmt"

	"github.com/godbus/dbus/v5"
	"github.com/google/uuid"
	"tinygo.org/x/bluetooth"
)

// ServiceSpec describes the one service and characteristic the bridge
// registers.
type ServiceSpec struct {
	ServiceUUID uuid.UUID
	CharUUID    uuid.UUID
	ReadValue   []byte
	OnWrite     func(value []byte)
}

// Stack is the host BLE peripheral stack.
type Stack interface {
	Enable() error
	// SetConnectHandler starts reporting central connects and disconnects
	// to fn.
	SetConnectHandler(fn func(connected bool)) error
	AddService(spec ServiceSpec) error
	StartAdvertising(name string, service uuid.UUID) error
	StopAdvertising() error
}

// TinyGoStack implements Stack on tinygo.org/x/bluetooth (BlueZ on Linux).
type TinyGoStack struct {
	adapter *bluetooth.Adapter
	adv     *bluetooth.Advertisement
	speed   bluetooth.Characteristic
	bus     *dbus.Conn
}

// NewTinyGoStack returns a stack on the default adapter.
func NewTinyGoStack() *TinyGoStack {
	return &TinyGoStack{adapter: bluetooth.DefaultAdapter}
}

func (s *TinyGoStack) Enable() error {
	return s.adapter.Enable()
}

// SetConnectHandler watches BlueZ for Device1 Connected changes. On Linux the
// adapter's own connect handler only fires for links it initiated as a
// central, so links made to our GATT server are observed on the system bus.
func (s *TinyGoStack) SetConnectHandler(fn func(connected bool)) error {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return fmt.Errorf("connect system bus: %w", err)
	}

	rules := [][]dbus.MatchOption{
		{
			dbus.WithMatchInterface(dbusProperties),
			dbus.WithMatchMember("PropertiesChanged"),
			dbus.WithMatchArg(0, bluezDeviceIface),
		},
		{
			dbus.WithMatchInterface(dbusObjectManager),
			dbus.WithMatchMember("InterfacesRemoved"),
		},
	}
	for _, rule := range rules {
		if err := conn.AddMatchSignal(rule...); err != nil {
			conn.Close()
			return fmt.Errorf("add match rule: %w", err)
		}
	}

	signals := make(chan *dbus.Signal, 16)
	conn.Signal(signals)
	s.bus = conn
	go watchLinks(signals, fn)
	return nil
}

func (s *TinyGoStack) AddService(spec ServiceSpec) error {
	return s.adapter.AddService(&bluetooth.Service{
		UUID: bluetooth.NewUUID(spec.ServiceUUID),
		Characteristics: []bluetooth.CharacteristicConfig{
			{
				Handle: &s.speed,
				UUID:   bluetooth.NewUUID(spec.CharUUID),
				Value:  spec.ReadValue,
				Flags: bluetooth.CharacteristicReadPermission |
					bluetooth.CharacteristicWritePermission |
					bluetooth.CharacteristicWriteWithoutResponsePermission,
				WriteEvent: func(_ bluetooth.Connection, _ int, value []byte) {
					spec.OnWrite(value)
				},
			},
		},
	})
}

func (s *TinyGoStack) StartAdvertising(name string, service uuid.UUID) error {
	adv := s.adapter.DefaultAdvertisement()
	err := adv.Configure(bluetooth.AdvertisementOptions{
		LocalName:    name,
		ServiceUUIDs: []bluetooth.UUID{bluetooth.NewUUID(service)},
	})
	if err != nil {
		return err
	}
	if err := adv.Start(); err != nil {
		return err
	}
	s.adv = adv
	return nil
}

// StopAdvertising also stops connection tracking. Closing the bus
// connection closes the signal channel, which ends the watcher.
func (s *TinyGoStack) StopAdvertising() error {
	if s.bus != nil {
		s.bus.Close()
		s.bus = nil
	}
	if s.adv == nil {
		return nil
	}
	adv := s.adv
	s.adv = nil
	return adv.Stop()
}
