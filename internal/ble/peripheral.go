// Package ble exposes the speed characteristic as a GATT peripheral and
// forwards every write to the UI speed endpoint.
package ble

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hneelabh/LVGL-Cockpit/internal/speed"
	"github.com/hneelabh/LVGL-Cockpit/internal/transport"
)

// State is the externally visible lifecycle of the peripheral.
type State int32

const (
	Unregistered State = iota
	Advertising
	ConnectedIdle
)

func (s State) String() string {
	switch s {
	case Unregistered:
		return "unregistered"
	case Advertising:
		return "advertising"
	case ConnectedIdle:
		return "connected"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// ReadValue is returned for every read of the speed characteristic. The
// characteristic is a write sink; written values are never reflected back.
var ReadValue = []byte{0x00}

// Settings identifies the advertised device and its single characteristic.
type Settings struct {
	Name        string
	ServiceUUID uuid.UUID
	SpeedUUID   uuid.UUID
}

// Peripheral binds the speed characteristic to the speed endpoint.
type Peripheral struct {
	stack    Stack
	sender   transport.Sender
	settings Settings
	logger   *zap.Logger
	onSpeed  func(uint32)

	state atomic.Int32
	links atomic.Int32
}

// Option configures a Peripheral.
type Option func(*Peripheral)

// WithSpeedHook registers fn to observe every successfully decoded speed.
func WithSpeedHook(fn func(uint32)) Option {
	return func(p *Peripheral) { p.onSpeed = fn }
}

// NewPeripheral returns an unregistered peripheral.
func NewPeripheral(stack Stack, sender transport.Sender, settings Settings, logger *zap.Logger, opts ...Option) *Peripheral {
	p := &Peripheral{
		stack:    stack,
		sender:   sender,
		settings: settings,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// State returns the current lifecycle state.
func (p *Peripheral) State() State {
	return State(p.state.Load())
}

// Start enables the adapter, registers the service and begins advertising.
func (p *Peripheral) Start() error {
	if p.State() != Unregistered {
		return errors.New("peripheral already started")
	}

	if err := p.stack.Enable(); err != nil {
		return fmt.Errorf("enable adapter: %w", err)
	}
	if err := p.stack.SetConnectHandler(p.handleConnect); err != nil {
		// Writes still flow; only the connected state goes unobserved.
		p.logger.Warn("connection tracking unavailable", zap.Error(err))
	}

	err := p.stack.AddService(ServiceSpec{
		ServiceUUID: p.settings.ServiceUUID,
		CharUUID:    p.settings.SpeedUUID,
		ReadValue:   ReadValue,
		OnWrite:     p.HandleWrite,
	})
	if err != nil {
		return fmt.Errorf("register service %s: %w", p.settings.ServiceUUID, err)
	}

	if err := p.stack.StartAdvertising(p.settings.Name, p.settings.ServiceUUID); err != nil {
		return fmt.Errorf("start advertising: %w", err)
	}
	p.state.Store(int32(Advertising))
	p.logger.Info("advertising",
		zap.String("name", p.settings.Name),
		zap.Stringer("service", p.settings.ServiceUUID),
		zap.Stringer("characteristic", p.settings.SpeedUUID))
	return nil
}

// Stop ends advertising and returns the peripheral to Unregistered.
func (p *Peripheral) Stop() error {
	if p.State() == Unregistered {
		return nil
	}
	p.state.Store(int32(Unregistered))
	p.links.Store(0)
	if err := p.stack.StopAdvertising(); err != nil {
		return fmt.Errorf("stop advertising: %w", err)
	}
	p.logger.Info("advertising stopped")
	return nil
}

// HandleWrite decodes a characteristic write and forwards the speed frame.
// Decode and send failures are logged and dropped; the write itself is
// always acknowledged to the central.
func (p *Peripheral) HandleWrite(value []byte) {
	v, frame, err := speed.Reencode(value)
	if err != nil {
		p.logger.Warn("discarding speed write", zap.Binary("payload", value), zap.Error(err))
		return
	}
	p.logger.Info("speed received", zap.Uint32("speed", v))

	if err := p.sender.Send(frame); err != nil {
		p.logger.Debug("speed frame dropped", zap.Error(err))
	}
	if p.onSpeed != nil {
		p.onSpeed(v)
	}
}

func (p *Peripheral) handleConnect(connected bool) {
	if p.State() == Unregistered {
		return
	}

	if connected {
		n := p.links.Add(1)
		p.state.Store(int32(ConnectedIdle))
		p.logger.Info("central connected", zap.Int32("links", n))
		return
	}

	n := p.links.Add(-1)
	if n < 0 {
		p.links.Store(0)
		n = 0
	}
	if n == 0 {
		p.state.Store(int32(Advertising))
	}
	p.logger.Info("central disconnected", zap.Int32("links", n))
}
