package ble

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/google/uuid"
	"go.uber.org/zap/zaptest"

	"github.com/hneelabh/LVGL-Cockpit/internal/transport"
)

type fakeStack struct {
	enableErr    error
	connectErr   error
	addErr       error
	advertiseErr error

	enabled     bool
	spec        *ServiceSpec
	advertising bool
	advName     string

	// signals stands in for the system bus; connection state reaches the
	// peripheral through the same watcher TinyGoStack runs.
	signals chan *dbus.Signal
}

func (s *fakeStack) Enable() error {
	if s.enableErr != nil {
		return s.enableErr
	}
	s.enabled = true
	return nil
}

func (s *fakeStack) SetConnectHandler(fn func(bool)) error {
	if s.connectErr != nil {
		return s.connectErr
	}
	s.signals = make(chan *dbus.Signal)
	go watchLinks(s.signals, fn)
	return nil
}

// device emits a Device1 Connected change for dev and returns once the
// watcher has fully handled it.
func (s *fakeStack) device(dev string, connected bool) {
	s.signals <- connectedSignal(dev, connected)
	// The channel is unbuffered, so this send completes only after the
	// previous signal has been processed.
	s.signals <- &dbus.Signal{Name: "org.example.Flush"}
}

func (s *fakeStack) AddService(spec ServiceSpec) error {
	if s.addErr != nil {
		return s.addErr
	}
	s.spec = &spec
	return nil
}

func (s *fakeStack) StartAdvertising(name string, _ uuid.UUID) error {
	if s.advertiseErr != nil {
		return s.advertiseErr
	}
	s.advertising = true
	s.advName = name
	return nil
}

func (s *fakeStack) StopAdvertising() error {
	s.advertising = false
	return nil
}

// write simulates a central writing to the registered characteristic.
func (s *fakeStack) write(value []byte) {
	s.spec.OnWrite(value)
}

type captureSender struct {
	frames [][]byte
}

func (c *captureSender) Send(p []byte) error {
	c.frames = append(c.frames, append([]byte(nil), p...))
	return nil
}

var testSettings = Settings{
	Name:        "LVGL_Cockpit_Pro",
	ServiceUUID: uuid.MustParse("00001818-0000-1000-8000-00805f9b34fb"),
	SpeedUUID:   uuid.MustParse("00002A67-0000-1000-8000-00805F9B34FB"),
}

func TestStartRegistersAndAdvertises(t *testing.T) {
	stack := &fakeStack{}
	p := NewPeripheral(stack, &captureSender{}, testSettings, zaptest.NewLogger(t))

	if p.State() != Unregistered {
		t.Fatalf("initial state = %s", p.State())
	}
	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if p.State() != Advertising {
		t.Errorf("state = %s, want advertising", p.State())
	}
	if !stack.enabled || !stack.advertising || stack.advName != "LVGL_Cockpit_Pro" {
		t.Errorf("stack = %+v", stack)
	}
	if stack.spec.ServiceUUID != testSettings.ServiceUUID || stack.spec.CharUUID != testSettings.SpeedUUID {
		t.Errorf("registered uuids = %s / %s", stack.spec.ServiceUUID, stack.spec.CharUUID)
	}
	if !bytes.Equal(stack.spec.ReadValue, []byte{0x00}) {
		t.Errorf("read value = % x, want 00", stack.spec.ReadValue)
	}

	if err := p.Start(); err == nil {
		t.Error("second Start should fail")
	}
}

func TestStartFailuresStayUnregistered(t *testing.T) {
	tests := []struct {
		name  string
		stack *fakeStack
	}{
		{"enable", &fakeStack{enableErr: errors.New("no adapter")}},
		{"add service", &fakeStack{addErr: errors.New("rejected")}},
		{"advertise", &fakeStack{advertiseErr: errors.New("busy")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPeripheral(tt.stack, &captureSender{}, testSettings, zaptest.NewLogger(t))
			if err := p.Start(); err == nil {
				t.Fatal("expected error")
			}
			if p.State() != Unregistered {
				t.Errorf("state = %s, want unregistered", p.State())
			}
		})
	}
}

func TestConnectTransitions(t *testing.T) {
	stack := &fakeStack{}
	p := NewPeripheral(stack, &captureSender{}, testSettings, zaptest.NewLogger(t))
	if err := p.Start(); err != nil {
		t.Fatal(err)
	}

	stack.device("dev_A", true)
	if p.State() != ConnectedIdle {
		t.Fatalf("after connect: %s", p.State())
	}
	stack.device("dev_A", true)
	stack.device("dev_B", true)
	stack.device("dev_A", false)
	if p.State() != ConnectedIdle {
		t.Fatalf("one link still up: %s", p.State())
	}
	stack.device("dev_B", false)
	if p.State() != Advertising {
		t.Fatalf("after last disconnect: %s", p.State())
	}
	// A disconnect for an unknown device must not drive the count negative.
	stack.device("dev_C", false)
	stack.device("dev_A", true)
	if p.State() != ConnectedIdle {
		t.Fatalf("after reconnect: %s", p.State())
	}

	if err := p.Stop(); err != nil {
		t.Fatal(err)
	}
	if p.State() != Unregistered || stack.advertising {
		t.Errorf("after Stop: state %s advertising %v", p.State(), stack.advertising)
	}
	stack.device("dev_B", true)
	if p.State() != Unregistered {
		t.Errorf("connect after Stop changed state to %s", p.State())
	}
	close(stack.signals)
}

func TestConnectTrackingUnavailable(t *testing.T) {
	stack := &fakeStack{connectErr: errors.New("no system bus")}
	sender := &captureSender{}
	p := NewPeripheral(stack, sender, testSettings, zaptest.NewLogger(t))
	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if p.State() != Advertising {
		t.Errorf("state = %s, want advertising", p.State())
	}
	stack.write([]byte{0x2a})
	if len(sender.frames) != 1 {
		t.Errorf("frames = %d, want 1", len(sender.frames))
	}
}

func TestHandleWrite(t *testing.T) {
	tests := []struct {
		name  string
		value []byte
		want  []byte
	}{
		{"single byte", []byte{0x64}, []byte{0x64, 0, 0, 0}},
		{"two bytes", []byte{0x64, 0x00}, []byte{0x64, 0, 0, 0}},
		{"four bytes", []byte{0x10, 0x27, 0, 0}, []byte{0x10, 0x27, 0, 0}},
		{"empty", []byte{}, nil},
		{"overflow", []byte{1, 2, 3, 4, 5}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stack := &fakeStack{}
			sender := &captureSender{}
			var hooked []uint32
			p := NewPeripheral(stack, sender, testSettings, zaptest.NewLogger(t),
				WithSpeedHook(func(v uint32) { hooked = append(hooked, v) }))
			if err := p.Start(); err != nil {
				t.Fatal(err)
			}

			stack.write(tt.value)

			if tt.want == nil {
				if len(sender.frames) != 0 || len(hooked) != 0 {
					t.Errorf("malformed write forwarded: %v %v", sender.frames, hooked)
				}
				return
			}
			if len(sender.frames) != 1 || !bytes.Equal(sender.frames[0], tt.want) {
				t.Errorf("frames = %x, want %x", sender.frames, tt.want)
			}
			if len(hooked) != 1 {
				t.Errorf("speed hook calls = %d", len(hooked))
			}
		})
	}
}

func TestWriteReachesSpeedEndpoint(t *testing.T) {
	logger := zaptest.NewLogger(t)
	path := filepath.Join(t.TempDir(), "speed.sock")
	l, err := transport.Listen(path, logger)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	got := make(chan []byte, 1)
	go l.Serve(ctx, func(p []byte) { got <- bytes.Clone(p) })

	stack := &fakeStack{}
	p := NewPeripheral(stack, transport.NewDatagram(path), testSettings, logger)
	if err := p.Start(); err != nil {
		t.Fatal(err)
	}
	stack.write([]byte{0x64, 0x00})

	select {
	case frame := <-got:
		if !bytes.Equal(frame, []byte{0x64, 0x00, 0x00, 0x00}) {
			t.Errorf("frame = % x, want 64 00 00 00", frame)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no datagram on the speed endpoint")
	}
}

func TestWriteWithoutListenerIsHarmless(t *testing.T) {
	stack := &fakeStack{}
	sender := transport.NewDatagram(filepath.Join(t.TempDir(), "absent.sock"))
	p := NewPeripheral(stack, sender, testSettings, zaptest.NewLogger(t))
	if err := p.Start(); err != nil {
		t.Fatal(err)
	}
	stack.write([]byte{0x01})
	if p.State() != Advertising {
		t.Errorf("state = %s", p.State())
	}
}
