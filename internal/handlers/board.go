package handlers

import (
	"sync/atomic"
	"time"

	"github.com/hneelabh/LVGL-Cockpit/internal/media"
)

// Board collects what the bridge last forwarded. Writers are the poll loop
// and the BLE write path; readers are HTTP requests. It never feeds back into
// the data path.
type Board struct {
	started time.Time

	bleState     func() string
	lastSpeed    atomic.Uint32
	speedWrites  atomic.Uint64
	lastSnapshot atomic.Pointer[media.Snapshot]
	lastTick     atomic.Int64
	ticksSent    atomic.Uint64
	ticksEmpty   atomic.Uint64
}

// NewBoard returns an empty board. bleState reports the peripheral state on
// demand; nil means BLE is disabled.
func NewBoard(bleState func() string) *Board {
	if bleState == nil {
		bleState = func() string { return "disabled" }
	}
	return &Board{started: time.Now(), bleState: bleState}
}

// RecordSpeed records a forwarded speed value.
func (b *Board) RecordSpeed(v uint32) {
	b.lastSpeed.Store(v)
	b.speedWrites.Add(1)
}

// RecordTick records the outcome of one poll tick.
func (b *Board) RecordTick(snap media.Snapshot, ok bool) {
	b.lastTick.Store(time.Now().UnixNano())
	if !ok {
		b.ticksEmpty.Add(1)
		return
	}
	b.ticksSent.Add(1)
	b.lastSnapshot.Store(&snap)
}

// Report is the JSON view of a Board.
type Report struct {
	BLEState     string          `json:"ble_state"`
	LastSpeed    uint32          `json:"last_speed"`
	SpeedWrites  uint64          `json:"speed_writes"`
	LastSnapshot *media.Snapshot `json:"last_snapshot,omitempty"`
	LastTick     *time.Time      `json:"last_tick,omitempty"`
	TicksSent    uint64          `json:"ticks_sent"`
	TicksEmpty   uint64          `json:"ticks_empty"`
	Uptime       string          `json:"uptime"`
}

// Report returns a point-in-time copy of the board.
func (b *Board) Report() Report {
	r := Report{
		BLEState:    b.bleState(),
		LastSpeed:   b.lastSpeed.Load(),
		SpeedWrites: b.speedWrites.Load(),
		TicksSent:   b.ticksSent.Load(),
		TicksEmpty:  b.ticksEmpty.Load(),
		Uptime:      time.Since(b.started).Truncate(time.Second).String(),
	}
	if s := b.lastSnapshot.Load(); s != nil {
		snap := *s
		r.LastSnapshot = &snap
	}
	if ns := b.lastTick.Load(); ns != 0 {
		t := time.Unix(0, ns)
		r.LastTick = &t
	}
	return r
}
