// Package poller drives the fixed-interval media poll: read a snapshot,
// encode it, forward it.
package poller

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/hneelabh/LVGL-Cockpit/internal/media"
	"github.com/hneelabh/LVGL-Cockpit/internal/transport"
)

// SnapshotReader yields at most one snapshot per call.
type SnapshotReader interface {
	ReadSnapshot(ctx context.Context) (media.Snapshot, bool)
}

// TickFunc observes the outcome of a completed tick. ok is false when no
// snapshot was produced.
type TickFunc func(snap media.Snapshot, ok bool)

// Loop is a single, never-overlapping poll loop.
type Loop struct {
	reader   SnapshotReader
	sender   transport.Sender
	interval time.Duration
	timeout  time.Duration
	logger   *zap.Logger
	onTick   []TickFunc
}

// Option configures a Loop.
type Option func(*Loop)

// WithTickTimeout bounds the bus work of a single tick.
func WithTickTimeout(d time.Duration) Option {
	return func(l *Loop) { l.timeout = d }
}

// WithTickHook registers fn to run after every tick.
func WithTickHook(fn TickFunc) Option {
	return func(l *Loop) { l.onTick = append(l.onTick, fn) }
}

// New returns a loop that polls reader every interval and sends encoded
// snapshots through sender.
func New(reader SnapshotReader, sender transport.Sender, interval time.Duration, logger *zap.Logger, opts ...Option) *Loop {
	l := &Loop{
		reader:   reader,
		sender:   sender,
		interval: interval,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Tick performs one poll. When there is no snapshot nothing is sent and the
// consumer keeps its last frame. It reports whether a snapshot was produced.
func (l *Loop) Tick(ctx context.Context) bool {
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	snap, ok := l.reader.ReadSnapshot(ctx)
	if ok {
		payload := snap.Encode()
		if len(payload) > media.RecommendedFrameSize {
			l.logger.Debug("music frame exceeds recommended size",
				zap.Int("bytes", len(payload)),
				zap.Int("recommended", media.RecommendedFrameSize))
		}
		if err := l.sender.Send(payload); err != nil {
			l.logger.Debug("music frame dropped", zap.Error(err))
		}
	}

	for _, fn := range l.onTick {
		fn(snap, ok)
	}
	return ok
}

// Run ticks until ctx is cancelled. Ticks are spaced by interval measured
// from the start of each tick; a tick that overruns is followed immediately
// by the next one, without catching up on the missed ones.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Info("poll loop started", zap.Duration("interval", l.interval))
	defer l.logger.Info("poll loop stopped")

	for {
		if ctx.Err() != nil {
			return nil
		}

		start := time.Now()
		l.Tick(ctx)

		wait := l.interval - time.Since(start)
		if wait <= 0 {
			continue
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}
