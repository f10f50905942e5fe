// Package command maps UI command datagrams onto media-control actions.
package command

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/hneelabh/LVGL-Cockpit/internal/transport"
)

// Command is one of the texts the UI may send.
type Command string

const (
	Next      Command = "NEXT"
	Prev      Command = "PREV"
	PlayPause Command = "PLAYPAUSE"
)

// Action is the media-control operation an Actuator performs. Values are
// playerctl verbs.
type Action string

const (
	ActionNext      Action = "next"
	ActionPrevious  Action = "previous"
	ActionPlayPause Action = "play-pause"
)

// commandActions is the closed dispatch table. Anything not listed here is
// ignored.
var commandActions = map[Command]Action{
	Next:      ActionNext,
	Prev:      ActionPrevious,
	PlayPause: ActionPlayPause,
}

// Parse decodes a datagram. Matching is exact and case-sensitive after
// stripping trailing CR, LF and NUL bytes; invalid UTF-8 never matches.
func Parse(payload []byte) (Command, bool) {
	if !utf8.Valid(payload) {
		return "", false
	}
	cmd := Command(strings.TrimRight(string(payload), "\r\n\x00"))
	if _, ok := commandActions[cmd]; !ok {
		return "", false
	}
	return cmd, true
}

// ActionFor returns the action bound to cmd.
func ActionFor(cmd Command) (Action, bool) {
	a, ok := commandActions[cmd]
	return a, ok
}

// Actuator performs a media-control action outside this process.
type Actuator interface {
	Invoke(ctx context.Context, action Action) error
}

// Dispatcher turns received datagrams into actuator invocations.
type Dispatcher struct {
	actuator Actuator
	timeout  time.Duration
	logger   *zap.Logger
}

// NewDispatcher returns a Dispatcher. timeout bounds each invocation; zero
// means no bound beyond the caller's context.
func NewDispatcher(actuator Actuator, timeout time.Duration, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{actuator: actuator, timeout: timeout, logger: logger}
}

// Dispatch handles one datagram synchronously. It reports whether the
// payload named a known command; actuator failures are logged only.
func (d *Dispatcher) Dispatch(ctx context.Context, payload []byte) bool {
	cmd, ok := Parse(payload)
	if !ok {
		d.logger.Debug("ignoring unknown command", zap.ByteString("payload", payload))
		return false
	}
	action := commandActions[cmd]

	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	d.logger.Info("command received", zap.String("command", string(cmd)), zap.String("action", string(action)))
	if err := d.actuator.Invoke(ctx, action); err != nil {
		d.logger.Warn("media control failed", zap.String("action", string(action)), zap.Error(err))
	}
	return true
}

// Serve receives commands on l until ctx is done. Each command runs in its
// own goroutine, so invocations may overlap; in-flight invocations are
// allowed to finish before Serve returns.
func (d *Dispatcher) Serve(ctx context.Context, l *transport.Listener) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	invokeCtx := context.WithoutCancel(ctx)
	return l.Serve(ctx, func(p []byte) {
		payload := bytes.Clone(p)
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.Dispatch(invokeCtx, payload)
		}()
	})
}
