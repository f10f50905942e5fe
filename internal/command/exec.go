package command

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

const defaultExecTimeout = 5 * time.Second

// execWithTimeout runs a command, applying a default timeout when ctx has no
// deadline of its own.
func execWithTimeout(ctx context.Context, name string, args ...string) (string, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultExecTimeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.CombinedOutput()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return string(out), fmt.Errorf("command timed out")
	}
	return string(out), err
}

// Playerctl drives the active MPRIS player through the playerctl CLI.
type Playerctl struct {
	// Tool is the binary to run, normally "playerctl".
	Tool string
	// Player restricts control to one player name when set.
	Player string
}

// Invoke runs `<tool> [--player=<name>] <action>`.
func (p *Playerctl) Invoke(ctx context.Context, action Action) error {
	var args []string
	if p.Player != "" {
		args = append(args, "--player="+p.Player)
	}
	args = append(args, string(action))

	out, err := execWithTimeout(ctx, p.Tool, args...)
	if err != nil {
		if msg := strings.TrimSpace(out); msg != "" {
			return fmt.Errorf("%s %s: %w: %s", p.Tool, action, err, msg)
		}
		return fmt.Errorf("%s %s: %w", p.Tool, action, err)
	}
	return nil
}
