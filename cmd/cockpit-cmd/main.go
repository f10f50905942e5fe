// Cockpit command listener
// Turns NEXT/PREV/PLAYPAUSE datagrams from the UI into player actions
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/hneelabh/LVGL-Cockpit/internal/command"
	"github.com/hneelabh/LVGL-Cockpit/internal/config"
	"github.com/hneelabh/LVGL-Cockpit/internal/logging"
	"github.com/hneelabh/LVGL-Cockpit/internal/media"
	"github.com/hneelabh/LVGL-Cockpit/internal/transport"
)

func main() {
	fs := pflag.NewFlagSet("cockpit-cmd", pflag.ExitOnError)
	config.RegisterFlags(fs)
	fs.String("control.backend", config.BackendPlayerctl, "player control backend (playerctl, bluez)")
	fs.String("control.player", "", "restrict playerctl to one player")
	fs.Parse(os.Args[1:])

	cfg, err := config.Load(fs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cockpit-cmd: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cockpit-cmd: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("command listener stopped", zap.Error(err))
	}
}

func newActuator(cfg *config.Config) command.Actuator {
	if cfg.Control.Backend == config.BackendBluez {
		return command.NewBluez(media.NewSystemBus())
	}
	return &command.Playerctl{Tool: cfg.Control.Tool, Player: cfg.Control.Player}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	l, err := transport.Listen(cfg.Sockets.Command, logger.Named("transport"))
	if err != nil {
		return err
	}
	defer l.Close()

	logger.Info("command listener ready",
		zap.String("socket", l.Path()),
		zap.String("backend", cfg.Control.Backend))

	if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		logger.Debug("sd_notify ready", zap.Error(err))
	}

	d := command.NewDispatcher(newActuator(cfg), cfg.Control.Timeout, logger.Named("command"))
	err = d.Serve(ctx, l)

	if _, nerr := daemon.SdNotify(false, daemon.SdNotifyStopping); nerr != nil {
		logger.Debug("sd_notify stopping", zap.Error(nerr))
	}
	logger.Info("command listener stopped")
	return err
}
