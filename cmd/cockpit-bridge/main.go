// Cockpit bridge
// Forwards BLE speed writes and BlueZ media state to the cockpit UI
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/google/uuid"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/hneelabh/LVGL-Cockpit/internal/ble"
	"github.com/hneelabh/LVGL-Cockpit/internal/config"
	"github.com/hneelabh/LVGL-Cockpit/internal/handlers"
	"github.com/hneelabh/LVGL-Cockpit/internal/logging"
	"github.com/hneelabh/LVGL-Cockpit/internal/media"
	"github.com/hneelabh/LVGL-Cockpit/internal/poller"
	"github.com/hneelabh/LVGL-Cockpit/internal/transport"
)

func main() {
	fs := pflag.NewFlagSet("cockpit-bridge", pflag.ExitOnError)
	config.RegisterFlags(fs)
	noBLE := fs.Bool("no-ble", false, "run without the BLE peripheral")
	fs.Parse(os.Args[1:])

	cfg, err := config.Load(fs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cockpit-bridge: %v\n", err)
		os.Exit(1)
	}
	if *noBLE {
		cfg.BLE.Enabled = false
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cockpit-bridge: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("bridge stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	logger.Info("cockpit bridge starting",
		zap.String("speed_socket", cfg.Sockets.Speed),
		zap.String("music_socket", cfg.Sockets.Music),
		zap.Duration("interval", cfg.Poll.Interval),
		zap.Bool("ble", cfg.BLE.Enabled))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var peripheral *ble.Peripheral
	var bleState func() string
	if cfg.BLE.Enabled {
		bleState = func() string { return peripheral.State().String() }
	}
	board := handlers.NewBoard(bleState)

	if cfg.BLE.Enabled {
		settings := ble.Settings{
			Name:        cfg.BLE.Name,
			ServiceUUID: uuid.MustParse(cfg.BLE.ServiceUUID),
			SpeedUUID:   uuid.MustParse(cfg.BLE.SpeedUUID),
		}
		peripheral = ble.NewPeripheral(ble.NewTinyGoStack(),
			transport.NewDatagram(cfg.Sockets.Speed),
			settings,
			logger.Named("ble"),
			ble.WithSpeedHook(board.RecordSpeed))
		if err := peripheral.Start(); err != nil {
			return fmt.Errorf("start peripheral: %w", err)
		}
		defer func() {
			if err := peripheral.Stop(); err != nil {
				logger.Warn("stop peripheral", zap.Error(err))
			}
		}()
	}

	watchdog, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		logger.Debug("sd_watchdog_enabled", zap.Error(err))
	}

	reader := media.NewReader(media.NewSystemBus(), logger.Named("media"))
	loop := poller.New(reader, transport.NewDatagram(cfg.Sockets.Music), cfg.Poll.Interval, logger.Named("poller"),
		poller.WithTickTimeout(cfg.Poll.Timeout),
		poller.WithTickHook(func(snap media.Snapshot, ok bool) {
			board.RecordTick(snap, ok)
			if watchdog > 0 {
				if _, err := daemon.SdNotify(false, daemon.SdNotifyWatchdog); err != nil {
					logger.Debug("sd_notify watchdog", zap.Error(err))
				}
			}
		}))

	var srv *http.Server
	if cfg.Status.Addr != "" {
		srv = &http.Server{
			Addr:         cfg.Status.Addr,
			Handler:      handlers.NewStatusHandler(board, logger.Named("status")).Routes(),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		}
		go func() {
			logger.Info("status endpoint listening", zap.String("addr", cfg.Status.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("status endpoint failed", zap.Error(err))
			}
		}()
	}

	if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		logger.Debug("sd_notify ready", zap.Error(err))
	}

	err = loop.Run(ctx)

	logger.Info("shutting down bridge")
	if _, nerr := daemon.SdNotify(false, daemon.SdNotifyStopping); nerr != nil {
		logger.Debug("sd_notify stopping", zap.Error(nerr))
	}

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if serr := srv.Shutdown(shutdownCtx); serr != nil {
			logger.Warn("status endpoint shutdown", zap.Error(serr))
		}
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("bridge stopped")
	return nil
}
