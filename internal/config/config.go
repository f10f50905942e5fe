// Package config loads bridge and listener settings from defaults, an
// optional YAML file, COCKPIT_* environment variables and command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/hneelabh/LVGL-Cockpit/internal/logging"
)

const (
	envPrefix  = "COCKPIT"
	configName = "cockpit"
	appDir     = "lvgl-cockpit"
)

// Control backends understood by the command listener.
const (
	BackendPlayerctl = "playerctl"
	BackendBluez     = "bluez"
)

// Config holds all runtime settings for both processes.
type Config struct {
	Sockets struct {
		Speed   string `mapstructure:"speed"`
		Music   string `mapstructure:"music"`
		Command string `mapstructure:"command"`
	} `mapstructure:"sockets"`
	Poll struct {
		Interval time.Duration `mapstructure:"interval"`
		Timeout  time.Duration `mapstructure:"timeout"`
	} `mapstructure:"poll"`
	BLE struct {
		Enabled     bool   `mapstructure:"enabled"`
		Name        string `mapstructure:"name"`
		ServiceUUID string `mapstructure:"service_uuid"`
		SpeedUUID   string `mapstructure:"speed_uuid"`
	} `mapstructure:"ble"`
	Control struct {
		Backend string        `mapstructure:"backend"`
		Tool    string        `mapstructure:"tool"`
		Player  string        `mapstructure:"player"`
		Timeout time.Duration `mapstructure:"timeout"`
	} `mapstructure:"control"`
	Status struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"status"`
	Log struct {
		Level       string `mapstructure:"level"`
		Development bool   `mapstructure:"development"`
	} `mapstructure:"log"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("sockets.speed", "/tmp/lvgl_speed.sock")
	v.SetDefault("sockets.music", "/tmp/lvgl_music.sock")
	v.SetDefault("sockets.command", "/tmp/lvgl_cmd.sock")
	v.SetDefault("poll.interval", time.Second)
	v.SetDefault("poll.timeout", 800*time.Millisecond)
	v.SetDefault("ble.enabled", true)
	v.SetDefault("ble.name", "LVGL_Cockpit_Pro")
	v.SetDefault("ble.service_uuid", "00001818-0000-1000-8000-00805f9b34fb")
	v.SetDefault("ble.speed_uuid", "00002A67-0000-1000-8000-00805F9B34FB")
	v.SetDefault("control.backend", BackendPlayerctl)
	v.SetDefault("control.tool", "playerctl")
	v.SetDefault("control.player", "")
	v.SetDefault("control.timeout", 5*time.Second)
	v.SetDefault("status.addr", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// RegisterFlags adds the flags shared by both binaries. Flag names mirror
// the config keys so that viper can bind them directly.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "path to a cockpit.yaml config file")
	fs.String("log.level", "info", "log level (debug, info, warn, error)")
	fs.String("sockets.speed", "/tmp/lvgl_speed.sock", "speed datagram endpoint")
	fs.String("sockets.music", "/tmp/lvgl_music.sock", "music datagram endpoint")
	fs.String("sockets.command", "/tmp/lvgl_cmd.sock", "command datagram endpoint")
	fs.String("status.addr", "", "listen address for the status endpoint (empty disables it)")
}

// Load resolves the configuration. fs may be nil; only flags the user
// actually set override lower layers.
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	explicit := ""
	if fs != nil {
		if f := fs.Lookup("config"); f != nil {
			explicit = f.Value.String()
		}
	}

	if explicit != "" {
		v.SetConfigFile(explicit)
	} else {
		v.SetConfigName(configName)
		v.SetConfigType("yaml")
		v.AddConfigPath(filepath.Join("/etc", appDir))
		if home := configHome(); home != "" {
			v.AddConfigPath(filepath.Join(home, appDir))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicit != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if fs != nil {
		var bindErr error
		fs.Visit(func(f *pflag.Flag) {
			if f.Name == "config" || bindErr != nil {
				return
			}
			bindErr = v.BindPFlag(f.Name, f)
		})
		if bindErr != nil {
			return nil, fmt.Errorf("bind flags: %w", bindErr)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// configHome follows XDG, falling back to ~/.config.
func configHome() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config")
}

// Validate checks every field that a process depends on at startup.
func (c *Config) Validate() error {
	var errs []error

	if c.Sockets.Speed == "" {
		errs = append(errs, errors.New("sockets.speed is required"))
	}
	if c.Sockets.Music == "" {
		errs = append(errs, errors.New("sockets.music is required"))
	}
	if c.Sockets.Command == "" {
		errs = append(errs, errors.New("sockets.command is required"))
	}
	if c.Poll.Interval <= 0 {
		errs = append(errs, fmt.Errorf("poll.interval must be positive, got %s", c.Poll.Interval))
	}
	if c.Poll.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("poll.timeout must be positive, got %s", c.Poll.Timeout))
	}
	if c.BLE.Name == "" {
		errs = append(errs, errors.New("ble.name is required"))
	}
	if _, err := uuid.Parse(c.BLE.ServiceUUID); err != nil {
		errs = append(errs, fmt.Errorf("ble.service_uuid: %w", err))
	}
	if _, err := uuid.Parse(c.BLE.SpeedUUID); err != nil {
		errs = append(errs, fmt.Errorf("ble.speed_uuid: %w", err))
	}
	switch c.Control.Backend {
	case BackendPlayerctl:
		if c.Control.Tool == "" {
			errs = append(errs, errors.New("control.tool is required for the playerctl backend"))
		}
	case BackendBluez:
	default:
		errs = append(errs, fmt.Errorf("control.backend must be %q or %q, got %q", BackendPlayerctl, BackendBluez, c.Control.Backend))
	}
	if c.Control.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("control.timeout must be positive, got %s", c.Control.Timeout))
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
