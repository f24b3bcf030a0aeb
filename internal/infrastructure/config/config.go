package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all lifecycle-core configuration.
type Config struct {
	Device  DeviceConfig
	Install InstallConfig
	Logging LogConfig
}

// DeviceConfig holds remote command timing configuration.
type DeviceConfig struct {
	// CommandTimeout bounds ordinary remote commands.
	CommandTimeout time.Duration `envconfig:"DEVICE_CMD_TIMEOUT" default:"10s"`
	// LongCommandTimeout bounds slow operations such as install and push.
	LongCommandTimeout time.Duration `envconfig:"DEVICE_LONG_CMD_TIMEOUT" default:"4m"`
	// CleanKillPollInterval is the wait between home-screen polls during a clean kill.
	CleanKillPollInterval time.Duration `envconfig:"DEVICE_CLEAN_KILL_POLL" default:"500ms"`
	// CleanKillPollTries is how many times the home screen is polled during a clean kill.
	CleanKillPollTries int `envconfig:"DEVICE_CLEAN_KILL_TRIES" default:"3"`
}

// InstallConfig holds package installation configuration.
type InstallConfig struct {
	// VerifyGrace is how long to wait before the single re-check of the
	// installed-package list. Some devices lag in reporting new packages.
	VerifyGrace time.Duration `envconfig:"INSTALL_VERIFY_GRACE" default:"5s"`
	// RemoteTmpDir is where apks are staged on the device during install.
	RemoteTmpDir string `envconfig:"INSTALL_REMOTE_TMP_DIR" default:"/data/local/tmp"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Device: DeviceConfig{
			CommandTimeout:        10 * time.Second,
			LongCommandTimeout:    4 * time.Minute,
			CleanKillPollInterval: 500 * time.Millisecond,
			CleanKillPollTries:    3,
		},
		Install: InstallConfig{
			VerifyGrace:  5 * time.Second,
			RemoteTmpDir: "/data/local/tmp",
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
	}
}
