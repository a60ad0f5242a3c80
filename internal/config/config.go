package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix                  = "PATHSHALA"
	defaultDatabasePath        = "pathshala.db"
	defaultLogLevel            = "info"
	defaultSyncInterval        = 30 * time.Second
	defaultPendingPollInterval = 5 * time.Second
	defaultSimulatedLatency    = 1500 * time.Millisecond
	defaultRemoteAddress       = "0.0.0.0:8080"
)

// AppConfig captures runtime configuration for the study client and the
// remote sync authority.
type AppConfig struct {
	DatabasePath        string
	LogLevel            string
	SyncInterval        time.Duration
	PendingPollInterval time.Duration
	SimulatedLatency    time.Duration
	RemoteURL           string
	RemoteAddress       string
	SyncSigningSecret   string
	DeviceName          string
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("sync.interval", defaultSyncInterval)
	configViper.SetDefault("sync.pending_poll_interval", defaultPendingPollInterval)
	configViper.SetDefault("sync.simulated_latency", defaultSimulatedLatency)
	configViper.SetDefault("remote.url", "")
	configViper.SetDefault("remote.address", defaultRemoteAddress)
	configViper.SetDefault("device.name", "")
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		DatabasePath:        configViper.GetString("database.path"),
		LogLevel:            configViper.GetString("log.level"),
		SyncInterval:        configViper.GetDuration("sync.interval"),
		PendingPollInterval: configViper.GetDuration("sync.pending_poll_interval"),
		SimulatedLatency:    configViper.GetDuration("sync.simulated_latency"),
		RemoteURL:           configViper.GetString("remote.url"),
		RemoteAddress:       configViper.GetString("remote.address"),
		SyncSigningSecret:   configViper.GetString("sync.signing_secret"),
		DeviceName:          configViper.GetString("device.name"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.SyncInterval <= 0 {
		return fmt.Errorf("sync.interval must be positive")
	}
	if c.PendingPollInterval <= 0 {
		return fmt.Errorf("sync.pending_poll_interval must be positive")
	}
	if strings.TrimSpace(c.RemoteURL) != "" && strings.TrimSpace(c.SyncSigningSecret) == "" {
		return fmt.Errorf("sync.signing_secret is required when remote.url is set")
	}
	return nil
}
