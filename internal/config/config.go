package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Config represents the complete application configuration
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Push       PushConfig       `yaml:"push"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	Reminder   ReminderConfig   `yaml:"reminder"`
	Validation ValidationConfig `yaml:"validation"`
	Logging    LoggingConfig    `yaml:"logging"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Addr         string `yaml:"addr"`
	ReadTimeout  int    `yaml:"read_timeout"`
	WriteTimeout int    `yaml:"write_timeout"`
	IdleTimeout  int    `yaml:"idle_timeout"`
}

// StorageConfig contains durable storage settings
type StorageConfig struct {
	DataDir string `yaml:"data_dir"`

	// Backend selects the persistence implementation: "file" or "memory"
	Backend string `yaml:"backend"`
}

// PushConfig contains push provider settings
type PushConfig struct {
	VAPIDPublicKey  string `yaml:"vapid_public_key"`
	VAPIDPrivateKey string `yaml:"vapid_private_key"`
	Subscriber      string `yaml:"subscriber"`
	TTLSeconds      int    `yaml:"ttl_seconds"`
	SendTimeoutSecs int    `yaml:"send_timeout_seconds"`
	Icon            string `yaml:"icon"`
}

// SchedulerConfig contains notification scheduler settings
type SchedulerConfig struct {
	// Maximum delay one timer arming may request, in hours
	MaxTimerDelayHours int `yaml:"max_timer_delay_hours"`

	// Remove fired one-shot notification records from the store
	CleanupFired bool `yaml:"cleanup_fired"`
}

// ReminderConfig contains task reminder derivation settings
type ReminderConfig struct {
	// Postgres DSN of the task database; empty disables reminder derivation
	DatabaseURL string `yaml:"database_url"`

	// How far into the past reminders are still picked up, in hours
	LookbackHours int `yaml:"lookback_hours"`

	// Interval between reminder derivation batches, in hours
	DailyIntervalHours int `yaml:"daily_interval_hours"`
}

// ValidationConfig contains subscription validation sweep settings
type ValidationConfig struct {
	Enabled bool `yaml:"enabled"`

	// Delay before the startup sweep, in seconds
	WarmupSeconds int `yaml:"warmup_seconds"`

	// Interval between recurring sweeps, in hours
	IntervalHours int `yaml:"interval_hours"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level         string            `yaml:"level"`
	Format        string            `yaml:"format"`
	IncludeCaller bool              `yaml:"include_caller"`
	GlobalFields  map[string]string `yaml:"global_fields"`
}

// TelemetryConfig contains OpenTelemetry settings
type TelemetryConfig struct {
	Enabled       bool              `yaml:"enabled"`
	ServiceName   string            `yaml:"service_name"`
	Endpoint      string            `yaml:"endpoint"`
	SamplingRatio float64           `yaml:"sampling_ratio"`
	Attributes    map[string]string `yaml:"attributes"`
}

// MetricsConfig contains metrics settings
type MetricsConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:         ":8080",
			ReadTimeout:  5,
			WriteTimeout: 10,
			IdleTimeout:  120,
		},
		Storage: StorageConfig{
			DataDir: "./data",
			Backend: "file",
		},
		Push: PushConfig{
			Subscriber:      "admin@localhost",
			TTLSeconds:      86400,
			SendTimeoutSecs: 30,
			Icon:            "/icon-192x192.png",
		},
		Scheduler: SchedulerConfig{
			MaxTimerDelayHours: 24,
			CleanupFired:       false,
		},
		Reminder: ReminderConfig{
			LookbackHours:      24,
			DailyIntervalHours: 24,
		},
		Validation: ValidationConfig{
			Enabled:       true,
			WarmupSeconds: 30,
			IntervalHours: 168,
		},
		Logging: LoggingConfig{
			Level:         "info",
			Format:        "json",
			IncludeCaller: true,
			GlobalFields:  map[string]string{},
		},
		Telemetry: TelemetryConfig{
			Enabled:       false,
			ServiceName:   "beacon",
			Endpoint:      "localhost:4317",
			SamplingRatio: 0.1,
			Attributes:    map[string]string{},
		},
		Metrics: MetricsConfig{
			Enabled:  true,
			Endpoint: "/metrics",
		},
	}
}

// LoadConfigFromFile loads configuration from a YAML file
func LoadConfigFromFile(filePath string) (*Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Warn().Str("file", filePath).Msg("Configuration file not found, using defaults")
			return config, nil
		}
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return config, nil
}

// LoadConfig loads configuration from file, environment variables, and flags
func LoadConfig(configFile string, dataDir string, serverAddr string, logLevel string) (*Config, error) {
	var config *Config
	var err error

	if configFile != "" {
		config, err = LoadConfigFromFile(configFile)
		if err != nil {
			return nil, err
		}
	} else {
		config = DefaultConfig()
	}

	applyEnvOverrides(config)

	// Command line flags have the highest priority
	if dataDir != "" {
		absDataDir, err := filepath.Abs(dataDir)
		if err != nil {
			return nil, fmt.Errorf("failed to get absolute path for data directory: %w", err)
		}
		config.Storage.DataDir = absDataDir
	}

	if serverAddr != "" {
		config.Server.Addr = serverAddr
	}

	if logLevel != "" {
		config.Logging.Level = logLevel
	}

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration
func applyEnvOverrides(config *Config) {
	if addr := os.Getenv("BEACON_SERVER_ADDR"); addr != "" {
		config.Server.Addr = addr
	}
	if dataDir := os.Getenv("BEACON_DATA_DIR"); dataDir != "" {
		config.Storage.DataDir = dataDir
	}
	if level := os.Getenv("BEACON_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if format := os.Getenv("BEACON_LOG_FORMAT"); format != "" {
		config.Logging.Format = format
	}
	if dsn := os.Getenv("BEACON_DATABASE_URL"); dsn != "" {
		config.Reminder.DatabaseURL = dsn
	}
	if key := os.Getenv("BEACON_VAPID_PUBLIC_KEY"); key != "" {
		config.Push.VAPIDPublicKey = key
	}
	if key := os.Getenv("BEACON_VAPID_PRIVATE_KEY"); key != "" {
		config.Push.VAPIDPrivateKey = key
	}
}
