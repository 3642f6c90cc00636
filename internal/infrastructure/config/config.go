package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the playout server.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Studio    StudioConfig    `yaml:"studio"`
	ShowStyle ShowStyleConfig `yaml:"show_style"`
	Playout   PlayoutConfig   `yaml:"playout"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// StudioConfig identifies the studio and the objects it keeps on air at all times.
type StudioConfig struct {
	ID       string           `yaml:"id"`
	Name     string           `yaml:"name"`
	Baseline []BaselineObject `yaml:"baseline"`
}

// BaselineObject is a device object that stays on air whether or not a
// playlist is active.
type BaselineObject struct {
	ID      string         `yaml:"id"`
	Layer   string         `yaml:"layer"`
	Content map[string]any `yaml:"content"`
}

// ShowStyleConfig is handed to the blueprint hooks.
type ShowStyleConfig struct {
	ID                string   `yaml:"id"`
	Name              string   `yaml:"name"`
	Blueprint         string   `yaml:"blueprint"` // "standard" or "noop"
	DefaultAudioLevel float64  `yaml:"default_audio_level"`
	AudioLayers       []string `yaml:"audio_layers"`
}

// PlayoutConfig tunes the playout engine. Durations are milliseconds.
type PlayoutConfig struct {
	SimulationWindow int64  `yaml:"simulation_window"`
	MinimumTakeSpan  int64  `yaml:"minimum_take_span"`
	TopicPrefix      string `yaml:"topic_prefix"`
	PublishQoS       int    `yaml:"publish_qos"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: PLAYOUT_SECTION_KEY
// For example: PLAYOUT_DATABASE_PATH, PLAYOUT_STUDIO_ID
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns the built-in configuration with environment overrides
// applied. It is used when no config file is given.
func Default() *Config {
	cfg := defaultConfig()
	applyEnvOverrides(cfg)
	return cfg
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Studio: StudioConfig{
			ID:   "studio0",
			Name: "Studio",
		},
		ShowStyle: ShowStyleConfig{
			ID:                "default",
			Name:              "Default",
			Blueprint:         "standard",
			DefaultAudioLevel: 1,
		},
		Playout: PlayoutConfig{
			SimulationWindow: 3000,
			MinimumTakeSpan:  1000,
			TopicPrefix:      "playout",
			PublishQoS:       1,
		},
		Database: DatabaseConfig{
			Path:        "./data/playout.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Enabled: true,
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "playout-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 3000,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: PLAYOUT_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Studio
	if v := os.Getenv("PLAYOUT_STUDIO_ID"); v != "" {
		cfg.Studio.ID = v
	}

	// Playout
	if v := os.Getenv("PLAYOUT_MINIMUM_TAKE_SPAN"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Playout.MinimumTakeSpan = n
		}
	}

	// Database
	if v := os.Getenv("PLAYOUT_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("PLAYOUT_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("PLAYOUT_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("PLAYOUT_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("PLAYOUT_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// InfluxDB
	if v := os.Getenv("PLAYOUT_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Logging
	if v := os.Getenv("PLAYOUT_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Studio.ID == "" {
		errs = append(errs, "studio.id is required")
	}
	seen := make(map[string]bool, len(c.Studio.Baseline))
	for i, obj := range c.Studio.Baseline {
		switch {
		case obj.ID == "":
			errs = append(errs, fmt.Sprintf("studio.baseline[%d].id is required", i))
		case seen[obj.ID]:
			errs = append(errs, fmt.Sprintf("studio.baseline[%d].id %q is duplicated", i, obj.ID))
		}
		seen[obj.ID] = true
		if obj.Layer == "" {
			errs = append(errs, fmt.Sprintf("studio.baseline[%d].layer is required", i))
		}
	}

	switch c.ShowStyle.Blueprint {
	case "", "standard", "noop":
	default:
		errs = append(errs, "show_style.blueprint must be standard or noop")
	}

	if c.Playout.SimulationWindow < 0 {
		errs = append(errs, "playout.simulation_window must not be negative")
	}
	if c.Playout.MinimumTakeSpan < 0 {
		errs = append(errs, "playout.minimum_take_span must not be negative")
	}
	if c.Playout.PublishQoS < 0 || c.Playout.PublishQoS > 2 {
		errs = append(errs, "playout.publish_qos must be 0, 1, or 2")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
