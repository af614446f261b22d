package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nerrad567/gray-logic-ezviz/internal/ezviz"
)

// Config is the root configuration structure for the EZVIZ bridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Bridge    BridgeConfig    `yaml:"bridge"`
	EZVIZ     EZVIZConfig     `yaml:"ezviz"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Security  SecurityConfig  `yaml:"security"`
}

// BridgeConfig contains polling and timing settings for the bridge itself.
type BridgeConfig struct {
	ID       string `yaml:"id"`
	Timezone string `yaml:"timezone"`

	// PollInterval is the fixed status polling period.
	// Default: 2s
	PollInterval time.Duration `yaml:"poll_interval"`

	// PulseDuration is how long an alarm observation stays on after a new alarm.
	// Default: 3s
	PulseDuration time.Duration `yaml:"pulse_duration"`

	// FetchTimeout bounds a single status fetch.
	// Default: 10s
	FetchTimeout time.Duration `yaml:"fetch_timeout"`

	// HealthInterval is how often health is published to MQTT.
	// Default: 30s
	HealthInterval time.Duration `yaml:"health_interval"`
}

// EZVIZConfig contains the cloud account and target device.
type EZVIZConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Region   string `yaml:"region"`
	Serial   string `yaml:"serial"`

	// Token is an optional pre-existing session. When set, login is skipped.
	Token TokenConfig `yaml:"token"`

	// UserAgent is sent with alarm image downloads.
	// Default: "EZVIZ/5.0"
	UserAgent string `yaml:"user_agent"`

	// RequestTimeout bounds cloud API calls.
	// Default: 15s
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// ImageTimeout bounds alarm image downloads.
	// Default: 15s
	ImageTimeout time.Duration `yaml:"image_timeout"`
}

// TokenConfig is a cached cloud session supplied through configuration.
type TokenConfig struct {
	SessionID        string `yaml:"session_id"`
	RefreshSessionID string `yaml:"rf_session_id"`
	Username         string `yaml:"username"`
	APIURL           string `yaml:"api_url"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`

	// HistoryRetention is how long snapshot and alarm history is kept.
	// Zero keeps history forever.
	// Default: 720h (30 days)
	HistoryRetention time.Duration `yaml:"history_retention"`
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
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
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

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
}

// JWTConfig contains JWT settings for the HTTP API.
// An empty secret disables authentication on the API.
type JWTConfig struct {
	Secret         string `yaml:"secret"`
	AccessTokenTTL int    `yaml:"access_token_ttl"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: EZVIZBRIDGE_SECTION_KEY
// For example: EZVIZBRIDGE_EZVIZ_PASSWORD, EZVIZBRIDGE_MQTT_HOST
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
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

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Bridge: BridgeConfig{
			ID:             "ezviz-01",
			Timezone:       "Local",
			PollInterval:   2 * time.Second,
			PulseDuration:  3 * time.Second,
			FetchTimeout:   10 * time.Second,
			HealthInterval: 30 * time.Second,
		},
		EZVIZ: EZVIZConfig{
			Region:         "eu",
			UserAgent:      "EZVIZ/5.0",
			RequestTimeout: 15 * time.Second,
			ImageTimeout:   15 * time.Second,
		},
		Database: DatabaseConfig{
			Path:             "./data/ezvizbridge.db",
			WALMode:          true,
			BusyTimeout:      5,
			HistoryRetention: 30 * 24 * time.Hour,
		},
		MQTT: MQTTConfig{
			Enabled: true,
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "graylogic-ezviz",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    8090,
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
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				AccessTokenTTL: 60,
			},
		},
	}
}

// envOverrides binds EZVIZBRIDGE_SECTION_KEY variables to the string
// fields they replace.
func envOverrides(cfg *Config) map[string]*string {
	return map[string]*string{
		"EZVIZBRIDGE_BRIDGE_TIMEZONE": &cfg.Bridge.Timezone,
		"EZVIZBRIDGE_EZVIZ_USERNAME":  &cfg.EZVIZ.Username,
		"EZVIZBRIDGE_EZVIZ_PASSWORD":  &cfg.EZVIZ.Password,
		"EZVIZBRIDGE_EZVIZ_REGION":    &cfg.EZVIZ.Region,
		"EZVIZBRIDGE_EZVIZ_SERIAL":    &cfg.EZVIZ.Serial,
		"EZVIZBRIDGE_DATABASE_PATH":   &cfg.Database.Path,
		"EZVIZBRIDGE_MQTT_HOST":       &cfg.MQTT.Broker.Host,
		"EZVIZBRIDGE_MQTT_USERNAME":   &cfg.MQTT.Auth.Username,
		"EZVIZBRIDGE_MQTT_PASSWORD":   &cfg.MQTT.Auth.Password,
		"EZVIZBRIDGE_INFLUXDB_URL":    &cfg.InfluxDB.URL,
		"EZVIZBRIDGE_INFLUXDB_TOKEN":  &cfg.InfluxDB.Token,
		"EZVIZBRIDGE_LOGGING_LEVEL":   &cfg.Logging.Level,
		"EZVIZBRIDGE_JWT_SECRET":      &cfg.Security.JWT.Secret,
	}
}

// applyEnvOverrides replaces fields whose environment variable is set and
// non-empty.
func applyEnvOverrides(cfg *Config) {
	for name, field := range envOverrides(cfg) {
		if v := os.Getenv(name); v != "" {
			*field = v
		}
	}
}

// Validate checks the configuration for errors.
//
// The device serial is not required here: listing devices only needs the account.
// Callers that poll a device check HasDevice.
//
// Returns:
//   - error: Description of every validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Bridge.ID == "" {
		errs = append(errs, "bridge.id is required")
	}
	if c.Bridge.PollInterval <= 0 {
		errs = append(errs, "bridge.poll_interval must be positive")
	}
	if c.Bridge.PulseDuration <= 0 {
		errs = append(errs, "bridge.pulse_duration must be positive")
	}
	if _, err := time.LoadLocation(c.Bridge.Timezone); err != nil {
		errs = append(errs, fmt.Sprintf("bridge.timezone %q is not a known location", c.Bridge.Timezone))
	}

	if c.EZVIZ.Username == "" && c.EZVIZ.Token.SessionID == "" {
		errs = append(errs, "ezviz.username is required (set EZVIZBRIDGE_EZVIZ_USERNAME)")
	}
	if c.EZVIZ.Password == "" && c.EZVIZ.Token.SessionID == "" {
		errs = append(errs, "ezviz.password or ezviz.token.session_id is required")
	}
	if !ezviz.KnownRegion(c.EZVIZ.Region) {
		errs = append(errs, fmt.Sprintf("ezviz.region must be one of %s", strings.Join(ezviz.Regions(), ", ")))
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}
	if c.Database.HistoryRetention < 0 {
		errs = append(errs, "database.history_retention must not be negative")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	const minJWTSecretLength = 32
	if c.Security.JWT.Secret != "" && len(c.Security.JWT.Secret) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// HasDevice reports whether a device serial has been configured.
func (c *Config) HasDevice() bool {
	return strings.TrimSpace(c.EZVIZ.Serial) != ""
}

// Location returns the timezone used to interpret device timestamps.
// Falls back to the local zone if the configured name cannot be loaded.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Bridge.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
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
