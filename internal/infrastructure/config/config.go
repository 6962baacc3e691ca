package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for plcd.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Universe UniverseConfig `yaml:"universe"`
	Saving   SavingConfig   `yaml:"saving"`
	Defaults DefaultsConfig `yaml:"defaults"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	OSC      OSCConfig      `yaml:"osc"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig contains the client-facing HTTP and WebSocket listener settings.
type ServerConfig struct {
	Address   string           `yaml:"address"`
	Port      int              `yaml:"port"`
	Timeouts  APITimeoutConfig `yaml:"timeouts"`
	WebSocket WebSocketConfig  `yaml:"websocket"`
	CORS      CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
	SendQueue      int    `yaml:"send_queue"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// UniverseConfig describes the channel universe and its live I/O.
type UniverseConfig struct {
	// Channels is the number of slots in the universe.
	Channels int `yaml:"channels"`

	// Mode selects how computed output and live input combine: "output", "htp" or "ltp".
	Mode string `yaml:"mode"`

	// Input is the live input source: "none", "mqtt" or "osc".
	Input string `yaml:"input"`

	// Output is the frame sink: "none", "mqtt" or "osc".
	Output string `yaml:"output"`

	// IntervalMS is how often the current frame is re-sent to the sink.
	IntervalMS int `yaml:"interval_ms"`

	// AllowUnreconciledInput lets the server start output-only when the
	// input source cannot be opened.
	AllowUnreconciledInput bool `yaml:"allow_unreconciled_input"`

	// InputQueue bounds the hand-off from the input driver to the controller.
	InputQueue int `yaml:"input_queue"`
}

// SavingConfig controls snapshot persistence.
type SavingConfig struct {
	Autosave      bool           `yaml:"autosave"`
	Backend       string         `yaml:"backend"`
	FormatVersion int            `yaml:"format_version"`
	Database      DatabaseConfig `yaml:"database"`
	Redis         RedisConfig    `yaml:"redis"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// RedisConfig contains Redis snapshot store settings.
type RedisConfig struct {
	Address   string `yaml:"address"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

// DefaultsConfig holds default tables for entity attributes.
type DefaultsConfig struct {
	Cue map[string]any `yaml:"cue"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
	Topics    MQTTTopicsConfig    `yaml:"topics"`
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

// MQTTTopicsConfig names the topics carrying raw universe frames.
type MQTTTopicsConfig struct {
	Input  string `yaml:"input"`
	Output string `yaml:"output"`
	Status string `yaml:"status"`
}

// OSCConfig contains OSC input listener and output target settings.
type OSCConfig struct {
	ListenAddress string `yaml:"listen_address"`
	ListenPort    int    `yaml:"listen_port"`
	TargetHost    string `yaml:"target_host"`
	TargetPort    int    `yaml:"target_port"`
	InputPath     string `yaml:"input_path"`
	OutputPath    string `yaml:"output_path"`
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

// Universe mixing modes.
const (
	ModeOutput = "output"
	ModeHTP    = "htp"
	ModeLTP    = "ltp"
)

// I/O selectors for UniverseConfig.Input and UniverseConfig.Output.
const (
	IONone = "none"
	IOMQTT = "mqtt"
	IOOSC  = "osc"
)

// Snapshot store backends.
const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: PLC_SECTION_KEY
// For example: PLC_SERVER_PORT, PLC_SAVING_DATABASE_PATH
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
		Server: ServerConfig{
			Address: "",
			Port:    7832,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
			WebSocket: WebSocketConfig{
				Path:           "/ws",
				MaxMessageSize: 65536,
				PingInterval:   30,
				PongTimeout:    10,
				SendQueue:      256,
			},
		},
		Universe: UniverseConfig{
			Channels:   512,
			Mode:       ModeOutput,
			Input:      IONone,
			Output:     IONone,
			IntervalMS: 1000,
			InputQueue: 64,
		},
		Saving: SavingConfig{
			Autosave:      true,
			Backend:       BackendSQLite,
			FormatVersion: 2,
			Database: DatabaseConfig{
				Path:        "./data/plc.db",
				WALMode:     true,
				BusyTimeout: 5,
			},
			Redis: RedisConfig{
				Address:   "localhost:6379",
				KeyPrefix: "plc",
			},
		},
		Defaults: DefaultsConfig{
			Cue: map[string]any{
				"up":         3.0,
				"down":       3.0,
				"upwait":     0.0,
				"downwait":   0.0,
				"follow":     false,
				"followtime": 0.0,
			},
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "plcd",
			},
			QoS: 0,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
			Topics: MQTTTopicsConfig{
				Input:  "plc/universe/input",
				Output: "plc/universe/output",
				Status: "plc/status",
			},
		},
		OSC: OSCConfig{
			ListenAddress: "0.0.0.0",
			ListenPort:    7700,
			TargetHost:    "127.0.0.1",
			TargetPort:    7701,
			InputPath:     "/plc/input",
			OutputPath:    "/plc/output",
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
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: PLC_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Server
	if v := os.Getenv("PLC_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("PLC_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}

	// Saving
	if v := os.Getenv("PLC_SAVING_DATABASE_PATH"); v != "" {
		cfg.Saving.Database.Path = v
	}
	if v := os.Getenv("PLC_SAVING_REDIS_ADDRESS"); v != "" {
		cfg.Saving.Redis.Address = v
	}
	if v := os.Getenv("PLC_SAVING_REDIS_PASSWORD"); v != "" {
		cfg.Saving.Redis.Password = v
	}

	// MQTT
	if v := os.Getenv("PLC_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("PLC_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("PLC_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("PLC_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Logging
	if v := os.Getenv("PLC_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of every validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}
	if c.Server.WebSocket.SendQueue < 1 {
		errs = append(errs, "server.websocket.send_queue must be positive")
	}

	if c.Universe.Channels < 1 || c.Universe.Channels > 512 {
		errs = append(errs, "universe.channels must be between 1 and 512")
	}
	switch c.Universe.Mode {
	case ModeOutput, ModeHTP, ModeLTP:
	default:
		errs = append(errs, "universe.mode must be output, htp or ltp")
	}
	if !validIO(c.Universe.Input) {
		errs = append(errs, "universe.input must be none, mqtt or osc")
	}
	if !validIO(c.Universe.Output) {
		errs = append(errs, "universe.output must be none, mqtt or osc")
	}
	if c.Universe.IntervalMS < 0 {
		errs = append(errs, "universe.interval_ms must not be negative")
	}
	if c.Universe.InputQueue < 1 {
		errs = append(errs, "universe.input_queue must be positive")
	}

	switch c.Saving.Backend {
	case BackendSQLite:
		if c.Saving.Database.Path == "" {
			errs = append(errs, "saving.database.path is required")
		}
	case BackendRedis:
		if c.Saving.Redis.Address == "" {
			errs = append(errs, "saving.redis.address is required")
		}
	default:
		errs = append(errs, "saving.backend must be sqlite or redis")
	}
	if c.Saving.FormatVersion < 1 || c.Saving.FormatVersion > 2 {
		errs = append(errs, "saving.format_version must be 1 or 2")
	}

	for name, v := range c.Defaults.Cue {
		switch v.(type) {
		case int, float64, bool, string:
		default:
			errs = append(errs, fmt.Sprintf("defaults.cue.%s has unsupported type %T", name, v))
		}
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func validIO(v string) bool {
	switch v {
	case IONone, IOMQTT, IOOSC:
		return true
	}
	return false
}

// ListenAddr returns the host:port the server binds to.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Address, c.Server.Port)
}

// GetReadTimeout returns the server read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.Server.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the server write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.Server.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the server idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.Server.Timeouts.Idle) * time.Second
}

// GetFrameInterval returns the universe refresh interval as a Duration.
func (c *Config) GetFrameInterval() time.Duration {
	return time.Duration(c.Universe.IntervalMS) * time.Millisecond
}
