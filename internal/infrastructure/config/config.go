package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/nerrad567/gray-logic-tpuart/internal/knx"
)

// envPrefix is prepended to every environment override.
const envPrefix = "TPUART_"

// Config is the root configuration structure for the TP-UART gateway.
// Configuration is loaded from YAML or TOML and can be overridden by
// environment variables.
type Config struct {
	Gateway    GatewayConfig     `yaml:"gateway" toml:"gateway"`
	Serial     SerialConfig      `yaml:"serial" toml:"serial"`
	Database   DatabaseConfig    `yaml:"database" toml:"database"`
	MQTT       MQTTConfig        `yaml:"mqtt" toml:"mqtt"`
	API        APIConfig         `yaml:"api" toml:"api"`
	WebSocket  WebSocketConfig   `yaml:"websocket" toml:"websocket"`
	InfluxDB   InfluxDBConfig    `yaml:"influxdb" toml:"influxdb"`
	Logging    LoggingConfig     `yaml:"logging" toml:"logging"`
	Datapoints []DatapointConfig `yaml:"datapoints" toml:"datapoints"`
}

// GatewayConfig contains the line protocol engine settings.
type GatewayConfig struct {
	// IndividualAddress is our own address on the bus, "area.line.member".
	IndividualAddress string `yaml:"individual_address" toml:"individual_address"`

	// ListenGroups are the group addresses acknowledged on the bus
	// (at most 15). Datapoint addresses are added automatically.
	ListenGroups []string `yaml:"listen_groups" toml:"listen_groups"`

	// ListenBroadcast starts in programming mode (accept 0/0/0).
	ListenBroadcast bool `yaml:"listen_broadcast" toml:"listen_broadcast"`

	// AutoRespond answers individual address and mask version requests.
	// Default: true
	AutoRespond bool `yaml:"auto_respond" toml:"auto_respond"`

	// SerialTimeoutMS bounds every byte read. Default: 1000
	SerialTimeoutMS int `yaml:"serial_timeout_ms" toml:"serial_timeout_ms"`

	// SettleDelayMS is waited after acks and sends. Default: 100
	SettleDelayMS int `yaml:"settle_delay_ms" toml:"settle_delay_ms"`

	// PollIntervalMS is the idle wait between polls. Default: 5
	PollIntervalMS int `yaml:"poll_interval_ms" toml:"poll_interval_ms"`

	// ResetOnStart sends a UART reset request at startup. Default: true
	ResetOnStart bool `yaml:"reset_on_start" toml:"reset_on_start"`

	// StatsInterval is how often engine statistics are exported (seconds).
	// Default: 60
	StatsInterval int `yaml:"stats_interval" toml:"stats_interval"`
}

// SerialConfig contains the transceiver's serial line settings.
type SerialConfig struct {
	Port     string `yaml:"port" toml:"port"`
	BaudRate int    `yaml:"baud_rate" toml:"baud_rate"`
	DataBits int    `yaml:"data_bits" toml:"data_bits"`
	Parity   string `yaml:"parity" toml:"parity"`
	StopBits int    `yaml:"stop_bits" toml:"stop_bits"`
}

// DatapointConfig maps a group address to a datapoint type so telegrams
// can be decoded into values.
type DatapointConfig struct {
	GroupAddress string `yaml:"group_address" toml:"group_address"`
	DPT          string `yaml:"dpt" toml:"dpt"`
	Name         string `yaml:"name" toml:"name"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Enabled     bool   `yaml:"enabled" toml:"enabled"`
	Path        string `yaml:"path" toml:"path"`
	WALMode     bool   `yaml:"wal_mode" toml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout" toml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled     bool                `yaml:"enabled" toml:"enabled"`
	Broker      MQTTBrokerConfig    `yaml:"broker" toml:"broker"`
	Auth        MQTTAuthConfig      `yaml:"auth" toml:"auth"`
	QoS         int                 `yaml:"qos" toml:"qos"`
	TopicPrefix string              `yaml:"topic_prefix" toml:"topic_prefix"`
	Reconnect   MQTTReconnectConfig `yaml:"reconnect" toml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host" toml:"host"`
	Port     int    `yaml:"port" toml:"port"`
	TLS      bool   `yaml:"tls" toml:"tls"`
	ClientID string `yaml:"client_id" toml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username" toml:"username"`
	Password string `yaml:"password" toml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay" toml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay" toml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts" toml:"max_attempts"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled" toml:"enabled"`
	Host     string           `yaml:"host" toml:"host"`
	Port     int              `yaml:"port" toml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts" toml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors" toml:"cors"`

	// PanelDir serves the monitor page from disk instead of the embedded
	// copy. Empty uses the embedded page.
	PanelDir string `yaml:"panel_dir" toml:"panel_dir"`
}

// APITimeoutConfig contains HTTP timeout settings (seconds).
type APITimeoutConfig struct {
	Read  int `yaml:"read" toml:"read"`
	Write int `yaml:"write" toml:"write"`
	Idle  int `yaml:"idle" toml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" toml:"allowed_origins"`
}

// WebSocketConfig contains bus monitor WebSocket settings.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size" toml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval" toml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout" toml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled" toml:"enabled"`
	URL           string `yaml:"url" toml:"url"`
	Token         string `yaml:"token" toml:"token"`
	Org           string `yaml:"org" toml:"org"`
	Bucket        string `yaml:"bucket" toml:"bucket"`
	BatchSize     int    `yaml:"batch_size" toml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval" toml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
	Output string `yaml:"output" toml:"output"`
}

// Load reads configuration from a file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. File values (override defaults); ".toml" files are parsed as TOML,
//     everything else as YAML
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: TPUART_SECTION_KEY
// For example: TPUART_SERIAL_PORT, TPUART_GATEWAY_INDIVIDUAL_ADDRESS
//
// Parameters:
//   - path: Path to the configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := decode(path, data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// decode parses data into cfg using the format implied by path.
func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		_, err := toml.Decode(string(data), cfg)
		return err
	default:
		return yaml.Unmarshal(data, cfg)
	}
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Gateway: GatewayConfig{
			IndividualAddress: "1.1.250",
			AutoRespond:       true,
			SerialTimeoutMS:   1000,
			SettleDelayMS:     100,
			PollIntervalMS:    5,
			ResetOnStart:      true,
			StatsInterval:     60,
		},
		Serial: SerialConfig{
			Port:     "/dev/ttyAMA0",
			BaudRate: 19200,
			DataBits: 8,
			Parity:   "even",
			StopBits: 1,
		},
		Database: DatabaseConfig{
			Enabled:     true,
			Path:        "./data/tpuart.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Enabled: true,
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "tpuartd",
			},
			QoS:         1,
			TopicPrefix: "knx/tpuart",
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		API: APIConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
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
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: TPUART_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Gateway
	if v := getenv("GATEWAY_INDIVIDUAL_ADDRESS"); v != "" {
		cfg.Gateway.IndividualAddress = v
	}
	if v := getenv("GATEWAY_LISTEN_GROUPS"); v != "" {
		cfg.Gateway.ListenGroups = splitList(v)
	}
	if v, ok := getenvBool("GATEWAY_LISTEN_BROADCAST"); ok {
		cfg.Gateway.ListenBroadcast = v
	}
	if v, ok := getenvInt("GATEWAY_SERIAL_TIMEOUT_MS"); ok {
		cfg.Gateway.SerialTimeoutMS = v
	}

	// Serial
	if v := getenv("SERIAL_PORT"); v != "" {
		cfg.Serial.Port = v
	}

	// Database
	if v, ok := getenvBool("DATABASE_ENABLED"); ok {
		cfg.Database.Enabled = v
	}
	if v := getenv("DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v, ok := getenvBool("MQTT_ENABLED"); ok {
		cfg.MQTT.Enabled = v
	}
	if v := getenv("MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v, ok := getenvInt("MQTT_PORT"); ok {
		cfg.MQTT.Broker.Port = v
	}
	if v := getenv("MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := getenv("MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v, ok := getenvBool("API_ENABLED"); ok {
		cfg.API.Enabled = v
	}
	if v := getenv("API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v, ok := getenvInt("API_PORT"); ok {
		cfg.API.Port = v
	}

	// InfluxDB
	if v, ok := getenvBool("INFLUXDB_ENABLED"); ok {
		cfg.InfluxDB.Enabled = v
	}
	if v := getenv("INFLUXDB_URL"); v != "" {
		cfg.InfluxDB.URL = v
	}
	if v := getenv("INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Logging
	if v := getenv("LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

func getenv(key string) string {
	return strings.TrimSpace(os.Getenv(envPrefix + key))
}

func getenvInt(key string) (int, bool) {
	v := getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func getenvBool(key string) (bool, bool) {
	v := getenv(key)
	if v == "" {
		return false, false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, false
	}
	return b, true
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of every validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Gateway validation
	if _, err := knx.ParseIndividualAddress(c.Gateway.IndividualAddress); err != nil {
		errs = append(errs, fmt.Sprintf("gateway.individual_address: %v", err))
	}
	for _, g := range c.Gateway.ListenGroups {
		if _, err := knx.ParseGroupAddress(g); err != nil {
			errs = append(errs, fmt.Sprintf("gateway.listen_groups: %v", err))
		}
	}
	if c.Gateway.SerialTimeoutMS <= 0 {
		errs = append(errs, "gateway.serial_timeout_ms must be positive")
	}
	if c.Gateway.SettleDelayMS < 0 {
		errs = append(errs, "gateway.settle_delay_ms must not be negative")
	}

	// Serial validation
	if c.Serial.Port == "" {
		errs = append(errs, "serial.port is required")
	}
	if c.Serial.BaudRate <= 0 {
		errs = append(errs, "serial.baud_rate must be positive")
	}
	switch c.Serial.Parity {
	case "none", "even", "odd":
	default:
		errs = append(errs, "serial.parity must be none, even, or odd")
	}
	if c.Serial.StopBits != 1 && c.Serial.StopBits != 2 {
		errs = append(errs, "serial.stop_bits must be 1 or 2")
	}

	// Datapoint validation
	seen := make(map[string]bool, len(c.Datapoints))
	for i, dp := range c.Datapoints {
		ga, err := knx.ParseGroupAddress(dp.GroupAddress)
		if err != nil {
			errs = append(errs, fmt.Sprintf("datapoints[%d].group_address: %v", i, err))
			continue
		}
		if seen[ga.String()] {
			errs = append(errs, fmt.Sprintf("datapoints[%d]: duplicate group address %s", i, ga))
		}
		seen[ga.String()] = true
		if !knx.DPT(dp.DPT).IsValid() {
			errs = append(errs, fmt.Sprintf("datapoints[%d].dpt: unsupported datapoint type %q", i, dp.DPT))
		}
	}

	// Database validation
	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Enabled && strings.Trim(c.MQTT.TopicPrefix, "/") == "" {
		errs = append(errs, "mqtt.topic_prefix is required")
	}

	// API validation
	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// InfluxDB validation
	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when enabled")
		}
		if c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.bucket is required when enabled")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetSerialTimeout returns the engine's byte read timeout.
func (c *Config) GetSerialTimeout() time.Duration {
	return time.Duration(c.Gateway.SerialTimeoutMS) * time.Millisecond
}

// GetSettleDelay returns the delay after acks and sends. A configured 0
// is returned as -1ns so the engine treats it as "no delay" rather than
// "use the default".
func (c *Config) GetSettleDelay() time.Duration {
	if c.Gateway.SettleDelayMS == 0 {
		return -1
	}
	return time.Duration(c.Gateway.SettleDelayMS) * time.Millisecond
}

// GetPollInterval returns the idle wait between polls.
func (c *Config) GetPollInterval() time.Duration {
	return time.Duration(c.Gateway.PollIntervalMS) * time.Millisecond
}

// GetStatsInterval returns how often statistics are exported.
func (c *Config) GetStatsInterval() time.Duration {
	return time.Duration(c.Gateway.StatsInterval) * time.Second
}

// ReadTimeout returns the API read timeout as a Duration.
func (t APITimeoutConfig) ReadTimeout() time.Duration {
	return time.Duration(t.Read) * time.Second
}

// WriteTimeout returns the API write timeout as a Duration.
func (t APITimeoutConfig) WriteTimeout() time.Duration {
	return time.Duration(t.Write) * time.Second
}

// IdleTimeout returns the API idle timeout as a Duration.
func (t APITimeoutConfig) IdleTimeout() time.Duration {
	return time.Duration(t.Idle) * time.Second
}
