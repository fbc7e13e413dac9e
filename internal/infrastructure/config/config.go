package config

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the gateway.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	API       APIConfig       `yaml:"api"`
	Protocol  ProtocolConfig  `yaml:"protocol"`
	Upstream  UpstreamConfig  `yaml:"upstream"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// APIConfig contains HTTP server settings.
type APIConfig struct {
	Host         string           `yaml:"host"`
	Port         int              `yaml:"port"`
	MaxBodyBytes int64            `yaml:"max_body_bytes"`
	TLS          TLSConfig        `yaml:"tls"`
	Timeouts     APITimeoutConfig `yaml:"timeouts"`
	CORS         CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
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
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// ProtocolConfig controls where and what the wire protocol serves.
type ProtocolConfig struct {
	// BasePath prefixes every protocol route. Default: "/wd/hub"
	BasePath string `yaml:"base_path"`

	// RoutesFile replaces the built-in route table when set.
	RoutesFile string `yaml:"routes_file"`
}

// UpstreamConfig describes the JSON Wire Protocol server sessions are
// created on and proxied to.
type UpstreamConfig struct {
	URL string `yaml:"url"`

	// Timeout bounds each upstream exchange, in seconds. 0 means no limit.
	Timeout int `yaml:"timeout"`

	// ProxyAvoid lists [method, pattern] pairs that are handled locally
	// even while a session is proxied.
	ProxyAvoid [][]string `yaml:"proxy_avoid"`

	// Managed starts and supervises the upstream server as a child process.
	Managed ManagedConfig `yaml:"managed"`
}

// ManagedConfig contains settings for supervising the upstream server.
type ManagedConfig struct {
	Enabled bool     `yaml:"enabled"`
	Binary  string   `yaml:"binary"`
	Args    []string `yaml:"args"`

	// RestartOnFailure enables automatic restart if the server exits.
	// Default: true
	RestartOnFailure bool `yaml:"restart_on_failure"`

	// RestartDelaySeconds is the time to wait before restarting.
	// Default: 5
	RestartDelaySeconds int `yaml:"restart_delay_seconds"`

	// MaxRestartAttempts limits restart attempts. 0 means unlimited.
	// Default: 10
	MaxRestartAttempts int `yaml:"max_restart_attempts"`

	// HealthCheckInterval is how often the upstream /status is polled.
	// Default: 30s
	HealthCheckInterval time.Duration `yaml:"health_check_interval"`
}

// DatabaseConfig contains SQLite settings for the command log.
type DatabaseConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled     bool                `yaml:"enabled"`
	Broker      MQTTBrokerConfig    `yaml:"broker"`
	Auth        MQTTAuthConfig      `yaml:"auth"`
	QoS         int                 `yaml:"qos"`
	TopicPrefix string              `yaml:"topic_prefix"`
	Reconnect   MQTTReconnectConfig `yaml:"reconnect"`
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

// WebSocketConfig contains settings for the live command feed.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
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
// Environment variables follow the pattern: JSONWP_SECTION_KEY
// For example: JSONWP_UPSTREAM_URL, JSONWP_API_PORT
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path) //nolint:gosec // path is operator supplied
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns the built-in configuration, for running without a file.
func Default() *Config {
	return defaultConfig()
}

func defaultConfig() *Config {
	return &Config{
		API: APIConfig{
			Host:         "0.0.0.0",
			Port:         4723,
			MaxBodyBytes: 10 << 20,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 300,
				Idle:  120,
			},
		},
		Protocol: ProtocolConfig{
			BasePath: "/wd/hub",
		},
		Upstream: UpstreamConfig{
			Timeout: 240,
			Managed: ManagedConfig{
				RestartOnFailure:    true,
				RestartDelaySeconds: 5,
				MaxRestartAttempts:  10,
				HealthCheckInterval: 30 * time.Second,
			},
		},
		Database: DatabaseConfig{
			Path:        "./data/jsonwp.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "jsonwp-gateway",
			},
			QoS:         1,
			TopicPrefix: "jsonwp",
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		WebSocket: WebSocketConfig{
			Path:           "/api/v1/ws",
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
// Environment variables follow the pattern: JSONWP_SECTION_KEY
func applyEnvOverrides(cfg *Config) error {
	// API
	if v := os.Getenv("JSONWP_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("JSONWP_API_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("JSONWP_API_PORT: %w", err)
		}
		cfg.API.Port = port
	}

	// Protocol
	if v := os.Getenv("JSONWP_PROTOCOL_ROUTES_FILE"); v != "" {
		cfg.Protocol.RoutesFile = v
	}

	// Upstream
	if v := os.Getenv("JSONWP_UPSTREAM_URL"); v != "" {
		cfg.Upstream.URL = v
	}

	// Database
	if v := os.Getenv("JSONWP_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("JSONWP_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("JSONWP_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("JSONWP_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("JSONWP_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Logging
	if v := os.Getenv("JSONWP_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	return nil
}

// avoidMethods are the methods a proxy avoid rule may name.
var avoidMethods = map[string]bool{"GET": true, "POST": true, "DELETE": true}

// Validate checks the configuration for errors.
// It reports every problem found, not just the first.
func (c *Config) Validate() error {
	var errs []string

	// API validation
	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}
	if c.API.MaxBodyBytes < 0 {
		errs = append(errs, "api.max_body_bytes must not be negative")
	}
	if c.API.TLS.Enabled && (c.API.TLS.CertFile == "" || c.API.TLS.KeyFile == "") {
		errs = append(errs, "api.tls requires cert_file and key_file")
	}

	// Protocol validation
	if c.Protocol.BasePath != "" && !strings.HasPrefix(c.Protocol.BasePath, "/") {
		errs = append(errs, "protocol.base_path must start with /")
	}

	// Upstream validation
	if c.Upstream.URL != "" {
		u, err := url.Parse(c.Upstream.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, "upstream.url must be an absolute http(s) URL")
		}
	}
	if c.Upstream.Timeout < 0 {
		errs = append(errs, "upstream.timeout must not be negative")
	}
	for i, rule := range c.Upstream.ProxyAvoid {
		if len(rule) != 2 {
			errs = append(errs, fmt.Sprintf("upstream.proxy_avoid[%d] must be [method, pattern]", i))
			continue
		}
		if !avoidMethods[strings.ToUpper(rule[0])] {
			errs = append(errs, fmt.Sprintf("upstream.proxy_avoid[%d] method must be GET, POST or DELETE", i))
		}
		if _, err := regexp.Compile(rule[1]); err != nil {
			errs = append(errs, fmt.Sprintf("upstream.proxy_avoid[%d] pattern: %v", i, err))
		}
	}
	if c.Upstream.Managed.Enabled {
		if c.Upstream.Managed.Binary == "" {
			errs = append(errs, "upstream.managed.binary is required when managed is enabled")
		}
		if c.Upstream.URL == "" {
			errs = append(errs, "upstream.url is required when managed is enabled")
		}
	}

	// Database validation
	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required when the database is enabled")
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Enabled && c.MQTT.TopicPrefix == "" {
		errs = append(errs, "mqtt.topic_prefix is required when mqtt is enabled")
	}

	// InfluxDB validation
	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" || c.InfluxDB.Org == "" || c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.url, org and bucket are required when influxdb is enabled")
		}
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

// GetUpstreamTimeout returns the upstream exchange timeout as a Duration.
func (c *Config) GetUpstreamTimeout() time.Duration {
	return time.Duration(c.Upstream.Timeout) * time.Second
}
