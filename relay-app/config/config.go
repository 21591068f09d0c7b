package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the complete application configuration
type Config struct {
	Server  ServerConfig    `mapstructure:"server"  yaml:"server"`
	Stream  StreamConfig    `mapstructure:"stream"  yaml:"stream"`
	API     APIServerConfig `mapstructure:"api"     yaml:"api"`
	Metrics MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`
	Log     LogConfig       `mapstructure:"log"     yaml:"log"`
}

// ServerConfig holds TCP stream server configuration
type ServerConfig struct {
	ListenAddr     string        `mapstructure:"listen_addr"     yaml:"listen_addr"     env:"SERVER_LISTEN_ADDR"`
	MaxFrameSize   int           `mapstructure:"max_frame_size"  yaml:"max_frame_size"  env:"SERVER_MAX_FRAME_SIZE"`
	MaxConnections int           `mapstructure:"max_connections" yaml:"max_connections" env:"SERVER_MAX_CONNECTIONS"`
	OutboundQueue  int           `mapstructure:"outbound_queue"  yaml:"outbound_queue"  env:"SERVER_OUTBOUND_QUEUE"`
	InitialCredit  int           `mapstructure:"initial_credit"  yaml:"initial_credit"  env:"SERVER_INITIAL_CREDIT"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"    yaml:"read_timeout"    env:"SERVER_READ_TIMEOUT"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"   yaml:"write_timeout"   env:"SERVER_WRITE_TIMEOUT"`
}

// StreamConfig holds per-stream flow control limits
type StreamConfig struct {
	MaxPendingMessages  int `mapstructure:"max_pending_messages"  yaml:"max_pending_messages"  env:"STREAM_MAX_PENDING"`
	MaxOutboundBuffered int `mapstructure:"max_outbound_buffered" yaml:"max_outbound_buffered" env:"STREAM_MAX_OUTBOUND"`
}

// APIServerConfig holds HTTP API server configuration
type APIServerConfig struct {
	ListenAddr        string        `mapstructure:"listen_addr"         yaml:"listen_addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"        yaml:"read_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"       yaml:"write_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"        yaml:"idle_timeout"`
	MaxHeaderBytes    int           `mapstructure:"max_header_bytes"    yaml:"max_header_bytes"`
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled" env:"METRICS_ENABLED"`
	Port    int    `mapstructure:"port"    yaml:"port"    env:"METRICS_PORT"`
	Path    string `mapstructure:"path"    yaml:"path"    env:"METRICS_PATH"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"  env:"LOG_LEVEL"`
	Pretty bool   `mapstructure:"pretty" yaml:"pretty" env:"LOG_PRETTY"`
}

// Load loads configuration from file and environment
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.listen_addr", ":9090")
	v.SetDefault("server.max_frame_size", 4*1024*1024)
	v.SetDefault("server.max_connections", 256)
	v.SetDefault("server.outbound_queue", 64)
	v.SetDefault("server.initial_credit", 32)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")

	v.SetDefault("stream.max_pending_messages", 1024)
	v.SetDefault("stream.max_outbound_buffered", 32)

	v.SetDefault("api.listen_addr", ":8081")
	v.SetDefault("api.read_header_timeout", "5s")
	v.SetDefault("api.read_timeout", "15s")
	v.SetDefault("api.write_timeout", "30s")
	v.SetDefault("api.idle_timeout", "120s")
	v.SetDefault("api.max_header_bytes", 1048576)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9091)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateStream(); err != nil {
		return err
	}
	if err := c.validateMetrics(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateServer() error {
	if strings.TrimSpace(c.Server.ListenAddr) == "" {
		return fmt.Errorf("server.listen_addr must not be empty")
	}
	if c.Server.MaxFrameSize <= 0 {
		return fmt.Errorf("server.max_frame_size must be positive, got %d", c.Server.MaxFrameSize)
	}
	if c.Server.MaxConnections <= 0 {
		return fmt.Errorf("server.max_connections must be positive, got %d", c.Server.MaxConnections)
	}
	if c.Server.InitialCredit < 0 {
		return fmt.Errorf("server.initial_credit must not be negative, got %d", c.Server.InitialCredit)
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server.read_timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server.write_timeout must be positive")
	}
	return nil
}

func (c *Config) validateStream() error {
	if c.Stream.MaxPendingMessages <= 0 {
		return fmt.Errorf("stream.max_pending_messages must be positive, got %d", c.Stream.MaxPendingMessages)
	}
	if c.Stream.MaxOutboundBuffered <= 0 {
		return fmt.Errorf("stream.max_outbound_buffered must be positive, got %d", c.Stream.MaxOutboundBuffered)
	}
	return nil
}

func (c *Config) validateMetrics() error {
	if c.Metrics.Enabled && (c.Metrics.Port <= 0 || c.Metrics.Port > 65535) {
		return fmt.Errorf("metrics.port must be between 1-65535 when metrics enabled, got %d", c.Metrics.Port)
	}
	return nil
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr:     ":9090",
			MaxFrameSize:   4 * 1024 * 1024,
			MaxConnections: 256,
			OutboundQueue:  64,
			InitialCredit:  32,
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   30 * time.Second,
		},
		Stream: StreamConfig{
			MaxPendingMessages:  1024,
			MaxOutboundBuffered: 32,
		},
		API: APIServerConfig{
			ListenAddr:        ":8081",
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
			MaxHeaderBytes:    1 << 20,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9091,
			Path:    "/metrics",
		},
		Log: LogConfig{
			Level:  "info",
			Pretty: false,
		},
	}
}
