package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Server struct {
		Host              string        `yaml:"host"`
		Port              int           `yaml:"port"`
		ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
		ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
		BlocklistPath     string        `yaml:"blocklist_path"`
	} `yaml:"server"`

	Relay struct {
		MaxStreams          int `yaml:"max_streams"`
		MaxViewersPerStream int `yaml:"max_viewers_per_stream"`
		ChannelCapacity     int `yaml:"channel_capacity"`
		StreamIDLength      int `yaml:"stream_id_length"`
	} `yaml:"relay"`

	WebSocket struct {
		ReadBufferSize      int      `yaml:"read_buffer_size"`
		WriteBufferSize     int      `yaml:"write_buffer_size"`
		MaxMessageSizeBytes int64    `yaml:"max_message_size_bytes"`
		AllowedOrigins      []string `yaml:"allowed_origins"`
	} `yaml:"websocket"`

	Monitoring struct {
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
	} `yaml:"monitoring"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		PoolSize int    `yaml:"pool_size"`
		Channel  string `yaml:"channel"` // pub/sub channel for stream lifecycle events
	} `yaml:"redis"`

	Tracing struct {
		Enabled     bool    `yaml:"enabled"`
		ServiceName string  `yaml:"service_name"`
		JaegerURL   string  `yaml:"jaeger_url"`
		Environment string  `yaml:"environment"`
		SampleRate  float64 `yaml:"sample_rate"`
	} `yaml:"tracing"`

	RateLimiting struct {
		Enabled bool `yaml:"enabled"`

		HTTP struct {
			RequestsPerSecond float64 `yaml:"requests_per_second"`
			Burst             int     `yaml:"burst"`
			MaxConcurrent     int     `yaml:"max_concurrent"` // global concurrent HTTP requests, 0 = unlimited
		} `yaml:"http"`

		WebSocket struct {
			ConnectionsPerMinute int `yaml:"connections_per_minute"` // per client IP
			Burst                int `yaml:"burst"`
		} `yaml:"websocket"`
	} `yaml:"rate_limiting"`

	// Reliability guards calls to a shared stream directory.
	Reliability struct {
		RetryAttempts    int           `yaml:"retry_attempts"`
		RetryBaseDelay   time.Duration `yaml:"retry_base_delay"`
		RetryMaxDelay    time.Duration `yaml:"retry_max_delay"`
		FailureThreshold int           `yaml:"failure_threshold"`
		OpenTimeout      time.Duration `yaml:"open_timeout"`
	} `yaml:"reliability"`
}

// Address returns the host:port the HTTP server listens on.
func (c *Config) Address() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	// Server
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be within 0..65535")
	}
	if c.Server.ReadHeaderTimeout <= 0 {
		return fmt.Errorf("server.read_header_timeout must be > 0")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be > 0")
	}

	// Relay. A limit of zero is allowed and rejects every handshake.
	if c.Relay.MaxStreams < 0 {
		return fmt.Errorf("relay.max_streams must be >= 0")
	}
	if c.Relay.MaxViewersPerStream < 0 {
		return fmt.Errorf("relay.max_viewers_per_stream must be >= 0")
	}
	if c.Relay.ChannelCapacity <= 0 {
		return fmt.Errorf("relay.channel_capacity must be > 0")
	}
	if c.Relay.StreamIDLength < 4 {
		return fmt.Errorf("relay.stream_id_length must be >= 4")
	}

	// WebSocket
	if c.WebSocket.ReadBufferSize < 0 || c.WebSocket.WriteBufferSize < 0 {
		return fmt.Errorf("websocket buffer sizes must be >= 0")
	}
	if c.WebSocket.MaxMessageSizeBytes < 0 {
		return fmt.Errorf("websocket.max_message_size_bytes must be >= 0")
	}

	// Logging
	if c.Logging.Level == "" {
		return fmt.Errorf("logging.level must not be empty")
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Address == "" {
			return fmt.Errorf("redis.address must not be empty when redis.enabled=true")
		}
		if c.Redis.PoolSize <= 0 {
			return fmt.Errorf("redis.pool_size must be > 0 when redis.enabled=true")
		}
		if c.Redis.Channel == "" {
			return fmt.Errorf("redis.channel must not be empty when redis.enabled=true")
		}
	}

	// Tracing
	if c.Tracing.Enabled {
		if c.Tracing.JaegerURL == "" {
			return fmt.Errorf("tracing.jaeger_url must not be empty when tracing.enabled=true")
		}
		if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
			return fmt.Errorf("tracing.sample_rate must be within 0..1")
		}
	}

	// Rate limiting
	if c.RateLimiting.Enabled {
		if c.RateLimiting.HTTP.RequestsPerSecond <= 0 {
			return fmt.Errorf("rate_limiting.http.requests_per_second must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.HTTP.Burst <= 0 {
			return fmt.Errorf("rate_limiting.http.burst must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.HTTP.MaxConcurrent < 0 {
			return fmt.Errorf("rate_limiting.http.max_concurrent must be >= 0 when rate limiting is enabled")
		}
		if c.RateLimiting.WebSocket.ConnectionsPerMinute <= 0 {
			return fmt.Errorf("rate_limiting.websocket.connections_per_minute must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.WebSocket.Burst <= 0 {
			return fmt.Errorf("rate_limiting.websocket.burst must be > 0 when rate limiting is enabled")
		}
	}

	// Reliability
	if c.Reliability.RetryAttempts < 1 {
		return fmt.Errorf("reliability.retry_attempts must be >= 1")
	}
	if c.Reliability.RetryBaseDelay < 0 || c.Reliability.RetryMaxDelay < c.Reliability.RetryBaseDelay {
		return fmt.Errorf("reliability.retry_max_delay must be >= retry_base_delay >= 0")
	}
	if c.Reliability.FailureThreshold < 1 {
		return fmt.Errorf("reliability.failure_threshold must be >= 1")
	}
	if c.Reliability.OpenTimeout <= 0 {
		return fmt.Errorf("reliability.open_timeout must be > 0")
	}

	return nil
}

// Load reads configuration from YAML file, applies defaults and env overrides.
// A missing file is not an error: defaults and the environment are used.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
			}
		}
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns configuration with sane defaults.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Server.Host = "0.0.0.0"
	cfg.Server.Port = 8080
	cfg.Server.ReadHeaderTimeout = 10 * time.Second
	cfg.Server.ShutdownTimeout = 15 * time.Second
	cfg.Server.BlocklistPath = "blocklist.txt"

	cfg.Relay.MaxStreams = 100
	cfg.Relay.MaxViewersPerStream = 10
	cfg.Relay.ChannelCapacity = 32
	cfg.Relay.StreamIDLength = 8

	cfg.WebSocket.ReadBufferSize = 4096
	cfg.WebSocket.WriteBufferSize = 4096
	cfg.WebSocket.MaxMessageSizeBytes = 4 << 20
	cfg.WebSocket.AllowedOrigins = []string{"*"}

	cfg.Monitoring.PrometheusEnabled = true

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"

	cfg.Redis.Enabled = false
	cfg.Redis.Address = "localhost:6379"
	cfg.Redis.DB = 0
	cfg.Redis.PoolSize = 10
	cfg.Redis.Channel = "framerelay:events"

	cfg.Tracing.Enabled = false
	cfg.Tracing.ServiceName = "framerelay"
	cfg.Tracing.JaegerURL = "http://localhost:14268/api/traces"
	cfg.Tracing.Environment = "development"
	cfg.Tracing.SampleRate = 1.0

	// Rate limiting defaults (disabled by default)
	cfg.RateLimiting.Enabled = false
	cfg.RateLimiting.HTTP.RequestsPerSecond = 50
	cfg.RateLimiting.HTTP.Burst = 100
	cfg.RateLimiting.HTTP.MaxConcurrent = 0
	cfg.RateLimiting.WebSocket.ConnectionsPerMinute = 60
	cfg.RateLimiting.WebSocket.Burst = 10

	cfg.Reliability.RetryAttempts = 3
	cfg.Reliability.RetryBaseDelay = 50 * time.Millisecond
	cfg.Reliability.RetryMaxDelay = 500 * time.Millisecond
	cfg.Reliability.FailureThreshold = 5
	cfg.Reliability.OpenTimeout = 30 * time.Second

	return cfg
}

// applyEnvOverrides applies environment variables on top of the file.
// Numeric values that fail to parse are ignored and the previous value kept.
func (c *Config) applyEnvOverrides() {
	if host := os.Getenv("HOST"); host != "" {
		c.Server.Host = host
	}
	envInt("PORT", &c.Server.Port)
	envInt("MAX_STREAMS", &c.Relay.MaxStreams)
	envInt("MAX_VIEWERS_PER_STREAM", &c.Relay.MaxViewersPerStream)

	if level := os.Getenv("RELAY_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if addr := os.Getenv("RELAY_REDIS_ADDRESS"); addr != "" {
		c.Redis.Enabled = true
		c.Redis.Address = addr
	}
}

func envInt(key string, dst *int) {
	raw := os.Getenv(key)
	if raw == "" {
		return
	}
	v, err := strconv.ParseUint(raw, 10, 31)
	if err != nil {
		return
	}
	*dst = int(v)
}
