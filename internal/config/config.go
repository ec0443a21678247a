package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the client-wide settings. Every field has a default so a bare
// Config{BaseURL: ...} is usable without a config file.
type Config struct {
	// BaseURL is the backend origin. Relative artifact URLs in task results
	// are resolved against it.
	BaseURL string `mapstructure:"base_url"`
	// APIToken is sent as a bearer token when non-empty.
	APIToken string `mapstructure:"api_token"`

	// RequestTimeout bounds single-shot HTTP calls (task submit, status
	// fetch). Streaming requests are bounded by their context instead.
	RequestTimeout time.Duration `mapstructure:"request_timeout"`

	// PollInterval and PollTimeout configure the polling transport.
	PollInterval time.Duration `mapstructure:"poll_interval"`
	PollTimeout  time.Duration `mapstructure:"poll_timeout"`

	// PushTransport selects the push channel implementation: "sse" or "websocket".
	PushTransport string `mapstructure:"push_transport"`
	// PushReconnectDelay is the initial delay before the push channel
	// re-subscribes after a transient disconnect. SSE servers may override
	// it per-stream via the retry field.
	PushReconnectDelay time.Duration `mapstructure:"push_reconnect_delay"`

	// StreamInitialBuffer and StreamMaxBuffer size the line scanner used by
	// the chunked and SSE readers.
	StreamInitialBuffer int `mapstructure:"stream_initial_buffer"`
	StreamMaxBuffer     int `mapstructure:"stream_max_buffer"`

	LogLevel string `mapstructure:"log_level"`
}

const (
	defaultRequestTimeout      = 30 * time.Second
	defaultPollInterval        = time.Second
	defaultPollTimeout         = 5 * time.Minute
	defaultPushTransport       = "sse"
	defaultPushReconnectDelay  = 3 * time.Second
	defaultStreamInitialBuffer = 64 * 1024
	defaultStreamMaxBuffer     = 512 * 1024
)

// Default returns a Config with every knob at its default value.
func Default() Config {
	return Config{
		RequestTimeout:      defaultRequestTimeout,
		PollInterval:        defaultPollInterval,
		PollTimeout:         defaultPollTimeout,
		PushTransport:       defaultPushTransport,
		PushReconnectDelay:  defaultPushReconnectDelay,
		StreamInitialBuffer: defaultStreamInitialBuffer,
		StreamMaxBuffer:     defaultStreamMaxBuffer,
		LogLevel:            "info",
	}
}

// Load reads configuration from an optional YAML file plus DOCSTREAM_* env
// vars, with defaults applied for anything unset. path may be empty.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	defaults := Default()
	v.SetDefault("request_timeout", defaults.RequestTimeout)
	v.SetDefault("poll_interval", defaults.PollInterval)
	v.SetDefault("poll_timeout", defaults.PollTimeout)
	v.SetDefault("push_transport", defaults.PushTransport)
	v.SetDefault("push_reconnect_delay", defaults.PushReconnectDelay)
	v.SetDefault("stream_initial_buffer", defaults.StreamInitialBuffer)
	v.SetDefault("stream_max_buffer", defaults.StreamMaxBuffer)
	v.SetDefault("log_level", defaults.LogLevel)

	v.SetEnvPrefix("DOCSTREAM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %q: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects values the transports cannot work with.
func (c Config) Validate() error {
	if c.BaseURL != "" {
		parsed, err := url.Parse(c.BaseURL)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("base_url %q is not an absolute URL", c.BaseURL)
		}
	}
	switch strings.ToLower(c.PushTransport) {
	case "", "sse", "websocket":
	default:
		return fmt.Errorf("push_transport %q is not one of sse, websocket", c.PushTransport)
	}
	if c.PollInterval < 0 || c.PollTimeout < 0 {
		return fmt.Errorf("poll interval and timeout must be non-negative")
	}
	if c.StreamMaxBuffer > 0 && c.StreamInitialBuffer > c.StreamMaxBuffer {
		return fmt.Errorf("stream_initial_buffer exceeds stream_max_buffer")
	}
	return nil
}

// WithDefaults fills zero-valued fields from Default. Used by the facade so
// hand-built configs behave like loaded ones.
func (c Config) WithDefaults() Config {
	defaults := Default()
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = defaults.RequestTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaults.PollInterval
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = defaults.PollTimeout
	}
	if strings.TrimSpace(c.PushTransport) == "" {
		c.PushTransport = defaults.PushTransport
	}
	if c.PushReconnectDelay <= 0 {
		c.PushReconnectDelay = defaults.PushReconnectDelay
	}
	if c.StreamInitialBuffer <= 0 {
		c.StreamInitialBuffer = defaults.StreamInitialBuffer
	}
	if c.StreamMaxBuffer <= 0 {
		c.StreamMaxBuffer = defaults.StreamMaxBuffer
	}
	if strings.TrimSpace(c.LogLevel) == "" {
		c.LogLevel = defaults.LogLevel
	}
	return c
}
