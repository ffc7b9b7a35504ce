package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values applied when the file and environment leave a field unset.
const (
	DefaultListen          = ":8080"
	DefaultSessionTTL      = 2 * time.Hour
	DefaultSessionCookie   = "authgate_session"
	DefaultProbeInterval   = 5 * time.Second
	DefaultProbeTimeout    = 3 * time.Second
	DefaultUpstreamTimeout = 30 * time.Second
	DefaultLoginRPS        = 5
	DefaultLoginBurst      = 10
)

// Session store backends.
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

// Config is the root proxy configuration.
type Config struct {
	Listen      string         `yaml:"listen"`
	Upstream    UpstreamConfig `yaml:"upstream"`
	Auth        AuthConfig     `yaml:"auth"`
	Session     SessionConfig  `yaml:"session"`
	Probe       ProbeConfig    `yaml:"probe"`
	Login       LoginConfig    `yaml:"login"`
	Log         LogConfig      `yaml:"log"`
	PublicPaths []string       `yaml:"publicPaths"`

	// TrustProxyHeaders honors X-Forwarded-Proto from the client
	// connection. Enable only when a trusted TLS-terminating proxy sits
	// in front of this one; direct clients can forge the header.
	TrustProxyHeaders bool `yaml:"trustProxyHeaders"`
}

// UpstreamConfig describes the single protected backend.
type UpstreamConfig struct {
	URL     string   `yaml:"url"`
	Timeout Duration `yaml:"timeout"`
}

// AuthConfig holds the static credential pair. Password may be either
// plaintext or a bcrypt hash ($2a$/$2b$/$2y$ prefix).
type AuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// SessionConfig configures the session store.
type SessionConfig struct {
	Store      string      `yaml:"store"`
	TTL        Duration    `yaml:"ttl"`
	CookieName string      `yaml:"cookieName"`
	Redis      RedisConfig `yaml:"redis"`
}

// RedisConfig configures the redis session backend.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// ProbeConfig configures the upstream health prober.
type ProbeConfig struct {
	Path     string   `yaml:"path"`
	Interval Duration `yaml:"interval"`
	Timeout  Duration `yaml:"timeout"`
}

// LoginConfig configures login brute-force throttling.
type LoginConfig struct {
	RPS   int `yaml:"rps"`
	Burst int `yaml:"burst"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads configuration from an optional YAML file and applies
// environment overrides and defaults. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnv(cfg)
	applyDefaults(cfg)

	return cfg, nil
}

// applyEnv overrides config fields from AUTHGATE_* environment variables.
func applyEnv(cfg *Config) {
	setString(&cfg.Listen, "AUTHGATE_LISTEN")
	if port := os.Getenv("AUTHGATE_PORT"); port != "" {
		cfg.Listen = ":" + port
	}
	setString(&cfg.Upstream.URL, "AUTHGATE_UPSTREAM_URL")
	setDuration(&cfg.Upstream.Timeout, "AUTHGATE_UPSTREAM_TIMEOUT")
	setString(&cfg.Auth.Username, "AUTHGATE_USERNAME")
	setString(&cfg.Auth.Password, "AUTHGATE_PASSWORD")
	setString(&cfg.Session.Store, "AUTHGATE_SESSION_STORE")
	setDuration(&cfg.Session.TTL, "AUTHGATE_SESSION_TTL")
	setString(&cfg.Session.CookieName, "AUTHGATE_SESSION_COOKIE")
	setString(&cfg.Session.Redis.Addr, "AUTHGATE_REDIS_ADDR")
	setString(&cfg.Session.Redis.Password, "AUTHGATE_REDIS_PASSWORD")
	if db := os.Getenv("AUTHGATE_REDIS_DB"); db != "" {
		if n, err := strconv.Atoi(db); err == nil {
			cfg.Session.Redis.DB = n
		}
	}
	setString(&cfg.Probe.Path, "AUTHGATE_PROBE_PATH")
	setDuration(&cfg.Probe.Interval, "AUTHGATE_PROBE_INTERVAL")
	setDuration(&cfg.Probe.Timeout, "AUTHGATE_PROBE_TIMEOUT")
	setString(&cfg.Log.Level, "AUTHGATE_LOG_LEVEL")
	setString(&cfg.Log.Format, "AUTHGATE_LOG_FORMAT")
	if v := os.Getenv("AUTHGATE_TRUST_PROXY_HEADERS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.TrustProxyHeaders = b
		}
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setDuration(dst *Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = Duration(d)
		}
	}
}

// applyDefaults fills unset fields with defaults.
func applyDefaults(cfg *Config) {
	if cfg.Listen == "" {
		cfg.Listen = DefaultListen
	}
	if cfg.Upstream.Timeout == 0 {
		cfg.Upstream.Timeout = Duration(DefaultUpstreamTimeout)
	}
	if cfg.Session.Store == "" {
		cfg.Session.Store = StoreMemory
	}
	if cfg.Session.TTL == 0 {
		cfg.Session.TTL = Duration(DefaultSessionTTL)
	}
	if cfg.Session.CookieName == "" {
		cfg.Session.CookieName = DefaultSessionCookie
	}
	if cfg.Probe.Interval == 0 {
		cfg.Probe.Interval = Duration(DefaultProbeInterval)
	}
	if cfg.Probe.Timeout == 0 {
		cfg.Probe.Timeout = Duration(DefaultProbeTimeout)
	}
	if cfg.Login.RPS == 0 {
		cfg.Login.RPS = DefaultLoginRPS
	}
	if cfg.Login.Burst == 0 {
		cfg.Login.Burst = DefaultLoginBurst
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
}

// Validation errors.
var (
	ErrMissingUpstream    = errors.New("upstream url is required")
	ErrMissingCredentials = errors.New("auth username and password are required")
	ErrMissingRedisAddr   = errors.New("redis addr is required for redis session store")
)

// Validate checks the configuration for fatal errors. The process must
// not start serving with an invalid configuration.
func Validate(cfg *Config) error {
	if cfg.Upstream.URL == "" {
		return ErrMissingUpstream
	}
	u, err := url.Parse(cfg.Upstream.URL)
	if err != nil {
		return fmt.Errorf("invalid upstream url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid upstream url scheme %q: must be http or https", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid upstream url %q: missing host", cfg.Upstream.URL)
	}

	if cfg.Auth.Username == "" || cfg.Auth.Password == "" {
		return ErrMissingCredentials
	}

	switch cfg.Session.Store {
	case StoreMemory:
	case StoreRedis:
		if cfg.Session.Redis.Addr == "" {
			return ErrMissingRedisAddr
		}
	default:
		return fmt.Errorf("unknown session store %q", cfg.Session.Store)
	}

	if cfg.Session.TTL.Duration() <= 0 {
		return fmt.Errorf("session ttl must be positive, got %s", cfg.Session.TTL.Duration())
	}

	return nil
}

// UpstreamURL returns the parsed upstream base URL. Call Validate first.
func (c *Config) UpstreamURL() (*url.URL, error) {
	return url.Parse(c.Upstream.URL)
}
