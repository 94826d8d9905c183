// Package config carrega a configuração dos binários (testserver/testclient):
// arquivo YAML opcional seguido de overrides por variáveis RATEGRATE_*.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server ServerConfig `yaml:"server"`
	Client ClientConfig `yaml:"client"`
	Stats  StatsConfig  `yaml:"stats"`
	Log    LogConfig    `yaml:"log"`
}

type ServerConfig struct {
	ListenAddr         string        `yaml:"listen_addr"`
	KeyHeader          string        `yaml:"key_header"`
	TrustXForwardedFor bool          `yaml:"trust_xff"`
	RateEnabled        bool          `yaml:"rate_enabled"`
	RateRPS            float64       `yaml:"rate_rps"`
	RateBurst          int           `yaml:"rate_burst"`
	ReadTimeout        time.Duration `yaml:"read_timeout"`
	WriteTimeout       time.Duration `yaml:"write_timeout"`
	IdleTimeout        time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout    time.Duration `yaml:"shutdown_timeout"`
}

type ClientConfig struct {
	BaseURL       string        `yaml:"base_url"`
	Token         string        `yaml:"token"`
	KeyHeader     string        `yaml:"key_header"`
	Slack         time.Duration `yaml:"slack"`
	RetryAttempts uint          `yaml:"retry_attempts"`
	Requests      int           `yaml:"requests"`
}

type StatsConfig struct {
	RedisEnabled  bool          `yaml:"redis_enabled"`
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	Prefix        string        `yaml:"prefix"`
	TTL           time.Duration `yaml:"ttl"`
	Bucket        string        `yaml:"bucket"`
	TrackKeys     bool          `yaml:"track_keys"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default devolve a configuração usada quando nada é informado.
func Default() Config {
	return Config{
		Server: ServerConfig{
			ListenAddr:      ":8080",
			KeyHeader:       "X-Client-Token",
			RateRPS:         100,
			RateBurst:       200,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     90 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Client: ClientConfig{
			BaseURL:       "http://localhost:8080",
			KeyHeader:     "X-Client-Token",
			Slack:         20 * time.Millisecond,
			RetryAttempts: 3,
			Requests:      10,
		},
		Stats: StatsConfig{
			Prefix: "grate:stats",
			TTL:    24 * time.Hour,
			Bucket: "minute",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load lê o YAML em path (se path != ""), aplica os overrides de ambiente e
// valida o resultado.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %q: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	s := &cfg.Server
	s.ListenAddr = getenvDefault("RATEGRATE_SERVER_LISTEN_ADDR", s.ListenAddr)
	s.KeyHeader = getenvDefault("RATEGRATE_SERVER_KEY_HEADER", s.KeyHeader)
	s.TrustXForwardedFor = getenvBoolDefault("RATEGRATE_SERVER_TRUST_XFF", s.TrustXForwardedFor)
	s.RateEnabled = getenvBoolDefault("RATEGRATE_SERVER_RATE_ENABLED", s.RateEnabled)
	s.RateRPS = getenvFloatDefault("RATEGRATE_SERVER_RATE_RPS", s.RateRPS)
	s.RateBurst = getenvIntDefault("RATEGRATE_SERVER_RATE_BURST", s.RateBurst)
	s.ReadTimeout = getenvDurationDefault("RATEGRATE_SERVER_READ_TIMEOUT", s.ReadTimeout)
	s.WriteTimeout = getenvDurationDefault("RATEGRATE_SERVER_WRITE_TIMEOUT", s.WriteTimeout)
	s.IdleTimeout = getenvDurationDefault("RATEGRATE_SERVER_IDLE_TIMEOUT", s.IdleTimeout)
	s.ShutdownTimeout = getenvDurationDefault("RATEGRATE_SERVER_SHUTDOWN_TIMEOUT", s.ShutdownTimeout)

	c := &cfg.Client
	c.BaseURL = getenvDefault("RATEGRATE_CLIENT_BASE_URL", c.BaseURL)
	c.Token = getenvDefault("RATEGRATE_CLIENT_TOKEN", c.Token)
	c.KeyHeader = getenvDefault("RATEGRATE_CLIENT_KEY_HEADER", c.KeyHeader)
	c.Slack = getenvDurationDefault("RATEGRATE_CLIENT_SLACK", c.Slack)
	c.RetryAttempts = uint(getenvIntDefault("RATEGRATE_CLIENT_RETRY_ATTEMPTS", int(c.RetryAttempts)))
	c.Requests = getenvIntDefault("RATEGRATE_CLIENT_REQUESTS", c.Requests)

	st := &cfg.Stats
	st.RedisEnabled = getenvBoolDefault("RATEGRATE_STATS_REDIS_ENABLED", st.RedisEnabled)
	st.RedisAddr = getenvDefault("RATEGRATE_STATS_REDIS_ADDR", st.RedisAddr)
	st.RedisPassword = getenvDefault("RATEGRATE_STATS_REDIS_PASSWORD", st.RedisPassword)
	st.RedisDB = getenvIntDefault("RATEGRATE_STATS_REDIS_DB", st.RedisDB)
	st.Prefix = getenvDefault("RATEGRATE_STATS_PREFIX", st.Prefix)
	st.TTL = getenvDurationDefault("RATEGRATE_STATS_TTL", st.TTL)
	st.Bucket = getenvDefault("RATEGRATE_STATS_BUCKET", st.Bucket)
	st.TrackKeys = getenvBoolDefault("RATEGRATE_STATS_TRACK_KEYS", st.TrackKeys)

	cfg.Log.Level = getenvDefault("RATEGRATE_LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getenvDefault("RATEGRATE_LOG_FORMAT", cfg.Log.Format)
}

func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Server.ListenAddr) == "" {
		errs = append(errs, errors.New("server.listen_addr is required"))
	}
	if c.Server.RateEnabled {
		if c.Server.RateRPS <= 0 {
			errs = append(errs, errors.New("server.rate_rps must be > 0"))
		}
		if c.Server.RateBurst <= 0 {
			errs = append(errs, errors.New("server.rate_burst must be > 0"))
		}
	}
	if c.Client.Slack < 0 {
		errs = append(errs, errors.New("client.slack must be >= 0"))
	}
	if c.Client.Requests <= 0 {
		errs = append(errs, errors.New("client.requests must be > 0"))
	}
	if c.Stats.RedisEnabled && strings.TrimSpace(c.Stats.RedisAddr) == "" {
		errs = append(errs, errors.New("stats.redis_addr is required when stats.redis_enabled=true"))
	}
	switch c.Stats.Bucket {
	case "", "minute", "none":
	default:
		errs = append(errs, fmt.Errorf("stats.bucket %q must be minute or none", c.Stats.Bucket))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvIntDefault(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getenvFloatDefault(k string, def float64) float64 {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func getenvBoolDefault(k string, def bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getenvDurationDefault(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
