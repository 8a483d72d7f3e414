package config

import (
	"fmt"
	"strings"
)

const (
	StoreFile     = "file"
	StorePebble   = "pebble"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

type Config struct {
	ServerAddr     string
	Env            string
	StoreDriver    string
	DataFile       string
	PebbleDir      string
	DatabaseDSN    string
	RedisURL       string
	AllowedOrigins []string
	MaxMessageSize int64
	RateLimit      RateLimit
}

type RateLimit struct {
	EventsPerSecond float64
	Burst           int
}

type Options struct {
	ServerAddr     string
	Env            string
	StoreDriver    string
	DataFile       string
	PebbleDir      string
	DatabaseDSN    string
	RedisURL       string
	AllowedOrigins []string
	MaxMessageSize int64
	RateLimitRPS   float64
	RateLimitBurst int
}

func NewConfig(opts Options) (*Config, error) {
	if opts.ServerAddr == "" {
		return nil, fmt.Errorf("server address cannot be empty")
	}
	if opts.MaxMessageSize <= 0 {
		return nil, fmt.Errorf("max message size must be positive")
	}
	if opts.RateLimitRPS <= 0 || opts.RateLimitBurst <= 0 {
		return nil, fmt.Errorf("rate limit must be positive")
	}

	driver := strings.ToLower(strings.TrimSpace(opts.StoreDriver))
	if driver == "" {
		driver = StoreFile
	}

	switch driver {
	case StoreFile:
		if opts.DataFile == "" {
			return nil, fmt.Errorf("data file cannot be empty")
		}
	case StorePebble:
		if opts.PebbleDir == "" {
			return nil, fmt.Errorf("pebble directory cannot be empty")
		}
	case StorePostgres:
		if opts.DatabaseDSN == "" {
			return nil, fmt.Errorf("database DSN cannot be empty")
		}
	case StoreRedis:
		if opts.RedisURL == "" {
			return nil, fmt.Errorf("redis URL cannot be empty")
		}
	default:
		return nil, fmt.Errorf("unknown store driver %q", opts.StoreDriver)
	}

	env := opts.Env
	if env == "" {
		env = "development"
	}

	return &Config{
		ServerAddr:     opts.ServerAddr,
		Env:            env,
		StoreDriver:    driver,
		DataFile:       opts.DataFile,
		PebbleDir:      opts.PebbleDir,
		DatabaseDSN:    opts.DatabaseDSN,
		RedisURL:       opts.RedisURL,
		AllowedOrigins: opts.AllowedOrigins,
		MaxMessageSize: opts.MaxMessageSize,
		RateLimit: RateLimit{
			EventsPerSecond: opts.RateLimitRPS,
			Burst:           opts.RateLimitBurst,
		},
	}, nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}
