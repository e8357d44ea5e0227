package util

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

// Cache drivers for the local save cache.
const (
	CacheFile     = "file"
	CachePostgres = "postgres"
	CacheRedis    = "redis"
)

// Config holds runtime settings and flags.
type Config struct {
	BackendURL    string `envconfig:"STORYLOOM_BACKEND_URL" default:"http://127.0.0.1:5001"`
	DSN           string `envconfig:"DATABASE_URL"`
	CacheDriver   string `envconfig:"STORYLOOM_CACHE_DRIVER" default:"file"`
	CacheDir      string `envconfig:"STORYLOOM_CACHE_DIR"`
	RedisAddr     string `envconfig:"STORYLOOM_REDIS_ADDR" default:"127.0.0.1:6379"`
	RedisPassword string `envconfig:"STORYLOOM_REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"STORYLOOM_REDIS_DB" default:"0"`
	LogLevel      string `envconfig:"STORYLOOM_LOG_LEVEL" default:"info"`
	LogEncoding   string `envconfig:"STORYLOOM_LOG_ENCODING" default:"json"`
	LogFile       string `envconfig:"STORYLOOM_LOG_FILE"`
	Sound         bool   `envconfig:"STORYLOOM_SOUND" default:"true"`
	Seed          int64  `envconfig:"STORYLOOM_SEED"`
	Palette       string `envconfig:"STORYLOOM_PALETTE"`
}

// LoadConfig reads the environment. Flags are applied on top by main.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// Finalize fills path defaults and checks the combination of settings.
func (c *Config) Finalize() error {
	c.BackendURL = strings.TrimSuffix(strings.TrimSpace(c.BackendURL), "/")
	if c.BackendURL == "" {
		return fmt.Errorf("backend url is empty")
	}
	if c.CacheDir == "" {
		c.CacheDir = DataDir()
	}
	if c.LogFile == "" {
		c.LogFile = filepath.Join(c.CacheDir, "storyloom.log")
	}
	c.CacheDriver = strings.ToLower(c.CacheDriver)
	switch c.CacheDriver {
	case CacheFile:
	case CachePostgres:
		if c.DSN == "" {
			return fmt.Errorf("cache driver postgres needs DATABASE_URL or -dsn")
		}
	case CacheRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("cache driver redis needs STORYLOOM_REDIS_ADDR")
		}
	default:
		return fmt.Errorf("unknown cache driver %q", c.CacheDriver)
	}
	return nil
}

// DataDir is where saves, logs and other local files live by default.
func DataDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".storyloom"
	}
	return filepath.Join(home, ".storyloom")
}
