package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Storage drivers accepted in storage.driver.
const (
	DriverMemory = "memory"
	DriverBolt   = "bolt"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Log struct {
		Level string `yaml:"level"`
		Env   string `yaml:"env"`
		File  string `yaml:"file"`
	} `yaml:"log"`
	Auth struct {
		JWTSecret  string  `yaml:"jwt_secret"`
		TokenTTL   string  `yaml:"token_ttl"`
		LoginRate  float64 `yaml:"login_rate"`
		LoginBurst int     `yaml:"login_burst"`
	} `yaml:"auth"`
	Storage struct {
		Driver string `yaml:"driver"`
	} `yaml:"storage"`
	Bolt struct {
		Path string `yaml:"path"`
	} `yaml:"bolt"`
	Redis struct {
		Addr       string `yaml:"addr"`
		Password   string `yaml:"password"`
		DB         int    `yaml:"db"`
		SessionTTL string `yaml:"session_ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Catalog struct {
		CacheTTL string `yaml:"cache_ttl"`
	} `yaml:"catalog"`
	Grading struct {
		Workers int `yaml:"workers"`
	} `yaml:"grading"`
	Jobs struct {
		ExpireInterval string `yaml:"expire_interval"`
	} `yaml:"jobs"`
	Sentry struct {
		DSN         string `yaml:"dsn"`
		Environment string `yaml:"environment"`
	} `yaml:"sentry"`
	Bootstrap struct {
		AdminEmail    string `yaml:"admin_email"`
		AdminPassword string `yaml:"admin_password"`
	} `yaml:"bootstrap"`
}

// Load reads YAML config from path, then applies .env and environment
// overrides. A missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return cfg, err
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return cfg, fmt.Errorf("load .env: %w", err)
	}
	applyEnv(&cfg)
	applyDefaults(&cfg)
	return cfg, cfg.validate()
}

func applyEnv(cfg *Config) {
	override := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	override(&cfg.Auth.JWTSecret, "JWT_SECRET")
	override(&cfg.Sentry.DSN, "SENTRY_DSN")
	override(&cfg.Postgres.URL, "POSTGRES_URL")
	override(&cfg.Redis.Addr, "REDIS_ADDR")
	override(&cfg.Redis.Password, "REDIS_PASSWORD")
	override(&cfg.Storage.Driver, "STORAGE_DRIVER")
	override(&cfg.Log.Level, "LOG_LEVEL")
	override(&cfg.Bootstrap.AdminEmail, "ADMIN_EMAIL")
	override(&cfg.Bootstrap.AdminPassword, "ADMIN_PASSWORD")
	if v := os.Getenv("GRADING_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Grading.Workers = n
		}
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == "" {
		cfg.Server.Port = "8080"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Env == "" {
		cfg.Log.Env = "dev"
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = DriverMemory
	}
	if cfg.Bolt.Path == "" {
		cfg.Bolt.Path = "data/skillyhead.db"
	}
	if cfg.Auth.LoginRate <= 0 {
		cfg.Auth.LoginRate = 1
	}
	if cfg.Auth.LoginBurst <= 0 {
		cfg.Auth.LoginBurst = 5
	}
	if cfg.Grading.Workers <= 0 {
		cfg.Grading.Workers = 4
	}
	if cfg.Sentry.Environment == "" {
		cfg.Sentry.Environment = cfg.Log.Env
	}
}

func (c Config) validate() error {
	switch c.Storage.Driver {
	case DriverMemory, DriverBolt:
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	return nil
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
