package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Sweep    SweepConfig
	Webhook  WebhookConfig
}

type ServerConfig struct {
	Address string
}

type DatabaseConfig struct {
	Path string
}

type RedisConfig struct {
	Enabled  bool
	Address  string
	Password string
	DB       int
	TTL      time.Duration
}

type SweepConfig struct {
	Interval time.Duration
}

type WebhookConfig struct {
	URL string
}

func LoadAll() (*Config, error) {
	webhookURL, err := mustEnv("WEBHOOK_URL")
	if err != nil {
		return nil, err
	}

	sweepSeconds, err := getEnvInt("SWEEP_INTERVAL_SECONDS", 300)
	if err != nil {
		return nil, err
	}

	redisCfg, err := loadRedisConfig()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Address: getEnv("SERVER_ADDRESS", ":8080"),
		},
		Database: DatabaseConfig{
			Path: getEnv("DB_PATH", "quik.db"),
		},
		Webhook: WebhookConfig{
			URL: webhookURL,
		},
		Sweep: SweepConfig{
			Interval: time.Duration(sweepSeconds) * time.Second,
		},
		Redis: redisCfg,
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadRedisConfig() (RedisConfig, error) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		return RedisConfig{Enabled: false}, nil
	}

	db, err := getEnvInt("REDIS_DB", 0)
	if err != nil {
		return RedisConfig{}, err
	}
	ttl, err := getEnvInt("REDIS_TTL_SECONDS", 60)
	if err != nil {
		return RedisConfig{}, err
	}

	return RedisConfig{
		Enabled:  true,
		Address:  addr,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       db,
		TTL:      time.Duration(ttl) * time.Second,
	}, nil
}

func validate(cfg *Config) error {
	if cfg.Sweep.Interval <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL_SECONDS must be > 0")
	}
	if cfg.Database.Path == "" {
		return fmt.Errorf("DB_PATH must not be empty")
	}
	return nil
}

func mustEnv(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("missing required env var: %s", key)
	}
	return val, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid int for env %s: %s", key, v)
	}
	return i, nil
}
