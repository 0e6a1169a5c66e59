// Package config carga la configuración de wactl: YAML opcional + overrides
// por variables de entorno. Los intervalos van como strings de duración
// ("60s", "2m") con defaults sanos.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App struct {
		// dev | prod
		Env string `yaml:"env"`
	} `yaml:"app"`

	API struct {
		BaseURL string `yaml:"base_url"`
		Timeout string `yaml:"timeout"`
	} `yaml:"api"`

	Session struct {
		// Dir donde persisten credenciales y stamp. Default: ~/.wactl
		Dir string `yaml:"dir"`
	} `yaml:"session"`

	Sync struct {
		ProfileInterval string `yaml:"profile_interval"`
		StampInterval   string `yaml:"stamp_interval"`
	} `yaml:"sync"`

	Cache struct {
		Kind  string `yaml:"kind"` // memory | redis
		Redis struct {
			Addr   string `yaml:"addr"`
			DB     int    `yaml:"db"`
			Prefix string `yaml:"prefix"`
		} `yaml:"redis"`
		Memory struct {
			DefaultTTL string `yaml:"default_ttl"`
		} `yaml:"memory"`
	} `yaml:"cache"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
}

// Load lee el YAML (path vacío → solo defaults) y aplica overrides de entorno.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.App.Env = strEnv("WACTL_ENV", c.App.Env)
	c.API.BaseURL = strEnv("WACTL_API_URL", c.API.BaseURL)
	c.API.Timeout = strEnv("WACTL_API_TIMEOUT", c.API.Timeout)
	c.Session.Dir = strEnv("WACTL_SESSION_DIR", c.Session.Dir)
	c.Sync.ProfileInterval = strEnv("WACTL_PROFILE_INTERVAL", c.Sync.ProfileInterval)
	c.Sync.StampInterval = strEnv("WACTL_STAMP_INTERVAL", c.Sync.StampInterval)
	c.Cache.Kind = strEnv("WACTL_CACHE_KIND", c.Cache.Kind)
	c.Cache.Redis.Addr = strEnv("WACTL_REDIS_ADDR", c.Cache.Redis.Addr)
	c.Cache.Redis.DB = intEnv("WACTL_REDIS_DB", c.Cache.Redis.DB)
	c.Cache.Redis.Prefix = strEnv("WACTL_REDIS_PREFIX", c.Cache.Redis.Prefix)
	c.Log.Level = strEnv("WACTL_LOG_LEVEL", c.Log.Level)
}

func (c *Config) applyDefaults() {
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.Session.Dir == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			c.Session.Dir = filepath.Join(home, ".wactl")
		} else {
			c.Session.Dir = ".wactl"
		}
	}
	if c.Cache.Kind == "" {
		c.Cache.Kind = "memory"
	}
	if c.Cache.Redis.Prefix == "" {
		c.Cache.Redis.Prefix = "wactl:"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// APITimeout default 30s.
func (c *Config) APITimeout() time.Duration { return durOr(c.API.Timeout, 30*time.Second) }

// ProfileInterval default 60s (cadencia del track profile).
func (c *Config) ProfileInterval() time.Duration {
	return durOr(c.Sync.ProfileInterval, 60*time.Second)
}

// StampInterval default 1s (poll de la stamp del credstore).
func (c *Config) StampInterval() time.Duration { return durOr(c.Sync.StampInterval, time.Second) }

// MemoryTTL default 10m (TTL de snapshots en el cache memory).
func (c *Config) MemoryTTL() time.Duration { return durOr(c.Cache.Memory.DefaultTTL, 10*time.Minute) }

// ===== helpers env =====

func strEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func intEnv(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func durOr(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
