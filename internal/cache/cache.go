// Package cache provee un cache de bytes con soporte multi-backend.
//
// Soporta:
//   - Memory (in-process, default)
//   - Redis (compartido entre instancias del daemon)
//
// El syncer lo usa para hidratar snapshots "stale-but-present" tras un restart.
package cache

import "time"

// Cache operaciones mínimas de un cache de bytes.
type Cache interface {
	Get(k string) ([]byte, bool)
	Set(k string, v []byte, ttl time.Duration)
	Delete(k string)
}

// Config configuración para crear un cache.
type Config struct {
	Kind string // "memory" | "redis"

	Redis struct {
		Addr   string
		DB     int
		Prefix string
	}

	Memory struct {
		DefaultTTL time.Duration
	}
}

// New crea un cache según la configuración. Default: memory.
func New(cfg Config) Cache {
	switch cfg.Kind {
	case "redis":
		return NewRedis(cfg.Redis.Addr, cfg.Redis.DB, cfg.Redis.Prefix)
	default:
		ttl := cfg.Memory.DefaultTTL
		if ttl <= 0 {
			ttl = 5 * time.Minute
		}
		return NewMemory(ttl)
	}
}
