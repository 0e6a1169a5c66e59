// mockadmin levanta el doble in-memory del Admin API para desarrollo local:
//
//	go run ./cmd/mockadmin -addr :8080 -seed ./cmd/mockadmin/seed_data.yaml
package main

import (
	"flag"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/wadesk/wactl/internal/mockadmin"
	"github.com/wadesk/wactl/internal/observability/logger"
)

func main() {
	var (
		addr     = flag.String("addr", envOr("MOCKADMIN_ADDR", ":8080"), "address to listen on")
		seedPath = flag.String("seed", envOr("MOCKADMIN_SEED", ""), "seed YAML (default: built-in seed)")
		secret    = flag.String("secret", envOr("MOCKADMIN_SECRET", ""), "HMAC secret for tokens (default: random)")
		ttl       = flag.Duration("token-ttl", time.Hour, "issued token TTL")
		redisAddr = flag.String("redis", envOr("MOCKADMIN_REDIS_ADDR", ""), "redis addr for shared login rate limiting (default: in-memory)")
	)
	flag.Parse()

	logger.Init(logger.Config{Env: envOr("WACTL_ENV", "dev"), Level: envOr("WACTL_LOG_LEVEL", "info"), ServiceName: "mockadmin"})
	defer func() { _ = logger.Sync() }()
	log := logger.L()

	seed := mockadmin.DefaultSeed()
	if *seedPath != "" {
		s, err := mockadmin.LoadSeed(*seedPath)
		if err != nil {
			log.Fatal("seed load failed", zap.Error(err))
		}
		seed = s
	}

	srv, err := mockadmin.New(mockadmin.Config{Seed: seed, Secret: *secret, TokenTTL: *ttl, RedisAddr: *redisAddr})
	if err != nil {
		log.Fatal("mock build failed", zap.Error(err))
	}

	log.Info("mock admin API listening",
		zap.String("addr", *addr),
		zap.String("admin_identity", seed.Admin.IdentityID))
	if err := http.ListenAndServe(*addr, srv.Handler()); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
