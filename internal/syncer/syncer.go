// Package syncer mantiene frescos los snapshots locales del estado del server
// mediante dos tracks de refresh independientes:
//
//   - profile ("check"): perfil/salud de conexión. Se repite cada intervalo fijo
//     y ante cambios de la stamp del credstore (login/logout en otro proceso).
//   - info ("suscripción + lista"): datos que se mueven lento. Solo refresca al
//     arrancar y ante triggers explícitos (post-mutación).
//
// Política stale-but-present: un refresh fallido deja el último snapshot bueno
// intacto; el dashboard degrada a "viejo pero visible", nunca a vacío.
//
// Cada track lleva guard single-flight: refreshes concurrentes idénticos se
// coalescen en un solo fetch en vuelo.
package syncer

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/wadesk/wactl/internal/apiclient"
	"github.com/wadesk/wactl/internal/cache"
	"github.com/wadesk/wactl/internal/metrics"
	"github.com/wadesk/wactl/internal/observability/logger"
)

// Nombres de track (también labels de métricas y keys de single-flight).
const (
	TrackProfile = "profile"
	TrackInfo    = "info"
)

// State del ciclo de un track: Idle → Fetching → (Settled | Failed).
type State int

const (
	StateIdle State = iota
	StateFetching
	StateSettled
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateFetching:
		return "fetching"
	case StateSettled:
		return "settled"
	case StateFailed:
		return "failed"
	default:
		return "idle"
	}
}

// TrackStatus es el estado observable de un track.
type TrackStatus struct {
	State     State
	LastError string
	UpdatedAt time.Time
}

// API es lo que el syncer necesita del apiclient (lecturas idempotentes).
type API interface {
	Check(ctx context.Context) (apiclient.AdminProfile, apiclient.Result)
	Info(ctx context.Context) (apiclient.InfoData, apiclient.Result)
}

// Config del syncer.
type Config struct {
	API API

	// Stamp lee la stamp key del credstore. nil deshabilita el watcher.
	Stamp func() int64

	// ProfileInterval cadencia del track profile. Default: 60s.
	ProfileInterval time.Duration

	// StampInterval cadencia del poll de la stamp. Default: 1s.
	StampInterval time.Duration

	// Cache opcional para hidratar snapshots tras un restart del daemon.
	Cache    cache.Cache
	CacheTTL time.Duration

	// OnChange se invoca tras cada settle exitoso (refresco de UI).
	OnChange func()
}

const (
	cacheKeyProfile = "snapshot:profile"
	cacheKeyInfo    = "snapshot:info"
)

// infoSnapshot agrupa lo que viaja junto en el track info.
type infoSnapshot struct {
	Stats       apiclient.SubscriptionStats `json:"stats"`
	Subaccounts []apiclient.SubAccountItem  `json:"subaccounts"`
}

// Syncer es el scheduler de ambos tracks.
type Syncer struct {
	api      API
	stamp    func() int64
	onChange func()
	cache    cache.Cache
	cacheTTL time.Duration

	profileInterval time.Duration
	stampInterval   time.Duration

	sf  singleflight.Group
	log *zap.Logger

	mu       sync.RWMutex
	profile  *apiclient.AdminProfile
	stats    *apiclient.SubscriptionStats
	accounts []apiclient.SubAccountItem
	status   map[string]TrackStatus
}

func New(cfg Config) *Syncer {
	s := &Syncer{
		api:             cfg.API,
		stamp:           cfg.Stamp,
		onChange:        cfg.OnChange,
		cache:           cfg.Cache,
		cacheTTL:        cfg.CacheTTL,
		profileInterval: cfg.ProfileInterval,
		stampInterval:   cfg.StampInterval,
		log:             logger.Named("syncer"),
		status: map[string]TrackStatus{
			TrackProfile: {State: StateIdle},
			TrackInfo:    {State: StateIdle},
		},
	}
	if s.profileInterval <= 0 {
		s.profileInterval = 60 * time.Second
	}
	if s.stampInterval <= 0 {
		s.stampInterval = time.Second
	}
	if s.cacheTTL <= 0 {
		s.cacheTTL = 10 * time.Minute
	}
	s.hydrate()
	return s
}

// hydrate repone snapshots desde el cache: stale-but-present también a través
// de un restart. Los tracks quedan Idle, el próximo refresh los pisa entero.
func (s *Syncer) hydrate() {
	if s.cache == nil {
		return
	}
	if b, ok := s.cache.Get(cacheKeyProfile); ok {
		var p apiclient.AdminProfile
		if json.Unmarshal(b, &p) == nil {
			s.profile = &p
		}
	}
	if b, ok := s.cache.Get(cacheKeyInfo); ok {
		var snap infoSnapshot
		if json.Unmarshal(b, &snap) == nil {
			s.stats = &snap.Stats
			s.accounts = snap.Subaccounts
		}
	}
}

func (s *Syncer) writeCache(key string, v any) {
	if s.cache == nil {
		return
	}
	if b, err := json.Marshal(v); err == nil {
		s.cache.Set(key, b, s.cacheTTL)
	}
}

// Run dispara ambos tracks una vez y queda recorriendo el timer del profile y
// el watcher de stamp hasta que el contexto se cancele. El cancel corta también
// los fetches en vuelo (viajan con este ctx).
func (s *Syncer) Run(ctx context.Context) {
	s.RefreshProfile(ctx)
	s.RefreshInfo(ctx)

	ticker := time.NewTicker(s.profileInterval)
	defer ticker.Stop()

	stampTicker := time.NewTicker(s.stampInterval)
	defer stampTicker.Stop()

	var lastStamp int64
	if s.stamp != nil {
		lastStamp = s.stamp()
	}

	for {
		select {
		case <-ctx.Done():
			s.log.Debug("syncer stopped")
			return
		case <-ticker.C:
			s.RefreshProfile(ctx)
		case <-stampTicker.C:
			if s.stamp == nil {
				continue
			}
			if v := s.stamp(); v != lastStamp {
				lastStamp = v
				s.log.Debug("credential stamp changed, refreshing profile")
				s.RefreshProfile(ctx)
			}
		}
	}
}

// RefreshProfile corre el track profile (single-flight).
func (s *Syncer) RefreshProfile(ctx context.Context) apiclient.Result {
	v, _, _ := s.sf.Do(TrackProfile, func() (any, error) {
		s.setStatus(TrackProfile, StateFetching, "")
		start := time.Now()
		profile, res := s.api.Check(ctx)
		metrics.ObserveRefresh(TrackProfile, res.OK, time.Since(start))

		if !res.OK {
			// snapshot anterior intacto
			s.setStatus(TrackProfile, StateFailed, res.ErrorMessage())
			s.log.Warn("profile refresh failed", zap.Int("status", res.Status), zap.String("msg", res.ErrorMessage()))
			return res, nil
		}

		s.mu.Lock()
		s.profile = &profile
		s.mu.Unlock()
		s.writeCache(cacheKeyProfile, profile)
		s.setStatus(TrackProfile, StateSettled, "")
		s.notify()
		return res, nil
	})
	return v.(apiclient.Result)
}

// RefreshInfo corre el track info (single-flight). Lo disparan el arranque y
// las mutaciones que cambian la composición de la lista.
func (s *Syncer) RefreshInfo(ctx context.Context) apiclient.Result {
	v, _, _ := s.sf.Do(TrackInfo, func() (any, error) {
		s.setStatus(TrackInfo, StateFetching, "")
		start := time.Now()
		data, res := s.api.Info(ctx)
		metrics.ObserveRefresh(TrackInfo, res.OK, time.Since(start))

		if !res.OK {
			s.setStatus(TrackInfo, StateFailed, res.ErrorMessage())
			s.log.Warn("info refresh failed", zap.Int("status", res.Status), zap.String("msg", res.ErrorMessage()))
			return res, nil
		}

		s.mu.Lock()
		s.stats = &data.Stats
		s.accounts = data.Subaccounts
		s.mu.Unlock()
		s.writeCache(cacheKeyInfo, infoSnapshot{Stats: data.Stats, Subaccounts: data.Subaccounts})
		s.setStatus(TrackInfo, StateSettled, "")
		s.notify()
		return res, nil
	})
	return v.(apiclient.Result)
}

func (s *Syncer) notify() {
	if s.onChange != nil {
		s.onChange()
	}
}

func (s *Syncer) setStatus(track string, st State, errMsg string) {
	s.mu.Lock()
	s.status[track] = TrackStatus{State: st, LastError: errMsg, UpdatedAt: time.Now()}
	s.mu.Unlock()
}

// Status retorna el estado observable de un track.
func (s *Syncer) Status(track string) TrackStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status[track]
}

// Profile retorna el último perfil bueno (copia), o nil.
func (s *Syncer) Profile() *apiclient.AdminProfile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.profile == nil {
		return nil
	}
	p := *s.profile
	return &p
}

// Stats retorna las últimas stats buenas (copia), o nil.
func (s *Syncer) Stats() *apiclient.SubscriptionStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.stats == nil {
		return nil
	}
	st := *s.stats
	return &st
}

// Accounts retorna la última lista buena (copia).
func (s *Syncer) Accounts() []apiclient.SubAccountItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]apiclient.SubAccountItem, len(s.accounts))
	copy(out, s.accounts)
	return out
}
