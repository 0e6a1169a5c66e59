// Package mockadmin implementa un doble in-memory del Admin API: los mismos
// paths, el mismo envelope {code, message, data} y el mismo wording de token
// vencido que el servidor real. Lo usan cmd/mockadmin para desarrollo local y
// los tests de integración del cliente.
//
// No es un sistema de autenticación de producción: emite JWTs HMAC con estado
// en memoria y nada más.
package mockadmin

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	rdb "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/wadesk/wactl/internal/apiclient"
	"github.com/wadesk/wactl/internal/observability/logger"
	"github.com/wadesk/wactl/internal/rate"
	"github.com/wadesk/wactl/internal/security/password"
)

type account struct {
	item         apiclient.SubAccountItem
	passwordHash string
}

// Server es el mock del Admin API.
type Server struct {
	secret     []byte
	tokenTTL   time.Duration
	log        *zap.Logger
	loginLimit rate.Limiter

	mu       sync.Mutex
	admin    apiclient.AdminProfile
	adminPwd string // PHC hash
	accounts map[string]*account

	maxSubaccounts int
	maxInstances   int
	expiredAt      string

	router chi.Router
}

// Config del mock.
type Config struct {
	Seed Seed
	// Secret HMAC para firmar tokens. Default: aleatorio por arranque.
	Secret string
	// TokenTTL de los JWT emitidos. Default: 1h.
	TokenTTL time.Duration
	// LoginMax: intentos de login por identidad y ventana. Default: 10.
	LoginMax int
	// LoginWindow de la ventana de rate limit. Default: 1m.
	LoginWindow time.Duration
	// RedisAddr opcional: comparte el contador de intentos entre instancias.
	RedisAddr string
}

func New(cfg Config) (*Server, error) {
	secret := cfg.Secret
	if secret == "" {
		secret = uuid.NewString()
	}
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = time.Hour
	}

	loginMax := cfg.LoginMax
	if loginMax <= 0 {
		loginMax = 10
	}
	loginWindow := cfg.LoginWindow
	if loginWindow <= 0 {
		loginWindow = time.Minute
	}
	var limiter rate.Limiter
	if cfg.RedisAddr != "" {
		client := rdb.NewClient(&rdb.Options{Addr: cfg.RedisAddr})
		limiter = rate.NewRedisLimiter(client, "mockadmin:rl:", loginMax, loginWindow)
	} else {
		limiter = rate.NewMemoryLimiter(loginMax, loginWindow)
	}

	s := &Server{
		secret:         []byte(secret),
		tokenTTL:       ttl,
		loginLimit:     limiter,
		log:            logger.Named("mockadmin"),
		accounts:       make(map[string]*account),
		maxSubaccounts: cfg.Seed.Subscription.MaxSubaccounts,
		maxInstances:   cfg.Seed.Subscription.MaxInstances,
		expiredAt:      cfg.Seed.Subscription.ExpiredAt,
	}

	s.admin = apiclient.AdminProfile{
		IdentityID: cfg.Seed.Admin.IdentityID,
		Name:       cfg.Seed.Admin.Name,
		Email:      cfg.Seed.Admin.Email,
		Phone:      cfg.Seed.Admin.Phone,
		ContactID:  cfg.Seed.Admin.ContactID,
		Code:       cfg.Seed.Admin.Code,
	}
	hash, err := password.Hash(password.Default, cfg.Seed.Admin.Password)
	if err != nil {
		return nil, fmt.Errorf("hash admin password: %w", err)
	}
	s.adminPwd = hash

	for _, sub := range cfg.Seed.Subaccounts {
		id := uuid.NewString()
		hash, err := password.Hash(password.Default, sub.Password)
		if err != nil {
			return nil, fmt.Errorf("hash subaccount password: %w", err)
		}
		status := "disconnected"
		if sub.Connected {
			status = "connected"
		}
		s.accounts[id] = &account{
			item: apiclient.SubAccountItem{
				Type:        "subaccount",
				Name:        sub.Name,
				LocationID:  "loc-" + id[:8],
				IdentityID:  id,
				WhiteID:     "wh-" + id[:8],
				Sessions:    sub.Instances,
				IsConnected: sub.Connected,
				Status:      status,
				RefreshAt:   time.Now().UTC().Format(time.RFC3339),
			},
			passwordHash: hash,
		}
	}

	s.routes()
	return s, nil
}

// Handler retorna el http.Handler del mock.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() {
	r := chi.NewRouter()

	r.Post("/admin/login", s.handleLogin)

	r.Group(func(pr chi.Router) {
		pr.Use(s.auth)
		pr.Get("/admin/check", s.handleCheck)
		pr.Get("/admin/info", s.handleInfo)
		pr.Post("/admin/subaccount", s.handleCreate)
		pr.Put("/admin/subaccount/change", s.handleChangePassword)
		pr.Put("/admin/subaccount/reset/{id}", s.handleReset)
		pr.Put("/admin/subaccount/disconnect/{id}", s.handleDisconnect)
		pr.Put("/admin/subaccount/{id}", s.handleUpdate)
		pr.Delete("/admin/subaccount/{id}", s.handleDelete)
	})

	s.router = r
}

// ===== envelope =====

type envelope struct {
	Code    int    `json:"code"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func writeOK(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(envelope{Code: 200, Data: data})
}

func writeFail(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(envelope{Code: code, Message: msg})
}

func readJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeFail(w, 400, "invalid json body")
		return false
	}
	return true
}

// ===== auth =====

type ctxKey string

const subjectKey ctxKey = "subject"

func (s *Server) issueToken(identityID string) (string, error) {
	claims := jwt.MapClaims{
		"sub": identityID,
		"exp": jwt.NewNumericDate(time.Now().Add(s.tokenTTL)),
		"iat": jwt.NewNumericDate(time.Now()),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// auth valida el header Authorization (token verbatim, sin scheme).
func (s *Server) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimSpace(r.Header.Get("Authorization"))
		if raw == "" {
			writeFail(w, 401, "invalid or expired token")
			return
		}
		tok, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method")
			}
			return s.secret, nil
		})
		if err != nil || !tok.Valid {
			writeFail(w, 401, "invalid or expired token")
			return
		}
		sub, err := tok.Claims.GetSubject()
		if err != nil || sub == "" {
			writeFail(w, 401, "invalid or expired token")
			return
		}
		// el subject tiene que seguir existiendo
		s.mu.Lock()
		_, known := s.accounts[sub]
		isAdmin := sub == s.admin.IdentityID
		s.mu.Unlock()
		if !known && !isAdmin {
			writeFail(w, 401, "invalid or expired token")
			return
		}
		next.ServeHTTP(w, r.WithContext(withSubject(r.Context(), sub)))
	})
}

// ===== handlers =====

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IdentityID string `json:"identityId"`
		Password   string `json:"password"`
	}
	if !readJSON(w, r, &req) {
		return
	}

	if rl, err := s.loginLimit.Allow(r.Context(), req.IdentityID); err == nil && !rl.Allowed {
		writeFail(w, 429, "too many login attempts")
		return
	}

	s.mu.Lock()
	profile, hash, found := s.lookupLocked(req.IdentityID)
	s.mu.Unlock()

	if !found || !password.Verify(req.Password, hash) {
		writeFail(w, 401, "invalid credentials")
		return
	}

	token, err := s.issueToken(profile.IdentityID)
	if err != nil {
		writeFail(w, 500, "token issue failed")
		return
	}
	s.log.Debug("login", zap.String("identity", profile.IdentityID))
	writeOK(w, apiclient.LoginData{Token: token, Profile: profile})
}

// lookupLocked resuelve admin o sub-cuenta por identityId.
func (s *Server) lookupLocked(identityID string) (apiclient.AdminProfile, string, bool) {
	if identityID == s.admin.IdentityID {
		return s.admin, s.adminPwd, true
	}
	if acc, ok := s.accounts[identityID]; ok {
		return apiclient.AdminProfile{IdentityID: identityID, Name: acc.item.Name}, acc.passwordHash, true
	}
	return apiclient.AdminProfile{}, "", false
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	sub := subjectFrom(r.Context())
	s.mu.Lock()
	profile, _, found := s.lookupLocked(sub)
	s.mu.Unlock()
	if !found {
		writeFail(w, 404, "identity not found")
		return
	}
	writeOK(w, profile)
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := make([]apiclient.SubAccountItem, 0, len(s.accounts))
	usedInstances := 0
	for _, acc := range s.accounts {
		items = append(items, acc.item)
		usedInstances += acc.item.Sessions
	}

	writeOK(w, apiclient.InfoData{
		Stats: apiclient.SubscriptionStats{
			ExpiredAt: s.expiredAt,
			Subaccounts: apiclient.Quota{
				Total:     s.maxSubaccounts,
				Used:      len(items),
				Available: s.maxSubaccounts - len(items),
			},
			Instances: apiclient.Quota{
				Total:     s.maxInstances,
				Used:      usedInstances,
				Available: s.maxInstances - usedInstances,
			},
		},
		Subaccounts: items,
	})
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req apiclient.CreateSubAccountRequest
	if !readJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeFail(w, 400, "name is required")
		return
	}
	instances := req.Instances
	if instances <= 0 {
		instances = 1
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.accounts) >= s.maxSubaccounts {
		writeFail(w, 400, "subaccount limit reached")
		return
	}

	id := uuid.NewString()
	hash, _ := password.Hash(password.Default, uuid.NewString())
	acc := &account{
		item: apiclient.SubAccountItem{
			Type:        "subaccount",
			Name:        req.Name,
			LocationID:  "loc-" + id[:8],
			IdentityID:  id,
			WhiteID:     "wh-" + id[:8],
			Sessions:    instances,
			IsConnected: false,
			Status:      "disconnected",
			RefreshAt:   time.Now().UTC().Format(time.RFC3339),
		},
		passwordHash: hash,
	}
	s.accounts[id] = acc
	writeOK(w, acc.item)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req apiclient.UpdateSubAccountRequest
	if !readJSON(w, r, &req) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[id]
	if !ok {
		writeFail(w, 404, "subaccount not found")
		return
	}
	if strings.TrimSpace(req.Name) != "" {
		acc.item.Name = req.Name
	}
	if req.Instances > 0 {
		acc.item.Sessions = req.Instances
	}
	writeOK(w, acc.item)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[id]; !ok {
		writeFail(w, 404, "subaccount not found")
		return
	}
	delete(s.accounts, id)
	writeOK(w, nil)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[id]
	if !ok {
		writeFail(w, 404, "subaccount not found")
		return
	}
	plain := uuid.NewString()[:13]
	hash, err := password.Hash(password.Default, plain)
	if err != nil {
		writeFail(w, 500, "password generation failed")
		return
	}
	acc.passwordHash = hash
	writeOK(w, apiclient.ResetPasswordData{Password: plain})
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[id]
	if !ok {
		writeFail(w, 404, "subaccount not found")
		return
	}
	acc.item.IsConnected = false
	acc.item.Status = "disconnected"
	acc.item.RefreshAt = time.Now().UTC().Format(time.RFC3339)
	writeOK(w, acc.item)
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	sub := subjectFrom(r.Context())
	var req struct {
		OldPassword string `json:"oldPassword"`
		NewPassword string `json:"newPassword"`
	}
	if !readJSON(w, r, &req) {
		return
	}
	if req.NewPassword == "" {
		writeFail(w, 400, "new password is required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, hash, found := s.lookupLocked(sub)
	if !found {
		writeFail(w, 404, "identity not found")
		return
	}
	if !password.Verify(req.OldPassword, hash) {
		writeFail(w, 401, "wrong password")
		return
	}
	newHash, err := password.Hash(password.Default, req.NewPassword)
	if err != nil {
		writeFail(w, 500, "password hash failed")
		return
	}
	if sub == s.admin.IdentityID {
		s.adminPwd = newHash
	} else {
		s.accounts[sub].passwordHash = newHash
	}
	writeOK(w, nil)
}
