// Package apiclient implementa el cliente del Admin API.
//
// Todas las operaciones son no-throwing: el resultado (éxito o fallo de
// cualquier capa) viene codificado en Result. El cliente no reintenta, no
// escribe caches y no fuerza logout: efectos colaterales cero más allá del
// request. La detección de token vencido se expone, la política queda arriba.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/wadesk/wactl/internal/observability/logger"
)

const maxResponseBody = 1 << 20 // 1MB

// TokenSource resuelve el token activo por request.
// Retorna "" cuando no hay sesión.
type TokenSource interface {
	CurrentToken() string
}

// Config del cliente.
type Config struct {
	// BaseURL del Admin API, ej. https://api.example.com
	BaseURL string
	// Timeout por request. Default: 30s.
	Timeout time.Duration
	// Tokens provee el token activo. Requerido para operaciones autenticadas.
	Tokens TokenSource
	// HTTPClient permite inyectar un *http.Client (tests). Opcional.
	HTTPClient *http.Client
}

// Client es el cliente del Admin API.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource
	log     *zap.Logger
}

func New(cfg Config) *Client {
	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    hc,
		tokens:  cfg.Tokens,
		log:     logger.Named("apiclient"),
	}
}

// do ejecuta un request y normaliza la respuesta a Result.
//
// Con auth=true y sin token activo, falla rápido local (status 0) sin tocar la
// red: mandar el request igual solo produciría un rechazo del server y un error
// de red engañoso para lo que en realidad es un problema de estado local.
func (c *Client) do(ctx context.Context, method, path string, payload any, auth bool) Result {
	var token string
	if auth {
		if c.tokens != nil {
			token = c.tokens.CurrentToken()
		}
		if token == "" {
			return notAuthenticated()
		}
	}

	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return transportFailure(err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return transportFailure(err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth {
		// el token viaja verbatim, sin scheme (contrato del server)
		req.Header.Set("Authorization", token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Debug("transport failure", zap.String("path", path), zap.Error(err))
		return transportFailure(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return transportFailure(err)
	}

	res := decodeResponse(resp.StatusCode, raw)
	if res.TokenExpired() {
		c.log.Warn("server reports expired token", zap.String("path", path))
	}
	return res
}

// decodeResponse aplica la taxonomía de fallos del protocolo:
//   - body no-JSON → json nil, Text crudo, ok según status HTTP
//   - envelope con code >= 400 o campo error → fallo aunque el HTTP sea 200
func decodeResponse(status int, raw []byte) Result {
	res := Result{Status: status}
	httpOK := status >= 200 && status < 300

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		res.Text = string(raw)
		res.OK = httpOK
		return res
	}

	if env.Code == 0 && env.Message == "" && env.Error == "" && env.Data == nil {
		// JSON válido pero sin envelope: el body entero es el dato
		res.Body = raw
		res.OK = httpOK
		return res
	}

	res.Code = env.Code
	res.Message = env.Message
	if res.Message == "" {
		res.Message = env.Error
	}
	res.Body = env.Data
	res.OK = httpOK && env.Code < 400 && env.Error == ""
	return res
}
