package apiclient

import (
	"encoding/json"
	"fmt"
	"strings"
)

// tokenExpiredNeedle: match por substring case-insensitive sobre el message del
// servidor. Frágil a propósito (depende del wording); el contrato del server no
// expone todavía un código estructurado para expiración.
const tokenExpiredNeedle = "invalid or expired token"

// Result es la forma uniforme de todo resultado del Admin API. Las operaciones
// nunca retornan error: transporte, protocolo y precondiciones locales terminan
// todas acá.
//
//   - Status 0  → fallo local (sin token) o de transporte, no hubo respuesta HTTP
//   - Body nil  → el body no parseó como JSON; Text conserva el crudo
//   - Code/Message vienen del envelope {code, message, data} cuando lo hay
type Result struct {
	OK      bool
	Status  int
	Code    int
	Message string
	Body    json.RawMessage // campo data del envelope (o el JSON entero sin envelope)
	Text    string
}

// envelope es la respuesta JSON estándar del Admin API.
// code >= 400 o un campo error top-level es fallo, sin importar el status HTTP.
type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
	Data    json.RawMessage `json:"data"`
}

// TokenExpired detecta la firma de token vencido en el message del servidor.
// Solo detección: la remediación (re-login forzado, UI, etc.) es del caller.
func (r Result) TokenExpired() bool {
	return strings.Contains(strings.ToLower(r.Message), tokenExpiredNeedle)
}

// ErrorMessage arma el mensaje visible para el usuario: el del servidor cuando
// existe, sino uno genérico según la capa que falló.
func (r Result) ErrorMessage() string {
	if r.OK {
		return ""
	}
	if r.Message != "" {
		return r.Message
	}
	if r.Status == 0 {
		if r.Text != "" {
			return r.Text
		}
		return "not authenticated"
	}
	return fmt.Sprintf("HTTP %d", r.Status)
}

// DecodeData deserializa el campo data del envelope en v.
func (r Result) DecodeData(v any) error {
	if len(r.Body) == 0 {
		return fmt.Errorf("apiclient: empty data")
	}
	return json.Unmarshal(r.Body, v)
}

// notAuthenticated: precondición local fallida, el request nunca sale a la red.
func notAuthenticated() Result {
	return Result{OK: false, Status: 0, Message: "not authenticated"}
}

// transportFailure: red inalcanzable, request cancelado, etc.
func transportFailure(err error) Result {
	return Result{OK: false, Status: 0, Text: err.Error()}
}
