package credstore

import (
	"encoding/json"
	"sort"
)

// Identity es una cuenta autenticada: id opaco + bearer token.
type Identity struct {
	ID    string
	Token string
}

// Record es el registro de credenciales en memoria. Conoce las dos formas
// persistidas (legacy de una sola cuenta, y multi-cuenta) y conserva la forma
// hasta que una escritura de una segunda identidad dispare la migración.
type Record struct {
	// Legacy indica que el registro se leyó (y se reescribe) en la forma vieja
	// {identityId, token}. La migración a multi es lazy, nunca eager.
	Legacy bool

	// Active es el id activo. En legacy siempre coincide con la única identidad.
	Active string

	// Tokens mapea id → token.
	Tokens map[string]string
}

// wireRecord cubre ambas formas on-disk en un solo struct de decode.
type wireRecord struct {
	// Forma legacy: exactamente una identidad, implícitamente activa.
	IdentityID string `json:"identityId,omitempty"`
	Token      string `json:"token,omitempty"`

	// Forma multi.
	ActiveIdentityID string            `json:"activeIdentityId,omitempty"`
	Identities       map[string]string `json:"identities,omitempty"`
}

// decodeRecord parsea el JSON persistido. Retorna nil si el contenido no
// representa ninguna de las dos formas (o quedó sin identidades).
func decodeRecord(b []byte) *Record {
	var w wireRecord
	if err := json.Unmarshal(b, &w); err != nil {
		return nil
	}

	// multi tiene prioridad: la presencia del mapa define la forma
	if w.Identities != nil {
		if len(w.Identities) == 0 {
			return nil
		}
		rec := &Record{Active: w.ActiveIdentityID, Tokens: make(map[string]string, len(w.Identities))}
		for id, tok := range w.Identities {
			rec.Tokens[id] = tok
		}
		// self-healing: un active colgante se re-deriva de forma determinística
		if _, ok := rec.Tokens[rec.Active]; !ok {
			rec.Active = firstKey(rec.Tokens)
		}
		return rec
	}

	if w.IdentityID != "" {
		return &Record{
			Legacy: true,
			Active: w.IdentityID,
			Tokens: map[string]string{w.IdentityID: w.Token},
		}
	}

	return nil
}

// encode serializa el registro en su forma correspondiente.
func (r *Record) encode() []byte {
	var w wireRecord
	if r.Legacy {
		w.IdentityID = r.Active
		w.Token = r.Tokens[r.Active]
	} else {
		w.ActiveIdentityID = r.Active
		w.Identities = r.Tokens
	}
	b, _ := json.Marshal(w)
	return b
}

// Identity retorna la identidad con ese id, o nil si no existe.
// No hay fallback al active: pedir un id explícito que no está es un miss.
func (r *Record) Identity(id string) *Identity {
	if r == nil {
		return nil
	}
	tok, ok := r.Tokens[id]
	if !ok {
		return nil
	}
	return &Identity{ID: id, Token: tok}
}

// ActiveIdentity retorna la identidad activa, o nil si no hay.
func (r *Record) ActiveIdentity() *Identity {
	if r == nil {
		return nil
	}
	return r.Identity(r.Active)
}

// Identities retorna todas las identidades ordenadas por id.
func (r *Record) Identities() []Identity {
	if r == nil {
		return nil
	}
	out := make([]Identity, 0, len(r.Tokens))
	for _, id := range sortedKeys(r.Tokens) {
		out = append(out, Identity{ID: id, Token: r.Tokens[id]})
	}
	return out
}

// firstKey: primera key en orden lexicográfico. Elección arbitraria pero
// determinística para re-derivar el active tras un remove.
func firstKey(m map[string]string) string {
	keys := sortedKeys(m)
	if len(keys) == 0 {
		return ""
	}
	return keys[0]
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
