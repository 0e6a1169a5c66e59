// Package credstore administra el registro persistido de credenciales: qué
// identidades hay, cuál está activa, y la notificación de cambios entre procesos.
//
// Invariantes:
//   - El registro nunca se escribe con un activeIdentityId que no exista en el mapa.
//   - Un registro sin identidades se borra entero (no hay forma "vacía").
//   - Toda escritura (aun byte-idéntica) incrementa la stamp key paralela, que es
//     el canal de notificación observado por otros procesos.
//
// Fallos del puerto de persistencia (cuota, disco, permisos) se tragan y el store
// degrada a "sin sesión": la capa de arriba no tiene camino de recuperación para
// una excepción acá.
package credstore

import (
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wadesk/wactl/internal/observability/logger"
)

const (
	recordKey = "session.json"
	stampKey  = "session.stamp"
)

// Store es el único escritor del registro de credenciales.
type Store struct {
	port Port
	log  *zap.Logger

	mu        sync.Mutex
	lastStamp int64
}

func New(port Port) *Store {
	return &Store{port: port, log: logger.Named("credstore")}
}

// Read parsea el registro persistido. Retorna nil ante ausencia o parse failure;
// nunca propaga errores del puerto.
func (s *Store) Read() *Record {
	b, err := s.port.Read(recordKey)
	if err != nil {
		if err != ErrNotFound {
			s.log.Warn("read failed, degrading to empty store", zap.Error(err))
		}
		return nil
	}
	rec := decodeRecord(b)
	if rec == nil && len(b) > 0 {
		s.log.Warn("stored record is not parseable, treating as empty")
	}
	return rec
}

// Write serializa y persiste el registro, y bumpea la stamp key.
// rec == nil borra el registro (logout total).
func (s *Store) Write(rec *Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeLocked(rec)
}

func (s *Store) writeLocked(rec *Record) {
	if rec == nil || len(rec.Tokens) == 0 {
		if err := s.port.Remove(recordKey); err != nil {
			s.log.Warn("remove record failed", zap.Error(err))
		}
		s.bumpStampLocked()
		return
	}

	// nunca dejar un active colgante escrito
	if _, ok := rec.Tokens[rec.Active]; !ok {
		rec.Active = firstKey(rec.Tokens)
	}

	if err := s.port.Write(recordKey, rec.encode()); err != nil {
		s.log.Warn("write record failed", zap.Error(err))
		return
	}
	s.bumpStampLocked()
}

// bumpStampLocked escribe un timestamp estrictamente creciente en la key paralela.
// Existe para forzar una notificación de cambio aun cuando el registro serializado
// es byte-idéntico al anterior.
func (s *Store) bumpStampLocked() {
	now := time.Now().UnixNano()
	if prev := s.readStamp(); prev >= now {
		now = prev + 1
	}
	if now <= s.lastStamp {
		now = s.lastStamp + 1
	}
	s.lastStamp = now
	if err := s.port.Write(stampKey, []byte(strconv.FormatInt(now, 10))); err != nil {
		s.log.Warn("write stamp failed", zap.Error(err))
	}
}

func (s *Store) readStamp() int64 {
	b, err := s.port.Read(stampKey)
	if err != nil {
		return 0
	}
	n, _ := strconv.ParseInt(string(b), 10, 64)
	return n
}

// Stamp retorna el valor actual de la stamp key (0 si no hay).
// Los watchers lo pollean y disparan un refresh cuando cambia.
func (s *Store) Stamp() int64 { return s.readStamp() }

// GetIdentity retorna la identidad con ese id exacto, o nil.
// Intencionalmente no cae al active cuando el id pedido no está: eso aislaría
// mal una identidad de otra.
func (s *Store) GetIdentity(id string) *Identity {
	return s.Read().Identity(id)
}

// ActiveIdentity retorna la identidad activa, o nil si no hay sesión.
func (s *Store) ActiveIdentity() *Identity {
	return s.Read().ActiveIdentity()
}

// Identities lista todas las identidades persistidas, ordenadas por id.
func (s *Store) Identities() []Identity {
	return s.Read().Identities()
}

// SetIdentity es un upsert idempotente.
//
// Casos:
//   - sin registro → crea la forma multi con una sola entrada
//   - registro legacy con el mismo id → actualiza el token in place (sigue legacy)
//   - registro legacy con id distinto → migra a multi con ambas identidades
//     (este es el único trigger de migración)
//   - registro multi → merge en el mapa; active solo cambia si makeActive
func (s *Store) SetIdentity(id, token string, makeActive bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.Read()
	switch {
	case rec == nil:
		rec = &Record{Active: id, Tokens: map[string]string{id: token}}

	case rec.Legacy:
		if rec.Active == id {
			rec.Tokens[id] = token
			break
		}
		// migración lazy legacy → multi
		rec.Legacy = false
		rec.Tokens[id] = token
		if makeActive {
			rec.Active = id
		}

	default:
		rec.Tokens[id] = token
		if makeActive {
			rec.Active = id
		}
	}
	s.writeLocked(rec)
}

// RemoveIdentity elimina una identidad.
// Legacy: si el id coincide, borra el registro entero. Multi: borra la entrada;
// si era la activa, re-deriva el active; si el mapa queda vacío, borra el registro.
func (s *Store) RemoveIdentity(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.Read()
	if rec == nil {
		return
	}
	if _, ok := rec.Tokens[id]; !ok {
		return
	}
	if rec.Legacy {
		s.writeLocked(nil)
		return
	}
	delete(rec.Tokens, id)
	if rec.Active == id {
		rec.Active = firstKey(rec.Tokens)
	}
	s.writeLocked(rec) // writeLocked borra el registro si quedó vacío
}

// SetActive cambia la identidad activa. No-op si no hay registro, si el id no
// está presente, o si el registro es legacy (una sola identidad, nada que cambiar).
// Nota: aun cuando el id ya es el activo se reescribe, para que la stamp bumpee
// y los demás procesos refresquen.
func (s *Store) SetActive(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.Read()
	if rec == nil || rec.Legacy {
		return
	}
	if _, ok := rec.Tokens[id]; !ok {
		return
	}
	rec.Active = id
	s.writeLocked(rec)
}
