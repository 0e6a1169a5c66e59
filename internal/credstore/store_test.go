package credstore

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func newMemStore() (*Store, *MemPort) {
	port := NewMemPort()
	return New(port), port
}

func rawRecord(t *testing.T, port *MemPort) map[string]any {
	t.Helper()
	b, err := port.Read(recordKey)
	if err != nil {
		t.Fatalf("record not persisted: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("persisted record is not JSON: %v", err)
	}
	return m
}

func TestStore_SetIdentity_FirstLogin(t *testing.T) {
	s, port := newMemStore()

	s.SetIdentity("acc-1", "tok-1", true)

	act := s.ActiveIdentity()
	if act == nil || act.ID != "acc-1" || act.Token != "tok-1" {
		t.Fatalf("expected active acc-1/tok-1, got %+v", act)
	}

	// la primera escritura ya sale en forma multi
	m := rawRecord(t, port)
	if m["activeIdentityId"] != "acc-1" {
		t.Fatalf("expected multi shape with activeIdentityId, got %v", m)
	}
	if _, ok := m["identityId"]; ok {
		t.Fatalf("fresh record must not use legacy shape: %v", m)
	}
}

func TestStore_LegacyMigration(t *testing.T) {
	s, port := newMemStore()

	// registro legacy pre-existente
	if err := port.Write(recordKey, []byte(`{"identityId":"old-1","token":"old-tok"}`)); err != nil {
		t.Fatal(err)
	}

	// actualizar la MISMA identidad no migra: conserva la forma legacy
	s.SetIdentity("old-1", "new-tok", true)
	m := rawRecord(t, port)
	if m["identityId"] != "old-1" || m["token"] != "new-tok" {
		t.Fatalf("same-id update must stay legacy, got %v", m)
	}

	// una SEGUNDA identidad distinta es el único trigger de migración
	s.SetIdentity("acc-2", "tok-2", true)
	m = rawRecord(t, port)
	if m["activeIdentityId"] != "acc-2" {
		t.Fatalf("expected migrated record with active acc-2, got %v", m)
	}
	ids, ok := m["identities"].(map[string]any)
	if !ok || len(ids) != 2 {
		t.Fatalf("expected both identities after migration, got %v", m)
	}
	if ids["old-1"] != "new-tok" || ids["acc-2"] != "tok-2" {
		t.Fatalf("migration must preserve the legacy token, got %v", ids)
	}

	t.Logf("✅ legacy migration preserved both identities")
}

func TestStore_SetIdentity_NoActiveSteal(t *testing.T) {
	s, _ := newMemStore()

	s.SetIdentity("acc-1", "tok-1", true)
	s.SetIdentity("acc-2", "tok-2", false)

	if act := s.ActiveIdentity(); act == nil || act.ID != "acc-1" {
		t.Fatalf("makeActive=false must not steal the active id, got %+v", act)
	}
	if len(s.Identities()) != 2 {
		t.Fatalf("expected 2 identities, got %d", len(s.Identities()))
	}
}

func TestStore_GetIdentity_NoFallback(t *testing.T) {
	s, _ := newMemStore()
	s.SetIdentity("acc-1", "tok-1", true)

	// pedir un id que no está es un miss, nunca cae al active
	if got := s.GetIdentity("acc-9"); got != nil {
		t.Fatalf("expected nil for unknown id, got %+v", got)
	}
	if got := s.GetIdentity("acc-1"); got == nil || got.Token != "tok-1" {
		t.Fatalf("expected exact match for acc-1, got %+v", got)
	}
}

func TestStore_RemoveIdentity(t *testing.T) {
	s, port := newMemStore()
	s.SetIdentity("acc-b", "tok-b", true)
	s.SetIdentity("acc-a", "tok-a", false)
	s.SetIdentity("acc-c", "tok-c", false)

	// borrar la activa re-deriva el active de forma determinística (primera por orden)
	s.RemoveIdentity("acc-b")
	if act := s.ActiveIdentity(); act == nil || act.ID != "acc-a" {
		t.Fatalf("expected re-derived active acc-a, got %+v", act)
	}

	// borrar una no-activa no toca el active
	s.RemoveIdentity("acc-c")
	if act := s.ActiveIdentity(); act == nil || act.ID != "acc-a" {
		t.Fatalf("active must survive removal of another id, got %+v", act)
	}

	// la última identidad borra el registro entero
	s.RemoveIdentity("acc-a")
	if _, err := port.Read(recordKey); err != ErrNotFound {
		t.Fatalf("empty record must be deleted, got err=%v", err)
	}
	if s.Read() != nil {
		t.Fatal("expected nil record after last removal")
	}
}

func TestStore_RemoveIdentity_Legacy(t *testing.T) {
	s, port := newMemStore()
	if err := port.Write(recordKey, []byte(`{"identityId":"old-1","token":"old-tok"}`)); err != nil {
		t.Fatal(err)
	}

	// remove de un id que no matchea es no-op
	s.RemoveIdentity("other")
	if s.ActiveIdentity() == nil {
		t.Fatal("mismatched removal must not drop the legacy record")
	}

	// remove del id legacy borra el registro entero
	s.RemoveIdentity("old-1")
	if _, err := port.Read(recordKey); err != ErrNotFound {
		t.Fatalf("legacy record must be deleted whole, got err=%v", err)
	}
}

func TestStore_SetActive(t *testing.T) {
	s, _ := newMemStore()
	s.SetIdentity("acc-1", "tok-1", true)
	s.SetIdentity("acc-2", "tok-2", false)

	s.SetActive("acc-2")
	if act := s.ActiveIdentity(); act == nil || act.ID != "acc-2" {
		t.Fatalf("expected active acc-2, got %+v", act)
	}

	// id inexistente: no-op
	s.SetActive("acc-9")
	if act := s.ActiveIdentity(); act == nil || act.ID != "acc-2" {
		t.Fatalf("unknown id must not change the active, got %+v", act)
	}
}

func TestStore_StampBumpsOnEveryWrite(t *testing.T) {
	s, _ := newMemStore()

	s.SetIdentity("acc-1", "tok-1", true)
	first := s.Stamp()
	if first == 0 {
		t.Fatal("expected a stamp after the first write")
	}

	// escritura byte-idéntica: el registro no cambia pero la stamp sí
	s.SetIdentity("acc-1", "tok-1", true)
	second := s.Stamp()
	if second <= first {
		t.Fatalf("stamp must be strictly increasing: %d then %d", first, second)
	}

	// SetActive al id ya activo también bumpea (es el canal de notificación)
	s.SetIdentity("acc-2", "tok-2", false)
	third := s.Stamp()
	s.SetActive("acc-1")
	if s.Stamp() <= third {
		t.Fatal("SetActive on the current active must still bump the stamp")
	}

	t.Logf("✅ stamp strictly increasing across identical writes")
}

func TestStore_CorruptRecord(t *testing.T) {
	s, port := newMemStore()

	for _, raw := range []string{`{not json`, `{"identities":{}}`, `[]`, `{}`} {
		if err := port.Write(recordKey, []byte(raw)); err != nil {
			t.Fatal(err)
		}
		if rec := s.Read(); rec != nil {
			t.Fatalf("corrupt payload %q must read as empty, got %+v", raw, rec)
		}
	}
}

func TestStore_DanglingActiveSelfHeals(t *testing.T) {
	s, _ := newMemStore()
	port := s.port.(*MemPort)

	raw := `{"activeIdentityId":"gone","identities":{"acc-b":"tok-b","acc-a":"tok-a"}}`
	if err := port.Write(recordKey, []byte(raw)); err != nil {
		t.Fatal(err)
	}

	// active colgante → primera identidad en orden lexicográfico
	act := s.ActiveIdentity()
	if act == nil || act.ID != "acc-a" {
		t.Fatalf("expected self-healed active acc-a, got %+v", act)
	}
}

// failingPort simula cuota/permisos rotos: toda escritura falla.
type failingPort struct{ inner *MemPort }

func (p *failingPort) Read(key string) ([]byte, error)  { return p.inner.Read(key) }
func (p *failingPort) Write(string, []byte) error       { return errors.New("disk full") }
func (p *failingPort) Remove(key string) error          { return p.inner.Remove(key) }

func TestStore_PortFailureDegrades(t *testing.T) {
	inner := NewMemPort()
	s := New(&failingPort{inner: inner})

	// no panic, no error: degrada a "sin sesión"
	s.SetIdentity("acc-1", "tok-1", true)
	if s.ActiveIdentity() != nil {
		t.Fatal("failed write must leave the store empty")
	}
}

func TestFSPort_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := New(NewFSPort(dir))

	s.SetIdentity("acc-1", "tok-1", true)

	// el registro se persiste con permisos restrictivos
	fi, err := os.Stat(filepath.Join(dir, recordKey))
	if err != nil {
		t.Fatalf("record file missing: %v", err)
	}
	if fi.Mode().Perm() != 0o600 {
		t.Fatalf("expected 0600 perms, got %v", fi.Mode().Perm())
	}

	// otro proceso (otro Store sobre el mismo dir) ve la identidad y la stamp
	other := New(NewFSPort(dir))
	if act := other.ActiveIdentity(); act == nil || act.ID != "acc-1" {
		t.Fatalf("second store must see the identity, got %+v", act)
	}
	if other.Stamp() == 0 {
		t.Fatal("second store must see the stamp")
	}

	t.Logf("✅ FS round trip with shared stamp works")
}
