package credstore

import (
	"errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/wadesk/wactl/internal/util/atomicwrite"
)

// ErrNotFound indica que la key no existe en el puerto de persistencia.
var ErrNotFound = errors.New("credstore: key not found")

// Port es el puerto de persistencia del store. La implementación de producción
// escribe archivos en disco; los tests usan un puerto en memoria.
type Port interface {
	Read(key string) ([]byte, error)
	Write(key string, data []byte) error
	Remove(key string) error
}

// ===== FS port =====

// FSPort persiste keys como archivos dentro de un directorio (ej. ~/.wactl).
// Las escrituras son atómicas para que otro proceso nunca lea un registro a medias.
type FSPort struct{ dir string }

func NewFSPort(dir string) *FSPort { return &FSPort{dir: filepath.Clean(dir)} }

func (p *FSPort) path(key string) string { return filepath.Join(p.dir, key) }

func (p *FSPort) Read(key string) ([]byte, error) {
	b, err := os.ReadFile(p.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return b, nil
}

func (p *FSPort) Write(key string, data []byte) error {
	return atomicwrite.WriteFile(p.path(key), data, 0o600)
}

func (p *FSPort) Remove(key string) error {
	if err := os.Remove(p.path(key)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// ===== Memory port =====

// MemPort es un puerto en memoria, útil para tests y modos efímeros.
type MemPort struct {
	mu sync.Mutex
	m  map[string][]byte
}

func NewMemPort() *MemPort { return &MemPort{m: make(map[string][]byte)} }

func (p *MemPort) Read(key string) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	b, ok := p.m[key]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

func (p *MemPort) Write(key string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	b := make([]byte, len(data))
	copy(b, data)
	p.m[key] = b
	return nil
}

func (p *MemPort) Remove(key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.m, key)
	return nil
}
