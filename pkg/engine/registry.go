package engine

import (
	"fmt"
	"sort"
	"sync"
)

// Factory builds an Engine from a validated manifest.
type Factory func(m Manifest) (Engine, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register makes a backend available to Load. It panics on duplicate names,
// matching database/sql driver registration.
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[name]; dup {
		panic("engine: Register called twice for backend " + name)
	}
	registry[name] = f
}

// Backends lists registered backend names.
func Backends() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Load reads the manifest at path and builds its engine.
func Load(path string) (Engine, error) {
	m, err := ReadManifest(path)
	if err != nil {
		return nil, fmt.Errorf("load engine: %w", err)
	}
	return New(m)
}

// New builds an engine from an in-memory manifest.
func New(m Manifest) (Engine, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	registryMu.RLock()
	f, ok := registry[m.Backend]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (have %v)", ErrUnknownBackend, m.Backend, Backends())
	}
	e, err := f(m)
	if err != nil {
		return nil, fmt.Errorf("backend %s: %w", m.Backend, err)
	}
	return e, nil
}
