package snapshot

import (
	"fmt"
	"sort"
	"sync"
)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Type)
)

// Register adds a source type to the registry.
// This is typically called from init() functions in source packages.
func Register(t Type) {
	registryMu.Lock()
	defer registryMu.Unlock()

	name := t.Name()
	if _, exists := registry[name]; exists {
		panic(fmt.Sprintf("snapshot source type %q already registered", name))
	}

	registry[name] = t
}

// Get returns a registered source type by name
func Get(name string) (Type, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	t, ok := registry[name]
	return t, ok
}

// List returns all registered source type names, sorted
func List() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Create builds a source of the registered type typeName.
func Create(typeName string, options map[string]string) (Source, error) {
	t, ok := Get(typeName)
	if !ok {
		return nil, fmt.Errorf("unknown snapshot source type %q (available: %v)", typeName, List())
	}

	src, err := t.Create(options)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s source: %w", typeName, err)
	}
	return src, nil
}
