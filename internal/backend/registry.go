package backend

import (
	"fmt"
	"sort"
	"sync"

	"github.com/richardspicer/questionable-ai/internal/domain"
	"github.com/richardspicer/questionable-ai/internal/pkg/config"
)

// Factory defines how to create a backend for one vendor. Each adapter
// package registers its factories via init(); callers that open
// backends must blank-import the adapter packages so those init()
// functions run.
type Factory struct {
	// Vendor this factory serves.
	Vendor domain.Vendor

	// Description is a human-readable summary shown in diagnostics.
	Description string

	// Create instantiates a backend from configuration.
	Create func(cfg config.BackendConfig) (Backend, error)
}

var (
	factoryMu  sync.RWMutex
	factoryMap = make(map[domain.Vendor]Factory)
)

// RegisterFactory registers a backend factory for a vendor. It is
// called from init() in each adapter package and panics on duplicate or
// incomplete registrations.
func RegisterFactory(f Factory) {
	factoryMu.Lock()
	defer factoryMu.Unlock()

	if f.Vendor == "" {
		panic("backend factory vendor cannot be empty")
	}
	if f.Create == nil {
		panic(fmt.Sprintf("backend factory %q must have a Create function", f.Vendor))
	}
	if _, exists := factoryMap[f.Vendor]; exists {
		panic(fmt.Sprintf("backend factory %q already registered", f.Vendor))
	}

	factoryMap[f.Vendor] = f
}

// GetFactory returns the factory for a vendor, if registered.
func GetFactory(v domain.Vendor) (Factory, bool) {
	factoryMu.RLock()
	defer factoryMu.RUnlock()

	f, ok := factoryMap[v]
	return f, ok
}

// RegisteredVendors returns all vendors with a registered factory,
// sorted for stable diagnostics.
func RegisteredVendors() []domain.Vendor {
	factoryMu.RLock()
	defer factoryMu.RUnlock()

	vendors := make([]domain.Vendor, 0, len(factoryMap))
	for v := range factoryMap {
		vendors = append(vendors, v)
	}
	sort.Slice(vendors, func(i, j int) bool { return vendors[i] < vendors[j] })
	return vendors
}

// IsRegistered returns true if a vendor has a registered factory.
func IsRegistered(v domain.Vendor) bool {
	_, ok := GetFactory(v)
	return ok
}

// Open creates a backend for a vendor using its registered factory.
func Open(v domain.Vendor, cfg config.BackendConfig) (Backend, error) {
	f, ok := GetFactory(v)
	if !ok {
		return nil, fmt.Errorf("no backend registered for vendor %q (registered: %v)", v, RegisteredVendors())
	}
	return f.Create(cfg)
}

// ClearFactories removes all registered factories (for testing only).
func ClearFactories() {
	factoryMu.Lock()
	defer factoryMu.Unlock()

	factoryMap = make(map[domain.Vendor]Factory)
}
