package lobby

import (
	"sync"
)

// Registry allocates lobby codes and enforces uniqueness across both game
// registries. Public codes are reserved at startup and never released.
type Registry struct {
	mu       sync.Mutex
	gen      *CodeGenerator
	codes    map[string]GameType
	reserved map[string]bool
}

// NewRegistry creates a registry using the provided code generator.
func NewRegistry(gen *CodeGenerator) *Registry {
	return &Registry{
		gen:      gen,
		codes:    make(map[string]GameType),
		reserved: make(map[string]bool),
	}
}

// Allocate returns a fresh unique code registered to the given game.
func (r *Registry) Allocate(gt GameType) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	for {
		code := r.gen.Generate()
		if _, taken := r.codes[code]; !taken {
			r.codes[code] = gt
			return code
		}
	}
}

// Reserve registers a fixed public code. Returns false if already taken.
func (r *Registry) Reserve(code string, gt GameType) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, taken := r.codes[code]; taken {
		return false
	}
	r.codes[code] = gt
	r.reserved[code] = true
	return true
}

// Release frees a private code. Reserved public codes are never released.
func (r *Registry) Release(code string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.reserved[code] {
		return
	}
	delete(r.codes, code)
}

// Lookup returns the game type a code belongs to.
func (r *Registry) Lookup(code string) (GameType, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	gt, ok := r.codes[code]
	return gt, ok
}

// IsReserved reports whether a code is a fixed public code.
func (r *Registry) IsReserved(code string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reserved[code]
}
