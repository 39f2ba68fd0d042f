package game

import (
	"fmt"
	"sort"
	"sync"
)

// Constructor builds an initialised engine for the given players.
type Constructor func(players []string, cfg Config) (Engine, error)

// Registry maps game-type keys to engine constructors
type Registry struct {
	mu           sync.RWMutex
	constructors map[string]Constructor
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		constructors: make(map[string]Constructor),
	}
}

// DefaultRegistry returns a registry with the built-in games registered
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(GameTypeRPS, NewRPS)
	r.Register(GameTypeRockPaperScissors, NewRPS)
	return r
}

// Register adds or replaces the constructor for a game type
func (r *Registry) Register(gameType string, ctor Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.constructors[gameType] = ctor
}

// Has reports whether the game type is known
func (r *Registry) Has(gameType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.constructors[gameType]
	return ok
}

// New builds an engine for the game type
func (r *Registry) New(gameType string, players []string, cfg Config) (Engine, error) {
	r.mu.RLock()
	ctor, ok := r.constructors[gameType]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown game type: %s", gameType)
	}
	return ctor(players, cfg)
}

// Types returns the registered game types in sorted order
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.constructors))
	for t := range r.constructors {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
