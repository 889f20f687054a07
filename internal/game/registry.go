package game

import (
	"fmt"
	"sync"

	"telegram-wager-bot/internal/model"
)

// Info describes one playable game type for listing and validation at the
// transport layer. Rules live in the engine packages; this is metadata.
type Info struct {
	Type        model.GameType
	Name        string
	Description string
	MinPlayers  int
	MaxPlayers  int
}

// Registry is a thread-safe lookup of registered game types.
type Registry struct {
	games map[model.GameType]Info
	order []model.GameType
	mu    sync.RWMutex
}

// NewRegistry creates a new game registry.
func NewRegistry() *Registry {
	return &Registry{
		games: make(map[model.GameType]Info),
	}
}

// Register adds a game type to the registry.
func (r *Registry) Register(info Info) error {
	if !info.Type.Valid() {
		return fmt.Errorf("cannot register unknown game type %q", info.Type)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.games[info.Type]; !exists {
		r.order = append(r.order, info.Type)
	}
	r.games[info.Type] = info
	return nil
}

// Get retrieves a game type's metadata.
func (r *Registry) Get(gt model.GameType) (Info, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.games[gt]
	return info, ok
}

// List returns all registered game types in registration order.
func (r *Registry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]Info, 0, len(r.order))
	for _, gt := range r.order {
		infos = append(infos, r.games[gt])
	}
	return infos
}
