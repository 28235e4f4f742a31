package portfolio

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// ErrDuplicateAdapter is returned when an adapter id is registered twice.
var ErrDuplicateAdapter = errors.New("duplicate adapter")

// Registry keeps adapters per chain in registration order
type Registry struct {
	mu      sync.RWMutex
	ids     map[string]struct{}
	byChain map[uint64][]Adapter
	logger  *zap.SugaredLogger
}

// NewRegistry creates an empty registry
func NewRegistry(logger *zap.SugaredLogger) *Registry {
	return &Registry{
		ids:     make(map[string]struct{}),
		byChain: make(map[uint64][]Adapter),
		logger:  logger.Named("registry"),
	}
}

// Register adds an adapter. Ids are unique across chains.
func (r *Registry) Register(a Adapter) error {
	d := a.Descriptor()
	if d.ID == "" {
		return fmt.Errorf("adapter for chain %d has no id", d.ChainID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.ids[d.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateAdapter, d.ID)
	}
	r.ids[d.ID] = struct{}{}
	r.byChain[d.ChainID] = append(r.byChain[d.ChainID], a)

	r.logger.Infow("Registered adapter", "id", d.ID, "name", d.Name, "chainId", d.ChainID, "type", d.Type)
	return nil
}

// Adapters returns a copy of the adapters registered for chainID
func (r *Registry) Adapters(chainID uint64) []Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := r.byChain[chainID]
	out := make([]Adapter, len(list))
	copy(out, list)
	return out
}

// Chains returns the chain ids that have at least one adapter, ascending
func (r *Registry) Chains() []uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]uint64, 0, len(r.byChain))
	for id := range r.byChain {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
