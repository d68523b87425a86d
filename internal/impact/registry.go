package impact

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/sprite-ai/impactgate/internal/model"
)

// ErrNotFound reports an unknown analysis id.
var ErrNotFound = errors.New("impact: analysis not found")

type entry struct {
	mu       sync.Mutex
	analysis model.ImpactAnalysis
}

// Registry keeps analyses in memory by id. Each analysis is updated under
// its own lock so gate transitions are computed from consistent snapshots.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// Put stores a, replacing any analysis with the same id.
func (r *Registry) Put(a *model.ImpactAnalysis) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[a.ID] = &entry{analysis: *a}
}

// Get returns a copy of the analysis with id.
func (r *Registry) Get(id string) (*model.ImpactAnalysis, error) {
	e, err := r.entry(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	cp := e.analysis
	return &cp, nil
}

// List returns copies of every analysis, newest first.
func (r *Registry) List() []model.ImpactAnalysis {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	out := make([]model.ImpactAnalysis, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, e.analysis)
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// Update runs fn on the stored analysis under its lock. fn must replace
// slices rather than mutate them in place, since earlier copies share them.
// The stored analysis is only changed when fn succeeds.
func (r *Registry) Update(id string, fn func(*model.ImpactAnalysis) error) (*model.ImpactAnalysis, error) {
	e, err := r.entry(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	next := e.analysis
	if err := fn(&next); err != nil {
		return nil, err
	}
	e.analysis = next
	cp := next
	return &cp, nil
}

func (r *Registry) entry(id string) (*entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return e, nil
}
