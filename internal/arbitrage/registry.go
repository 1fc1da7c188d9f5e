package arbitrage

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/alanyoungcy/cyclebot/internal/domain"
)

// Registry maps configured strategy names to detectors. It is immutable after
// construction and safe to share.
type Registry struct {
	byName map[string]Strategy
}

// NewRegistry indexes strategies by their lower-cased Name. A later strategy
// with the same name replaces an earlier one.
func NewRegistry(strategies ...Strategy) *Registry {
	r := &Registry{byName: make(map[string]Strategy, len(strategies))}
	for _, s := range strategies {
		r.byName[strings.ToLower(s.Name())] = s
	}
	return r
}

// DefaultRegistry holds the built-in detectors: "bf" and "tri".
func DefaultRegistry() *Registry {
	return NewRegistry(NewBellmanFord(), NewTriangular())
}

// Get looks name up case-insensitively. Unknown names wrap
// domain.ErrUnknownStrategy.
func (r *Registry) Get(name string) (Strategy, error) {
	if s, ok := r.byName[strings.ToLower(strings.TrimSpace(name))]; ok {
		return s, nil
	}
	return nil, fmt.Errorf("arbitrage: strategy %q (have %s): %w",
		name, strings.Join(r.List(), ", "), domain.ErrUnknownStrategy)
}

// List returns the registered names in sorted order.
func (r *Registry) List() []string {
	return slices.Sorted(maps.Keys(r.byName))
}
