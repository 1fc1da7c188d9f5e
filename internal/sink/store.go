package sink

import (
	"context"

	"github.com/alanyoungcy/cyclebot/internal/domain"
)

// StoreSink persists each result through a domain.IterationStore.
type StoreSink struct {
	name  string
	store domain.IterationStore
}

var _ domain.IterationSink = (*StoreSink)(nil)

// NewStoreSink wraps store; name identifies the backend in logs.
func NewStoreSink(name string, store domain.IterationStore) *StoreSink {
	return &StoreSink{name: name, store: store}
}

func (s *StoreSink) Name() string { return s.name }

func (s *StoreSink) Emit(ctx context.Context, res domain.IterationResult) error {
	return s.store.SaveIteration(ctx, res)
}
