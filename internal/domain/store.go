package domain

import (
	"context"
	"io"
)

// IterationStore persists iteration summaries and their ranked opportunities.
type IterationStore interface {
	SaveIteration(ctx context.Context, result IterationResult) error
	LatestIteration(ctx context.Context) (IterationResult, error)
	ListRecentOpportunities(ctx context.Context, limit int) ([]Opportunity, error)
}

// BlobWriter uploads archive objects.
type BlobWriter interface {
	Put(ctx context.Context, key string, data io.Reader, contentType string) error
}

// BlobReader opens stored objects such as replay snapshots. A missing object
// wraps ErrNotFound.
type BlobReader interface {
	Get(ctx context.Context, key string) (io.ReadCloser, error)
}
