// Package snapshotfile replays a frozen market snapshot from a JSON file on
// disk or in object storage. It backs simulation runs and tests.
package snapshotfile

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/sugawarayuuta/sonnet"

	"github.com/alanyoungcy/cyclebot/internal/domain"
	"github.com/alanyoungcy/cyclebot/internal/marketdata"
)

const blobScheme = "s3://"

// File is the on-disk snapshot layout. Tickers are keyed by native symbol.
type File struct {
	Exchange domain.ExchangeID             `json:"exchange"`
	Markets  []domain.Pair                 `json:"markets"`
	Tickers  map[string]domain.TickerQuote `json:"tickers"`
}

// Source is a marketdata.Source backed by a snapshot File. The file is read
// once and served unchanged on every call.
type Source struct {
	name  domain.ExchangeID
	path  string
	blobs domain.BlobReader

	mu   sync.Mutex
	file *File
}

// New creates a Source. Paths starting with "s3://" are read through blobs,
// which may be nil for local files.
func New(name domain.ExchangeID, path string, blobs domain.BlobReader) *Source {
	return &Source{name: name, path: path, blobs: blobs}
}

// NewFromFile wraps an already decoded snapshot.
func NewFromFile(name domain.ExchangeID, f File) *Source {
	return &Source{name: name, file: &f}
}

// Name returns the configured exchange ID.
func (s *Source) Name() domain.ExchangeID { return s.name }

// LoadMarkets returns the snapshot's market list.
func (s *Source) LoadMarkets(ctx context.Context) (domain.MarketSet, error) {
	f, err := s.load(ctx)
	if err != nil {
		return domain.MarketSet{}, err
	}
	return domain.MarketSet{
		Exchange: s.name,
		Pairs:    append([]domain.Pair(nil), f.Markets...),
	}, nil
}

// FetchTickers returns the snapshot quotes for the requested symbols.
func (s *Source) FetchTickers(ctx context.Context, symbols []string) (map[string]domain.TickerQuote, error) {
	f, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]domain.TickerQuote, len(symbols))
	for _, sym := range symbols {
		if q, ok := f.Tickers[sym]; ok {
			q.Symbol = sym
			out[sym] = q
		}
	}
	return out, nil
}

func (s *Source) load(ctx context.Context) (*File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file != nil {
		return s.file, nil
	}

	rc, err := s.open(ctx)
	if err != nil {
		return nil, domain.NewFetchError(s.name, domain.FetchTerminal, fmt.Errorf("snapshotfile: open %s: %w", s.path, err))
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, domain.NewFetchError(s.name, domain.FetchTransient, fmt.Errorf("snapshotfile: read %s: %w", s.path, err))
	}
	var f File
	if err := sonnet.Unmarshal(data, &f); err != nil {
		return nil, domain.NewFetchError(s.name, domain.FetchTerminal, fmt.Errorf("snapshotfile: decode %s: %w", s.path, err))
	}
	s.file = &f
	return s.file, nil
}

func (s *Source) open(ctx context.Context) (io.ReadCloser, error) {
	if key, ok := strings.CutPrefix(s.path, blobScheme); ok {
		if s.blobs == nil {
			return nil, fmt.Errorf("object storage is not configured")
		}
		// s3://bucket/key: the bucket is fixed by the blob client.
		if _, rest, found := strings.Cut(key, "/"); found {
			key = rest
		}
		return s.blobs.Get(ctx, key)
	}
	return os.Open(s.path)
}

// Compile-time interface check.
var _ marketdata.Source = (*Source)(nil)
