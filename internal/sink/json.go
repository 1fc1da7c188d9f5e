package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/alanyoungcy/cyclebot/internal/domain"
)

// JSONSink writes each result as one JSON line.
type JSONSink struct {
	mu  sync.Mutex
	enc *json.Encoder
}

var _ domain.IterationSink = (*JSONSink)(nil)

// NewJSONSink creates a JSONSink writing to w.
func NewJSONSink(w io.Writer, indent bool) *JSONSink {
	enc := json.NewEncoder(w)
	if indent {
		enc.SetIndent("", "  ")
	}
	return &JSONSink{enc: enc}
}

func (s *JSONSink) Name() string { return "json" }

func (s *JSONSink) Emit(_ context.Context, res domain.IterationResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enc.Encode(res); err != nil {
		return fmt.Errorf("json sink: encode: %w", err)
	}
	return nil
}
