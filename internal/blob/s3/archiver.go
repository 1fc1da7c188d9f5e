package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"

	"github.com/alanyoungcy/cyclebot/internal/domain"
)

// Archiver is an iteration sink that uploads every iteration as a JSON
// document and its ranked opportunities as JSONL, partitioned by day:
//
//	{prefix}/iterations/2025/01/31/000042-<id>.json
//	{prefix}/opportunities/2025/01/31/000042-<id>.jsonl
type Archiver struct {
	writer domain.BlobWriter
	prefix string
}

var _ domain.IterationSink = (*Archiver)(nil)

// NewArchiver creates an Archiver writing under prefix.
func NewArchiver(writer domain.BlobWriter, prefix string) *Archiver {
	return &Archiver{writer: writer, prefix: prefix}
}

func (a *Archiver) Name() string { return "s3" }

// Emit uploads res. Iterations with no ranked opportunities only produce the
// iteration document.
func (a *Archiver) Emit(ctx context.Context, res domain.IterationResult) error {
	doc, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("s3blob: archive iteration marshal: %w", err)
	}
	if err := a.put(ctx, a.archivePath("iterations", res, ".json"), doc, "application/json"); err != nil {
		return fmt.Errorf("s3blob: archive iteration upload: %w", err)
	}

	if len(res.Ranked) == 0 {
		return nil
	}
	lines, err := marshalJSONL(res.Ranked)
	if err != nil {
		return fmt.Errorf("s3blob: archive opportunities marshal: %w", err)
	}
	if err := a.put(ctx, a.archivePath("opportunities", res, ".jsonl"), lines, "application/x-ndjson"); err != nil {
		return fmt.Errorf("s3blob: archive opportunities upload: %w", err)
	}
	return nil
}

func (a *Archiver) put(ctx context.Context, key string, data []byte, contentType string) error {
	return a.writer.Put(ctx, key, bytes.NewReader(data), contentType)
}

// archivePath builds the object key for kind, partitioned by the day the
// iteration finished.
func (a *Archiver) archivePath(kind string, res domain.IterationResult, ext string) string {
	name := fmt.Sprintf("%06d-%s%s", res.Seq, res.ID, ext)
	return path.Join(a.prefix, kind, res.FinishedAt.UTC().Format("2006/01/02"), name)
}

// marshalJSONL serialises records as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
