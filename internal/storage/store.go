// Package storage persists raw transcripts, processed results and error
// records to MongoDB, falling back to append-only NDJSON files.
package storage

import (
	"context"
	"time"

	"calllive-pipeline-go/internal/types"
)

// Record kinds, used for file names, collection names and metric labels.
const (
	KindRaw       = "raw_transcripts"
	KindProcessed = "processed_results"
	KindErrors    = "errors"
)

// Store is one storage backend. Every insert appends a new record; nothing
// is ever updated in place.
type Store interface {
	Name() string
	InsertRaw(ctx context.Context, t types.Transcript) error
	InsertProcessed(ctx context.Context, r types.ProcessedResult) error
	InsertError(ctx context.Context, e types.ErrorRecord) error
	Counts(ctx context.Context) (Counts, error)
	Close(ctx context.Context) error
}

// Counts is the number of records held per kind.
type Counts struct {
	Raw       int64 `json:"raw_count"`
	Processed int64 `json:"processed_count"`
	Errors    int64 `json:"error_count"`
}

// Pending approximates transcripts saved raw but not yet processed.
func (c Counts) Pending() int64 {
	if p := c.Raw - c.Processed; p > 0 {
		return p
	}
	return 0
}

// rawDocument is the persisted shape of a raw transcript: the document as
// received plus saved_timestamp.
func rawDocument(t types.Transcript, savedAt time.Time) (map[string]any, error) {
	doc, err := t.Document()
	if err != nil {
		return nil, err
	}
	doc["saved_timestamp"] = savedAt.UTC().Format(time.RFC3339Nano)
	return doc, nil
}
