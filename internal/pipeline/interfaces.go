// Package pipeline wires the ingestion loop, the work queue and the worker
// pool together.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"calllive-pipeline-go/internal/types"
)

// Source produces transcripts. Stream calls handle once per transcript and
// returns when the stream ends, ctx is cancelled or handle fails.
type Source interface {
	Stream(ctx context.Context, handle func(context.Context, types.Transcript) error) error
}

// Sink receives processed results.
type Sink interface {
	Name() string
	Submit(ctx context.Context, r types.ProcessedResult) error
}

// Storage persists pipeline records. *storage.Gateway implements it.
type Storage interface {
	SaveRaw(ctx context.Context, t types.Transcript) error
	SaveProcessed(ctx context.Context, r types.ProcessedResult) error
	SaveError(ctx context.Context, e types.ErrorRecord) error
}

// Limiter gates submissions. *ratelimit.Limiter implements it.
type Limiter interface {
	Acquire(ctx context.Context) error
}

// FanOut submits to every sink in order and joins their errors.
type FanOut []Sink

func (f FanOut) Name() string {
	names := make([]string, len(f))
	for i, s := range f {
		names[i] = s.Name()
	}
	return strings.Join(names, "+")
}

func (f FanOut) Submit(ctx context.Context, r types.ProcessedResult) error {
	var errs []error
	for _, s := range f {
		if err := s.Submit(ctx, r); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}

type unlimited struct{}

func (unlimited) Acquire(context.Context) error { return nil }
