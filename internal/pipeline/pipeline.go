package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"calllive-pipeline-go/internal/enrich"
	"calllive-pipeline-go/internal/metrics"
	"calllive-pipeline-go/internal/queue"
	"calllive-pipeline-go/internal/types"
)

// Options configures a Pipeline. Stages, Storage and Sink are required.
type Options struct {
	Workers     int
	QueueSize   int
	QueuePolicy queue.Policy
	TurnFormat  types.TurnFormat

	Stages  enrich.Stages
	Storage Storage
	Sink    Sink
	Limiter Limiter // nil means no rate limit

	Metrics *metrics.Metrics // nil records into a private registry
	Log     *logrus.Entry
	Now     func() time.Time
}

// Pipeline owns the queue, the ingester and the worker pool for one run.
type Pipeline struct {
	queue    *queue.Queue[types.Transcript]
	pool     *Pool
	ingester *Ingester
	rec      recorder
	log      *logrus.Entry
}

// Result summarises a finished run.
type Result struct {
	Enqueued int
	Drained  int
}

// QueueStats is a point-in-time view of the work queue.
type QueueStats struct {
	Depth      int `json:"depth"`
	Unfinished int `json:"unfinished"`
	Capacity   int `json:"capacity"`
	Workers    int `json:"workers"`
}

func New(opts Options) (*Pipeline, error) {
	if opts.Workers <= 0 {
		return nil, fmt.Errorf("worker count must be positive, got %d", opts.Workers)
	}
	if opts.Stages.Summarizer == nil || opts.Stages.Extractor == nil || opts.Stages.Analyzer == nil {
		return nil, errors.New("all enrichment stages are required")
	}
	if opts.Storage == nil || opts.Sink == nil {
		return nil, errors.New("storage and sink are required")
	}
	if opts.Limiter == nil {
		opts.Limiter = unlimited{}
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Discard()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Log == nil {
		opts.Log = logrus.NewEntry(logrus.StandardLogger())
	}
	if opts.TurnFormat == "" {
		opts.TurnFormat = types.TurnFormatSpeaker
	}

	q := queue.New[types.Transcript](opts.QueueSize, opts.QueuePolicy)
	rec := recorder{storage: opts.Storage, m: opts.Metrics, log: opts.Log.WithField("component", "errors"), now: opts.Now}

	return &Pipeline{
		queue: q,
		pool: &Pool{
			size:    opts.Workers,
			queue:   q,
			stages:  opts.Stages,
			storage: opts.Storage,
			sink:    opts.Sink,
			limiter: opts.Limiter,
			format:  opts.TurnFormat,
			rec:     rec,
			m:       opts.Metrics,
			log:     opts.Log.WithField("component", "worker"),
			now:     opts.Now,
		},
		ingester: &Ingester{
			queue: q,
			rec:   rec,
			m:     opts.Metrics,
			log:   opts.Log.WithField("component", "ingest"),
		},
		rec: rec,
		log: opts.Log.WithField("component", "pipeline"),
	}, nil
}

// Run processes src to completion. When the source ends on its own, Run
// waits until every enqueued transcript is handled. When ctx is cancelled,
// ingestion stops, workers finish the item they hold, and transcripts still
// queued are recorded as shutdown errors. A Pipeline runs once.
func (p *Pipeline) Run(ctx context.Context, src Source) (Result, error) {
	stopCtx, stop := context.WithCancel(context.Background())
	defer stop()

	p.pool.Start(stopCtx)

	enqueued, ingestErr := p.ingester.Run(ctx, src)
	if ingestErr != nil && ctx.Err() == nil {
		p.log.WithError(ingestErr).Error("transcript source failed")
	}

	if err := p.queue.Wait(ctx); err != nil {
		p.log.WithField("unfinished", p.queue.Unfinished()).Warn("shutdown requested, abandoning queued transcripts")
	} else {
		p.log.WithField("enqueued", enqueued).Info("all transcripts handled")
	}

	stop()
	p.queue.Close()
	p.pool.Wait()

	drained := p.queue.Drain()
	shutdownCtx := context.WithoutCancel(ctx)
	for _, t := range drained {
		p.rec.record(shutdownCtx, t.TranscriptID, StageShutdown, errors.New("pipeline stopped before transcript was processed"))
	}

	res := Result{Enqueued: enqueued, Drained: len(drained)}
	if ctx.Err() != nil {
		return res, nil
	}
	return res, ingestErr
}

func (p *Pipeline) QueueStats() QueueStats {
	return QueueStats{
		Depth:      p.queue.Len(),
		Unfinished: p.queue.Unfinished(),
		Capacity:   p.queue.Cap(),
		Workers:    p.pool.size,
	}
}
