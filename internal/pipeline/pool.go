package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"calllive-pipeline-go/internal/enrich"
	"calllive-pipeline-go/internal/metrics"
	"calllive-pipeline-go/internal/queue"
	"calllive-pipeline-go/internal/types"
)

// Pool runs a fixed number of workers over the queue.
type Pool struct {
	size    int
	queue   *queue.Queue[types.Transcript]
	stages  enrich.Stages
	storage Storage
	sink    Sink
	limiter Limiter
	format  types.TurnFormat
	rec     recorder
	m       *metrics.Metrics
	log     *logrus.Entry
	now     func() time.Time

	wg sync.WaitGroup
}

// Start launches the workers. Cancelling stop makes each worker exit at its
// next Dequeue or Acquire; an item already in progress is finished first.
func (p *Pool) Start(stop context.Context) {
	for i := 1; i <= p.size; i++ {
		p.wg.Add(1)
		go p.worker(stop, i)
	}
	p.log.WithField("workers", p.size).Info("worker pool started")
}

// Wait blocks until every worker has returned.
func (p *Pool) Wait() {
	p.wg.Wait()
}

func (p *Pool) worker(stop context.Context, id int) {
	defer p.wg.Done()
	log := p.log.WithField("worker", id)

	for {
		t, err := p.queue.Dequeue(stop)
		if err != nil {
			if !errors.Is(err, queue.ErrClosed) && !errors.Is(err, context.Canceled) {
				log.WithError(err).Warn("dequeue failed")
			}
			log.Debug("worker stopped")
			return
		}
		p.m.QueueDepth.Set(float64(p.queue.Len()))
		p.handle(stop, log.WithField("transcript_id", t.TranscriptID), t)
	}
}

// handle runs the full sequence for one transcript and always marks it done.
func (p *Pool) handle(stop context.Context, log *logrus.Entry, t types.Transcript) {
	ctx := context.WithoutCancel(stop)

	defer p.queue.Done()
	p.m.WorkersBusy.Inc()
	defer p.m.WorkersBusy.Dec()
	defer func() {
		if r := recover(); r != nil {
			p.rec.record(ctx, t.TranscriptID, StagePanic, fmt.Errorf("panic: %v", r))
		}
	}()

	start := time.Now()
	log.Info("processing transcript")

	if err := p.storage.SaveRaw(ctx, t); err != nil {
		log.WithError(err).Warn("raw transcript not saved")
	}

	turns := t.TurnStrings(p.format)

	summary := p.stages.Summarizer.Summarize(ctx, turns)
	log.Debug("summary done")

	structured := p.stages.Extractor.Extract(ctx, turns, t.Metadata)
	log.Debug("extraction done")

	analysis := p.stages.Analyzer.Analyze(ctx, turns, structured)
	log.Debug("analysis done")

	analysis.ProcessingTimestamp = p.now().UTC().Format(time.RFC3339Nano)
	result := types.ProcessedResult{
		TranscriptID:   t.TranscriptID,
		Summary:        summary,
		StructuredData: structured,
		Analysis:       analysis,
	}

	if err := p.storage.SaveProcessed(ctx, result); err != nil {
		p.rec.record(ctx, t.TranscriptID, StageSaveProcessed, err)
		return
	}
	p.m.TranscriptsProcessed.Inc()

	waitStart := time.Now()
	if err := p.limiter.Acquire(stop); err != nil {
		p.rec.record(ctx, t.TranscriptID, StageRateLimit, fmt.Errorf("submission skipped: %w", err))
		return
	}
	p.m.RateLimitWait.Observe(time.Since(waitStart).Seconds())

	err := p.sink.Submit(ctx, result)
	p.m.Submissions.WithLabelValues(p.sink.Name(), metrics.ResultLabel(err)).Inc()
	if err != nil {
		p.rec.record(ctx, t.TranscriptID, StageSubmit, err)
		return
	}

	log.WithField("duration_ms", time.Since(start).Milliseconds()).Info("transcript processed and submitted")
}
