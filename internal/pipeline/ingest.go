package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"calllive-pipeline-go/internal/metrics"
	"calllive-pipeline-go/internal/queue"
	"calllive-pipeline-go/internal/types"
)

// Ingester is the only producer for the queue.
type Ingester struct {
	queue *queue.Queue[types.Transcript]
	rec   recorder
	m     *metrics.Metrics
	log   *logrus.Entry
}

// Run consumes src until it ends or ctx is cancelled and returns the number
// of transcripts enqueued. Under the Block policy it suspends while the queue
// is full; under Reject a full queue turns the transcript into an error record.
func (in *Ingester) Run(ctx context.Context, src Source) (int, error) {
	enqueued := 0
	err := src.Stream(ctx, func(ctx context.Context, t types.Transcript) error {
		log := in.log.WithField("transcript_id", t.TranscriptID)
		if t.TranscriptID == "" {
			log.Warn("skipping transcript without id")
			return nil
		}

		err := in.queue.Enqueue(ctx, t)
		switch {
		case err == nil:
			enqueued++
			in.m.TranscriptsIngested.Inc()
			in.m.QueueDepth.Set(float64(in.queue.Len()))
			log.Debug("transcript enqueued")
			return nil
		case errors.Is(err, queue.ErrQueueFull):
			in.rec.record(context.WithoutCancel(ctx), t.TranscriptID, StageEnqueue, err)
			return nil
		case ctx.Err() != nil:
			in.rec.record(context.WithoutCancel(ctx), t.TranscriptID, StageShutdown, fmt.Errorf("not enqueued: %w", err))
			return err
		default:
			return fmt.Errorf("enqueue %s: %w", t.TranscriptID, err)
		}
	})

	in.log.WithField("enqueued", enqueued).Info("ingestion finished")
	return enqueued, err
}
