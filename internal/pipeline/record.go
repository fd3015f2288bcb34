package pipeline

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"calllive-pipeline-go/internal/metrics"
	"calllive-pipeline-go/internal/types"
)

// Error record stages.
const (
	StageEnqueue       = "enqueue"
	StageSaveProcessed = "save_processed"
	StageRateLimit     = "rate_limit"
	StageSubmit        = "submit"
	StagePanic         = "panic"
	StageShutdown      = "shutdown"
)

// recorder writes ErrorRecords. A failed write is logged; there is nothing
// further to fall back to.
type recorder struct {
	storage Storage
	m       *metrics.Metrics
	log     *logrus.Entry
	now     func() time.Time
}

func (r recorder) record(ctx context.Context, transcriptID, stage string, cause error) {
	r.m.TranscriptsFailed.WithLabelValues(stage).Inc()
	rec := types.ErrorRecord{
		Timestamp:    r.now().UTC().Format(time.RFC3339Nano),
		TranscriptID: transcriptID,
		Stage:        stage,
		Error:        cause.Error(),
	}
	log := r.log.WithFields(logrus.Fields{"transcript_id": transcriptID, "stage": stage})
	log.WithError(cause).Error("transcript failed")
	if err := r.storage.SaveError(ctx, rec); err != nil {
		log.WithError(err).Error("could not persist error record")
	}
}
