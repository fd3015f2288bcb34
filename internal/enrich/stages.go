// Package enrich holds the three enrichment stages run on every transcript.
// Each stage degrades to a fixed default instead of returning an error.
package enrich

import (
	"context"

	"github.com/sirupsen/logrus"

	"calllive-pipeline-go/internal/metrics"
	"calllive-pipeline-go/internal/types"
)

// SummaryUnavailable is the summary used when the summarizer fails.
const SummaryUnavailable = "Summary unavailable due to an error."

// Stage names, used in logs and metric labels.
const (
	StageSummarize = "summarize"
	StageExtract   = "extract"
	StageAnalyze   = "analyze"
)

type Summarizer interface {
	Summarize(ctx context.Context, turns []string) string
}

type Extractor interface {
	Extract(ctx context.Context, turns []string, meta types.Metadata) types.StructuredData
}

type Analyzer interface {
	Analyze(ctx context.Context, turns []string, structured types.StructuredData) types.Analysis
}

// Completer is the LLM call the live stages depend on.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Stages bundles one implementation of each stage.
type Stages struct {
	Summarizer Summarizer
	Extractor  Extractor
	Analyzer   Analyzer
}

// NewStages picks the mock or live variants once. completer is ignored in
// mock mode and must be non-nil otherwise. A nil m records into a private
// registry.
func NewStages(useMock bool, completer Completer, m *metrics.Metrics, log *logrus.Entry) Stages {
	if useMock {
		log.Info("mock LLM mode ON - enrichment stages return deterministic output")
		return Stages{Summarizer: MockSummarizer{}, Extractor: MockExtractor{}, Analyzer: MockAnalyzer{}}
	}
	if m == nil {
		m = metrics.Discard()
	}
	return Stages{
		Summarizer: &LiveSummarizer{llm: completer, m: m, log: log.WithField("stage", StageSummarize)},
		Extractor:  &LiveExtractor{llm: completer, m: m, log: log.WithField("stage", StageExtract)},
		Analyzer:   &LiveAnalyzer{llm: completer, m: m, log: log.WithField("stage", StageAnalyze)},
	}
}

// DefaultAnalysis is the neutral analysis returned when the analyzer fails.
func DefaultAnalysis() types.Analysis {
	return types.Analysis{
		Sentiment:         0.5,
		InterestLevel:     types.LevelMedium,
		PreparednessLevel: types.LevelMedium,
		ActionItems:       []string{},
	}
}

// DefaultStructured derives structured data from metadata alone.
func DefaultStructured(meta types.Metadata) types.StructuredData {
	var permit *string
	if meta.PermitStatus != "" {
		permit = types.String(meta.PermitStatus)
	}
	return types.StructuredData{
		VisitorDetails:          types.VisitorDetails{PermitStatus: permit},
		QuestionnaireCompletion: meta.QuestionnaireCopy(),
	}
}

func fallback(m *metrics.Metrics, log *logrus.Entry, stage string, err error) {
	m.StageFallbacks.WithLabelValues(stage).Inc()
	log.WithError(err).Warn("stage failed, using default")
}
