package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"calllive-pipeline-go/internal/llm"
	"calllive-pipeline-go/internal/metrics"
	"calllive-pipeline-go/internal/types"
)

const summaryPrompt = `You are a helpful travel assistant working for a volcanic tourism bureau.
Summarize the conversation below in 4-5 sentences. Focus on the visitor's intent, their concerns and the agreed next steps.

Transcript:
%s
`

const extractPrompt = `You extract data for a volcanic tourism bureau.
Return ONLY a JSON object with exactly two keys:

1. "visitor_details": {
     "ring_bearer": true | false,
     "gear_prepared": true | false,
     "hazard_knowledge": "none" | "limited" | "basic" | "advanced",
     "fitness_level": "low" | "medium" | "high",
     "permit_status": "pending" | "approved" | "denied"
   }
2. "questionnaire_completion": the following object, copied as-is with boolean values:
%s

Conversation:
%s

No markdown, no comments, no extra text.
`

const analyzePrompt = `You analyze visitor conversations for a volcanic tourism bureau.
Using the conversation and the structured visitor details, return ONLY a JSON object with:

- "sentiment": number from 0.0 (negative) to 1.0 (positive)
- "interest_level": "low" | "medium" | "high"
- "preparedness_level": "low" | "medium" | "high"
- "action_items": array of short follow-up tasks

Conversation:
%s

Structured visitor details:
%s

Return just the JSON object.
`

func observe(m *metrics.Metrics, stage string, start time.Time) {
	m.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

// LiveSummarizer asks the model for a short prose summary.
type LiveSummarizer struct {
	llm Completer
	m   *metrics.Metrics
	log *logrus.Entry
}

func (s *LiveSummarizer) Summarize(ctx context.Context, turns []string) string {
	defer observe(s.m, StageSummarize, time.Now())

	out, err := s.llm.Complete(ctx, fmt.Sprintf(summaryPrompt, strings.Join(turns, "\n")))
	if err == nil && strings.TrimSpace(out) == "" {
		err = llm.ErrEmptyCompletion
	}
	if err != nil {
		fallback(s.m, s.log, StageSummarize, err)
		return SummaryUnavailable
	}
	return strings.TrimSpace(out)
}

// LiveExtractor asks the model for visitor details.
type LiveExtractor struct {
	llm Completer
	m   *metrics.Metrics
	log *logrus.Entry
}

func (e *LiveExtractor) Extract(ctx context.Context, turns []string, meta types.Metadata) types.StructuredData {
	defer observe(e.m, StageExtract, time.Now())

	questionnaire, err := json.Marshal(meta.QuestionnaireCopy())
	if err != nil {
		fallback(e.m, e.log, StageExtract, err)
		return DefaultStructured(meta)
	}

	out, err := e.llm.Complete(ctx, fmt.Sprintf(extractPrompt, questionnaire, strings.Join(turns, "\n")))
	if err != nil {
		fallback(e.m, e.log, StageExtract, err)
		return DefaultStructured(meta)
	}

	var parsed types.StructuredData
	if err := llm.DecodeJSON(out, &parsed); err != nil {
		e.log.WithField("reply", out).Debug("unparseable extraction reply")
		fallback(e.m, e.log, StageExtract, err)
		return DefaultStructured(meta)
	}
	if parsed.QuestionnaireCompletion == nil {
		parsed.QuestionnaireCompletion = meta.QuestionnaireCopy()
	}
	return parsed
}

// LiveAnalyzer asks the model for sentiment and follow-up items.
type LiveAnalyzer struct {
	llm Completer
	m   *metrics.Metrics
	log *logrus.Entry
}

func (a *LiveAnalyzer) Analyze(ctx context.Context, turns []string, structured types.StructuredData) types.Analysis {
	defer observe(a.m, StageAnalyze, time.Now())

	details, err := json.Marshal(structured)
	if err != nil {
		fallback(a.m, a.log, StageAnalyze, err)
		return DefaultAnalysis()
	}

	out, err := a.llm.Complete(ctx, fmt.Sprintf(analyzePrompt, strings.Join(turns, "\n"), details))
	if err != nil {
		fallback(a.m, a.log, StageAnalyze, err)
		return DefaultAnalysis()
	}

	var parsed types.Analysis
	if err := llm.DecodeJSON(out, &parsed); err != nil {
		a.log.WithField("reply", out).Debug("unparseable analysis reply")
		fallback(a.m, a.log, StageAnalyze, err)
		return DefaultAnalysis()
	}
	return normalizeAnalysis(parsed)
}

// normalizeAnalysis clamps sentiment to [0,1] and maps unknown levels to medium.
func normalizeAnalysis(a types.Analysis) types.Analysis {
	if math.IsNaN(a.Sentiment) {
		a.Sentiment = 0.5
	}
	a.Sentiment = math.Min(1, math.Max(0, a.Sentiment))
	a.InterestLevel = normalizeLevel(a.InterestLevel)
	a.PreparednessLevel = normalizeLevel(a.PreparednessLevel)
	if a.ActionItems == nil {
		a.ActionItems = []string{}
	}
	a.ProcessingTimestamp = ""
	return a
}

func normalizeLevel(s string) string {
	switch l := strings.ToLower(strings.TrimSpace(s)); l {
	case types.LevelLow, types.LevelMedium, types.LevelHigh:
		return l
	default:
		return types.LevelMedium
	}
}
