package enrich

import (
	"context"

	"calllive-pipeline-go/internal/types"
)

// MockSummarizer returns a fixed placeholder summary.
type MockSummarizer struct{}

func (MockSummarizer) Summarize(context.Context, []string) string {
	return "Customer expressed interest in the Mount Doom hike and asked about preparation and next steps."
}

// MockExtractor fills visitor details with fixed values and copies the
// questionnaire and permit status from metadata.
type MockExtractor struct{}

func (MockExtractor) Extract(_ context.Context, _ []string, meta types.Metadata) types.StructuredData {
	s := DefaultStructured(meta)
	s.VisitorDetails.RingBearer = types.Bool(false)
	s.VisitorDetails.GearPrepared = types.Bool(false)
	s.VisitorDetails.HazardKnowledge = types.String("none")
	s.VisitorDetails.FitnessLevel = types.String(types.LevelMedium)
	return s
}

// MockAnalyzer returns the neutral analysis.
type MockAnalyzer struct{}

func (MockAnalyzer) Analyze(context.Context, []string, types.StructuredData) types.Analysis {
	return DefaultAnalysis()
}
