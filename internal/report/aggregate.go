// Package report aggregates processed results and exports them as a workbook.
package report

import (
	"fmt"

	"calllive-pipeline-go/internal/types"
)

const unknown = "unknown"

type Insight struct {
	Total               int            `json:"total"`
	AverageSentiment    float64        `json:"average_sentiment"`
	ByInterest          map[string]int `json:"by_interest"`
	ByPreparedness      map[string]int `json:"by_preparedness"`
	ByPermitStatus      map[string]int `json:"by_permit_status"`
	LowPreparednessRate float64        `json:"low_preparedness_rate"`
	ActionItems         int            `json:"action_items"`
}

func Aggregate(results []types.ProcessedResult) Insight {
	ins := Insight{
		Total:          len(results),
		ByInterest:     map[string]int{},
		ByPreparedness: map[string]int{},
		ByPermitStatus: map[string]int{},
	}
	var sentiment float64
	for _, r := range results {
		sentiment += r.Analysis.Sentiment
		ins.ByInterest[orUnknown(r.Analysis.InterestLevel)]++
		ins.ByPreparedness[orUnknown(r.Analysis.PreparednessLevel)]++
		ins.ByPermitStatus[orUnknown(deref(r.StructuredData.VisitorDetails.PermitStatus))]++
		ins.ActionItems += len(r.Analysis.ActionItems)
	}
	if ins.Total > 0 {
		ins.AverageSentiment = sentiment / float64(ins.Total)
		ins.LowPreparednessRate = float64(ins.ByPreparedness[types.LevelLow]) / float64(ins.Total)
	}
	return ins
}

type ActionCard struct {
	Insight string `json:"insight"`
	Action  string `json:"action"`
	Impact  string `json:"impact"`
}

// Recommend turns the aggregate into a single follow-up recommendation.
func Recommend(ins Insight) ActionCard {
	if ins.Total == 0 {
		return ActionCard{
			Insight: "No processed transcripts yet",
			Action:  "Check that the pipeline is ingesting",
			Impact:  "None until data arrives",
		}
	}
	if ins.LowPreparednessRate >= 0.35 {
		return ActionCard{
			Insight: fmt.Sprintf("Low preparedness in %.0f%% of visitors", ins.LowPreparednessRate*100),
			Action:  "Send gear checklist and hazard briefing before the permit interview",
			Impact:  "Fewer unsafe ascents and permit denials",
		}
	}
	if pending := ins.ByPermitStatus["pending"]; float64(pending)/float64(ins.Total) >= 0.5 {
		return ActionCard{
			Insight: fmt.Sprintf("%d of %d visitors still have a pending permit", pending, ins.Total),
			Action:  "Prioritise permit follow-up calls",
			Impact:  "Shorter time from inquiry to booking",
		}
	}
	return ActionCard{
		Insight: "No strong preparedness or permit pattern detected",
		Action:  "Monitor and collect more data",
		Impact:  "Low immediate intervention",
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func orUnknown(s string) string {
	if s == "" {
		return unknown
	}
	return s
}
