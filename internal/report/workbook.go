package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"

	"calllive-pipeline-go/internal/types"
)

const (
	SheetResults = "Results"
	SheetSummary = "Summary"
)

var resultHeader = []any{
	"transcript_id", "summary", "sentiment", "interest_level", "preparedness_level",
	"permit_status", "ring_bearer", "gear_prepared", "hazard_knowledge", "fitness_level",
	"action_items", "processing_timestamp",
}

// WriteWorkbook writes one row per result to the Results sheet and the
// aggregate plus its action card to the Summary sheet.
func WriteWorkbook(path string, results []types.ProcessedResult, log *logrus.Entry) (Insight, error) {
	log = log.WithField("path", path)
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetResults); err != nil {
		return Insight{}, fmt.Errorf("rename sheet: %w", err)
	}
	if err := f.SetSheetRow(SheetResults, "A1", &resultHeader); err != nil {
		return Insight{}, fmt.Errorf("write header: %w", err)
	}
	for i, r := range results {
		d := r.StructuredData.VisitorDetails
		row := []any{
			r.TranscriptID,
			r.Summary,
			r.Analysis.Sentiment,
			r.Analysis.InterestLevel,
			r.Analysis.PreparednessLevel,
			deref(d.PermitStatus),
			boolCell(d.RingBearer),
			boolCell(d.GearPrepared),
			deref(d.HazardKnowledge),
			deref(d.FitnessLevel),
			strings.Join(r.Analysis.ActionItems, "; "),
			r.Analysis.ProcessingTimestamp,
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(SheetResults, cell, &row); err != nil {
			return Insight{}, fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	ins := Aggregate(results)
	if err := writeSummary(f, ins); err != nil {
		return Insight{}, err
	}

	if err := f.SaveAs(path); err != nil {
		log.WithError(err).Error("save failed")
		return Insight{}, fmt.Errorf("save workbook: %w", err)
	}
	log.WithFields(logrus.Fields{
		"results":           ins.Total,
		"average_sentiment": ins.AverageSentiment,
	}).Info("report written")
	return ins, nil
}

func writeSummary(f *excelize.File, ins Insight) error {
	if _, err := f.NewSheet(SheetSummary); err != nil {
		return fmt.Errorf("create summary sheet: %w", err)
	}
	card := Recommend(ins)

	rows := [][]any{
		{"metric", "value"},
		{"total_results", ins.Total},
		{"average_sentiment", ins.AverageSentiment},
		{"low_preparedness_rate", ins.LowPreparednessRate},
		{"action_items", ins.ActionItems},
	}
	rows = appendCounts(rows, "interest", ins.ByInterest)
	rows = appendCounts(rows, "preparedness", ins.ByPreparedness)
	rows = appendCounts(rows, "permit", ins.ByPermitStatus)
	rows = append(rows,
		[]any{"insight", card.Insight},
		[]any{"action", card.Action},
		[]any{"impact", card.Impact},
	)

	for i := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(SheetSummary, cell, &rows[i]); err != nil {
			return fmt.Errorf("write summary row %d: %w", i+1, err)
		}
	}
	return nil
}

func appendCounts(rows [][]any, prefix string, counts map[string]int) [][]any {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		rows = append(rows, []any{prefix + ":" + k, counts[k]})
	}
	return rows
}

func boolCell(b *bool) string {
	if b == nil {
		return ""
	}
	if *b {
		return "true"
	}
	return "false"
}
