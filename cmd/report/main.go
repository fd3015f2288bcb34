package main

import (
	"flag"
	"path/filepath"

	"github.com/joho/godotenv"

	"calllive-pipeline-go/internal/logger"
	"calllive-pipeline-go/internal/report"
	"calllive-pipeline-go/internal/storage"
)

func main() {
	_ = godotenv.Load()

	in := flag.String("in", filepath.Join("data", storage.KindProcessed+".jsonl"), "processed results JSON-lines file")
	out := flag.String("out", "report.xlsx", "output workbook")
	flag.Parse()

	log := logger.New()
	reqLog := log.WithField("in", *in).WithField("out", *out)

	results, err := storage.ReadProcessed(*in)
	if err != nil {
		reqLog.WithError(err).Fatal("failed to read processed results")
	}
	reqLog.WithField("results", len(results)).Info("processed results loaded")

	ins, err := report.WriteWorkbook(*out, results, log.WithComponent("report"))
	if err != nil {
		reqLog.WithError(err).Fatal("failed to write report")
	}
	card := report.Recommend(ins)
	reqLog.WithField("insight", card.Insight).WithField("action", card.Action).Info("report complete")
}
