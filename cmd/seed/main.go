package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"calllive-pipeline-go/internal/config"
	"calllive-pipeline-go/internal/logger"
	"calllive-pipeline-go/internal/rabbit"
)

// seed publishes NDJSON transcripts to the AMQP queue read with SOURCE=amqp.
func main() {
	in := flag.String("in", "transcripts.jsonl", "transcripts, one JSON object per line")
	configPath := flag.String("config", "", "optional YAML config file")
	flag.Parse()

	log := logger.New()
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.WithError(err).Fatal("failed to load config")
	}
	reqLog := log.WithField("in", *in).WithField("queue", cfg.AMQPQueue)

	f, err := os.Open(*in)
	if err != nil {
		reqLog.WithError(err).Fatal("failed to open transcripts")
	}
	defer f.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sent, err := rabbit.Seed(ctx, cfg.AMQPURL, cfg.AMQPQueue, f, log.WithComponent("amqp"))
	if err != nil {
		reqLog.WithError(err).WithField("sent", sent).Error("seeding stopped")
		os.Exit(1)
	}
	reqLog.WithField("sent", sent).Info("queue seeded")
}
