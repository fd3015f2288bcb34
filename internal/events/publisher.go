// Package events republishes processed results to Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"calllive-pipeline-go/internal/types"
)

// Config holds Kafka publisher configuration.
type Config struct {
	Brokers []string
	Topic   string
	Enabled bool
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher writes one message per processed result, keyed by transcript id.
// When disabled it only logs.
type Publisher struct {
	writer  messageWriter
	topic   string
	enabled bool
	log     *logrus.Entry
}

func New(cfg Config, log *logrus.Entry) *Publisher {
	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		log.Info("Kafka disabled, using log-only mode")
		return &Publisher{topic: cfg.Topic, log: log}
	}

	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
		Transport:    &kafka.Transport{Dial: dialer.DialFunc},
	}

	log.WithFields(logrus.Fields{
		"brokers": cfg.Brokers,
		"topic":   cfg.Topic,
	}).Info("Kafka publisher initialized")

	return &Publisher{writer: w, topic: cfg.Topic, enabled: true, log: log}
}

func (p *Publisher) Name() string { return "kafka" }

func (p *Publisher) Enabled() bool { return p.enabled }

// Submit publishes the result to the configured topic.
func (p *Publisher) Submit(ctx context.Context, r types.ProcessedResult) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}

	log := p.log.WithFields(logrus.Fields{"topic": p.topic, "transcript_id": r.TranscriptID})
	if !p.enabled {
		log.WithField("payload_len", len(payload)).Debug("publishing event (log-only)")
		return nil
	}

	msg := kafka.Message{
		Key:   []byte(r.TranscriptID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte("transcript.processed")},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		log.WithError(err).Error("failed to write to Kafka")
		return fmt.Errorf("kafka write: %w", err)
	}
	return nil
}

func (p *Publisher) Close() error {
	if p.writer == nil {
		return nil
	}
	if err := p.writer.Close(); err != nil {
		p.log.WithError(err).Error("error closing Kafka writer")
		return err
	}
	return nil
}
