// Package rabbit consumes transcripts from a RabbitMQ queue.
package rabbit

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"calllive-pipeline-go/internal/types"
)

// Source reads one transcript JSON document per message from a durable queue.
type Source struct {
	url      string
	queue    string
	prefetch int
	log      *logrus.Entry
}

func NewSource(url, queue string, prefetch int, log *logrus.Entry) *Source {
	if prefetch <= 0 {
		prefetch = 1
	}
	return &Source{url: url, queue: queue, prefetch: prefetch, log: log}
}

// Stream connects, declares the queue and hands every decoded message to
// handle. A message is acked only after handle returns nil; undecodable
// bodies are dropped with a nack. Stream returns when ctx is cancelled, the
// broker closes the delivery channel, or handle fails.
func (s *Source) Stream(ctx context.Context, handle func(context.Context, types.Transcript) error) error {
	conn, err := amqp.Dial(s.url)
	if err != nil {
		return fmt.Errorf("amqp dial: %w", err)
	}
	defer conn.Close()
	s.log.WithField("queue", s.queue).Info("RabbitMQ connected")

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("amqp channel: %w", err)
	}
	defer ch.Close()

	if _, err := ch.QueueDeclare(s.queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", s.queue, err)
	}
	if err := ch.Qos(s.prefetch, 0, false); err != nil {
		return fmt.Errorf("amqp qos: %w", err)
	}
	deliveries, err := ch.ConsumeWithContext(ctx, s.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", s.queue, err)
	}
	return consume(ctx, deliveries, handle, s.log)
}

func consume(ctx context.Context, deliveries <-chan amqp.Delivery, handle func(context.Context, types.Transcript) error, log *logrus.Entry) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				log.Info("delivery channel closed")
				return nil
			}
			var t types.Transcript
			if err := json.Unmarshal(d.Body, &t); err != nil {
				log.WithError(err).WithField("delivery_tag", d.DeliveryTag).Error("undecodable transcript message")
				_ = d.Nack(false, false)
				continue
			}
			if err := handle(ctx, t); err != nil {
				_ = d.Nack(false, true)
				return err
			}
			if err := d.Ack(false); err != nil {
				log.WithError(err).WithField("transcript_id", t.TranscriptID).Warn("ack failed")
			}
		}
	}
}

// Publish sends one transcript to the queue as a persistent message, using
// the received document when there is one.
func Publish(ctx context.Context, ch *amqp.Channel, queue string, t types.Transcript) error {
	body := []byte(t.Raw)
	if len(body) == 0 {
		var err error
		if body, err = json.Marshal(t); err != nil {
			return fmt.Errorf("marshal transcript: %w", err)
		}
	}
	return ch.PublishWithContext(ctx, "", queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
}

// Seed publishes every transcript in an NDJSON stream to the queue and
// returns how many were sent.
func Seed(ctx context.Context, url, queue string, r io.Reader, log *logrus.Entry) (int, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return 0, fmt.Errorf("amqp dial: %w", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return 0, fmt.Errorf("amqp channel: %w", err)
	}
	defer ch.Close()

	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return 0, fmt.Errorf("declare queue %s: %w", queue, err)
	}
	return publishLines(r, log, func(t types.Transcript) error {
		return Publish(ctx, ch, queue, t)
	})
}

func publishLines(r io.Reader, log *logrus.Entry, publish func(types.Transcript) error) (int, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	sent, line := 0, 0
	for sc.Scan() {
		line++
		b := bytes.TrimSpace(sc.Bytes())
		if len(b) == 0 {
			continue
		}
		var t types.Transcript
		if err := json.Unmarshal(b, &t); err != nil {
			log.WithError(err).WithField("line", line).Warn("skipping malformed transcript line")
			continue
		}
		if err := publish(t); err != nil {
			return sent, fmt.Errorf("publish %s: %w", t.TranscriptID, err)
		}
		sent++
	}
	if err := sc.Err(); err != nil {
		return sent, fmt.Errorf("read transcripts: %w", err)
	}
	return sent, nil
}
