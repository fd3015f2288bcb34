package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calllive-pipeline-go/internal/logger"
	"calllive-pipeline-go/internal/types"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestDisabledPublisherOnlyLogs(t *testing.T) {
	p := New(Config{Enabled: true}, logger.Discard().Entry)
	assert.False(t, p.Enabled(), "no brokers means disabled")
	assert.NoError(t, p.Submit(context.Background(), types.ProcessedResult{TranscriptID: "t-1"}))
	assert.NoError(t, p.Close())
}

func TestSubmitWritesKeyedMessage(t *testing.T) {
	w := &fakeWriter{}
	p := &Publisher{writer: w, topic: "transcripts.processed", enabled: true, log: logger.Discard().Entry}

	require.NoError(t, p.Submit(context.Background(), types.ProcessedResult{TranscriptID: "t-9", Summary: "s"}))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "t-9", string(w.msgs[0].Key))

	var got types.ProcessedResult
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &got))
	assert.Equal(t, "s", got.Summary)

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestSubmitError(t *testing.T) {
	w := &fakeWriter{err: errors.New("leader not available")}
	p := &Publisher{writer: w, topic: "t", enabled: true, log: logger.Discard().Entry}

	err := p.Submit(context.Background(), types.ProcessedResult{TranscriptID: "t-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "leader not available")
}

func TestNewEnabled(t *testing.T) {
	p := New(Config{Enabled: true, Brokers: []string{"127.0.0.1:9092"}, Topic: "x"}, logger.Discard().Entry)
	assert.True(t, p.Enabled())
	assert.Equal(t, "kafka", p.Name())
	assert.NoError(t, p.Close())
}
