package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calllive-pipeline-go/internal/logger"
)

func newTestClient(t *testing.T, url string) *Client {
	t.Helper()
	c, err := NewClient(Config{
		GatewayURL:   url,
		APIKey:       "k",
		Model:        "test-model",
		Timeout:      2 * time.Second,
		MaxRetryTime: 5 * time.Second,
	}, logger.Discard().Entry)
	require.NoError(t, err)
	return c
}

func writeCompletion(w http.ResponseWriter, content string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"choices": []any{map[string]any{"message": map[string]string{"role": "assistant", "content": content}}},
	})
}

func TestCompleteSendsPromptAndReturnsContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req.Model)
		require.Len(t, req.Messages, 1)
		assert.Equal(t, "hello", req.Messages[0].Content)
		writeCompletion(w, "world")
	}))
	defer srv.Close()

	got, err := newTestClient(t, srv.URL).Complete(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "world", got)
}

func TestCompleteRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		writeCompletion(w, "ok")
	}))
	defer srv.Close()

	got, err := newTestClient(t, srv.URL).Complete(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestCompleteDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).Complete(context.Background(), "p")
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestCompleteEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).Complete(context.Background(), "p")
	assert.ErrorIs(t, err, ErrEmptyCompletion)
}

func TestNewClientRequiresGateway(t *testing.T) {
	_, err := NewClient(Config{}, logger.Discard().Entry)
	assert.Error(t, err)
}

func TestStripFences(t *testing.T) {
	cases := map[string]string{
		"plain":             `{"a":1}`,
		"json fence":        "```json\n{\"a\":1}\n```",
		"bare fence":        "```\n{\"a\":1}\n```",
		"inline fence":      "```json {\"a\":1}```",
		"surrounding space": "  \n```json\n{\"a\":1}\n```\n ",
		"crlf":              "```json\r\n{\"a\":1}\r\n```",
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, `{"a":1}`, StripFences(in))
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	var v struct {
		A int `json:"a"`
	}
	require.NoError(t, DecodeJSON("```json\n{\"a\":7}\n```", &v))
	assert.Equal(t, 7, v.A)

	assert.Error(t, DecodeJSON("not json at all", &v))
	assert.ErrorIs(t, DecodeJSON("```\n```", &v), ErrEmptyCompletion)
}
