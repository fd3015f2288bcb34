// Package transport is the HTTP client for the CallLive transcript API.
package transport

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"calllive-pipeline-go/internal/types"
)

var (
	ErrNotAuthenticated = errors.New("transport: not authenticated")
	ErrAuthRejected     = errors.New("transport: api key rejected")
)

// Stats is the upstream processing summary.
type Stats struct {
	ProcessedCount int64 `json:"processed_count"`
}

// Health is the upstream health probe reply.
type Health struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}

// Client authenticates once, then streams transcripts and submits results.
type Client struct {
	baseURL      string
	apiKey       string
	http         *http.Client
	stream       *http.Client
	maxRetryTime time.Duration
	log          *logrus.Entry

	mu    sync.RWMutex
	token string
}

func NewClient(baseURL, apiKey string, log *logrus.Entry) *Client {
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		apiKey:       apiKey,
		http:         &http.Client{Timeout: 15 * time.Second},
		stream:       &http.Client{},
		maxRetryTime: 30 * time.Second,
		log:          log,
	}
}

// Name identifies the client as a submission sink.
func (c *Client) Name() string { return "calllive" }

func (c *Client) bearer() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.token == "" {
		return "", ErrNotAuthenticated
	}
	return "Bearer " + c.token, nil
}

// Authenticate exchanges the API key for a bearer token. Network errors and
// 5xx are retried; any 4xx fails immediately with ErrAuthRejected.
func (c *Client) Authenticate(ctx context.Context) error {
	payload, _ := json.Marshal(map[string]string{"api_key": c.apiKey})

	var token string
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth", bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			c.log.WithError(err).Warn("auth request failed")
			return err
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)

		if resp.StatusCode >= 500 {
			return fmt.Errorf("auth server error %d: %s", resp.StatusCode, body)
		}
		if resp.StatusCode != http.StatusOK {
			return backoff.Permanent(fmt.Errorf("%w: status %d: %s", ErrAuthRejected, resp.StatusCode, body))
		}
		var out struct {
			Token string `json:"token"`
		}
		if err := json.Unmarshal(body, &out); err != nil || out.Token == "" {
			return backoff.Permanent(fmt.Errorf("auth response without token: %s", body))
		}
		token = out.Token
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = c.maxRetryTime
	if err := backoff.Retry(op, backoff.WithContext(b, ctx)); err != nil {
		return fmt.Errorf("authenticate: %w", err)
	}

	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
	c.log.Info("authentication successful")
	return nil
}

// Stream reads the NDJSON transcript stream and calls handle for each
// decoded transcript. Malformed lines are logged and skipped. It returns nil
// when the server closes the stream, ctx.Err() on cancellation, or the first
// error returned by handle.
func (c *Client) Stream(ctx context.Context, handle func(context.Context, types.Transcript) error) error {
	auth, err := c.bearer()
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/transcripts/stream", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", auth)
	req.Header.Set("Accept", "application/x-ndjson")

	resp, err := c.stream.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("open stream: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("stream failed %d: %s", resp.StatusCode, body)
	}

	r := bufio.NewReader(resp.Body)
	lineNo := 0
	for {
		line, readErr := r.ReadBytes('\n')
		if len(bytes.TrimSpace(line)) > 0 {
			lineNo++
			var t types.Transcript
			if err := json.Unmarshal(line, &t); err != nil {
				c.log.WithError(err).WithField("line", lineNo).Error("JSON parse error in stream")
			} else if err := handle(ctx, t); err != nil {
				return err
			}
		}
		if readErr == io.EOF {
			c.log.WithField("lines", lineNo).Info("transcript stream ended")
			return nil
		}
		if readErr != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.log.WithError(readErr).Warn("stream connection error")
			return nil
		}
	}
}

// Submit posts one processed result. It is attempted once; retries are left
// to the operator.
func (c *Client) Submit(ctx context.Context, result types.ProcessedResult) error {
	auth, err := c.bearer()
	if err != nil {
		return err
	}
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/transcripts/process", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	reqID := uuid.New().String()
	req.Header.Set("Authorization", auth)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", reqID)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("submit request: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("submit failed %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	c.log.WithFields(logrus.Fields{
		"transcript_id": result.TranscriptID,
		"req_id":        reqID,
	}).Debug("result submitted")
	return nil
}

// Stats fetches the upstream processing statistics.
func (c *Client) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	err := c.getJSON(ctx, "/v1/stats", true, &s)
	return s, err
}

// Health probes the upstream API; it does not need a token.
func (c *Client) Health(ctx context.Context) (Health, error) {
	var h Health
	err := c.getJSON(ctx, "/v1/health", false, &h)
	return h, err
}

func (c *Client) getJSON(ctx context.Context, path string, authed bool, target any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	if authed {
		auth, err := c.bearer()
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", auth)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s failed %d: %s", path, resp.StatusCode, body)
	}
	if err := json.Unmarshal(body, target); err != nil {
		return fmt.Errorf("json decode error: %v body=%s", err, body)
	}
	return nil
}
