package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calllive-pipeline-go/internal/logger"
	"calllive-pipeline-go/internal/metrics"
	"calllive-pipeline-go/internal/types"
)

// fakeStore records inserts in memory and can be told to fail.
type fakeStore struct {
	mu        sync.Mutex
	fail      error
	raw       []types.Transcript
	processed []types.ProcessedResult
	errs      []types.ErrorRecord
}

func (f *fakeStore) Name() string { return "fake" }

func (f *fakeStore) InsertRaw(_ context.Context, t types.Transcript) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.raw = append(f.raw, t)
	return nil
}

func (f *fakeStore) InsertProcessed(_ context.Context, r types.ProcessedResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.processed = append(f.processed, r)
	return nil
}

func (f *fakeStore) InsertError(_ context.Context, e types.ErrorRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.errs = append(f.errs, e)
	return nil
}

func (f *fakeStore) Counts(context.Context) (Counts, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return Counts{Raw: int64(len(f.raw)), Processed: int64(len(f.processed)), Errors: int64(len(f.errs))}, nil
}

func (f *fakeStore) Close(context.Context) error { return nil }

func readLines(t *testing.T, path string) []map[string]any {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var out []map[string]any
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		var m map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &m), "line must be valid JSON: %s", sc.Text())
		out = append(out, m)
	}
	require.NoError(t, sc.Err())
	return out
}

func TestFileStoreConcurrentAppends(t *testing.T) {
	s, err := OpenFileStore(t.TempDir())
	require.NoError(t, err)
	defer s.Close(context.Background())

	const writers, perWriter = 20, 25
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				r := types.ProcessedResult{
					TranscriptID: fmt.Sprintf("t-%d-%d", w, i),
					Summary:      "a fairly long summary line to widen each write",
					Analysis:     types.Analysis{Sentiment: 0.5, ActionItems: []string{}},
				}
				assert.NoError(t, s.InsertProcessed(context.Background(), r))
			}
		}(w)
	}
	wg.Wait()

	lines := readLines(t, s.Path(KindProcessed))
	require.Len(t, lines, writers*perWriter)

	seen := map[string]bool{}
	for _, l := range lines {
		id := l["transcript_id"].(string)
		assert.False(t, seen[id], "duplicate %s", id)
		seen[id] = true
	}

	c, err := s.Counts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(writers*perWriter), c.Processed)
	assert.Equal(t, int64(0), c.Raw)
}

func TestFileStoreRawCarriesSavedTimestamp(t *testing.T) {
	s, err := OpenFileStore(t.TempDir())
	require.NoError(t, err)
	defer s.Close(context.Background())
	s.now = func() time.Time { return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC) }

	require.NoError(t, s.InsertRaw(context.Background(), types.Transcript{TranscriptID: "t-1"}))

	lines := readLines(t, s.Path(KindRaw))
	require.Len(t, lines, 1)
	assert.Equal(t, "t-1", lines[0]["transcript_id"])
	assert.Equal(t, "2025-01-02T03:04:05Z", lines[0]["saved_timestamp"])
}

func TestFileStoreRawKeepsReceivedDocument(t *testing.T) {
	s, err := OpenFileStore(t.TempDir())
	require.NoError(t, err)
	defer s.Close(context.Background())

	var tr types.Transcript
	require.NoError(t, json.Unmarshal([]byte(`{
		"transcript_id": "t-x",
		"custom_top": "kept",
		"participants": {"agent": {"name": "A"}},
		"transcript_text": [],
		"metadata": {"questionnaire": {"q": true}, "mount_doom_permit_status": "pending", "caller_region": "eu", "priority": 3}
	}`), &tr))
	assert.Equal(t, "eu", tr.Metadata.Extra["caller_region"])

	require.NoError(t, s.InsertRaw(context.Background(), tr))

	lines := readLines(t, s.Path(KindRaw))
	require.Len(t, lines, 1)
	raw := lines[0]
	assert.Equal(t, "kept", raw["custom_top"])
	assert.Equal(t, map[string]any{"agent": map[string]any{"name": "A"}}, raw["participants"])
	meta := raw["metadata"].(map[string]any)
	assert.Equal(t, "eu", meta["caller_region"])
	assert.Equal(t, float64(3), meta["priority"])
	assert.Equal(t, "pending", meta["mount_doom_permit_status"])
	assert.NotEmpty(t, raw["saved_timestamp"])
}

func TestFileStoreRawFromBuiltTranscriptKeepsExtraMetadata(t *testing.T) {
	s, err := OpenFileStore(t.TempDir())
	require.NoError(t, err)
	defer s.Close(context.Background())

	tr := types.Transcript{
		TranscriptID: "t-y",
		Metadata:     types.Metadata{PermitStatus: "approved", Extra: map[string]any{"caller_region": "us"}},
	}
	require.NoError(t, s.InsertRaw(context.Background(), tr))

	lines := readLines(t, s.Path(KindRaw))
	require.Len(t, lines, 1)
	meta := lines[0]["metadata"].(map[string]any)
	assert.Equal(t, "us", meta["caller_region"])
	assert.Equal(t, "approved", meta["mount_doom_permit_status"])
}

func TestFileStoreAppendsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := OpenFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, s.InsertError(ctx, types.ErrorRecord{TranscriptID: "a", Error: "boom"}))
	require.NoError(t, s.Close(ctx))

	s, err = OpenFileStore(dir)
	require.NoError(t, err)
	defer s.Close(ctx)
	require.NoError(t, s.InsertError(ctx, types.ErrorRecord{TranscriptID: "b", Error: "boom"}))

	lines := readLines(t, s.Path(KindErrors))
	require.Len(t, lines, 2)
	assert.Equal(t, "a", lines[0]["transcript_id"])
	assert.Equal(t, "b", lines[1]["transcript_id"])
}

func TestGatewayFallbackMode(t *testing.T) {
	fs, err := OpenFileStore(t.TempDir())
	require.NoError(t, err)
	g := NewGateway(nil, fs, nil, logger.Discard().Entry)
	defer g.Close(context.Background())

	assert.Equal(t, ModeFallback, g.Mode())

	ctx := context.Background()
	require.NoError(t, g.SaveRaw(ctx, types.Transcript{TranscriptID: "t-1"}))
	require.NoError(t, g.SaveProcessed(ctx, types.ProcessedResult{TranscriptID: "t-1"}))
	require.NoError(t, g.SaveError(ctx, types.ErrorRecord{TranscriptID: "t-2", Error: "x"}))

	c, err := g.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, Counts{Raw: 1, Processed: 1, Errors: 1}, c)
	assert.Len(t, readLines(t, fs.Path(KindProcessed)), 1)
}

func TestGatewayPrimaryWritesStayOnPrimary(t *testing.T) {
	primary := &fakeStore{}
	fallback := &fakeStore{}
	g := NewGateway(primary, fallback, nil, logger.Discard().Entry)

	require.NoError(t, g.SaveProcessed(context.Background(), types.ProcessedResult{TranscriptID: "t-1"}))
	assert.Equal(t, ModePrimary, g.Mode())
	assert.Len(t, primary.processed, 1)
	assert.Empty(t, fallback.processed)
}

func TestGatewayPrimaryFailureFallsThrough(t *testing.T) {
	primary := &fakeStore{fail: errors.New("connection reset")}
	fallback := &fakeStore{}
	g := NewGateway(primary, fallback, nil, logger.Discard().Entry)

	ctx := context.Background()
	require.NoError(t, g.SaveRaw(ctx, types.Transcript{TranscriptID: "t-1"}))
	require.NoError(t, g.SaveError(ctx, types.ErrorRecord{TranscriptID: "t-1"}))

	assert.Len(t, fallback.raw, 1)
	assert.Len(t, fallback.errs, 1)
	// a failed write does not change the startup decision
	assert.Equal(t, ModePrimary, g.Mode())
}

func TestGatewayNoBackend(t *testing.T) {
	g := NewGateway(&fakeStore{fail: errors.New("down")}, &fakeStore{fail: errors.New("disk full")}, nil, logger.Discard().Entry)

	err := g.SaveProcessed(context.Background(), types.ProcessedResult{TranscriptID: "t-1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoBackend)
	assert.Contains(t, err.Error(), "disk full")
}

func TestOpenFallsBackWhenProbeFails(t *testing.T) {
	dir := t.TempDir()
	g, err := Open(context.Background(), Options{
		MongoURI:      "mongodb://127.0.0.1:1/?serverSelectionTimeoutMS=200",
		MongoDatabase: "calllive",
		FallbackDir:   dir,
		ProbeTimeout:  300 * time.Millisecond,
	}, logger.Discard().Entry)
	require.NoError(t, err)
	defer g.Close(context.Background())

	assert.Equal(t, ModeFallback, g.Mode())
	require.NoError(t, g.SaveRaw(context.Background(), types.Transcript{TranscriptID: "t-1"}))

	fs := g.Active().(*FileStore)
	assert.Len(t, readLines(t, fs.Path(KindRaw)), 1)
}

func TestOpenWithoutURI(t *testing.T) {
	g, err := Open(context.Background(), Options{FallbackDir: t.TempDir()}, logger.Discard().Entry)
	require.NoError(t, err)
	defer g.Close(context.Background())
	assert.Equal(t, ModeFallback, g.Mode())
}

func TestReadProcessed(t *testing.T) {
	s, err := OpenFileStore(t.TempDir())
	require.NoError(t, err)
	defer s.Close(context.Background())

	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.InsertProcessed(ctx, types.ProcessedResult{TranscriptID: id}))
	}

	got, err := ReadProcessed(s.Path(KindProcessed))
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "c", got[2].TranscriptID)
}

func TestGatewayCountsIncludeFallthrough(t *testing.T) {
	primary := &fakeStore{}
	fallback := &fakeStore{}
	g := NewGateway(primary, fallback, nil, logger.Discard().Entry)
	ctx := context.Background()

	require.NoError(t, g.SaveRaw(ctx, types.Transcript{TranscriptID: "t-1"}))
	primary.fail = errors.New("connection reset")
	require.NoError(t, g.SaveRaw(ctx, types.Transcript{TranscriptID: "t-2"}))
	require.NoError(t, g.SaveError(ctx, types.ErrorRecord{TranscriptID: "t-2"}))
	primary.fail = nil

	c, err := g.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, Counts{Raw: 2, Errors: 1}, c)
}

func TestGatewayCountsStorageWrites(t *testing.T) {
	reg := prometheus.NewRegistry()
	g := NewGateway(&fakeStore{fail: errors.New("down")}, &fakeStore{}, metrics.NewMetrics(reg), logger.Discard().Entry)
	require.NoError(t, g.SaveProcessed(context.Background(), types.ProcessedResult{TranscriptID: "t-1"}))

	families, err := reg.Gather()
	require.NoError(t, err)
	results := map[string]float64{}
	for _, mf := range families {
		if mf.GetName() != "calllive_pipeline_storage_writes_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "result" {
					results[lp.GetValue()] += m.GetCounter().GetValue()
				}
			}
		}
	}
	assert.Equal(t, map[string]float64{"error": 1, "ok": 1}, results)
}

func TestCountsPending(t *testing.T) {
	assert.Equal(t, int64(2), Counts{Raw: 5, Processed: 3}.Pending())
	assert.Equal(t, int64(0), Counts{Raw: 1, Processed: 3}.Pending())
}
