package storage

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"calllive-pipeline-go/internal/types"
)

const fileExt = ".jsonl"

// appendFile serialises whole-line appends to one NDJSON file.
type appendFile struct {
	mu   sync.Mutex
	path string
	f    *os.File
}

func openAppendFile(path string) (*appendFile, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &appendFile{path: path, f: f}, nil
}

func (a *appendFile) append(v any) error {
	line, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	line = append(line, '\n')

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.f == nil {
		return fmt.Errorf("append %s: file closed", a.path)
	}
	if _, err := a.f.Write(line); err != nil {
		return fmt.Errorf("append %s: %w", a.path, err)
	}
	return nil
}

func (a *appendFile) count() (int64, error) {
	f, err := os.Open(a.path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	defer f.Close()

	var n int64
	buf := make([]byte, 32*1024)
	for {
		c, err := f.Read(buf)
		n += int64(bytes.Count(buf[:c], []byte{'\n'}))
		if err == io.EOF {
			return n, nil
		}
		if err != nil {
			return n, err
		}
	}
}

func (a *appendFile) close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.f == nil {
		return nil
	}
	err := a.f.Close()
	a.f = nil
	return err
}

// FileStore is the fallback backend: one NDJSON file per record kind.
// Each goroutine writes directly; a per-file mutex keeps lines whole.
type FileStore struct {
	dir       string
	raw       *appendFile
	processed *appendFile
	errs      *appendFile
	now       func() time.Time
}

// OpenFileStore creates dir if needed and opens the three append logs.
func OpenFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create fallback dir: %w", err)
	}
	s := &FileStore{dir: dir, now: time.Now}
	var err error
	if s.raw, err = openAppendFile(s.Path(KindRaw)); err != nil {
		return nil, err
	}
	if s.processed, err = openAppendFile(s.Path(KindProcessed)); err != nil {
		s.raw.close()
		return nil, err
	}
	if s.errs, err = openAppendFile(s.Path(KindErrors)); err != nil {
		s.raw.close()
		s.processed.close()
		return nil, err
	}
	return s, nil
}

// Path returns the file backing a record kind.
func (s *FileStore) Path(kind string) string {
	return filepath.Join(s.dir, kind+fileExt)
}

func (s *FileStore) Name() string { return "file" }

func (s *FileStore) InsertRaw(ctx context.Context, t types.Transcript) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	doc, err := rawDocument(t, s.now())
	if err != nil {
		return err
	}
	return s.raw.append(doc)
}

func (s *FileStore) InsertProcessed(ctx context.Context, r types.ProcessedResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.processed.append(r)
}

func (s *FileStore) InsertError(ctx context.Context, e types.ErrorRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.errs.append(e)
}

func (s *FileStore) Counts(_ context.Context) (Counts, error) {
	var c Counts
	var err error
	if c.Raw, err = s.raw.count(); err != nil {
		return c, fmt.Errorf("count raw: %w", err)
	}
	if c.Processed, err = s.processed.count(); err != nil {
		return c, fmt.Errorf("count processed: %w", err)
	}
	if c.Errors, err = s.errs.count(); err != nil {
		return c, fmt.Errorf("count errors: %w", err)
	}
	return c, nil
}

func (s *FileStore) Close(_ context.Context) error {
	return errors.Join(s.raw.close(), s.processed.close(), s.errs.close())
}

// ReadProcessed loads every processed result from an NDJSON file.
func ReadProcessed(path string) ([]types.ProcessedResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open processed results: %w", err)
	}
	defer f.Close()

	var out []types.ProcessedResult
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		b := bytes.TrimSpace(sc.Bytes())
		if len(b) == 0 {
			continue
		}
		var r types.ProcessedResult
		if err := json.Unmarshal(b, &r); err != nil {
			return out, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, r)
	}
	if err := sc.Err(); err != nil {
		return out, fmt.Errorf("scan processed results: %w", err)
	}
	return out, nil
}
