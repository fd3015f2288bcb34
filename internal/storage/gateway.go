package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"calllive-pipeline-go/internal/metrics"
	"calllive-pipeline-go/internal/types"
)

// ErrNoBackend is returned when neither backend accepted a record.
var ErrNoBackend = errors.New("storage: no backend accepted the record")

// Mode is the gateway state. The transition Primary -> Fallback happens at
// most once, at startup; there is no way back.
type Mode int

const (
	ModePrimary Mode = iota
	ModeFallback
)

func (m Mode) String() string {
	if m == ModePrimary {
		return "primary"
	}
	return "fallback"
}

// Options configures Open.
type Options struct {
	MongoURI      string
	MongoDatabase string
	FallbackDir   string
	ProbeTimeout  time.Duration
	Metrics       *metrics.Metrics
}

// Gateway routes writes to the primary store, falling through to the file
// store when a primary write fails or when the startup probe failed.
type Gateway struct {
	primary  Store
	fallback Store
	mode     Mode
	m        *metrics.Metrics
	log      *logrus.Entry
}

// NewGateway builds a gateway; a nil primary starts it in fallback mode.
func NewGateway(primary, fallback Store, m *metrics.Metrics, log *logrus.Entry) *Gateway {
	if m == nil {
		m = metrics.Discard()
	}
	g := &Gateway{primary: primary, fallback: fallback, mode: ModePrimary, m: m, log: log}
	if primary == nil {
		g.mode = ModeFallback
	}
	return g
}

// Open opens the file store, probes MongoDB once and fixes the mode.
func Open(ctx context.Context, opts Options, log *logrus.Entry) (*Gateway, error) {
	fallback, err := OpenFileStore(opts.FallbackDir)
	if err != nil {
		return nil, fmt.Errorf("fallback store: %w", err)
	}

	if opts.MongoURI == "" {
		log.WithField("dir", opts.FallbackDir).Warn("MONGODB_URI not set, using JSON fallback storage")
		return NewGateway(nil, fallback, opts.Metrics, log), nil
	}

	timeout := opts.ProbeTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	pctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	primary, err := OpenMongo(pctx, opts.MongoURI, opts.MongoDatabase)
	if err != nil {
		log.WithError(err).WithField("dir", opts.FallbackDir).Error("MongoDB connection failed, falling back to JSON storage")
		return NewGateway(nil, fallback, opts.Metrics, log), nil
	}
	log.WithField("database", opts.MongoDatabase).Info("connected to MongoDB")
	return NewGateway(primary, fallback, opts.Metrics, log), nil
}

func (g *Gateway) Mode() Mode { return g.mode }

// Active is the backend that receives writes first.
func (g *Gateway) Active() Store {
	if g.mode == ModePrimary {
		return g.primary
	}
	return g.fallback
}

func (g *Gateway) SaveRaw(ctx context.Context, t types.Transcript) error {
	return g.save(ctx, KindRaw, t.TranscriptID, func(s Store) error {
		return s.InsertRaw(ctx, t)
	})
}

func (g *Gateway) SaveProcessed(ctx context.Context, r types.ProcessedResult) error {
	return g.save(ctx, KindProcessed, r.TranscriptID, func(s Store) error {
		return s.InsertProcessed(ctx, r)
	})
}

func (g *Gateway) SaveError(ctx context.Context, e types.ErrorRecord) error {
	return g.save(ctx, KindErrors, e.TranscriptID, func(s Store) error {
		return s.InsertError(ctx, e)
	})
}

func (g *Gateway) save(ctx context.Context, kind, transcriptID string, write func(Store) error) error {
	log := g.log.WithFields(logrus.Fields{"kind": kind, "transcript_id": transcriptID})

	var primaryErr error
	if g.mode == ModePrimary {
		primaryErr = write(g.primary)
		g.m.StorageWrites.WithLabelValues(g.primary.Name(), kind, metrics.ResultLabel(primaryErr)).Inc()
		if primaryErr == nil {
			log.WithField("backend", g.primary.Name()).Debug("record saved")
			return nil
		}
		log.WithError(primaryErr).Warn("primary write failed, writing to fallback")
	}

	err := write(g.fallback)
	g.m.StorageWrites.WithLabelValues(g.fallback.Name(), kind, metrics.ResultLabel(err)).Inc()
	if err == nil {
		log.WithField("backend", g.fallback.Name()).Debug("record saved")
		return nil
	}
	log.WithError(err).Error("fallback write failed")
	return fmt.Errorf("%w: %w", ErrNoBackend, errors.Join(primaryErr, err))
}

// Counts reports record counts. In primary mode records that fell through
// to the file store are added to the primary's counts.
func (g *Gateway) Counts(ctx context.Context) (Counts, error) {
	c, err := g.Active().Counts(ctx)
	if err != nil || g.mode == ModeFallback {
		return c, err
	}
	fc, err := g.fallback.Counts(ctx)
	if err != nil {
		return c, fmt.Errorf("fallback counts: %w", err)
	}
	c.Raw += fc.Raw
	c.Processed += fc.Processed
	c.Errors += fc.Errors
	return c, nil
}

func (g *Gateway) Close(ctx context.Context) error {
	var errs []error
	if g.primary != nil {
		errs = append(errs, g.primary.Close(ctx))
	}
	errs = append(errs, g.fallback.Close(ctx))
	return errors.Join(errs...)
}
