// Package monitor serves record counts, queue state and Prometheus metrics.
package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"calllive-pipeline-go/internal/logger"
	"calllive-pipeline-go/internal/pipeline"
	"calllive-pipeline-go/internal/storage"
)

// Counter reports persisted record counts. *storage.Gateway implements it.
type Counter interface {
	Counts(ctx context.Context) (storage.Counts, error)
}

// QueueReporter reports the live queue. *pipeline.Pipeline implements it.
type QueueReporter interface {
	QueueStats() pipeline.QueueStats
}

type Server struct {
	addr    string
	counts  Counter
	queue   QueueReporter
	mode    string
	metrics prometheus.Gatherer
	log     *logger.Logger
	handler http.Handler
}

// New builds the monitor. queue may be nil when no pipeline is running;
// gatherer is the registry the pipeline metrics were registered with.
func New(addr string, counts Counter, queue QueueReporter, storageMode string, gatherer prometheus.Gatherer, log *logger.Logger) *Server {
	if gatherer == nil {
		gatherer = prometheus.NewRegistry()
	}
	s := &Server{addr: addr, counts: counts, queue: queue, mode: storageMode, metrics: gatherer, log: log}
	s.handler = s.routes()
	return s
}

func (s *Server) Handler() http.Handler { return s.handler }

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", s.healthz)
	r.Handle("/metrics", promhttp.HandlerFor(s.metrics, promhttp.HandlerOpts{}))

	r.Route("/monitor", func(r chi.Router) {
		r.Get("/raw_count", s.countHandler(func(c storage.Counts) any {
			return map[string]int64{"raw_count": c.Raw}
		}))
		r.Get("/processed_count", s.countHandler(func(c storage.Counts) any {
			return map[string]int64{"processed_count": c.Processed}
		}))
		r.Get("/pending", s.countHandler(func(c storage.Counts) any {
			return map[string]int64{"pending_count": c.Pending()}
		}))
		r.Get("/errors", s.countHandler(func(c storage.Counts) any {
			return map[string]int64{"error_count": c.Errors}
		}))
		r.Get("/queue", s.queueStats)
	})
	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.WithRequest(r).WithField("duration_ms", time.Since(start).Milliseconds()).Debug("monitor request")
	})
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "storage": s.mode})
}

func (s *Server) countHandler(view func(storage.Counts) any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := s.counts.Counts(r.Context())
		if err != nil {
			s.log.WithRequest(r).WithError(err).Error("count failed")
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, view(c))
	}
}

func (s *Server) queueStats(w http.ResponseWriter, r *http.Request) {
	if s.queue == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "pipeline not running"})
		return
	}
	writeJSON(w, http.StatusOK, s.queue.QueueStats())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.addr,
		Handler:      s.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", s.addr).Info("monitor listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}
