package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"calllive-pipeline-go/internal/config"
	"calllive-pipeline-go/internal/enrich"
	"calllive-pipeline-go/internal/events"
	"calllive-pipeline-go/internal/llm"
	"calllive-pipeline-go/internal/logger"
	"calllive-pipeline-go/internal/metrics"
	"calllive-pipeline-go/internal/monitor"
	"calllive-pipeline-go/internal/pipeline"
	"calllive-pipeline-go/internal/queue"
	"calllive-pipeline-go/internal/rabbit"
	"calllive-pipeline-go/internal/ratelimit"
	"calllive-pipeline-go/internal/storage"
	"calllive-pipeline-go/internal/transport"
	"calllive-pipeline-go/internal/types"
)

func main() {
	configPath := flag.String("config", "", "optional YAML config file")
	flag.Parse()

	log := logger.New()
	log.WithField("service", "calllive-pipeline").Info("starting service")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.WithError(err).Fatal("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		log.WithError(err).Fatal("invalid config")
	}

	if err := run(cfg, log); err != nil {
		log.WithError(err).Error("pipeline exited with error")
		os.Exit(1)
	}
	log.Info("shutdown complete")
}

func run(cfg *config.Config, log *logger.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(reg)

	var (
		src   pipeline.Source
		sinks pipeline.FanOut
	)
	api := transport.NewClient(cfg.BaseURL, cfg.APIKey, log.WithComponent("calllive"))
	switch cfg.Source {
	case config.SourceAMQP:
		src = rabbit.NewSource(cfg.AMQPURL, cfg.AMQPQueue, cfg.WorkerCount, log.WithComponent("amqp"))
	default:
		src = api
	}
	if cfg.APIKey != "" {
		if h, err := api.Health(ctx); err != nil {
			log.WithError(err).Warn("CallLive health check failed")
		} else {
			log.WithField("status", h.Status).Info("CallLive API reachable")
		}
		if err := api.Authenticate(ctx); err != nil {
			return fmt.Errorf("authentication failed: %w", err)
		}
		sinks = append(sinks, api)
	}

	store, err := storage.Open(ctx, storage.Options{
		MongoURI:      cfg.MongoURI,
		MongoDatabase: cfg.MongoDatabase,
		FallbackDir:   cfg.FallbackDir,
		ProbeTimeout:  cfg.StorageProbeTimeout,
		Metrics:       m,
	}, log.WithComponent("storage"))
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer func() {
		if err := store.Close(context.Background()); err != nil {
			log.WithError(err).Warn("storage close failed")
		}
	}()

	var completer enrich.Completer
	if !cfg.UseMockLLM {
		client, err := llm.NewClient(llm.Config{
			GatewayURL:   cfg.LLMGatewayURL,
			APIKey:       cfg.LLMAPIKey,
			Model:        cfg.LLMModel,
			Timeout:      cfg.LLMTimeout,
			MaxRetryTime: cfg.LLMMaxRetryTime,
		}, log.WithComponent("llm"))
		if err != nil {
			return fmt.Errorf("build LLM client: %w", err)
		}
		completer = client
	}
	stages := enrich.NewStages(cfg.UseMockLLM, completer, m, log.WithComponent("enrich"))

	publisher := events.New(events.Config{
		Brokers: cfg.KafkaBrokers,
		Topic:   cfg.KafkaTopic,
		Enabled: cfg.KafkaEnabled,
	}, log.WithComponent("kafka"))
	defer publisher.Close()
	if publisher.Enabled() {
		sinks = append(sinks, publisher)
	}
	if len(sinks) == 0 {
		return errors.New("no result sink configured: set CALLLIVE_API_KEY or KAFKA_ENABLED")
	}

	limiter := ratelimit.New(cfg.RateLimitMaxCalls, cfg.RateLimitPeriod)
	defer limiter.Stop()
	log.WithField("max_calls", limiter.MaxCalls()).WithField("period", cfg.RateLimitPeriod.String()).Info("submission rate limit")

	p, err := pipeline.New(pipeline.Options{
		Workers:     cfg.WorkerCount,
		QueueSize:   cfg.QueueMaxSize,
		QueuePolicy: queue.ParsePolicy(cfg.QueueFullPolicy),
		TurnFormat:  types.ParseTurnFormat(cfg.TurnFormat),
		Stages:      stages,
		Storage:     store,
		Sink:        sinks,
		Limiter:     limiter,
		Metrics:     m,
		Log:         log.WithComponent("pipeline"),
	})
	if err != nil {
		return fmt.Errorf("build pipeline: %w", err)
	}

	go enforceShutdownTimeout(ctx, cfg.ShutdownTimeout, log)

	g, gctx := errgroup.WithContext(ctx)
	monitorCtx, stopMonitor := context.WithCancel(gctx)
	defer stopMonitor()

	if cfg.MonitorAddr != "" {
		mon := monitor.New(cfg.MonitorAddr, store, p, store.Mode().String(), reg, log)
		g.Go(func() error { return mon.Run(monitorCtx) })
	}
	g.Go(func() error {
		defer stopMonitor()
		res, err := p.Run(gctx, src)
		log.WithField("enqueued", res.Enqueued).WithField("drained", res.Drained).Info("pipeline finished")
		if cfg.APIKey != "" {
			if st, serr := api.Stats(context.WithoutCancel(gctx)); serr == nil {
				log.WithField("upstream_processed", st.ProcessedCount).Info("CallLive stats")
			}
		}
		return err
	})

	return g.Wait()
}

// enforceShutdownTimeout exits the process when shutdown outlasts timeout.
func enforceShutdownTimeout(ctx context.Context, timeout time.Duration, log *logger.Logger) {
	if timeout <= 0 {
		return
	}
	<-ctx.Done()
	log.WithField("timeout", timeout.String()).Info("shutdown requested")
	time.Sleep(timeout)
	log.Error("shutdown timed out, abandoning in-flight work")
	os.Exit(1)
}
