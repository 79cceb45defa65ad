// Copyright (C) 2025 Ridgeline AI (engineering@ridgelineai.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package orchestrator assembles and runs the supplement service: LLM
// clients, vision cache, pipeline scheduler, job manager, job store,
// HTTP routing, and observability infrastructure.
//
// # Usage
//
//	cfg, err := config.Load(path)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	svc, err := orchestrator.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	log.Fatal(svc.Run())
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/ridgelineai/ridgeline/services/llm"
	"github.com/ridgelineai/ridgeline/services/orchestrator/agents"
	"github.com/ridgelineai/ridgeline/services/orchestrator/config"
	"github.com/ridgelineai/ridgeline/services/orchestrator/observability"
	"github.com/ridgelineai/ridgeline/services/orchestrator/pipeline"
	"github.com/ridgelineai/ridgeline/services/orchestrator/routes"
	"github.com/ridgelineai/ridgeline/services/orchestrator/store"
	"github.com/ridgelineai/ridgeline/services/orchestrator/viscache"
	"github.com/ridgelineai/ridgeline/services/tools"
)

// Service is the orchestrator lifecycle contract. Run blocks until
// shutdown; Router exposes the configured engine for integration tests.
type Service interface {
	Run() error
	Router() *gin.Engine
}

type service struct {
	cfg           config.Config
	router        *gin.Engine
	jobs          *store.JobStore
	manager       *pipeline.Manager
	cache         viscache.Cache
	renderer      tools.Renderer
	tracerCleanup func(context.Context)
}

var _ Service = (*service)(nil)

// New initializes all orchestrator components from cfg.
func New(cfg config.Config) (Service, error) {
	s := &service{cfg: cfg}

	cleanup, err := s.initTracer()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}
	s.tracerCleanup = cleanup

	if cfg.Observability.EnableMetrics {
		observability.InitMetrics()
		slog.Info("Initialized Prometheus metrics")
	}

	if err := s.initCache(); err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to initialize vision cache: %w", err)
	}

	sched, err := s.buildScheduler()
	if err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to build pipeline: %w", err)
	}

	s.jobs = store.NewJobStore()
	s.manager = pipeline.NewManager(sched, s.jobs, s.limits(), slog.Default())
	s.initRouter()
	return s, nil
}

// Run starts the HTTP server and blocks until a shutdown signal or a
// fatal server error. In-flight requests get a grace period to finish.
func (s *service) Run() error {
	defer s.cleanup()

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", s.cfg.Server.Port),
		Handler: s.router,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Starting orchestrator server", "port", s.cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("Shutdown signal received, draining requests")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// Router returns the underlying Gin engine for testing.
func (s *service) Router() *gin.Engine {
	return s.router
}

// =============================================================================
// Initialization
// =============================================================================

func (s *service) limits() pipeline.Limits {
	return pipeline.Limits{
		MaxReviewCycles:   s.cfg.Pipeline.MaxReviewCycles,
		MaxRerunsPerAgent: s.cfg.Pipeline.MaxRerunsPerAgent,
		MaxTotalLLMCalls:  s.cfg.Pipeline.MaxTotalLLMCalls,
		PhotoTimeout:      time.Duration(s.cfg.Pipeline.PhotoTimeout),
		JobTimeout:        time.Duration(s.cfg.Pipeline.JobTimeout),
	}.Normalize()
}

// initTracer sets up the OTLP trace exporter over insecure gRPC,
// appropriate for the internal collector network.
func (s *service) initTracer() (func(context.Context), error) {
	ctx := context.Background()

	conn, err := grpc.NewClient(s.cfg.Observability.OTelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection: %w", err)
	}
	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("supplement-orchestrator")))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))

	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	cleanup := func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}
	return cleanup, nil
}

func (s *service) initCache() error {
	switch s.cfg.Cache.Backend {
	case "", "badger":
		cache, err := viscache.NewBadgerCache(viscache.DefaultBadgerConfig(s.cfg.Cache.Dir))
		if err != nil {
			return err
		}
		s.cache = cache
		slog.Info("Vision cache initialized", "backend", "badger", "dir", s.cfg.Cache.Dir)
	case "badger-memory":
		cache, err := viscache.NewBadgerCache(viscache.InMemoryBadgerConfig())
		if err != nil {
			return err
		}
		s.cache = cache
		slog.Info("Vision cache initialized", "backend", "badger-memory")
	case "memory":
		s.cache = viscache.NewMemoryCache()
		slog.Info("Vision cache initialized", "backend", "memory")
	default:
		return fmt.Errorf("unknown cache backend %q", s.cfg.Cache.Backend)
	}
	return nil
}

// newClient builds one provider client. model and baseURL may be empty;
// the providers fall back to their defaults.
func newClient(provider, model, baseURL string) (llm.Client, error) {
	switch provider {
	case "anthropic", "claude":
		return llm.NewAnthropicClient(llm.AnthropicConfig{Model: model, BaseURL: baseURL})
	case "openai":
		return llm.NewOpenAIClient(llm.OpenAIConfig{Model: model, BaseURL: baseURL})
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", provider)
	}
}

func (s *service) buildScheduler() (*pipeline.Scheduler, error) {
	textClient, err := newClient(s.cfg.LLM.Provider, s.cfg.LLM.Model, s.cfg.LLM.BaseURL)
	if err != nil {
		return nil, err
	}

	vision, err := s.buildVision()
	if err != nil {
		return nil, err
	}

	var codes tools.CodeLookup
	if s.cfg.Tools.CodeLookupURL != "" {
		codes = tools.NewHTTPCodeLookup(s.cfg.Tools.CodeLookupURL)
		slog.Info("Code lookup service configured", "url", s.cfg.Tools.CodeLookupURL)
	}
	if s.cfg.Tools.GotenbergURL != "" {
		s.renderer = tools.NewHTTPRenderer(s.cfg.Tools.GotenbergURL)
		slog.Info("PDF renderer configured", "url", s.cfg.Tools.GotenbergURL)
	}

	return pipeline.NewScheduler(pipeline.SchedulerConfig{
		Agents: pipeline.Agents{
			Estimate:   agents.NewEstimateAgent(textClient),
			Gap:        agents.NewGapAgent(textClient),
			Strategist: agents.NewStrategistAgent(textClient, codes, slog.Default()),
			Review:     agents.NewReviewAgent(textClient),
			Report:     agents.NewReportAgent(textClient),
		},
		Vision:    vision,
		Cache:     s.cache,
		Extractor: tools.NewPDFExtractor(),
		Renderer:  s.renderer,
		Limits:    s.limits(),
		Logger:    slog.Default(),
	})
}

// buildVision constructs the configured vision framework. The parallel
// aggregate framework always spans both providers.
func (s *service) buildVision() (pipeline.VisionAnalyzer, error) {
	switch s.cfg.LLM.VisionFramework {
	case "", agents.FrameworkSingleModel:
		client, err := newClient(s.cfg.LLM.Provider, s.cfg.LLM.VisionModel, s.cfg.LLM.BaseURL)
		if err != nil {
			return nil, err
		}
		return agents.NewSingleModelVision(client), nil
	case agents.FrameworkParallelAggregate:
		anthropicClient, err := llm.NewAnthropicClient(llm.AnthropicConfig{Model: s.cfg.LLM.VisionModel})
		if err != nil {
			return nil, err
		}
		openaiClient, err := llm.NewOpenAIClient(llm.OpenAIConfig{})
		if err != nil {
			return nil, err
		}
		return agents.NewParallelAggregateVision(map[string]llm.Client{
			"anthropic": anthropicClient,
			"openai":    openaiClient,
		})
	default:
		return nil, fmt.Errorf("unknown vision framework %q", s.cfg.LLM.VisionFramework)
	}
}

func (s *service) initRouter() {
	if s.cfg.Server.Mode != "" {
		gin.SetMode(s.cfg.Server.Mode)
	}
	s.router = gin.Default()
	s.router.Use(otelgin.Middleware("supplement-orchestrator"))

	routes.SetupRoutes(s.router, s.jobs, s.manager, s.renderer, s.cfg.Server.APIKey)
}

func (s *service) cleanup() {
	if s.cache != nil {
		if err := s.cache.Close(); err != nil {
			slog.Warn("vision cache close error", "error", err)
		}
	}
	if s.tracerCleanup != nil {
		s.tracerCleanup(context.Background())
	}
}
