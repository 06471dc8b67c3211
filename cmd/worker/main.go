package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"questmine/internal/bootstrap"
	"questmine/internal/config"
	"questmine/internal/core/domain"
	"questmine/internal/observability/metrics"
)

// pipelineObserver bridges orchestrator measurements onto the worker's
// Prometheus registry.
type pipelineObserver struct {
	metrics *metrics.PipelineMetrics
	service string
}

func (p *pipelineObserver) DocumentStarted() {
	p.metrics.StartDocument()
}

func (p *pipelineObserver) DocumentProcessed(duration time.Duration, err error) {
	p.metrics.FinishDocument(p.service, duration, err)
}

func (p *pipelineObserver) BatchFinished(err error) {
	p.metrics.FinishBatch(p.service, err)
}

func (p *pipelineObserver) OracleCall(duration time.Duration, err error) {
	p.metrics.ObserveOracleCall(p.service, duration, err)
}

func (p *pipelineObserver) ValidationOutcome(rejectionsByRule map[string]int, moved int) {
	for rule, count := range rejectionsByRule {
		p.metrics.RecordRejections(p.service, rule, count)
	}
	p.metrics.RecordMoved(p.service, moved)
}

func main() {
	cfg := config.Load()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, "worker")
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	pipelineMetrics := metrics.NewPipelineMetrics("worker")
	app.Orchestrator.SetObserver(&pipelineObserver{metrics: pipelineMetrics, service: "worker"})

	metricsServer := &http.Server{
		Addr:    ":" + cfg.WorkerMetricsPort,
		Handler: pipelineMetrics.Handler(),
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("worker metrics server error: %v", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	log.Printf("worker subscribed to %s", cfg.NATSSubject)
	err = app.Queue.SubscribeBatches(ctx, func(handlerCtx context.Context, batch domain.Batch) error {
		runCtx, cancel := context.WithTimeout(handlerCtx, 30*time.Minute)
		defer cancel()
		return app.Orchestrator.Run(runCtx, batch)
	})
	if err != nil {
		log.Fatalf("worker subscribe error: %v", err)
	}
}
