package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/nsqio/go-nsq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/taskman/taskman/internal/auth"
	"github.com/taskman/taskman/internal/bus"
	"github.com/taskman/taskman/internal/config"
	"github.com/taskman/taskman/internal/db"
	"github.com/taskman/taskman/internal/event"
	"github.com/taskman/taskman/internal/health"
	"github.com/taskman/taskman/internal/logging"
	"github.com/taskman/taskman/internal/metrics"
	"github.com/taskman/taskman/internal/project"
	"github.com/taskman/taskman/internal/sweep"
	"github.com/taskman/taskman/internal/tracing"
)

const serviceName = "projectd"

func main() {
	cfg := config.FromEnv(serviceName, ":8082")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := logging.New(serviceName)

	shutdownTracing, err := tracing.InitTracing(ctx, serviceName)
	if err != nil {
		logger.Plain().WithError(err).Fatal("failed to initialize tracing")
	}
	defer shutdownTracing()

	pool, err := db.Connect(ctx, cfg.DSN())
	if err != nil {
		logger.Plain().WithError(err).Fatal("db connect failed")
	}
	defer pool.Close()

	store, err := project.NewPGStore(ctx, pool)
	if err != nil {
		logger.Plain().WithError(err).Fatal("project store bootstrap failed")
	}

	producer, err := nsq.NewProducer(cfg.NSQ.NsqdTCPAddr, nsq.NewConfig())
	if err != nil {
		logger.Plain().WithError(err).Fatal("nsq producer creation failed")
	}
	defer producer.Stop()

	events := project.NewProducer(producer, store)

	// The derive strategy absorbs duplicate and out-of-order deliveries;
	// "delta" is the naive counter kept around for comparison.
	applier := project.NewApplier(os.Getenv("COUNTER_STRATEGY"), store)
	consumer := project.NewTaskConsumer(store, applier, events)
	taskEvents, err := bus.NewConsumer(event.TopicTaskEvents, project.Channel, cfg.NSQ.MaxInFlight, consumer.Handle)
	if err != nil {
		logger.Plain().WithError(err).Fatal("task events consumer creation failed")
	}
	if err := taskEvents.Connect(cfg.NSQ.NsqdTCPAddr, cfg.NSQ.LookupHTTPAddr); err != nil {
		logger.Plain().WithError(err).Fatal("task events consumer connect failed")
	}
	defer taskEvents.Stop()

	sweeper := project.NewSweeper(store, events, cfg.Sweep.ApproachDays)
	runner := sweep.NewRunner(serviceName, cfg.Sweep.Interval, cfg.Sweep.StartDelay, sweeper.Sweep)
	go runner.Run(ctx)

	reg := prometheus.NewRegistry()
	metrics.MustRegister(reg)

	authSvc := auth.NewService(cfg.Auth.Secret, cfg.Auth.SystemIssuer, cfg.Auth.TokenTTL)
	r := chi.NewRouter()
	r.Use(authSvc.Middleware)
	r.Get("/healthz", health.HTTPHandler(serviceName, pool))
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	project.NewHandler(store, events).Routes(r)

	srv := &http.Server{
		Addr:              cfg.HTTPPort,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Plain().WithField("addr", srv.Addr).Info("project service starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Plain().WithError(err).Fatal("http server failed")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Plain().Info("shutting down")

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
}
