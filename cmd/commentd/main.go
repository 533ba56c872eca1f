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
	"github.com/taskman/taskman/internal/client"
	"github.com/taskman/taskman/internal/comment"
	"github.com/taskman/taskman/internal/config"
	"github.com/taskman/taskman/internal/db"
	"github.com/taskman/taskman/internal/event"
	"github.com/taskman/taskman/internal/health"
	"github.com/taskman/taskman/internal/logging"
	"github.com/taskman/taskman/internal/metrics"
	"github.com/taskman/taskman/internal/tracing"
)

const serviceName = "commentd"

func main() {
	cfg := config.FromEnv(serviceName, ":8083")
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

	store, err := comment.NewPGStore(ctx, pool)
	if err != nil {
		logger.Plain().WithError(err).Fatal("comment store bootstrap failed")
	}

	producer, err := nsq.NewProducer(cfg.NSQ.NsqdTCPAddr, nsq.NewConfig())
	if err != nil {
		logger.Plain().WithError(err).Fatal("nsq producer creation failed")
	}
	defer producer.Stop()

	authSvc := auth.NewService(cfg.Auth.Secret, cfg.Auth.SystemIssuer, cfg.Auth.TokenTTL)
	tasks := client.NewTaskClient(cfg.Resolution.TaskServiceURL, cfg.Resolution.Timeout, authSvc)
	projects := client.NewProjectClient(cfg.Resolution.ProjectServiceURL, cfg.Resolution.Timeout, authSvc)
	events := comment.NewProducer(producer, tasks, projects, store)

	cascade := comment.NewCascadeConsumer(store)
	consumers := []struct {
		topic   string
		handler bus.Handler
	}{
		{event.TopicTaskEvents, cascade.HandleTaskEvent},
		{event.TopicProjectEvents, cascade.HandleProjectEvent},
		{event.TopicUserEvents, cascade.HandleUserEvent},
	}
	for _, c := range consumers {
		cons, err := bus.NewConsumer(c.topic, comment.Channel, cfg.NSQ.MaxInFlight, c.handler)
		if err != nil {
			logger.Plain().WithField("topic", c.topic).WithError(err).Fatal("consumer creation failed")
		}
		if err := cons.Connect(cfg.NSQ.NsqdTCPAddr, cfg.NSQ.LookupHTTPAddr); err != nil {
			logger.Plain().WithField("topic", c.topic).WithError(err).Fatal("consumer connect failed")
		}
		defer cons.Stop()
	}

	reg := prometheus.NewRegistry()
	metrics.MustRegister(reg)

	r := chi.NewRouter()
	r.Use(authSvc.Middleware)
	r.Get("/healthz", health.HTTPHandler(serviceName, pool))
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	comment.NewHandler(store, events).Routes(r)

	srv := &http.Server{
		Addr:              cfg.HTTPPort,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Plain().WithField("addr", srv.Addr).Info("comment service starting")
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
