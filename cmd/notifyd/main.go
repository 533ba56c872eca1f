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
	"github.com/taskman/taskman/internal/notification"
	"github.com/taskman/taskman/internal/tracing"
)

const serviceName = "notifyd"

func main() {
	cfg := config.FromEnv(serviceName, ":8084")
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

	store, err := notification.NewPGStore(ctx, pool)
	if err != nil {
		logger.Plain().WithError(err).Fatal("notification store bootstrap failed")
	}

	registry := notification.NewRegistry()
	svc := notification.NewService(store, registry)
	fanOut := notification.NewConsumer(svc)

	consumers := []struct {
		topic   string
		handler bus.Handler
	}{
		{event.TopicTaskEvents, fanOut.HandleTaskEvent},
		{event.TopicProjectEvents, fanOut.HandleProjectEvent},
		{event.TopicCommentEvents, fanOut.HandleCommentEvent},
	}
	for _, c := range consumers {
		cons, err := bus.NewConsumer(c.topic, notification.Channel, cfg.NSQ.MaxInFlight, c.handler)
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

	authSvc := auth.NewService(cfg.Auth.Secret, cfg.Auth.SystemIssuer, cfg.Auth.TokenTTL)
	r := chi.NewRouter()
	r.Use(authSvc.Middleware)
	r.Get("/healthz", health.HTTPHandler(serviceName, pool))
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	notification.NewHandler(svc, store, registry).Routes(r)

	srv := &http.Server{
		Addr:              cfg.HTTPPort,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Plain().WithField("addr", srv.Addr).Info("notification service starting")
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
