package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/bracketlab/webhook-relay/config"
	"github.com/bracketlab/webhook-relay/delivery"
	"github.com/bracketlab/webhook-relay/delivery/breaker"
	"github.com/bracketlab/webhook-relay/endpoints"
	chihandlers "github.com/bracketlab/webhook-relay/internal/http/chi"
	"github.com/bracketlab/webhook-relay/metrics"
)

const TIMEOUT = 30 * time.Second

func main() {
	cfg, err := config.GetConfig()
	if err != nil {
		fmt.Println(err)
		return
	}
	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT,
	)
	defer stop()

	log := zerolog.New(os.Stderr).With().Timestamp().Str("service", "webhook-relay").Logger()

	loader := endpoints.NewLoader()
	if err := loader.Load(cfg.EndpointsFile); err != nil {
		fmt.Println(err)
		return
	}

	otelRecorder, err := metrics.NewOTelRecorder()
	if err != nil {
		fmt.Println(err)
		return
	}
	defer func() {
		// the signal context is already cancelled here; give the flush
		// its own deadline
		flushCtx, cancel := context.WithTimeout(context.Background(), TIMEOUT)
		defer cancel()
		_ = otelRecorder.Shutdown(flushCtx)
	}()

	recorder := metrics.Recorder(otelRecorder)
	var history *metrics.History
	if cfg.RedisAddr != "" {
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer client.Close()
		history = metrics.NewHistory(client, 100, 24*time.Hour, log)
		recorder = metrics.Fanout{otelRecorder, history}
	}

	registry := breaker.NewRegistry(breaker.Settings{
		FailureWindow:    cfg.GetFailureWindow(),
		FailureThreshold: cfg.BreakerFailureThreshold,
		Cooldown:         cfg.GetCooldown(),
	})
	registry.OnStateChange(func(endpoint string, from, to breaker.State) {
		recorder.SetCircuitState(endpoint, to.String())
		if to == breaker.Open {
			recorder.RecordCircuitOpen(endpoint)
		}
	})

	fleet := delivery.NewFleet(loader, cfg, registry, recorder, log)

	r := chihandlers.Handlers(ctx, fleet, loader, registry, cfg, history, otelRecorder.ServeHTTP())
	srv := &http.Server{
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2 * time.Minute, // deliveries retry with multi-second backoff
		Addr:         ":" + cfg.Port,
		Handler:      r,
	}

	errShutdown := make(chan error, 1)
	go shutdown(srv, ctx, errShutdown)
	fmt.Printf("Listening on port %s\n", cfg.Port)
	err = srv.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		fmt.Println(err)
		return
	}
	err = <-errShutdown
	if err != nil {
		fmt.Println(err)
		return
	}
}

func shutdown(server *http.Server, ctxShutdown context.Context, errShutdown chan error) {
	<-ctxShutdown.Done()

	ctxTimeout, stop := context.WithTimeout(context.Background(), TIMEOUT)
	defer stop()

	err := server.Shutdown(ctxTimeout)
	switch err {
	case nil:
		fmt.Printf("\nShutting down server...\n")
		errShutdown <- nil
	case context.DeadlineExceeded:
		errShutdown <- fmt.Errorf("forcing closing the server")
	default:
		errShutdown <- fmt.Errorf("forcing closing the server")
	}
}
