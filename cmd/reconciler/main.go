package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/For-The-Greater-Good/pantry-pirate-radio-sub003/modules/reconciler"
	"github.com/For-The-Greater-Good/pantry-pirate-radio-sub003/modules/reconciler/infrastructure/persistence"
	"github.com/For-The-Greater-Good/pantry-pirate-radio-sub003/pkg/configuration"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			log.Println(r)
			debug.PrintStack()
			os.Exit(1)
		}
	}()

	conf := configuration.Use()
	logger := conf.Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	poolCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	pool, err := pgxpool.New(poolCtx, conf.Database.Opts)
	if err != nil {
		log.Fatalf("failed to open database pool: %v", err)
	}
	defer pool.Close()

	if err := persistence.RunMigrations(ctx, pool); err != nil {
		log.Fatalf("failed to run migrations: %v", err)
	}

	module := reconciler.New(pool, conf, logger)

	if conf.Prometheus.Enabled {
		go serveMetrics(conf, pool)
	}

	logger.WithField("workers", conf.Worker.Count).Info("reconciler started")
	if err := module.RunWorkers(ctx); err != nil && ctx.Err() == nil {
		log.Fatalf("worker pool exited: %v", err)
	}
	logger.Info("reconciler stopped")
}

func serveMetrics(conf *configuration.Configuration, pool *pgxpool.Pool) {
	mux := http.NewServeMux()
	mux.Handle(conf.Prometheus.Path, promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := pool.Ping(ctx); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	addr := fmt.Sprintf(":%d", conf.Prometheus.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Printf("metrics server stopped: %v", err)
	}
}
