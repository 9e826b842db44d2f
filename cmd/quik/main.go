package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/jjiill888/quik/internal/alarm"
	"github.com/jjiill888/quik/internal/api"
	"github.com/jjiill888/quik/internal/cache"
	"github.com/jjiill888/quik/internal/client"
	"github.com/jjiill888/quik/internal/config"
	"github.com/jjiill888/quik/internal/repo"
	"github.com/jjiill888/quik/internal/service"
	"github.com/jjiill888/quik/internal/store"
	"github.com/jjiill888/quik/internal/sweep"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadAll()
	if err != nil {
		log.Fatal(err)
	}

	slog.Info("quik scheduling engine starting",
		"addr", cfg.Server.Address,
		"db", cfg.Database.Path,
		"sweep_interval", cfg.Sweep.Interval.String(),
		"redis", cfg.Redis.Enabled,
	)

	db, err := store.Open(cfg.Database.Path)
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	notifier := store.NewNotifier()
	messages := repo.NewSQLiteMessageRepo(db, notifier)
	groups := repo.NewSQLiteGroupRepo(db, notifier)
	threads := repo.NewSQLiteThreadRepo(db)

	var stats cache.StatsCache
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		stats = cache.NewRedisStatsCache(rdb, cfg.Redis.TTL)

		invalidator := cache.NewInvalidator(notifier, stats)
		defer invalidator.Stop()
	}

	sender := client.NewWebhookClient(cfg.Webhook.URL)
	reconciler := service.NewReconciler(messages, threads, sender)

	alarms := alarm.NewClockAlarms(func(token int64) {
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()
		if err := reconciler.OnFire(ctx, token); err != nil {
			slog.Error("fire-time reconciliation failed", "id", token, "error", err)
		}
	})
	defer alarms.Stop()

	svc := service.NewGroupService(groups, messages, alarms)

	sweeper, err := sweep.New(cfg.Sweep.Interval, svc.RefreshAlarms)
	if err != nil {
		log.Fatal(err)
	}
	sweeper.Start()
	defer sweeper.Stop()

	handler := api.NewHandler(groups, messages, svc, reconciler, sweeper, stats)

	srv := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           loggingMiddleware(api.Router(handler)),
		ReadHeaderTimeout: 5 * time.Second,
	}

	slog.Info("http server listening", "addr", cfg.Server.Address)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal(err)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(rec, r)

		slog.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}
