// Package main starts the Peticionador API server.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/rbarbosa/peticionador/internal/api"
	"github.com/rbarbosa/peticionador/internal/cache"
	"github.com/rbarbosa/peticionador/internal/config"
	"github.com/rbarbosa/peticionador/internal/database"
	"github.com/rbarbosa/peticionador/internal/docstore"
	"github.com/rbarbosa/peticionador/internal/model"
	"github.com/rbarbosa/peticionador/internal/notify"
	"github.com/rbarbosa/peticionador/internal/petition"
	"github.com/rbarbosa/peticionador/internal/queue"
	"github.com/rbarbosa/peticionador/internal/repository"
	"github.com/rbarbosa/peticionador/internal/retry"
	"github.com/rbarbosa/peticionador/internal/syncqueue"
	"github.com/rbarbosa/peticionador/internal/ws"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	logger, closeLogger := config.SetupLogger(cfg)
	defer func() {
		if err := closeLogger(); err != nil {
			slog.Error("close log file", "error", err)
		}
	}()

	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("connect database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	if err := database.EnsureSchema(ctx, pool); err != nil {
		logger.Error("ensure schema", "error", err)
		os.Exit(1)
	}
	templates := repository.NewTemplateRepository(pool)
	tasks := repository.NewTaskRepository(pool)

	store, err := docstore.New(cfg)
	if err != nil {
		logger.Error("init document store", "error", err)
		os.Exit(1)
	}
	if err := store.EnsureBuckets(ctx); err != nil {
		logger.Error("ensure buckets", "error", err)
		os.Exit(1)
	}

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer asynqClient.Close()
	enqueue := func(ctx context.Context, taskID, templateID string, data model.FormData) error {
		return queue.EnqueueGenerate(ctx, asynqClient, queue.GeneratePayload{
			TaskID:     taskID,
			TemplateID: templateID,
			FormData:   data,
		})
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer rdb.Close()
	events := notify.NewPublisher(rdb, logger)
	sub := notify.NewSubscriber(rdb, logger)

	tplCache := cache.New(cfg.CacheSize, cfg.CacheTTL)
	petitions := petition.NewService(templates, tasks, enqueue, logger)
	syncer := petition.NewSyncer(templates, store, events, tplCache, logger)

	syncPolicy := retry.Policy{
		Base:       cfg.SyncBaseDelay,
		Max:        cfg.SyncMaxDelay,
		MaxRetries: cfg.SyncMaxRetries,
	}
	syncQ := syncqueue.New(func(ctx context.Context, it syncqueue.Item) error {
		return syncer.Sync(ctx, it.TemplateID)
	}, syncPolicy, logger)
	syncQ.OnExhausted = func(it syncqueue.Item, err error) {
		events.Publish(context.Background(), notify.Event{
			Type:       notify.TypeTemplateUpdated,
			TemplateID: it.TemplateID,
			Message:    "sincronização falhou definitivamente: " + err.Error(),
		})
	}
	defer syncQ.Close()

	hub := ws.NewHub(logger)

	srv := api.New(cfg, logger, templates, petitions, syncer, store, syncQ, tplCache, hub, events, sub)
	if err := srv.Run(ctx); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}
