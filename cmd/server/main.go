package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/rs/cors"

	"tubevault/internal/application/cleanup"
	"tubevault/internal/application/queue"
	"tubevault/internal/config"
	"tubevault/internal/infrastructure/filesystem"
	"tubevault/internal/infrastructure/ytdlp"
	httptransport "tubevault/internal/transport/http"
)

func main() {
	cfg, err := config.Load(config.Path())
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	logger := log.Default()

	store := filesystem.NewStore(cfg.StorageRoot)
	if err := store.EnsureRoot(); err != nil {
		log.Fatalf("storage init failed: %v", err)
	}

	extractor := ytdlp.NewClient(time.Duration(cfg.MetadataTimeoutSeconds)*time.Second, logger)

	registry := queue.NewRegistry(cfg.HistoryLimit)
	opts := queue.Options{
		HourlySubmissionCap: cfg.HourlySubmissionCap,
		MaxActivePerOwner:   cfg.MaxActivePerOwner,
		MaxFileSize:         int64(cfg.MaxFileSizeMB) * 1024 * 1024,
		MetadataTimeout:     time.Duration(cfg.MetadataTimeoutSeconds) * time.Second,
		PollInterval:        time.Duration(cfg.WorkerPollMillis) * time.Millisecond,
	}
	queueService := queue.NewService(registry, extractor, store, logger, opts)
	worker := queue.NewWorker(registry, extractor, store, logger, opts, queueService.Wake())

	cleanupService := cleanup.NewService(
		cfg.StorageRoot,
		time.Duration(cfg.MaxFileAgeHours)*time.Hour,
		int64(cfg.StorageBudgetMB)*1024*1024,
		time.Duration(cfg.CleanupIntervalMinutes)*time.Minute,
		logger,
	)

	ctx := context.Background()
	go worker.Run(ctx)
	go cleanupService.Run(ctx)

	handler := httptransport.NewHandler(queueService, store, cleanupService, cfg.DeleteAfterServe)
	router := httptransport.NewRouter(handler)

	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
	})

	log.Printf("Server started on %s", cfg.ServerAddr)
	log.Fatal(http.ListenAndServe(cfg.ServerAddr, c.Handler(router)))
}
