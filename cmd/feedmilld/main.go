package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"feedmill/internal/config"
	"feedmill/internal/daemon"
	"feedmill/internal/feed"
	"feedmill/internal/ingest"
	"feedmill/internal/jobs"
	"feedmill/internal/logging"
	"feedmill/internal/preflight"
	"feedmill/internal/queue"
	"feedmill/internal/rawfeed"
	"feedmill/internal/runs"
	"feedmill/internal/scheduler"
	"feedmill/internal/store"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, _, _, err := config.Load("")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		log.Fatalf("create directories: %v", err)
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	failed := false
	for _, result := range preflight.RunAll(ctx, cfg) {
		if result.Passed {
			logger.Info("preflight check passed",
				logging.String("check", result.Name),
				logging.String("detail", result.Detail),
			)
			continue
		}
		failed = true
		logger.Error("preflight check failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
			logging.String(logging.FieldErrorHint, "fix the reported issue and restart the daemon"),
		)
	}
	if failed {
		os.Exit(1)
	}

	db, err := store.Open(cfg)
	if err != nil {
		logger.Error("open store", logging.Error(err))
		os.Exit(1)
	}

	jobStore := jobs.NewStore(db)
	runStore := runs.NewStore(db)
	queueStore := queue.NewStore(db, cfg.Ingest.MaxAttempts, time.Duration(cfg.Ingest.RetryBackoffSeconds)*time.Second)
	rawStore := rawfeed.NewStore(db)

	fetcher := feed.NewFetcher(nil, cfg.Ingest.UserAgent, time.Duration(cfg.Ingest.FetchTimeout)*time.Second)
	service := ingest.NewService(cfg, logging.NewComponentLogger(logger, "ingest"), fetcher, runStore, queueStore, rawStore)
	evaluator := ingest.NewEvaluator(runStore, queueStore, logging.NewComponentLogger(logger, "evaluator"))
	pool := ingest.NewPool(cfg, db, jobStore, runStore, queueStore, evaluator, logging.NewComponentLogger(logger, "worker"))
	sched := scheduler.New(cfg, service, logging.NewComponentLogger(logger, "scheduler"))

	d, err := daemon.New(cfg, db, logger, service, pool, sched, jobStore, runStore, queueStore, rawStore, evaluator)
	if err != nil {
		logger.Error("create daemon", logging.Error(err))
		_ = db.Close()
		os.Exit(1)
	}
	defer d.Close()

	if err := d.Start(ctx); err != nil {
		logger.Error("start daemon", logging.Error(err))
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("feedmilld shutting down")
	d.Stop()
}
