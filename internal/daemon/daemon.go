package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/gofrs/flock"

	"feedmill/internal/config"
	"feedmill/internal/ingest"
	"feedmill/internal/jobs"
	"feedmill/internal/logging"
	"feedmill/internal/queue"
	"feedmill/internal/rawfeed"
	"feedmill/internal/runs"
	"feedmill/internal/scheduler"
	"feedmill/internal/store"
)

// Daemon coordinates the background services and enforces single-instance
// execution via a file lock.
type Daemon struct {
	cfg       *config.Config
	logger    *slog.Logger
	db        *store.DB
	jobs      *jobs.Store
	runs      *runs.Store
	queue     *queue.Store
	raw       *rawfeed.Store
	service   *ingest.Service
	evaluator *ingest.Evaluator
	pool      *ingest.Pool
	scheduler *scheduler.Scheduler
	api       *apiServer

	lockPath string
	lock     *flock.Flock

	running     atomic.Bool
	cancel      context.CancelFunc
	maintenance *maintenanceLoop
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	DatabasePath string
	LockFilePath string
	QueueStats   map[queue.Status]int
	RunStats     map[runs.Status]int
	JobCount     int
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, db *store.DB, logger *slog.Logger, service *ingest.Service, pool *ingest.Pool, sched *scheduler.Scheduler, jobStore *jobs.Store, runStore *runs.Store, queueStore *queue.Store, rawStore *rawfeed.Store, evaluator *ingest.Evaluator) (*Daemon, error) {
	if cfg == nil || db == nil || service == nil || pool == nil {
		return nil, errors.New("daemon requires config, store, service, and pool")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	lockPath := filepath.Join(cfg.Paths.LogDir, "feedmilld.lock")
	d := &Daemon{
		cfg:       cfg,
		logger:    logger,
		db:        db,
		jobs:      jobStore,
		runs:      runStore,
		queue:     queueStore,
		raw:       rawStore,
		service:   service,
		evaluator: evaluator,
		pool:      pool,
		scheduler: sched,
		lockPath:  lockPath,
		lock:      flock.New(lockPath),
	}
	d.maintenance = newMaintenanceLoop(d)

	srv, err := newAPIServer(cfg, d, logging.NewComponentLogger(logger, "api"))
	if err != nil {
		return nil, err
	}
	d.api = srv
	return d, nil
}

// Start acquires the instance lock and launches every background service.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another feedmill daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	if err := d.pool.Start(runCtx); err != nil {
		d.releaseStart()
		return fmt.Errorf("start worker pool: %w", err)
	}
	if d.scheduler != nil {
		if err := d.scheduler.Start(runCtx); err != nil {
			d.pool.Stop()
			d.releaseStart()
			return fmt.Errorf("start scheduler: %w", err)
		}
	}
	d.maintenance.start(runCtx)
	if d.api != nil {
		if err := d.api.start(runCtx); err != nil {
			d.maintenance.stop()
			if d.scheduler != nil {
				d.scheduler.Stop()
			}
			d.pool.Stop()
			d.releaseStart()
			return err
		}
	}

	d.running.Store(true)
	d.logger.Info("feedmill daemon started", logging.String("lock", d.lockPath))
	return nil
}

func (d *Daemon) releaseStart() {
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	_ = d.lock.Unlock()
}

// Stop stops background processing and releases the instance lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if d.api != nil {
		d.api.stop()
	}
	d.maintenance.stop()
	if d.scheduler != nil {
		d.scheduler.Stop()
	}
	d.pool.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("feedmill daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.db != nil {
		return d.db.Close()
	}
	return nil
}

// Status reports daemon runtime information.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		DatabasePath: d.db.Path(),
		LockFilePath: d.lockPath,
	}
	if stats, err := d.queue.Stats(ctx); err == nil {
		status.QueueStats = stats
	}
	if stats, err := d.runs.Stats(ctx); err == nil {
		status.RunStats = stats
	}
	if count, err := d.jobs.Count(ctx); err == nil {
		status.JobCount = count
	}
	return status
}
