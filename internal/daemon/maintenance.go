package daemon

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"feedmill/internal/jobs"
	"feedmill/internal/logging"
)

// maintenanceLoop runs the periodic housekeeping passes: stale unit
// reclamation, terminal unit garbage collection, raw capture purging, and
// log rotation.
type maintenanceLoop struct {
	d        *Daemon
	interval time.Duration

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func newMaintenanceLoop(d *Daemon) *maintenanceLoop {
	interval := time.Duration(d.cfg.Workflow.MaintenanceInterval) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &maintenanceLoop{d: d, interval: interval}
}

func (m *maintenanceLoop) start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.wg.Add(1)
	go m.run(runCtx)
}

func (m *maintenanceLoop) stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	m.wg.Wait()
}

func (m *maintenanceLoop) run(ctx context.Context) {
	defer m.wg.Done()
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweep(ctx)
		}
	}
}

func (m *maintenanceLoop) sweep(ctx context.Context) {
	d := m.d
	logger := logging.NewComponentLogger(d.logger, "maintenance")

	heartbeatTimeout := time.Duration(d.cfg.Workflow.HeartbeatTimeout) * time.Second
	requeued, failedUnits, err := d.queue.ReclaimStale(ctx, heartbeatTimeout)
	if err != nil {
		logger.Warn("stale unit reclaim failed", logging.Error(err))
	} else {
		if requeued > 0 {
			logger.Info("requeued stale work units", logging.Int("count", requeued))
		}
		for _, unit := range failedUnits {
			m.settleAbandonedUnit(ctx, unit.RunID, unit.Records, unit.ErrorMessage)
		}
	}

	succeededRetention := time.Duration(d.cfg.Retention.CompletedUnitHours) * time.Hour
	failedRetention := time.Duration(d.cfg.Retention.FailedUnitDays) * 24 * time.Hour
	if removed, err := d.queue.Sweep(ctx, succeededRetention, failedRetention); err != nil {
		logger.Warn("queue sweep failed", logging.Error(err))
	} else if removed > 0 {
		logger.Info("swept terminal work units", logging.Int("count", removed))
	}

	rawRetention := time.Duration(d.cfg.Retention.RawFeedDays) * 24 * time.Hour
	if removed, err := d.raw.PurgeOlderThan(ctx, rawRetention); err != nil {
		logger.Warn("raw feed purge failed", logging.Error(err))
	} else if removed > 0 {
		logger.Info("purged raw feed captures", logging.Int("count", removed))
	}

	logging.CleanupOldLogs(logger, d.cfg.Logging.RetentionDays, d.cfg.Paths.LogDir, "*.log",
		filepath.Join(d.cfg.Paths.LogDir, "feedmill.log"))
}

// settleAbandonedUnit records ledger failures for a unit whose worker died
// mid-merge with no attempts left, then re-evaluates the run.
func (m *maintenanceLoop) settleAbandonedUnit(ctx context.Context, runID string, records []jobs.Record, reason string) {
	d := m.d
	if reason == "" {
		reason = "worker stalled past heartbeat timeout"
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		d.logger.Warn("failed to settle abandoned unit", logging.Error(err))
		return
	}
	failures := make([]jobs.Failure, 0, len(records))
	for _, record := range records {
		failures = append(failures, jobs.Failure{ID: record.Identity(), Reason: reason})
	}
	if err := d.runs.AppendFailuresTx(ctx, tx, runID, failures); err != nil {
		_ = tx.Rollback()
		d.logger.Warn("failed to settle abandoned unit", logging.Error(err))
		return
	}
	if err := d.runs.ForceFailedTx(ctx, tx, runID); err != nil {
		_ = tx.Rollback()
		d.logger.Warn("failed to settle abandoned unit", logging.Error(err))
		return
	}
	if err := tx.Commit(); err != nil {
		d.logger.Warn("failed to settle abandoned unit", logging.Error(err))
	}
}
