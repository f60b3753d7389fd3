package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"feedmill/internal/config"
	"feedmill/internal/ingest"
	"feedmill/internal/logging"
)

// Scheduler triggers periodic imports for every configured feed. A failing
// feed never blocks the rest of the list.
type Scheduler struct {
	cfg     *config.Config
	service *ingest.Service
	logger  *slog.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New wires a scheduler over the intake service.
func New(cfg *config.Config, service *ingest.Service, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Scheduler{cfg: cfg, service: service, logger: logger}
}

// Start begins the periodic trigger. With no configured feeds or a
// non-positive interval the scheduler stays idle.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return errors.New("scheduler already running")
	}
	if len(s.cfg.Feeds.URLs) == 0 || s.cfg.Feeds.IntervalMinutes <= 0 {
		s.logger.Info("scheduler idle: no feeds configured")
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true
	s.wg.Add(1)
	go s.run(runCtx)
	return nil
}

// Stop terminates the trigger loop.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel := s.cancel
	s.running = false
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()
	interval := time.Duration(s.cfg.Feeds.IntervalMinutes) * time.Minute
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.TriggerAll(ctx)
		}
	}
}

// TriggerAll starts an import for every configured feed, continuing past
// per-feed failures.
func (s *Scheduler) TriggerAll(ctx context.Context) {
	for _, feedURL := range s.cfg.Feeds.URLs {
		select {
		case <-ctx.Done():
			return
		default:
		}

		receipt, err := s.service.StartImport(ctx, feedURL)
		if err != nil {
			s.logger.Error("scheduled import failed",
				logging.Error(err),
				logging.String(logging.FieldFeedURL, feedURL),
				logging.String(logging.FieldEventType, "scheduled_import_failed"),
			)
			continue
		}
		s.logger.Info("scheduled import started",
			logging.String(logging.FieldFeedURL, feedURL),
			logging.String(logging.FieldRunID, receipt.RunID),
			logging.Int("total_fetched", receipt.TotalFetched),
		)
	}
}
