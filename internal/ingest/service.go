package ingest

import (
	"context"
	"fmt"
	"log/slog"

	"feedmill/internal/config"
	"feedmill/internal/feed"
	"feedmill/internal/logging"
	"feedmill/internal/queue"
	"feedmill/internal/rawfeed"
	"feedmill/internal/runs"
)

// Receipt summarizes a started import.
type Receipt struct {
	RunID          string `json:"runId"`
	TotalFetched   int    `json:"totalFetched"`
	BatchesCreated int    `json:"batchesCreated"`
}

// Service performs the synchronous intake half of an import: fetch,
// normalize, archive, create the run, and enqueue its partitions. The worker
// pool picks up from there.
type Service struct {
	cfg     *config.Config
	logger  *slog.Logger
	fetcher *feed.Fetcher
	runs    *runs.Store
	queue   *queue.Store
	raw     *rawfeed.Store
}

// NewService wires the intake service.
func NewService(cfg *config.Config, logger *slog.Logger, fetcher *feed.Fetcher, runStore *runs.Store, queueStore *queue.Store, rawStore *rawfeed.Store) *Service {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Service{
		cfg:     cfg,
		logger:  logger,
		fetcher: fetcher,
		runs:    runStore,
		queue:   queueStore,
		raw:     rawStore,
	}
}

// StartImport runs the intake sequence for one feed. A fetch or parse error
// aborts before any run exists. A zero-record feed produces a run that
// completes immediately with no work units. Partitions are enqueued under
// deterministic unit IDs, so re-enqueueing an existing run's partitions
// coalesces instead of double-processing.
func (s *Service) StartImport(ctx context.Context, feedURL string) (*Receipt, error) {
	logger := s.logger.With(logging.String(logging.FieldFeedURL, feedURL))

	payload, err := s.fetcher.Fetch(ctx, feedURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}

	records, err := feed.Normalize(logger, feedURL, payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	if err := s.raw.Save(ctx, feedURL, payload); err != nil {
		logger.Warn("raw feed capture failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "raw_capture_failed"),
		)
	}

	run, err := s.runs.Create(ctx, feedURL, len(records))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}
	logger = logger.With(logging.String(logging.FieldRunID, run.ID))

	if len(records) == 0 {
		if err := s.runs.MarkCompleted(ctx, run.ID); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStore, err)
		}
		logger.Info("import completed with empty feed",
			logging.String(logging.FieldEventType, "import_empty"),
		)
		return &Receipt{RunID: run.ID, TotalFetched: 0, BatchesCreated: 0}, nil
	}

	batches := queue.Partition(records, s.cfg.Ingest.BatchSize)
	created := 0
	for index, batch := range batches {
		inserted, err := s.queue.Enqueue(ctx, run.ID, feedURL, index, batch)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStore, err)
		}
		if inserted {
			created++
		}
	}

	if err := s.runs.MarkProcessing(ctx, run.ID); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}

	logger.Info("import started",
		logging.Int("total_fetched", len(records)),
		logging.Int("batches_created", created),
		logging.String(logging.FieldEventType, "import_started"),
	)
	return &Receipt{RunID: run.ID, TotalFetched: len(records), BatchesCreated: created}, nil
}
