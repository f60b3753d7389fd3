package config

const (
	defaultDataDir             = "~/.local/share/feedmill/data"
	defaultLogDir              = "~/.local/share/feedmill/logs"
	defaultAPIBind             = "127.0.0.1:7311"
	defaultBatchSize           = 200
	defaultWorkerCount         = 10
	defaultFetchTimeout        = 30
	defaultMaxAttempts         = 3
	defaultRetryBackoffSeconds = 2
	defaultUserAgent           = "Mozilla/5.0 (compatible; FeedmillBot/1.0)"
	defaultFeedInterval        = 60
	defaultRawFeedDays         = 7
	defaultCompletedUnitHours  = 24
	defaultFailedUnitDays      = 7
	defaultQueuePollInterval   = 5
	defaultErrorRetryInterval  = 10
	defaultHeartbeatInterval   = 15
	defaultHeartbeatTimeout    = 120
	defaultMaintenanceInterval = 300
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
	defaultLogRetentionDays    = 60
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		Ingest: Ingest{
			BatchSize:           defaultBatchSize,
			WorkerCount:         defaultWorkerCount,
			FetchTimeout:        defaultFetchTimeout,
			MaxAttempts:         defaultMaxAttempts,
			RetryBackoffSeconds: defaultRetryBackoffSeconds,
			UserAgent:           defaultUserAgent,
		},
		Feeds: Feeds{
			IntervalMinutes: defaultFeedInterval,
		},
		Retention: Retention{
			RawFeedDays:        defaultRawFeedDays,
			CompletedUnitHours: defaultCompletedUnitHours,
			FailedUnitDays:     defaultFailedUnitDays,
		},
		Workflow: Workflow{
			QueuePollInterval:   defaultQueuePollInterval,
			ErrorRetryInterval:  defaultErrorRetryInterval,
			HeartbeatInterval:   defaultHeartbeatInterval,
			HeartbeatTimeout:    defaultHeartbeatTimeout,
			MaintenanceInterval: defaultMaintenanceInterval,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
