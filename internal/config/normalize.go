package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeIngest()
	c.normalizeFeeds()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	return nil
}

func (c *Config) normalizeIngest() {
	if c.Ingest.BatchSize <= 0 {
		c.Ingest.BatchSize = defaultBatchSize
	}
	if c.Ingest.WorkerCount <= 0 {
		c.Ingest.WorkerCount = defaultWorkerCount
	}
	if c.Ingest.FetchTimeout <= 0 {
		c.Ingest.FetchTimeout = defaultFetchTimeout
	}
	if c.Ingest.MaxAttempts <= 0 {
		c.Ingest.MaxAttempts = defaultMaxAttempts
	}
	if c.Ingest.RetryBackoffSeconds <= 0 {
		c.Ingest.RetryBackoffSeconds = defaultRetryBackoffSeconds
	}
	if strings.TrimSpace(c.Ingest.UserAgent) == "" {
		c.Ingest.UserAgent = defaultUserAgent
	}
}

func (c *Config) normalizeFeeds() {
	urls := make([]string, 0, len(c.Feeds.URLs))
	for _, raw := range c.Feeds.URLs {
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" {
			continue
		}
		urls = append(urls, trimmed)
	}
	c.Feeds.URLs = urls
	if c.Feeds.IntervalMinutes <= 0 {
		c.Feeds.IntervalMinutes = defaultFeedInterval
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays <= 0 {
		c.Logging.RetentionDays = defaultLogRetentionDays
	}
}
