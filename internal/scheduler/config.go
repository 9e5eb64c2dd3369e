package scheduler

import "time"

// Config controls sweep intervals, batch sizes and the notes-retention
// horizon.
type Config struct {
	RunInterval     time.Duration
	ExpireBatchSize int
	OrphanBatchSize int
	ScrubBatchSize  int
	NotesRetention  time.Duration
	JobTimeout      time.Duration
}

func DefaultConfig() Config {
	return Config{
		RunInterval:     time.Minute,
		ExpireBatchSize: 50,
		OrphanBatchSize: 100,
		ScrubBatchSize:  100,
		NotesRetention:  90 * 24 * time.Hour,
		JobTimeout:      30 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.ExpireBatchSize <= 0 {
		c.ExpireBatchSize = defaults.ExpireBatchSize
	}
	if c.OrphanBatchSize <= 0 {
		c.OrphanBatchSize = defaults.OrphanBatchSize
	}
	if c.ScrubBatchSize <= 0 {
		c.ScrubBatchSize = defaults.ScrubBatchSize
	}
	if c.NotesRetention <= 0 {
		c.NotesRetention = defaults.NotesRetention
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	return c
}
