package scheduler

import (
	"time"
)

// Config controls maintenance intervals.
type Config struct {
	RunInterval time.Duration
	// RefreshWindow is how far ahead of access-token expiry a proactive
	// refresh kicks in.
	RefreshWindow time.Duration
	JobTimeout    time.Duration
	Enabled       bool
}

func DefaultConfig() Config {
	return Config{
		RunInterval:   5 * time.Minute,
		RefreshWindow: 10 * time.Minute,
		JobTimeout:    time.Minute,
		Enabled:       true,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.RefreshWindow <= 0 {
		c.RefreshWindow = defaults.RefreshWindow
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	return c
}
