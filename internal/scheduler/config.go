package scheduler

import (
	"time"

	"github.com/smallbiznis/cableledger/internal/config"
)

// Config is a snapshot of the billing settings the scheduler reads on every run.
type Config struct {
	Schedule    string
	Location    *time.Location
	Concurrency int
	JobTimeout  time.Duration
}

func DefaultConfig() Config {
	return configFrom(config.DefaultBillingConfig())
}

func configFrom(billing config.BillingConfig) Config {
	return Config{
		Schedule:    billing.Schedule,
		Location:    billing.Location(),
		Concurrency: billing.GenerationConcurrency,
		JobTimeout:  billing.JobTimeout,
	}.withDefaults()
}

func (c Config) withDefaults() Config {
	defaults := config.DefaultBillingConfig()
	if c.Schedule == "" {
		c.Schedule = defaults.Schedule
	}
	if c.Location == nil {
		c.Location = defaults.Location()
	}
	if c.Concurrency <= 0 {
		c.Concurrency = defaults.GenerationConcurrency
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	return c
}
