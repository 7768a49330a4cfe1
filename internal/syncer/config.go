package syncer

import (
	"errors"
	"time"

	"github.com/roach88/realmsync/internal/queryir"
)

// Config tunes a pipeline.
type Config struct {
	// Resync pulls a full snapshot before opening the push channel.
	Resync bool
	// ResyncFilter restricts the snapshot. Empty means every entity.
	ResyncFilter []queryir.Fragment
	// FetchConcurrency bounds in-flight pulls.
	FetchConcurrency int
	Retry            RetryPolicy
}

// RetryPolicy bounds pull retries.
type RetryPolicy struct {
	MaxTries        uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultConfig returns the settings used when none are given.
func DefaultConfig() Config {
	return Config{
		Resync:           true,
		FetchConcurrency: 8,
		Retry: RetryPolicy{
			MaxTries:        4,
			InitialInterval: 100 * time.Millisecond,
			MaxInterval:     2 * time.Second,
		},
	}
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if c.FetchConcurrency < 1 {
		return errors.New("fetch concurrency must be at least 1")
	}
	if c.Retry.MaxTries < 1 {
		return errors.New("retry max tries must be at least 1")
	}
	if c.Retry.InitialInterval <= 0 || c.Retry.MaxInterval < c.Retry.InitialInterval {
		return errors.New("retry intervals must be positive with max >= initial")
	}
	if len(c.ResyncFilter) > 0 {
		if res := queryir.Validate(c.ResyncFilter); !res.OK() {
			return errors.New("resync filter: " + res.Problems[0].String())
		}
	}
	return nil
}
