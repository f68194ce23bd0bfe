package polling

import (
	"time"

	"github.com/phrazzld/genflow/internal/config"
)

// Config controls the poll schedule.
type Config struct {
	// TickInterval is how often the loop looks for due tasks.
	TickInterval time.Duration

	// InitialDelay is the wait before the first poll of a new task.
	InitialDelay time.Duration

	// MaxDelay caps the delay between polls.
	MaxDelay time.Duration

	// GrowthFactor multiplies the delay after each non-terminal observation.
	GrowthFactor float64

	// MaxRetries bounds non-terminal observations plus transient errors per task.
	MaxRetries int

	// MaxConcurrentPolls bounds the polls running within a single tick.
	MaxConcurrentPolls int

	// PollTimeout bounds a single poll, including finalization.
	PollTimeout time.Duration
}

// DefaultConfig returns the standard schedule: 5s initial delay growing by
// 1.5x to at most 30s, for up to 120 polls.
func DefaultConfig() Config {
	return Config{
		TickInterval:       time.Second,
		InitialDelay:       5 * time.Second,
		MaxDelay:           30 * time.Second,
		GrowthFactor:       1.5,
		MaxRetries:         120,
		MaxConcurrentPolls: 16,
		PollTimeout:        20 * time.Second,
	}
}

// ConfigFromSettings converts loaded application settings.
func ConfigFromSettings(s config.PollingConfig) Config {
	return Config{
		TickInterval:       s.TickInterval,
		InitialDelay:       s.InitialDelay,
		MaxDelay:           s.MaxDelay,
		GrowthFactor:       s.GrowthFactor,
		MaxRetries:         s.MaxRetries,
		MaxConcurrentPolls: s.MaxConcurrentPolls,
		PollTimeout:        s.PollTimeout,
	}
}

// withDefaults fills unset or unusable fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.TickInterval <= 0 {
		c.TickInterval = d.TickInterval
	}
	if c.InitialDelay < 0 {
		c.InitialDelay = d.InitialDelay
	}
	if c.MaxDelay < c.InitialDelay {
		c.MaxDelay = c.InitialDelay
	}
	if c.GrowthFactor < 1 {
		c.GrowthFactor = d.GrowthFactor
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = d.MaxRetries
	}
	if c.MaxConcurrentPolls <= 0 {
		c.MaxConcurrentPolls = d.MaxConcurrentPolls
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = d.PollTimeout
	}
	return c
}

// NextDelay returns the delay that follows current: current grown by
// GrowthFactor and capped at MaxDelay.
func (c Config) NextDelay(current time.Duration) time.Duration {
	next := time.Duration(float64(current) * c.GrowthFactor)
	return min(next, c.MaxDelay)
}
