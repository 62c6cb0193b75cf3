package gridcache

import (
	"errors"
	"fmt"
)

// DefaultMaxCacheSize is the entry bound used when none is configured.
const DefaultMaxCacheSize = 1000

var ErrInvalidConfiguration = errors.New("gridcache: invalid configuration")

// Config controls caching. When Enabled is false every operation passes
// straight through to storage with no bookkeeping.
type Config struct {
	Enabled            bool `env:"GRID_CACHE_ENABLED" envDefault:"false"`
	MaxCacheSize       int  `env:"GRID_CACHE_MAX_SIZE" envDefault:"1000"`
	EnableStats        bool `env:"GRID_CACHE_STATS" envDefault:"false"`
	EnableDebugLogging bool `env:"GRID_CACHE_DEBUG" envDefault:"false"`
}

// DefaultConfig returns a disabled cache configuration.
func DefaultConfig() Config {
	return Config{MaxCacheSize: DefaultMaxCacheSize}
}

// Validate rejects a non-positive MaxCacheSize.
func (c Config) Validate() error {
	if c.MaxCacheSize <= 0 {
		return fmt.Errorf("%w: max cache size %d must be positive", ErrInvalidConfiguration, c.MaxCacheSize)
	}
	return nil
}
