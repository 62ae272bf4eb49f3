// Package translate turns guest ARM64 instruction streams into IR blocks.
package translate

import (
	"fmt"

	"github.com/mstoykov/envconfig"
	"github.com/sirupsen/logrus"
)

// Config holds the tunables of translation and of the block cache. Every
// field can be set from the environment.
type Config struct {
	// MaxBlockInstructions caps the guest instructions in one block.
	MaxBlockInstructions int `envconfig:"A64DBT_MAX_BLOCK_INSTS"`
	// Trace logs every translated instruction at debug level.
	Trace bool `envconfig:"A64DBT_TRACE"`

	BlockCacheSets int `envconfig:"A64DBT_BLOCK_CACHE_SETS"`
	BlockCacheWays int `envconfig:"A64DBT_BLOCK_CACHE_WAYS"`

	LogLevel string `envconfig:"A64DBT_LOG_LEVEL"`
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() Config {
	return Config{
		MaxBlockInstructions: 64,
		BlockCacheSets:       256,
		BlockCacheWays:       4,
		LogLevel:             "info",
	}
}

// LoadConfig applies environment overrides to the defaults. lookup replaces
// os.LookupEnv when given.
func LoadConfig(lookup ...func(string) (string, bool)) (Config, error) {
	cfg := DefaultConfig()
	if err := envconfig.Process("", &cfg, lookup...); err != nil {
		return cfg, fmt.Errorf("reading configuration: %w", err)
	}
	return cfg, cfg.Validate()
}

// Validate checks the configuration for values translation cannot honor.
func (c Config) Validate() error {
	if c.MaxBlockInstructions < 1 {
		return fmt.Errorf("max block instructions must be positive, got %d", c.MaxBlockInstructions)
	}
	if c.BlockCacheSets < 1 || c.BlockCacheWays < 1 {
		return fmt.Errorf("block cache needs at least one set and way, got %dx%d",
			c.BlockCacheSets, c.BlockCacheWays)
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	return nil
}

// Level returns the configured log level.
func (c Config) Level() logrus.Level {
	lvl, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}
