package libp2p

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Config holds the tunables of a shelf node. Users typically set it
// via Option helpers; zero values fall back to the defaults below.
type Config struct {
	DataDir             string
	AntiEntropyInterval time.Duration
	PeerTTL             time.Duration
	DedupCacheSize      int
	ConnectAttempts     int
	ConnectBackoffBase  time.Duration
	Logger              *zap.Logger
}

func defaultConfig() Config {
	return Config{
		AntiEntropyInterval: 30 * time.Second,
		PeerTTL:             60 * time.Minute,
		DedupCacheSize:      1024,
		ConnectAttempts:     5,
		ConnectBackoffBase:  time.Second,
		Logger:              zap.NewNop(),
	}
}

// Option configures the node on creation.
// Return an error to reject an invalid option value.
type Option func(*Config) error

// WithDataDir sets the directory holding the identity key and the
// library file. Defaults to ~/.goshelf.
func WithDataDir(dir string) Option {
	return func(c *Config) error {
		c.DataDir = dir
		return nil
	}
}

// WithAntiEntropyInterval sets how often the node exchanges catalog
// summaries with a random connected peer.
func WithAntiEntropyInterval(interval time.Duration) Option {
	return func(c *Config) error {
		if interval <= 0 {
			return fmt.Errorf("anti-entropy interval must be positive")
		}
		c.AntiEntropyInterval = interval
		return nil
	}
}

// WithPeerTTL sets how long an unseen peer stays in the directory
// before being pruned.
func WithPeerTTL(ttl time.Duration) Option {
	return func(c *Config) error {
		if ttl <= 0 {
			return fmt.Errorf("peer TTL must be positive")
		}
		c.PeerTTL = ttl
		return nil
	}
}

// WithDedupCacheSize bounds the set of pruned peer ids remembered for
// discovery dedup.
func WithDedupCacheSize(size int) Option {
	return func(c *Config) error {
		if size <= 0 {
			return fmt.Errorf("dedup cache size must be positive")
		}
		c.DedupCacheSize = size
		return nil
	}
}

// WithConnectBackoff sets the initial retry delay and the bounded
// attempt count used when dialing a discovered peer.
func WithConnectBackoff(base time.Duration, attempts int) Option {
	return func(c *Config) error {
		if base <= 0 || attempts <= 0 {
			return fmt.Errorf("connect backoff values must be positive")
		}
		c.ConnectBackoffBase = base
		c.ConnectAttempts = attempts
		return nil
	}
}

// WithLogger sets the logger for background events. CLI feedback is
// printed directly and is not affected.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Config) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		c.Logger = logger
		return nil
	}
}
