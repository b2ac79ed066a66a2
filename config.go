package bastion

import (
	"time"

	"github.com/xraph/bastion/credential"
	"github.com/xraph/bastion/ratelimit"
	"github.com/xraph/bastion/resolver"
)

// Config holds configuration for the Bastion engine.
type Config struct {
	// CacheTTL is the lifetime of a resolved role permission set.
	// Defaults to 5 minutes.
	CacheTTL time.Duration `json:"cache_ttl,omitempty"`

	// CacheMaxSize bounds the number of cached role sets. Defaults to 10000.
	CacheMaxSize int `json:"cache_max_size,omitempty"`

	// MaxInheritanceDepth is the maximum number of inheritsFrom hops.
	// Defaults to 5.
	MaxInheritanceDepth int `json:"max_inheritance_depth,omitempty"`

	// SecretPrefix marks every issued credential secret. Defaults to "bst_".
	SecretPrefix string `json:"secret_prefix,omitempty"`

	// DisplayPrefixLength is how many leading secret characters are kept
	// for display. Defaults to 12.
	DisplayPrefixLength int `json:"display_prefix_length,omitempty"`

	// DefaultRateLimit is the requests-per-window limit for credentials
	// issued without one. Defaults to 60; negative means unlimited.
	DefaultRateLimit int `json:"default_rate_limit,omitempty"`

	// RateWindow is the fixed rate limit window. Defaults to one minute.
	RateWindow time.Duration `json:"rate_window,omitempty"`

	// CleanupInterval is how often expired credentials are deactivated.
	// Zero disables the background sweep.
	CleanupInterval time.Duration `json:"cleanup_interval,omitempty"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		CacheTTL:            resolver.DefaultCacheTTL,
		CacheMaxSize:        10000,
		MaxInheritanceDepth: resolver.DefaultMaxDepth,
		SecretPrefix:        credential.DefaultSecretPrefix,
		DisplayPrefixLength: credential.DefaultDisplayPrefixLength,
		DefaultRateLimit:    credential.DefaultRateLimit,
		RateWindow:          ratelimit.DefaultWindow,
		CleanupInterval:     time.Hour,
	}
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.CacheTTL <= 0 {
		c.CacheTTL = d.CacheTTL
	}
	if c.CacheMaxSize <= 0 {
		c.CacheMaxSize = d.CacheMaxSize
	}
	if c.MaxInheritanceDepth <= 0 {
		c.MaxInheritanceDepth = d.MaxInheritanceDepth
	}
	if c.SecretPrefix == "" {
		c.SecretPrefix = d.SecretPrefix
	}
	if c.DisplayPrefixLength <= 0 {
		c.DisplayPrefixLength = d.DisplayPrefixLength
	}
	if c.DefaultRateLimit == 0 {
		c.DefaultRateLimit = d.DefaultRateLimit
	}
	if c.RateWindow <= 0 {
		c.RateWindow = d.RateWindow
	}
	return c
}

func (c Config) defaultRateLimit() int {
	if c.DefaultRateLimit < 0 {
		return 0
	}
	return c.DefaultRateLimit
}
