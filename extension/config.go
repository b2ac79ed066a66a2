package extension

import (
	"time"

	"github.com/xraph/bastion"
)

// Config holds the Bastion extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.bastion" or "bastion" keys).
type Config struct {
	// DisableRoutes prevents HTTP route registration.
	DisableRoutes bool `json:"disable_routes" mapstructure:"disable_routes" yaml:"disable_routes"`

	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// BasePath is the URL prefix for bastion routes. Empty mounts them at
	// the router root.
	BasePath string `json:"base_path" mapstructure:"base_path" yaml:"base_path"`

	// GroveDriver selects the store built over the grove.DB found in the
	// DI container: "postgres", "sqlite" or "mongo". Empty disables the
	// lookup.
	GroveDriver string `json:"grove_driver" mapstructure:"grove_driver" yaml:"grove_driver"`

	// CacheTTL bounds how long resolved permission sets are reused.
	CacheTTL time.Duration `json:"cache_ttl" mapstructure:"cache_ttl" yaml:"cache_ttl"`

	// MaxInheritanceDepth caps custom role chains.
	MaxInheritanceDepth int `json:"max_inheritance_depth" mapstructure:"max_inheritance_depth" yaml:"max_inheritance_depth"`

	// DefaultRateLimit applies to credentials issued without a limit.
	DefaultRateLimit int `json:"default_rate_limit" mapstructure:"default_rate_limit" yaml:"default_rate_limit"`

	// CleanupInterval is the period of the expired credential sweep.
	CleanupInterval time.Duration `json:"cleanup_interval" mapstructure:"cleanup_interval" yaml:"cleanup_interval"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	d := bastion.DefaultConfig()
	return Config{
		CacheTTL:            d.CacheTTL,
		MaxInheritanceDepth: d.MaxInheritanceDepth,
		DefaultRateLimit:    d.DefaultRateLimit,
		CleanupInterval:     d.CleanupInterval,
	}
}

// engineConfig overlays the non-zero engine settings on the engine defaults.
func (c Config) engineConfig() bastion.Config {
	out := bastion.DefaultConfig()
	if c.CacheTTL > 0 {
		out.CacheTTL = c.CacheTTL
	}
	if c.MaxInheritanceDepth > 0 {
		out.MaxInheritanceDepth = c.MaxInheritanceDepth
	}
	if c.DefaultRateLimit != 0 {
		out.DefaultRateLimit = c.DefaultRateLimit
	}
	if c.CleanupInterval > 0 {
		out.CleanupInterval = c.CleanupInterval
	}
	return out
}
