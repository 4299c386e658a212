package deps

import (
	"time"

	"github.com/matzehuels/prefetch/pkg/cache"
)

const (
	DefaultCacheTTL    = 24 * time.Hour // Default registry metadata cache duration
	DefaultNpmRegistry = "https://registry.npmjs.org"
	DefaultPyPIURL     = "https://pypi.org/pypi"
	DefaultGoProxy     = "https://proxy.golang.org"
	DefaultCratesDL    = "https://static.crates.io/crates"
	DefaultRubyGems    = "https://rubygems.org"
)

// Options configures ecosystem construction.
type Options struct {
	Cache       cache.Cache   // Registry metadata cache (default: no caching)
	CacheTTL    time.Duration // Metadata cache duration (default: 24h)
	NpmRegistry string        // npm registry base URL
	PyPIURL     string        // PyPI JSON API base URL
	GoProxy     string        // Go module proxy base URL
	CratesDL    string        // crates.io download base URL
	RubyGems    string        // default gem source
	Logger      func(string, ...any)
}

// WithDefaults returns a copy of Options with zero values replaced by defaults.
func (o Options) WithDefaults() Options {
	opts := o
	if opts.Cache == nil {
		opts.Cache = cache.NewNullCache()
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = DefaultCacheTTL
	}
	if opts.NpmRegistry == "" {
		opts.NpmRegistry = DefaultNpmRegistry
	}
	if opts.PyPIURL == "" {
		opts.PyPIURL = DefaultPyPIURL
	}
	if opts.GoProxy == "" {
		opts.GoProxy = DefaultGoProxy
	}
	if opts.CratesDL == "" {
		opts.CratesDL = DefaultCratesDL
	}
	if opts.RubyGems == "" {
		opts.RubyGems = DefaultRubyGems
	}
	if opts.Logger == nil {
		opts.Logger = func(string, ...any) {}
	}
	return opts
}
