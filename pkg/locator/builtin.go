package locator

import (
	"sync"

	"github.com/matzehuels/prefetch/pkg/checksum"
)

// BuiltinSource describes where a builtin's content comes from. Bundled
// builtins (shipped inside the package manager) have neither Path nor URL
// and need no fetch.
type BuiltinSource struct {
	Name     string
	Provider string
	Path     string
	URL      string
	Checksum checksum.Checksum
}

// Bundled reports whether the builtin ships with its provider.
func (s BuiltinSource) Bundled() bool { return s.Path == "" && s.URL == "" }

// BuiltinProvider resolves builtin names for one ecosystem or distribution.
type BuiltinProvider interface {
	Name() string
	Lookup(name string) (BuiltinSource, bool)
}

// BuiltinRegistry is the provider table consulted for builtin<name>
// references. Providers are consulted in registration order.
type BuiltinRegistry struct {
	mu        sync.RWMutex
	providers []BuiltinProvider
}

// NewBuiltinRegistry returns a registry holding providers.
func NewBuiltinRegistry(providers ...BuiltinProvider) *BuiltinRegistry {
	return &BuiltinRegistry{providers: providers}
}

// Register appends a provider.
func (r *BuiltinRegistry) Register(p BuiltinProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers = append(r.providers, p)
}

// Lookup returns the first provider's source for name.
func (r *BuiltinRegistry) Lookup(name string) (BuiltinSource, bool) {
	if r == nil {
		return BuiltinSource{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.providers {
		if src, ok := p.Lookup(name); ok {
			if src.Name == "" {
				src.Name = name
			}
			if src.Provider == "" {
				src.Provider = p.Name()
			}
			return src, true
		}
	}
	return BuiltinSource{}, false
}

// StaticProvider serves a fixed table of builtins.
type StaticProvider struct {
	ProviderName string
	Sources      map[string]BuiltinSource
}

func (p *StaticProvider) Name() string { return p.ProviderName }

func (p *StaticProvider) Lookup(name string) (BuiltinSource, bool) {
	src, ok := p.Sources[name]
	return src, ok
}
