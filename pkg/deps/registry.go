package deps

import (
	"slices"
	"strings"

	"github.com/matzehuels/prefetch/pkg/errors"
)

// Registry maps ecosystem tags to implementations.
type Registry struct {
	byName map[string]Ecosystem
	names  []string
}

// NewRegistry indexes ecosystems by [Ecosystem.Name]. Later entries with the
// same name replace earlier ones.
func NewRegistry(ecos ...Ecosystem) *Registry {
	r := &Registry{byName: make(map[string]Ecosystem, len(ecos))}
	for _, e := range ecos {
		if _, ok := r.byName[e.Name()]; !ok {
			r.names = append(r.names, e.Name())
		}
		r.byName[e.Name()] = e
	}
	return r
}

// Get returns the ecosystem for tag, or INVALID_ECOSYSTEM.
func (r *Registry) Get(tag string) (Ecosystem, error) {
	e, ok := r.byName[strings.ToLower(strings.TrimSpace(tag))]
	if !ok {
		return nil, errors.New(errors.ErrCodeInvalidEcosystem, "unknown ecosystem %q (available: %s)", tag, strings.Join(r.Names(), ", "))
	}
	return e, nil
}

// Names returns the registered tags in sorted order.
func (r *Registry) Names() []string {
	names := slices.Clone(r.names)
	slices.Sort(names)
	return names
}

// ArtifactResolvers returns the ecosystems that implement
// [ArtifactResolver], keyed by tag.
func (r *Registry) ArtifactResolvers() map[string]ArtifactResolver {
	out := make(map[string]ArtifactResolver)
	for name, e := range r.byName {
		if ar, ok := e.(ArtifactResolver); ok {
			out[name] = ar
		}
	}
	return out
}
