package graph

import (
	"maps"
	"slices"

	"github.com/matzehuels/prefetch/pkg/deps"
	"github.com/matzehuels/prefetch/pkg/errors"
	"github.com/matzehuels/prefetch/pkg/locator"
)

// Build assembles records into a graph. Nodes are created in record order;
// edges follow each record's dependency order. A record's dependency
// references are resolved with that record's locator as ctx.Current.
//
// Errors:
//   - INVALID_LOCATOR, UNSUPPORTED_FEATURE: as reported by the resolver
//   - UNRESOLVABLE_REFERENCE: a reference cannot be resolved, or a
//     dependency resolves to an identity no record declares
//   - CHECKSUM_CONFLICT: two records share an identity but not checksums
func Build(ecosystem string, records []deps.RawRecord, res locator.Resolver, ctx locator.Context) (*Graph, error) {
	b := &builder{
		eco:      ecosystem,
		res:      res,
		ctx:      ctx,
		resolved: make(map[resolveKey]locator.Locator),
	}

	g := New()
	ids := make([]string, len(records))
	for i, rec := range records {
		l, err := b.resolve(rec.Reference, nil)
		if err != nil {
			return nil, err
		}
		n := Node{
			ID:         NodeID(ecosystem, l),
			Ecosystem:  ecosystem,
			Name:       rec.Name,
			Version:    rec.Version,
			Locator:    l,
			Checksums:  slices.Clone(rec.Checksums),
			Dev:        rec.Dev,
			Optional:   rec.Optional,
			License:    rec.License,
			Properties: maps.Clone(rec.Properties),
		}
		ids[i] = n.ID
		if existing, ok := g.Node(n.ID); ok {
			if err := mergeNode(existing, &n); err != nil {
				return nil, err
			}
			continue
		}
		if err := g.AddNode(n); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInternal, err, "add node %s", n.ID)
		}
	}

	for i, rec := range records {
		parent, _ := g.Node(ids[i])
		for _, dep := range rec.Dependencies {
			l, err := b.resolve(dep, parent.Locator)
			if err != nil {
				return nil, err
			}
			to := NodeID(ecosystem, l)
			if _, ok := g.Node(to); !ok {
				return nil, errors.New(errors.ErrCodeUnresolvableReference,
					"%s depends on %q, which no lockfile entry provides", rec.Name, dep)
			}
			if err := g.AddEdge(ids[i], to); err != nil {
				return nil, errors.Wrap(errors.ErrCodeInternal, err, "add edge %s -> %s", ids[i], to)
			}
		}
	}
	return g, nil
}

type builder struct {
	eco      string
	res      locator.Resolver
	ctx      locator.Context
	resolved map[resolveKey]locator.Locator
}

// resolveKey is a reference and the identity of the package holding it.
type resolveKey struct {
	ref    locator.Reference
	parent string
}

// resolve memoizes resolution so both passes see identical locators. A
// reference already resolved as a record keeps that locator; otherwise it
// is resolved relative to parent.
func (b *builder) resolve(ref locator.Reference, parent locator.Locator) (locator.Locator, error) {
	if l, ok := b.resolved[resolveKey{ref: ref}]; ok {
		return l, nil
	}
	key, ctx := resolveKey{ref: ref}, b.ctx
	if parent != nil {
		key.parent = parent.String()
		ctx = ctx.WithCurrent(parent)
		if l, ok := b.resolved[key]; ok {
			return l, nil
		}
	}
	l, err := b.res.Resolve(ref, ctx)
	if err != nil {
		if errors.GetCode(err) == "" {
			return nil, errors.Wrap(errors.ErrCodeUnresolvableReference, err, "resolve %q", ref)
		}
		return nil, err
	}
	if l == nil {
		return nil, errors.New(errors.ErrCodeUnresolvableReference, "%s: nothing resolves %q", b.eco, ref)
	}
	b.resolved[key] = l
	return l, nil
}
