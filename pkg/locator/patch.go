package locator

import (
	"net/url"
	"strings"

	"github.com/matzehuels/prefetch/pkg/errors"
)

// ParsePatch parses and resolves a patch reference:
//
//	patch:<target>#<path>[&<path>...][::<params>]
//
// target and params are URL-encoded. Recognized params are version, hash
// and locator; locator names the parent package. Each path is tokenized by
// [ParsePatchPath]. The target and parent are resolved through target.
//
// A parent is looked up only when at least one path is plain relative
// ([RequiresParent]): first from the locator param, then from ctx.Current.
// No parent fails with UNSUPPORTED_FEATURE, as does a parent that is not a
// workspace or file location.
func ParsePatch(ref Reference, ctx Context, target Resolver) (*Patch, error) {
	s := strings.TrimSpace(string(ref))
	if _, rest, ok := SplitDescriptor(s); ok && !strings.HasPrefix(s, "patch:") {
		s = rest
	}
	body, ok := strings.CutPrefix(s, "patch:")
	if !ok {
		return nil, errors.New(errors.ErrCodeInvalidLocator, "not a patch reference: %q", ref)
	}

	var params url.Values
	if i := strings.Index(body, "::"); i >= 0 {
		q, err := url.ParseQuery(body[i+2:])
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidLocator, err, "patch parameters in %q", ref)
		}
		params, body = q, body[:i]
	}

	encTarget, encPaths, ok := strings.Cut(body, "#")
	if !ok || encTarget == "" || encPaths == "" {
		return nil, errors.New(errors.ErrCodeInvalidLocator, "patch reference %q needs <target>#<path>", ref)
	}
	targetRef, err := url.PathUnescape(encTarget)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidLocator, err, "patch target in %q", ref)
	}

	var paths []PatchPath
	for _, raw := range strings.Split(encPaths, "&") {
		if raw == "" {
			continue
		}
		pp, err := ParsePatchPath(raw)
		if err != nil {
			return nil, err
		}
		paths = append(paths, pp)
	}
	if len(paths) == 0 {
		return nil, errors.New(errors.ErrCodeInvalidLocator, "patch reference %q has no paths", ref)
	}

	targetCtx := Context{ProjectRoot: ctx.ProjectRoot, Builtins: ctx.Builtins}
	tl, err := target.Resolve(Reference(targetRef), targetCtx)
	if err != nil {
		return nil, err
	}

	p := &Patch{
		Target:  tl,
		Paths:   paths,
		Version: params.Get("version"),
		Hash:    params.Get("hash"),
	}

	if RequiresParent(paths) {
		parent := ctx.Current
		if enc := params.Get("locator"); enc != "" {
			if parent, err = target.Resolve(Reference(enc), targetCtx); err != nil {
				return nil, err
			}
		}
		if parent == nil {
			return nil, errors.New(errors.ErrCodeUnsupportedFeature,
				"patch %q has a relative path but no parent package to resolve it against", ref)
		}
		p.Parent = parent
	}

	if err := resolvePatchPaths(p, ctx); err != nil {
		return nil, err
	}
	return p, nil
}

func resolvePatchPaths(p *Patch, ctx Context) error {
	base := ""
	if p.Parent != nil {
		dir, ok := parentDir(p.Parent, ctx.ProjectRoot)
		if !ok {
			return errors.New(errors.ErrCodeUnsupportedFeature,
				"patch parent %s is not a local package location", p.Parent)
		}
		base = dir
	}

	for i := range p.Paths {
		pp := &p.Paths[i]
		if pp.Kind == PathBuiltin {
			src, ok := ctx.Builtins.Lookup(pp.BuiltinName())
			if !ok {
				return errors.New(errors.ErrCodeUnresolvableReference, "no provider for builtin<%s>", pp.BuiltinName())
			}
			pp.Builtin = src
			continue
		}
		resolved, projectPath, err := resolvePath(ctx.ProjectRoot, base, pp.Kind, pp.Path)
		if err != nil {
			return err
		}
		pp.Resolved, pp.ProjectPath = resolved, projectPath
	}
	return nil
}
