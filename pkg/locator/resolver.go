package locator

import (
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/matzehuels/prefetch/pkg/checksum"
	"github.com/matzehuels/prefetch/pkg/errors"
)

// Context carries what resolution may depend on besides the reference.
type Context struct {
	ProjectRoot string           // absolute project root
	Current     Locator          // package whose lockfile entry holds the reference, if any
	Builtins    *BuiltinRegistry // provider table for builtin<name>
}

// WithCurrent returns a copy of c with Current set to l.
func (c Context) WithCurrent(l Locator) Context {
	c.Current = l
	return c
}

// Resolver turns a raw reference into a locator. Unrecognized syntax fails
// with INVALID_LOCATOR.
type Resolver interface {
	Resolve(ref Reference, ctx Context) (Locator, error)
}

// ResolverFunc adapts a function to [Resolver].
type ResolverFunc func(ref Reference, ctx Context) (Locator, error)

func (f ResolverFunc) Resolve(ref Reference, ctx Context) (Locator, error) { return f(ref, ctx) }

// Parse resolves the protocol forms shared across ecosystems:
//
//	name@npm:1.2.3           registry
//	name@1.2.3               registry
//	https://host/a-1.0.tgz   registry with exact URL (#sha1 fragment kept as integrity)
//	git+https://host/r#ref   git (also git://, github:owner/repo#ref)
//	workspace:packages/a     workspace
//	file:, link:, portal:    local file or directory
//	~/a, /a, ./a, ../a       local file or directory
//	patch:<target>#<paths>   patch, see [ParsePatch]
//	builtin<name>            builtin
//
// Any of them may carry a "name@" prefix. Patch targets and parents are
// resolved through Parse itself.
func Parse(ref Reference, ctx Context) (Locator, error) {
	return ParseWith(ref, ctx, ResolverFunc(Parse))
}

// ParseWith is [Parse] with nested references (patch targets, parent
// locators) resolved through self, so ecosystem resolvers can layer their
// own grammar on top of the shared one.
func ParseWith(ref Reference, ctx Context, self Resolver) (Locator, error) {
	s := strings.TrimSpace(string(ref))
	if s == "" {
		return nil, errors.New(errors.ErrCodeInvalidLocator, "empty reference")
	}
	if l, ok, err := parseProtocol("", s, ctx, self); ok || err != nil {
		return l, err
	}

	name, rest, ok := SplitDescriptor(s)
	if !ok {
		return nil, errors.New(errors.ErrCodeInvalidLocator, "unrecognized reference %q", s)
	}
	if l, ok, err := parseProtocol(name, rest, ctx, self); ok || err != nil {
		return l, err
	}
	return newRegistry(name, rest)
}

// SplitDescriptor splits "name@rest", honouring scoped "@scope/name".
func SplitDescriptor(s string) (name, rest string, ok bool) {
	start := 0
	if strings.HasPrefix(s, "@") {
		start = 1
	}
	i := strings.IndexByte(s[start:], '@')
	if i < 0 {
		return "", "", false
	}
	i += start
	name, rest = s[:i], s[i+1:]
	return name, rest, name != "" && rest != ""
}

func parseProtocol(name, s string, ctx Context, self Resolver) (Locator, bool, error) {
	switch {
	case strings.HasPrefix(s, "patch:"):
		l, err := ParsePatch(Reference(s), ctx, self)
		return l, true, err
	case strings.HasPrefix(s, "npm:"):
		rest := strings.TrimPrefix(s, "npm:")
		// npm:other@1.0.0 aliases another package.
		if alias, version, ok := SplitDescriptor(rest); ok {
			l, err := newRegistry(alias, version)
			return l, true, err
		}
		if name == "" {
			return nil, true, errors.New(errors.ErrCodeInvalidLocator, "npm reference %q has no package name", s)
		}
		l, err := newRegistry(name, rest)
		return l, true, err
	case strings.HasPrefix(s, "workspace:"):
		l, err := newWorkspace(strings.TrimPrefix(s, "workspace:"))
		return l, true, err
	case strings.HasPrefix(s, "file:"), strings.HasPrefix(s, "link:"), strings.HasPrefix(s, "portal:"):
		proto, rest, _ := strings.Cut(s, ":")
		l, err := resolveFile(proto, rest, ctx, self)
		return l, true, err
	case strings.HasPrefix(s, "builtin<"):
		l, err := ResolveBuiltin(s, ctx)
		return l, true, err
	case strings.HasPrefix(s, "git+"), strings.HasPrefix(s, "git:"), strings.HasPrefix(s, "github:"),
		strings.HasPrefix(s, "ssh://"):
		l, err := ParseGit(s)
		return l, true, err
	case strings.HasPrefix(s, "http://"), strings.HasPrefix(s, "https://"):
		if base, _, _ := strings.Cut(s, "#"); strings.HasSuffix(base, ".git") {
			l, err := ParseGit(s)
			return l, true, err
		}
		l, err := newURL(name, s)
		return l, true, err
	case strings.HasPrefix(s, "~/"), strings.HasPrefix(s, "/"), strings.HasPrefix(s, "./"), strings.HasPrefix(s, "../"):
		l, err := resolveFile("file", s, ctx, self)
		return l, true, err
	}
	return nil, false, nil
}

func newRegistry(name, version string) (*Registry, error) {
	if name == "" || version == "" {
		return nil, errors.New(errors.ErrCodeInvalidLocator, "registry reference %s@%s needs a name and a version", name, version)
	}
	if err := errors.ValidatePackageName(name); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidLocator, err, "registry reference %s@%s", name, version)
	}
	if _, err := semver.NewVersion(version); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidLocator, err, "registry reference %s@%s is not pinned to a version", name, version)
	}
	return &Registry{Name: name, Version: version}, nil
}

func newURL(name, raw string) (*Registry, error) {
	base, frag, _ := strings.Cut(raw, "#")
	base, _, _ = strings.Cut(base, "::")
	if err := errors.ValidateURL(base); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidLocator, err, "invalid artifact URL")
	}
	r := &Registry{Name: name, URL: base}
	if r.Name == "" {
		if u, err := url.Parse(base); err == nil {
			r.Name = path.Base(u.Path)
		}
	}
	if frag != "" {
		c, err := checksum.New(checksum.SHA1, frag)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidLocator, err, "invalid URL fragment in %q", raw)
		}
		r.Integrity = []checksum.Checksum{c}
	}
	return r, nil
}

func newWorkspace(p string) (*Workspace, error) {
	p, _, _ = strings.Cut(p, "::")
	p = strings.TrimPrefix(path.Clean(strings.TrimSpace(p)), "./")
	if p == "" || p == "." {
		return &Workspace{PackagePath: "."}, nil
	}
	if err := errors.ValidatePath(p); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidLocator, err, "workspace path %q", p)
	}
	return &Workspace{PackagePath: p}, nil
}

// resolveFile resolves file:/link:/portal: and bare path references. Plain
// relative paths resolve against the parent given by a "locator="
// parameter, else ctx.Current, else the project root (lockfile-relative).
func resolveFile(proto, raw string, ctx Context, self Resolver) (*File, error) {
	p, params, _ := strings.Cut(raw, "::")
	if p == "" {
		return nil, errors.New(errors.ErrCodeInvalidLocator, "%s reference has no path", proto)
	}
	kind := ClassifyPath(p)
	if kind == PathBuiltin {
		return nil, errors.New(errors.ErrCodeInvalidLocator, "%s reference cannot name a builtin: %q", proto, p)
	}

	base := ctx.ProjectRoot
	if kind == PathRelative {
		parent := ctx.Current
		if q, err := url.ParseQuery(params); err == nil && q.Get("locator") != "" {
			l, err := self.Resolve(Reference(q.Get("locator")), Context{ProjectRoot: ctx.ProjectRoot, Builtins: ctx.Builtins})
			if err != nil {
				return nil, err
			}
			parent = l
		}
		if dir, ok := parentDir(parent, ctx.ProjectRoot); ok {
			base = dir
		}
	}

	resolved, projectPath, err := resolvePath(ctx.ProjectRoot, base, kind, p)
	if err != nil {
		return nil, err
	}
	return &File{
		Path:              p,
		Protocol:          proto,
		IsAbsolute:        kind == PathAbsolute,
		IsProjectRelative: kind == PathProjectRelative,
		Resolved:          resolved,
		ProjectPath:       projectPath,
	}, nil
}

// parentDir returns the directory of a package location that can anchor
// relative paths.
func parentDir(l Locator, root string) (string, bool) {
	switch p := l.(type) {
	case *Workspace:
		return filepath.Join(root, filepath.FromSlash(p.PackagePath)), true
	case *File:
		return p.Dir(), p.Resolved != ""
	}
	return "", false
}

// ResolveBuiltin resolves "builtin<name>" through ctx.Builtins.
func ResolveBuiltin(s string, ctx Context) (*Builtin, error) {
	name, ok := builtinName(s)
	if !ok || name == "" {
		return nil, errors.New(errors.ErrCodeInvalidLocator, "malformed builtin reference %q", s)
	}
	src, ok := ctx.Builtins.Lookup(name)
	if !ok {
		return nil, errors.New(errors.ErrCodeUnresolvableReference, "no provider for builtin<%s>", name)
	}
	return &Builtin{Name: name, Provider: src.Provider, Source: src}, nil
}

// ParseGit parses git references:
//
//	git+https://host/owner/repo.git#<ref>
//	git+ssh://git@host/owner/repo.git#<ref>
//	git://host/owner/repo.git#<ref>
//	github:owner/repo#<ref>
//	https://host/owner/repo.git#commit=<sha>&workspace=<path>
//
// A ref is mandatory; unpinned git dependencies are not hermetic.
func ParseGit(s string) (*Git, error) {
	raw := s
	if rest, ok := strings.CutPrefix(s, "github:"); ok {
		s = "https://github.com/" + rest
	}
	s = strings.TrimPrefix(s, "git+")
	if strings.HasPrefix(s, "git:") && !strings.HasPrefix(s, "git://") {
		s = "https://" + strings.TrimPrefix(s, "git:")
	}

	base, frag, _ := strings.Cut(s, "#")
	base, _, _ = strings.Cut(base, "::")
	g := &Git{URL: base}
	if strings.HasPrefix(g.URL, "https://github.com/") && !strings.HasSuffix(g.URL, ".git") {
		g.URL += ".git"
	}

	if strings.Contains(frag, "=") {
		q, err := url.ParseQuery(frag)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidLocator, err, "git reference %q", raw)
		}
		for _, key := range []string{"commit", "tag", "head", "branch"} {
			if v := q.Get(key); v != "" {
				g.Ref = v
				break
			}
		}
		g.Subpath = firstNonEmpty(q.Get("path"), q.Get("workspace"))
	} else {
		g.Ref = frag
	}

	if g.URL == "" {
		return nil, errors.New(errors.ErrCodeInvalidLocator, "git reference %q has no URL", raw)
	}
	if g.Ref == "" {
		return nil, errors.New(errors.ErrCodeInvalidLocator, "git reference %q is not pinned to a ref", raw)
	}
	return g, nil
}

// IsFullSHA reports whether ref is a full 40 or 64 character commit id.
func IsFullSHA(ref string) bool {
	if len(ref) != 40 && len(ref) != 64 {
		return false
	}
	for _, c := range ref {
		if !strings.ContainsRune("0123456789abcdef", c) {
			return false
		}
	}
	return true
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
