package locator

import (
	"path/filepath"
	"strings"

	"github.com/matzehuels/prefetch/pkg/checksum"
)

// Reference is a raw dependency reference exactly as a lockfile spells it.
type Reference string

// Kind identifies a locator variant.
type Kind string

const (
	KindRegistry  Kind = "registry"
	KindGit       Kind = "git"
	KindFile      Kind = "file"
	KindWorkspace Kind = "workspace"
	KindPatch     Kind = "patch"
	KindBuiltin   Kind = "builtin"
)

// Locator is a resolved, fetchable descriptor. It is one of [*Registry],
// [*Git], [*File], [*Workspace], [*Patch] or [*Builtin].
//
// String returns the canonical identity of the locator. Two references that
// resolve to the same artifact produce the same String.
type Locator interface {
	String() string
	Kind() Kind
	sealed()
}

// Registry is a package served by a registry, optionally pinned to an exact
// download URL.
type Registry struct {
	Name        string
	Version     string
	URL         string              // exact artifact URL, when the lockfile records one
	Integrity   []checksum.Checksum // checksums embedded in the reference itself
	RegistryURL string              // non-default registry or index
}

func (r *Registry) Kind() Kind { return KindRegistry }
func (r *Registry) sealed()    {}

func (r *Registry) String() string {
	if r.URL != "" {
		return r.URL
	}
	s := r.Name + "@" + r.Version
	if r.RegistryURL != "" {
		s += "::registry=" + r.RegistryURL
	}
	return s
}

// Git is a repository pinned to a ref.
type Git struct {
	URL     string
	Ref     string
	Subpath string
}

func (g *Git) Kind() Kind { return KindGit }
func (g *Git) sealed()    {}

func (g *Git) String() string {
	s := "git+" + strings.TrimPrefix(g.URL, "git+") + "#" + g.Ref
	if g.Subpath != "" {
		s += "&path=" + g.Subpath
	}
	return s
}

// File is a local file or directory.
type File struct {
	Path              string // as written in the reference
	Protocol          string // file, link or portal
	IsAbsolute        bool
	IsProjectRelative bool
	Resolved          string // absolute filesystem path
	ProjectPath       string // slash-separated path below the project root; empty when outside
}

func (f *File) Kind() Kind { return KindFile }
func (f *File) sealed()    {}

func (f *File) String() string {
	proto := f.Protocol
	if proto == "" {
		proto = "file"
	}
	switch {
	case f.ProjectPath != "":
		return proto + ":~/" + f.ProjectPath
	case f.Resolved != "":
		return proto + ":" + filepath.ToSlash(f.Resolved)
	default:
		return proto + ":" + f.Path
	}
}

// Dir returns the directory that relative references inside this package
// are resolved against.
func (f *File) Dir() string {
	if isArchive(f.Resolved) {
		return filepath.Dir(f.Resolved)
	}
	return f.Resolved
}

// Workspace is a package that lives inside the project tree.
type Workspace struct {
	PackagePath string // slash-separated path relative to the project root, "." for the root
}

func (w *Workspace) Kind() Kind     { return KindWorkspace }
func (w *Workspace) sealed()        {}
func (w *Workspace) String() string { return "workspace:" + w.PackagePath }

// Patch applies one or more patch files on top of a target locator.
//
// Parent is set if and only if at least one path is plain relative; it is
// the package location those relative paths are resolved against.
type Patch struct {
	Target  Locator
	Paths   []PatchPath
	Parent  Locator
	Version string // display version from the reference parameters
	Hash    string // package manager patch hash, informational
}

func (p *Patch) Kind() Kind { return KindPatch }
func (p *Patch) sealed()    {}

func (p *Patch) String() string {
	parts := make([]string, len(p.Paths))
	for i, pp := range p.Paths {
		parts[i] = pp.String()
	}
	return "patch:" + p.Target.String() + "#" + strings.Join(parts, "&")
}

// Optional reports whether every patch path is optional.
func (p *Patch) Optional() bool {
	for _, pp := range p.Paths {
		if !pp.Flags.Optional() {
			return false
		}
	}
	return len(p.Paths) > 0
}

// Builtin is a package or patch shipped with a package manager or
// distribution and looked up through a [BuiltinProvider].
type Builtin struct {
	Name     string
	Provider string
	Source   BuiltinSource
}

func (b *Builtin) Kind() Kind     { return KindBuiltin }
func (b *Builtin) sealed()        {}
func (b *Builtin) String() string { return "builtin<" + b.Name + ">" }

var (
	_ Locator = (*Registry)(nil)
	_ Locator = (*Git)(nil)
	_ Locator = (*File)(nil)
	_ Locator = (*Workspace)(nil)
	_ Locator = (*Patch)(nil)
	_ Locator = (*Builtin)(nil)
)

// Unwrap returns the locator that is actually downloaded: the innermost
// patch target, or l itself.
func Unwrap(l Locator) Locator {
	for {
		p, ok := l.(*Patch)
		if !ok {
			return l
		}
		l = p.Target
	}
}

func isArchive(p string) bool {
	for _, ext := range []string{".tgz", ".tar.gz", ".tar", ".zip", ".crate", ".gem", ".whl"} {
		if strings.HasSuffix(p, ext) {
			return true
		}
	}
	return false
}
