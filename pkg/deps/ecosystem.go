package deps

import (
	"context"

	"github.com/package-url/packageurl-go"

	"github.com/matzehuels/prefetch/pkg/checksum"
	"github.com/matzehuels/prefetch/pkg/locator"
)

// Lockfile names a file an ecosystem reads, relative to the package root.
type Lockfile struct {
	Name     string
	Optional bool
}

// Ecosystem is one package ecosystem: lockfile parser, reference resolver,
// on-disk layout and environment renderer.
type Ecosystem interface {
	// Name returns the ecosystem tag (e.g. "npm", "cargo").
	Name() string
	// Lockfiles lists the files Parse expects in Files.
	Lockfiles() []Lockfile
	// Experimental reports whether the ecosystem is opt-in.
	Experimental() bool
	// Parse reads the lockfiles into records in deterministic order.
	Parse(files Files) ([]RawRecord, error)
	// Resolver resolves the references produced by Parse.
	Resolver() locator.Resolver
	// Layout returns the path below deps/<ecosystem>/ an artifact is
	// materialized at, or "" when it is not materialized.
	Layout(a Artifact) string
	// PackageURL returns the purl identifying a in a bill of materials.
	PackageURL(a Artifact) packageurl.PackageURL
	// Render produces the directives that make the package manager use the
	// materialized artifacts instead of the network.
	Render(in RenderInput) (*Directives, error)
}

// Artifact is a graph node as seen by layout, purl and render hooks.
type Artifact struct {
	Name       string
	Version    string
	Locator    locator.Locator
	Checksums  []checksum.Checksum
	Dev        bool
	Properties map[string]string
	Source     string // URL or local path the artifact was fetched from
	Filename   string // download file name, when known
	Path       string // materialized path relative to RenderInput.DepsDir, empty if none
}

// Download is an artifact location produced by an [ArtifactResolver].
type Download struct {
	URL      string
	Checksum checksum.Checksum
	Filename string
}

// ArtifactResolver finds a download URL and a verifiable checksum for
// registry artifacts whose lockfile entry does not provide both.
type ArtifactResolver interface {
	ResolveArtifact(ctx context.Context, a Artifact) (Download, error)
}

// RenderInput is handed to [Ecosystem.Render].
type RenderInput struct {
	ProjectRoot string // package root the lockfiles were read from
	OutputDir   string // output root
	DepsDir     string // <output>/deps/<ecosystem>
	Files       Files  // lockfiles as read by the runner
	Artifacts   []Artifact
}

// ProjectFile is a generated config fragment. Path is relative to the
// project root; the CLI writes it next to the build.
type ProjectFile struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// Directives are the per-ecosystem environment settings. OutputFiles are
// written by the runner below the output directory; ProjectFiles are
// handed to the caller.
type Directives struct {
	Variables    map[string]string
	ProjectFiles []ProjectFile
	OutputFiles  []ProjectFile
}

// BuiltinSupplier is implemented by ecosystems whose lockfiles reference
// builtin<name> patches or packages.
type BuiltinSupplier interface {
	Builtins() []locator.BuiltinProvider
}

// Unpacker is implemented by ecosystems whose package manager consumes
// some artifacts as unpacked sources instead of archives. For artifacts
// where Unpacks is true the runner calls Unpack instead of linking the
// archive at src into place; dst is the layout directory.
type Unpacker interface {
	Unpacks(a Artifact) bool
	Unpack(a Artifact, src, dst string) error
}

// ComponentFilter is implemented by ecosystems that fetch artifacts which
// are not components of the build, such as Go module go.mod files.
type ComponentFilter interface {
	IsComponent(a Artifact) bool
}

// NewDirectives returns empty, non-nil directives.
func NewDirectives() *Directives {
	return &Directives{Variables: make(map[string]string)}
}

// Set records an environment variable.
func (d *Directives) Set(key, value string) *Directives {
	d.Variables[key] = value
	return d
}

// AddFile records a generated project file.
func (d *Directives) AddFile(path, content string) *Directives {
	d.ProjectFiles = append(d.ProjectFiles, ProjectFile{Path: path, Content: content})
	return d
}

// AddOutputFile records a file generated below the output directory.
func (d *Directives) AddOutputFile(path, content string) *Directives {
	d.OutputFiles = append(d.OutputFiles, ProjectFile{Path: path, Content: content})
	return d
}
