package report

import (
	"encoding/json"
	"fmt"
	"io"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/package-url/packageurl-go"

	"github.com/matzehuels/prefetch/pkg/buildinfo"
	"github.com/matzehuels/prefetch/pkg/deps"
	"github.com/matzehuels/prefetch/pkg/errors"
	"github.com/matzehuels/prefetch/pkg/fetch"
	"github.com/matzehuels/prefetch/pkg/graph"
)

// Renderer is the part of an ecosystem the report needs. Every
// [deps.Ecosystem] is a Renderer.
type Renderer interface {
	Layout(a deps.Artifact) string
	PackageURL(a deps.Artifact) packageurl.PackageURL
	Render(in deps.RenderInput) (*deps.Directives, error)
}

// Project describes the component the report is about.
type Project struct {
	Name    string
	Version string
	VCSURL  string // "git+<remote>@<commit>"
}

// Input is the render input of one package. Render fills in the
// artifacts of the package's ecosystem.
type Input struct {
	Ecosystem string
	// Package is the package directory relative to the project root.
	// Project file paths are rebased onto it.
	Package string
	deps.RenderInput
}

// Options configures [Render].
type Options struct {
	Project Project
	// Inputs lists every package that contributes environment directives.
	Inputs    []Input
	Timestamp time.Time
	// Strict turns missing optional metadata into errors instead of
	// warnings.
	Strict bool
	Logger *log.Logger
}

// Report is the result of a prefetch run.
type Report struct {
	BOM         *BOM
	Environment *Environment
}

// Render builds the bill of materials of g and merges the environment
// directives of every ecosystem in opts.Inputs. records are the fetch
// results keyed by node ID.
func Render(g *graph.Graph, records map[string]*fetch.Record, renderers map[string]Renderer, opts Options) (*Report, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}

	bom := &BOM{
		BOMFormat:    BOMFormat,
		SpecVersion:  SpecVersion,
		SerialNumber: "urn:uuid:" + uuid.NewString(),
		Version:      1,
		Components:   []Component{},
	}
	meta, err := metadata(opts, logger)
	if err != nil {
		return nil, err
	}
	bom.Metadata = meta

	byEcosystem := make(map[string][]deps.Artifact)
	included := make(map[string]bool)
	for _, n := range g.Nodes() {
		r, ok := renderers[n.Ecosystem]
		if !ok {
			return nil, errors.New(errors.ErrCodeInvalidEcosystem, "no renderer for ecosystem %q of %s", n.Ecosystem, n.ID)
		}
		a := artifact(n, records[n.ID], r)
		byEcosystem[n.Ecosystem] = append(byEcosystem[n.Ecosystem], a)

		if f, ok := r.(deps.ComponentFilter); ok && !f.IsComponent(a) {
			continue
		}
		c, err := component(n, a, records[n.ID], r, opts.Strict, logger)
		if err != nil {
			return nil, err
		}
		bom.Components = append(bom.Components, c)
		included[n.ID] = true
	}
	slices.SortFunc(bom.Components, func(a, b Component) int { return strings.Compare(a.BOMRef, b.BOMRef) })
	bom.Dependencies = dependencies(g, included)

	env := NewEnvironment()
	inputs := slices.Clone(opts.Inputs)
	slices.SortStableFunc(inputs, func(a, b Input) int {
		if c := strings.Compare(a.Ecosystem, b.Ecosystem); c != 0 {
			return c
		}
		return strings.Compare(a.Package, b.Package)
	})
	for _, in := range inputs {
		r, ok := renderers[in.Ecosystem]
		if !ok {
			return nil, errors.New(errors.ErrCodeInvalidEcosystem, "no renderer for ecosystem %q", in.Ecosystem)
		}
		ri := in.RenderInput
		ri.Artifacts = byEcosystem[in.Ecosystem]
		d, err := r.Render(ri)
		if err != nil {
			return nil, fmt.Errorf("render %s environment: %w", in.Ecosystem, err)
		}
		if err := env.Merge(in.Ecosystem, rebase(d, in.Package)); err != nil {
			return nil, err
		}
	}
	return &Report{BOM: bom, Environment: env}, nil
}

// rebase makes the project file paths of d relative to the project root.
func rebase(d *deps.Directives, pkg string) *deps.Directives {
	if d == nil || pkg == "" || pkg == "." {
		return d
	}
	out := *d
	out.ProjectFiles = make([]deps.ProjectFile, len(d.ProjectFiles))
	for i, f := range d.ProjectFiles {
		out.ProjectFiles[i] = deps.ProjectFile{Path: path.Join(pkg, f.Path), Content: f.Content}
	}
	return &out
}

// artifact returns the view of n handed to ecosystem hooks, completed with
// what the fetch learned about it.
func artifact(n *graph.Node, rec *fetch.Record, r Renderer) deps.Artifact {
	a := n.Artifact()
	if rec == nil {
		return a
	}
	a.Source, a.Filename = rec.Source, rec.Filename
	if !rec.Dir {
		a.Path = r.Layout(a)
	}
	return a
}

func component(n *graph.Node, a deps.Artifact, rec *fetch.Record, r Renderer, strict bool, logger *log.Logger) (Component, error) {
	c := Component{
		Type:       "library",
		BOMRef:     n.ID,
		Name:       n.Name,
		Version:    n.Version,
		Licenses:   licenses(n.License),
		Properties: properties(n.Ecosystem, a, n.Optional),
	}
	if c.Name == "" {
		c.Name = n.Locator.String()
	}

	sums := n.Checksums
	if rec != nil && !rec.Dir {
		sums = append(slices.Clone(sums), rec.Checksum)
	}
	c.Hashes = hashes(sums)

	purl := r.PackageURL(a)
	switch {
	case purl.Type != "" && purl.Name != "":
		c.PURL = purl.ToString()
	case strict:
		return c, errors.New(errors.ErrCodeInvalidPackage, "cannot build a package URL for %s", n.ID)
	default:
		logger.Warn("component has no package URL", "component", n.ID)
	}
	return c, nil
}

func metadata(opts Options, logger *log.Logger) (Metadata, error) {
	m := Metadata{
		Tools: &Tools{Components: []Component{{
			Type:    "application",
			Name:    "prefetch",
			Version: buildinfo.Current(),
		}}},
	}
	if !opts.Timestamp.IsZero() {
		m.Timestamp = opts.Timestamp.UTC().Format(time.RFC3339)
	}

	p := opts.Project
	if p.Name == "" {
		return m, nil
	}
	root := &Component{Type: "application", Name: p.Name, Version: p.Version}
	switch {
	case p.VCSURL != "":
		root.ExternalReferences = []ExternalReference{{Type: "vcs", URL: p.VCSURL}}
	case opts.Strict:
		return m, errors.New(errors.ErrCodeInvalidInput, "project %s has no version control information; use permissive mode to continue without it", p.Name)
	default:
		logger.Warn("project has no version control information", "project", p.Name)
	}
	m.Component = root
	return m, nil
}

// dependencies lists the edges between included components.
func dependencies(g *graph.Graph, included map[string]bool) []Dependency {
	var out []Dependency
	for _, n := range g.Nodes() {
		if !included[n.ID] {
			continue
		}
		d := Dependency{Ref: n.ID}
		for _, child := range g.Children(n.ID) {
			if included[child] {
				d.DependsOn = append(d.DependsOn, child)
			}
		}
		slices.Sort(d.DependsOn)
		out = append(out, d)
	}
	slices.SortFunc(out, func(a, b Dependency) int { return strings.Compare(a.Ref, b.Ref) })
	return out
}

// WriteBOM encodes the bill of materials as indented JSON.
func (r *Report) WriteBOM(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r.BOM); err != nil {
		return fmt.Errorf("encode bom: %w", err)
	}
	return nil
}
