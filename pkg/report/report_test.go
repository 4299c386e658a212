package report

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/package-url/packageurl-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matzehuels/prefetch/pkg/checksum"
	"github.com/matzehuels/prefetch/pkg/deps"
	"github.com/matzehuels/prefetch/pkg/errors"
	"github.com/matzehuels/prefetch/pkg/fetch"
	"github.com/matzehuels/prefetch/pkg/graph"
	"github.com/matzehuels/prefetch/pkg/locator"
)

// fakeEcosystem lays artifacts out as <name>-<version>.tgz and hides the
// artifact called hidden from the bill of materials.
type fakeEcosystem struct {
	hidden     string
	directives *deps.Directives
	rendered   []deps.Artifact
	input      deps.RenderInput
}

func (f *fakeEcosystem) Layout(a deps.Artifact) string {
	return a.Name + "-" + a.Version + ".tgz"
}

func (f *fakeEcosystem) PackageURL(a deps.Artifact) packageurl.PackageURL {
	if a.Name == "" {
		return packageurl.PackageURL{}
	}
	return *packageurl.NewPackageURL(packageurl.TypeNPM, "", a.Name, a.Version, nil, "")
}

func (f *fakeEcosystem) Render(in deps.RenderInput) (*deps.Directives, error) {
	f.input, f.rendered = in, in.Artifacts
	return f.directives, nil
}

func (f *fakeEcosystem) IsComponent(a deps.Artifact) bool {
	return a.Name != f.hidden
}

var (
	sumA    = checksum.Checksum{Algorithm: checksum.SHA512, Value: strings.Repeat("a", 128)}
	sumAraw = checksum.Checksum{Algorithm: checksum.SHA256, Value: strings.Repeat("1", 64)}
	sumB    = checksum.Checksum{Algorithm: checksum.SHA256, Value: strings.Repeat("2", 64)}
)

func sampleGraph(t *testing.T) (*graph.Graph, map[string]*fetch.Record) {
	t.Helper()
	nodes := []graph.Node{
		{Name: "app", Version: "1.0.0", Locator: &locator.Workspace{PackagePath: "."}},
		{Name: "a", Version: "1.0.0", Locator: &locator.Registry{Name: "a", Version: "1.0.0"}, Checksums: []checksum.Checksum{sumA}, License: "MIT"},
		{Name: "b", Version: "2.0.0", Locator: &locator.Registry{Name: "b", Version: "2.0.0"}, Dev: true, Optional: true, Properties: map[string]string{deps.PropMissingHash: "true"}},
		{Name: "c", Version: "3.0.0", Locator: &locator.Registry{Name: "c", Version: "3.0.0"}},
	}
	g := graph.New()
	for _, n := range nodes {
		n.Ecosystem = "npm"
		n.ID = graph.NodeID("npm", n.Locator)
		require.NoError(t, g.AddNode(n))
	}
	for _, e := range [][2]string{{"npm:workspace:.", "npm:a@1.0.0"}, {"npm:workspace:.", "npm:b@2.0.0"}, {"npm:a@1.0.0", "npm:c@3.0.0"}, {"npm:b@2.0.0", "npm:a@1.0.0"}} {
		require.NoError(t, g.AddEdge(e[0], e[1]))
	}
	records := map[string]*fetch.Record{
		"npm:a@1.0.0": {Address: sumA.String(), Source: "https://registry.example/a.tgz", Checksum: sumAraw, Filename: "a.tgz"},
		"npm:b@2.0.0": {Address: "locator:b", Source: "https://registry.example/b.tgz", Checksum: sumB},
	}
	return g, records
}

func TestRenderBOM(t *testing.T) {
	g, records := sampleGraph(t)
	eco := &fakeEcosystem{hidden: "c"}

	r, err := Render(g, records, map[string]Renderer{"npm": eco}, Options{Timestamp: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)})
	require.NoError(t, err)
	bom := r.BOM

	assert.Equal(t, "CycloneDX", bom.BOMFormat)
	assert.Equal(t, "1.5", bom.SpecVersion)
	assert.True(t, strings.HasPrefix(bom.SerialNumber, "urn:uuid:"), bom.SerialNumber)
	assert.Equal(t, "2024-05-01T12:00:00Z", bom.Metadata.Timestamp)
	require.NotNil(t, bom.Metadata.Tools)
	assert.Equal(t, "prefetch", bom.Metadata.Tools.Components[0].Name)
	assert.Nil(t, bom.Metadata.Component)

	var refs []string
	for _, c := range bom.Components {
		refs = append(refs, c.BOMRef)
	}
	assert.Equal(t, []string{"npm:a@1.0.0", "npm:b@2.0.0", "npm:workspace:."}, refs)

	a, ok := bom.Component("npm:a@1.0.0")
	require.True(t, ok)
	assert.Equal(t, "pkg:npm/a@1.0.0", a.PURL)
	assert.Equal(t, []Hash{{Alg: "SHA-256", Content: sumAraw.Value}, {Alg: "SHA-512", Content: sumA.Value}}, a.Hashes)
	assert.Equal(t, []LicenseChoice{{License: &License{ID: "MIT"}}}, a.Licenses)
	assert.Equal(t, []Property{{Name: "prefetch:ecosystem", Value: "npm"}}, a.Properties)

	b, ok := bom.Component("npm:b@2.0.0")
	require.True(t, ok)
	assert.Equal(t, []Property{
		{Name: "prefetch:dev", Value: "true"},
		{Name: "prefetch:ecosystem", Value: "npm"},
		{Name: "prefetch:missing_hash_in_file", Value: "true"},
		{Name: "prefetch:optional", Value: "true"},
	}, b.Properties)

	_, ok = bom.Component("npm:c@3.0.0")
	assert.False(t, ok, "filtered artifacts are not components")

	assert.Equal(t, []Dependency{
		{Ref: "npm:a@1.0.0"},
		{Ref: "npm:b@2.0.0", DependsOn: []string{"npm:a@1.0.0"}},
		{Ref: "npm:workspace:.", DependsOn: []string{"npm:a@1.0.0", "npm:b@2.0.0"}},
	}, bom.Dependencies)
}

func TestRenderEnvironment(t *testing.T) {
	g, records := sampleGraph(t)
	npm := &fakeEcosystem{directives: &deps.Directives{
		Variables:    map[string]string{"npm_config_offline": "true"},
		ProjectFiles: []deps.ProjectFile{{Path: ".npmrc", Content: "offline=true\n"}},
	}}
	pip := &fakeEcosystem{directives: &deps.Directives{
		Variables:   map[string]string{"PIP_NO_INDEX": "true"},
		OutputFiles: []deps.ProjectFile{{Path: "deps/pip/README", Content: "wheels\n"}},
	}}
	inputs := []Input{
		{Ecosystem: "pip", Package: ".", RenderInput: deps.RenderInput{OutputDir: "/out", DepsDir: "/out/deps/pip"}},
		{Ecosystem: "npm", Package: "web", RenderInput: deps.RenderInput{OutputDir: "/out", DepsDir: "/out/deps/npm"}},
	}

	r, err := Render(g, records, map[string]Renderer{"npm": npm, "pip": pip}, Options{Inputs: inputs})
	require.NoError(t, err)

	env := r.Environment
	assert.Equal(t, map[string]string{"npm_config_offline": "true", "PIP_NO_INDEX": "true"}, env.Variables)
	assert.Equal(t, []deps.ProjectFile{{Path: "web/.npmrc", Content: "offline=true\n"}}, env.ProjectFiles)
	assert.Equal(t, []deps.ProjectFile{{Path: "deps/pip/README", Content: "wheels\n"}}, env.OutputFiles)

	assert.Equal(t, "/out/deps/npm", npm.input.DepsDir)
	require.Len(t, npm.rendered, 4)
	paths := map[string]string{}
	for _, a := range npm.rendered {
		paths[a.Name] = a.Path
	}
	assert.Equal(t, "a-1.0.0.tgz", paths["a"])
	assert.Equal(t, "", paths["app"], "nodes without a record are not materialized")
	assert.Equal(t, "", paths["c"])
	assert.Empty(t, pip.rendered, "pip owns no graph nodes")
}

func TestRenderErrors(t *testing.T) {
	g, records := sampleGraph(t)

	t.Run("unknown ecosystem", func(t *testing.T) {
		_, err := Render(g, records, map[string]Renderer{}, Options{})
		assert.True(t, errors.Is(err, errors.ErrCodeInvalidEcosystem), "got %v", err)

		_, err = Render(g, records, map[string]Renderer{"npm": &fakeEcosystem{}}, Options{Inputs: []Input{{Ecosystem: "cargo"}}})
		assert.True(t, errors.Is(err, errors.ErrCodeInvalidEcosystem), "got %v", err)
	})

	t.Run("conflicting variables", func(t *testing.T) {
		one := &fakeEcosystem{directives: &deps.Directives{Variables: map[string]string{"OFFLINE": "1"}}}
		two := &fakeEcosystem{directives: &deps.Directives{Variables: map[string]string{"OFFLINE": "yes"}}}
		inputs := []Input{{Ecosystem: "npm"}, {Ecosystem: "yarn"}}
		_, err := Render(g, records, map[string]Renderer{"npm": one, "yarn": two}, Options{Inputs: inputs})
		assert.True(t, errors.Is(err, errors.ErrCodeUnsupportedFeature), "got %v", err)
	})

	t.Run("strict mode requires version control information", func(t *testing.T) {
		opts := Options{Project: Project{Name: "app", Version: "1.0.0"}, Strict: true}
		_, err := Render(g, records, map[string]Renderer{"npm": &fakeEcosystem{}}, opts)
		assert.True(t, errors.Is(err, errors.ErrCodeInvalidInput), "got %v", err)

		opts.Strict = false
		r, err := Render(g, records, map[string]Renderer{"npm": &fakeEcosystem{}}, opts)
		require.NoError(t, err)
		require.NotNil(t, r.BOM.Metadata.Component)
		assert.Empty(t, r.BOM.Metadata.Component.ExternalReferences)

		opts.Strict, opts.Project.VCSURL = true, "git+https://example.com/app.git@"+strings.Repeat("f", 40)
		r, err = Render(g, records, map[string]Renderer{"npm": &fakeEcosystem{}}, opts)
		require.NoError(t, err)
		assert.Equal(t, []ExternalReference{{Type: "vcs", URL: opts.Project.VCSURL}}, r.BOM.Metadata.Component.ExternalReferences)
	})

	t.Run("strict mode requires package urls", func(t *testing.T) {
		anon := graph.New()
		require.NoError(t, anon.AddNode(graph.Node{ID: "npm:workspace:.", Ecosystem: "npm", Locator: &locator.Workspace{PackagePath: "."}}))

		_, err := Render(anon, nil, map[string]Renderer{"npm": &fakeEcosystem{}}, Options{Strict: true})
		assert.True(t, errors.Is(err, errors.ErrCodeInvalidPackage), "got %v", err)

		r, err := Render(anon, nil, map[string]Renderer{"npm": &fakeEcosystem{}}, Options{})
		require.NoError(t, err)
		assert.Equal(t, "workspace:.", r.BOM.Components[0].Name)
		assert.Empty(t, r.BOM.Components[0].PURL)
	})
}

func TestWriteBOM(t *testing.T) {
	g, records := sampleGraph(t)
	r, err := Render(g, records, map[string]Renderer{"npm": &fakeEcosystem{}}, Options{})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, r.WriteBOM(&buf))

	var doc map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, "CycloneDX", doc["bomFormat"])
	components := doc["components"].([]any)
	assert.Len(t, components, 4)
	first := components[0].(map[string]any)
	assert.Equal(t, "npm:a@1.0.0", first["bom-ref"])
	assert.Equal(t, "library", first["type"])
}

func TestLicenses(t *testing.T) {
	tests := []struct {
		in   string
		want []LicenseChoice
	}{
		{"", nil},
		{"MIT", []LicenseChoice{{License: &License{ID: "MIT"}}}},
		{"Apache-2.0", []LicenseChoice{{License: &License{ID: "Apache-2.0"}}}},
		{"MIT OR Apache-2.0", []LicenseChoice{{Expression: "MIT OR Apache-2.0"}}},
		{"Custom license, see LICENSE", []LicenseChoice{{License: &License{Name: "Custom license, see LICENSE"}}}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, licenses(tt.in), tt.in)
	}
}

func TestHashesSkipsInexpressibleAlgorithms(t *testing.T) {
	got := hashes([]checksum.Checksum{
		{Algorithm: checksum.H1, Value: "abc="},
		{Algorithm: checksum.YarnCache, Value: "10c0/ff"},
		sumB,
		sumB,
	})
	assert.Equal(t, []Hash{{Alg: "SHA-256", Content: sumB.Value}}, got)
}

func TestEnvironmentShell(t *testing.T) {
	env := NewEnvironment()
	require.NoError(t, env.Merge("gomod", &deps.Directives{Variables: map[string]string{
		"GOPROXY":   "file:///out/deps/gomod/cache/download",
		"GOFLAGS":   "-mod=mod",
		"GONOSUMDB": "it's",
	}}))
	want := "export GOFLAGS=-mod=mod\n" +
		"export GONOSUMDB='it'\\''s'\n" +
		"export GOPROXY=file:///out/deps/gomod/cache/download\n"
	assert.Equal(t, want, env.Shell())
}
