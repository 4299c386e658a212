package graph

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matzehuels/prefetch/pkg/checksum"
	"github.com/matzehuels/prefetch/pkg/deps"
	"github.com/matzehuels/prefetch/pkg/errors"
	"github.com/matzehuels/prefetch/pkg/locator"
)

var generic = locator.ResolverFunc(locator.Parse)

func sum(v string) []checksum.Checksum {
	return []checksum.Checksum{{Algorithm: checksum.SHA256, Value: v}}
}

func sampleRecords() []deps.RawRecord {
	return []deps.RawRecord{
		{
			Name: "app", Version: "1.0.0", Reference: "app@workspace:.",
			Dependencies: []locator.Reference{"a@npm:1.0.0", "b@npm:2.0.0"},
		},
		{
			Name: "a", Version: "1.0.0", Reference: "a@npm:1.0.0", Checksums: sum("aa"),
			Dependencies: []locator.Reference{"c@npm:3.0.0"}, // forward reference
		},
		{
			Name: "b", Version: "2.0.0", Reference: "b@npm:2.0.0", Checksums: sum("bb"), Dev: true,
			Dependencies: []locator.Reference{"a@npm:1.0.0"},
		},
		{
			Name: "c", Version: "3.0.0", Reference: "c@npm:3.0.0", Checksums: sum("cc"),
			Dependencies: []locator.Reference{"b@npm:2.0.0"}, // cycle b -> a -> c -> b
		},
	}
}

func TestBuild(t *testing.T) {
	ctx := locator.Context{ProjectRoot: t.TempDir()}
	g, err := Build("yarn-berry", sampleRecords(), generic, ctx)
	require.NoError(t, err)

	assert.Equal(t, 4, g.NodeCount())
	assert.Equal(t, 5, g.EdgeCount())

	ids := make([]string, 0, 4)
	for _, n := range g.Nodes() {
		ids = append(ids, n.ID)
	}
	assert.Equal(t, []string{
		"yarn-berry:workspace:.",
		"yarn-berry:a@1.0.0",
		"yarn-berry:b@2.0.0",
		"yarn-berry:c@3.0.0",
	}, ids)
	assert.Equal(t, []string{"yarn-berry:a@1.0.0", "yarn-berry:b@2.0.0"}, g.Children("yarn-berry:workspace:."))
	assert.Equal(t, []string{"yarn-berry:workspace:."}, g.Roots())
}

func TestBuildIdempotent(t *testing.T) {
	ctx := locator.Context{ProjectRoot: t.TempDir()}
	g1, err := Build("npm", sampleRecords(), generic, ctx)
	require.NoError(t, err)
	g2, err := Build("npm", sampleRecords(), generic, ctx)
	require.NoError(t, err)

	assert.Equal(t, g1.Edges(), g2.Edges())
	assert.Equal(t, g1.Fingerprint(), g2.Fingerprint())
	for i, n := range g1.Nodes() {
		assert.Equal(t, n.ID, g2.Nodes()[i].ID)
	}
}

func TestBuildCollapsesIdenticalResolutions(t *testing.T) {
	records := []deps.RawRecord{
		{Name: "a", Version: "1.0.0", Reference: "a@npm:1.0.0", Checksums: sum("aa"), Dev: true},
		{Name: "a-alias", Version: "1.0.0", Reference: "a-alias@npm:a@1.0.0", Checksums: sum("aa")},
		{Name: "a", Version: "1.0.0", Reference: "a@npm:1.0.0", Dev: true, License: "MIT"},
	}
	g, err := Build("npm", records, generic, locator.Context{})
	require.NoError(t, err)
	require.Equal(t, 1, g.NodeCount())

	n := g.Nodes()[0]
	assert.False(t, n.Dev, "dev only when every record is dev")
	assert.Equal(t, "MIT", n.License)
	assert.Equal(t, sum("aa"), n.Checksums)
}

func TestBuildKeepsDistinctResolutions(t *testing.T) {
	records := []deps.RawRecord{
		{Name: "a", Version: "1.0.0", Reference: "https://r1.example.com/a-1.0.0.tgz"},
		{Name: "a", Version: "1.0.0", Reference: "https://r2.example.com/a-1.0.0.tgz"},
	}
	g, err := Build("npm", records, generic, locator.Context{})
	require.NoError(t, err)
	assert.Equal(t, 2, g.NodeCount())
}

func TestBuildChecksumConflict(t *testing.T) {
	sha1 := checksum.Checksum{Algorithm: checksum.SHA1, Value: "11"}
	sha512 := checksum.Checksum{Algorithm: checksum.SHA512, Value: "55"}

	tests := []struct {
		name      string
		first     []checksum.Checksum
		second    []checksum.Checksum
		conflict  bool
		checksums []checksum.Checksum
	}{
		{"same algorithm, different value", sum("aa"), sum("ff"), true, nil},
		{"identical", sum("aa"), sum("aa"), false, sum("aa")},
		{"second adds an algorithm", []checksum.Checksum{sha1}, []checksum.Checksum{sha1, sha512}, false, []checksum.Checksum{sha1, sha512}},
		{"disjoint algorithms", []checksum.Checksum{sha1}, []checksum.Checksum{sha512}, false, []checksum.Checksum{sha1, sha512}},
		{"shared algorithm disagrees", []checksum.Checksum{sha1, sha512}, append(sum("aa"), checksum.Checksum{Algorithm: checksum.SHA1, Value: "22"}), true, nil},
		{"first has none", nil, sum("aa"), false, sum("aa")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records := []deps.RawRecord{
				{Name: "a", Version: "1.0.0", Reference: "a@npm:1.0.0", Checksums: tt.first},
				{Name: "a", Version: "1.0.0", Reference: "a@npm:1.0.0", Checksums: tt.second},
			}
			g, err := Build("npm", records, generic, locator.Context{})
			if tt.conflict {
				assert.True(t, errors.Is(err, errors.ErrCodeChecksumConflict), "got %v", err)
				return
			}
			require.NoError(t, err)
			n, ok := g.Node("npm:a@1.0.0")
			require.True(t, ok)
			assert.ElementsMatch(t, tt.checksums, n.Checksums)
		})
	}
}

func TestBuildResolvesDependenciesFromTheirRecord(t *testing.T) {
	// "sibling" only resolves relative to the package that declares it.
	res := locator.ResolverFunc(func(ref locator.Reference, ctx locator.Context) (locator.Locator, error) {
		if ref != "sibling" {
			return locator.Parse(ref, ctx)
		}
		parent, ok := ctx.Current.(*locator.Registry)
		if !ok {
			return nil, errors.New(errors.ErrCodeUnsupportedFeature, "sibling needs a parent")
		}
		return &locator.Registry{Name: parent.Name + "-helper", Version: parent.Version}, nil
	})
	records := []deps.RawRecord{
		{Name: "a", Reference: "a@npm:1.0.0", Dependencies: []locator.Reference{"sibling"}},
		{Name: "b", Reference: "b@npm:2.0.0", Dependencies: []locator.Reference{"sibling"}},
		{Name: "a-helper", Reference: "a-helper@npm:1.0.0"},
		{Name: "b-helper", Reference: "b-helper@npm:2.0.0"},
	}

	g, err := Build("npm", records, res, locator.Context{})
	require.NoError(t, err)
	assert.Equal(t, []string{"npm:a-helper@1.0.0"}, g.Children("npm:a@1.0.0"))
	assert.Equal(t, []string{"npm:b-helper@2.0.0"}, g.Children("npm:b@2.0.0"))
}

func TestBuildErrors(t *testing.T) {
	tests := []struct {
		name    string
		records []deps.RawRecord
		code    errors.Code
	}{
		{
			name:    "unknown dependency",
			records: []deps.RawRecord{{Name: "a", Reference: "a@npm:1.0.0", Dependencies: []locator.Reference{"b@npm:1.0.0"}}},
			code:    errors.ErrCodeUnresolvableReference,
		},
		{
			name:    "invalid reference",
			records: []deps.RawRecord{{Name: "a", Reference: "a"}},
			code:    errors.ErrCodeInvalidLocator,
		},
		{
			name:    "relative patch without parent",
			records: []deps.RawRecord{{Name: "a", Reference: "a@patch:a@npm%3A1.0.0#a/patches/x.patch"}},
			code:    errors.ErrCodeUnsupportedFeature,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build("npm", tt.records, generic, locator.Context{ProjectRoot: t.TempDir()})
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.code), "got %v", err)
		})
	}
}

func TestBuildWrapsUncodedResolverErrors(t *testing.T) {
	res := locator.ResolverFunc(func(locator.Reference, locator.Context) (locator.Locator, error) {
		return nil, assert.AnError
	})
	_, err := Build("npm", []deps.RawRecord{{Name: "a", Reference: "a"}}, res, locator.Context{})
	assert.True(t, errors.Is(err, errors.ErrCodeUnresolvableReference))
}

func TestWalkTerminatesOnCycles(t *testing.T) {
	g, err := Build("npm", sampleRecords(), generic, locator.Context{ProjectRoot: t.TempDir()})
	require.NoError(t, err)

	var visited []string
	g.Walk(nil, func(n *Node) bool {
		visited = append(visited, n.Name)
		return true
	})
	assert.Equal(t, []string{"app", "a", "b", "c"}, visited)

	visited = nil
	g.Walk([]string{"npm:c@3.0.0"}, func(n *Node) bool {
		visited = append(visited, n.Name)
		return len(visited) < 2
	})
	assert.Equal(t, []string{"c", "b"}, visited)
}

func TestWalkPureCycle(t *testing.T) {
	g := New()
	require.NoError(t, g.AddNode(Node{ID: "x"}))
	require.NoError(t, g.AddNode(Node{ID: "y"}))
	require.NoError(t, g.AddEdge("x", "y"))
	require.NoError(t, g.AddEdge("y", "x"))
	require.NoError(t, g.AddEdge("y", "x"))
	assert.Equal(t, 2, g.EdgeCount())

	count := 0
	g.Walk(nil, func(*Node) bool { count++; return true })
	assert.Equal(t, 2, count)
}

func TestAddNodeErrors(t *testing.T) {
	g := New()
	assert.ErrorIs(t, g.AddNode(Node{}), ErrInvalidNodeID)
	require.NoError(t, g.AddNode(Node{ID: "a"}))
	assert.ErrorIs(t, g.AddNode(Node{ID: "a"}), ErrDuplicateNodeID)
	assert.ErrorIs(t, g.AddEdge("x", "a"), ErrUnknownSourceNode)
	assert.ErrorIs(t, g.AddEdge("a", "x"), ErrUnknownTargetNode)
}

func TestMerge(t *testing.T) {
	ctx := locator.Context{ProjectRoot: t.TempDir()}
	_, err := Build("npm", sampleRecords()[1:2], generic, locator.Context{})
	require.Error(t, err) // c is missing from the slice
	npm, err := Build("npm", []deps.RawRecord{{Name: "a", Reference: "a@npm:1.0.0", Checksums: sum("aa")}}, generic, ctx)
	require.NoError(t, err)
	pip, err := Build("pip", []deps.RawRecord{{Name: "a", Reference: "a@npm:1.0.0"}}, generic, ctx)
	require.NoError(t, err)

	merged, err := Merge(npm, pip)
	require.NoError(t, err)
	assert.Equal(t, 2, merged.NodeCount())
	assert.Equal(t, []string{"npm", "pip"}, merged.Ecosystems())

	other, err := Build("npm", []deps.RawRecord{{Name: "a", Reference: "a@npm:1.0.0", Checksums: sum("bb")}}, generic, ctx)
	require.NoError(t, err)
	_, err = Merge(npm, other)
	assert.True(t, errors.Is(err, errors.ErrCodeChecksumConflict))
}

func TestFingerprintIgnoresInsertionOrder(t *testing.T) {
	a := New()
	require.NoError(t, a.AddNode(Node{ID: "x", Checksums: sum("11")}))
	require.NoError(t, a.AddNode(Node{ID: "y"}))
	require.NoError(t, a.AddEdge("x", "y"))

	b := New()
	require.NoError(t, b.AddNode(Node{ID: "y"}))
	require.NoError(t, b.AddNode(Node{ID: "x", Checksums: sum("11")}))
	require.NoError(t, b.AddEdge("x", "y"))
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())

	require.NoError(t, b.AddNode(Node{ID: "z"}))
	assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())
}

func TestMarshalGraph(t *testing.T) {
	g, err := Build("npm", sampleRecords(), generic, locator.Context{ProjectRoot: t.TempDir()})
	require.NoError(t, err)

	data, err := MarshalGraph(g)
	require.NoError(t, err)

	var doc Document
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Len(t, doc.Nodes, 4)
	assert.Len(t, doc.Edges, 5)
	assert.Equal(t, "npm:a@1.0.0", doc.Nodes[0].ID)
	assert.Equal(t, "registry", doc.Nodes[0].Kind)
	assert.Equal(t, []string{"sha256:aa"}, doc.Nodes[0].Checksums)
}
