package graph

import (
	"errors"
	"maps"
	"slices"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/matzehuels/prefetch/pkg/checksum"
	"github.com/matzehuels/prefetch/pkg/deps"
	perrors "github.com/matzehuels/prefetch/pkg/errors"
	"github.com/matzehuels/prefetch/pkg/locator"
)

var (
	// ErrInvalidNodeID is returned by [Graph.AddNode] when the node ID is empty.
	ErrInvalidNodeID = errors.New("node ID must not be empty")

	// ErrDuplicateNodeID is returned by [Graph.AddNode] when a node with the
	// same ID already exists.
	ErrDuplicateNodeID = errors.New("duplicate node ID")

	// ErrUnknownSourceNode is returned by [Graph.AddEdge] when the From node
	// does not exist.
	ErrUnknownSourceNode = errors.New("unknown source node")

	// ErrUnknownTargetNode is returned by [Graph.AddEdge] when the To node
	// does not exist.
	ErrUnknownTargetNode = errors.New("unknown target node")
)

// NodeID returns the identity of a locator within an ecosystem.
func NodeID(ecosystem string, l locator.Locator) string {
	return ecosystem + ":" + l.String()
}

// Node is one package. Version is for display only and is not part of the
// identity.
type Node struct {
	ID         string
	Ecosystem  string
	Name       string
	Version    string
	Locator    locator.Locator
	Checksums  []checksum.Checksum
	Dev        bool
	Optional   bool
	License    string
	Properties map[string]string
}

// Artifact returns the view of n handed to ecosystem hooks.
func (n *Node) Artifact() deps.Artifact {
	return deps.Artifact{
		Name:       n.Name,
		Version:    n.Version,
		Locator:    n.Locator,
		Checksums:  slices.Clone(n.Checksums),
		Dev:        n.Dev,
		Properties: maps.Clone(n.Properties),
	}
}

// Edge is a depends-on relation.
type Edge struct {
	From string
	To   string
}

// Graph is a directed dependency graph. Cycles are permitted. Node order is
// insertion order, which [Build] derives from lockfile order.
//
// The zero value is not usable; use [New]. Graph is not safe for concurrent
// mutation.
type Graph struct {
	nodes    map[string]*Node
	order    []string
	edges    []Edge
	outgoing map[string][]string
	incoming map[string][]string
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		nodes:    make(map[string]*Node),
		outgoing: make(map[string][]string),
		incoming: make(map[string][]string),
	}
}

// AddNode adds a node. Returns ErrInvalidNodeID for an empty ID and
// ErrDuplicateNodeID if the ID is taken.
func (g *Graph) AddNode(n Node) error {
	if n.ID == "" {
		return ErrInvalidNodeID
	}
	if _, exists := g.nodes[n.ID]; exists {
		return ErrDuplicateNodeID
	}
	node := &n
	g.nodes[n.ID] = node
	g.order = append(g.order, n.ID)
	return nil
}

// AddEdge links two existing nodes. Repeated edges are ignored.
func (g *Graph) AddEdge(from, to string) error {
	if _, ok := g.nodes[from]; !ok {
		return ErrUnknownSourceNode
	}
	if _, ok := g.nodes[to]; !ok {
		return ErrUnknownTargetNode
	}
	if slices.Contains(g.outgoing[from], to) {
		return nil
	}
	g.edges = append(g.edges, Edge{From: from, To: to})
	g.outgoing[from] = append(g.outgoing[from], to)
	g.incoming[to] = append(g.incoming[to], from)
	return nil
}

// Node returns the node with the given ID.
func (g *Graph) Node(id string) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Nodes returns all nodes in insertion order.
func (g *Graph) Nodes() []*Node {
	out := make([]*Node, len(g.order))
	for i, id := range g.order {
		out[i] = g.nodes[id]
	}
	return out
}

// Edges returns a copy of all edges in insertion order.
func (g *Graph) Edges() []Edge { return slices.Clone(g.edges) }

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int { return len(g.nodes) }

// EdgeCount returns the number of edges.
func (g *Graph) EdgeCount() int { return len(g.edges) }

// Children returns the dependencies of a node. The slice must not be modified.
func (g *Graph) Children(id string) []string { return g.outgoing[id] }

// Roots returns the nodes nothing depends on, in insertion order.
func (g *Graph) Roots() []string {
	var roots []string
	for _, id := range g.order {
		if len(g.incoming[id]) == 0 {
			roots = append(roots, id)
		}
	}
	return roots
}

// Walk visits nodes breadth-first from roots, each identity at most once.
// With no roots it visits every node, starting from [Graph.Roots] and then
// any nodes only reachable through cycles. fn returning false stops the walk.
func (g *Graph) Walk(roots []string, fn func(*Node) bool) {
	seen := make(map[string]bool, len(g.nodes))
	visit := func(start string) bool {
		queue := []string{start}
		for len(queue) > 0 {
			id := queue[0]
			queue = queue[1:]
			if seen[id] {
				continue
			}
			n, ok := g.nodes[id]
			if !ok {
				continue
			}
			seen[id] = true
			if !fn(n) {
				return false
			}
			queue = append(queue, g.outgoing[id]...)
		}
		return true
	}

	starts := roots
	if len(starts) == 0 {
		starts = append(g.Roots(), g.order...)
	}
	for _, id := range starts {
		if !visit(id) {
			return
		}
	}
}

// Ecosystems returns the distinct ecosystem tags in insertion order.
func (g *Graph) Ecosystems() []string {
	var out []string
	for _, id := range g.order {
		if eco := g.nodes[id].Ecosystem; !slices.Contains(out, eco) {
			out = append(out, eco)
		}
	}
	return out
}

// Merge combines graphs, typically one per ecosystem or package. Nodes with
// the same identity merge under the same rules as [Build].
func Merge(graphs ...*Graph) (*Graph, error) {
	out := New()
	for _, g := range graphs {
		for _, id := range g.order {
			n := *g.nodes[id]
			if existing, ok := out.nodes[id]; ok {
				if err := mergeNode(existing, &n); err != nil {
					return nil, err
				}
				continue
			}
			n.Checksums = slices.Clone(n.Checksums)
			n.Properties = maps.Clone(n.Properties)
			_ = out.AddNode(n)
		}
		for _, e := range g.edges {
			_ = out.AddEdge(e.From, e.To)
		}
	}
	return out, nil
}

// mergeNode folds a later occurrence of an identity into the first one.
// Checksums conflict when both occurrences name an algorithm with different
// values; otherwise their union is kept.
func mergeNode(dst, src *Node) error {
	for _, algo := range sharedAlgorithms(dst.Checksums, src.Checksums) {
		if !checksum.SameSet(byAlgorithm(dst.Checksums, algo), byAlgorithm(src.Checksums, algo)) {
			return perrors.New(perrors.ErrCodeChecksumConflict,
				"%s declared with checksums %s and %s", dst.ID, formatSums(dst.Checksums), formatSums(src.Checksums))
		}
	}
	for _, c := range src.Checksums {
		if !checksum.Contains(dst.Checksums, c) {
			dst.Checksums = append(dst.Checksums, c)
		}
	}
	dst.Dev = dst.Dev && src.Dev
	dst.Optional = dst.Optional && src.Optional
	if dst.License == "" {
		dst.License = src.License
	}
	for k, v := range src.Properties {
		if _, ok := dst.Properties[k]; !ok {
			if dst.Properties == nil {
				dst.Properties = make(map[string]string)
			}
			dst.Properties[k] = v
		}
	}
	return nil
}

func sharedAlgorithms(a, b []checksum.Checksum) []checksum.Algorithm {
	var out []checksum.Algorithm
	for _, c := range a {
		if slices.Contains(out, c.Algorithm) {
			continue
		}
		if slices.ContainsFunc(b, func(o checksum.Checksum) bool { return o.Algorithm == c.Algorithm }) {
			out = append(out, c.Algorithm)
		}
	}
	return out
}

func byAlgorithm(sums []checksum.Checksum, algo checksum.Algorithm) []checksum.Checksum {
	var out []checksum.Checksum
	for _, c := range sums {
		if c.Algorithm == algo {
			out = append(out, c)
		}
	}
	return out
}

func formatSums(sums []checksum.Checksum) string {
	parts := make([]string, len(sums))
	for i, c := range checksum.Sorted(sums) {
		parts[i] = c.String()
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// Fingerprint summarizes identities, checksums and edges. Equal graphs have
// equal fingerprints regardless of insertion order.
func (g *Graph) Fingerprint() uint64 {
	ids := slices.Sorted(maps.Keys(g.nodes))
	d := xxhash.New()
	for _, id := range ids {
		_, _ = d.WriteString(id)
		_, _ = d.WriteString("\x00")
		for _, c := range checksum.Sorted(g.nodes[id].Checksums) {
			_, _ = d.WriteString(c.String())
			_, _ = d.WriteString("\x00")
		}
		children := slices.Sorted(slices.Values(g.outgoing[id]))
		for _, c := range children {
			_, _ = d.WriteString("->")
			_, _ = d.WriteString(c)
		}
		_, _ = d.WriteString("\n")
	}
	return d.Sum64()
}
