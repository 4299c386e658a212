package graph

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"
)

// Document is the JSON serialization of a graph.
type Document struct {
	Fingerprint string         `json:"fingerprint"`
	Nodes       []DocumentNode `json:"nodes"`
	Edges       []DocumentEdge `json:"edges"`
}

// DocumentNode is one serialized node.
type DocumentNode struct {
	ID         string            `json:"id"`
	Ecosystem  string            `json:"ecosystem"`
	Name       string            `json:"name"`
	Version    string            `json:"version,omitempty"`
	Kind       string            `json:"kind"`
	Checksums  []string          `json:"checksums,omitempty"`
	Dev        bool              `json:"dev,omitempty"`
	Optional   bool              `json:"optional,omitempty"`
	License    string            `json:"license,omitempty"`
	Properties map[string]string `json:"properties,omitempty"`
}

// DocumentEdge is one serialized edge.
type DocumentEdge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// ToDocument converts g to its serialized form. Nodes are sorted by ID for
// deterministic output.
func ToDocument(g *Graph) Document {
	doc := Document{Fingerprint: fmt.Sprintf("%016x", g.Fingerprint())}
	nodes := g.Nodes()
	slices.SortFunc(nodes, func(a, b *Node) int { return strings.Compare(a.ID, b.ID) })
	for _, n := range nodes {
		dn := DocumentNode{
			ID:         n.ID,
			Ecosystem:  n.Ecosystem,
			Name:       n.Name,
			Version:    n.Version,
			Kind:       string(n.Locator.Kind()),
			Dev:        n.Dev,
			Optional:   n.Optional,
			License:    n.License,
			Properties: n.Properties,
		}
		for _, c := range n.Checksums {
			dn.Checksums = append(dn.Checksums, c.String())
		}
		doc.Nodes = append(doc.Nodes, dn)
	}
	for _, e := range g.Edges() {
		doc.Edges = append(doc.Edges, DocumentEdge(e))
	}
	return doc
}

// MarshalGraph converts a graph to indented JSON.
func MarshalGraph(g *Graph) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteGraph(g, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteGraph writes a graph as JSON to w.
func WriteGraph(g *Graph, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(ToDocument(g)); err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	return nil
}
