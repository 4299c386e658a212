package report

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/goccy/go-graphviz"

	"github.com/matzehuels/prefetch/pkg/graph"
	"github.com/matzehuels/prefetch/pkg/locator"
)

// DOTOptions configures [ToDOT].
type DOTOptions struct {
	// Detailed labels nodes with their version and locator kind.
	Detailed bool
}

// kindColors fills nodes by where their artifact comes from.
var kindColors = map[locator.Kind]string{
	locator.KindRegistry:  "white",
	locator.KindGit:       "lightyellow",
	locator.KindFile:      "lightblue",
	locator.KindWorkspace: "honeydew",
	locator.KindPatch:     "mistyrose",
	locator.KindBuiltin:   "whitesmoke",
}

// ToDOT renders g as a Graphviz digraph. When the graph spans several
// ecosystems each one becomes a cluster. Dev dependencies are dashed and
// optional ones have grey text.
func ToDOT(g *graph.Graph, opts DOTOptions) string {
	var b strings.Builder
	b.WriteString("digraph G {\n")
	b.WriteString("  rankdir=TB; ranksep=0.5; nodesep=0.3; bgcolor=\"transparent\";\n")
	b.WriteString("  node [shape=box, style=\"rounded,filled\", fontsize=14, margin=\"0.2,0.1\"];\n")

	byEco := make(map[string][]*graph.Node)
	for _, n := range g.Nodes() {
		byEco[n.Ecosystem] = append(byEco[n.Ecosystem], n)
	}
	ecos := g.Ecosystems()
	clustered := len(ecos) > 1

	for i, eco := range ecos {
		indent := "  "
		if clustered {
			fmt.Fprintf(&b, "  subgraph cluster_%d {\n    label=%q; style=dashed;\n", i, eco)
			indent = "    "
		}
		for _, n := range byEco[eco] {
			fmt.Fprintf(&b, "%s%q [%s];\n", indent, n.ID, strings.Join(nodeAttrs(n, opts.Detailed), ", "))
		}
		if clustered {
			b.WriteString("  }\n")
		}
	}

	for _, e := range g.Edges() {
		fmt.Fprintf(&b, "  %q -> %q;\n", e.From, e.To)
	}
	b.WriteString("}\n")
	return b.String()
}

func nodeLabel(n *graph.Node, detailed bool) string {
	name := n.Name
	if name == "" && n.Locator != nil {
		name = n.Locator.String()
	}
	if !detailed {
		return name
	}
	if n.Version != "" {
		name += "@" + n.Version
	}
	if n.Locator != nil && n.Locator.Kind() != locator.KindRegistry {
		name += "\n(" + string(n.Locator.Kind()) + ")"
	}
	return name
}

func nodeAttrs(n *graph.Node, detailed bool) []string {
	attrs := []string{"label=" + strconv.Quote(nodeLabel(n, detailed))}
	if n.Locator != nil {
		if c, ok := kindColors[n.Locator.Kind()]; ok {
			attrs = append(attrs, "fillcolor="+c)
		}
	}
	if n.Dev {
		attrs = append(attrs, `style="rounded,filled,dashed"`)
	}
	if n.Optional {
		attrs = append(attrs, "fontcolor=grey40")
	}
	return attrs
}

// RenderSVG lays out a DOT document with the embedded Graphviz and returns
// the SVG.
func RenderSVG(dot string) ([]byte, error) {
	ctx := context.Background()
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("init graphviz: %w", err)
	}
	defer gv.Close()

	doc, err := graphviz.ParseBytes([]byte(dot))
	if err != nil {
		return nil, fmt.Errorf("parse DOT: %w", err)
	}
	defer doc.Close()

	var out bytes.Buffer
	if err := gv.Render(ctx, doc, graphviz.SVG, &out); err != nil {
		return nil, fmt.Errorf("render SVG: %w", err)
	}
	return fitViewBox(out.Bytes()), nil
}

var (
	svgOpenTag = regexp.MustCompile(`<svg[^>]*>`)
	svgViewBox = regexp.MustCompile(`viewBox="([-0-9.]+) ([-0-9.]+) ([0-9.]+) ([0-9.]+)"`)
)

// fitViewBox replaces the root svg tag with one whose viewBox starts at the
// origin and whose width and height match it, so the image scales cleanly
// when embedded.
func fitViewBox(svg []byte) []byte {
	m := svgViewBox.FindSubmatch(svg)
	if m == nil {
		return svg
	}
	w, errW := strconv.ParseFloat(string(m[3]), 64)
	h, errH := strconv.ParseFloat(string(m[4]), 64)
	if errW != nil || errH != nil || w <= 0 || h <= 0 {
		return svg
	}

	loc := svgOpenTag.FindIndex(svg)
	tag := fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 %.2f %.2f" width="%.0f" height="%.0f">`, w, h, w, h)
	return slices.Concat(svg[:loc[0]], []byte(tag), svg[loc[1]:])
}
