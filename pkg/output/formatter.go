package output

import (
	"cmp"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/fatih/color"

	"github.com/ritzau/costar/pkg/explorer"
	"github.com/ritzau/costar/pkg/graphstore"
	"github.com/ritzau/costar/pkg/model"
)

var (
	bold   = color.New(color.Bold)
	red    = color.New(color.FgRed)
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	cyan   = color.New(color.FgCyan)
	faint  = color.New(color.Faint)
)

// PrintSearchResults lists matching actors, numbered from 1.
func PrintSearchResults(w io.Writer, query string, actors []model.Actor) {
	bold.Fprintf(w, "Search: %q\n", query)
	if len(actors) == 0 {
		yellow.Fprintln(w, "No matching actors")
		return
	}
	for i, a := range actors {
		fmt.Fprintf(w, "%3d. ", i+1)
		cyan.Fprint(w, a.Name)
		if a.BirthYear > 0 {
			fmt.Fprintf(w, " (%d)", a.BirthYear)
		}
		faint.Fprintf(w, "  %s\n", a.ID)
	}
}

// PrintMerge summarizes what an expansion changed.
func PrintMerge(w io.Writer, label string, res graphstore.MergeResult) {
	if !res.Changed() {
		faint.Fprintf(w, "%s: nothing new\n", label)
		return
	}
	green.Fprintf(w, "Expanded %s", label)
	fmt.Fprintf(w, ": +%d actors, +%d edges, %d merged, %d hidden links\n",
		len(res.AddedNodes), len(res.NewEdges), len(res.MergedEdges), len(res.NewPseudoEdges))
	if len(res.Skipped) > 0 {
		red.Fprintf(w, "  skipped %d malformed edge(s):\n", len(res.Skipped))
		for _, s := range res.Skipped {
			yellow.Fprintf(w, "    %s: %v\n", s.EdgeID, s.Err)
		}
	}
}

// PrintGraphSummary prints the size of the explored graph and the
// best-connected actors.
func PrintGraphSummary(w io.Writer, store *graphstore.Store, expanded []string, top int) {
	bold.Fprintln(w, "Co-star graph")
	bold.Fprintln(w, "=============")
	fmt.Fprintf(w, "Actors: %d\n", store.NodeCount())
	fmt.Fprintf(w, "Edges: %d (+%d hidden)\n", len(store.Edges()), store.PseudoEdgeCount())

	labels := make([]string, 0, len(expanded))
	for _, id := range expanded {
		if n, ok := store.Node(id); ok {
			labels = append(labels, n.Label)
		}
	}
	fmt.Fprintf(w, "Expanded: %s\n", strings.Join(labels, ", "))

	if top <= 0 {
		return
	}
	nodes := store.Nodes()
	degree := make(map[string]int, len(nodes))
	for _, n := range nodes {
		degree[n.ID] = store.NumConnections(n.ID)
	}
	sortByDegree(nodes, degree)
	if len(nodes) > top {
		nodes = nodes[:top]
	}
	fmt.Fprintln(w)
	bold.Fprintln(w, "Most connected:")
	for _, n := range nodes {
		c := yellow
		if degree[n.ID] > 1 {
			c = green
		}
		c.Fprintf(w, "  %-28s %d\n", n.Label, degree[n.ID])
	}
}

// PrintNodeDetails renders a node tooltip. preview < 0 means unknown.
func PrintNodeDetails(w io.Writer, d explorer.NodeDetails, preview int) {
	cyan.Fprint(w, d.Label)
	if d.BirthYear > 0 {
		fmt.Fprintf(w, " (b. %d)", d.BirthYear)
	}
	if d.Expanded {
		green.Fprint(w, " [expanded]")
	}
	fmt.Fprintln(w)
	faint.Fprintf(w, "  %s\n", d.ID)
	fmt.Fprintf(w, "  connections: %d\n", d.Connections)
	if !d.Expanded && preview >= 0 {
		fmt.Fprintf(w, "  expanding adds: %d\n", preview)
	}
}

// PrintEdgeDetails lists every shared movie of an edge.
func PrintEdgeDetails(w io.Writer, d explorer.EdgeDetails) {
	cyan.Fprintf(w, "%s & %s\n", d.FromLabel, d.ToLabel)
	for _, ic := range d.InCommon {
		fmt.Fprintf(w, "  %s\n", ic.String())
	}
}

// PrintError prints err with any hints attached to it.
func PrintError(w io.Writer, err error, hints []string) {
	red.Fprintf(w, "Error: %v\n", err)
	for _, h := range hints {
		yellow.Fprintf(w, "  hint: %s\n", h)
	}
}

// sortByDegree orders nodes by descending degree, then by label.
func sortByDegree(nodes []graphstore.Node, degree map[string]int) {
	slices.SortStableFunc(nodes, func(a, b graphstore.Node) int {
		if c := cmp.Compare(degree[b.ID], degree[a.ID]); c != 0 {
			return c
		}
		return strings.Compare(a.Label, b.Label)
	})
}
