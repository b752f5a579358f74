// Package layout connects the graph store to a force-directed rendering
// engine. The engine is a black box behind the Engine interface; the Adapter
// pushes store snapshots into it as diffs while keeping the camera and
// frozen nodes where the user left them.
package layout

import (
	"github.com/ritzau/costar/pkg/graphstore"
)

// Point is a layout or screen coordinate.
type Point = graphstore.Position

// View is the camera.
type View struct {
	Position Point
	Scale    float64
}

// RenderNode is a node as the engine draws it.
type RenderNode struct {
	ID       string  `json:"id"`
	Label    string  `json:"label"`
	Size     float64 `json:"size"`
	FontSize float64 `json:"fontSize"`
	Mass     float64 `json:"mass"`
	Color    string  `json:"color"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
}

// RenderEdge is a visible committed edge or a hidden pseudo-edge.
type RenderEdge struct {
	ID             string  `json:"id"`
	From           string  `json:"from"`
	To             string  `json:"to"`
	Label          string  `json:"label,omitempty"`
	Color          string  `json:"color,omitempty"`
	Width          float64 `json:"width,omitempty"`
	Hidden         bool    `json:"hidden,omitempty"`
	Length         float64 `json:"length,omitempty"`
	SpringConstant float64 `json:"springConstant,omitempty"`
}

// Scene is everything the engine should show.
type Scene struct {
	Nodes []RenderNode `json:"nodes"`
	Edges []RenderEdge `json:"edges"`
}

// SceneFromSnapshot converts a store snapshot into render items. Pseudo-edges
// follow the committed edges and are hidden.
func SceneFromSnapshot(snap graphstore.Snapshot) Scene {
	scene := Scene{
		Nodes: make([]RenderNode, 0, len(snap.Nodes)),
		Edges: make([]RenderEdge, 0, len(snap.Edges)+len(snap.PseudoEdges)),
	}
	for _, n := range snap.Nodes {
		scene.Nodes = append(scene.Nodes, RenderNode{
			ID:       n.ID,
			Label:    n.Label,
			Size:     n.Size,
			FontSize: n.FontSize,
			Mass:     n.Mass,
			Color:    n.Color,
			X:        n.Position.X,
			Y:        n.Position.Y,
		})
	}
	for _, e := range snap.Edges {
		scene.Edges = append(scene.Edges, RenderEdge{
			ID:    e.ID,
			From:  e.From,
			To:    e.To,
			Label: e.Label,
			Color: e.Color,
			Width: e.Width,
		})
	}
	for _, p := range snap.PseudoEdges {
		scene.Edges = append(scene.Edges, RenderEdge{
			ID:             p.ID,
			From:           p.From,
			To:             p.To,
			Hidden:         true,
			Length:         p.Length,
			SpringConstant: p.SpringConstant,
		})
	}
	return scene
}
