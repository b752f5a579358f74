package layout

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"slices"
)

// SceneDiff is the difference between two scenes.
type SceneDiff struct {
	AddedNodes    []RenderNode `json:"addedNodes"`
	RemovedNodes  []string     `json:"removedNodes"`
	ModifiedNodes []RenderNode `json:"modifiedNodes"`
	AddedEdges    []RenderEdge `json:"addedEdges"`
	RemovedEdges  []string     `json:"removedEdges"`
	ModifiedEdges []RenderEdge `json:"modifiedEdges"`
	FullScene     bool         `json:"fullScene"` // no previous snapshot to diff against
}

// Empty reports whether applying the diff would change nothing.
func (d *SceneDiff) Empty() bool {
	return len(d.AddedNodes) == 0 && len(d.RemovedNodes) == 0 && len(d.ModifiedNodes) == 0 &&
		len(d.AddedEdges) == 0 && len(d.RemovedEdges) == 0 && len(d.ModifiedEdges) == 0
}

// SceneSnapshot is an indexed scene kept for diffing.
type SceneSnapshot struct {
	Hash  string
	Nodes map[string]RenderNode
	Edges map[string]RenderEdge
}

// NewSnapshot indexes scene and hashes it.
func NewSnapshot(scene Scene) *SceneSnapshot {
	snap := &SceneSnapshot{
		Nodes: make(map[string]RenderNode, len(scene.Nodes)),
		Edges: make(map[string]RenderEdge, len(scene.Edges)),
	}
	for _, n := range scene.Nodes {
		snap.Nodes[n.ID] = n
	}
	for _, e := range scene.Edges {
		snap.Edges[e.ID] = e
	}
	snap.Hash = hashScene(scene)
	return snap
}

func hashScene(scene Scene) string {
	data, err := json.Marshal(scene)
	if err != nil {
		return ""
	}
	return fmt.Sprintf("%x", sha256.Sum256(data))
}

// ComputeDiff compares scene against old. A nil old yields the full scene.
// Entries are in scene order; removals are sorted by id.
func ComputeDiff(old *SceneSnapshot, scene Scene) *SceneDiff {
	if old == nil {
		return &SceneDiff{
			AddedNodes: scene.Nodes,
			AddedEdges: scene.Edges,
			FullScene:  true,
		}
	}

	diff := &SceneDiff{}
	if old.Hash != "" && old.Hash == hashScene(scene) {
		return diff
	}

	present := make(map[string]struct{}, len(scene.Nodes))
	for _, n := range scene.Nodes {
		present[n.ID] = struct{}{}
		prev, exists := old.Nodes[n.ID]
		switch {
		case !exists:
			diff.AddedNodes = append(diff.AddedNodes, n)
		case !nodesEqual(prev, n):
			diff.ModifiedNodes = append(diff.ModifiedNodes, n)
		}
	}
	for id := range old.Nodes {
		if _, ok := present[id]; !ok {
			diff.RemovedNodes = append(diff.RemovedNodes, id)
		}
	}
	slices.Sort(diff.RemovedNodes)

	presentEdges := make(map[string]struct{}, len(scene.Edges))
	for _, e := range scene.Edges {
		presentEdges[e.ID] = struct{}{}
		prev, exists := old.Edges[e.ID]
		switch {
		case !exists:
			diff.AddedEdges = append(diff.AddedEdges, e)
		case prev != e:
			diff.ModifiedEdges = append(diff.ModifiedEdges, e)
		}
	}
	for id := range old.Edges {
		if _, ok := presentEdges[id]; !ok {
			diff.RemovedEdges = append(diff.RemovedEdges, id)
		}
	}
	slices.Sort(diff.RemovedEdges)

	return diff
}

// nodesEqual ignores the placement hint, which only matters for new nodes.
func nodesEqual(a, b RenderNode) bool {
	return a.ID == b.ID &&
		a.Label == b.Label &&
		a.Size == b.Size &&
		a.FontSize == b.FontSize &&
		a.Mass == b.Mass &&
		a.Color == b.Color
}
