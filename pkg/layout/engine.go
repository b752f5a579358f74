package layout

// EventKind names an interaction reported by the engine.
type EventKind string

const (
	EventNodeClick EventKind = "node.click"
	EventNodeHover EventKind = "node.hover"
	EventNodeBlur  EventKind = "node.blur"
	EventEdgeHover EventKind = "edge.hover"
	EventEdgeBlur  EventKind = "edge.blur"
)

// Event is one user interaction.
type Event struct {
	Kind    EventKind
	NodeID  string
	EdgeID  string
	Pointer Point // screen coordinates
}

// Engine is a force-directed rendering engine.
type Engine interface {
	SetOptions(opts Options)
	// Update adds or replaces nodes and edges by id. X and Y only seed new
	// nodes; existing nodes keep their simulated position.
	Update(nodes []RenderNode, edges []RenderEdge)
	Remove(nodeIDs, edgeIDs []string)
	// Position is the current layout position of a node.
	Position(id string) (Point, bool)
	// CanvasToDOM converts a layout position into screen coordinates.
	CanvasToDOM(p Point) Point
	View() View
	SetView(v View)
	SetFixed(id string, fixed bool)
	Focus(id string, scale float64)
	Events() <-chan Event
}

// MoveNotifier is implemented by engines that report node movement.
type MoveNotifier interface {
	// OnMove registers fn for position changes. The returned func unregisters it.
	OnMove(fn func(id string, p Point)) (cancel func())
}
