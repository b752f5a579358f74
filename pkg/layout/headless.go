package layout

import (
	"math"
	"slices"
	"sync"
)

// Viewport size the headless engine maps screen coordinates into.
const (
	ViewportWidth  = 1280
	ViewportHeight = 800
)

const (
	stepDT     = 0.5
	minDist    = 0.1
	eventQueue = 64
)

type simNode struct {
	RenderNode
	pos   Point
	vel   Point
	fixed bool
}

// HeadlessEngine is an in-process Engine with a small force simulation. It
// backs the CLI and tests, and reports node moves.
type HeadlessEngine struct {
	mu      sync.Mutex
	opts    Options
	nodes   map[string]*simNode
	order   []string
	edges   map[string]RenderEdge
	view    View
	focused string

	events chan Event
	closed bool

	lmu       sync.Mutex
	listeners map[int]func(string, Point)
	nextID    int
}

var (
	_ Engine       = (*HeadlessEngine)(nil)
	_ MoveNotifier = (*HeadlessEngine)(nil)
)

// NewHeadlessEngine creates an empty engine with forceAtlas2Based physics.
func NewHeadlessEngine() *HeadlessEngine {
	opts, _ := Physics(SolverForceAtlas2Based)
	return &HeadlessEngine{
		opts:      opts,
		nodes:     make(map[string]*simNode),
		edges:     make(map[string]RenderEdge),
		view:      View{Scale: 1},
		events:    make(chan Event, eventQueue),
		listeners: make(map[int]func(string, Point)),
	}
}

func (h *HeadlessEngine) SetOptions(opts Options) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.opts = opts
}

// Options returns the active options.
func (h *HeadlessEngine) Options() Options {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.opts
}

func (h *HeadlessEngine) Update(nodes []RenderNode, edges []RenderEdge) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, n := range nodes {
		if existing, ok := h.nodes[n.ID]; ok {
			existing.RenderNode = n
			continue
		}
		h.nodes[n.ID] = &simNode{RenderNode: n, pos: Point{X: n.X, Y: n.Y}}
		h.order = append(h.order, n.ID)
	}
	for _, e := range edges {
		h.edges[e.ID] = e
	}
}

func (h *HeadlessEngine) Remove(nodeIDs, edgeIDs []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, id := range nodeIDs {
		delete(h.nodes, id)
	}
	h.order = slices.DeleteFunc(h.order, func(id string) bool {
		_, ok := h.nodes[id]
		return !ok
	})
	for _, id := range edgeIDs {
		delete(h.edges, id)
	}
}

func (h *HeadlessEngine) Position(id string) (Point, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	n, ok := h.nodes[id]
	if !ok {
		return Point{}, false
	}
	return n.pos, true
}

// SetPosition moves a node, as a drag would.
func (h *HeadlessEngine) SetPosition(id string, p Point) {
	h.mu.Lock()
	n, ok := h.nodes[id]
	if ok {
		n.pos = p
		n.vel = Point{}
	}
	h.mu.Unlock()
	if ok {
		h.notify(map[string]Point{id: p})
	}
}

func (h *HeadlessEngine) CanvasToDOM(p Point) Point {
	h.mu.Lock()
	defer h.mu.Unlock()
	return Point{
		X: (p.X-h.view.Position.X)*h.view.Scale + ViewportWidth/2,
		Y: (p.Y-h.view.Position.Y)*h.view.Scale + ViewportHeight/2,
	}
}

func (h *HeadlessEngine) View() View {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.view
}

func (h *HeadlessEngine) SetView(v View) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.view = v
}

func (h *HeadlessEngine) SetFixed(id string, fixed bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if n, ok := h.nodes[id]; ok {
		n.fixed = fixed
		n.vel = Point{}
	}
}

// Fixed reports whether a node is pinned.
func (h *HeadlessEngine) Fixed(id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	n, ok := h.nodes[id]
	return ok && n.fixed
}

func (h *HeadlessEngine) Focus(id string, scale float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	n, ok := h.nodes[id]
	if !ok {
		return
	}
	h.view = View{Position: n.pos, Scale: scale}
	h.focused = id
}

// Focused returns the last focused node id.
func (h *HeadlessEngine) Focused() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.focused
}

// Node returns the render data of a node.
func (h *HeadlessEngine) Node(id string) (RenderNode, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	n, ok := h.nodes[id]
	if !ok {
		return RenderNode{}, false
	}
	return n.RenderNode, true
}

// Edge returns the render data of an edge.
func (h *HeadlessEngine) Edge(id string) (RenderEdge, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	e, ok := h.edges[id]
	return e, ok
}

// Counts returns the number of nodes and edges held.
func (h *HeadlessEngine) Counts() (nodes, edges int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.nodes), len(h.edges)
}

func (h *HeadlessEngine) Events() <-chan Event { return h.events }

// Emit queues an interaction. It reports false when the queue is full or
// the engine is closed.
func (h *HeadlessEngine) Emit(ev Event) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	select {
	case h.events <- ev:
		return true
	default:
		return false
	}
}

// Close ends the event stream.
func (h *HeadlessEngine) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.closed {
		h.closed = true
		close(h.events)
	}
}

func (h *HeadlessEngine) OnMove(fn func(string, Point)) func() {
	h.lmu.Lock()
	defer h.lmu.Unlock()
	id := h.nextID
	h.nextID++
	h.listeners[id] = fn
	return func() {
		h.lmu.Lock()
		defer h.lmu.Unlock()
		delete(h.listeners, id)
	}
}

func (h *HeadlessEngine) notify(moved map[string]Point) {
	if len(moved) == 0 {
		return
	}
	h.lmu.Lock()
	fns := make([]func(string, Point), 0, len(h.listeners))
	for _, fn := range h.listeners {
		fns = append(fns, fn)
	}
	h.lmu.Unlock()

	ids := make([]string, 0, len(moved))
	for id := range moved {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, fn := range fns {
		for _, id := range ids {
			fn(id, moved[id])
		}
	}
}

// Step advances the simulation n ticks and returns the largest node speed
// of the last tick. Listeners hear about every node that moved.
func (h *HeadlessEngine) Step(n int) float64 {
	var speed float64
	moved := make(map[string]Point)
	for range n {
		var tick map[string]Point
		speed, tick = h.step()
		for id, p := range tick {
			moved[id] = p
		}
	}
	h.notify(moved)
	return speed
}

// Settle steps until the fastest node is below MinVelocity or limit ticks
// ran, and returns the ticks taken.
func (h *HeadlessEngine) Settle(limit int) int {
	minV := h.Options().MinVelocity
	for i := 1; i <= limit; i++ {
		if h.Step(1) < minV {
			return i
		}
	}
	return limit
}

func (h *HeadlessEngine) step() (float64, map[string]Point) {
	h.mu.Lock()
	defer h.mu.Unlock()

	p := h.opts.Params
	force := make(map[string]Point, len(h.nodes))

	for i, aid := range h.order {
		a := h.nodes[aid]
		for _, bid := range h.order[i+1:] {
			b := h.nodes[bid]
			dx, dy, d := separation(a.pos, b.pos, i)
			// A negative gravitational constant pushes nodes apart.
			f := -p.GravitationalConstant * mass(a) * mass(b) / (d * d)
			addForce(force, aid, dx/d*f, dy/d*f)
			addForce(force, bid, -dx/d*f, -dy/d*f)
		}
		addForce(force, aid, -a.pos.X*p.CentralGravity*mass(a), -a.pos.Y*p.CentralGravity*mass(a))
	}

	for _, e := range h.edges {
		a, okA := h.nodes[e.From]
		b, okB := h.nodes[e.To]
		if !okA || !okB || e.From == e.To {
			continue
		}
		length, k := p.SpringLength, p.SpringConstant
		if e.Length > 0 {
			length = e.Length
		}
		if e.SpringConstant > 0 {
			k = e.SpringConstant
		}
		dx, dy, d := separation(b.pos, a.pos, 0)
		f := k * (d - length)
		addForce(force, e.From, dx/d*f, dy/d*f)
		addForce(force, e.To, -dx/d*f, -dy/d*f)
	}

	var fastest float64
	moved := make(map[string]Point)
	for _, id := range h.order {
		n := h.nodes[id]
		if n.fixed {
			continue
		}
		f := force[id]
		m := mass(n)
		n.vel.X = (n.vel.X + f.X/m*stepDT) * (1 - p.Damping)
		n.vel.Y = (n.vel.Y + f.Y/m*stepDT) * (1 - p.Damping)
		n.pos.X += n.vel.X * stepDT
		n.pos.Y += n.vel.Y * stepDT
		if v := math.Hypot(n.vel.X, n.vel.Y); v > 0 {
			moved[id] = n.pos
			fastest = max(fastest, v)
		}
	}
	return fastest, moved
}

// separation returns the vector from b to a and its length, nudging
// coincident nodes apart deterministically.
func separation(a, b Point, salt int) (dx, dy, d float64) {
	dx, dy = a.X-b.X, a.Y-b.Y
	d = math.Hypot(dx, dy)
	if d < minDist {
		angle := float64(salt+1) * 2.399963 // golden angle
		dx, dy = math.Cos(angle)*minDist, math.Sin(angle)*minDist
		d = minDist
	}
	return dx, dy, d
}

func mass(n *simNode) float64 {
	if n.Mass <= 0 {
		return 1
	}
	return n.Mass
}

func addForce(force map[string]Point, id string, x, y float64) {
	f := force[id]
	f.X += x
	f.Y += y
	force[id] = f
}
