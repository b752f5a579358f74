package layout

import (
	"context"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ritzau/costar/pkg/graphstore"
	"github.com/ritzau/costar/pkg/logging"
	"github.com/ritzau/costar/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingEngine logs calls and, like a real canvas, resets the camera on
// every update.
type recordingEngine struct {
	mu        sync.Mutex
	opts      Options
	updates   int
	removed   []string
	nodes     map[string]RenderNode
	positions map[string]Point
	fixed     map[string]bool
	view      View
	focused   string
	scale     float64
	events    chan Event
}

func newRecordingEngine() *recordingEngine {
	return &recordingEngine{
		nodes:     map[string]RenderNode{},
		positions: map[string]Point{},
		fixed:     map[string]bool{},
		view:      View{Scale: 1},
		events:    make(chan Event, 8),
	}
}

func (r *recordingEngine) SetOptions(o Options) { r.opts = o }

func (r *recordingEngine) Update(nodes []RenderNode, edges []RenderEdge) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates++
	for _, n := range nodes {
		r.nodes[n.ID] = n
		if _, ok := r.positions[n.ID]; !ok {
			r.positions[n.ID] = Point{X: n.X, Y: n.Y}
		}
	}
	r.view = View{Scale: 1}
}

func (r *recordingEngine) Remove(nodeIDs, edgeIDs []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removed = append(r.removed, nodeIDs...)
	r.removed = append(r.removed, edgeIDs...)
	for _, id := range nodeIDs {
		delete(r.nodes, id)
		delete(r.positions, id)
	}
}

func (r *recordingEngine) Position(id string) (Point, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.positions[id]
	return p, ok
}

func (r *recordingEngine) setPosition(id string, p Point) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.positions[id] = p
}

func (r *recordingEngine) CanvasToDOM(p Point) Point { return Point{X: p.X * 2, Y: p.Y * 2} }
func (r *recordingEngine) View() View                { return r.view }
func (r *recordingEngine) SetView(v View)            { r.view = v }
func (r *recordingEngine) SetFixed(id string, f bool) { r.fixed[id] = f }
func (r *recordingEngine) Focus(id string, s float64) { r.focused, r.scale = id, s }
func (r *recordingEngine) Events() <-chan Event       { return r.events }

func scene(nodes ...string) Scene {
	var s Scene
	for _, id := range nodes {
		s.Nodes = append(s.Nodes, RenderNode{ID: id, Label: id, Size: 16})
	}
	return s
}

func TestComputeDiff(t *testing.T) {
	full := ComputeDiff(nil, scene("a", "b"))
	assert.True(t, full.FullScene)
	assert.Len(t, full.AddedNodes, 2)

	old := NewSnapshot(scene("a", "b"))
	assert.True(t, ComputeDiff(old, scene("a", "b")).Empty())

	next := scene("b", "c")
	next.Nodes[0].Size = 20
	next.Nodes[1].X = 300
	next.Edges = []RenderEdge{{ID: "e", From: "b", To: "c", Width: 2.2}}

	diff := ComputeDiff(old, next)
	assert.False(t, diff.FullScene)
	assert.Equal(t, []string{"a"}, diff.RemovedNodes)
	require.Len(t, diff.ModifiedNodes, 1)
	assert.Equal(t, "b", diff.ModifiedNodes[0].ID)
	require.Len(t, diff.AddedNodes, 1)
	assert.Equal(t, "c", diff.AddedNodes[0].ID)
	assert.Len(t, diff.AddedEdges, 1)

	moved := scene("a", "b")
	moved.Nodes[0].X = 99
	assert.True(t, ComputeDiff(old, moved).Empty(), "placement hints alone are not a change")

	withEdge := NewSnapshot(next)
	relabelled := next
	relabelled.Edges = []RenderEdge{{ID: "e", From: "b", To: "c", Width: 3.2}}
	assert.Len(t, ComputeDiff(withEdge, relabelled).ModifiedEdges, 1)
}

func TestAdapterPreservesViewAndFrozenNodes(t *testing.T) {
	eng := newRecordingEngine()
	opts, err := Physics(SolverBarnesHut)
	require.NoError(t, err)
	a := NewAdapter(eng, opts)
	assert.Equal(t, SolverBarnesHut, eng.opts.Solver)

	a.Apply(scene("a", "b"))
	a.Freeze("a")
	eng.SetView(View{Position: Point{X: 10, Y: 20}, Scale: 2.5})

	diff := a.Apply(scene("a", "b", "c"))

	assert.Len(t, diff.AddedNodes, 1)
	assert.Equal(t, View{Position: Point{X: 10, Y: 20}, Scale: 2.5}, eng.View())
	assert.True(t, eng.fixed["a"])
	assert.False(t, eng.fixed["c"])
	assert.True(t, a.Frozen("a"))

	a.Unfreeze("a")
	assert.False(t, eng.fixed["a"])
}

func TestAdapterSkipsUnchangedScenes(t *testing.T) {
	eng := newRecordingEngine()
	a := NewAdapter(eng, Options{})

	a.Apply(scene("a"))
	a.Apply(scene("a"))
	a.Apply(scene("a"))

	assert.Equal(t, 1, eng.updates)
}

func TestAdapterRemovesDroppedEntities(t *testing.T) {
	eng := newRecordingEngine()
	a := NewAdapter(eng, Options{})

	a.Apply(scene("a", "b"))
	a.Freeze("b")
	a.Apply(scene("a"))

	assert.Equal(t, []string{"b"}, eng.removed)
	assert.False(t, a.Frozen("b"))
}

func TestAdapterFromStore(t *testing.T) {
	store := graphstore.New(graphstore.WithLogger(logging.Discard()), graphstore.WithRand(rand.New(rand.NewPCG(3, 4))))
	eng := NewHeadlessEngine()
	a := NewAdapter(eng, eng.Options())
	store.SetPositionSource(a)

	store.AddData([]model.NodeDTO{
		{ID: "A", Label: "A", Movies: []string{"m"}},
		{ID: "B", Label: "B", Movies: []string{"m"}},
		{ID: "C", Label: "C", Movies: []string{"m"}},
	}, []model.EdgeDTO{{ID: "A-m-B", From: "A", To: "B", MovieID: "m", Title: "M", Color: "#123456"}}, "")
	diff := a.ApplySnapshot(store.Snapshot())

	assert.True(t, diff.FullScene)
	nodes, edges := eng.Counts()
	assert.Equal(t, 3, nodes)
	assert.Equal(t, 3, edges, "one committed edge plus two pseudo-edges")

	pseudo, ok := eng.Edge("pseudo-A-C")
	require.True(t, ok)
	assert.True(t, pseudo.Hidden)
	assert.Equal(t, graphstore.PseudoEdgeLength, pseudo.Length)

	// The adapter now answers anchor positions for the store.
	eng.SetPosition("A", Point{X: 1000, Y: 1000})
	store.AddData([]model.NodeDTO{{ID: "D", Label: "D"}}, nil, "A")
	d, _ := store.Node("D")
	assert.InDelta(t, 1000, d.Position.X, graphstore.AnchorSpread)
	assert.InDelta(t, 1000, d.Position.Y, graphstore.AnchorSpread)
}

func TestAdapterDispatchesEvents(t *testing.T) {
	eng := NewHeadlessEngine()
	a := NewAdapter(eng, eng.Options())

	var clicks, hovers atomic.Int32
	a.On(EventNodeClick, func(ev Event) {
		assert.Equal(t, "A", ev.NodeID)
		clicks.Add(1)
	})
	a.On(EventEdgeHover, func(Event) { hovers.Add(1) })

	require.True(t, eng.Emit(Event{Kind: EventNodeClick, NodeID: "A"}))
	require.True(t, eng.Emit(Event{Kind: EventEdgeHover, EdgeID: "e"}))
	require.True(t, eng.Emit(Event{Kind: EventNodeBlur, NodeID: "A"}))
	eng.Close()

	require.NoError(t, a.Run(context.Background()))
	assert.Equal(t, int32(1), clicks.Load())
	assert.Equal(t, int32(1), hovers.Load())
	assert.False(t, eng.Emit(Event{Kind: EventNodeClick}))
}

func TestAdapterRunStopsOnCancel(t *testing.T) {
	a := NewAdapter(NewHeadlessEngine(), Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, a.Run(ctx), context.Canceled)
}

func TestAdapterFocus(t *testing.T) {
	eng := newRecordingEngine()
	a := NewAdapter(eng, Options{})
	a.Focus("A")
	assert.Equal(t, "A", eng.focused)
	assert.Equal(t, FocusScale, eng.scale)

	eng.setPosition("A", Point{X: 3, Y: 4})
	p, ok := a.ScreenPosition("A")
	require.True(t, ok)
	assert.Equal(t, Point{X: 6, Y: 8}, p)
}

func TestPhysics(t *testing.T) {
	fa, err := Physics(SolverForceAtlas2Based)
	require.NoError(t, err)
	assert.Equal(t, -50.0, fa.Params.GravitationalConstant)
	assert.Equal(t, 0.005, fa.Params.CentralGravity)
	assert.Equal(t, 80.0, fa.Params.SpringLength)
	assert.Equal(t, 0.85, fa.Params.Damping)
	assert.Equal(t, 0.75, fa.MinVelocity)
	assert.Equal(t, graphstore.EdgeBaseWidth, fa.EdgeWidth)

	_, err = Physics("repulsion")
	assert.Error(t, err)
	assert.Len(t, Solvers(), 2)
}

func TestHeadlessSimulation(t *testing.T) {
	eng := NewHeadlessEngine()
	eng.Update([]RenderNode{
		{ID: "a", Mass: 2, X: -300},
		{ID: "b", Mass: 2, X: 300},
		{ID: "pinned", Mass: 2, Y: 500},
	}, []RenderEdge{{ID: "e", From: "a", To: "b"}})
	eng.SetFixed("pinned", true)

	eng.Step(50)

	a, _ := eng.Position("a")
	b, _ := eng.Position("b")
	pinned, _ := eng.Position("pinned")
	assert.Less(t, b.X-a.X, 600.0, "the spring pulls a and b together")
	assert.Equal(t, Point{Y: 500}, pinned)
	assert.True(t, eng.Fixed("pinned"))

	ticks := eng.Settle(5000)
	assert.Less(t, ticks, 5000)
}

func TestHeadlessUpdateKeepsPositions(t *testing.T) {
	eng := NewHeadlessEngine()
	eng.Update([]RenderNode{{ID: "a", X: 5, Y: 5}}, nil)
	eng.SetPosition("a", Point{X: 50, Y: 50})
	eng.Update([]RenderNode{{ID: "a", Label: "renamed", X: 5, Y: 5}}, nil)

	p, _ := eng.Position("a")
	assert.Equal(t, Point{X: 50, Y: 50}, p)
	n, _ := eng.Node("a")
	assert.Equal(t, "renamed", n.Label)

	eng.Focus("a", FocusScale)
	assert.Equal(t, "a", eng.Focused())
	assert.Equal(t, Point{X: ViewportWidth / 2, Y: ViewportHeight / 2}, eng.CanvasToDOM(p))
}

func TestTrackerWithMoveNotifier(t *testing.T) {
	eng := NewHeadlessEngine()
	eng.Update([]RenderNode{{ID: "a"}, {ID: "b"}}, nil)
	tr := NewTracker(eng)

	var mu sync.Mutex
	var seen []Point
	tr.TrackNode(context.Background(), "a", func(p Point) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, p)
	})
	assert.Equal(t, "node:a", tr.Current())

	eng.SetPosition("a", Point{X: 10})
	eng.SetPosition("b", Point{X: 99})

	mu.Lock()
	require.Len(t, seen, 2, "initial position plus one move of a")
	assert.Equal(t, Point{X: ViewportWidth/2 + 10, Y: ViewportHeight / 2}, seen[1])
	mu.Unlock()

	tr.TrackEdge(context.Background(), "e", "a", "b", func(Point) {})
	assert.Equal(t, "edge:e", tr.Current())

	eng.SetPosition("a", Point{X: 20})
	mu.Lock()
	assert.Len(t, seen, 2, "switching entities stops the previous track")
	mu.Unlock()

	tr.Stop()
	assert.Empty(t, tr.Current())
}

// pollOnly hides the headless engine's move notifications.
type pollOnly struct{ *recordingEngine }

func TestTrackerPollingFallback(t *testing.T) {
	eng := pollOnly{newRecordingEngine()}
	eng.setPosition("a", Point{X: 1})
	tr := NewTracker(eng)
	tr.interval = time.Millisecond

	got := make(chan Point, 16)
	tr.TrackNode(context.Background(), "a", func(p Point) { got <- p })
	assert.Equal(t, Point{X: 2}, <-got)

	eng.setPosition("a", Point{X: 5})
	select {
	case p := <-got:
		assert.Equal(t, Point{X: 10}, p)
	case <-time.After(time.Second):
		t.Fatal("poll did not report the move")
	}

	tr.Stop()
	eng.setPosition("a", Point{X: 7})
	time.Sleep(10 * time.Millisecond)
	assert.Empty(t, got, "no callbacks after Stop")
}

func TestTrackerEdgeMidpoint(t *testing.T) {
	eng := pollOnly{newRecordingEngine()}
	eng.setPosition("a", Point{X: 0, Y: 0})
	eng.setPosition("b", Point{X: 10, Y: 20})
	tr := NewTracker(eng)
	defer tr.Stop()

	got := make(chan Point, 1)
	tr.TrackEdge(context.Background(), "e", "a", "b", func(p Point) {
		select {
		case got <- p:
		default:
		}
	})
	assert.Equal(t, Point{X: 10, Y: 20}, <-got)
}
