package layout

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"github.com/ritzau/costar/pkg/graphstore"
	"github.com/ritzau/costar/pkg/logging"
)

// FocusScale is the camera zoom used when focusing a node.
const FocusScale = 1.25

// Handler receives dispatched engine events.
type Handler func(Event)

// Adapter feeds scenes to an Engine as diffs and dispatches its events.
// It implements graphstore.PositionSource.
type Adapter struct {
	engine Engine
	log    *slog.Logger

	mu     sync.Mutex
	prev   *SceneSnapshot
	frozen map[string]struct{}

	hmu      sync.RWMutex
	handlers map[EventKind][]Handler
}

var _ graphstore.PositionSource = (*Adapter)(nil)

// NewAdapter wraps engine and applies opts to it.
func NewAdapter(engine Engine, opts Options) *Adapter {
	engine.SetOptions(opts)
	return &Adapter{
		engine:   engine,
		log:      logging.Component("layout"),
		frozen:   make(map[string]struct{}),
		handlers: make(map[EventKind][]Handler),
	}
}

// Engine returns the wrapped engine.
func (a *Adapter) Engine() Engine { return a.engine }

// SetOptions switches physics options without touching the scene.
func (a *Adapter) SetOptions(opts Options) {
	a.engine.SetOptions(opts)
}

// Apply pushes scene into the engine. Only the difference to the previously
// applied scene is sent. The camera is restored afterwards, carried-over
// frozen nodes stay frozen and new nodes are left free.
func (a *Adapter) Apply(scene Scene) *SceneDiff {
	a.mu.Lock()
	defer a.mu.Unlock()

	diff := ComputeDiff(a.prev, scene)
	if diff.Empty() {
		return diff
	}

	view := a.engine.View()

	if len(diff.RemovedNodes) > 0 || len(diff.RemovedEdges) > 0 {
		a.engine.Remove(diff.RemovedNodes, diff.RemovedEdges)
		for _, id := range diff.RemovedNodes {
			delete(a.frozen, id)
		}
	}

	nodes := slices.Concat(diff.AddedNodes, diff.ModifiedNodes)
	edges := slices.Concat(diff.AddedEdges, diff.ModifiedEdges)
	if len(nodes) > 0 || len(edges) > 0 {
		a.engine.Update(nodes, edges)
	}

	for _, n := range diff.AddedNodes {
		a.engine.SetFixed(n.ID, false)
	}
	for id := range a.frozen {
		a.engine.SetFixed(id, true)
	}
	a.engine.SetView(view)

	a.prev = NewSnapshot(scene)
	a.log.Debug("scene applied",
		"addedNodes", len(diff.AddedNodes),
		"modifiedNodes", len(diff.ModifiedNodes),
		"removedNodes", len(diff.RemovedNodes),
		"addedEdges", len(diff.AddedEdges),
		"removedEdges", len(diff.RemovedEdges))
	return diff
}

// ApplySnapshot converts and applies a store snapshot.
func (a *Adapter) ApplySnapshot(snap graphstore.Snapshot) *SceneDiff {
	return a.Apply(SceneFromSnapshot(snap))
}

// Freeze pins a node in place across future updates.
func (a *Adapter) Freeze(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.frozen[id] = struct{}{}
	a.engine.SetFixed(id, true)
}

// Unfreeze releases a pinned node.
func (a *Adapter) Unfreeze(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.frozen, id)
	a.engine.SetFixed(id, false)
}

// Frozen reports whether id is pinned.
func (a *Adapter) Frozen(id string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.frozen[id]
	return ok
}

// Position returns the current layout position of a node.
func (a *Adapter) Position(id string) (graphstore.Position, bool) {
	return a.engine.Position(id)
}

// ScreenPosition returns where a node currently is on screen.
func (a *Adapter) ScreenPosition(id string) (Point, bool) {
	p, ok := a.engine.Position(id)
	if !ok {
		return Point{}, false
	}
	return a.engine.CanvasToDOM(p), true
}

// Focus centers the camera on a node.
func (a *Adapter) Focus(id string) {
	a.engine.Focus(id, FocusScale)
}

// On registers h for events of the given kind.
func (a *Adapter) On(kind EventKind, h Handler) {
	a.hmu.Lock()
	defer a.hmu.Unlock()
	a.handlers[kind] = append(a.handlers[kind], h)
}

// Run dispatches engine events until ctx is done or the engine closes its
// event channel.
func (a *Adapter) Run(ctx context.Context) error {
	events := a.engine.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			a.dispatch(ev)
		}
	}
}

func (a *Adapter) dispatch(ev Event) {
	a.hmu.RLock()
	handlers := slices.Clone(a.handlers[ev.Kind])
	a.hmu.RUnlock()

	logging.TraceContext(context.Background(), "layout event", "kind", string(ev.Kind), "node", ev.NodeID, "edge", ev.EdgeID)
	for _, h := range handlers {
		h(ev)
	}
}
