// Package explorer drives an exploration session: it fetches expansions from
// the server, merges them into the graph store and keeps the layout engine
// in sync with the result.
package explorer

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/cockroachdb/errors"
	"golang.org/x/sync/singleflight"

	"github.com/ritzau/costar/pkg/apperr"
	"github.com/ritzau/costar/pkg/graphstore"
	"github.com/ritzau/costar/pkg/layout"
	"github.com/ritzau/costar/pkg/logging"
	"github.com/ritzau/costar/pkg/model"
)

// FindLimit caps FindInGraph results.
const FindLimit = 10

// ErrStale is returned for an expansion that finished after a new root was
// selected. Its result is discarded.
var ErrStale = errors.New("exploration restarted while expanding")

// NodeDetails is what a node tooltip or modal shows.
type NodeDetails struct {
	ID          string
	Label       string
	BirthYear   int
	Movies      []string
	Connections int
	Expanded    bool
}

// EdgeDetails is what an edge tooltip shows.
type EdgeDetails struct {
	ID        string
	From      string
	To        string
	FromLabel string
	ToLabel   string
	InCommon  []model.InCommon
}

// Tooltip is a screen-anchored tooltip update. Kind is "node" or "edge";
// a zero Tooltip with Hide set removes it.
type Tooltip struct {
	Kind   string
	ID     string
	Screen layout.Point
	Hide   bool
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the controller's logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.log = l }
}

// WithTooltip registers the tooltip callback used by Bind.
func WithTooltip(fn func(Tooltip)) Option {
	return func(c *Controller) { c.tooltip = fn }
}

// WithOnChange registers a callback invoked after every committed merge.
func WithOnChange(fn func(actorID string, res graphstore.MergeResult)) Option {
	return func(c *Controller) { c.onChange = fn }
}

// Controller coordinates one exploration session.
type Controller struct {
	api      API
	store    *graphstore.Store
	adapter  *layout.Adapter
	tracker  *layout.Tracker
	log      *slog.Logger
	tooltip  func(Tooltip)
	onChange func(string, graphstore.MergeResult)

	mu         sync.Mutex
	root       string
	expanded   []string // most recent first
	generation uint64

	group    singleflight.Group
	inflight sync.WaitGroup
}

// NewController creates a controller. adapter may be nil when nothing is
// rendered; otherwise it becomes the store's position source.
func NewController(api API, store *graphstore.Store, adapter *layout.Adapter, opts ...Option) *Controller {
	c := &Controller{
		api:     api,
		store:   store,
		adapter: adapter,
		log:     logging.Component("explorer"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if adapter != nil {
		store.SetPositionSource(adapter)
		c.tracker = layout.NewTracker(adapter.Engine())
	}
	return c
}

// Store returns the controller's graph store.
func (c *Controller) Store() *graphstore.Store { return c.store }

// Search looks up actors on the server.
func (c *Controller) Search(ctx context.Context, query string) ([]model.Actor, error) {
	return c.api.Search(ctx, query)
}

// SelectRoot starts a new exploration at actorID. The store is replaced
// only when the fetch succeeds.
func (c *Controller) SelectRoot(ctx context.Context, actorID string) (graphstore.MergeResult, error) {
	c.mu.Lock()
	c.generation++
	gen := c.generation
	c.mu.Unlock()

	payload, err := c.api.Expand(ctx, actorID)
	if err != nil {
		return graphstore.MergeResult{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation {
		return graphstore.MergeResult{}, ErrStale
	}

	c.store.Clear()
	res := c.store.AddData(payload.AllNodes(), payload.Edges, "")
	c.root = payload.RootNode.ID
	c.expanded = []string{payload.RootNode.ID}
	c.renderLocked()

	c.log.Info("exploration started",
		"root", payload.RootNode.ID,
		"label", payload.RootNode.Label,
		"nodes", len(res.AddedNodes),
		"edges", len(res.NewEdges))
	c.changed(payload.RootNode.ID, res)
	return res, nil
}

// Expand merges the co-stars of actorID into the graph. Expanding an
// already expanded actor does nothing.
func (c *Controller) Expand(ctx context.Context, actorID string) (graphstore.MergeResult, error) {
	if actorID == "" {
		return graphstore.MergeResult{}, apperr.InvalidArgument("actor id is required")
	}

	c.mu.Lock()
	if slices.Contains(c.expanded, actorID) {
		c.mu.Unlock()
		return graphstore.MergeResult{}, nil
	}
	gen := c.generation
	c.mu.Unlock()

	v, err, shared := c.group.Do(fmt.Sprintf("%d/%s", gen, actorID), func() (any, error) {
		return c.api.Expand(ctx, actorID)
	})
	if err != nil {
		c.log.Warn("expansion failed", "actor", actorID, "error", err)
		return graphstore.MergeResult{}, err
	}
	payload := v.(model.ExpansionPayload)

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation {
		c.log.Debug("discarding stale expansion", "actor", actorID)
		return graphstore.MergeResult{}, ErrStale
	}
	if slices.Contains(c.expanded, actorID) {
		return graphstore.MergeResult{}, nil
	}

	res := c.store.AddData(payload.NewNodes, payload.Edges, actorID)
	c.expanded = slices.Insert(c.expanded, 0, actorID)
	c.renderLocked()

	c.log.Info("node expanded",
		"actor", actorID,
		"shared", shared,
		"added", len(res.AddedNodes),
		"newEdges", len(res.NewEdges),
		"merged", len(res.MergedEdges),
		"skipped", len(res.Skipped))
	c.changed(actorID, res)
	return res, nil
}

// ExpandAsync runs Expand in the background. Wait blocks until every
// background expansion finished.
func (c *Controller) ExpandAsync(ctx context.Context, actorID string) {
	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()
		if _, err := c.Expand(ctx, actorID); err != nil && !errors.Is(err, ErrStale) {
			c.log.Error("background expansion failed", "actor", actorID, "error", err)
		}
	}()
}

// Wait blocks until background expansions are done.
func (c *Controller) Wait() { c.inflight.Wait() }

// Preview returns how many actors expanding actorID would add.
func (c *Controller) Preview(ctx context.Context, actorID string) (int, error) {
	if c.IsExpanded(actorID) {
		return 0, nil
	}
	return c.api.NodeConnections(ctx, actorID, c.store.NodeIDs())
}

// Root returns the current root actor id.
func (c *Controller) Root() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.root
}

// Expanded returns the expanded actor ids, most recent first.
func (c *Controller) Expanded() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.expanded)
}

// IsExpanded reports whether actorID was expanded in this session.
func (c *Controller) IsExpanded(actorID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Contains(c.expanded, actorID)
}

// NodeDetails returns what a node tooltip shows for id.
func (c *Controller) NodeDetails(id string) (NodeDetails, bool) {
	n, ok := c.store.Node(id)
	if !ok {
		return NodeDetails{}, false
	}
	return NodeDetails{
		ID:          n.ID,
		Label:       n.Label,
		BirthYear:   n.BirthYear,
		Movies:      n.Movies,
		Connections: c.store.NumConnections(id),
		Expanded:    c.IsExpanded(id),
	}, true
}

// EdgeDetails returns a committed edge with its endpoint labels.
func (c *Controller) EdgeDetails(id string) (EdgeDetails, bool) {
	e, ok := c.store.Edge(id)
	if !ok {
		return EdgeDetails{}, false
	}
	d := EdgeDetails{ID: e.ID, From: e.From, To: e.To, InCommon: e.InCommon}
	if n, ok := c.store.Node(e.From); ok {
		d.FromLabel = n.Label
	}
	if n, ok := c.store.Node(e.To); ok {
		d.ToLabel = n.Label
	}
	return d, true
}

// FindInGraph searches the nodes already in the graph by label.
func (c *Controller) FindInGraph(query string) []graphstore.Node {
	return c.store.Search(query, FindLimit)
}

// Focus highlights a node and centers the camera on it. An empty id clears
// the highlight.
func (c *Controller) Focus(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	changed := c.store.SetHighlighted(id)
	if len(changed) == 0 {
		return
	}
	c.renderLocked()
	if c.adapter != nil && id != "" {
		c.adapter.Focus(id)
	}
}

// Collapse removes the neighbors of actorID that only connect to it. The
// actor stays and can be expanded again.
func (c *Controller) Collapse(actorID string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := c.store.RemoveNode(actorID)
	c.expanded = slices.DeleteFunc(c.expanded, func(id string) bool { return id == actorID })
	c.forgetLocked(removed)
	c.renderLocked()
	return removed
}

// Prune removes actorID and every node that becomes isolated as a result.
func (c *Controller) Prune(actorID string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := c.store.Prune(actorID)
	c.forgetLocked(removed)
	return removed
}

func (c *Controller) forgetLocked(removed []string) {
	if len(removed) == 0 {
		return
	}
	c.expanded = slices.DeleteFunc(c.expanded, func(id string) bool {
		return slices.Contains(removed, id)
	})
	if slices.Contains(removed, c.root) {
		c.root = ""
	}
	c.renderLocked()
}

// Bind forwards layout events: clicking a node expands it, hovering nodes
// and edges tracks a tooltip. Call before adapter.Run.
func (c *Controller) Bind(ctx context.Context) {
	if c.adapter == nil {
		return
	}
	c.adapter.On(layout.EventNodeClick, func(ev layout.Event) {
		c.ExpandAsync(ctx, ev.NodeID)
	})
	c.adapter.On(layout.EventNodeHover, func(ev layout.Event) {
		id := ev.NodeID
		c.tracker.TrackNode(ctx, id, func(p layout.Point) {
			c.showTooltip(Tooltip{Kind: "node", ID: id, Screen: p})
		})
	})
	c.adapter.On(layout.EventEdgeHover, func(ev layout.Event) {
		e, ok := c.store.Edge(ev.EdgeID)
		if !ok {
			return
		}
		c.tracker.TrackEdge(ctx, e.ID, e.From, e.To, func(p layout.Point) {
			c.showTooltip(Tooltip{Kind: "edge", ID: e.ID, Screen: p})
		})
	})
	hide := func(layout.Event) {
		c.tracker.Stop()
		c.showTooltip(Tooltip{Hide: true})
	}
	c.adapter.On(layout.EventNodeBlur, hide)
	c.adapter.On(layout.EventEdgeBlur, hide)
}

// Close stops tooltip tracking and waits for background expansions.
func (c *Controller) Close() {
	if c.tracker != nil {
		c.tracker.Stop()
	}
	c.inflight.Wait()
}

func (c *Controller) showTooltip(t Tooltip) {
	if c.tooltip != nil {
		c.tooltip(t)
	}
}

func (c *Controller) changed(actorID string, res graphstore.MergeResult) {
	if c.onChange != nil {
		c.onChange(actorID, res)
	}
}

func (c *Controller) renderLocked() {
	if c.adapter == nil {
		return
	}
	c.adapter.ApplySnapshot(c.store.Snapshot())
}
