// Package graphstore holds the explored co-star graph: actor nodes, merged
// co-star edges and the hidden pseudo-edges that pull actors of the same
// movie together in the layout.
//
// A Store is safe for concurrent use. Every mutation runs under one lock, so
// an AddData call is applied atomically with respect to readers.
package graphstore

import (
	"log/slog"
	"math"
	"math/rand/v2"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/ritzau/costar/pkg/logging"
	"github.com/ritzau/costar/pkg/model"
	"gonum.org/v1/gonum/graph/simple"
)

// Visual constants shared with the layout engine.
const (
	DefaultNodeSize      = 16.0
	DefaultFontSize      = 14.0
	SizeScale            = 10.0 // size and font grow by ln(degree) * SizeScale
	EdgeBaseWidth        = 1.2
	PseudoEdgeLength     = 40.0
	PseudoSpringConstant = 0.015
	AnchorSpread         = 100.0 // new nodes land within ±AnchorSpread of their anchor

	NodeColor  = "#ffffff"
	FocusColor = "#66ccff"

	defaultSearchLimit = 10
)

// Position is a layout coordinate.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// PositionSource reports the current layout position of a node. The layout
// adapter implements it so new nodes are placed next to where their anchor
// actually is on screen.
type PositionSource interface {
	Position(id string) (Position, bool)
}

// Node is an actor in the explored graph.
type Node struct {
	ID        string
	Label     string
	BirthYear int
	Movies    []string // grows as edges touching the node are admitted
	Size      float64
	FontSize  float64
	Mass      float64
	Position  Position // initial placement hint
	Color     string
}

// HasMovie reports whether the node is known to have acted in movieID.
func (n Node) HasMovie(movieID string) bool {
	return slices.Contains(n.Movies, movieID)
}

// Edge is a committed co-star edge. There is at most one per actor pair; it
// keeps the id, direction and color of the first raw edge seen for the pair.
type Edge struct {
	ID       string
	From     string
	To       string
	Color    string
	Label    string
	Width    float64
	InCommon []model.InCommon
}

// Other returns the endpoint opposite to id.
func (e Edge) Other(id string) string {
	if e.From == id {
		return e.To
	}
	return e.From
}

// PseudoEdge is a hidden layout-only edge between actors sharing a movie
// without a committed edge between them.
type PseudoEdge struct {
	ID             string
	From           string
	To             string
	Length         float64
	SpringConstant float64
}

// Snapshot is a render-ready copy of the store.
type Snapshot struct {
	Nodes       []Node
	Edges       []Edge
	PseudoEdges []PseudoEdge
}

type pairKey struct{ lo, hi string }

func sortedPair(a, b string) pairKey {
	if b < a {
		a, b = b, a
	}
	return pairKey{lo: a, hi: b}
}

func pseudoEdgeID(a, b string) string {
	p := sortedPair(a, b)
	return "pseudo-" + p.lo + "-" + p.hi
}

type rawRef struct{ from, to string }

// Store is the in-memory co-star graph.
type Store struct {
	mu sync.RWMutex

	log       *slog.Logger
	rng       *rand.Rand
	positions PositionSource

	nodes     map[string]*Node
	nodeOrder []string

	edges     map[string]*Edge // committed edges by id
	edgeOrder []string
	pairs     map[pairKey]string // pair -> committed edge id

	pseudo      map[string]*PseudoEdge
	pseudoOrder []string

	movieIndex map[string]map[string]struct{} // movie id -> node ids
	seen       map[string]rawRef              // admitted raw edge ids

	// Committed adjacency. Pseudo-edges are not part of it.
	graph   *simple.UndirectedGraph
	graphID map[string]int64
	nodeID  map[int64]string
	nextID  int64

	highlighted string
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for integrity warnings.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.log = l }
}

// WithRand sets the random source used for placement offsets.
func WithRand(r *rand.Rand) Option {
	return func(s *Store) { s.rng = r }
}

// WithPositionSource sets where anchor positions are read from.
func WithPositionSource(p PositionSource) Option {
	return func(s *Store) { s.positions = p }
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logging.Component("graphstore")
	}
	if s.rng == nil {
		seed := uint64(time.Now().UnixNano())
		s.rng = rand.New(rand.NewPCG(seed, seed>>1))
	}
	s.reset()
	return s
}

// SetPositionSource wires the layout after construction. The adapter and
// the store reference each other, so one side has to be attached late.
func (s *Store) SetPositionSource(p PositionSource) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions = p
}

func (s *Store) reset() {
	s.nodes = make(map[string]*Node)
	s.nodeOrder = nil
	s.edges = make(map[string]*Edge)
	s.edgeOrder = nil
	s.pairs = make(map[pairKey]string)
	s.pseudo = make(map[string]*PseudoEdge)
	s.pseudoOrder = nil
	s.movieIndex = make(map[string]map[string]struct{})
	s.seen = make(map[string]rawRef)
	s.graph = simple.NewUndirectedGraph()
	s.graphID = make(map[string]int64)
	s.nodeID = make(map[int64]string)
	s.nextID = 0
	s.highlighted = ""
}

// Clear discards the whole exploration.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
}

// Node returns a copy of the node with the given id.
func (s *Store) Node(id string) (Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[id]
	if !ok {
		return Node{}, false
	}
	return copyNode(n), true
}

// Edge returns a committed edge by id. Pseudo-edges are not addressable.
func (s *Store) Edge(id string) (Edge, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.edges[id]
	if !ok {
		return Edge{}, false
	}
	return copyEdge(e), true
}

// EdgeBetween returns the committed edge connecting a and b, in either direction.
func (s *Store) EdgeBetween(a, b string) (Edge, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.pairs[sortedPair(a, b)]
	if !ok {
		return Edge{}, false
	}
	return copyEdge(s.edges[id]), true
}

// Nodes returns all nodes in admission order.
func (s *Store) Nodes() []Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Node, 0, len(s.nodeOrder))
	for _, id := range s.nodeOrder {
		out = append(out, copyNode(s.nodes[id]))
	}
	return out
}

// NodeCount returns the number of nodes.
func (s *Store) NodeCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes)
}

// HasNode reports whether id is in the graph.
func (s *Store) HasNode(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.nodes[id]
	return ok
}

// NodeIDs returns every node id in admission order.
func (s *Store) NodeIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.nodeOrder)
}

// Edges returns committed edges in admission order.
func (s *Store) Edges() []Edge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Edge, 0, len(s.edgeOrder))
	for _, id := range s.edgeOrder {
		out = append(out, copyEdge(s.edges[id]))
	}
	return out
}

// PseudoEdges returns the hidden layout edges in creation order.
func (s *Store) PseudoEdges() []PseudoEdge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]PseudoEdge, 0, len(s.pseudoOrder))
	for _, id := range s.pseudoOrder {
		out = append(out, *s.pseudo[id])
	}
	return out
}

// PseudoEdgeCount returns the number of pseudo-edges.
func (s *Store) PseudoEdgeCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pseudo)
}

// NumConnections counts the committed edges touching id. Pseudo-edges are
// hidden and never counted.
func (s *Store) NumConnections(id string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.degree(id)
}

func (s *Store) degree(id string) int {
	gid, ok := s.graphID[id]
	if !ok {
		return 0
	}
	return s.graph.From(gid).Len()
}

// MovieActors returns the sorted ids of nodes known to have acted in movieID.
func (s *Store) MovieActors(movieID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.movieActors(movieID)
}

func (s *Store) movieActors(movieID string) []string {
	set := s.movieIndex[movieID]
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Snapshot returns nodes, committed edges and pseudo-edges in one consistent copy.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Nodes:       make([]Node, 0, len(s.nodeOrder)),
		Edges:       make([]Edge, 0, len(s.edgeOrder)),
		PseudoEdges: make([]PseudoEdge, 0, len(s.pseudoOrder)),
	}
	for _, id := range s.nodeOrder {
		snap.Nodes = append(snap.Nodes, copyNode(s.nodes[id]))
	}
	for _, id := range s.edgeOrder {
		snap.Edges = append(snap.Edges, copyEdge(s.edges[id]))
	}
	for _, id := range s.pseudoOrder {
		snap.PseudoEdges = append(snap.PseudoEdges, *s.pseudo[id])
	}
	return snap
}

// Search returns up to limit nodes whose label contains query, ignoring case.
// A non-positive limit means 10.
func (s *Store) Search(query string, limit int) []Node {
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Node
	for _, id := range s.nodeOrder {
		n := s.nodes[id]
		if strings.Contains(strings.ToLower(n.Label), q) {
			out = append(out, copyNode(n))
			if len(out) == limit {
				break
			}
		}
	}
	return out
}

// SetHighlighted gives id the focus color and resets the previously
// highlighted node. An empty id only clears. It returns the ids whose color
// changed.
func (s *Store) SetHighlighted(id string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id == s.highlighted {
		return nil
	}
	var changed []string
	if prev, ok := s.nodes[s.highlighted]; ok {
		prev.Color = NodeColor
		changed = append(changed, prev.ID)
	}
	s.highlighted = ""
	if n, ok := s.nodes[id]; ok {
		n.Color = FocusColor
		s.highlighted = id
		changed = append(changed, id)
	}
	return changed
}

// Highlighted returns the focused node id, or "".
func (s *Store) Highlighted() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.highlighted
}

func newNode(dto model.NodeDTO, pos Position) *Node {
	n := &Node{
		ID:        dto.ID,
		Label:     dto.Label,
		BirthYear: dto.BirthYear,
		Size:      DefaultNodeSize,
		FontSize:  DefaultFontSize,
		Mass:      math.Log(DefaultNodeSize),
		Position:  pos,
		Color:     NodeColor,
	}
	for _, m := range dto.Movies {
		if m != "" && !slices.Contains(n.Movies, m) {
			n.Movies = append(n.Movies, m)
		}
	}
	return n
}

func copyNode(n *Node) Node {
	c := *n
	c.Movies = slices.Clone(n.Movies)
	return c
}

func copyEdge(e *Edge) Edge {
	c := *e
	c.InCommon = slices.Clone(e.InCommon)
	return c
}
