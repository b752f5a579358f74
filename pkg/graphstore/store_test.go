package graphstore

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/ritzau/costar/pkg/apperr"
	"github.com/ritzau/costar/pkg/logging"
	"github.com/ritzau/costar/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(opts ...Option) *Store {
	base := []Option{
		WithLogger(logging.Discard()),
		WithRand(rand.New(rand.NewPCG(1, 2))),
	}
	return New(append(base, opts...)...)
}

func actor(id, label string, movies ...string) model.NodeDTO {
	return model.NodeDTO{ID: id, Label: label, Movies: movies}
}

func raw(from, movie, to, title string, year int) model.EdgeDTO {
	return model.EdgeDTO{
		ID:      from + "-" + movie + "-" + to,
		From:    from,
		To:      to,
		MovieID: movie,
		Title:   title,
		Year:    year,
		Color:   "#" + movie,
		Label:   title,
	}
}

// matrixPayload is a root expansion: keanu shares two movies with carrie
// and one with laurence. carrie and laurence share tt1 without an edge.
func matrixPayload() ([]model.NodeDTO, []model.EdgeDTO) {
	nodes := []model.NodeDTO{
		actor("nm0000206", "Keanu Reeves", "tt1", "tt2"),
		actor("nm0005251", "Carrie-Anne Moss", "tt1", "tt2"),
		actor("nm0000401", "Laurence Fishburne", "tt1"),
	}
	edges := []model.EdgeDTO{
		raw("nm0000206", "tt1", "nm0005251", "The Matrix", 1999),
		raw("nm0000206", "tt2", "nm0005251", "The Matrix Reloaded", 2003),
		raw("nm0000206", "tt1", "nm0000401", "The Matrix", 1999),
	}
	return nodes, edges
}

func TestAddDataAdmitsNodesAndEdges(t *testing.T) {
	s := newTestStore()
	nodes, edges := matrixPayload()

	res := s.AddData(nodes, edges, "")

	assert.Equal(t, []string{"nm0000206", "nm0005251", "nm0000401"}, res.AddedNodes)
	assert.Equal(t, 3, s.NodeCount())
	assert.Len(t, s.Edges(), 2)
	assert.Equal(t, []string{"nm0000206-tt1-nm0005251", "nm0000206-tt1-nm0000401"}, res.NewEdges)
	assert.Empty(t, res.MergedEdges, "merges into edges created in the same call are not reported twice")
	assert.Empty(t, res.Skipped)

	e, ok := s.EdgeBetween("nm0005251", "nm0000206")
	require.True(t, ok)
	assert.Equal(t, "nm0000206-tt1-nm0005251", e.ID)
	assert.Equal(t, "#tt1", e.Color)
	assert.Equal(t, "The Matrix - 1999\nThe Matrix Reloaded - 2003", e.Label)
	assert.InDelta(t, EdgeBaseWidth+2, e.Width, 1e-9)

	_, ok = s.Edge("nm0000206-tt2-nm0005251")
	assert.False(t, ok, "merged raw edges are not addressable")
}

func TestAddDataIsIdempotent(t *testing.T) {
	s := newTestStore()
	nodes, edges := matrixPayload()

	s.AddData(nodes, edges, "")
	first := s.Snapshot()

	res := s.AddData(nodes, edges, "")

	assert.False(t, res.Changed())
	assert.Equal(t, first, s.Snapshot())
}

func TestMergeAcrossBatches(t *testing.T) {
	s := newTestStore()
	a, b := actor("A", "Alpha"), actor("B", "Beta")

	s.AddData([]model.NodeDTO{a, b}, []model.EdgeDTO{raw("A", "m1", "B", "One", 2001)}, "")
	s.AddData(nil, []model.EdgeDTO{raw("A", "m1", "B", "One", 2001)}, "")
	res := s.AddData(nil, []model.EdgeDTO{
		raw("B", "m2", "A", "Two", 2002),
		raw("B", "m1", "A", "One", 2001), // different raw id, same movie
	}, "")

	assert.Equal(t, []string{"A-m1-B"}, res.MergedEdges)
	edges := s.Edges()
	require.Len(t, edges, 1)
	assert.Equal(t, []model.InCommon{
		{MovieID: "m1", Title: "One", Year: 2001},
		{MovieID: "m2", Title: "Two", Year: 2002},
	}, edges[0].InCommon)
	assert.Equal(t, "A", edges[0].From, "first raw edge keeps the direction")
}

func TestMergeWithinBatch(t *testing.T) {
	s := newTestStore()
	res := s.AddData(
		[]model.NodeDTO{actor("A", "Alpha"), actor("B", "Beta")},
		[]model.EdgeDTO{
			raw("A", "m1", "B", "One", 2001),
			raw("A", "m1", "B", "One", 2001),
			raw("A", "m2", "B", "Two", 2002),
		}, "")

	assert.Equal(t, []string{"A-m1-B"}, res.NewEdges)
	e, ok := s.Edge("A-m1-B")
	require.True(t, ok)
	assert.Len(t, e.InCommon, 2)
}

func TestFormatLabel(t *testing.T) {
	entries := []model.InCommon{
		{MovieID: "1", Title: "A", Year: 2000},
		{MovieID: "2", Title: "B", Year: 2001},
		{MovieID: "3", Title: "C"},
		{MovieID: "4", Title: "D", Year: 2003},
		{MovieID: "5", Title: "E", Year: 2004},
	}

	assert.Equal(t, "A - 2000", formatLabel(entries[:1]))
	assert.Equal(t, "A - 2000\nB - 2001\nC", formatLabel(entries[:3]))
	assert.Equal(t, "A - 2000\nB - 2001\nC\n...\n2 more", formatLabel(entries))
}

func TestPseudoEdgeNotDuplicated(t *testing.T) {
	tests := []struct {
		name  string
		order []string
	}{
		{"x first", []string{"X", "Y"}},
		{"y first", []string{"Y", "X"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore()
			for _, id := range tt.order {
				s.AddData([]model.NodeDTO{actor(id, id, "M")}, nil, "")
			}
			for range 3 {
				s.AddData([]model.NodeDTO{actor("X", "X", "M"), actor("Y", "Y", "M")}, nil, "")
			}

			pseudo := s.PseudoEdges()
			require.Len(t, pseudo, 1)
			assert.Equal(t, "pseudo-X-Y", pseudo[0].ID)
			assert.Equal(t, PseudoEdgeLength, pseudo[0].Length)
			assert.Equal(t, PseudoSpringConstant, pseudo[0].SpringConstant)
			assert.Equal(t, []string{"X", "Y"}, s.MovieActors("M"))
		})
	}
}

func TestPseudoEdgeSameBatch(t *testing.T) {
	s := newTestStore()
	res := s.AddData([]model.NodeDTO{
		actor("A", "A", "M"),
		actor("B", "B", "M"),
		actor("C", "C", "M"),
	}, []model.EdgeDTO{raw("A", "M", "B", "Movie", 2000)}, "")

	assert.Equal(t, []string{"pseudo-A-C", "pseudo-B-C"}, res.NewPseudoEdges)
}

func TestPseudoEdgeSkippedWhenCommitted(t *testing.T) {
	s := newTestStore()
	s.AddData([]model.NodeDTO{actor("A", "A", "M"), actor("B", "B")},
		[]model.EdgeDTO{raw("A", "M", "B", "Movie", 2000)}, "")

	// C is new and shares M with both; A-B is committed so only C pairs appear.
	res := s.AddData([]model.NodeDTO{actor("C", "C", "M")}, nil, "")
	assert.Equal(t, []string{"pseudo-A-C", "pseudo-B-C"}, res.NewPseudoEdges)

	// A committed edge showing up later leaves the pseudo-edge in place.
	s.AddData(nil, []model.EdgeDTO{raw("A", "M", "C", "Movie", 2000)}, "")
	assert.Equal(t, 2, s.PseudoEdgeCount())
}

func TestVisualWeightMonotonic(t *testing.T) {
	s := newTestStore()
	nodes, edges := matrixPayload()

	s.AddData(nodes, edges, "")
	root, _ := s.Node("nm0000206")
	assert.InDelta(t, DefaultNodeSize+math.Log(3)*SizeScale, root.Size, 1e-9)
	assert.InDelta(t, DefaultFontSize+math.Log(3)*SizeScale, root.FontSize, 1e-9)
	assert.InDelta(t, math.Log(root.Size), root.Mass, 1e-9)

	leaf, _ := s.Node("nm0000401")
	assert.Equal(t, DefaultNodeSize, leaf.Size, "a single edge adds ln(1) = 0")

	batches := [][]model.EdgeDTO{
		{raw("nm0000401", "tt3", "nm0005251", "Three", 2003)},
		{raw("nm0000401", "tt4", "nm0005251", "Four", 2004), raw("nm0000401", "tt5", "nm0000206", "Five", 2005)},
		edges,
	}
	prev := map[string]Node{}
	for _, n := range s.Nodes() {
		prev[n.ID] = n
	}
	for _, batch := range batches {
		s.AddData(nil, batch, "nm0000206")
		for _, n := range s.Nodes() {
			assert.GreaterOrEqual(t, n.Size, prev[n.ID].Size)
			assert.GreaterOrEqual(t, n.FontSize, prev[n.ID].FontSize)
			prev[n.ID] = n
		}
	}
}

func TestNumConnectionsExcludesPseudoEdges(t *testing.T) {
	s := newTestStore()
	nodes, edges := matrixPayload()
	s.AddData(nodes, edges, "")

	assert.Equal(t, 1, s.PseudoEdgeCount(), "carrie and laurence only share a movie")
	assert.Equal(t, 2, s.NumConnections("nm0000206"))
	assert.Equal(t, 1, s.NumConnections("nm0005251"))
	assert.Equal(t, 1, s.NumConnections("nm0000401"))
	assert.Equal(t, 0, s.NumConnections("missing"))
}

func TestExpandingCoStarReusesCommittedEdge(t *testing.T) {
	s := newTestStore()
	nodes, edges := matrixPayload()
	s.AddData(nodes, edges, "")
	before := s.NumConnections("nm0000206")

	// Expanding carrie returns keanu again plus a new co-star.
	s.AddData(
		[]model.NodeDTO{actor("nm0000206", "Keanu Reeves", "tt1", "tt2"), actor("nm0000112", "Hugo Weaving", "tt1")},
		[]model.EdgeDTO{
			raw("nm0005251", "tt1", "nm0000206", "The Matrix", 1999),
			raw("nm0005251", "tt2", "nm0000206", "The Matrix Reloaded", 2003),
			raw("nm0005251", "tt1", "nm0000112", "The Matrix", 1999),
		}, "nm0005251")

	e, ok := s.EdgeBetween("nm0000206", "nm0005251")
	require.True(t, ok)
	assert.Len(t, e.InCommon, 2)
	assert.Equal(t, before, s.NumConnections("nm0000206"))
	assert.Equal(t, 4, s.NodeCount())
}

func TestIntegrityViolationsAreSkipped(t *testing.T) {
	s := newTestStore()
	res := s.AddData(
		[]model.NodeDTO{actor("A", "A"), actor("B", "B")},
		[]model.EdgeDTO{
			raw("A", "m1", "ghost", "Ghost", 1990),
			raw("A", "m1", "A", "Loop", 1990),
			raw("A", "m2", "B", "Real", 1991),
		}, "")

	require.Len(t, res.Skipped, 2)
	for _, sk := range res.Skipped {
		assert.True(t, errors.Is(sk.Err, apperr.ErrDataIntegrity), sk.EdgeID)
	}
	assert.Equal(t, []string{"A-m2-B"}, res.NewEdges)
	_, ok := s.Node("ghost")
	assert.False(t, ok)

	// Once the endpoint arrives the edge is admitted.
	res = s.AddData([]model.NodeDTO{actor("ghost", "Ghost")}, []model.EdgeDTO{raw("A", "m1", "ghost", "Ghost", 1990)}, "")
	assert.Equal(t, []string{"A-m1-ghost"}, res.NewEdges)
}

func TestAdmittedEdgesGrowMovieSets(t *testing.T) {
	s := newTestStore()
	s.AddData([]model.NodeDTO{actor("A", "A"), actor("B", "B")},
		[]model.EdgeDTO{raw("A", "m1", "B", "One", 2001)}, "")

	a, _ := s.Node("A")
	assert.True(t, a.HasMovie("m1"))
	assert.Equal(t, []string{"A", "B"}, s.MovieActors("m1"))

	res := s.AddData([]model.NodeDTO{actor("C", "C", "m1")}, nil, "")
	assert.Equal(t, []string{"pseudo-A-C", "pseudo-B-C"}, res.NewPseudoEdges)
}

type fixedPositions map[string]Position

func (f fixedPositions) Position(id string) (Position, bool) {
	p, ok := f[id]
	return p, ok
}

func TestPlacementAroundAnchor(t *testing.T) {
	s := newTestStore(WithPositionSource(fixedPositions{"root": {X: 500, Y: -300}}))
	s.AddData([]model.NodeDTO{actor("root", "Root")}, nil, "")

	var batch []model.NodeDTO
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		batch = append(batch, actor(id, id))
	}
	s.AddData(batch, nil, "root")

	for _, id := range []string{"a", "b", "c", "d", "e"} {
		n, ok := s.Node(id)
		require.True(t, ok)
		assert.InDelta(t, 500, n.Position.X, AnchorSpread)
		assert.InDelta(t, -300, n.Position.Y, AnchorSpread)
	}

	r, _ := s.Node("root")
	assert.InDelta(t, 0, r.Position.X, AnchorSpread, "no anchor means around the origin")
}

func TestPlacementFallsBackToStoredHint(t *testing.T) {
	s := newTestStore()
	s.AddData([]model.NodeDTO{actor("root", "Root")}, nil, "")
	root, _ := s.Node("root")

	s.AddData([]model.NodeDTO{actor("a", "A")}, nil, "root")
	a, _ := s.Node("a")
	assert.InDelta(t, root.Position.X, a.Position.X, AnchorSpread)
	assert.InDelta(t, root.Position.Y, a.Position.Y, AnchorSpread)
}

func TestFirstOccurrenceWinsWithinBatch(t *testing.T) {
	s := newTestStore()
	s.AddData([]model.NodeDTO{actor("A", "First"), actor("A", "Second"), {ID: ""}}, nil, "")

	assert.Equal(t, 1, s.NodeCount())
	n, _ := s.Node("A")
	assert.Equal(t, "First", n.Label)
}

func TestClear(t *testing.T) {
	s := newTestStore()
	nodes, edges := matrixPayload()
	s.AddData(nodes, edges, "")
	s.SetHighlighted("nm0000206")

	s.Clear()

	assert.Equal(t, 0, s.NodeCount())
	assert.Empty(t, s.Edges())
	assert.Equal(t, 0, s.PseudoEdgeCount())
	assert.Empty(t, s.MovieActors("tt1"))
	assert.Empty(t, s.Highlighted())

	// Raw ids are forgotten too.
	res := s.AddData(nodes, edges, "")
	assert.Len(t, res.NewEdges, 2)
}

func TestSearch(t *testing.T) {
	s := newTestStore()
	nodes, edges := matrixPayload()
	s.AddData(nodes, edges, "")
	for i := range 15 {
		s.AddData([]model.NodeDTO{actor(string(rune('a'+i)), "Extra Matrix Keanu fan")}, nil, "")
	}

	got := s.Search("KEANU", 0)
	assert.Len(t, got, 10)
	assert.Equal(t, "nm0000206", got[0].ID)

	assert.Len(t, s.Search("moss", 5), 1)
	assert.Empty(t, s.Search("  ", 5))
}

func TestSetHighlighted(t *testing.T) {
	s := newTestStore()
	nodes, edges := matrixPayload()
	s.AddData(nodes, edges, "")

	assert.Equal(t, []string{"nm0000206"}, s.SetHighlighted("nm0000206"))
	n, _ := s.Node("nm0000206")
	assert.Equal(t, FocusColor, n.Color)

	assert.Equal(t, []string{"nm0000206", "nm0000401"}, s.SetHighlighted("nm0000401"))
	n, _ = s.Node("nm0000206")
	assert.Equal(t, NodeColor, n.Color)

	assert.Nil(t, s.SetHighlighted("nm0000401"))
	assert.Equal(t, []string{"nm0000401"}, s.SetHighlighted(""))
	assert.Empty(t, s.Highlighted())
}

func TestSnapshotIsACopy(t *testing.T) {
	s := newTestStore()
	nodes, edges := matrixPayload()
	s.AddData(nodes, edges, "")

	snap := s.Snapshot()
	snap.Nodes[0].Movies[0] = "changed"
	snap.Edges[0].InCommon[0].Title = "changed"

	n, _ := s.Node(snap.Nodes[0].ID)
	assert.NotEqual(t, "changed", n.Movies[0])
	e, _ := s.Edge(snap.Edges[0].ID)
	assert.NotEqual(t, "changed", e.InCommon[0].Title)
}
