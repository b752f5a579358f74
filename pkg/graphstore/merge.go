package graphstore

import (
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/ritzau/costar/pkg/apperr"
	"github.com/ritzau/costar/pkg/model"
	"gonum.org/v1/gonum/graph/simple"
)

// maxLabelEntries is how many shared movies an edge label lists before
// summarising the rest.
const maxLabelEntries = 3

// SkippedEdge is a raw edge rejected by AddData.
type SkippedEdge struct {
	EdgeID string
	Err    error
}

// MergeResult describes what one AddData call changed.
type MergeResult struct {
	AddedNodes     []string // admitted in this call
	ResizedNodes   []string // existing or new nodes whose size grew
	NewEdges       []string // committed edges created
	MergedEdges    []string // committed edges that gained a shared movie
	NewPseudoEdges []string
	Skipped        []SkippedEdge
}

// Changed reports whether the store was modified.
func (r MergeResult) Changed() bool {
	return len(r.AddedNodes) > 0 || len(r.ResizedNodes) > 0 || len(r.NewEdges) > 0 ||
		len(r.MergedEdges) > 0 || len(r.NewPseudoEdges) > 0
}

// AddData merges a batch of nodes and raw co-star edges into the graph.
//
// Nodes already present are ignored; new ones are placed around anchorID
// (or the origin). Raw edges whose id was admitted before are ignored. Edges
// for an actor pair that already has a committed edge only add their movie to
// it. Edges pointing at unknown nodes are skipped and reported. Applying the
// same payload twice leaves the store as after the first call.
func (s *Store) AddData(nodes []model.NodeDTO, edges []model.EdgeDTO, anchorID string) MergeResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	var res MergeResult

	admitted := s.admitNodes(nodes, anchorID)
	res.AddedNodes = admitted

	batchPairs := make(map[pairKey]struct{}, len(edges))
	for _, e := range edges {
		if e.From != "" && e.To != "" && e.From != e.To {
			batchPairs[sortedPair(e.From, e.To)] = struct{}{}
		}
	}
	res.NewPseudoEdges = s.synthesizePseudoEdges(admitted, batchPairs)

	degrees := make(map[string]int)
	merged := make(map[string]struct{})
	for _, raw := range edges {
		if _, dup := s.seen[raw.ID]; dup {
			continue
		}
		if err := s.validate(raw); err != nil {
			s.log.Warn("skipping edge", "edge", raw.ID, "from", raw.From, "to", raw.To, "error", err)
			res.Skipped = append(res.Skipped, SkippedEdge{EdgeID: raw.ID, Err: err})
			continue
		}
		s.seen[raw.ID] = rawRef{from: raw.From, to: raw.To}
		degrees[raw.From]++
		degrees[raw.To]++
		s.addMovie(raw.From, raw.MovieID)
		s.addMovie(raw.To, raw.MovieID)

		key := sortedPair(raw.From, raw.To)
		if id, ok := s.pairs[key]; ok {
			if s.mergeInto(s.edges[id], raw.InCommon()) {
				if _, done := merged[id]; !done && !slices.Contains(res.NewEdges, id) {
					merged[id] = struct{}{}
					res.MergedEdges = append(res.MergedEdges, id)
				}
			}
			continue
		}
		s.commitEdge(key, raw)
		res.NewEdges = append(res.NewEdges, raw.ID)
	}

	res.ResizedNodes = s.applyDegrees(degrees)
	return res
}

func (s *Store) admitNodes(nodes []model.NodeDTO, anchorID string) []string {
	var anchor Position
	if anchorID != "" {
		anchor = s.anchorPosition(anchorID)
	}

	var admitted []string
	for _, dto := range nodes {
		if dto.ID == "" {
			continue
		}
		if _, exists := s.nodes[dto.ID]; exists {
			continue
		}
		pos := Position{
			X: anchor.X + s.offset(),
			Y: anchor.Y + s.offset(),
		}
		s.nodes[dto.ID] = newNode(dto, pos)
		s.nodeOrder = append(s.nodeOrder, dto.ID)
		s.graphNode(dto.ID)
		admitted = append(admitted, dto.ID)
	}
	return admitted
}

func (s *Store) anchorPosition(anchorID string) Position {
	if s.positions != nil {
		if p, ok := s.positions.Position(anchorID); ok {
			return p
		}
	}
	if n, ok := s.nodes[anchorID]; ok {
		return n.Position
	}
	return Position{}
}

func (s *Store) offset() float64 {
	return s.rng.Float64()*2*AnchorSpread - AnchorSpread
}

// synthesizePseudoEdges links each admitted node to the known actors of its
// movies, then registers the node in the movie index.
func (s *Store) synthesizePseudoEdges(admitted []string, batchPairs map[pairKey]struct{}) []string {
	var created []string
	for _, id := range admitted {
		n := s.nodes[id]
		for _, movie := range n.Movies {
			for _, other := range s.movieActors(movie) {
				if other == id {
					continue
				}
				key := sortedPair(id, other)
				if _, ok := batchPairs[key]; ok {
					continue
				}
				if _, ok := s.pairs[key]; ok {
					continue
				}
				pid := pseudoEdgeID(id, other)
				if _, ok := s.pseudo[pid]; ok {
					continue
				}
				s.pseudo[pid] = &PseudoEdge{
					ID:             pid,
					From:           key.lo,
					To:             key.hi,
					Length:         PseudoEdgeLength,
					SpringConstant: PseudoSpringConstant,
				}
				s.pseudoOrder = append(s.pseudoOrder, pid)
				created = append(created, pid)
			}
		}
		for _, movie := range n.Movies {
			s.indexMovie(movie, id)
		}
	}
	return created
}

func (s *Store) validate(raw model.EdgeDTO) error {
	switch {
	case raw.ID == "":
		return apperr.DataIntegrity("edge %s-%s has no id", raw.From, raw.To)
	case raw.MovieID == "":
		return apperr.DataIntegrity("edge %s has no movie", raw.ID)
	case raw.From == raw.To:
		return apperr.DataIntegrity("edge %s is a self loop on %s", raw.ID, raw.From)
	}
	if _, ok := s.nodes[raw.From]; !ok {
		return apperr.DataIntegrity("edge %s references unknown node %s", raw.ID, raw.From)
	}
	if _, ok := s.nodes[raw.To]; !ok {
		return apperr.DataIntegrity("edge %s references unknown node %s", raw.ID, raw.To)
	}
	return nil
}

func (s *Store) addMovie(nodeID, movieID string) {
	n := s.nodes[nodeID]
	if !slices.Contains(n.Movies, movieID) {
		n.Movies = append(n.Movies, movieID)
	}
	s.indexMovie(movieID, nodeID)
}

func (s *Store) indexMovie(movieID, nodeID string) {
	set, ok := s.movieIndex[movieID]
	if !ok {
		set = make(map[string]struct{})
		s.movieIndex[movieID] = set
	}
	set[nodeID] = struct{}{}
}

func (s *Store) commitEdge(key pairKey, raw model.EdgeDTO) {
	e := &Edge{
		ID:       raw.ID,
		From:     raw.From,
		To:       raw.To,
		Color:    raw.Color,
		InCommon: []model.InCommon{raw.InCommon()},
	}
	e.Label = formatLabel(e.InCommon)
	e.Width = EdgeBaseWidth + float64(len(e.InCommon))

	s.edges[e.ID] = e
	s.edgeOrder = append(s.edgeOrder, e.ID)
	s.pairs[key] = e.ID
	s.graph.SetEdge(simple.Edge{
		F: simple.Node(s.graphNode(raw.From)),
		T: simple.Node(s.graphNode(raw.To)),
	})
}

// mergeInto appends ic unless the edge already lists its movie.
func (s *Store) mergeInto(e *Edge, ic model.InCommon) bool {
	for _, existing := range e.InCommon {
		if existing.MovieID == ic.MovieID {
			return false
		}
	}
	e.InCommon = append(e.InCommon, ic)
	e.Label = formatLabel(e.InCommon)
	e.Width = EdgeBaseWidth + float64(len(e.InCommon))
	return true
}

func (s *Store) applyDegrees(degrees map[string]int) []string {
	ids := make([]string, 0, len(degrees))
	for id := range degrees {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	var resized []string
	for _, id := range ids {
		n := s.nodes[id]
		grow := math.Log(float64(degrees[id])) * SizeScale
		n.Size += grow
		n.FontSize += grow
		n.Mass = math.Log(n.Size)
		if grow > 0 {
			resized = append(resized, id)
		}
	}
	return resized
}

func (s *Store) graphNode(id string) int64 {
	if gid, ok := s.graphID[id]; ok {
		return gid
	}
	gid := s.nextID
	s.nextID++
	s.graphID[id] = gid
	s.nodeID[gid] = id
	s.graph.AddNode(simple.Node(gid))
	return gid
}

// formatLabel lists shared movies one per line, collapsing everything past
// the third entry into "..." and a count.
func formatLabel(inCommon []model.InCommon) string {
	lines := make([]string, 0, maxLabelEntries+2)
	for i, ic := range inCommon {
		if i == maxLabelEntries {
			break
		}
		lines = append(lines, ic.String())
	}
	if rest := len(inCommon) - maxLabelEntries; rest > 0 {
		lines = append(lines, "...", strconv.Itoa(rest)+" more")
	}
	return strings.Join(lines, "\n")
}
