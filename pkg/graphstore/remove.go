package graphstore

import (
	"slices"
)

// RemoveNode collapses id: every neighbor whose only committed edge leads to
// id is removed, together with its pseudo-edges and movie index entries. id
// itself and neighbors with other connections stay. It returns the removed ids.
func (s *Store) RemoveNode(id string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed []string
	for _, nb := range s.committedNeighbors(id) {
		if s.degree(nb) == 1 {
			s.deleteNode(nb)
			removed = append(removed, nb)
		}
	}
	if len(removed) > 0 {
		s.log.Debug("collapsed node", "node", id, "removed", len(removed))
	}
	return removed
}

// Prune removes id and every committed or pseudo edge touching it, then keeps
// removing any former neighbor left without edges. It returns the removed ids
// in removal order.
func (s *Store) Prune(id string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.nodes[id]; !ok {
		return nil
	}

	var removed []string
	queue := []string{id}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if _, ok := s.nodes[cur]; !ok {
			continue
		}
		neighbors := s.allNeighbors(cur)
		s.deleteNode(cur)
		removed = append(removed, cur)
		for _, nb := range neighbors {
			if s.degree(nb) == 0 && s.pseudoDegree(nb) == 0 {
				queue = append(queue, nb)
			}
		}
	}
	s.log.Debug("pruned node", "node", id, "removed", len(removed))
	return removed
}

func (s *Store) committedNeighbors(id string) []string {
	gid, ok := s.graphID[id]
	if !ok {
		return nil
	}
	var out []string
	it := s.graph.From(gid)
	for it.Next() {
		out = append(out, s.nodeID[it.Node().ID()])
	}
	slices.Sort(out)
	return out
}

func (s *Store) allNeighbors(id string) []string {
	out := s.committedNeighbors(id)
	for _, p := range s.pseudo {
		switch id {
		case p.From:
			out = append(out, p.To)
		case p.To:
			out = append(out, p.From)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

func (s *Store) pseudoDegree(id string) int {
	n := 0
	for _, p := range s.pseudo {
		if p.From == id || p.To == id {
			n++
		}
	}
	return n
}

// deleteNode drops a node with all its edges, index entries and raw edge
// records, so a later expansion can bring it back in full.
func (s *Store) deleteNode(id string) {
	n, ok := s.nodes[id]
	if !ok {
		return
	}

	for _, nb := range s.committedNeighbors(id) {
		key := sortedPair(id, nb)
		eid := s.pairs[key]
		delete(s.pairs, key)
		delete(s.edges, eid)
		s.edgeOrder = slices.DeleteFunc(s.edgeOrder, func(e string) bool { return e == eid })
	}

	for pid, p := range s.pseudo {
		if p.From == id || p.To == id {
			delete(s.pseudo, pid)
		}
	}
	s.pseudoOrder = slices.DeleteFunc(s.pseudoOrder, func(pid string) bool {
		_, ok := s.pseudo[pid]
		return !ok
	})

	for _, movie := range n.Movies {
		if set, ok := s.movieIndex[movie]; ok {
			delete(set, id)
			if len(set) == 0 {
				delete(s.movieIndex, movie)
			}
		}
	}

	for rid, ref := range s.seen {
		if ref.from == id || ref.to == id {
			delete(s.seen, rid)
		}
	}

	if gid, ok := s.graphID[id]; ok {
		s.graph.RemoveNode(gid)
		delete(s.graphID, id)
		delete(s.nodeID, gid)
	}

	delete(s.nodes, id)
	s.nodeOrder = slices.DeleteFunc(s.nodeOrder, func(n string) bool { return n == id })
	if s.highlighted == id {
		s.highlighted = ""
	}
}
