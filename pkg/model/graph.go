package model

// NodeDTO is an actor node as sent to the client.
type NodeDTO struct {
	ID        string   `json:"id"`
	Label     string   `json:"label"`
	BirthYear int      `json:"birthYear,omitempty"`
	Movies    []string `json:"movies"` // Movie ids known to connect this actor to the expanded root
}

// EdgeDTO is a raw, pre-merge edge: one per (actor pair, movie) triple.
type EdgeDTO struct {
	ID      string `json:"id"` // "<from>-<movieId>-<to>", stable across refetches
	From    string `json:"from"`
	To      string `json:"to"`
	MovieID string `json:"movieId"`
	Title   string `json:"title"`
	Year    int    `json:"year,omitempty"`
	Color   string `json:"color"` // "#rrggbb" derived from MovieID
	Label   string `json:"label"`
}

// InCommon returns the shared-movie entry this raw edge contributes.
func (e EdgeDTO) InCommon() InCommon {
	return InCommon{MovieID: e.MovieID, Title: e.Title, Year: e.Year}
}

// ExpansionPayload is the response of an expand-node request.
type ExpansionPayload struct {
	RootNode NodeDTO   `json:"rootNode"`
	NewNodes []NodeDTO `json:"newNodes"`
	Edges    []EdgeDTO `json:"edges"`
}

// AllNodes returns the root followed by the newly discovered nodes, the batch
// a client merges when the expansion starts a new exploration.
func (p *ExpansionPayload) AllNodes() []NodeDTO {
	nodes := make([]NodeDTO, 0, len(p.NewNodes)+1)
	nodes = append(nodes, p.RootNode)
	return append(nodes, p.NewNodes...)
}

// ConnectionCount is the response of a node-connections request.
type ConnectionCount struct {
	Result int `json:"result"`
}
