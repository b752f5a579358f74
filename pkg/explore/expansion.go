package explore

import (
	"fmt"
	"slices"
	"unicode/utf16"

	"github.com/ritzau/costar/pkg/apperr"
	"github.com/ritzau/costar/pkg/model"
)

// EdgeID is the raw edge id for one (actor, movie, co-star) triple. It is
// stable across refetches so clients can deduplicate overlapping expansions.
func EdgeID(actorID, movieID, coStarID string) string {
	return actorID + "-" + movieID + "-" + coStarID
}

// BuildExpansion turns the co-star rows of one actor into an expansion payload.
// The first row's actor is the root. No rows is a NotFound error.
func BuildExpansion(rows []model.CoStarRow) (model.ExpansionPayload, error) {
	if len(rows) == 0 {
		return model.ExpansionPayload{}, apperr.NotFound("no co-stars found")
	}

	root := rows[0].Actor
	payload := model.ExpansionPayload{
		RootNode: nodeDTO(root),
		NewNodes: []model.NodeDTO{},
		Edges:    make([]model.EdgeDTO, 0, len(rows)),
	}

	index := make(map[string]int) // co-star id -> position in NewNodes
	for _, r := range rows {
		addMovie(&payload.RootNode, r.Movie.ID)

		if r.CoStar.ID != root.ID {
			i, ok := index[r.CoStar.ID]
			if !ok {
				i = len(payload.NewNodes)
				index[r.CoStar.ID] = i
				payload.NewNodes = append(payload.NewNodes, nodeDTO(r.CoStar))
			}
			addMovie(&payload.NewNodes[i], r.Movie.ID)
		}

		payload.Edges = append(payload.Edges, model.EdgeDTO{
			ID:      EdgeID(r.Actor.ID, r.Movie.ID, r.CoStar.ID),
			From:    r.Actor.ID,
			To:      r.CoStar.ID,
			MovieID: r.Movie.ID,
			Title:   r.Movie.Title,
			Year:    r.Movie.Year,
			Color:   Color(r.Movie.ID),
			Label:   r.Movie.Title,
		})
	}
	return payload, nil
}

func nodeDTO(a model.Actor) model.NodeDTO {
	return model.NodeDTO{ID: a.ID, Label: a.Name, BirthYear: a.BirthYear, Movies: []string{}}
}

func addMovie(n *model.NodeDTO, movieID string) {
	if movieID != "" && !slices.Contains(n.Movies, movieID) {
		n.Movies = append(n.Movies, movieID)
	}
}

// Color derives an edge color from a movie id: a 32-bit string hash over
// UTF-16 code units, rendered as #rrggbb from its low three bytes, lowest first.
func Color(movieID string) string {
	var hash int32
	for _, c := range utf16.Encode([]rune(movieID)) {
		hash = int32(c) + ((hash << 5) - hash)
	}
	return fmt.Sprintf("#%02x%02x%02x", uint8(hash), uint8(hash>>8), uint8(hash>>16))
}
