package model

import "fmt"

// Actor is a performer as stored in the graph database.
type Actor struct {
	ID        string `json:"id" yaml:"id"`                                   // Stable actor identifier (e.g., "nm0000206")
	Name      string `json:"name" yaml:"name"`                               // Display name
	BirthYear int    `json:"birthYear,omitempty" yaml:"birthYear,omitempty"` // 0 when unknown
}

// Movie is a film as stored in the graph database.
type Movie struct {
	ID    string `json:"id" yaml:"id"`                         // Stable movie identifier (e.g., "tt0133093")
	Title string `json:"title" yaml:"title"`                   // Primary title
	Year  int    `json:"year,omitempty" yaml:"year,omitempty"` // Release year, 0 when unknown
}

// CoStarRow is one (actor, co-star, shared movie) triple returned by an
// expansion query. A co-star appearing in several shared movies yields one
// row per movie.
type CoStarRow struct {
	Actor  Actor
	CoStar Actor
	Movie  Movie
}

// InCommon is one shared movie recorded on a committed edge.
type InCommon struct {
	MovieID string `json:"movieId"`
	Title   string `json:"title"`
	Year    int    `json:"year,omitempty"`
}

// String renders the entry the way edge labels list it ("Title - Year").
func (ic InCommon) String() string {
	if ic.Year == 0 {
		return ic.Title
	}
	return fmt.Sprintf("%s - %d", ic.Title, ic.Year)
}
