package gateway

import (
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/ritzau/costar/pkg/apperr"
	"github.com/ritzau/costar/pkg/model"
	"gopkg.in/yaml.v3"
)

// Dataset is a small co-star graph kept in a YAML file.
//
//	actors:
//	  - {id: nm0000206, name: Keanu Reeves, birthYear: 1964}
//	movies:
//	  - {id: tt0133093, title: The Matrix, year: 1999, cast: [nm0000206]}
type Dataset struct {
	Actors []model.Actor `yaml:"actors"`
	Movies []CastMovie   `yaml:"movies"`
}

// CastMovie is a movie with the ids of the actors credited in it.
type CastMovie struct {
	model.Movie `yaml:",inline"`
	Cast        []string `yaml:"cast"`
}

// LoadDataset reads and validates a YAML dataset file.
func LoadDataset(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()
	return ParseDataset(f)
}

// ParseDataset decodes and validates a YAML dataset.
func ParseDataset(r io.Reader) (*Dataset, error) {
	var ds Dataset
	if err := yaml.NewDecoder(r).Decode(&ds); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode dataset: %w", err)
	}
	if err := ds.validate(); err != nil {
		return nil, err
	}
	return &ds, nil
}

func (ds *Dataset) validate() error {
	actors := make(map[string]struct{}, len(ds.Actors))
	for _, a := range ds.Actors {
		if a.ID == "" {
			return apperr.DataIntegrity("dataset actor %q has no id", a.Name)
		}
		if _, dup := actors[a.ID]; dup {
			return apperr.DataIntegrity("dataset actor %s listed twice", a.ID)
		}
		actors[a.ID] = struct{}{}
	}
	movies := make(map[string]struct{}, len(ds.Movies))
	for _, m := range ds.Movies {
		if m.ID == "" {
			return apperr.DataIntegrity("dataset movie %q has no id", m.Title)
		}
		if _, dup := movies[m.ID]; dup {
			return apperr.DataIntegrity("dataset movie %s listed twice", m.ID)
		}
		movies[m.ID] = struct{}{}
		for _, id := range m.Cast {
			if _, ok := actors[id]; !ok {
				return apperr.DataIntegrity("movie %s credits unknown actor %s", m.ID, id)
			}
		}
	}
	return nil
}

// Memory answers the gateway queries from a Dataset.
type Memory struct {
	actors map[string]model.Actor
	order  []model.Actor
	movies []CastMovie
}

// NewMemory indexes ds. ds must not be modified afterwards.
func NewMemory(ds *Dataset) *Memory {
	m := &Memory{
		actors: make(map[string]model.Actor, len(ds.Actors)),
		order:  ds.Actors,
		movies: ds.Movies,
	}
	for _, a := range ds.Actors {
		m.actors[a.ID] = a
	}
	return m
}

func (m *Memory) CoStars(ctx context.Context, actorID string) ([]model.CoStarRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperr.Upstream(err, "memory: co-stars of %s", actorID)
	}
	root, ok := m.actors[actorID]
	if !ok {
		return nil, nil
	}

	var out []model.CoStarRow
	for _, mv := range m.movies {
		if !slices.Contains(mv.Cast, actorID) {
			continue
		}
		seen := make(map[string]struct{}, len(mv.Cast))
		for _, id := range mv.Cast {
			if _, dup := seen[id]; dup || id == actorID {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, model.CoStarRow{Actor: root, CoStar: m.actors[id], Movie: mv.Movie})
		}
	}
	return out, nil
}

func (m *Memory) SearchActors(ctx context.Context, query string, limit int) ([]model.Actor, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperr.Upstream(err, "memory: search %q", query)
	}
	limit = clampLimit(limit)
	q := strings.ToLower(query)

	var out []model.Actor
	for _, a := range m.order {
		if strings.Contains(strings.ToLower(a.Name), q) {
			out = append(out, a)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (m *Memory) CountCoStars(ctx context.Context, actorID string, exclude []string) (int, error) {
	rows, err := m.CoStars(ctx, actorID)
	if err != nil {
		return 0, err
	}
	distinct := make(map[string]struct{})
	for _, r := range rows {
		if !slices.Contains(exclude, r.CoStar.ID) {
			distinct[r.CoStar.ID] = struct{}{}
		}
	}
	return len(distinct), nil
}

func (m *Memory) Ping(ctx context.Context) error {
	return apperr.Upstream(ctx.Err(), "memory: ping")
}

func (m *Memory) Close() error { return nil }
