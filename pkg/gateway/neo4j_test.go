package gateway

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/ritzau/costar/pkg/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	records    []*neo4j.Record
	err        error
	lastCypher string
	lastParams map[string]any
	closed     bool
}

func (f *fakeRunner) run(_ context.Context, cypher string, params map[string]any) ([]*neo4j.Record, error) {
	f.lastCypher = cypher
	f.lastParams = params
	return f.records, f.err
}

func (f *fakeRunner) verify(context.Context) error { return f.err }

func (f *fakeRunner) close(context.Context) error {
	f.closed = true
	return nil
}

func person(id, name string, birth int64) neo4j.Node {
	return neo4j.Node{Labels: []string{"Person"}, Props: map[string]any{"id": id, "name": name, "birthYear": birth}}
}

func movie(id, title string, year int64) neo4j.Node {
	return neo4j.Node{Labels: []string{"Movie"}, Props: map[string]any{"id": id, "title": title, "year": year}}
}

func TestNeo4jCoStars(t *testing.T) {
	runner := &fakeRunner{records: []*neo4j.Record{
		{Keys: []string{"a1", "a2", "m"}, Values: []any{person(keanu, "Keanu Reeves", 1964), person("nm0000113", "Sandra Bullock", 1964), movie("tt0111257", "Speed", 1994)}},
		{Keys: []string{"a1", "a2", "m"}, Values: []any{person(keanu, "Keanu Reeves", 1964), nil, movie("tt0111257", "Speed", 1994)}},
		{Keys: []string{"a1", "a2", "m"}, Values: []any{person(keanu, "Keanu Reeves", 1964), person("nm0000113", "Sandra Bullock", 1964), movie("tt0410297", "The Lake House", 2006)}},
	}}
	g := &Neo4j{runner: runner}

	rows, err := g.CoStars(context.Background(), keanu)
	require.NoError(t, err)

	require.Len(t, rows, 2)
	assert.Equal(t, "Sandra Bullock", rows[0].CoStar.Name)
	assert.Equal(t, 2006, rows[1].Movie.Year)
	assert.Equal(t, keanu, runner.lastParams["id"])
	assert.Contains(t, runner.lastCypher, "RETURN DISTINCT a1, a2, m")
}

func TestNeo4jSearch(t *testing.T) {
	runner := &fakeRunner{records: []*neo4j.Record{
		{Keys: []string{"p"}, Values: []any{person(keanu, "Keanu Reeves", 1964)}},
		{Keys: []string{"p"}, Values: []any{"not a node"}},
	}}
	g := &Neo4j{runner: runner}

	actors, err := g.SearchActors(context.Background(), "kea", 3)
	require.NoError(t, err)

	require.Len(t, actors, 1)
	assert.Equal(t, 1964, actors[0].BirthYear)
	assert.Contains(t, runner.lastCypher, "LIMIT 3")
}

func TestNeo4jCountCoStars(t *testing.T) {
	runner := &fakeRunner{records: []*neo4j.Record{
		{Keys: []string{"count(DISTINCT a2)"}, Values: []any{int64(4)}},
	}}
	g := &Neo4j{runner: runner}

	n, err := g.CountCoStars(context.Background(), keanu, []string{"nm0000113"})
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, []string{"nm0000113"}, runner.lastParams["exclude"])

	runner.records[0].Values[0] = "four"
	_, err = g.CountCoStars(context.Background(), keanu, nil)
	assert.True(t, errors.Is(err, apperr.ErrDataIntegrity))
	assert.Equal(t, []string{}, runner.lastParams["exclude"])
}

func TestNeo4jUpstreamFailure(t *testing.T) {
	runner := &fakeRunner{err: errors.New("routing table unavailable")}
	g := &Neo4j{runner: runner}

	_, err := g.CoStars(context.Background(), keanu)
	assert.True(t, errors.Is(err, apperr.ErrUpstreamUnavailable))
	assert.True(t, errors.Is(g.Ping(context.Background()), apperr.ErrUpstreamUnavailable))

	require.NoError(t, g.Close())
	assert.True(t, runner.closed)
}
