package gateway

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/cockroachdb/errors"
	"github.com/ritzau/costar/pkg/apperr"
	"github.com/ritzau/costar/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const keanu = "nm0000206"

func loadTestMemory(t *testing.T) *Memory {
	t.Helper()
	ds, err := LoadDataset("testdata/dataset.yaml")
	require.NoError(t, err)
	return NewMemory(ds)
}

func TestMemoryCoStars(t *testing.T) {
	g := loadTestMemory(t)

	rows, err := g.CoStars(context.Background(), keanu)
	require.NoError(t, err)
	require.Len(t, rows, 11)

	distinct := map[string]bool{}
	for _, r := range rows {
		assert.Equal(t, keanu, r.Actor.ID)
		assert.NotEqual(t, keanu, r.CoStar.ID)
		distinct[r.CoStar.ID] = true
	}
	assert.Len(t, distinct, 7)
	assert.Equal(t, model.Movie{ID: "tt0133093", Title: "The Matrix", Year: 1999}, rows[0].Movie)
	assert.Equal(t, "Carrie-Anne Moss", rows[0].CoStar.Name)
}

func TestMemoryCoStarsUnknown(t *testing.T) {
	g := loadTestMemory(t)

	rows, err := g.CoStars(context.Background(), "nm9999999")
	require.NoError(t, err)
	assert.Empty(t, rows)

	// Buster Keaton exists but has nobody to share a credit with.
	rows, err = g.CoStars(context.Background(), "nm0000036")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestMemorySearchKea(t *testing.T) {
	g := loadTestMemory(t)

	actors, err := g.SearchActors(context.Background(), "kea", 10)
	require.NoError(t, err)
	assert.Len(t, actors, 10)
	for _, a := range actors {
		assert.Contains(t, strings.ToLower(a.Name), "kea")
	}

	actors, err = g.SearchActors(context.Background(), "KEANU", 0)
	require.NoError(t, err)
	require.Len(t, actors, 1)
	assert.Equal(t, 1964, actors[0].BirthYear)
}

func TestMemoryCountCoStars(t *testing.T) {
	g := loadTestMemory(t)
	ctx := context.Background()

	n, err := g.CountCoStars(ctx, keanu, nil)
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	n, err = g.CountCoStars(ctx, keanu, []string{keanu, "nm0005251", "nm0000113"})
	require.NoError(t, err)
	assert.Equal(t, 5, n)
}

func TestMemoryCancelled(t *testing.T) {
	g := loadTestMemory(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := g.CoStars(ctx, keanu)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrUpstreamUnavailable))
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestParseDatasetRejectsUnknownCast(t *testing.T) {
	_, err := ParseDataset(strings.NewReader(`
actors:
  - {id: a, name: A}
movies:
  - {id: m, title: M, cast: [a, b]}
`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrDataIntegrity))
	assert.Contains(t, err.Error(), "unknown actor b")
}

func TestParseDatasetEmpty(t *testing.T) {
	ds, err := ParseDataset(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, ds.Actors)
}

func TestOpen(t *testing.T) {
	g, err := Open(context.Background(), Options{Backend: "memory", MemoryDataset: "testdata/dataset.yaml"})
	require.NoError(t, err)
	defer g.Close()
	assert.NoError(t, g.Ping(context.Background()))

	_, err = Open(context.Background(), Options{Backend: "sqlite"})
	assert.Error(t, err)
}

func TestClampLimit(t *testing.T) {
	tests := map[int]int{-1: DefaultSearchLimit, 0: DefaultSearchLimit, 3: 3, 10: 10, 11: MaxSearchLimit, 500: MaxSearchLimit}
	for in, want := range tests {
		assert.Equal(t, want, clampLimit(in), "limit %d", in)
	}

	actors, err := loadTestMemory(t).SearchActors(context.Background(), "kea", 50)
	require.NoError(t, err)
	assert.Len(t, actors, MaxSearchLimit)
}

func TestTruncateKeepsRunes(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abc...", truncate("abcdef", 3))

	// "é" is two bytes; cutting after "caf" plus one byte would split it.
	got := truncate("café au lait", 4)
	assert.Equal(t, "caf...", got)
	assert.True(t, utf8.ValidString(got))

	got = truncate("ééé", 3)
	assert.Equal(t, "é...", got)
	assert.True(t, utf8.ValidString(got))
}
