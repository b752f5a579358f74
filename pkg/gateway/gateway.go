// Package gateway runs the co-star Cypher queries against a graph database
// and decodes the driver's values into typed rows.
//
// Three backends implement Gateway: AGE (PostgreSQL with the Apache AGE
// extension, through pgx), Neo4j (the official Go driver) and Memory (a YAML
// dataset, for development and tests). Driver failures come back marked as
// apperr.ErrUpstreamUnavailable, malformed values as apperr.ErrDataIntegrity.
package gateway

import (
	"context"
	"fmt"
	"strings"

	"github.com/ritzau/costar/pkg/model"
)

// Gateway is the query boundary to the graph database.
type Gateway interface {
	// CoStars returns one row per (co-star, shared movie) of actorID. No
	// rows means the actor is unknown or has no co-stars.
	CoStars(ctx context.Context, actorID string) ([]model.CoStarRow, error)

	// SearchActors returns up to limit actors whose name contains query,
	// ignoring case.
	SearchActors(ctx context.Context, query string, limit int) ([]model.Actor, error)

	// CountCoStars counts the distinct co-stars of actorID not listed in exclude.
	CountCoStars(ctx context.Context, actorID string, exclude []string) (int, error)

	// Ping checks the database is reachable.
	Ping(ctx context.Context) error

	Close() error
}

// Backend names accepted by Open.
const (
	BackendAGE    = "age"
	BackendNeo4j  = "neo4j"
	BackendMemory = "memory"
)

// Options selects and configures a backend.
type Options struct {
	Backend string

	AGEDSN   string
	AGEGraph string

	Neo4jURI      string
	Neo4jUsername string
	Neo4jPassword string
	Neo4jDatabase string

	MemoryDataset string
}

// Open connects the configured backend.
func Open(ctx context.Context, opts Options) (Gateway, error) {
	switch strings.ToLower(opts.Backend) {
	case BackendAGE:
		pool, err := NewAGEPool(ctx, opts.AGEDSN)
		if err != nil {
			return nil, err
		}
		g, err := NewAGE(pool, opts.AGEGraph)
		if err != nil {
			pool.Close()
			return nil, err
		}
		return g, nil
	case BackendNeo4j:
		return DialNeo4j(ctx, opts.Neo4jURI, opts.Neo4jUsername, opts.Neo4jPassword, opts.Neo4jDatabase)
	case "", BackendMemory:
		if opts.MemoryDataset == "" {
			return NewMemory(&Dataset{}), nil
		}
		ds, err := LoadDataset(opts.MemoryDataset)
		if err != nil {
			return nil, err
		}
		return NewMemory(ds), nil
	default:
		return nil, fmt.Errorf("unknown gateway backend %q", opts.Backend)
	}
}
