package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ritzau/costar/pkg/apperr"
	"github.com/ritzau/costar/pkg/logging"
	"github.com/ritzau/costar/pkg/model"
)

// DefaultAGEGraph is the graph the IMDb import creates.
const DefaultAGEGraph = "imdb_graph"

// DBPool is the part of *pgxpool.Pool the AGE gateway uses, so tests can
// substitute a fake.
type DBPool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

var _ DBPool = (*pgxpool.Pool)(nil)

var graphNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// AGE queries a PostgreSQL database with the Apache AGE extension.
type AGE struct {
	pool  DBPool
	graph string
}

// NewAGEPool opens a pgx pool whose connections have AGE loaded and on the
// search path.
func NewAGEPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, apperr.InvalidArgument("invalid age dsn: %v", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		if _, err := conn.Exec(ctx, "LOAD 'age'"); err != nil {
			return fmt.Errorf("load age: %w", err)
		}
		if _, err := conn.Exec(ctx, `SET search_path = ag_catalog, "$user", public`); err != nil {
			return fmt.Errorf("set search_path: %w", err)
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, apperr.Upstream(err, "connect to postgres")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, apperr.Upstream(err, "ping postgres")
	}
	return pool, nil
}

// NewAGE returns a gateway over pool querying the named graph.
func NewAGE(pool DBPool, graph string) (*AGE, error) {
	if graph == "" {
		graph = DefaultAGEGraph
	}
	if !graphNamePattern.MatchString(graph) {
		return nil, apperr.InvalidArgument("invalid graph name %q", graph)
	}
	return &AGE{pool: pool, graph: graph}, nil
}

// sql wraps a Cypher body in AGE's cypher() call. Parameters travel as one
// agtype map in $1.
func (a *AGE) sql(cypher, columns string) string {
	return fmt.Sprintf("SELECT * FROM cypher('%s', $$%s$$, $1) AS (%s)", a.graph, cypher, columns)
}

func agParams(params map[string]any) (string, error) {
	b, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("encode cypher params: %w", err)
	}
	return string(b), nil
}

func (a *AGE) CoStars(ctx context.Context, actorID string) ([]model.CoStarRow, error) {
	params, err := agParams(map[string]any{"id": actorID})
	if err != nil {
		return nil, err
	}

	rows, err := a.pool.Query(ctx, a.sql(coStarsCypher, "a1 agtype, a2 agtype, m agtype"), params)
	if err != nil {
		return nil, apperr.Upstream(err, "age: co-stars of %s", actorID)
	}
	defer rows.Close()

	var out []model.CoStarRow
	for rows.Next() {
		var a1, a2, m string
		if err := rows.Scan(&a1, &a2, &m); err != nil {
			return nil, apperr.Upstream(err, "age: scan co-star row")
		}
		row, err := coStarRowFromVertices(a1, a2, m)
		if err != nil {
			logging.WarnContext(ctx, "skipping co-star row", "actor", actorID, "error", err)
			continue
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Upstream(err, "age: co-stars of %s", actorID)
	}
	return out, nil
}

func coStarRowFromVertices(a1, a2, m string) (model.CoStarRow, error) {
	var row model.CoStarRow
	for _, step := range []struct {
		text  string
		apply func(props map[string]any) error
	}{
		{a1, func(p map[string]any) (err error) { row.Actor, err = actorFromProps(p); return }},
		{a2, func(p map[string]any) (err error) { row.CoStar, err = actorFromProps(p); return }},
		{m, func(p map[string]any) (err error) { row.Movie, err = movieFromProps(p); return }},
	} {
		v, err := parseVertex(step.text)
		if err != nil {
			return model.CoStarRow{}, err
		}
		if err := step.apply(v.Properties); err != nil {
			return model.CoStarRow{}, err
		}
	}
	return row, nil
}

func (a *AGE) SearchActors(ctx context.Context, query string, limit int) ([]model.Actor, error) {
	params, err := agParams(map[string]any{"query": query})
	if err != nil {
		return nil, err
	}

	rows, err := a.pool.Query(ctx, a.sql(searchActorsCypher(clampLimit(limit)), "p agtype"), params)
	if err != nil {
		return nil, apperr.Upstream(err, "age: search %q", query)
	}
	defer rows.Close()

	var out []model.Actor
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, apperr.Upstream(err, "age: scan search row")
		}
		v, err := parseVertex(p)
		if err == nil {
			var actor model.Actor
			if actor, err = actorFromProps(v.Properties); err == nil {
				out = append(out, actor)
				continue
			}
		}
		logging.WarnContext(ctx, "skipping search row", "query", query, "error", err)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Upstream(err, "age: search %q", query)
	}
	return out, nil
}

func (a *AGE) CountCoStars(ctx context.Context, actorID string, exclude []string) (int, error) {
	params, err := agParams(map[string]any{"id": actorID, "exclude": nonNil(exclude)})
	if err != nil {
		return 0, err
	}

	var text string
	if err := a.pool.QueryRow(ctx, a.sql(countCoStarsCypher, "n agtype"), params).Scan(&text); err != nil {
		return 0, apperr.Upstream(err, "age: count co-stars of %s", actorID)
	}
	return parseScalar(text)
}

func (a *AGE) Ping(ctx context.Context) error {
	return apperr.Upstream(a.pool.Ping(ctx), "age: ping")
}

func (a *AGE) Close() error {
	a.pool.Close()
	return nil
}
