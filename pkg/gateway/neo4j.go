package gateway

import (
	"context"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/ritzau/costar/pkg/apperr"
	"github.com/ritzau/costar/pkg/logging"
	"github.com/ritzau/costar/pkg/model"
)

// cypherRunner executes one read query and returns every record.
type cypherRunner interface {
	run(ctx context.Context, cypher string, params map[string]any) ([]*neo4j.Record, error)
	verify(ctx context.Context) error
	close(ctx context.Context) error
}

type driverRunner struct {
	driver   neo4j.DriverWithContext
	database string
}

func (d *driverRunner) run(ctx context.Context, cypher string, params map[string]any) ([]*neo4j.Record, error) {
	opts := []neo4j.ExecuteQueryConfigurationOption{neo4j.ExecuteQueryWithReadersRouting()}
	if d.database != "" {
		opts = append(opts, neo4j.ExecuteQueryWithDatabase(d.database))
	}
	res, err := neo4j.ExecuteQuery(ctx, d.driver, cypher, params, neo4j.EagerResultTransformer, opts...)
	if err != nil {
		return nil, err
	}
	return res.Records, nil
}

func (d *driverRunner) verify(ctx context.Context) error { return d.driver.VerifyConnectivity(ctx) }
func (d *driverRunner) close(ctx context.Context) error  { return d.driver.Close(ctx) }

// Neo4j queries a Neo4j database through the official driver.
type Neo4j struct {
	runner cypherRunner
}

// DialNeo4j connects to uri with basic auth and verifies connectivity.
func DialNeo4j(ctx context.Context, uri, username, password, database string) (*Neo4j, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, apperr.InvalidArgument("invalid neo4j uri %q: %v", uri, err)
	}
	g := &Neo4j{runner: &driverRunner{driver: driver, database: database}}
	if err := g.Ping(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, err
	}
	return g, nil
}

func (g *Neo4j) CoStars(ctx context.Context, actorID string) ([]model.CoStarRow, error) {
	records, err := g.runner.run(ctx, coStarsCypher, map[string]any{"id": actorID})
	if err != nil {
		return nil, apperr.Upstream(err, "neo4j: co-stars of %s", actorID)
	}

	out := make([]model.CoStarRow, 0, len(records))
	for _, rec := range records {
		row, err := coStarRowFromRecord(rec)
		if err != nil {
			logging.WarnContext(ctx, "skipping co-star row", "actor", actorID, "error", err)
			continue
		}
		out = append(out, row)
	}
	return out, nil
}

func coStarRowFromRecord(rec *neo4j.Record) (model.CoStarRow, error) {
	a1, err := recordNode(rec, "a1")
	if err != nil {
		return model.CoStarRow{}, err
	}
	a2, err := recordNode(rec, "a2")
	if err != nil {
		return model.CoStarRow{}, err
	}
	m, err := recordNode(rec, "m")
	if err != nil {
		return model.CoStarRow{}, err
	}

	var row model.CoStarRow
	if row.Actor, err = actorFromProps(a1.Props); err != nil {
		return model.CoStarRow{}, err
	}
	if row.CoStar, err = actorFromProps(a2.Props); err != nil {
		return model.CoStarRow{}, err
	}
	if row.Movie, err = movieFromProps(m.Props); err != nil {
		return model.CoStarRow{}, err
	}
	return row, nil
}

func recordNode(rec *neo4j.Record, key string) (neo4j.Node, error) {
	node, isNil, err := neo4j.GetRecordValue[neo4j.Node](rec, key)
	if err != nil {
		return neo4j.Node{}, apperr.DataIntegrity("column %s: %v", key, err)
	}
	if isNil {
		return neo4j.Node{}, apperr.DataIntegrity("column %s is null", key)
	}
	return node, nil
}

func (g *Neo4j) SearchActors(ctx context.Context, query string, limit int) ([]model.Actor, error) {
	records, err := g.runner.run(ctx, searchActorsCypher(clampLimit(limit)), map[string]any{"query": query})
	if err != nil {
		return nil, apperr.Upstream(err, "neo4j: search %q", query)
	}

	var out []model.Actor
	for _, rec := range records {
		node, err := recordNode(rec, "p")
		if err == nil {
			var actor model.Actor
			if actor, err = actorFromProps(node.Props); err == nil {
				out = append(out, actor)
				continue
			}
		}
		logging.WarnContext(ctx, "skipping search row", "query", query, "error", err)
	}
	return out, nil
}

func (g *Neo4j) CountCoStars(ctx context.Context, actorID string, exclude []string) (int, error) {
	records, err := g.runner.run(ctx, countCoStarsCypher, map[string]any{"id": actorID, "exclude": nonNil(exclude)})
	if err != nil {
		return 0, apperr.Upstream(err, "neo4j: count co-stars of %s", actorID)
	}
	if len(records) == 0 {
		return 0, nil
	}
	if len(records[0].Values) == 0 {
		return 0, apperr.DataIntegrity("count query returned an empty record")
	}
	n, ok := records[0].Values[0].(int64)
	if !ok {
		return 0, apperr.DataIntegrity("count is %T, want integer", records[0].Values[0])
	}
	return int(n), nil
}

func (g *Neo4j) Ping(ctx context.Context) error {
	return apperr.Upstream(g.runner.verify(ctx), "neo4j: verify connectivity")
}

func (g *Neo4j) Close() error {
	return g.runner.close(context.Background())
}
