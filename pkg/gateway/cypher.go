package gateway

import "fmt"

// Both database backends speak openCypher. AGE cannot bind LIMIT to a
// parameter, so the cap is rendered into the text.

const coStarsCypher = `
MATCH (a1:Person {id: $id})-[:ACTED_IN]->(m:Movie)<-[:ACTED_IN]-(a2:Person)
WHERE a1.id <> a2.id
RETURN DISTINCT a1, a2, m`

const countCoStarsCypher = `
MATCH (a1:Person {id: $id})-[:ACTED_IN]->(:Movie)<-[:ACTED_IN]-(a2:Person)
WHERE a1.id <> a2.id AND NOT a2.id IN $exclude
RETURN count(DISTINCT a2)`

func searchActorsCypher(limit int) string {
	return fmt.Sprintf(`
MATCH (p:Person)
WHERE toLower(p.name) CONTAINS toLower($query)
RETURN p
LIMIT %d`, limit)
}

// Search result caps. Limits outside 1..MaxSearchLimit are clamped.
const (
	DefaultSearchLimit = 10
	MaxSearchLimit     = 10
)

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultSearchLimit
	case limit > MaxSearchLimit:
		return MaxSearchLimit
	}
	return limit
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
