package gateway

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/ritzau/costar/pkg/apperr"
	"github.com/ritzau/costar/pkg/model"
)

// agVertex is AGE's text form of a vertex: a JSON object followed by "::vertex".
type agVertex struct {
	ID         json.Number    `json:"id"`
	Label      string         `json:"label"`
	Properties map[string]any `json:"properties"`
}

func parseVertex(text string) (agVertex, error) {
	body := strings.TrimSpace(text)
	body = strings.TrimSuffix(body, "::vertex")

	dec := json.NewDecoder(bytes.NewReader([]byte(body)))
	dec.UseNumber()

	var v agVertex
	if err := dec.Decode(&v); err != nil {
		return agVertex{}, apperr.DataIntegrity("malformed vertex %q: %v", truncate(text, 80), err)
	}
	if v.Properties == nil {
		return agVertex{}, apperr.DataIntegrity("vertex %s has no properties", v.ID)
	}
	return v, nil
}

// parseScalar reads an agtype scalar such as "12" or "12::integer".
func parseScalar(text string) (int, error) {
	body := strings.TrimSpace(text)
	if i := strings.Index(body, "::"); i >= 0 {
		body = body[:i]
	}
	n, err := strconv.Atoi(body)
	if err != nil {
		return 0, apperr.DataIntegrity("expected integer, got %q", truncate(text, 40))
	}
	return n, nil
}

// actorFromProps converts Person properties, from either backend, into an Actor.
func actorFromProps(props map[string]any) (model.Actor, error) {
	id, err := stringProp(props, "id", true)
	if err != nil {
		return model.Actor{}, err
	}
	name, err := stringProp(props, "name", false)
	if err != nil {
		return model.Actor{}, err
	}
	year, err := intProp(props, "birthYear")
	if err != nil {
		return model.Actor{}, err
	}
	return model.Actor{ID: id, Name: name, BirthYear: year}, nil
}

func movieFromProps(props map[string]any) (model.Movie, error) {
	id, err := stringProp(props, "id", true)
	if err != nil {
		return model.Movie{}, err
	}
	title, err := stringProp(props, "title", false)
	if err != nil {
		return model.Movie{}, err
	}
	year, err := intProp(props, "year")
	if err != nil {
		return model.Movie{}, err
	}
	return model.Movie{ID: id, Title: title, Year: year}, nil
}

func stringProp(props map[string]any, key string, required bool) (string, error) {
	raw, ok := props[key]
	if !ok || raw == nil {
		if required {
			return "", apperr.DataIntegrity("missing property %q", key)
		}
		return "", nil
	}
	s, ok := raw.(string)
	if !ok {
		return "", apperr.DataIntegrity("property %q is %T, want string", key, raw)
	}
	if required && s == "" {
		return "", apperr.DataIntegrity("empty property %q", key)
	}
	return s, nil
}

// intProp accepts JSON numbers, driver integers and numeric strings. Absent
// and null read as 0.
func intProp(props map[string]any, key string) (int, error) {
	switch v := props[key].(type) {
	case nil:
		return 0, nil
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			f, ferr := v.Float64()
			if ferr != nil {
				return 0, apperr.DataIntegrity("property %q: %v", key, err)
			}
			return int(f), nil
		}
		return int(n), nil
	case int64:
		return int(v), nil
	case int:
		return v, nil
	case float64:
		return int(v), nil
	case string:
		if v == "" || v == `\N` {
			return 0, nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, apperr.DataIntegrity("property %q: %q is not a number", key, v)
		}
		return n, nil
	default:
		return 0, apperr.DataIntegrity("property %q is %T, want integer", key, v)
	}
}

// truncate shortens s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
