package explorer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ritzau/costar/pkg/apperr"
	"github.com/ritzau/costar/pkg/layout"
	"github.com/ritzau/costar/pkg/logging"
	"github.com/ritzau/costar/pkg/model"
)

// API is what the controller needs from the exploration backend. Both the
// HTTP Client and an in-process explore.Service satisfy it.
type API interface {
	Search(ctx context.Context, query string) ([]model.Actor, error)
	Expand(ctx context.Context, actorID string) (model.ExpansionPayload, error)
	NodeConnections(ctx context.Context, actorID string, exclude []string) (int, error)
}

// SettingsPayload is the response of /explore/settings.
type SettingsPayload struct {
	Settings model.UISettings `json:"settings"`
	Physics  layout.Options   `json:"physics"`
}

// Client talks to a costar server.
type Client struct {
	base *url.URL
	http *http.Client
}

var _ API = (*Client)(nil)

// NewClient creates a client for the server at baseURL. A nil hc uses a
// client with a 30s timeout.
func NewClient(baseURL string, hc *http.Client) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, apperr.InvalidArgument("invalid server url %q", baseURL)
	}
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{base: u, http: hc}, nil
}

func (c *Client) Search(ctx context.Context, query string) ([]model.Actor, error) {
	var actors []model.Actor
	err := c.get(ctx, "/explore/search", url.Values{"query": {query}}, &actors)
	return actors, err
}

func (c *Client) Expand(ctx context.Context, actorID string) (model.ExpansionPayload, error) {
	var payload model.ExpansionPayload
	err := c.get(ctx, "/explore/expand-node/"+url.PathEscape(actorID), nil, &payload)
	return payload, err
}

func (c *Client) NodeConnections(ctx context.Context, actorID string, exclude []string) (int, error) {
	var count model.ConnectionCount
	q := url.Values{}
	for _, id := range exclude {
		q.Add("exclude", id)
	}
	err := c.get(ctx, "/explore/node-connections/"+url.PathEscape(actorID), q, &count)
	return count.Result, err
}

// Settings fetches the display settings and physics options.
func (c *Client) Settings(ctx context.Context) (SettingsPayload, error) {
	var s SettingsPayload
	err := c.get(ctx, "/explore/settings", nil, &s)
	return s, err
}

// Health checks the server's /healthz endpoint.
func (c *Client) Health(ctx context.Context) error {
	var ignored map[string]any
	return c.get(ctx, "/healthz", nil, &ignored)
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	u := *c.base
	u.Path = c.base.Path + path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if id := logging.GetRequestID(ctx); id != "" {
		req.Header.Set(logging.RequestIDHeader, id)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return apperr.Upstream(err, "GET %s", path)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperr.DataIntegrity("decode %s response: %v", path, err)
	}
	return nil
}

// decodeError rebuilds the server's error kind so callers can classify it
// with errors.Is like a local error.
func decodeError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var er model.ErrorResponse
	if err := json.Unmarshal(body, &er); err != nil || er.Error == "" {
		er.Error = strings.TrimSpace(string(body))
		if er.Error == "" {
			er.Error = resp.Status
		}
	}

	switch apperr.Kind(er.Kind) {
	case apperr.KindNotFound:
		return apperr.NotFound("%s", er.Error)
	case apperr.KindInvalidArgument:
		return apperr.InvalidArgument("%s", er.Error)
	case apperr.KindDataIntegrity:
		return apperr.DataIntegrity("%s", er.Error)
	case apperr.KindUpstream:
		return apperr.Upstream(errors.New(er.Error), "server")
	}
	if resp.StatusCode == http.StatusServiceUnavailable || resp.StatusCode == http.StatusTooManyRequests {
		return apperr.Upstream(errors.Newf("%s: %s", resp.Status, er.Error), "server")
	}
	return errors.Newf("server returned %s: %s", resp.Status, er.Error)
}
