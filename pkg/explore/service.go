// Package explore answers the three exploration queries: actor search,
// one-hop expansion and the "expanding adds N" preview.
package explore

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/ritzau/costar/pkg/apperr"
	"github.com/ritzau/costar/pkg/gateway"
	"github.com/ritzau/costar/pkg/logging"
	"github.com/ritzau/costar/pkg/model"
	"golang.org/x/sync/singleflight"
)

// DefaultTimeout bounds one gateway query.
const DefaultTimeout = 10 * time.Second

// Service runs exploration queries through a gateway. Concurrent identical
// expansions share one query.
type Service struct {
	gw          gateway.Gateway
	timeout     time.Duration
	searchLimit int
	log         *slog.Logger

	expandGroup singleflight.Group
}

// Option configures a Service.
type Option func(*Service)

// WithTimeout sets the per-query timeout.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) { s.timeout = d }
}

// WithSearchLimit caps search results.
func WithSearchLimit(n int) Option {
	return func(s *Service) { s.searchLimit = n }
}

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.log = l }
}

// NewService creates a service over gw.
func NewService(gw gateway.Gateway, opts ...Option) *Service {
	s := &Service{
		gw:          gw,
		timeout:     DefaultTimeout,
		searchLimit: gateway.DefaultSearchLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logging.Component("explore")
	}
	return s
}

// Search returns actors whose name contains query. A blank query matches nothing.
func (s *Service) Search(ctx context.Context, query string) ([]model.Actor, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []model.Actor{}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	actors, err := s.gw.SearchActors(ctx, query, s.searchLimit)
	if err != nil {
		return nil, err
	}
	if actors == nil {
		actors = []model.Actor{}
	}
	return actors, nil
}

// Expand returns the one-hop neighborhood of actorID.
func (s *Service) Expand(ctx context.Context, actorID string) (model.ExpansionPayload, error) {
	if actorID == "" {
		return model.ExpansionPayload{}, apperr.InvalidArgument("actor id is required")
	}

	// The shared query must outlive any single caller giving up.
	ch := s.expandGroup.DoChan(actorID, func() (any, error) {
		qctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()

		start := time.Now()
		rows, err := s.gw.CoStars(qctx, actorID)
		if err != nil {
			return nil, err
		}
		payload, err := BuildExpansion(rows)
		if err != nil {
			return nil, apperr.NotFound("actor %s has no co-stars", actorID)
		}
		s.log.Debug("expansion built", "actor", actorID, "rows", len(rows),
			"coStars", len(payload.NewNodes), "durationMs", time.Since(start).Milliseconds())
		return payload, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return model.ExpansionPayload{}, res.Err
		}
		if res.Shared {
			logging.DebugContext(ctx, "expansion shared with concurrent request", "actor", actorID)
		}
		return res.Val.(model.ExpansionPayload), nil
	case <-ctx.Done():
		return model.ExpansionPayload{}, apperr.Upstream(ctx.Err(), "expand %s", actorID)
	}
}

// NodeConnections counts the co-stars of actorID not listed in exclude.
func (s *Service) NodeConnections(ctx context.Context, actorID string, exclude []string) (int, error) {
	if actorID == "" {
		return 0, apperr.InvalidArgument("actor id is required")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.gw.CountCoStars(ctx, actorID, exclude)
}

// Ping checks the gateway.
func (s *Service) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.gw.Ping(ctx)
}
