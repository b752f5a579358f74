// Package pubsub is a small topic-based publisher used to push settings
// changes and served expansions to SSE subscribers.
package pubsub

import (
	"context"
	"encoding/json"
)

// Topics published by the server.
const (
	TopicSettings   = "settings"
	TopicExpansions = "expansions"
)

// Event types.
const (
	TypeSettingsLoaded  = "loaded"
	TypeSettingsChanged = "changed"
	TypeExpansionServed = "served"
	TypeExpansionFailed = "failed"
)

// Event represents a pub/sub event
type Event struct {
	Topic   string          `json:"topic"`   // Subscription topic ("settings", "expansions")
	Type    string          `json:"type"`    // Event type (e.g., "changed", "served")
	Data    json.RawMessage `json:"data"`    // Event payload
	Version int             `json:"version"` // Per-topic sequence number
}

// Decode unmarshals the event payload into v.
func (e Event) Decode(v any) error {
	return json.Unmarshal(e.Data, v)
}

// Subscription represents a client subscription to a topic
type Subscription interface {
	Topic() string

	// Events returns a channel for receiving events. It is closed when the
	// subscription or the publisher closes.
	Events() <-chan Event

	Close() error
}

// Publisher manages pub/sub subscriptions and event publishing
type Publisher interface {
	// Subscribe creates a new subscription to a topic. Context
	// cancellation closes the subscription.
	Subscribe(ctx context.Context, topic string) (Subscription, error)

	// Publish sends an event to all subscribers of a topic
	Publish(topic string, eventType string, data any) error

	Close() error
}

// SettingsChanged is published when the display settings are loaded or
// reloaded from the config file.
type SettingsChanged struct {
	HideBottomBar bool   `json:"hideBottomBar"`
	PhysicsEngine string `json:"physicsEngine"`
	Source        string `json:"source"` // config file path, or "defaults"
}

// ExpansionServed is published for every expand-node request the server
// answers.
type ExpansionServed struct {
	ActorID    string `json:"actorId"`
	Label      string `json:"label,omitempty"`
	NewNodes   int    `json:"newNodes"`
	Edges      int    `json:"edges"`
	DurationMs int64  `json:"durationMs"`
	Error      string `json:"error,omitempty"`
	Kind       string `json:"kind,omitempty"`
}
