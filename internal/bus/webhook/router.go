package webhook

import (
	"context"
	"fmt"

	"github.com/sebastianm/agentbus/internal/bus/event"
)

// Router computes the set of webhooks an event should be delivered to.
type Router struct {
	store Store
}

// NewRouter creates a Router.
func NewRouter(store Store) *Router {
	return &Router{store: store}
}

// Matching returns all active webhooks whose channel and event-type filters
// match the event. Order is unspecified.
func (r *Router) Matching(ctx context.Context, e event.Event) ([]Webhook, error) {
	hooks, err := r.store.ListWebhooks(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("listing webhooks for routing: %w", err)
	}

	var matched []Webhook
	for _, w := range hooks {
		if w.Matches(e.Channel, e.EventType) {
			matched = append(matched, w)
		}
	}
	return matched, nil
}
