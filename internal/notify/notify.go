// Package notify publishes domain events after their transaction has
// committed. Delivery is best effort: a failed publish is logged and
// never surfaces to the caller, and the committed write stands either
// way.
package notify

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Event names follow the entity:action convention.
const (
	EventPropertyCreated  = "property:created"
	EventPropertyUpdated  = "property:updated"
	EventPropertyDeleted  = "property:deleted"
	EventPropertyAssigned = "property:assigned"
)

// Event is the payload placed on the queue.
type Event struct {
	Name       string        `json:"name"`
	PropertyID snowflake.ID  `json:"property_id"`
	ActorID    *snowflake.ID `json:"actor_id,omitempty"`
	IPAddress  string        `json:"ip_address,omitempty"`
	UserAgent  string        `json:"user_agent,omitempty"`
	OccurredAt time.Time     `json:"occurred_at"`
}

// Emitter hands events to the transport. Emit never reports failure
// to the caller; implementations log and count a failed publish and
// move on.
type Emitter interface {
	Emit(ctx context.Context, event Event)
	Close() error
}
