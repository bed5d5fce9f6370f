package authorization

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/propbase/propbase/internal/actor"
)

// Mode selects how multiple permission codes combine in one check.
type Mode string

const (
	// ModeAny grants access when at least one requested code is held.
	ModeAny Mode = "any"
	// ModeAll grants access only when every requested code is held.
	ModeAll Mode = "all"
)

// Service answers permission checks against the role/permission join
// tables. Checks are evaluated at call time against current grants;
// nothing is cached between calls.
type Service interface {
	// Authorize returns nil when act holds the requested codes under the
	// given mode. On denial the error carries the exact codes that were
	// requested but not held.
	Authorize(ctx context.Context, act actor.Actor, mode Mode, codes ...string) error

	// GrantedCodes reports which of the requested codes the user holds
	// through at least one active role. Inactive roles contribute
	// nothing; the permission's own active flag is not consulted.
	GrantedCodes(ctx context.Context, userID snowflake.ID, codes []string) (map[string]bool, error)
}
