package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/propbase/propbase/internal/actor"
)

// Service owns user lifecycle and role/permission administration. All
// mutations to users are audited inside the same transaction.
type Service interface {
	CreateUser(ctx context.Context, act actor.Actor, req CreateUserRequest) (*User, error)
	DeactivateUser(ctx context.Context, act actor.Actor, userID snowflake.ID) error
	AssignRole(ctx context.Context, act actor.Actor, userID snowflake.ID, roleName string) error
	GrantPermission(ctx context.Context, act actor.Actor, roleName, permissionCode string) error

	// ResolveActor builds the explicit actor value from a verified
	// subject ID plus request metadata. Inactive users resolve to an
	// unauthenticated error; inactive roles are filtered out.
	ResolveActor(ctx context.Context, userID snowflake.ID, ipAddress, userAgent string) (actor.Actor, error)
	VerifyCredentials(ctx context.Context, email, password string) (*User, error)
}

type CreateUserRequest struct {
	FullName string
	Email    string
	Phone    string
	UserType string
	Password string
	Roles    []string
}
