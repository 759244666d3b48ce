package roles

import (
	"context"
	"errors"
)

// Common errors.
var (
	// ErrUnknownToken indicates no actor matches the presented token.
	ErrUnknownToken = errors.New("unknown token")

	// ErrUnknownRole indicates a role label outside the defined set.
	ErrUnknownRole = errors.New("unknown role")
)

// Role is an actor's capability class.
type Role string

const (
	// RoleRater performs first-pass annotation: claims pending tasks and
	// submits responses.
	RoleRater Role = "rater"

	// RoleReviewer approves or edits submitted responses.
	RoleReviewer Role = "reviewer"

	// RoleOps has read visibility across all tasks plus ingestion and
	// manual claim release.
	RoleOps Role = "ops"
)

// String returns the role label.
func (r Role) String() string {
	return string(r)
}

// Valid reports whether r is a defined role.
func (r Role) Valid() bool {
	switch r {
	case RoleRater, RoleReviewer, RoleOps:
		return true
	}
	return false
}

// Actor is a resolved caller identity.
type Actor struct {
	// ID uniquely identifies the actor.
	ID string

	// Role is the actor's capability class.
	Role Role
}

// Guard resolves a caller's identity and role from a bearer token.
// The pipeline consumes its decision; issuing and rotating tokens is
// someone else's problem.
type Guard interface {
	// Resolve maps a token to an actor.
	// Returns ErrUnknownToken when the token matches nobody.
	Resolve(ctx context.Context, token string) (*Actor, error)
}
