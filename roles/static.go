package roles

import (
	"context"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// StaticGuard resolves actors from a fixed token table, loaded once at
// startup. Tokens are opaque strings; the guard is default-deny: anything
// not in the table resolves to nobody.
type StaticGuard struct {
	byToken map[string]Actor
}

var _ Guard = (*StaticGuard)(nil)

// NewStaticGuard creates a guard from a token -> actor table.
func NewStaticGuard(actors map[string]Actor) *StaticGuard {
	byToken := make(map[string]Actor, len(actors))
	for token, actor := range actors {
		byToken[token] = actor
	}
	return &StaticGuard{byToken: byToken}
}

// tomlActors is the TOML representation of a roles file:
//
//	[[actors]]
//	id = "alice"
//	token = "rater-token-1"
//	role = "rater"
type tomlActors struct {
	Actors []tomlActor `toml:"actors"`
}

type tomlActor struct {
	ID    string `toml:"id"`
	Token string `toml:"token"`
	Role  string `toml:"role"`
}

// LoadFile loads a static guard from a TOML roles file.
func LoadFile(path string) (*StaticGuard, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read roles file: %w", err)
	}
	return Parse(string(content))
}

// Parse parses a static guard from TOML content.
func Parse(content string) (*StaticGuard, error) {
	var raw tomlActors
	if _, err := toml.Decode(content, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse roles file: %w", err)
	}

	byToken := make(map[string]Actor, len(raw.Actors))
	for _, a := range raw.Actors {
		if a.ID == "" || a.Token == "" {
			return nil, fmt.Errorf("actor entry missing id or token")
		}
		role := Role(a.Role)
		if !role.Valid() {
			return nil, fmt.Errorf("%w: %q for actor %s", ErrUnknownRole, a.Role, a.ID)
		}
		if _, dup := byToken[a.Token]; dup {
			return nil, fmt.Errorf("duplicate token for actor %s", a.ID)
		}
		byToken[a.Token] = Actor{ID: a.ID, Role: role}
	}

	return &StaticGuard{byToken: byToken}, nil
}

// Resolve maps a token to an actor.
func (g *StaticGuard) Resolve(ctx context.Context, token string) (*Actor, error) {
	if token == "" {
		return nil, ErrUnknownToken
	}
	actor, ok := g.byToken[token]
	if !ok {
		return nil, ErrUnknownToken
	}
	resolved := actor
	return &resolved, nil
}
