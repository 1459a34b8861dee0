package auth

import (
	"context"
	"slices"
	"time"

	"github.com/pkg/errors"
)

type Role string

const (
	RoleHR    Role = "hr"
	RoleAdmin Role = "admin"
)

var Roles = []Role{RoleHR, RoleAdmin}

func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !slices.Contains(Roles, r) {
		return "", errors.Wrap(ErrUnknownRole, s)
	}
	return r, nil
}

// Allows reports whether a session with role r satisfies required.
// Admin satisfies every requirement.
func (r Role) Allows(required Role) bool {
	return r == RoleAdmin || r == required
}

// Session is the signed-in staff member attached to a request.
type Session struct {
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      Role      `json:"role"`
	ExpiresAt time.Time `json:"expires_at"`
}

type sessionKey struct{}

func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

func SessionFromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(*Session)
	return s, ok && s != nil
}
