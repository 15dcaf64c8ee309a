package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/example/carego/internal/store"
	"go.uber.org/zap"
)

// AuthContext describes a caller that passed every gateway step.
type AuthContext struct {
	UserID    string
	Role      store.Role
	SessionID string
	User      *store.User
}

// Operator is the actor for maintenance run outside any session, such as
// the admin CLI. It carries SUPER_ADMIN authority and no user id.
var Operator = &AuthContext{Role: store.RoleSuperAdmin}

// Gateway turns a bearer token into an AuthContext or a rejection.
type Gateway struct {
	codec    *TokenCodec
	sessions *SessionManager
	users    store.UserStore
	obs      Observer
	log      *zap.Logger
}

func NewGateway(codec *TokenCodec, sessions *SessionManager, users store.UserStore, obs Observer, log *zap.Logger) *Gateway {
	return &Gateway{codec: codec, sessions: sessions, users: users, obs: observerOrNop(obs), log: log}
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	const prefix = "bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

// accountGate rejects any user that may not authenticate right now.
func accountGate(u *store.User) error {
	if !u.Active {
		return ErrUserNotFound
	}
	switch u.Status {
	case store.StatusActive:
		return nil
	case store.StatusSuspended:
		return ErrAccountSuspended
	case store.StatusTerminated:
		return ErrAccountTerminated
	case store.StatusUnverified:
		return ErrAccountUnverified
	}
	return ErrForbidden
}

// Authenticate runs the pipeline in order and stops at the first failure.
func (g *Gateway) Authenticate(ctx context.Context, authorization string) (ac *AuthContext, err error) {
	defer func() {
		if err != nil {
			g.obs.AuthEvent("gateway", err)
		}
	}()

	raw := BearerToken(authorization)
	if raw == "" {
		return nil, ErrMissingCredentials
	}

	claims, err := g.codec.Verify(raw, false)
	if err != nil {
		return nil, err
	}

	sess, err := g.sessions.ValidateSession(ctx, claims.SessionID, claims.UserID())
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, ErrSessionRevoked
	}

	user, err := g.users.GetUserByID(ctx, claims.UserID())
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, StorageError("load user", err)
	}
	if err := accountGate(user); err != nil {
		return nil, err
	}

	return &AuthContext{
		UserID:    claims.UserID(),
		Role:      claims.Role,
		SessionID: claims.SessionID,
		User:      user,
	}, nil
}

// CheckRole admits ac only when its verified role is in allowed.
func CheckRole(ac *AuthContext, allowed ...store.Role) error {
	if ac == nil {
		return ErrMissingCredentials
	}
	for _, r := range allowed {
		if ac.Role == r {
			return nil
		}
	}
	return ErrForbidden
}
