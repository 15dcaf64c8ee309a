package auth

import (
	"context"
	"crypto/subtle"
	"errors"

	"github.com/example/carego/internal/store"
)

// TokenInfo is the introspection view of a token. A token is active only
// while the gateway would admit it: signature, expiry, session and account
// status all hold, and for refresh tokens it is still the session's current
// one.
type TokenInfo struct {
	Active    bool   `json:"active"`
	Kind      string `json:"typ,omitempty"`
	UserID    string `json:"sub,omitempty"`
	Role      string `json:"role,omitempty"`
	SessionID string `json:"sid,omitempty"`
	ExpiresAt int64  `json:"exp,omitempty"`
}

func (s *AuthService) Introspect(ctx context.Context, raw string) (*TokenInfo, error) {
	claims, err := s.codec.Verify(raw, false)
	if errors.Is(err, ErrTokenKindMismatch) {
		claims, err = s.codec.Verify(raw, true)
	}
	if err != nil {
		return &TokenInfo{Active: false}, nil
	}
	sess, err := s.sessions.ValidateSession(ctx, claims.SessionID, claims.UserID())
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return &TokenInfo{Active: false}, nil
	}
	if claims.Kind == KindRefresh && subtle.ConstantTimeCompare([]byte(HashToken(raw)), []byte(sess.RefreshTokenHash)) != 1 {
		return &TokenInfo{Active: false}, nil
	}

	user, err := s.users.GetUserByID(ctx, claims.UserID())
	if errors.Is(err, store.ErrNotFound) {
		return &TokenInfo{Active: false}, nil
	}
	if err != nil {
		return nil, StorageError("load user", err)
	}
	if accountGate(user) != nil {
		return &TokenInfo{Active: false}, nil
	}

	return &TokenInfo{
		Active:    true,
		Kind:      claims.Kind,
		UserID:    claims.UserID(),
		Role:      string(claims.Role),
		SessionID: claims.SessionID,
		ExpiresAt: claims.ExpiresAt.Unix(),
	}, nil
}
