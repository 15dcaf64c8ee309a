package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/example/carego/internal/config"
	"github.com/example/carego/internal/store"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token kinds carried in the typ claim.
const (
	KindAccess  = "access"
	KindRefresh = "refresh"
)

// TokenConfig is everything the codec needs. Nothing is read from globals.
type TokenConfig struct {
	Secret     []byte
	Issuer     string
	RefreshTTL time.Duration
	Now        func() time.Time
}

// Claims are carried by both token kinds. Role is empty on refresh tokens.
type Claims struct {
	Role      store.Role `json:"role,omitempty"`
	SessionID string     `json:"sid"`
	Kind      string     `json:"typ"`
	jwt.RegisteredClaims
}

func (c *Claims) UserID() string { return c.Subject }

// TokenCodec signs and verifies HS256 tokens. It performs no I/O.
type TokenCodec struct {
	secret     []byte
	issuer     string
	refreshTTL time.Duration
	now        func() time.Time
}

func NewTokenCodec(cfg TokenConfig) (*TokenCodec, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("token secret must not be empty")
	}
	if cfg.RefreshTTL < 2*config.AccessTokenTTL {
		return nil, fmt.Errorf("refresh ttl %s must be at least %s", cfg.RefreshTTL, 2*config.AccessTokenTTL)
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &TokenCodec{secret: cfg.Secret, issuer: cfg.Issuer, refreshTTL: cfg.RefreshTTL, now: now}, nil
}

func (c *TokenCodec) RefreshTTL() time.Duration { return c.refreshTTL }

// Now is the codec's clock; session expiry uses the same one.
func (c *TokenCodec) Now() time.Time { return c.now() }

func (c *TokenCodec) sign(claims *Claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
}

func (c *TokenCodec) registered(userID string, issued, expires time.Time) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   userID,
		Issuer:    c.issuer,
		IssuedAt:  jwt.NewNumericDate(issued),
		ExpiresAt: jwt.NewNumericDate(expires),
	}
}

func (c *TokenCodec) IssueAccessToken(u *store.User, sessionID string) (string, error) {
	now := c.now()
	return c.sign(&Claims{
		Role:             u.Role,
		SessionID:        sessionID,
		Kind:             KindAccess,
		RegisteredClaims: c.registered(u.ID, now, now.Add(config.AccessTokenTTL)),
	})
}

// IssueRefreshToken mints a refresh token valid for the configured TTL and
// returns its expiry so the session row can share it.
func (c *TokenCodec) IssueRefreshToken(u *store.User, sessionID string) (string, time.Time, error) {
	expires := c.now().Add(c.refreshTTL)
	tok, err := c.IssueRefreshTokenUntil(u, sessionID, expires)
	return tok, expires, err
}

// IssueRefreshTokenUntil mints a refresh token with a fixed absolute expiry.
func (c *TokenCodec) IssueRefreshTokenUntil(u *store.User, sessionID string, expires time.Time) (string, error) {
	return c.sign(&Claims{
		SessionID:        sessionID,
		Kind:             KindRefresh,
		RegisteredClaims: c.registered(u.ID, c.now(), expires),
	})
}

// Verify checks signature, issuer, expiry and kind.
func (c *TokenCodec) Verify(raw string, expectRefresh bool) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	if claims.Subject == "" || claims.SessionID == "" {
		return nil, ErrTokenInvalid
	}
	want := KindAccess
	if expectRefresh {
		want = KindRefresh
	}
	if claims.Kind != want {
		return nil, ErrTokenKindMismatch
	}
	return claims, nil
}

// HashToken is the at-rest form of a refresh token.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
