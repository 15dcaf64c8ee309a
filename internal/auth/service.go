package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"time"

	"github.com/example/carego/internal/config"
	"github.com/example/carego/internal/credentials"
	"github.com/example/carego/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RequestMeta is the creation metadata stored with sessions and audit rows.
type RequestMeta struct {
	OriginAddress string
	ClientString  string
}

type UserSummary struct {
	ID         string     `json:"id"`
	Identifier string     `json:"identifier"`
	Role       store.Role `json:"role"`
}

type LoginResult struct {
	AccessToken  string      `json:"accessToken"`
	RefreshToken string      `json:"refreshToken"`
	ExpiresIn    int         `json:"expiresIn"`
	User         UserSummary `json:"user"`
}

type RefreshResult struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
	ExpiresIn    int    `json:"expiresIn"`
}

type MeResult struct {
	ID            string              `json:"id"`
	Identifier    string              `json:"identifier"`
	Role          store.Role          `json:"role"`
	AccountStatus store.AccountStatus `json:"accountStatus"`
	Profile       *store.Profile      `json:"profile,omitempty"`
}

var expiresIn = int(config.AccessTokenTTL / time.Second)

// AuthService composes the codec, session manager and stores into the
// login, refresh, logout and me flows.
type AuthService struct {
	users    store.UserStore
	profiles map[store.Role]profileLookup
	codec    *TokenCodec
	sessions *SessionManager
	throttle LoginThrottle
	audit    *Auditor
	obs      Observer
	rotate   bool
	log      *zap.Logger
}

func NewAuthService(db store.DB, codec *TokenCodec, sessions *SessionManager, throttle LoginThrottle, audit *Auditor, obs Observer, rotate bool, log *zap.Logger) *AuthService {
	return &AuthService{
		users:    db,
		profiles: profileLookups(db),
		codec:    codec,
		sessions: sessions,
		throttle: throttle,
		audit:    audit,
		obs:      observerOrNop(obs),
		rotate:   rotate,
		log:      log,
	}
}

func (s *AuthService) record(e *store.AuditEntry, meta RequestMeta) {
	e.OriginAddress = meta.OriginAddress
	e.ClientString = meta.ClientString
	s.audit.Record(e)
}

func (s *AuthService) loginFailed(ctx context.Context, identifier string, actor *string, reason string, meta RequestMeta) {
	if err := s.throttle.Fail(ctx, identifier); err != nil {
		s.log.Warn("login throttle update failed", zap.Error(err))
	}
	s.record(&store.AuditEntry{ActorUserID: actor, Action: "auth.login_failed", EntityType: "user", Reason: reason}, meta)
}

// Login fails with the same error for an unknown identifier and a wrong
// password. Status errors are only revealed to a caller holding the password.
func (s *AuthService) Login(ctx context.Context, identifier, password string, meta RequestMeta) (res *LoginResult, err error) {
	defer func() { s.obs.AuthEvent("login", err) }()

	identifier = credentials.NormalizeIdentifier(identifier)
	if identifier == "" || password == "" {
		return nil, ValidationError("identifier and password are required")
	}

	locked, err := s.throttle.Locked(ctx, identifier)
	if err != nil {
		s.log.Warn("login throttle unavailable", zap.Error(err))
	}
	if locked {
		s.record(&store.AuditEntry{Action: "auth.login_locked", EntityType: "user", Reason: "too many failed attempts"}, meta)
		return nil, ErrTooManyAttempts
	}

	user, err := s.users.GetUserByIdentifier(ctx, identifier)
	if errors.Is(err, store.ErrNotFound) {
		credentials.BurnComparison(password)
		s.loginFailed(ctx, identifier, nil, "unknown identifier", meta)
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, StorageError("load user", err)
	}
	if !credentials.ComparePassword(user.PasswordHash, password) {
		s.loginFailed(ctx, identifier, &user.ID, "password mismatch", meta)
		return nil, ErrInvalidCredentials
	}
	if err := accountGate(user); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			err = ErrInvalidCredentials
		}
		s.record(&store.AuditEntry{ActorUserID: &user.ID, ActorRole: string(user.Role), Action: "auth.login_rejected", EntityType: "user", EntityID: user.ID, Reason: err.Error()}, meta)
		return nil, err
	}
	if err := s.throttle.Reset(ctx, identifier); err != nil {
		s.log.Warn("login throttle reset failed", zap.Error(err))
	}

	sid := s.sessions.NewSessionID()
	refresh, expires, err := s.codec.IssueRefreshToken(user, sid)
	if err != nil {
		return nil, err
	}
	if _, err := s.sessions.CreateSession(ctx, sid, user.ID, refresh, expires, meta.OriginAddress, meta.ClientString); err != nil {
		return nil, err
	}
	access, err := s.codec.IssueAccessToken(user, sid)
	if err != nil {
		return nil, err
	}

	s.record(&store.AuditEntry{ActorUserID: &user.ID, ActorRole: string(user.Role), Action: "auth.login", EntityType: "session", EntityID: sid}, meta)
	return &LoginResult{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    expiresIn,
		User:         UserSummary{ID: user.ID, Identifier: user.Identifier, Role: user.Role},
	}, nil
}

// Refresh requires the presented token to be the session's current one. With
// rotation on, a new refresh token replaces it, keeping the session expiry.
func (s *AuthService) Refresh(ctx context.Context, raw string, meta RequestMeta) (res *RefreshResult, err error) {
	defer func() { s.obs.AuthEvent("refresh", err) }()

	if raw == "" {
		return nil, ValidationError("refreshToken is required")
	}
	claims, err := s.codec.Verify(raw, true)
	if err != nil {
		return nil, err
	}
	sess, err := s.sessions.ValidateSession(ctx, claims.SessionID, claims.UserID())
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, ErrSessionRevoked
	}
	if subtle.ConstantTimeCompare([]byte(HashToken(raw)), []byte(sess.RefreshTokenHash)) != 1 {
		s.record(&store.AuditEntry{ActorUserID: &sess.UserID, Action: "auth.refresh_mismatch", EntityType: "session", EntityID: sess.ID}, meta)
		return nil, ErrTokenMismatch
	}

	user, err := s.users.GetUserByID(ctx, claims.UserID())
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrUserNotFound.WithStatus(http.StatusNotFound)
	}
	if err != nil {
		return nil, StorageError("load user", err)
	}
	if err := accountGate(user); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrUserNotFound.WithStatus(http.StatusNotFound)
		}
		return nil, err
	}

	access, err := s.codec.IssueAccessToken(user, sess.ID)
	if err != nil {
		return nil, err
	}
	out := &RefreshResult{AccessToken: access, ExpiresIn: expiresIn}
	if s.rotate {
		next, err := s.codec.IssueRefreshTokenUntil(user, sess.ID, sess.ExpiresAt)
		if err != nil {
			return nil, err
		}
		if err := s.sessions.RotateRefreshTokenHash(ctx, sess.ID, HashToken(next)); err != nil {
			return nil, err
		}
		out.RefreshToken = next
	}

	s.record(&store.AuditEntry{ActorUserID: &user.ID, ActorRole: string(user.Role), Action: "auth.refresh", EntityType: "session", EntityID: sess.ID}, meta)
	return out, nil
}

// Logout revokes the caller's own session. Revoking twice is not an error.
func (s *AuthService) Logout(ctx context.Context, ac *AuthContext, meta RequestMeta) (err error) {
	defer func() { s.obs.AuthEvent("logout", err) }()

	if ac == nil || ac.SessionID == "" {
		return ValidationError("token carries no session id")
	}
	if err := s.sessions.RevokeSession(ctx, ac.SessionID); err != nil {
		return err
	}
	actor, role := ActorOf(ac)
	s.record(&store.AuditEntry{ActorUserID: actor, ActorRole: role, Action: "auth.logout", EntityType: "session", EntityID: ac.SessionID}, meta)
	return nil
}

// RevokeSession ends any session the caller was allowed to target.
func (s *AuthService) RevokeSession(ctx context.Context, ac *AuthContext, sessionID string, meta RequestMeta) error {
	if err := s.sessions.RevokeSession(ctx, sessionID); err != nil {
		return err
	}
	actor, role := ActorOf(ac)
	s.record(&store.AuditEntry{ActorUserID: actor, ActorRole: role, Action: "session.revoked", EntityType: "session", EntityID: sessionID}, meta)
	return nil
}

func (s *AuthService) Me(ctx context.Context, ac *AuthContext) (*MeResult, error) {
	u := ac.User
	p, err := loadProfile(ctx, s.profiles, u)
	if err != nil {
		return nil, err
	}
	return &MeResult{ID: u.ID, Identifier: u.Identifier, Role: u.Role, AccountStatus: u.Status, Profile: p}, nil
}

// Register creates an unverified CLIENT. It does not log the caller in.
func (s *AuthService) Register(ctx context.Context, identifier, password, fullName string, meta RequestMeta) (*MeResult, error) {
	identifier = credentials.NormalizeIdentifier(identifier)
	if identifier == "" || password == "" {
		return nil, ValidationError("identifier and password are required")
	}
	u, p, err := newUser(identifier, password, store.RoleClient, store.StatusUnverified, fullName)
	if err != nil {
		return nil, err
	}
	if err := s.users.CreateUser(ctx, u, p); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, ErrUserExists
		}
		return nil, StorageError("create user", err)
	}
	s.record(&store.AuditEntry{ActorUserID: &u.ID, ActorRole: string(u.Role), Action: "user.registered", EntityType: "user", EntityID: u.ID,
		After: Snapshot(UserSummary{ID: u.ID, Identifier: u.Identifier, Role: u.Role})}, meta)
	return &MeResult{ID: u.ID, Identifier: u.Identifier, Role: u.Role, AccountStatus: u.Status, Profile: p}, nil
}

// newUser builds a user and, for profiled roles with a name, its profile.
func newUser(identifier, password string, role store.Role, status store.AccountStatus, fullName string) (*store.User, *store.Profile, error) {
	hash, err := credentials.HashPassword(password)
	if errors.Is(err, credentials.ErrWeakPassword) {
		return nil, nil, ValidationError(err.Error())
	}
	if err != nil {
		return nil, nil, err
	}
	now := time.Now().UTC()
	u := &store.User{
		ID:           uuid.NewString(),
		Identifier:   identifier,
		PasswordHash: hash,
		Role:         role,
		Status:       status,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	var p *store.Profile
	if fullName != "" && !role.Administrative() {
		p = &store.Profile{UserID: u.ID, FullName: fullName, CreatedAt: now}
	}
	return u, p, nil
}
