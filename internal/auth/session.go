package auth

import (
	"context"
	"errors"
	"time"

	"github.com/example/carego/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SessionManager is the only writer of session rows. It never caches
// validity; every check reads the store.
type SessionManager struct {
	store store.SessionStore
	now   func() time.Time
	log   *zap.Logger
}

func NewSessionManager(s store.SessionStore, now func() time.Time, log *zap.Logger) *SessionManager {
	if now == nil {
		now = time.Now
	}
	return &SessionManager{store: s, now: now, log: log}
}

// NewSessionID allocates an id before the row exists so the refresh token
// handed to the client can embed it.
func (m *SessionManager) NewSessionID() string { return uuid.NewString() }

// CreateSession stores the hash of refreshToken under sessionID.
func (m *SessionManager) CreateSession(ctx context.Context, sessionID, userID, refreshToken string, expiresAt time.Time, origin, client string) (string, error) {
	now := m.now().UTC()
	s := &store.Session{
		ID:               sessionID,
		UserID:           userID,
		RefreshTokenHash: HashToken(refreshToken),
		Valid:            true,
		ExpiresAt:        expiresAt,
		OriginAddress:    origin,
		ClientString:     client,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := m.store.InsertSession(ctx, s); err != nil {
		return "", StorageError("create session", err)
	}
	return sessionID, nil
}

// ValidateSession returns the session only when it exists, belongs to userID,
// is valid and unexpired. Anything else is (nil, nil). An expired row that is
// still flagged valid gets invalidated on the way out.
func (m *SessionManager) ValidateSession(ctx context.Context, sessionID, userID string) (*store.Session, error) {
	s, err := m.store.GetSession(ctx, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, StorageError("load session", err)
	}
	if s.UserID != userID || !s.Valid {
		return nil, nil
	}
	if !s.Live(m.now()) {
		if err := m.store.InvalidateSession(ctx, s.ID); err != nil {
			m.log.Warn("lazy session invalidation failed", zap.String("session_id", s.ID), zap.Error(err))
		}
		return nil, nil
	}
	return s, nil
}

func (m *SessionManager) RotateRefreshTokenHash(ctx context.Context, sessionID, newHash string) error {
	if err := m.store.UpdateSessionTokenHash(ctx, sessionID, newHash); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrSessionRevoked
		}
		return StorageError("rotate session", err)
	}
	return nil
}

// RevokeSession is idempotent.
func (m *SessionManager) RevokeSession(ctx context.Context, sessionID string) error {
	if err := m.store.InvalidateSession(ctx, sessionID); err != nil {
		return StorageError("revoke session", err)
	}
	return nil
}

func (m *SessionManager) RevokeUserSessions(ctx context.Context, userID string) (int64, error) {
	n, err := m.store.InvalidateUserSessions(ctx, userID)
	if err != nil {
		return 0, StorageError("revoke user sessions", err)
	}
	return n, nil
}

func (m *SessionManager) ListUserSessions(ctx context.Context, userID string) ([]*store.Session, error) {
	list, err := m.store.ListUserSessions(ctx, userID)
	if err != nil {
		return nil, StorageError("list sessions", err)
	}
	return list, nil
}

func (m *SessionManager) SweepExpired(ctx context.Context) (int64, error) {
	n, err := m.store.InvalidateExpiredSessions(ctx, m.now())
	if err != nil {
		return 0, StorageError("sweep sessions", err)
	}
	return n, nil
}

// RunSweeper invalidates expired sessions every interval until ctx is done.
func (m *SessionManager) RunSweeper(ctx context.Context, interval time.Duration, onSwept func(int64)) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := m.SweepExpired(ctx)
			if err != nil {
				m.log.Warn("session sweep failed", zap.Error(err))
				continue
			}
			if n > 0 {
				m.log.Info("expired sessions invalidated", zap.Int64("count", n))
			}
			if onSwept != nil {
				onSwept(n)
			}
		}
	}
}
