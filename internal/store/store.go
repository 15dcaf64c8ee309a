// Package store persists users, sessions, audit entries and the small set of
// collaborator records the authorization gates need to resolve ownership.
package store

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("store: not found")
	ErrConflict = errors.New("store: conflict")
)

type UserStore interface {
	// CreateUser inserts the user and, when p is non-nil, its profile row in
	// the table belonging to the user's role. Both writes share a transaction.
	CreateUser(ctx context.Context, u *User, p *Profile) error
	GetUserByIdentifier(ctx context.Context, identifier string) (*User, error)
	GetUserByID(ctx context.Context, id string) (*User, error)
	UpdateUserStatus(ctx context.Context, id string, status AccountStatus, active bool) error
}

// ProfileStore has one typed lookup per profiled role.
type ProfileStore interface {
	StaffProfile(ctx context.Context, userID string) (*Profile, error)
	ClientProfile(ctx context.Context, userID string) (*Profile, error)
	StudentProfile(ctx context.Context, userID string) (*Profile, error)
	TeacherProfile(ctx context.Context, userID string) (*Profile, error)
}

type SessionStore interface {
	InsertSession(ctx context.Context, s *Session) error
	GetSession(ctx context.Context, id string) (*Session, error)
	ListUserSessions(ctx context.Context, userID string) ([]*Session, error)
	UpdateSessionTokenHash(ctx context.Context, id, hash string) error
	// InvalidateSession marks the session invalid. Missing or already invalid
	// sessions are not an error.
	InvalidateSession(ctx context.Context, id string) error
	InvalidateUserSessions(ctx context.Context, userID string) (int64, error)
	InvalidateExpiredSessions(ctx context.Context, now time.Time) (int64, error)
	// SessionOwner returns only the owning user id.
	SessionOwner(ctx context.Context, id string) (string, error)
}

type AuditStore interface {
	AppendAudit(ctx context.Context, e *AuditEntry) error
}

type CareStore interface {
	CreateCareVisit(ctx context.Context, v *CareVisit) error
	GetCareVisit(ctx context.Context, id string) (*CareVisit, error)
	ListCareVisitsByStaff(ctx context.Context, staffUserID string) ([]*CareVisit, error)
	CareVisitOwner(ctx context.Context, id string) (string, error)
	CreateInvoice(ctx context.Context, inv *Invoice) error
	GetInvoice(ctx context.Context, id string) (*Invoice, error)
	InvoiceOwner(ctx context.Context, id string) (string, error)
}

// DB is everything the service needs from a backend.
type DB interface {
	UserStore
	ProfileStore
	SessionStore
	AuditStore
	CareStore
	Ping(ctx context.Context) error
	Close() error
}
