package auth

import (
	"context"
	"errors"

	"github.com/example/carego/internal/credentials"
	"github.com/example/carego/internal/store"
	"go.uber.org/zap"
)

// AdminService holds the administrative user lifecycle actions.
type AdminService struct {
	users    store.UserStore
	sessions *SessionManager
	audit    *Auditor
	log      *zap.Logger
}

func NewAdminService(users store.UserStore, sessions *SessionManager, audit *Auditor, log *zap.Logger) *AdminService {
	return &AdminService{users: users, sessions: sessions, audit: audit, log: log}
}

type CreateUserInput struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
	Role       string `json:"role"`
	FullName   string `json:"fullName"`
}

// CreateUser onboards an ACTIVE user and its profile in one transaction.
// Only SUPER_ADMIN may create administrative accounts.
func (s *AdminService) CreateUser(ctx context.Context, ac *AuthContext, in CreateUserInput, meta RequestMeta) (*MeResult, error) {
	role, err := store.ParseRole(in.Role)
	if err != nil {
		return nil, ValidationError(err.Error())
	}
	if role.Administrative() && (ac == nil || ac.Role != store.RoleSuperAdmin) {
		return nil, ErrForbidden
	}
	identifier := credentials.NormalizeIdentifier(in.Identifier)
	if identifier == "" {
		return nil, ValidationError("identifier is required")
	}
	u, p, err := newUser(identifier, in.Password, role, store.StatusActive, in.FullName)
	if err != nil {
		return nil, err
	}
	if err := s.users.CreateUser(ctx, u, p); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, ErrUserExists
		}
		return nil, StorageError("create user", err)
	}

	actor, actorRole := ActorOf(ac)
	s.audit.Record(&store.AuditEntry{
		ActorUserID: actor, ActorRole: actorRole,
		Action: "user.created", EntityType: "user", EntityID: u.ID,
		After:         Snapshot(UserSummary{ID: u.ID, Identifier: u.Identifier, Role: u.Role}),
		OriginAddress: meta.OriginAddress, ClientString: meta.ClientString,
	})
	return &MeResult{ID: u.ID, Identifier: u.Identifier, Role: u.Role, AccountStatus: u.Status, Profile: p}, nil
}

type statusChange struct {
	Status store.AccountStatus `json:"accountStatus"`
	Active bool                `json:"active"`
}

// StatusResult is the user after a status change plus the number of sessions
// the change revoked.
type StatusResult struct {
	MeResult
	RevokedSessions int64 `json:"revokedSessions"`
}

// SetStatus moves a user to a new account status. Suspension and termination
// revoke every session the user holds.
func (s *AdminService) SetStatus(ctx context.Context, ac *AuthContext, userID string, status store.AccountStatus, reason string, meta RequestMeta) (*StatusResult, error) {
	u, err := s.users.GetUserByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, StorageError("load user", err)
	}
	if u.Role == store.RoleSuperAdmin && (ac == nil || ac.Role != store.RoleSuperAdmin) {
		return nil, ErrForbidden
	}
	before := statusChange{Status: u.Status, Active: u.Active}
	if err := s.users.UpdateUserStatus(ctx, u.ID, status, u.Active); err != nil {
		return nil, StorageError("update user status", err)
	}

	var revoked int64
	if status == store.StatusSuspended || status == store.StatusTerminated {
		if revoked, err = s.sessions.RevokeUserSessions(ctx, u.ID); err != nil {
			return nil, err
		}
		s.log.Info("sessions revoked on status change", zap.String("user_id", u.ID), zap.String("status", string(status)), zap.Int64("count", revoked))
	}

	actor, actorRole := ActorOf(ac)
	s.audit.Record(&store.AuditEntry{
		ActorUserID: actor, ActorRole: actorRole,
		Action: "user.status_changed", EntityType: "user", EntityID: u.ID,
		Before: Snapshot(before), After: Snapshot(statusChange{Status: status, Active: u.Active}),
		Reason: reason, OriginAddress: meta.OriginAddress, ClientString: meta.ClientString,
	})
	return &StatusResult{
		MeResult:        MeResult{ID: u.ID, Identifier: u.Identifier, Role: u.Role, AccountStatus: status},
		RevokedSessions: revoked,
	}, nil
}
