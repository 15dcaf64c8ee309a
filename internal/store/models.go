package store

import (
	"encoding/json"
	"fmt"
	"time"
)

// Role is the closed set of account roles.
type Role string

const (
	RoleSuperAdmin Role = "SUPER_ADMIN"
	RoleAdmin      Role = "ADMIN"
	RoleClient     Role = "CLIENT"
	RoleStaff      Role = "STAFF"
	RoleStudent    Role = "STUDENT"
	RoleTeacher    Role = "TEACHER"
)

// AllRoles lists every role in declaration order.
var AllRoles = []Role{RoleSuperAdmin, RoleAdmin, RoleClient, RoleStaff, RoleStudent, RoleTeacher}

// ParseRole rejects anything outside the closed role set.
func ParseRole(s string) (Role, error) {
	for _, r := range AllRoles {
		if string(r) == s {
			return r, nil
		}
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// Administrative reports whether the role overrides resource ownership checks.
func (r Role) Administrative() bool {
	return r == RoleSuperAdmin || r == RoleAdmin
}

// AccountStatus is the closed set of account lifecycle states.
type AccountStatus string

const (
	StatusUnverified AccountStatus = "UNVERIFIED"
	StatusActive     AccountStatus = "ACTIVE"
	StatusSuspended  AccountStatus = "SUSPENDED"
	StatusTerminated AccountStatus = "TERMINATED"
)

var AllStatuses = []AccountStatus{StatusUnverified, StatusActive, StatusSuspended, StatusTerminated}

func ParseAccountStatus(s string) (AccountStatus, error) {
	for _, st := range AllStatuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown account status %q", s)
}

// User is a credential record. Users are never hard-deleted.
type User struct {
	ID           string
	Identifier   string
	PasswordHash string
	Role         Role
	Status       AccountStatus
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Session binds a user to the hash of their current refresh token.
type Session struct {
	ID               string
	UserID           string
	RefreshTokenHash string
	Valid            bool
	ExpiresAt        time.Time
	OriginAddress    string
	ClientString     string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Live reports whether the session may still authorize requests at now.
func (s *Session) Live(now time.Time) bool {
	return s != nil && s.Valid && now.Before(s.ExpiresAt)
}

// AuditEntry is an append-only record of a security-relevant action.
type AuditEntry struct {
	ID            string          `json:"id"`
	ActorUserID   *string         `json:"actorUserId"`
	ActorRole     string          `json:"actorRole,omitempty"`
	Action        string          `json:"action"`
	EntityType    string          `json:"entityType,omitempty"`
	EntityID      string          `json:"entityId,omitempty"`
	Before        json.RawMessage `json:"before,omitempty"`
	After         json.RawMessage `json:"after,omitempty"`
	Reason        string          `json:"reason,omitempty"`
	OriginAddress string          `json:"originAddress,omitempty"`
	ClientString  string          `json:"clientString,omitempty"`
	OccurredAt    time.Time       `json:"occurredAt"`
}

// Profile is the per-role profile row kept alongside a user.
type Profile struct {
	UserID    string    `json:"userId"`
	FullName  string    `json:"fullName"`
	CreatedAt time.Time `json:"createdAt"`
}

type CareVisit struct {
	ID           string    `json:"id"`
	StaffUserID  string    `json:"staffUserId"`
	ClientUserID string    `json:"clientUserId"`
	VisitedAt    time.Time `json:"visitedAt"`
	Notes        string    `json:"notes"`
	CreatedAt    time.Time `json:"createdAt"`
}

type Invoice struct {
	ID           string    `json:"id"`
	ClientUserID string    `json:"clientUserId"`
	AmountCents  int64     `json:"amountCents"`
	Currency     string    `json:"currency"`
	Status       string    `json:"status"`
	DueAt        time.Time `json:"dueAt"`
	CreatedAt    time.Time `json:"createdAt"`
}
