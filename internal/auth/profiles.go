package auth

import (
	"context"
	"errors"

	"github.com/example/carego/internal/store"
)

type profileLookup func(ctx context.Context, userID string) (*store.Profile, error)

// profileLookups maps each profiled role to its lookup. Administrative roles
// have no entry.
func profileLookups(p store.ProfileStore) map[store.Role]profileLookup {
	return map[store.Role]profileLookup{
		store.RoleStaff:   p.StaffProfile,
		store.RoleClient:  p.ClientProfile,
		store.RoleStudent: p.StudentProfile,
		store.RoleTeacher: p.TeacherProfile,
	}
}

// loadProfile returns nil without error when the role has no profile or the
// row is missing.
func loadProfile(ctx context.Context, lookups map[store.Role]profileLookup, u *store.User) (*store.Profile, error) {
	lookup, ok := lookups[u.Role]
	if !ok {
		return nil, nil
	}
	p, err := lookup(ctx, u.ID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, StorageError("load profile", err)
	}
	return p, nil
}
