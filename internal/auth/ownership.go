package auth

import (
	"context"
	"errors"

	"github.com/example/carego/internal/store"
)

// ResourceKind names a resource whose ownership can be checked. The set is
// closed; each kind has exactly one typed owner lookup.
type ResourceKind string

const (
	ResourceCareVisit ResourceKind = "care_visit"
	ResourceInvoice   ResourceKind = "invoice"
	ResourceSession   ResourceKind = "session"
)

type ownerLookup func(ctx context.Context, id string) (string, error)

// OwnerStore resolves the owning user id of each resource kind.
type OwnerStore interface {
	CareVisitOwner(ctx context.Context, id string) (string, error)
	InvoiceOwner(ctx context.Context, id string) (string, error)
	SessionOwner(ctx context.Context, id string) (string, error)
}

type OwnershipGate struct {
	lookups map[ResourceKind]ownerLookup
}

func NewOwnershipGate(s OwnerStore) *OwnershipGate {
	return &OwnershipGate{
		lookups: map[ResourceKind]ownerLookup{
			ResourceCareVisit: s.CareVisitOwner,
			ResourceInvoice:   s.InvoiceOwner,
			ResourceSession:   s.SessionOwner,
		},
	}
}

// Check returns NotFound when the resource does not exist and Forbidden when
// it belongs to someone else, unless the caller is administrative.
func (o *OwnershipGate) Check(ctx context.Context, ac *AuthContext, kind ResourceKind, id string) error {
	if ac == nil {
		return ErrMissingCredentials
	}
	lookup, ok := o.lookups[kind]
	if !ok {
		return errors.New("ownership: unknown resource kind " + string(kind))
	}
	owner, err := lookup(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return StorageError("resolve owner", err)
	}
	if owner == ac.UserID || ac.Role.Administrative() {
		return nil
	}
	return ErrForbidden
}
