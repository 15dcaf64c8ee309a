package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemDB keeps everything in process memory. It is meant for tests and local
// development; it offers no durability.
type MemDB struct {
	mu         sync.RWMutex
	users      map[string]*User
	byIdent    map[string]string
	profiles   map[Role]map[string]*Profile
	sessions   map[string]*Session
	audit      []*AuditEntry
	careVisits map[string]*CareVisit
	invoices   map[string]*Invoice
}

var _ DB = (*MemDB)(nil)

func NewMemoryDB() *MemDB {
	return &MemDB{
		users:      map[string]*User{},
		byIdent:    map[string]string{},
		profiles:   map[Role]map[string]*Profile{},
		sessions:   map[string]*Session{},
		careVisits: map[string]*CareVisit{},
		invoices:   map[string]*Invoice{},
	}
}

func (m *MemDB) Ping(context.Context) error { return nil }
func (m *MemDB) Close() error               { return nil }

func (m *MemDB) CreateUser(_ context.Context, u *User, p *Profile) error {
	if p != nil {
		if _, ok := profileTable(u.Role); !ok {
			return fmt.Errorf("role %s has no profile table", u.Role)
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[u.ID]; ok {
		return ErrConflict
	}
	if _, ok := m.byIdent[u.Identifier]; ok {
		return ErrConflict
	}
	cp := *u
	m.users[u.ID] = &cp
	m.byIdent[u.Identifier] = u.ID
	if p != nil {
		if m.profiles[u.Role] == nil {
			m.profiles[u.Role] = map[string]*Profile{}
		}
		pc := *p
		pc.UserID = u.ID
		m.profiles[u.Role][u.ID] = &pc
	}
	return nil
}

func (m *MemDB) GetUserByIdentifier(_ context.Context, identifier string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byIdent[identifier]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *m.users[id]
	return &cp, nil
}

func (m *MemDB) GetUserByID(_ context.Context, id string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *MemDB) UpdateUserStatus(_ context.Context, id string, status AccountStatus, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	u.Status = status
	u.Active = active
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemDB) profile(role Role, userID string) (*Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.profiles[role][userID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MemDB) StaffProfile(_ context.Context, userID string) (*Profile, error) {
	return m.profile(RoleStaff, userID)
}

func (m *MemDB) ClientProfile(_ context.Context, userID string) (*Profile, error) {
	return m.profile(RoleClient, userID)
}

func (m *MemDB) StudentProfile(_ context.Context, userID string) (*Profile, error) {
	return m.profile(RoleStudent, userID)
}

func (m *MemDB) TeacherProfile(_ context.Context, userID string) (*Profile, error) {
	return m.profile(RoleTeacher, userID)
}

func (m *MemDB) InsertSession(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s.ID]; ok {
		return ErrConflict
	}
	cp := *s
	m.sessions[s.ID] = &cp
	return nil
}

func (m *MemDB) GetSession(_ context.Context, id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *MemDB) ListUserSessions(_ context.Context, userID string) ([]*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Session
	for _, s := range m.sessions {
		if s.UserID == userID {
			cp := *s
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemDB) UpdateSessionTokenHash(_ context.Context, id, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return ErrNotFound
	}
	s.RefreshTokenHash = hash
	s.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemDB) InvalidateSession(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok && s.Valid {
		s.Valid = false
		s.UpdatedAt = time.Now().UTC()
	}
	return nil
}

func (m *MemDB) InvalidateUserSessions(_ context.Context, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, s := range m.sessions {
		if s.UserID == userID && s.Valid {
			s.Valid = false
			s.UpdatedAt = time.Now().UTC()
			n++
		}
	}
	return n, nil
}

func (m *MemDB) InvalidateExpiredSessions(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, s := range m.sessions {
		if s.Valid && !now.Before(s.ExpiresAt) {
			s.Valid = false
			s.UpdatedAt = now
			n++
		}
	}
	return n, nil
}

func (m *MemDB) SessionOwner(_ context.Context, id string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return "", ErrNotFound
	}
	return s.UserID, nil
}

func (m *MemDB) AppendAudit(_ context.Context, e *AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *e
	m.audit = append(m.audit, &cp)
	return nil
}

// AuditEntries returns a snapshot of appended audit entries.
func (m *MemDB) AuditEntries() []*AuditEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*AuditEntry, len(m.audit))
	copy(out, m.audit)
	return out
}

func (m *MemDB) CreateCareVisit(_ context.Context, v *CareVisit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.careVisits[v.ID]; ok {
		return ErrConflict
	}
	cp := *v
	m.careVisits[v.ID] = &cp
	return nil
}

func (m *MemDB) GetCareVisit(_ context.Context, id string) (*CareVisit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.careVisits[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *v
	return &cp, nil
}

func (m *MemDB) ListCareVisitsByStaff(_ context.Context, staffUserID string) ([]*CareVisit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*CareVisit
	for _, v := range m.careVisits {
		if v.StaffUserID == staffUserID {
			cp := *v
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VisitedAt.After(out[j].VisitedAt) })
	return out, nil
}

func (m *MemDB) CareVisitOwner(_ context.Context, id string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.careVisits[id]
	if !ok {
		return "", ErrNotFound
	}
	return v.StaffUserID, nil
}

func (m *MemDB) CreateInvoice(_ context.Context, inv *Invoice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.invoices[inv.ID]; ok {
		return ErrConflict
	}
	cp := *inv
	m.invoices[inv.ID] = &cp
	return nil
}

func (m *MemDB) GetInvoice(_ context.Context, id string) (*Invoice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inv, ok := m.invoices[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *inv
	return &cp, nil
}

func (m *MemDB) InvoiceOwner(_ context.Context, id string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inv, ok := m.invoices[id]
	if !ok {
		return "", ErrNotFound
	}
	return inv.ClientUserID, nil
}
