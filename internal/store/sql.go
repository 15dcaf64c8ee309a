package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Dialect captures the per-driver differences the shared SQL store cares
// about. Queries are written with '?' placeholders and rebound as needed.
type Dialect struct {
	Name              string
	Numbered          bool // $1, $2, ... instead of ?
	IsUniqueViolation func(error) bool
}

// SQLDB implements DB over database/sql for any supported dialect.
type SQLDB struct {
	db      *sql.DB
	dialect Dialect
}

var _ DB = (*SQLDB)(nil)

// NewSQLDB wraps an open handle. The schema is expected to exist.
func NewSQLDB(db *sql.DB, d Dialect) *SQLDB {
	return &SQLDB{db: db, dialect: d}
}

// Handle exposes the underlying pool.
func (s *SQLDB) Handle() *sql.DB { return s.db }

func (s *SQLDB) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }
func (s *SQLDB) Close() error                   { return s.db.Close() }

func (s *SQLDB) rebind(q string) string {
	if !s.dialect.Numbered {
		return q
	}
	var b strings.Builder
	b.Grow(len(q) + 8)
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLDB) exec(ctx context.Context, q string, args ...any) (sql.Result, error) {
	res, err := s.db.ExecContext(ctx, s.rebind(q), args...)
	return res, s.translate(err)
}

func (s *SQLDB) queryRow(ctx context.Context, q string, args ...any) *sql.Row {
	return s.db.QueryRowContext(ctx, s.rebind(q), args...)
}

func (s *SQLDB) translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if s.dialect.IsUniqueViolation != nil && s.dialect.IsUniqueViolation(err) {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return err
}

func unix(t time.Time) int64 { return t.UTC().Unix() }

func fromUnix(v int64) time.Time { return time.Unix(v, 0).UTC() }

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// profileTable maps a role to its profile table. Admin roles have none.
func profileTable(r Role) (string, bool) {
	switch r {
	case RoleStaff:
		return "staff_profiles", true
	case RoleClient:
		return "client_profiles", true
	case RoleStudent:
		return "student_profiles", true
	case RoleTeacher:
		return "teacher_profiles", true
	}
	return "", false
}

const userColumns = `id, identifier, password_hash, role, account_status, is_active, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*User, error) {
	var (
		u                User
		role, status     string
		active           int64
		created, updated int64
	)
	if err := row.Scan(&u.ID, &u.Identifier, &u.PasswordHash, &role, &status, &active, &created, &updated); err != nil {
		return nil, err
	}
	var err error
	if u.Role, err = ParseRole(role); err != nil {
		return nil, fmt.Errorf("user %s: %w", u.ID, err)
	}
	if u.Status, err = ParseAccountStatus(status); err != nil {
		return nil, fmt.Errorf("user %s: %w", u.ID, err)
	}
	u.Active = active != 0
	u.CreatedAt = fromUnix(created)
	u.UpdatedAt = fromUnix(updated)
	return &u, nil
}

func (s *SQLDB) CreateUser(ctx context.Context, u *User, p *Profile) error {
	table := ""
	if p != nil {
		var ok bool
		if table, ok = profileTable(u.Role); !ok {
			return fmt.Errorf("role %s has no profile table", u.Role)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, s.rebind(`INSERT INTO users(`+userColumns+`) VALUES(?,?,?,?,?,?,?,?)`),
		u.ID, u.Identifier, u.PasswordHash, string(u.Role), string(u.Status), boolInt(u.Active), unix(u.CreatedAt), unix(u.UpdatedAt))
	if err != nil {
		return s.translate(err)
	}
	if p != nil {
		_, err = tx.ExecContext(ctx, s.rebind(`INSERT INTO `+table+`(user_id, full_name, created_at) VALUES(?,?,?)`),
			u.ID, p.FullName, unix(p.CreatedAt))
		if err != nil {
			return s.translate(err)
		}
	}
	return s.translate(tx.Commit())
}

func (s *SQLDB) GetUserByIdentifier(ctx context.Context, identifier string) (*User, error) {
	u, err := scanUser(s.queryRow(ctx, `SELECT `+userColumns+` FROM users WHERE identifier = ?`, identifier))
	return u, s.translate(err)
}

func (s *SQLDB) GetUserByID(ctx context.Context, id string) (*User, error) {
	u, err := scanUser(s.queryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	return u, s.translate(err)
}

func (s *SQLDB) UpdateUserStatus(ctx context.Context, id string, status AccountStatus, active bool) error {
	res, err := s.exec(ctx, `UPDATE users SET account_status = ?, is_active = ?, updated_at = ? WHERE id = ?`,
		string(status), boolInt(active), unix(time.Now()), id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLDB) profile(ctx context.Context, table, userID string) (*Profile, error) {
	var (
		p       Profile
		created int64
	)
	err := s.queryRow(ctx, `SELECT user_id, full_name, created_at FROM `+table+` WHERE user_id = ?`, userID).
		Scan(&p.UserID, &p.FullName, &created)
	if err != nil {
		return nil, s.translate(err)
	}
	p.CreatedAt = fromUnix(created)
	return &p, nil
}

func (s *SQLDB) StaffProfile(ctx context.Context, userID string) (*Profile, error) {
	return s.profile(ctx, "staff_profiles", userID)
}

func (s *SQLDB) ClientProfile(ctx context.Context, userID string) (*Profile, error) {
	return s.profile(ctx, "client_profiles", userID)
}

func (s *SQLDB) StudentProfile(ctx context.Context, userID string) (*Profile, error) {
	return s.profile(ctx, "student_profiles", userID)
}

func (s *SQLDB) TeacherProfile(ctx context.Context, userID string) (*Profile, error) {
	return s.profile(ctx, "teacher_profiles", userID)
}

const sessionColumns = `id, user_id, refresh_token_hash, is_valid, expires_at, origin_address, client_string, created_at, updated_at`

func scanSession(row rowScanner) (*Session, error) {
	var (
		ss                        Session
		valid                     int64
		expires, created, updated int64
	)
	if err := row.Scan(&ss.ID, &ss.UserID, &ss.RefreshTokenHash, &valid, &expires, &ss.OriginAddress, &ss.ClientString, &created, &updated); err != nil {
		return nil, err
	}
	ss.Valid = valid != 0
	ss.ExpiresAt = fromUnix(expires)
	ss.CreatedAt = fromUnix(created)
	ss.UpdatedAt = fromUnix(updated)
	return &ss, nil
}

func (s *SQLDB) InsertSession(ctx context.Context, ss *Session) error {
	_, err := s.exec(ctx, `INSERT INTO sessions(`+sessionColumns+`) VALUES(?,?,?,?,?,?,?,?,?)`,
		ss.ID, ss.UserID, ss.RefreshTokenHash, boolInt(ss.Valid), unix(ss.ExpiresAt),
		ss.OriginAddress, ss.ClientString, unix(ss.CreatedAt), unix(ss.UpdatedAt))
	return err
}

func (s *SQLDB) GetSession(ctx context.Context, id string) (*Session, error) {
	ss, err := scanSession(s.queryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id))
	return ss, s.translate(err)
}

func (s *SQLDB) ListUserSessions(ctx context.Context, userID string) ([]*Session, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT `+sessionColumns+` FROM sessions WHERE user_id = ? ORDER BY created_at DESC`), userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Session
	for rows.Next() {
		ss, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ss)
	}
	return out, rows.Err()
}

func (s *SQLDB) UpdateSessionTokenHash(ctx context.Context, id, hash string) error {
	res, err := s.exec(ctx, `UPDATE sessions SET refresh_token_hash = ?, updated_at = ? WHERE id = ?`, hash, unix(time.Now()), id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLDB) InvalidateSession(ctx context.Context, id string) error {
	_, err := s.exec(ctx, `UPDATE sessions SET is_valid = 0, updated_at = ? WHERE id = ? AND is_valid = 1`, unix(time.Now()), id)
	return err
}

func (s *SQLDB) InvalidateUserSessions(ctx context.Context, userID string) (int64, error) {
	res, err := s.exec(ctx, `UPDATE sessions SET is_valid = 0, updated_at = ? WHERE user_id = ? AND is_valid = 1`, unix(time.Now()), userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *SQLDB) InvalidateExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.exec(ctx, `UPDATE sessions SET is_valid = 0, updated_at = ? WHERE is_valid = 1 AND expires_at <= ?`, unix(now), unix(now))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *SQLDB) SessionOwner(ctx context.Context, id string) (string, error) {
	return s.owner(ctx, `SELECT user_id FROM sessions WHERE id = ?`, id)
}

func (s *SQLDB) owner(ctx context.Context, q, id string) (string, error) {
	var owner string
	if err := s.queryRow(ctx, q, id).Scan(&owner); err != nil {
		return "", s.translate(err)
	}
	return owner, nil
}

func nullableString(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

func (s *SQLDB) AppendAudit(ctx context.Context, e *AuditEntry) error {
	_, err := s.exec(ctx, `INSERT INTO audit_log(id, actor_user_id, actor_role, action, entity_type, entity_id, before_value, after_value, reason, origin_address, client_string, occurred_at)
		VALUES(?,?,?,?,?,?,?,?,?,?,?,?)`,
		e.ID, e.ActorUserID, e.ActorRole, e.Action, e.EntityType, e.EntityID,
		nullableString(e.Before), nullableString(e.After), e.Reason, e.OriginAddress, e.ClientString, unix(e.OccurredAt))
	return err
}

const careVisitColumns = `id, staff_user_id, client_user_id, visited_at, notes, created_at`

func scanCareVisit(row rowScanner) (*CareVisit, error) {
	var (
		v                CareVisit
		visited, created int64
	)
	if err := row.Scan(&v.ID, &v.StaffUserID, &v.ClientUserID, &visited, &v.Notes, &created); err != nil {
		return nil, err
	}
	v.VisitedAt = fromUnix(visited)
	v.CreatedAt = fromUnix(created)
	return &v, nil
}

func (s *SQLDB) CreateCareVisit(ctx context.Context, v *CareVisit) error {
	_, err := s.exec(ctx, `INSERT INTO care_visits(`+careVisitColumns+`) VALUES(?,?,?,?,?,?)`,
		v.ID, v.StaffUserID, v.ClientUserID, unix(v.VisitedAt), v.Notes, unix(v.CreatedAt))
	return err
}

func (s *SQLDB) GetCareVisit(ctx context.Context, id string) (*CareVisit, error) {
	v, err := scanCareVisit(s.queryRow(ctx, `SELECT `+careVisitColumns+` FROM care_visits WHERE id = ?`, id))
	return v, s.translate(err)
}

func (s *SQLDB) ListCareVisitsByStaff(ctx context.Context, staffUserID string) ([]*CareVisit, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT `+careVisitColumns+` FROM care_visits WHERE staff_user_id = ? ORDER BY visited_at DESC`), staffUserID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*CareVisit
	for rows.Next() {
		v, err := scanCareVisit(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *SQLDB) CareVisitOwner(ctx context.Context, id string) (string, error) {
	return s.owner(ctx, `SELECT staff_user_id FROM care_visits WHERE id = ?`, id)
}

const invoiceColumns = `id, client_user_id, amount_cents, currency, status, due_at, created_at`

func (s *SQLDB) CreateInvoice(ctx context.Context, inv *Invoice) error {
	_, err := s.exec(ctx, `INSERT INTO invoices(`+invoiceColumns+`) VALUES(?,?,?,?,?,?,?)`,
		inv.ID, inv.ClientUserID, inv.AmountCents, inv.Currency, inv.Status, unix(inv.DueAt), unix(inv.CreatedAt))
	return err
}

func (s *SQLDB) GetInvoice(ctx context.Context, id string) (*Invoice, error) {
	var (
		inv          Invoice
		due, created int64
	)
	err := s.queryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = ?`, id).
		Scan(&inv.ID, &inv.ClientUserID, &inv.AmountCents, &inv.Currency, &inv.Status, &due, &created)
	if err != nil {
		return nil, s.translate(err)
	}
	inv.DueAt = fromUnix(due)
	inv.CreatedAt = fromUnix(created)
	return &inv, nil
}

func (s *SQLDB) InvoiceOwner(ctx context.Context, id string) (string, error) {
	return s.owner(ctx, `SELECT client_user_id FROM invoices WHERE id = ?`, id)
}
