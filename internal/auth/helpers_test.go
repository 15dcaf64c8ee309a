package auth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/example/carego/internal/credentials"
	"github.com/example/carego/internal/store"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

var testMeta = RequestMeta{OriginAddress: "10.1.2.3", ClientString: "carego-test/1.0"}

type fixture struct {
	db       *store.MemDB
	clock    *testClock
	codec    *TokenCodec
	sessions *SessionManager
	audit    *Auditor
	auth     *AuthService
	admin    *AdminService
	gateway  *Gateway
	owners   *OwnershipGate
}

type fixtureOption func(*fixtureConfig)

type fixtureConfig struct {
	rotate bool
}

func withoutRotation() fixtureOption { return func(c *fixtureConfig) { c.rotate = false } }

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()
	fc := fixtureConfig{rotate: true}
	for _, o := range opts {
		o(&fc)
	}

	db := store.NewMemoryDB()
	clock := newTestClock()
	log := zaptest.NewLogger(t)
	codec, err := NewTokenCodec(TokenConfig{
		Secret:     []byte("test-secret-" + uuid.NewString()),
		Issuer:     "carego",
		RefreshTTL: 7 * 24 * time.Hour,
		Now:        clock.Now,
	})
	require.NoError(t, err)

	audit := NewAuditor(256, nil, log, NewStoreAuditWriter(db))
	t.Cleanup(func() { _ = audit.Close(context.Background()) })
	sessions := NewSessionManager(db, clock.Now, log)
	throttle := NewMemoryThrottle(5, 15*time.Minute, clock.Now)

	return &fixture{
		db:       db,
		clock:    clock,
		codec:    codec,
		sessions: sessions,
		audit:    audit,
		auth:     NewAuthService(db, codec, sessions, throttle, audit, nil, fc.rotate, log),
		admin:    NewAdminService(db, sessions, audit, log),
		gateway:  NewGateway(codec, sessions, db, nil, log),
		owners:   NewOwnershipGate(db),
	}
}

// drainAudit stops the auditor and waits for queued entries to land.
func (f *fixture) drainAudit(t *testing.T) []*store.AuditEntry {
	t.Helper()
	require.NoError(t, f.audit.Close(context.Background()))
	return f.db.AuditEntries()
}

func (f *fixture) seedUser(t *testing.T, identifier, password string, role store.Role, status store.AccountStatus) *store.User {
	t.Helper()
	hash, err := credentials.HashPassword(password)
	require.NoError(t, err)
	now := f.clock.Now()
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
	if !role.Administrative() {
		p = &store.Profile{FullName: "Test " + string(role), CreatedAt: now}
	}
	require.NoError(t, f.db.CreateUser(context.Background(), u, p))
	return u
}

func (f *fixture) login(t *testing.T, identifier, password string) *LoginResult {
	t.Helper()
	res, err := f.auth.Login(context.Background(), identifier, password, testMeta)
	require.NoError(t, err)
	return res
}

func actions(entries []*store.AuditEntry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Action)
	}
	return out
}
