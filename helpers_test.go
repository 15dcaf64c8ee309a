package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/example/carego/internal/auth"
	cfg "github.com/example/carego/internal/config"
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

var testMeta = auth.RequestMeta{OriginAddress: "10.1.2.3", ClientString: "carego-test/1.0"}

func testConfig() *cfg.Config {
	return &cfg.Config{
		Env:                 "test",
		JwtSecret:           "test-secret-" + uuid.NewString(),
		JwtIssuer:           "carego",
		RefreshTokenTTL:     7 * 24 * time.Hour,
		RotateRefreshTokens: true,
		LoginMaxFailures:    5,
		LoginFailureWindow:  15 * time.Minute,
		AuditBuffer:         256,
		RateLimitPerMinute:  100000,
	}
}

type fixture struct {
	app     *App
	db      *store.MemDB
	clock   *testClock
	handler http.Handler
}

func newFixture(t *testing.T, mutate ...func(*cfg.Config)) *fixture {
	t.Helper()
	c := testConfig()
	for _, m := range mutate {
		m(c)
	}
	db := store.NewMemoryDB()
	clock := newTestClock()
	app, err := NewApp(c, db, AppOptions{Now: clock.Now, Log: zaptest.NewLogger(t)})
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Audit.Close(context.Background()) })
	return &fixture{app: app, db: db, clock: clock, handler: buildRouter(app)}
}

// drainAudit stops the auditor and waits for queued entries to land.
func (f *fixture) drainAudit(t *testing.T) []*store.AuditEntry {
	t.Helper()
	require.NoError(t, f.app.Audit.Close(context.Background()))
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

func (f *fixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "carego-test/1.0")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) login(t *testing.T, identifier, password string) auth.LoginResult {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/auth/login", "", creds{Identifier: identifier, Password: password})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res auth.LoginResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	return res
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) APIError {
	t.Helper()
	var e APIError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e), rec.Body.String())
	return e
}

func requireError(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	require.Equal(t, status, rec.Code, rec.Body.String())
	require.Equal(t, code, decodeError(t, rec).Code)
}
