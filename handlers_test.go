package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/example/carego/internal/auth"
	"github.com/example/carego/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaffTokenAgainstRoleGates(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t, "staff@carego.io", "password-1", store.RoleStaff, store.StatusActive)

	res := f.login(t, "staff@carego.io", "password-1")
	assert.Equal(t, 900, res.ExpiresIn)
	assert.NotEmpty(t, res.AccessToken)
	assert.NotEmpty(t, res.RefreshToken)

	rec := f.do(t, http.MethodGet, "/care-visits", res.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"careVisits":[]}`, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/admin/users", res.AccessToken, auth.CreateUserInput{Identifier: "x@carego.io", Password: "password-1", Role: "STAFF"})
	requireError(t, rec, http.StatusForbidden, "FORBIDDEN")
}

func TestExpiredAccessToken(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t, "client@carego.io", "password-1", store.RoleClient, store.StatusActive)
	res := f.login(t, "client@carego.io", "password-1")

	f.clock.Advance(901 * time.Second)
	requireError(t, f.do(t, http.MethodGet, "/auth/me", res.AccessToken, nil), http.StatusUnauthorized, "TOKEN_EXPIRED")
}

func TestLogoutThenRefresh(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t, "teacher@carego.io", "password-1", store.RoleTeacher, store.StatusActive)
	res := f.login(t, "teacher@carego.io", "password-1")

	rec := f.do(t, http.MethodPost, "/auth/logout", res.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"message":"Logged out successfully"}`, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/auth/refresh", "", map[string]string{"refreshToken": res.RefreshToken})
	requireError(t, rec, http.StatusUnauthorized, "SESSION_REVOKED")

	requireError(t, f.do(t, http.MethodGet, "/auth/me", res.AccessToken, nil), http.StatusUnauthorized, "SESSION_REVOKED")
	requireError(t, f.do(t, http.MethodPost, "/auth/logout", res.AccessToken, nil), http.StatusUnauthorized, "SESSION_REVOKED")
}

func TestLoginResponseShape(t *testing.T) {
	f := newFixture(t)
	u := f.seedUser(t, "client@carego.io", "password-1", store.RoleClient, store.StatusActive)

	rec := f.do(t, http.MethodPost, "/auth/login", "", creds{Identifier: "client@carego.io", Password: "password-1"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.ElementsMatch(t, []string{"accessToken", "refreshToken", "expiresIn", "user"}, keys(body))
	assert.EqualValues(t, 900, body["expiresIn"])
	assert.Equal(t, map[string]any{"id": u.ID, "identifier": "client@carego.io", "role": "CLIENT"}, body["user"])
}

func keys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func TestLoginErrorsAreIndistinguishable(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t, "client@carego.io", "password-1", store.RoleClient, store.StatusActive)

	unknown := f.do(t, http.MethodPost, "/auth/login", "", creds{Identifier: "nobody@carego.io", Password: "password-1"})
	wrong := f.do(t, http.MethodPost, "/auth/login", "", creds{Identifier: "client@carego.io", Password: "password-9"})
	requireError(t, unknown, http.StatusUnauthorized, "INVALID_CREDENTIALS")
	assert.Equal(t, unknown.Code, wrong.Code)
	assert.Equal(t, unknown.Body.String(), wrong.Body.String())

	requireError(t, f.do(t, http.MethodPost, "/auth/login", "", "{"), http.StatusBadRequest, "VALIDATION_ERROR")
	requireError(t, f.do(t, http.MethodPost, "/auth/login", "", creds{}), http.StatusBadRequest, "VALIDATION_ERROR")
	requireError(t, f.do(t, http.MethodPost, "/auth/refresh", "", map[string]string{}), http.StatusBadRequest, "VALIDATION_ERROR")
}

func TestGatewayErrorsOverHTTP(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t, "client@carego.io", "password-1", store.RoleClient, store.StatusActive)
	res := f.login(t, "client@carego.io", "password-1")

	requireError(t, f.do(t, http.MethodGet, "/auth/me", "", nil), http.StatusUnauthorized, "MISSING_CREDENTIALS")
	requireError(t, f.do(t, http.MethodGet, "/auth/me", "not.a.jwt", nil), http.StatusUnauthorized, "TOKEN_INVALID")
	requireError(t, f.do(t, http.MethodGet, "/auth/me", res.RefreshToken, nil), http.StatusUnauthorized, "TOKEN_KIND_MISMATCH")

	rec := f.do(t, http.MethodPost, "/auth/refresh", "", map[string]string{"refreshToken": res.AccessToken})
	requireError(t, rec, http.StatusUnauthorized, "TOKEN_KIND_MISMATCH")
}

func TestMeEndpoint(t *testing.T) {
	f := newFixture(t)
	u := f.seedUser(t, "student@carego.io", "password-1", store.RoleStudent, store.StatusActive)
	res := f.login(t, "student@carego.io", "password-1")

	rec := f.do(t, http.MethodGet, "/auth/me", res.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var me auth.MeResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &me))
	assert.Equal(t, u.ID, me.ID)
	assert.Equal(t, store.RoleStudent, me.Role)
	assert.Equal(t, store.StatusActive, me.AccountStatus)
	require.NotNil(t, me.Profile)
	assert.Equal(t, u.ID, me.Profile.UserID)
}

func TestRefreshEndpointRotates(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t, "staff@carego.io", "password-1", store.RoleStaff, store.StatusActive)
	res := f.login(t, "staff@carego.io", "password-1")

	rec := f.do(t, http.MethodPost, "/auth/refresh", "", map[string]string{"refreshToken": res.RefreshToken})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out auth.RefreshResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, 900, out.ExpiresIn)
	require.NotEmpty(t, out.RefreshToken)

	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/auth/me", out.AccessToken, nil).Code)

	rec = f.do(t, http.MethodPost, "/auth/refresh", "", map[string]string{"refreshToken": res.RefreshToken})
	requireError(t, rec, http.StatusUnauthorized, "TOKEN_MISMATCH")
}

func TestAdminSuspendOverHTTP(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t, "admin@carego.io", "password-1", store.RoleAdmin, store.StatusActive)
	client := f.seedUser(t, "client@carego.io", "password-1", store.RoleClient, store.StatusActive)
	admin := f.login(t, "admin@carego.io", "password-1")
	victim := f.login(t, "client@carego.io", "password-1")

	rec := f.do(t, http.MethodPost, "/admin/users/"+client.ID+"/status", admin.AccessToken, map[string]string{"accountStatus": "SUSPENDED", "reason": "fraud"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	requireError(t, f.do(t, http.MethodGet, "/auth/me", victim.AccessToken, nil), http.StatusUnauthorized, "SESSION_REVOKED")
	requireError(t, f.do(t, http.MethodPost, "/auth/login", "", creds{Identifier: "client@carego.io", Password: "password-1"}), http.StatusForbidden, "ACCOUNT_SUSPENDED")

	rec = f.do(t, http.MethodPost, "/admin/users/"+client.ID+"/status", admin.AccessToken, map[string]string{"accountStatus": "DORMANT"})
	requireError(t, rec, http.StatusBadRequest, "VALIDATION_ERROR")
	rec = f.do(t, http.MethodPost, "/admin/users/missing/status", admin.AccessToken, map[string]string{"accountStatus": "ACTIVE"})
	requireError(t, rec, http.StatusNotFound, "NOT_FOUND")
}

func TestAdminCreateUserOverHTTP(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t, "admin@carego.io", "password-1", store.RoleAdmin, store.StatusActive)
	admin := f.login(t, "admin@carego.io", "password-1")

	rec := f.do(t, http.MethodPost, "/admin/users", admin.AccessToken, auth.CreateUserInput{Identifier: "nurse@carego.io", Password: "password-1", Role: "STAFF", FullName: "Nurse"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/admin/users", admin.AccessToken, auth.CreateUserInput{Identifier: "boss@carego.io", Password: "password-1", Role: "SUPER_ADMIN"})
	requireError(t, rec, http.StatusForbidden, "FORBIDDEN")

	rec = f.do(t, http.MethodPost, "/admin/users", admin.AccessToken, auth.CreateUserInput{Identifier: "nurse@carego.io", Password: "password-1", Role: "STAFF"})
	requireError(t, rec, http.StatusConflict, "USER_EXISTS")

	f.login(t, "nurse@carego.io", "password-1")
}

func TestSessionListAndRevoke(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t, "staff@carego.io", "password-1", store.RoleStaff, store.StatusActive)
	f.seedUser(t, "other@carego.io", "password-1", store.RoleStaff, store.StatusActive)
	first := f.login(t, "staff@carego.io", "password-1")
	second := f.login(t, "staff@carego.io", "password-1")
	other := f.login(t, "other@carego.io", "password-1")

	rec := f.do(t, http.MethodGet, "/auth/sessions", second.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var list struct {
		Sessions []sessionView `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Sessions, 2)

	firstSID := mustSID(t, f, first.AccessToken)
	current := 0
	for _, s := range list.Sessions {
		assert.True(t, s.Valid)
		assert.Equal(t, "carego-test/1.0", s.ClientString)
		if s.Current {
			current++
			assert.NotEqual(t, firstSID, s.ID)
		}
	}
	assert.Equal(t, 1, current)

	requireError(t, f.do(t, http.MethodDelete, "/auth/sessions/"+firstSID, other.AccessToken, nil), http.StatusForbidden, "FORBIDDEN")
	requireError(t, f.do(t, http.MethodDelete, "/auth/sessions/nope", second.AccessToken, nil), http.StatusNotFound, "NOT_FOUND")

	rec = f.do(t, http.MethodDelete, "/auth/sessions/"+firstSID, second.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	requireError(t, f.do(t, http.MethodGet, "/auth/me", first.AccessToken, nil), http.StatusUnauthorized, "SESSION_REVOKED")
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/auth/me", second.AccessToken, nil).Code)
}

func TestCareVisitOwnershipOverHTTP(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t, "nurse-a@carego.io", "password-1", store.RoleStaff, store.StatusActive)
	f.seedUser(t, "nurse-b@carego.io", "password-1", store.RoleStaff, store.StatusActive)
	f.seedUser(t, "admin@carego.io", "password-1", store.RoleAdmin, store.StatusActive)
	client := f.seedUser(t, "client@carego.io", "password-1", store.RoleClient, store.StatusActive)
	a := f.login(t, "nurse-a@carego.io", "password-1")
	b := f.login(t, "nurse-b@carego.io", "password-1")
	admin := f.login(t, "admin@carego.io", "password-1")
	c := f.login(t, "client@carego.io", "password-1")

	rec := f.do(t, http.MethodPost, "/care-visits", a.AccessToken, map[string]any{"clientUserId": client.ID, "notes": "bp normal"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var v store.CareVisit
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	assert.Equal(t, a.User.ID, v.StaffUserID)

	rec = f.do(t, http.MethodPost, "/care-visits", a.AccessToken, map[string]any{"clientUserId": a.User.ID})
	requireError(t, rec, http.StatusBadRequest, "VALIDATION_ERROR")
	requireError(t, f.do(t, http.MethodPost, "/care-visits", c.AccessToken, map[string]any{"clientUserId": client.ID}), http.StatusForbidden, "FORBIDDEN")

	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/care-visits/"+v.ID, a.AccessToken, nil).Code)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/care-visits/"+v.ID, admin.AccessToken, nil).Code)
	requireError(t, f.do(t, http.MethodGet, "/care-visits/"+v.ID, b.AccessToken, nil), http.StatusForbidden, "FORBIDDEN")
	requireError(t, f.do(t, http.MethodGet, "/care-visits/"+v.ID, c.AccessToken, nil), http.StatusForbidden, "FORBIDDEN")
	requireError(t, f.do(t, http.MethodGet, "/care-visits/missing", a.AccessToken, nil), http.StatusNotFound, "NOT_FOUND")

	rec = f.do(t, http.MethodGet, "/care-visits", a.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), v.ID)
	rec = f.do(t, http.MethodGet, "/care-visits", b.AccessToken, nil)
	assert.NotContains(t, rec.Body.String(), v.ID)
}

func TestInvoiceOwnershipOverHTTP(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t, "admin@carego.io", "password-1", store.RoleAdmin, store.StatusActive)
	owner := f.seedUser(t, "owner@carego.io", "password-1", store.RoleClient, store.StatusActive)
	f.seedUser(t, "other@carego.io", "password-1", store.RoleClient, store.StatusActive)
	staff := f.seedUser(t, "staff@carego.io", "password-1", store.RoleStaff, store.StatusActive)
	admin := f.login(t, "admin@carego.io", "password-1")
	o := f.login(t, "owner@carego.io", "password-1")
	x := f.login(t, "other@carego.io", "password-1")

	body := map[string]any{"clientUserId": owner.ID, "amountCents": 12500, "currency": "USD", "dueAt": f.clock.Now().Add(30 * 24 * time.Hour).Unix()}
	rec := f.do(t, http.MethodPost, "/admin/invoices", admin.AccessToken, body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var inv store.Invoice
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &inv))
	assert.Equal(t, "OPEN", inv.Status)

	body["clientUserId"] = staff.ID
	requireError(t, f.do(t, http.MethodPost, "/admin/invoices", admin.AccessToken, body), http.StatusBadRequest, "VALIDATION_ERROR")
	requireError(t, f.do(t, http.MethodPost, "/admin/invoices", o.AccessToken, body), http.StatusForbidden, "FORBIDDEN")

	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/invoices/"+inv.ID, o.AccessToken, nil).Code)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/invoices/"+inv.ID, admin.AccessToken, nil).Code)
	requireError(t, f.do(t, http.MethodGet, "/invoices/"+inv.ID, x.AccessToken, nil), http.StatusForbidden, "FORBIDDEN")
	requireError(t, f.do(t, http.MethodGet, "/invoices/none", o.AccessToken, nil), http.StatusNotFound, "NOT_FOUND")
}

func TestRegisterEndpoint(t *testing.T) {
	f := newFixture(t)
	body := map[string]string{"identifier": "fresh@carego.io", "password": "password-1", "fullName": "Fresh Client"}

	rec := f.do(t, http.MethodPost, "/auth/register", "", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var me auth.MeResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &me))
	assert.Equal(t, store.StatusUnverified, me.AccountStatus)

	requireError(t, f.do(t, http.MethodPost, "/auth/register", "", body), http.StatusConflict, "USER_EXISTS")
	requireError(t, f.do(t, http.MethodPost, "/auth/login", "", creds{Identifier: "fresh@carego.io", Password: "password-1"}), http.StatusForbidden, "ACCOUNT_UNVERIFIED")
}

func TestIntrospectEndpoint(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t, "root@carego.io", "password-1", store.RoleSuperAdmin, store.StatusActive)
	f.seedUser(t, "staff@carego.io", "password-1", store.RoleStaff, store.StatusActive)
	root := f.login(t, "root@carego.io", "password-1")
	staff := f.login(t, "staff@carego.io", "password-1")

	rec := f.do(t, http.MethodPost, "/auth/introspect", root.AccessToken, map[string]string{"token": staff.AccessToken})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var info auth.TokenInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.True(t, info.Active)
	assert.Equal(t, staff.User.ID, info.UserID)

	requireError(t, f.do(t, http.MethodPost, "/auth/introspect", staff.AccessToken, map[string]string{"token": root.AccessToken}), http.StatusForbidden, "FORBIDDEN")
	requireError(t, f.do(t, http.MethodPost, "/auth/introspect", root.AccessToken, map[string]string{}), http.StatusBadRequest, "VALIDATION_ERROR")
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/ready", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ready":true}`, rec.Body.String())

	f.do(t, http.MethodPost, "/auth/login", "", creds{Identifier: "nobody@carego.io", Password: "password-1"})

	rec = f.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	out := rec.Body.String()
	assert.Contains(t, out, `carego_http_requests_total{method="GET",route="/health",status="200"} 1`)
	assert.Contains(t, out, `carego_auth_events_total{event="login",outcome="INVALID_CREDENTIALS"} 1`)
	assert.Contains(t, out, "go_goroutines")
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodOptions, "/auth/login", nil)
	req.Header.Set("Origin", "https://app.carego.io")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.carego.io", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.True(t, strings.Contains(rec.Header().Get("Access-Control-Allow-Headers"), "Authorization"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func mustSID(t *testing.T, f *fixture, access string) string {
	t.Helper()
	claims, err := f.app.Codec.Verify(access, false)
	require.NoError(t, err)
	return claims.SessionID
}
