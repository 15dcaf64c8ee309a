package main

import (
	"context"
	"net/http"
	"time"

	"github.com/example/carego/internal/auth"
	"github.com/example/carego/internal/store"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// buildRouter wires every route. CORS and security headers wrap the router
// so they also apply to preflight and unmatched requests.
func buildRouter(a *App) http.Handler {
	r := mux.NewRouter()
	r.Use(a.Metrics.Instrument)
	r.Use(a.Logging)
	r.Use(a.RateLimit)

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		a.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods("GET")
	r.HandleFunc("/ready", a.HandleReady).Methods("GET")
	r.Handle("/metrics", a.Metrics.Handler()).Methods("GET")

	r.HandleFunc("/auth/login", a.HandleLogin).Methods("POST")
	r.HandleFunc("/auth/refresh", a.HandleRefresh).Methods("POST")
	r.HandleFunc("/auth/register", a.HandleRegister).Methods("POST")

	authed := func(h http.HandlerFunc, gates ...mux.MiddlewareFunc) http.Handler {
		var out http.Handler = h
		for i := len(gates) - 1; i >= 0; i-- {
			out = gates[i](out)
		}
		return a.RequireAuth(out)
	}
	adminOnly := a.RequireRoles(store.RoleSuperAdmin, store.RoleAdmin)
	staffOnly := a.RequireRoles(store.RoleStaff)

	r.Handle("/auth/me", authed(a.HandleMe)).Methods("GET")
	r.Handle("/auth/logout", authed(a.HandleLogout)).Methods("POST")
	r.Handle("/auth/sessions", authed(a.HandleListSessions)).Methods("GET")
	r.Handle("/auth/sessions/{id}", authed(a.HandleRevokeSession, a.RequireOwner(auth.ResourceSession, "id"))).Methods("DELETE")

	r.Handle("/auth/introspect", authed(a.HandleTokenIntrospect, adminOnly)).Methods("POST")
	r.Handle("/admin/users", authed(a.HandleCreateUser, adminOnly)).Methods("POST")
	r.Handle("/admin/users/{id}/status", authed(a.HandleSetUserStatus, adminOnly)).Methods("POST")
	r.Handle("/admin/invoices", authed(a.HandleCreateInvoice, adminOnly)).Methods("POST")

	r.Handle("/care-visits", authed(a.HandleListCareVisits, staffOnly)).Methods("GET")
	r.Handle("/care-visits", authed(a.HandleCreateCareVisit, staffOnly)).Methods("POST")
	r.Handle("/care-visits/{id}", authed(a.HandleGetCareVisit, a.RequireOwner(auth.ResourceCareVisit, "id"))).Methods("GET")
	r.Handle("/invoices/{id}", authed(a.HandleGetInvoice, a.RequireOwner(auth.ResourceInvoice, "id"))).Methods("GET")

	return SecurityHeaders(a.CORS(r))
}

func (a *App) HandleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := a.DB.Ping(ctx); err != nil {
		a.Log.Warn("readiness check failed", zap.Error(err))
		a.writeJSON(w, http.StatusServiceUnavailable, map[string]bool{"ready": false})
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]bool{"ready": true})
}
