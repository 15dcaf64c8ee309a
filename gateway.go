package main

import (
	"context"
	"net/http"

	"github.com/example/carego/internal/auth"
	"github.com/example/carego/internal/store"
	"github.com/gorilla/mux"
)

type ctxKey int

const authContextKey ctxKey = iota

func withAuthContext(ctx context.Context, ac *auth.AuthContext) context.Context {
	return context.WithValue(ctx, authContextKey, ac)
}

// AuthFrom returns the verified caller, if any.
func AuthFrom(ctx context.Context) (*auth.AuthContext, bool) {
	ac, ok := ctx.Value(authContextKey).(*auth.AuthContext)
	return ac, ok && ac != nil
}

// RequireAuth rejects the request unless the gateway admits it.
func (a *App) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ac, err := a.Gateway.Authenticate(r.Context(), r.Header.Get("Authorization"))
		if err != nil {
			writeAuthError(w, a.Log, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(withAuthContext(r.Context(), ac)))
	})
}

// RequireRoles must be mounted after RequireAuth.
func (a *App) RequireRoles(allowed ...store.Role) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ac, _ := AuthFrom(r.Context())
			if err := auth.CheckRole(ac, allowed...); err != nil {
				writeAuthError(w, a.Log, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireOwner reads the resource id from the named route variable. It must
// be mounted after RequireAuth.
func (a *App) RequireOwner(kind auth.ResourceKind, param string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ac, _ := AuthFrom(r.Context())
			if err := a.Owners.Check(r.Context(), ac, kind, mux.Vars(r)[param]); err != nil {
				writeAuthError(w, a.Log, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
