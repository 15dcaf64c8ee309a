package main

import (
	"net/http"

	"github.com/example/carego/internal/auth"
)

// HandleTokenIntrospect reports whether a token would currently be honoured.
// POST /auth/introspect, administrative roles only.
func (a *App) HandleTokenIntrospect(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Token == "" {
		writeAuthError(w, a.Log, auth.ValidationError("token is required"))
		return
	}
	info, err := a.Auth.Introspect(r.Context(), req.Token)
	if err != nil {
		writeAuthError(w, a.Log, err)
		return
	}
	a.writeJSON(w, http.StatusOK, info)
}
