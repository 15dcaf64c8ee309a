package main

import (
	"encoding/json"
	"net/http"

	"github.com/example/carego/internal/auth"
)

type creds struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, auth.ErrValidation.Code, "Invalid request body")
		return false
	}
	return true
}

func (a *App) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var c creds
	if !decodeBody(w, r, &c) {
		return
	}
	res, err := a.Auth.Login(r.Context(), c.Identifier, c.Password, a.requestMeta(r))
	if err != nil {
		writeAuthError(w, a.Log, err)
		return
	}
	a.writeJSON(w, http.StatusOK, res)
}

func (a *App) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var in struct {
		RefreshToken string `json:"refreshToken"`
	}
	if !decodeBody(w, r, &in) {
		return
	}
	res, err := a.Auth.Refresh(r.Context(), in.RefreshToken, a.requestMeta(r))
	if err != nil {
		writeAuthError(w, a.Log, err)
		return
	}
	a.writeJSON(w, http.StatusOK, res)
}

func (a *App) HandleMe(w http.ResponseWriter, r *http.Request) {
	ac, _ := AuthFrom(r.Context())
	res, err := a.Auth.Me(r.Context(), ac)
	if err != nil {
		writeAuthError(w, a.Log, err)
		return
	}
	a.writeJSON(w, http.StatusOK, res)
}

// HandleLogout takes the session id from the verified token, never the body.
func (a *App) HandleLogout(w http.ResponseWriter, r *http.Request) {
	ac, _ := AuthFrom(r.Context())
	if err := a.Auth.Logout(r.Context(), ac, a.requestMeta(r)); err != nil {
		writeAuthError(w, a.Log, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out successfully"})
}

func (a *App) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var in struct {
		creds
		FullName string `json:"fullName"`
	}
	if !decodeBody(w, r, &in) {
		return
	}
	res, err := a.Auth.Register(r.Context(), in.Identifier, in.Password, in.FullName, a.requestMeta(r))
	if err != nil {
		writeAuthError(w, a.Log, err)
		return
	}
	a.writeJSON(w, http.StatusCreated, res)
}

type sessionView struct {
	ID            string `json:"id"`
	Current       bool   `json:"current"`
	Valid         bool   `json:"valid"`
	ExpiresAt     int64  `json:"expiresAt"`
	OriginAddress string `json:"originAddress"`
	ClientString  string `json:"clientString"`
	CreatedAt     int64  `json:"createdAt"`
}

func (a *App) HandleListSessions(w http.ResponseWriter, r *http.Request) {
	ac, _ := AuthFrom(r.Context())
	list, err := a.Sessions.ListUserSessions(r.Context(), ac.UserID)
	if err != nil {
		writeAuthError(w, a.Log, err)
		return
	}
	out := make([]sessionView, 0, len(list))
	for _, s := range list {
		out = append(out, sessionView{
			ID:            s.ID,
			Current:       s.ID == ac.SessionID,
			Valid:         s.Valid,
			ExpiresAt:     s.ExpiresAt.Unix(),
			OriginAddress: s.OriginAddress,
			ClientString:  s.ClientString,
			CreatedAt:     s.CreatedAt.Unix(),
		})
	}
	a.writeJSON(w, http.StatusOK, map[string]any{"sessions": out})
}

// HandleRevokeSession runs behind the session ownership gate.
func (a *App) HandleRevokeSession(w http.ResponseWriter, r *http.Request) {
	ac, _ := AuthFrom(r.Context())
	if err := a.Auth.RevokeSession(r.Context(), ac, routeVar(r, "id"), a.requestMeta(r)); err != nil {
		writeAuthError(w, a.Log, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]string{"message": "Session revoked"})
}
