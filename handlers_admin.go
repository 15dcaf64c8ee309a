package main

import (
	"errors"
	"net/http"
	"time"

	"github.com/example/carego/internal/auth"
	"github.com/example/carego/internal/store"
	"github.com/google/uuid"
)

func (a *App) HandleCreateUser(w http.ResponseWriter, r *http.Request) {
	var in auth.CreateUserInput
	if !decodeBody(w, r, &in) {
		return
	}
	ac, _ := AuthFrom(r.Context())
	res, err := a.Admin.CreateUser(r.Context(), ac, in, a.requestMeta(r))
	if err != nil {
		writeAuthError(w, a.Log, err)
		return
	}
	a.writeJSON(w, http.StatusCreated, res)
}

func (a *App) HandleSetUserStatus(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Status string `json:"accountStatus"`
		Reason string `json:"reason"`
	}
	if !decodeBody(w, r, &in) {
		return
	}
	status, err := store.ParseAccountStatus(in.Status)
	if err != nil {
		writeAuthError(w, a.Log, auth.ValidationError(err.Error()))
		return
	}
	ac, _ := AuthFrom(r.Context())
	res, err := a.Admin.SetStatus(r.Context(), ac, routeVar(r, "id"), status, in.Reason, a.requestMeta(r))
	if err != nil {
		writeAuthError(w, a.Log, err)
		return
	}
	a.writeJSON(w, http.StatusOK, res)
}

func (a *App) HandleCreateInvoice(w http.ResponseWriter, r *http.Request) {
	var in struct {
		ClientUserID string `json:"clientUserId"`
		AmountCents  int64  `json:"amountCents"`
		Currency     string `json:"currency"`
		DueAt        int64  `json:"dueAt"`
	}
	if !decodeBody(w, r, &in) {
		return
	}
	if in.ClientUserID == "" || in.AmountCents <= 0 || len(in.Currency) != 3 {
		writeAuthError(w, a.Log, auth.ValidationError("clientUserId, positive amountCents and a 3-letter currency are required"))
		return
	}
	client, err := a.DB.GetUserByID(r.Context(), in.ClientUserID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && client.Role != store.RoleClient) {
		writeAuthError(w, a.Log, auth.ValidationError("clientUserId must reference a CLIENT"))
		return
	}
	if err != nil {
		writeAuthError(w, a.Log, auth.StorageError("load client", err))
		return
	}

	now := time.Now().UTC()
	inv := &store.Invoice{
		ID:           uuid.NewString(),
		ClientUserID: in.ClientUserID,
		AmountCents:  in.AmountCents,
		Currency:     in.Currency,
		Status:       "OPEN",
		DueAt:        time.Unix(in.DueAt, 0).UTC(),
		CreatedAt:    now,
	}
	if err := a.DB.CreateInvoice(r.Context(), inv); err != nil {
		writeAuthError(w, a.Log, auth.StorageError("create invoice", err))
		return
	}

	ac, _ := AuthFrom(r.Context())
	actor, role := auth.ActorOf(ac)
	meta := a.requestMeta(r)
	a.Audit.Record(&store.AuditEntry{ActorUserID: actor, ActorRole: role, Action: "invoice.created", EntityType: "invoice", EntityID: inv.ID,
		After: auth.Snapshot(inv), OriginAddress: meta.OriginAddress, ClientString: meta.ClientString})
	a.writeJSON(w, http.StatusCreated, inv)
}
