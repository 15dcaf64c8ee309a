package main

import (
	"errors"
	"net/http"
	"time"

	"github.com/example/carego/internal/auth"
	"github.com/example/carego/internal/store"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

func routeVar(r *http.Request, name string) string { return mux.Vars(r)[name] }

func (a *App) HandleListCareVisits(w http.ResponseWriter, r *http.Request) {
	ac, _ := AuthFrom(r.Context())
	visits, err := a.DB.ListCareVisitsByStaff(r.Context(), ac.UserID)
	if err != nil {
		writeAuthError(w, a.Log, auth.StorageError("list care visits", err))
		return
	}
	if visits == nil {
		visits = []*store.CareVisit{}
	}
	a.writeJSON(w, http.StatusOK, map[string]any{"careVisits": visits})
}

// HandleCreateCareVisit records a visit owned by the calling staff member.
func (a *App) HandleCreateCareVisit(w http.ResponseWriter, r *http.Request) {
	var in struct {
		ClientUserID string `json:"clientUserId"`
		VisitedAt    int64  `json:"visitedAt"`
		Notes        string `json:"notes"`
	}
	if !decodeBody(w, r, &in) {
		return
	}
	if in.ClientUserID == "" {
		writeAuthError(w, a.Log, auth.ValidationError("clientUserId is required"))
		return
	}
	if _, err := a.DB.ClientProfile(r.Context(), in.ClientUserID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeAuthError(w, a.Log, auth.ValidationError("clientUserId must reference a client with a profile"))
			return
		}
		writeAuthError(w, a.Log, auth.StorageError("load client profile", err))
		return
	}

	ac, _ := AuthFrom(r.Context())
	now := time.Now().UTC()
	visited := now
	if in.VisitedAt > 0 {
		visited = time.Unix(in.VisitedAt, 0).UTC()
	}
	v := &store.CareVisit{
		ID:           uuid.NewString(),
		StaffUserID:  ac.UserID,
		ClientUserID: in.ClientUserID,
		VisitedAt:    visited,
		Notes:        in.Notes,
		CreatedAt:    now,
	}
	if err := a.DB.CreateCareVisit(r.Context(), v); err != nil {
		writeAuthError(w, a.Log, auth.StorageError("create care visit", err))
		return
	}

	actor, role := auth.ActorOf(ac)
	meta := a.requestMeta(r)
	a.Audit.Record(&store.AuditEntry{ActorUserID: actor, ActorRole: role, Action: "care_visit.created", EntityType: "care_visit", EntityID: v.ID,
		After: auth.Snapshot(v), OriginAddress: meta.OriginAddress, ClientString: meta.ClientString})
	a.writeJSON(w, http.StatusCreated, v)
}

// HandleGetCareVisit runs behind the care visit ownership gate.
func (a *App) HandleGetCareVisit(w http.ResponseWriter, r *http.Request) {
	v, err := a.DB.GetCareVisit(r.Context(), routeVar(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		writeAuthError(w, a.Log, auth.ErrNotFound)
		return
	}
	if err != nil {
		writeAuthError(w, a.Log, auth.StorageError("load care visit", err))
		return
	}
	a.writeJSON(w, http.StatusOK, v)
}

// HandleGetInvoice runs behind the invoice ownership gate.
func (a *App) HandleGetInvoice(w http.ResponseWriter, r *http.Request) {
	inv, err := a.DB.GetInvoice(r.Context(), routeVar(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		writeAuthError(w, a.Log, auth.ErrNotFound)
		return
	}
	if err != nil {
		writeAuthError(w, a.Log, auth.StorageError("load invoice", err))
		return
	}
	a.writeJSON(w, http.StatusOK, inv)
}
