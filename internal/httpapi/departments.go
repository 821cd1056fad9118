package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"labportal/internal/api"
	"labportal/internal/authority"
	"labportal/internal/directory"
	"labportal/internal/engine"
	"labportal/internal/store"
)

type DepartmentHandlers struct {
	Engine *engine.Engine
	Store  store.Reader
	Logger *zap.Logger
}

type departmentView struct {
	*directory.Department
	CurrentApprover   directory.Authority `json:"currentApprover"`
	CurrentApproverID string              `json:"currentApproverId,omitempty"`
	Assignable        bool                `json:"assignable"`
}

func viewOf(d *directory.Department) departmentView {
	return departmentView{
		Department:        d,
		CurrentApprover:   authority.CurrentApprover(*d),
		CurrentApproverID: authority.CurrentApproverID(*d),
		Assignable:        authority.Assignable(*d),
	}
}

func (h DepartmentHandlers) Get(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireActor(w, r); !ok {
		return
	}
	d, err := h.Store.GetDepartment(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		api.WriteAppError(w, h.Logger, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{"department": viewOf(d)})
}

type setAuthorityBody struct {
	Authority     directory.Authority `json:"authority"`
	CoordinatorID string              `json:"coordinatorId"`
}

func (h DepartmentHandlers) SetAuthority(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var body setAuthorityBody
	if err := decodeJSON(r, &body); err != nil {
		api.WriteError(w, http.StatusBadRequest, "VALIDATION_FAILED", "invalid json")
		return
	}
	d, err := h.Engine.SetAuthority(r.Context(), chi.URLParam(r, "id"), actor.UserID, body.Authority, body.CoordinatorID)
	if err != nil {
		api.WriteAppError(w, h.Logger, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{"department": viewOf(d)})
}
