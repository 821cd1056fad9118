package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"labportal/internal/api"
	"labportal/internal/apperr"
	"labportal/internal/booking"
	"labportal/internal/engine"
	"labportal/internal/report"
	"labportal/internal/request"
	"labportal/internal/store"
)

type RequestHandlers struct {
	Engine *engine.Engine
	Store  store.Reader
	Logger *zap.Logger
}

type submitBookingBody struct {
	LabID     string            `json:"labId"`
	Purpose   string            `json:"purpose"`
	FacultyID string            `json:"facultyId"`
	Date      string            `json:"date"`
	Start     booking.TimeOfDay `json:"start"`
	End       booking.TimeOfDay `json:"end"`
}

func (h RequestHandlers) SubmitBooking(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var body submitBookingBody
	if err := decodeJSON(r, &body); err != nil {
		api.WriteError(w, http.StatusBadRequest, "VALIDATION_FAILED", "invalid json")
		return
	}
	date, err := booking.ParseDate(body.Date)
	if err != nil {
		api.WriteAppError(w, h.Logger, err)
		return
	}

	out, err := h.Engine.SubmitBooking(r.Context(), actor.UserID, engine.BookingInput{
		LabID:     body.LabID,
		Purpose:   body.Purpose,
		FacultyID: body.FacultyID,
		Date:      date,
		Start:     body.Start,
		End:       body.End,
	})
	h.respond(w, http.StatusCreated, out, err)
}

type submitComponentBody struct {
	LabID      string         `json:"labId"`
	Purpose    string         `json:"purpose"`
	FacultyID  string         `json:"facultyId"`
	Items      []request.Item `json:"items"`
	ReturnDate string         `json:"returnDate"`
}

func (h RequestHandlers) SubmitComponent(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var body submitComponentBody
	if err := decodeJSON(r, &body); err != nil {
		api.WriteError(w, http.StatusBadRequest, "VALIDATION_FAILED", "invalid json")
		return
	}
	returnDate, err := booking.ParseDate(body.ReturnDate)
	if err != nil {
		api.WriteAppError(w, h.Logger, err)
		return
	}

	out, err := h.Engine.SubmitComponent(r.Context(), actor.UserID, engine.ComponentInput{
		LabID:      body.LabID,
		Purpose:    body.Purpose,
		FacultyID:  body.FacultyID,
		Items:      body.Items,
		ReturnDate: returnDate,
	})
	h.respond(w, http.StatusCreated, out, err)
}

func (h RequestHandlers) Get(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireActor(w, r); !ok {
		return
	}
	out, err := h.Store.GetRequest(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		api.WriteAppError(w, h.Logger, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{
		"request":        out,
		"allowedActions": request.AllowedActions(out.Type, out.Status),
	})
}

func (h RequestHandlers) Events(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireActor(w, r); !ok {
		return
	}
	id := chi.URLParam(r, "id")
	if _, err := h.Store.GetRequest(r.Context(), id); err != nil {
		api.WriteAppError(w, h.Logger, err)
		return
	}
	evs, err := h.Store.ListRequestEvents(r.Context(), id)
	if err != nil {
		api.WriteAppError(w, h.Logger, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{"items": evs})
}

func (h RequestHandlers) Approve(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	out, err := h.Engine.Approve(r.Context(), chi.URLParam(r, "id"), actor.UserID)
	h.respond(w, http.StatusOK, out, err)
}

type reasonBody struct {
	Reason string `json:"reason"`
}

func (h RequestHandlers) Reject(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var body reasonBody
	if err := decodeJSON(r, &body); err != nil {
		api.WriteError(w, http.StatusBadRequest, "VALIDATION_FAILED", "invalid json")
		return
	}
	out, err := h.Engine.Reject(r.Context(), chi.URLParam(r, "id"), actor.UserID, body.Reason)
	h.respond(w, http.StatusOK, out, err)
}

func (h RequestHandlers) Withdraw(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var body reasonBody
	if err := decodeJSON(r, &body); err != nil {
		api.WriteError(w, http.StatusBadRequest, "VALIDATION_FAILED", "invalid json")
		return
	}
	out, err := h.Engine.Withdraw(r.Context(), chi.URLParam(r, "id"), actor.UserID, body.Reason)
	h.respond(w, http.StatusOK, out, err)
}

func (h RequestHandlers) Issue(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	out, err := h.Engine.Issue(r.Context(), chi.URLParam(r, "id"), actor.UserID)
	h.respond(w, http.StatusOK, out, err)
}

func (h RequestHandlers) ReturnRequest(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	out, err := h.Engine.ReturnRequest(r.Context(), chi.URLParam(r, "id"), actor.UserID)
	h.respond(w, http.StatusOK, out, err)
}

func (h RequestHandlers) CompleteReturn(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	out, err := h.Engine.CompleteReturn(r.Context(), chi.URLParam(r, "id"), actor.UserID)
	if err != nil {
		api.WriteAppError(w, h.Logger, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{
		"request":   out,
		"delayDays": out.Component.DelayDays(),
	})
}

type extensionBody struct {
	ReturnDate string `json:"returnDate"`
	Reason     string `json:"reason"`
}

func (h RequestHandlers) RequestExtension(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var body extensionBody
	if err := decodeJSON(r, &body); err != nil {
		api.WriteError(w, http.StatusBadRequest, "VALIDATION_FAILED", "invalid json")
		return
	}
	newDate, err := booking.ParseDate(body.ReturnDate)
	if err != nil {
		api.WriteAppError(w, h.Logger, err)
		return
	}
	out, err := h.Engine.RequestExtension(r.Context(), chi.URLParam(r, "id"), actor.UserID, newDate, body.Reason)
	h.respond(w, http.StatusOK, out, err)
}

type resolveExtensionBody struct {
	Decision string `json:"decision"`
	Remarks  string `json:"remarks"`
}

func (h RequestHandlers) ResolveExtension(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var body resolveExtensionBody
	if err := decodeJSON(r, &body); err != nil {
		api.WriteError(w, http.StatusBadRequest, "VALIDATION_FAILED", "invalid json")
		return
	}
	var approve bool
	switch request.ExtensionStatus(body.Decision) {
	case request.ExtensionApproved:
		approve = true
	case request.ExtensionRejected:
	default:
		api.WriteError(w, http.StatusBadRequest, "VALIDATION_FAILED", "decision must be approved or rejected")
		return
	}
	out, err := h.Engine.ResolveExtension(r.Context(), chi.URLParam(r, "id"), actor.UserID, approve, body.Remarks)
	h.respond(w, http.StatusOK, out, err)
}

// Slip streams the PDF approval slip.
func (h RequestHandlers) Slip(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireActor(w, r); !ok {
		return
	}
	ctx := r.Context()
	req, err := h.Store.GetRequest(ctx, chi.URLParam(r, "id"))
	if err != nil {
		api.WriteAppError(w, h.Logger, err)
		return
	}
	if !report.Printable(req.Status) {
		api.WriteAppError(w, h.Logger, apperr.ErrWrongState.With("request %s is %s", req.ID, req.Status))
		return
	}
	lab, err := h.Store.GetLab(ctx, req.LabID)
	if err != nil {
		api.WriteAppError(w, h.Logger, err)
		return
	}
	dept, err := h.Store.GetDepartment(ctx, lab.DepartmentID)
	if err != nil {
		api.WriteAppError(w, h.Logger, err)
		return
	}

	slip := report.Slip{Request: req, Lab: *lab, Department: *dept, Names: map[string]string{}, Components: map[string]string{}}
	ids := []string{req.RequesterID, req.FinalApproverID}
	for _, e := range req.Audit {
		ids = append(ids, e.ActorID)
	}
	for _, id := range ids {
		if _, done := slip.Names[id]; done || id == "" {
			continue
		}
		if u, err := h.Store.GetUser(ctx, id); err == nil {
			slip.Names[id] = u.Name
		}
	}
	if req.Component != nil {
		for _, it := range req.Component.Items {
			if c, err := h.Store.GetComponent(ctx, it.ComponentID); err == nil {
				slip.Components[c.ID] = c.Name
			}
		}
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `inline; filename="slip-`+req.ID+`.pdf"`)
	if err := report.WriteSlip(w, slip); err != nil {
		h.Logger.Error("render slip", zap.String("request_id", req.ID), zap.Error(err))
	}
}

func (h RequestHandlers) respond(w http.ResponseWriter, status int, out *request.Request, err error) {
	if err != nil {
		api.WriteAppError(w, h.Logger, err)
		return
	}
	api.WriteJSON(w, status, map[string]any{"request": out})
}

func requireActor(w http.ResponseWriter, r *http.Request) (*api.Actor, bool) {
	a := api.ActorFromContext(r.Context())
	if a == nil {
		api.WriteError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing actor identity")
		return nil, false
	}
	return a, true
}

// decodeJSON accepts an empty body as the zero value.
func decodeJSON(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
