package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"labportal/internal/api"
	"labportal/internal/booking"
	"labportal/internal/engine"
	"labportal/internal/store"
	"labportal/internal/timetable"
)

type LabHandlers struct {
	Engine *engine.Engine
	Store  store.Reader
	Logger *zap.Logger
}

// Bookings lists the approved slots of a lab on ?date=YYYY-MM-DD.
func (h LabHandlers) Bookings(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireActor(w, r); !ok {
		return
	}
	labID := chi.URLParam(r, "id")
	date, err := booking.ParseDate(r.URL.Query().Get("date"))
	if err != nil {
		api.WriteAppError(w, h.Logger, err)
		return
	}
	if _, err := h.Store.GetLab(r.Context(), labID); err != nil {
		api.WriteAppError(w, h.Logger, err)
		return
	}
	slots, err := h.Store.ListApprovedBookings(r.Context(), labID, date)
	if err != nil {
		api.WriteAppError(w, h.Logger, err)
		return
	}
	if slots == nil {
		slots = []booking.Slot{}
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{"items": slots})
}

func (h LabHandlers) Timetable(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireActor(w, r); !ok {
		return
	}
	labID := chi.URLParam(r, "id")
	if _, err := h.Store.GetLab(r.Context(), labID); err != nil {
		api.WriteAppError(w, h.Logger, err)
		return
	}
	entries, err := h.Store.ListTimetable(r.Context(), labID)
	if err != nil {
		api.WriteAppError(w, h.Logger, err)
		return
	}
	if entries == nil {
		entries = []timetable.Entry{}
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{"items": entries})
}

func (h LabHandlers) CreateEntry(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var in engine.EntryInput
	if err := decodeJSON(r, &in); err != nil {
		api.WriteError(w, http.StatusBadRequest, "VALIDATION_FAILED", "invalid json")
		return
	}
	e, err := h.Engine.CreateEntry(r.Context(), chi.URLParam(r, "id"), actor.UserID, in)
	if err != nil {
		api.WriteAppError(w, h.Logger, err)
		return
	}
	api.WriteJSON(w, http.StatusCreated, map[string]any{"entry": e})
}

func (h LabHandlers) UpdateEntry(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var in engine.EntryInput
	if err := decodeJSON(r, &in); err != nil {
		api.WriteError(w, http.StatusBadRequest, "VALIDATION_FAILED", "invalid json")
		return
	}
	e, err := h.Engine.UpdateEntry(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "entryId"), actor.UserID, in)
	if err != nil {
		api.WriteAppError(w, h.Logger, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{"entry": e})
}

func (h LabHandlers) DeleteEntry(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	if err := h.Engine.DeleteEntry(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "entryId"), actor.UserID); err != nil {
		api.WriteAppError(w, h.Logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
