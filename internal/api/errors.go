package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"labportal/internal/apperr"
)

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func WriteError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(ErrorEnvelope{
		Error: APIError{Code: code, Message: message},
	})
}

var statusByCode = map[string]int{
	apperr.ErrWrongState.Code:         http.StatusConflict,
	apperr.ErrWrongActor.Code:         http.StatusForbidden,
	apperr.ErrConflict.Code:           http.StatusConflict,
	apperr.ErrInsufficientStock.Code:  http.StatusConflict,
	apperr.ErrMissingAssignment.Code:  http.StatusUnprocessableEntity,
	apperr.ErrDuplicateExtension.Code: http.StatusConflict,
	apperr.ErrNotFound.Code:           http.StatusNotFound,
	apperr.ErrValidation.Code:         http.StatusBadRequest,
}

// WriteAppError maps typed engine errors onto the envelope. Anything untyped is
// logged and reported as INTERNAL without detail.
func WriteAppError(w http.ResponseWriter, logger *zap.Logger, err error) {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		if status, ok := statusByCode[ae.Code]; ok {
			WriteError(w, status, ae.Code, ae.Message)
			return
		}
	}
	if logger != nil {
		logger.Error("request failed", zap.Error(err))
	}
	WriteError(w, http.StatusInternalServerError, "INTERNAL", "internal error")
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
