package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"gpurental-backend/internal/domain"
	"gpurental-backend/internal/logger"
)

// errorResponse is the JSON body every failed request returns.
type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	// RemainingSeconds is set only on cooldown rejections.
	RemainingSeconds int64 `json:"remaining_seconds,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("Failed to encode response", "error", err)
	}
}

// respondError maps the domain error taxonomy onto HTTP statuses. Callers
// never map errors themselves; every handler funnels failures through here.
func respondError(w http.ResponseWriter, err error) {
	var cooldownErr *domain.CooldownError
	if errors.As(err, &cooldownErr) {
		respondJSON(w, http.StatusConflict, errorResponse{
			Code:             "COOLDOWN_ACTIVE",
			Message:          cooldownErr.Error(),
			RemainingSeconds: int64(cooldownErr.Remaining.Seconds()),
		})
		return
	}

	var validationErr *domain.ValidationError
	if errors.As(err, &validationErr) {
		respondJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Code:    "VALIDATION_FAILED",
			Message: validationErr.Error(),
		})
		return
	}

	switch {
	case errors.Is(err, domain.ErrNotFound):
		respondJSON(w, http.StatusNotFound, errorResponse{
			Code:    "NOT_FOUND",
			Message: err.Error(),
		})
	case errors.Is(err, domain.ErrAuthorizationDeclined):
		respondJSON(w, http.StatusForbidden, errorResponse{
			Code:    "AUTHORIZATION_DECLINED",
			Message: err.Error(),
		})
	case errors.Is(err, domain.ErrRentalBusy):
		respondJSON(w, http.StatusConflict, errorResponse{
			Code:    "RENTAL_BUSY",
			Message: err.Error(),
		})
	case errors.Is(err, domain.ErrIllegalTransition):
		respondJSON(w, http.StatusConflict, errorResponse{
			Code:    "ILLEGAL_TRANSITION",
			Message: err.Error(),
		})
	case errors.Is(err, domain.ErrExternalRejected):
		respondJSON(w, http.StatusConflict, errorResponse{
			Code:    "LEDGER_REJECTED",
			Message: err.Error(),
		})
	case errors.Is(err, domain.ErrExternalUnavailable):
		respondJSON(w, http.StatusBadGateway, errorResponse{
			Code:    "LEDGER_UNAVAILABLE",
			Message: err.Error(),
		})
	case errors.Is(err, domain.ErrOutOfRange), errors.Is(err, domain.ErrImmutableFieldWrite):
		respondJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Code:    "VALIDATION_FAILED",
			Message: err.Error(),
		})
	case errors.Is(err, domain.ErrIntegrityFault):
		logger.Error("Integrity fault surfaced to API", "error", err)
		respondJSON(w, http.StatusInternalServerError, errorResponse{
			Code:    "INTEGRITY_FAULT",
			Message: err.Error(),
		})
	default:
		logger.Error("Unhandled error in API", "error", err)
		respondJSON(w, http.StatusInternalServerError, errorResponse{
			Code:    "INTERNAL",
			Message: "internal server error",
		})
	}
}
