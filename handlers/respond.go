package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"cityPerksAPI/internal/profilestore"
	"cityPerksAPI/services"
)

// Directory resolves the authenticated Clerk subject to the internal user id.
type Directory interface {
	ResolveClerkID(ctx context.Context, clerkID string) (uuid.UUID, error)
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error": "Internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

// respondServiceError maps the engine's error taxonomy onto HTTP statuses:
// validation 400/404, state conflicts 409, verification 422, exhausted
// optimistic retries 503.
func respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, profilestore.ErrUserNotFound):
		respondWithError(w, http.StatusNotFound, "User not found")
	case errors.Is(err, services.ErrTaskNotFound),
		errors.Is(err, services.ErrCollectionNotFound):
		respondWithError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, services.ErrInvalidAmount),
		errors.Is(err, services.ErrInvalidPeriod),
		errors.Is(err, services.ErrSelfReference):
		respondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrTaskAlreadyCompleted),
		errors.Is(err, services.ErrAlreadyCheckedIn),
		errors.Is(err, services.ErrDailyLimitReached),
		errors.Is(err, services.ErrAlreadyFriends),
		errors.Is(err, services.ErrRequestPending),
		errors.Is(err, services.ErrNoSuchRequest),
		errors.Is(err, services.ErrNotFriends):
		respondWithError(w, http.StatusConflict, err.Error())
	case errors.Is(err, services.ErrTaskNotVerified):
		respondWithError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, services.ErrConcurrentUpdate):
		respondWithError(w, http.StatusServiceUnavailable, err.Error())
	default:
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
	}
}
