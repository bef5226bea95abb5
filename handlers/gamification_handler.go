package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"cityPerksAPI/middleware"
	"cityPerksAPI/services"
)

type GamificationHandler struct {
	directory    Directory
	gamification *services.GamificationService
	collections  *services.CollectionService
	surpriseBox  *services.SurpriseBoxService
}

func NewGamificationHandler(directory Directory, g *services.GamificationService, c *services.CollectionService, b *services.SurpriseBoxService) *GamificationHandler {
	return &GamificationHandler{
		directory:    directory,
		gamification: g,
		collections:  c,
		surpriseBox:  b,
	}
}

// resolveUser pulls the Clerk subject out of the request context and maps it
// to the internal user id. Writes the error response itself on failure.
func (h *GamificationHandler) resolveUser(ctx context.Context, w http.ResponseWriter) (uuid.UUID, bool) {
	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return uuid.Nil, false
	}

	userID, err := h.directory.ResolveClerkID(ctx, clerkID)
	if err != nil {
		respondServiceError(w, err)
		return uuid.Nil, false
	}
	return userID, true
}

func (h *GamificationHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	userID, ok := h.resolveUser(ctx, w)
	if !ok {
		return
	}

	p, err := h.gamification.GetProfile(ctx, userID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, p)
}

type addXPRequest struct {
	Amount int    `json:"amount"`
	Reason string `json:"reason"`
}

func (h *GamificationHandler) AddXP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	userID, ok := h.resolveUser(ctx, w)
	if !ok {
		return
	}

	var req addXPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Reason == "" {
		req.Reason = "manual"
	}

	result, err := h.gamification.AddXP(ctx, userID, req.Amount, req.Reason)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, result)
}

func (h *GamificationHandler) Checkin(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	userID, ok := h.resolveUser(ctx, w)
	if !ok {
		return
	}

	result, err := h.gamification.Checkin(ctx, userID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	log.Printf("Checkin: user %s streak=%d xp=%d", userID, result.Streak, result.XPGained)
	respondWithJSON(w, http.StatusOK, result)
}

func (h *GamificationHandler) CompleteTask(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	userID, ok := h.resolveUser(ctx, w)
	if !ok {
		return
	}

	taskID := mux.Vars(r)["taskID"]
	if taskID == "" {
		respondWithError(w, http.StatusBadRequest, "taskID is required")
		return
	}

	result, err := h.gamification.CompleteTask(ctx, userID, taskID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, result)
}

func (h *GamificationHandler) GetTaskBoard(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	userID, ok := h.resolveUser(ctx, w)
	if !ok {
		return
	}

	board, err := h.gamification.TaskBoard(ctx, userID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, board)
}

type updateCollectionRequest struct {
	Increment int               `json:"increment"`
	Metadata  map[string]string `json:"metadata"`
}

func (h *GamificationHandler) UpdateCollection(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	userID, ok := h.resolveUser(ctx, w)
	if !ok {
		return
	}

	collectionID := mux.Vars(r)["collectionID"]
	if collectionID == "" {
		respondWithError(w, http.StatusBadRequest, "collectionID is required")
		return
	}

	var req updateCollectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, err := h.collections.UpdateCollection(ctx, userID, collectionID, req.Increment, req.Metadata)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, result)
}

func (h *GamificationHandler) OpenSurpriseBox(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	userID, ok := h.resolveUser(ctx, w)
	if !ok {
		return
	}

	result, err := h.surpriseBox.Open(ctx, userID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, result)
}

type brandVisitRequest struct {
	BrandID string `json:"brandId"`
	Points  int    `json:"points"`
}

func (h *GamificationHandler) RecordBrandVisit(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	userID, ok := h.resolveUser(ctx, w)
	if !ok {
		return
	}

	var req brandVisitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.BrandID == "" {
		respondWithError(w, http.StatusBadRequest, "brandId is required")
		return
	}

	entry, err := h.gamification.RecordBrandVisit(ctx, userID, req.BrandID, req.Points)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, entry)
}
