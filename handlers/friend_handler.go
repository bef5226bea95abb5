package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"cityPerksAPI/internal/types/leaderboard"
	"cityPerksAPI/middleware"
	"cityPerksAPI/services"
)

// GlobalBoards serves the SQL-ranked city-wide leaderboard. Implemented by
// the Postgres store.
type GlobalBoards interface {
	GlobalLeaderboard(ctx context.Context, userID uuid.UUID, city string, limit int) (*leaderboard.Leaderboard, error)
}

type FriendHandler struct {
	directory Directory
	friends   *services.FriendService
	boards    GlobalBoards
}

func NewFriendHandler(directory Directory, friends *services.FriendService, boards GlobalBoards) *FriendHandler {
	return &FriendHandler{
		directory: directory,
		friends:   friends,
		boards:    boards,
	}
}

func (h *FriendHandler) resolveUser(ctx context.Context, w http.ResponseWriter) (uuid.UUID, bool) {
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

func parseFriendID(w http.ResponseWriter, raw string) (uuid.UUID, bool) {
	id, err := uuid.Parse(raw)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid friend id")
		return uuid.Nil, false
	}
	return id, true
}

func (h *FriendHandler) GetFriends(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	userID, ok := h.resolveUser(ctx, w)
	if !ok {
		return
	}

	graph, err := h.friends.GetGraph(ctx, userID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, graph)
}

type friendRequestBody struct {
	FriendID string `json:"friendId"`
}

func (h *FriendHandler) SendRequest(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	userID, ok := h.resolveUser(ctx, w)
	if !ok {
		return
	}

	var req friendRequestBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	friendID, ok := parseFriendID(w, req.FriendID)
	if !ok {
		return
	}

	if err := h.friends.SendRequest(ctx, userID, friendID); err != nil {
		respondServiceError(w, err)
		return
	}

	log.Printf("SendRequest: %s -> %s", userID, friendID)
	respondWithJSON(w, http.StatusCreated, map[string]string{"message": "Friend request sent"})
}

func (h *FriendHandler) AcceptRequest(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	userID, ok := h.resolveUser(ctx, w)
	if !ok {
		return
	}

	requesterID, ok := parseFriendID(w, mux.Vars(r)["friendID"])
	if !ok {
		return
	}

	if err := h.friends.AcceptRequest(ctx, userID, requesterID); err != nil {
		respondServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Friend request accepted"})
}

func (h *FriendHandler) RejectRequest(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	userID, ok := h.resolveUser(ctx, w)
	if !ok {
		return
	}

	requesterID, ok := parseFriendID(w, mux.Vars(r)["friendID"])
	if !ok {
		return
	}

	if err := h.friends.RejectRequest(ctx, userID, requesterID); err != nil {
		respondServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Friend request rejected"})
}

func (h *FriendHandler) CancelRequest(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	userID, ok := h.resolveUser(ctx, w)
	if !ok {
		return
	}

	toUserID, ok := parseFriendID(w, mux.Vars(r)["friendID"])
	if !ok {
		return
	}

	if err := h.friends.CancelRequest(ctx, userID, toUserID); err != nil {
		respondServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Friend request cancelled"})
}

func (h *FriendHandler) RemoveFriend(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	userID, ok := h.resolveUser(ctx, w)
	if !ok {
		return
	}

	friendID, ok := parseFriendID(w, mux.Vars(r)["friendID"])
	if !ok {
		return
	}

	if err := h.friends.RemoveFriend(ctx, userID, friendID); err != nil {
		respondServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Friend removed"})
}

func (h *FriendHandler) Compare(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	userID, ok := h.resolveUser(ctx, w)
	if !ok {
		return
	}

	period := leaderboard.Period(r.URL.Query().Get("period"))
	if period == "" {
		period = leaderboard.PeriodWeekly
	}

	board, err := h.friends.Compare(ctx, userID, period)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, board)
}

func (h *FriendHandler) GlobalLeaderboard(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	userID, ok := h.resolveUser(ctx, w)
	if !ok {
		return
	}

	city := r.URL.Query().Get("city")

	board, err := h.boards.GlobalLeaderboard(ctx, userID, city, 50)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, board)
}
