package handlers

import (
	"errors"
	"log"
	"net/http"
	"soul_garden/internal/storage"
	"soul_garden/internal/usecases"
)

type ChatHandler struct {
	garden *usecases.Garden
	auth   *AuthHandler
}

func NewChatHandler(g *usecases.Garden, a *AuthHandler) *ChatHandler {
	return &ChatHandler{garden: g, auth: a}
}

// POST /api/users/{id}/insight
func (ch *ChatHandler) HandleInsight(w http.ResponseWriter, r *http.Request) {
	op := "handlers.HandleInsight"

	userID, ok := userIDFromPath(r)
	if !ok {
		http.Error(w, "Bad user id.", http.StatusBadRequest)
		return
	}
	if err := ch.auth.Authorize(r, userID); err != nil {
		http.Error(w, "Unauthorized.", http.StatusUnauthorized)
		return
	}

	insight, err := ch.garden.Insight(r.Context(), userID)
	switch {
	case errors.Is(err, usecases.ErrInsightDisabled):
		http.Error(w, "Insights are not configured.", http.StatusServiceUnavailable)
		return
	case errors.Is(err, usecases.ErrNoMemories), errors.Is(err, storage.ErrNotFound):
		http.Error(w, "Plant a memory first.", http.StatusNotFound)
		return
	case err != nil:
		log.Printf("%s: AI error: %v", op, err)
		http.Error(w, "AI service error", http.StatusBadGateway)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "success",
		"data":   insight,
	})
}
