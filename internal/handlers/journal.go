package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"soul_garden/internal/storage"
	"soul_garden/internal/usecases"
	"strconv"
)

const (
	defaultMemoriesLimit = 10
	maxMemoriesLimit     = 100
)

type JournalHandler struct {
	garden *usecases.Garden
	auth   *AuthHandler
}

func NewJournalHandler(g *usecases.Garden, a *AuthHandler) *JournalHandler {
	return &JournalHandler{garden: g, auth: a}
}

// POST /api/users/{id}/memories
func (jh *JournalHandler) HandleCreateMemory(w http.ResponseWriter, r *http.Request) {
	op := "handlers.HandleCreateMemory"

	userID, ok := userIDFromPath(r)
	if !ok {
		http.Error(w, "Bad user id.", http.StatusBadRequest)
		return
	}
	if err := jh.auth.Authorize(r, userID); err != nil {
		http.Error(w, "Unauthorized.", http.StatusUnauthorized)
		log.Println("Unauthorized memory create for ", userID, " in ", op, ": ", err)
		return
	}

	var input struct {
		Mood string `json:"mood"`
		Text string `json:"text"`
	}
	r.Body = http.MaxBytesReader(w, r.Body, 64<<10)
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		http.Error(w, "Couldnt decode json. Wrong request.", http.StatusBadRequest)
		log.Println("Couldnt decode json. Wrong request ", " in ", op)
		return
	}

	res, err := jh.garden.LogText(r.Context(), userID, input.Mood, input.Text)
	if errors.Is(err, usecases.ErrEmptyMemory) {
		http.Error(w, "Memory text is empty.", http.StatusUnprocessableEntity)
		return
	}
	if err != nil {
		http.Error(w, "Couldnt plant memory.", http.StatusInternalServerError)
		log.Println("Couldnt plant memory with error ", err, " in ", op)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"status": "created",
		"data":   res,
	})
}

// GET /api/users/{id}/memories?limit=
func (jh *JournalHandler) HandleGetMemories(w http.ResponseWriter, r *http.Request) {
	op := "handlers.HandleGetMemories"

	userID, ok := userIDFromPath(r)
	if !ok {
		http.Error(w, "Bad user id.", http.StatusBadRequest)
		return
	}
	if err := jh.auth.Authorize(r, userID); err != nil {
		http.Error(w, "Unauthorized.", http.StatusUnauthorized)
		return
	}

	limit := parseLimit(r, defaultMemoriesLimit, maxMemoriesLimit)

	memories, err := jh.garden.Recent(r.Context(), userID, limit)
	if err != nil {
		http.Error(w, "Couldnt get memories.", http.StatusInternalServerError)
		log.Println("Couldnt get memories with error ", err, " in ", op)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "success",
		"data":   memories,
	})
}

// GET /api/users/{id}
func (jh *JournalHandler) HandleGetStats(w http.ResponseWriter, r *http.Request) {
	op := "handlers.HandleGetStats"

	userID, ok := userIDFromPath(r)
	if !ok {
		http.Error(w, "Bad user id.", http.StatusBadRequest)
		return
	}
	if err := jh.auth.Authorize(r, userID); err != nil {
		http.Error(w, "Unauthorized.", http.StatusUnauthorized)
		return
	}

	user, rank, err := jh.garden.Stats(r.Context(), userID)
	if errors.Is(err, storage.ErrNotFound) {
		http.Error(w, "Garden not found.", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "Couldnt get stats.", http.StatusInternalServerError)
		log.Println("Couldnt get stats with error ", err, " in ", op)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "success",
		"data": map[string]interface{}{
			"user": user,
			"rank": rank,
		},
	})
}

func parseLimit(r *http.Request, def, max int) int {
	limit := def
	if l, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && l > 0 {
		limit = l
	}
	if limit > max {
		limit = max
	}
	return limit
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Println("Failed to encode response with error: ", err)
	}
}
