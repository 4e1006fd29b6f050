package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"soul_garden/internal/usecases"
	"time"
)

// Pinger is satisfied by every storage driver.
type Pinger interface {
	Ping(ctx context.Context) error
}

type SystemHandler struct {
	db     Pinger
	garden *usecases.Garden
}

func NewSystemHandler(db Pinger, g *usecases.Garden) *SystemHandler {
	return &SystemHandler{db: db, garden: g}
}

// GET /{$}
func (sh *SystemHandler) HandleIndex(w http.ResponseWriter, r *http.Request) {
	fmt.Fprint(w, "🌷 SoulGarden Bot is running.")
}

// GET /healthz
func (sh *SystemHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := sh.db.Ping(ctx); err != nil {
		log.Printf("handlers.HandleHealth: ping: %v", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "error", "db": "down"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "db": "up"})
}

// POST /admin/fix-voice-paths {"prefix": "static/"}
func (sh *SystemHandler) HandleFixVoicePaths(w http.ResponseWriter, r *http.Request) {
	op := "handlers.HandleFixVoicePaths"

	var input struct {
		Prefix string `json:"prefix"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
			http.Error(w, "Couldnt decode json. Wrong request.", http.StatusBadRequest)
			return
		}
	}

	n, err := sh.garden.FixVoicePaths(r.Context(), input.Prefix)
	if err != nil {
		http.Error(w, "Couldnt fix voice paths.", http.StatusInternalServerError)
		log.Printf("%s: %v", op, err)
		return
	}
	log.Printf("%s: rewrote %d voice paths", op, n)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "success",
		"updated": n,
	})
}
