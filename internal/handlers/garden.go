package handlers

import (
	"bytes"
	"embed"
	"errors"
	"html/template"
	"log"
	"net/http"
	"soul_garden/internal/models"
	"soul_garden/internal/realtime"
	"soul_garden/internal/storage"
	"soul_garden/internal/usecases"
	"time"
)

const (
	defaultBoardLimit = 10
	maxBoardLimit     = 100
)

//go:embed templates/*.html
var templateFS embed.FS

var flowers = map[string]string{
	"😊": "🌻",
	"😌": "🌷",
	"😢": "🌧",
	"😠": "🌵",
	"😴": "🌙",
	"🤩": "🌺",
	"🎧": "🎵",
}

var pages = template.Must(template.New("").Funcs(template.FuncMap{
	"date": func(t time.Time) string { return t.UTC().Format("Jan 2, 2006 15:04") },
	"flower": func(mood string) string {
		if f, ok := flowers[mood]; ok {
			return f
		}
		return "🌸"
	},
}).ParseFS(templateFS, "templates/*.html"))

type GardenHandler struct {
	garden *usecases.Garden
	auth   *AuthHandler
	hub    *realtime.Hub
}

func NewGardenHandler(g *usecases.Garden, a *AuthHandler, hub *realtime.Hub) *GardenHandler {
	return &GardenHandler{garden: g, auth: a, hub: hub}
}

// GET /dashboard/{id}
func (gh *GardenHandler) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	op := "handlers.HandleDashboard"

	userID, ok := userIDFromPath(r)
	if !ok {
		http.Error(w, "Bad user id.", http.StatusBadRequest)
		return
	}
	if err := gh.auth.Authorize(r, userID); err != nil {
		http.Error(w, "This garden link has expired. Open it again from the bot.", http.StatusUnauthorized)
		return
	}

	dash, err := gh.garden.Dashboard(r.Context(), userID)
	if errors.Is(err, storage.ErrNotFound) {
		http.Error(w, "Garden not found. Send /start to the bot first.", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "Couldnt load garden.", http.StatusInternalServerError)
		log.Printf("%s: %v", op, err)
		return
	}

	render(w, "dashboard.html", dash)
}

// GET /leaderboard
func (gh *GardenHandler) HandleLeaderboardPage(w http.ResponseWriter, r *http.Request) {
	entries, err := gh.garden.Leaderboard(r.Context(), parseLimit(r, defaultBoardLimit, maxBoardLimit))
	if err != nil {
		http.Error(w, "Couldnt load leaderboard.", http.StatusInternalServerError)
		log.Printf("handlers.HandleLeaderboardPage: %v", err)
		return
	}
	render(w, "leaderboard.html", entries)
}

// GET /api/leaderboard?limit=
func (gh *GardenHandler) HandleLeaderboard(w http.ResponseWriter, r *http.Request) {
	entries, err := gh.garden.Leaderboard(r.Context(), parseLimit(r, defaultBoardLimit, maxBoardLimit))
	if err != nil {
		http.Error(w, "Couldnt load leaderboard.", http.StatusInternalServerError)
		log.Printf("handlers.HandleLeaderboard: %v", err)
		return
	}
	if entries == nil {
		entries = []models.LeaderboardEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "success",
		"data":   entries,
	})
}

// GET /ws/leaderboard sends the current board, then every update.
func (gh *GardenHandler) HandleLeaderboardWS(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	gh.hub.ServeWS(w, r, func() any {
		entries, err := gh.garden.Leaderboard(ctx, defaultBoardLimit)
		if err != nil {
			log.Printf("handlers.HandleLeaderboardWS: %v", err)
			return nil
		}
		return map[string]any{"kind": "leaderboard.snapshot", "leaderboard": entries}
	})
}

func render(w http.ResponseWriter, name string, data any) {
	var buf bytes.Buffer
	if err := pages.ExecuteTemplate(&buf, name, data); err != nil {
		http.Error(w, "Couldnt render page.", http.StatusInternalServerError)
		log.Printf("handlers.render: %s: %v", name, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}
