package handlers

import (
	"net/http"
	"soul_garden/internal/auth"
	"soul_garden/internal/realtime"
	"soul_garden/internal/usecases"
)

type Deps struct {
	Garden     *usecases.Garden
	DB         Pinger
	Tokens     *auth.Tokens
	Hub        *realtime.Hub
	AdminToken string

	// Media serves local voice clips; nil when clips live in S3.
	Media http.Handler

	// WebhookPath is "/<bot token>"; empty disables the webhook route.
	WebhookPath string
	Webhook     http.Handler
}

func NewRouter(d Deps) *http.ServeMux {
	authHandler := NewAuthHandler(d.Tokens, d.AdminToken)
	journalHandler := NewJournalHandler(d.Garden, authHandler)
	chatHandler := NewChatHandler(d.Garden, authHandler)
	gardenHandler := NewGardenHandler(d.Garden, authHandler, d.Hub)
	systemHandler := NewSystemHandler(d.DB, d.Garden)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", systemHandler.HandleIndex)
	mux.HandleFunc("GET /healthz", systemHandler.HandleHealth)

	mux.HandleFunc("GET /dashboard/{id}", gardenHandler.HandleDashboard)
	mux.HandleFunc("GET /leaderboard", gardenHandler.HandleLeaderboardPage)
	mux.HandleFunc("GET /api/leaderboard", gardenHandler.HandleLeaderboard)
	mux.HandleFunc("GET /ws/leaderboard", gardenHandler.HandleLeaderboardWS)

	mux.HandleFunc("GET /api/users/{id}", journalHandler.HandleGetStats)
	mux.HandleFunc("GET /api/users/{id}/memories", journalHandler.HandleGetMemories)
	mux.HandleFunc("POST /api/users/{id}/memories", journalHandler.HandleCreateMemory)
	mux.HandleFunc("POST /api/users/{id}/insight", chatHandler.HandleInsight)

	mux.HandleFunc("POST /admin/fix-voice-paths", authHandler.RequireAdmin(systemHandler.HandleFixVoicePaths))

	if d.Media != nil {
		mux.Handle("GET /media/", d.Media)
	}
	if d.WebhookPath != "" && d.Webhook != nil {
		mux.Handle("POST "+d.WebhookPath, d.Webhook)
	}

	return mux
}
