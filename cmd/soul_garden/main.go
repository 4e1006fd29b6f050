// SoulGarden: plant a memory a day and watch your garden grow.
//
// Usage:
//
//	soul_garden serve                    Run the bot, web dashboard and reminders
//	soul_garden leaderboard [N]          Print the top N gardeners
//	soul_garden stats <user_id>          Print one gardener's stats
//	soul_garden fix-voice-paths [prefix] Strip a legacy prefix from voice paths
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"soul_garden/internal/ai"
	"soul_garden/internal/auth"
	"soul_garden/internal/bot"
	"soul_garden/internal/config"
	"soul_garden/internal/handlers"
	"soul_garden/internal/realtime"
	"soul_garden/internal/reminder"
	"soul_garden/internal/storage"
	"soul_garden/internal/usecases"
	"soul_garden/internal/voice"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const version = "0.3.0"

func main() {
	cmd := "serve"
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}

	cfg := config.New()

	switch cmd {
	case "serve":
		cmdServe(cfg)
	case "leaderboard":
		cmdLeaderboard(cfg)
	case "stats":
		cmdStats(cfg)
	case "fix-voice-paths":
		cmdFixVoicePaths(cfg)
	case "version", "--version", "-v":
		fmt.Printf("soul_garden %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

type app struct {
	store  storage.Storage
	voices voice.Store
	media  http.Handler
	hub    *realtime.Hub
	garden *usecases.Garden
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	store, err := storage.Open(ctx, cfg.StorageDriver, cfg.StorageDSN())
	if err != nil {
		return nil, err
	}

	a := &app{store: store, hub: realtime.NewHub()}

	if cfg.S3Bucket != "" {
		s3Store, err := voice.NewS3Store(ctx, cfg.S3Region, cfg.S3Bucket, cfg.S3PublicURL)
		if err != nil {
			store.Close()
			return nil, err
		}
		a.voices = s3Store
	} else {
		local, err := voice.NewLocalStore(cfg.VoiceDir, "")
		if err != nil {
			store.Close()
			return nil, err
		}
		a.voices = local
		a.media = local.Handler()
	}

	opts := []usecases.Option{usecases.WithBroadcaster(a.hub)}
	if cfg.GigaChatKey != "" {
		var aiOpts []ai.Option
		if cfg.GigaChatInsecureTLS {
			aiOpts = append(aiOpts, ai.WithInsecureTLS())
		}
		opts = append(opts, usecases.WithGenerator(ai.NewGigaChatClient(cfg.GigaChatKey, aiOpts...)))
	}
	a.garden = usecases.NewGarden(store, a.voices, cfg.StreakRules(), opts...)

	return a, nil
}

func cmdServe(cfg *config.Config) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		log.Fatal("unable to start: ", err)
	}
	defer a.store.Close()
	log.Printf("storage %s ready", cfg.StorageDriver)

	tokens := auth.NewTokens(cfg.DashboardSecret, auth.DefaultTTL)
	if !tokens.Enabled() {
		log.Println("DASHBOARD_SECRET is empty, dashboards are public")
	}

	deps := handlers.Deps{
		Garden:     a.garden,
		DB:         a.store,
		Tokens:     tokens,
		Hub:        a.hub,
		AdminToken: cfg.AdminToken,
		Media:      a.media,
	}

	if cfg.BotToken == "" {
		log.Println("BOT_TOKEN is empty, running the web dashboard only")
	} else {
		api, err := tgbotapi.NewBotAPI(cfg.BotToken)
		if err != nil {
			log.Fatal("unable to reach telegram: ", err)
		}
		log.Printf("authorized as @%s", api.Self.UserName)

		b := bot.New(api, a.garden, tokens, cfg.PublicURL)
		if err := b.SetCommands(); err != nil {
			log.Println("couldnt set bot commands: ", err)
		}
		go b.SweepSteps(ctx)
		go reminder.New(a.garden, b, cfg.ReminderHour, nil).Run(ctx)

		if cfg.WebhookURL != "" {
			deps.WebhookPath = "/" + cfg.BotToken
			deps.Webhook = b.Webhook(api.HandleUpdate)
			if err := bot.SetWebhook(api, cfg.WebhookURL+deps.WebhookPath); err != nil {
				log.Fatal("unable to set webhook: ", err)
			}
			log.Println("webhook registered")
		} else {
			go func() {
				if err := b.Poll(ctx, api); err != nil {
					log.Println("polling stopped: ", err)
				}
			}()
			log.Println("long polling started")
		}
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handlers.NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Println("shutdown: ", err)
		}
	}()

	log.Printf("listening on :%s", cfg.Port)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("Fail Listen and Serve with error ", err)
	}
}

func printUsage() {
	fmt.Printf(`soul_garden v%s, a memory garden for Telegram

Usage:
  soul_garden <command> [arguments]

Commands:
  serve                    Run the bot, web dashboard and reminders (default)
  leaderboard [N]          Print the top N gardeners (default: 10)
  stats <user_id>          Print one gardener's points, streak and memories
  fix-voice-paths [prefix] Strip a legacy prefix from voice paths (default: static/)
  version                  Print version
  help                     Show this help

Environment:
  BOT_TOKEN, WEBHOOK_URL, PORT, STORAGE_DRIVER (sqlite|postgres), POSTGRES_DSN,
  SQLITE_DIR, VOICE_DIR, S3_BUCKET, DASHBOARD_SECRET, ADMIN_TOKEN, REMINDER_HOUR,
  GIGACHAT_AUTH_KEY. A .env file in the working directory is loaded first.
`, version)
}
