package bot

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// UpdateParser turns a webhook request into an update; (*tgbotapi.BotAPI).HandleUpdate fits.
type UpdateParser func(r *http.Request) (*tgbotapi.Update, error)

// DecodeUpdate reads the update straight from the request body.
func DecodeUpdate(r *http.Request) (*tgbotapi.Update, error) {
	var upd tgbotapi.Update
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		return nil, err
	}
	return &upd, nil
}

// Webhook answers Telegram with 200 even when handling fails so the update
// is not redelivered forever.
func (b *Bot) Webhook(parse UpdateParser) http.HandlerFunc {
	if parse == nil {
		parse = DecodeUpdate
	}
	return func(w http.ResponseWriter, r *http.Request) {
		upd, err := parse(r)
		if err != nil {
			log.Printf("bot.Webhook: parse update: %v", err)
			http.Error(w, "bad update", http.StatusBadRequest)
			return
		}
		b.HandleUpdate(r.Context(), *upd)
		w.WriteHeader(http.StatusOK)
	}
}

// SetWebhook points Telegram at url, dropping any previous registration.
func SetWebhook(api *tgbotapi.BotAPI, url string) error {
	op := "bot.SetWebhook"

	if _, err := api.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		return fmt.Errorf("%s: delete: %w", op, err)
	}
	wh, err := tgbotapi.NewWebhook(url)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if _, err := api.Request(wh); err != nil {
		return fmt.Errorf("%s: set: %w", op, err)
	}
	return nil
}

// Poll runs long polling until ctx is done.
func (b *Bot) Poll(ctx context.Context, api *tgbotapi.BotAPI) error {
	if _, err := api.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		return fmt.Errorf("bot.Poll: delete webhook: %w", err)
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			api.StopReceivingUpdates()
			return nil
		case upd, ok := <-updates:
			if !ok {
				return nil
			}
			b.HandleUpdate(ctx, upd)
		}
	}
}

// SweepSteps drops expired conversations once a minute until ctx is done.
func (b *Bot) SweepSteps(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := b.steps.Sweep(); n > 0 {
				log.Printf("bot.SweepSteps: dropped %d expired conversations", n)
			}
		}
	}
}
