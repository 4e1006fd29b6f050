package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"soul_garden/internal/auth"
	"soul_garden/internal/models"
	"soul_garden/internal/storage"
	"soul_garden/internal/usecases"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// maxVoiceBytes is the Bot API download cap.
const maxVoiceBytes = 20 << 20

// API is the part of *tgbotapi.BotAPI the bot talks through.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
}

type Bot struct {
	api       API
	garden    *usecases.Garden
	tokens    *auth.Tokens
	publicURL string
	steps     *Steps
	client    *http.Client
}

type Option func(*Bot)

func WithSteps(s *Steps) Option {
	return func(b *Bot) { b.steps = s }
}

func WithHTTPClient(c *http.Client) Option {
	return func(b *Bot) { b.client = c }
}

func New(api API, garden *usecases.Garden, tokens *auth.Tokens, publicURL string, opts ...Option) *Bot {
	b := &Bot{
		api:       api,
		garden:    garden,
		tokens:    tokens,
		publicURL: strings.TrimRight(publicURL, "/"),
		client:    &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.steps == nil {
		b.steps = NewSteps(DefaultStepTTL, garden.Now)
	}
	return b
}

func (b *Bot) SetCommands() error {
	if _, err := b.api.Request(tgbotapi.NewSetMyCommands(commands...)); err != nil {
		return fmt.Errorf("bot.SetCommands: %w", err)
	}
	return nil
}

func (b *Bot) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	switch {
	case upd.CallbackQuery != nil:
		b.handleCallback(ctx, upd.CallbackQuery)
	case upd.Message != nil:
		b.handleMessage(ctx, upd.Message)
	}
}

// ─── Messages ────────────────────────────────────────────────────────────────

func (b *Bot) handleMessage(ctx context.Context, m *tgbotapi.Message) {
	if m.From == nil || m.Chat == nil {
		return
	}
	chatID := m.Chat.ID

	if m.IsCommand() {
		b.steps.Clear(chatID)
		b.handleCommand(ctx, m)
		return
	}

	if m.Voice != nil {
		mood := ""
		if p, ok := b.steps.Get(chatID); ok && p.step == stepText {
			mood = p.mood
		}
		// A failed note keeps the conversation so the mood survives a retry.
		if b.plantVoice(ctx, chatID, m.From, mood, m.Voice) {
			b.steps.Clear(chatID)
		}
		return
	}

	p, ok := b.steps.Get(chatID)
	if !ok {
		b.send(chatID, "🌱 Tap <b>🌼 Add Memory</b> to plant today's memory, or send me a voice note.", b.mainMenu(m.From.ID))
		return
	}

	text := strings.TrimSpace(m.Text)
	switch p.step {
	case stepMood:
		if text == "" {
			b.send(chatID, "Pick a mood above or type it in a word.", nil)
			return
		}
		b.askForText(chatID, text)
	case stepText:
		b.plantText(ctx, chatID, m.From, p.mood, text)
	}
}

func (b *Bot) handleCommand(ctx context.Context, m *tgbotapi.Message) {
	op := "bot.handleCommand"

	chatID := m.Chat.ID
	userID := m.From.ID

	switch m.Command() {
	case "start":
		user, err := b.garden.Register(ctx, userID, m.From.FirstName)
		if err != nil {
			log.Printf("%s: register %d: %v", op, userID, err)
			b.send(chatID, "🥀 Something went wrong, please try again later.", nil)
			return
		}
		welcome := fmt.Sprintf("🌱 <b>Welcome to SoulGarden, %s!</b>\n\n"+
			"Here, you plant memories daily and watch your garden grow.\n\n"+
			"Log your mood, record your thoughts, and earn 🌼 points to evolve your soul garden.",
			escape(user.DisplayName()))
		b.send(chatID, welcome, b.mainMenu(userID))

	case "about":
		b.send(chatID, aboutText, nil)

	case "help":
		b.send(chatID, helpText, nil)

	case "stats":
		b.sendStats(ctx, chatID, userID)

	case "memories":
		b.sendMemories(ctx, chatID, userID)

	case "leaderboard":
		b.sendLeaderboard(ctx, chatID)

	case "insight":
		b.sendInsight(ctx, chatID, userID)

	case "cancel":
		// handleMessage already cleared the step.
		b.send(chatID, "🍂 Okay, nothing was planted.", b.mainMenu(userID))

	default:
		b.send(chatID, "I don't know that one. Try /help.", nil)
	}
}

// ─── Callbacks ───────────────────────────────────────────────────────────────

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if cb.From == nil {
		return
	}
	if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		log.Printf("bot.handleCallback: answer %s: %v", cb.ID, err)
	}

	chatID := cb.From.ID
	if cb.Message != nil && cb.Message.Chat != nil {
		chatID = cb.Message.Chat.ID
	}

	switch {
	case cb.Data == cbLogMemory:
		b.steps.Set(chatID, stepMood, "")
		b.send(chatID, "📝 What's your memory today? Start with your mood: tap one or type it (happy, sad, angry, ...).", moodKeyboard())

	case cb.Data == cbAddVoice:
		b.send(chatID, "🎤 Send a voice note to add a memory.", nil)

	case cb.Data == cbAbout:
		b.send(chatID, aboutText, nil)

	case strings.HasPrefix(cb.Data, cbMood):
		mood := trimMood(cb.Data)
		if mood == "" {
			return
		}
		b.askForText(chatID, mood)
	}
}

func (b *Bot) askForText(chatID int64, mood string) {
	b.steps.Set(chatID, stepText, mood)
	b.send(chatID, fmt.Sprintf("💬 Great! Now tell me your memory for today under that mood '%s'. A voice note works too.", escape(mood)), nil)
}

// ─── Planting ────────────────────────────────────────────────────────────────

func (b *Bot) plantText(ctx context.Context, chatID int64, from *tgbotapi.User, mood, text string) {
	op := "bot.plantText"

	if err := b.garden.EnsureUser(ctx, from.ID, from.FirstName); err != nil {
		log.Printf("%s: ensure user %d: %v", op, from.ID, err)
	}

	res, err := b.garden.LogText(ctx, from.ID, mood, text)
	if errors.Is(err, usecases.ErrEmptyMemory) {
		b.send(chatID, "✏️ I need a few words to plant. What happened today?", nil)
		return
	}
	if err != nil {
		log.Printf("%s: %v", op, err)
		b.send(chatID, "🥀 I couldn't plant that memory, please try again.", nil)
		return
	}

	b.steps.Clear(chatID)
	b.send(chatID, plantedText("🌸 Memory logged successfully! Keep growing your SoulGarden.", res), b.mainMenu(from.ID))
}

func (b *Bot) plantVoice(ctx context.Context, chatID int64, from *tgbotapi.User, mood string, v *tgbotapi.Voice) bool {
	op := "bot.plantVoice"

	if v.FileSize > maxVoiceBytes {
		b.send(chatID, "🎧 That voice note is too long for me, try a shorter one.", nil)
		return false
	}

	body, err := b.download(ctx, v.FileID)
	if err != nil {
		log.Printf("%s: download %s: %v", op, v.FileID, err)
		b.send(chatID, "🥀 I couldn't fetch that voice note, please send it again.", nil)
		return false
	}
	defer body.Close()

	if err := b.garden.EnsureUser(ctx, from.ID, from.FirstName); err != nil {
		log.Printf("%s: ensure user %d: %v", op, from.ID, err)
	}

	contentType := v.MimeType
	if contentType == "" {
		contentType = "audio/ogg"
	}
	res, err := b.garden.LogVoice(ctx, from.ID, mood, io.LimitReader(body, maxVoiceBytes), contentType)
	if err != nil {
		log.Printf("%s: %v", op, err)
		b.send(chatID, "🥀 I couldn't save that voice note, please try again.", nil)
		return false
	}

	b.send(chatID, plantedText("🎧 Voice memory saved to your garden.", res), b.mainMenu(from.ID))
	return true
}

func (b *Bot) download(ctx context.Context, fileID string) (io.ReadCloser, error) {
	link, err := b.api.GetFileDirectURL(fileID)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return nil, err
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("file http %d", resp.StatusCode)
	}
	return resp.Body, nil
}

func plantedText(head string, res models.LogResult) string {
	var sb strings.Builder
	sb.WriteString(head)
	if res.Outcome.Awarded > 0 {
		fmt.Fprintf(&sb, "\n\n+%d 🌼", res.Outcome.Awarded)
	}
	if res.Outcome.Bonus > 0 {
		fmt.Fprintf(&sb, "\n🎉 %d-day streak! Bonus +%d 🌼", res.User.Streak, res.Outcome.Bonus)
	}
	fmt.Fprintf(&sb, "\n🔥 Streak: %d %s · 🌼 Points: %d",
		res.User.Streak, plural(res.User.Streak, "day", "days"), res.User.Points)
	return sb.String()
}

// ─── Reading ─────────────────────────────────────────────────────────────────

func (b *Bot) sendStats(ctx context.Context, chatID, userID int64) {
	user, rank, err := b.garden.Stats(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		b.send(chatID, "🌱 Your garden is empty so far. Plant your first memory!", b.mainMenu(userID))
		return
	}
	if err != nil {
		log.Printf("bot.sendStats: %v", err)
		b.send(chatID, "🥀 Something went wrong, please try again later.", nil)
		return
	}

	b.send(chatID, fmt.Sprintf("🌼 Points: <b>%d</b>\n🔥 Streak: <b>%d</b> %s\n🏆 Rank: <b>#%d</b>",
		user.Points, user.Streak, plural(user.Streak, "day", "days"), rank), b.mainMenu(userID))
}

func (b *Bot) sendMemories(ctx context.Context, chatID, userID int64) {
	memories, err := b.garden.Recent(ctx, userID, 5)
	if err != nil {
		log.Printf("bot.sendMemories: %v", err)
		b.send(chatID, "🥀 Something went wrong, please try again later.", nil)
		return
	}
	if len(memories) == 0 {
		b.send(chatID, "🌱 No memories yet. Tap 🌼 Add Memory to plant one.", b.mainMenu(userID))
		return
	}

	var sb strings.Builder
	sb.WriteString("🌷 <b>Your latest memories</b>\n")
	for _, m := range memories {
		text := escape(m.Text)
		if m.IsVoice() {
			text = "🎧 voice note"
		}
		fmt.Fprintf(&sb, "\n%s %s · %s", m.CreatedAt.UTC().Format("Jan 2"), escape(m.Mood), text)
	}
	b.send(chatID, sb.String(), b.mainMenu(userID))
}

func (b *Bot) sendLeaderboard(ctx context.Context, chatID int64) {
	entries, err := b.garden.Leaderboard(ctx, 10)
	if err != nil {
		log.Printf("bot.sendLeaderboard: %v", err)
		b.send(chatID, "🥀 Something went wrong, please try again later.", nil)
		return
	}
	if len(entries) == 0 {
		b.send(chatID, "🌱 The garden is still empty. Be the first to plant!", nil)
		return
	}

	var sb strings.Builder
	sb.WriteString("🏆 <b>Top gardeners</b>\n")
	for _, e := range entries {
		fmt.Fprintf(&sb, "\n%d. %s · %d 🌼 · %d 🔥", e.Position, escape(e.Username), e.Points, e.Streak)
	}
	b.send(chatID, sb.String(), nil)
}

func (b *Bot) sendInsight(ctx context.Context, chatID, userID int64) {
	ins, err := b.garden.Insight(ctx, userID)
	switch {
	case errors.Is(err, usecases.ErrInsightDisabled):
		b.send(chatID, "🔮 Insights are not available right now.", nil)
		return
	case errors.Is(err, usecases.ErrNoMemories), errors.Is(err, storage.ErrNotFound):
		b.send(chatID, "🌱 Plant a few memories first, then I can read your garden.", b.mainMenu(userID))
		return
	case err != nil:
		log.Printf("bot.sendInsight: %v", err)
		b.send(chatID, "🥀 I couldn't read your garden right now, please try later.", nil)
		return
	}

	var sb strings.Builder
	sb.WriteString("🔮 ")
	sb.WriteString(escape(ins.Answer))
	if ins.Mood != "" {
		fmt.Fprintf(&sb, "\n\n🌤 Mood: <b>%s</b>", escape(ins.Mood))
	}
	if ins.Tip != "" {
		fmt.Fprintf(&sb, "\n🌱 Tip: %s", escape(ins.Tip))
	}
	b.send(chatID, sb.String(), nil)
}

// ─── Reminders ───────────────────────────────────────────────────────────────

// Notify nudges a user whose streak ends tonight. Private chat ids equal
// user ids.
func (b *Bot) Notify(ctx context.Context, u models.User) error {
	text := fmt.Sprintf("🌙 Your %d-day streak is waiting, %s. Plant a memory today to keep it growing!",
		u.Streak, escape(u.DisplayName()))

	msg := tgbotapi.NewMessage(u.ID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = b.mainMenu(u.ID)
	if _, err := b.api.Send(msg); err != nil {
		return fmt.Errorf("bot.Notify: %d: %w", u.ID, err)
	}
	return nil
}

func (b *Bot) send(chatID int64, text string, markup any) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	if markup != nil {
		msg.ReplyMarkup = markup
	}
	if _, err := b.api.Send(msg); err != nil {
		log.Printf("bot.send: chat %d: %v", chatID, err)
	}
}
