package bot

import (
	"fmt"
	"log"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	cbLogMemory = "log_memory"
	cbAddVoice  = "add_voice"
	cbAbout     = "about"
	cbMood      = "mood:"
)

var moods = []string{"😊", "😌", "😢", "😠", "😴", "🤩"}

const aboutText = "🌿 <b>SoulGarden</b> is your emotional memory garden.\n" +
	"Each day you log your mood, your garden grows with flowers.\n" +
	"Earn 🌼 points for consistency and bloom your own soul forest!"

const helpText = "🌱 <b>What I understand</b>\n" +
	"/start – open the garden menu\n" +
	"/stats – your points, streak and rank\n" +
	"/memories – your latest memories\n" +
	"/leaderboard – the top gardeners\n" +
	"/insight – a gentle reading of your recent moods\n" +
	"/cancel – forget the memory you started\n" +
	"/about – what SoulGarden is\n\n" +
	"You can also just send a voice note at any time."

var commands = []tgbotapi.BotCommand{
	{Command: "start", Description: "Open the garden menu"},
	{Command: "stats", Description: "Points, streak and rank"},
	{Command: "memories", Description: "Latest memories"},
	{Command: "leaderboard", Description: "Top gardeners"},
	{Command: "insight", Description: "Reading of recent moods"},
	{Command: "cancel", Description: "Forget the unfinished memory"},
	{Command: "help", Description: "What the bot understands"},
	{Command: "about", Description: "About SoulGarden"},
}

// mainMenu mirrors the four garden actions. The garden button is only shown
// when a public URL is configured, since Telegram rejects relative links.
func (b *Bot) mainMenu(userID int64) tgbotapi.InlineKeyboardMarkup {
	first := tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("🌼 Add Memory", cbLogMemory),
	)
	if link := b.dashboardLink(userID); link != "" {
		first = append(first, tgbotapi.NewInlineKeyboardButtonURL("📈 View Garden", link))
	}

	return tgbotapi.NewInlineKeyboardMarkup(
		first,
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🎧 Add Voice", cbAddVoice),
			tgbotapi.NewInlineKeyboardButtonData("🧠 About", cbAbout),
		),
	)
}

func moodKeyboard() tgbotapi.InlineKeyboardMarkup {
	row := make([]tgbotapi.InlineKeyboardButton, 0, len(moods))
	for _, m := range moods {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(m, cbMood+m))
	}
	return tgbotapi.NewInlineKeyboardMarkup(row)
}

func (b *Bot) dashboardLink(userID int64) string {
	if b.publicURL == "" {
		return ""
	}
	link := fmt.Sprintf("%s/dashboard/%d", b.publicURL, userID)
	if b.tokens == nil || !b.tokens.Enabled() {
		return link
	}

	token, err := b.tokens.Issue(userID)
	if err != nil {
		log.Printf("bot.dashboardLink: issue token: %v", err)
		return ""
	}
	return link + "?t=" + token
}

func escape(s string) string {
	return tgbotapi.EscapeText(tgbotapi.ModeHTML, s)
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

func trimMood(data string) string {
	return strings.TrimSpace(strings.TrimPrefix(data, cbMood))
}
