package usecases

import (
	"fmt"
	"soul_garden/internal/models"
	"strings"
)

const PROMPT = `You are the gardener of SoulGarden, a gentle journaling companion.
Read the user's recent memories (newest first) and answer in two or three warm sentences:
notice the emotional pattern and encourage them to keep planting memories.
After your answer write the line ` + SEPARATOR + ` and then exactly two lines:
Mood: <one word describing the overall mood>
Tip: <one short, concrete suggestion for tomorrow>`

// BuildInsightPrompt lists memories oldest-last as they come from storage.
func BuildInsightPrompt(username string, memories []models.Memory) string {
	var b strings.Builder
	b.WriteString(PROMPT)
	b.WriteString("\n\nGardener: ")
	b.WriteString(username)
	b.WriteString("\nMemories:\n")

	for _, m := range memories {
		text := m.Text
		if m.IsVoice() && text == "" {
			text = "(voice note)"
		}
		fmt.Fprintf(&b, "- [%s] %s %s\n", m.CreatedAt.UTC().Format("2006-01-02"), m.Mood, text)
	}

	return b.String()
}
