package usecases

import (
	"soul_garden/internal/models"
	"strings"
)

const SEPARATOR = "|||GARDEN|||"

// ParseInsight splits an AI reply into the text shown to the user and the
// optional Mood/Tip lines after SEPARATOR.
func ParseInsight(response string) models.Insight {
	if !strings.Contains(response, SEPARATOR) {
		return models.Insight{Answer: cleanAnswer(response)}
	}

	parts := strings.SplitN(response, SEPARATOR, 3)

	insight := models.Insight{Answer: cleanAnswer(parts[0])}
	parseGardenLines(parts[1], &insight)

	return insight
}

func cleanAnswer(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "Answer:")
	return strings.TrimSpace(text)
}

func parseGardenLines(text string, insight *models.Insight) {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		switch {
		case hasPrefixFold(line, "Mood:"):
			insight.Mood = strings.TrimSpace(line[len("Mood:"):])
		case hasPrefixFold(line, "Tip:"):
			insight.Tip = strings.TrimSpace(line[len("Tip:"):])
		}
	}
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}
