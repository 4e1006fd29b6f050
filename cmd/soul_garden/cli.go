package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"soul_garden/internal/config"
	"soul_garden/internal/models"
	"soul_garden/internal/storage"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	colorLeaf  = lipgloss.Color("#7fb77e")
	colorPetal = lipgloss.Color("#f4a7b9")
	colorSoil  = lipgloss.Color("#8c7a6b")

	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(colorLeaf)
	rankStyle  = lipgloss.NewStyle().Bold(true).Foreground(colorPetal).Width(4)
	nameStyle  = lipgloss.NewStyle().Width(24)
	numStyle   = lipgloss.NewStyle().Width(8).Align(lipgloss.Right)
	dimStyle   = lipgloss.NewStyle().Foreground(colorSoil)
	boxStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorLeaf).
			Padding(0, 1)
)

func cmdLeaderboard(cfg *config.Config) {
	limit := 10
	if len(os.Args) > 2 {
		n, err := strconv.Atoi(os.Args[2])
		if err != nil || n <= 0 {
			fatal(fmt.Errorf("invalid limit %q", os.Args[2]))
		}
		limit = n
	}

	ctx := context.Background()
	a, err := newApp(ctx, cfg)
	if err != nil {
		fatal(err)
	}
	defer a.store.Close()

	entries, err := a.garden.Leaderboard(ctx, limit)
	if err != nil {
		fatal(err)
	}
	renderLeaderboard(os.Stdout, entries)
}

func cmdStats(cfg *config.Config) {
	if len(os.Args) < 3 {
		fmt.Fprintln(os.Stderr, "usage: soul_garden stats <user_id>")
		os.Exit(1)
	}
	userID, err := strconv.ParseInt(os.Args[2], 10, 64)
	if err != nil {
		fatal(fmt.Errorf("invalid user id %q", os.Args[2]))
	}

	ctx := context.Background()
	a, err := newApp(ctx, cfg)
	if err != nil {
		fatal(err)
	}
	defer a.store.Close()

	dash, err := a.garden.Dashboard(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		fatal(fmt.Errorf("no garden for user %d", userID))
	}
	if err != nil {
		fatal(err)
	}
	renderDashboard(os.Stdout, dash, 5)
}

func cmdFixVoicePaths(cfg *config.Config) {
	prefix := ""
	if len(os.Args) > 2 {
		prefix = os.Args[2]
	}

	ctx := context.Background()
	a, err := newApp(ctx, cfg)
	if err != nil {
		fatal(err)
	}
	defer a.store.Close()

	n, err := a.garden.FixVoicePaths(ctx, prefix)
	if err != nil {
		fatal(err)
	}
	fmt.Println(titleStyle.Render(fmt.Sprintf("✓ %d voice paths fixed", n)))
}

func renderLeaderboard(w io.Writer, entries []models.LeaderboardEntry) {
	fmt.Fprintln(w, titleStyle.Render("🏆 Top gardeners"))
	if len(entries) == 0 {
		fmt.Fprintln(w, dimStyle.Render("The garden is still empty."))
		return
	}

	header := lipgloss.JoinHorizontal(lipgloss.Top,
		rankStyle.Render("#"), nameStyle.Render("Gardener"), numStyle.Render("Points"), numStyle.Render("Streak"))
	fmt.Fprintln(w, dimStyle.Render(header))

	for _, e := range entries {
		fmt.Fprintln(w, lipgloss.JoinHorizontal(lipgloss.Top,
			rankStyle.Render(strconv.Itoa(e.Position)),
			nameStyle.Render(truncate(e.Username, 22)),
			numStyle.Render(strconv.Itoa(e.Points)),
			numStyle.Render(strconv.Itoa(e.Streak)),
		))
	}
}

func renderDashboard(w io.Writer, d models.Dashboard, recent int) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s\n", titleStyle.Render("🌱 "+d.User.DisplayName()))
	fmt.Fprintf(&sb, "🌼 %d points  🔥 %d day streak  🏆 #%d", d.User.Points, d.User.Streak, d.Rank)

	if len(d.Memories) > 0 {
		sb.WriteString("\n")
	}
	for i, m := range d.Memories {
		if i == recent {
			break
		}
		text := truncate(m.Text, 48)
		if m.IsVoice() {
			text = "voice note"
		}
		fmt.Fprintf(&sb, "\n%s %s %s", dimStyle.Render(m.CreatedAt.UTC().Format("2006-01-02")), m.Mood, text)
	}

	fmt.Fprintln(w, boxStyle.Render(sb.String()))
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "soul_garden: %s\n", err)
	os.Exit(1)
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}
