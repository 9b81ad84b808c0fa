package main

import (
	"fmt"
	"strings"

	"interview-concierge/internal/admin"
	"interview-concierge/internal/models"
	"interview-concierge/internal/recap"

	"github.com/fatih/color"
)

func setColor(disabled bool) {
	if disabled {
		color.NoColor = true
	}
}

func okMark() string {
	return color.GreenString("✓")
}

func badge(status string) string {
	switch status {
	case string(models.StatusComplete):
		return color.GreenString(status)
	case string(models.StatusAbandoned):
		return color.RedString(status)
	case string(models.StatusInProgress):
		return color.YellowString(status)
	}
	return status
}

func aiText(f models.AIField) string {
	switch f.State {
	case models.AIReady:
		return f.Value
	case models.AIGenerating:
		return color.HiBlackString("generating…")
	}
	return color.HiBlackString("pending")
}

func renderSessions(sessions []admin.Session) string {
	if len(sessions) == 0 {
		return "No sessions found\n"
	}

	var sb strings.Builder
	for _, s := range sessions {
		name := s.Name
		if name == "" {
			name = "(no name)"
		}
		line := fmt.Sprintf("%s  %-24s %-28s %s", s.RecordID, name, s.Email, badge(s.Badge))
		if s.Dimmed {
			line = color.New(color.Faint).Sprint(line)
		}
		sb.WriteString(line)
		if s.StartedAtDisplay != "" {
			sb.WriteString("  " + s.StartedAtDisplay)
		}
		sb.WriteString("\n")

		if s.Brief.State != models.AIPending {
			sb.WriteString("    " + color.CyanString("Brief: ") + aiText(s.Brief) + "\n")
		}
		for _, r := range s.Responses {
			fmt.Fprintf(&sb, "    Q%d  %s  [%s]\n", r.QuestionNumber, aiText(r.Summary), aiText(r.Sentiment))
		}
	}
	return sb.String()
}

func renderRecap(snap *recap.Snapshot) string {
	var sb strings.Builder
	if !snap.Found {
		fmt.Fprintf(&sb, "%s session %s not found\n", color.RedString("✗"), snap.SessionRecordID)
		return sb.String()
	}

	sb.WriteString(color.CyanString("Interview Brief\n"))
	sb.WriteString(strings.Repeat("─", 60) + "\n")
	sb.WriteString(aiText(snap.Brief) + "\n\n")

	for _, a := range snap.Answers {
		fmt.Fprintf(&sb, "%s %s\n", color.New(color.Bold).Sprintf("Q%d.", a.QuestionNumber), a.QuestionText)
		sb.WriteString("    " + aiText(a.CleanedTranscript) + "\n")
	}

	if snap.Ready {
		sb.WriteString("\n" + okMark() + " ready\n")
	}
	return sb.String()
}
