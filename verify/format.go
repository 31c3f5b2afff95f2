package verify

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/smallnest/medrag"
)

var (
	colorHigh   = lipgloss.Color("#2CD7C7")
	colorMedium = lipgloss.Color("#F4D03F")
	colorLow    = lipgloss.Color("#E74C3C")
	colorMuted  = lipgloss.Color("#2C4A54")

	styleTitle  = lipgloss.NewStyle().Bold(true)
	styleHigh   = lipgloss.NewStyle().Foreground(colorHigh)
	styleMedium = lipgloss.NewStyle().Foreground(colorMedium)
	styleLow    = lipgloss.NewStyle().Foreground(colorLow).Bold(true)
	styleMuted  = lipgloss.NewStyle().Foreground(colorMuted)

	styleAbstainBox = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorLow).
			Padding(0, 1)
)

func levelStyle(level medrag.ConfidenceLevel) lipgloss.Style {
	switch level {
	case medrag.ConfidenceHigh:
		return styleHigh
	case medrag.ConfidenceMedium:
		return styleMedium
	default:
		return styleLow
	}
}

// Badge renders a one-line confidence badge for a verification score,
// like "✓ HIGH (92% verified)".
func Badge(level medrag.ConfidenceLevel, score float64) string {
	icon := "✓"
	if level == medrag.ConfidenceMedium {
		icon = "⚠"
	} else if level == medrag.ConfidenceLow {
		icon = "✗"
	}
	text := fmt.Sprintf("%s %s (%.0f%% verified)", icon, strings.ToUpper(string(level)), score*100)
	return levelStyle(level).Render(text)
}

// FormatReport renders a verification report for terminal display.
func FormatReport(report *medrag.VerificationReport) string {
	if report == nil {
		return ""
	}
	if report.Abstention.ShouldAbstain {
		return FormatAbstention(report)
	}

	var b strings.Builder
	b.WriteString(styleTitle.Render("Verification"))
	b.WriteString("  ")
	b.WriteString(Badge(report.Level, report.Score))
	b.WriteString("\n")
	fmt.Fprintf(&b, "%d/%d claims verified\n", report.VerifiedClaims, report.TotalClaims)

	if len(report.CategoryScores) > 0 {
		b.WriteString(styleMuted.Render("by category:"))
		b.WriteString("\n")
		categories := make([]string, 0, len(report.CategoryScores))
		for category := range report.CategoryScores {
			categories = append(categories, string(category))
		}
		sort.Strings(categories)
		for _, category := range categories {
			score := report.CategoryScores[medrag.ClaimCategory(category)]
			fmt.Fprintf(&b, "  %-14s %s\n", category, levelStyle(medrag.ConfidenceLevelFor(score)).Render(fmt.Sprintf("%.0f%%", score*100)))
		}
	}

	if h := report.Hallucinations; h != nil && h.Total > 0 {
		fmt.Fprintf(&b, "%s\n", styleLow.Render(fmt.Sprintf("%d potential hallucination(s), %d critical", h.Total, h.CriticalCount)))
		for _, rec := range h.Recommendations {
			fmt.Fprintf(&b, "  %s %s\n", styleMuted.Render("•"), rec)
		}
	}

	if report.Warning != "" {
		b.WriteString(styleMedium.Render(report.Warning))
		b.WriteString("\n")
	}
	return b.String()
}

// FormatAbstention renders the refusal shown instead of an unsafe answer.
// It explains why the system abstained and what it did find, so the user
// can reformulate or go to a primary source.
func FormatAbstention(report *medrag.VerificationReport) string {
	if report == nil {
		return ""
	}

	var b strings.Builder
	b.WriteString(styleLow.Render("I cannot provide a reliable answer to this question."))
	b.WriteString("\n\n")
	if report.Abstention.Reason != "" {
		fmt.Fprintf(&b, "Reason: %s\n\n", report.Abstention.Reason)
	}

	b.WriteString(styleTitle.Render("What I found"))
	b.WriteString("\n")
	fmt.Fprintf(&b, "  claims extracted:  %d\n", report.TotalClaims)
	fmt.Fprintf(&b, "  claims verified:   %d\n", report.VerifiedClaims)
	fmt.Fprintf(&b, "  verification rate: %.0f%%\n", report.Score*100)
	if h := report.Hallucinations; h != nil && h.CriticalCount > 0 {
		fmt.Fprintf(&b, "  critical errors:   %s\n", styleLow.Render(fmt.Sprintf("%d", h.CriticalCount)))
	}
	b.WriteString("\n")
	b.WriteString("Please consult primary surgical literature or a supervising surgeon for this question.")

	return styleAbstainBox.Render(b.String())
}
