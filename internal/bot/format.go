package bot

import (
	"fmt"
	"strings"
	"time"
)

const divider = "━━━━━━━━━━━━━━━━━━━━"

func header(title string) string {
	return title + "\n" + divider + "\n\n"
}

// timeAgo renders a coarse relative age, falling back to the date for
// anything older than a week.
func timeAgo(t, now time.Time) string {
	mins := int(now.Sub(t).Minutes())
	if mins < 1 {
		return "just now"
	}
	if mins < 60 {
		return fmt.Sprintf("%dm ago", mins)
	}
	hours := mins / 60
	if hours < 24 {
		return fmt.Sprintf("%dh ago", hours)
	}
	days := hours / 24
	if days < 7 {
		return fmt.Sprintf("%dd ago", days)
	}
	return t.Format("02.01.2006")
}

// bar is a 10-segment comparison bar for the weekly/monthly reports.
func bar(value, max int) string {
	if max == 0 {
		return strings.Repeat("░", 10)
	}
	filled := int(float64(value)/float64(max)*10 + 0.5)
	if filled > 10 {
		filled = 10
	}
	return strings.Repeat("▓", filled) + strings.Repeat("░", 10-filled)
}

// miniBar is a 5-segment share bar for per-status breakdowns.
func miniBar(value, total int) string {
	if total == 0 {
		return ""
	}
	pct := float64(value) / float64(total) * 100
	filled := int(pct/20 + 0.5)
	if filled > 5 {
		filled = 5
	}
	return strings.Repeat("▪", filled) + strings.Repeat("▫", 5-filled)
}

// signedPercent renders +N% / -N% / 0%.
func signedPercent(change int) string {
	if change > 0 {
		return fmt.Sprintf("+%d%%", change)
	}
	return fmt.Sprintf("%d%%", change)
}

// escapeHTML keeps user-supplied names and notes from breaking the
// HTML parse mode.
func escapeHTML(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	return r.Replace(s)
}
