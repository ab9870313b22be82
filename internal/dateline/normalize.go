package dateline

import (
	"regexp"
	"strings"

	"golang.org/x/text/width"
)

var (
	// dashes and waves that width.Fold leaves alone
	dashReplacer = strings.NewReplacer(
		"〜", "~", // wave dash
		"〰", "~",
		"‐", "-", "‑", "-", "‒", "-", "–", "-", "—", "-", "−", "-",
	)

	// (水) (水曜日) (月・祝) (Wed) (祝)
	parenWeekdayRe = regexp.MustCompile(`[(]\s*(?:(?:[月火水木金土日](?:曜日?)?|(?i:mon|tue|wed|thu|fri|sat|sun)[a-zA-Z]*\.?)(?:\s*[・/,]\s*(?:祝|祭|休)日?)?|(?:祝|祭|休)日?)\s*[)]`)

	// 水曜 / 水曜日 glued to other text
	suffixedWeekdayRe = regexp.MustCompile(`[月火水木金土日]曜日?`)

	// a standalone single glyph left behind as its own token
	bareWeekdayRe = regexp.MustCompile(`^[月火水木金土日]$`)
)

// Normalize folds full-width characters to ASCII, unifies range dashes,
// strips weekday annotations and collapses whitespace.
func Normalize(s string) string {
	s = width.Fold.String(s)
	s = dashReplacer.Replace(s)
	s = parenWeekdayRe.ReplaceAllString(s, " ")
	s = suffixedWeekdayRe.ReplaceAllString(s, " ")

	fields := strings.Fields(s)
	out := fields[:0]
	for _, f := range fields {
		if bareWeekdayRe.MatchString(f) {
			continue
		}
		out = append(out, f)
	}
	return strings.Join(out, " ")
}
