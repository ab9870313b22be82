// Package extract pulls the labeled title, date and place fields out of a
// free-form announcement body.
package extract

import (
	"regexp"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Labels lists the accepted marker words per field.
type Labels struct {
	Title []string
	Date  []string
	Place []string
}

// DefaultLabels are the markers used by the announcement template.
func DefaultLabels() Labels {
	return Labels{
		Title: []string{"イベント名", "タイトル", "Event name", "Event"},
		Date:  []string{"日時", "Date"},
		Place: []string{"場所", "Place"},
	}
}

// Fields is the result of Extract. A field is only meaningful when its
// matching Has flag is set.
type Fields struct {
	Title    string
	HasTitle bool

	Place    string
	HasPlace bool

	// DateLine is the raw text after the date marker; interpretation is left
	// to the dateline package.
	DateLine string
	HasDate  bool
}

// Complete reports whether the fields required for an event are present.
func (f Fields) Complete() bool {
	return f.HasTitle && f.HasPlace
}

// Extractor holds the compiled marker patterns.
type Extractor struct {
	title *regexp.Regexp
	date  *regexp.Regexp
	place *regexp.Regexp
}

// New compiles one anchored multi-line pattern per field.
func New(l Labels) *Extractor {
	return &Extractor{
		title: compile(l.Title),
		date:  compile(l.Date),
		place: compile(l.Place),
	}
}

// compile builds a line-start pattern for the given markers. The marker may
// be wrapped in [], 【】, ［］ or Slack bold and must be followed by a colon,
// a closing bracket, bold markup or the end of the line. Markers that end in
// a non-ASCII letter ("日時 5/10") may also be followed by plain spaces; ASCII
// words may not, so "Date night for couples" is prose, not a marker.
func compile(markers []string) *regexp.Regexp {
	var spaced, strict []string
	for _, m := range markers {
		m = strings.TrimSpace(m)
		if m == "" {
			continue
		}
		if last := m[len(m)-1]; last < utf8.RuneSelf && (unicode.IsLetter(rune(last)) || unicode.IsDigit(rune(last))) {
			strict = append(strict, m)
		} else {
			spaced = append(spaced, m)
		}
	}
	if len(spaced)+len(strict) == 0 {
		return nil
	}

	const delim = `[\]】］*_]*[ \t]*[:：][*_]*|[\]】］*_]+|$`
	var alts []string
	if len(spaced) > 0 {
		alts = append(alts, `(?:`+alternation(spaced)+`)(?:`+delim+`|[ \t]+)`)
	}
	if len(strict) > 0 {
		alts = append(alts, `(?:`+alternation(strict)+`)(?:`+delim+`)`)
	}
	return regexp.MustCompile(`(?mi)^[ \t]*[\[【［*_]*[ \t]*(?:` + strings.Join(alts, "|") + `)[ \t]*(.*)$`)
}

// alternation quotes markers longest first, so "Event name" is tried
// before "Event".
func alternation(markers []string) string {
	sorted := slices.Clone(markers)
	slices.SortStableFunc(sorted, func(a, b string) int { return len(b) - len(a) })
	for i, m := range sorted {
		sorted[i] = regexp.QuoteMeta(m)
	}
	return strings.Join(sorted, "|")
}

// Extract locates each field independently; label order within the body
// does not matter and only the first match of each label is used.
func (e *Extractor) Extract(body string) Fields {
	body = strings.ReplaceAll(body, "\r\n", "\n")

	var f Fields
	f.Title, f.HasTitle = e.find(e.title, body)
	f.Place, f.HasPlace = e.find(e.place, body)
	f.DateLine, f.HasDate = e.find(e.date, body)
	return f
}

// find returns the text following the first marker line. An empty remainder
// on the marker line means the value sits on the next non-empty line,
// unless that line is itself a marker.
func (e *Extractor) find(re *regexp.Regexp, body string) (string, bool) {
	if re == nil {
		return "", false
	}
	loc := re.FindStringSubmatchIndex(body)
	if loc == nil {
		return "", false
	}
	if v := strings.TrimSpace(body[loc[2]:loc[3]]); v != "" {
		return v, true
	}
	for _, line := range strings.Split(body[loc[1]:], "\n") {
		v := strings.TrimSpace(line)
		if v == "" {
			continue
		}
		if e.isMarker(line) {
			return "", false
		}
		return v, true
	}
	return "", false
}

func (e *Extractor) isMarker(line string) bool {
	for _, re := range []*regexp.Regexp{e.title, e.date, e.place} {
		if re != nil && re.MatchString(line) {
			return true
		}
	}
	return false
}
