// Package dateline turns the free-text date line of an announcement into a
// model.Temporal value.
//
// The accepted grammar is deliberately small:
//
//	TBD | 未定                                  -> Undecided
//	DATE [HH:MM] [SEP]                          -> SingleDay
//	DATE [HH:MM] SEP (D[日] | HH:MM | DATE [HH:MM]) -> Range
//
// where DATE is YYYY/M/D or M/D (separators . - / whitespace 年 月, optional
// trailing 日), HH:MM may sit anywhere in the segment and SEP is one of
// - ~ 〜. Anything else is a parse failure.
package dateline

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"eventdigest/internal/model"
)

var (
	// ErrNoDate is returned when the line holds no recognizable date token.
	ErrNoDate = errors.New("no date token")
	// ErrInvalidDate is returned for out-of-range month/day/hour values.
	ErrInvalidDate = errors.New("invalid calendar date")
	// ErrInvalidRange is returned when a range end cannot be placed at or
	// after its start.
	ErrInvalidRange = errors.New("range end before start")
)

// ParseError carries the offending line alongside the failure reason.
type ParseError struct {
	Line string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("dateline %q: %v", e.Line, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

const (
	defaultHour   = 23
	defaultMinute = 59
)

var (
	undecidedRe = regexp.MustCompile(`(?i)(?:^|[^a-z])tbd(?:[^a-z]|$)|未定`)

	// Month and day joined by / . - or 月. Preferred over the loose forms
	// below so "Vol.2 5/10" reads 5/10, not 2/5.
	ymdRe = regexp.MustCompile(`(?:^|[^\d:])((\d{4})(?:\s*[./\-年]\s*|\s+)(\d{1,2})\s*[./\-月]\s*(\d{1,2})(?:\s*日)?)(?:[^\d:]|$)`)
	mdRe  = regexp.MustCompile(`(?:^|[^\d:])((\d{1,2})\s*[./\-月]\s*(\d{1,2})(?:\s*日)?)(?:[^\d:]|$)`)

	// Whitespace also separates month and day ("5 10").
	ymdLooseRe = regexp.MustCompile(`(?:^|[^\d:])((\d{4})(?:\s*[./\-年]\s*|\s+)(\d{1,2})(?:\s*[./\-月]\s*|\s+)(\d{1,2})(?:\s*日)?)(?:[^\d:]|$)`)
	mdLooseRe  = regexp.MustCompile(`(?:^|[^\d:])((\d{1,2})(?:\s*[./\-月]\s*|\s+)(\d{1,2})(?:\s*日)?)(?:[^\d:]|$)`)

	timeRe = regexp.MustCompile(`(?:^|[^\d])(\d{1,2}):(\d{2})(?:[^\d]|$)`)

	loneDayRe  = regexp.MustCompile(`^(\d{1,2})\s*日?(?:\s+(\d{1,2}):(\d{2}))?$`)
	timeOnlyRe = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)
)

// token is a located date expression within a segment.
type token struct {
	start, end int
	year       int // 0 when the token omits the year
	month, day int
}

// Resolve parses line relative to now. Year-omitted dates resolve to their
// nearest future occurrence; all results are in now's location.
func Resolve(line string, now time.Time) (model.Temporal, error) {
	s := Normalize(line)

	if undecidedRe.MatchString(s) {
		return model.Temporal{Kind: model.Undecided}, nil
	}

	first, ok := findDate(s)
	if !ok {
		return model.Temporal{}, &ParseError{Line: line, Err: ErrNoDate}
	}

	if i := strings.IndexAny(s[first.end:], "-~"); i >= 0 {
		cut := first.end + i
		left, right := strings.TrimSpace(s[:cut]), strings.TrimSpace(s[cut+1:])
		if right != "" {
			t, err := resolveRange(left, right, now)
			if err != nil {
				return model.Temporal{}, &ParseError{Line: line, Err: err}
			}
			return t, nil
		}
		// open-ended "5/10 19:00〜" is the start day alone
		s = left
	}

	start, hasTime, err := resolveSingle(s, now)
	if err != nil {
		return model.Temporal{}, &ParseError{Line: line, Err: err}
	}
	return model.Temporal{Kind: model.SingleDay, Start: start, HasTime: hasTime}, nil
}

func resolveRange(left, right string, now time.Time) (model.Temporal, error) {
	start, hasTime, err := resolveSingle(left, now)
	if err != nil {
		return model.Temporal{}, err
	}
	loc := now.Location()

	var end time.Time
	switch {
	case loneDayRe.MatchString(right):
		m := loneDayRe.FindStringSubmatch(right)
		day := atoi(m[1])
		hh, mm := defaultHour, defaultMinute
		if m[2] != "" {
			hh, mm = atoi(m[2]), atoi(m[3])
		}
		end, err = build(start.Year(), int(start.Month()), day, hh, mm, loc)
		if err != nil {
			return model.Temporal{}, err
		}

	case timeOnlyRe.MatchString(right):
		m := timeOnlyRe.FindStringSubmatch(right)
		end, err = build(start.Year(), int(start.Month()), start.Day(), atoi(m[1]), atoi(m[2]), loc)
		if err != nil {
			return model.Temporal{}, err
		}

	default:
		tok, ok := findDate(right)
		if !ok {
			return model.Temporal{}, ErrNoDate
		}
		hh, mm, _, err := findTime(right)
		if err != nil {
			return model.Temporal{}, err
		}
		year := tok.year
		if year == 0 {
			year = start.Year()
		}
		end, err = build(year, tok.month, tok.day, hh, mm, loc)
		if err != nil {
			return model.Temporal{}, err
		}
		// 12/30-1/2 crosses into the following year
		if tok.year == 0 && end.Before(start) {
			end, err = build(year+1, tok.month, tok.day, hh, mm, loc)
			if err != nil {
				return model.Temporal{}, err
			}
		}
	}

	if end.Before(start) {
		return model.Temporal{}, ErrInvalidRange
	}
	return model.Temporal{Kind: model.Range, Start: start, End: end, HasTime: hasTime}, nil
}

// resolveSingle parses one date (plus optional time) from seg. A
// year-qualified token is taken verbatim; a year-omitted one uses the
// current year unless that lands before now, in which case next year.
func resolveSingle(seg string, now time.Time) (time.Time, bool, error) {
	tok, ok := findDate(seg)
	if !ok {
		return time.Time{}, false, ErrNoDate
	}
	hh, mm, hasTime, err := findTime(seg)
	if err != nil {
		return time.Time{}, false, err
	}
	loc := now.Location()

	if tok.year != 0 {
		t, err := build(tok.year, tok.month, tok.day, hh, mm, loc)
		return t, hasTime, err
	}

	if t, err := build(now.Year(), tok.month, tok.day, hh, mm, loc); err == nil && !t.Before(now) {
		return t, hasTime, nil
	}
	t, err := build(now.Year()+1, tok.month, tok.day, hh, mm, loc)
	return t, hasTime, err
}

// findDate returns the leftmost date token, trying separator-joined forms
// before whitespace-joined ones. A year-omitted match found inside a
// year-qualified one ("5/3" in "2026/5/3") never wins.
func findDate(s string) (token, bool) {
	if tok, ok := findDateWith(ymdRe, mdRe, s); ok {
		return tok, true
	}
	return findDateWith(ymdLooseRe, mdLooseRe, s)
}

func findDateWith(ymdPat, mdPat *regexp.Regexp, s string) (token, bool) {
	var ymd, md *token
	if m := ymdPat.FindStringSubmatchIndex(s); m != nil {
		ymd = &token{
			start: m[2], end: m[3],
			year:  atoi(s[m[4]:m[5]]),
			month: atoi(s[m[6]:m[7]]),
			day:   atoi(s[m[8]:m[9]]),
		}
	}
	if m := mdPat.FindStringSubmatchIndex(s); m != nil {
		md = &token{
			start: m[2], end: m[3],
			month: atoi(s[m[4]:m[5]]),
			day:   atoi(s[m[6]:m[7]]),
		}
	}
	switch {
	case ymd != nil && (md == nil || ymd.start <= md.start):
		return *ymd, true
	case md != nil:
		return *md, true
	default:
		return token{}, false
	}
}

// findTime returns the first HH:MM in s, or 23:59 when there is none.
func findTime(s string) (hh, mm int, ok bool, err error) {
	m := timeRe.FindStringSubmatch(s)
	if m == nil {
		return defaultHour, defaultMinute, false, nil
	}
	hh, mm = atoi(m[1]), atoi(m[2])
	if hh > 23 || mm > 59 {
		return 0, 0, false, ErrInvalidDate
	}
	return hh, mm, true, nil
}

// build constructs a wall-clock time, rejecting values time.Date would
// silently normalize (2/30, 13/1, 25:00).
func build(year, month, day, hh, mm int, loc *time.Location) (time.Time, error) {
	if month < 1 || month > 12 || day < 1 || day > 31 || hh > 23 || mm > 59 {
		return time.Time{}, ErrInvalidDate
	}
	t := time.Date(year, time.Month(month), day, hh, mm, 0, 0, loc)
	if t.Month() != time.Month(month) || t.Day() != day {
		return time.Time{}, ErrInvalidDate
	}
	return t, nil
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
