package dateline

import (
	"errors"
	"testing"
	"time"

	"eventdigest/internal/model"
)

var jst = time.FixedZone("JST", 9*60*60)

func at(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, jst)
}

func TestResolve(t *testing.T) {
	t.Parallel()

	now := at(2026, time.March, 1, 12, 0)

	cases := []struct {
		line    string
		kind    model.TemporalKind
		start   time.Time
		end     time.Time
		hasTime bool
	}{
		// year-omitted, nearest future
		{line: "2/15", kind: model.SingleDay, start: at(2027, time.February, 15, 23, 59)},
		{line: "3/1", kind: model.SingleDay, start: at(2026, time.March, 1, 23, 59)},
		{line: "3/1 10:00", kind: model.SingleDay, start: at(2027, time.March, 1, 10, 0), hasTime: true},
		{line: "5/10 19:30", kind: model.SingleDay, start: at(2026, time.May, 10, 19, 30), hasTime: true},
		{line: "5月10日(日) 19:30", kind: model.SingleDay, start: at(2026, time.May, 10, 19, 30), hasTime: true},
		{line: "５／１０（日）１９：３０", kind: model.SingleDay, start: at(2026, time.May, 10, 19, 30), hasTime: true},
		{line: "5.10 水曜日", kind: model.SingleDay, start: at(2026, time.May, 10, 23, 59)},
		{line: "19:30 5/10", kind: model.SingleDay, start: at(2026, time.May, 10, 19, 30), hasTime: true},
		{line: "開場 18:30 / 5月10日", kind: model.SingleDay, start: at(2026, time.May, 10, 18, 30), hasTime: true},
		{line: "Vol.2 5/10", kind: model.SingleDay, start: at(2026, time.May, 10, 23, 59)},
		{line: "5 10", kind: model.SingleDay, start: at(2026, time.May, 10, 23, 59)},
		{line: "5/10 19:00〜", kind: model.SingleDay, start: at(2026, time.May, 10, 19, 0), hasTime: true},
		{line: "5/10-", kind: model.SingleDay, start: at(2026, time.May, 10, 23, 59)},

		// year-qualified, taken verbatim even when past
		{line: "2025/12/24", kind: model.SingleDay, start: at(2025, time.December, 24, 23, 59)},
		{line: "2026-05-03 18:00", kind: model.SingleDay, start: at(2026, time.May, 3, 18, 0), hasTime: true},
		{line: "2026年5月3日（日）", kind: model.SingleDay, start: at(2026, time.May, 3, 23, 59)},

		// ranges
		{line: "2026/5/3-5", kind: model.Range, start: at(2026, time.May, 3, 23, 59), end: at(2026, time.May, 5, 23, 59)},
		{line: "5/3(日)〜5日", kind: model.Range, start: at(2026, time.May, 3, 23, 59), end: at(2026, time.May, 5, 23, 59)},
		{line: "5/30 ~ 6/2", kind: model.Range, start: at(2026, time.May, 30, 23, 59), end: at(2026, time.June, 2, 23, 59)},
		{line: "12/30-1/2", kind: model.Range, start: at(2026, time.December, 30, 23, 59), end: at(2027, time.January, 2, 23, 59)},
		{line: "5/10 19:00-21:00", kind: model.Range, start: at(2026, time.May, 10, 19, 0), end: at(2026, time.May, 10, 21, 0), hasTime: true},
		{line: "2026/5/3 10:00 - 2026/5/4 17:00", kind: model.Range, start: at(2026, time.May, 3, 10, 0), end: at(2026, time.May, 4, 17, 0), hasTime: true},

		// undecided
		{line: "TBD", kind: model.Undecided},
		{line: "tbd (maybe June)", kind: model.Undecided},
		{line: "未定", kind: model.Undecided},
		{line: "5月中旬（未定）", kind: model.Undecided},
	}

	for _, c := range cases {
		c := c
		t.Run(c.line, func(t *testing.T) {
			t.Parallel()
			got, err := Resolve(c.line, now)
			if err != nil {
				t.Fatalf("Resolve(%q) error: %v", c.line, err)
			}
			if got.Kind != c.kind {
				t.Fatalf("kind = %s, want %s", got.Kind, c.kind)
			}
			if !got.Start.Equal(c.start) {
				t.Errorf("start = %s, want %s", got.Start, c.start)
			}
			if !got.End.Equal(c.end) {
				t.Errorf("end = %s, want %s", got.End, c.end)
			}
			if got.HasTime != c.hasTime {
				t.Errorf("hasTime = %v, want %v", got.HasTime, c.hasTime)
			}
		})
	}
}

func TestResolveFailures(t *testing.T) {
	t.Parallel()

	now := at(2026, time.March, 1, 12, 0)

	cases := []struct {
		line string
		want error
	}{
		{"", ErrNoDate},
		{"来週のどこか", ErrNoDate},
		{"調整中", ErrNoDate},
		{"2026/13/1", ErrInvalidDate},
		{"2026/2/30", ErrInvalidDate},
		{"5/10 25:00", ErrInvalidDate},
		{"5/10-3", ErrInvalidRange},
		{"5/10 - someday", ErrNoDate},
	}

	for _, c := range cases {
		_, err := Resolve(c.line, now)
		if !errors.Is(err, c.want) {
			t.Errorf("Resolve(%q) err = %v, want %v", c.line, err, c.want)
		}
		var pe *ParseError
		if !errors.As(err, &pe) || pe.Line != c.line {
			t.Errorf("Resolve(%q) err %v is not a *ParseError for the line", c.line, err)
		}
	}
}

func TestYearQualifiedNeverShifts(t *testing.T) {
	t.Parallel()

	for _, now := range []time.Time{
		at(2024, time.January, 1, 0, 0),
		at(2026, time.June, 15, 12, 0),
		at(2030, time.December, 31, 23, 59),
	} {
		got, err := Resolve("2026/6/1", now)
		if err != nil {
			t.Fatal(err)
		}
		if got.Start.Year() != 2026 {
			t.Errorf("now=%s: year = %d, want 2026", now, got.Start.Year())
		}
	}
}

func TestYearOmittedNeverPast(t *testing.T) {
	t.Parallel()

	lines := []string{"1/1", "2/28", "3/1", "6/15 09:00", "12/31", "3/1 11:59", "3/1 12:00"}
	for d := 0; d < 366; d += 17 {
		now := at(2026, time.January, 1, 12, 0).AddDate(0, 0, d)
		for _, line := range lines {
			got, err := Resolve(line, now)
			if err != nil {
				t.Fatalf("Resolve(%q, %s): %v", line, now, err)
			}
			if got.Start.Before(now) {
				t.Errorf("Resolve(%q, %s) = %s, before now", line, now, got.Start)
			}
			if got.Start.Year()-now.Year() > 1 {
				t.Errorf("Resolve(%q, %s) = %s, more than a year ahead", line, now, got.Start)
			}
		}
	}
}

func TestLeapDayRollsForward(t *testing.T) {
	t.Parallel()

	got, err := Resolve("2/29", at(2027, time.March, 1, 0, 0))
	if err != nil {
		t.Fatal(err)
	}
	if !got.Start.Equal(at(2028, time.February, 29, 23, 59)) {
		t.Fatalf("start = %s", got.Start)
	}
}
