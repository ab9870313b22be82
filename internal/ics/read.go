package ics

import (
	"errors"
	"io"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"

	appLog "eventdigest/internal/log"
)

// Entry is a VEVENT read back from a feed.
type Entry struct {
	UID      string
	Summary  string
	Location string
	URL      string

	Start  time.Time
	End    time.Time
	AllDay bool

	RawRRule string
}

// Read parses a feed. Times are converted into loc.
func Read(r io.Reader, loc *time.Location) ([]Entry, error) {
	if loc == nil {
		loc = time.Local
	}
	cal, err := ical.ParseCalendar(r)
	if err != nil {
		return nil, err
	}

	out := make([]Entry, 0, len(cal.Events()))
	for _, ve := range cal.Events() {
		e, err := readVEvent(ve, loc)
		if err != nil {
			appLog.Error("ics vevent skipped", err)
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func readVEvent(ve *ical.VEvent, loc *time.Location) (Entry, error) {
	var e Entry
	p := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if p == nil || p.Value == "" {
		return e, errors.New("missing UID")
	}
	e.UID = p.Value

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		e.Summary = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyLocation); p != nil {
		e.Location = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyUrl); p != nil {
		e.URL = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		e.RawRRule = p.Value
	}

	if p := ve.GetProperty(ical.ComponentPropertyDtStart); p != nil {
		if vs := p.ICalParameters["VALUE"]; len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
			e.AllDay = true
		}
		if !strings.Contains(p.Value, "T") {
			e.AllDay = true
		}
	}

	var err error
	if e.AllDay {
		if e.Start, err = ve.GetAllDayStartAt(); err != nil {
			return e, err
		}
		e.End, _ = ve.GetAllDayEndAt()
		e.Start = inDate(e.Start, loc)
		if !e.End.IsZero() {
			e.End = inDate(e.End, loc)
		}
		return e, nil
	}

	if e.Start, err = ve.GetStartAt(); err != nil {
		return e, err
	}
	e.Start = e.Start.In(loc)
	if end, err := ve.GetEndAt(); err == nil {
		e.End = end.In(loc)
	}
	return e, nil
}

// inDate keeps the calendar date of t but places it in loc.
func inDate(t time.Time, loc *time.Location) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// Occurrences returns the start of every instance of e. Entries without a
// recurrence rule have exactly one.
func (e Entry) Occurrences() ([]time.Time, error) {
	if e.RawRRule == "" {
		return []time.Time{e.Start}, nil
	}
	r, err := rrule.StrToRRule(e.RawRRule)
	if err != nil {
		return nil, err
	}
	r.DTStart(e.Start)
	return r.All(), nil
}
