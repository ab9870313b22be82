// Package ics writes the open events of a run as an iCalendar feed and reads
// such feeds back.
package ics

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"

	appLog "eventdigest/internal/log"
	"eventdigest/internal/model"
)

const prodID = "-//eventdigest//open events//JA"

// Exporter is an event sink that rewrites an .ics file after every run.
type Exporter struct {
	path string

	mu   sync.RWMutex
	last []byte
}

// NewExporter writes to path. An empty path keeps the calendar in memory
// only (see Bytes).
func NewExporter(path string) *Exporter {
	return &Exporter{path: path}
}

// WriteEvents serializes events and replaces the file atomically.
func (x *Exporter) WriteEvents(ctx context.Context, events []model.Event, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cal := Build(events, now)
	data := []byte(cal.Serialize())

	x.mu.Lock()
	x.last = data
	x.mu.Unlock()

	if x.path == "" {
		return nil
	}
	if err := writeAtomic(x.path, data); err != nil {
		return err
	}
	appLog.Info("ics written", "path", x.path, "events", len(cal.Events()))
	return nil
}

// Load picks up the feed left by a previous process so that Bytes serves
// it before the first run. A missing file or an empty path is not an error.
func (x *Exporter) Load(loc *time.Location) error {
	if x.path == "" {
		return nil
	}
	data, err := os.ReadFile(x.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}

	entries, err := Read(bytes.NewReader(data), loc)
	if err != nil {
		return fmt.Errorf("parse %s: %w", x.path, err)
	}
	occurrences := 0
	for _, e := range entries {
		occ, err := e.Occurrences()
		if err != nil {
			appLog.Error("ics occurrences skipped", err, "uid", e.UID)
			continue
		}
		occurrences += len(occ)
	}

	x.mu.Lock()
	if x.last == nil {
		x.last = data
	}
	x.mu.Unlock()

	appLog.Info("ics feed loaded", "path", x.path, "entries", len(entries), "occurrences", occurrences)
	return nil
}

// Bytes returns the calendar produced by the last WriteEvents (or picked up
// by Load), or nil.
func (x *Exporter) Bytes() []byte {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.last
}

// Build converts decided events into VEVENTs. Undecided events have no
// date and are left out.
//
//   - A date without a clock time becomes an all-day event.
//   - A timed single day starts at that time.
//   - A timed range repeats daily at the start time until the end date
//     (RRULE FREQ=DAILY;COUNT=n).
//   - An untimed range is one all-day event spanning every day.
func Build(events []model.Event, now time.Time) *ical.Calendar {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(prodID)

	for _, ev := range events {
		t := ev.Temporal
		if !t.Decided() {
			continue
		}

		ve := cal.AddEvent(uid(ev.Ref))
		ve.SetDtStampTime(now)
		ve.SetSummary(ev.Title)
		ve.SetLocation(ev.Place)
		if ev.Category != "" {
			ve.SetDescription(ev.Category)
		}
		if ev.Permalink != "" {
			ve.SetURL(ev.Permalink)
		}

		end := t.Start
		if t.Kind == model.Range {
			end = t.End
		}

		if !t.HasTime {
			ve.SetAllDayStartAt(dateOf(t.Start))
			ve.SetAllDayEndAt(dateOf(end).AddDate(0, 0, 1))
			continue
		}

		ve.SetStartAt(t.Start)
		if t.Kind == model.Range {
			if days := daysBetween(t.Start, end) + 1; days > 1 {
				opt := rrule.ROption{Freq: rrule.DAILY, Count: days}
				ve.AddRrule(opt.RRuleString())
			}
			// First occurrence ends at the range's closing clock time.
			firstEnd := time.Date(t.Start.Year(), t.Start.Month(), t.Start.Day(),
				end.Hour(), end.Minute(), 0, 0, t.Start.Location())
			if firstEnd.After(t.Start) {
				ve.SetEndAt(firstEnd)
			}
		}
	}
	return cal
}

func uid(ref model.SourceRef) string {
	return ref.Channel + "-" + ref.MessageID + "@eventdigest"
}

func dateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func daysBetween(a, b time.Time) int {
	da, db := dateOf(a), dateOf(b)
	n := 0
	for da.Before(db) {
		da = da.AddDate(0, 0, 1)
		n++
	}
	return n
}

func writeAtomic(path string, data []byte) error {
	if path == "" {
		return errors.New("ics path is empty")
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".eventdigest-ics-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
