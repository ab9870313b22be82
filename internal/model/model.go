package model

import "time"

// RawMessage is a top-level channel message as handed over by the message
// history provider.
type RawMessage struct {
	// ID is the provider's sortable timestamp token (Slack "ts").
	ID   string
	Text string
	// SubType is non-empty for system or bot generated messages.
	SubType string
}

// SourceRef points back at the announcement an event was built from.
type SourceRef struct {
	Channel   string
	MessageID string
}

// TemporalKind tags which variant a Temporal value holds.
type TemporalKind uint8

const (
	// Undecided carries no comparable instant and sorts after everything.
	Undecided TemporalKind = iota + 1
	SingleDay
	Range
)

func (k TemporalKind) String() string {
	switch k {
	case Undecided:
		return "undecided"
	case SingleDay:
		return "single"
	case Range:
		return "range"
	default:
		return "unknown"
	}
}

// Temporal is the resolved date information of an announcement.
//
// For SingleDay only Start is meaningful. For Range, End is the resolved
// end point. Neither is set for Undecided.
type Temporal struct {
	Kind  TemporalKind
	Start time.Time
	End   time.Time
	// HasTime reports whether Start carried an explicit HH:MM in the source
	// text (otherwise Start is at 23:59).
	HasTime bool
}

// Decided reports whether the value has a start instant.
func (t Temporal) Decided() bool {
	return t.Kind == SingleDay || t.Kind == Range
}

// Event is an announcement that survived extraction, date resolution and
// closure checks.
type Event struct {
	Title    string
	Place    string
	Category string
	Temporal Temporal
	Ref      SourceRef

	// Permalink is resolved last, only for events that are kept.
	Permalink string
}
