package digest

import (
	"fmt"
	"strings"
	"time"

	"eventdigest/internal/config"
	"eventdigest/internal/model"
)

// BlockKind identifies how a publisher should present a block.
type BlockKind string

const (
	BlockHeader  BlockKind = "header"
	BlockSection BlockKind = "section"
	BlockContext BlockKind = "context"
)

// Block is one pre-formatted piece of the digest (Slack mrkdwn).
type Block struct {
	Kind BlockKind `json:"kind"`
	Text string    `json:"text"`
}

// Payload is the rendered digest handed to a publisher.
type Payload struct {
	// Text is the notification fallback for clients that ignore blocks.
	Text   string  `json:"text"`
	Blocks []Block `json:"blocks"`
	// Empty is set when no event survived filtering.
	Empty bool `json:"empty"`
}

// PlainText joins all blocks, for logs and mail bodies.
func (p Payload) PlainText() string {
	parts := make([]string, 0, len(p.Blocks))
	for _, b := range p.Blocks {
		parts = append(parts, b.Text)
	}
	return strings.Join(parts, "\n\n")
}

// Renderer turns sorted events into a Payload.
type Renderer struct {
	headerTitle  string
	headerFormat string
	emptyText    string
	footerText   string
	undecided    string
	weekdays     []string
	order        []string
	catchAll     string
	keepEmpty    bool
	placeholder  string
}

// NewRenderer captures the presentation settings of cfg.
func NewRenderer(cfg *config.Config) *Renderer {
	weekdays := cfg.WeekdayNames
	if len(weekdays) != 7 {
		weekdays = config.DefaultConfig().WeekdayNames
	}
	return &Renderer{
		headerTitle:  cfg.HeaderTitle,
		headerFormat: cfg.HeaderFormat,
		emptyText:    cfg.EmptyText,
		footerText:   cfg.FooterText,
		undecided:    cfg.UndecidedLabel,
		weekdays:     weekdays,
		order:        cfg.CategoryOrder,
		catchAll:     cfg.DefaultCategory,
		keepEmpty:    cfg.EmptyCategory == config.EmptyCategoryPlaceholder,
		placeholder:  cfg.EmptyPlaceholder,
	}
}

// Render builds the digest for events, which must already be sorted.
// With no events the payload is the single empty-state block.
func (r *Renderer) Render(events []model.Event, now time.Time) Payload {
	header := fmt.Sprintf("*%s（%s 時点）*", r.headerTitle, now.Format(r.headerFormat))

	if len(events) == 0 {
		return Payload{
			Text:   r.headerTitle,
			Blocks: []Block{{Kind: BlockSection, Text: header + "\n" + r.emptyText}},
			Empty:  true,
		}
	}

	blocks := []Block{{Kind: BlockHeader, Text: header}}
	for _, g := range GroupByCategory(events, r.order, r.catchAll, r.keepEmpty) {
		var b strings.Builder
		b.WriteString("*" + escape(g.Category) + "*")
		if len(g.Events) == 0 {
			b.WriteString("\n" + r.placeholder)
		}
		for _, ev := range g.Events {
			b.WriteString("\n" + r.Line(ev))
		}
		blocks = append(blocks, Block{Kind: BlockSection, Text: b.String()})
	}
	if r.footerText != "" {
		blocks = append(blocks, Block{Kind: BlockContext, Text: r.footerText})
	}

	return Payload{Text: r.headerTitle, Blocks: blocks}
}

// Line renders one event as "• 5/10(日): <link|Title> (Place)".
func (r *Renderer) Line(ev model.Event) string {
	title := escape(ev.Title)
	if ev.Permalink != "" {
		title = "<" + ev.Permalink + "|" + linkTextEscaper.Replace(title) + ">"
	}
	return fmt.Sprintf("• %s: %s (%s)", r.FormatWhen(ev.Temporal), title, escape(ev.Place))
}

// FormatWhen renders the date part of a line. The year is dropped; ranges
// within one month abbreviate the end to its day.
func (r *Renderer) FormatWhen(t model.Temporal) string {
	switch t.Kind {
	case model.SingleDay:
		return r.monthDay(t.Start)
	case model.Range:
		s, e := t.Start, t.End
		switch {
		case sameDay(s, e):
			return r.monthDay(s)
		case s.Year() == e.Year() && s.Month() == e.Month():
			return r.monthDay(s) + "-" + r.day(e)
		default:
			return r.monthDay(s) + "-" + r.monthDay(e)
		}
	default:
		return r.undecided
	}
}

func (r *Renderer) monthDay(t time.Time) string {
	return fmt.Sprintf("%d/%s", int(t.Month()), r.day(t))
}

func (r *Renderer) day(t time.Time) string {
	return fmt.Sprintf("%d(%s)", t.Day(), r.weekdays[t.Weekday()])
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// Slack treats &, < and > as control characters in mrkdwn.
var mrkdwnEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// A "|" inside <url|text> ends the URL part early; the full-width bar reads
// the same.
var linkTextEscaper = strings.NewReplacer("|", "｜")

func escape(s string) string {
	return mrkdwnEscaper.Replace(s)
}
