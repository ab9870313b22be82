package digest

import (
	"slices"
	"strings"
	"testing"
	"time"

	"eventdigest/internal/config"
	"eventdigest/internal/model"
)

func day(m time.Month, d, hh, mm int) time.Time {
	return time.Date(2026, m, d, hh, mm, 0, 0, jst)
}

func TestFormatWhen(t *testing.T) {
	t.Parallel()

	r := NewRenderer(config.DefaultConfig())
	cases := []struct {
		name string
		in   model.Temporal
		want string
	}{
		{"single", model.Temporal{Kind: model.SingleDay, Start: day(5, 10, 19, 30)}, "5/10(日)"},
		{"same month", model.Temporal{Kind: model.Range, Start: day(5, 3, 23, 59), End: day(5, 5, 23, 59)}, "5/3(日)-5(火)"},
		{"across months", model.Temporal{Kind: model.Range, Start: day(4, 29, 23, 59), End: day(5, 2, 23, 59)}, "4/29(水)-5/2(土)"},
		{"same day collapses", model.Temporal{Kind: model.Range, Start: day(5, 10, 18, 0), End: day(5, 10, 21, 0)}, "5/10(日)"},
		{"undecided", model.Temporal{Kind: model.Undecided}, "未定"},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			if got := r.FormatWhen(c.in); got != c.want {
				t.Errorf("got %q, want %q", got, c.want)
			}
		})
	}
}

func TestLineEscapes(t *testing.T) {
	t.Parallel()

	const link = "https://example.slack.com/archives/C1/p1"
	cases := []struct {
		name      string
		title     string
		permalink string
		want      string
	}{
		{"mrkdwn control chars", "Q&A <live>", link, "• 未定: <" + link + "|Q&amp;A &lt;live&gt;> (R&amp;D)"},
		{"pipe in linked title", "Jazz | Blues Night", link, "• 未定: <" + link + "|Jazz ｜ Blues Night> (R&amp;D)"},
		{"pipe without link", "Jazz | Blues", "", "• 未定: Jazz | Blues (R&amp;D)"},
	}
	r := NewRenderer(config.DefaultConfig())
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()

			got := r.Line(model.Event{
				Title:     c.title,
				Place:     "R&D",
				Temporal:  model.Temporal{Kind: model.Undecided},
				Permalink: c.permalink,
			})
			if got != c.want {
				t.Errorf("got %q, want %q", got, c.want)
			}
		})
	}
}

func ev(title, cat string, t model.Temporal) model.Event {
	return model.Event{Title: title, Category: cat, Temporal: t}
}

func titles(events []model.Event) string {
	var out []string
	for _, e := range events {
		out = append(out, e.Title)
	}
	return strings.Join(out, ",")
}

func TestSortEvents(t *testing.T) {
	t.Parallel()

	undecided := model.Temporal{Kind: model.Undecided}
	single := func(d int) model.Temporal { return model.Temporal{Kind: model.SingleDay, Start: day(5, d, 23, 59)} }

	events := []model.Event{
		ev("u1", "a", undecided),
		ev("d12", "a", single(12)),
		ev("r10", "b", model.Temporal{Kind: model.Range, Start: day(5, 10, 23, 59), End: day(5, 14, 23, 59)}),
		ev("u2", "b", undecided),
		ev("d10", "a", single(10)),
	}
	SortEvents(events)
	if got := titles(events); got != "r10,d10,d12,u1,u2" {
		t.Fatalf("order = %s", got)
	}

	again := slices.Clone(events)
	SortEvents(again)
	if titles(again) != titles(events) {
		t.Errorf("sort is not idempotent: %s vs %s", titles(again), titles(events))
	}
}

func TestGroupByCategory(t *testing.T) {
	t.Parallel()

	undecided := model.Temporal{Kind: model.Undecided}
	events := []model.Event{
		ev("1", "その他", undecided),
		ev("2", "勉強会", undecided),
		ev("3", "ゲーム", undecided),
		ev("4", "勉強会", undecided),
	}

	groups := GroupByCategory(events, []string{"ライブ", "勉強会"}, "その他", false)
	var cats []string
	for _, g := range groups {
		cats = append(cats, g.Category)
	}
	if got := strings.Join(cats, ","); got != "勉強会,ゲーム,その他" {
		t.Errorf("omit mode categories = %s", got)
	}
	if titles(groups[0].Events) != "2,4" {
		t.Errorf("勉強会 events = %s", titles(groups[0].Events))
	}

	groups = GroupByCategory(events, []string{"ライブ", "勉強会"}, "その他", true)
	if groups[0].Category != "ライブ" || len(groups[0].Events) != 0 {
		t.Errorf("placeholder mode first group = %+v", groups[0])
	}
}

func TestRenderPlaceholder(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()
	cfg.CategoryOrder = []string{"ライブ", "勉強会"}
	cfg.EmptyCategory = config.EmptyCategoryPlaceholder
	r := NewRenderer(cfg)

	p := r.Render([]model.Event{ev("Go", "勉強会", model.Temporal{Kind: model.Undecided})}, may1)
	if p.Empty {
		t.Fatal("payload marked empty")
	}
	if len(p.Blocks) != 4 {
		t.Fatalf("blocks = %+v", p.Blocks)
	}
	if p.Blocks[1].Text != "*ライブ*\nなし" {
		t.Errorf("placeholder block = %q", p.Blocks[1].Text)
	}
	if p.Blocks[3].Kind != BlockContext {
		t.Errorf("last block = %+v, want footer", p.Blocks[3])
	}
}
