// Package digest turns the announcements of several channels into one
// ordered, categorized digest and hands it to a publisher.
package digest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"eventdigest/internal/closure"
	"eventdigest/internal/config"
	"eventdigest/internal/dateline"
	"eventdigest/internal/extract"
	appLog "eventdigest/internal/log"
	"eventdigest/internal/metrics"
	"eventdigest/internal/model"
)

// ErrProvider wraps every failure of an upstream call. A run that hits one
// is aborted; partial digests are never published.
var ErrProvider = errors.New("provider failure")

// Source is the message-history side of the upstream service.
type Source interface {
	closure.Signals
	// ListMessages returns all top-level messages of channel, paging
	// internally.
	ListMessages(ctx context.Context, channel string) ([]model.RawMessage, error)
	Permalink(ctx context.Context, channel, messageID string) (string, error)
	// ChannelName returns the display name of channel without a leading '#'.
	ChannelName(ctx context.Context, channel string) (string, error)
}

// Publisher delivers a rendered digest.
type Publisher interface {
	Publish(ctx context.Context, destination string, p Payload) error
}

// EventSink receives the events of every successful run. Sink errors are
// logged and never fail the run.
type EventSink interface {
	WriteEvents(ctx context.Context, events []model.Event, now time.Time) error
}

// Stats counts what happened to the scanned messages.
type Stats struct {
	Channels     int `json:"channels"`
	Scanned      int `json:"scanned"`
	Subtype      int `json:"subtype"`
	MissingField int `json:"missing_field"`
	BadDate      int `json:"bad_date"`
	Past         int `json:"past"`
	Closed       int `json:"closed"`
	Kept         int `json:"kept"`
}

// Result describes one run.
type Result struct {
	RunID     string        `json:"run_id"`
	Events    []model.Event `json:"-"`
	Payload   Payload       `json:"payload"`
	Stats     Stats         `json:"stats"`
	Published bool          `json:"published"`
}

// Option configures an Engine.
type Option func(*Engine)

// WithMetrics records message outcomes and run results on c.
func WithMetrics(c *metrics.Collector) Option {
	return func(e *Engine) { e.metrics = c }
}

// WithSink adds a sink that receives the events of each run.
func WithSink(s EventSink) Option {
	return func(e *Engine) { e.sinks = append(e.sinks, s) }
}

// Engine runs the collect/sort/group/render/publish pipeline.
type Engine struct {
	cfg       *config.Config
	src       Source
	pub       Publisher
	extractor *extract.Extractor
	closure   *closure.Detector
	renderer  *Renderer
	metrics   *metrics.Collector
	sinks     []EventSink
}

// New builds an Engine from a normalized config. pub may be nil when the
// engine is only used for previews or dry runs.
func New(cfg *config.Config, src Source, pub Publisher, opts ...Option) *Engine {
	e := &Engine{
		cfg: cfg,
		src: src,
		pub: pub,
		extractor: extract.New(extract.Labels{
			Title: cfg.Labels.Title,
			Date:  cfg.Labels.Date,
			Place: cfg.Labels.Place,
		}),
		closure:  closure.New(src, cfg.CloseReactions, cfg.CloseKeywords),
		renderer: NewRenderer(cfg),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Renderer returns the renderer used for payloads.
func (e *Engine) Renderer() *Renderer { return e.renderer }

// Collect scans every source channel in configured order and returns the
// surviving events in arrival order (unsorted).
func (e *Engine) Collect(ctx context.Context, now time.Time) ([]model.Event, Stats, error) {
	var (
		events []model.Event
		st     Stats
	)
	for _, ch := range e.cfg.SourceChannels {
		st.Channels++
		msgs, err := e.src.ListMessages(ctx, ch)
		if err != nil {
			return nil, st, fmt.Errorf("%w: list messages %s: %w", ErrProvider, ch, err)
		}

		category := ""
		for _, msg := range msgs {
			st.Scanned++
			ev, outcome, err := e.candidate(ctx, ch, msg, now)
			if err != nil {
				return nil, st, err
			}
			e.metrics.Message(outcome)
			if outcome != metrics.OutcomeKept {
				st.count(outcome)
				appLog.Debug("message dropped", "channel", ch, "ts", msg.ID, "reason", outcome)
				continue
			}

			// Permalink and category only for kept messages.
			link, err := e.src.Permalink(ctx, ch, msg.ID)
			if err != nil {
				return nil, st, fmt.Errorf("%w: permalink %s/%s: %w", ErrProvider, ch, msg.ID, err)
			}
			if category == "" {
				if category, err = e.category(ctx, ch); err != nil {
					return nil, st, err
				}
			}
			ev.Permalink = link
			ev.Category = category

			st.Kept++
			events = append(events, ev)
		}
	}
	return events, st, nil
}

// candidate applies the per-message filters. It returns the outcome label
// of the first filter that dropped msg, or OutcomeKept.
func (e *Engine) candidate(ctx context.Context, ch string, msg model.RawMessage, now time.Time) (model.Event, string, error) {
	if msg.SubType != "" {
		return model.Event{}, metrics.OutcomeSubtype, nil
	}

	f := e.extractor.Extract(msg.Text)
	if !f.Complete() {
		return model.Event{}, metrics.OutcomeMissingField, nil
	}

	t, err := dateline.Resolve(f.DateLine, now)
	if err != nil {
		appLog.Debug("date line rejected", "channel", ch, "ts", msg.ID, "line", f.DateLine, "err", err.Error())
		return model.Event{}, metrics.OutcomeBadDate, nil
	}
	if t.Decided() && t.Start.Before(now) {
		return model.Event{}, metrics.OutcomePast, nil
	}

	ref := model.SourceRef{Channel: ch, MessageID: msg.ID}
	closed, err := e.closure.IsClosed(ctx, ref)
	if err != nil {
		return model.Event{}, "", fmt.Errorf("%w: %w", ErrProvider, err)
	}
	if closed {
		return model.Event{}, metrics.OutcomeClosed, nil
	}

	return model.Event{
		Title:    f.Title,
		Place:    f.Place,
		Temporal: t,
		Ref:      ref,
	}, metrics.OutcomeKept, nil
}

func (e *Engine) category(ctx context.Context, ch string) (string, error) {
	cat, mapped := e.cfg.CategoryFor(ch)
	if mapped || !e.cfg.CategoryFromChannelName {
		return cat, nil
	}
	name, err := e.src.ChannelName(ctx, ch)
	if err != nil {
		return "", fmt.Errorf("%w: channel name %s: %w", ErrProvider, ch, err)
	}
	if name == "" {
		return cat, nil
	}
	return "#" + name, nil
}

// Build collects, sorts and renders without publishing.
func (e *Engine) Build(ctx context.Context, now time.Time) (Result, error) {
	res := Result{RunID: uuid.NewString()}
	events, st, err := e.Collect(ctx, now)
	res.Stats = st
	if err != nil {
		return res, err
	}
	SortEvents(events)
	res.Events = events
	res.Payload = e.renderer.Render(events, now)
	return res, nil
}

// Run performs one full pass: build the digest, feed the sinks and publish
// it unless the result is empty or the config asks for a dry run.
func (e *Engine) Run(ctx context.Context, now time.Time) (Result, error) {
	started := time.Now()
	res, err := e.Build(ctx, now)
	if err != nil {
		e.metrics.Run(metrics.RunFailed, 0, time.Since(started))
		appLog.Error("digest run failed", err, "run_id", res.RunID, "scanned", res.Stats.Scanned)
		return res, err
	}
	appLog.Info("digest built",
		"run_id", res.RunID,
		"channels", res.Stats.Channels,
		"scanned", res.Stats.Scanned,
		"kept", res.Stats.Kept,
	)

	for _, s := range e.sinks {
		if err := s.WriteEvents(ctx, res.Events, now); err != nil {
			appLog.Error("event sink failed", err, "run_id", res.RunID)
		}
	}

	switch {
	case res.Payload.Empty:
		appLog.Info("no open events; skipping publish", "run_id", res.RunID)
		e.metrics.Run(metrics.RunEmpty, 0, time.Since(started))
		return res, nil
	case e.cfg.DryRun || e.pub == nil:
		appLog.Info("dry run; digest not published", "run_id", res.RunID, "payload", res.Payload.PlainText())
		e.metrics.Run(metrics.RunDryRun, len(res.Events), time.Since(started))
		return res, nil
	}

	if err := e.pub.Publish(ctx, e.cfg.DestinationChannel, res.Payload); err != nil {
		e.metrics.Run(metrics.RunFailed, 0, time.Since(started))
		appLog.Error("publish failed", err, "run_id", res.RunID, "destination", e.cfg.DestinationChannel)
		return res, fmt.Errorf("publish: %w", err)
	}
	res.Published = true
	e.metrics.Run(metrics.RunPublished, len(res.Events), time.Since(started))
	appLog.Info("digest published", "run_id", res.RunID, "destination", e.cfg.DestinationChannel, "events", len(res.Events))
	return res, nil
}

func (s *Stats) count(outcome string) {
	switch outcome {
	case metrics.OutcomeSubtype:
		s.Subtype++
	case metrics.OutcomeMissingField:
		s.MissingField++
	case metrics.OutcomeBadDate:
		s.BadDate++
	case metrics.OutcomePast:
		s.Past++
	case metrics.OutcomeClosed:
		s.Closed++
	}
}
