// Package slackclient adapts the Slack Web API to the digest engine's
// Source and Publisher interfaces.
package slackclient

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/slack-go/slack"
	"golang.org/x/net/html"

	"eventdigest/internal/digest"
	appLog "eventdigest/internal/log"
	"eventdigest/internal/model"
)

const maxAttempts = 3

// Client reads channel history and posts digests with a bot token.
type Client struct {
	api      *slack.Client
	pageSize int

	mu    sync.Mutex
	seen  map[string]seenMessage // channel/ts -> data from the history listing
	names map[string]string
}

// seenMessage keeps what the history listing already told us about a
// message, so closure checks can skip redundant calls.
type seenMessage struct {
	reactions []string
	replies   int
}

// Option configures a Client.
type Option func(*options)

type options struct {
	apiURL     string
	httpClient *http.Client
}

// WithAPIURL points the client at another Web API base URL (tests, proxies).
// The URL must end with a slash.
func WithAPIURL(u string) Option {
	return func(o *options) { o.apiURL = u }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// New creates a Client for token. pageSize bounds each history/replies
// request.
func New(token string, pageSize int, opts ...Option) *Client {
	o := options{httpClient: &http.Client{Timeout: 15 * time.Second}}
	for _, opt := range opts {
		opt(&o)
	}
	sopts := []slack.Option{slack.OptionHTTPClient(o.httpClient)}
	if o.apiURL != "" {
		sopts = append(sopts, slack.OptionAPIURL(o.apiURL))
	}
	if pageSize <= 0 {
		pageSize = 200
	}
	return &Client{
		api:      slack.New(token, sopts...),
		pageSize: pageSize,
		seen:     make(map[string]seenMessage),
		names:    make(map[string]string),
	}
}

// ListMessages returns every top-level message of channel, newest first as
// Slack delivers them, following the cursor until has_more is false.
func (c *Client) ListMessages(ctx context.Context, channel string) ([]model.RawMessage, error) {
	var (
		out    []model.RawMessage
		cursor string
		pages  int
	)
	for {
		var resp *slack.GetConversationHistoryResponse
		err := c.retry(ctx, "conversations.history", func() error {
			var err error
			resp, err = c.api.GetConversationHistoryContext(ctx, &slack.GetConversationHistoryParameters{
				ChannelID: channel,
				Cursor:    cursor,
				Limit:     c.pageSize,
			})
			return err
		})
		if err != nil {
			return nil, err
		}
		pages++

		c.mu.Lock()
		for _, m := range resp.Messages {
			c.seen[key(channel, m.Timestamp)] = seenMessage{
				reactions: reactionNames(m.Reactions),
				replies:   m.ReplyCount,
			}
			out = append(out, toRaw(m))
		}
		c.mu.Unlock()

		cursor = resp.ResponseMetaData.NextCursor
		if !resp.HasMore || cursor == "" {
			break
		}
	}
	appLog.Debug("channel history loaded", "channel", channel, "messages", len(out), "pages", pages)
	return out, nil
}

// Reactions returns the reaction names on a message. Messages seen by
// ListMessages are answered from memory.
func (c *Client) Reactions(ctx context.Context, channel, messageID string) ([]string, error) {
	if s, ok := c.lookup(channel, messageID); ok {
		return s.reactions, nil
	}

	var resp *slack.GetConversationHistoryResponse
	err := c.retry(ctx, "conversations.history", func() error {
		var err error
		resp, err = c.api.GetConversationHistoryContext(ctx, &slack.GetConversationHistoryParameters{
			ChannelID: channel,
			Latest:    messageID,
			Inclusive: true,
			Limit:     1,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	for _, m := range resp.Messages {
		if m.Timestamp == messageID {
			return reactionNames(m.Reactions), nil
		}
	}
	return nil, nil
}

// ThreadReplies returns the texts of all replies in the thread rooted at
// messageID, excluding the root itself.
func (c *Client) ThreadReplies(ctx context.Context, channel, messageID string) ([]string, error) {
	if s, ok := c.lookup(channel, messageID); ok && s.replies == 0 {
		return nil, nil
	}

	var (
		out    []string
		cursor string
	)
	for {
		var (
			msgs    []slack.Message
			hasMore bool
			next    string
		)
		err := c.retry(ctx, "conversations.replies", func() error {
			var err error
			msgs, hasMore, next, err = c.api.GetConversationRepliesContext(ctx, &slack.GetConversationRepliesParameters{
				ChannelID: channel,
				Timestamp: messageID,
				Cursor:    cursor,
				Limit:     c.pageSize,
			})
			return err
		})
		if err != nil {
			return nil, err
		}
		for _, m := range msgs {
			if m.Timestamp == messageID {
				continue
			}
			out = append(out, html.UnescapeString(m.Text))
		}
		cursor = next
		if !hasMore || cursor == "" {
			break
		}
	}
	return out, nil
}

// Permalink returns the web link of a message.
func (c *Client) Permalink(ctx context.Context, channel, messageID string) (string, error) {
	var link string
	err := c.retry(ctx, "chat.getPermalink", func() error {
		var err error
		link, err = c.api.GetPermalinkContext(ctx, &slack.PermalinkParameters{Channel: channel, Ts: messageID})
		return err
	})
	return link, err
}

// ChannelName returns the channel's name; results are cached for the
// lifetime of the client.
func (c *Client) ChannelName(ctx context.Context, channel string) (string, error) {
	c.mu.Lock()
	name, ok := c.names[channel]
	c.mu.Unlock()
	if ok {
		return name, nil
	}

	var info *slack.Channel
	err := c.retry(ctx, "conversations.info", func() error {
		var err error
		info, err = c.api.GetConversationInfoContext(ctx, &slack.GetConversationInfoInput{ChannelID: channel})
		return err
	})
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.names[channel] = info.Name
	c.mu.Unlock()
	return info.Name, nil
}

// Publish posts the payload to destination as Block Kit sections, with the
// payload's Text as the notification fallback.
func (c *Client) Publish(ctx context.Context, destination string, p digest.Payload) error {
	blocks := toBlocks(p)
	return c.retry(ctx, "chat.postMessage", func() error {
		_, ts, err := c.api.PostMessageContext(ctx, destination,
			slack.MsgOptionText(p.Text, false),
			slack.MsgOptionBlocks(blocks...),
		)
		if err == nil {
			appLog.Debug("message posted", "channel", destination, "ts", ts)
		}
		return err
	})
}

// Reset drops everything remembered from earlier listings. Call it between
// runs of a long-lived process.
func (c *Client) Reset() {
	c.mu.Lock()
	c.seen = make(map[string]seenMessage)
	c.names = make(map[string]string)
	c.mu.Unlock()
}

func (c *Client) lookup(channel, ts string) (seenMessage, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.seen[key(channel, ts)]
	return s, ok
}

// retry runs fn, waiting out Slack rate limits up to maxAttempts times.
func (c *Client) retry(ctx context.Context, method string, fn func() error) error {
	for attempt := 1; ; attempt++ {
		err := fn()
		var rl *slack.RateLimitedError
		if err == nil || !errors.As(err, &rl) || attempt == maxAttempts {
			return err
		}
		appLog.Warn("slack rate limited; retrying", "method", method, "retry_after", rl.RetryAfter.String(), "attempt", attempt)
		t := time.NewTimer(rl.RetryAfter)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

func key(channel, ts string) string { return channel + "/" + ts }

func toRaw(m slack.Message) model.RawMessage {
	return model.RawMessage{
		ID:      m.Timestamp,
		Text:    html.UnescapeString(m.Text),
		SubType: m.SubType,
	}
}

func reactionNames(rs []slack.ItemReaction) []string {
	names := make([]string, 0, len(rs))
	for _, r := range rs {
		names = append(names, r.Name)
	}
	return names
}
