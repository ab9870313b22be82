// Package closure decides whether an announcement has stopped accepting
// entries, based on reactions on the root message and thread replies.
package closure

import (
	"context"
	"fmt"
	"strings"

	"eventdigest/internal/model"
)

// Signals is the part of the upstream provider the detector needs.
type Signals interface {
	// Reactions returns the symbolic names of reactions on the message.
	Reactions(ctx context.Context, channel, messageID string) ([]string, error)
	// ThreadReplies returns reply texts in order, root message excluded.
	ThreadReplies(ctx context.Context, channel, messageID string) ([]string, error)
}

// Detector holds the configured close reactions and keywords.
type Detector struct {
	src       Signals
	reactions map[string]struct{}
	keywords  []string
}

// New builds a Detector. Keywords are matched case-insensitively as
// substrings; empty entries are ignored.
func New(src Signals, reactions, keywords []string) *Detector {
	d := &Detector{
		src:       src,
		reactions: make(map[string]struct{}, len(reactions)),
	}
	for _, r := range reactions {
		r = strings.Trim(strings.TrimSpace(r), ":")
		if r != "" {
			d.reactions[r] = struct{}{}
		}
	}
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" {
			d.keywords = append(d.keywords, k)
		}
	}
	return d
}

// IsClosed reports whether ref carries a close reaction or a reply with a
// close keyword. The reply scan only runs when no reaction matched.
func (d *Detector) IsClosed(ctx context.Context, ref model.SourceRef) (bool, error) {
	names, err := d.src.Reactions(ctx, ref.Channel, ref.MessageID)
	if err != nil {
		return false, fmt.Errorf("reactions %s/%s: %w", ref.Channel, ref.MessageID, err)
	}
	for _, n := range names {
		if _, ok := d.reactions[n]; ok {
			return true, nil
		}
	}

	if len(d.keywords) == 0 {
		return false, nil
	}

	replies, err := d.src.ThreadReplies(ctx, ref.Channel, ref.MessageID)
	if err != nil {
		return false, fmt.Errorf("thread replies %s/%s: %w", ref.Channel, ref.MessageID, err)
	}
	for _, text := range replies {
		lower := strings.ToLower(text)
		for _, k := range d.keywords {
			if strings.Contains(lower, k) {
				return true, nil
			}
		}
	}
	return false, nil
}
