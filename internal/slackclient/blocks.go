package slackclient

import (
	"strings"

	"github.com/slack-go/slack"

	"eventdigest/internal/digest"
)

// Slack rejects section text longer than this.
const maxSectionText = 3000

func toBlocks(p digest.Payload) []slack.Block {
	var blocks []slack.Block
	for _, b := range p.Blocks {
		switch b.Kind {
		case digest.BlockContext:
			blocks = append(blocks, slack.NewContextBlock("",
				slack.NewTextBlockObject(slack.MarkdownType, b.Text, false, false)))
		default:
			for _, part := range splitLines(b.Text, maxSectionText) {
				blocks = append(blocks, slack.NewSectionBlock(
					slack.NewTextBlockObject(slack.MarkdownType, part, false, false), nil, nil))
			}
			if b.Kind == digest.BlockHeader {
				blocks = append(blocks, slack.NewDividerBlock())
			}
		}
	}
	return blocks
}

// splitLines cuts s into chunks of at most limit bytes, breaking at line
// ends. A single line longer than limit is cut hard.
func splitLines(s string, limit int) []string {
	if len(s) <= limit {
		return []string{s}
	}
	var (
		out []string
		cur strings.Builder
	)
	flush := func() {
		if cur.Len() > 0 {
			out = append(out, cur.String())
			cur.Reset()
		}
	}
	for _, line := range strings.Split(s, "\n") {
		for len(line) > limit {
			flush()
			cut := runeBoundary(line, limit)
			out = append(out, line[:cut])
			line = line[cut:]
		}
		if cur.Len() > 0 && cur.Len()+1+len(line) > limit {
			flush()
		}
		if cur.Len() > 0 {
			cur.WriteByte('\n')
		}
		cur.WriteString(line)
	}
	flush()
	return out
}

// runeBoundary returns the largest index <= n that does not split a UTF-8
// sequence.
func runeBoundary(s string, n int) int {
	for n > 0 && n < len(s) && s[n]&0xC0 == 0x80 {
		n--
	}
	return n
}
