package closure

import (
	"context"
	"errors"
	"testing"

	"eventdigest/internal/model"
)

type fakeSignals struct {
	reactions   []string
	replies     []string
	reactErr    error
	replyErr    error
	replyCalls  int
	reactCalled int
}

func (f *fakeSignals) Reactions(context.Context, string, string) ([]string, error) {
	f.reactCalled++
	return f.reactions, f.reactErr
}

func (f *fakeSignals) ThreadReplies(context.Context, string, string) ([]string, error) {
	f.replyCalls++
	return f.replies, f.replyErr
}

var ref = model.SourceRef{Channel: "C1", MessageID: "1714000000.000100"}

func TestIsClosed(t *testing.T) {
	t.Parallel()

	reactions := []string{"no_entry", ":x:", "white_check_mark"}
	keywords := []string{"締切", "Closed", " "}

	cases := []struct {
		name        string
		sig         fakeSignals
		want        bool
		wantReplies int
	}{
		{"no signals", fakeSignals{reactions: []string{"tada"}, replies: []string{"楽しみ！"}}, false, 1},
		{"close reaction", fakeSignals{reactions: []string{"eyes", "x"}, replies: []string{"締切です"}}, true, 0},
		{"keyword in reply", fakeSignals{replies: []string{"参加します", "本日で締切ました"}}, true, 1},
		{"keyword case-insensitive", fakeSignals{replies: []string{"Registration CLOSED"}}, true, 1},
		{"reaction name is exact", fakeSignals{reactions: []string{"no_entry_sign"}}, false, 1},
	}

	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			sig := c.sig
			d := New(&sig, reactions, keywords)
			got, err := d.IsClosed(context.Background(), ref)
			if err != nil {
				t.Fatal(err)
			}
			if got != c.want {
				t.Errorf("IsClosed = %v, want %v", got, c.want)
			}
			if sig.replyCalls != c.wantReplies {
				t.Errorf("ThreadReplies calls = %d, want %d", sig.replyCalls, c.wantReplies)
			}
		})
	}
}

func TestIsClosedPropagatesErrors(t *testing.T) {
	t.Parallel()

	boom := errors.New("rate limited")

	sig := &fakeSignals{reactErr: boom}
	if _, err := New(sig, nil, []string{"close"}).IsClosed(context.Background(), ref); !errors.Is(err, boom) {
		t.Fatalf("reaction error = %v", err)
	}
	if sig.replyCalls != 0 {
		t.Fatalf("replies fetched after reaction failure")
	}

	sig = &fakeSignals{replyErr: boom}
	if _, err := New(sig, nil, []string{"close"}).IsClosed(context.Background(), ref); !errors.Is(err, boom) {
		t.Fatalf("reply error = %v", err)
	}
}

func TestNoKeywordsSkipsReplies(t *testing.T) {
	t.Parallel()

	sig := &fakeSignals{replies: []string{"closed"}}
	closed, err := New(sig, []string{"x"}, nil).IsClosed(context.Background(), ref)
	if err != nil || closed {
		t.Fatalf("IsClosed = %v, %v", closed, err)
	}
	if sig.replyCalls != 0 {
		t.Fatalf("replies fetched with no keywords configured")
	}
}
