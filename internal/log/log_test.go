package log

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestLevelsAndFields(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	SetLevel(LevelInfo)

	Debug("hidden", "k", 1)
	Info("visible", "channel", "C1", "count", 3)
	Error("failed", errors.New("boom"), "channel", "C2")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug line written at info level: %s", out)
	}
	for _, want := range []string{`"message":"visible"`, `"channel":"C1"`, `"count":3`, `"error":"boom"`} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %s:\n%s", want, out)
		}
	}
}

func TestPairsDropsMalformed(t *testing.T) {
	got := pairs([]any{"a", 1, 2, "b", "dangling"})
	if len(got) != 2 || got[0] != "a" {
		t.Fatalf("pairs = %#v", got)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug":   LevelDebug,
		" WARN ":  LevelWarn,
		"error":   LevelError,
		"":        LevelInfo,
		"verbose": LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %s, want %s", in, got, want)
		}
	}
}
