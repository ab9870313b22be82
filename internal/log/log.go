package log

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

var (
	mu     sync.RWMutex
	logger zerolog.Logger
	inited bool
)

// initLogger builds the process logger on first use. Terminals get the
// console writer; anything else (journald, files, pipes) gets JSON lines.
func initLogger() {
	mu.Lock()
	defer mu.Unlock()
	if inited {
		return
	}
	zerolog.TimeFieldFormat = time.RFC3339Nano

	var w io.Writer = os.Stderr
	if fi, err := os.Stderr.Stat(); err == nil && fi.Mode()&os.ModeCharDevice != 0 {
		w = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}
	logger = zerolog.New(w).Level(zerolog.InfoLevel).With().Timestamp().Logger()
	inited = true
}

// SetOutput redirects log output. Tests use it to capture lines.
func SetOutput(w io.Writer) {
	initLogger()
	mu.Lock()
	logger = logger.Output(w)
	mu.Unlock()
}

func SetLevel(l Level) {
	initLogger()
	mu.Lock()
	logger = logger.Level(toZerolog(l))
	mu.Unlock()
}

// ParseLevel maps a flag/config string to a Level, defaulting to INFO.
func ParseLevel(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug
	case "WARN", "WARNING":
		return LevelWarn
	case "ERROR":
		return LevelError
	default:
		return LevelInfo
	}
}

func Debug(msg string, kv ...any) {
	get().Debug().Fields(pairs(kv)).Msg(msg)
}

func Info(msg string, kv ...any) {
	get().Info().Fields(pairs(kv)).Msg(msg)
}

func Warn(msg string, kv ...any) {
	get().Warn().Fields(pairs(kv)).Msg(msg)
}

func Error(msg string, err error, kv ...any) {
	get().Error().Err(err).Fields(pairs(kv)).Msg(msg)
}

func get() *zerolog.Logger {
	initLogger()
	mu.RLock()
	l := logger
	mu.RUnlock()
	return &l
}

// pairs drops a trailing key without a value and any non-string key so
// zerolog never sees a malformed field list.
func pairs(kv []any) []any {
	out := make([]any, 0, len(kv))
	for i := 0; i+1 < len(kv); i += 2 {
		if _, ok := kv[i].(string); !ok {
			continue
		}
		out = append(out, kv[i], kv[i+1])
	}
	return out
}

func toZerolog(l Level) zerolog.Level {
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
