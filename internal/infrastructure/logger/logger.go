package logger

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options controls the global logger. File, when set, adds a rotating JSON
// log next to the console output.
type Options struct {
	Level string
	File  string
}

// Setup installs the global zerolog logger and returns a closer for the log
// file (a no-op when no file is configured).
func Setup(opts Options) func() error {
	console := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}

	var out io.Writer = console
	closer := func() error { return nil }
	if f := strings.TrimSpace(opts.File); f != "" {
		if dir := filepath.Dir(f); dir != "." && dir != "" {
			_ = os.MkdirAll(dir, 0o755)
		}
		rolling := &lumberjack.Logger{
			Filename:   f,
			MaxSize:    100, // MB
			MaxBackups: 7,
			MaxAge:     30, // days
			Compress:   true,
		}
		out = zerolog.MultiLevelWriter(console, rolling)
		closer = rolling.Close
	}

	log.Logger = zerolog.New(out).With().Timestamp().Logger()
	zerolog.SetGlobalLevel(ParseLevel(opts.Level))
	return closer
}

// ParseLevel maps a config string to a level, defaulting to info.
func ParseLevel(s string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil || s == "" {
		return zerolog.InfoLevel
	}
	return lvl
}
