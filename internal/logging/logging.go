// Package logging provides structured, component-tagged logging for dedupd.
package logging

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	mu     sync.RWMutex
	base   zerolog.Logger
	inited bool
)

// Config controls global logger initialization.
type Config struct {
	// Level is one of "debug", "info", "warn", "error". Defaults to "info".
	Level string
	// Pretty writes a human-readable console format instead of JSON.
	Pretty bool
	// FilePath, if set, also writes rotated JSON logs to disk.
	FilePath string
	// MaxSizeMB is the rotation threshold for FilePath (default 50).
	MaxSizeMB int
	// MaxBackups is how many rotated files to retain (default 5).
	MaxBackups int
}

// Init configures the process-wide base logger. Safe to call once at
// startup; WithComponent reads the configured base afterward.
func Init(cfg Config) {
	mu.Lock()
	defer mu.Unlock()

	level := parseLevel(cfg.Level)

	var writers []io.Writer
	if cfg.Pretty {
		writers = append(writers, zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		writers = append(writers, os.Stderr)
	}

	if cfg.FilePath != "" {
		maxSize := cfg.MaxSizeMB
		if maxSize <= 0 {
			maxSize = 50
		}
		maxBackups := cfg.MaxBackups
		if maxBackups <= 0 {
			maxBackups = 5
		}
		writers = append(writers, &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    maxSize,
			MaxBackups: maxBackups,
			MaxAge:     28,
			Compress:   true,
		})
	}

	var out io.Writer
	if len(writers) == 1 {
		out = writers[0]
	} else {
		out = zerolog.MultiLevelWriter(writers...)
	}

	base = zerolog.New(out).Level(level).With().Timestamp().Logger()
	inited = true
}

// WithComponent returns a logger tagged with a component name. If Init has
// not been called yet, it lazily initializes with sane defaults so packages
// can be used standalone (e.g. in tests).
func WithComponent(name string) zerolog.Logger {
	mu.RLock()
	ok := inited
	b := base
	mu.RUnlock()

	if !ok {
		Init(Config{Level: "info", Pretty: true})
		mu.RLock()
		b = base
		mu.RUnlock()
	}

	return b.With().Str("component", name).Logger()
}

func parseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "":
		return zerolog.InfoLevel
	default:
		return zerolog.InfoLevel
	}
}
