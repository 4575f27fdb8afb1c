package logger

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	defaultLogger zerolog.Logger
	once          sync.Once
)

// Options controls how the process-wide logger is built.
type Options struct {
	Level  string    // zerolog level name, e.g. "debug", "info"
	Format string    // "console" for human-readable output, anything else for JSON
	Output io.Writer // defaults to os.Stderr
}

// Init initializes the default logger with JSON output on stderr at info level.
// It ensures that the logger is initialized only once.
func Init() {
	Configure(Options{})
}

// Configure builds the default logger from opts. Only the first call has any effect.
func Configure(opts Options) {
	once.Do(func() {
		defaultLogger = New(opts)
		defaultLogger.Debug().Msg("Logger initialized")
	})
}

// New builds a standalone logger without touching the process default.
func New(opts Options) zerolog.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	level, err := zerolog.ParseLevel(strings.ToLower(opts.Level))
	if err != nil || opts.Level == "" {
		level = zerolog.InfoLevel
	}

	if opts.Format == "console" {
		return zerolog.New(zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
		}).Level(level).With().Timestamp().Logger()
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

// Get returns the initialized default logger.
// It calls Init() to ensure the logger is ready before returning it.
func Get() zerolog.Logger {
	Init()
	return defaultLogger
}

// Component returns the default logger tagged with a component name.
func Component(name string) zerolog.Logger {
	l := Get()
	return l.With().Str("component", name).Logger()
}

// Debug logs a debug message using the default logger.
func Debug(msg string, args ...any) {
	l := Get()
	l.Debug().Fields(args).Msg(msg)
}
