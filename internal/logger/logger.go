// Package logger builds the zerolog logger used across the CLI.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

const (
	colorRed     = 31
	colorGreen   = 32
	colorYellow  = 33
	colorMagenta = 35
	colorBold    = 1
)

func colorize(s any, c int) string {
	return fmt.Sprintf("\x1b[%dm%v\x1b[0m", c, s)
}

// New creates a logger based on the ENV environment variable. The level comes from
// LOG_LEVEL and defaults to warn, so a CLI run stays quiet unless asked otherwise.
func New(w io.Writer) zerolog.Logger {
	var log zerolog.Logger
	switch os.Getenv("ENV") {
	case "", "dev", "development":
		log = NewDevelopment(w)
	default:
		log = NewProduction(w)
	}
	return log.Level(ParseLevel(os.Getenv("LOG_LEVEL")))
}

// ParseLevel maps a level name to a zerolog level, warn when empty or unknown.
func ParseLevel(s string) zerolog.Level {
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil || s == "" {
		return zerolog.WarnLevel
	}
	return level
}

// NewDevelopment creates a console logger with colored levels.
func NewDevelopment(w io.Writer) zerolog.Logger {
	output := zerolog.ConsoleWriter{
		Out:         w,
		TimeFormat:  "15:04:05",
		FormatLevel: formatLevel,
	}
	return zerolog.New(output).With().Timestamp().Logger()
}

// NewProduction creates a JSON logger with UNIX timestamps.
func NewProduction(w io.Writer) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	return zerolog.New(w).With().Timestamp().Logger()
}

func formatLevel(i any) string {
	ll, ok := i.(string)
	if !ok {
		return strings.ToUpper(fmt.Sprintf("%s", i))
	}
	switch ll {
	case "trace":
		return colorize("TRC", colorMagenta)
	case "debug":
		return colorize("DBG", colorYellow)
	case "info":
		return colorize("INF", colorGreen)
	case "warn", "error", "fatal", "panic":
		return colorize(strings.ToUpper(ll)[0:3], colorRed)
	}
	if len(ll) >= 3 {
		return colorize(strings.ToUpper(ll)[0:3], colorBold)
	}
	return strings.ToUpper(ll)
}
