// Package logging configures the global slog logger for xselect.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/pwntr/tinter"
)

// Format selects the log output format.
type Format string

const (
	FormatAuto Format = "auto"
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// ParseFormat converts a string to a Format, returning FormatAuto for unknown values.
func ParseFormat(s string) Format {
	switch strings.ToLower(s) {
	case "text", "tint", "human":
		return FormatText
	case "json":
		return FormatJSON
	default:
		return FormatAuto
	}
}

// ParseLevel converts a string to a slog.Level, defaulting to Info.
func ParseLevel(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// Verbosity is the coarse level picked with -S, -Q and -V.
type Verbosity int

const (
	VerbosityDefault Verbosity = iota
	VerbositySilent
	VerbosityQuiet
	VerbosityVerbose
)

// Level maps the verbosity onto a slog level. Silent only lets errors
// through, quiet hides progress but keeps warnings, verbose shows every
// chunk. VerbosityDefault returns fallback.
func (v Verbosity) Level(fallback slog.Level) slog.Level {
	switch v {
	case VerbositySilent:
		return slog.LevelError
	case VerbosityQuiet:
		return slog.LevelWarn
	case VerbosityVerbose:
		return slog.LevelDebug
	default:
		return fallback
	}
}

// PickVerbosity resolves the verbosity flags. The quietest flag given wins.
func PickVerbosity(silent, quiet, verbose bool) Verbosity {
	switch {
	case silent:
		return VerbositySilent
	case quiet:
		return VerbosityQuiet
	case verbose:
		return VerbosityVerbose
	default:
		return VerbosityDefault
	}
}

// IsTTY reports whether w is a terminal.
func IsTTY(w io.Writer) bool {
	if f, ok := w.(*os.File); ok {
		return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return false
}

// NewHandler builds the handler Setup installs, writing to w.
func NewHandler(w io.Writer, format Format, level slog.Level) slog.Handler {
	useTint := format == FormatText || (format == FormatAuto && IsTTY(w))
	if useTint {
		return tinter.NewHandler(w, &tinter.Options{
			Level:      level,
			TimeFormat: "15:04:05.000",
		})
	}
	return slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	})
}

// Setup configures the global slog logger. Call once after flag/viper parsing.
func Setup(format Format, level slog.Level) {
	slog.SetDefault(slog.New(NewHandler(os.Stderr, format, level)))
}
