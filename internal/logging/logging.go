package logging

import (
	"io"
	"log/slog"
	"os"
)

// Logger is the process-wide logger, also installed as slog's default.
var Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
	Level: slog.LevelInfo,
}))

// Setup configures the logger based on verbosity and output preferences.
func Setup(verbose bool, jsonOutput bool, w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return SetupLevel(level, jsonOutput, w)
}

// SetupLevel is Setup with an explicit level.
func SetupLevel(level slog.Level, jsonOutput bool, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: level,
	}

	if w == nil {
		w = os.Stderr
	}

	if jsonOutput {
		Logger = slog.New(slog.NewJSONHandler(w, opts))
	} else {
		Logger = slog.New(slog.NewTextHandler(w, opts))
	}
	slog.SetDefault(Logger)
	return Logger
}
