package telemetry

import (
	"log"
	"log/slog"
	"os"
	"strings"
)

// SetupLogging installs the default slog logger and bridges the standard
// library logger into it. format is "json" or "text".
func SetupLogging(level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}

	var h slog.Handler
	if strings.EqualFold(strings.TrimSpace(format), "text") {
		h = slog.NewTextHandler(os.Stdout, opts)
	} else {
		h = slog.NewJSONHandler(os.Stdout, opts)
	}

	l := slog.New(h).With(slog.String("service", "quizbot"))
	slog.SetDefault(l)

	bridge := slog.NewLogLogger(h, slog.LevelInfo)
	log.SetOutput(bridge.Writer())
	log.SetFlags(0)

	return l
}

func parseLevel(s string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo
	}
	return lvl
}
