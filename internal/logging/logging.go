package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	slogcontext "github.com/veqryn/slog-context"
)

// EnvKey selects the log level when no flag is given.
const EnvKey = "TAG2SHA_LOG_LEVEL"

const DefaultLevel = slog.LevelWarn

// SelectLevel picks the first non-empty value of flag, env and config and
// reports where it came from.
func SelectLevel(flagLevel, envLevel, configLevel string) (string, string) {
	if strings.TrimSpace(flagLevel) != "" {
		return flagLevel, "flag"
	}
	if strings.TrimSpace(envLevel) != "" {
		return envLevel, "env"
	}
	if strings.TrimSpace(configLevel) != "" {
		return configLevel, "config"
	}
	return "", "default"
}

func ParseLevel(raw string) (slog.Level, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return DefaultLevel, nil
	}
	if strings.EqualFold(value, "warning") {
		value = "warn"
	}

	if numeric, err := strconv.Atoi(value); err == nil {
		return slog.Level(numeric), nil
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(value)); err != nil {
		return DefaultLevel, fmt.Errorf("invalid log level %q", raw)
	}
	return level, nil
}

func New(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// Setup builds the logger for the CLI, makes it the default and attaches it
// to ctx.
func Setup(ctx context.Context, w io.Writer, flagLevel, envLevel, configLevel string) (context.Context, error) {
	raw, source := SelectLevel(flagLevel, envLevel, configLevel)
	level, err := ParseLevel(raw)
	if err != nil {
		return ctx, fmt.Errorf("%s: %w", source, err)
	}

	logger := New(w, level)
	slog.SetDefault(logger)
	return slogcontext.NewCtx(ctx, logger), nil
}
