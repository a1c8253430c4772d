package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	slogcontext "github.com/veqryn/slog-context"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    slog.Level
		wantErr bool
	}{
		{name: "default", raw: "", want: DefaultLevel},
		{name: "debug", raw: "debug", want: slog.LevelDebug},
		{name: "info", raw: "INFO", want: slog.LevelInfo},
		{name: "warning alias", raw: "warning", want: slog.LevelWarn},
		{name: "error", raw: "error", want: slog.LevelError},
		{name: "numeric", raw: "-4", want: slog.LevelDebug},
		{name: "invalid", raw: "verbose", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLevel(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSelectLevel(t *testing.T) {
	raw, source := SelectLevel("debug", "error", "warn")
	assert.Equal(t, "debug", raw)
	assert.Equal(t, "flag", source)

	raw, source = SelectLevel(" ", "error", "warn")
	assert.Equal(t, "error", raw)
	assert.Equal(t, "env", source)

	raw, source = SelectLevel("", "", "warn")
	assert.Equal(t, "warn", raw)
	assert.Equal(t, "config", source)

	raw, source = SelectLevel("", "", "")
	assert.Equal(t, "", raw)
	assert.Equal(t, "default", source)
}

func TestSetup(t *testing.T) {
	previous := slog.Default()
	t.Cleanup(func() { slog.SetDefault(previous) })

	var buf bytes.Buffer
	ctx, err := Setup(context.Background(), &buf, "info", "", "")
	require.NoError(t, err)

	slogcontext.FromCtx(ctx).Info("hello", "k", "v")
	slogcontext.FromCtx(ctx).Debug("hidden")
	assert.Contains(t, buf.String(), "msg=hello k=v")
	assert.NotContains(t, buf.String(), "hidden")

	_, err = Setup(context.Background(), &buf, "", "", "loud")
	assert.ErrorContains(t, err, "config")
}
