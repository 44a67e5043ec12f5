package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spaghettifunk/luminax/engine/gfx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsAreValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 3, cfg.Renderer.FramesInFlight)
	assert.Equal(t, 2, cfg.Renderer.BackBufferCount)
	assert.Zero(t, cfg.Sync.WaitTimeout.Duration)

	bb, err := cfg.BackBufferFormat()
	require.NoError(t, err)
	assert.Equal(t, gfx.FormatR8G8B8A8Unorm, bb)
	ds, err := cfg.DepthStencilFormat()
	require.NoError(t, err)
	assert.Equal(t, gfx.FormatD24UnormS8Uint, ds)
}

func TestDecodeOverridesDefaults(t *testing.T) {
	cfg, err := Decode(strings.NewReader(`
[application]
log_level = "debug"

[window]
width = 1280
height = 720

[renderer]
backend = "headless"
frames_in_flight = 2
vsync = true

[sync]
wait_timeout = "250ms"

[metrics]
listen = ":9100"
`))
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Application.LogLevel)
	assert.Equal(t, "LuminaX", cfg.Application.Name)
	assert.Equal(t, uint32(1280), cfg.Window.Width)
	assert.Equal(t, int32(100), cfg.Window.X)
	assert.Equal(t, "headless", cfg.Renderer.Backend)
	assert.Equal(t, 2, cfg.Renderer.FramesInFlight)
	assert.Equal(t, 2, cfg.Renderer.BackBufferCount)
	assert.True(t, cfg.Renderer.VSync)
	assert.Equal(t, 250*time.Millisecond, cfg.Sync.WaitTimeout.Duration)
	assert.Equal(t, ":9100", cfg.Metrics.Listen)
}

func TestDecodeRejectsUnknownKeys(t *testing.T) {
	_, err := Decode(strings.NewReader(`
[renderer]
frame_in_flight = 2
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "frame_in_flight")
}

func TestDecodeRejectsBadSyntax(t *testing.T) {
	_, err := Decode(strings.NewReader("[window\nwidth = 3"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line ")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"no frames in flight", func(c *Config) { c.Renderer.FramesInFlight = 0 }, "frames_in_flight"},
		{"single backbuffer", func(c *Config) { c.Renderer.BackBufferCount = 1 }, "backbuffer_count"},
		{"zero width", func(c *Config) { c.Window.Width = 0 }, "window size"},
		{"unknown backend", func(c *Config) { c.Renderer.Backend = "metal" }, "renderer.backend"},
		{"unknown format", func(c *Config) { c.Renderer.BackBufferFormat = "RGB565" }, "backbuffer_format"},
		{"color depth format", func(c *Config) { c.Renderer.DepthStencilFormat = "R8G8B8A8_UNORM" }, "not a depth format"},
		{"bad log level", func(c *Config) { c.Application.LogLevel = "trace" }, "log_level"},
		{"negative timeout", func(c *Config) { c.Sync.WaitTimeout.Duration = -time.Second }, "wait_timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadMissingFileGivesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestEncodeLoadRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Sync.WaitTimeout.Duration = 2 * time.Second
	cfg.Assets.Watch = true

	var buf bytes.Buffer
	require.NoError(t, cfg.Encode(&buf))
	path := filepath.Join(t.TempDir(), DefaultFile)
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}
