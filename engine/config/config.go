// Package config loads the application settings from a TOML file.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/spaghettifunk/luminax/engine/gfx"
)

// DefaultFile is looked up in the working directory when no path is given.
const DefaultFile = "luminax.toml"

type Config struct {
	Application ApplicationConfig `toml:"application"`
	Window      WindowConfig      `toml:"window"`
	Renderer    RendererConfig    `toml:"renderer"`
	Sync        SyncConfig        `toml:"sync"`
	Assets      AssetsConfig      `toml:"assets"`
	Metrics     MetricsConfig     `toml:"metrics"`
}

type ApplicationConfig struct {
	Name     string `toml:"name"`
	LogLevel string `toml:"log_level"`
	// Stops the run loop after this many frames, zero runs until the window
	// closes.
	MaxFrames uint64 `toml:"max_frames"`
}

type WindowConfig struct {
	X      int32  `toml:"x"`
	Y      int32  `toml:"y"`
	Width  uint32 `toml:"width"`
	Height uint32 `toml:"height"`
}

type RendererConfig struct {
	// "vulkan" or "headless".
	Backend            string     `toml:"backend"`
	FramesInFlight     int        `toml:"frames_in_flight"`
	BackBufferCount    int        `toml:"backbuffer_count"`
	BackBufferFormat   string     `toml:"backbuffer_format"`
	DepthStencilFormat string     `toml:"depth_stencil_format"`
	VSync              bool       `toml:"vsync"`
	Validation         bool       `toml:"validation"`
	ClearColor         [4]float32 `toml:"clear_color"`
}

type SyncConfig struct {
	// Longest single CPU wait on the GPU before the device is considered
	// lost. Zero waits forever.
	WaitTimeout Duration `toml:"wait_timeout"`
}

type AssetsConfig struct {
	ShaderDir string `toml:"shader_dir"`
	Watch     bool   `toml:"watch"`
}

type MetricsConfig struct {
	// Address of the Prometheus endpoint, empty disables it.
	Listen string `toml:"listen"`
}

// Duration reads values such as "500ms" or "2s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

func Default() *Config {
	return &Config{
		Application: ApplicationConfig{
			Name:     "LuminaX",
			LogLevel: "info",
		},
		Window: WindowConfig{
			X:      100,
			Y:      100,
			Width:  800,
			Height: 600,
		},
		Renderer: RendererConfig{
			Backend:            "vulkan",
			FramesInFlight:     3,
			BackBufferCount:    2,
			BackBufferFormat:   gfx.FormatR8G8B8A8Unorm.String(),
			DepthStencilFormat: gfx.FormatD24UnormS8Uint.String(),
			ClearColor:         [4]float32{0.69, 0.77, 0.87, 1},
		},
		Assets: AssetsConfig{
			ShaderDir: "assets/shaders",
		},
	}
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultFile
	}
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg := Default()
		return cfg, cfg.Validate()
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cfg, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Decode reads TOML from r over the defaults and validates the result.
// Unknown keys are rejected.
func Decode(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := toml.NewDecoder(r).DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			row, col := derr.Position()
			return nil, fmt.Errorf("line %d column %d: %s", row, col, derr.Error())
		}
		var serr *toml.StrictMissingError
		if errors.As(err, &serr) {
			return nil, fmt.Errorf("unknown keys:\n%s", serr.String())
		}
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Encode writes cfg as TOML.
func (c *Config) Encode(w io.Writer) error {
	return toml.NewEncoder(w).Encode(c)
}

func (c *Config) Validate() error {
	var errs []error
	switch c.Application.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("application.log_level %q is not one of debug, info, warn, error", c.Application.LogLevel))
	}
	if c.Window.Width == 0 || c.Window.Height == 0 {
		errs = append(errs, fmt.Errorf("window size %dx%d must not be zero", c.Window.Width, c.Window.Height))
	}
	switch c.Renderer.Backend {
	case "vulkan", "headless":
	default:
		errs = append(errs, fmt.Errorf("renderer.backend %q is not one of vulkan, headless", c.Renderer.Backend))
	}
	if c.Renderer.FramesInFlight < 1 {
		errs = append(errs, fmt.Errorf("renderer.frames_in_flight must be at least 1, got %d", c.Renderer.FramesInFlight))
	}
	if c.Renderer.BackBufferCount < 2 {
		errs = append(errs, fmt.Errorf("renderer.backbuffer_count must be at least 2, got %d", c.Renderer.BackBufferCount))
	}
	if _, err := c.BackBufferFormat(); err != nil {
		errs = append(errs, fmt.Errorf("renderer.backbuffer_format: %w", err))
	}
	if f, err := c.DepthStencilFormat(); err != nil {
		errs = append(errs, fmt.Errorf("renderer.depth_stencil_format: %w", err))
	} else if !f.IsDepth() {
		errs = append(errs, fmt.Errorf("renderer.depth_stencil_format %s is not a depth format", f))
	}
	if c.Sync.WaitTimeout.Duration < 0 {
		errs = append(errs, fmt.Errorf("sync.wait_timeout must not be negative, got %s", c.Sync.WaitTimeout))
	}
	return errors.Join(errs...)
}

func (c *Config) BackBufferFormat() (gfx.Format, error) {
	return gfx.ParseFormat(c.Renderer.BackBufferFormat)
}

func (c *Config) DepthStencilFormat() (gfx.Format, error) {
	return gfx.ParseFormat(c.Renderer.DepthStencilFormat)
}
