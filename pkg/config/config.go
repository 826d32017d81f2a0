// Package config loads the YAML configuration shared by the vrw commands
package config

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/video-system/vrw/pkg/video"
	"gopkg.in/yaml.v3"
)

// Config holds all vrw configuration
type Config struct {
	Reader ReaderConfig `yaml:"reader"`
	Writer WriterConfig `yaml:"writer"`
	FFmpeg FFmpegConfig `yaml:"ffmpeg"`
	API    APIConfig    `yaml:"api"`
	Log    LogConfig    `yaml:"log"`
}

// ReaderConfig configures video readers
type ReaderConfig struct {
	Backend     string            `yaml:"backend"`      // ffmpeg, memory
	ToGray      bool              `yaml:"to_gray"`      // Reduce frames to luma
	DecodeOrder string            `yaml:"decode_order"` // sorted, requested
	Options     map[string]string `yaml:"options"`      // Backend options
}

// WriterConfig configures video writers
type WriterConfig struct {
	Backend     string            `yaml:"backend"`
	FPS         float64           `yaml:"fps"`          // 0 keeps the source rate
	Codec       string            `yaml:"codec"`        // libx264, libx265, mpeg4, ffv1
	FourCC      string            `yaml:"fourcc"`       // mp4v, avc1, hvc1, mjpg
	PixelFormat string            `yaml:"pixel_format"` // yuv420p, gray
	Preset      string            `yaml:"preset"`       // ultrafast, fast, medium, slow
	CRF         int               `yaml:"crf"`
	Encoder     map[string]string `yaml:"encoder"` // Extra codec options
	Options     map[string]string `yaml:"options"` // Backend options
}

// FFmpegConfig locates the ffmpeg binaries
type FFmpegConfig struct {
	Path      string `yaml:"path"`
	ProbePath string `yaml:"probe_path"`
}

// APIConfig configures the frame server
type APIConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	MediaDir string `yaml:"media_dir"` // Root for request paths; empty allows any path
}

// LogConfig configures logrus
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// Default returns the configuration used when no file is given
func Default() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

// LoadConfig loads configuration from a YAML file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand environment variables
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.setDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.Reader.Backend == "" {
		c.Reader.Backend = video.DefaultBackend
	}
	if c.Writer.Backend == "" {
		c.Writer.Backend = video.DefaultBackend
	}
	if c.API.Port == 0 {
		c.API.Port = 8080
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Validate checks values that defaults cannot repair
func (c *Config) Validate() error {
	if _, err := video.ParseDecodeOrder(c.Reader.DecodeOrder); err != nil {
		return fmt.Errorf("reader: %w", err)
	}
	if c.Writer.FPS < 0 {
		return fmt.Errorf("writer: fps must be positive, got %v", c.Writer.FPS)
	}
	if c.Writer.CRF < 0 || c.Writer.CRF > 51 {
		return fmt.Errorf("writer: crf must be in [0, 51], got %d", c.Writer.CRF)
	}
	if c.API.Port < 0 || c.API.Port > 65535 {
		return fmt.Errorf("api: invalid port %d", c.API.Port)
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("log: unknown format %q (want text or json)", c.Log.Format)
	}
	return nil
}

// ReaderOptions returns the reader configuration for the video package
func (c *Config) ReaderOptions() video.ReaderConfig {
	order, _ := video.ParseDecodeOrder(c.Reader.DecodeOrder)
	return video.ReaderConfig{
		Backend: c.Reader.Backend,
		ToGray:  c.Reader.ToGray,
		Order:   order,
		Options: c.backendOptions(c.Reader.Options),
	}
}

// DefaultFPS is the output frame rate when neither the config nor the
// source provides one
const DefaultFPS = 30.0

// WriterOptions returns the writer configuration for the video package
func (c *Config) WriterOptions() video.WriterConfig {
	return c.WriterOptionsFor(0)
}

// WriterOptionsFor returns the writer configuration for re-encoding a
// source that plays at sourceFPS. A configured fps takes precedence.
func (c *Config) WriterOptionsFor(sourceFPS float64) video.WriterConfig {
	fps := c.Writer.FPS
	if fps == 0 {
		fps = sourceFPS
	}
	if fps <= 0 {
		fps = DefaultFPS
	}
	return video.WriterConfig{
		Backend:        c.Writer.Backend,
		FPS:            fps,
		Codec:          c.Writer.Codec,
		FourCC:         c.Writer.FourCC,
		PixelFormat:    c.Writer.PixelFormat,
		Preset:         c.Writer.Preset,
		CRF:            c.Writer.CRF,
		EncoderOptions: c.Writer.Encoder,
		Options:        c.backendOptions(c.Writer.Options),
	}
}

// backendOptions merges the ffmpeg binary paths into backend options.
// Explicit options win.
func (c *Config) backendOptions(opts map[string]string) map[string]string {
	out := make(map[string]string, len(opts)+2)
	if c.FFmpeg.Path != "" {
		out["ffmpeg_path"] = c.FFmpeg.Path
	}
	if c.FFmpeg.ProbePath != "" {
		out["ffprobe_path"] = c.FFmpeg.ProbePath
	}
	for k, v := range opts {
		out[k] = v
	}
	return out
}

// SetupLogging applies the log section to the standard logrus logger
func (c *Config) SetupLogging() error {
	level, err := logrus.ParseLevel(c.Log.Level)
	if err != nil {
		return err
	}
	logrus.SetLevel(level)
	if c.Log.Format == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return nil
}
