// Application settings backed by viper
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const EnvPrefix = "IMGEDIT"

// Config is the full application configuration
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Window   WindowConfig   `mapstructure:"window"`
	Detector DetectorConfig `mapstructure:"detector"`
	Display  DisplayConfig  `mapstructure:"display"`
	Adjust   AdjustConfig   `mapstructure:"adjust"`
}

type AppConfig struct {
	Debug    bool   `mapstructure:"debug"`
	LogLevel string `mapstructure:"log_level"`
}

type WindowConfig struct {
	Title  string  `mapstructure:"title"`
	Width  float32 `mapstructure:"width"`
	Height float32 `mapstructure:"height"`
}

// DetectorConfig selects and tunes the face detector backend
type DetectorConfig struct {
	Backend     string `mapstructure:"backend"`
	CascadePath string `mapstructure:"cascade_path"`

	// haar
	ScaleFactor  float64 `mapstructure:"scale_factor"`
	MinNeighbors int     `mapstructure:"min_neighbors"`

	// pigo
	MinSize          int     `mapstructure:"min_size"`
	MaxSize          int     `mapstructure:"max_size"`
	ShiftFactor      float64 `mapstructure:"shift_factor"`
	PigoScaleFactor  float64 `mapstructure:"pigo_scale_factor"`
	IoUThreshold     float64 `mapstructure:"iou_threshold"`
	QualityThreshold float32 `mapstructure:"quality_threshold"`
	MaxDimension     int     `mapstructure:"max_dimension"`
}

type DisplayConfig struct {
	MaxDimension int `mapstructure:"max_dimension"`
}

// AdjustConfig holds slider ranges for the adjustment windows
type AdjustConfig struct {
	BrightnessMin  float64 `mapstructure:"brightness_min"`
	BrightnessMax  float64 `mapstructure:"brightness_max"`
	ContrastMin    float64 `mapstructure:"contrast_min"`
	ContrastMax    float64 `mapstructure:"contrast_max"`
	ContrastStep   float64 `mapstructure:"contrast_step"`
	RotateStepDegs float64 `mapstructure:"rotate_step"`
}

// SetDefaults registers every known key so environment overrides apply on Unmarshal
func SetDefaults(v *viper.Viper) {
	v.SetDefault("app.debug", false)
	v.SetDefault("app.log_level", "info")

	v.SetDefault("window.title", "Image Processing App")
	v.SetDefault("window.width", 800)
	v.SetDefault("window.height", 600)

	v.SetDefault("detector.backend", "haar")
	v.SetDefault("detector.cascade_path", "data/haarcascade_frontalface_default.xml")
	v.SetDefault("detector.scale_factor", 1.3)
	v.SetDefault("detector.min_neighbors", 5)
	v.SetDefault("detector.min_size", 20)
	v.SetDefault("detector.max_size", 1000)
	v.SetDefault("detector.shift_factor", 0.1)
	v.SetDefault("detector.pigo_scale_factor", 1.1)
	v.SetDefault("detector.iou_threshold", 0.2)
	v.SetDefault("detector.quality_threshold", 5.0)
	v.SetDefault("detector.max_dimension", 1024)

	v.SetDefault("display.max_dimension", 2048)

	v.SetDefault("adjust.brightness_min", -255)
	v.SetDefault("adjust.brightness_max", 255)
	v.SetDefault("adjust.contrast_min", 0.5)
	v.SetDefault("adjust.contrast_max", 1.5)
	v.SetDefault("adjust.contrast_step", 0.01)
	v.SetDefault("adjust.rotate_step", 90)
}

// Load reads configuration from path, or from ./config.toml when path is empty.
// A missing default file is not an error; a missing explicit file is.
func Load(v *viper.Viper, path string) (*Config, error) {
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("toml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("could not read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("could not decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	cfg.Detector.CascadePath = ResolvePath(cfg.Detector.CascadePath)

	return &cfg, nil
}

// executableDir is replaced in tests
var executableDir = func() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", err
	}
	return filepath.Dir(exe), nil
}

// ResolvePath finds a relative data file in the working directory first and
// next to the executable second. Paths found in neither place are returned
// unchanged so the caller reports the name the user configured.
func ResolvePath(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if _, err := os.Stat(path); err == nil {
		return path
	}

	dir, err := executableDir()
	if err != nil {
		return path
	}
	candidate := filepath.Join(dir, path)
	if _, err := os.Stat(candidate); err == nil {
		return candidate
	}
	return path
}

// Validate checks value ranges that would otherwise fail deep inside OpenCV
func (c *Config) Validate() error {
	switch c.Detector.Backend {
	case "haar", "pigo":
	default:
		return fmt.Errorf("unknown detector backend: %q", c.Detector.Backend)
	}

	if c.Detector.ScaleFactor <= 1 {
		return fmt.Errorf("detector.scale_factor must be greater than 1, got %v", c.Detector.ScaleFactor)
	}
	if c.Detector.PigoScaleFactor <= 1 {
		return fmt.Errorf("detector.pigo_scale_factor must be greater than 1, got %v", c.Detector.PigoScaleFactor)
	}
	if c.Window.Width <= 0 || c.Window.Height <= 0 {
		return fmt.Errorf("invalid window size: %vx%v", c.Window.Width, c.Window.Height)
	}
	if c.Adjust.BrightnessMin >= c.Adjust.BrightnessMax {
		return fmt.Errorf("invalid brightness range: %v..%v", c.Adjust.BrightnessMin, c.Adjust.BrightnessMax)
	}
	if c.Adjust.ContrastMin < 0 || c.Adjust.ContrastMin >= c.Adjust.ContrastMax {
		return fmt.Errorf("invalid contrast range: %v..%v", c.Adjust.ContrastMin, c.Adjust.ContrastMax)
	}

	return nil
}
