// Package detect locates face-like regions in grayscale images.
package detect

import (
	"fmt"
	"image"

	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"image-editor/internal/config"
)

// Detector finds face regions in a single-channel 8-bit image
type Detector interface {
	Detect(gray gocv.Mat) ([]image.Rectangle, error)
	Close() error
}

// New builds the detector backend named by cfg.Backend
func New(cfg config.DetectorConfig, logger *logrus.Logger) (Detector, error) {
	switch cfg.Backend {
	case "haar", "":
		return NewHaar(cfg.CascadePath, cfg.ScaleFactor, cfg.MinNeighbors, logger), nil
	case "pigo":
		d, err := NewPigo(cfg.CascadePath, PigoParams{
			MinSize:          cfg.MinSize,
			MaxSize:          cfg.MaxSize,
			ShiftFactor:      cfg.ShiftFactor,
			ScaleFactor:      cfg.PigoScaleFactor,
			IoUThreshold:     cfg.IoUThreshold,
			QualityThreshold: cfg.QualityThreshold,
			MaxDimension:     cfg.MaxDimension,
		}, logger)
		if err != nil {
			return nil, err
		}
		return d, nil
	default:
		return nil, fmt.Errorf("unknown detector backend: %q", cfg.Backend)
	}
}

func validateInput(gray gocv.Mat) error {
	if gray.Empty() {
		return fmt.Errorf("empty input image")
	}
	if gray.Channels() != 1 {
		return fmt.Errorf("expected single-channel image, got %d channels", gray.Channels())
	}
	return nil
}
