package detect

import (
	"fmt"
	"image"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

// Haar wraps an OpenCV cascade classifier. The cascade file is read on
// the first Detect call, so a missing file only fails detection.
type Haar struct {
	mu           sync.Mutex
	path         string
	scaleFactor  float64
	minNeighbors int
	logger       *logrus.Logger

	classifier gocv.CascadeClassifier
	loaded     bool
}

func NewHaar(path string, scaleFactor float64, minNeighbors int, logger *logrus.Logger) *Haar {
	return &Haar{
		path:         path,
		scaleFactor:  scaleFactor,
		minNeighbors: minNeighbors,
		logger:       logger,
	}
}

func (h *Haar) load() error {
	if h.loaded {
		return nil
	}

	if _, err := os.Stat(h.path); err != nil {
		return fmt.Errorf("cascade file unavailable: %w", err)
	}

	classifier := gocv.NewCascadeClassifier()
	if !classifier.Load(h.path) {
		classifier.Close()
		return fmt.Errorf("failed loading classifier file at %s", h.path)
	}

	h.classifier = classifier
	h.loaded = true
	h.logger.WithField("cascade", h.path).Debug("Haar cascade loaded")
	return nil
}

func (h *Haar) Detect(gray gocv.Mat) ([]image.Rectangle, error) {
	if err := validateInput(gray); err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.load(); err != nil {
		return nil, err
	}

	rects := h.classifier.DetectMultiScaleWithParams(
		gray, h.scaleFactor, h.minNeighbors, 0, image.Point{}, image.Point{},
	)

	h.logger.WithFields(logrus.Fields{
		"faces":  len(rects),
		"width":  gray.Cols(),
		"height": gray.Rows(),
	}).Debug("Haar detection finished")

	return rects, nil
}

func (h *Haar) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.loaded {
		h.loaded = false
		return h.classifier.Close()
	}
	return nil
}
