// Two-buffer image processor: a committed baseline and the edited view
package core

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"sync"

	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"image-editor/internal/io"
)

var (
	// ErrNoImage is returned by every operation except Load while nothing is loaded.
	ErrNoImage = errors.New("no image loaded")

	ErrNoDetector = errors.New("no face detector configured")
)

const (
	MinBrightness = -255
	MaxBrightness = 255

	faceOutlineThickness = 2
)

var faceOutline = color.RGBA{R: 0, G: 255, B: 0, A: 0}

// Codec decodes and encodes image files by path
type Codec interface {
	LoadImage(path string) (gocv.Mat, error)
	SaveImage(mat gocv.Mat, path string) error
}

// FaceDetector finds face regions in a grayscale image
type FaceDetector interface {
	Detect(gray gocv.Mat) ([]image.Rectangle, error)
}

// Processor owns the original and current buffers.
//
// original is the last committed baseline. current is original with the
// most recent edit applied. Brightness and contrast always recompute
// current from original; Rotate and DetectFaces edit current in place.
// ApplyChanges makes current the new baseline.
type Processor struct {
	mu       sync.RWMutex
	original gocv.Mat
	current  gocv.Mat
	hasImage bool
	metadata ImageMetadata

	codec    Codec
	detector FaceDetector
	logger   *logrus.Logger
}

// NewProcessor creates an empty processor. detector may be nil, in which
// case DetectFaces returns ErrNoDetector.
func NewProcessor(codec Codec, detector FaceDetector, logger *logrus.Logger) *Processor {
	return &Processor{
		original: gocv.NewMat(),
		current:  gocv.NewMat(),
		codec:    codec,
		detector: detector,
		logger:   logger,
	}
}

// Load decodes path into both buffers. On failure the previous image, if
// any, stays loaded.
func (p *Processor) Load(path string) error {
	mat, err := p.codec.LoadImage(path)
	if err != nil {
		return fmt.Errorf("failed to load image: %w", err)
	}
	defer mat.Close()

	if err := ValidateImage(mat); err != nil {
		return fmt.Errorf("invalid image: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.release()
	p.original = mat.Clone()
	p.current = mat.Clone()
	p.hasImage = true
	p.metadata = ImageMetadata{
		Width:    mat.Cols(),
		Height:   mat.Rows(),
		Channels: mat.Channels(),
		Type:     mat.Type(),
		Format:   io.Format(path),
		Path:     path,
	}

	p.logger.WithFields(logrus.Fields{
		"filepath": path,
		"width":    p.metadata.Width,
		"height":   p.metadata.Height,
	}).Info("Image state reset from file")

	return nil
}

// Save encodes the current buffer to path
func (p *Processor) Save(path string) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.hasImage {
		return ErrNoImage
	}

	if err := p.codec.SaveImage(p.current, path); err != nil {
		return fmt.Errorf("failed to save image: %w", err)
	}
	return nil
}

// Rotate turns current about its center by angle degrees, counter-clockwise
// for positive angles. The canvas keeps its size; corners are clipped and
// uncovered areas are black.
func (p *Processor) Rotate(angle float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.hasImage {
		return ErrNoImage
	}

	size := image.Pt(p.current.Cols(), p.current.Rows())
	center := image.Pt(size.X/2, size.Y/2)

	m := gocv.GetRotationMatrix2D(center, angle, 1.0)
	defer m.Close()

	rotated := gocv.NewMat()
	gocv.WarpAffine(p.current, &rotated, m, size)
	if rotated.Empty() {
		rotated.Close()
		return fmt.Errorf("rotation by %v degrees produced no output", angle)
	}

	p.replaceCurrent(rotated)
	p.logger.WithField("angle", angle).Debug("Image rotated")
	return nil
}

// DetectFaces outlines every detected face on current and returns the regions
func (p *Processor) DetectFaces() ([]image.Rectangle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.hasImage {
		return nil, ErrNoImage
	}
	if p.detector == nil {
		return nil, ErrNoDetector
	}

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(p.current, &gray, gocv.ColorBGRToGray)

	faces, err := p.detector.Detect(gray)
	if err != nil {
		return nil, fmt.Errorf("face detection failed: %w", err)
	}

	for _, r := range faces {
		gocv.Rectangle(&p.current, r, faceOutline, faceOutlineThickness)
	}

	p.logger.WithField("faces", len(faces)).Info("Face detection finished")
	return faces, nil
}

// ChangeBrightness recomputes current from original with delta added to
// the HSV value channel. delta is clamped to [MinBrightness, MaxBrightness]
// and the resulting value saturates at [0, 255]. The HSV round trip rounds,
// so unsaturated pixels may differ from an exact shift by one level.
func (p *Processor) ChangeBrightness(delta int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.hasImage {
		return ErrNoImage
	}

	delta = min(max(delta, MinBrightness), MaxBrightness)

	hsv := gocv.NewMat()
	defer hsv.Close()
	gocv.CvtColor(p.original, &hsv, gocv.ColorBGRToHSV)

	channels := gocv.Split(hsv)
	defer closeAll(channels)
	if len(channels) != 3 {
		return fmt.Errorf("expected 3 HSV channels, got %d", len(channels))
	}

	value := gocv.NewMat()
	// 8U -> 8U conversion saturates, which is the [0, 255] clamp.
	channels[2].ConvertToWithParams(&value, gocv.MatTypeCV8U, 1, float32(delta))
	channels[2].Close()
	channels[2] = value

	merged := gocv.NewMat()
	defer merged.Close()
	gocv.Merge(channels, &merged)

	result := gocv.NewMat()
	gocv.CvtColor(merged, &result, gocv.ColorHSVToBGR)

	p.replaceCurrent(result)
	p.logger.WithField("delta", delta).Debug("Brightness applied")
	return nil
}

// ChangeContrast recomputes current from original with every channel
// multiplied by factor and saturated to [0, 255]. Products are rounded to the
// nearest integer rather than truncated, so a result can sit
// one level above a truncating implementation.
func (p *Processor) ChangeContrast(factor float64) error {
	if factor < 0 {
		return fmt.Errorf("contrast factor must not be negative: %v", factor)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.hasImage {
		return ErrNoImage
	}

	result := gocv.NewMat()
	p.original.ConvertToWithParams(&result, gocv.MatTypeCV8U, float32(factor), 0)

	p.replaceCurrent(result)
	p.logger.WithField("factor", factor).Debug("Contrast applied")
	return nil
}

// ApplyChanges commits current as the new baseline
func (p *Processor) ApplyChanges() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.hasImage {
		return ErrNoImage
	}

	p.original.Close()
	p.original = p.current.Clone()
	p.logger.Debug("Changes committed to baseline")
	return nil
}

// Revert drops the uncommitted edit by copying original back into current
func (p *Processor) Revert() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.hasImage {
		return ErrNoImage
	}

	p.replaceCurrent(p.original.Clone())
	p.logger.Debug("Current image reverted to baseline")
	return nil
}

// Image returns a copy of current. The caller must Close it.
func (p *Processor) Image() (gocv.Mat, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.hasImage {
		return gocv.NewMat(), false
	}
	return p.current.Clone(), true
}

// Original returns a copy of the committed baseline. The caller must Close it.
func (p *Processor) Original() (gocv.Mat, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.hasImage {
		return gocv.NewMat(), false
	}
	return p.original.Clone(), true
}

func (p *Processor) HasImage() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.hasImage
}

func (p *Processor) Metadata() ImageMetadata {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.metadata
}

// Close releases both buffers and returns to the empty state
func (p *Processor) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.release()
	p.original = gocv.NewMat()
	p.current = gocv.NewMat()
	p.hasImage = false
	p.metadata = ImageMetadata{}
}

func (p *Processor) release() {
	p.original.Close()
	p.current.Close()
}

// replaceCurrent takes ownership of mat. Callers hold the write lock.
func (p *Processor) replaceCurrent(mat gocv.Mat) {
	p.current.Close()
	p.current = mat
}
