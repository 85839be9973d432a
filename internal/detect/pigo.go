package detect

import (
	"fmt"
	"image"
	"math"
	"os"

	pigo "github.com/esimov/pigo/core"
	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
	"golang.org/x/image/draw"
)

// PigoParams tunes the pixel-intensity-comparison cascade
type PigoParams struct {
	MinSize          int
	MaxSize          int
	ShiftFactor      float64
	ScaleFactor      float64
	IoUThreshold     float64
	QualityThreshold float32
	// Inputs whose longest side exceeds MaxDimension are downscaled before detection.
	MaxDimension int
}

// Pigo detects faces with a pigo cascade unpacked from disk
type Pigo struct {
	classifier *pigo.Pigo
	params     PigoParams
	logger     *logrus.Logger
}

func NewPigo(path string, params PigoParams, logger *logrus.Logger) (*Pigo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cascade file unavailable: %w", err)
	}

	classifier, err := pigo.NewPigo().Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("failed unpacking cascade %s: %w", path, err)
	}

	logger.WithField("cascade", path).Debug("Pigo cascade unpacked")

	return &Pigo{
		classifier: classifier,
		params:     params,
		logger:     logger,
	}, nil
}

func (p *Pigo) Detect(gray gocv.Mat) ([]image.Rectangle, error) {
	if err := validateInput(gray); err != nil {
		return nil, err
	}

	src, err := gray.ToImage()
	if err != nil {
		return nil, fmt.Errorf("failed converting Mat to image: %w", err)
	}

	bounds := src.Bounds()
	scale := downscaleFactor(bounds.Dx(), bounds.Dy(), p.params.MaxDimension)
	w := int(math.Round(float64(bounds.Dx()) * scale))
	h := int(math.Round(float64(bounds.Dy()) * scale))

	small := image.NewGray(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(small, small.Bounds(), src, bounds, draw.Src, nil)

	cp := pigo.CascadeParams{
		MinSize:     p.params.MinSize,
		MaxSize:     p.params.MaxSize,
		ShiftFactor: p.params.ShiftFactor,
		ScaleFactor: p.params.ScaleFactor,
		ImageParams: pigo.ImageParams{
			Pixels: small.Pix,
			Rows:   h,
			Cols:   w,
			Dim:    small.Stride,
		},
	}

	dets := p.classifier.RunCascade(cp, 0.0)
	dets = p.classifier.ClusterDetections(dets, p.params.IoUThreshold)

	rects := faceRects(dets, scale, bounds, p.params.QualityThreshold)

	p.logger.WithFields(logrus.Fields{
		"candidates": len(dets),
		"faces":      len(rects),
		"scale":      scale,
	}).Debug("Pigo detection finished")

	return rects, nil
}

func (p *Pigo) Close() error {
	return nil
}

// faceRects keeps detections scoring at least minQ, mapped back to source
// coordinates and clipped to bounds.
func faceRects(dets []pigo.Detection, scale float64, bounds image.Rectangle, minQ float32) []image.Rectangle {
	rects := make([]image.Rectangle, 0, len(dets))
	for _, d := range dets {
		if d.Q < minQ {
			continue
		}
		r := detectionRect(d.Row, d.Col, d.Scale, scale).Intersect(bounds)
		if !r.Empty() {
			rects = append(rects, r)
		}
	}
	return rects
}

// downscaleFactor returns the factor bringing the longest side down to maxDim,
// or 1 when no scaling is needed.
func downscaleFactor(w, h, maxDim int) float64 {
	longest := max(w, h)
	if maxDim <= 0 || longest <= maxDim {
		return 1
	}
	return float64(maxDim) / float64(longest)
}

// detectionRect maps a pigo detection (center + side) from the scaled
// image back to source coordinates.
func detectionRect(row, col, side int, scale float64) image.Rectangle {
	half := float64(side) / 2
	x0 := (float64(col) - half) / scale
	y0 := (float64(row) - half) / scale
	x1 := (float64(col) + half) / scale
	y1 := (float64(row) + half) / scale
	return image.Rect(
		int(math.Round(x0)), int(math.Round(y0)),
		int(math.Round(x1)), int(math.Round(y1)),
	)
}
