package gui

import (
	"fmt"
	"image"
	"image/color"

	"github.com/nfnt/resize"
	"gocv.io/x/gocv"
)

// toDisplayImage converts a BGR Mat into an image.Image for the canvas,
// shrinking it when either side exceeds maxDim. maxDim <= 0 disables scaling.
func toDisplayImage(mat gocv.Mat, maxDim int) (image.Image, error) {
	if mat.Empty() {
		return nil, fmt.Errorf("cannot display empty image")
	}

	img, err := mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("failed to convert Mat to image: %w", err)
	}

	b := img.Bounds()
	if maxDim > 0 && (b.Dx() > maxDim || b.Dy() > maxDim) {
		img = resize.Thumbnail(uint(maxDim), uint(maxDim), img, resize.Lanczos3)
	}

	return img, nil
}

func placeholderImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 200, 150))
	for y := 0; y < 150; y++ {
		for x := 0; x < 200; x++ {
			img.Set(x, y, color.RGBA{240, 240, 240, 255})
		}
	}
	return img
}
