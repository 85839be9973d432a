// Image metadata and validation helpers
package core

import (
	"fmt"

	"gocv.io/x/gocv"
)

// ImageMetadata describes the last successfully loaded image
type ImageMetadata struct {
	Width    int
	Height   int
	Channels int
	Type     gocv.MatType
	Format   string
	Path     string
}

// ValidateImage validates an OpenCV Mat for basic requirements
func ValidateImage(mat gocv.Mat) error {
	if mat.Empty() {
		return fmt.Errorf("image is empty")
	}

	if mat.Cols() <= 0 || mat.Rows() <= 0 {
		return fmt.Errorf("invalid dimensions: %dx%d", mat.Cols(), mat.Rows())
	}

	if mat.Channels() != 3 {
		return fmt.Errorf("unsupported channel count: %d", mat.Channels())
	}

	return nil
}

func closeAll(mats []gocv.Mat) {
	for i := range mats {
		mats[i].Close()
	}
}
