package core

import (
	"errors"
	"image"
	"image/color"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"image-editor/internal/io"
)

type stubDetector struct {
	faces []image.Rectangle
	err   error
	calls int
	gray  int // channel count of the last input
}

func (s *stubDetector) Detect(gray gocv.Mat) ([]image.Rectangle, error) {
	s.calls++
	s.gray = gray.Channels()
	return s.faces, s.err
}

func newTestLogger() *logrus.Logger {
	logger, _ := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	return logger
}

// patternMat draws distinct colored blocks so rotations and channel
// swaps are observable. Colors are primaries and grays, which survive an
// 8-bit HSV round trip unchanged.
func patternMat(size int) gocv.Mat {
	mat := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(128, 128, 128, 0), size, size, gocv.MatTypeCV8UC3)
	q := size / 4
	gocv.Rectangle(&mat, image.Rect(0, 0, q, q), color.RGBA{R: 255}, -1)
	gocv.Rectangle(&mat, image.Rect(size-q, 0, size, q), color.RGBA{G: 255}, -1)
	gocv.Rectangle(&mat, image.Rect(0, size-q, q, size), color.RGBA{B: 255}, -1)
	gocv.Rectangle(&mat, image.Rect(q, q, 2*q, 2*q), color.RGBA{R: 40, G: 40, B: 40}, -1)
	return mat
}

// writeImage saves mat as PNG in a temp dir and returns the path
func writeImage(t *testing.T, mat gocv.Mat) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "input.png")
	require.True(t, gocv.IMWrite(path, mat))
	return path
}

func maxAbsDiff(t *testing.T, a, b gocv.Mat) int {
	t.Helper()
	require.Equal(t, a.Rows(), b.Rows())
	require.Equal(t, a.Cols(), b.Cols())
	require.Equal(t, a.Channels(), b.Channels())

	ab, bb := a.ToBytes(), b.ToBytes()
	require.Equal(t, len(ab), len(bb))

	worst := 0
	for i := range ab {
		d := int(ab[i]) - int(bb[i])
		if d < 0 {
			d = -d
		}
		worst = max(worst, d)
	}
	return worst
}

func newLoadedProcessor(t *testing.T, mat gocv.Mat, detector FaceDetector) *Processor {
	t.Helper()
	logger := newTestLogger()
	p := NewProcessor(io.NewImageLoader(logger), detector, logger)
	t.Cleanup(p.Close)
	require.NoError(t, p.Load(writeImage(t, mat)))
	return p
}

func current(t *testing.T, p *Processor) gocv.Mat {
	t.Helper()
	mat, ok := p.Image()
	require.True(t, ok)
	t.Cleanup(func() { mat.Close() })
	return mat
}

func currentBytes(t *testing.T, p *Processor) []byte {
	t.Helper()
	mat := current(t, p)
	return mat.ToBytes()
}

func original(t *testing.T, p *Processor) gocv.Mat {
	t.Helper()
	mat, ok := p.Original()
	require.True(t, ok)
	t.Cleanup(func() { mat.Close() })
	return mat
}

func TestEmptyProcessorIsNoOp(t *testing.T) {
	logger := newTestLogger()
	detector := &stubDetector{}
	p := NewProcessor(io.NewImageLoader(logger), detector, logger)
	defer p.Close()

	assert.False(t, p.HasImage())

	ops := map[string]func() error{
		"save":       func() error { return p.Save(filepath.Join(t.TempDir(), "out.png")) },
		"rotate":     func() error { return p.Rotate(90) },
		"brightness": func() error { return p.ChangeBrightness(10) },
		"contrast":   func() error { return p.ChangeContrast(1.2) },
		"apply":      p.ApplyChanges,
		"revert":     p.Revert,
		"detect": func() error {
			_, err := p.DetectFaces()
			return err
		},
	}

	for name, op := range ops {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, op(), ErrNoImage)
			assert.False(t, p.HasImage())
		})
	}

	img, ok := p.Image()
	defer img.Close()
	assert.False(t, ok)
	assert.True(t, img.Empty())
	assert.Zero(t, detector.calls)
}

func TestLoadKeepsDimensions(t *testing.T) {
	src := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(1, 2, 3, 0), 30, 50, gocv.MatTypeCV8UC3)
	defer src.Close()

	p := newLoadedProcessor(t, src, nil)

	img := current(t, p)
	assert.Equal(t, 50, img.Cols())
	assert.Equal(t, 30, img.Rows())
	assert.Equal(t, 3, img.Channels())

	meta := p.Metadata()
	assert.Equal(t, 50, meta.Width)
	assert.Equal(t, 30, meta.Height)
	assert.Equal(t, "png", meta.Format)
	assert.True(t, p.HasImage())
}

func TestFailedLoadKeepsPreviousImage(t *testing.T) {
	src := patternMat(21)
	defer src.Close()

	p := newLoadedProcessor(t, src, nil)
	before := p.Metadata()

	err := p.Load(filepath.Join(t.TempDir(), "missing.png"))
	require.Error(t, err)

	assert.True(t, p.HasImage())
	assert.Equal(t, before, p.Metadata())
	assert.Zero(t, maxAbsDiff(t, src, current(t, p)))
}

func TestFailedFirstLoadStaysEmpty(t *testing.T) {
	logger := newTestLogger()
	p := NewProcessor(io.NewImageLoader(logger), nil, logger)
	defer p.Close()

	require.Error(t, p.Load(filepath.Join(t.TempDir(), "missing.png")))
	assert.False(t, p.HasImage())
	assert.ErrorIs(t, p.Rotate(90), ErrNoImage)
}

func TestSaveRoundTrip(t *testing.T) {
	src := patternMat(24)
	defer src.Close()

	p := newLoadedProcessor(t, src, nil)
	require.NoError(t, p.ChangeContrast(1.3))

	out := filepath.Join(t.TempDir(), "saved.png")
	require.NoError(t, p.Save(out))

	reloaded := gocv.IMRead(out, gocv.IMReadColor)
	defer reloaded.Close()
	require.False(t, reloaded.Empty())

	assert.Zero(t, maxAbsDiff(t, current(t, p), reloaded))
}

func TestSaveUnsupportedFormat(t *testing.T) {
	src := patternMat(8)
	defer src.Close()

	p := newLoadedProcessor(t, src, nil)
	err := p.Save(filepath.Join(t.TempDir(), "out.gif"))
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNoImage))
}

func TestBrightnessZeroIsIdentity(t *testing.T) {
	src := patternMat(20)
	defer src.Close()

	p := newLoadedProcessor(t, src, nil)
	require.NoError(t, p.ChangeBrightness(0))

	assert.LessOrEqual(t, maxAbsDiff(t, original(t, p), current(t, p)), 1)
}

func TestBrightnessClampsValueChannel(t *testing.T) {
	src := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(100, 100, 100, 0), 4, 4, gocv.MatTypeCV8UC3)
	defer src.Close()

	p := newLoadedProcessor(t, src, nil)

	tests := []struct {
		name  string
		delta int
		want  byte
	}{
		{"brighter", 50, 150},
		{"darker", -30, 70},
		{"saturates high", 255, 255},
		{"saturates low", -255, 0},
		{"delta clamped", 10000, 255},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.NoError(t, p.ChangeBrightness(tc.delta))
			for _, b := range currentBytes(t, p) {
				assert.Equal(t, tc.want, b)
			}
		})
	}
}

func TestBrightnessDerivesFromOriginal(t *testing.T) {
	src := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(100, 100, 100, 0), 4, 4, gocv.MatTypeCV8UC3)
	defer src.Close()

	p := newLoadedProcessor(t, src, nil)

	require.NoError(t, p.ChangeBrightness(40))
	require.NoError(t, p.ChangeBrightness(40))

	// two drags of the same slider value do not stack
	for _, b := range currentBytes(t, p) {
		assert.Equal(t, byte(140), b)
	}
}

func TestContrastOneIsIdentity(t *testing.T) {
	src := patternMat(20)
	defer src.Close()

	p := newLoadedProcessor(t, src, nil)
	require.NoError(t, p.ChangeContrast(1.0))

	assert.Zero(t, maxAbsDiff(t, original(t, p), current(t, p)))
}

func TestContrastScalesAndClamps(t *testing.T) {
	src := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(200, 100, 10, 0), 3, 3, gocv.MatTypeCV8UC3)
	defer src.Close()

	p := newLoadedProcessor(t, src, nil)

	require.NoError(t, p.ChangeContrast(1.5))
	assert.Equal(t, []byte{255, 150, 15}, currentBytes(t, p)[:3])

	require.NoError(t, p.ChangeContrast(0.5))
	assert.Equal(t, []byte{100, 50, 5}, currentBytes(t, p)[:3])

	require.Error(t, p.ChangeContrast(-1))
}

func TestContrastRoundsProducts(t *testing.T) {
	src := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(5, 9, 1, 0), 2, 2, gocv.MatTypeCV8UC3)
	defer src.Close()

	p := newLoadedProcessor(t, src, nil)

	// 7.5, 13.5 and 1.5 round up where truncation would give 7, 13 and 1
	require.NoError(t, p.ChangeContrast(1.5))
	assert.Equal(t, []byte{8, 14, 2}, currentBytes(t, p)[:3])
}

func TestValidateImageAcceptsLongSides(t *testing.T) {
	wide := gocv.NewMatWithSize(1, 20000, gocv.MatTypeCV8UC3)
	defer wide.Close()
	require.NoError(t, ValidateImage(wide))

	gray := gocv.NewMatWithSize(4, 4, gocv.MatTypeCV8U)
	defer gray.Close()
	require.Error(t, ValidateImage(gray))
}

func TestRotateRoundTrip(t *testing.T) {
	// odd side so the rotation center falls on a pixel
	src := patternMat(41)
	defer src.Close()

	p := newLoadedProcessor(t, src, nil)

	require.NoError(t, p.Rotate(90))
	rotated := current(t, p)
	assert.Equal(t, 41, rotated.Cols())
	assert.Equal(t, 41, rotated.Rows())
	assert.Greater(t, maxAbsDiff(t, src, rotated), 0)

	require.NoError(t, p.Rotate(-90))

	inner := image.Rect(2, 2, 39, 39)
	wantRegion := src.Region(inner)
	defer wantRegion.Close()
	want := wantRegion.Clone()
	defer want.Close()

	back := current(t, p)
	gotRegion := back.Region(inner)
	defer gotRegion.Close()
	got := gotRegion.Clone()
	defer got.Close()

	assert.LessOrEqual(t, maxAbsDiff(t, want, got), 2)
}

func TestRotatePreservesCanvas(t *testing.T) {
	src := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(255, 255, 255, 0), 20, 40, gocv.MatTypeCV8UC3)
	defer src.Close()

	p := newLoadedProcessor(t, src, nil)
	require.NoError(t, p.Rotate(45))

	img := current(t, p)
	assert.Equal(t, 40, img.Cols())
	assert.Equal(t, 20, img.Rows())
	// the top-left corner is uncovered after rotating a landscape canvas
	assert.Equal(t, []byte{0, 0, 0}, img.ToBytes()[:3])
}

func TestApplyChangesMovesBaseline(t *testing.T) {
	src := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(100, 100, 100, 0), 4, 4, gocv.MatTypeCV8UC3)
	defer src.Close()

	p := newLoadedProcessor(t, src, nil)

	require.NoError(t, p.ChangeBrightness(50))
	cur := current(t, p)
	edited := cur.Clone()
	defer edited.Close()

	require.NoError(t, p.ApplyChanges())
	require.NoError(t, p.ChangeBrightness(0))
	assert.Zero(t, maxAbsDiff(t, edited, current(t, p)))

	// a second commit of the same state changes nothing
	require.NoError(t, p.ApplyChanges())
	assert.Zero(t, maxAbsDiff(t, edited, original(t, p)))
}

func TestUncommittedEditIsDiscarded(t *testing.T) {
	src := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(100, 100, 100, 0), 4, 4, gocv.MatTypeCV8UC3)
	defer src.Close()

	p := newLoadedProcessor(t, src, nil)

	require.NoError(t, p.ChangeContrast(1.5))
	require.NoError(t, p.ChangeBrightness(0))
	assert.Zero(t, maxAbsDiff(t, src, current(t, p)))

	require.NoError(t, p.ChangeContrast(1.5))
	require.NoError(t, p.Revert())
	assert.Zero(t, maxAbsDiff(t, src, current(t, p)))
}

func TestDetectFacesDrawsOutline(t *testing.T) {
	src := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), 40, 40, gocv.MatTypeCV8UC3)
	defer src.Close()

	face := image.Rect(10, 10, 30, 30)
	detector := &stubDetector{faces: []image.Rectangle{face}}
	p := newLoadedProcessor(t, src, detector)

	faces, err := p.DetectFaces()
	require.NoError(t, err)
	assert.Equal(t, []image.Rectangle{face}, faces)
	assert.Equal(t, 1, detector.gray)

	img := current(t, p)
	edge := img.GetVecbAt(10, 20)
	assert.Equal(t, gocv.Vecb{0, 255, 0}, edge)

	inside := img.GetVecbAt(20, 20)
	assert.Equal(t, gocv.Vecb{0, 0, 0}, inside)

	// original is untouched until commit
	assert.Zero(t, maxAbsDiff(t, src, original(t, p)))
}

func TestDetectFacesErrors(t *testing.T) {
	src := patternMat(16)
	defer src.Close()

	p := newLoadedProcessor(t, src, nil)
	_, err := p.DetectFaces()
	assert.ErrorIs(t, err, ErrNoDetector)

	failing := &stubDetector{err: errors.New("cascade missing")}
	p2 := newLoadedProcessor(t, src, failing)
	_, err = p2.DetectFaces()
	require.Error(t, err)
	assert.Zero(t, maxAbsDiff(t, src, current(t, p2)))
}

func TestCloseResetsState(t *testing.T) {
	src := patternMat(8)
	defer src.Close()

	p := newLoadedProcessor(t, src, nil)
	p.Close()

	assert.False(t, p.HasImage())
	assert.Equal(t, ImageMetadata{}, p.Metadata())
	assert.ErrorIs(t, p.ChangeContrast(1), ErrNoImage)
}
