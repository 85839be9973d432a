// Package metrics compares the edited image against its baseline.
package metrics

import (
	"fmt"
	"math"
	"sort"

	"gocv.io/x/gocv"
)

// Metric defines the interface for quality metrics
type Metric interface {
	// Calculate computes the metric value
	Calculate(original, processed gocv.Mat) (float64, error)

	GetName() string

	// IsHigherBetter returns true if higher values indicate closer images
	IsHigherBetter() bool
}

// MSE is the mean squared difference of the grayscale images
type MSE struct{}

func NewMSE() *MSE {
	return &MSE{}
}

func (m *MSE) Calculate(original, processed gocv.Mat) (float64, error) {
	if err := checkPair(original, processed); err != nil {
		return 0, err
	}
	return meanSquaredError(original, processed), nil
}

func (m *MSE) fromMSE(mse float64) float64 {
	return mse
}

func (m *MSE) GetName() string {
	return "MSE"
}

func (m *MSE) IsHigherBetter() bool {
	return false
}

// PSNR implements Peak Signal-to-Noise Ratio metric
type PSNR struct{}

func NewPSNR() *PSNR {
	return &PSNR{}
}

func (p *PSNR) Calculate(original, processed gocv.Mat) (float64, error) {
	if err := checkPair(original, processed); err != nil {
		return 0, err
	}
	return p.fromMSE(meanSquaredError(original, processed)), nil
}

func (p *PSNR) fromMSE(mse float64) float64 {
	if mse == 0 {
		return math.Inf(1)
	}
	return 20 * math.Log10(255.0/math.Sqrt(mse))
}

func (p *PSNR) GetName() string {
	return "PSNR"
}

func (p *PSNR) IsHigherBetter() bool {
	return true
}

func checkPair(original, processed gocv.Mat) error {
	if original.Empty() || processed.Empty() {
		return fmt.Errorf("empty images")
	}
	if original.Rows() != processed.Rows() || original.Cols() != processed.Cols() {
		return fmt.Errorf("image dimensions mismatch: %dx%d vs %dx%d",
			original.Cols(), original.Rows(), processed.Cols(), processed.Rows())
	}
	return nil
}

// mseDerived is implemented by metrics that are a function of the
// grayscale MSE, letting Compare diff the images once for all of them.
type mseDerived interface {
	fromMSE(mse float64) float64
}

// meanSquaredError diffs the grayscale images in OpenCV: MSE = ||a-b||² / N
func meanSquaredError(original, processed gocv.Mat) float64 {
	gray1 := ensureGrayscale(original)
	defer gray1.Close()

	gray2 := ensureGrayscale(processed)
	defer gray2.Close()

	diff := gocv.NewMat()
	defer diff.Close()
	gocv.AbsDiff(gray1, gray2, &diff)

	norm := gocv.Norm(diff, gocv.NormL2)
	return norm * norm / float64(diff.Rows()*diff.Cols())
}

// ensureGrayscale always returns a Mat the caller owns
func ensureGrayscale(input gocv.Mat) gocv.Mat {
	if input.Channels() == 1 {
		return input.Clone()
	}

	gray := gocv.NewMat()
	gocv.CvtColor(input, &gray, gocv.ColorBGRToGray)
	return gray
}

// Evaluator manages and calculates multiple metrics
type Evaluator struct {
	metrics map[string]Metric
}

func NewEvaluator() *Evaluator {
	e := &Evaluator{
		metrics: make(map[string]Metric),
	}
	e.Register("mse", NewMSE())
	e.Register("psnr", NewPSNR())
	return e
}

func (e *Evaluator) Register(name string, metric Metric) {
	e.metrics[name] = metric
}

// Compare calculates every registered metric, skipping ones that fail.
// Metrics derived from the MSE share a single diff of the two images.
func (e *Evaluator) Compare(original, processed gocv.Mat) map[string]float64 {
	results := make(map[string]float64, len(e.metrics))
	pairErr := checkPair(original, processed)

	mse, haveMSE := 0.0, false
	for name, metric := range e.metrics {
		if derived, ok := metric.(mseDerived); ok {
			if pairErr != nil {
				continue
			}
			if !haveMSE {
				mse, haveMSE = meanSquaredError(original, processed), true
			}
			results[name] = derived.fromMSE(mse)
			continue
		}
		if value, err := metric.Calculate(original, processed); err == nil {
			results[name] = value
		}
	}
	return results
}

// Format renders results as "mse=1.20 psnr=47.34" in name order
func Format(results map[string]float64) string {
	names := make([]string, 0, len(results))
	for name := range results {
		names = append(names, name)
	}
	sort.Strings(names)

	out := ""
	for i, name := range names {
		if i > 0 {
			out += " "
		}
		v := results[name]
		if math.IsInf(v, 1) {
			out += name + "=inf"
			continue
		}
		out += fmt.Sprintf("%s=%.2f", name, v)
	}
	return out
}
