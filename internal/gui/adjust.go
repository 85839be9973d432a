package gui

import (
	"fmt"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"
	"github.com/sirupsen/logrus"
)

// AdjustmentSpec describes one slider-driven adjustment
type AdjustmentSpec struct {
	Title   string
	Min     float64
	Max     float64
	Step    float64
	Initial float64
	Format  string
}

// AdjustmentWindow recomputes the preview each time the slider is
// released and commits exactly once when the window goes away.
type AdjustmentWindow struct {
	window fyne.Window
	slider *widget.Slider
	value  *widget.Label
	spec   AdjustmentSpec
	logger *logrus.Logger

	apply    func(float64) error
	commit   func() error
	onChange func()

	committed bool
	closed    bool
}

func NewAdjustmentWindow(app fyne.App, spec AdjustmentSpec, apply func(float64) error, commit func() error, logger *logrus.Logger) *AdjustmentWindow {
	if spec.Format == "" {
		spec.Format = "%.0f"
	}

	aw := &AdjustmentWindow{
		window: app.NewWindow(spec.Title),
		spec:   spec,
		logger: logger,
		apply:  apply,
		commit: commit,
	}

	aw.slider = widget.NewSlider(spec.Min, spec.Max)
	aw.slider.Step = spec.Step
	aw.slider.SetValue(spec.Initial)
	aw.value = widget.NewLabel(fmt.Sprintf(spec.Format, spec.Initial))

	aw.slider.OnChanged = func(v float64) {
		aw.value.SetText(fmt.Sprintf(spec.Format, v))
	}
	aw.slider.OnChangeEnded = aw.handleChangeEnded

	done := widget.NewButton("Apply", aw.Close)

	aw.window.SetContent(container.NewVBox(
		aw.value,
		aw.slider,
		done,
	))
	aw.window.Resize(fyne.NewSize(360, 120))
	aw.window.SetCloseIntercept(aw.Close)

	return aw
}

// SetOnChange registers a callback run after every recomputation and after the commit
func (aw *AdjustmentWindow) SetOnChange(fn func()) {
	aw.onChange = fn
}

func (aw *AdjustmentWindow) Show() {
	aw.window.Show()
}

func (aw *AdjustmentWindow) handleChangeEnded(v float64) {
	aw.logger.WithFields(logrus.Fields{
		"adjustment": aw.spec.Title,
		"value":      v,
	}).Info("Applying adjustment")

	if err := aw.apply(v); err != nil {
		aw.logger.WithError(err).WithField("adjustment", aw.spec.Title).Warn("Adjustment failed")
		return
	}
	if aw.onChange != nil {
		aw.onChange()
	}
}

// Close commits the current preview once and closes the window
func (aw *AdjustmentWindow) Close() {
	if !aw.committed {
		aw.committed = true
		if err := aw.commit(); err != nil {
			aw.logger.WithError(err).WithField("adjustment", aw.spec.Title).Debug("Nothing committed")
		} else {
			aw.logger.WithField("adjustment", aw.spec.Title).Info("Adjustment committed")
		}
		if aw.onChange != nil {
			aw.onChange()
		}
	}

	if !aw.closed {
		aw.closed = true
		aw.window.Close()
	}
}

func (aw *AdjustmentWindow) Closed() bool {
	return aw.closed
}
