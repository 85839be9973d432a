// Main application window wiring menu events to the image processor
package gui

import (
	"errors"
	"fmt"
	"image"
	"path/filepath"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"
	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"image-editor/internal/config"
	"image-editor/internal/core"
	"image-editor/internal/metrics"
)

// Editor is the image state the window drives. *core.Processor implements it.
type Editor interface {
	Load(path string) error
	Save(path string) error
	Rotate(angle float64) error
	DetectFaces() ([]image.Rectangle, error)
	ChangeBrightness(delta int) error
	ChangeContrast(factor float64) error
	ApplyChanges() error
	Revert() error
	Image() (gocv.Mat, bool)
	Original() (gocv.Mat, bool)
	HasImage() bool
	Metadata() core.ImageMetadata
}

// Application represents the main window
type Application struct {
	app       fyne.App
	window    fyne.Window
	logger    *logrus.Logger
	cfg       *config.Config
	editor    Editor
	evaluator *metrics.Evaluator

	view        *canvas.Image
	status      *widget.Label
	menuHandler *MenuHandler
	adjustment  *AdjustmentWindow

	onClose func()
	cleaned bool
}

func NewApplication(app fyne.App, editor Editor, cfg *config.Config, logger *logrus.Logger) *Application {
	window := app.NewWindow(cfg.Window.Title)
	window.Resize(fyne.NewSize(cfg.Window.Width, cfg.Window.Height))
	window.CenterOnScreen()

	a := &Application{
		app:       app,
		window:    window,
		logger:    logger,
		cfg:       cfg,
		editor:    editor,
		evaluator: metrics.NewEvaluator(),
	}

	a.view = canvas.NewImageFromImage(placeholderImage())
	a.view.FillMode = canvas.ImageFillContain
	a.view.SetMinSize(fyne.NewSize(200, 150))
	a.status = widget.NewLabel("Open an image to start")

	a.menuHandler = NewMenuHandler(window, logger, MenuActions{
		Open:           a.LoadImageFromPath,
		Save:           a.SaveImageToPath,
		SuggestedName:  a.suggestedSaveName,
		Rotate:         a.Rotate,
		RotateStep:     cfg.Adjust.RotateStepDegs,
		DetectFaces:    a.DetectFaces,
		OpenBrightness: a.OpenBrightness,
		OpenContrast:   a.OpenContrast,
		Revert:         a.Revert,
		CanSave:        editor.HasImage,
		ReportError:    a.showError,
		Exit:           a.Exit,
	})

	window.SetMainMenu(a.menuHandler.GetMainMenu())
	window.SetContent(container.NewBorder(nil, a.status, nil, nil, container.NewPadded(a.view)))

	return a
}

// SetOnClose registers cleanup run when the main window closes
func (a *Application) SetOnClose(fn func()) {
	a.onClose = fn
}

func (a *Application) ShowAndRun() {
	a.logger.Info("Showing main application window")

	a.window.SetCloseIntercept(a.Exit)
	a.window.ShowAndRun()
}

// Exit releases resources and quits. Closing the window from code skips
// the close intercept, so every exit path goes through here.
func (a *Application) Exit() {
	a.cleanup()
	a.app.Quit()
}

func (a *Application) cleanup() {
	if a.cleaned {
		return
	}
	a.cleaned = true
	a.logger.Info("Cleaning up application resources")
	a.closeAdjustment()
	if a.onClose != nil {
		a.onClose()
	}
}

func (a *Application) LoadImageFromPath(path string) error {
	a.closeAdjustment()
	a.logger.WithField("filepath", path).Info("Loading image")

	if err := a.editor.Load(path); err != nil {
		return err
	}

	a.refresh()
	return nil
}

func (a *Application) SaveImageToPath(path string) error {
	a.logger.WithField("filepath", path).Info("Saving image")

	if err := a.editor.Save(path); err != nil {
		return err
	}

	a.status.SetText(fmt.Sprintf("Saved: %s", path))
	return nil
}

// Rotate rotates the image and commits the result as the new baseline
func (a *Application) Rotate(angle float64) {
	a.closeAdjustment()
	a.logger.WithField("angle", angle).Info("Rotating image")

	if err := a.editor.Rotate(angle); err != nil {
		a.showError("Rotation Failed", err)
		return
	}
	a.commit()
	a.refresh()
}

// DetectFaces outlines faces and commits the result as the new baseline
func (a *Application) DetectFaces() {
	a.closeAdjustment()
	a.logger.Info("Detecting faces")

	faces, err := a.editor.DetectFaces()
	if err != nil {
		a.showError("Face Detection Failed", err)
		return
	}
	a.commit()
	a.refresh()
	a.status.SetText(fmt.Sprintf("%s | faces=%d", a.status.Text, len(faces)))
}

func (a *Application) OpenBrightness() {
	a.openAdjustment(AdjustmentSpec{
		Title: "Change Brightness",
		Min:   a.cfg.Adjust.BrightnessMin,
		Max:   a.cfg.Adjust.BrightnessMax,
		Step:  1,
	}, func(v float64) error {
		return a.editor.ChangeBrightness(int(v))
	})
}

func (a *Application) OpenContrast() {
	a.openAdjustment(AdjustmentSpec{
		Title:   "Change Contrast",
		Min:     a.cfg.Adjust.ContrastMin,
		Max:     a.cfg.Adjust.ContrastMax,
		Step:    a.cfg.Adjust.ContrastStep,
		Initial: 1.0,
		Format:  "%.2f",
	}, a.editor.ChangeContrast)
}

// Revert discards the uncommitted edit
func (a *Application) Revert() {
	if err := a.editor.Revert(); err != nil {
		a.showError("Revert Failed", err)
		return
	}
	a.refresh()
}

func (a *Application) openAdjustment(spec AdjustmentSpec, apply func(float64) error) {
	if !a.editor.HasImage() {
		a.logger.WithField("adjustment", spec.Title).Debug("No image loaded, adjustment ignored")
		return
	}

	a.closeAdjustment()

	aw := NewAdjustmentWindow(a.app, spec, apply, a.editor.ApplyChanges, a.logger)
	aw.SetOnChange(a.refresh)
	a.adjustment = aw
	aw.Show()
}

// closeAdjustment commits and closes any open adjustment window
func (a *Application) closeAdjustment() {
	if a.adjustment != nil {
		a.adjustment.Close()
		a.adjustment = nil
	}
}

func (a *Application) commit() {
	if err := a.editor.ApplyChanges(); err != nil {
		a.logger.WithError(err).Debug("Nothing to commit")
	}
}

// refresh redraws the canvas from the current buffer and updates the status line
func (a *Application) refresh() {
	current, ok := a.editor.Image()
	defer current.Close()
	if !ok {
		return
	}

	img, err := toDisplayImage(current, a.cfg.Display.MaxDimension)
	if err != nil {
		a.logger.WithError(err).Error("Error updating image on the GUI")
		return
	}

	a.view.Image = img
	a.view.Refresh()
	a.status.SetText(a.statusText(current))
}

func (a *Application) statusText(current gocv.Mat) string {
	meta := a.editor.Metadata()
	text := fmt.Sprintf("%s  %dx%d %s", filepath.Base(meta.Path), current.Cols(), current.Rows(), meta.Format)

	original, ok := a.editor.Original()
	defer original.Close()
	if ok {
		if m := metrics.Format(a.evaluator.Compare(original, current)); m != "" {
			text += " | " + m
		}
	}
	return text
}

func (a *Application) suggestedSaveName() string {
	meta := a.editor.Metadata()
	if meta.Path == "" {
		return "edited.png"
	}
	base := filepath.Base(meta.Path)
	ext := filepath.Ext(base)
	return base[:len(base)-len(ext)] + "_edited" + ext
}

// showError logs err and shows a dialog, except for actions on an empty editor
func (a *Application) showError(title string, err error) {
	if errors.Is(err, core.ErrNoImage) {
		a.logger.WithField("action", title).Debug("No image loaded, action ignored")
		return
	}

	a.logger.WithError(err).Error(title)
	dialog.ShowError(err, a.window)
	a.status.SetText(fmt.Sprintf("Error: %s", err.Error()))
}
