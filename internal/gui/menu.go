// Menu handler for application actions
package gui

import (
	"errors"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/storage"
	"fyne.io/fyne/v2/widget"
	"github.com/sirupsen/logrus"

	imgio "image-editor/internal/io"
)

// MenuActions are the operations the menu can trigger
type MenuActions struct {
	Open           func(path string) error
	Save           func(path string) error
	SuggestedName  func() string
	Rotate         func(angle float64)
	RotateStep     float64
	DetectFaces    func()
	OpenBrightness func()
	OpenContrast   func()
	Revert         func()
	CanSave        func() bool
	ReportError    func(title string, err error)
	Exit           func()
}

// MenuHandler handles menu actions
type MenuHandler struct {
	window  fyne.Window
	logger  *logrus.Logger
	actions MenuActions
}

func NewMenuHandler(window fyne.Window, logger *logrus.Logger, actions MenuActions) *MenuHandler {
	if actions.RotateStep == 0 {
		actions.RotateStep = 90
	}
	if actions.Exit == nil {
		actions.Exit = window.Close
	}
	return &MenuHandler{
		window:  window,
		logger:  logger,
		actions: actions,
	}
}

func (mh *MenuHandler) GetMainMenu() *fyne.MainMenu {
	step := mh.actions.RotateStep

	fileMenu := fyne.NewMenu("File",
		fyne.NewMenuItem("Open...", mh.openImage),
		fyne.NewMenuItem("Save...", mh.saveImage),
		fyne.NewMenuItemSeparator(),
		fyne.NewMenuItem("Exit", mh.actions.Exit),
	)

	imageMenu := fyne.NewMenu("Image",
		fyne.NewMenuItem("Rotate Right", func() { mh.actions.Rotate(-step) }),
		fyne.NewMenuItem("Rotate Left", func() { mh.actions.Rotate(step) }),
		fyne.NewMenuItemSeparator(),
		fyne.NewMenuItem("Detect Faces", mh.actions.DetectFaces),
		fyne.NewMenuItemSeparator(),
		fyne.NewMenuItem("Change Brightness...", mh.actions.OpenBrightness),
		fyne.NewMenuItem("Change Contrast...", mh.actions.OpenContrast),
		fyne.NewMenuItemSeparator(),
		fyne.NewMenuItem("Revert Uncommitted Edit", mh.actions.Revert),
	)

	helpMenu := fyne.NewMenu("Help",
		fyne.NewMenuItem("About", mh.showAbout),
	)

	return fyne.NewMainMenu(fileMenu, imageMenu, helpMenu)
}

func (mh *MenuHandler) openImage() {
	mh.logger.Info("Opening file dialog to load an image")

	fileDialog := dialog.NewFileOpen(func(reader fyne.URIReadCloser, err error) {
		if err != nil {
			mh.actions.ReportError("File Dialog Error", err)
			return
		}
		if reader == nil {
			return
		}
		path := reader.URI().Path()
		reader.Close()

		if err := mh.actions.Open(path); err != nil {
			mh.actions.ReportError("Failed to Load Image", err)
		}
	}, mh.window)

	fileDialog.SetFilter(storage.NewExtensionFileFilter(imgio.SupportedExtensions()))
	fileDialog.Show()
}

func (mh *MenuHandler) saveImage() {
	if !mh.actions.CanSave() {
		mh.logger.Debug("No image loaded, save ignored")
		return
	}

	mh.logger.Info("Opening file dialog to save the image")

	fileDialog := dialog.NewFileSave(func(writer fyne.URIWriteCloser, err error) {
		if err != nil {
			mh.actions.ReportError("File Dialog Error", err)
			return
		}
		if writer == nil {
			return
		}
		path := writer.URI().Path()
		// OpenCV writes by path; release fyne's handle first
		writer.Close()

		if !imgio.IsSupported(path) {
			mh.actions.ReportError("Failed to Save Image", errors.New("unsupported file extension: "+path))
			return
		}
		if err := mh.actions.Save(path); err != nil {
			mh.actions.ReportError("Failed to Save Image", err)
		}
	}, mh.window)

	fileDialog.SetFileName(mh.actions.SuggestedName())
	fileDialog.SetFilter(storage.NewExtensionFileFilter(imgio.SupportedExtensions()))
	fileDialog.Show()
}

func (mh *MenuHandler) showAbout() {
	content := container.NewVBox(
		widget.NewLabel("Image Processing App"),
		widget.NewSeparator(),
		widget.NewLabel("Rotate, adjust brightness and contrast,"),
		widget.NewLabel("and outline faces in raster images."),
		widget.NewSeparator(),
		widget.NewLabel("Built with Go, Fyne and OpenCV"),
	)

	aboutDialog := dialog.NewCustom("About", "Close", content, mh.window)
	aboutDialog.Show()
}
