// Image Processing App - load, rotate, adjust, outline faces, save
package main

import (
	"os"

	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/theme"
	"github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"

	"image-editor/internal/config"
	"image-editor/internal/core"
	"image-editor/internal/detect"
	"image-editor/internal/gui"
	imgio "image-editor/internal/io"
)

const (
	AppID      = "com.image-editor.app"
	AppVersion = "1.0.0"
)

func main() {
	flag.Bool("debug", false, "Enable debug mode with verbose logging")
	configPath := flag.String("config", "", "Path to a TOML config file (default ./config.toml)")
	flag.Parse()

	v := viper.New()
	if err := v.BindPFlag("app.debug", flag.Lookup("debug")); err != nil {
		logrus.WithError(err).Fatal("could not bind flags")
	}

	cfg, err := config.Load(v, *configPath)
	if err != nil {
		logrus.WithError(err).Fatal("could not load configuration")
	}

	logger := initLogger(cfg.App.Debug, cfg.App.LogLevel)
	logger.WithFields(logrus.Fields{
		"version":    AppVersion,
		"debug_mode": cfg.App.Debug,
		"detector":   cfg.Detector.Backend,
	}).Info("Starting Image Processing App")

	detector, err := detect.New(cfg.Detector, logger)
	if err != nil {
		// editing still works; face detection reports ErrNoDetector
		logger.WithError(err).Warn("Face detector unavailable")
	}

	var faces core.FaceDetector
	if detector != nil {
		faces = detector
	}
	processor := core.NewProcessor(imgio.NewImageLoader(logger), faces, logger)

	myApp := app.NewWithID(AppID)
	myApp.SetIcon(theme.DocumentIcon())
	myApp.Settings().SetTheme(theme.DefaultTheme())

	mainApp := gui.NewApplication(myApp, processor, cfg, logger)
	mainApp.SetOnClose(func() {
		processor.Close()
		if detector != nil {
			if err := detector.Close(); err != nil {
				logger.WithError(err).Warn("Failed to release face detector")
			}
		}
	})

	if path := flag.Arg(0); path != "" {
		if err := mainApp.LoadImageFromPath(path); err != nil {
			logger.WithError(err).WithField("filepath", path).Error("Could not open image given on the command line")
		}
	}

	mainApp.ShowAndRun()

	logger.Info("Application shutting down gracefully")
	os.Exit(0)
}

// initLogger initializes the logger with appropriate level
func initLogger(debugMode bool, level string) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)

	if debugMode {
		logger.SetLevel(logrus.DebugLevel)
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
			ForceColors:   true,
		})
		logger.Debug("Debug logging enabled")
		return logger
	}

	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	logger.SetLevel(parsed)
	logger.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02 15:04:05",
	})

	return logger
}
