package logger

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

var log = logrus.New()

func Init() {
	log.SetOutput(os.Stdout)
	log.SetFormatter(&logrus.JSONFormatter{})
	log.SetLevel(logrus.InfoLevel)
	log.Info("logger initialized")
}

// SetLevel parses level ("debug", "info", ...) and applies it.
func SetLevel(level string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	log.SetLevel(lvl)
	return nil
}

// SetOutput redirects log output, mostly for tests.
func SetOutput(w io.Writer) {
	log.SetOutput(w)
}

func Info(msg string, fields map[string]any) {
	log.WithFields(logrus.Fields(fields)).Info(msg)
}

func Warn(msg string, fields map[string]any) {
	log.WithFields(logrus.Fields(fields)).Warn(msg)
}

func Error(msg string, fields map[string]any) {
	log.WithFields(logrus.Fields(fields)).Error(msg)
}

func Fatal(msg string, fields map[string]any) {
	log.WithFields(logrus.Fields(fields)).Fatal(msg)
}
