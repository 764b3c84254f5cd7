package utils

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// NewLogger создает logrus логгер с заданным уровнем и форматом (text|json)
func NewLogger(levelStr, format string) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)

	if strings.EqualFold(format, "json") {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	level, err := logrus.ParseLevel(levelStr)
	if err != nil {
		logger.WithField("level", levelStr).Warn("Unknown log level, falling back to info")
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	return logger
}

// Component возвращает запись логгера для компонента
func Component(logger logrus.FieldLogger, name string) *logrus.Entry {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return logger.WithField("component", name)
}

// Discard логгер без вывода, для тестов
func Discard() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}
