package logging

import (
	"fmt"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	logger *logrus.Logger
	mu     sync.Mutex
)

// InitLogger configures the shared logger. It may be called again to change the level.
func InitLogger(level logrus.Level) {
	l := GetLogger()
	l.SetLevel(level)
}

// SetLevel parses a level name ("debug", "info", ...) and applies it.
func SetLevel(name string) error {
	level, err := logrus.ParseLevel(name)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", name, err)
	}
	InitLogger(level)
	return nil
}

// GetLogger returns the process-wide logger, creating it on first use.
func GetLogger() *logrus.Logger {
	mu.Lock()
	defer mu.Unlock()
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(os.Stderr)
		logger.SetLevel(logrus.InfoLevel)
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}
	return logger
}
