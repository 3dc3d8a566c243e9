package logging

import (
	"io"
	"os"
	"sync"

	"github.com/charmbracelet/log"
)

// Logger is a wrapper around the log.Logger from the charmbracelet/log package.
type Logger struct {
	*log.Logger
}

var (
	logger *Logger
	once   sync.Once
)

// CreateLogger sets up the process logger. It must be called before using the
// package-level accessor.
func CreateLogger() {
	once.Do(func() {
		logger = NewLogger(os.Stderr)
	})
}

// NewLogger builds a logger writing to w. Setting DEBUG=1 in the environment
// enables debug level with caller reporting.
func NewLogger(w io.Writer) *Logger {
	baseLogger := log.New(w)

	if os.Getenv("DEBUG") == "1" {
		baseLogger = log.NewWithOptions(w, log.Options{
			ReportCaller:    true,
			ReportTimestamp: true,
			Prefix:          "medscribe",
		})
		baseLogger.SetLevel(log.DebugLevel)
	} else {
		baseLogger.SetLevel(log.InfoLevel)
	}

	return &Logger{Logger: baseLogger}
}

// NewTestLogger returns a logger suitable for tests: debug level, discarded output.
func NewTestLogger() *Logger {
	baseLogger := log.NewWithOptions(io.Discard, log.Options{Level: log.DebugLevel})
	return &Logger{Logger: baseLogger}
}

// GetLogger returns the process Logger instance, creating it if needed.
func GetLogger() *Logger {
	CreateLogger()
	return logger
}
