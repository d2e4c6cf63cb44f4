// Package observability wraps the structured logger the CLI configures and
// hands to the compiler. Modeled on the teacher's debug logger
// (internal/debug/logger.go), which toggled a package-global slog.Logger
// between a stderr text handler and a silent one; generalized here onto
// logrus so field-based structured logging (action, model, binding counts)
// matches the rest of the ambient stack instead of slog's bare key/value
// pairs.
package observability

import (
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	logger  *logrus.Logger
	enabled bool
	mu      sync.RWMutex
)

func init() {
	logger = logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	logger.SetLevel(logrus.InfoLevel)
}

// Init toggles debug-level logging. When enable is false, only warnings and
// above are emitted.
func Init(enable bool) {
	mu.Lock()
	defer mu.Unlock()
	enabled = enable
	if enable {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetLevel(logrus.WarnLevel)
	}
}

// Enabled reports whether debug-level logging is currently on.
func Enabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return enabled
}

// Logger returns the shared logrus.Logger.
func Logger() *logrus.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// With returns an entry carrying the given fields, for call sites that want
// a scoped logger (e.g. one component's compile pass).
func With(fields logrus.Fields) *logrus.Entry {
	return Logger().WithFields(fields)
}
