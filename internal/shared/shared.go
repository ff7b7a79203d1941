// package shared holds the cross-cutting pieces of the curator process:
// the logger factory, configuration loading, the rating-cache database,
// and the exclusive run lock.
package shared

import (
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

// logLevelEnv overrides the default info level, matching the env-first
// configuration layering in [Config].
const logLevelEnv = "LOG_LEVEL"

// NewLogger creates the process [log.Logger] with timestamps and caller
// reporting enabled. The writer defaults to [os.Stderr]. LOG_LEVEL
// (debug, info, warn, error) adjusts the level; unknown values keep the
// default.
func NewLogger(w io.Writer) *log.Logger {
	if w == nil {
		w = os.Stderr
	}
	logger := log.NewWithOptions(w, log.Options{ReportTimestamp: true, ReportCaller: true})
	if raw := os.Getenv(logLevelEnv); raw != "" {
		if level, err := log.ParseLevel(raw); err == nil {
			logger.SetLevel(level)
		}
	}
	return logger
}

// GenerateID generates a v4 [uuid.UUID] string, used as the run id in
// the persisted run record.
func GenerateID() string {
	return uuid.New().String()
}
