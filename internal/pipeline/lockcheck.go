package pipeline

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sasha-s/go-deadlock"

	"github.com/Iron-Ham/foresight/internal/logging"
)

var (
	lockDetectionOnce sync.Once
	lockLogger        atomic.Pointer[logging.Logger]
)

// ConfigureLockDetection reports orchestrator locks held longer than timeout
// to logger instead of exiting the process. A zero timeout disables
// detection.
//
// go-deadlock's options are global and read by its checker goroutines, so
// only the first call sets the timeout. Later calls only replace the logger
// that receives reports.
func ConfigureLockDetection(timeout time.Duration, logger *logging.Logger) {
	if logger == nil {
		logger = logging.NopLogger()
	}
	lockLogger.Store(logger)

	lockDetectionOnce.Do(func() {
		deadlock.Opts.DeadlockTimeout = timeout
		deadlock.Opts.Disable = timeout <= 0
		deadlock.Opts.LogBuf = lockReportWriter{}
		deadlock.Opts.OnPotentialDeadlock = func() {
			currentLockLogger().Error("potential deadlock on orchestrator state", "timeout", timeout.String())
		}
	})
}

func currentLockLogger() *logging.Logger {
	if l := lockLogger.Load(); l != nil {
		return l
	}
	return logging.NopLogger()
}

// lockReportWriter forwards go-deadlock's diagnostic dump to the logger.
type lockReportWriter struct{}

func (lockReportWriter) Write(p []byte) (int, error) {
	if msg := strings.TrimSpace(string(p)); msg != "" {
		currentLockLogger().Debug("lock diagnostics", "report", msg)
	}
	return len(p), nil
}
