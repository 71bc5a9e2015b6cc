// Package driver defines the one-way command sink to the executor
// runtime. The executor runtime itself lives outside this module; this
// package only carries the fire-and-forget command interface and a
// logging default implementation suitable for tests and standalone runs.
package driver

import "log/slog"

// Driver dispatches fire-and-forget commands to the executor runtime. It
// is expected to be idempotent with respect to repeated taskIds — KILL
// dispatch in internal/statemanager never retries or waits for
// acknowledgement.
type Driver interface {
	KillTask(taskID string)
}

// Logging is a Driver that logs kill requests instead of dispatching them
// anywhere, for standalone runs and tests where no executor runtime is
// wired up.
type Logging struct {
	Logger *slog.Logger
}

// NewLogging returns a Driver that logs every kill request.
func NewLogging(logger *slog.Logger) *Logging {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logging{Logger: logger}
}

// KillTask logs the kill request. Post-commit side effects are
// best-effort; a logging driver never fails.
func (l *Logging) KillTask(taskID string) {
	l.Logger.Info("driver: kill task", "task_id", taskID)
}
