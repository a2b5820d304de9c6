package commander

import (
	"time"

	"github.com/hugo-lorenzo-mato/gitgrip/internal/core"
)

// workerState is the commander-side record for one worker, keyed by worker
// ID (spec §3 WorkerState). Mutated only from the commander's single
// ProcessMessages goroutine plus the handful of methods documented as safe
// to call concurrently (CancelWorker, RespondPermission); the mutex in
// Commander guards access to the table itself, not concurrent field writes
// from multiple goroutines.
type workerState struct {
	config    core.WorkerConfig
	workspace core.WorkspaceInfo
	status    core.WorkerStatus
	process   Process
	// done is closed by watchExit once process.Wait() returns, so other
	// goroutines (CancelWorker) can observe process exit without calling
	// Wait() a second time themselves.
	done chan struct{}

	startedAt   time.Time
	completedAt *time.Time

	tokens       core.TokenTotals
	restartCount int
}
