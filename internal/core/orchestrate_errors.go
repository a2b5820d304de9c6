package core

import "fmt"

// ErrCatCapacity classifies errors caused by hitting a concurrency or
// resource ceiling rather than a budget ceiling (ErrCatBudget is cost-based).
const ErrCatCapacity ErrorCategory = "capacity"

// Orchestration error codes.
const (
	CodeWorkerAlreadyExists    = "WORKER_ALREADY_EXISTS"
	CodeMaxWorkersReached      = "MAX_WORKERS_REACHED"
	CodeWorkerNotConnected     = "WORKER_NOT_CONNECTED"
	CodeWorkerNotFound         = "WORKER_NOT_FOUND"
	CodeBranchInUse            = "BRANCH_IN_USE"
	CodeWorktreeCreateFailed   = "WORKTREE_CREATION_FAILED"
	CodeInvalidWorkspace       = "INVALID_WORKSPACE"
	CodeSpawnFailed            = "SPAWN_FAILED"
	CodeUserCancelled          = "USER_CANCELLED"
	CodePermissionTimeout      = "PERMISSION_TIMEOUT"
	CodeInvalidMessage         = "INVALID_MESSAGE"
	CodeHandshakeFailed        = "HANDSHAKE_FAILED"
	CodeNotConnected           = "NOT_CONNECTED"
	CodeConnectionFailed       = "CONNECTION_FAILED"
	CodeChannelClosed          = "CHANNEL_CLOSED"
)

// ErrWorkerAlreadyExists reports a duplicate worker id at spawn time.
func ErrWorkerAlreadyExists(workerID string) *DomainError {
	return &DomainError{
		Category:  ErrCatValidation,
		Code:      CodeWorkerAlreadyExists,
		Message:   fmt.Sprintf("worker %s already exists", workerID),
		Retryable: false,
	}
}

// ErrMaxWorkersReached reports the commander's concurrency cap was hit.
func ErrMaxWorkersReached(max int) *DomainError {
	return &DomainError{
		Category:  ErrCatCapacity,
		Code:      CodeMaxWorkersReached,
		Message:   fmt.Sprintf("max_workers (%d) reached", max),
		Retryable: true,
	}
}

// ErrWorkerNotConnected reports an IPC send to a worker the server has no
// connection for.
func ErrWorkerNotConnected(workerID string) *DomainError {
	return &DomainError{
		Category:  ErrCatNetwork,
		Code:      CodeWorkerNotConnected,
		Message:   fmt.Sprintf("worker %s is not connected", workerID),
		Retryable: false,
	}
}

// ErrWorkerNotFound reports an operation against an unknown worker id.
func ErrWorkerNotFound(workerID string) *DomainError {
	return &DomainError{
		Category:  ErrCatNotFound,
		Code:      CodeWorkerNotFound,
		Message:   fmt.Sprintf("worker %s not found", workerID),
		Retryable: false,
	}
}

// ErrBranchInUse reports a branch already checked out in another worktree.
func ErrBranchInUse(branch string) *DomainError {
	return &DomainError{
		Category:  ErrCatConflict,
		Code:      CodeBranchInUse,
		Message:   fmt.Sprintf("branch %q is already checked out", branch),
		Retryable: false,
	}
}

// ErrWorktreeCreationFailed wraps a subprocess failure while materializing a
// workspace.
func ErrWorktreeCreationFailed(message string, cause error) *DomainError {
	return (&DomainError{
		Category:  ErrCatExecution,
		Code:      CodeWorktreeCreateFailed,
		Message:   message,
		Retryable: false,
	}).WithCause(cause)
}

// ErrInvalidWorkspace reports that a target workspace path is unusable (it
// already exists, or the expected markers are absent).
func ErrInvalidWorkspace(message string) *DomainError {
	return &DomainError{
		Category:  ErrCatValidation,
		Code:      CodeInvalidWorkspace,
		Message:   message,
		Retryable: false,
	}
}

// ErrSpawnFailed reports a child process failed to launch.
func ErrSpawnFailed(message string, cause error) *DomainError {
	return (&DomainError{
		Category:  ErrCatExecution,
		Code:      CodeSpawnFailed,
		Message:   message,
		Retryable: false,
	}).WithCause(cause)
}

// ErrUserCancelled reports a cancellation signal observed mid-operation.
func ErrUserCancelled(message string) *DomainError {
	return &DomainError{
		Category:  ErrCatExecution,
		Code:      CodeUserCancelled,
		Message:   message,
		Retryable: false,
	}
}

// ErrPermissionTimeout reports the commander never replied to a permission
// request within the configured window.
func ErrPermissionTimeout() *DomainError {
	return &DomainError{
		Category:  ErrCatTimeout,
		Code:      CodePermissionTimeout,
		Message:   "permission request timed out",
		Retryable: false,
	}
}

// ErrInvalidMessage reports a malformed frame on the IPC stream.
func ErrInvalidMessage(message string, cause error) *DomainError {
	return (&DomainError{
		Category:  ErrCatValidation,
		Code:      CodeInvalidMessage,
		Message:   message,
		Retryable: false,
	}).WithCause(cause)
}

// ErrHandshakeFailed reports the commander rejected or never confirmed the
// child's handshake.
func ErrHandshakeFailed(reason string) *DomainError {
	return &DomainError{
		Category:  ErrCatNetwork,
		Code:      CodeHandshakeFailed,
		Message:   reason,
		Retryable: false,
	}
}

// ErrNotConnected reports an operation attempted before connect() completed.
func ErrNotConnected() *DomainError {
	return &DomainError{
		Category:  ErrCatNetwork,
		Code:      CodeNotConnected,
		Message:   "not connected",
		Retryable: false,
	}
}

// ErrConnectionFailed reports exhausted connect retries.
func ErrConnectionFailed(cause error) *DomainError {
	return (&DomainError{
		Category:  ErrCatNetwork,
		Code:      CodeConnectionFailed,
		Message:   "failed to connect after all retry attempts",
		Retryable: false,
	}).WithCause(cause)
}

// ErrChannelClosed reports a correlation channel closed before delivering a
// response.
func ErrChannelClosed() *DomainError {
	return &DomainError{
		Category:  ErrCatNetwork,
		Code:      CodeChannelClosed,
		Message:   "response channel closed",
		Retryable: false,
	}
}
