package core

import "time"

// WorkerConfig is the contract the commander hands to a worker at spawn
// time. It is immutable once the worker starts.
type WorkerConfig struct {
	ID                string
	Branch            string
	Task              string
	Model             string
	Provider          string
	AutoApprove       []string
	DangerousPatterns []string
	TimeoutMS         int64
	MaxIterations     int
}

// ShouldAutoApprove reports whether a tool name is on this config's
// auto-approve list.
func (c WorkerConfig) ShouldAutoApprove(tool string) bool {
	for _, t := range c.AutoApprove {
		if t == tool {
			return true
		}
	}
	return false
}

// WorkspaceKind discriminates the two WorkspaceInfo variants.
type WorkspaceKind string

const (
	WorkspaceSingleRepo WorkspaceKind = "single_repo"
	WorkspaceMultiRepo  WorkspaceKind = "multi_repo"
)

// RepoPointer records one repository's placement inside a multi-repo
// workspace: where it lives relative to the main workspace, which branch
// it was on before the worktree was created, and where its worktree landed.
type RepoPointer struct {
	Name           string `json:"name"`
	OriginalBranch string `json:"original_branch"`
	WorktreePath   string `json:"worktree_path,omitempty"`
}

// WorkspaceInfo is the sum type described in spec §3: a SingleRepo worktree
// or a MultiRepo griptree. Kind discriminates which fields are meaningful.
type WorkspaceInfo struct {
	Kind WorkspaceKind

	Path   string
	Branch string

	// SingleRepo only.
	BaseBranch string

	// MultiRepo only.
	MainWorkspace string
	Repos         []RepoPointer
}

// IsSingleRepo reports whether this workspace is a single-repo worktree.
func (w WorkspaceInfo) IsSingleRepo() bool { return w.Kind == WorkspaceSingleRepo }

// IsMultiRepo reports whether this workspace is a multi-repo griptree.
func (w WorkspaceInfo) IsMultiRepo() bool { return w.Kind == WorkspaceMultiRepo }

// WorkerStatusKind enumerates the per-worker state machine described in
// spec §4.1.
type WorkerStatusKind string

const (
	WorkerStarting          WorkerStatusKind = "starting"
	WorkerIdle              WorkerStatusKind = "idle"
	WorkerThinking          WorkerStatusKind = "thinking"
	WorkerToolCall          WorkerStatusKind = "tool_call"
	WorkerWaitingPermission WorkerStatusKind = "waiting_permission"
	WorkerComplete          WorkerStatusKind = "complete"
	WorkerFailed            WorkerStatusKind = "failed"
	WorkerCancelled         WorkerStatusKind = "cancelled"
	// WorkerDisconnected is the terminal state synthesized when a child
	// exits with status 0 but never sent task_complete/task_error, and the
	// commander's restart policy does not retry it (open question #1).
	WorkerDisconnected WorkerStatusKind = "disconnected"
)

// TokenTotals accumulates the token usage reported for a worker across its
// lifetime.
type TokenTotals struct {
	InputTokens  int64
	OutputTokens int64
}

// WorkerResult is the payload of a terminal task_complete message.
type WorkerResult struct {
	Success      bool
	Response     string
	ToolCount    int
	DurationMS   int64
	Commits      []string
	FilesChanged []string
	Branch       string
	Usage        *TokenTotals
}

// WorkerStatus is a tagged union over the worker state machine. Only the
// fields relevant to Kind are meaningful; the rest are zero values.
type WorkerStatus struct {
	Kind WorkerStatusKind

	// ToolCall / WaitingPermission.
	Tool string

	// Complete.
	Result *WorkerResult

	// Failed.
	Error       string
	Recoverable bool
}

// IsTerminal reports whether this status ends the worker's lifecycle.
func (s WorkerStatus) IsTerminal() bool {
	switch s.Kind {
	case WorkerComplete, WorkerFailed, WorkerCancelled, WorkerDisconnected:
		return true
	default:
		return false
	}
}

// StartingStatus, IdleStatus, ThinkingStatus are convenience constructors
// for the stateless variants.
func StartingStatus() WorkerStatus { return WorkerStatus{Kind: WorkerStarting} }
func IdleStatus() WorkerStatus     { return WorkerStatus{Kind: WorkerIdle} }
func ThinkingStatus() WorkerStatus { return WorkerStatus{Kind: WorkerThinking} }

// ToolCallStatus builds the ToolCall{tool} variant.
func ToolCallStatus(tool string) WorkerStatus {
	return WorkerStatus{Kind: WorkerToolCall, Tool: tool}
}

// WaitingPermissionStatus builds the WaitingPermission{tool} variant.
func WaitingPermissionStatus(tool string) WorkerStatus {
	return WorkerStatus{Kind: WorkerWaitingPermission, Tool: tool}
}

// CompleteStatus builds the Complete{result} variant.
func CompleteStatus(result *WorkerResult) WorkerStatus {
	return WorkerStatus{Kind: WorkerComplete, Result: result}
}

// FailedStatus builds the Failed{error, recoverable} variant.
func FailedStatus(errMsg string, recoverable bool) WorkerStatus {
	return WorkerStatus{Kind: WorkerFailed, Error: errMsg, Recoverable: recoverable}
}

// CancelledStatus builds the Cancelled variant.
func CancelledStatus() WorkerStatus { return WorkerStatus{Kind: WorkerCancelled} }

// DisconnectedStatus builds the Disconnected variant (see open question #1).
func DisconnectedStatus() WorkerStatus { return WorkerStatus{Kind: WorkerDisconnected} }

// PermissionResultKind enumerates the sum type `{Approve, Deny{reason}, Abort}`.
type PermissionResultKind string

const (
	PermissionApprove PermissionResultKind = "approve"
	PermissionDeny     PermissionResultKind = "deny"
	PermissionAbort    PermissionResultKind = "abort"
)

// PermissionResult is the commander's decision on a permission_request.
type PermissionResult struct {
	Kind   PermissionResultKind
	Reason string
}

// Approve, Deny, Abort construct the three PermissionResult variants.
func Approve() PermissionResult                { return PermissionResult{Kind: PermissionApprove} }
func Deny(reason string) PermissionResult      { return PermissionResult{Kind: PermissionDeny, Reason: reason} }
func Abort() PermissionResult                  { return PermissionResult{Kind: PermissionAbort} }

// RestartPolicy governs what the commander does when a child disconnects
// without sending a terminal message and exited with status 0 (spec §4.1
// Failure semantics; open question #1).
type RestartPolicy struct {
	// Disabled surfaces a dedicated Disconnected terminal state instead of
	// restarting. This is the default (see DESIGN.md).
	Disabled bool
	MaxRestarts int
}

// DefaultRestartPolicy returns the policy this implementation defaults to:
// no automatic restart.
func DefaultRestartPolicy() RestartPolicy {
	return RestartPolicy{Disabled: true, MaxRestarts: 0}
}

// RegistryEntry is one entry of the multi-repo workspace registry persisted
// at `<main>/.gitgrip/griptrees.json` (spec §3/§6).
type RegistryEntry struct {
	Branch    string    `json:"branch"`
	Path      string    `json:"path"`
	CreatedAt time.Time `json:"created_at"`
	Locked    bool      `json:"locked"`
}

// WorkerEventKind enumerates the commander's outbound lifecycle event
// stream (spec §4.1): one event per worker-table transition, distinct from
// the wire-level WorkerStatus a worker reports about itself.
type WorkerEventKind string

const (
	EventConnected         WorkerEventKind = "connected"
	EventPermissionRequest WorkerEventKind = "permission_request"
	EventStatusChanged     WorkerEventKind = "status_changed"
	EventCompleted         WorkerEventKind = "completed"
	EventFailed            WorkerEventKind = "failed"
	EventCancelled         WorkerEventKind = "cancelled"
	EventDisconnected      WorkerEventKind = "disconnected"
)

// WorkerEvent is one entry on the commander's event stream.
type WorkerEvent struct {
	Kind     WorkerEventKind
	WorkerID string

	// PermissionRequest only.
	RequestID    string
	ToolName     string
	Input        []byte
	IsDangerous  bool
	DangerReason string

	// StatusChanged only.
	Status WorkerStatus

	// Completed only.
	Result *WorkerResult

	// Failed only.
	Error       string
	Recoverable bool
}

// ConnectedEvent, CancelledEvent, DisconnectedEvent build the argument-free
// event variants.
func ConnectedEvent(workerID string) WorkerEvent {
	return WorkerEvent{Kind: EventConnected, WorkerID: workerID}
}
func CancelledEvent(workerID string) WorkerEvent {
	return WorkerEvent{Kind: EventCancelled, WorkerID: workerID}
}
func DisconnectedEvent(workerID string) WorkerEvent {
	return WorkerEvent{Kind: EventDisconnected, WorkerID: workerID}
}

// PermissionRequestEvent builds the PermissionRequest{worker_id, request_id,
// tool_name, input} variant.
func PermissionRequestEvent(workerID, requestID, toolName string, input []byte, isDangerous bool, dangerReason string) WorkerEvent {
	return WorkerEvent{
		Kind: EventPermissionRequest, WorkerID: workerID,
		RequestID: requestID, ToolName: toolName, Input: input,
		IsDangerous: isDangerous, DangerReason: dangerReason,
	}
}

// StatusChangedEvent builds the StatusChanged{worker_id, status} variant.
func StatusChangedEvent(workerID string, status WorkerStatus) WorkerEvent {
	return WorkerEvent{Kind: EventStatusChanged, WorkerID: workerID, Status: status}
}

// CompletedEvent builds the Completed{worker_id, result} variant.
func CompletedEvent(workerID string, result *WorkerResult) WorkerEvent {
	return WorkerEvent{Kind: EventCompleted, WorkerID: workerID, Result: result}
}

// FailedEvent builds the Failed{worker_id, error, recoverable} variant.
func FailedEvent(workerID, errMsg string, recoverable bool) WorkerEvent {
	return WorkerEvent{Kind: EventFailed, WorkerID: workerID, Error: errMsg, Recoverable: recoverable}
}

// GriptreePointer is the pointer file written inside a multi-repo
// worktree at `<worker_workspace>/.griptree`, letting a child process
// reconstruct its WorkspaceInfo without consulting the registry.
type GriptreePointer struct {
	MainWorkspace string        `json:"main_workspace"`
	Branch        string        `json:"branch"`
	Locked        bool          `json:"locked"`
	CreatedAt     *time.Time    `json:"created_at,omitempty"`
	Repos         []RepoPointer `json:"repos"`
}
