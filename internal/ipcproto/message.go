// Package ipcproto defines the wire protocol exchanged between a commander
// and its workers: two disjoint tagged unions (WorkerMessage,
// CommanderMessage), each envelope carrying an id, a timestamp, and — for
// request/response pairs — a request_id echoed verbatim in the reply.
//
// Every message serializes as exactly one JSON object followed by "\n"; the
// newline is the sole frame delimiter (see package ipctransport/ipcserver
// for framing).
package ipcproto

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Worker→Commander message type tags.
const (
	KindHandshake         = "handshake"
	KindPermissionRequest = "permission_request"
	KindStatusUpdate      = "status_update"
	KindTaskComplete      = "task_complete"
	KindTaskError         = "task_error"
	KindLog               = "log"
	KindPong              = "pong"
)

// Commander→Worker message type tags.
const (
	KindHandshakeAck       = "handshake_ack"
	KindPermissionResponse = "permission_response"
	KindCancel             = "cancel"
	KindInjectContext      = "inject_context"
	KindPing               = "ping"
)

// LogLevel mirrors the worker's log severity (spec §6).
type LogLevel string

const (
	LevelError LogLevel = "error"
	LevelWarn  LogLevel = "warn"
	LevelInfo  LogLevel = "info"
	LevelDebug LogLevel = "debug"
	LevelTrace LogLevel = "trace"
)

// PermissionResultTag is the wire tag for PermissionResult.result.
type PermissionResultTag string

const (
	ResultApprove PermissionResultTag = "approve"
	ResultDeny    PermissionResultTag = "deny"
	ResultAbort   PermissionResultTag = "abort"
)

// PermissionResult is the wire shape of core.PermissionResult.
type PermissionResult struct {
	Result PermissionResultTag `json:"result"`
	Reason string              `json:"reason,omitempty"`
}

// TokenUsage is the wire shape of a status_update's token field.
type TokenUsage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// WorkerResultPayload is the wire shape of task_complete.result.
type WorkerResultPayload struct {
	Success      bool        `json:"success"`
	Response     string      `json:"response"`
	ToolCount    int         `json:"tool_count"`
	DurationMS   int64       `json:"duration_ms"`
	Commits      []string    `json:"commits"`
	FilesChanged []string    `json:"files_changed"`
	Branch       string      `json:"branch,omitempty"`
	Usage        *TokenUsage `json:"usage,omitempty"`
}

// envelope is the common header every message carries.
type envelope struct {
	Type      string    `json:"type"`
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
}

func newEnvelope(kind string) envelope {
	return envelope{Type: kind, ID: uuid.NewString(), Timestamp: now()}
}

// now is a var so tests can freeze time.
var now = time.Now

// WorkerMessage is the sealed interface implemented by every message a
// worker sends to the commander.
type WorkerMessage interface {
	Kind() string
	envelopeID() string
	envelopeTime() time.Time
}

// CommanderMessage is the sealed interface implemented by every message the
// commander sends to a worker.
type CommanderMessage interface {
	Kind() string
	envelopeID() string
	envelopeTime() time.Time
}

func (e envelope) Kind() string           { return e.Type }
func (e envelope) envelopeID() string     { return e.ID }
func (e envelope) envelopeTime() time.Time { return e.Timestamp }

// ---- Worker → Commander ----------------------------------------------

// Handshake is the first message a worker sends after connecting.
type Handshake struct {
	envelope
	WorkerID      string `json:"worker_id"`
	WorkspacePath string `json:"workspace_path"`
	Branch        string `json:"branch"`
	Task          string `json:"task"`
	Model         string `json:"model,omitempty"`
	Provider      string `json:"provider,omitempty"`
}

// NewHandshake builds a handshake message.
func NewHandshake(workerID, workspacePath, branch, task, model, provider string) *Handshake {
	return &Handshake{
		envelope:      newEnvelope(KindHandshake),
		WorkerID:      workerID,
		WorkspacePath: workspacePath,
		Branch:        branch,
		Task:          task,
		Model:         model,
		Provider:      provider,
	}
}

// PermissionRequest asks the commander to approve, deny, or abort a tool
// call.
type PermissionRequest struct {
	envelope
	RequestID    string          `json:"request_id"`
	ToolName     string          `json:"tool_name"`
	Input        json.RawMessage `json:"input"`
	IsDangerous  bool            `json:"is_dangerous"`
	DangerReason string          `json:"danger_reason,omitempty"`
}

// NewPermissionRequest builds a permission_request message with a fresh
// request id.
func NewPermissionRequest(toolName string, input json.RawMessage, isDangerous bool, dangerReason string) *PermissionRequest {
	return &PermissionRequest{
		envelope:     newEnvelope(KindPermissionRequest),
		RequestID:    uuid.NewString(),
		ToolName:     toolName,
		Input:        input,
		IsDangerous:  isDangerous,
		DangerReason: dangerReason,
	}
}

// StatusUpdate reports a lightweight status transition. Complete/Failed
// variants here are placeholders distinct from the authoritative
// task_complete/task_error messages that carry the real result.
type StatusUpdate struct {
	envelope
	Status string      `json:"status"`
	Tool   string      `json:"tool,omitempty"`
	Tokens *TokenUsage `json:"tokens,omitempty"`
}

// Status tag values for StatusUpdate.Status.
const (
	StatusStarting          = "starting"
	StatusIdle              = "idle"
	StatusThinking          = "thinking"
	StatusToolCall          = "tool_call"
	StatusWaitingPermission = "waiting_permission"
	StatusComplete          = "complete"
	StatusFailed            = "failed"
	StatusCancelled         = "cancelled"
)

// NewStatusUpdate builds a status_update message.
func NewStatusUpdate(status, tool string, tokens *TokenUsage) *StatusUpdate {
	return &StatusUpdate{
		envelope: newEnvelope(KindStatusUpdate),
		Status:   status,
		Tool:     tool,
		Tokens:   tokens,
	}
}

// TaskComplete is the authoritative success terminal message.
type TaskComplete struct {
	envelope
	Result WorkerResultPayload `json:"result"`
}

// NewTaskComplete builds a task_complete message.
func NewTaskComplete(result WorkerResultPayload) *TaskComplete {
	return &TaskComplete{envelope: newEnvelope(KindTaskComplete), Result: result}
}

// TaskError is the authoritative failure terminal message.
type TaskError struct {
	envelope
	Message     string `json:"message"`
	Recoverable bool   `json:"recoverable"`
}

// NewTaskError builds a task_error message.
func NewTaskError(message string, recoverable bool) *TaskError {
	return &TaskError{envelope: newEnvelope(KindTaskError), Message: message, Recoverable: recoverable}
}

// Log forwards a structured log line from the worker to the commander.
type Log struct {
	envelope
	Level   LogLevel `json:"level"`
	Message string   `json:"message"`
}

// NewLog builds a log message.
func NewLog(level LogLevel, message string) *Log {
	return &Log{envelope: newEnvelope(KindLog), Level: level, Message: message}
}

// Pong answers a commander-originated ping.
type Pong struct {
	envelope
}

// NewPong builds a pong message.
func NewPong() *Pong {
	return &Pong{envelope: newEnvelope(KindPong)}
}

// ---- Commander → Worker ------------------------------------------------

// HandshakeAck answers a worker's handshake, carrying the effective policy
// (auto_approve/dangerous_patterns/timeout_ms) or rejecting the connection.
type HandshakeAck struct {
	envelope
	Accepted          bool     `json:"accepted"`
	AutoApprove       []string `json:"auto_approve"`
	DangerousPatterns []string `json:"dangerous_patterns"`
	TimeoutMS         int64    `json:"timeout_ms"`
	Reason            string   `json:"reason,omitempty"`
}

// NewHandshakeAck builds an accepted handshake_ack.
func NewHandshakeAck(autoApprove, dangerousPatterns []string, timeoutMS int64) *HandshakeAck {
	return &HandshakeAck{
		envelope:          newEnvelope(KindHandshakeAck),
		Accepted:          true,
		AutoApprove:       autoApprove,
		DangerousPatterns: dangerousPatterns,
		TimeoutMS:         timeoutMS,
	}
}

// NewHandshakeReject builds a rejected handshake_ack.
func NewHandshakeReject(reason string) *HandshakeAck {
	return &HandshakeAck{
		envelope: newEnvelope(KindHandshakeAck),
		Accepted: false,
		Reason:   reason,
	}
}

// PermissionResponse answers a worker's permission_request by request id.
type PermissionResponse struct {
	envelope
	RequestID string           `json:"request_id"`
	Result    PermissionResult `json:"result"`
}

// NewPermissionApprove builds an approve permission_response.
func NewPermissionApprove(requestID string) *PermissionResponse {
	return &PermissionResponse{
		envelope:  newEnvelope(KindPermissionResponse),
		RequestID: requestID,
		Result:    PermissionResult{Result: ResultApprove},
	}
}

// NewPermissionDeny builds a deny permission_response.
func NewPermissionDeny(requestID, reason string) *PermissionResponse {
	return &PermissionResponse{
		envelope:  newEnvelope(KindPermissionResponse),
		RequestID: requestID,
		Result:    PermissionResult{Result: ResultDeny, Reason: reason},
	}
}

// NewPermissionAbort builds an abort permission_response.
func NewPermissionAbort(requestID string) *PermissionResponse {
	return &PermissionResponse{
		envelope:  newEnvelope(KindPermissionResponse),
		RequestID: requestID,
		Result:    PermissionResult{Result: ResultAbort},
	}
}

// Cancel tells the worker to abort its current turn.
type Cancel struct {
	envelope
	Reason string `json:"reason,omitempty"`
}

// NewCancel builds a cancel message.
func NewCancel(reason string) *Cancel {
	return &Cancel{envelope: newEnvelope(KindCancel), Reason: reason}
}

// InjectContext pushes an out-of-band message into the worker's
// conversation (e.g. operator guidance mid-turn).
type InjectContext struct {
	envelope
	Role string `json:"role"`
	Text string `json:"text"`
}

// NewInjectContext builds an inject_context message.
func NewInjectContext(role, text string) *InjectContext {
	return &InjectContext{envelope: newEnvelope(KindInjectContext), Role: role, Text: text}
}

// Ping checks worker liveness; the worker answers with Pong.
type Ping struct {
	envelope
}

// NewPing builds a ping message.
func NewPing() *Ping {
	return &Ping{envelope: newEnvelope(KindPing)}
}

// ---- Encode / Decode ----------------------------------------------------

// Encode serializes a message to a single line (without the trailing
// newline; callers append it when framing, see ipcserver/ipcclient).
func Encode(msg any) ([]byte, error) {
	return json.Marshal(msg)
}

// DecodeWorkerMessage parses one line into its concrete WorkerMessage type
// based on its "type" tag.
func DecodeWorkerMessage(line []byte) (WorkerMessage, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(line, &head); err != nil {
		return nil, fmt.Errorf("decoding envelope: %w", err)
	}

	switch head.Type {
	case KindHandshake:
		var m Handshake
		return &m, unmarshalInto(line, &m, head.Type)
	case KindPermissionRequest:
		var m PermissionRequest
		return &m, unmarshalInto(line, &m, head.Type)
	case KindStatusUpdate:
		var m StatusUpdate
		return &m, unmarshalInto(line, &m, head.Type)
	case KindTaskComplete:
		var m TaskComplete
		return &m, unmarshalInto(line, &m, head.Type)
	case KindTaskError:
		var m TaskError
		return &m, unmarshalInto(line, &m, head.Type)
	case KindLog:
		var m Log
		return &m, unmarshalInto(line, &m, head.Type)
	case KindPong:
		var m Pong
		return &m, unmarshalInto(line, &m, head.Type)
	default:
		return nil, fmt.Errorf("unknown worker message type %q", head.Type)
	}
}

// DecodeCommanderMessage parses one line into its concrete CommanderMessage
// type based on its "type" tag.
func DecodeCommanderMessage(line []byte) (CommanderMessage, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(line, &head); err != nil {
		return nil, fmt.Errorf("decoding envelope: %w", err)
	}

	switch head.Type {
	case KindHandshakeAck:
		var m HandshakeAck
		return &m, unmarshalInto(line, &m, head.Type)
	case KindPermissionResponse:
		var m PermissionResponse
		return &m, unmarshalInto(line, &m, head.Type)
	case KindCancel:
		var m Cancel
		return &m, unmarshalInto(line, &m, head.Type)
	case KindInjectContext:
		var m InjectContext
		return &m, unmarshalInto(line, &m, head.Type)
	case KindPing:
		var m Ping
		return &m, unmarshalInto(line, &m, head.Type)
	default:
		return nil, fmt.Errorf("unknown commander message type %q", head.Type)
	}
}

// unmarshalInto fills a concrete message struct and stamps its envelope Type
// back in, since envelope is embedded but the Type tag was only read once.
func unmarshalInto(line []byte, v interface{ setType(string) }, kind string) error {
	if err := json.Unmarshal(line, v); err != nil {
		return fmt.Errorf("decoding %s: %w", kind, err)
	}
	v.setType(kind)
	return nil
}

func (e *envelope) setType(kind string) { e.Type = kind }
