package core

import (
	"context"
	"encoding/json"
)

// StreamEvent is one increment of a streamed model response. Providers
// deliver these through the on_event callback passed to StreamChat; the
// agent loop only inspects TextDelta for incremental output, forwarding the
// full event to its own callbacks unchanged.
type StreamEvent struct {
	Kind     string // "text_delta", "tool_use_delta", ...
	TextDelta string
}

// ChatMessage is a single entry in the conversation passed to a provider.
// Content mirrors the two shapes AgentLoop produces: plain text, or a list
// of content blocks (text / tool_use / tool_result).
type ChatMessage struct {
	Role   string // "user", "assistant", "system"
	Text   string
	Blocks []ChatContentBlock
}

// ChatContentBlock is one block of a structured chat message.
type ChatContentBlock struct {
	Kind string // "text", "tool_use", "tool_result"

	Text string // Kind == "text"

	ToolUseID string          // Kind == "tool_use" | "tool_result"
	ToolName  string          // Kind == "tool_use"
	ToolInput json.RawMessage // Kind == "tool_use"

	ToolResultContent string // Kind == "tool_result"
	ToolResultIsError bool   // Kind == "tool_result"
}

// ModelToolCall is a tool invocation the provider asked for in its response.
type ModelToolCall struct {
	ID    string
	Name  string
	Input json.RawMessage
}

// ModelUsage reports token consumption for one provider call.
type ModelUsage struct {
	InputTokens  int
	OutputTokens int
}

// ChatResponse is a provider's complete (non-streaming-shaped) answer to one
// StreamChat call, after all stream events have been consumed.
type ChatResponse struct {
	Content   string
	ToolCalls []ModelToolCall
	Usage     *ModelUsage
}

// ToolDefinition describes one callable tool to a model provider.
type ToolDefinition struct {
	Name        string
	Description string
	Schema      json.RawMessage
}

// ModelProvider is the external collaborator boundary named in spec §6: the
// language-model adapter the agent loop drives. Concrete adapters (the CLI
// wrappers under internal/adapters/cli) are out of scope for this
// subsystem; it depends only on this interface.
type ModelProvider interface {
	StreamChat(ctx context.Context, messages []ChatMessage, tools []ToolDefinition, systemPrompt string, onEvent func(StreamEvent)) (*ChatResponse, error)
	SupportsToolUse() bool
}

// ToolDispatchResult is what a tool registry returns for one invocation.
type ToolDispatchResult struct {
	Output   string
	Duration int64 // milliseconds
	IsError  bool
}

// ToolRegistry is the external collaborator boundary for tool
// implementations (spec §6): definitions for the provider, dispatch for
// execution. Concrete tools are out of scope.
type ToolRegistry interface {
	Definitions() []ToolDefinition
	Dispatch(ctx context.Context, name string, input json.RawMessage) (ToolDispatchResult, error)
}

// LogSink is the external collaborator boundary for structured logging
// keyed by worker id (spec §6). *logging.Logger satisfies this in practice.
type LogSink interface {
	LogWorker(workerID string, level string, message string, attrs ...any)
}
