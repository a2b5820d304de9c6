package childagent

import (
	"context"
	"encoding/json"

	"github.com/hugo-lorenzo-mato/gitgrip/internal/core"
	"github.com/hugo-lorenzo-mato/gitgrip/internal/ipcclient"
	"github.com/hugo-lorenzo-mato/gitgrip/internal/ipcproto"
)

// statusProvider decorates a core.ModelProvider to report a "thinking"
// status_update before every call, so the commander's view of a worker
// reflects what it's doing in near real time (spec §4.1 status stream).
type statusProvider struct {
	core.ModelProvider
	client *ipcclient.Client
}

func (p *statusProvider) StreamChat(ctx context.Context, messages []core.ChatMessage, tools []core.ToolDefinition, systemPrompt string, onEvent func(core.StreamEvent)) (*core.ChatResponse, error) {
	_ = p.client.SendStatus(ipcproto.StatusThinking, "", nil)
	return p.ModelProvider.StreamChat(ctx, messages, tools, systemPrompt, onEvent)
}

// statusToolRegistry decorates a core.ToolRegistry to report a "tool_call"
// status_update naming the tool before each dispatch.
type statusToolRegistry struct {
	core.ToolRegistry
	client *ipcclient.Client
}

func (r *statusToolRegistry) Dispatch(ctx context.Context, name string, input json.RawMessage) (core.ToolDispatchResult, error) {
	_ = r.client.SendStatus(ipcproto.StatusToolCall, name, nil)
	return r.ToolRegistry.Dispatch(ctx, name, input)
}
