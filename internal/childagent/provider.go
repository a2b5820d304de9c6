package childagent

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/hugo-lorenzo-mato/gitgrip/internal/adapters/cli"
	"github.com/hugo-lorenzo-mato/gitgrip/internal/core"
)

// cliProvider adapts one of the teacher's CLI agent wrappers (core.Agent,
// a single-shot prompt-in/output-out contract) onto core.ModelProvider's
// streaming chat contract. The CLI adapters buffer a whole subprocess
// invocation before returning, so StreamChat delivers the response as one
// text_delta event rather than incrementally, same as the wrapped adapter's
// own ExecuteCommand already does internally.
type cliProvider struct {
	agent   core.Agent
	workDir string
}

// NewCLIProvider builds a core.ModelProvider backed by a named registry
// agent ("claude", "gemini", "codex", "copilot", "opencode"). cfg configures
// the underlying CLI binary the same way the teacher's registry does.
func NewCLIProvider(registry *cli.Registry, name string, workDir string) (core.ModelProvider, error) {
	agent, err := registry.Get(name)
	if err != nil {
		return nil, err
	}
	return &cliProvider{agent: agent, workDir: workDir}, nil
}

// SupportsToolUse reports the wrapped adapter's own tool-use capability.
func (p *cliProvider) SupportsToolUse() bool {
	return p.agent.Capabilities().SupportsTools
}

// StreamChat renders the conversation into a single transcript prompt (the
// CLI adapters have no notion of multi-turn chat messages) and executes it
// through the wrapped agent.
func (p *cliProvider) StreamChat(ctx context.Context, messages []core.ChatMessage, tools []core.ToolDefinition, systemPrompt string, onEvent func(core.StreamEvent)) (*core.ChatResponse, error) {
	prompt := renderTranscript(messages, tools)

	opts := core.DefaultExecuteOptions()
	opts.Prompt = prompt
	opts.SystemPrompt = systemPrompt
	opts.WorkDir = p.workDir
	opts.Format = core.OutputFormatText

	result, err := p.agent.Execute(ctx, opts)
	if err != nil {
		return nil, err
	}

	if onEvent != nil {
		onEvent(core.StreamEvent{Kind: "text_delta", TextDelta: result.Output})
	}

	calls := make([]core.ModelToolCall, 0, len(result.ToolCalls))
	for _, tc := range result.ToolCalls {
		input, marshalErr := json.Marshal(tc.Arguments)
		if marshalErr != nil {
			input = json.RawMessage("{}")
		}
		calls = append(calls, core.ModelToolCall{ID: tc.ID, Name: tc.Name, Input: input})
	}

	return &core.ChatResponse{
		Content:   result.Output,
		ToolCalls: calls,
		Usage:     &core.ModelUsage{InputTokens: result.TokensIn, OutputTokens: result.TokensOut},
	}, nil
}

// renderTranscript flattens a chat history and tool catalog into the plain
// text prompt the underlying CLI binary reads on stdin, in role-prefixed
// turn order followed by a tool-availability footer.
func renderTranscript(messages []core.ChatMessage, tools []core.ToolDefinition) string {
	var b strings.Builder
	for _, m := range messages {
		b.WriteString(m.Role)
		b.WriteString(": ")
		if m.Text != "" {
			b.WriteString(m.Text)
		} else {
			for _, block := range m.Blocks {
				writeBlock(&b, block)
			}
		}
		b.WriteString("\n")
	}
	if len(tools) > 0 {
		b.WriteString("\navailable tools:\n")
		for _, t := range tools {
			b.WriteString("- ")
			b.WriteString(t.Name)
			b.WriteString(": ")
			b.WriteString(t.Description)
			b.WriteString("\n")
		}
	}
	return b.String()
}

func writeBlock(b *strings.Builder, block core.ChatContentBlock) {
	switch block.Kind {
	case "text":
		b.WriteString(block.Text)
	case "tool_use":
		b.WriteString("[tool_use ")
		b.WriteString(block.ToolName)
		b.WriteString(" ")
		b.Write(block.ToolInput)
		b.WriteString("]")
	case "tool_result":
		b.WriteString("[tool_result ")
		b.WriteString(block.ToolResultContent)
		b.WriteString("]")
	}
}

var _ core.ModelProvider = (*cliProvider)(nil)
