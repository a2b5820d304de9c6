package agentloop

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/hugo-lorenzo-mato/gitgrip/internal/core"
)

// alwaysToolCallProvider never stops asking for tools on its own, so the
// only way a turn ends is an external limit (iteration, time, or error
// count) kicking in.
type alwaysToolCallProvider struct {
	calls int
}

func (p *alwaysToolCallProvider) StreamChat(_ context.Context, _ []core.ChatMessage, _ []core.ToolDefinition, _ string, _ func(core.StreamEvent)) (*core.ChatResponse, error) {
	p.calls++
	return &core.ChatResponse{
		ToolCalls: []core.ModelToolCall{{ID: "1", Name: "noop", Input: json.RawMessage("{}")}},
	}, nil
}

func (p *alwaysToolCallProvider) SupportsToolUse() bool { return true }

type noopTools struct{ dispatches int }

func (t *noopTools) Definitions() []core.ToolDefinition { return nil }

func (t *noopTools) Dispatch(_ context.Context, _ string, _ json.RawMessage) (core.ToolDispatchResult, error) {
	t.dispatches++
	return core.ToolDispatchResult{Output: "ok"}, nil
}

// TestChatStopsAtIterationLimit pins the exact off-by-one at loop.go's
// iteration check: iteration is incremented before the limit test, so a
// provider that never stops asking for tools is cut off after exactly
// MaxIterations provider calls, with the (iteration > MaxIterations) turn
// appending the "reached iteration limit" marker instead of calling the
// provider again.
func TestChatStopsAtIterationLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxIterations = 3

	provider := &alwaysToolCallProvider{}
	tools := &noopTools{}
	l := New(cfg, Options{Provider: provider, Tools: tools})

	if _, err := l.Chat(context.Background(), "start"); err != nil {
		t.Fatalf("Chat returned error: %v", err)
	}

	if provider.calls != cfg.MaxIterations {
		t.Errorf("provider.calls = %d, want %d (one per iteration up to the limit)", provider.calls, cfg.MaxIterations)
	}
	if l.Turn() != cfg.MaxIterations+1 {
		t.Errorf("Turn() = %d, want %d (the limit-check iteration still increments turn)", l.Turn(), cfg.MaxIterations+1)
	}

	messages := l.Messages()
	last := messages[len(messages)-1]
	if last.Text != "(Reached iteration limit, stopping)" {
		t.Errorf("final message = %q, want the iteration-limit marker", last.Text)
	}
}

// TestChatStopsOneIterationBelowLimitIsFine checks the boundary doesn't
// trip early: with MaxIterations equal to the number of tool-call rounds
// actually needed, a provider that stops asking for tools on its own
// still completes before the limit marker would appear.
type stopsAfterOneToolCallProvider struct {
	calls int
}

func (p *stopsAfterOneToolCallProvider) StreamChat(_ context.Context, _ []core.ChatMessage, _ []core.ToolDefinition, _ string, _ func(core.StreamEvent)) (*core.ChatResponse, error) {
	p.calls++
	if p.calls == 1 {
		return &core.ChatResponse{ToolCalls: []core.ModelToolCall{{ID: "1", Name: "noop", Input: json.RawMessage("{}")}}}, nil
	}
	return &core.ChatResponse{Content: "done"}, nil
}

func (p *stopsAfterOneToolCallProvider) SupportsToolUse() bool { return true }

func TestChatCompletesNormallyWithinIterationLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxIterations = 3

	provider := &stopsAfterOneToolCallProvider{}
	tools := &noopTools{}
	l := New(cfg, Options{Provider: provider, Tools: tools})

	resp, err := l.Chat(context.Background(), "start")
	if err != nil {
		t.Fatalf("Chat returned error: %v", err)
	}
	if resp != "done" {
		t.Errorf("Chat response = %q, want %q", resp, "done")
	}
	if provider.calls != 2 {
		t.Errorf("provider.calls = %d, want 2", provider.calls)
	}

	messages := l.Messages()
	last := messages[len(messages)-1]
	if last.Text == "(Reached iteration limit, stopping)" {
		t.Error("iteration-limit marker should not appear when the provider stops on its own")
	}
}
