package agentloop

import (
	"context"
	"fmt"
	"time"

	"github.com/hugo-lorenzo-mato/gitgrip/internal/core"
	"github.com/hugo-lorenzo-mato/gitgrip/internal/logging"
)

// Loop drives one worker's conversation with a model provider, dispatching
// any tool calls it requests through a confirmation gate and a tool
// registry, both supplied as ports (spec §1: tools and model providers are
// external collaborators named only as interfaces).
type Loop struct {
	config   Config
	provider core.ModelProvider
	tools    core.ToolRegistry
	log      *logging.Logger

	confirm         ConfirmFunc
	onCompaction    func(starting bool)
	onStream        func(core.StreamEvent)
	onTurnComplete  func(TurnStats)

	dangerousPatterns []dangerousPattern

	messages             []core.ChatMessage
	conversationSummary  string
	runningByteCount     int64
	turn                 int
}

// Options configures a new Loop.
type Options struct {
	Provider       core.ModelProvider
	Tools          core.ToolRegistry
	Log            *logging.Logger
	Confirm        ConfirmFunc
	OnCompaction   func(starting bool)
	OnStream       func(core.StreamEvent)
	OnTurnComplete func(TurnStats)
}

// New builds a Loop. Invalid dangerous-pattern regexes are compiled away
// with a logged warning rather than failing construction.
func New(cfg Config, opts Options) *Loop {
	log := opts.Log
	if log == nil {
		log = logging.NewNop()
	}
	l := &Loop{
		config:       cfg,
		provider:     opts.Provider,
		tools:        opts.Tools,
		log:          log,
		confirm:        opts.Confirm,
		onCompaction:   opts.OnCompaction,
		onStream:       opts.OnStream,
		onTurnComplete: opts.OnTurnComplete,
	}
	l.dangerousPatterns = compileDangerousPatterns(cfg.DangerousPatterns, func(pattern string, err error) {
		log.Warn("skipping invalid dangerous pattern", "pattern", pattern, "error", err)
	})
	return l
}

// Messages returns the current conversation, most recent last.
func (l *Loop) Messages() []core.ChatMessage { return append([]core.ChatMessage{}, l.messages...) }

// MessageCount returns how many messages remain uncompacted.
func (l *Loop) MessageCount() int { return len(l.messages) }

// ConversationSummary returns the running compaction summary, if any.
func (l *Loop) ConversationSummary() string { return l.conversationSummary }

// Turn returns the number of model round trips this loop has made.
func (l *Loop) Turn() int { return l.turn }

// CompactContext forces compaction now, returning how many messages were
// folded into the summary.
func (l *Loop) CompactContext() int { return l.compactContext() }

func (l *Loop) appendMessage(msg core.ChatMessage) {
	l.messages = append(l.messages, msg)
	l.runningByteCount += messageByteCount(msg)
}

func (l *Loop) appendUserText(text string) {
	l.appendMessage(core.ChatMessage{Role: "user", Text: text})
}

func (l *Loop) appendAssistantText(text string) {
	l.appendMessage(core.ChatMessage{Role: "assistant", Text: text})
}

func (l *Loop) appendAssistantResponse(resp *core.ChatResponse) {
	var blocks []core.ChatContentBlock
	if resp.Content != "" {
		blocks = append(blocks, core.ChatContentBlock{Kind: "text", Text: resp.Content})
	}
	for _, call := range resp.ToolCalls {
		blocks = append(blocks, core.ChatContentBlock{
			Kind:      "tool_use",
			ToolUseID: call.ID,
			ToolName:  call.Name,
			ToolInput: call.Input,
		})
	}
	if len(blocks) == 0 {
		return
	}
	l.appendMessage(core.ChatMessage{Role: "assistant", Blocks: blocks})
}

func (l *Loop) addToolResults(blocks []core.ChatContentBlock) {
	if len(blocks) == 0 {
		return
	}
	l.appendMessage(core.ChatMessage{Role: "user", Blocks: blocks})
}

func toolResultBlock(toolUseID, content string, isError bool) core.ChatContentBlock {
	return core.ChatContentBlock{
		Kind:              "tool_result",
		ToolUseID:         toolUseID,
		ToolResultContent: content,
		ToolResultIsError: isError,
	}
}

func (l *Loop) toolDefinitions() []core.ToolDefinition {
	if !l.config.UseTools || l.tools == nil || l.provider == nil || !l.provider.SupportsToolUse() {
		return nil
	}
	return l.tools.Definitions()
}

// Chat runs one uncancellable turn to completion.
func (l *Loop) Chat(ctx context.Context, userMessage string) (string, error) {
	return l.ChatWithCancel(ctx, userMessage, nil)
}

// ChatWithCancel runs one turn, racing each in-flight provider call
// against cancel. The turn loop implements spec §4.3 steps a-i.
func (l *Loop) ChatWithCancel(ctx context.Context, userMessage string, cancel *CancelSignal) (string, error) {
	startTime := time.Now()
	stats := &TurnStats{}

	l.appendUserText(userMessage)

	iteration := 0
	consecutiveErrors := 0
	var finalResponse string

	for {
		if cancel != nil && cancel.IsCancelled() {
			return "", core.ErrUserCancelled("cancelled before turn completed")
		}

		iteration++
		l.turn++

		if iteration > l.config.MaxIterations {
			l.appendAssistantText("(Reached iteration limit, stopping)")
			break
		}
		if l.config.MaxTurnDuration > 0 && time.Since(startTime) > l.config.MaxTurnDuration {
			l.appendAssistantText("(Reached time limit, stopping)")
			break
		}
		if l.config.MaxContextTokens > 0 && l.estimateTokens() > l.config.MaxContextTokens {
			l.compactContext()
		}

		response, err := l.callProvider(ctx, cancel)
		if err != nil {
			return "", err
		}

		if response.Usage != nil {
			stats.InputTokens += int64(response.Usage.InputTokens)
			stats.OutputTokens += int64(response.Usage.OutputTokens)
		}
		if response.Content != "" {
			finalResponse = response.Content
		}
		l.appendAssistantResponse(response)

		if len(response.ToolCalls) == 0 {
			break
		}

		results, hadError, err := l.processToolCalls(ctx, response.ToolCalls, stats)
		l.addToolResults(results)
		if err != nil {
			return "", err
		}

		if hadError {
			consecutiveErrors++
			if consecutiveErrors >= l.config.MaxConsecutiveErrors {
				l.appendAssistantText("(repeated errors)")
				break
			}
		} else {
			consecutiveErrors = 0
		}
	}

	if l.onTurnComplete != nil {
		l.onTurnComplete(*stats)
	}
	return finalResponse, nil
}

// callProvider races one streamed provider call against cancel, if
// supplied. A cancel firing mid-request always means the turn stops:
// CancelSignal is level-triggered and never un-fires.
func (l *Loop) callProvider(ctx context.Context, cancel *CancelSignal) (*core.ChatResponse, error) {
	systemContext := l.buildSystemContext()
	tools := l.toolDefinitions()
	onEvent := func(ev core.StreamEvent) {
		if l.onStream != nil {
			l.onStream(ev)
		}
	}

	if cancel == nil {
		return l.provider.StreamChat(ctx, l.messages, tools, systemContext, onEvent)
	}

	type result struct {
		resp *core.ChatResponse
		err  error
	}
	resultCh := make(chan result, 1)
	go func() {
		resp, err := l.provider.StreamChat(ctx, l.messages, tools, systemContext, onEvent)
		resultCh <- result{resp, err}
	}()

	select {
	case r := <-resultCh:
		return r.resp, r.err
	case <-cancel.Done():
		return nil, core.ErrUserCancelled("cancelled mid-request")
	}
}

// processToolCalls runs the confirmation gate and dispatches each tool
// call in order (spec §4.3 step h). Deny synthesizes an error tool result
// and continues; Abort synthesizes one too but ends the whole turn.
func (l *Loop) processToolCalls(ctx context.Context, calls []core.ModelToolCall, stats *TurnStats) ([]core.ChatContentBlock, bool, error) {
	results := make([]core.ChatContentBlock, 0, len(calls))
	hadError := false

	for _, call := range calls {
		if confirmation := l.evaluateConfirmation(call); confirmation != nil && l.confirm != nil {
			decision, err := l.confirm(ctx, call, *confirmation)
			if err != nil {
				return results, hadError, err
			}
			switch decision.Kind {
			case core.PermissionDeny:
				results = append(results, toolResultBlock(call.ID, "User denied this operation. Please try a different approach.", true))
				hadError = true
				continue
			case core.PermissionAbort:
				results = append(results, toolResultBlock(call.ID, "User aborted the operation.", true))
				return results, hadError, core.ErrUserCancelled("tool call aborted")
			}
		}

		start := time.Now()
		dr, err := l.tools.Dispatch(ctx, call.Name, call.Input)
		durationMS := time.Since(start).Milliseconds()

		if err != nil {
			stats.ToolCallCount++
			stats.ToolCalls = append(stats.ToolCalls, TurnToolCall{Name: call.Name, DurationMS: durationMS, IsError: true})
			results = append(results, toolResultBlock(call.ID, fmt.Sprintf("Error: %v", err), true))
			hadError = true
			continue
		}

		stats.ToolCallCount++
		stats.ToolCalls = append(stats.ToolCalls, TurnToolCall{Name: call.Name, DurationMS: durationMS, IsError: dr.IsError})
		results = append(results, toolResultBlock(call.ID, dr.Output, dr.IsError))
		if dr.IsError {
			hadError = true
		}
	}

	return results, hadError, nil
}
