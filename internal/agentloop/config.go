// Package agentloop implements the per-worker conversation loop: send a
// message to a model provider, run any tool calls it requests through a
// confirmation gate, feed the results back, repeat until the model stops
// asking for tools or a limit is hit (spec §4.3).
package agentloop

import (
	"sync"
	"time"
)

// Config bounds one agent loop's behavior. Tools themselves are an
// external collaborator (spec §1 Non-goals), so the built-in "destructive"
// tool set isn't hardcoded here — it's supplied by whatever concrete tool
// registry the caller wires in.
type Config struct {
	SystemPrompt string

	AutoApprove       []string
	DangerousPatterns []string
	DestructiveTools  []string

	MaxIterations        int
	MaxTurnDuration      time.Duration
	MaxContextTokens     int64
	MaxConsecutiveErrors int

	UseTools bool
}

// DefaultConfig mirrors the teacher's own conservative defaults for
// runaway-loop protection.
func DefaultConfig() Config {
	return Config{
		MaxIterations:        50,
		MaxTurnDuration:      10 * time.Minute,
		MaxContextTokens:     150_000,
		MaxConsecutiveErrors: 3,
		UseTools:             true,
	}
}

func (c Config) shouldAutoApprove(tool string) bool {
	for _, t := range c.AutoApprove {
		if t == tool {
			return true
		}
	}
	return false
}

func (c Config) isDestructive(tool string) bool {
	for _, t := range c.DestructiveTools {
		if t == tool {
			return true
		}
	}
	return false
}

// TurnToolCall records one tool invocation's outcome within a turn.
type TurnToolCall struct {
	Name       string
	DurationMS int64
	IsError    bool
}

// TurnStats accumulates usage and tool-call accounting across one Chat
// call (spec §3 Message/turn accounting).
type TurnStats struct {
	InputTokens   int64
	OutputTokens  int64
	ToolCallCount int
	ToolCalls     []TurnToolCall
}

// CancelSignal is a level-triggered cancellation flag: once Cancel is
// called, IsCancelled and Done report cancelled forever after. Safe for
// concurrent use.
type CancelSignal struct {
	once sync.Once
	ch   chan struct{}
}

// NewCancelSignal returns a signal that has not fired yet.
func NewCancelSignal() *CancelSignal {
	return &CancelSignal{ch: make(chan struct{})}
}

// Cancel fires the signal. Safe to call more than once or concurrently.
func (s *CancelSignal) Cancel() {
	s.once.Do(func() { close(s.ch) })
}

// Done returns a channel that's closed once Cancel has been called.
func (s *CancelSignal) Done() <-chan struct{} {
	return s.ch
}

// IsCancelled reports whether Cancel has been called.
func (s *CancelSignal) IsCancelled() bool {
	select {
	case <-s.ch:
		return true
	default:
		return false
	}
}
