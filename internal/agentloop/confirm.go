package agentloop

import (
	"context"
	"encoding/json"
	"regexp"

	"github.com/hugo-lorenzo-mato/gitgrip/internal/core"
)

// ToolConfirmation is handed to the loop's confirmation callback for a
// tool call that needs the caller's sign-off before it runs.
type ToolConfirmation struct {
	ToolName     string
	Input        json.RawMessage
	IsDangerous  bool
	DangerReason string
}

// ConfirmFunc decides whether a tool call proceeds. Implemented by
// ChildAgent as a bridge onto the IPC permission-request round trip, so it
// takes a context to propagate the request's deadline and cancellation.
type ConfirmFunc func(ctx context.Context, call core.ModelToolCall, confirmation ToolConfirmation) (core.PermissionResult, error)

type dangerousPattern struct {
	source string
	re     *regexp.Regexp
}

// compileDangerousPatterns compiles each pattern, skipping (and reporting
// via warn) any that fail to compile rather than aborting the whole set
// (spec §4.3.2, §8 "invalid regex is skipped").
func compileDangerousPatterns(patterns []string, warn func(pattern string, err error)) []dangerousPattern {
	compiled := make([]dangerousPattern, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			if warn != nil {
				warn(p, err)
			}
			continue
		}
		compiled = append(compiled, dangerousPattern{source: p, re: re})
	}
	return compiled
}

func matchDangerousPattern(patterns []dangerousPattern, input string) (string, bool) {
	for _, p := range patterns {
		if p.re.MatchString(input) {
			return p.source, true
		}
	}
	return "", false
}

// evaluateConfirmation decides whether call needs confirmation: either its
// name is in the destructive set and not auto-approved, or its serialized
// input matches a dangerous pattern. The input is serialized at most once.
func (l *Loop) evaluateConfirmation(call core.ModelToolCall) *ToolConfirmation {
	isBuiltinDangerous := l.config.isDestructive(call.Name)
	needsBuiltinConfirm := isBuiltinDangerous && !l.config.shouldAutoApprove(call.Name)

	var reason string
	var patternMatched bool
	if len(l.dangerousPatterns) > 0 {
		inputStr := string(call.Input)
		if matched, ok := matchDangerousPattern(l.dangerousPatterns, inputStr); ok {
			reason = matched
			patternMatched = true
		}
	}

	if !needsBuiltinConfirm && !patternMatched {
		return nil
	}
	if reason == "" {
		reason = "tool is in the built-in destructive set"
	}
	return &ToolConfirmation{
		ToolName:     call.Name,
		Input:        call.Input,
		IsDangerous:  true,
		DangerReason: reason,
	}
}
