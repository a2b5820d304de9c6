package agentloop

import (
	"fmt"
	"strings"

	"github.com/hugo-lorenzo-mato/gitgrip/internal/core"
)

const keepRecentMessages = 10

// truncateStr is Unicode-scalar-safe: it counts runes, not bytes, so a
// truncation boundary never lands inside a multi-byte character.
func truncateStr(s string, maxChars int) string {
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	return string(runes[:maxChars]) + "..."
}

func blockText(b core.ChatContentBlock) string {
	switch b.Kind {
	case "tool_result":
		return b.ToolResultContent
	default:
		return b.Text
	}
}

func messageText(msg core.ChatMessage) string {
	if len(msg.Blocks) == 0 {
		return msg.Text
	}
	parts := make([]string, 0, len(msg.Blocks))
	for _, b := range msg.Blocks {
		if t := blockText(b); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}

// messageByteCount mirrors the running_char_count accounting: it's
// actually a byte count (not a rune count), cheap to accumulate
// incrementally and divided by 4 as a token estimate.
func messageByteCount(msg core.ChatMessage) int64 {
	if len(msg.Blocks) == 0 {
		return int64(len(msg.Text))
	}
	var n int64
	for _, b := range msg.Blocks {
		n += int64(len(b.Text))
		n += int64(len(b.ToolName))
		n += int64(len(b.ToolInput))
		n += int64(len(b.ToolResultContent))
	}
	return n
}

func roleLabel(role string) string {
	switch role {
	case "user":
		return "User"
	case "assistant":
		return "Assistant"
	case "system":
		return "System"
	default:
		return role
	}
}

// compactContext keeps the last keepRecentMessages messages intact and
// folds everything older into a running text summary, truncated to stay
// bounded (spec §4.3.1). Returns the number of messages removed.
func (l *Loop) compactContext() int {
	if l.onCompaction != nil {
		l.onCompaction(true)
	}
	defer func() {
		if l.onCompaction != nil {
			l.onCompaction(false)
		}
	}()

	msgCount := len(l.messages)
	if msgCount <= keepRecentMessages {
		return 0
	}

	splitAt := msgCount - keepRecentMessages
	older := l.messages[:splitAt]
	l.messages = append([]core.ChatMessage{}, l.messages[splitAt:]...)

	summaryParts := make([]string, 0, len(older))
	for _, msg := range older {
		text := messageText(msg)
		if text != "" {
			summaryParts = append(summaryParts, fmt.Sprintf("%s: %s", roleLabel(msg.Role), truncateStr(text, 200)))
		}
	}
	newSummary := truncateStr(strings.Join(summaryParts, "\n"), 2000)

	if l.conversationSummary != "" {
		combined := l.conversationSummary + "\n\n" + newSummary
		l.conversationSummary = truncateStr(combined, 4000)
	} else {
		l.conversationSummary = newSummary
	}

	var runningBytes int64
	for _, msg := range l.messages {
		runningBytes += messageByteCount(msg)
	}
	l.runningByteCount = runningBytes

	if l.log != nil {
		l.log.Info("context compacted", "removed", splitAt, "remaining", len(l.messages))
	}
	return splitAt
}

// estimateTokens approximates token usage as bytes/4; no tokenizer is
// involved, matching the teacher's own approximation elsewhere.
func (l *Loop) estimateTokens() int64 {
	total := l.runningByteCount
	total += int64(len(l.config.SystemPrompt))
	total += int64(len(l.conversationSummary))
	return total / 4
}

// buildSystemContext appends the running conversation summary, if any,
// to the configured system prompt.
func (l *Loop) buildSystemContext() string {
	if l.conversationSummary == "" {
		return l.config.SystemPrompt
	}
	return l.config.SystemPrompt + "\n\n## Previous Conversation Summary\n" + l.conversationSummary
}
