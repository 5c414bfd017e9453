package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// narrate asks the completion service for a plain-language summary of a
// successful result. A failed call falls back to a plain row-count
// sentence; narration never fails the turn.
func (a *Agent) narrate(ctx context.Context, question string, rs *ResultSet) string {
	callCtx, cancel := context.WithTimeout(ctx, a.cfg.CompletionTimeout)
	defer cancel()

	text, err := a.provider.Complete(callCtx, narrateSystemPrompt, narrateUserPrompt(question, rs))
	if err != nil {
		a.log.Warn("narration failed, using fallback", "error", err)
		return fallbackNarrative(rs)
	}
	if text = strings.TrimSpace(text); text == "" {
		return fallbackNarrative(rs)
	}
	return text
}

// fallbackNarrative stands in when the completion service cannot
// summarize the result.
func fallbackNarrative(rs *ResultSet) string {
	n := rs.RowCount()
	switch {
	case rs.Truncated:
		return fmt.Sprintf("The query returned %s rows (capped).", FormatRowCount(int64(n)))
	case n == 1:
		return "The query returned 1 row."
	default:
		return fmt.Sprintf("The query returned %s rows.", FormatRowCount(int64(n)))
	}
}

// suggestFollowUps asks for three follow-up questions. Best effort like
// narrate; a malformed reply yields none.
func (a *Agent) suggestFollowUps(ctx context.Context, question string, rs *ResultSet) []string {
	callCtx, cancel := context.WithTimeout(ctx, a.cfg.CompletionTimeout)
	defer cancel()

	text, err := a.provider.Complete(callCtx, suggestSystemPrompt, suggestUserPrompt(question, rs))
	if err != nil {
		a.log.Warn("follow-up suggestions skipped", "error", err)
		return nil
	}

	arr := extractJSONArray(text)
	if arr == "" {
		return nil
	}
	var suggestions []string
	if err := json.Unmarshal([]byte(arr), &suggestions); err != nil {
		a.log.Warn("follow-up suggestions unparseable", "error", err)
		return nil
	}
	return cleanList(suggestions)
}

// extractJSONArray finds the first [...] JSON array in the text.
func extractJSONArray(text string) string {
	depth := 0
	start := -1
	for i, ch := range text {
		if ch == '[' {
			if depth == 0 {
				start = i
			}
			depth++
		} else if ch == ']' {
			depth--
			if depth == 0 && start >= 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}
