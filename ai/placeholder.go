package ai

import (
	"context"
	"strings"
)

// Placeholder is an offline provider used when no API key is configured.
// Replies are deterministic: it recognizes the planning, summarizing and
// follow-up prompts by their instructions and answers with well-formed
// output so the rest of the pipeline stays exercisable without a network.
type Placeholder struct{}

var _ Provider = (*Placeholder)(nil)

func NewPlaceholder() *Placeholder {
	return &Placeholder{}
}

func (p *Placeholder) Name() string {
	return "placeholder"
}

func (p *Placeholder) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	system := strings.ToLower(systemPrompt)
	switch {
	case strings.Contains(system, "query plan"):
		table := firstTableIn(systemPrompt)
		if table == "" {
			return `{"clarification": "No tables are loaded yet. Point data_dir at the Olist CSV files and try again."}`, nil
		}
		return `{"tables": ["` + table + `"], "select": ["count(*) AS total_rows"], "shape": "scalar", "description": "Count rows in ` + table + `"}`, nil

	case strings.Contains(system, "summarize"):
		return "The query ran against the local dataset. This is a placeholder summary; configure a real provider (OpenAI, Anthropic, Gemini or Ollama) for an actual analysis.", nil

	case strings.Contains(system, "follow-up"):
		return `["How many orders were delivered?", "What are the top product categories by revenue?", "How did monthly revenue develop?"]`, nil
	}

	return "Placeholder provider: configure a real provider (OpenAI, Anthropic, Gemini or Ollama) to get actual assistance.", nil
}

// firstTableIn pulls the first table heading out of a schema context block.
func firstTableIn(prompt string) string {
	for _, line := range strings.Split(prompt, "\n") {
		if name, ok := strings.CutPrefix(line, "### "); ok {
			if i := strings.IndexByte(name, ' '); i > 0 {
				name = name[:i]
			}
			return strings.TrimSpace(name)
		}
	}
	return ""
}
