// prompts.go builds the prompts sent to the completion service. The
// plan schema is reflected from the Plan struct so prompt and parser
// can never drift apart.
package agent

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"

	"github.com/DachengChen/paiViz/dataset"
)

// planSchemaJSON is the JSON schema of Plan, embedded in the planning
// system prompt.
var planSchemaJSON = func() string {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties:  false,
		DoNotReference:             true,
		RequiredFromJSONSchemaTags: true,
	}
	schema := reflector.Reflect(&Plan{})
	out, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		panic(fmt.Sprintf("reflect plan schema: %v", err))
	}
	return string(out)
}()

// planSystemPrompt builds the planning instructions: rules, the plan
// schema, the dataset schema and the conversation so far.
func planSystemPrompt(schema dataset.Schema, backend string, history []Turn) string {
	var sb strings.Builder

	sb.WriteString(`You translate analytics questions about a Brazilian e-commerce dataset into a query plan.

Respond with a single JSON object matching this schema:

`)
	sb.WriteString(planSchemaJSON)
	sb.WriteString(`

Rules:
- The plan describes what to read. There is no way to modify data.
- Use only tables and columns listed below. Never invent names.
- Every table after the first needs a join condition in "joins".
- Alias aggregate expressions, e.g. "sum(price) AS revenue".
- When aggregating, list the grouping expressions in "group_by".
- ` + dialectHint(backend) + `
- Resolve follow-up questions ("and by month?", "only for 2017") against the conversation below.
- If the question is ambiguous or asks about data that is not here, respond with only a "clarification" explaining what is needed.

`)

	sb.WriteString(schema.Context())

	if len(history) > 0 {
		sb.WriteString("\n## Conversation so far\n")
		for _, t := range history {
			fmt.Fprintf(&sb, "Q%d: %s\n", t.Index+1, t.Question)
			switch {
			case t.Failed():
				fmt.Fprintf(&sb, "A%d: failed (%s)\n", t.Index+1, t.Err.Message)
			case t.Plan != nil:
				fmt.Fprintf(&sb, "A%d: %s\n", t.Index+1, t.Plan.Summary())
			}
		}
	}

	return sb.String()
}

// dialectHint names the month-bucketing expression for the backend, the
// one piece of SQL that differs between them.
func dialectHint(backend string) string {
	switch backend {
	case "postgres":
		return `For monthly series use to_char(date_trunc('month', column), 'YYYY-MM') AS month.`
	default:
		return `For monthly series use strftime('%Y-%m', column) AS month.`
	}
}

// correctionPrompt asks for a second attempt after an unparseable reply.
func correctionPrompt(question, badReply string, parseErr error) string {
	return fmt.Sprintf(`Your previous reply could not be used: %v.

Reply: %s

Answer the question again with only the JSON object, no other text.

Question: %s`, parseErr, truncateText(badReply, 500), question)
}

const narrateSystemPrompt = `You summarize query results for a business user in one or two plain sentences.
State the concrete numbers that answer the question. No markdown, no speculation beyond the data shown.`

// narrateUserPrompt renders the question plus a compact result preview.
func narrateUserPrompt(question string, rs *ResultSet) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Question: %s\n\nResult (%d rows", question, rs.RowCount())
	if rs.Truncated {
		sb.WriteString(", truncated")
	}
	sb.WriteString("):\n")
	sb.WriteString(resultPreview(rs, 10))
	return sb.String()
}

const suggestSystemPrompt = `You suggest follow-up analytics questions a user could ask next.
Respond with a JSON array of exactly three short questions. No other text.`

func suggestUserPrompt(question string, rs *ResultSet) string {
	return fmt.Sprintf("Previous question: %s\n\nIts result:\n%s", question, resultPreview(rs, 5))
}

// resultPreview renders up to limit rows as pipe-separated lines.
func resultPreview(rs *ResultSet, limit int) string {
	var sb strings.Builder
	sb.WriteString(strings.Join(rs.ColumnNames(), " | "))
	sb.WriteString("\n")

	n := len(rs.Rows)
	if n > limit {
		n = limit
	}
	for _, row := range rs.Rows[:n] {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = FormatValue(v, rs.Columns[i].Type)
		}
		sb.WriteString(strings.Join(cells, " | "))
		sb.WriteString("\n")
	}
	if len(rs.Rows) > limit {
		fmt.Fprintf(&sb, "... %d more rows\n", len(rs.Rows)-limit)
	}
	return sb.String()
}

func truncateText(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
