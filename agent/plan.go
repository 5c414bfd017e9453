// plan.go defines the structured query plan and its SQL generation.
//
// The completion service returns a JSON plan (not raw SQL). This file:
//   - Defines the Plan struct matching that output format
//   - Parses service replies into Plan values
//   - Validates plans against the dataset schema
//   - Converts plans into executable SELECT statements
//
// The NL → JSON → SQL separation keeps execution safe and auditable:
// only what the plan grammar can express ever reaches the dataset.
package agent

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/DachengChen/paiViz/dataset"
)

// Plan is a structured, read-only query description.
type Plan struct {
	// Tables lists the tables involved; the first is the FROM table.
	Tables []string `json:"tables,omitempty" jsonschema_description:"Tables the query reads; the first entry is the FROM table"`

	// Joins lists join conditions, one per additional table.
	Joins []string `json:"joins,omitempty" jsonschema_description:"Join conditions, e.g. orders.order_id = order_items.order_id"`

	// Filters lists WHERE conditions, combined with AND.
	Filters []string `json:"filters,omitempty" jsonschema_description:"WHERE conditions, combined with AND"`

	// Select lists the output expressions, aggregates aliased with AS.
	Select []string `json:"select,omitempty" jsonschema_description:"Output expressions; alias aggregates, e.g. sum(price) AS revenue"`

	// GroupBy lists grouping expressions when aggregating.
	GroupBy []string `json:"group_by,omitempty" jsonschema_description:"Grouping expressions when aggregating"`

	// Sort specifies the ordering.
	Sort *PlanSort `json:"sort,omitempty"`

	// Limit caps the number of rows; zero means no explicit limit.
	Limit int `json:"limit,omitempty" jsonschema_description:"Maximum number of rows, omit for no explicit limit"`

	// Shape hints at the expected result shape.
	Shape string `json:"shape,omitempty" jsonschema:"enum=scalar,enum=series,enum=table" jsonschema_description:"Expected result shape"`

	// Clarification, when set, means no query should run; the service
	// needs more information from the user.
	Clarification string `json:"clarification,omitempty" jsonschema_description:"Set instead of a query when the question is ambiguous or unanswerable"`

	// Description is a one-line summary of what the query does.
	Description string `json:"description,omitempty" jsonschema_description:"One-line summary of what the query computes"`
}

// PlanSort defines the sort order.
type PlanSort struct {
	Column string `json:"column"`
	Order  string `json:"order,omitempty" jsonschema:"enum=asc,enum=desc"`
}

// errUnconstrainedJoin marks plans that would produce a cartesian
// product; the executor refuses these.
var errUnconstrainedJoin = errors.New("join without a condition")

// ParsePlan extracts a Plan from the service's reply text. The reply may
// contain markdown fencing or surrounding narrative, so the JSON object
// is searched for within it.
func ParsePlan(response string) (*Plan, error) {
	jsonStr := extractJSON(response)
	if jsonStr == "" {
		return nil, fmt.Errorf("no JSON object in reply")
	}

	var plan Plan
	if err := json.Unmarshal([]byte(jsonStr), &plan); err != nil {
		return nil, fmt.Errorf("parse plan JSON: %w", err)
	}

	plan.normalize()
	if len(plan.Tables) == 0 && plan.Clarification == "" {
		return nil, fmt.Errorf("plan names no tables and asks no clarification")
	}
	return &plan, nil
}

func (p *Plan) normalize() {
	p.Tables = cleanList(p.Tables)
	p.Joins = cleanList(p.Joins)
	p.Filters = cleanList(p.Filters)
	p.Select = cleanList(p.Select)
	p.GroupBy = cleanList(p.GroupBy)
	p.Shape = strings.ToLower(strings.TrimSpace(p.Shape))
	p.Clarification = strings.TrimSpace(p.Clarification)
	p.Description = strings.TrimSpace(p.Description)
	if p.Limit < 0 {
		p.Limit = 0
	}
	if p.Sort != nil && strings.TrimSpace(p.Sort.Column) == "" {
		p.Sort = nil
	}
}

func cleanList(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// extractJSON finds the first {...} JSON object in the text, handling
// markdown code fences and surrounding narrative.
func extractJSON(text string) string {
	if idx := strings.Index(text, "```json"); idx >= 0 {
		start := idx + len("```json")
		if end := strings.Index(text[start:], "```"); end >= 0 {
			return strings.TrimSpace(text[start : start+end])
		}
	}
	if idx := strings.Index(text, "```"); idx >= 0 {
		start := idx + len("```")
		if end := strings.Index(text[start:], "```"); end >= 0 {
			candidate := strings.TrimSpace(text[start : start+end])
			if strings.HasPrefix(candidate, "{") {
				return candidate
			}
		}
	}

	depth := 0
	start := -1
	for i, ch := range text {
		if ch == '{' {
			if depth == 0 {
				start = i
			}
			depth++
		} else if ch == '}' {
			depth--
			if depth == 0 && start >= 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}

// Validate checks every table and column the plan references against
// the schema. Alias definitions in Select may be referenced elsewhere.
func (p *Plan) Validate(schema dataset.Schema) error {
	if len(p.Tables) == 0 {
		return fmt.Errorf("plan names no tables")
	}

	var missing []string
	var tables []dataset.Table
	for _, name := range p.Tables {
		t, ok := schema.Table(name)
		if !ok {
			missing = append(missing, name)
			continue
		}
		tables = append(tables, t)
	}
	if len(missing) > 0 {
		return fmt.Errorf("unknown table(s): %s", strings.Join(missing, ", "))
	}

	knownColumn := func(name string) bool {
		for _, t := range tables {
			if _, ok := t.Column(name); ok {
				return true
			}
		}
		return false
	}
	aliases := p.aliases()

	var unknown []string
	check := func(expr string) {
		for _, ident := range identifiersIn(expr) {
			if table, column, qualified := strings.Cut(ident, "."); qualified {
				t, ok := schema.Table(table)
				if !ok || !p.usesTable(table) {
					unknown = append(unknown, ident)
					continue
				}
				if _, ok := t.Column(column); !ok {
					unknown = append(unknown, ident)
				}
				continue
			}
			if aliases[strings.ToLower(ident)] {
				continue
			}
			if !knownColumn(ident) {
				unknown = append(unknown, ident)
			}
		}
	}

	for _, e := range p.Select {
		check(e)
	}
	for _, e := range p.Filters {
		check(e)
	}
	for _, e := range p.Joins {
		check(e)
	}
	for _, e := range p.GroupBy {
		check(e)
	}
	if p.Sort != nil {
		check(p.Sort.Column)
	}

	if len(unknown) > 0 {
		return fmt.Errorf("unknown column(s): %s", strings.Join(dedupe(unknown), ", "))
	}
	return nil
}

func (p *Plan) usesTable(name string) bool {
	for _, t := range p.Tables {
		if strings.EqualFold(t, name) {
			return true
		}
	}
	return false
}

// aliases collects the AS aliases defined in Select.
func (p *Plan) aliases() map[string]bool {
	out := make(map[string]bool)
	for _, expr := range p.Select {
		if alias, ok := aliasOf(expr); ok {
			out[strings.ToLower(alias)] = true
		}
	}
	return out
}

func aliasOf(expr string) (string, bool) {
	idx := strings.LastIndex(strings.ToLower(expr), " as ")
	if idx < 0 {
		return "", false
	}
	alias := strings.TrimSpace(expr[idx+4:])
	if !isIdentToken(alias) {
		return "", false
	}
	return alias, true
}

// ToSQL converts the plan into one executable SELECT statement.
func (p *Plan) ToSQL() (string, error) {
	if len(p.Tables) == 0 {
		return "", fmt.Errorf("plan names no tables")
	}

	cols := "*"
	if len(p.Select) > 0 {
		rewritten := make([]string, len(p.Select))
		for i, expr := range p.Select {
			rewritten[i] = guardDivision(expr)
		}
		cols = strings.Join(rewritten, ", ")
	}

	from, err := p.fromClause()
	if err != nil {
		return "", err
	}

	sql := fmt.Sprintf("SELECT %s\nFROM %s", cols, from)

	if len(p.Filters) > 0 {
		sql += "\nWHERE " + strings.Join(p.Filters, "\n  AND ")
	}
	if len(p.GroupBy) > 0 {
		sql += "\nGROUP BY " + strings.Join(p.GroupBy, ", ")
	}
	if p.Sort != nil {
		order := strings.ToUpper(p.Sort.Order)
		if order != "DESC" {
			order = "ASC"
		}
		sql += fmt.Sprintf("\nORDER BY %s %s", p.Sort.Column, order)
	}
	if p.Limit > 0 {
		sql += fmt.Sprintf("\nLIMIT %d", p.Limit)
	}

	return sql, nil
}

// fromClause builds FROM plus one JOIN per additional table. A table
// without a join condition is refused rather than cross-joined.
func (p *Plan) fromClause() (string, error) {
	from := p.Tables[0]
	for i := 1; i < len(p.Tables); i++ {
		cond := ""
		for _, j := range p.Joins {
			if strings.Contains(strings.ToLower(j), strings.ToLower(p.Tables[i])+".") {
				cond = j
				break
			}
		}
		if cond == "" {
			return "", fmt.Errorf("%w: table %s", errUnconstrainedJoin, p.Tables[i])
		}
		from += fmt.Sprintf("\nJOIN %s ON %s", p.Tables[i], cond)
	}
	return from, nil
}

// unsafeExpression returns the first plan expression that steps outside
// the read-only grammar, either a semicolon or a statement keyword, or
// "" when the plan is clean. Token match, so column names like
// created_at never false-positive.
func (p *Plan) unsafeExpression() string {
	exprs := make([]string, 0, len(p.Tables)+len(p.Joins)+len(p.Filters)+len(p.Select)+len(p.GroupBy)+1)
	exprs = append(exprs, p.Tables...)
	exprs = append(exprs, p.Joins...)
	exprs = append(exprs, p.Filters...)
	exprs = append(exprs, p.Select...)
	exprs = append(exprs, p.GroupBy...)
	if p.Sort != nil {
		exprs = append(exprs, p.Sort.Column)
	}

	for _, expr := range exprs {
		if strings.ContainsRune(expr, ';') {
			return expr
		}
		for _, word := range wordsIn(expr) {
			if _, bad := writeKeywords[word]; bad {
				return expr
			}
		}
	}
	return ""
}

// wordsIn splits an expression into lowercased identifier-shaped tokens,
// skipping string literals.
func wordsIn(expr string) []string {
	var words []string
	runes := []rune(expr)
	i := 0
	for i < len(runes) {
		ch := runes[i]
		if ch == '\'' {
			i++
			for i < len(runes) && runes[i] != '\'' {
				i++
			}
			i++
			continue
		}
		if !isIdentStart(ch) {
			i++
			continue
		}
		start := i
		for i < len(runes) && isIdentPart(runes[i]) {
			i++
		}
		words = append(words, strings.ToLower(string(runes[start:i])))
	}
	return words
}

// guardDivision wraps every division's denominator in NULLIF so a zero
// divisor yields SQL NULL instead of an error.
func guardDivision(expr string) string {
	runes := []rune(expr)
	var out strings.Builder
	i := 0
	for i < len(runes) {
		ch := runes[i]

		if ch == '\'' {
			out.WriteRune(ch)
			i++
			for i < len(runes) && runes[i] != '\'' {
				out.WriteRune(runes[i])
				i++
			}
			if i < len(runes) {
				out.WriteRune(runes[i])
				i++
			}
			continue
		}

		if ch == '/' {
			out.WriteRune(ch)
			i++
			for i < len(runes) && runes[i] == ' ' {
				out.WriteRune(runes[i])
				i++
			}
			operand, next := divisionOperand(runes, i)
			if operand == "" {
				continue
			}
			if strings.HasPrefix(strings.ToUpper(operand), "NULLIF(") {
				out.WriteString(operand)
			} else {
				out.WriteString("NULLIF(" + operand + ", 0)")
			}
			i = next
			continue
		}

		out.WriteRune(ch)
		i++
	}
	return out.String()
}

// divisionOperand reads the operand after '/': a parenthesized group,
// or an identifier/number optionally followed by a call argument list.
func divisionOperand(runes []rune, i int) (string, int) {
	start := i
	if i < len(runes) && runes[i] == '(' {
		end := skipGroup(runes, i)
		return string(runes[start:end]), end
	}
	for i < len(runes) && (isIdentPart(runes[i]) || runes[i] == '.') {
		i++
	}
	if i < len(runes) && runes[i] == '(' {
		i = skipGroup(runes, i)
	}
	return string(runes[start:i]), i
}

// skipGroup advances past a balanced parenthesized group starting at i.
func skipGroup(runes []rune, i int) int {
	depth := 0
	for i < len(runes) {
		switch runes[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i + 1
			}
		}
		i++
	}
	return i
}

// Summary returns a short human-readable description of the plan.
func (p *Plan) Summary() string {
	if p.Clarification != "" {
		return p.Clarification
	}
	if p.Description != "" {
		return p.Description
	}

	summary := "SELECT on " + strings.Join(p.Tables, ", ")
	if len(p.Filters) > 0 {
		summary += " where " + strings.Join(p.Filters, " and ")
	}
	if len(p.GroupBy) > 0 {
		summary += " grouped by " + strings.Join(p.GroupBy, ", ")
	}
	if p.Sort != nil {
		summary += fmt.Sprintf(" order by %s %s", p.Sort.Column, p.Sort.Order)
	}
	if p.Limit > 0 {
		summary += fmt.Sprintf(" (limit %d)", p.Limit)
	}
	return summary
}

// identifiersIn extracts the column-like identifiers from one plan
// expression, skipping string literals, numbers, function names and
// SQL keywords.
func identifiersIn(expr string) []string {
	var idents []string
	runes := []rune(expr)
	i := 0
	for i < len(runes) {
		ch := runes[i]

		if ch == '\'' {
			i++
			for i < len(runes) && runes[i] != '\'' {
				i++
			}
			i++
			continue
		}

		if !isIdentStart(ch) {
			i++
			continue
		}

		start := i
		for i < len(runes) && isIdentPart(runes[i]) {
			i++
		}
		if i < len(runes) && runes[i] == '.' && i+1 < len(runes) && isIdentStart(runes[i+1]) {
			i++
			for i < len(runes) && isIdentPart(runes[i]) {
				i++
			}
		}
		token := string(runes[start:i])

		j := i
		for j < len(runes) && runes[j] == ' ' {
			j++
		}
		if j < len(runes) && runes[j] == '(' {
			continue // function name
		}
		if _, keyword := sqlKeywords[strings.ToLower(token)]; keyword {
			continue
		}
		idents = append(idents, token)
	}
	return idents
}

func isIdentStart(ch rune) bool {
	return ch == '_' || (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}

func isIdentPart(ch rune) bool {
	return isIdentStart(ch) || (ch >= '0' && ch <= '9')
}

func isIdentToken(s string) bool {
	if s == "" {
		return false
	}
	for i, ch := range s {
		if i == 0 && !isIdentStart(ch) {
			return false
		}
		if !isIdentPart(ch) {
			return false
		}
	}
	return true
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, s := range in {
		key := strings.ToLower(s)
		if !seen[key] {
			seen[key] = true
			out = append(out, s)
		}
	}
	return out
}

// writeKeywords are statement keywords that have no place in a
// read-only plan expression.
var writeKeywords = map[string]struct{}{
	"insert": {}, "update": {}, "delete": {}, "drop": {}, "alter": {},
	"create": {}, "truncate": {}, "replace": {}, "merge": {},
	"attach": {}, "detach": {}, "pragma": {}, "vacuum": {},
	"grant": {}, "revoke": {}, "copy": {}, "call": {}, "exec": {},
	"execute": {},
}

// sqlKeywords are tokens the identifier scanner never treats as column
// references.
var sqlKeywords = map[string]struct{}{
	"select": {}, "from": {}, "where": {}, "group": {}, "order": {}, "by": {},
	"having": {}, "limit": {}, "offset": {}, "join": {}, "inner": {}, "left": {},
	"right": {}, "full": {}, "outer": {}, "cross": {}, "on": {}, "using": {},
	"and": {}, "or": {}, "not": {}, "in": {}, "is": {}, "null": {}, "like": {},
	"ilike": {}, "glob": {}, "between": {}, "exists": {}, "all": {}, "any": {},
	"some": {}, "distinct": {}, "as": {}, "case": {}, "when": {}, "then": {},
	"else": {}, "end": {}, "asc": {}, "desc": {}, "true": {}, "false": {},
	"cast": {}, "interval": {}, "current_date": {}, "current_timestamp": {},
	"current_time": {}, "date": {}, "time": {}, "timestamp": {}, "datetime": {},
	"integer": {}, "int": {}, "bigint": {}, "smallint": {}, "real": {},
	"double": {}, "precision": {}, "float": {}, "numeric": {}, "decimal": {},
	"text": {}, "varchar": {}, "char": {}, "boolean": {}, "union": {},
	"intersect": {}, "except": {}, "with": {},
}
