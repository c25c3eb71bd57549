package generation

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/fyrsmithlabs/insightverse/internal/ingest"
	"github.com/google/jsonschema-go/jsonschema"
)

var (
	fenceRe         = regexp.MustCompile("```json|```")
	lineCommentRe   = regexp.MustCompile(`//.*`)
	trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)
	missingCommaRe  = regexp.MustCompile(`(?i)("statement"\s*:\s*"[^"]+")\s*\n\s*("answer"\s*:\s*(true|false))`)
)

// cleanJSON strips code fences, line comments and trailing commas.
func cleanJSON(raw string) string {
	raw = fenceRe.ReplaceAllString(raw, "")
	raw = lineCommentRe.ReplaceAllString(raw, "")
	raw = trailingCommaRe.ReplaceAllString(raw, "$1")
	return strings.TrimSpace(raw)
}

// repairMissingCommas inserts the comma models drop between a true/false
// statement and its answer.
func repairMissingCommas(raw string) string {
	return missingCommaRe.ReplaceAllString(raw, "$1,\n$2")
}

// ParseModelJSON decodes model output strictly, then once more after the
// repair pass.
func ParseModelJSON(raw string) (any, error) {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err == nil {
		return v, nil
	}
	repaired := repairMissingCommas(cleanJSON(raw))
	if err := json.Unmarshal([]byte(repaired), &v); err != nil {
		return nil, fmt.Errorf("unrecoverable JSON: %w", err)
	}
	return v, nil
}

// ensureList wraps a single object in a list and maps anything else that
// is not a list to an empty one.
func ensureList(v any) []any {
	switch t := v.(type) {
	case []any:
		return t
	case map[string]any:
		return []any{t}
	}
	return []any{}
}

func intPtr(n int) *int { return &n }

func stringProp() *jsonschema.Schema { return &jsonschema.Schema{Type: "string"} }

func listOf(item *jsonschema.Schema) *jsonschema.Schema {
	return &jsonschema.Schema{Type: "array", Items: item}
}

var quizSchemas = map[ingest.QuizType]*jsonschema.Schema{
	ingest.QuizShortAnswer: listOf(&jsonschema.Schema{
		Type:     "object",
		Required: []string{"question", "answer"},
		Properties: map[string]*jsonschema.Schema{
			"question": stringProp(),
			"answer":   stringProp(),
		},
	}),
	ingest.QuizMCQ: listOf(&jsonschema.Schema{
		Type:     "object",
		Required: []string{"question", "options", "answer"},
		Properties: map[string]*jsonschema.Schema{
			"question": stringProp(),
			"options":  {Type: "array", Items: stringProp(), MinItems: intPtr(2)},
			"answer":   stringProp(),
		},
	}),
	ingest.QuizTrueFalse: listOf(&jsonschema.Schema{
		Type:     "object",
		Required: []string{"statement", "answer"},
		Properties: map[string]*jsonschema.Schema{
			"statement": stringProp(),
			"answer":    {Type: "boolean"},
		},
	}),
}

// resolvedQuizSchemas is built once at init; the schemas are static.
var resolvedQuizSchemas = func() map[ingest.QuizType]*jsonschema.Resolved {
	out := make(map[ingest.QuizType]*jsonschema.Resolved, len(quizSchemas))
	for qt, s := range quizSchemas {
		r, err := s.Resolve(nil)
		if err != nil {
			panic(fmt.Sprintf("quiz schema %s: %v", qt, err))
		}
		out[qt] = r
	}
	return out
}()

// ParseQuiz turns raw model output into quiz items of quizType. Output
// that cannot be repaired or does not match the item shape is an error;
// the caller degrades it to an empty list.
func ParseQuiz(raw string, quizType ingest.QuizType) ([]any, error) {
	schema, ok := resolvedQuizSchemas[quizType]
	if !ok {
		return nil, fmt.Errorf("unknown quiz type %q", quizType)
	}
	v, err := ParseModelJSON(raw)
	if err != nil {
		return nil, err
	}
	items := ensureList(v)
	if err := schema.Validate(items); err != nil {
		return nil, fmt.Errorf("quiz %s failed validation: %w", quizType, err)
	}
	return items, nil
}
