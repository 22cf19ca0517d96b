package llm

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ppiankov/islamcheck/internal/model"
)

const boxedMarker = `\boxed{`

// lineBreakIndent matches a line break plus the indentation that follows it
var lineBreakIndent = regexp.MustCompile(`\r?\n[ \t]*`)

// ParseError reports upstream content that could not be turned into an Analysis
type ParseError struct {
	Raw    string // content as received from the upstream model
	Reason string
}

func (e *ParseError) Error() string {
	return "parse AI response: " + e.Reason
}

func (e *ParseError) Unwrap() error {
	return model.ErrResponseParse
}

// ParseAnalysis converts raw completion text into a validated Analysis.
// It never returns a partially filled result.
func ParseAnalysis(raw string) (*model.Analysis, error) {
	fail := func(format string, args ...any) (*model.Analysis, error) {
		return nil, &ParseError{Raw: raw, Reason: fmt.Sprintf(format, args...)}
	}

	text := normalizeResponse(raw)
	if text == "" {
		return fail("empty response")
	}

	v, err := parseLiteral(text)
	if err != nil {
		return fail("invalid literal: %v", err)
	}

	obj, ok := v.(map[string]any)
	if !ok {
		return fail("response is not an object")
	}

	var missing []string
	for _, key := range []string{"answer", "sources", "classification"} {
		if _, ok := obj[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return fail("missing required fields in response: %s", strings.Join(missing, ", "))
	}

	answer, ok := obj["answer"].(string)
	if !ok {
		return fail("answer must be a string")
	}

	items, ok := obj["sources"].([]any)
	if !ok {
		return fail("sources must be a list of strings")
	}
	sources := make([]string, 0, len(items))
	for i, item := range items {
		s, ok := item.(string)
		if !ok {
			return fail("sources[%d] must be a string", i)
		}
		sources = append(sources, s)
	}

	label, ok := obj["classification"].(string)
	if !ok {
		return fail("classification must be a string")
	}
	classification, ok := model.ParseClassification(strings.TrimSpace(label))
	if !ok {
		return fail("classification %q is not one of %s", label, joinClassifications(", "))
	}

	return &model.Analysis{
		Answer:         answer,
		Sources:        sources,
		Classification: classification,
	}, nil
}

// normalizeResponse strips known wrapping artifacts and collapses line
// breaks so the remainder parses as a single literal.
func normalizeResponse(raw string) string {
	text := strings.TrimSpace(raw)

	// ```json ... ``` fences
	if strings.HasPrefix(text, "```") {
		if nl := strings.IndexByte(text, '\n'); nl >= 0 {
			text = text[nl+1:]
		} else {
			text = strings.TrimPrefix(text, "```")
		}
		text = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(text), "```"))
	}

	if strings.HasPrefix(text, boxedMarker) {
		text = strings.TrimSpace(strings.TrimPrefix(text, boxedMarker))
		if !strings.HasPrefix(text, "{") {
			// \boxed{'answer': ...} wraps the object body directly
			text = "{" + text
		}
	}

	return strings.TrimSpace(lineBreakIndent.ReplaceAllString(text, " "))
}
