package prompts

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/soundprediction/go-servicegraph/pkg/llm"
)

// PromptFunction is a function that generates prompt messages from context.
type PromptFunction func(context map[string]interface{}) ([]llm.Message, error)

// PromptVersion represents a versioned prompt function.
type PromptVersion interface {
	Call(context map[string]interface{}) ([]llm.Message, error)
}

// promptVersionImpl implements PromptVersion.
type promptVersionImpl struct {
	fn PromptFunction
}

// Call executes the prompt function with the given context.
func (p *promptVersionImpl) Call(context map[string]interface{}) ([]llm.Message, error) {
	if context == nil {
		context = map[string]interface{}{}
	}
	return p.fn(context)
}

// NewPromptVersion creates a new PromptVersion from a function.
func NewPromptVersion(fn PromptFunction) PromptVersion {
	return &promptVersionImpl{fn: fn}
}

// ToPromptJSON serializes data to JSON for use in prompts. HTML characters
// such as < and > are kept as-is so Cypher comparisons stay readable.
func ToPromptJSON(data interface{}, indent int) (string, error) {
	var sb strings.Builder
	enc := json.NewEncoder(&sb)
	enc.SetEscapeHTML(false)
	if indent > 0 {
		enc.SetIndent("", strings.Repeat(" ", indent))
	}
	if err := enc.Encode(data); err != nil {
		return "", err
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

func requireString(context map[string]interface{}, key string) (string, error) {
	v, ok := context[key]
	if !ok {
		return "", fmt.Errorf("missing prompt context %q", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("prompt context %q must be a string, got %T", key, v)
	}
	return s, nil
}
