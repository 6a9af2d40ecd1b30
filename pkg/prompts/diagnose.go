package prompts

import (
	"fmt"
	"strings"

	"github.com/soundprediction/go-servicegraph/pkg/llm"
	"github.com/soundprediction/go-servicegraph/pkg/types"
)

// DiagnoseSystemPrompt frames the model as a service expert.
const DiagnoseSystemPrompt = "You are a technical expert in mechanical systems and industrial service operations."

// DiagnosePrompt defines the interface for diagnosis prompts.
type DiagnosePrompt interface {
	Explain() PromptVersion
}

// DiagnoseVersions holds all versions of the diagnosis prompts.
type DiagnoseVersions struct {
	ExplainPrompt PromptVersion
}

func (d *DiagnoseVersions) Explain() PromptVersion { return d.ExplainPrompt }

// explainPrompt asks for an explanation of a matched problem.
// Context keys: question, problem_context.
func explainPrompt(context map[string]interface{}) ([]llm.Message, error) {
	question, err := requireString(context, "question")
	if err != nil {
		return nil, err
	}
	problemContext, err := requireString(context, "problem_context")
	if err != nil {
		return nil, err
	}

	userPrompt := fmt.Sprintf("Given the following service case details from a manufacturing knowledge graph, "+
		"provide a professional explanation of the problem and suggest further checks or steps if needed.\n"+
		"User Input: %s\n"+
		"Problem Context: %s\n", question, problemContext)

	return []llm.Message{
		llm.NewSystemMessage(DiagnoseSystemPrompt),
		llm.NewUserMessage(userPrompt),
	}, nil
}

// FormatProblemContext renders vector matches for the Explain prompt. The
// first match is the closest problem; the rest follow as similar problems.
func FormatProblemContext(matches []types.ProblemMatch) string {
	var sb strings.Builder
	for i, m := range matches {
		if i == 0 {
			sb.WriteString("Closest Problem:\n")
		} else {
			sb.WriteString("\nSimilar Problem:\n")
		}
		fmt.Fprintf(&sb, "Problem: %s (score: %.3f)\n", orNotAvailable(m.Text), m.Score)
		fmt.Fprintf(&sb, "Causes: %s\n", joinOrNotAvailable(m.Causes))
		fmt.Fprintf(&sb, "Corrective Actions: %s\n", joinOrNotAvailable(m.Actions))
		fmt.Fprintf(&sb, "Machines: %s\n", joinOrNotAvailable(m.Machines))
	}
	return sb.String()
}

func orNotAvailable(s string) string {
	if s == "" {
		return "Not available"
	}
	return s
}

func joinOrNotAvailable(values []string) string {
	return orNotAvailable(strings.Join(values, ", "))
}

// NewDiagnoseVersions creates a new DiagnoseVersions instance.
func NewDiagnoseVersions() *DiagnoseVersions {
	return &DiagnoseVersions{
		ExplainPrompt: NewPromptVersion(explainPrompt),
	}
}
