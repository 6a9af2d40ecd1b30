package prompts

import (
	"fmt"

	"github.com/soundprediction/go-servicegraph/pkg/llm"
)

// CypherQuery is the structured reply to the Generate prompt.
type CypherQuery struct {
	Cypher string `json:"cypher"`
}

// CypherPrompt defines the interface for question-to-Cypher prompts.
type CypherPrompt interface {
	Generate() PromptVersion
	Answer() PromptVersion
}

// CypherVersions holds all versions of the Cypher prompts.
type CypherVersions struct {
	GeneratePrompt PromptVersion
	AnswerPrompt   PromptVersion
}

func (c *CypherVersions) Generate() PromptVersion { return c.GeneratePrompt }
func (c *CypherVersions) Answer() PromptVersion   { return c.AnswerPrompt }

// generatePrompt asks for a single read-only Cypher statement.
// Context keys: schema, question.
func generatePrompt(context map[string]interface{}) ([]llm.Message, error) {
	schema, err := requireString(context, "schema")
	if err != nil {
		return nil, err
	}
	question, err := requireString(context, "question")
	if err != nil {
		return nil, err
	}

	sysPrompt := `You translate questions about manufacturing service history into Cypher statements for a Neo4j graph database.`

	userPrompt := fmt.Sprintf(`
<SCHEMA>
%s
</SCHEMA>

Task: write one Cypher statement that answers the question below.

Guidelines:
1. Use only the node labels, relationship types and properties listed in the schema
2. Relationship directions must match the schema exactly
3. The statement must only read data. Never use CREATE, MERGE, SET, DELETE, REMOVE or CALL procedures that write
4. Match text properties case-insensitively with toLower() and CONTAINS when the question paraphrases a value
5. Never return the embedding property
6. Return only the properties needed to answer the question, with readable aliases

Respond with a JSON object of the form {"cypher": "<statement>"} and nothing else.

<QUESTION>
%s
</QUESTION>
`, schema, question)

	return []llm.Message{
		llm.NewSystemMessage(sysPrompt),
		llm.NewUserMessage(userPrompt),
	}, nil
}

// answerPrompt turns query rows into a plain-language answer.
// Context keys: question, rows.
func answerPrompt(context map[string]interface{}) ([]llm.Message, error) {
	question, err := requireString(context, "question")
	if err != nil {
		return nil, err
	}
	rowsJSON, err := ToPromptJSON(context["rows"], 2)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal rows: %w", err)
	}

	sysPrompt := `You are an assistant that turns database results into clear, human readable answers for service engineers.`

	userPrompt := fmt.Sprintf(`
<RESULTS>
%s
</RESULTS>

Answer the question using only the results above.

Guidelines:
1. Treat the results as authoritative and never correct them from your own knowledge
2. Answer as a direct reply to the question without mentioning the results or the database
3. If the results are empty or null, say that you don't know the answer

Question: %s
Helpful Answer:`, rowsJSON, question)

	return []llm.Message{
		llm.NewSystemMessage(sysPrompt),
		llm.NewUserMessage(userPrompt),
	}, nil
}

// NewCypherVersions creates a new CypherVersions instance.
func NewCypherVersions() *CypherVersions {
	return &CypherVersions{
		GeneratePrompt: NewPromptVersion(generatePrompt),
		AnswerPrompt:   NewPromptVersion(answerPrompt),
	}
}
