package qa

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"regexp"
	"strings"

	"github.com/soundprediction/go-servicegraph/pkg/driver"
	"github.com/soundprediction/go-servicegraph/pkg/llm"
	"github.com/soundprediction/go-servicegraph/pkg/prompts"
	"github.com/soundprediction/go-servicegraph/pkg/types"
)

// DefaultCypherTopK caps the rows handed to the answer prompt.
const DefaultCypherTopK = 10

var fence = regexp.MustCompile("(?s)```(?:cypher)?\\s*(.*?)```")

// CypherQA answers questions by generating and running a Cypher query.
type CypherQA struct {
	driver  driver.GraphDriver
	llm     llm.Client
	prompts prompts.Library
	schema  string
	topK    int
	logger  *slog.Logger
}

// NewCypherQA creates a CypherQA. topK <= 0 uses DefaultCypherTopK.
func NewCypherQA(d driver.GraphDriver, client llm.Client, topK int, logger *slog.Logger) *CypherQA {
	if topK <= 0 {
		topK = DefaultCypherTopK
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CypherQA{
		driver:  d,
		llm:     client,
		prompts: prompts.DefaultLibrary,
		schema:  types.Schema.Describe(),
		topK:    topK,
		logger:  logger,
	}
}

// Ask generates a statement, runs it in a read-access session and
// summarizes the rows. Nothing is retried or corrected; a writing statement
// is refused by the graph itself.
func (c *CypherQA) Ask(ctx context.Context, question string) *Answer {
	answer := &Answer{Strategy: StrategyCypher, Question: question}
	q, err := validQuestion(question)
	if err != nil {
		answer.Err = err
		return answer
	}

	cypher, err := c.generate(ctx, q)
	if err != nil {
		return c.fail(ctx, answer, err)
	}
	answer.Cypher = cypher
	c.logger.InfoContext(ctx, "generated cypher", "cypher", cypher)

	rows, err := c.driver.RunReadQuery(ctx, cypher, nil, c.topK)
	if err != nil {
		return c.fail(ctx, answer, typed("run cypher", types.KindQuery, err))
	}
	answer.Rows = rows
	answer.Context, _ = prompts.ToPromptJSON(rows, 0)

	msgs, err := c.prompts.Cypher().Answer().Call(map[string]interface{}{
		"question": q,
		"rows":     rows,
	})
	if err != nil {
		return c.fail(ctx, answer, types.NewError(types.KindQuery, "answer prompt", err))
	}
	resp, err := c.llm.Chat(ctx, msgs)
	if err != nil {
		return c.fail(ctx, answer, typed("answer", types.KindServiceUnavailable, err))
	}
	answer.Text = strings.TrimSpace(resp.Content)
	return answer
}

func (c *CypherQA) generate(ctx context.Context, question string) (string, error) {
	msgs, err := c.prompts.Cypher().Generate().Call(map[string]interface{}{
		"schema":   c.schema,
		"question": question,
	})
	if err != nil {
		return "", types.NewError(types.KindQuery, "cypher prompt", err)
	}

	var cypher string
	var parseErr *llm.ParseError
	raw, err := c.llm.ChatWithStructuredOutput(ctx, msgs, prompts.CypherQuery{})
	switch {
	case err == nil:
		var out prompts.CypherQuery
		if err := json.Unmarshal(raw, &out); err != nil {
			return "", types.NewError(types.KindQuery, "generate cypher", err)
		}
		cypher = strings.TrimSpace(out.Cypher)
	case errors.As(err, &parseErr):
		c.logger.DebugContext(ctx, "cypher reply is not JSON, reading it as text", "error", parseErr.Err)
		cypher = ExtractCypher(parseErr.Content)
	default:
		return "", typed("generate cypher", types.KindServiceUnavailable, err)
	}

	if cypher == "" {
		return "", types.NewError(types.KindQuery, "generate cypher", types.ErrEmptyResponse)
	}
	return cypher, nil
}

func (c *CypherQA) fail(ctx context.Context, answer *Answer, err error) *Answer {
	answer.Err = err
	c.logger.ErrorContext(ctx, "cypher question failed", "question", answer.Question, "cypher", answer.Cypher, "error", err)
	return answer
}

// ExtractCypher pulls the statement out of a model reply: a JSON object with
// a "cypher" field, a fenced block, or the bare text.
func ExtractCypher(reply string) string {
	var out prompts.CypherQuery
	if err := llm.ParseJSONResponse(reply, &out); err == nil && strings.TrimSpace(out.Cypher) != "" {
		return strings.TrimSpace(out.Cypher)
	}
	if m := fence.FindStringSubmatch(reply); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(reply)
}
