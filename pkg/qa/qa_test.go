package qa_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/soundprediction/go-servicegraph/pkg/driver"
	"github.com/soundprediction/go-servicegraph/pkg/ingest"
	"github.com/soundprediction/go-servicegraph/pkg/linker"
	"github.com/soundprediction/go-servicegraph/pkg/llm"
	"github.com/soundprediction/go-servicegraph/pkg/prompts"
	"github.com/soundprediction/go-servicegraph/pkg/qa"
	"github.com/soundprediction/go-servicegraph/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedLLM replies with the queued contents in order.
type scriptedLLM struct {
	replies []string
	err     error
	seen    [][]llm.Message
	ctxs    []context.Context
}

func (s *scriptedLLM) Chat(ctx context.Context, messages []llm.Message) (*llm.Response, error) {
	s.seen = append(s.seen, messages)
	s.ctxs = append(s.ctxs, ctx)
	if s.err != nil {
		return nil, s.err
	}
	if len(s.replies) == 0 {
		return nil, errors.New("unexpected chat call")
	}
	reply := s.replies[0]
	s.replies = s.replies[1:]
	return &llm.Response{Content: reply}, nil
}

// ChatWithStructuredOutput returns the next reply when it holds a JSON
// object and a parse error carrying the reply otherwise.
func (s *scriptedLLM) ChatWithStructuredOutput(ctx context.Context, messages []llm.Message, schema any) (json.RawMessage, error) {
	resp, err := s.Chat(ctx, messages)
	if err != nil {
		return nil, err
	}
	candidate := llm.ExtractJSON(resp.Content)
	if strings.HasPrefix(candidate, "{") && json.Valid([]byte(candidate)) {
		return json.RawMessage(candidate), nil
	}
	return nil, types.NewError(types.KindQuery, "llm",
		&llm.ParseError{Content: resp.Content, Err: errors.New("no JSON object in reply")})
}

func (s *scriptedLLM) Close() error { return nil }

type staticEmbedder struct {
	vectors map[string][]float32
	err     error
}

func (e staticEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := e.EmbedSingle(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (e staticEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	if v, ok := e.vectors[text]; ok {
		return v, nil
	}
	return []float32{0, 0, 1}, nil
}

func (e staticEmbedder) Dimensions() int { return 3 }
func (e staticEmbedder) Close() error    { return nil }

var vectors = map[string][]float32{
	"leak":              {1, 0, 0},
	"jam":               {0, 1, 0},
	"oil dripping":      {0.9, 0.1, 0},
	"conveyor stuck":    {0.1, 0.9, 0},
	"seal worn":         {0, 0, 1},
	"replace seal":      {0, 0, 1},
	"debris in rollers": {0, 0, 1},
	"clean rollers":     {0, 0, 1},
}

func seededGraph(t *testing.T) *driver.MemoryDriver {
	t.Helper()
	ctx := context.Background()
	mem := driver.NewMemoryDriver()

	recs := []types.ServiceRecord{
		{SRRefNo: "SR-1", MachineModel: "HX-200", SerialNumber: "1", ComponentSerialNumber: "C1", SubAssembly: "pump",
			ProblemReported: "leak", Cause: "seal worn", CorrectiveAction: "replace seal"},
		{SRRefNo: "SR-2", MachineModel: "CV-9", SerialNumber: "2", ComponentSerialNumber: "C2", SubAssembly: "belt",
			ProblemReported: "jam", Cause: "debris in rollers", CorrectiveAction: "clean rollers"},
	}
	_, err := ingest.NewWriter(mem, nil).Write(ctx, recs)
	require.NoError(t, err)
	_, err = linker.New(mem, staticEmbedder{vectors: vectors}, linker.Config{}, nil).LinkAll(ctx, recs, nil)
	require.NoError(t, err)
	return mem
}

func TestParseStrategy(t *testing.T) {
	tests := []struct {
		in   string
		want qa.Strategy
	}{
		{"cypher", qa.StrategyCypher},
		{"Structured Reasoning", qa.StrategyCypher},
		{"vector", qa.StrategyVector},
		{"", qa.StrategyVector},
		{"B", qa.StrategyVector},
	}
	for _, tt := range tests {
		got, err := qa.ParseStrategy(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}

	_, err := qa.ParseStrategy("sql")
	assert.True(t, types.IsKind(err, types.KindConfig))
}

func TestAnswerMessage(t *testing.T) {
	assert.Equal(t, "ok", (&qa.Answer{Text: "ok"}).Message())
	assert.Equal(t, qa.NoMatchMessage,
		(&qa.Answer{Err: types.NewError(types.KindNoMatch, "retrieve", types.ErrNoMatch)}).Message())
	msg := (&qa.Answer{Err: types.NewError(types.KindServiceUnavailable, "diagnose", errors.New("503"))}).Message()
	assert.True(t, strings.HasPrefix(msg, "Error occurred while processing the input: "))
	assert.Contains(t, msg, "503")
}

func TestVectorQA(t *testing.T) {
	mem := seededGraph(t)
	chat := &scriptedLLM{replies: []string{"Inspect the pump seal."}}
	v := qa.NewVectorQA(mem, staticEmbedder{vectors: vectors}, chat, 0, nil)

	answer := v.Ask(context.Background(), "oil dripping")
	require.NoError(t, answer.Err)
	assert.Equal(t, "Inspect the pump seal.", answer.Message())
	require.Len(t, answer.Matches, 2)
	assert.Equal(t, "leak", answer.Matches[0].Text)
	assert.Equal(t, []string{"seal worn"}, answer.Matches[0].Causes)
	assert.Equal(t, []string{"replace seal"}, answer.Matches[0].Actions)
	assert.Equal(t, []string{"HX-200"}, answer.Matches[0].Machines)

	require.Len(t, chat.seen, 1)
	user := chat.seen[0][1].Content
	assert.Contains(t, user, "User Input: oil dripping")
	assert.Contains(t, user, "Closest Problem:\nProblem: leak (score: ")
	assert.Equal(t, prompts.DiagnoseSystemPrompt, chat.seen[0][0].Content)
}

func TestVectorQANoMatch(t *testing.T) {
	ctx := context.Background()
	mem := driver.NewMemoryDriver()
	require.NoError(t, mem.RecreateVectorIndex(ctx, types.LabelProblem, 3))
	chat := &scriptedLLM{}

	answer := qa.NewVectorQA(mem, staticEmbedder{vectors: vectors}, chat, 3, nil).Ask(ctx, "leak")
	assert.True(t, types.IsKind(answer.Err, types.KindNoMatch))
	assert.Equal(t, qa.NoMatchMessage, answer.Message())
	assert.Empty(t, chat.seen, "chat is never called without a match")
}

func TestVectorQAFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("missing index", func(t *testing.T) {
		answer := qa.NewVectorQA(driver.NewMemoryDriver(), staticEmbedder{}, &scriptedLLM{}, 3, nil).Ask(ctx, "leak")
		assert.True(t, types.IsKind(answer.Err, types.KindQuery))
	})

	t.Run("embedder down", func(t *testing.T) {
		answer := qa.NewVectorQA(seededGraph(t), staticEmbedder{err: errors.New("dial tcp")}, &scriptedLLM{}, 3, nil).Ask(ctx, "leak")
		assert.True(t, types.IsKind(answer.Err, types.KindServiceUnavailable))
	})

	t.Run("chat down", func(t *testing.T) {
		chat := &scriptedLLM{err: errors.New("502 bad gateway")}
		answer := qa.NewVectorQA(seededGraph(t), staticEmbedder{vectors: vectors}, chat, 3, nil).Ask(ctx, "leak")
		assert.True(t, types.IsKind(answer.Err, types.KindServiceUnavailable))
		assert.NotEmpty(t, answer.Matches)
	})

	t.Run("empty question", func(t *testing.T) {
		answer := qa.NewVectorQA(seededGraph(t), staticEmbedder{}, &scriptedLLM{}, 3, nil).Ask(ctx, "  ")
		assert.True(t, types.IsKind(answer.Err, types.KindMalformedInput))
	})
}

// rowsDriver answers every read query with fixed rows.
type rowsDriver struct {
	*driver.MemoryDriver
	rows   []map[string]any
	err    error
	cypher string
	limit  int
}

func (r *rowsDriver) RunReadQuery(ctx context.Context, cypher string, params map[string]any, limit int) ([]map[string]any, error) {
	r.cypher, r.limit = cypher, limit
	return r.rows, r.err
}

func TestCypherQA(t *testing.T) {
	d := &rowsDriver{MemoryDriver: driver.NewMemoryDriver(), rows: []map[string]any{{"machine": "HX-200"}}}
	chat := &scriptedLLM{replies: []string{
		"```json\n{\"cypher\": \"MATCH (m:Machine)-[:HAS_COMPONENT]->(:Component)-[:HAS_PROBLEM]->(p:Problem {text: 'leak'}) RETURN m.model AS machine\"}\n```",
		"The HX-200 had a leak.",
	}}

	answer := qa.NewCypherQA(d, chat, 0, nil).Ask(context.Background(), "Which machine leaked?")
	require.NoError(t, answer.Err)
	assert.Equal(t, "The HX-200 had a leak.", answer.Message())
	assert.Contains(t, answer.Cypher, "RETURN m.model AS machine")
	assert.Equal(t, d.cypher, answer.Cypher)
	assert.Equal(t, qa.DefaultCypherTopK, d.limit)
	assert.Equal(t, `[{"machine":"HX-200"}]`, answer.Context)

	require.Len(t, chat.seen, 2)
	assert.Contains(t, chat.seen[0][1].Content, "(:Problem)-[:CAUSED_BY]->(:Cause)")
	assert.Contains(t, chat.seen[1][1].Content, "HX-200")
}

func TestCypherQAWritesRefusedByReadSession(t *testing.T) {
	d := &rowsDriver{
		MemoryDriver: driver.NewMemoryDriver(),
		err:          errors.New("Neo.ClientError.Statement.AccessMode: Writing in read access mode not allowed"),
	}
	chat := &scriptedLLM{replies: []string{`{"cypher": "MATCH (n) DETACH DELETE n"}`}}

	answer := qa.NewCypherQA(d, chat, 5, nil).Ask(context.Background(), "delete everything")
	assert.True(t, types.IsKind(answer.Err, types.KindQuery))
	assert.Equal(t, "MATCH (n) DETACH DELETE n", d.cypher)
	assert.Len(t, chat.seen, 1, "no answer prompt after a failed query")
}

func TestCypherQAKeywordNamesAreNotWrites(t *testing.T) {
	statement := "MATCH (c:Cause) RETURN c.set AS remove, c.text AS create"
	d := &rowsDriver{MemoryDriver: driver.NewMemoryDriver(), rows: []map[string]any{{"remove": "x"}}}
	chat := &scriptedLLM{replies: []string{`{"cypher": "` + statement + `"}`, "One cause."}}

	answer := qa.NewCypherQA(d, chat, 5, nil).Ask(context.Background(), "list causes")
	require.NoError(t, answer.Err)
	assert.Equal(t, statement, d.cypher)
	assert.Equal(t, "One cause.", answer.Text)
}

func TestCypherQAFallsBackToText(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		want  string
	}{
		{name: "fenced", reply: "```cypher\nMATCH (p:Problem) RETURN count(p)\n```", want: "MATCH (p:Problem) RETURN count(p)"},
		{name: "bare", reply: "MATCH (m:Machine) RETURN m.model", want: "MATCH (m:Machine) RETURN m.model"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &rowsDriver{MemoryDriver: driver.NewMemoryDriver(), rows: []map[string]any{{"n": 1}}}
			chat := &scriptedLLM{replies: []string{tt.reply, "Done."}}

			answer := qa.NewCypherQA(d, chat, 5, nil).Ask(context.Background(), "count")
			require.NoError(t, answer.Err)
			assert.Equal(t, tt.want, d.cypher)
		})
	}
}

func TestCypherQAEmptyStatement(t *testing.T) {
	d := &rowsDriver{MemoryDriver: driver.NewMemoryDriver()}
	chat := &scriptedLLM{replies: []string{`{"cypher": "  "}`}}

	answer := qa.NewCypherQA(d, chat, 5, nil).Ask(context.Background(), "anything")
	assert.True(t, types.IsKind(answer.Err, types.KindQuery))
	assert.Empty(t, d.cypher)
}

func TestCypherQAQueryError(t *testing.T) {
	d := &rowsDriver{MemoryDriver: driver.NewMemoryDriver(), err: errors.New("Neo.ClientError.Statement.SyntaxError")}
	chat := &scriptedLLM{replies: []string{"MATCH (p:Problem) RETURN p.text"}}

	answer := qa.NewCypherQA(d, chat, 5, nil).Ask(context.Background(), "list problems")
	assert.True(t, types.IsKind(answer.Err, types.KindQuery))
	assert.Equal(t, "MATCH (p:Problem) RETURN p.text", answer.Cypher)
	assert.Len(t, chat.seen, 1, "no correction round")
}

func TestExtractCypher(t *testing.T) {
	tests := []struct {
		name, in, want string
	}{
		{"json", `{"cypher": "MATCH (n) RETURN n"}`, "MATCH (n) RETURN n"},
		{"fenced", "```cypher\nMATCH (p:Problem {text: 'leak'}) RETURN p\n```", "MATCH (p:Problem {text: 'leak'}) RETURN p"},
		{"bare", "  MATCH (p:Problem) RETURN count(p)  ", "MATCH (p:Problem) RETURN count(p)"},
		{"literal with keyword", "MATCH (c:Component {name: 'set screw'}) RETURN c", "MATCH (c:Component {name: 'set screw'}) RETURN c"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, qa.ExtractCypher(tt.in))
		})
	}
}

func TestService(t *testing.T) {
	chat := &scriptedLLM{replies: []string{"diagnosis"}}
	svc := qa.NewService(nil, qa.NewVectorQA(seededGraph(t), staticEmbedder{vectors: vectors}, chat, 3, nil))

	assert.False(t, svc.Enabled(qa.StrategyCypher))
	answer := svc.Ask(context.Background(), qa.StrategyCypher, "q")
	assert.True(t, types.IsKind(answer.Err, types.KindConfig))

	answer = svc.Ask(context.Background(), qa.StrategyVector, "leak")
	require.NoError(t, answer.Err)
	require.Len(t, chat.ctxs, 1)
	assert.Equal(t, "vector", types.ContextString(chat.ctxs[0], types.ContextKeyStrategy))
}
