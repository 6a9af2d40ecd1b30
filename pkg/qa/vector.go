package qa

import (
	"context"
	"log/slog"

	"github.com/soundprediction/go-servicegraph/pkg/driver"
	"github.com/soundprediction/go-servicegraph/pkg/embedder"
	"github.com/soundprediction/go-servicegraph/pkg/llm"
	"github.com/soundprediction/go-servicegraph/pkg/prompts"
	"github.com/soundprediction/go-servicegraph/pkg/types"
)

// DefaultVectorTopK is the number of problems retrieved per question.
const DefaultVectorTopK = 3

// VectorQA answers questions by retrieving similar problems and asking the
// model for a diagnosis.
type VectorQA struct {
	driver   driver.GraphDriver
	embedder embedder.Client
	llm      llm.Client
	prompts  prompts.Library
	topK     int
	logger   *slog.Logger
}

// NewVectorQA creates a VectorQA. topK <= 0 uses DefaultVectorTopK.
func NewVectorQA(d driver.GraphDriver, e embedder.Client, client llm.Client, topK int, logger *slog.Logger) *VectorQA {
	if topK <= 0 {
		topK = DefaultVectorTopK
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &VectorQA{
		driver:   d,
		embedder: e,
		llm:      client,
		prompts:  prompts.DefaultLibrary,
		topK:     topK,
		logger:   logger,
	}
}

// Ask embeds the question, looks up the nearest problems and returns the
// model's reply verbatim. Without a match the chat endpoint is not called.
func (v *VectorQA) Ask(ctx context.Context, question string) *Answer {
	answer := &Answer{Strategy: StrategyVector, Question: question}
	q, err := validQuestion(question)
	if err != nil {
		answer.Err = err
		return answer
	}

	matches, err := v.Retrieve(ctx, q)
	if err != nil {
		return v.fail(ctx, answer, err)
	}
	if len(matches) == 0 {
		v.logger.WarnContext(ctx, "no matching problem found", "question", q)
		answer.Err = types.NewError(types.KindNoMatch, "retrieve", types.ErrNoMatch)
		return answer
	}
	answer.Matches = matches
	answer.Context = prompts.FormatProblemContext(matches)

	msgs, err := v.prompts.Diagnose().Explain().Call(map[string]interface{}{
		"question":        q,
		"problem_context": answer.Context,
	})
	if err != nil {
		return v.fail(ctx, answer, types.NewError(types.KindQuery, "diagnose prompt", err))
	}
	resp, err := v.llm.Chat(ctx, msgs)
	if err != nil {
		return v.fail(ctx, answer, typed("diagnose", types.KindServiceUnavailable, err))
	}
	answer.Text = resp.Content
	v.logger.InfoContext(ctx, "diagnosis received", "closest", matches[0].Text, "score", matches[0].Score)
	return answer
}

// Retrieve returns the problems nearest to question, best first.
func (v *VectorQA) Retrieve(ctx context.Context, question string) ([]types.ProblemMatch, error) {
	vec, err := v.embedder.EmbedSingle(ctx, question)
	if err != nil {
		return nil, typed("embed question", types.KindServiceUnavailable, err)
	}
	matches, err := v.driver.SimilarProblems(ctx, vec, v.topK)
	if err != nil {
		return nil, typed("similar problems", types.KindQuery, err)
	}
	return matches, nil
}

func (v *VectorQA) fail(ctx context.Context, answer *Answer, err error) *Answer {
	answer.Err = err
	v.logger.ErrorContext(ctx, "vector question failed", "question", answer.Question, "error", err)
	return answer
}
