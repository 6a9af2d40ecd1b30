// Package qa answers natural-language questions over the service graph,
// either by generating Cypher or by vector retrieval plus diagnosis.
package qa

import (
	"context"
	"fmt"
	"strings"

	"github.com/soundprediction/go-servicegraph/pkg/types"
)

// NoMatchMessage is returned when vector retrieval finds no problem.
const NoMatchMessage = "No matching problem found for the given input."

// Strategy selects how a question is answered.
type Strategy string

const (
	// StrategyCypher translates the question to Cypher and summarizes the rows.
	StrategyCypher Strategy = "cypher"
	// StrategyVector retrieves similar problems and asks for a diagnosis.
	StrategyVector Strategy = "vector"
)

// Strategies lists the supported strategies in display order.
var Strategies = []Strategy{StrategyCypher, StrategyVector}

// ParseStrategy accepts a strategy name or one of its aliases.
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cypher", "a", "structured", "structured reasoning":
		return StrategyCypher, nil
	case "vector", "b", "retrieval", "diagnosis", "vector search", "":
		return StrategyVector, nil
	}
	return "", types.NewError(types.KindConfig, "strategy", fmt.Errorf("unknown strategy %q", s))
}

// Answer is the outcome of one question. Err is nil on success; otherwise
// its kind tells a missing match apart from an unreachable service.
type Answer struct {
	Strategy Strategy             `json:"strategy"`
	Question string               `json:"question"`
	Text     string               `json:"answer,omitempty"`
	Cypher   string               `json:"cypher,omitempty"`
	Context  string               `json:"context,omitempty"`
	Rows     []map[string]any     `json:"rows,omitempty"`
	Matches  []types.ProblemMatch `json:"matches,omitempty"`
	Err      error                `json:"-"`
}

// Message returns the user-facing reply.
func (a *Answer) Message() string {
	switch {
	case a.Err == nil:
		return a.Text
	case types.IsKind(a.Err, types.KindNoMatch):
		return NoMatchMessage
	default:
		return "Error occurred while processing the input: " + a.Err.Error()
	}
}

// Asker answers a question with one strategy.
type Asker interface {
	Ask(ctx context.Context, question string) *Answer
}

// Service dispatches questions to the configured strategies.
type Service struct {
	askers map[Strategy]Asker
}

// NewService creates a Service. A nil asker leaves that strategy disabled.
func NewService(cypher, vector Asker) *Service {
	askers := make(map[Strategy]Asker, 2)
	if cypher != nil {
		askers[StrategyCypher] = cypher
	}
	if vector != nil {
		askers[StrategyVector] = vector
	}
	return &Service{askers: askers}
}

// Ask answers question with strategy. ctx is tagged with the strategy so
// downstream telemetry can attribute token usage.
func (s *Service) Ask(ctx context.Context, strategy Strategy, question string) *Answer {
	asker, ok := s.askers[strategy]
	if !ok {
		return &Answer{
			Strategy: strategy,
			Question: question,
			Err:      types.NewError(types.KindConfig, "ask", fmt.Errorf("strategy %q is not configured", strategy)),
		}
	}
	ctx = context.WithValue(ctx, types.ContextKeyStrategy, string(strategy))
	return asker.Ask(ctx, question)
}

// Enabled reports whether strategy can answer questions.
func (s *Service) Enabled(strategy Strategy) bool {
	_, ok := s.askers[strategy]
	return ok
}

func validQuestion(question string) (string, error) {
	q := strings.TrimSpace(question)
	if q == "" {
		return "", types.NewError(types.KindMalformedInput, "ask", fmt.Errorf("empty question"))
	}
	return q, nil
}

// typed keeps an existing kind and tags anything else with kind.
func typed(op string, kind types.ErrorKind, err error) error {
	if k := types.KindOf(err); k != types.KindUnknown {
		return err
	}
	return types.NewError(kind, op, err)
}
