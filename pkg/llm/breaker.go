package llm

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"github.com/soundprediction/go-servicegraph/pkg/types"
)

// BreakerClient stops calling the chat endpoint after repeated transport
// failures. Malformed model output does not count against the breaker.
type BreakerClient struct {
	inner Client
	cb    *gobreaker.CircuitBreaker
}

// NewBreakerClient trips after maxFailures consecutive unavailability errors
// and probes again after cooldown. Zero maxFailures defaults to 3.
func NewBreakerClient(inner Client, maxFailures uint32, cooldown time.Duration) *BreakerClient {
	if maxFailures == 0 {
		maxFailures = 3
	}
	return &BreakerClient{
		inner: inner,
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "llm",
			Timeout: cooldown,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= maxFailures
			},
			IsSuccessful: func(err error) bool {
				return err == nil || !types.IsKind(err, types.KindServiceUnavailable)
			},
		}),
	}
}

// Chat implements Client.
func (b *BreakerClient) Chat(ctx context.Context, messages []Message) (*Response, error) {
	res, err := b.cb.Execute(func() (interface{}, error) {
		return b.inner.Chat(ctx, messages)
	})
	if err != nil {
		return nil, breakerError(err)
	}
	return res.(*Response), nil
}

// ChatWithStructuredOutput implements Client.
func (b *BreakerClient) ChatWithStructuredOutput(ctx context.Context, messages []Message, schema any) (json.RawMessage, error) {
	res, err := b.cb.Execute(func() (interface{}, error) {
		return b.inner.ChatWithStructuredOutput(ctx, messages, schema)
	})
	if err != nil {
		return nil, breakerError(err)
	}
	return res.(json.RawMessage), nil
}

// Close implements Client.
func (b *BreakerClient) Close() error { return b.inner.Close() }

// State reports the breaker state.
func (b *BreakerClient) State() string { return b.cb.State().String() }

func breakerError(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return types.NewError(types.KindServiceUnavailable, "llm", err)
	}
	return err
}
