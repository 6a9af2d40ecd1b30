package embedder

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"github.com/soundprediction/go-servicegraph/pkg/types"
)

// BreakerEmbedder fails fast once the embedding service has been unavailable
// repeatedly, instead of sending every remaining item of a batch to a dead
// endpoint. Rejected inputs do not count against the breaker. It never
// retries.
type BreakerEmbedder struct {
	inner Client
	cb    *gobreaker.CircuitBreaker
}

// NewBreakerEmbedder trips after maxFailures consecutive unavailability
// errors and probes again after cooldown. Zero maxFailures defaults to 5.
func NewBreakerEmbedder(inner Client, maxFailures uint32, cooldown time.Duration) *BreakerEmbedder {
	if maxFailures == 0 {
		maxFailures = 5
	}
	return &BreakerEmbedder{
		inner: inner,
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "embedder",
			Timeout: cooldown,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= maxFailures
			},
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, context.Canceled) ||
					!types.IsKind(err, types.KindServiceUnavailable)
			},
		}),
	}
}

// Embed implements Client.
func (b *BreakerEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	res, err := b.cb.Execute(func() (interface{}, error) {
		return b.inner.Embed(ctx, texts)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, types.NewError(types.KindServiceUnavailable, "embed", err)
		}
		return nil, err
	}
	return res.([][]float32), nil
}

// EmbedSingle implements Client.
func (b *BreakerEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	vecs, err := b.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, types.NewError(types.KindServiceUnavailable, "embed", types.ErrEmptyResponse)
	}
	return vecs[0], nil
}

// Dimensions implements Client.
func (b *BreakerEmbedder) Dimensions() int { return b.inner.Dimensions() }

// Close implements Client.
func (b *BreakerEmbedder) Close() error { return b.inner.Close() }

// State reports the breaker state, e.g. for readiness checks.
func (b *BreakerEmbedder) State() string { return b.cb.State().String() }
