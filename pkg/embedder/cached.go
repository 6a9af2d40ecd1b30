package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/soundprediction/go-servicegraph/pkg/cache"
)

// CachedEmbedder serves embeddings from a cache and only calls the wrapped
// client for texts it has not seen. Cache failures fall through to the client.
type CachedEmbedder struct {
	inner  Client
	cache  cache.Cache
	prefix string
	ttl    time.Duration
	logger *slog.Logger
}

// NewCachedEmbedder wraps inner. Keys are scoped by model so switching models
// never returns stale vectors. A zero ttl keeps entries forever.
func NewCachedEmbedder(inner Client, c cache.Cache, model string, ttl time.Duration, logger *slog.Logger) *CachedEmbedder {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedEmbedder{
		inner:  inner,
		cache:  c,
		prefix: fmt.Sprintf("emb:%s:%d:", model, inner.Dimensions()),
		ttl:    ttl,
		logger: logger,
	}
}

// Embed returns cached vectors where present and embeds the rest in one call.
func (c *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missing []string
	var missingIdx []int

	for i, text := range texts {
		if vec, ok := c.lookup(text); ok {
			out[i] = vec
			continue
		}
		missing = append(missing, text)
		missingIdx = append(missingIdx, i)
	}
	if len(missing) == 0 {
		return out, nil
	}

	fresh, err := c.inner.Embed(ctx, missing)
	if err != nil {
		return nil, err
	}
	for j, vec := range fresh {
		out[missingIdx[j]] = vec
		if err := c.cache.Set(c.key(missing[j]), encodeVector(vec), c.ttl); err != nil {
			c.logger.Warn("Failed to cache embedding", "error", err)
		}
	}
	return out, nil
}

// EmbedSingle generates an embedding for a single text.
func (c *CachedEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// Dimensions returns the wrapped client's dimensions.
func (c *CachedEmbedder) Dimensions() int {
	return c.inner.Dimensions()
}

// Close closes the wrapped client. The cache is owned by the caller.
func (c *CachedEmbedder) Close() error {
	return c.inner.Close()
}

func (c *CachedEmbedder) key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return c.prefix + hex.EncodeToString(sum[:])
}

func (c *CachedEmbedder) lookup(text string) ([]float32, bool) {
	raw, err := c.cache.Get(c.key(text))
	if err != nil {
		if !errors.Is(err, cache.ErrKeyNotFound) {
			c.logger.Warn("Embedding cache read failed", "error", err)
		}
		return nil, false
	}
	vec, err := decodeVector(raw)
	if err != nil {
		c.logger.Warn("Discarding corrupt cached embedding", "error", err)
		return nil, false
	}
	return vec, true
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(x))
	}
	return buf
}

func decodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("cached vector has %d bytes", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v, nil
}
