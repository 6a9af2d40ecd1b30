package embedder

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/sashabaranov/go-openai"
	"github.com/soundprediction/go-servicegraph/pkg/types"
	"github.com/soundprediction/go-servicegraph/pkg/utils"
)

// OpenAIEmbedder implements the Client interface for any service exposing the
// OpenAI embeddings endpoint, such as a local sentence-transformers server.
// Requests are never retried.
type OpenAIEmbedder struct {
	client *openai.Client
	config Config
}

// NewOpenAIEmbedder creates a new OpenAI-compatible embedder client.
func NewOpenAIEmbedder(apiKey string, config Config) (*OpenAIEmbedder, error) {
	if config.BaseURL != "" {
		u, err := url.Parse(config.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid embedding base URL: %w", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return nil, fmt.Errorf("embedding base URL must use http:// or https:// scheme")
		}
	}
	if apiKey == "" {
		// local servers usually ignore the key, the client still sends one
		apiKey = "no-key"
	}

	clientConfig := openai.DefaultConfig(apiKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}
	if len(config.Headers) > 0 {
		clientConfig.HTTPClient = &http.Client{
			Transport: &headerTransport{headers: config.Headers, base: http.DefaultTransport},
		}
	}

	if config.Model == "" {
		config.Model = DefaultModel
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultBatchSize
	}
	if config.Dimensions == 0 {
		switch config.Model {
		case "text-embedding-ada-002", "text-embedding-3-small":
			config.Dimensions = 1536
		case "text-embedding-3-large":
			config.Dimensions = 3072
		default:
			config.Dimensions = DefaultDimensions
		}
	}

	return &OpenAIEmbedder{
		client: openai.NewClientWithConfig(clientConfig),
		config: config,
	}, nil
}

// Embed generates embeddings for multiple texts in batches.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	all := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += e.config.BatchSize {
		end := min(i+e.config.BatchSize, len(texts))

		batch, err := e.embedBatch(ctx, texts[i:end])
		if err != nil {
			return nil, fmt.Errorf("failed to embed batch %d-%d: %w", i, end, err)
		}
		all = append(all, batch...)
	}
	return all, nil
}

// EmbedSingle generates an embedding for a single text.
func (e *OpenAIEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, types.NewError(types.KindServiceUnavailable, "embed", types.ErrEmptyResponse)
	}
	return embeddings[0], nil
}

// Dimensions returns the number of dimensions in the embeddings.
func (e *OpenAIEmbedder) Dimensions() int {
	return e.config.Dimensions
}

// Model returns the configured model name.
func (e *OpenAIEmbedder) Model() string {
	return e.config.Model
}

// Close cleans up resources (no-op for OpenAI embedder).
func (e *OpenAIEmbedder) Close() error {
	return nil
}

func (e *OpenAIEmbedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(e.config.Model),
	})
	if err != nil {
		return nil, classifyRequestError(err)
	}
	if len(resp.Data) != len(texts) {
		return nil, types.NewError(types.KindServiceUnavailable, "embed",
			fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Data)))
	}

	embeddings := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			return nil, types.NewError(types.KindServiceUnavailable, "embed",
				fmt.Errorf("embedding index %d out of range", d.Index))
		}
		embeddings[d.Index] = d.Embedding
	}
	if e.config.Dimensions > 0 {
		if err := utils.ValidateEmbeddingDimensions(embeddings, e.config.Dimensions); err != nil {
			return nil, types.NewError(types.KindServiceUnavailable, "embed", err)
		}
	}
	return embeddings, nil
}

// classifyRequestError separates inputs the server rejected from an
// unreachable or overloaded server. Only the latter counts against a breaker.
func classifyRequestError(err error) error {
	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return types.NewError(types.KindConfig, "embed", err)
	case status == http.StatusRequestTimeout || status == http.StatusTooManyRequests:
		return types.NewError(types.KindServiceUnavailable, "embed", err)
	case status >= 400 && status < 500:
		return types.NewError(types.KindMalformedInput, "embed", err)
	}
	return types.NewError(types.KindServiceUnavailable, "embed", err)
}

type headerTransport struct {
	headers map[string]string
	base    http.RoundTripper
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}
	return t.base.RoundTrip(req)
}
