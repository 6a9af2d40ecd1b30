package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/sashabaranov/go-openai"
	"github.com/soundprediction/go-servicegraph/pkg/types"
)

// OpenAIClient implements the Client interface for any OpenAI-compatible
// chat endpoint. It defaults to Groq. Requests are never retried.
type OpenAIClient struct {
	client *openai.Client
	config Config
}

// NewOpenAIClient creates a new chat client. An empty API key is a
// configuration error because every hosted endpoint rejects it.
func NewOpenAIClient(apiKey string, config Config) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, types.NewError(types.KindConfig, "llm", fmt.Errorf("missing API key"))
	}
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	u, err := url.Parse(config.BaseURL)
	if err != nil {
		return nil, types.NewError(types.KindConfig, "llm", fmt.Errorf("invalid base URL: %w", err))
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, types.NewError(types.KindConfig, "llm", fmt.Errorf("base URL must use http:// or https:// scheme"))
	}
	if config.Model == "" {
		config.Model = DefaultCypherModel
	}

	clientConfig := openai.DefaultConfig(apiKey)
	clientConfig.BaseURL = config.BaseURL
	if len(config.Headers) > 0 {
		clientConfig.HTTPClient = &http.Client{
			Transport: &headerTransport{headers: config.Headers, base: http.DefaultTransport},
		}
	}

	return &OpenAIClient{
		client: openai.NewClientWithConfig(clientConfig),
		config: config,
	}, nil
}

// Model returns the configured model name.
func (c *OpenAIClient) Model() string {
	return c.config.Model
}

// Chat sends a chat completion request.
func (c *OpenAIClient) Chat(ctx context.Context, messages []Message) (*Response, error) {
	return c.complete(ctx, c.buildChatRequest(messages, false))
}

// ChatWithStructuredOutput requests a JSON object. When schema is non-nil it
// is rendered into a trailing system message so models without native schema
// support still see the expected shape.
func (c *OpenAIClient) ChatWithStructuredOutput(ctx context.Context, messages []Message, schema any) (json.RawMessage, error) {
	if schema != nil {
		schemaBytes, err := json.Marshal(schema)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal schema: %w", err)
		}
		messages = append(append([]Message{}, messages...),
			NewSystemMessage("Respond only with a JSON object matching this schema: "+string(schemaBytes)))
	}

	resp, err := c.complete(ctx, c.buildChatRequest(messages, true))
	if err != nil {
		return nil, err
	}
	raw, err := RepairJSON(resp.Content)
	if err == nil && schema != nil && !bytes.HasPrefix(bytes.TrimSpace(raw), []byte("{")) {
		err = fmt.Errorf("expected a JSON object")
	}
	if err != nil {
		return nil, types.NewError(types.KindQuery, "llm", &ParseError{Content: resp.Content, Err: err})
	}
	return raw, nil
}

// Close cleans up resources (no-op for OpenAI client).
func (c *OpenAIClient) Close() error {
	return nil
}

func (c *OpenAIClient) complete(ctx context.Context, req openai.ChatCompletionRequest) (*Response, error) {
	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, types.NewError(types.KindServiceUnavailable, "llm", fmt.Errorf("chat completion failed: %w", err))
	}
	if len(resp.Choices) == 0 {
		return nil, types.NewError(types.KindServiceUnavailable, "llm", types.ErrEmptyResponse)
	}

	choice := resp.Choices[0]
	model := resp.Model
	if model == "" {
		model = c.config.Model
	}
	return &Response{
		Content:      choice.Message.Content,
		Model:        model,
		FinishReason: string(choice.FinishReason),
		TokensUsed: &TokenUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

func (c *OpenAIClient) buildChatRequest(messages []Message, jsonMode bool) openai.ChatCompletionRequest {
	openaiMessages := make([]openai.ChatCompletionMessage, len(messages))
	for i, msg := range messages {
		openaiMessages[i] = openai.ChatCompletionMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		}
	}

	req := openai.ChatCompletionRequest{
		Model:    c.config.Model,
		Messages: openaiMessages,
	}
	if c.config.Temperature != nil {
		req.Temperature = *c.config.Temperature
	}
	if c.config.MaxTokens != nil {
		req.MaxTokens = *c.config.MaxTokens
	}
	if c.config.TopP != nil {
		req.TopP = *c.config.TopP
	}
	if len(c.config.Stop) > 0 {
		req.Stop = c.config.Stop
	}
	if jsonMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}
	return req
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
