package llm

const (
	// DefaultBaseURL is Groq's OpenAI-compatible endpoint.
	DefaultBaseURL = "https://api.groq.com/openai/v1"
	// DefaultCypherModel translates questions to Cypher and summarizes results.
	DefaultCypherModel = "gemma2-9b-it"
	// DefaultDiagnosisModel writes the explanation for vector-matched problems.
	DefaultDiagnosisModel = "llama3-70b-8192"

	DefaultMaxTokens   = 1024
	DefaultTemperature = 0.0
)

// Config holds configuration for a chat client.
type Config struct {
	Model       string            `json:"model"`
	BaseURL     string            `json:"base_url,omitempty"`
	Temperature *float32          `json:"temperature,omitempty"`
	MaxTokens   *int              `json:"max_tokens,omitempty"`
	TopP        *float32          `json:"top_p,omitempty"`
	Stop        []string          `json:"stop,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
}

// NewConfig returns a Config for model with the package defaults.
func NewConfig(model string) Config {
	temp := float32(DefaultTemperature)
	maxTokens := DefaultMaxTokens
	return Config{
		Model:       model,
		BaseURL:     DefaultBaseURL,
		Temperature: &temp,
		MaxTokens:   &maxTokens,
	}
}

// WithBaseURL returns a copy of c pointing at baseURL.
func (c Config) WithBaseURL(baseURL string) Config {
	c.BaseURL = baseURL
	return c
}

// WithTemperature returns a copy of c with the given sampling temperature.
func (c Config) WithTemperature(temperature float32) Config {
	c.Temperature = &temperature
	return c
}

// WithMaxTokens returns a copy of c with the given completion limit.
func (c Config) WithMaxTokens(maxTokens int) Config {
	c.MaxTokens = &maxTokens
	return c
}
