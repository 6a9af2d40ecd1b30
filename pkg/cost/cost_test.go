package cost_test

import (
	"testing"

	"github.com/soundprediction/go-servicegraph/pkg/cost"
	"github.com/stretchr/testify/assert"
)

func TestEstimate(t *testing.T) {
	c := cost.NewCalculator()

	tests := []struct {
		name       string
		model      string
		prompt     int
		completion int
		want       float64
	}{
		{name: "cypher model", model: "gemma2-9b-it", prompt: 1_000_000, completion: 0, want: 0.20},
		{name: "diagnosis model", model: "llama3-70b-8192", prompt: 1_000_000, completion: 1_000_000, want: 1.38},
		{name: "case insensitive", model: "Gemma2-9B-IT", prompt: 500_000, completion: 500_000, want: 0.20},
		{name: "family prefix", model: "llama3-70b-preview", prompt: 1_000_000, completion: 0, want: 0.59},
		{name: "unknown", model: "all-MiniLM-L6-v2", prompt: 1_000_000, completion: 1_000_000, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, c.Estimate(tt.model, tt.prompt, tt.completion), 1e-9)
		})
	}
}

func TestSetPrice(t *testing.T) {
	c := cost.NewCalculator()
	_, ok := c.Price("local-model")
	assert.False(t, ok)

	c.SetPrice("local-model", cost.PricingModel{InputPrice: 1, OutputPrice: 2})
	p, ok := c.Price("LOCAL-MODEL")
	assert.True(t, ok)
	assert.Equal(t, 2.0, p.OutputPrice)
	assert.InDelta(t, 3.0, c.Estimate("local-model", 1_000_000, 1_000_000), 1e-9)
}
