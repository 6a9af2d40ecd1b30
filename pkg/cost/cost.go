// Package cost estimates the price of hosted model calls from token counts.
package cost

import (
	"strings"
	"sync"
)

// PricingModel defines the cost per 1M tokens (standard industry pricing unit)
type PricingModel struct {
	InputPrice  float64 // Cost per 1M input tokens
	OutputPrice float64 // Cost per 1M output tokens
}

// Calculator estimates costs for model usage
type Calculator struct {
	mu       sync.RWMutex
	prices   map[string]PricingModel
	families []family
}

// family prices every model whose name starts with prefix.
type family struct {
	prefix string
	price  PricingModel
}

// NewCalculator creates a new calculator with default pricing
func NewCalculator() *Calculator {
	c := &Calculator{
		prices: make(map[string]PricingModel),
	}
	c.loadDefaults()
	return c
}

// SetPrice overrides or adds the price of a model.
func (c *Calculator) SetPrice(model string, price PricingModel) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prices[strings.ToLower(model)] = price
}

// Price returns the pricing for model and whether it is known. Unknown
// models fall back to the longest matching family prefix.
func (c *Calculator) Price(model string) (PricingModel, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	name := strings.ToLower(model)
	if p, ok := c.prices[name]; ok {
		return p, true
	}
	best := -1
	for i, f := range c.families {
		if strings.HasPrefix(name, f.prefix) && (best < 0 || len(f.prefix) > len(c.families[best].prefix)) {
			best = i
		}
	}
	if best < 0 {
		return PricingModel{}, false
	}
	return c.families[best].price, true
}

// Estimate returns the estimated cost in USD. Unknown models cost nothing.
func (c *Calculator) Estimate(model string, promptTokens, completionTokens int) float64 {
	price, _ := c.Price(model)
	inputCost := (float64(promptTokens) / 1_000_000.0) * price.InputPrice
	outputCost := (float64(completionTokens) / 1_000_000.0) * price.OutputPrice
	return inputCost + outputCost
}

// loadDefaults loads Groq on-demand pricing for the models the query
// strategies use and their close relatives.
func (c *Calculator) loadDefaults() {
	c.prices["gemma2-9b-it"] = PricingModel{InputPrice: 0.20, OutputPrice: 0.20}
	c.prices["gemma-7b-it"] = PricingModel{InputPrice: 0.07, OutputPrice: 0.07}
	c.prices["llama3-70b-8192"] = PricingModel{InputPrice: 0.59, OutputPrice: 0.79}
	c.prices["llama3-8b-8192"] = PricingModel{InputPrice: 0.05, OutputPrice: 0.08}
	c.prices["llama-3.3-70b-versatile"] = PricingModel{InputPrice: 0.59, OutputPrice: 0.79}
	c.prices["llama-3.1-8b-instant"] = PricingModel{InputPrice: 0.05, OutputPrice: 0.08}
	c.prices["mixtral-8x7b-32768"] = PricingModel{InputPrice: 0.24, OutputPrice: 0.24}

	c.families = []family{
		{prefix: "gemma", price: c.prices["gemma2-9b-it"]},
		{prefix: "llama3-70b", price: c.prices["llama3-70b-8192"]},
		{prefix: "llama-3.3-70b", price: c.prices["llama-3.3-70b-versatile"]},
		{prefix: "llama3-8b", price: c.prices["llama3-8b-8192"]},
		{prefix: "llama-3.1-8b", price: c.prices["llama-3.1-8b-instant"]},
		{prefix: "mixtral", price: c.prices["mixtral-8x7b-32768"]},
	}
}
