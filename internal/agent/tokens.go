package agent

import "sync"

// ModelPricing contains pricing per 1M tokens for a model.
type ModelPricing struct {
	InputPerMillion  float64
	OutputPerMillion float64
}

// sonnetPricing is used when no pricing is configured.
var sonnetPricing = ModelPricing{InputPerMillion: 3.00, OutputPerMillion: 15.00}

// TokenTracker tracks token usage across API calls.
type TokenTracker struct {
	mu        sync.Mutex
	inputTok  int64
	outputTok int64
	calls     int
	pricing   ModelPricing
}

// NewTokenTracker creates a new token tracker with Sonnet pricing.
func NewTokenTracker() *TokenTracker {
	return &TokenTracker{pricing: sonnetPricing}
}

// Add records token usage from an API call.
func (t *TokenTracker) Add(input, output int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inputTok += input
	t.outputTok += output
	t.calls++
}

// Total returns the total input and output tokens tracked.
func (t *TokenTracker) Total() (input, output int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.inputTok, t.outputTok
}

// Calls returns the number of API calls made.
func (t *TokenTracker) Calls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls
}

// SetPricing overrides the pricing used by Cost.
func (t *TokenTracker) SetPricing(p ModelPricing) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pricing = p
}

// Cost estimates the spend in USD.
func (t *TokenTracker) Cost() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	inputCost := float64(t.inputTok) / 1_000_000 * t.pricing.InputPerMillion
	outputCost := float64(t.outputTok) / 1_000_000 * t.pricing.OutputPerMillion
	return inputCost + outputCost
}
