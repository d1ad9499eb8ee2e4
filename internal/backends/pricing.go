// Package backends provides the services shared by every adapter (request
// validation, metrics tracking, price tables) and the registry/factory that
// builds and owns adapter instances.
package backends

import (
	"llmbridge/internal/core"
)

// HeuristicCharsPerToken is the default divisor for length-based token
// estimation when a backend reports no counts. An approximation, not a
// protocol requirement, so it stays configurable.
const HeuristicCharsPerToken = 4

// DefaultEstimateOutputTokens is assumed for cost estimation when a request
// does not cap its output.
const DefaultEstimateOutputTokens = 1024

// ModelPrice is the per-1k-token price pair for one model.
type ModelPrice struct {
	InputPer1K  float64
	OutputPer1K float64
}

// PriceTable maps model ids to prices for one backend. Every table carries a
// fallback entry so unknown model ids price conservatively instead of
// failing. The same table serves pre-flight estimation and post-flight
// accounting, so the two can never diverge.
type PriceTable struct {
	prices   map[string]ModelPrice
	fallback string
}

// NewPriceTable builds a table. fallback must be a key of prices; tables for
// free backends pass an all-zero entry.
func NewPriceTable(prices map[string]ModelPrice, fallback string) PriceTable {
	if _, ok := prices[fallback]; !ok {
		panic("pricing: fallback model missing from table: " + fallback)
	}
	return PriceTable{prices: prices, fallback: fallback}
}

// ZeroPriceTable is the table for backends that never bill (local, on-device).
func ZeroPriceTable() PriceTable {
	return NewPriceTable(map[string]ModelPrice{"": {}}, "")
}

// Lookup returns the exact entry for model, reporting whether one exists.
func (t PriceTable) Lookup(model string) (ModelPrice, bool) {
	p, ok := t.prices[model]
	return p, ok
}

// Price returns the entry for model, falling back for unknown ids.
func (t PriceTable) Price(model string) ModelPrice {
	if p, ok := t.prices[model]; ok {
		return p
	}
	return t.prices[t.fallback]
}

// Cost computes the charge for a token pair. Always >= 0.
func (t PriceTable) Cost(model string, inputTokens, outputTokens int) float64 {
	p := t.Price(model)
	cost := float64(inputTokens)*p.InputPer1K/1000 + float64(outputTokens)*p.OutputPer1K/1000
	if cost < 0 {
		return 0
	}
	return cost
}

// EstimateTokens approximates the token count of text by length. charsPerToken
// <= 0 selects the default heuristic.
func EstimateTokens(text string, charsPerToken int) int {
	if charsPerToken <= 0 {
		charsPerToken = HeuristicCharsPerToken
	}
	n := (len(text) + charsPerToken - 1) / charsPerToken
	return n
}

// EstimateRequestTokens approximates the prompt token count of a request:
// every message plus the out-of-band system prompt.
func EstimateRequestTokens(req *core.Request, charsPerToken int) int {
	total := 0
	if req.System != "" {
		total += EstimateTokens(req.System, charsPerToken)
	}
	for _, m := range req.Messages {
		total += EstimateTokens(m.Content, charsPerToken)
	}
	return total
}

// EstimateCost is the shared pre-flight cost prediction: heuristic prompt
// tokens plus the requested (or default) output budget, priced from the
// backend's table.
func EstimateCost(req *core.Request, table PriceTable, charsPerToken int) float64 {
	inputTokens := EstimateRequestTokens(req, charsPerToken)
	outputTokens := DefaultEstimateOutputTokens
	if req.MaxTokens != nil {
		outputTokens = *req.MaxTokens
	}
	return table.Cost(req.Model, inputTokens, outputTokens)
}

// HeuristicUsage fills a usage struct from the length heuristic, for
// backends that report no counts. Total always equals prompt + completion.
func HeuristicUsage(req *core.Request, completion string, charsPerToken int) core.Usage {
	prompt := EstimateRequestTokens(req, charsPerToken)
	out := EstimateTokens(completion, charsPerToken)
	return core.Usage{
		PromptTokens:     prompt,
		CompletionTokens: out,
		TotalTokens:      prompt + out,
		Estimated:        true,
	}
}
