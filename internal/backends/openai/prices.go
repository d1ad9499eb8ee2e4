package openai

import (
	"llmbridge/internal/backends"
	"llmbridge/internal/core"
)

// Published per-1k-token prices. gpt-4o-mini doubles as the fallback so
// unknown ids price conservatively low rather than failing.
var priceTable = backends.NewPriceTable(map[string]backends.ModelPrice{
	"gpt-4o":       {InputPer1K: 0.0025, OutputPer1K: 0.01},
	"gpt-4o-mini":  {InputPer1K: 0.00015, OutputPer1K: 0.0006},
	"gpt-4.1":      {InputPer1K: 0.002, OutputPer1K: 0.008},
	"gpt-4.1-mini": {InputPer1K: 0.0004, OutputPer1K: 0.0016},
	"o3-mini":      {InputPer1K: 0.0011, OutputPer1K: 0.0044},
}, "gpt-4o-mini")

func knownModels() []core.ModelDescriptor {
	models := []struct {
		id, name        string
		contextLen, out int
	}{
		{"gpt-4o", "GPT-4o", 128000, 16384},
		{"gpt-4o-mini", "GPT-4o mini", 128000, 16384},
		{"gpt-4.1", "GPT-4.1", 1047576, 32768},
		{"gpt-4.1-mini", "GPT-4.1 mini", 1047576, 32768},
		{"o3-mini", "o3-mini", 200000, 100000},
	}
	out := make([]core.ModelDescriptor, 0, len(models))
	for _, m := range models {
		p := priceTable.Price(m.id)
		in, outP := p.InputPer1K, p.OutputPer1K
		out = append(out, core.ModelDescriptor{
			ID:               m.id,
			DisplayName:      m.name,
			ContextLength:    m.contextLen,
			MaxOutputTokens:  m.out,
			Capabilities:     []string{"chat", "streaming"},
			InputPricePer1K:  &in,
			OutputPricePer1K: &outP,
		})
	}
	return out
}
