package anthropic

import (
	"llmbridge/internal/backends"
	"llmbridge/internal/core"
)

// Published per-1k-token prices, with the haiku tier as the fallback.
var priceTable = backends.NewPriceTable(map[string]backends.ModelPrice{
	"claude-opus-4-1":    {InputPer1K: 0.015, OutputPer1K: 0.075},
	"claude-sonnet-4-0":  {InputPer1K: 0.003, OutputPer1K: 0.015},
	"claude-3-7-sonnet":  {InputPer1K: 0.003, OutputPer1K: 0.015},
	"claude-3-5-haiku":   {InputPer1K: 0.0008, OutputPer1K: 0.004},
}, "claude-3-5-haiku")

func knownModels() []core.ModelDescriptor {
	models := []struct {
		id, name        string
		contextLen, out int
	}{
		{"claude-opus-4-1", "Claude Opus 4.1", 200000, 32000},
		{"claude-sonnet-4-0", "Claude Sonnet 4", 200000, 64000},
		{"claude-3-7-sonnet", "Claude Sonnet 3.7", 200000, 64000},
		{"claude-3-5-haiku", "Claude Haiku 3.5", 200000, 8192},
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
			Capabilities:     []string{"chat", "streaming", "long_context"},
			InputPricePer1K:  &in,
			OutputPricePer1K: &outP,
		})
	}
	return out
}
