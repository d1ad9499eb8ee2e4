package bedrock

import (
	"llmbridge/internal/backends"
	"llmbridge/internal/core"
)

// Published on-demand per-1k-token prices for the supported model ids, with
// the cheapest tier as the fallback.
var priceTable = backends.NewPriceTable(map[string]backends.ModelPrice{
	"anthropic.claude-3-5-sonnet-20241022-v2:0": {InputPer1K: 0.003, OutputPer1K: 0.015},
	"anthropic.claude-3-5-haiku-20241022-v1:0":  {InputPer1K: 0.0008, OutputPer1K: 0.004},
	"meta.llama3-1-70b-instruct-v1:0":           {InputPer1K: 0.00099, OutputPer1K: 0.00099},
	"meta.llama3-1-8b-instruct-v1:0":            {InputPer1K: 0.00022, OutputPer1K: 0.00022},
	"amazon.titan-text-express-v1":              {InputPer1K: 0.0002, OutputPer1K: 0.0006},
}, "amazon.titan-text-express-v1")

func knownModels() []core.ModelDescriptor {
	models := []struct {
		id, name        string
		contextLen, out int
	}{
		{"anthropic.claude-3-5-sonnet-20241022-v2:0", "Claude 3.5 Sonnet (Bedrock)", 200000, 8192},
		{"anthropic.claude-3-5-haiku-20241022-v1:0", "Claude 3.5 Haiku (Bedrock)", 200000, 8192},
		{"meta.llama3-1-70b-instruct-v1:0", "Llama 3.1 70B Instruct", 128000, 4096},
		{"meta.llama3-1-8b-instruct-v1:0", "Llama 3.1 8B Instruct", 128000, 4096},
		{"amazon.titan-text-express-v1", "Titan Text Express", 8192, 8192},
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
