package gemini

import "llmbridge/internal/backends"

// Published per-1k-token prices; the flash tier is the fallback.
var priceTable = backends.NewPriceTable(map[string]backends.ModelPrice{
	"gemini-2.5-pro":        {InputPer1K: 0.00125, OutputPer1K: 0.01},
	"gemini-2.5-flash":      {InputPer1K: 0.0003, OutputPer1K: 0.0025},
	"gemini-2.0-flash":      {InputPer1K: 0.0001, OutputPer1K: 0.0004},
	"gemini-2.0-flash-lite": {InputPer1K: 0.000075, OutputPer1K: 0.0003},
}, "gemini-2.0-flash")

func knownPrice(model string) (backends.ModelPrice, bool) {
	return priceTable.Lookup(model)
}
