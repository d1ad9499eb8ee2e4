package ollama

import "strings"

type familyMeta struct {
	contextLength int
	maxOutput     int
	// promptStyle is set for families that predate server-side chat
	// templates; they take a fully rendered prompt on /api/generate.
	promptStyle string
}

const styleLlama2 = "llama2"

// knownFamilies maps model-name prefixes to context metadata the tags
// endpoint does not report. Unknown models simply get no limits, which
// disables ceiling validation for them.
var knownFamilies = map[string]familyMeta{
	"llama3":    {contextLength: 128000, maxOutput: 4096},
	"llama2":    {contextLength: 4096, maxOutput: 2048, promptStyle: styleLlama2},
	"mistral":   {contextLength: 32768, maxOutput: 4096},
	"mixtral":   {contextLength: 32768, maxOutput: 4096},
	"gemma":     {contextLength: 8192, maxOutput: 4096},
	"qwen":      {contextLength: 32768, maxOutput: 4096},
	"phi":       {contextLength: 16384, maxOutput: 4096},
	"deepseek":  {contextLength: 64000, maxOutput: 8192},
	"codellama": {contextLength: 16384, maxOutput: 4096, promptStyle: styleLlama2},
}

// legacyPromptStyle reports the control-token dialect for models that need
// the conversation flattened client-side. ok is false for chat-template
// models, which go through /api/chat untouched.
func legacyPromptStyle(model string) (string, bool) {
	meta, ok := familyMetadata(model)
	if !ok || meta.promptStyle == "" {
		return "", false
	}
	return meta.promptStyle, true
}

// familyMetadata matches the longest known prefix of a model name like
// "llama3.1:8b-instruct".
func familyMetadata(name string) (familyMeta, bool) {
	base := name
	if i := strings.IndexByte(base, ':'); i >= 0 {
		base = base[:i]
	}
	var best string
	for prefix := range knownFamilies {
		if strings.HasPrefix(base, prefix) && len(prefix) > len(best) {
			best = prefix
		}
	}
	if best == "" {
		return familyMeta{}, false
	}
	return knownFamilies[best], true
}
