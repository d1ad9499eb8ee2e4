package ollama

import (
	"strings"

	"llmbridge/internal/backends"
	"llmbridge/internal/core"
)

// renderPrompt flattens the conversation for /api/generate in the control
// tokens the model family was trained on. Families without a known dialect
// get the generic labeled transcript.
func renderPrompt(style string, req *core.Request) string {
	switch style {
	case styleLlama2:
		return llama2Prompt(req)
	default:
		return backends.FlattenPrompt(req)
	}
}

// llama2Prompt renders the [INST] dialect used by llama2 and codellama:
// each user turn is wrapped in [INST]...[/INST], the system prompt rides
// inside the first instruction between <<SYS>> markers, and assistant turns
// close their sequence with </s><s>.
func llama2Prompt(req *core.Request) string {
	system := req.System
	var sb strings.Builder
	first := true
	for _, m := range req.Messages {
		switch m.Role {
		case core.RoleSystem:
			if system == "" {
				system = m.Content
			}
		case core.RoleAssistant:
			sb.WriteString(" ")
			sb.WriteString(m.Content)
			sb.WriteString(" </s><s>")
		default:
			sb.WriteString("[INST] ")
			if first {
				if system != "" {
					sb.WriteString("<<SYS>>\n")
					sb.WriteString(system)
					sb.WriteString("\n<</SYS>>\n\n")
				}
				first = false
			}
			sb.WriteString(m.Content)
			sb.WriteString(" [/INST]")
		}
	}
	return sb.String()
}
