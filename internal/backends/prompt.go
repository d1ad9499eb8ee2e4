package backends

import (
	"strings"

	"llmbridge/internal/core"
)

// FlattenPrompt renders a conversation as a single labeled transcript for
// wire formats that take one prompt string instead of structured turns.
// Message order is preserved; the trailing "Assistant:" cue prompts the model
// to continue the conversation.
func FlattenPrompt(req *core.Request) string {
	var sb strings.Builder
	if req.System != "" {
		sb.WriteString(req.System)
		sb.WriteString("\n\n")
	}
	for _, m := range req.Messages {
		switch m.Role {
		case core.RoleSystem:
			sb.WriteString("System: ")
		case core.RoleAssistant:
			sb.WriteString("Assistant: ")
		default:
			sb.WriteString("User: ")
		}
		sb.WriteString(m.Content)
		sb.WriteString("\n")
	}
	sb.WriteString("Assistant:")
	return sb.String()
}
