package llama

import (
	"strings"

	"inferd/pkg/types"
)

// Turn markers used by the model's prompt format. The assistant role maps to
// the model's own "model" turn name.
const (
	TurnStart = "<start_of_turn>"
	TurnEnd   = "<end_of_turn>"

	roleModel = "model"
)

// FormatPrompt concatenates messages into the model's turn-delimited prompt
// format, preserving order, and leaves an open model turn awaiting generation.
// Messages with unknown roles contribute their raw content without markers.
func FormatPrompt(messages []types.Message) string {
	var b strings.Builder
	for _, m := range messages {
		role := m.Role
		switch role {
		case "assistant":
			role = roleModel
		case "system", "user", roleModel:
			// keep as-is
		default:
			b.WriteString(m.Content)
			b.WriteString("\n")
			continue
		}
		b.WriteString(TurnStart)
		b.WriteString(role)
		b.WriteString("\n")
		b.WriteString(m.Content)
		b.WriteString(TurnEnd)
		b.WriteString("\n")
	}
	b.WriteString(TurnStart)
	b.WriteString(roleModel)
	b.WriteString("\n")
	return b.String()
}
