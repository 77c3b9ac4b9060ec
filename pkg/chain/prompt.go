package chain

import (
	"strings"

	"github.com/harunnryd/agrichat/pkg/intent"
)

// BuildPrompt frames the farmer's message for a hosted model: topic and
// reply language first, then the message itself.
func BuildPrompt(in intent.Intent, languageName, rawText string) string {
	var b strings.Builder
	b.WriteString("You are an agricultural extension assistant for smallholder farmers in Ghana.\n")
	b.WriteString("Topic: ")
	b.WriteString(in.Topic())
	b.WriteString("\n")
	b.WriteString("Reply in ")
	b.WriteString(languageName)
	b.WriteString(" using short, practical sentences. Do not invent prices or dates.\n\n")
	b.WriteString("Farmer: ")
	b.WriteString(strings.TrimSpace(rawText))
	return b.String()
}
