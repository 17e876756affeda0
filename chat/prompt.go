package chat

import (
	"strings"

	"github.com/poiesic/ragchat/core"
)

// BuildPrompt assembles the grounding prompt from the user query and the
// retrieved chunks, which are joined in the order given.
func BuildPrompt(query string, chunks []core.ScoredChunk) string {
	var b strings.Builder
	b.WriteString(`Based on the following information, please answer the user's query: "`)
	b.WriteString(query)
	b.WriteString("\"\nContext:\n")
	for i, c := range chunks {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(c.Chunk.Content)
	}
	b.WriteString("\nAnswer:")
	return b.String()
}
