package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/poiesic/ragchat/core"
)

func TestBuildPrompt(t *testing.T) {
	tests := []struct {
		name   string
		query  string
		chunks []core.ScoredChunk
		want   string
	}{
		{
			name:  "two chunks in given order",
			query: "What is the refund policy?",
			chunks: []core.ScoredChunk{
				{Chunk: core.Chunk{Content: "Refunds within 30 days."}, Score: 0.9},
				{Chunk: core.Chunk{Content: "Store credit after that."}, Score: 0.7},
			},
			want: "Based on the following information, please answer the user's query: \"What is the refund policy?\"\n" +
				"Context:\n" +
				"Refunds within 30 days.\nStore credit after that.\n" +
				"Answer:",
		},
		{
			name:  "no chunks",
			query: "hello",
			want: "Based on the following information, please answer the user's query: \"hello\"\n" +
				"Context:\n" +
				"\nAnswer:",
		},
		{
			name:   "query is embedded literally",
			query:  `say "hi"`,
			chunks: []core.ScoredChunk{{Chunk: core.Chunk{Content: "x"}}},
			want: "Based on the following information, please answer the user's query: \"say \"hi\"\"\n" +
				"Context:\nx\nAnswer:",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BuildPrompt(tt.query, tt.chunks))
		})
	}
}
