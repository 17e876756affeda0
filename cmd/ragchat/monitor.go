package main

import (
	"fmt"
	"io"
	"time"

	"github.com/poiesic/ragchat/chat"
	"github.com/poiesic/ragchat/core"
)

// traceMonitor prints each stage of a chat turn.
type traceMonitor struct {
	w       io.Writer
	started time.Time
}

var _ chat.Monitor = (*traceMonitor)(nil)

func newTraceMonitor(w io.Writer) *traceMonitor {
	return &traceMonitor{w: w}
}

func (m *traceMonitor) Start(sessionID core.SessionID, query string) {
	m.started = time.Now()
	fmt.Fprintf(m.w, "session %s: %q\n", sessionID, query)
}

func (m *traceMonitor) AfterRetrieval(chunks []core.ScoredChunk) {
	fmt.Fprintf(m.w, "retrieved %d chunks\n", len(chunks))
	for i, hit := range chunks {
		fmt.Fprintf(m.w, "%d: chunk %d [%0.3f] %s\n", i, hit.Chunk.Index, hit.Score, preview(hit.Chunk.Content, 60))
	}
}

func (m *traceMonitor) AfterPrompt(prompt string) {
	fmt.Fprintf(m.w, "prompt: %d chars\n", len(prompt))
}

func (m *traceMonitor) Finish(exchange *core.Exchange, err error) {
	elapsed := time.Since(m.started).Round(time.Millisecond)
	if err != nil {
		fmt.Fprintf(m.w, "failed after %v: %v\n", elapsed, err)
		return
	}
	fmt.Fprintf(m.w, "answered in %v (%d chars)\n", elapsed, len(exchange.AgentResponse))
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
