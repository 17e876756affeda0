package chat

import "github.com/poiesic/ragchat/core"

// Monitor provides hooks to observe a chat turn.
// Implement this interface to trace retrieval and generation.
type Monitor interface {
	Start(sessionID core.SessionID, query string)
	AfterRetrieval(chunks []core.ScoredChunk)
	AfterPrompt(prompt string)
	Finish(exchange *core.Exchange, err error)
}

// noopMonitor is a no-op implementation of Monitor
type noopMonitor struct{}

var _ Monitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ core.SessionID, _ string)    {}
func (n *noopMonitor) AfterRetrieval(_ []core.ScoredChunk) {}
func (n *noopMonitor) AfterPrompt(_ string)                {}
func (n *noopMonitor) Finish(_ *core.Exchange, _ error)    {}
