package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/poiesic/ragchat/ai"
	"github.com/poiesic/ragchat/core"
)

// MockGenerator streams a fixed script of fragments.
type MockGenerator struct {
	// Fragments are emitted in order on every call.
	Fragments []string

	// FailAt makes generation fail instead of emitting the FailAt-th
	// fragment (1-based). Zero disables failure injection.
	FailAt int

	// Err is returned when FailAt triggers. Defaults to core.ErrGeneration.
	Err error

	// StreamFunc replaces the scripted behavior entirely if set.
	StreamFunc func(ctx context.Context, prompt string, fn ai.FragmentFunc) error

	mu      sync.Mutex
	prompts []string
}

var _ ai.Generator = (*MockGenerator)(nil)

// NewMockGenerator creates a generator that streams the given fragments.
func NewMockGenerator(fragments ...string) *MockGenerator {
	return &MockGenerator{Fragments: fragments}
}

func (g *MockGenerator) Stream(ctx context.Context, prompt string, fn ai.FragmentFunc) error {
	g.mu.Lock()
	g.prompts = append(g.prompts, prompt)
	g.mu.Unlock()

	if g.StreamFunc != nil {
		return g.StreamFunc(ctx, prompt, fn)
	}

	for i, fragment := range g.Fragments {
		if err := ctx.Err(); err != nil {
			return err
		}
		if g.FailAt > 0 && i+1 == g.FailAt {
			if g.Err != nil {
				return g.Err
			}
			return fmt.Errorf("%w: injected failure at fragment %d", core.ErrGeneration, g.FailAt)
		}
		if err := fn(ctx, fragment); err != nil {
			return err
		}
	}
	return nil
}

// Prompts returns every prompt received, in call order.
func (g *MockGenerator) Prompts() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, len(g.prompts))
	copy(out, g.prompts)
	return out
}

// CallCount returns the number of Stream calls.
func (g *MockGenerator) CallCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.prompts)
}
