package chat

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"

	"github.com/poiesic/ragchat/ai"
	"github.com/poiesic/ragchat/core"
)

// Turn is a prepared query awaiting generation. A Turn streams at most once.
type Turn struct {
	service  *Service
	session  *core.Session
	query    string
	prompt   string
	chunks   []core.ScoredChunk
	consumed atomic.Bool
}

// SessionID returns the session the turn belongs to.
func (t *Turn) SessionID() core.SessionID { return t.session.ID }

// Prompt returns the grounding prompt sent to the generator.
func (t *Turn) Prompt() string { return t.prompt }

// Chunks returns the retrieved chunks in relevance order.
func (t *Turn) Chunks() []core.ScoredChunk { return t.chunks }

// Stream generates the answer, calling emit for every fragment in order.
//
// When generation completes the exchange is appended to the session and
// returned. A failure to append is logged and not returned, since the caller
// has already seen the full answer. When generation fails, emit fails, or ctx
// is cancelled, nothing is persisted and the error is returned.
func (t *Turn) Stream(ctx context.Context, emit ai.FragmentFunc) (*core.Exchange, error) {
	if !t.consumed.CompareAndSwap(false, true) {
		return nil, ErrTurnConsumed
	}
	s := t.service
	logger := s.logger.With("session", t.session.ID, "asset", t.session.AssetID)

	var (
		full    strings.Builder
		emitErr error
	)
	err := s.generator.Stream(ctx, t.prompt, func(ctx context.Context, fragment string) error {
		full.WriteString(fragment)
		if emit == nil {
			return nil
		}
		if err := emit(ctx, fragment); err != nil {
			emitErr = err
			return err
		}
		return nil
	})
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		switch {
		case emitErr != nil && errors.Is(err, emitErr):
		case ctx.Err() != nil:
			err = ctx.Err()
		default:
			err = classify(err, core.ErrGeneration)
		}
		logger.Warn("turn aborted, nothing persisted", "err", err)
		s.monitor.Finish(nil, err)
		return nil, err
	}

	exchange := core.Exchange{
		UserMessage:   t.query,
		AgentResponse: full.String(),
		CreatedAt:     s.now().UTC(),
	}
	if _, err := s.AppendExchange(ctx, t.session.ID, exchange); err != nil {
		logger.Error("error persisting exchange", "err", err)
	}
	s.monitor.Finish(&exchange, nil)
	return &exchange, nil
}
