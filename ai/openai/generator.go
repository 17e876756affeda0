// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package openai

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/poiesic/ragchat/ai"
	"github.com/poiesic/ragchat/core"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// Generator implements ai.Generator using OpenAI-compatible chat APIs in
// streaming mode.
type Generator struct {
	client      llms.Model
	temperature float64
	logger      *slog.Logger
}

var _ ai.Generator = (*Generator)(nil)

// newGenerator is an internal constructor that returns the concrete type.
func newGenerator(config *ai.Config) (*Generator, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	client, err := openai.New(
		openai.WithBaseURL(config.GenerationHost),
		openai.WithToken(config.Token()),
		openai.WithModel(config.GenerationModel),
	)
	if err != nil {
		return nil, err
	}

	return &Generator{
		client:      client,
		temperature: config.Temperature,
		logger:      slog.Default().With("component", "openai-generator"),
	}, nil
}

// NewGenerator creates a standalone streaming generator from configuration.
func NewGenerator(config *ai.Config) (ai.Generator, error) {
	return newGenerator(config)
}

// Stream sends prompt as a single user message and relays every streamed
// fragment to fn in order. Empty fragments are dropped.
func (g *Generator) Stream(ctx context.Context, prompt string, fn ai.FragmentFunc) error {
	var callbackErr error
	fragments := 0

	_, err := llms.GenerateFromSinglePrompt(ctx, g.client, prompt,
		llms.WithTemperature(g.temperature),
		llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
			if len(chunk) == 0 {
				return nil
			}
			fragments++
			if err := fn(ctx, string(chunk)); err != nil {
				callbackErr = err
				return err
			}
			return nil
		}),
	)

	switch {
	case callbackErr != nil:
		return callbackErr
	case err == nil:
		g.logger.Debug("generation complete", "fragments", fragments)
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	default:
		g.logger.Error("generation failed", "fragments", fragments, "err", err)
		return fmt.Errorf("%w: %w", core.ErrGeneration, err)
	}
}
