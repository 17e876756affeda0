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

// Package ai provides abstractions for the model services ragchat consumes.
//
// Two capabilities are used: an Embedder that maps text to a fixed-length
// vector, and a Generator that streams an answer for a prompt fragment by
// fragment. AIProvider bundles both so a single value can be injected into
// the ingestion pipeline and the chat service.
//
// # Implementation Packages
//
//   - ai/openai: OpenAI-compatible implementation built on langchaingo
//   - ai/mock: deterministic test doubles
//
// Public constructors in ai/openai return interface types. Mock constructors
// return concrete types so tests can script behavior and inspect calls.
//
// # Usage Example
//
//	config := ai.NewConfig(ai.WithAPIKey(os.Getenv("OPENAI_API_KEY")))
//	provider, err := openai.NewProvider(config)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
//
//	vec, err := provider.Embedder().EmbedText(ctx, "Hello world")
//	err = provider.Generator().Stream(ctx, prompt, func(ctx context.Context, fragment string) error {
//	    fmt.Print(fragment)
//	    return nil
//	})
package ai
