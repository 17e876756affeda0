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

// Package chat provides document-grounded chat sessions.
//
// A session is bound to exactly one ingested asset. Answering a query is a
// two-phase protocol:
//   - Prepare resolves the session, embeds the query, retrieves the top-k
//     chunks of the session's asset, and builds the grounding prompt
//   - Turn.Stream drives generation, forwarding each fragment to the caller
//     while accumulating the full answer, then appends one exchange
//
// Retrieval always carries the session's asset filter. Appends for one
// session are serialized, so concurrent messages never drop an exchange.
// A failed or cancelled generation persists nothing.
package chat
