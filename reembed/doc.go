// Package reembed re-embeds every chunk stored in a vector index with the
// configured embedder.
//
// Use it after switching embedding models: chunk text is read back from the
// index payloads, embedded again in batches with retry, normalized, and
// upserted under the same point ids. The target may be a different index,
// which doubles as a migration path between index backends.
package reembed
