// Package ingestion turns uploaded documents into indexed, asset-tagged
// chunks.
//
// The Pipeline loads a file with the loader registered for its type, joins the
// pages, splits the text with the chunker, and embeds and upserts chunk
// batches concurrently on a worker pool. An asset record is written only after
// every batch is indexed; until then the asset id is never handed out.
//
// Ingestion is not transactional. A failure part way through can leave
// vectors in the index under an asset id nobody knows about.
package ingestion
