package core

import (
	"encoding/binary"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID is a content-derived identifier used for vector points.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// This ensures that identical content produces identical IDs.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// AssetID identifies one successfully ingested document. It is opaque to
// callers and never reused.
type AssetID string

// SessionID identifies one conversation bound to a single asset.
type SessionID string

// FileType is the declared type of an uploaded document.
type FileType string

const (
	FileTypePDF  FileType = "pdf"
	FileTypeCSV  FileType = "csv"
	FileTypeDOCX FileType = "docx"
	FileTypeTXT  FileType = "txt"
)

// ParseFileType derives a FileType from a file name or a bare extension.
// The result is lowercased and stripped of any leading dot. No check is made
// that a loader exists for it; that is the loader registry's job.
func ParseFileType(nameOrExt string) FileType {
	ext := filepath.Ext(nameOrExt)
	if ext == "" {
		ext = nameOrExt
	}
	return FileType(strings.ToLower(strings.TrimPrefix(ext, ".")))
}

// Asset is the record of a document whose chunks were fully indexed.
// Assets are immutable once created.
type Asset struct {
	ID         AssetID
	FileName   string
	FileType   FileType
	ChunkCount int
	CreatedAt  time.Time
}

// Chunk is a contiguous slice of a document's extracted text, tagged with the
// asset it came from.
type Chunk struct {
	AssetID AssetID
	Index   int
	Content string
}

// PointID returns the deterministic vector point ID for the chunk.
func (c Chunk) PointID() ID {
	return IDFromContent(string(c.AssetID) + ":" + strconv.Itoa(c.Index))
}

// VectorRecord is the (id, vector, payload) triple stored in a vector index.
type VectorRecord struct {
	ID     ID
	Chunk  Chunk
	Vector []float32
}

// ScoredChunk is a chunk returned by a similarity query.
type ScoredChunk struct {
	Chunk Chunk
	Score float32
}

// Exchange is one persisted user query and the full generated answer.
type Exchange struct {
	UserMessage   string
	AgentResponse string
	CreatedAt     time.Time
}

// Session is a conversation bound to exactly one asset. History holds
// completed exchanges in append order.
type Session struct {
	ID        SessionID
	AssetID   AssetID
	History   []Exchange
	CreatedAt time.Time
	UpdatedAt time.Time
}
