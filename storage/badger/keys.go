package badger

import (
	"encoding/binary"

	"github.com/poiesic/ragchat/core"
)

// Key prefixes for different data types
const (
	sessionPrefix = "sess:"
	assetPrefix   = "asset:"
	vectorPrefix  = "vec:"
)

// makeSessionKey generates a key for a session by ID.
func makeSessionKey(id core.SessionID) []byte {
	return []byte(sessionPrefix + string(id))
}

// makeAssetKey generates a key for an asset by ID.
func makeAssetKey(id core.AssetID) []byte {
	return []byte(assetPrefix + string(id))
}

// makeNamespacePrefix generates the prefix shared by every vector in a namespace.
// Format: vec:namespace:
func makeNamespacePrefix(namespace string) []byte {
	return []byte(vectorPrefix + namespace + ":")
}

// makeAssetVectorPrefix generates the prefix shared by one asset's vectors.
// Format: vec:namespace:assetID:
func makeAssetVectorPrefix(namespace string, assetID core.AssetID) []byte {
	return []byte(vectorPrefix + namespace + ":" + string(assetID) + ":")
}

// makeVectorKey generates the key for one vector point.
// Format: vec:namespace:assetID:<8-byte big-endian point id>
func makeVectorKey(namespace string, assetID core.AssetID, id core.ID) []byte {
	prefix := makeAssetVectorPrefix(namespace, assetID)
	buf := make([]byte, len(prefix)+8)
	offset := copy(buf, prefix)
	binary.BigEndian.PutUint64(buf[offset:], uint64(id))
	return buf
}
