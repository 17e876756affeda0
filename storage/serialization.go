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

package storage

import (
	"errors"
	"fmt"

	"github.com/mus-format/mus-go"

	"github.com/poiesic/ragchat/core"
)

// decodeError classifies a mus-go unmarshal failure. A buffer that ends
// early is reported as ErrTruncatedData as well as ErrSerializationFailed.
func decodeError(err error) error {
	if errors.Is(err, mus.ErrTooSmallByteSlice) {
		return fmt.Errorf("%w: %w: %w", ErrSerializationFailed, ErrTruncatedData, err)
	}
	return fmt.Errorf("%w: %w", ErrSerializationFailed, err)
}

// MarshalID serializes an ID to bytes.
func MarshalID(id core.ID) []byte {
	buf := make([]byte, core.IDMUS.Size(id))
	core.IDMUS.Marshal(id, buf)
	return buf
}

// UnmarshalID deserializes an ID from bytes.
func UnmarshalID(data []byte) (core.ID, error) {
	id, _, err := core.IDMUS.Unmarshal(data)
	if err != nil {
		return 0, decodeError(err)
	}
	return id, nil
}

// MarshalSession serializes a Session to bytes.
func MarshalSession(session *core.Session) []byte {
	buf := make([]byte, core.SessionMUS.Size(*session))
	core.SessionMUS.Marshal(*session, buf)
	return buf
}

// UnmarshalSession deserializes a Session from bytes.
func UnmarshalSession(data []byte) (*core.Session, error) {
	session, _, err := core.SessionMUS.Unmarshal(data)
	if err != nil {
		return nil, decodeError(err)
	}
	return &session, nil
}

// MarshalAsset serializes an Asset to bytes.
func MarshalAsset(asset *core.Asset) []byte {
	buf := make([]byte, core.AssetMUS.Size(*asset))
	core.AssetMUS.Marshal(*asset, buf)
	return buf
}

// UnmarshalAsset deserializes an Asset from bytes.
func UnmarshalAsset(data []byte) (*core.Asset, error) {
	asset, _, err := core.AssetMUS.Unmarshal(data)
	if err != nil {
		return nil, decodeError(err)
	}
	return &asset, nil
}

// MarshalVectorRecord serializes a VectorRecord to bytes.
func MarshalVectorRecord(record *core.VectorRecord) []byte {
	buf := make([]byte, core.VectorRecordMUS.Size(*record))
	core.VectorRecordMUS.Marshal(*record, buf)
	return buf
}

// UnmarshalVectorRecord deserializes a VectorRecord from bytes.
func UnmarshalVectorRecord(data []byte) (*core.VectorRecord, error) {
	record, _, err := core.VectorRecordMUS.Unmarshal(data)
	if err != nil {
		return nil, decodeError(err)
	}
	return &record, nil
}
