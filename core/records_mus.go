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

package core

import (
	"errors"
	"math"
	"time"

	"github.com/mus-format/mus-go"
	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/varint"
)

// MUS serializers for persisted records. Field order is the wire order;
// append new fields at the end only.
var (
	IDMUS           = idMUS{}
	ExchangeMUS     = exchangeMUS{}
	SessionMUS      = sessionMUS{}
	AssetMUS        = assetMUS{}
	ChunkMUS        = chunkMUS{}
	VectorRecordMUS = vectorRecordMUS{}
)

// ErrNegativeLength indicates a corrupt length prefix.
var ErrNegativeLength = errors.New("negative length")

type idMUS struct{}

func (idMUS) Marshal(v ID, bs []byte) (n int) {
	return varint.Uint64.Marshal(uint64(v), bs)
}

func (idMUS) Unmarshal(bs []byte) (v ID, n int, err error) {
	u, n, err := varint.Uint64.Unmarshal(bs)
	return ID(u), n, err
}

func (idMUS) Size(v ID) int {
	return varint.Uint64.Size(uint64(v))
}

// Timestamps are stored as Unix microseconds.
func marshalTime(t time.Time, bs []byte) int {
	return varint.Int64.Marshal(t.UnixMicro(), bs)
}

func unmarshalTime(bs []byte) (time.Time, int, error) {
	us, n, err := varint.Int64.Unmarshal(bs)
	if err != nil {
		return time.Time{}, n, err
	}
	return time.UnixMicro(us).UTC(), n, nil
}

func sizeTime(t time.Time) int {
	return varint.Int64.Size(t.UnixMicro())
}

// unmarshalLength reads an element count. Every element takes at least one
// byte, so a count larger than the remaining buffer means truncated input.
func unmarshalLength(bs []byte) (int, int, error) {
	l, n, err := varint.Int.Unmarshal(bs)
	if err != nil {
		return 0, n, err
	}
	if l < 0 {
		return 0, n, ErrNegativeLength
	}
	if l > len(bs)-n {
		return 0, n, mus.ErrTooSmallByteSlice
	}
	return l, n, nil
}

func marshalVector(v []float32, bs []byte) (n int) {
	n = varint.Int.Marshal(len(v), bs)
	for _, f := range v {
		n += varint.Uint32.Marshal(math.Float32bits(f), bs[n:])
	}
	return n
}

func unmarshalVector(bs []byte) (v []float32, n int, err error) {
	l, n, err := unmarshalLength(bs)
	if err != nil {
		return nil, n, err
	}
	if l == 0 {
		return nil, n, nil
	}
	v = make([]float32, l)
	for i := range v {
		bits, m, err := varint.Uint32.Unmarshal(bs[n:])
		n += m
		if err != nil {
			return nil, n, err
		}
		v[i] = math.Float32frombits(bits)
	}
	return v, n, nil
}

func sizeVector(v []float32) (size int) {
	size = varint.Int.Size(len(v))
	for _, f := range v {
		size += varint.Uint32.Size(math.Float32bits(f))
	}
	return size
}

type exchangeMUS struct{}

func (exchangeMUS) Marshal(v Exchange, bs []byte) (n int) {
	n = ord.String.Marshal(v.UserMessage, bs)
	n += ord.String.Marshal(v.AgentResponse, bs[n:])
	n += marshalTime(v.CreatedAt, bs[n:])
	return n
}

func (exchangeMUS) Unmarshal(bs []byte) (v Exchange, n int, err error) {
	var m int
	v.UserMessage, n, err = ord.String.Unmarshal(bs)
	if err != nil {
		return
	}
	v.AgentResponse, m, err = ord.String.Unmarshal(bs[n:])
	n += m
	if err != nil {
		return
	}
	v.CreatedAt, m, err = unmarshalTime(bs[n:])
	n += m
	return
}

func (exchangeMUS) Size(v Exchange) (size int) {
	size = ord.String.Size(v.UserMessage)
	size += ord.String.Size(v.AgentResponse)
	return size + sizeTime(v.CreatedAt)
}

type sessionMUS struct{}

func (sessionMUS) Marshal(v Session, bs []byte) (n int) {
	n = ord.String.Marshal(string(v.ID), bs)
	n += ord.String.Marshal(string(v.AssetID), bs[n:])
	n += varint.Int.Marshal(len(v.History), bs[n:])
	for _, ex := range v.History {
		n += ExchangeMUS.Marshal(ex, bs[n:])
	}
	n += marshalTime(v.CreatedAt, bs[n:])
	n += marshalTime(v.UpdatedAt, bs[n:])
	return n
}

func (sessionMUS) Unmarshal(bs []byte) (v Session, n int, err error) {
	var (
		m int
		s string
		l int
	)
	s, n, err = ord.String.Unmarshal(bs)
	if err != nil {
		return
	}
	v.ID = SessionID(s)
	s, m, err = ord.String.Unmarshal(bs[n:])
	n += m
	if err != nil {
		return
	}
	v.AssetID = AssetID(s)
	l, m, err = unmarshalLength(bs[n:])
	n += m
	if err != nil {
		return
	}
	if l > 0 {
		v.History = make([]Exchange, l)
		for i := range v.History {
			v.History[i], m, err = ExchangeMUS.Unmarshal(bs[n:])
			n += m
			if err != nil {
				return
			}
		}
	}
	v.CreatedAt, m, err = unmarshalTime(bs[n:])
	n += m
	if err != nil {
		return
	}
	v.UpdatedAt, m, err = unmarshalTime(bs[n:])
	n += m
	return
}

func (sessionMUS) Size(v Session) (size int) {
	size = ord.String.Size(string(v.ID))
	size += ord.String.Size(string(v.AssetID))
	size += varint.Int.Size(len(v.History))
	for _, ex := range v.History {
		size += ExchangeMUS.Size(ex)
	}
	size += sizeTime(v.CreatedAt)
	return size + sizeTime(v.UpdatedAt)
}

type assetMUS struct{}

func (assetMUS) Marshal(v Asset, bs []byte) (n int) {
	n = ord.String.Marshal(string(v.ID), bs)
	n += ord.String.Marshal(v.FileName, bs[n:])
	n += ord.String.Marshal(string(v.FileType), bs[n:])
	n += varint.Int.Marshal(v.ChunkCount, bs[n:])
	n += marshalTime(v.CreatedAt, bs[n:])
	return n
}

func (assetMUS) Unmarshal(bs []byte) (v Asset, n int, err error) {
	var (
		m int
		s string
	)
	s, n, err = ord.String.Unmarshal(bs)
	if err != nil {
		return
	}
	v.ID = AssetID(s)
	v.FileName, m, err = ord.String.Unmarshal(bs[n:])
	n += m
	if err != nil {
		return
	}
	s, m, err = ord.String.Unmarshal(bs[n:])
	n += m
	if err != nil {
		return
	}
	v.FileType = FileType(s)
	v.ChunkCount, m, err = varint.Int.Unmarshal(bs[n:])
	n += m
	if err != nil {
		return
	}
	v.CreatedAt, m, err = unmarshalTime(bs[n:])
	n += m
	return
}

func (assetMUS) Size(v Asset) (size int) {
	size = ord.String.Size(string(v.ID))
	size += ord.String.Size(v.FileName)
	size += ord.String.Size(string(v.FileType))
	size += varint.Int.Size(v.ChunkCount)
	return size + sizeTime(v.CreatedAt)
}

type chunkMUS struct{}

func (chunkMUS) Marshal(v Chunk, bs []byte) (n int) {
	n = ord.String.Marshal(string(v.AssetID), bs)
	n += varint.Int.Marshal(v.Index, bs[n:])
	n += ord.String.Marshal(v.Content, bs[n:])
	return n
}

func (chunkMUS) Unmarshal(bs []byte) (v Chunk, n int, err error) {
	var (
		m int
		s string
	)
	s, n, err = ord.String.Unmarshal(bs)
	if err != nil {
		return
	}
	v.AssetID = AssetID(s)
	v.Index, m, err = varint.Int.Unmarshal(bs[n:])
	n += m
	if err != nil {
		return
	}
	v.Content, m, err = ord.String.Unmarshal(bs[n:])
	n += m
	return
}

func (chunkMUS) Size(v Chunk) (size int) {
	size = ord.String.Size(string(v.AssetID))
	size += varint.Int.Size(v.Index)
	return size + ord.String.Size(v.Content)
}

type vectorRecordMUS struct{}

func (vectorRecordMUS) Marshal(v VectorRecord, bs []byte) (n int) {
	n = IDMUS.Marshal(v.ID, bs)
	n += ChunkMUS.Marshal(v.Chunk, bs[n:])
	n += marshalVector(v.Vector, bs[n:])
	return n
}

func (vectorRecordMUS) Unmarshal(bs []byte) (v VectorRecord, n int, err error) {
	var m int
	v.ID, n, err = IDMUS.Unmarshal(bs)
	if err != nil {
		return
	}
	v.Chunk, m, err = ChunkMUS.Unmarshal(bs[n:])
	n += m
	if err != nil {
		return
	}
	v.Vector, m, err = unmarshalVector(bs[n:])
	n += m
	return
}

func (vectorRecordMUS) Size(v VectorRecord) (size int) {
	size = IDMUS.Size(v.ID)
	size += ChunkMUS.Size(v.Chunk)
	return size + sizeVector(v.Vector)
}
