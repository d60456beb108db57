// Copyright 2024 The Erigon Authors
// This file is part of Erigon.
//
// Erigon is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Erigon is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Erigon. If not, see <http://www.gnu.org/licenses/>.

package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/flate"

	"github.com/erigontech/syncfabric/internal/types"
)

// MessageCodec is the common contract both wire encodings implement.
// decode(encode(m)) == m must hold for every well-formed m; an unknown
// payload variant must fail decode with ErrInvalidMessage, never be
// silently dropped.
type MessageCodec interface {
	Encode(m Message) ([]byte, error)
	Decode(data []byte) (Message, error)
}

// TextCodec is the default, self-describing wire encoding: a JSON
// document with top-level id/timestamp/from/to/payload fields, where
// payload itself carries type and data. Used by default for
// debuggability; backed by json-iterator for speed while staying
// wire-compatible with encoding/json.
type TextCodec struct{}

func (TextCodec) Encode(m Message) ([]byte, error) {
	b, err := jsonAPI.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrSerialization, err)
	}
	return b, nil
}

func (TextCodec) Decode(data []byte) (Message, error) {
	var m Message
	if err := jsonAPI.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("%w: %v", types.ErrInvalidMessage, err)
	}
	return m, nil
}

// BinaryCodec is the compact, positional encoding selectable per
// session. The envelope fields are written in fixed order, each
// length-prefixed; the payload body is itself JSON (so the full
// tagged-union taxonomy is reused without a second marshaling scheme)
// and the whole frame is flate-compressed for size.
type BinaryCodec struct{}

func writeLP(w io.Writer, b []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(b)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func readLP(r *bytes.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func (BinaryCodec) Encode(m Message) ([]byte, error) {
	var to []byte
	hasTo := m.To != nil
	if hasTo {
		to = []byte(*m.To)
	}
	payloadData, err := jsonAPI.Marshal(m.Payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrSerialization, err)
	}

	var body bytes.Buffer
	if err := writeLP(&body, []byte(m.Id)); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrSerialization, err)
	}
	var tsBuf [8]byte
	binary.BigEndian.PutUint64(tsBuf[:], uint64(m.Timestamp.UnixNano()))
	body.Write(tsBuf[:])
	if err := writeLP(&body, []byte(m.From)); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrSerialization, err)
	}
	if hasTo {
		body.WriteByte(1)
	} else {
		body.WriteByte(0)
	}
	if err := writeLP(&body, to); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrSerialization, err)
	}
	if err := writeLP(&body, payloadData); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrSerialization, err)
	}

	var compressed bytes.Buffer
	fw, err := flate.NewWriter(&compressed, flate.BestSpeed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrSerialization, err)
	}
	if _, err := fw.Write(body.Bytes()); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrSerialization, err)
	}
	if err := fw.Close(); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrSerialization, err)
	}
	return compressed.Bytes(), nil
}

func (BinaryCodec) Decode(data []byte) (Message, error) {
	fr := flate.NewReader(bytes.NewReader(data))
	defer fr.Close()
	raw, err := io.ReadAll(fr)
	if err != nil {
		return Message{}, fmt.Errorf("%w: %v", types.ErrInvalidMessage, err)
	}

	r := bytes.NewReader(raw)
	id, err := readLP(r)
	if err != nil {
		return Message{}, fmt.Errorf("%w: %v", types.ErrInvalidMessage, err)
	}
	var tsBuf [8]byte
	if _, err := io.ReadFull(r, tsBuf[:]); err != nil {
		return Message{}, fmt.Errorf("%w: %v", types.ErrInvalidMessage, err)
	}
	ts := time.Unix(0, int64(binary.BigEndian.Uint64(tsBuf[:]))).UTC()
	from, err := readLP(r)
	if err != nil {
		return Message{}, fmt.Errorf("%w: %v", types.ErrInvalidMessage, err)
	}
	hasToByte, err := r.ReadByte()
	if err != nil {
		return Message{}, fmt.Errorf("%w: %v", types.ErrInvalidMessage, err)
	}
	toBytes, err := readLP(r)
	if err != nil {
		return Message{}, fmt.Errorf("%w: %v", types.ErrInvalidMessage, err)
	}
	payloadData, err := readLP(r)
	if err != nil {
		return Message{}, fmt.Errorf("%w: %v", types.ErrInvalidMessage, err)
	}

	var payload Payload
	if err := jsonAPI.Unmarshal(payloadData, &payload); err != nil {
		return Message{}, fmt.Errorf("%w: %v", types.ErrInvalidMessage, err)
	}

	m := Message{
		Id:        string(id),
		Timestamp: ts,
		From:      types.BranchId(from),
		Payload:   payload,
	}
	if hasToByte == 1 {
		to := types.BranchId(toBytes)
		m.To = &to
	}
	return m, nil
}
