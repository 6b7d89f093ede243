// Copyright 2024 The CUBRID Authors
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
//
// SPDX-License-Identifier: Apache-2.0

// Package wire defines the transport-agnostic request frame: a fixed
// header (request id, opcode, payload size) followed by that many
// bytes of payload. The dispatcher only ever looks at these three
// header fields; it does not care how the bytes arrived.
package wire

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// HeaderSize is the encoded size, in bytes, of a Header.
const HeaderSize = 4 + 4 + 4

// Opcode identifies the requested operation. The concrete enumeration
// lives in package dispatch; this package only needs the bit width.
type Opcode int32

// Header is the fixed-width preamble of every request frame.
type Header struct {
	RequestID   uint32
	Opcode      Opcode
	PayloadSize uint32
}

// Encode writes the header in network byte order.
func (h Header) Encode() []byte {
	buf := make([]byte, HeaderSize)
	binary.BigEndian.PutUint32(buf[0:4], h.RequestID)
	binary.BigEndian.PutUint32(buf[4:8], uint32(h.Opcode))
	binary.BigEndian.PutUint32(buf[8:12], h.PayloadSize)
	return buf
}

// DecodeHeader parses a Header from exactly HeaderSize bytes.
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, errors.Errorf("wire: short header: got %d bytes, want %d", len(buf), HeaderSize)
	}
	return Header{
		RequestID:   binary.BigEndian.Uint32(buf[0:4]),
		Opcode:      Opcode(binary.BigEndian.Uint32(buf[4:8])),
		PayloadSize: binary.BigEndian.Uint32(buf[8:12]),
	}, nil
}

// ReadFrame reads one Header and its payload from r. It never returns
// more than the declared PayloadSize, matching the dispatcher's
// assumption that the transport has already framed the request.
func ReadFrame(r io.Reader) (Header, []byte, error) {
	hbuf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, hbuf); err != nil {
		return Header{}, nil, errors.Wrap(err, "wire: reading header")
	}
	h, err := DecodeHeader(hbuf)
	if err != nil {
		return Header{}, nil, err
	}
	if h.PayloadSize == 0 {
		return h, nil, nil
	}
	payload := make([]byte, h.PayloadSize)
	if _, err := io.ReadFull(r, payload); err != nil {
		return Header{}, nil, errors.Wrap(err, "wire: reading payload")
	}
	return h, payload, nil
}

// WriteFrame writes a Header followed by payload to w.
func WriteFrame(w io.Writer, h Header, payload []byte) error {
	h.PayloadSize = uint32(len(payload))
	if _, err := w.Write(h.Encode()); err != nil {
		return errors.Wrap(err, "wire: writing header")
	}
	if len(payload) > 0 {
		if _, err := w.Write(payload); err != nil {
			return errors.Wrap(err, "wire: writing payload")
		}
	}
	return nil
}
