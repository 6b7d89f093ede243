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

package config

import (
	"encoding/binary"
	"hash/fnv"

	"github.com/pkg/errors"
)

// handshakeRequestSize and handshakeReplySize are the fixed
// request/reply shapes: a 4-byte
// protocol version followed by a 4-byte timezone checksum. The reply
// additionally carries a 1-byte HA-capability flag.
const (
	handshakeRequestSize = 4 + 4
	handshakeReplySize   = 4 + 4 + 1
)

// TimezoneChecksum hashes the server's configured timezone name into
// the 4-byte value exchanged during the handshake.
func (c *Config) TimezoneChecksum() uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(c.Timezone))
	return h.Sum32()
}

// Negotiate implements dispatch.Handshake: it checks the client's
// advertised protocol version against ProtocolVersion and returns the
// server's protocol version, timezone checksum, and HA-capability
// flag. A version mismatch fails the handshake outright rather than
// attempting compatibility shims.
func (c *Config) Negotiate(payload []byte) ([]byte, error) {
	if len(payload) < handshakeRequestSize {
		return nil, errors.Errorf(
			"config: short handshake payload: got %d bytes, want %d", len(payload), handshakeRequestSize)
	}
	clientVersion := binary.BigEndian.Uint32(payload[0:4])
	if clientVersion != ProtocolVersion {
		return nil, errors.Errorf(
			"config: protocol version mismatch: client=%d server=%d", clientVersion, ProtocolVersion)
	}

	reply := make([]byte, handshakeReplySize)
	binary.BigEndian.PutUint32(reply[0:4], ProtocolVersion)
	binary.BigEndian.PutUint32(reply[4:8], c.TimezoneChecksum())
	if c.HACapable {
		reply[8] = 1
	}
	return reply, nil
}
