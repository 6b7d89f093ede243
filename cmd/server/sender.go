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

package main

import (
	"net"
	"sync"

	"github.com/cubrid-db/server-core/internal/catalog"
	"github.com/cubrid-db/server-core/internal/errcode"
	"github.com/cubrid-db/server-core/internal/wire"
)

// frameSender is the dispatch.Sender over one client socket. Writes
// are serialized under mu; the worker running the connection's current
// request is the caller, and the connection-down drain path sends
// nothing through it.
type frameSender struct {
	mu   sync.Mutex
	conn net.Conn
}

func newFrameSender(conn net.Conn) *frameSender {
	return &frameSender{conn: conn}
}

func (s *frameSender) SendReply(requestID uint32, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return wire.WriteFrame(s.conn, wire.Header{RequestID: requestID}, payload)
}

func (s *frameSender) SendError(requestID uint32, code errcode.Code) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	payload := []byte(catalog.Message(code))
	return wire.WriteFrame(s.conn, wire.Header{RequestID: requestID, Opcode: wire.Opcode(code)}, payload)
}

func (s *frameSender) SendAbort(requestID uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return wire.WriteFrame(s.conn, wire.Header{RequestID: requestID, Opcode: -1}, nil)
}
