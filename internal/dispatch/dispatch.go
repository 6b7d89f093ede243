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

// Package dispatch turns one received request frame into an executed
// handler under policy: the opcode table, the preamble/handler/
// epilogue pipeline, the three reserved opcodes, and the
// connection-down drain algorithm all live here.
package dispatch

import (
	"strconv"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/cubrid-db/server-core/internal/conn"
	"github.com/cubrid-db/server-core/internal/errcode"
	"github.com/cubrid-db/server-core/internal/metrics"
	"github.com/cubrid-db/server-core/internal/txctx"
	"github.com/cubrid-db/server-core/internal/wire"
)

// Reserved opcodes, handled directly by Dispatch before any table
// lookup.
const (
	OpPing              wire.Opcode = -1
	OpPingWithHandshake wire.Opcode = -2
	OpShutdown          wire.Opcode = -3
)

// Attribute is a bit in a Request's attribute set, controlling which
// preamble/epilogue steps the dispatcher runs around a handler.
type Attribute int

// Request attributes.
const (
	CheckModification Attribute = 1 << iota
	CheckAuthorization
	SetDiagnostics
	InTransaction
	OutTransaction
)

// Has reports whether a carries bit.
func (a Attribute) Has(bit Attribute) bool { return a&bit != 0 }

// HandlerFunc executes one request's business logic. It receives the
// bound thread-local context, the request id, and the raw payload,
// and returns the reply payload to send back (or an error).
type HandlerFunc func(ctx *txctx.Context, requestID uint32, payload []byte) ([]byte, error)

// Request describes one opcode's attribute bitset and handler.
type Request struct {
	Attributes Attribute
	Handler    HandlerFunc
}

// Table maps opcodes to their descriptor. Opcodes outside the table
// (and outside the reserved range) are rejected as unknown.
type Table map[wire.Opcode]*Request

// Sender is how a Dispatcher replies to the client. Implementations
// are expected to be safe to call from the single worker bound to the
// connection; no reentrant calls are made by Dispatch.
type Sender interface {
	SendReply(requestID uint32, payload []byte) error
	SendError(requestID uint32, code errcode.Code) error
	SendAbort(requestID uint32) error
}

// ModificationGate reports whether the database currently accepts
// updating transactions, consulted for the CHECK_MODIFICATION
// attribute.
type ModificationGate interface {
	ModificationEnabled() bool
}

// Authorizer reports whether a client id holds DBA privilege,
// consulted for the CHECK_AUTHORIZATION attribute.
type Authorizer interface {
	IsDBA(clientID int) bool
}

// TransactionTracker answers whether a transaction has performed any
// update, used to decide whether CHECK_MODIFICATION applies to a
// commit-shaped request.
type TransactionTracker interface {
	HasUpdates(tranIndex int) bool
}

// PageUnfixer defensively releases any pages still pinned by a
// resource-tracking frame once a handler returns, whether or not it
// errored.
type PageUnfixer interface {
	UnfixAll(pageIDs []int64)
}

// Handshake negotiates protocol version, timezone checksum, and HA
// capability bits for PING_WITH_HANDSHAKE, bypassing the table and
// the policy preamble entirely.
type Handshake interface {
	Negotiate(payload []byte) (reply []byte, err error)
}

// Dispatcher runs Table entries under the preamble/epilogue pipeline.
type Dispatcher struct {
	Table     Table
	Gate      ModificationGate
	Authz     Authorizer
	Txn       TransactionTracker
	Pages     PageUnfixer
	Handshake Handshake
}

// Dispatch executes one request per the per-request algorithm: buffer
// validation, the three reserved opcodes, range/state checks, the
// CHECK_MODIFICATION / CHECK_AUTHORIZATION / IN_TRANSACTION gates, the
// handler call, and the unconditional epilogue.
func (d *Dispatcher) Dispatch(ctx *txctx.Context, c *conn.Connection, sender Sender, header wire.Header, payload []byte) (result errcode.Code) {
	opcode := strconv.Itoa(int(header.Opcode))
	start := time.Now()
	defer func() {
		metrics.ObserveDispatch(opcode, time.Since(start))
		if result != errcode.None {
			metrics.IncDispatchError(opcode, result.String())
		}
	}()

	if payload == nil && header.PayloadSize > 0 {
		sender.SendError(header.RequestID, errcode.AllocationFailure)
		return errcode.UnplannedShutdown
	}

	switch header.Opcode {
	case OpPing:
		sender.SendReply(header.RequestID, nil)
		return errcode.None
	case OpPingWithHandshake:
		return d.dispatchHandshake(header, payload, sender)
	case OpShutdown:
		log.WithField("client_id", c.ClientID()).Warn("dispatch: shutdown request received")
		return errcode.UnplannedShutdown
	}

	req, ok := d.Table[header.Opcode]
	if !ok {
		sender.SendError(header.RequestID, errcode.UnknownOpcode)
		return errcode.UnknownOpcode
	}

	if !c.SocketValid() || c.Status() != conn.Open {
		// Silent from the client's point of view; the drop is still
		// visible server-side for test debugging.
		log.WithFields(log.Fields{
			"client_id": c.ClientID(),
			"opcode":    header.Opcode,
		}).Debug("dispatch: dropping request on invalid connection")
		return errcode.None
	}

	if req.Attributes.Has(CheckModification) {
		committing := !req.Attributes.Has(OutTransaction) || d.Txn == nil || d.Txn.HasUpdates(ctx.TranIndex())
		if committing && d.Gate != nil && !d.Gate.ModificationEnabled() {
			sender.SendError(header.RequestID, errcode.ModificationDisallowed)
			sender.SendAbort(header.RequestID)
			return errcode.ModificationDisallowed
		}
	}

	if req.Attributes.Has(CheckAuthorization) {
		if d.Authz != nil && !d.Authz.IsDBA(c.ClientID()) {
			sender.SendError(header.RequestID, errcode.AuthorizationDenied)
			sender.SendAbort(header.RequestID)
			return errcode.AuthorizationDenied
		}
	}

	if req.Attributes.Has(InTransaction) {
		c.SetInTransaction(true)
	}

	c.IncPendingRequests()
	track := ctx.PushTracks()

	ctx.ResetSnapshot = c.ConsumeInvalidateSnapshot()

	reply, err := req.Handler(ctx, header.RequestID, payload)

	heldPages := track.Pages()
	ctx.PopTracks(track)
	if d.Pages != nil && len(heldPages) > 0 {
		d.Pages.UnfixAll(heldPages)
	}

	if req.Attributes.Has(OutTransaction) {
		c.SetInTransaction(false)
	}
	ctx.InstantHeap.Reset()

	if err != nil {
		code := errcode.Incompatible
		var coded *errcode.WithError
		if errors.As(err, &coded) {
			code = coded.Code
		}
		sender.SendError(header.RequestID, code)
		sender.SendAbort(header.RequestID)
		return code
	}
	sender.SendReply(header.RequestID, reply)
	return errcode.None
}

func (d *Dispatcher) dispatchHandshake(header wire.Header, payload []byte, sender Sender) errcode.Code {
	if d.Handshake == nil {
		sender.SendError(header.RequestID, errcode.UnknownOpcode)
		return errcode.UnknownOpcode
	}
	reply, err := d.Handshake.Negotiate(payload)
	if err != nil {
		sender.SendError(header.RequestID, errcode.InvalidLiteral)
		return errcode.InvalidLiteral
	}
	sender.SendReply(header.RequestID, reply)
	return errcode.None
}
