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

package dispatch

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cubrid-db/server-core/internal/conn"
	"github.com/cubrid-db/server-core/internal/errcode"
	"github.com/cubrid-db/server-core/internal/txctx"
	"github.com/cubrid-db/server-core/internal/wire"
)

var errHandlerFailed = errors.New("handler failed")

type fakeSender struct {
	replies []uint32
	errs    []errcode.Code
	aborts  []uint32
}

func (f *fakeSender) SendReply(requestID uint32, payload []byte) error {
	f.replies = append(f.replies, requestID)
	return nil
}

func (f *fakeSender) SendError(requestID uint32, code errcode.Code) error {
	f.errs = append(f.errs, code)
	return nil
}

func (f *fakeSender) SendAbort(requestID uint32) error {
	f.aborts = append(f.aborts, requestID)
	return nil
}

type fakeGate struct{ enabled bool }

func (g fakeGate) ModificationEnabled() bool { return g.enabled }

type fakeAuthz struct{ dba bool }

func (a fakeAuthz) IsDBA(clientID int) bool { return a.dba }

func echoHandler(ctx *txctx.Context, rid uint32, payload []byte) ([]byte, error) {
	return payload, nil
}

func TestDispatchRunsHandlerAndReplies(t *testing.T) {
	c := conn.Accept(1, 9)
	ctx := txctx.New()
	ctx.Bind(9, 1, 3, 10)

	d := &Dispatcher{Table: Table{
		10: {Handler: echoHandler},
	}}
	sender := &fakeSender{}

	status := d.Dispatch(ctx, c, sender, wire.Header{RequestID: 1, Opcode: 10}, []byte("hi"))
	require.Equal(t, errcode.None, status)
	require.Equal(t, []uint32{1}, sender.replies)
}

func TestDispatchUnknownOpcodeErrors(t *testing.T) {
	c := conn.Accept(1, 9)
	ctx := txctx.New()
	ctx.Bind(9, 1, 3, 999)

	d := &Dispatcher{Table: Table{}}
	sender := &fakeSender{}

	status := d.Dispatch(ctx, c, sender, wire.Header{RequestID: 1, Opcode: 999}, nil)
	require.Equal(t, errcode.UnknownOpcode, status)
	require.Equal(t, []errcode.Code{errcode.UnknownOpcode}, sender.errs)
}

func TestDispatchShutdownOpcodeReturnsUnplanned(t *testing.T) {
	c := conn.Accept(1, 9)
	ctx := txctx.New()
	ctx.Bind(9, 1, 3, 0)

	d := &Dispatcher{Table: Table{}}
	sender := &fakeSender{}

	status := d.Dispatch(ctx, c, sender, wire.Header{RequestID: 1, Opcode: OpShutdown}, nil)
	require.Equal(t, errcode.UnplannedShutdown, status)
}

func TestDispatchNilBufferWithSizeReportsAllocationFailure(t *testing.T) {
	c := conn.Accept(1, 9)
	ctx := txctx.New()
	ctx.Bind(9, 1, 3, 10)

	d := &Dispatcher{Table: Table{10: {Handler: echoHandler}}}
	sender := &fakeSender{}

	status := d.Dispatch(ctx, c, sender, wire.Header{RequestID: 1, Opcode: 10, PayloadSize: 5}, nil)
	require.Equal(t, errcode.UnplannedShutdown, status)
	require.Equal(t, []errcode.Code{errcode.AllocationFailure}, sender.errs)
}

func TestDispatchDropsOnClosedConnection(t *testing.T) {
	c := conn.Accept(1, 9)
	c.Free()
	ctx := txctx.New()
	ctx.Bind(9, 1, 3, 10)

	d := &Dispatcher{Table: Table{10: {Handler: echoHandler}}}
	sender := &fakeSender{}

	status := d.Dispatch(ctx, c, sender, wire.Header{RequestID: 1, Opcode: 10}, []byte("x"))
	require.Equal(t, errcode.None, status)
	require.Empty(t, sender.replies)
	require.Empty(t, sender.errs)
}

func TestDispatchModificationGateBlocksUpdatingRequest(t *testing.T) {
	c := conn.Accept(1, 9)
	ctx := txctx.New()
	ctx.Bind(9, 1, 3, 10)

	d := &Dispatcher{
		Table: Table{10: {Attributes: CheckModification, Handler: echoHandler}},
		Gate:  fakeGate{enabled: false},
	}
	sender := &fakeSender{}

	status := d.Dispatch(ctx, c, sender, wire.Header{RequestID: 1, Opcode: 10}, []byte("x"))
	require.Equal(t, errcode.ModificationDisallowed, status)
	require.Equal(t, []uint32{1}, sender.aborts)
}

func TestDispatchAuthorizationGateBlocksNonDBA(t *testing.T) {
	c := conn.Accept(1, 9)
	ctx := txctx.New()
	ctx.Bind(9, 1, 3, 10)

	d := &Dispatcher{
		Table: Table{10: {Attributes: CheckAuthorization, Handler: echoHandler}},
		Authz: fakeAuthz{dba: false},
	}
	sender := &fakeSender{}

	status := d.Dispatch(ctx, c, sender, wire.Header{RequestID: 1, Opcode: 10}, []byte("x"))
	require.Equal(t, errcode.AuthorizationDenied, status)
}

func TestDispatchInTransactionAttributeSetsFlag(t *testing.T) {
	c := conn.Accept(1, 9)
	ctx := txctx.New()
	ctx.Bind(9, 1, 3, 10)

	d := &Dispatcher{Table: Table{10: {Attributes: InTransaction, Handler: echoHandler}}}
	sender := &fakeSender{}

	d.Dispatch(ctx, c, sender, wire.Header{RequestID: 1, Opcode: 10}, []byte("x"))
	require.True(t, c.InTransaction())
}

func TestDispatchOutTransactionAttributeClearsFlag(t *testing.T) {
	c := conn.Accept(1, 9)
	c.SetInTransaction(true)
	ctx := txctx.New()
	ctx.Bind(9, 1, 3, 10)

	d := &Dispatcher{Table: Table{10: {Attributes: OutTransaction, Handler: echoHandler}}}
	sender := &fakeSender{}

	d.Dispatch(ctx, c, sender, wire.Header{RequestID: 1, Opcode: 10}, []byte("x"))
	require.False(t, c.InTransaction())
}

func TestDispatchHandlerErrorSendsErrorAndAbort(t *testing.T) {
	c := conn.Accept(1, 9)
	ctx := txctx.New()
	ctx.Bind(9, 1, 3, 10)

	d := &Dispatcher{Table: Table{10: {Handler: func(ctx *txctx.Context, rid uint32, payload []byte) ([]byte, error) {
		return nil, errHandlerFailed
	}}}}
	sender := &fakeSender{}

	status := d.Dispatch(ctx, c, sender, wire.Header{RequestID: 1, Opcode: 10}, []byte("x"))
	require.Equal(t, errcode.Incompatible, status)
	require.Equal(t, []uint32{1}, sender.aborts)
}

func TestDispatchPingRepliesWithoutTableLookup(t *testing.T) {
	c := conn.Accept(1, 9)
	ctx := txctx.New()
	ctx.Bind(9, 1, 3, int32(OpPing))

	d := &Dispatcher{Table: Table{}}
	sender := &fakeSender{}

	status := d.Dispatch(ctx, c, sender, wire.Header{RequestID: 5, Opcode: OpPing}, nil)
	require.Equal(t, errcode.None, status)
	require.Equal(t, []uint32{5}, sender.replies)
}

func TestDispatchHandlerErrorCarriesClientVisibleCode(t *testing.T) {
	c := conn.Accept(1, 9)
	ctx := txctx.New()
	ctx.Bind(9, 1, 3, 10)

	d := &Dispatcher{Table: Table{10: {Handler: func(ctx *txctx.Context, rid uint32, payload []byte) ([]byte, error) {
		return nil, errcode.New(errcode.Overflow, errHandlerFailed)
	}}}}
	sender := &fakeSender{}

	status := d.Dispatch(ctx, c, sender, wire.Header{RequestID: 1, Opcode: 10}, []byte("x"))
	require.Equal(t, errcode.Overflow, status)
	require.Equal(t, []errcode.Code{errcode.Overflow}, sender.errs)
}

func TestDispatchConsumesPendingInvalidateSnapshot(t *testing.T) {
	c := conn.Accept(1, 9)
	c.SetInvalidateSnapshot(true)
	ctx := txctx.New()
	ctx.Bind(9, 1, 3, 10)

	var sawReset bool
	d := &Dispatcher{Table: Table{10: {Handler: func(ctx *txctx.Context, rid uint32, payload []byte) ([]byte, error) {
		sawReset = ctx.ResetSnapshot
		return nil, nil
	}}}}
	sender := &fakeSender{}

	d.Dispatch(ctx, c, sender, wire.Header{RequestID: 1, Opcode: 10}, []byte("x"))
	require.True(t, sawReset)
	require.False(t, c.ConsumeInvalidateSnapshot())
}
