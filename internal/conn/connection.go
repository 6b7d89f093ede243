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

// Package conn holds the Connection lifecycle: accept, bind a
// transaction to it, drain its worker activity when the peer is lost,
// and free it back to the pool of connection slots.
package conn

import "sync"

// Status is where a Connection sits in its accept/bind/drain/free
// lifecycle.
type Status int

// Connection statuses.
const (
	// Closed means the slot is unused.
	Closed Status = iota
	// Open means the connection is accepted and serving requests.
	Open
	// Draining means the peer was lost and the connection-down
	// callback is waiting for in-flight workers to finish.
	Draining
)

// Connection is one accepted client socket and the transactional
// state bound to it. A dispatcher reads and writes these fields only
// from the single worker currently bound to the connection, except
// for the fields the connection-down callback touches during drain.
type Connection struct {
	mu sync.Mutex

	id       int64
	clientID int
	status   Status

	tranIndex           int
	inTransaction       bool
	invalidateSnapshot  bool
	pendingRequestCount int

	socketValid bool

	// StopSessionThreads, if set, is invoked once by Drain to stop any
	// session-attached goroutines (e.g. an idle-timeout watcher) before
	// the drain loop begins polling worker activity.
	StopSessionThreads func()
}

// Accept returns a new Connection in the Open state for the given
// socket/client identity.
func Accept(id int64, clientID int) *Connection {
	return &Connection{
		id:          id,
		clientID:    clientID,
		status:      Open,
		socketValid: true,
	}
}

// ID returns the connection's identity, stable across Bind calls.
func (c *Connection) ID() int64 { return c.id }

// ClientID returns the client id this connection was accepted for.
func (c *Connection) ClientID() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clientID
}

// Bind records which transaction index is currently using this
// connection. The dispatcher does not call it; it records the
// IN_TRANSACTION attribute through SetInTransaction.
func (c *Connection) Bind(tranIndex int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tranIndex = tranIndex
}

// TranIndex returns the transaction index currently bound to this
// connection.
func (c *Connection) TranIndex() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tranIndex
}

// Status returns the connection's current lifecycle status.
func (c *Connection) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// SocketValid reports whether the underlying socket is still usable.
// A dispatcher silently drops any request arriving once this is
// false, or once Status is no longer Open.
func (c *Connection) SocketValid() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.socketValid
}

// InvalidateSocket marks the socket unusable without changing the
// connection's lifecycle status, used when I/O on the socket fails
// (the server's read loop calls it on a read error).
func (c *Connection) InvalidateSocket() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.socketValid = false
}

// SetInTransaction sets or clears the in-transaction flag, written
// only by the connection's currently bound worker.
func (c *Connection) SetInTransaction(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inTransaction = v
}

// InTransaction reports the connection's in-transaction flag.
func (c *Connection) InTransaction() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inTransaction
}

// SetInvalidateSnapshot requests that the next request on this
// connection resets its transactional snapshot before running the
// handler.
func (c *Connection) SetInvalidateSnapshot(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidateSnapshot = v
}

// ConsumeInvalidateSnapshot reports whether a snapshot reset was
// pending and clears the flag, so the dispatcher preamble acts on it
// exactly once per request.
func (c *Connection) ConsumeInvalidateSnapshot() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := c.invalidateSnapshot
	c.invalidateSnapshot = false
	return v
}

// IncPendingRequests increments the per-connection request counter,
// called by the dispatcher preamble before invoking a handler.
func (c *Connection) IncPendingRequests() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pendingRequestCount++
	return c.pendingRequestCount
}

// PendingRequests returns the current value of the per-connection
// request counter.
func (c *Connection) PendingRequests() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pendingRequestCount
}

// BeginDrain transitions the connection to Draining, the state the
// connection-down callback uses while it waits for the connection's
// in-flight workers to finish. It stops any attached session threads
// exactly once.
func (c *Connection) BeginDrain() {
	c.mu.Lock()
	stop := c.StopSessionThreads
	alreadyDraining := c.status == Draining
	c.status = Draining
	c.socketValid = false
	c.mu.Unlock()

	if !alreadyDraining && stop != nil {
		stop()
	}
}

// Free returns the connection slot to Closed, clearing all
// transactional state. Called after drain completes (or directly, on
// a clean client disconnect with no in-flight work).
func (c *Connection) Free() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = Closed
	c.tranIndex = 0
	c.inTransaction = false
	c.invalidateSnapshot = false
	c.pendingRequestCount = 0
	c.socketValid = false
}
