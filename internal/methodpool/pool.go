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

// Package methodpool amortizes the cost of spawning the side
// connections a stored-procedure call opens to the method-invocation
// satellite process: Claim hands back a ready socket, reconnecting an
// invalid one in place, and Retire either returns it to the pool or
// destroys it.
package methodpool

import (
	"context"
	"net"
	"sync"

	"github.com/pkg/errors"

	"github.com/cubrid-db/server-core/internal/metrics"
)

// Dialer opens one outbound method-invocation socket.
type Dialer interface {
	Dial(ctx context.Context) (net.Conn, error)
}

// Conn is one pooled outbound connection. Claim may hand back the same
// *Conn repeatedly across its lifetime, reconnecting the underlying
// socket in place rather than allocating a new Conn per dial.
type Conn struct {
	mu     sync.Mutex
	socket net.Conn
	valid  bool
}

// Socket returns the connection's current underlying net.Conn. Callers
// must not retain it past the matching Retire call.
func (c *Conn) Socket() net.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.socket
}

// Valid reports whether the connection's socket is currently usable.
func (c *Conn) Valid() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.valid && c.socket != nil
}

// MarkInvalid records that a caller observed an I/O failure on this
// connection's socket, so the next Claim (if it is pooled again) or
// Retire (if not) reconnects or destroys it instead of reusing a dead
// socket.
func (c *Conn) MarkInvalid() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.valid = false
}

func (c *Conn) closeLocked() {
	if c.socket != nil {
		c.socket.Close()
		c.socket = nil
	}
	c.valid = false
}

// Pool is a capacity-bounded set of outbound method connections,
// guarded by a single mutex. It never blocks on exhaustion: Claim
// always returns (dialing a new connection on an empty pool) and
// Retire always finishes (destroying the connection on overflow).
type Pool struct {
	mu       sync.Mutex
	capacity int
	idle     []*Conn
	dialer   Dialer
}

// New returns a Pool that dials new connections through dialer and
// holds at most capacity idle connections between claims.
func New(capacity int, dialer Dialer) *Pool {
	if capacity < 0 {
		capacity = 0
	}
	return &Pool{capacity: capacity, dialer: dialer}
}

// MaxSize returns the pool's configured capacity.
func (p *Pool) MaxSize() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.capacity
}

// Claim returns a ready connection: one popped from the idle set,
// reconnected in place if it was left invalid, or a freshly dialed one
// if the idle set was empty.
func (p *Pool) Claim(ctx context.Context) (*Conn, error) {
	p.mu.Lock()
	n := len(p.idle)
	if n > 0 {
		c := p.idle[n-1]
		p.idle = p.idle[:n-1]
		p.mu.Unlock()

		if c.Valid() {
			return c, nil
		}

		socket, err := p.dialer.Dial(ctx)
		metrics.IncMethodPoolDial()
		if err != nil {
			return nil, errors.Wrap(err, "methodpool: reconnect failed")
		}
		c.mu.Lock()
		c.closeLocked()
		c.socket = socket
		c.valid = true
		c.mu.Unlock()
		return c, nil
	}
	p.mu.Unlock()

	socket, err := p.dialer.Dial(ctx)
	metrics.IncMethodPoolDial()
	if err != nil {
		return nil, errors.Wrap(err, "methodpool: dial failed")
	}
	return &Conn{socket: socket, valid: true}, nil
}

// Retire returns c to the pool if kill is false, the connection is
// still valid, and the pool has spare capacity; otherwise it destroys
// the connection. A nil c is a no-op.
func (p *Pool) Retire(c *Conn, kill bool) {
	if c == nil {
		return
	}

	if !kill && c.Valid() {
		p.mu.Lock()
		if len(p.idle) < p.capacity {
			p.idle = append(p.idle, c)
			p.mu.Unlock()
			return
		}
		p.mu.Unlock()
	}

	c.mu.Lock()
	c.closeLocked()
	c.mu.Unlock()
}
