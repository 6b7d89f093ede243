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
	"time"

	"github.com/cubrid-db/server-core/internal/conn"
	"github.com/cubrid-db/server-core/internal/txctx"
)

// WorkerCounter reports how many workers are currently bound to a
// (tranIndex, clientID) pair, satisfied by workerpool.Pool.
type WorkerCounter interface {
	CountWorkersFor(tranIndex, clientID int) int
}

// TransactionRegistry is the log manager's transaction-table slice
// the drain path needs: mark a transaction interrupted, and
// unregister it once drained.
type TransactionRegistry interface {
	SetInterrupt(tranIndex int)
	Unregister(tranIndex int)
}

// DrainConfig controls the connection-down drain loop's pacing.
type DrainConfig struct {
	PollInterval time.Duration
	MaxPasses    int
}

func (c DrainConfig) withDefaults() DrainConfig {
	if c.PollInterval <= 0 {
		c.PollInterval = 10 * time.Millisecond
	}
	if c.MaxPasses <= 0 {
		c.MaxPasses = 500
	}
	return c
}

// Drain runs the connection-down callback: it redirects the
// connection's bound worker onto a synthetic SHUTDOWN opcode, marks it
// CHECK so a predicate wait doesn't spin, stops attached session
// threads, then polls CountWorkersFor until it reaches zero —
// interrupting the transaction and waking the worker if it happens to
// be suspended on an interruptible cause on every pass — before
// unregistering the transaction and freeing the connection. If the
// pass budget is exhausted, onDrainExhausted decides what happens
// next: a debug build panics, a production build logs and this
// function proceeds to free the connection anyway.
func Drain(c *conn.Connection, worker *txctx.Context, counter WorkerCounter, txns TransactionRegistry, cfg DrainConfig) error {
	cfg = cfg.withDefaults()
	tranIndex := c.TranIndex()
	clientID := c.ClientID()

	worker.RebindForShutdown(clientID, tranIndex, int32(OpShutdown))
	worker.MarkChecking()
	c.BeginDrain()

	for pass := 0; ; pass++ {
		if counter.CountWorkersFor(tranIndex, clientID) == 0 {
			break
		}
		if pass >= cfg.MaxPasses {
			onDrainExhausted(tranIndex, clientID)
			break
		}
		if txns != nil {
			txns.SetInterrupt(tranIndex)
		}
		worker.Interrupt(false)
		time.Sleep(cfg.PollInterval)
	}

	if txns != nil {
		txns.Unregister(tranIndex)
	}
	c.Free()
	return nil
}
