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

// Package logmgr adapts a pgx connection pool into the log manager's
// external collaborator surface: begin/commit/abort a transaction by
// index, the update-allowed gate, per-transaction interrupt flags,
// client metadata lookup, and the non-maintenance client count the HA
// machine's MAINTENANCE transition drains against.
package logmgr

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

// Transaction is the minimal handle Manager commits or rolls back. A
// real *pgxpool.Pool yields a pgx.Tx here, which satisfies Transaction
// directly; callers that need the full pgx.Tx surface (Exec, Query,
// ...) type-assert the value Tx returns back to pgx.Tx.
type Transaction interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Beginner opens a new Transaction, the narrow slice of *pgxpool.Pool
// that Manager depends on so it can be exercised against a fake in
// tests without a live database.
type Beginner interface {
	Begin(ctx context.Context) (Transaction, error)
}

// PgxPoolBeginner adapts a *pgxpool.Pool to Beginner.
type PgxPoolBeginner struct {
	Pool *pgxpool.Pool
}

// Begin opens a transaction on the wrapped pool.
func (b PgxPoolBeginner) Begin(ctx context.Context) (Transaction, error) {
	return b.Pool.Begin(ctx)
}

// ClientInfo is the per-transaction client metadata kept alongside the
// transaction table, trimmed to what the HA maintenance-mode client
// walk and diagnostics need.
type ClientInfo struct {
	TranIndex int
	ClientID  int
	Host      string
}

type txnEntry struct {
	tx          Transaction
	client      ClientInfo
	interrupted bool
	hasUpdates  bool
}

// Manager begins, tracks, and finishes transactions by index over a
// pgx pool, and publishes the small per-concern views
// (dispatch.TransactionTracker, dispatch.TransactionRegistry,
// ha.ClientRegistry, ha.UpdateGate) that the rest of the core consumes
// instead of depending on Manager directly.
type Manager struct {
	beginner Beginner

	// MaintenanceAllowedHost is compared against a client's recorded
	// host to decide whether it may stay connected during MAINTENANCE;
	// only same-host administrative clients survive the eviction walk.
	MaintenanceAllowedHost string

	updatesEnabled atomic.Bool

	mu   sync.Mutex
	txns map[int]*txnEntry
}

// NewManager returns a Manager opening transactions through beginner.
// Updates start disabled, matching a freshly booted server that has
// not yet been granted a server state allowing writes.
func NewManager(beginner Beginner) *Manager {
	return &Manager{beginner: beginner, txns: make(map[int]*txnEntry)}
}

// Begin opens a transaction for tranIndex, recording client for later
// lookup and eviction. tranIndex must not already have an open
// transaction.
func (m *Manager) Begin(ctx context.Context, tranIndex int, client ClientInfo) error {
	tx, err := m.beginner.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "logmgr: begin failed")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.txns[tranIndex]; exists {
		tx.Rollback(ctx)
		return errors.Errorf("logmgr: transaction %d already open", tranIndex)
	}
	client.TranIndex = tranIndex
	m.txns[tranIndex] = &txnEntry{tx: tx, client: client}
	return nil
}

// Tx returns the open Transaction for tranIndex. A handler that needs
// the full pgx.Tx surface (Exec, Query, ...) type-asserts the result
// back to pgx.Tx; PgxPoolBeginner always yields one.
func (m *Manager) Tx(tranIndex int) (Transaction, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.txns[tranIndex]
	if !ok {
		return nil, false
	}
	return e.tx, true
}

// MarkUpdate records that tranIndex has performed at least one write,
// consulted by HasUpdates for the CHECK_MODIFICATION commit-path
// gate.
func (m *Manager) MarkUpdate(tranIndex int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.txns[tranIndex]; ok {
		e.hasUpdates = true
	}
}

// HasUpdates reports whether tranIndex has performed a write since it
// began, satisfying dispatch.TransactionTracker.
func (m *Manager) HasUpdates(tranIndex int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.txns[tranIndex]
	return ok && e.hasUpdates
}

// Commit commits tranIndex's transaction and forgets it.
func (m *Manager) Commit(ctx context.Context, tranIndex int) error {
	e := m.take(tranIndex)
	if e == nil {
		return errors.Errorf("logmgr: no open transaction %d", tranIndex)
	}
	return errors.Wrap(e.tx.Commit(ctx), "logmgr: commit failed")
}

// Abort rolls back tranIndex's transaction and forgets it.
func (m *Manager) Abort(ctx context.Context, tranIndex int) error {
	e := m.take(tranIndex)
	if e == nil {
		return nil
	}
	return errors.Wrap(e.tx.Rollback(ctx), "logmgr: rollback failed")
}

// SlamTransaction forcibly rolls back and forgets tranIndex, used to
// evict a client that would not disconnect on its own. Satisfies
// ha.ClientRegistry.
func (m *Manager) SlamTransaction(tranIndex int) error {
	return m.Abort(context.Background(), tranIndex)
}

func (m *Manager) take(tranIndex int) *txnEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.txns[tranIndex]
	if !ok {
		return nil
	}
	delete(m.txns, tranIndex)
	return e
}

// SetInterrupt marks tranIndex interrupted, satisfying
// dispatch.TransactionRegistry.
func (m *Manager) SetInterrupt(tranIndex int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.txns[tranIndex]; ok {
		e.interrupted = true
	}
}

// Interrupted reports tranIndex's interrupt flag.
func (m *Manager) Interrupted(tranIndex int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.txns[tranIndex]
	return ok && e.interrupted
}

// Unregister forgets tranIndex without touching its transaction,
// called once the connection-down drain loop has confirmed no worker
// is still bound to it. Satisfies dispatch.TransactionRegistry.
func (m *Manager) Unregister(tranIndex int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.txns, tranIndex)
}

// ClientInfo looks up the recorded metadata for an open transaction.
func (m *Manager) ClientInfo(tranIndex int) (ClientInfo, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.txns[tranIndex]
	if !ok {
		return ClientInfo{}, false
	}
	return e.client, true
}

// TransactionIndices returns every currently open transaction index,
// satisfying ha.ClientRegistry.
func (m *Manager) TransactionIndices() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	indices := make([]int, 0, len(m.txns))
	for idx := range m.txns {
		indices = append(indices, idx)
	}
	return indices
}

// CountNonMaintenanceClients counts open transactions whose client
// host does not match MaintenanceAllowedHost, satisfying
// ha.ClientRegistry.
func (m *Manager) CountNonMaintenanceClients() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.txns {
		if e.client.Host != m.MaintenanceAllowedHost {
			n++
		}
	}
	return n
}

// IsUpdateAllowed reports the current update-allowed gate.
// dispatch.ModificationGate is satisfied by ModificationEnabled below.
func (m *Manager) IsUpdateAllowed() bool { return m.updatesEnabled.Load() }

// ModificationEnabled is an alias for IsUpdateAllowed matching
// dispatch.ModificationGate's method name exactly.
func (m *Manager) ModificationEnabled() bool { return m.IsUpdateAllowed() }

// EnableUpdates and DisableUpdates implement ha.UpdateGate. The HA
// machine enables updates on promotion to ACTIVE, on entering
// MAINTENANCE, and when HA is disabled, and disables them on demotion.
func (m *Manager) EnableUpdates()  { m.updatesEnabled.Store(true) }
func (m *Manager) DisableUpdates() { m.updatesEnabled.Store(false) }
