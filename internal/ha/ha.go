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

// Package ha mediates between the local database's read/write
// capability and its replication peer role: the server-state machine,
// its transition table, the two-phase commute to ACTIVE/STANDBY, the
// forced single-phase transition, and the MAINTENANCE client-eviction
// loop.
package ha

import (
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/pkg/errors"

	"github.com/cubrid-db/server-core/internal/metrics"
)

// State is the server's position in the HA state machine.
type State int

// Server states.
const (
	Idle State = iota
	Active
	ToBeActive
	Standby
	ToBeStandby
	Maintenance
	Dead
	NA
)

// String renders the state the way it appears in log lines and error
// messages.
func (s State) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case Active:
		return "ACTIVE"
	case ToBeActive:
		return "TO_BE_ACTIVE"
	case Standby:
		return "STANDBY"
	case ToBeStandby:
		return "TO_BE_STANDBY"
	case Maintenance:
		return "MAINTENANCE"
	case Dead:
		return "DEAD"
	case NA:
		return "NA"
	default:
		return "UNKNOWN"
	}
}

type transitionKey struct{ From, Request State }

// transitions is the literal allowed-transition table: (current,
// requested) -> next. Any pair absent from this map is illegal.
var transitions = map[transitionKey]State{
	{Idle, Active}:         Active,
	{Idle, Standby}:        ToBeStandby,
	{Idle, Maintenance}:    Maintenance,
	{Active, Active}:       Active,
	{Active, Standby}:      ToBeStandby,
	{ToBeActive, Active}:   Active,
	{Standby, Standby}:     Standby,
	{Standby, Active}:      ToBeActive,
	{Standby, Maintenance}: Maintenance,
	{ToBeStandby, Standby}: Standby,
	{Maintenance, Standby}: ToBeStandby,
}

// Transit looks up the allowed-transition table for (cur, req) and
// returns the next state, or NA if the pair is not listed. It is a
// pure function: it never mutates a Machine, so the table itself can
// be exercised directly without any collaborator wiring.
func Transit(cur, req State) State {
	if next, ok := transitions[transitionKey{cur, req}]; ok {
		return next
	}
	return NA
}

var errIllegalTransition = errors.New("ha: illegal state transition")

// Replicator is the replication node manager's commute interface: it
// starts an asynchronous role change and reports when it has landed.
type Replicator interface {
	StartCommuteToActive(force bool) error
	StartCommuteToStandby(force bool) error
	WaitForCommute() error
}

// UpdateGate enables or disables updating transactions, consulted by
// the dispatcher's CHECK_MODIFICATION attribute.
type UpdateGate interface {
	EnableUpdates()
	DisableUpdates()
}

// BootStatus reflects the process-wide boot status flag, flipped to
// MAINTENANCE and back to UP around a maintenance-mode excursion.
type BootStatus interface {
	SetUp()
	SetMaintenance()
}

// ClientRegistry is the log manager's transaction-table view the
// MAINTENANCE client-eviction loop needs: how many non-maintenance
// clients remain, which transaction indices are live, and how to kill
// one by force.
type ClientRegistry interface {
	CountNonMaintenanceClients() int
	TransactionIndices() []int
	SlamTransaction(tranIndex int) error
}

// WorkerWaker wakes additional worker threads after a forced
// transition to ACTIVE, so a post-failover request flood is not stuck
// waiting on a pool sized for the demoted role.
type WorkerWaker interface {
	WakeAdditionalWorkers()
}

// MaintenanceConfig paces the MAINTENANCE transition's wait-for-
// disconnect loop and its post-kill settle delay.
type MaintenanceConfig struct {
	PollInterval    time.Duration
	Timeout         time.Duration
	KillSettleDelay time.Duration
}

func (c MaintenanceConfig) withDefaults() MaintenanceConfig {
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.KillSettleDelay <= 0 {
		c.KillSettleDelay = 2 * time.Second
	}
	return c
}

// Machine holds the single process-wide HA state plus the
// collaborators its transitions drive. A plain sync.Mutex protects
// state: every method that needs the lock acquires and releases it in
// one call rather than calling back into another locking method, so
// no re-entrant lock is needed.
type Machine struct {
	mu         sync.Mutex
	state      State
	peerCount  int
	promotedAt time.Time

	replDelayed atomic.Bool

	// HADisabled marks a standalone deployment: ACTIVE is reached by
	// enabling updates and setting the state directly instead of
	// waiting on a replication commute.
	HADisabled bool

	Replication Replicator
	Updates     UpdateGate
	Boot        BootStatus
	Clients     ClientRegistry
	Workers     WorkerWaker

	maintenance MaintenanceConfig
}

// New returns a Machine in initial, with peer count defaulted to 1
// (standalone) until SetPeerCount reports otherwise.
func New(initial State, cfg MaintenanceConfig) *Machine {
	return &Machine{
		state:       initial,
		peerCount:   1,
		maintenance: cfg.withDefaults(),
	}
}

// State returns the current server state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// PeerCount returns the configured HA peer count.
func (m *Machine) PeerCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.peerCount
}

// SetPeerCount updates the HA peer count, consulted by the
// MAINTENANCE transition to decide whether a lone node may skip
// waiting for peers to disconnect.
func (m *Machine) SetPeerCount(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.peerCount = n
}

// ReplDelayed reports whether the replication node manager last
// reported the node as lagging its peer.
func (m *Machine) ReplDelayed() bool { return m.replDelayed.Load() }

// SetReplDelayed is called by the replication-node-manager adapter to
// publish its current lag assessment.
func (m *Machine) SetReplDelayed(v bool) { m.replDelayed.Store(v) }

// PromotedAt returns the timestamp of the most recent transition that
// landed on ACTIVE, zero if the node has never been ACTIVE.
func (m *Machine) PromotedAt() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.promotedAt
}

// transitLocked applies Transit(cur, req) under the lock, updating the
// state (and, if the landed state is ACTIVE, the promotion timestamp)
// in the same critical section. It is the only place Machine mutates
// state outside of a direct force-set.
func (m *Machine) transitLocked(req State) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur := m.state
	next := Transit(cur, req)
	if next == NA {
		metrics.IncHAIllegalTransition()
		return NA
	}
	m.state = next
	if next == Active {
		m.promotedAt = time.Now()
	}
	metrics.IncHATransition(cur.String(), next.String())
	return next
}

func (m *Machine) setStateDirect(s State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur := m.state
	m.state = s
	if s == Active {
		m.promotedAt = time.Now()
	}
	metrics.IncHATransition(cur.String(), s.String())
}

// ChangeState runs a state-change request: the early-return fast
// paths, the heartbeat gate, the force/non-force branch, and
// per-target-state handling.
func (m *Machine) ChangeState(req State, force, heartbeat bool) error {
	cur := m.State()

	if req == cur ||
		(!force && cur == ToBeActive && req == Active) ||
		(!force && cur == ToBeStandby && req == Standby) {
		return nil
	}
	if !heartbeat &&
		!(cur == Standby && req == Maintenance) &&
		!(cur == Maintenance && req == Standby) &&
		!(force && cur == ToBeActive && req == Active) {
		return nil
	}

	if force {
		return m.forceChangeState(req)
	}

	switch req {
	case Active:
		return m.commuteToActive()
	case Standby:
		return m.commuteToStandby()
	case Maintenance:
		return m.enterMaintenance()
	default:
		return errors.Wrapf(errIllegalTransition, "request=%s", req)
	}
}

func (m *Machine) commuteToActive() error {
	next := m.transitLocked(Active)
	if next == NA {
		return errors.Wrapf(errIllegalTransition, "cannot transit to %s", Active)
	}
	if next == Active {
		// Already landed via TO-BE-ACTIVE -> ACTIVE.
		return nil
	}

	if m.HADisabled {
		if m.Updates != nil {
			m.Updates.EnableUpdates()
		}
		m.transitLocked(Active)
		return nil
	}

	if m.Replication != nil {
		go m.finishCommuteToActive()
	}
	return nil
}

func (m *Machine) finishCommuteToActive() {
	if err := m.Replication.StartCommuteToActive(false); err != nil {
		log.WithError(err).Warn("ha: commute to active failed to start")
		return
	}
	if err := m.Replication.WaitForCommute(); err != nil {
		log.WithError(err).Warn("ha: commute to active did not complete")
		return
	}
	if m.transitLocked(Active) != Active {
		return
	}
	if m.Updates != nil {
		m.Updates.EnableUpdates()
	}
	if m.Workers != nil {
		m.Workers.WakeAdditionalWorkers()
	}
}

func (m *Machine) commuteToStandby() error {
	wasMaintenance := m.State() == Maintenance

	next := m.transitLocked(Standby)
	if next == NA {
		return errors.Wrapf(errIllegalTransition, "cannot transit to %s", Standby)
	}

	if next == ToBeStandby && m.Replication != nil {
		go m.finishCommuteToStandby()
	}

	if wasMaintenance && m.Boot != nil {
		m.Boot.SetUp()
	}
	return nil
}

func (m *Machine) finishCommuteToStandby() {
	if err := m.Replication.StartCommuteToStandby(false); err != nil {
		log.WithError(err).Warn("ha: commute to standby failed to start")
		return
	}
	if err := m.Replication.WaitForCommute(); err != nil {
		log.WithError(err).Warn("ha: commute to standby did not complete")
		return
	}
	if m.transitLocked(Standby) != Standby {
		return
	}
	if m.Updates != nil {
		m.Updates.DisableUpdates()
	}
}

// enterMaintenance transits to MAINTENANCE, grants updates, flips the
// boot status, then waits (unless this is a lone node) for
// non-maintenance clients to disconnect on their own before killing
// whatever remains by transaction index, T=0 excluded.
func (m *Machine) enterMaintenance() error {
	next := m.transitLocked(Maintenance)
	if next == NA {
		return errors.Wrapf(errIllegalTransition, "cannot transit to %s", Maintenance)
	}

	if next == Maintenance {
		if m.Updates != nil {
			m.Updates.EnableUpdates()
		}
		if m.Boot != nil {
			m.Boot.SetMaintenance()
		}
	}

	if m.Clients == nil {
		return nil
	}

	if m.PeerCount() > 1 {
		deadline := time.Now().Add(m.maintenance.Timeout)
		for time.Now().Before(deadline) {
			if m.Clients.CountNonMaintenanceClients() == 0 {
				return nil
			}
			time.Sleep(m.maintenance.PollInterval)
		}
	}

	if m.Clients.CountNonMaintenanceClients() == 0 {
		return nil
	}

	for _, tranIndex := range m.Clients.TransactionIndices() {
		if tranIndex == 0 {
			// T=0 is the system transaction; never killed.
			continue
		}
		if err := m.Clients.SlamTransaction(tranIndex); err != nil {
			log.WithError(err).WithField("tran_index", tranIndex).
				Warn("ha: failed to kill client transaction during maintenance transition")
		}
	}
	time.Sleep(m.maintenance.KillSettleDelay)
	return nil
}

// forceChangeState bypasses the intermediate TO-BE-* states entirely:
// it drives (or, with HA disabled, fabricates) the commute in one
// phase, sets the target state directly, and on landing ACTIVE records
// the promotion timestamp and wakes additional workers.
func (m *Machine) forceChangeState(req State) error {
	if m.State() == req {
		return nil
	}

	switch req {
	case Active:
		if !m.HADisabled && m.Replication != nil {
			if err := m.Replication.StartCommuteToActive(true); err != nil {
				return errors.Wrap(err, "ha: forced commute to active failed to start")
			}
			if err := m.Replication.WaitForCommute(); err != nil {
				return errors.Wrap(err, "ha: forced commute to active did not complete")
			}
		}
		m.setStateDirect(Active)
		if m.Updates != nil {
			m.Updates.EnableUpdates()
		}
	case Standby:
		if m.Replication != nil {
			if err := m.Replication.StartCommuteToStandby(true); err != nil {
				return errors.Wrap(err, "ha: forced commute to standby failed to start")
			}
			if err := m.Replication.WaitForCommute(); err != nil {
				return errors.Wrap(err, "ha: forced commute to standby did not complete")
			}
		}
		m.setStateDirect(Standby)
		if m.Updates != nil {
			m.Updates.DisableUpdates()
		}
	default:
		m.setStateDirect(req)
	}

	if m.State() == Active && m.Workers != nil {
		m.Workers.WakeAdditionalWorkers()
	}
	return nil
}
