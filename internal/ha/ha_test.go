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

package ha

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTransitTableMatchesEveryAllowedRow(t *testing.T) {
	cases := []struct {
		cur, req, next State
	}{
		{Idle, Active, Active},
		{Idle, Standby, ToBeStandby},
		{Idle, Maintenance, Maintenance},
		{Active, Active, Active},
		{Active, Standby, ToBeStandby},
		{ToBeActive, Active, Active},
		{Standby, Standby, Standby},
		{Standby, Active, ToBeActive},
		{Standby, Maintenance, Maintenance},
		{ToBeStandby, Standby, Standby},
		{Maintenance, Standby, ToBeStandby},
	}
	for _, c := range cases {
		require.Equal(t, c.next, Transit(c.cur, c.req), "cur=%s req=%s", c.cur, c.req)
	}
}

func TestTransitRejectsUnlistedPairs(t *testing.T) {
	require.Equal(t, NA, Transit(Idle, ToBeActive))
	require.Equal(t, NA, Transit(Dead, Active))
	require.Equal(t, NA, Transit(Maintenance, Active))
}

type fakeReplicator struct {
	mu                sync.Mutex
	commutedToActive  bool
	commutedToStandby bool
	forcedActive      bool
	forcedStandby     bool
	waitErr, startErr error
}

func (f *fakeReplicator) StartCommuteToActive(force bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commutedToActive = true
	f.forcedActive = force
	return f.startErr
}

func (f *fakeReplicator) StartCommuteToStandby(force bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commutedToStandby = true
	f.forcedStandby = force
	return f.startErr
}

func (f *fakeReplicator) WaitForCommute() error {
	return f.waitErr
}

type fakeUpdateGate struct {
	mu               sync.Mutex
	enabled, toggled bool
}

func (g *fakeUpdateGate) EnableUpdates() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.enabled = true
	g.toggled = true
}

func (g *fakeUpdateGate) DisableUpdates() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.enabled = false
	g.toggled = true
}

func (g *fakeUpdateGate) Enabled() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.enabled
}

type fakeWorkerWaker struct {
	mu    sync.Mutex
	woken bool
}

func (w *fakeWorkerWaker) WakeAdditionalWorkers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.woken = true
}

func (w *fakeWorkerWaker) Woken() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.woken
}

func TestChangeStateIgnoresRequestForCurrentState(t *testing.T) {
	m := New(Active, MaintenanceConfig{})
	require.NoError(t, m.ChangeState(Active, false, false))
	require.Equal(t, Active, m.State())
}

func TestChangeStateNonForcedCommutesToActiveAsynchronously(t *testing.T) {
	repl := &fakeReplicator{}
	updates := &fakeUpdateGate{}
	waker := &fakeWorkerWaker{}
	m := New(Standby, MaintenanceConfig{})
	m.Replication = repl
	m.Updates = updates
	m.Workers = waker

	require.NoError(t, m.ChangeState(Active, false, true))
	require.Equal(t, ToBeActive, m.State())

	require.Eventually(t, func() bool { return m.State() == Active }, time.Second, time.Millisecond)
	require.True(t, updates.Enabled())
	require.True(t, waker.Woken())
	require.False(t, m.PromotedAt().IsZero())
}

func TestChangeStateHADisabledCommutesToActiveSynchronously(t *testing.T) {
	updates := &fakeUpdateGate{}
	m := New(Standby, MaintenanceConfig{})
	m.HADisabled = true
	m.Updates = updates

	require.NoError(t, m.ChangeState(Active, false, true))
	require.Equal(t, Active, m.State())
	require.True(t, updates.Enabled())
}

func TestChangeStateNonForcedCommutesToStandby(t *testing.T) {
	repl := &fakeReplicator{}
	updates := &fakeUpdateGate{}
	m := New(Active, MaintenanceConfig{})
	m.Replication = repl
	m.Updates = updates

	require.NoError(t, m.ChangeState(Standby, false, true))
	require.Equal(t, ToBeStandby, m.State())

	require.Eventually(t, func() bool { return m.State() == Standby }, time.Second, time.Millisecond)
	require.False(t, updates.Enabled())
	require.True(t, updates.toggled)
}

func TestChangeStateRejectsIllegalNonForcedRequest(t *testing.T) {
	m := New(Idle, MaintenanceConfig{})
	err := m.ChangeState(ToBeActive, false, true)
	require.Error(t, err)
	require.Equal(t, Idle, m.State())
}

func TestChangeStateHeartbeatGateBlocksUnrelatedTransition(t *testing.T) {
	m := New(Active, MaintenanceConfig{})
	require.NoError(t, m.ChangeState(Maintenance, false, false))
	require.Equal(t, Active, m.State())
}

func TestForceChangeStateBypassesIntermediateAndWakesWorkers(t *testing.T) {
	repl := &fakeReplicator{}
	waker := &fakeWorkerWaker{}
	m := New(Standby, MaintenanceConfig{})
	m.Replication = repl
	m.Workers = waker

	require.NoError(t, m.ChangeState(Active, true, true))
	require.Equal(t, Active, m.State())
	require.True(t, repl.forcedActive)
	require.True(t, waker.Woken())
	require.False(t, m.PromotedAt().IsZero())
}

func TestForceChangeStateDirectSetForOtherStates(t *testing.T) {
	m := New(Standby, MaintenanceConfig{})
	require.NoError(t, m.ChangeState(Dead, true, true))
	require.Equal(t, Dead, m.State())
}

func TestForceChangeStateTogglesUpdateGate(t *testing.T) {
	repl := &fakeReplicator{}
	updates := &fakeUpdateGate{}
	m := New(Standby, MaintenanceConfig{})
	m.Replication = repl
	m.Updates = updates

	require.NoError(t, m.ChangeState(Active, true, true))
	require.True(t, updates.Enabled())

	require.NoError(t, m.ChangeState(Standby, true, true))
	require.False(t, updates.Enabled())
	require.True(t, repl.forcedStandby)
}

func TestForceChangeStateRepeatedIsNoOp(t *testing.T) {
	repl := &fakeReplicator{}
	m := New(Standby, MaintenanceConfig{})
	m.Replication = repl

	require.NoError(t, m.ChangeState(Active, true, true))
	promoted := m.PromotedAt()
	require.NoError(t, m.ChangeState(Active, true, true))
	require.Equal(t, Active, m.State())
	require.Equal(t, promoted, m.PromotedAt())
}

func TestNonHeartbeatRequestIgnoredOutsideMaintenancePair(t *testing.T) {
	m := New(Standby, MaintenanceConfig{})
	require.NoError(t, m.ChangeState(Active, false, false))
	require.Equal(t, Standby, m.State())
}

type fakeClientRegistry struct {
	mu        sync.Mutex
	remaining int
	indices   []int
	killed    []int
}

func (c *fakeClientRegistry) CountNonMaintenanceClients() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}

func (c *fakeClientRegistry) TransactionIndices() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int(nil), c.indices...)
}

func (c *fakeClientRegistry) SlamTransaction(tranIndex int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.killed = append(c.killed, tranIndex)
	c.remaining--
	return nil
}

type fakeBootStatus struct {
	mu              sync.Mutex
	maintenance, up bool
}

func (b *fakeBootStatus) SetUp() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.up = true
}

func (b *fakeBootStatus) SetMaintenance() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maintenance = true
}

func TestEnterMaintenanceKillsRemainingClientsExceptSystemTransaction(t *testing.T) {
	updates := &fakeUpdateGate{}
	boot := &fakeBootStatus{}
	clients := &fakeClientRegistry{remaining: 2, indices: []int{0, 1, 2}}

	m := New(Standby, MaintenanceConfig{PollInterval: time.Millisecond, Timeout: 5 * time.Millisecond, KillSettleDelay: time.Millisecond})
	m.Updates = updates
	m.Boot = boot
	m.Clients = clients
	m.SetPeerCount(2)

	require.NoError(t, m.ChangeState(Maintenance, false, true))
	require.Equal(t, Maintenance, m.State())
	require.True(t, updates.Enabled())
	require.True(t, boot.maintenance)
	require.Equal(t, []int{1, 2}, clients.killed)
}

func TestEnterMaintenanceLoneNodeSkipsDisconnectWait(t *testing.T) {
	clients := &fakeClientRegistry{remaining: 1, indices: []int{1}}
	m := New(Standby, MaintenanceConfig{PollInterval: time.Second, Timeout: time.Minute, KillSettleDelay: time.Millisecond})
	m.Clients = clients
	m.SetPeerCount(1)

	start := time.Now()
	require.NoError(t, m.ChangeState(Maintenance, false, true))
	require.Less(t, time.Since(start), 500*time.Millisecond)
	require.Equal(t, []int{1}, clients.killed)
}

func TestEnterMaintenanceSkipsKillLoopWhenClientsAlreadyGone(t *testing.T) {
	clients := &fakeClientRegistry{remaining: 0}
	m := New(Standby, MaintenanceConfig{PollInterval: time.Millisecond, Timeout: 5 * time.Millisecond})
	m.Clients = clients
	m.SetPeerCount(2)

	require.NoError(t, m.ChangeState(Maintenance, false, true))
	require.Empty(t, clients.killed)
}

func TestPeerCountAndReplDelayedAccessors(t *testing.T) {
	m := New(Idle, MaintenanceConfig{})
	require.Equal(t, 1, m.PeerCount())
	m.SetPeerCount(3)
	require.Equal(t, 3, m.PeerCount())

	require.False(t, m.ReplDelayed())
	m.SetReplDelayed(true)
	require.True(t, m.ReplDelayed())
}
