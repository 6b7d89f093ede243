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

package logmgr

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

var errFakeCommitFailed = errors.New("fake commit failed")

type fakeTx struct {
	committed  bool
	rolledBack bool
	failCommit bool
}

func (t *fakeTx) Commit(ctx context.Context) error {
	t.committed = true
	if t.failCommit {
		return errFakeCommitFailed
	}
	return nil
}

func (t *fakeTx) Rollback(ctx context.Context) error {
	t.rolledBack = true
	return nil
}

type fakeBeginner struct {
	next func() (Transaction, error)
}

func (b *fakeBeginner) Begin(ctx context.Context) (Transaction, error) {
	if b.next != nil {
		return b.next()
	}
	return &fakeTx{}, nil
}

func TestBeginRecordsClientAndRejectsDuplicateIndex(t *testing.T) {
	m := NewManager(&fakeBeginner{})
	require.NoError(t, m.Begin(context.Background(), 1, ClientInfo{ClientID: 7, Host: "h1"}))

	info, ok := m.ClientInfo(1)
	require.True(t, ok)
	require.Equal(t, 1, info.TranIndex)
	require.Equal(t, 7, info.ClientID)

	err := m.Begin(context.Background(), 1, ClientInfo{ClientID: 8})
	require.Error(t, err)
}

func TestCommitForgetsTransaction(t *testing.T) {
	var tx fakeTx
	m := NewManager(&fakeBeginner{next: func() (Transaction, error) { return &tx, nil }})
	require.NoError(t, m.Begin(context.Background(), 3, ClientInfo{}))

	require.NoError(t, m.Commit(context.Background(), 3))
	require.True(t, tx.committed)
	_, ok := m.ClientInfo(3)
	require.False(t, ok)
}

func TestAbortRollsBackAndForgetsTransaction(t *testing.T) {
	var tx fakeTx
	m := NewManager(&fakeBeginner{next: func() (Transaction, error) { return &tx, nil }})
	require.NoError(t, m.Begin(context.Background(), 3, ClientInfo{}))

	require.NoError(t, m.Abort(context.Background(), 3))
	require.True(t, tx.rolledBack)
	_, ok := m.ClientInfo(3)
	require.False(t, ok)
}

func TestAbortOnUnknownIndexIsNoOp(t *testing.T) {
	m := NewManager(&fakeBeginner{})
	require.NoError(t, m.Abort(context.Background(), 99))
}

func TestCommitOnUnknownIndexErrors(t *testing.T) {
	m := NewManager(&fakeBeginner{})
	require.Error(t, m.Commit(context.Background(), 99))
}

func TestCommitWrapsUnderlyingFailure(t *testing.T) {
	tx := &fakeTx{failCommit: true}
	m := NewManager(&fakeBeginner{next: func() (Transaction, error) { return tx, nil }})
	require.NoError(t, m.Begin(context.Background(), 9, ClientInfo{}))

	err := m.Commit(context.Background(), 9)
	require.ErrorIs(t, err, errFakeCommitFailed)
	_, ok := m.ClientInfo(9)
	require.False(t, ok)
}

func TestHasUpdatesTracksMarkUpdate(t *testing.T) {
	m := NewManager(&fakeBeginner{})
	require.NoError(t, m.Begin(context.Background(), 5, ClientInfo{}))
	require.False(t, m.HasUpdates(5))

	m.MarkUpdate(5)
	require.True(t, m.HasUpdates(5))
}

func TestSetInterruptAndInterrupted(t *testing.T) {
	m := NewManager(&fakeBeginner{})
	require.NoError(t, m.Begin(context.Background(), 2, ClientInfo{}))
	require.False(t, m.Interrupted(2))

	m.SetInterrupt(2)
	require.True(t, m.Interrupted(2))
}

func TestUnregisterForgetsWithoutTouchingTransaction(t *testing.T) {
	var tx fakeTx
	m := NewManager(&fakeBeginner{next: func() (Transaction, error) { return &tx, nil }})
	require.NoError(t, m.Begin(context.Background(), 4, ClientInfo{}))

	m.Unregister(4)
	require.False(t, tx.committed)
	require.False(t, tx.rolledBack)
	_, ok := m.ClientInfo(4)
	require.False(t, ok)
}

func TestSlamTransactionRollsBackAndForgets(t *testing.T) {
	var tx fakeTx
	m := NewManager(&fakeBeginner{next: func() (Transaction, error) { return &tx, nil }})
	require.NoError(t, m.Begin(context.Background(), 6, ClientInfo{}))

	require.NoError(t, m.SlamTransaction(6))
	require.True(t, tx.rolledBack)
}

func TestTransactionIndicesListsAllOpenTransactions(t *testing.T) {
	m := NewManager(&fakeBeginner{})
	require.NoError(t, m.Begin(context.Background(), 1, ClientInfo{}))
	require.NoError(t, m.Begin(context.Background(), 2, ClientInfo{}))

	indices := m.TransactionIndices()
	require.ElementsMatch(t, []int{1, 2}, indices)
}

func TestCountNonMaintenanceClientsExcludesAllowedHost(t *testing.T) {
	m := NewManager(&fakeBeginner{})
	m.MaintenanceAllowedHost = "localhost"
	require.NoError(t, m.Begin(context.Background(), 1, ClientInfo{Host: "localhost"}))
	require.NoError(t, m.Begin(context.Background(), 2, ClientInfo{Host: "10.0.0.5"}))
	require.NoError(t, m.Begin(context.Background(), 3, ClientInfo{Host: "10.0.0.9"}))

	require.Equal(t, 2, m.CountNonMaintenanceClients())
}

func TestUpdateGateStartsDisabledAndToggles(t *testing.T) {
	m := NewManager(&fakeBeginner{})
	require.False(t, m.IsUpdateAllowed())
	require.False(t, m.ModificationEnabled())

	m.EnableUpdates()
	require.True(t, m.IsUpdateAllowed())
	require.True(t, m.ModificationEnabled())

	m.DisableUpdates()
	require.False(t, m.IsUpdateAllowed())
}

func TestTxReturnsStoredTransaction(t *testing.T) {
	var tx fakeTx
	m := NewManager(&fakeBeginner{next: func() (Transaction, error) { return &tx, nil }})
	require.NoError(t, m.Begin(context.Background(), 1, ClientInfo{}))

	got, ok := m.Tx(1)
	require.True(t, ok)
	require.Same(t, &tx, got)

	_, ok = m.Tx(404)
	require.False(t, ok)
}
