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

package replnode

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/cubrid-db/server-core/internal/util/stopper"
)

type fakeTransport struct {
	mu       sync.Mutex
	calls    []bool // toActive per call
	block    chan struct{}
	failWith error
}

func (f *fakeTransport) Handshake(ctx context.Context, toActive, force bool) error {
	f.mu.Lock()
	f.calls = append(f.calls, toActive)
	f.mu.Unlock()
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return f.failWith
}

func (f *fakeTransport) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func TestStartCommuteToActiveThenWaitSucceeds(t *testing.T) {
	sctx := stopper.WithContext(context.Background())
	defer sctx.Stop()

	transport := &fakeTransport{}
	m := New(sctx, transport)

	require.NoError(t, m.StartCommuteToActive(false))
	require.NoError(t, m.WaitForCommute())
	require.Equal(t, 1, transport.callCount())
}

func TestWaitForCommuteReturnsHandshakeError(t *testing.T) {
	sctx := stopper.WithContext(context.Background())
	defer sctx.Stop()

	wantErr := errors.New("peer refused")
	transport := &fakeTransport{failWith: wantErr}
	m := New(sctx, transport)

	require.NoError(t, m.StartCommuteToStandby(true))
	err := m.WaitForCommute()
	require.ErrorIs(t, err, wantErr)
}

func TestWaitForCommuteBlocksUntilHandshakeFinishes(t *testing.T) {
	sctx := stopper.WithContext(context.Background())
	defer sctx.Stop()

	transport := &fakeTransport{block: make(chan struct{})}
	m := New(sctx, transport)
	require.NoError(t, m.StartCommuteToActive(false))

	done := make(chan error, 1)
	go func() { done <- m.WaitForCommute() }()

	select {
	case <-done:
		t.Fatal("WaitForCommute returned before handshake finished")
	case <-time.After(20 * time.Millisecond):
	}

	close(transport.block)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("WaitForCommute never returned")
	}
}

func TestSecondStartSupersedesFirstAndWaitObservesLatest(t *testing.T) {
	sctx := stopper.WithContext(context.Background())
	defer sctx.Stop()

	block := make(chan struct{})
	transport := &fakeTransport{block: block}
	m := New(sctx, transport)
	require.NoError(t, m.StartCommuteToActive(false))
	require.NoError(t, m.StartCommuteToStandby(false))

	close(block) // let both blocked handshakes finish; only the latest seq sticks

	require.NoError(t, m.WaitForCommute())
	require.Equal(t, 2, transport.callCount())
}

func TestWaitForCommuteUnblocksOnStop(t *testing.T) {
	sctx := stopper.WithContext(context.Background())
	transport := &fakeTransport{block: make(chan struct{})}
	m := New(sctx, transport)
	require.NoError(t, m.StartCommuteToActive(false))

	done := make(chan error, 1)
	go func() { done <- m.WaitForCommute() }()

	sctx.Stop()
	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("WaitForCommute never returned after Stop")
	}
	close(transport.block)
}
