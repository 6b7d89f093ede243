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

// Package replnode drives the handshake with a replication peer that
// the HA state machine needs to complete a commute to ACTIVE or
// STANDBY: a commute is started asynchronously and its result is
// published through a notify.Var so any number of WaitForCommute
// callers observe the same outcome without polling.
package replnode

import (
	"context"

	"github.com/pkg/errors"

	"github.com/cubrid-db/server-core/internal/util/notify"
	"github.com/cubrid-db/server-core/internal/util/stopper"
)

// PeerTransport performs the actual handshake with the replication
// peer. A production implementation speaks whatever wire protocol the
// peer's HA listener expects; tests supply a fake.
type PeerTransport interface {
	Handshake(ctx context.Context, toActive, force bool) error
}

type commuteState struct {
	seq     int64
	running bool
	err     error
}

var errSuperseded = errors.New("replnode: commute superseded by a newer request")

// Manager tracks the single in-flight commute this node is driving
// against its peer, satisfying ha.Replicator.
type Manager struct {
	ctx       *stopper.Context
	transport PeerTransport
	state     *notify.Var[commuteState]
}

// New returns a Manager that runs its handshake goroutines under ctx,
// through transport.
func New(ctx *stopper.Context, transport PeerTransport) *Manager {
	return &Manager{ctx: ctx, transport: transport, state: notify.New(commuteState{})}
}

func (m *Manager) start(toActive, force bool) error {
	var mySeq int64
	if err := m.state.Update(func(cur commuteState) (commuteState, error) {
		mySeq = cur.seq + 1
		return commuteState{seq: mySeq, running: true}, nil
	}); err != nil {
		return err
	}

	m.ctx.Go(func() error {
		herr := m.transport.Handshake(m.ctx, toActive, force)
		_ = m.state.Update(func(cur commuteState) (commuteState, error) {
			if cur.seq != mySeq {
				// A newer commute request has already superseded this
				// one; drop the result instead of clobbering it.
				return cur, errSuperseded
			}
			return commuteState{seq: mySeq, running: false, err: herr}, nil
		})
		return nil
	})
	return nil
}

// StartCommuteToActive begins a handshake asking the peer to treat
// this node as the new primary.
func (m *Manager) StartCommuteToActive(force bool) error {
	return m.start(true, force)
}

// StartCommuteToStandby begins a handshake asking the peer to take
// over as primary.
func (m *Manager) StartCommuteToStandby(force bool) error {
	return m.start(false, force)
}

// WaitForCommute blocks until the most recently started commute
// finishes, returning its result.
func (m *Manager) WaitForCommute() error {
	for {
		cur, wakeup := m.state.Get()
		if !cur.running {
			return cur.err
		}
		select {
		case <-wakeup:
		case <-m.ctx.Stopping():
			return m.ctx.Err()
		}
	}
}
