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

package methodpool

import (
	"context"
	"math/rand"
	"net"

	"github.com/pkg/errors"
)

// NetDialer dials the method-invocation satellite process over a
// fixed network/address pair.
type NetDialer struct {
	Network string
	Address string
	Dialer  net.Dialer
}

// Dial connects to Address over Network.
func (d *NetDialer) Dial(ctx context.Context) (net.Conn, error) {
	return d.Dialer.DialContext(ctx, d.Network, d.Address)
}

// ErrChaos is returned by ChaosDialer in place of a real dial failure.
var ErrChaos = errors.New("methodpool: chaos")

// ChaosDialer wraps a Dialer and injects dial failures at random, so
// the pool's reconnect-in-place path can be exercised without a real
// flaky satellite process.
type ChaosDialer struct {
	Delegate Dialer
	Prob     float32
}

// Dial fails with ErrChaos with probability Prob, otherwise delegates.
func (d *ChaosDialer) Dial(ctx context.Context) (net.Conn, error) {
	if d.Prob > 0 && rand.Float32() < d.Prob {
		return nil, errors.WithMessage(ErrChaos, "dial")
	}
	return d.Delegate.Dial(ctx)
}
