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

package main

import "context"

// noopTransport is the replnode.PeerTransport used when no peer host
// is configured: every commute lands immediately, matching a
// standalone (non-HA) deployment.
type noopTransport struct{}

func (noopTransport) Handshake(ctx context.Context, toActive, force bool) error {
	return nil
}
