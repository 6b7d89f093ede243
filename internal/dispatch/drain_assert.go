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

//go:build debugassert

package dispatch

import log "github.com/sirupsen/logrus"

// onDrainExhausted asserts in a debug build: the bound worker count is
// expected to reach zero within the retry budget, and a debug build
// fails loudly instead of degrading silently into production's
// log-and-continue.
func onDrainExhausted(tranIndex, clientID int) {
	log.WithField("tran_index", tranIndex).WithField("client_id", clientID).
		Error("dispatch: connection drain exhausted its pass budget")
	panic("dispatch: connection drain exhausted its pass budget")
}
