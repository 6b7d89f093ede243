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

//go:build !debugassert

package dispatch

import log "github.com/sirupsen/logrus"

// onDrainExhausted logs and lets the caller proceed in a production
// build: it does not panic the serving goroutine over a connection
// that could not be fully drained in its pass budget.
func onDrainExhausted(tranIndex, clientID int) {
	log.WithField("tran_index", tranIndex).WithField("client_id", clientID).
		Error("dispatch: connection drain exhausted its pass budget, forcing free")
}
