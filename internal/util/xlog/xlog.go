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

// Package xlog centralizes the logrus fields every request-scoped log
// line carries, so that its callers (the worker pool) don't each
// reinvent the field names. Dispatch and HA code log through logrus
// directly.
package xlog

import log "github.com/sirupsen/logrus"

// Fields builds a logrus.Fields populated with the request-identifying
// triple used throughout the dispatcher and worker pool.
func Fields(clientID, tranIndex int, opcode string) log.Fields {
	return log.Fields{
		"client_id":  clientID,
		"tran_index": tranIndex,
		"opcode":     opcode,
	}
}

// For returns a *log.Entry pre-populated with the request-identifying
// triple, ready for .Info/.Warn/.Debug/.Error.
func For(clientID, tranIndex int, opcode string) *log.Entry {
	return log.WithFields(Fields(clientID, tranIndex, opcode))
}
