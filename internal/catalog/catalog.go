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

// Package catalog is the read-only message-catalog collaborator: a
// fixed mapping from an error kind to the message template sent back
// to a client or written to a log line alongside it.
package catalog

import (
	"fmt"

	"github.com/cubrid-db/server-core/internal/errcode"
)

var messages = map[errcode.Code]string{
	errcode.None:                     "no error",
	errcode.AllocationFailure:        "the server could not allocate a resource needed to service this request",
	errcode.UnknownOpcode:            "unrecognized request opcode %d",
	errcode.UnplannedShutdown:        "the connection was terminated by an unplanned server shutdown",
	errcode.PeerLost:                 "contact with the replication peer was lost",
	errcode.ModificationDisallowed:   "the server does not currently accept updating transactions",
	errcode.AuthorizationDenied:      "this operation requires DBA privilege",
	errcode.WrongServerState:         "the request is not valid in the server's current HA state",
	errcode.Incompatible:             "value of type %s is not compatible with the target type",
	errcode.Overflow:                 "value overflows the target type's range",
	errcode.Truncated:                "value was truncated to fit the target type",
	errcode.InvalidLiteral:           "the supplied literal could not be parsed",
	errcode.IllegalTransition:        "the requested HA state transition is not allowed from the current state",
	errcode.CommuteTimeout:           "the HA commute to the requested state did not complete in time",
	errcode.WorkerExhaustion:         "no worker is available to service this request",
	errcode.TransactionTablePressure: "the transaction table has no free slots",
}

// Message returns the template registered for code, formatted with
// args, or a generic fallback if code is not registered.
func Message(code errcode.Code, args ...any) string {
	tmpl, ok := messages[code]
	if !ok {
		return fmt.Sprintf("unrecognized error code %d", int(code))
	}
	if len(args) == 0 {
		return tmpl
	}
	return fmt.Sprintf(tmpl, args...)
}
