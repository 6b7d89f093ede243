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

// Package errcode defines the client-visible error kinds the core can
// report, independent of the Go error wrapping (github.com/pkg/errors)
// used internally to carry stack traces and causes.
package errcode

// Code identifies the kind of error reported to a client in an error
// frame: small, comparable, and switchable without string matching.
type Code int

// Error kinds produced by the core, grouped by subsystem.
const (
	// None indicates success; never placed on an error frame.
	None Code = iota

	// Transport errors.
	AllocationFailure
	UnknownOpcode
	UnplannedShutdown
	PeerLost

	// Policy errors.
	ModificationDisallowed
	AuthorizationDenied
	WrongServerState

	// Coercion errors.
	Incompatible
	Overflow
	Truncated
	InvalidLiteral

	// HA errors.
	IllegalTransition
	CommuteTimeout

	// Resource errors.
	WorkerExhaustion
	TransactionTablePressure
)

// WithError pairs a Code with the wrapped cause, so the dispatcher
// epilogue can pick a wire error code without re-parsing an error
// string.
type WithError struct {
	Code  Code
	Cause error
}

func (e *WithError) Error() string {
	if e.Cause == nil {
		return e.Code.String()
	}
	return e.Code.String() + ": " + e.Cause.Error()
}

func (e *WithError) Unwrap() error { return e.Cause }

// New attaches a Code to an existing error.
func New(code Code, cause error) *WithError {
	return &WithError{Code: code, Cause: cause}
}

// String renders a human-readable name for the code; used both in log
// lines and in the DBA_ONLY-style text sent to clients.
func (c Code) String() string {
	switch c {
	case None:
		return "NONE"
	case AllocationFailure:
		return "ALLOCATION_FAILURE"
	case UnknownOpcode:
		return "UNKNOWN_OPCODE"
	case UnplannedShutdown:
		return "UNPLANNED_SHUTDOWN"
	case PeerLost:
		return "PEER_LOST"
	case ModificationDisallowed:
		return "MODIFICATION_DISALLOWED"
	case AuthorizationDenied:
		return "DBA_ONLY"
	case WrongServerState:
		return "WRONG_SERVER_STATE"
	case Incompatible:
		return "INCOMPATIBLE"
	case Overflow:
		return "OVERFLOW"
	case Truncated:
		return "TRUNCATED"
	case InvalidLiteral:
		return "INVALID_LITERAL"
	case IllegalTransition:
		return "ILLEGAL_TRANSITION"
	case CommuteTimeout:
		return "COMMUTE_TIMEOUT"
	case WorkerExhaustion:
		return "WORKER_EXHAUSTION"
	case TransactionTablePressure:
		return "TRANSACTION_TABLE_PRESSURE"
	default:
		return "UNKNOWN"
	}
}
