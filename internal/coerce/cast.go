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

package coerce

import (
	"strings"

	"github.com/cubrid-db/server-core/internal/domain"
)

// Status is the outcome of a Cast call.
type Status int

// Cast outcomes. The core four are COMPATIBLE, INCOMPATIBLE, OVERFLOW,
// and ERROR; TRUNCATED additionally covers string-to-number parsing
// that overflows the 63-bit accumulator, or a hex literal with a set
// high nibble. Truncated is kept distinct from Overflow because,
// unlike a plain numeric overflow, a truncated parse still produces a
// saturated, usable value rather than an invalid one.
const (
	Compatible Status = iota
	Incompatible
	Overflow
	ErrorStatus
	Truncated
)

// Mode selects whether explicit-only coercions are permitted.
type Mode int

// Cast modes.
const (
	Implicit Mode = iota
	Explicit
)

// Options adjusts Cast's behavior on failure and for parsing.
type Options struct {
	// PreserveDomain requests that, on INCOMPATIBLE, the returned
	// Value still carries the target domain (NULL-of-target-domain)
	// instead of being left untouched.
	PreserveDomain bool
}

// implicitOnlyExplicit lists (source, target) kind pairs that Cast
// only allows when Mode is Explicit.
var implicitOnlyExplicit = map[[2]domain.Kind]bool{
	{domain.Varchar, domain.Blob}: true,
	{domain.Char, domain.Blob}:    true,
	{domain.Varchar, domain.Clob}: true,
	{domain.Blob, domain.Varchar}: true,
	{domain.Bit, domain.Varchar}:  true,
}

// Cast computes a target-domain value from a source-domain value. It
// never panics and never returns a Go error: all failure is
// communicated through Status.
func Cast(src Value, target *domain.Domain, mode Mode, opts Options) (Value, Status) {
	if target == nil {
		return Value{}, ErrorStatus
	}

	// NULL in => NULL out, status=COMPATIBLE; domain is still
	// initialized on dest.
	if src.Null {
		return NewNull(target), Compatible
	}

	// Same canonical domain (identity only; the kind is not checked) =>
	// clone only.
	if src.SameIdentity(target) {
		return src.Clone(), Compatible
	}

	if mode == Implicit && implicitOnlyExplicit[[2]domain.Kind{src.Dom.Kind, target.Kind}] {
		return failValue(target, opts), Incompatible
	}

	// Parameterized same-kind cast with enough room at the
	// destination: steal the existing bytes instead of copying.
	if src.Dom != nil && src.Dom.Kind == target.Kind && target.Precision >= src.byteLen() &&
		(target.Kind.IsVariableLengthString() || target.Kind.IsFixedLengthString()) {
		if collationCompatible(src.Dom, target) {
			out := src.Clone()
			out.Dom = target
			return out, Compatible
		}
	}

	switch {
	case target.Kind.IsNumeric():
		return castToNumeric(src, target, opts)
	case isStringKind(target.Kind):
		return castToString(src, target, mode, opts)
	case target.Kind == domain.Enumeration:
		return castToEnum(src, target, opts)
	case isDateTimeKind(target.Kind):
		return castToDateTime(src, target, opts)
	case target.Kind == domain.Bit || target.Kind == domain.VarBit:
		return castToBit(src, target, opts)
	case target.Kind == domain.Set || target.Kind == domain.Multiset || target.Kind == domain.Sequence:
		return castToCollection(src, target, mode, opts)
	case target.Kind == domain.Blob || target.Kind == domain.Clob:
		return castToLOB(src, target, opts)
	default:
		return failValue(target, opts), Incompatible
	}
}

// castToLOB copies a string's bytes into a blob/clob value. The
// implicit-mode rejection happened earlier; reaching here means the
// caller asked for the conversion explicitly.
func castToLOB(src Value, target *domain.Domain, opts Options) (Value, Status) {
	switch {
	case src.Dom == nil:
		return failValue(target, opts), Incompatible
	case isStringKind(src.Dom.Kind):
		return Value{Dom: target, Bin: []byte(src.Str)}, Compatible
	case src.Dom.Kind == domain.Blob || src.Dom.Kind == domain.Clob:
		out := src.Clone()
		out.Dom = target
		return out, Compatible
	default:
		return failValue(target, opts), Incompatible
	}
}

func failValue(target *domain.Domain, opts Options) Value {
	if opts.PreserveDomain {
		return NewNull(target)
	}
	return Value{Null: true}
}

// isStringKind reports whether k is a character-string kind. Bit and
// VarBit are excluded: they carry bytes in Bin and cross-cast to and
// from character strings through hex pairs (castToBit, bitToChar).
func isStringKind(k domain.Kind) bool {
	if k == domain.Bit || k == domain.VarBit {
		return false
	}
	return k.IsVariableLengthString() || k.IsFixedLengthString()
}

func isDateTimeKind(k domain.Kind) bool {
	switch k {
	case domain.Date, domain.Time, domain.TimeTZ, domain.TimeLTZ,
		domain.Timestamp, domain.TimestampTZ, domain.TimestampLTZ,
		domain.Datetime, domain.DatetimeTZ, domain.DatetimeLTZ:
		return true
	default:
		return false
	}
}

// collationCompatible applies the collation-matching rule that gates
// the steal-string fast path: collations must match exactly unless
// the target's collation flag is LEAVE.
func collationCompatible(src, target *domain.Domain) bool {
	if target.CollationFlag == domain.CollationLeave {
		return true
	}
	return strings.EqualFold(src.Collation, target.Collation)
}
