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

// Package coerce implements the value coercion engine: casting a Value
// from one Domain to another with truncation/overflow/error outcomes.
package coerce

import (
	"time"

	"github.com/cubrid-db/server-core/internal/domain"
)

// Value is a tagged union carrying a base-kind payload plus a
// reference to the Domain that describes it. The zero Value is NULL.
type Value struct {
	Dom  *domain.Domain
	Null bool

	I64 int64     // short, int, bigint, enum index, OID
	F64 float64   // float, double, numeric, monetary
	Str string    // char, varchar, nchar, varnchar
	Bin []byte    // bit, varbit, blob, clob
	At  time.Time // date, time, timestamp, datetime families

	Elements []Value // set, multiset, sequence, midxkey
}

// NewNull returns a NULL value already carrying the given domain: NULL
// in yields NULL out with the destination domain attached.
func NewNull(d *domain.Domain) Value {
	return Value{Dom: d, Null: true}
}

// SameIdentity reports whether v's domain and target are the same
// canonical pointer. Cast treats same identity, whatever the kind, as
// a clone only.
func (v Value) SameIdentity(target *domain.Domain) bool {
	return v.Dom == target
}

// byteLen approximates the source byte length used when deciding
// whether an in-place reinterpretation ("steal-string") is legal.
func (v Value) byteLen() int {
	switch {
	case v.Bin != nil:
		return len(v.Bin)
	default:
		return len(v.Str)
	}
}

// Clone returns a shallow copy of v; used whenever the engine decides
// no conversion work is required.
func (v Value) Clone() Value {
	out := v
	if v.Bin != nil {
		out.Bin = append([]byte(nil), v.Bin...)
	}
	if v.Elements != nil {
		out.Elements = append([]Value(nil), v.Elements...)
	}
	return out
}
