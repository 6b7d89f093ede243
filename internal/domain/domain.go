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

// Package domain implements the canonical, interned type-descriptor
// registry. Every value that crosses the dispatcher or the coercion
// engine carries a pointer to one of these canonical Domains, so that
// domain equality reduces to pointer identity.
package domain

import "fmt"

// Kind enumerates the base types a Domain can describe.
type Kind int

// Base kinds a Domain's attribute list can describe.
const (
	Null Kind = iota
	Short
	Int
	Bigint
	Float
	Double
	Numeric
	Monetary
	Date
	Time
	TimeTZ
	TimeLTZ
	Timestamp
	TimestampTZ
	TimestampLTZ
	Datetime
	DatetimeTZ
	DatetimeLTZ
	Char
	Varchar
	NChar
	VarNChar
	Bit
	VarBit
	Object
	Set
	Multiset
	Sequence
	Midxkey
	Blob
	Clob
	Enumeration
	OID
	VObj
	Variable
)

// CollationFlag controls how strictly a domain's collation must match
// during STR-level matching.
type CollationFlag int

// Collation flags.
const (
	CollationNormal CollationFlag = iota
	CollationEnforce
	CollationLeave
)

// fixedPrecision holds the precision assigned automatically to
// non-parameterized numeric and date/time kinds.
var fixedPrecision = map[Kind]int{
	Short:        5,
	Int:          10,
	Bigint:       19,
	Float:        7,
	Double:       15,
	Date:         10,
	Time:         8,
	TimeTZ:       8,
	TimeLTZ:      8,
	Timestamp:    19,
	TimestampTZ:  19,
	TimestampLTZ: 19,
	Datetime:     23,
	DatetimeTZ:   23,
	DatetimeLTZ:  23,
}

// Domain is an immutable, canonically interned descriptor of a value
// type. Two canonical Domains with equal attributes are always the
// same pointer: see Registry.Intern and Registry.Construct.
type Domain struct {
	Kind          Kind
	Precision     int
	Scale         int
	Charset       string
	Collation     string
	CollationFlag CollationFlag

	// ClassOID identifies the class for Object domains. A zero value
	// combined with SelfRef means the class identity has not yet been
	// resolved (cyclic class self-reference during schema bootstrap).
	ClassOID int64
	SelfRef  bool

	// Elements holds element domains for Set/Multiset/Sequence/Midxkey
	// kinds (composite-key domains list one element Domain per column).
	Elements []*Domain

	// Labels holds the enumeration's label vector, in declaration
	// order; label index is 1-based.
	Labels []string

	// Descending marks an index-key variant of an otherwise identical
	// domain; see Registry.FindWithOrdering.
	Descending bool
}

// equalAttrs reports whether two drafts describe the same canonical
// Domain under EXACT matching (all attributes and precision equal,
// tolerant of a nil ClassOID/SelfRef distinction only via SET match).
func equalAttrs(a, b *Domain) bool {
	if a.Kind != b.Kind || a.Precision != b.Precision || a.Scale != b.Scale {
		return false
	}
	if a.Charset != b.Charset || a.Collation != b.Collation || a.CollationFlag != b.CollationFlag {
		return false
	}
	if a.ClassOID != b.ClassOID || a.SelfRef != b.SelfRef || a.Descending != b.Descending {
		return false
	}
	if len(a.Elements) != len(b.Elements) {
		return false
	}
	for i := range a.Elements {
		if a.Elements[i] != b.Elements[i] { // canonical pointers: identity comparison
			return false
		}
	}
	if len(a.Labels) != len(b.Labels) {
		return false
	}
	for i := range a.Labels {
		if a.Labels[i] != b.Labels[i] {
			return false
		}
	}
	return true
}

// setMatch is like equalAttrs but tolerates a nil class identity on
// either side, for the SET matching level used while a class's OID is
// still being resolved during schema bootstrap.
func setMatch(a, b *Domain) bool {
	if a.Kind != b.Kind || a.Precision != b.Precision || a.Scale != b.Scale {
		return false
	}
	if a.Kind == Object && (a.ClassOID == 0 || b.ClassOID == 0) {
		return true
	}
	return equalAttrs(a, b)
}

// IsVariableLengthString reports whether k is a variable-length
// character or bit kind, which determines insertion order within a
// bucket.
func (k Kind) IsVariableLengthString() bool {
	switch k {
	case Varchar, VarNChar, VarBit:
		return true
	default:
		return false
	}
}

// IsFixedLengthString reports whether k is a fixed-length character or
// bit kind.
func (k Kind) IsFixedLengthString() bool {
	switch k {
	case Char, NChar, Bit:
		return true
	default:
		return false
	}
}

// IsNumeric reports whether k is one of the numeric kinds that
// participate in (precision desc, scale desc) bucket ordering.
func (k Kind) IsNumeric() bool {
	switch k {
	case Short, Int, Bigint, Float, Double, Numeric, Monetary:
		return true
	default:
		return false
	}
}

func (d *Domain) String() string {
	if d == nil {
		return "<nil domain>"
	}
	return fmt.Sprintf("Domain{kind=%d precision=%d scale=%d charset=%q collation=%q}",
		d.Kind, d.Precision, d.Scale, d.Charset, d.Collation)
}
