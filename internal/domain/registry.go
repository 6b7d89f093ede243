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

package domain

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
)

// MatchLevel controls how strictly Registry.Match compares two
// domains.
type MatchLevel int

// Matching levels.
const (
	// Exact requires every attribute and precision to be equal.
	Exact MatchLevel = iota
	// Str requires precision >= the requested precision and a
	// compatible char/bit pairing; used for cache lookups where any
	// sufficiently wide domain will do.
	Str
	// Any matches on base kind alone.
	Any
	// SetLevel is like Exact but tolerates a null class identity on
	// either side (schema-bootstrap self-reference).
	SetLevel
)

// bucketKey selects the list a Domain is filed under. For Midxkey,
// bucket is element-count mod 10 to spread long composite-key lists
// across ten buckets instead of one.
type bucketKey struct {
	kind   Kind
	bucket int
}

func bucketFor(kind Kind, elementCount int) bucketKey {
	if kind == Midxkey {
		return bucketKey{kind: kind, bucket: elementCount % 10}
	}
	return bucketKey{kind: kind, bucket: 0}
}

// Registry is the process-wide canonical domain cache. The zero value
// is ready to use; New pre-seeds the default, non-parameterized
// domains.
type Registry struct {
	mu      sync.RWMutex
	buckets map[bucketKey][]*Domain
}

// New constructs a Registry with every non-parameterized default
// domain pre-seeded, matching ResolveDefault's contract.
func New() *Registry {
	r := &Registry{buckets: make(map[bucketKey][]*Domain)}
	for _, k := range []Kind{
		Null, Short, Int, Bigint, Float, Double, Date, Time, TimeTZ, TimeLTZ,
		Timestamp, TimestampTZ, TimestampLTZ, Datetime, DatetimeTZ, DatetimeLTZ,
		OID,
	} {
		draft := &Domain{Kind: k}
		if p, ok := fixedPrecision[k]; ok {
			draft.Precision = p
		}
		if _, err := r.intern(draft, Exact); err != nil {
			panic(errors.Wrap(err, "domain: seeding default registry"))
		}
	}
	return r
}

// ResolveDefault returns the pre-seeded canonical domain for a
// non-parameterized kind, or an error if kind requires parameters.
func (r *Registry) ResolveDefault(kind Kind) (*Domain, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := r.buckets[bucketFor(kind, 0)]
	for _, d := range list {
		if d.Kind == kind && d.Precision == fixedPrecision[kind] && d.Scale == 0 {
			return d, nil
		}
	}
	return nil, errors.Errorf("domain: no default for kind %d; construct explicitly", kind)
}

// Construct builds a draft Domain from parts, applies the
// fixed-precision rules, and interns it.
func (r *Registry) Construct(kind Kind, classOID int64, precision, scale int, elements []*Domain) (*Domain, error) {
	draft := &Domain{
		Kind:      kind,
		Precision: precision,
		Scale:     scale,
		ClassOID:  classOID,
		Elements:  elements,
	}
	if p, ok := fixedPrecision[kind]; ok {
		draft.Precision = p
	}
	return r.Intern(draft)
}

// Intern returns the canonical equivalent of draft, consuming it: the
// caller must not use draft again after this call.
func (r *Registry) Intern(draft *Domain) (*Domain, error) {
	return r.intern(draft, Exact)
}

func (r *Registry) intern(draft *Domain, level MatchLevel) (*Domain, error) {
	if draft == nil {
		return nil, errors.New("domain: cannot intern a nil draft")
	}
	key := bucketFor(draft.Kind, len(draft.Elements))

	// Phase 1: lock-free-under-read-lock scan. Most lookups hit an
	// already-interned domain and never need the write lock.
	r.mu.RLock()
	for _, d := range r.buckets[key] {
		if matches(d, draft, level) {
			r.mu.RUnlock()
			return d, nil
		}
	}
	r.mu.RUnlock()

	// Phase 2: miss under the read lock. Re-scan under the write lock
	// before inserting, in case a concurrent writer beat us to it
	// (double-checked insertion).
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.buckets == nil {
		r.buckets = make(map[bucketKey][]*Domain)
	}
	for _, d := range r.buckets[key] {
		if matches(d, draft, level) {
			return d, nil
		}
	}

	canonical := draft
	list := r.buckets[key]
	idx := insertionIndex(list, canonical)
	list = append(list, nil)
	copy(list[idx+1:], list[idx:])
	list[idx] = canonical
	r.buckets[key] = list
	return canonical, nil
}

// matches applies the requested MatchLevel between a canonical domain
// d and a (possibly draft) candidate.
func matches(d, candidate *Domain, level MatchLevel) bool {
	switch level {
	case Any:
		return d.Kind == candidate.Kind
	case SetLevel:
		return setMatch(d, candidate)
	case Str:
		if d.Kind != candidate.Kind {
			return false
		}
		if d.Precision < candidate.Precision {
			return false
		}
		return compatibleCharBit(d, candidate)
	default: // Exact
		return equalAttrs(d, candidate)
	}
}

// compatibleCharBit reports whether two string/bit domains may be
// substituted for one another under STR matching: same charset and
// collation-flag family, and both either char-like or bit-like.
func compatibleCharBit(a, b *Domain) bool {
	if a.Charset != b.Charset {
		return false
	}
	aIsBit := a.Kind == Bit || a.Kind == VarBit
	bIsBit := b.Kind == Bit || b.Kind == VarBit
	return aIsBit == bIsBit
}

// insertionIndex finds where to splice next into list so that the
// bucket's ordering invariant is preserved. This lets the first
// matching node in a Str scan satisfy the search without scanning the
// tail.
func insertionIndex(list []*Domain, next *Domain) int {
	less := func(i int) bool {
		d := list[i]
		switch {
		case next.Kind.IsVariableLengthString():
			return d.Precision < next.Precision // descending precision
		case next.Kind.IsFixedLengthString():
			return d.Precision > next.Precision // ascending precision
		case next.Kind.IsNumeric():
			if d.Precision != next.Precision {
				return d.Precision < next.Precision
			}
			return d.Scale < next.Scale
		default:
			return false // insertion order otherwise unspecified; append
		}
	}
	return sort.Search(len(list), less)
}

// FindWithOrdering supports index-key domain variants, which are
// otherwise identical to a base domain except for a descending flag.
func (r *Registry) FindWithOrdering(kind Kind, precision, scale int, descending bool) (*Domain, bool) {
	draft := &Domain{Kind: kind, Precision: precision, Scale: scale, Descending: descending}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, d := range r.buckets[bucketFor(kind, 0)] {
		if equalAttrs(d, draft) {
			return d, true
		}
	}
	return nil, false
}
