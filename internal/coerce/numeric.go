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
	"math"

	"github.com/cubrid-db/server-core/internal/domain"
)

// integerRange returns the representable [min, max] for an integer
// domain kind.
func integerRange(k domain.Kind) (min, max int64) {
	switch k {
	case domain.Short:
		return math.MinInt16, math.MaxInt16
	case domain.Int:
		return math.MinInt32, math.MaxInt32
	case domain.Bigint:
		return math.MinInt64, math.MaxInt64
	default:
		return 0, 0
	}
}

// integerInRange reports whether a rounded float fits the target
// integer kind. float64 cannot represent MaxInt64 exactly (it rounds
// up to 2^63), so the bigint upper bound is exclusive; the smaller
// kinds' bounds are exact and inclusive.
func integerInRange(f float64, k domain.Kind) bool {
	min, max := integerRange(k)
	if k == domain.Bigint {
		return f >= float64(min) && f < float64(max)
	}
	return f >= float64(min) && f <= float64(max)
}

func isIntegerKind(k domain.Kind) bool {
	switch k {
	case domain.Short, domain.Int, domain.Bigint:
		return true
	default:
		return false
	}
}

// asFloat64 extracts a float64 view of src for the purpose of a
// numeric cast, reporting whether src was itself a numeric kind.
func asFloat64(src Value) (float64, bool) {
	if src.Dom == nil {
		return 0, false
	}
	switch src.Dom.Kind {
	case domain.Short, domain.Int, domain.Bigint:
		return float64(src.I64), true
	case domain.Float, domain.Double, domain.Numeric, domain.Monetary:
		return src.F64, true
	default:
		return 0, false
	}
}

// castToNumeric implements the numeric cast branch: integer<->floating
// uses round-to-nearest; out-of-range results OVERFLOW.
func castToNumeric(src Value, target *domain.Domain, opts Options) (Value, Status) {
	if src.Dom != nil && isStringKind(src.Dom.Kind) {
		return parseStringToNumeric(src.Str, target, opts)
	}

	f, ok := asFloat64(src)
	if !ok {
		return failValue(target, opts), Incompatible
	}

	switch target.Kind {
	case domain.Short, domain.Int, domain.Bigint:
		if src.Dom.Kind == domain.Short || src.Dom.Kind == domain.Int || src.Dom.Kind == domain.Bigint {
			// Integer-to-integer: compare exactly, no float detour.
			min, max := integerRange(target.Kind)
			if src.I64 < min || src.I64 > max {
				return failValue(target, opts), Overflow
			}
			return Value{Dom: target, I64: src.I64}, Compatible
		}
		rounded := math.Round(f)
		if !integerInRange(rounded, target.Kind) {
			return failValue(target, opts), Overflow
		}
		return Value{Dom: target, I64: int64(rounded)}, Compatible
	case domain.Float:
		if math.Abs(f) > math.MaxFloat32 {
			return failValue(target, opts), Overflow
		}
		return Value{Dom: target, F64: float64(float32(f))}, Compatible
	case domain.Double, domain.Numeric, domain.Monetary:
		return Value{Dom: target, F64: f}, Compatible
	default:
		return failValue(target, opts), Incompatible
	}
}
