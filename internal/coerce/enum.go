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

// castToEnum implements the enumeration cast rule: the trimmed source
// is compared, under the domain's collation, against each label; a
// match yields a 1-based index, an empty string matches the reserved
// index 0, and anything else is INCOMPATIBLE.
func castToEnum(src Value, target *domain.Domain, opts Options) (Value, Status) {
	var text string
	switch {
	case src.Dom == nil:
		return failValue(target, opts), Incompatible
	case isStringKind(src.Dom.Kind):
		text = strings.TrimSpace(src.Str)
	case src.Dom.Kind == domain.Enumeration:
		return Value{Dom: target, I64: src.I64}, Compatible
	case isIntegerKind(src.Dom.Kind):
		idx := src.I64
		if idx == 0 || (idx >= 1 && int(idx) <= len(target.Labels)) {
			return Value{Dom: target, I64: idx}, Compatible
		}
		return failValue(target, opts), Incompatible
	default:
		return failValue(target, opts), Incompatible
	}

	if text == "" {
		return Value{Dom: target, I64: 0}, Compatible
	}

	collated := collationCompare(target)
	for i, label := range target.Labels {
		if collated(text, label) {
			return Value{Dom: target, I64: int64(i + 1)}, Compatible
		}
	}
	return failValue(target, opts), Incompatible
}

// collationCompare returns the equality function a domain's collation
// flag implies. ENFORCE/NORMAL collations compare case-sensitively
// (the domain registry is responsible for interning distinct
// case-sensitive collations); LEAVE tolerates case.
func collationCompare(d *domain.Domain) func(a, b string) bool {
	if d.CollationFlag == domain.CollationLeave {
		return strings.EqualFold
	}
	return func(a, b string) bool { return a == b }
}
