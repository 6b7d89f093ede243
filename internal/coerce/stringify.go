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
	"strconv"

	"github.com/cubrid-db/server-core/internal/domain"
)

// castToString renders src as text and truncates to the target's
// precision if necessary: for string kinds, the byte length never
// exceeds the domain precision after a successful cast.
func castToString(src Value, target *domain.Domain, mode Mode, opts Options) (Value, Status) {
	var text string
	switch {
	case src.Dom == nil:
		return failValue(target, opts), Incompatible
	case isStringKind(src.Dom.Kind):
		text = src.Str
	case src.Dom.Kind == domain.Short || src.Dom.Kind == domain.Int || src.Dom.Kind == domain.Bigint:
		text = strconv.FormatInt(src.I64, 10)
	case src.Dom.Kind == domain.Float:
		text = strconv.FormatFloat(src.F64, 'g', -1, 32)
	case src.Dom.Kind == domain.Double || src.Dom.Kind == domain.Numeric || src.Dom.Kind == domain.Monetary:
		text = strconv.FormatFloat(src.F64, 'g', -1, 64)
	case isDateTimeKind(src.Dom.Kind):
		text = formatDateTime(src)
	case src.Dom.Kind == domain.Bit || src.Dom.Kind == domain.VarBit:
		return bitToChar(src, target, opts)
	case src.Dom.Kind == domain.Blob || src.Dom.Kind == domain.Clob:
		text = string(src.Bin)
	case src.Dom.Kind == domain.Enumeration:
		idx := int(src.I64)
		if idx == 0 {
			text = ""
		} else if idx >= 1 && idx <= len(src.Dom.Labels) {
			text = src.Dom.Labels[idx-1]
		} else {
			return failValue(target, opts), Incompatible
		}
	default:
		return failValue(target, opts), Incompatible
	}

	if target.Precision > 0 && len(text) > target.Precision {
		return Value{Dom: target, Str: text[:target.Precision]}, Truncated
	}
	return Value{Dom: target, Str: text}, Compatible
}
