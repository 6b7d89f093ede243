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
	"encoding/hex"

	"github.com/cubrid-db/server-core/internal/domain"
)

// castToBit cross-casts bit/char values using hex pairs and errors on
// invalid hex input.
func castToBit(src Value, target *domain.Domain, opts Options) (Value, Status) {
	if src.Dom == nil {
		return failValue(target, opts), Incompatible
	}
	switch {
	case src.Dom.Kind == domain.Bit || src.Dom.Kind == domain.VarBit:
		out := append([]byte(nil), src.Bin...)
		if target.Precision > 0 && len(out)*8 > target.Precision {
			bytesLimit := (target.Precision + 7) / 8
			return Value{Dom: target, Bin: out[:bytesLimit]}, Truncated
		}
		return Value{Dom: target, Bin: out}, Compatible
	case isStringKind(src.Dom.Kind):
		b, err := hex.DecodeString(src.Str)
		if err != nil {
			return failValue(target, opts), ErrorStatus
		}
		return Value{Dom: target, Bin: b}, Compatible
	default:
		return failValue(target, opts), Incompatible
	}
}

// bitToChar renders a bit/varbit value as its hex-pair textual form.
func bitToChar(src Value, target *domain.Domain, opts Options) (Value, Status) {
	text := hex.EncodeToString(src.Bin)
	if target.Precision > 0 && len(text) > target.Precision {
		return Value{Dom: target, Str: text[:target.Precision]}, Truncated
	}
	return Value{Dom: target, Str: text}, Compatible
}
