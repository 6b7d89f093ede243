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
	"time"

	"github.com/cubrid-db/server-core/internal/domain"
)

// representable bounds the epoch range the engine accepts; values
// outside it fail with OVERFLOW.
var (
	minRepresentable = time.Date(1, 1, 1, 0, 0, 0, 0, time.UTC)
	maxRepresentable = time.Date(9999, 12, 31, 23, 59, 59, 999999000, time.UTC)
)

// permissiveLayouts is the scanner's ordered list of accepted literal
// shapes, from most to least specific.
var permissiveLayouts = []string{
	"2006-01-02 15:04:05.000000",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"15:04:05",
	"15:04",
}

// castToDateTime converts between date/time/timestamp/datetime
// families, routing string sources through the permissive scanner and
// other date/time sources through UTC normalization.
func castToDateTime(src Value, target *domain.Domain, opts Options) (Value, Status) {
	var t time.Time
	switch {
	case src.Dom == nil:
		return failValue(target, opts), Incompatible
	case isStringKind(src.Dom.Kind):
		parsed, ok := parsePermissive(strings.TrimSpace(src.Str))
		if !ok {
			return failValue(target, opts), Incompatible
		}
		t = parsed
	case isDateTimeKind(src.Dom.Kind):
		t = src.At.UTC()
	default:
		return failValue(target, opts), Incompatible
	}

	if t.Before(minRepresentable) || t.After(maxRepresentable) {
		return failValue(target, opts), Overflow
	}

	switch target.Kind {
	case domain.Date:
		t = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	case domain.Time, domain.TimeTZ, domain.TimeLTZ:
		t = time.Date(1, 1, 1, t.Hour(), t.Minute(), t.Second(), 0, time.UTC)
	}
	return Value{Dom: target, At: t}, Compatible
}

func parsePermissive(s string) (time.Time, bool) {
	for _, layout := range permissiveLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func formatDateTime(v Value) string {
	if v.Dom == nil {
		return ""
	}
	switch v.Dom.Kind {
	case domain.Date:
		return v.At.Format("2006-01-02")
	case domain.Time, domain.TimeTZ, domain.TimeLTZ:
		return v.At.Format("15:04:05")
	default:
		return v.At.Format("2006-01-02 15:04:05")
	}
}
