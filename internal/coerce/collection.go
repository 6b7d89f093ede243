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

import "github.com/cubrid-db/server-core/internal/domain"

// elementCaster produces one cast element per call, so castToCollection
// builds its result without first materializing an intermediate list of
// casts; the result slice itself holds every cast element.
type elementCaster struct {
	src    []Value
	target *domain.Domain
	mode   Mode
	opts   Options
	i      int
}

func (g *elementCaster) next() (Value, Status, bool) {
	if g.i >= len(g.src) {
		return Value{}, Compatible, false
	}
	elemDomain := g.target
	if len(g.target.Elements) == 1 {
		elemDomain = g.target.Elements[0]
	} else if len(g.target.Elements) > g.i {
		elemDomain = g.target.Elements[g.i]
	}
	v, status := Cast(g.src[g.i], elemDomain, g.mode, g.opts)
	g.i++
	return v, status, true
}

// castToCollection implements the Set/Multiset/Sequence cast path:
// element-wise cast into a new collection, with a strictly-compatible
// element domain short-circuiting to reference-sharing.
func castToCollection(src Value, target *domain.Domain, mode Mode, opts Options) (Value, Status) {
	if src.Dom == nil || (src.Dom.Kind != domain.Set && src.Dom.Kind != domain.Multiset &&
		src.Dom.Kind != domain.Sequence && src.Dom.Kind != domain.Midxkey) {
		return failValue(target, opts), Incompatible
	}

	if strictlyCompatibleElements(src.Dom, target) {
		return Value{Dom: target, Elements: src.Elements}, Compatible
	}

	gen := &elementCaster{src: src.Elements, target: target, mode: mode, opts: opts}
	out := make([]Value, 0, len(src.Elements))
	worst := Compatible
	for {
		v, status, ok := gen.next()
		if !ok {
			break
		}
		if status > worst {
			worst = status
		}
		out = append(out, v)
	}
	return Value{Dom: target, Elements: out}, worst
}

// strictlyCompatibleElements reports whether src and target describe
// collections over the identical canonical element domain, letting
// the cast share the element slice instead of copying it.
func strictlyCompatibleElements(src, target *domain.Domain) bool {
	if len(src.Elements) != 1 || len(target.Elements) != 1 {
		return false
	}
	return src.Elements[0] == target.Elements[0]
}
