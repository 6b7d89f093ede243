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
	"testing"

	"github.com/cubrid-db/server-core/internal/domain"
	"github.com/stretchr/testify/require"
)

func mustDomain(t *testing.T, r *domain.Registry, k domain.Kind, precision, scale int) *domain.Domain {
	t.Helper()
	d, err := r.Construct(k, 0, precision, scale, nil)
	require.NoError(t, err)
	return d
}

func TestCastNullIsAlwaysCompatible(t *testing.T) {
	r := domain.New()
	shortD := mustDomain(t, r, domain.Short, 0, 0)
	out, status := Cast(Value{Null: true}, shortD, Implicit, Options{})
	require.Equal(t, Compatible, status)
	require.True(t, out.Null)
	require.Same(t, shortD, out.Dom)
}

func TestCastOverflowShortFromInt(t *testing.T) {
	r := domain.New()
	intD, err := r.ResolveDefault(domain.Int)
	require.NoError(t, err)
	shortD := mustDomain(t, r, domain.Short, 0, 0)

	src := Value{Dom: intD, I64: 40000}
	out, status := Cast(src, shortD, Implicit, Options{})
	require.Equal(t, Overflow, status)
	require.True(t, out.Null)

	out, status = Cast(src, shortD, Implicit, Options{PreserveDomain: true})
	require.Equal(t, Overflow, status)
	require.True(t, out.Null)
	require.Same(t, shortD, out.Dom)
}

func TestCastRoundTripIntegers(t *testing.T) {
	r := domain.New()
	intD, err := r.ResolveDefault(domain.Int)
	require.NoError(t, err)
	bigD, err := r.ResolveDefault(domain.Bigint)
	require.NoError(t, err)

	src := Value{Dom: intD, I64: 42}
	widened, status := Cast(src, bigD, Implicit, Options{})
	require.Equal(t, Compatible, status)

	back, status := Cast(widened, intD, Implicit, Options{})
	require.Equal(t, Compatible, status)
	require.Equal(t, src.I64, back.I64)
}

func TestStringToBigintAtSignedBoundParses(t *testing.T) {
	r := domain.New()
	bigD, err := r.ResolveDefault(domain.Bigint)
	require.NoError(t, err)
	varcharD := mustDomain(t, r, domain.Varchar, 80, 0)

	out, status := Cast(Value{Dom: varcharD, Str: "9223372036854775807"}, bigD, Implicit, Options{})
	require.Equal(t, Compatible, status)
	require.Equal(t, int64(math.MaxInt64), out.I64)

	out, status = Cast(Value{Dom: varcharD, Str: "-9223372036854775807"}, bigD, Implicit, Options{})
	require.Equal(t, Compatible, status)
	require.Equal(t, int64(-math.MaxInt64), out.I64)

	// One past the bound overflows the 63-bit accumulator while
	// scanning, so it saturates and reports TRUNCATED rather than
	// failing outright.
	out, status = Cast(Value{Dom: varcharD, Str: "9223372036854775808"}, bigD, Implicit, Options{})
	require.Equal(t, Truncated, status)
	require.Equal(t, int64(math.MaxInt64), out.I64)
}

func TestStringToBigintOverflowSaturatesAndTruncates(t *testing.T) {
	r := domain.New()
	bigD, err := r.ResolveDefault(domain.Bigint)
	require.NoError(t, err)
	varcharD := mustDomain(t, r, domain.Varchar, 80, 0)

	digits64 := ""
	for i := 0; i < 64; i++ {
		digits64 += "9"
	}
	src := Value{Dom: varcharD, Str: digits64}
	out, status := Cast(src, bigD, Implicit, Options{})
	require.Equal(t, Truncated, status)
	require.Equal(t, int64(9223372036854775807), out.I64)
}

func TestHexLiteralHighNibbleTruncates(t *testing.T) {
	r := domain.New()
	bigD, err := r.ResolveDefault(domain.Bigint)
	require.NoError(t, err)
	varcharD := mustDomain(t, r, domain.Varchar, 80, 0)

	src := Value{Dom: varcharD, Str: "0xFFFFFFFFFFFFFFFF"}
	_, status := Cast(src, bigD, Implicit, Options{})
	require.Equal(t, Truncated, status)
}

func TestEnumEmptyStringMatchesZero(t *testing.T) {
	r := domain.New()
	enumD, err := r.Construct(domain.Enumeration, 0, 0, 0, nil)
	require.NoError(t, err)
	enumD.Labels = []string{"RED", "GREEN", "BLUE"}
	varcharD := mustDomain(t, r, domain.Varchar, 10, 0)

	out, status := Cast(Value{Dom: varcharD, Str: "  "}, enumD, Implicit, Options{})
	require.Equal(t, Compatible, status)
	require.Equal(t, int64(0), out.I64)
}

func TestEnumMatchIsOneBased(t *testing.T) {
	r := domain.New()
	enumD, err := r.Construct(domain.Enumeration, 1, 0, 0, nil)
	require.NoError(t, err)
	enumD.Labels = []string{"RED", "GREEN", "BLUE"}
	varcharD := mustDomain(t, r, domain.Varchar, 10, 0)

	out, status := Cast(Value{Dom: varcharD, Str: "GREEN"}, enumD, Implicit, Options{})
	require.Equal(t, Compatible, status)
	require.Equal(t, int64(2), out.I64)
}

func TestEnumNoMatchIsIncompatible(t *testing.T) {
	r := domain.New()
	enumD, err := r.Construct(domain.Enumeration, 2, 0, 0, nil)
	require.NoError(t, err)
	enumD.Labels = []string{"RED", "GREEN"}
	varcharD := mustDomain(t, r, domain.Varchar, 10, 0)

	_, status := Cast(Value{Dom: varcharD, Str: "PURPLE"}, enumD, Implicit, Options{})
	require.Equal(t, Incompatible, status)
}

func TestImplicitRejectsVarcharToBlob(t *testing.T) {
	r := domain.New()
	varcharD := mustDomain(t, r, domain.Varchar, 10, 0)
	blobD := mustDomain(t, r, domain.Blob, 0, 0)

	_, status := Cast(Value{Dom: varcharD, Str: "hi"}, blobD, Implicit, Options{})
	require.Equal(t, Incompatible, status)

	_, status = Cast(Value{Dom: varcharD, Str: "hi"}, blobD, Explicit, Options{})
	require.NotEqual(t, Incompatible, status)
}

func TestSameDomainIdentityClonesOnly(t *testing.T) {
	r := domain.New()
	intD, err := r.ResolveDefault(domain.Int)
	require.NoError(t, err)

	src := Value{Dom: intD, I64: 7}
	out, status := Cast(src, intD, Implicit, Options{})
	require.Equal(t, Compatible, status)
	require.Equal(t, src.I64, out.I64)
}

func TestBitCharHexRoundTrip(t *testing.T) {
	r := domain.New()
	varcharD := mustDomain(t, r, domain.Varchar, 20, 0)
	bitD := mustDomain(t, r, domain.VarBit, 64, 0)

	out, status := Cast(Value{Dom: varcharD, Str: "deadbeef"}, bitD, Explicit, Options{})
	require.Equal(t, Compatible, status)
	require.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, out.Bin)

	back, status := Cast(out, varcharD, Explicit, Options{})
	require.Equal(t, Compatible, status)
	require.Equal(t, "deadbeef", back.Str)
}

func TestBitCharInvalidHexErrors(t *testing.T) {
	r := domain.New()
	varcharD := mustDomain(t, r, domain.Varchar, 20, 0)
	bitD := mustDomain(t, r, domain.VarBit, 64, 0)

	_, status := Cast(Value{Dom: varcharD, Str: "not-hex!!"}, bitD, Explicit, Options{})
	require.Equal(t, ErrorStatus, status)
}

func TestCollectionElementwiseCast(t *testing.T) {
	r := domain.New()
	intD, err := r.ResolveDefault(domain.Int)
	require.NoError(t, err)
	bigD, err := r.ResolveDefault(domain.Bigint)
	require.NoError(t, err)

	srcSet, err := r.Construct(domain.Set, 0, 0, 0, []*domain.Domain{intD})
	require.NoError(t, err)
	targetSet, err := r.Construct(domain.Set, 0, 0, 0, []*domain.Domain{bigD})
	require.NoError(t, err)

	src := Value{Dom: srcSet, Elements: []Value{{Dom: intD, I64: 1}, {Dom: intD, I64: 2}}}
	out, status := Cast(src, targetSet, Implicit, Options{})
	require.Equal(t, Compatible, status)
	require.Len(t, out.Elements, 2)
	require.Equal(t, int64(1), out.Elements[0].I64)
}

func TestCollectionSharesReferenceWhenStrictlyCompatible(t *testing.T) {
	r := domain.New()
	intD, err := r.ResolveDefault(domain.Int)
	require.NoError(t, err)

	setD, err := r.Construct(domain.Set, 0, 0, 0, []*domain.Domain{intD})
	require.NoError(t, err)
	multisetD, err := r.Construct(domain.Multiset, 0, 0, 0, []*domain.Domain{intD})
	require.NoError(t, err)

	elements := []Value{{Dom: intD, I64: 1}}
	src := Value{Dom: multisetD, Elements: elements}
	out, status := Cast(src, setD, Implicit, Options{})
	require.Equal(t, Compatible, status)
	// Different collection domains over the same canonical element
	// domain: castToCollection shares the source element slice instead
	// of casting element by element.
	require.Same(t, &elements[0], &out.Elements[0])
}

func TestDateTimeRoundTrip(t *testing.T) {
	r := domain.New()
	dateD, err := r.ResolveDefault(domain.Date)
	require.NoError(t, err)
	varcharD := mustDomain(t, r, domain.Varchar, 20, 0)

	src := Value{Dom: varcharD, Str: "2024-03-15"}
	out, status := Cast(src, dateD, Implicit, Options{})
	require.Equal(t, Compatible, status)
	require.Equal(t, 2024, out.At.Year())
	require.Equal(t, 3, int(out.At.Month()))
	require.Equal(t, 15, out.At.Day())

	back, status := Cast(out, varcharD, Implicit, Options{})
	require.Equal(t, Compatible, status)
	require.Equal(t, "2024-03-15", back.Str)
}
