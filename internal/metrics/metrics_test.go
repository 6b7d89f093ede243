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

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

// histogramSampleCount extracts an observer's current sample count, since
// testutil.ToFloat64 only supports gauge/counter/summary metrics.
func histogramSampleCount(o prometheus.Observer) uint64 {
	var m dto.Metric
	if err := o.(prometheus.Metric).Write(&m); err != nil {
		panic(err)
	}
	return m.GetHistogram().GetSampleCount()
}

func TestObserveDispatchIncrementsHistogramCount(t *testing.T) {
	before := histogramSampleCount(dispatchDurations.WithLabelValues("7"))
	ObserveDispatch("7", 5*time.Millisecond)
	after := histogramSampleCount(dispatchDurations.WithLabelValues("7"))
	require.Equal(t, before+1, after)
}

func TestIncDispatchErrorIncrementsCounter(t *testing.T) {
	before := testutil.ToFloat64(dispatchErrors.WithLabelValues("9", "UNKNOWN_OPCODE"))
	IncDispatchError("9", "UNKNOWN_OPCODE")
	after := testutil.ToFloat64(dispatchErrors.WithLabelValues("9", "UNKNOWN_OPCODE"))
	require.Equal(t, before+1, after)
}

func TestIncHATransitionIncrementsCounter(t *testing.T) {
	before := testutil.ToFloat64(haTransitions.WithLabelValues("STANDBY", "ACTIVE"))
	IncHATransition("STANDBY", "ACTIVE")
	after := testutil.ToFloat64(haTransitions.WithLabelValues("STANDBY", "ACTIVE"))
	require.Equal(t, before+1, after)
}

func TestIncHAIllegalTransitionIncrementsCounter(t *testing.T) {
	before := testutil.ToFloat64(haIllegalTransitions)
	IncHAIllegalTransition()
	after := testutil.ToFloat64(haIllegalTransitions)
	require.Equal(t, before+1, after)
}

func TestIncMethodPoolDialIncrementsCounter(t *testing.T) {
	before := testutil.ToFloat64(methodPoolDials)
	IncMethodPoolDial()
	after := testutil.ToFloat64(methodPoolDials)
	require.Equal(t, before+1, after)
}
