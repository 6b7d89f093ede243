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

// Package metrics holds the prometheus registrations shared across
// packages that don't own a metric family outright: dispatch latency
// and error counts, HA transition counts, and outbound method-pool
// dial activity. An owning package (workerpool) keeps its own
// metrics.go beside its code, following the same promauto pattern.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// LatencyBuckets is the shared histogram bucket boundary set for every
// duration metric in this package.
var LatencyBuckets = prometheus.DefBuckets

var (
	dispatchDurations = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dispatch_duration_seconds",
		Help:    "the length of time Dispatch spent running a request's preamble, handler, and epilogue",
		Buckets: LatencyBuckets,
	}, []string{"opcode"})

	dispatchErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_errors_total",
		Help: "the number of requests that completed with a non-None error code, by opcode and code",
	}, []string{"opcode", "code"})

	haTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ha_transitions_total",
		Help: "the number of HA server-state transitions applied, by source and destination state",
	}, []string{"from", "to"})

	haIllegalTransitions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ha_illegal_transitions_total",
		Help: "the number of HA state change requests rejected as illegal",
	})

	methodPoolDials = promauto.NewCounter(prometheus.CounterOpts{
		Name: "methodpool_dials_total",
		Help: "the number of outbound method-callout connections dialed, fresh or reconnected",
	})
)

// ObserveDispatch records one Dispatch call's duration for opcode.
func ObserveDispatch(opcode string, dur time.Duration) {
	dispatchDurations.WithLabelValues(opcode).Observe(dur.Seconds())
}

// IncDispatchError records one Dispatch call ending in code for opcode.
func IncDispatchError(opcode, code string) {
	dispatchErrors.WithLabelValues(opcode, code).Inc()
}

// IncHATransition records one successful HA transition from -> to.
func IncHATransition(from, to string) {
	haTransitions.WithLabelValues(from, to).Inc()
}

// IncHAIllegalTransition records one rejected HA state change request.
func IncHAIllegalTransition() {
	haIllegalTransitions.Inc()
}

// IncMethodPoolDial records one outbound method-pool dial attempt.
func IncMethodPoolDial() {
	methodPoolDials.Inc()
}
