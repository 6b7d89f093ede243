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

package workerpool

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "workerpool_queue_depth",
		Help: "the number of jobs currently buffered in the worker pool's job queue",
	})
	activeWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "workerpool_active_workers",
		Help: "the number of workers currently bound to a request",
	})
	checkpointsRun = promauto.NewCounter(prometheus.CounterOpts{
		Name: "workerpool_checkpoints_total",
		Help: "the number of checkpoints issued by the checkpoint daemon",
	})
)

func (p *Pool) reportQueueDepth() {
	queueDepth.Set(float64(len(p.jobs)))
}
