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

//go:build wireinject
// +build wireinject

package main

import (
	"github.com/google/wire"

	"github.com/cubrid-db/server-core/internal/config"
	"github.com/cubrid-db/server-core/internal/util/stopper"
)

// newServerInjector wires a *Server from a bound, preflighted Config
// and a stopper.Context owning the process's background goroutines.
func newServerInjector(cfg *config.Config, stop *stopper.Context) (*Server, func(), error) {
	panic(wire.Build(
		ProvideListener,
		ProvideTargetPool,
		ProvideLogManager,
		ProvideReplicationManager,
		ProvideHAMachine,
		ProvideMethodPool,
		ProvideWorkerPool,
		ProvideDispatcher,
		newServer,
	))
}
