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

package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/cubrid-db/server-core/internal/config"
	"github.com/cubrid-db/server-core/internal/util/stopper"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg := &config.Config{}
	cfg.Bind(pflag.CommandLine)
	pflag.Parse()

	if err := cfg.Preflight(); err != nil {
		log.WithError(err).Error("server: invalid configuration")
		return 2
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)

	stopCtx := stopper.WithContext(ctx)

	srv, cleanup, err := newServerInjector(cfg, stopCtx)
	if err != nil {
		log.WithError(err).Error("server: failed to start")
		return 2
	}
	defer cleanup()

	// A shutdown signal closes the listener and the active client
	// sockets, which makes Serve return; the worker pool's own
	// two-phase shutdown runs after that, before the pool-wide stop,
	// so the daemons stay up until the workers have drained.
	go func() {
		<-signals
		log.Info("server: shutdown signal received")
		srv.Close()
	}()

	metricsServer := &http.Server{Addr: metricsAddr(cfg), Handler: promhttp.Handler()}
	stopCtx.Go(func() error {
		<-stopCtx.Stopping()
		return metricsServer.Close()
	})
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Warn("server: metrics endpoint stopped")
		}
	}()

	log.WithField("bind_addr", cfg.BindAddr).Info("server: listening")
	serveErr := srv.Serve()
	if serveErr != nil {
		log.WithError(serveErr).Error("server: accept loop failed")
		srv.Close()
	}

	code := 0
	if err := srv.ShutdownWorkers(); err != nil {
		log.WithError(err).Error("server: worker pool shutdown did not drain")
		code = 2
	}
	stop()
	if err := stopCtx.Wait(); err != nil {
		log.WithError(err).Error("server: shutdown reported daemon errors")
		code = 2
	}
	if serveErr != nil {
		code = 2
	}
	return code
}

// metricsAddr returns the metrics endpoint's address: port 9100 on all
// interfaces. cfg's bind address is not consulted.
func metricsAddr(cfg *config.Config) string {
	return ":9100"
}
