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

// Command server is the composition root: it binds configuration,
// wires the HA state machine, the log manager, page buffer, and
// replication node adapters, the worker pool, the method connection
// pool, and the request dispatcher, then serves client connections
// until an interrupt or termination signal closes the server.
package main

import (
	"errors"
	"net"
	"sync"
	"sync/atomic"

	log "github.com/sirupsen/logrus"

	"github.com/cubrid-db/server-core/internal/config"
	"github.com/cubrid-db/server-core/internal/conn"
	"github.com/cubrid-db/server-core/internal/dispatch"
	"github.com/cubrid-db/server-core/internal/ha"
	"github.com/cubrid-db/server-core/internal/logmgr"
	"github.com/cubrid-db/server-core/internal/methodpool"
	"github.com/cubrid-db/server-core/internal/pagebuf"
	"github.com/cubrid-db/server-core/internal/replnode"
	"github.com/cubrid-db/server-core/internal/txctx"
	"github.com/cubrid-db/server-core/internal/util/stopper"
	"github.com/cubrid-db/server-core/internal/wire"
	"github.com/cubrid-db/server-core/internal/workerpool"
)

// Server owns the listener and every long-lived collaborator wired by
// newServer (or, in production, the generated injector in wire_gen.go).
type Server struct {
	cfg        *config.Config
	stop       *stopper.Context
	ln         net.Listener
	dispatcher *dispatch.Dispatcher
	workers    *workerpool.Pool
	haMachine  *ha.Machine
	logs       *logmgr.Manager
	methods    *methodpool.Pool

	nextConnID atomic.Int64

	connMu sync.Mutex
	conns  map[int64]net.Conn
}

// MethodPool returns the outbound method-callout connection pool, for
// a product layer's opcode handlers to Claim/Retire against.
func (s *Server) MethodPool() *methodpool.Pool { return s.methods }

// Close stops accepting new connections and disconnects every active
// client, unblocking their read loops so shutdown can proceed without
// waiting for idle clients to hang up on their own.
func (s *Server) Close() {
	s.ln.Close()
	s.connMu.Lock()
	defer s.connMu.Unlock()
	for _, nc := range s.conns {
		nc.Close()
	}
}

// ShutdownWorkers runs the worker pool's two-phase shutdown protocol:
// drain the request workers first, stop the daemons second. The caller
// (run, in main.go) maps a drain failure to the process exit code.
func (s *Server) ShutdownWorkers() error {
	return s.workers.Shutdown()
}

// ProvideListener binds cfg.BindAddr.
func ProvideListener(cfg *config.Config) (net.Listener, func(), error) {
	ln, err := net.Listen("tcp", cfg.BindAddr)
	if err != nil {
		return nil, nil, err
	}
	return ln, func() { ln.Close() }, nil
}

// ProvideTargetPool opens the page buffer's backing *sql.DB against
// cfg.TargetDriver/TargetDatabaseURL.
func ProvideTargetPool(ctx *stopper.Context, cfg *config.Config) (*pagebuf.Buffer, func(), error) {
	switch cfg.TargetDriver {
	case "mysql":
		return pagebuf.OpenMySQLTarget(ctx, cfg.TargetDatabaseURL, 64, true)
	default:
		return pagebuf.OpenPostgresTarget(ctx, cfg.TargetDatabaseURL, 64)
	}
}

// ProvideLogManager opens the staging database the log manager issues
// transactions against.
func ProvideLogManager(cfg *config.Config) (*logmgr.Manager, func(), error) {
	pool, cleanup, err := openStagingPool(cfg.StagingDatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	return logmgr.NewManager(pool), cleanup, nil
}

// openStagingPool is a thin seam over pgxpool so tests can swap it;
// production wiring uses it directly.
var openStagingPool = func(connectString string) (logmgr.Beginner, func(), error) {
	return newPgxBeginner(connectString)
}

// ProvideReplicationManager wires the replnode handshake driver used
// by ha.Machine's commute paths. The noopTransport stand-in lands
// every commute immediately, matching a standalone (non-HA)
// deployment until a real peer transport is configured.
func ProvideReplicationManager(ctx *stopper.Context, cfg *config.Config) *replnode.Manager {
	return replnode.New(ctx, noopTransport{})
}

// ProvideHAMachine builds the state machine and wires it to the log
// manager's update gate and client registry, the replication manager's
// commute driver, and the worker pool's post-promotion waker.
func ProvideHAMachine(cfg *config.Config, logs *logmgr.Manager, repl *replnode.Manager, workers *workerpool.Pool) *ha.Machine {
	m := ha.New(ha.Idle, ha.MaintenanceConfig{
		PollInterval:    cfg.HAMaintenancePoll,
		Timeout:         cfg.HAMaintenanceTimeout,
		KillSettleDelay: cfg.HASettleDelay,
	})
	m.Updates = logs
	m.Clients = logs
	m.Replication = repl
	m.Workers = workers
	return m
}

// ProvideMethodPool builds the outbound method-callout pool. It dials
// nothing itself: connections to the method-invocation satellite
// process are dialed on Claim.
func ProvideMethodPool(cfg *config.Config) *methodpool.Pool {
	return methodpool.New(cfg.MethodPoolCapacity, &methodpool.NetDialer{
		Network: cfg.MethodPoolNetwork,
		Address: cfg.MethodPoolAddress,
	})
}

// ProvideWorkerPool starts the worker pool and its daemons, bound to
// the page buffer flush and the log manager's checkpoint/commit flush
// (neither of which is modeled here beyond the page buffer, so
// Checkpointer/CommitFlusher are left nil: no pack component owns a
// checkpoint-log or group-commit-log implementation to wire in).
func ProvideWorkerPool(ctx *stopper.Context, cfg *config.Config, pages *pagebuf.Buffer) *workerpool.Pool {
	return workerpool.New(ctx, workerpool.Config{
		Workers:                 cfg.MaxWorkers,
		CheckpointInterval:      cfg.CheckpointInterval,
		BackgroundFlushInterval: cfg.LogFlushInterval,
	}, nil, nil, pages, nil)
}

// ProvideDispatcher assembles the Dispatcher from its collaborators.
// The opcode table itself is left empty: this core wires the generic
// dispatch/HA/pool machinery, and leaves per-opcode business handlers
// (stored-procedure calls, statement execution) to be registered by a
// higher-level product layer built on top of it.
func ProvideDispatcher(cfg *config.Config, logs *logmgr.Manager, pages *pagebuf.Buffer) *dispatch.Dispatcher {
	return &dispatch.Dispatcher{
		Table:     dispatch.Table{},
		Gate:      logs,
		Txn:       logs,
		Pages:     pages,
		Handshake: cfg,
	}
}

func newServer(cfg *config.Config, stop *stopper.Context, ln net.Listener, d *dispatch.Dispatcher, workers *workerpool.Pool, haMachine *ha.Machine, logs *logmgr.Manager, methods *methodpool.Pool) *Server {
	return &Server{
		cfg: cfg, stop: stop, ln: ln, dispatcher: d, workers: workers,
		haMachine: haMachine, logs: logs, methods: methods,
		conns: make(map[int64]net.Conn),
	}
}

// Serve accepts connections until stop is stopped or the listener
// errors.
func (s *Server) Serve() error {
	s.stop.Go(func() error {
		<-s.stop.Stopping()
		s.ln.Close()
		return nil
	})

	for {
		c, err := s.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			select {
			case <-s.stop.Stopping():
				return nil
			default:
				return err
			}
		}
		s.stop.Go(func() error {
			s.serveConn(c)
			return nil
		})
	}
}

func (s *Server) serveConn(nc net.Conn) {
	id := s.nextConnID.Add(1)
	s.connMu.Lock()
	s.conns[id] = nc
	s.connMu.Unlock()
	defer func() {
		s.connMu.Lock()
		delete(s.conns, id)
		s.connMu.Unlock()
		nc.Close()
	}()

	c := conn.Accept(id, int(id))
	sender := newFrameSender(nc)
	defer s.connDown(c)

	log.WithField("connection_id", id).Info("server: connection accepted")

	for {
		header, payload, err := wire.ReadFrame(nc)
		if err != nil {
			log.WithError(err).WithField("connection_id", id).Debug("server: connection closed")
			c.InvalidateSocket()
			return
		}

		// Requests on one connection are serialized: the next frame is
		// not read until the worker finishes the current one.
		done := make(chan struct{})
		accepted := s.workers.Submit(workerpool.Job{
			ClientID:     c.ClientID(),
			RequestID:    int(header.RequestID),
			TranIndex:    c.TranIndex(),
			Opcode:       int32(header.Opcode),
			ConnectionID: id,
			Run: func(ctx *txctx.Context) {
				defer close(done)
				s.dispatcher.Dispatch(ctx, c, sender, header, payload)
			},
		})
		if !accepted {
			return
		}
		select {
		case <-done:
		case <-s.stop.Stopping():
			return
		}
	}
}

// connDown is the connection-down callback: it drains the connection's
// in-flight worker activity, unregisters the client's transaction, and
// frees the connection slot. The drain runs on a context of its own
// rather than a pool worker, since the pool's workers are exactly what
// it is waiting on.
func (s *Server) connDown(c *conn.Connection) {
	if err := dispatch.Drain(c, txctx.New(), s.workers, s.logs, dispatch.DrainConfig{}); err != nil {
		log.WithError(err).WithField("connection_id", c.ID()).
			Warn("server: connection drain failed")
	}
}
