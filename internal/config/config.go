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

// Package config holds the server's user-visible parameters: the
// client listen address, worker-pool sizing, daemon cadences, HA
// timeouts, outbound method-pool capacity, and the target database
// connection strings the log manager and page buffer adapters open.
// It doubles as the read-only "parameters" collaborator interface
// (timezone, protocol version) the handshake path consults.
package config

import (
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
)

// ProtocolVersion is the wire protocol version this build negotiates
// during PING_WITH_HANDSHAKE.
const ProtocolVersion = 1

// Config is the full set of parameters needed to run one server node.
type Config struct {
	// BindAddr is the network address the dispatcher's listener
	// accepts client connections on.
	BindAddr string

	// Timezone is the server's configured IANA timezone name, hashed
	// into a checksum exchanged during the handshake so a client can
	// detect a mismatch before it sends timestamps.
	Timezone string

	// HACapable is sent to clients as the HA-capability flag of the
	// handshake reply. It is not passed to the HA state machine.
	HACapable bool

	// MaxWorkers is the number of workers the pool starts with.
	// MinWorkers is only validated by Preflight (positive and not above
	// MaxWorkers); it is not passed to the pool.
	MinWorkers int
	MaxWorkers int

	// CheckpointInterval sets the checkpoint daemon's cadence, and
	// LogFlushInterval the log-flush daemon's background-flush interval
	// (that daemon wakes at the shorter of this and the pool's
	// group-commit interval). DeadlockInterval and PageFlushInterval are
	// not passed to the worker pool, whose deadlock-detector and
	// page-flush daemons wake on demand.
	DeadlockInterval   time.Duration
	CheckpointInterval time.Duration
	PageFlushInterval  time.Duration
	LogFlushInterval   time.Duration

	// HAMaintenancePoll, HAMaintenanceTimeout, and HASettleDelay
	// configure the MAINTENANCE client-eviction loop.
	HAMaintenancePoll    time.Duration
	HAMaintenanceTimeout time.Duration
	HASettleDelay        time.Duration

	// MethodPoolCapacity bounds the outbound method-callout connection
	// pool's idle set.
	MethodPoolCapacity int
	MethodPoolNetwork  string
	MethodPoolAddress  string

	// StagingDatabaseURL is the pgx connection string the log manager
	// opens its transaction pool against.
	StagingDatabaseURL string

	// TargetDatabaseURL and TargetDriver select the page buffer's
	// flush target; TargetDriver is either "postgres" or "mysql".
	TargetDatabaseURL string
	TargetDriver      string
}

// Bind registers flags for every field, one flag per field with a
// default value and help text.
func (c *Config) Bind(flags *pflag.FlagSet) {
	flags.StringVar(&c.BindAddr, "bindAddr", ":18000",
		"the network address to accept client connections on")
	flags.StringVar(&c.Timezone, "timezone", "UTC",
		"the server's configured timezone, checksummed during the client handshake")
	flags.BoolVar(&c.HACapable, "haCapable", true,
		"whether the client handshake reply advertises this node as HA-capable")

	flags.IntVar(&c.MinWorkers, "minWorkers", 4,
		"lower bound checked against maxWorkers at startup; the pool is sized by maxWorkers")
	flags.IntVar(&c.MaxWorkers, "maxWorkers", 64,
		"number of worker goroutines the pool starts with")

	flags.DurationVar(&c.DeadlockInterval, "deadlockInterval", time.Second,
		"deadlock detector cadence; not passed to the worker pool, whose deadlock detector wakes on demand")
	flags.DurationVar(&c.CheckpointInterval, "checkpointInterval", 10*time.Second,
		"how often the checkpoint daemon wakes")
	flags.DurationVar(&c.PageFlushInterval, "pageFlushInterval", 500*time.Millisecond,
		"page-flush cadence; not passed to the worker pool, whose page-flush daemon wakes on demand")
	flags.DurationVar(&c.LogFlushInterval, "logFlushInterval", 100*time.Millisecond,
		"background-flush interval of the log-flush daemon (it wakes at the shorter of this and the group-commit interval)")

	flags.DurationVar(&c.HAMaintenancePoll, "haMaintenancePoll", time.Second,
		"poll interval while waiting for non-maintenance clients to disconnect")
	flags.DurationVar(&c.HAMaintenanceTimeout, "haMaintenanceTimeout", 30*time.Second,
		"deadline for non-maintenance clients to disconnect before they are killed")
	flags.DurationVar(&c.HASettleDelay, "haSettleDelay", 2*time.Second,
		"delay after killing remaining clients before MAINTENANCE is considered entered")

	flags.IntVar(&c.MethodPoolCapacity, "methodPoolCapacity", 8,
		"maximum idle connections held by the outbound method-callout pool")
	flags.StringVar(&c.MethodPoolNetwork, "methodPoolNetwork", "tcp",
		"network for outbound method-invocation connections")
	flags.StringVar(&c.MethodPoolAddress, "methodPoolAddress", "",
		"address of the method-invocation satellite process")

	flags.StringVar(&c.StagingDatabaseURL, "stagingDatabaseURL", "",
		"pgx connection string for the log manager's transaction pool")
	flags.StringVar(&c.TargetDatabaseURL, "targetDatabaseURL", "",
		"connection string for the page buffer's flush target")
	flags.StringVar(&c.TargetDriver, "targetDriver", "postgres",
		"page buffer flush target driver: postgres or mysql")
}

// Preflight validates cross-field invariants after flag parsing.
func (c *Config) Preflight() error {
	if c.BindAddr == "" {
		return errors.New("bindAddr unset")
	}
	if c.MinWorkers <= 0 {
		return errors.New("minWorkers must be positive")
	}
	if c.MaxWorkers < c.MinWorkers {
		return errors.New("maxWorkers must be >= minWorkers")
	}
	if c.MethodPoolCapacity < 0 {
		return errors.New("methodPoolCapacity must not be negative")
	}
	if c.StagingDatabaseURL == "" {
		return errors.New("stagingDatabaseURL unset")
	}
	if c.TargetDatabaseURL == "" {
		return errors.New("targetDatabaseURL unset")
	}
	switch c.TargetDriver {
	case "postgres", "mysql":
	default:
		return errors.Errorf("unknown targetDriver %q: want postgres or mysql", c.TargetDriver)
	}
	if c.MethodPoolAddress == "" {
		return errors.New("methodPoolAddress unset")
	}
	return nil
}
