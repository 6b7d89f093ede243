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

// Package workerpool runs a bounded set of request workers plus the
// fixed daemon goroutines (deadlock detector, checkpoint, page flush,
// log flush) that keep the engine healthy between requests.
package workerpool

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/cubrid-db/server-core/internal/txctx"
	"github.com/cubrid-db/server-core/internal/util/stopper"
	"github.com/cubrid-db/server-core/internal/util/xlog"
)

// Job binds a Connection to a worker for the duration of one request.
// Run is handed the bound txctx.Context and should invoke the
// dispatcher; the pool itself never inspects request contents.
type Job struct {
	ClientID     int
	RequestID    int
	TranIndex    int
	Opcode       int32
	ConnectionID int64
	Run          func(ctx *txctx.Context)
}

// Config sizes the pool and sets daemon cadences.
type Config struct {
	Workers int

	CheckpointInterval      time.Duration
	GroupCommitInterval     time.Duration
	BackgroundFlushInterval time.Duration

	// ShutdownRetries bounds how many times the worker-drain phase of
	// shutdown polls for drain before giving up and returning an error.
	ShutdownRetries int
	ShutdownBackoff time.Duration
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.CheckpointInterval <= 0 {
		c.CheckpointInterval = 5 * time.Minute
	}
	if c.GroupCommitInterval <= 0 {
		c.GroupCommitInterval = 10 * time.Millisecond
	}
	if c.BackgroundFlushInterval <= 0 {
		c.BackgroundFlushInterval = time.Second
	}
	if c.ShutdownRetries <= 0 {
		c.ShutdownRetries = 50
	}
	if c.ShutdownBackoff <= 0 {
		c.ShutdownBackoff = 20 * time.Millisecond
	}
	return c
}

// LockWaiter describes one worker blocked in the lock manager, as
// reported to the deadlock detector.
type LockWaiter struct {
	Worker *txctx.Context
	Active bool
}

// LockManager is the subset of the lock manager the deadlock-detector
// daemon needs: the current waiter list, and a hook to run local
// deadlock detection once at least two waiters are active.
type LockManager interface {
	Waiters() []LockWaiter
	DetectDeadlocks(waiters []LockWaiter)
}

// Checkpointer issues a checkpoint through the log manager.
type Checkpointer interface {
	Checkpoint() error
}

// PageFlusher flushes victim candidates from the page buffer.
type PageFlusher interface {
	FlushVictims() (flushed int, err error)
}

// CommitFlusher performs a log flush, either coalesced with an active
// group commit or as a plain background flush.
type CommitFlusher interface {
	FlushLog(groupCommit bool) error
}

// Pool runs Config.Workers request workers and the fixed daemon set
// over a shared job queue.
type Pool struct {
	cfg  Config
	jobs chan Job

	// workerStop and daemonStop are nested under the pool-wide stopper
	// so a process-level cancel still reaches everything, while
	// Shutdown can stop workers and daemons in genuinely distinct
	// phases: the daemons keep running until the worker drain loop has
	// finished.
	workerStop *stopper.Context
	daemonStop *stopper.Context

	mu      sync.Mutex
	workers []*txctx.Context
	grown   bool

	deadlockWake   chan struct{}
	checkpointWake chan struct{}
	pageFlushWake  chan struct{}

	lockMgr  LockManager
	ckpt     Checkpointer
	pageBuf  PageFlusher
	logFlush CommitFlusher
}

// New constructs a Pool and starts its workers and daemons on two
// stoppers nested under stop, so Shutdown can drain workers before
// touching the daemons while a process-wide cancel still reaches both.
// Any of the collaborators may be nil, in which case the corresponding
// daemon idles without acting.
func New(
	stop *stopper.Context,
	cfg Config,
	lockMgr LockManager,
	ckpt Checkpointer,
	pageBuf PageFlusher,
	logFlush CommitFlusher,
) *Pool {
	cfg = cfg.withDefaults()
	p := &Pool{
		cfg:            cfg,
		workerStop:     stopper.WithContext(stop),
		daemonStop:     stopper.WithContext(stop),
		jobs:           make(chan Job, cfg.Workers*4),
		deadlockWake:   make(chan struct{}, 1),
		checkpointWake: make(chan struct{}, 1),
		pageFlushWake:  make(chan struct{}, 1),
		lockMgr:        lockMgr,
		ckpt:           ckpt,
		pageBuf:        pageBuf,
		logFlush:       logFlush,
	}

	p.mu.Lock()
	p.workers = make([]*txctx.Context, cfg.Workers)
	for i := range p.workers {
		w := txctx.New()
		p.workers[i] = w
		p.workerStop.Go(func() error {
			p.workerLoop(w)
			return nil
		})
	}
	p.mu.Unlock()

	p.daemonStop.Go(func() error { p.deadlockDaemon(); return nil })
	p.daemonStop.Go(func() error { p.checkpointDaemon(); return nil })
	p.daemonStop.Go(func() error { p.pageFlushDaemon(); return nil })
	p.daemonStop.Go(func() error { p.logFlushDaemon(); return nil })

	return p
}

// Submit enqueues a job, blocking until a worker can take it or the
// pool is stopping. It reports false if the pool stopped first.
func (p *Pool) Submit(j Job) bool {
	select {
	case p.jobs <- j:
		p.reportQueueDepth()
		return true
	case <-p.workerStop.Stopping():
		return false
	}
}

func (p *Pool) workerLoop(w *txctx.Context) {
	for {
		select {
		case <-p.workerStop.Stopping():
			w.SetDead()
			return
		case job, ok := <-p.jobs:
			if !ok {
				w.SetDead()
				return
			}
			w.Bind(job.ClientID, job.RequestID, job.TranIndex, job.Opcode)
			w.ConnectionID = job.ConnectionID
			activeWorkers.Inc()
			p.reportQueueDepth()
			job.Run(w)
			w.PrivateHeap.Reset()
			w.InstantHeap.Reset()
			w.SetFree()
			activeWorkers.Dec()
		}
	}
}

// CountWorkersFor returns how many workers are currently bound to the
// given (tranIndex, clientID) pair, i.e. still actively working a
// request from that client's transaction. The connection-down drain
// loop polls this until it reaches zero.
func (p *Pool) CountWorkersFor(tranIndex, clientID int) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, w := range p.workers {
		if w.State() == txctx.Free || w.State() == txctx.Dead {
			continue
		}
		if w.TranIndex() == tranIndex && w.ClientID() == clientID {
			n++
		}
	}
	return n
}

// WakeAdditionalWorkers grows the pool by half its configured size plus
// one (Workers/2 + 1 workers) the first time a promotion to ACTIVE lands, so a post-failover request
// flood is not served by a pool sized for the standby role. Subsequent
// calls are no-ops.
func (p *Pool) WakeAdditionalWorkers() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.grown {
		return
	}
	p.grown = true
	extra := p.cfg.Workers/2 + 1
	for i := 0; i < extra; i++ {
		w := txctx.New()
		p.workers = append(p.workers, w)
		p.workerStop.Go(func() error {
			p.workerLoop(w)
			return nil
		})
	}
	log.WithField("extra_workers", extra).Info("workerpool: additional workers started after promotion")
}

// WakeDeadlockDetector requests an out-of-cadence deadlock scan.
func (p *Pool) WakeDeadlockDetector() {
	select {
	case p.deadlockWake <- struct{}{}:
	default:
	}
}

// WakeCheckpoint requests an out-of-cadence checkpoint.
func (p *Pool) WakeCheckpoint() {
	select {
	case p.checkpointWake <- struct{}{}:
	default:
	}
}

// WakePageFlush requests an out-of-cadence page-buffer flush.
func (p *Pool) WakePageFlush() {
	select {
	case p.pageFlushWake <- struct{}{}:
	default:
	}
}

func (p *Pool) deadlockDaemon() {
	for {
		select {
		case <-p.daemonStop.Stopping():
			return
		case <-p.deadlockWake:
		}
		if p.lockMgr == nil {
			continue
		}
		waiters := p.lockMgr.Waiters()
		active := 0
		for _, w := range waiters {
			if !w.Active {
				continue
			}
			active++
			if w.Worker.Interrupted() {
				w.Worker.Wake(txctx.ResumeInterrupt)
			}
		}
		if active >= 2 {
			p.lockMgr.DetectDeadlocks(waiters)
		}
	}
}

func (p *Pool) checkpointDaemon() {
	ticker := time.NewTicker(p.cfg.CheckpointInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.daemonStop.Stopping():
			return
		case <-ticker.C:
		case <-p.checkpointWake:
		}
		if p.ckpt == nil {
			continue
		}
		if err := p.ckpt.Checkpoint(); err != nil {
			log.WithError(err).Warn("checkpoint daemon: checkpoint failed")
			continue
		}
		checkpointsRun.Inc()
	}
}

func (p *Pool) pageFlushDaemon() {
	for {
		select {
		case <-p.daemonStop.Stopping():
			return
		case <-p.pageFlushWake:
		}
		if p.pageBuf == nil {
			continue
		}
		if _, err := p.pageBuf.FlushVictims(); err != nil {
			log.WithError(err).Warn("page flush daemon: flush failed")
		}
	}
}

// logFlushDaemon wakes on a timer equal to the shorter of the
// group-commit interval and the background-flush interval, flushing
// the log either as commit coalescing or as a plain background flush.
func (p *Pool) logFlushDaemon() {
	interval := p.cfg.GroupCommitInterval
	if p.cfg.BackgroundFlushInterval < interval {
		interval = p.cfg.BackgroundFlushInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-p.daemonStop.Stopping():
			return
		case <-ticker.C:
		}
		if p.logFlush == nil {
			continue
		}
		groupCommit := p.cfg.GroupCommitInterval <= p.cfg.BackgroundFlushInterval
		if err := p.logFlush.FlushLog(groupCommit); err != nil {
			log.WithError(err).Warn("log flush daemon: flush failed")
		}
	}
}

// Shutdown runs the two-phase shutdown protocol. Phase one stops only
// the workers' stopper, interrupting them until every one has drained;
// the daemons hang off their own stopper and keep running through the
// whole drain loop. Phase two then stops the daemons and waits for
// them. If the worker drain never completes within the retry budget,
// Shutdown still stops the daemons but returns an error instead of
// forcing a process exit, leaving that decision to the caller
// (cmd/server).
func (p *Pool) Shutdown() error {
	xlog.For(0, 0, "SHUTDOWN").Info("workerpool: phase 1, draining workers")
	p.workerStop.Stop()

	var workerErr error
	drained := false
	for i := 0; i < p.cfg.ShutdownRetries; i++ {
		if p.allWorkersDead() {
			drained = true
			break
		}
		p.interruptAllWorkers()
		time.Sleep(p.cfg.ShutdownBackoff)
	}
	if drained {
		workerErr = p.workerStop.Wait()
	} else {
		workerErr = errShutdownTimedOut
	}

	xlog.For(0, 0, "SHUTDOWN").Info("workerpool: phase 2, stopping daemons")
	p.daemonStop.Stop()
	if err := p.daemonStop.Wait(); err != nil && workerErr == nil {
		workerErr = err
	}
	return workerErr
}

func (p *Pool) interruptAllWorkers() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, w := range p.workers {
		w.Interrupt(false)
	}
}

func (p *Pool) allWorkersDead() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, w := range p.workers {
		if w.State() != txctx.Dead && w.State() != txctx.Free {
			return false
		}
	}
	return true
}
