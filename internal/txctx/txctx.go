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

// Package txctx holds the per-worker scratch a dispatcher binds before
// invoking a handler, and the cooperative suspend/wake/interrupt
// primitives handlers and daemons use to block and be woken safely.
package txctx

import "sync"

// SuspendState is where a worker sits relative to its job queue.
type SuspendState int

// Suspend states a Context can be in.
const (
	// Run means the worker is actively executing a request.
	Run SuspendState = iota
	// Wait means the worker is blocked on suspend_until.
	Wait
	// Check means the worker has been asked to re-evaluate its wait
	// predicate without necessarily being woken (used by the
	// connection-down drain path against uninterruptible waiters).
	Check
	// Free means the worker is idle in the pool, unbound from any
	// Connection.
	Free
	// Dead means the worker has exited and will not be reused.
	Dead
)

// Cause identifies what a worker is suspended on. Only the causes
// listed as interruptible are woken by Interrupt or by the
// connection-down drain path; the rest must be waited out.
type Cause int

// Suspension causes.
const (
	CauseNone Cause = iota

	// Interruptible causes.
	CauseConnectionQueue
	CauseHeapClassRepr
	CauseLogWriter
	CauseAllocation
	CauseDeadWaitQueue

	// Uninterruptible causes.
	CauseCriticalSection
	CauseLock
	CausePageBuffer
	CauseJobQueue
)

// interruptible partitions suspension causes: only these are observed
// by Interrupt's optional wake and by the connection-down drain path.
var interruptible = map[Cause]bool{
	CauseConnectionQueue: true,
	CauseHeapClassRepr:   true,
	CauseLogWriter:       true,
	CauseAllocation:      true,
	CauseDeadWaitQueue:   true,
}

// Interruptible reports whether a worker suspended on cause can be
// woken by Interrupt or by the connection-down drain path.
func (c Cause) Interruptible() bool {
	return interruptible[c]
}

// ResumeReason explains why a suspended worker woke up, so it can
// distinguish a deliberate Wake from an unrelated spurious return.
type ResumeReason int

// Resume reasons a woken worker observes.
const (
	ResumeNone ResumeReason = iota
	ResumeWoken
	ResumeInterrupt
	ResumeTimeout
)

// Track is one scoped resource-tracking frame opened by PushTracks.
// Handlers record allocations and held pages against the frame on top
// of the stack; PopTracks releases everything recorded in the frame it
// closes.
type Track struct {
	pages  []int64
	allocs int
}

// Context is the per-worker scratch bound by a dispatcher before a
// handler runs. One Context exists per pool worker for its lifetime;
// Bind rebinds it to a new request instead of allocating a fresh one.
type Context struct {
	mu sync.Mutex
	cv *sync.Cond

	// Bound request identity.
	clientID  int
	requestID int
	tranIndex int
	opcode    int32

	interrupt      bool
	checkInterrupt bool

	suspendState SuspendState
	cause        Cause
	resumeReason ResumeReason

	tracks []*Track

	// ConnectionID identifies the Connection this worker is currently
	// bound to. Zero means unbound.
	ConnectionID int64

	// ResetSnapshot is set by the dispatcher preamble when the bound
	// Connection's invalidate-snapshot flag was pending, telling the
	// handler to acquire a fresh transactional snapshot on its first
	// read instead of reusing a cached one.
	ResetSnapshot bool

	// PrivateHeap and InstantHeap are opaque handles to the allocators
	// a handler should use for request-scoped and sub-request-scoped
	// allocation respectively. They are reset, not reallocated, on
	// every Bind so a worker's steady-state never touches the
	// allocator's slow path.
	PrivateHeap  *Heap
	InstantHeap  *Heap
	ScratchBytes []byte
}

// Heap is a trivial bump allocator standing in for the engine's
// private-heap handle: handlers carve scratch space from it and Reset
// reclaims everything in one step, with no per-allocation free.
type Heap struct {
	buf []byte
	off int
}

// Alloc returns n zeroed bytes from the heap, growing it if necessary.
func (h *Heap) Alloc(n int) []byte {
	if h.off+n > len(h.buf) {
		grown := make([]byte, len(h.buf)+n+1024)
		copy(grown, h.buf[:h.off])
		h.buf = grown
	}
	b := h.buf[h.off : h.off+n]
	for i := range b {
		b[i] = 0
	}
	h.off += n
	return b
}

// Reset discards every allocation made since the last Reset.
func (h *Heap) Reset() {
	h.off = 0
}

// New returns a Context ready to be Bound, with its own condition
// variable and private/instant heaps.
func New() *Context {
	c := &Context{
		suspendState: Free,
		PrivateHeap:  &Heap{},
		InstantHeap:  &Heap{},
	}
	c.cv = sync.NewCond(&c.mu)
	return c
}

// Bind sets the context's request identity, clears the interrupt flag,
// and discards any per-request scratch left over from the previous
// request this worker served.
func (c *Context) Bind(clientID, requestID, tranIndex int, opcode int32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.clientID = clientID
	c.requestID = requestID
	c.tranIndex = tranIndex
	c.opcode = opcode
	c.interrupt = false
	c.checkInterrupt = false
	c.suspendState = Run
	c.cause = CauseNone
	c.resumeReason = ResumeNone
	c.tracks = c.tracks[:0]
	c.ResetSnapshot = false
	c.InstantHeap.Reset()
}

// RebindForShutdown overwrites a context's request identity onto a
// synthetic shutdown opcode without disturbing its current suspend
// state, so the connection-down drain path can redirect a worker that
// may currently be suspended without resuming it as Run the way Bind
// would.
func (c *Context) RebindForShutdown(clientID, tranIndex int, shutdownOpcode int32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clientID = clientID
	c.tranIndex = tranIndex
	c.opcode = shutdownOpcode
}

// ClientID returns the client id of the currently bound request.
func (c *Context) ClientID() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clientID
}

// RequestID returns the request id of the currently bound request.
func (c *Context) RequestID() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.requestID
}

// TranIndex returns the transaction index (T) of the currently bound
// request.
func (c *Context) TranIndex() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tranIndex
}

// Opcode returns the operation code of the currently bound request.
func (c *Context) Opcode() int32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opcode
}

// PushTracks opens a new resource-tracking frame and returns it so the
// caller can record allocations and held pages against it. The caller
// must pass the returned Track to a matching PopTracks.
func (c *Context) PushTracks() *Track {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &Track{}
	c.tracks = append(c.tracks, t)
	return t
}

// PopTracks closes the topmost resource-tracking frame, releasing
// everything recorded between the matching PushTracks and this call.
// It panics if t is not the frame on top of the stack, since that
// indicates a handler unbalanced its push/pop pairing.
func (c *Context) PopTracks(t *Track) (unfixedPages int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.tracks)
	if n == 0 || c.tracks[n-1] != t {
		panic("txctx: PopTracks called out of order")
	}
	c.tracks = c.tracks[:n-1]
	return len(t.pages)
}

// TrackPage records page id as held by the currently open tracking
// frame, so it is force-unfixed if the handler returns without
// releasing it.
func (t *Track) TrackPage(pageID int64) {
	t.pages = append(t.pages, pageID)
}

// Pages returns the page ids recorded against this frame, for the
// dispatcher epilogue's defensive unfix-all pass.
func (t *Track) Pages() []int64 {
	return t.pages
}

// SuspendUntil blocks the calling goroutine on this context's
// condition variable until Wake is called (with any reason) or the
// context is interrupted while cause is interruptible. It returns the
// ResumeReason observed after waking.
func (c *Context) SuspendUntil(cause Cause) ResumeReason {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cause = cause
	c.suspendState = Wait
	c.resumeReason = ResumeNone

	for c.suspendState == Wait {
		c.cv.Wait()
	}

	reason := c.resumeReason
	c.cause = CauseNone
	return reason
}

// Wake resumes a worker suspended in SuspendUntil, recording reason so
// the caller can distinguish why it woke.
func (c *Context) Wake(reason ResumeReason) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.suspendState == Dead {
		return
	}
	c.suspendState = Run
	c.resumeReason = reason
	c.cv.Broadcast()
}

// MarkChecking transitions a suspended worker to Check without waking
// it, so a waiter on an uninterruptible cause re-evaluates its
// predicate on its own schedule instead of spinning forever against a
// drain that cannot wake it.
func (c *Context) MarkChecking() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.suspendState == Wait {
		c.suspendState = Check
	}
}

// Interrupt sets the context's interrupt flag. If soft is false and
// the context is currently suspended (in Wait, or in Check after
// MarkChecking) on an interruptible cause, it is also woken with
// ResumeInterrupt; a soft interrupt only sets the flag for the next
// cooperative check.
func (c *Context) Interrupt(soft bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.interrupt = true
	c.checkInterrupt = true
	if soft {
		return
	}
	if (c.suspendState == Wait || c.suspendState == Check) && c.cause.Interruptible() {
		c.suspendState = Run
		c.resumeReason = ResumeInterrupt
		c.cv.Broadcast()
	}
}

// Interrupted reports whether this context's interrupt flag is set.
func (c *Context) Interrupted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.interrupt
}

// ClearInterrupt resets the interrupt and check-interrupt flags, for
// handlers that have acted on the interrupt (Bind clears the same
// flags itself).
func (c *Context) ClearInterrupt() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.interrupt = false
	c.checkInterrupt = false
}

// State returns the worker's current suspend state.
func (c *Context) State() SuspendState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.suspendState
}

// SetFree transitions the worker to Free, unbinding it from any
// Connection and releasing its private heap back to empty.
func (c *Context) SetFree() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.suspendState = Free
	c.ConnectionID = 0
	c.PrivateHeap.Reset()
	c.InstantHeap.Reset()
}

// SetDead permanently retires the worker; any further Wake on it is a
// no-op.
func (c *Context) SetDead() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.suspendState = Dead
	c.cv.Broadcast()
}
