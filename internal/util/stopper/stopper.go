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

// Package stopper provides a cooperative-shutdown context: a single
// place to spawn background goroutines, observe whether a shutdown has
// been requested, and wait for every spawned goroutine to finish
// before the process continues tearing down.
//
// Every long-running daemon in this core (the deadlock detector, the
// checkpoint daemon, the page-flush daemon, the log-flush daemon, the
// accept loop, and a replication node's commute handshake) is started
// with Context.Go so that Stop can drain them deterministically
// instead of relying on a fixed sleep.
package stopper

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// Context wraps a context.Context with goroutine bookkeeping. The zero
// value is not usable; construct one with WithContext.
type Context struct {
	context.Context

	cancel context.CancelFunc

	mu      sync.Mutex
	wg      sync.WaitGroup
	errs    []error
	stopped bool
}

// WithContext returns a new stopper.Context derived from parent.
func WithContext(parent context.Context) *Context {
	ctx, cancel := context.WithCancel(parent)
	return &Context{Context: ctx, cancel: cancel}
}

// Go spawns fn in a new goroutine tracked by the stopper. If fn returns
// a non-nil error, it is recorded and will be returned by Wait.
func (s *Context) Go(fn func() error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := fn(); err != nil {
			s.mu.Lock()
			s.errs = append(s.errs, err)
			s.mu.Unlock()
		}
	}()
}

// Stopping returns a channel that is closed once Stop has been called
// or the parent context has been canceled. Callers use this to select
// against a shutdown request from within a blocking operation.
func (s *Context) Stopping() <-chan struct{} {
	return s.Context.Done()
}

// Stop requests cancellation of every goroutine spawned with Go. It
// does not block; call Wait to block until they have all exited.
func (s *Context) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	s.cancel()
}

// Stopped reports whether Stop has been called on this context.
func (s *Context) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// Wait blocks until every goroutine spawned with Go has returned, then
// returns a combined error (nil if none of them failed).
func (s *Context) Wait() error {
	s.wg.Wait()
	s.mu.Lock()
	defer s.mu.Unlock()
	switch len(s.errs) {
	case 0:
		return nil
	case 1:
		return s.errs[0]
	default:
		msgs := make([]string, len(s.errs))
		for i, e := range s.errs {
			msgs[i] = e.Error()
		}
		return errors.Errorf("%d goroutines failed: %v", len(s.errs), msgs)
	}
}
