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

// Package pagebuf stands in for the page buffer's two external-facing
// operations: unfixing every page a resource-tracking frame still
// holds pinned, and flushing victim candidates on demand from the
// page-flush daemon. Pin bookkeeping is kept in memory; the flush
// itself is a single statement issued against a *sql.DB target pool,
// Postgres-family or MySQL-family.
package pagebuf

import (
	"context"
	"database/sql"
	"sync"

	"github.com/pkg/errors"
)

// Buffer tracks per-page pin counts and a FIFO queue of unpinned
// victim candidates, flushing them in batches against a SQL target.
type Buffer struct {
	db       *sql.DB
	flushSQL string
	maxBatch int

	mu      sync.Mutex
	pinned  map[int64]int
	victims []int64
}

// New returns a Buffer that issues flushSQL against db, taking at most
// maxBatch page IDs per FlushVictims call. flushSQL runs with no
// arguments: the flushed page IDs are not passed to it.
// OpenPostgresTarget and OpenMySQLTarget supply their own flushSQL.
func New(db *sql.DB, flushSQL string, maxBatch int) *Buffer {
	if maxBatch <= 0 {
		maxBatch = 64
	}
	return &Buffer{
		db:       db,
		flushSQL: flushSQL,
		maxBatch: maxBatch,
		pinned:   make(map[int64]int),
	}
}

// Fix increments pageID's pin count, the counterpart a handler calls
// before UnfixAll releases it.
func (b *Buffer) Fix(pageID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pinned[pageID]++
}

// UnfixAll decrements the pin count of every page in pageIDs,
// appending any page whose count reaches zero to the victim queue.
// Satisfies dispatch.PageUnfixer.
func (b *Buffer) UnfixAll(pageIDs []int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, id := range pageIDs {
		n, ok := b.pinned[id]
		if !ok {
			continue
		}
		n--
		if n <= 0 {
			delete(b.pinned, id)
			b.victims = append(b.victims, id)
			continue
		}
		b.pinned[id] = n
	}
}

// PinnedCount reports how many distinct pages are currently pinned.
func (b *Buffer) PinnedCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pinned)
}

// QueuedVictims reports how many unpinned pages are waiting to be
// flushed.
func (b *Buffer) QueuedVictims() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.victims)
}

// FlushVictims pops up to maxBatch queued victim pages and issues
// flushSQL once against the target database, returning how many pages
// were flushed. A nil db and empty flushSQL is valid for a Buffer that
// only needs in-memory pin bookkeeping (most tests); FlushVictims
// reports 0 victims flushed without touching the database when there
// is nothing queued. Satisfies workerpool.PageFlusher.
func (b *Buffer) FlushVictims() (int, error) {
	batch := b.drainBatch()
	if len(batch) == 0 {
		return 0, nil
	}
	if b.db == nil || b.flushSQL == "" {
		return len(batch), nil
	}
	if _, err := b.db.ExecContext(context.Background(), b.flushSQL); err != nil {
		b.requeue(batch)
		return 0, errors.Wrap(err, "pagebuf: flush failed")
	}
	return len(batch), nil
}

func (b *Buffer) drainBatch() []int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := len(b.victims)
	if n > b.maxBatch {
		n = b.maxBatch
	}
	batch := append([]int64(nil), b.victims[:n]...)
	b.victims = b.victims[n:]
	return batch
}

func (b *Buffer) requeue(batch []int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.victims = append(batch, b.victims...)
}
