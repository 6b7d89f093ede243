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

package pagebuf

import (
	"database/sql"
	sqldriver "database/sql/driver"
	"time"

	_ "github.com/go-sql-driver/mysql" // register driver
	_ "github.com/lib/pq"              // register driver
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/cubrid-db/server-core/internal/util/stopper"
)

// flushStatement is the CHECKPOINT statement the Postgres target
// issues once per FlushVictims call; the MySQL target uses its own
// statement. It does not take the flushed page IDs as
// arguments: like a real checkpoint, it flushes whatever is
// currently dirty rather than addressing specific pages.
const flushStatement = "CHECKPOINT"

// OpenPostgresTarget opens a Postgres-family target pool through
// lib/pq and returns a Buffer that checkpoints it on flush.
func OpenPostgresTarget(
	ctx *stopper.Context, connectString string, maxBatch int,
) (*Buffer, func(), error) {
	log.Info(connectString)
	db, err := sql.Open("postgres", connectString)
	if err != nil {
		return nil, nil, errors.WithStack(err)
	}

	cleanup := func() {
		if err := db.Close(); err != nil {
			log.WithError(errors.WithStack(err)).Warn("could not close database connection")
		}
	}
	ctx.Go(func() error {
		<-ctx.Stopping()
		cleanup()
		return nil
	})

	if err := db.PingContext(ctx); err != nil {
		return nil, nil, errors.Wrap(err, "could not ping the database")
	}
	return New(db, flushStatement, maxBatch), cleanup, nil
}

// OpenMySQLTarget opens a MySQL-family target pool, optionally waiting
// for the server to finish starting up, and returns a Buffer that
// flushes it on demand.
func OpenMySQLTarget(
	ctx *stopper.Context, connectString string, maxBatch int, waitForStartup bool,
) (*Buffer, func(), error) {
	log.Info(connectString)
	db, err := sql.Open("mysql", connectString)
	if err != nil {
		return nil, nil, errors.WithStack(err)
	}

	cleanup := func() {
		if err := db.Close(); err != nil {
			log.WithError(errors.WithStack(err)).Warn("could not close database connection")
		}
	}
	ctx.Go(func() error {
		<-ctx.Stopping()
		cleanup()
		return nil
	})

ping:
	if err := db.PingContext(ctx); err != nil {
		if waitForStartup && isMySQLStartupError(err) {
			log.WithError(err).Info("waiting for database to become ready")
			select {
			case <-ctx.Done():
				return nil, nil, ctx.Err()
			case <-time.After(10 * time.Second):
				goto ping
			}
		}
		return nil, nil, errors.Wrap(err, "could not ping the database")
	}

	return New(db, "FLUSH TABLES", maxBatch), cleanup, nil
}

func isMySQLStartupError(err error) bool {
	switch err {
	case sqldriver.ErrBadConn:
		return true
	default:
		return false
	}
}
