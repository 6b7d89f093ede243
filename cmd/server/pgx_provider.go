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

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	"github.com/cubrid-db/server-core/internal/logmgr"
)

// newPgxBeginner opens the staging database pool the log manager
// issues transactions against.
func newPgxBeginner(connectString string) (logmgr.Beginner, func(), error) {
	pool, err := pgxpool.New(context.Background(), connectString)
	if err != nil {
		return nil, nil, errors.Wrap(err, "server: opening staging pool")
	}
	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, nil, errors.Wrap(err, "server: pinging staging pool")
	}
	return &logmgr.PgxPoolBeginner{Pool: pool}, pool.Close, nil
}
