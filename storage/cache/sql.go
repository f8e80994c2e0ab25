// Copyright 2026 sorrel Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cache

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	_ "github.com/go-sql-driver/mysql"
	"github.com/juju/errors"
	_ "github.com/lib/pq"
)

type SQLDriver int

const (
	MySQL SQLDriver = iota
	Postgres
)

// SQLDatabase stores values and score documents in two relational tables.
// MySQL connections need parseTime=true in the DSN so time_stamp columns
// scan into time.Time.
type SQLDatabase struct {
	client *sql.DB
	driver SQLDriver
}

func (db *SQLDatabase) Init() error {
	switch db.driver {
	case Postgres:
		if _, err := db.client.Exec(`CREATE TABLE IF NOT EXISTS "values" (` +
			"name VARCHAR(256) PRIMARY KEY, " +
			"value VARCHAR(256) NOT NULL" +
			")"); err != nil {
			return errors.Trace(err)
		}
		if _, err := db.client.Exec("CREATE TABLE IF NOT EXISTS documents (" +
			"collection VARCHAR(256) NOT NULL," +
			"subset VARCHAR(256) NOT NULL," +
			"idx INTEGER NOT NULL," +
			"id BIGINT NOT NULL," +
			"score DOUBLE PRECISION NOT NULL," +
			"fallback BOOL NOT NULL," +
			"time_stamp TIMESTAMPTZ NOT NULL," +
			"PRIMARY KEY (collection, subset, idx)" +
			")"); err != nil {
			return errors.Trace(err)
		}
	case MySQL:
		if _, err := db.client.Exec("CREATE TABLE IF NOT EXISTS `values` (" +
			"name VARCHAR(256) PRIMARY KEY, " +
			"value VARCHAR(256) NOT NULL" +
			")"); err != nil {
			return errors.Trace(err)
		}
		if _, err := db.client.Exec("CREATE TABLE IF NOT EXISTS documents (" +
			"collection VARCHAR(256) NOT NULL," +
			"subset VARCHAR(256) NOT NULL," +
			"idx INT NOT NULL," +
			"id BIGINT NOT NULL," +
			"score DOUBLE PRECISION NOT NULL," +
			"fallback BOOL NOT NULL," +
			"time_stamp DATETIME(3) NOT NULL," +
			"PRIMARY KEY (collection, subset, idx)" +
			")"); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

func (db *SQLDatabase) Ping() error {
	return db.client.Ping()
}

func (db *SQLDatabase) Close() error {
	return db.client.Close()
}

func (db *SQLDatabase) Purge() error {
	switch db.driver {
	case Postgres:
		if _, err := db.client.Exec(`DELETE FROM "values"`); err != nil {
			return errors.Trace(err)
		}
	case MySQL:
		if _, err := db.client.Exec("DELETE FROM `values`"); err != nil {
			return errors.Trace(err)
		}
	}
	_, err := db.client.Exec("DELETE FROM documents")
	return errors.Trace(err)
}

func (db *SQLDatabase) Set(ctx context.Context, values ...Value) error {
	if len(values) == 0 {
		return nil
	}
	var builder strings.Builder
	var args []interface{}
	switch db.driver {
	case Postgres:
		builder.WriteString(`INSERT INTO "values"(name, value) VALUES `)
	case MySQL:
		builder.WriteString("INSERT INTO `values`(name, value) VALUES ")
	}
	// an upsert must not touch the same name twice, keep the first occurrence
	names := mapset.NewThreadUnsafeSet[string]()
	for _, value := range values {
		if names.Add(value.name) {
			if len(args) > 0 {
				builder.WriteRune(',')
			}
			switch db.driver {
			case Postgres:
				builder.WriteString(fmt.Sprintf("($%d,$%d)", len(args)+1, len(args)+2))
			case MySQL:
				builder.WriteString("(?,?)")
			}
			args = append(args, value.name, value.value)
		}
	}
	switch db.driver {
	case Postgres:
		builder.WriteString(" ON CONFLICT (name) DO UPDATE SET value = EXCLUDED.value")
	case MySQL:
		builder.WriteString(" ON DUPLICATE KEY UPDATE value = VALUES(value)")
	}
	_, err := db.client.ExecContext(ctx, builder.String(), args...)
	return errors.Trace(err)
}

func (db *SQLDatabase) Get(ctx context.Context, name string) *ReturnValue {
	var rs *sql.Rows
	var err error
	switch db.driver {
	case Postgres:
		rs, err = db.client.QueryContext(ctx, `SELECT value FROM "values" WHERE name = $1`, name)
	case MySQL:
		rs, err = db.client.QueryContext(ctx, "SELECT value FROM `values` WHERE name = ?", name)
	}
	if err != nil {
		return &ReturnValue{err: errors.Trace(err)}
	}
	defer rs.Close()
	if rs.Next() {
		var value string
		if err = rs.Scan(&value); err != nil {
			return &ReturnValue{err: errors.Trace(err)}
		}
		return &ReturnValue{value: value}
	}
	return &ReturnValue{err: errors.Annotate(ErrObjectNotExist, name)}
}

func (db *SQLDatabase) Delete(ctx context.Context, names ...string) error {
	if len(names) == 0 {
		return nil
	}
	var builder strings.Builder
	var args []interface{}
	switch db.driver {
	case Postgres:
		builder.WriteString(`DELETE FROM "values" WHERE name IN (`)
	case MySQL:
		builder.WriteString("DELETE FROM `values` WHERE name IN (")
	}
	for i, name := range names {
		if i > 0 {
			builder.WriteRune(',')
		}
		switch db.driver {
		case Postgres:
			builder.WriteString(fmt.Sprintf("$%d", i+1))
		case MySQL:
			builder.WriteRune('?')
		}
		args = append(args, name)
	}
	builder.WriteRune(')')
	_, err := db.client.ExecContext(ctx, builder.String(), args...)
	return errors.Trace(err)
}

func (db *SQLDatabase) SetScores(ctx context.Context, collection, subset string, scores []Score) error {
	tx, err := db.client.BeginTx(ctx, nil)
	if err != nil {
		return errors.Trace(err)
	}
	defer func() {
		_ = tx.Rollback()
	}()
	switch db.driver {
	case Postgres:
		_, err = tx.ExecContext(ctx, "DELETE FROM documents WHERE collection = $1 AND subset = $2", collection, subset)
	case MySQL:
		_, err = tx.ExecContext(ctx, "DELETE FROM documents WHERE collection = ? AND subset = ?", collection, subset)
	}
	if err != nil {
		return errors.Trace(err)
	}
	var builder strings.Builder
	var args []interface{}
	builder.WriteString("INSERT INTO documents(collection, subset, idx, id, score, fallback, time_stamp) VALUES ")
	if len(scores) == 0 {
		// a marker row at idx -1 distinguishes a written empty list from an
		// absent subset
		switch db.driver {
		case Postgres:
			builder.WriteString("($1,$2,$3,$4,$5,$6,$7)")
		case MySQL:
			builder.WriteString("(?,?,?,?,?,?,?)")
		}
		args = append(args, collection, subset, -1, 0, 0.0, false, time.Unix(0, 0).UTC())
	}
	for i, score := range scores {
		if i > 0 {
			builder.WriteRune(',')
		}
		switch db.driver {
		case Postgres:
			builder.WriteString(fmt.Sprintf("($%d,$%d,$%d,$%d,$%d,$%d,$%d)",
				len(args)+1, len(args)+2, len(args)+3, len(args)+4, len(args)+5, len(args)+6, len(args)+7))
		case MySQL:
			builder.WriteString("(?,?,?,?,?,?,?)")
		}
		args = append(args, collection, subset, i, score.Id, score.Score, score.Fallback, score.Timestamp.UTC())
	}
	if _, err = tx.ExecContext(ctx, builder.String(), args...); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(tx.Commit())
}

func (db *SQLDatabase) GetScores(ctx context.Context, collection, subset string) ([]Score, error) {
	var rs *sql.Rows
	var err error
	switch db.driver {
	case Postgres:
		rs, err = db.client.QueryContext(ctx,
			"SELECT idx, id, score, fallback, time_stamp FROM documents WHERE collection = $1 AND subset = $2 ORDER BY idx",
			collection, subset)
	case MySQL:
		rs, err = db.client.QueryContext(ctx,
			"SELECT idx, id, score, fallback, time_stamp FROM documents WHERE collection = ? AND subset = ? ORDER BY idx",
			collection, subset)
	}
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer rs.Close()
	scores := make([]Score, 0)
	found := false
	for rs.Next() {
		var idx int
		var score Score
		if err = rs.Scan(&idx, &score.Id, &score.Score, &score.Fallback, &score.Timestamp); err != nil {
			return nil, errors.Trace(err)
		}
		found = true
		if idx < 0 {
			// empty-list marker
			continue
		}
		scores = append(scores, score)
	}
	if err = rs.Err(); err != nil {
		return nil, errors.Trace(err)
	}
	if !found {
		return nil, errors.Annotate(ErrObjectNotExist, Key(collection, subset))
	}
	return scores, nil
}

func (db *SQLDatabase) DeleteScores(ctx context.Context, collection string, subsets ...string) error {
	var builder strings.Builder
	var args []interface{}
	switch db.driver {
	case Postgres:
		builder.WriteString("DELETE FROM documents WHERE collection = $1")
	case MySQL:
		builder.WriteString("DELETE FROM documents WHERE collection = ?")
	}
	args = append(args, collection)
	if len(subsets) > 0 {
		builder.WriteString(" AND subset IN (")
		for i, subset := range subsets {
			if i > 0 {
				builder.WriteRune(',')
			}
			switch db.driver {
			case Postgres:
				builder.WriteString(fmt.Sprintf("$%d", len(args)+1))
			case MySQL:
				builder.WriteRune('?')
			}
			args = append(args, subset)
		}
		builder.WriteRune(')')
	}
	_, err := db.client.ExecContext(ctx, builder.String(), args...)
	return errors.Trace(err)
}
