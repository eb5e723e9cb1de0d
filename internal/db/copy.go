// Package db holds the pgx helpers shared by the Postgres store: the pool
// contract, COPY loads into the filings schema and temp-table upserts.
package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// Schema holds every filings table.
const Schema = "filings"

// Copier runs COPY. Pool and pgx.Tx both satisfy it, so a load can join the
// transaction that wrote its parent rows.
type Copier interface {
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// Table names a table in Schema.
func Table(name string) pgx.Identifier {
	return pgx.Identifier{Schema, name}
}

// Load streams rows into table with COPY and returns the row count. An
// empty batch is a no-op. Every row must carry one value per column.
func Load(ctx context.Context, c Copier, table pgx.Identifier, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	for i, r := range rows {
		if len(r) != len(columns) {
			return 0, eris.Errorf("db: load %s: row %d has %d values for %d columns",
				table.Sanitize(), i, len(r), len(columns))
		}
	}

	n, err := c.CopyFrom(ctx, table, columns, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, eris.Wrapf(err, "db: load %s", table.Sanitize())
	}
	return n, nil
}
