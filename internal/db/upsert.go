package db

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// Merge names a filings table and the natural key a batch is merged on.
type Merge struct {
	// Table is a table in Schema, e.g. "computed_ratios".
	Table   string
	Columns []string
	// Key must match a unique constraint on Table.
	Key []string
}

// stage is the transaction-scoped table a batch is copied into first.
func (m Merge) stage() pgx.Identifier {
	return pgx.Identifier{"stage_" + m.Table}
}

// sql builds the statement that moves staged rows into the table. Non-key
// columns take the staged value on conflict. With only key columns,
// existing rows are left alone.
func (m Merge) sql() string {
	key := make(map[string]bool, len(m.Key))
	for _, k := range m.Key {
		key[k] = true
	}
	var set []string
	for _, c := range m.Columns {
		if !key[c] {
			col := pgx.Identifier{c}.Sanitize()
			set = append(set, col+" = EXCLUDED."+col)
		}
	}
	onConflict := "DO NOTHING"
	if len(set) > 0 {
		onConflict = "DO UPDATE SET " + strings.Join(set, ", ")
	}

	cols := columnList(m.Columns)
	return "INSERT INTO " + Table(m.Table).Sanitize() + " (" + cols + ")" +
		" SELECT " + cols + " FROM " + m.stage().Sanitize() +
		" ON CONFLICT (" + columnList(m.Key) + ") " + onConflict
}

// MergeRows writes a batch of ratio sets, prices or similar rows in one
// transaction: the rows are loaded into a staging copy of the table with
// COPY and then inserted, updating rows that already exist on the key. It
// returns the number of rows inserted or updated.
func MergeRows(ctx context.Context, pool Pool, m Merge, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	switch {
	case m.Table == "" || strings.Contains(m.Table, "."):
		return 0, eris.Errorf("db: merge: table %q must be an unqualified %s table", m.Table, Schema)
	case len(m.Columns) == 0:
		return 0, eris.Errorf("db: merge %s: no columns", m.Table)
	case len(m.Key) == 0:
		return 0, eris.Errorf("db: merge %s: no key columns", m.Table)
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrapf(err, "db: merge %s: begin tx", m.Table)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, "CREATE TEMP TABLE "+m.stage().Sanitize()+
		" (LIKE "+Table(m.Table).Sanitize()+" INCLUDING DEFAULTS) ON COMMIT DROP"); err != nil {
		return 0, eris.Wrapf(err, "db: merge %s: create staging table", m.Table)
	}
	if _, err := Load(ctx, tx, m.stage(), m.Columns, rows); err != nil {
		return 0, eris.Wrapf(err, "db: merge %s", m.Table)
	}
	tag, err := tx.Exec(ctx, m.sql())
	if err != nil {
		return 0, eris.Wrapf(err, "db: merge %s: insert", m.Table)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrapf(err, "db: merge %s: commit tx", m.Table)
	}
	return tag.RowsAffected(), nil
}

func columnList(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(quoted, ", ")
}
