package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/filings-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. Dates are stored
// as YYYY-MM-DD text so they compare lexicographically.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS companies (
	id                 INTEGER PRIMARY KEY AUTOINCREMENT,
	nse_symbol         TEXT UNIQUE,
	bse_scrip_code     TEXT,
	isin               TEXT NOT NULL UNIQUE,
	company_name       TEXT NOT NULL,
	industry           TEXT,
	sector             TEXT,
	face_value         REAL,
	shares_outstanding REAL,
	is_active          INTEGER NOT NULL DEFAULT 1,
	updated_at         TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
);

CREATE TABLE IF NOT EXISTS financial_statements (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	company_id     INTEGER NOT NULL REFERENCES companies(id),
	statement_type TEXT NOT NULL,
	result_nature  TEXT NOT NULL,
	period_type    TEXT NOT NULL,
	period_start   TEXT,
	period_end     TEXT NOT NULL,
	fiscal_year    TEXT NOT NULL DEFAULT '',
	quarter        INTEGER NOT NULL DEFAULT 0,
	is_audited     INTEGER NOT NULL DEFAULT 0,
	source         TEXT NOT NULL DEFAULT '',
	source_url     TEXT NOT NULL DEFAULT '',
	filing_date    TEXT,
	raw_items      TEXT,
	UNIQUE (company_id, statement_type, result_nature, period_type, period_end)
);

CREATE INDEX IF NOT EXISTS idx_statements_company_end ON financial_statements(company_id, period_end);

CREATE TABLE IF NOT EXISTS statement_line_items (
	statement_id INTEGER NOT NULL REFERENCES financial_statements(id) ON DELETE CASCADE,
	field_name   TEXT NOT NULL,
	value        REAL NOT NULL,
	PRIMARY KEY (statement_id, field_name)
);

CREATE TABLE IF NOT EXISTS computed_ratios (
	company_id            INTEGER NOT NULL REFERENCES companies(id),
	period_end            TEXT NOT NULL,
	period_type           TEXT NOT NULL,
	is_ttm                INTEGER NOT NULL DEFAULT 0,
	result_nature         TEXT NOT NULL,
	market_cap            REAL,
	pe_ratio              REAL,
	pb_ratio              REAL,
	ev                    REAL,
	ev_ebitda             REAL,
	dividend_yield        REAL,
	roe                   REAL,
	roce                  REAL,
	roa                   REAL,
	operating_margin      REAL,
	net_margin            REAL,
	asset_turnover        REAL,
	inventory_days        REAL,
	receivable_days       REAL,
	payable_days          REAL,
	cash_conversion_cycle REAL,
	debt_equity           REAL,
	current_ratio         REAL,
	interest_coverage     REAL,
	revenue_growth        REAL,
	profit_growth         REAL,
	eps                   REAL,
	book_value_per_share  REAL,
	free_cash_flow        REAL,
	revenue_growth_qoq    REAL,
	profit_growth_qoq     REAL,
	computed_at           TEXT NOT NULL,
	UNIQUE (company_id, period_end, period_type, is_ttm, result_nature)
);

CREATE TABLE IF NOT EXISTS quality_checks (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	company_id       INTEGER NOT NULL REFERENCES companies(id),
	field_name       TEXT NOT NULL,
	our_value        REAL,
	reference_value  REAL,
	reference_source TEXT NOT NULL DEFAULT '',
	pct_deviation    REAL,
	is_acceptable    INTEGER NOT NULL,
	threshold        REAL NOT NULL,
	period_end       TEXT,
	notes            TEXT NOT NULL DEFAULT '',
	checked_at       TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
);

CREATE TABLE IF NOT EXISTS daily_prices (
	company_id  INTEGER NOT NULL REFERENCES companies(id),
	trade_date  TEXT NOT NULL,
	open_price  REAL,
	high_price  REAL,
	low_price   REAL,
	close_price REAL NOT NULL,
	volume      INTEGER NOT NULL DEFAULT 0,
	source      TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (company_id, trade_date)
);

CREATE TABLE IF NOT EXISTS runs (
	id           TEXT PRIMARY KEY,
	job          TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'running',
	stats        TEXT,
	error        TEXT NOT NULL DEFAULT '',
	started_at   TEXT NOT NULL,
	completed_at TEXT
);

CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
`

const sqliteStatementColumns = `s.company_id, s.statement_type, s.result_nature, s.period_type, s.period_start, s.period_end,
	s.fiscal_year, s.quarter, s.is_audited, s.source, s.source_url, s.filing_date, s.raw_items,
	(SELECT json_group_object(li.field_name, li.value) FROM statement_line_items li WHERE li.statement_id = s.id)`

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteMigration); err != nil {
		return eris.Wrap(err, "sqlite: migrate")
	}
	return s.addRatioColumns(ctx)
}

// addRatioColumns brings a computed_ratios table created by an older build
// up to the current ratio set.
func (s *SQLiteStore) addRatioColumns(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM pragma_table_info('computed_ratios')`)
	if err != nil {
		return eris.Wrap(err, "sqlite: migrate: list ratio columns")
	}
	have := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close() //nolint:errcheck
			return eris.Wrap(err, "sqlite: migrate: scan ratio column")
		}
		have[name] = true
	}
	rows.Close() //nolint:errcheck
	if err := rows.Err(); err != nil {
		return eris.Wrap(err, "sqlite: migrate: list ratio columns")
	}

	for _, name := range model.RatioNames {
		if have[name] {
			continue
		}
		if _, err := s.db.ExecContext(ctx, `ALTER TABLE computed_ratios ADD COLUMN `+name+` REAL`); err != nil {
			return eris.Wrapf(err, "sqlite: migrate: add column %s", name)
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Companies ---

func (s *SQLiteStore) UpsertCompany(ctx context.Context, c *model.Company) error {
	if c == nil || c.ISIN == "" {
		return eris.New("sqlite: upsert company: isin is required")
	}
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO companies
		 (nse_symbol, bse_scrip_code, isin, company_name, industry, sector, face_value, shares_outstanding, is_active, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (isin) DO UPDATE SET
		   nse_symbol = COALESCE(excluded.nse_symbol, nse_symbol),
		   bse_scrip_code = COALESCE(excluded.bse_scrip_code, bse_scrip_code),
		   company_name = excluded.company_name,
		   industry = COALESCE(excluded.industry, industry),
		   sector = COALESCE(excluded.sector, sector),
		   face_value = COALESCE(excluded.face_value, face_value),
		   shares_outstanding = COALESCE(excluded.shares_outstanding, shares_outstanding),
		   is_active = excluded.is_active, updated_at = excluded.updated_at
		 RETURNING id`,
		nullString(c.NSESymbol), nullString(c.BSEScripCode), c.ISIN, c.Name,
		nullString(c.Industry), nullString(c.Sector), maybe(c.FaceValue), maybe(c.SharesOutstanding),
		c.Active, timestamp(time.Now()),
	).Scan(&c.ID)
	return eris.Wrapf(err, "sqlite: upsert company %s", c.ISIN)
}

func (s *SQLiteStore) GetCompany(ctx context.Context, id int64) (*model.Company, error) {
	c, err := scanCompany(s.db.QueryRowContext(ctx,
		`SELECT `+companyColumns+` FROM companies WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "company %d", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get company %d", id)
	}
	return c, nil
}

func (s *SQLiteStore) FindCompany(ctx context.Context, symbol string) (*model.Company, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	c, err := scanCompany(s.db.QueryRowContext(ctx,
		`SELECT `+companyColumns+` FROM companies
		 WHERE nse_symbol = ?1 OR bse_scrip_code = ?1 OR isin = ?1
		 ORDER BY is_active DESC, id LIMIT 1`, symbol))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "company %s", symbol)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: find company %s", symbol)
	}
	return c, nil
}

func (s *SQLiteStore) ListCompanies(ctx context.Context, filter CompanyFilter) ([]model.Company, error) {
	query := `SELECT ` + companyColumns + ` FROM companies WHERE 1=1`
	var args []any

	if filter.ActiveOnly {
		query += ` AND is_active = 1`
	}
	if len(filter.IDs) > 0 {
		query += ` AND id IN (` + placeholders(len(filter.IDs)) + `)`
		for _, id := range filter.IDs {
			args = append(args, id)
		}
	}
	query += ` ORDER BY id`

	if filter.Limit > 0 || filter.Offset > 0 {
		limit := filter.Limit
		if limit <= 0 {
			limit = -1
		}
		query += ` LIMIT ? OFFSET ?`
		args = append(args, limit, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list companies")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Company
	for rows.Next() {
		c, err := scanCompany(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan company")
		}
		out = append(out, *c)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list companies iterate")
}

// --- Statements ---

func (s *SQLiteStore) SaveStatement(ctx context.Context, rec *model.StatementRecord) error {
	if err := validateStatement(rec); err != nil {
		return err
	}
	key := rec.Key().String()

	rawJSON, err := marshalRaw(rec.RawItems)
	if err != nil {
		return eris.Wrapf(err, "sqlite: marshal raw items %s", key)
	}
	var filing any
	if rec.FilingDate != nil {
		filing = day(*rec.FilingDate)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: save statement: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	var id int64
	err = tx.QueryRowContext(ctx,
		`INSERT INTO financial_statements
		 (company_id, statement_type, result_nature, period_type, period_start, period_end,
		  fiscal_year, quarter, is_audited, source, source_url, filing_date, raw_items)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (company_id, statement_type, result_nature, period_type, period_end) DO UPDATE SET
		   period_start = excluded.period_start, fiscal_year = excluded.fiscal_year,
		   quarter = excluded.quarter, is_audited = excluded.is_audited, source = excluded.source,
		   source_url = excluded.source_url, filing_date = excluded.filing_date, raw_items = excluded.raw_items
		 RETURNING id`,
		rec.CompanyID, rec.StatementType.String(), rec.Nature.String(), rec.Period.Type.String(),
		nullDay(rec.Period.Start), day(rec.Period.End), rec.Period.FiscalYear, rec.Period.Quarter,
		rec.Audited, rec.Source, rec.SourceURL, filing, nullBytes(rawJSON),
	).Scan(&id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: upsert statement %s", key)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM statement_line_items WHERE statement_id = ?`, id); err != nil {
		return eris.Wrapf(err, "sqlite: clear line items %s", key)
	}
	for _, row := range lineItemRows(id, rec.Values) {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO statement_line_items (statement_id, field_name, value) VALUES (?, ?, ?)`, row...); err != nil {
			return eris.Wrapf(err, "sqlite: insert line item %s", key)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: save statement: commit tx")
}

func (s *SQLiteStore) QuarterlyStatements(ctx context.Context, companyID int64, st model.StatementType, asOf time.Time, nature model.ResultNature, limit int) ([]*model.StatementRecord, error) {
	if limit <= 0 {
		limit = 4
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteStatementColumns+` FROM financial_statements s
		 WHERE s.company_id = ? AND s.statement_type = ? AND s.result_nature = ?
		   AND s.period_type = 'quarterly' AND s.period_end <= ?
		 ORDER BY s.period_end DESC LIMIT ?`,
		companyID, st.String(), nature.String(), day(asOf), limit)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: quarterly statements %d", companyID)
	}
	return collectSQLiteStatements(rows)
}

func (s *SQLiteStore) LatestStatement(ctx context.Context, companyID int64, st model.StatementType, asOf time.Time, nature model.ResultNature) (*model.StatementRecord, error) {
	rec, err := scanSQLiteStatement(s.db.QueryRowContext(ctx,
		`SELECT `+sqliteStatementColumns+` FROM financial_statements s
		 WHERE s.company_id = ? AND s.statement_type = ? AND s.result_nature = ? AND s.period_end <= ?
		 ORDER BY s.period_end DESC, s.is_audited DESC LIMIT 1`,
		companyID, st.String(), nature.String(), day(asOf)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: latest %s statement %d", st, companyID)
	}
	return rec, nil
}

func (s *SQLiteStore) Statements(ctx context.Context, companyID int64, asOf time.Time) ([]*model.StatementRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteStatementColumns+` FROM financial_statements s
		 WHERE s.company_id = ? AND s.period_end <= ?
		 ORDER BY s.period_end, s.statement_type, s.result_nature, s.period_type`,
		companyID, day(asOf))
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: statements %d", companyID)
	}
	return collectSQLiteStatements(rows)
}

func (s *SQLiteStore) FieldValue(ctx context.Context, companyID int64, field string, periodEnd time.Time, pt model.PeriodType, nature model.ResultNature, toleranceDays int) (*float64, error) {
	target := dateOnly(periodEnd)
	var v float64
	err := s.db.QueryRowContext(ctx,
		`SELECT li.value FROM financial_statements s
		 JOIN statement_line_items li ON li.statement_id = s.id
		 WHERE s.company_id = ? AND li.field_name = ? AND s.period_type = ? AND s.result_nature = ?
		   AND s.period_end BETWEEN ? AND ?
		 ORDER BY abs(julianday(s.period_end) - julianday(?)), s.period_end DESC LIMIT 1`,
		companyID, field, pt.String(), nature.String(),
		day(target.AddDate(0, 0, -toleranceDays)), day(target.AddDate(0, 0, toleranceDays)), day(target),
	).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: field value %s for %d", field, companyID)
	}
	return &v, nil
}

func collectSQLiteStatements(rows *sql.Rows) ([]*model.StatementRecord, error) {
	defer rows.Close() //nolint:errcheck
	var out []*model.StatementRecord
	for rows.Next() {
		rec, err := scanSQLiteStatement(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan statement")
		}
		out = append(out, rec)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: statements iterate")
}

func scanSQLiteStatement(row scannable) (*model.StatementRecord, error) {
	var (
		rec                    model.StatementRecord
		st, nature, ptype, end string
		start, filing          *string
		raw, values            *string
	)
	if err := row.Scan(&rec.CompanyID, &st, &nature, &ptype, &start, &end,
		&rec.Period.FiscalYear, &rec.Period.Quarter, &rec.Audited, &rec.Source, &rec.SourceURL,
		&filing, &raw, &values); err != nil {
		return nil, err
	}
	if err := decodeStatement(&rec, st, nature, ptype, []byte(deref(values)), []byte(deref(raw))); err != nil {
		return nil, err
	}

	var err error
	if rec.Period.End, err = parseDay(end); err != nil {
		return nil, err
	}
	if start != nil {
		if rec.Period.Start, err = parseDay(*start); err != nil {
			return nil, err
		}
	}
	if filing != nil {
		t, err := parseDay(*filing)
		if err != nil {
			return nil, err
		}
		rec.FilingDate = &t
	}
	return &rec, nil
}

// --- Ratios ---

func (s *SQLiteStore) SaveRatios(ctx context.Context, sets []model.RatioSet) (int64, error) {
	if len(sets) == 0 {
		return 0, nil
	}
	query := upsertSQL("computed_ratios", ratioColumns, ratioConflictKeys)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: save ratios: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	var n int64
	for _, rs := range sets {
		row := ratioRow(rs, day(rs.PeriodEnd), timestamp(computedAt(rs)))
		res, err := tx.ExecContext(ctx, query, row...)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert ratios %d/%s", rs.CompanyID, day(rs.PeriodEnd))
		}
		affected, _ := res.RowsAffected()
		n += affected
	}
	return n, eris.Wrap(tx.Commit(), "sqlite: save ratios: commit tx")
}

func (s *SQLiteStore) GetRatios(ctx context.Context, companyID int64, ttm bool) ([]model.RatioSet, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+strings.Join(ratioColumns, ", ")+` FROM computed_ratios
		 WHERE company_id = ? AND is_ttm = ?
		 ORDER BY period_end DESC, result_nature`,
		companyID, ttm)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get ratios %d", companyID)
	}
	defer rows.Close() //nolint:errcheck

	var out []model.RatioSet
	for rows.Next() {
		var (
			rs                           model.RatioSet
			end, ptype, nature, computed string
		)
		values := make([]*float64, len(model.RatioNames))
		dest := []any{&rs.CompanyID, &end, &ptype, &rs.TTM, &nature}
		for i := range values {
			dest = append(dest, &values[i])
		}
		dest = append(dest, &computed)
		if err := rows.Scan(dest...); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan ratios")
		}
		if err := decodeRatioSet(&rs, ptype, nature, values); err != nil {
			return nil, err
		}
		if rs.PeriodEnd, err = parseDay(end); err != nil {
			return nil, err
		}
		if rs.ComputedAt, err = time.Parse(time.RFC3339Nano, computed); err != nil {
			return nil, eris.Wrapf(err, "sqlite: parse computed_at %q", computed)
		}
		out = append(out, rs)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: get ratios iterate")
}

// LatestTTMRatios joins each active company to its newest TTM ratio set of
// nature.
func (s *SQLiteStore) LatestTTMRatios(ctx context.Context, nature model.ResultNature) ([]model.CompanyRatios, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+prefixed("c", companyColumns)+`, `+prefixed("r", strings.Join(ratioColumns, ", "))+`
		 FROM companies c JOIN computed_ratios r ON r.company_id = c.id
		 WHERE c.is_active = 1 AND r.is_ttm = 1 AND r.result_nature = ?1
		   AND r.period_end = (SELECT MAX(x.period_end) FROM computed_ratios x
		                       WHERE x.company_id = c.id AND x.is_ttm = 1 AND x.result_nature = ?1)
		 ORDER BY c.id`,
		nature.String())
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: latest ttm ratios %s", nature)
	}
	defer rows.Close() //nolint:errcheck

	var out []model.CompanyRatios
	for rows.Next() {
		var (
			rs                        model.RatioSet
			end, ptype, nat, computed string
		)
		values := make([]*float64, len(model.RatioNames))
		rest := []any{&rs.CompanyID, &end, &ptype, &rs.TTM, &nat}
		for i := range values {
			rest = append(rest, &values[i])
		}
		rest = append(rest, &computed)

		c, err := scanCompany(withTrailing{row: rows, rest: rest})
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan company ratios")
		}
		if err := decodeRatioSet(&rs, ptype, nat, values); err != nil {
			return nil, err
		}
		if rs.PeriodEnd, err = parseDay(end); err != nil {
			return nil, err
		}
		if rs.ComputedAt, err = time.Parse(time.RFC3339Nano, computed); err != nil {
			return nil, eris.Wrapf(err, "sqlite: parse computed_at %q", computed)
		}
		out = append(out, model.CompanyRatios{Company: *c, Ratios: rs})
	}
	return out, eris.Wrap(rows.Err(), "sqlite: latest ttm ratios iterate")
}

// --- Quality ---

func (s *SQLiteStore) SaveQualityChecks(ctx context.Context, results []model.QualityCheckResult) error {
	if len(results) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: save quality checks: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	query := `INSERT INTO quality_checks (` + strings.Join(qualityColumns, ", ") + `) VALUES (` + placeholders(len(qualityColumns)) + `)`
	for _, r := range results {
		if _, err := tx.ExecContext(ctx, query,
			r.CompanyID, r.Field, maybe(r.OurValue), maybe(r.ReferenceValue), r.ReferenceSource,
			maybe(r.PctDeviation), r.Acceptable, r.Threshold, nullDay(r.PeriodEnd), r.Notes,
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert quality check %d/%s", r.CompanyID, r.Field)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: save quality checks: commit tx")
}

// sqliteClock is the layout of the DEFAULT timestamps SQLite writes.
const sqliteClock = "2006-01-02T15:04:05Z"

// QualityChecks returns stored checks, newest first.
func (s *SQLiteStore) QualityChecks(ctx context.Context, filter QualityFilter) ([]model.QualityCheckResult, error) {
	query := `SELECT ` + strings.Join(qualityColumns, ", ") + `, checked_at FROM quality_checks WHERE 1=1`
	var args []any
	if filter.CompanyID != 0 {
		query += ` AND company_id = ?`
		args = append(args, filter.CompanyID)
	}
	if !filter.Since.IsZero() {
		query += ` AND checked_at >= ?`
		args = append(args, filter.Since.UTC().Format(sqliteClock))
	}
	query += ` ORDER BY checked_at DESC, id DESC LIMIT ?`
	args = append(args, listLimit(filter.Limit, 100))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: quality checks")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.QualityCheckResult
	for rows.Next() {
		var (
			r       model.QualityCheckResult
			end     *string
			checked string
		)
		if err := rows.Scan(&r.CompanyID, &r.Field, &r.OurValue, &r.ReferenceValue, &r.ReferenceSource,
			&r.PctDeviation, &r.Acceptable, &r.Threshold, &end, &r.Notes, &checked); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan quality check")
		}
		if end != nil {
			if r.PeriodEnd, err = parseDay(*end); err != nil {
				return nil, err
			}
		}
		if r.CheckedAt, err = time.Parse(time.RFC3339Nano, checked); err != nil {
			return nil, eris.Wrapf(err, "sqlite: parse checked_at %q", checked)
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: quality checks iterate")
}

// --- Prices ---

func (s *SQLiteStore) SavePrices(ctx context.Context, prices []model.Price) (int64, error) {
	if len(prices) == 0 {
		return 0, nil
	}
	query := upsertSQL("daily_prices", priceColumns, []string{"company_id", "trade_date"})

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: save prices: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	var n int64
	for _, p := range prices {
		if p.CompanyID == 0 {
			return 0, eris.Errorf("sqlite: save prices: %s on %s has no company", p.Symbol, day(p.TradeDate))
		}
		res, err := tx.ExecContext(ctx, query,
			p.CompanyID, day(p.TradeDate), p.Open, p.High, p.Low, p.Close, p.Volume, p.Source)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert price %d/%s", p.CompanyID, day(p.TradeDate))
		}
		affected, _ := res.RowsAffected()
		n += affected
	}
	return n, eris.Wrap(tx.Commit(), "sqlite: save prices: commit tx")
}

func (s *SQLiteStore) LatestPrice(ctx context.Context, companyID int64, asOf time.Time) (*model.Price, error) {
	p, err := scanSQLitePrice(s.db.QueryRowContext(ctx,
		`SELECT `+strings.Join(priceColumns, ", ")+`
		 FROM daily_prices WHERE company_id = ? AND trade_date <= ?
		 ORDER BY trade_date DESC LIMIT 1`,
		companyID, day(asOf)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: latest price %d", companyID)
	}
	return p, nil
}

// Prices returns a company's daily prices inside filter, newest first.
func (s *SQLiteStore) Prices(ctx context.Context, companyID int64, filter PriceFilter) ([]model.Price, error) {
	query := `SELECT ` + strings.Join(priceColumns, ", ") + ` FROM daily_prices WHERE company_id = ?`
	args := []any{companyID}
	if !filter.From.IsZero() {
		query += ` AND trade_date >= ?`
		args = append(args, day(filter.From))
	}
	if !filter.To.IsZero() {
		query += ` AND trade_date <= ?`
		args = append(args, day(filter.To))
	}
	query += ` ORDER BY trade_date DESC LIMIT ?`
	args = append(args, listLimit(filter.Limit, 365))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: prices %d", companyID)
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Price
	for rows.Next() {
		p, err := scanSQLitePrice(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan price")
		}
		out = append(out, *p)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: prices iterate")
}

func scanSQLitePrice(row scannable) (*model.Price, error) {
	var (
		p               model.Price
		tradeDate       string
		open, high, low *float64
	)
	if err := row.Scan(&p.CompanyID, &tradeDate, &open, &high, &low, &p.Close, &p.Volume, &p.Source); err != nil {
		return nil, err
	}
	var err error
	if p.TradeDate, err = parseDay(tradeDate); err != nil {
		return nil, err
	}
	p.Open, p.High, p.Low = deref(open), deref(high), deref(low)
	return &p, nil
}

// --- Run log ---

func (s *SQLiteStore) StartRun(ctx context.Context, job string) (*model.Run, error) {
	run := &model.Run{
		ID:        uuid.New().String(),
		Job:       job,
		Status:    model.RunStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, job, status, started_at) VALUES (?, ?, ?, ?)`,
		run.ID, run.Job, string(run.Status), timestamp(run.StartedAt),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: start run %s", job)
	}
	return run, nil
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, stats model.RunStats) error {
	return s.finishRun(ctx, runID, stats, nil)
}

func (s *SQLiteStore) FailRun(ctx context.Context, runID string, stats model.RunStats, runErr error) error {
	if runErr == nil {
		runErr = eris.New("run failed")
	}
	return s.finishRun(ctx, runID, stats, runErr)
}

func (s *SQLiteStore) finishRun(ctx context.Context, runID string, stats model.RunStats, runErr error) error {
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal run stats")
	}
	status, msg := runFinished(stats, runErr)

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, stats = ?, error = ?, completed_at = ? WHERE id = ?`,
		string(status), string(statsJSON), msg, timestamp(time.Now()), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]model.Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, job, status, stats, error, started_at, completed_at
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var runs []model.Run
	for rows.Next() {
		var (
			r                model.Run
			stats, completed *string
			started          string
		)
		if err := rows.Scan(&r.ID, &r.Job, &r.Status, &stats, &r.Error, &started, &completed); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		if r.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
			return nil, eris.Wrapf(err, "sqlite: parse started_at %q", started)
		}
		if completed != nil {
			t, err := time.Parse(time.RFC3339Nano, *completed)
			if err != nil {
				return nil, eris.Wrapf(err, "sqlite: parse completed_at %q", *completed)
			}
			r.CompletedAt = &t
		}
		if stats != nil {
			if err := json.Unmarshal([]byte(*stats), &r.Stats); err != nil {
				return nil, eris.Wrap(err, "sqlite: unmarshal run stats")
			}
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

// --- helpers ---

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

// upsertSQL builds an INSERT ... ON CONFLICT DO UPDATE for every non-key column.
func upsertSQL(table string, columns, keys []string) string {
	isKey := make(map[string]bool, len(keys))
	for _, k := range keys {
		isKey[k] = true
	}
	var set []string
	for _, c := range columns {
		if !isKey[c] {
			set = append(set, fmt.Sprintf("%s = excluded.%s", c, c))
		}
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s",
		table, strings.Join(columns, ", "), placeholders(len(columns)),
		strings.Join(keys, ", "), strings.Join(set, ", "))
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func day(t time.Time) string {
	return t.Format(time.DateOnly)
}

func nullDay(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return day(t)
}

func parseDay(s string) (time.Time, error) {
	t, err := time.Parse(time.DateOnly, s)
	return t, eris.Wrapf(err, "sqlite: parse date %q", s)
}

func timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func nullBytes(b []byte) any {
	if b == nil {
		return nil
	}
	return string(b)
}
