package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/filings-cli/internal/db"
	"github.com/sells-group/filings-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

const (
	statementColumns = `s.company_id, s.statement_type, s.result_nature, s.period_type, s.period_start, s.period_end,
		s.fiscal_year, s.quarter, s.is_audited, s.source, s.source_url, s.filing_date, s.raw_items,
		COALESCE((SELECT jsonb_object_agg(li.field_name, li.value)
		          FROM filings.statement_line_items li WHERE li.statement_id = s.id), '{}'::jsonb)`

	sqlQuarterlyStatements = `SELECT ` + statementColumns + ` FROM filings.financial_statements s
		WHERE s.company_id = $1 AND s.statement_type = $2 AND s.result_nature = $3
		  AND s.period_type = 'quarterly' AND s.period_end <= $4
		ORDER BY s.period_end DESC LIMIT $5`

	sqlLatestStatement = `SELECT ` + statementColumns + ` FROM filings.financial_statements s
		WHERE s.company_id = $1 AND s.statement_type = $2 AND s.result_nature = $3 AND s.period_end <= $4
		ORDER BY s.period_end DESC, s.is_audited DESC LIMIT 1`

	sqlFieldValue = `SELECT li.value FROM filings.financial_statements s
		JOIN filings.statement_line_items li ON li.statement_id = s.id
		WHERE s.company_id = $1 AND li.field_name = $2 AND s.period_type = $3 AND s.result_nature = $4
		  AND s.period_end BETWEEN $5 AND $6
		ORDER BY abs(s.period_end - $7::date), s.period_end DESC LIMIT 1`

	sqlLatestPrice = `SELECT company_id, trade_date, open_price, high_price, low_price, close_price, volume, source
		FROM filings.daily_prices WHERE company_id = $1 AND trade_date <= $2
		ORDER BY trade_date DESC LIMIT 1`

	sqlUpsertStatement = `INSERT INTO filings.financial_statements
		(company_id, statement_type, result_nature, period_type, period_start, period_end,
		 fiscal_year, quarter, is_audited, source, source_url, filing_date, raw_items, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, now())
		ON CONFLICT (company_id, statement_type, result_nature, period_type, period_end) DO UPDATE SET
		  period_start = $5, fiscal_year = $7, quarter = $8, is_audited = $9, source = $10,
		  source_url = $11, filing_date = $12, raw_items = $13, updated_at = now()
		RETURNING id`

	companyColumns = `id, nse_symbol, bse_scrip_code, isin, company_name, industry, sector,
		face_value, shares_outstanding, is_active`
)

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the per-company reads in compute runs.
var preparedStatements = map[string]string{
	"quarterly_statements": sqlQuarterlyStatements,
	"latest_statement":     sqlLatestStatement,
	"field_value":          sqlFieldValue,
	"latest_price":         sqlLatestPrice,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepared after Migrate has created the schema; a fresh database skips them.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		var ready bool
		if err := conn.QueryRow(ctx, `SELECT to_regclass('filings.statement_line_items') IS NOT NULL`).Scan(&ready); err != nil || !ready {
			return nil
		}
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	return migrate(ctx, s.pool)
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// --- Companies ---

func (s *PostgresStore) UpsertCompany(ctx context.Context, c *model.Company) error {
	if c == nil || c.ISIN == "" {
		return eris.New("postgres: upsert company: isin is required")
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO filings.companies
		 (nse_symbol, bse_scrip_code, isin, company_name, industry, sector, face_value, shares_outstanding, is_active, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
		 ON CONFLICT (isin) DO UPDATE SET
		   nse_symbol = COALESCE($1, filings.companies.nse_symbol),
		   bse_scrip_code = COALESCE($2, filings.companies.bse_scrip_code),
		   company_name = $4,
		   industry = COALESCE($5, filings.companies.industry),
		   sector = COALESCE($6, filings.companies.sector),
		   face_value = COALESCE($7, filings.companies.face_value),
		   shares_outstanding = COALESCE($8, filings.companies.shares_outstanding),
		   is_active = $9, updated_at = now()
		 RETURNING id`,
		nullString(c.NSESymbol), nullString(c.BSEScripCode), c.ISIN, c.Name,
		nullString(c.Industry), nullString(c.Sector), maybe(c.FaceValue), maybe(c.SharesOutstanding), c.Active,
	).Scan(&c.ID)
	return eris.Wrapf(err, "postgres: upsert company %s", c.ISIN)
}

func (s *PostgresStore) GetCompany(ctx context.Context, id int64) (*model.Company, error) {
	c, err := scanCompany(s.pool.QueryRow(ctx,
		`SELECT `+companyColumns+` FROM filings.companies WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "company %d", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get company %d", id)
	}
	return c, nil
}

func (s *PostgresStore) FindCompany(ctx context.Context, symbol string) (*model.Company, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	c, err := scanCompany(s.pool.QueryRow(ctx,
		`SELECT `+companyColumns+` FROM filings.companies
		 WHERE nse_symbol = $1 OR bse_scrip_code = $1 OR isin = $1
		 ORDER BY is_active DESC, id LIMIT 1`, symbol))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "company %s", symbol)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: find company %s", symbol)
	}
	return c, nil
}

func (s *PostgresStore) ListCompanies(ctx context.Context, filter CompanyFilter) ([]model.Company, error) {
	query := `SELECT ` + companyColumns + ` FROM filings.companies WHERE true`
	args := []any{}
	argIdx := 1

	if filter.ActiveOnly {
		query += ` AND is_active`
	}
	if len(filter.IDs) > 0 {
		query += fmt.Sprintf(` AND id = ANY($%d)`, argIdx)
		args = append(args, filter.IDs)
		argIdx++
	}
	query += ` ORDER BY id`

	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d`, argIdx)
		args = append(args, filter.Limit)
		argIdx++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list companies")
	}
	defer rows.Close()

	var out []model.Company
	for rows.Next() {
		c, err := scanCompany(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan company")
		}
		out = append(out, *c)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list companies iterate")
}

func scanCompany(row scannable) (*model.Company, error) {
	var (
		c                          model.Company
		nse, bse, industry, sector *string
	)
	if err := row.Scan(&c.ID, &nse, &bse, &c.ISIN, &c.Name, &industry, &sector,
		&c.FaceValue, &c.SharesOutstanding, &c.Active); err != nil {
		return nil, err
	}
	c.NSESymbol = deref(nse)
	c.BSEScripCode = deref(bse)
	c.Industry = deref(industry)
	c.Sector = deref(sector)
	return &c, nil
}

// --- Statements ---

// SaveStatement replaces the statement with the same unique key, line items
// included, in one transaction.
func (s *PostgresStore) SaveStatement(ctx context.Context, rec *model.StatementRecord) error {
	if err := validateStatement(rec); err != nil {
		return err
	}
	key := rec.Key().String()

	rawJSON, err := marshalRaw(rec.RawItems)
	if err != nil {
		return eris.Wrapf(err, "postgres: marshal raw items %s", key)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: save statement: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var id int64
	err = tx.QueryRow(ctx, sqlUpsertStatement,
		rec.CompanyID, rec.StatementType.String(), rec.Nature.String(), rec.Period.Type.String(),
		nullTime(rec.Period.Start), dateOnly(rec.Period.End), rec.Period.FiscalYear, rec.Period.Quarter,
		rec.Audited, rec.Source, rec.SourceURL, rec.FilingDate, rawJSON,
	).Scan(&id)
	if err != nil {
		return eris.Wrapf(err, "postgres: upsert statement %s", key)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM filings.statement_line_items WHERE statement_id = $1`, id); err != nil {
		return eris.Wrapf(err, "postgres: clear line items %s", key)
	}
	if items := lineItemRows(id, rec.Values); len(items) > 0 {
		if _, err := db.Load(ctx, tx, db.Table("statement_line_items"),
			[]string{"statement_id", "field_name", "value"}, items); err != nil {
			return eris.Wrapf(err, "postgres: copy line items %s", key)
		}
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: save statement: commit tx")
}

func (s *PostgresStore) QuarterlyStatements(ctx context.Context, companyID int64, st model.StatementType, asOf time.Time, nature model.ResultNature, limit int) ([]*model.StatementRecord, error) {
	if limit <= 0 {
		limit = 4
	}
	rows, err := s.pool.Query(ctx, sqlQuarterlyStatements,
		companyID, st.String(), nature.String(), dateOnly(asOf), limit)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: quarterly statements %d", companyID)
	}
	return collectStatements(rows)
}

func (s *PostgresStore) LatestStatement(ctx context.Context, companyID int64, st model.StatementType, asOf time.Time, nature model.ResultNature) (*model.StatementRecord, error) {
	rec, err := scanStatement(s.pool.QueryRow(ctx, sqlLatestStatement,
		companyID, st.String(), nature.String(), dateOnly(asOf)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: latest %s statement %d", st, companyID)
	}
	return rec, nil
}

func (s *PostgresStore) Statements(ctx context.Context, companyID int64, asOf time.Time) ([]*model.StatementRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+statementColumns+` FROM filings.financial_statements s
		 WHERE s.company_id = $1 AND s.period_end <= $2
		 ORDER BY s.period_end, s.statement_type, s.result_nature, s.period_type`,
		companyID, dateOnly(asOf))
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: statements %d", companyID)
	}
	return collectStatements(rows)
}

// FieldValue returns the value of field from the statement whose period end
// is nearest periodEnd within toleranceDays.
func (s *PostgresStore) FieldValue(ctx context.Context, companyID int64, field string, periodEnd time.Time, pt model.PeriodType, nature model.ResultNature, toleranceDays int) (*float64, error) {
	target := dateOnly(periodEnd)
	var v float64
	err := s.pool.QueryRow(ctx, sqlFieldValue,
		companyID, field, pt.String(), nature.String(),
		target.AddDate(0, 0, -toleranceDays), target.AddDate(0, 0, toleranceDays), target,
	).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: field value %s for %d", field, companyID)
	}
	return &v, nil
}

func collectStatements(rows pgx.Rows) ([]*model.StatementRecord, error) {
	defer rows.Close()
	var out []*model.StatementRecord
	for rows.Next() {
		rec, err := scanStatement(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan statement")
		}
		out = append(out, rec)
	}
	return out, eris.Wrap(rows.Err(), "postgres: statements iterate")
}

func scanStatement(row pgx.Row) (*model.StatementRecord, error) {
	var (
		rec                 model.StatementRecord
		st, nature, ptype   string
		start, filing       *time.Time
		quarter             int
		rawJSON, valuesJSON []byte
	)
	if err := row.Scan(&rec.CompanyID, &st, &nature, &ptype, &start, &rec.Period.End,
		&rec.Period.FiscalYear, &quarter, &rec.Audited, &rec.Source, &rec.SourceURL, &filing,
		&rawJSON, &valuesJSON); err != nil {
		return nil, err
	}
	if err := decodeStatement(&rec, st, nature, ptype, valuesJSON, rawJSON); err != nil {
		return nil, err
	}
	if start != nil {
		rec.Period.Start = *start
	}
	rec.Period.Quarter = quarter
	rec.FilingDate = filing
	return &rec, nil
}

// --- Ratios ---

// SaveRatios upserts ratio sets by (company, period end, period type, ttm,
// nature).
func (s *PostgresStore) SaveRatios(ctx context.Context, sets []model.RatioSet) (int64, error) {
	rows := make([][]any, 0, len(sets))
	for _, rs := range sets {
		rows = append(rows, ratioRow(rs, dateOnly(rs.PeriodEnd), computedAt(rs)))
	}
	n, err := db.MergeRows(ctx, s.pool, db.Merge{
		Table:   "computed_ratios",
		Columns: ratioColumns,
		Key:     ratioConflictKeys,
	}, rows)
	return n, eris.Wrap(err, "postgres: save ratios")
}

func (s *PostgresStore) GetRatios(ctx context.Context, companyID int64, ttm bool) ([]model.RatioSet, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+strings.Join(ratioColumns, ", ")+` FROM filings.computed_ratios
		 WHERE company_id = $1 AND is_ttm = $2
		 ORDER BY period_end DESC, result_nature`,
		companyID, ttm)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get ratios %d", companyID)
	}
	defer rows.Close()

	var out []model.RatioSet
	for rows.Next() {
		var (
			rs            model.RatioSet
			ptype, nature string
		)
		values := make([]*float64, len(model.RatioNames))
		dest := []any{&rs.CompanyID, &rs.PeriodEnd, &ptype, &rs.TTM, &nature}
		for i := range values {
			dest = append(dest, &values[i])
		}
		dest = append(dest, &rs.ComputedAt)
		if err := rows.Scan(dest...); err != nil {
			return nil, eris.Wrap(err, "postgres: scan ratios")
		}
		if err := decodeRatioSet(&rs, ptype, nature, values); err != nil {
			return nil, err
		}
		out = append(out, rs)
	}
	return out, eris.Wrap(rows.Err(), "postgres: get ratios iterate")
}

// LatestTTMRatios joins each active company to its newest TTM ratio set of
// nature.
func (s *PostgresStore) LatestTTMRatios(ctx context.Context, nature model.ResultNature) ([]model.CompanyRatios, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT ON (c.id) `+prefixed("c", companyColumns)+`, `+prefixed("r", strings.Join(ratioColumns, ", "))+`
		 FROM filings.companies c JOIN filings.computed_ratios r ON r.company_id = c.id
		 WHERE c.is_active AND r.is_ttm AND r.result_nature = $1
		 ORDER BY c.id, r.period_end DESC`,
		nature.String())
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: latest ttm ratios %s", nature)
	}
	defer rows.Close()

	var out []model.CompanyRatios
	for rows.Next() {
		var (
			rs         model.RatioSet
			ptype, nat string
		)
		values := make([]*float64, len(model.RatioNames))
		rest := []any{&rs.CompanyID, &rs.PeriodEnd, &ptype, &rs.TTM, &nat}
		for i := range values {
			rest = append(rest, &values[i])
		}
		rest = append(rest, &rs.ComputedAt)

		c, err := scanCompany(withTrailing{row: rows, rest: rest})
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan company ratios")
		}
		if err := decodeRatioSet(&rs, ptype, nat, values); err != nil {
			return nil, err
		}
		out = append(out, model.CompanyRatios{Company: *c, Ratios: rs})
	}
	return out, eris.Wrap(rows.Err(), "postgres: latest ttm ratios iterate")
}

// --- Quality ---

func (s *PostgresStore) SaveQualityChecks(ctx context.Context, results []model.QualityCheckResult) error {
	rows := make([][]any, 0, len(results))
	for _, r := range results {
		rows = append(rows, []any{
			r.CompanyID, r.Field, maybe(r.OurValue), maybe(r.ReferenceValue), r.ReferenceSource,
			maybe(r.PctDeviation), r.Acceptable, r.Threshold, nullTime(r.PeriodEnd), r.Notes,
		})
	}
	_, err := db.Load(ctx, s.pool, db.Table("quality_checks"), qualityColumns, rows)
	return eris.Wrap(err, "postgres: save quality checks")
}

// QualityChecks returns stored checks, newest first.
func (s *PostgresStore) QualityChecks(ctx context.Context, filter QualityFilter) ([]model.QualityCheckResult, error) {
	query := `SELECT ` + strings.Join(qualityColumns, ", ") + `, checked_at FROM filings.quality_checks WHERE true`
	var args []any
	if filter.CompanyID != 0 {
		args = append(args, filter.CompanyID)
		query += fmt.Sprintf(` AND company_id = $%d`, len(args))
	}
	if !filter.Since.IsZero() {
		args = append(args, filter.Since.UTC())
		query += fmt.Sprintf(` AND checked_at >= $%d`, len(args))
	}
	args = append(args, listLimit(filter.Limit, 100))
	query += fmt.Sprintf(` ORDER BY checked_at DESC, id DESC LIMIT $%d`, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: quality checks")
	}
	defer rows.Close()

	var out []model.QualityCheckResult
	for rows.Next() {
		var (
			r   model.QualityCheckResult
			end *time.Time
		)
		if err := rows.Scan(&r.CompanyID, &r.Field, &r.OurValue, &r.ReferenceValue, &r.ReferenceSource,
			&r.PctDeviation, &r.Acceptable, &r.Threshold, &end, &r.Notes, &r.CheckedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan quality check")
		}
		r.PeriodEnd = deref(end)
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: quality checks iterate")
}

// --- Prices ---

func (s *PostgresStore) SavePrices(ctx context.Context, prices []model.Price) (int64, error) {
	rows := make([][]any, 0, len(prices))
	for _, p := range prices {
		if p.CompanyID == 0 {
			return 0, eris.Errorf("postgres: save prices: %s on %s has no company", p.Symbol, p.TradeDate.Format(time.DateOnly))
		}
		rows = append(rows, []any{
			p.CompanyID, dateOnly(p.TradeDate), p.Open, p.High, p.Low, p.Close, p.Volume, p.Source,
		})
	}
	n, err := db.MergeRows(ctx, s.pool, db.Merge{
		Table:   "daily_prices",
		Columns: priceColumns,
		Key:     []string{"company_id", "trade_date"},
	}, rows)
	return n, eris.Wrap(err, "postgres: save prices")
}

func (s *PostgresStore) LatestPrice(ctx context.Context, companyID int64, asOf time.Time) (*model.Price, error) {
	p, err := scanPrice(s.pool.QueryRow(ctx, sqlLatestPrice, companyID, dateOnly(asOf)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: latest price %d", companyID)
	}
	return p, nil
}

// Prices returns a company's daily prices inside filter, newest first.
func (s *PostgresStore) Prices(ctx context.Context, companyID int64, filter PriceFilter) ([]model.Price, error) {
	query := `SELECT ` + strings.Join(priceColumns, ", ") + ` FROM filings.daily_prices WHERE company_id = $1`
	args := []any{companyID}
	if !filter.From.IsZero() {
		args = append(args, dateOnly(filter.From))
		query += fmt.Sprintf(` AND trade_date >= $%d`, len(args))
	}
	if !filter.To.IsZero() {
		args = append(args, dateOnly(filter.To))
		query += fmt.Sprintf(` AND trade_date <= $%d`, len(args))
	}
	args = append(args, listLimit(filter.Limit, 365))
	query += fmt.Sprintf(` ORDER BY trade_date DESC LIMIT $%d`, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: prices %d", companyID)
	}
	defer rows.Close()

	var out []model.Price
	for rows.Next() {
		p, err := scanPrice(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan price")
		}
		out = append(out, *p)
	}
	return out, eris.Wrap(rows.Err(), "postgres: prices iterate")
}

func scanPrice(row scannable) (*model.Price, error) {
	var (
		p               model.Price
		open, high, low *float64
	)
	if err := row.Scan(&p.CompanyID, &p.TradeDate, &open, &high, &low, &p.Close, &p.Volume, &p.Source); err != nil {
		return nil, err
	}
	p.Open, p.High, p.Low = deref(open), deref(high), deref(low)
	return &p, nil
}

// --- Run log ---

func (s *PostgresStore) StartRun(ctx context.Context, job string) (*model.Run, error) {
	run := &model.Run{
		ID:        uuid.New().String(),
		Job:       job,
		Status:    model.RunStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO filings.runs (id, job, status, started_at) VALUES ($1, $2, $3, $4)`,
		run.ID, run.Job, string(run.Status), run.StartedAt,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: start run %s", job)
	}
	return run, nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, stats model.RunStats) error {
	return s.finishRun(ctx, runID, stats, nil)
}

func (s *PostgresStore) FailRun(ctx context.Context, runID string, stats model.RunStats, runErr error) error {
	if runErr == nil {
		runErr = eris.New("run failed")
	}
	return s.finishRun(ctx, runID, stats, runErr)
}

func (s *PostgresStore) finishRun(ctx context.Context, runID string, stats model.RunStats, runErr error) error {
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal run stats")
	}
	status, msg := runFinished(stats, runErr)

	tag, err := s.pool.Exec(ctx,
		`UPDATE filings.runs SET status = $1, stats = $2, error = $3, completed_at = $4 WHERE id = $5`,
		string(status), statsJSON, msg, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finish run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	return nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, limit int) ([]model.Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, job, status, stats, error, started_at, completed_at
		 FROM filings.runs ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		var (
			r         model.Run
			statsJSON []byte
		)
		if err := rows.Scan(&r.ID, &r.Job, &r.Status, &statsJSON, &r.Error, &r.StartedAt, &r.CompletedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		if len(statsJSON) > 0 {
			if err := json.Unmarshal(statsJSON, &r.Stats); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal run stats")
			}
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

// --- shared helpers ---

var qualityColumns = []string{
	"company_id", "field_name", "our_value", "reference_value", "reference_source",
	"pct_deviation", "is_acceptable", "threshold", "period_end", "notes",
}

func validateStatement(rec *model.StatementRecord) error {
	switch {
	case rec == nil:
		return eris.New("store: nil statement")
	case rec.CompanyID == 0:
		return eris.New("store: statement has no company")
	case rec.Period.End.IsZero():
		return eris.Errorf("store: statement %s has no period end", rec.StatementType)
	case rec.StatementType == 0 || rec.Nature == 0 || rec.Period.Type == 0:
		return eris.Errorf("store: statement %s is not fully classified", rec.Key())
	}
	return nil
}

// lineItemRows returns one row per value, sorted by field name.
func lineItemRows(statementID int64, values map[string]float64) [][]any {
	names := make([]string, 0, len(values))
	for f := range values {
		names = append(names, f)
	}
	sort.Strings(names)
	rows := make([][]any, 0, len(names))
	for _, f := range names {
		rows = append(rows, []any{statementID, f, values[f]})
	}
	return rows
}

// ratioRow orders a ratio set as ratioColumns. Dates are passed in the
// driver's encoding.
func ratioRow(rs model.RatioSet, periodEnd, computed any) []any {
	row := []any{rs.CompanyID, periodEnd, rs.PeriodType.String(), rs.TTM, rs.Nature.String()}
	for _, name := range model.RatioNames {
		row = append(row, maybe(rs.Values.Get(name)))
	}
	return append(row, computed)
}

func computedAt(rs model.RatioSet) time.Time {
	if rs.ComputedAt.IsZero() {
		return time.Now().UTC()
	}
	return rs.ComputedAt
}

func decodeRatioSet(rs *model.RatioSet, ptype, nature string, values []*float64) error {
	var err error
	if rs.PeriodType, err = model.ParsePeriodType(ptype); err != nil {
		return eris.Wrap(err, "store: decode ratio set")
	}
	if rs.Nature, err = model.ParseResultNature(nature); err != nil {
		return eris.Wrap(err, "store: decode ratio set")
	}
	rs.Values = make(model.Ratios, len(values))
	for i, name := range model.RatioNames {
		rs.Values[name] = values[i]
	}
	return nil
}

func decodeStatement(rec *model.StatementRecord, st, nature, ptype string, valuesJSON, rawJSON []byte) error {
	var err error
	if rec.StatementType, err = model.ParseStatementType(st); err != nil {
		return eris.Wrap(err, "store: decode statement")
	}
	if rec.Nature, err = model.ParseResultNature(nature); err != nil {
		return eris.Wrap(err, "store: decode statement")
	}
	if rec.Period.Type, err = model.ParsePeriodType(ptype); err != nil {
		return eris.Wrap(err, "store: decode statement")
	}
	rec.Values = make(map[string]float64)
	if len(valuesJSON) > 0 {
		if err := json.Unmarshal(valuesJSON, &rec.Values); err != nil {
			return eris.Wrap(err, "store: unmarshal line items")
		}
	}
	if len(rawJSON) > 0 {
		if err := json.Unmarshal(rawJSON, &rec.RawItems); err != nil {
			return eris.Wrap(err, "store: unmarshal raw items")
		}
	}
	return nil
}

func marshalRaw(raw map[string]any) ([]byte, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	return json.Marshal(raw)
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	d := dateOnly(t)
	return &d
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}
