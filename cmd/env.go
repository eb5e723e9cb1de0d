package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/filings-cli/internal/archive"
	"github.com/sells-group/filings-cli/internal/fetcher"
	"github.com/sells-group/filings-cli/internal/fields"
	"github.com/sells-group/filings-cli/internal/model"
	"github.com/sells-group/filings-cli/internal/store"
)

// jobEnv holds the clients a batch command needs. Fields a command does not
// ask for are nil.
type jobEnv struct {
	Store      store.Store
	Fetcher    *fetcher.HTTPFetcher
	Archive    archive.Storage
	Normalizer *fields.Normalizer
}

// Close releases resources held by the environment.
func (e *jobEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// envOptions selects the optional clients of a jobEnv.
type envOptions struct {
	fetcher bool
	archive bool
	fields  bool
}

// initEnv validates cfg for mode, opens and migrates the store, and builds
// the requested clients. Callers should defer env.Close().
func initEnv(ctx context.Context, mode string, opts envOptions) (*jobEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	env := &jobEnv{Store: st}

	if err := st.Migrate(ctx); err != nil {
		env.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	if opts.fetcher {
		env.Fetcher = initFetcher()
	}
	if opts.archive {
		if env.Archive, err = initArchive(); err != nil {
			env.Close()
			return nil, err
		}
	}
	if opts.fields {
		if env.Normalizer, err = fields.New(cfg.Fields.AliasOverrides); err != nil {
			env.Close()
			return nil, eris.Wrap(err, "init field normalizer")
		}
	}
	return env, nil
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		return store.NewSQLite(cfg.Store.DatabaseURL)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func initFetcher() *fetcher.HTTPFetcher {
	ms := func(n int) time.Duration { return time.Duration(n) * time.Millisecond }
	return fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent:  cfg.Fetch.UserAgent,
		Timeout:    cfg.Fetch.Timeout(),
		MaxRetries: cfg.Fetch.MaxRetries,
		Intervals: map[string]time.Duration{
			fetcher.HostNSE:      ms(cfg.Fetch.NSEIntervalMS),
			fetcher.HostNSEArch:  ms(cfg.Fetch.NSEIntervalMS),
			fetcher.HostBSE:      ms(cfg.Fetch.BSEIntervalMS),
			fetcher.HostBSEAPI:   ms(cfg.Fetch.BSEIntervalMS),
			fetcher.HostScreener: ms(cfg.Fetch.ScreenerIntervalMS),
		},
	})
}

// initArchive returns nil when archiving is disabled.
func initArchive() (archive.Storage, error) {
	a := cfg.Archive
	if a.Driver == "none" {
		zap.L().Info("raw archive disabled")
		return nil, nil
	}
	s, err := archive.New(archive.Config{
		Driver: a.Driver,
		Path:   a.Path,
		S3: archive.S3Config{
			Bucket:    a.Bucket,
			Endpoint:  a.Endpoint,
			Region:    a.Region,
			AccessKey: a.AccessKey,
			SecretKey: a.SecretKey,
			Prefix:    a.Prefix,
		},
	})
	if err != nil {
		return nil, eris.Wrap(err, "init archive")
	}
	return s, nil
}

// loadCompanies returns the companies named by ids, or every active company
// when ids is empty.
func loadCompanies(ctx context.Context, st store.Store, ids []int64) ([]model.Company, error) {
	filter := store.CompanyFilter{ActiveOnly: len(ids) == 0, IDs: ids}
	companies, err := st.ListCompanies(ctx, filter)
	if err != nil {
		return nil, eris.Wrap(err, "list companies")
	}
	if len(ids) > 0 && len(companies) != len(ids) {
		return nil, eris.Errorf("found %d of %d requested companies", len(companies), len(ids))
	}
	return companies, nil
}

// parseAsOf parses a YYYY-MM-DD date. Empty means today (UTC).
func parseAsOf(s string) (time.Time, error) {
	if s == "" {
		now := time.Now().UTC()
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, eris.Errorf("invalid date %q, want YYYY-MM-DD", s)
	}
	return t, nil
}

// parseCompanyIDs parses comma-separated or repeated company ids, dropping
// duplicates.
func parseCompanyIDs(raw []string) ([]int64, error) {
	var ids []int64
	seen := make(map[int64]bool)
	for _, r := range raw {
		for _, part := range strings.Split(r, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			id, err := strconv.ParseInt(part, 10, 64)
			if err != nil || id <= 0 {
				return nil, eris.Errorf("invalid company id %q", part)
			}
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	return ids, nil
}

// printStats writes a one-line run summary.
func printStats(w io.Writer, job string, stats model.RunStats) {
	_, _ = fmt.Fprintf(w, "%s: %s (attempted %d, succeeded %d, skipped %d, failed %d, written %d)\n",
		job, stats.Status(), stats.Attempted, stats.Succeeded, stats.Skipped, stats.Failed, stats.Written)
}
