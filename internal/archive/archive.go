// Package archive keeps the raw bytes of ingested filings so a statement can
// be re-extracted without fetching the source again.
package archive

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// ErrNotFound is returned by Read when nothing is stored at the path.
var ErrNotFound = eris.New("archive: not found")

// Storage is a flat key/value blob store addressed by slash-separated paths.
type Storage interface {
	Write(ctx context.Context, path string, data []byte) error
	Read(ctx context.Context, path string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]string, error)
	Delete(ctx context.Context, path string) error
	Exists(ctx context.Context, path string) (bool, error)
}

// Config selects and configures a Storage backend.
type Config struct {
	Driver string // "local" (default) or "s3"
	Path   string
	S3     S3Config
}

// New returns the backend named by cfg.Driver.
func New(cfg Config) (Storage, error) {
	switch strings.ToLower(cfg.Driver) {
	case "", "local":
		if cfg.Path == "" {
			return nil, eris.New("archive: local driver requires a path")
		}
		return NewLocalFS(cfg.Path)
	case "s3":
		return NewS3(cfg.S3)
	default:
		return nil, eris.Errorf("archive: unknown driver %q", cfg.Driver)
	}
}

// Key returns the archive path of a raw document:
// company/<id>/<source>/<period_end>.<ext>. A zero periodEnd is written as
// "undated".
func Key(companyID int64, source string, periodEnd time.Time, ext string) string {
	end := "undated"
	if !periodEnd.IsZero() {
		end = periodEnd.Format(time.DateOnly)
	}
	ext = strings.TrimPrefix(strings.ToLower(ext), ".")
	if ext == "" {
		ext = "bin"
	}
	return path.Join("company", fmt.Sprint(companyID), sanitize(source), end+"."+ext)
}

// DocumentKey is Key with the first 12 hex digits of the SHA-256 of data
// appended to the name: company/<id>/<source>/<period_end>-<digest>.<ext>.
// Documents for the same company and period get distinct paths, and the
// same bytes always land on the same path.
func DocumentKey(companyID int64, source string, periodEnd time.Time, data []byte, ext string) string {
	sum := sha256.Sum256(data)
	k := Key(companyID, source, periodEnd, ext)
	dot := strings.LastIndex(k, ".")
	return k[:dot] + "-" + hex.EncodeToString(sum[:])[:12] + k[dot:]
}

// MarketKey returns the archive path of an exchange-wide file such as a
// bhavcopy: market/<source>/<date>.<ext>.
func MarketKey(source string, day time.Time, ext string) string {
	k := Key(0, source, day, ext)
	return "market/" + strings.TrimPrefix(k, "company/0/")
}

func sanitize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "unknown"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		default:
			return '_'
		}
	}, s)
}
