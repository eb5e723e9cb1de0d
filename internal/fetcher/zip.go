package fetcher

import (
	"archive/zip"
	"bytes"
	"io"
	"strings"

	"github.com/rotisserie/eris"
)

// maxEntry caps the uncompressed size of an extracted entry.
const maxEntry = 256 << 20

// IsZIP reports whether data starts with a ZIP local file header.
func IsZIP(data []byte) bool {
	return len(data) >= 4 && bytes.Equal(data[:4], []byte("PK\x03\x04"))
}

// ReadZIPEntry returns the contents and name of the first file in the archive
// whose name ends with suffix (case-insensitive). An empty suffix matches the
// first file.
func ReadZIPEntry(data []byte, suffix string) ([]byte, string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, "", eris.Wrap(err, "zip: open archive")
	}

	suffix = strings.ToLower(suffix)
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || !strings.HasSuffix(strings.ToLower(f.Name), suffix) {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, "", eris.Wrapf(err, "zip: open %s", f.Name)
		}
		body, err := io.ReadAll(io.LimitReader(rc, maxEntry))
		_ = rc.Close()
		if err != nil {
			return nil, "", eris.Wrapf(err, "zip: read %s", f.Name)
		}
		return body, f.Name, nil
	}
	return nil, "", eris.Errorf("zip: no entry matching %q", suffix)
}
