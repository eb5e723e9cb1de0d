package fetcher

import (
	"encoding/json"
	"io"

	"github.com/rotisserie/eris"
)

// DecodeJSON decodes a single JSON value from r.
func DecodeJSON[T any](r io.Reader) (*T, error) {
	var v T
	dec := json.NewDecoder(r)
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return nil, eris.Wrap(err, "json: decode")
	}
	return &v, nil
}
