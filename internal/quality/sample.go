package quality

import (
	"math/rand/v2"

	"github.com/sells-group/filings-cli/internal/model"
)

// Sample returns n companies chosen uniformly without replacement, or all of
// them when n is not smaller than the population. The input is not
// modified. A nil r uses the global source.
func Sample(companies []model.Company, n int, r *rand.Rand) []model.Company {
	if n <= 0 {
		return nil
	}
	out := make([]model.Company, len(companies))
	copy(out, companies)
	if n >= len(out) {
		return out
	}
	shuffle := rand.Shuffle
	if r != nil {
		shuffle = r.Shuffle
	}
	shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out[:n]
}
