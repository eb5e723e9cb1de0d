package fields

import (
	"os"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/filings-cli/internal/model"
)

var (
	// ErrDuplicateAlias is returned when two canonical fields claim the same alias.
	ErrDuplicateAlias = eris.New("fields: duplicate alias")
	// ErrUnknownField is returned when an override names a non-canonical field.
	ErrUnknownField = eris.New("fields: unknown canonical field")
)

// std is the normalizer built from the built-in alias tables.
var std *Normalizer

// Normalizer resolves raw vendor field names to canonical fields through a
// reverse alias map. It is immutable after construction and safe for
// concurrent use.
type Normalizer struct {
	byAlias map[string]string
}

// Key reduces a raw field name to its match form: lowercase, underscores and
// hyphens treated as spaces, whitespace collapsed.
func Key(raw string) string {
	s := strings.ToLower(raw)
	s = strings.NewReplacer("_", " ", "-", " ").Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

// New builds a normalizer from the built-in vocabulary plus optional extra
// aliases keyed by canonical field name. Any alias claimed by two different
// fields fails the build.
func New(extra map[string][]string) (*Normalizer, error) {
	n := &Normalizer{byAlias: make(map[string]string, 512)}

	for _, d := range vocabulary {
		if !d.derived {
			if err := n.add(d.name, d.name); err != nil {
				return nil, err
			}
		}
		for _, a := range d.aliases {
			if err := n.add(a, d.name); err != nil {
				return nil, err
			}
		}
	}

	// Deterministic order so the reported conflict is stable.
	names := make([]string, 0, len(extra))
	for name := range extra {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		d, ok := byName[name]
		if !ok || d.derived {
			return nil, eris.Wrapf(ErrUnknownField, "override %q", name)
		}
		for _, a := range extra[name] {
			if err := n.add(a, name); err != nil {
				return nil, err
			}
		}
	}

	return n, nil
}

// MustNew is like New but panics on a configuration error.
func MustNew(extra map[string][]string) *Normalizer {
	n, err := New(extra)
	if err != nil {
		panic(err)
	}
	return n
}

func (n *Normalizer) add(alias, canonical string) error {
	k := Key(alias)
	if k == "" {
		return nil
	}
	if prev, ok := n.byAlias[k]; ok && prev != canonical {
		return eris.Wrapf(ErrDuplicateAlias, "%q maps to both %s and %s", alias, prev, canonical)
	}
	n.byAlias[k] = canonical
	return nil
}

// Normalize returns the canonical field for raw, or false when unmatched.
func (n *Normalizer) Normalize(raw string) (string, bool) {
	if raw == "" {
		return "", false
	}
	c, ok := n.byAlias[Key(raw)]
	return c, ok
}

// NormalizeIn resolves raw only if the canonical field belongs to the given
// statement.
func (n *Normalizer) NormalizeIn(raw string, st model.StatementType) (string, bool) {
	c, ok := n.Normalize(raw)
	if !ok {
		return "", false
	}
	if s, _ := StatementOf(c); s != st {
		return "", false
	}
	return c, true
}

// Len returns the number of distinct aliases.
func (n *Normalizer) Len() int {
	return len(n.byAlias)
}

// Default returns the normalizer built from the built-in tables.
func Default() *Normalizer {
	return std
}

// LoadOverrides reads a YAML alias override file of the form
//
//	revenue:
//	  - Sales Turnover
//	net_profit:
//	  - Profit attributable to shareholders
func LoadOverrides(path string) (map[string][]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "fields: read overrides %s", path)
	}
	var out map[string][]string
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, eris.Wrapf(err, "fields: parse overrides %s", path)
	}
	return out, nil
}

// NewFromFile builds a normalizer with the overrides in path. An empty path
// yields the default normalizer.
func NewFromFile(path string) (*Normalizer, error) {
	if path == "" {
		return std, nil
	}
	extra, err := LoadOverrides(path)
	if err != nil {
		return nil, err
	}
	return New(extra)
}
