package roster

import (
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// Key names a filterable field. Only keys present in a Predicates table are
// accepted; the value never becomes part of the SQL text.
type Key string

// Filter is a conjunction of predicates keyed by field. Empty values are ignored.
type Filter map[Key]string

// FilterFromQuery copies every query parameter into a Filter. Unknown keys
// are kept so that Predicates.Build can reject them.
func FilterFromQuery(q url.Values) Filter {
	f := Filter{}
	for k, vs := range q {
		if len(vs) == 0 {
			continue
		}
		f[Key(k)] = vs[len(vs)-1]
	}
	return f
}

// Predicate turns a caller value into one parameterized clause.
type Predicate func(value string) (clause string, arg any, err error)

// Predicates is the fixed allow-list of filter keys for one entity.
type Predicates map[Key]Predicate

// Build validates f against the allow-list and returns the clauses (joined
// with AND by the caller) and their arguments. Keys are visited in sorted
// order so the generated SQL is stable.
func (p Predicates) Build(f Filter) ([]string, []any, error) {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)

	var (
		clauses []string
		args    []any
	)
	for _, k := range keys {
		build, ok := p[Key(k)]
		if !ok {
			return nil, nil, Invalid(k, "is not a filterable field")
		}
		v := strings.TrimSpace(f[Key(k)])
		if v == "" {
			continue
		}
		clause, arg, err := build(v)
		if err != nil {
			return nil, nil, err
		}
		clauses = append(clauses, clause)
		args = append(args, arg)
	}
	return clauses, args, nil
}

// Contains matches a case-insensitive substring of column.
func Contains(column string) Predicate {
	clause := "LOWER(" + column + `) LIKE ? ESCAPE '\'`
	return func(v string) (string, any, error) {
		return clause, "%" + escapeLike(strings.ToLower(v)) + "%", nil
	}
}

// Equals matches column exactly.
func Equals(column string) Predicate {
	clause := column + " = ?"
	return func(v string) (string, any, error) {
		return clause, v, nil
	}
}

// EqualsInt matches an integer column; non-numeric values are a validation error.
func EqualsInt(column string) Predicate {
	clause := column + " = ?"
	return func(v string) (string, any, error) {
		n, err := strconv.Atoi(v)
		if err != nil {
			return "", nil, Invalid(column, "must be an integer")
		}
		return clause, n, nil
	}
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
