package merge

import (
	"strings"

	"github.com/shandysiswandi/mailmerge/internal/mailmerge/entity"
)

// NormalizeHeader lower-cases and trims name and drops every character that is
// not an ASCII letter, digit or underscore. It is total and idempotent.
func NormalizeHeader(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))

	var b strings.Builder
	b.Grow(len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		if (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') || c == '_' {
			b.WriteByte(c)
		}
	}

	return b.String()
}

// Bind maps every normalized header name to the row's value at the same index.
// Missing trailing values bind to "". When two headers normalize to the same
// key the later column wins.
func Bind(header, row []string) entity.FieldBinding {
	binding := make(entity.FieldBinding, len(header))
	for i, h := range header {
		binding[NormalizeHeader(h)] = entity.Cell(row, i)
	}
	return binding
}

// HeaderIndex returns the column index of each normalized header name, with the
// same last-wins rule as Bind.
func HeaderIndex(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[NormalizeHeader(h)] = i
	}
	return idx
}

// Collisions returns, per normalized key, the original headers that share it.
// Keys used by a single column are omitted.
func Collisions(header []string) map[string][]string {
	seen := make(map[string][]string, len(header))
	for _, h := range header {
		key := NormalizeHeader(h)
		seen[key] = append(seen[key], h)
	}

	out := make(map[string][]string)
	for k, v := range seen {
		if len(v) > 1 {
			out[k] = v
		}
	}
	return out
}
