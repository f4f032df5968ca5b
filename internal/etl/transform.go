package etl

import "strings"

// ── Column filter ──────────────────────────────────────────
// Drops source columns that are bookkeeping rather than data before the
// record set is built: the marker and audit columns the tool writes
// itself, plus any column whose name starts with an ignored prefix.

// ColumnFilter selects the source columns that take part in a sync.
type ColumnFilter struct {
	IgnorePrefixes []string // normalized name prefixes, e.g. "2024-"
	Drop           []string // exact names, matched after normalization
}

// Keep reports whether the named column passes the filter.
func (f ColumnFilter) Keep(name string) bool {
	n := NormalizeColumnName(name)
	for _, d := range f.Drop {
		if d != "" && NormalizeColumnName(d) == n {
			return false
		}
	}
	for _, p := range f.IgnorePrefixes {
		if p != "" && strings.HasPrefix(n, NormalizeColumnName(p)) {
			return false
		}
	}
	return true
}

// Apply returns the kept columns and, for each, its position in cols.
func (f ColumnFilter) Apply(cols ColumnList) (ColumnList, []int) {
	kept := make(ColumnList, 0, len(cols))
	idx := make([]int, 0, len(cols))
	for i, c := range cols {
		if !f.Keep(c.Name) {
			continue
		}
		kept = append(kept, c)
		idx = append(idx, i)
	}
	return kept, idx
}

// Without returns cols minus the named columns (case-insensitive).
func Without(cols ColumnList, names []string) ColumnList {
	out := make(ColumnList, 0, len(cols))
	for _, c := range cols {
		if isExcluded(c.Name, names) {
			continue
		}
		out = append(out, c)
	}
	return out
}
