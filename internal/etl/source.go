package etl

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// ── Source ──────────────────────────────────────────────────
// A Source extracts rows from a spreadsheet-like file.
// Implementations live in etl/sources/, one file per source type.
//
// Pattern: Airbyte connector protocol (check, discover, read).

// SourceConfig is an opaque configuration map parsed per source type.
type SourceConfig map[string]any

// String returns a string option, or def when unset.
func (c SourceConfig) String(key, def string) string {
	if v, ok := c[key].(string); ok && v != "" {
		return v
	}
	return def
}

// ConfigField describes a single configuration input for a source.
type ConfigField struct {
	Key      string   `json:"key" yaml:"key"`
	Label    string   `json:"label" yaml:"label"`
	Type     string   `json:"type" yaml:"type"` // "string" | "select" | "file"
	Required bool     `json:"required" yaml:"required"`
	Options  []string `json:"options,omitempty" yaml:"options,omitempty"`
	Default  string   `json:"default,omitempty" yaml:"default,omitempty"`
	Help     string   `json:"help,omitempty" yaml:"help,omitempty"`
}

// SourceSpec describes a source type and its config fields.
type SourceSpec struct {
	Type         string        `json:"type" yaml:"type"`
	Label        string        `json:"label" yaml:"label"`
	Extensions   []string      `json:"extensions" yaml:"extensions"`
	ConfigFields []ConfigField `json:"configFields" yaml:"config_fields"`
}

// Source is the interface every data source must implement.
type Source interface {
	// Spec returns metadata about this source type.
	Spec() SourceSpec

	// Discover reads the header and returns the normalized column list.
	Discover(ctx context.Context, cfg SourceConfig) (ColumnList, error)

	// Read streams data rows aligned with Discover's columns.
	// The row channel is closed when all rows have been read or ctx is
	// cancelled. Errors are sent on the error channel (buffered size 1).
	Read(ctx context.Context, cfg SourceConfig) (<-chan Row, <-chan error)
}

// Annotator writes a marker value back into the source file.
type Annotator interface {
	// Annotate sets marker to value on every row whose primary key is in
	// keys, adding the marker column when absent. It returns the number of
	// rows marked. Rows not in keys are left exactly as they were.
	Annotate(ctx context.Context, cfg SourceConfig, primaryKey, marker string, keys map[string]bool, value string) (int, error)
}

// ── Source Registry ────────────────────────────────────────
// Compile-time registration via init() in each source file.

var (
	registryMu sync.RWMutex
	registry   = map[string]Source{}
)

// RegisterSource registers a source under its Spec().Type.
// Called from init() in each source implementation file.
func RegisterSource(s Source) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[s.Spec().Type] = s
}

// GetSource returns a registered source by type, or an error if not found.
func GetSource(typ string) (Source, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	s, ok := registry[typ]
	if !ok {
		return nil, fmt.Errorf("unknown source type: %q", typ)
	}
	return s, nil
}

// ListSources returns the specs of all registered sources, sorted by type.
func ListSources() []SourceSpec {
	registryMu.RLock()
	defer registryMu.RUnlock()
	specs := make([]SourceSpec, 0, len(registry))
	for _, s := range registry {
		specs = append(specs, s.Spec())
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Type < specs[j].Type })
	return specs
}

// ReadRecordSet discovers and reads a source into a keyed record set,
// keeping only the columns filter accepts. Duplicate or missing keys stop
// the read with a *DataError.
func ReadRecordSet(ctx context.Context, src Source, cfg SourceConfig, primaryKey string, filter ColumnFilter) (*RecordSet, error) {
	all, err := src.Discover(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("discover: %w", err)
	}
	cols, idx := filter.Apply(all)

	rs, err := NewRecordSet(cols, primaryKey)
	if err != nil {
		return nil, err
	}

	rowCh, errCh := src.Read(ctx, cfg)
	for row := range rowCh {
		vals := make([]any, len(idx))
		for i, si := range idx {
			if si < len(row.Values) {
				vals[i] = row.Values[si]
			}
		}
		if err := rs.Add(row.Index, vals); err != nil {
			// Unblock the producer before returning.
			go func() {
				for range rowCh {
				}
			}()
			return nil, err
		}
	}
	if err := <-errCh; err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}
	return rs, nil
}
