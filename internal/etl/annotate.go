package etl

import (
	"context"
	"time"
)

// ── Source Annotator ───────────────────────────────────────
// After a commit, the rows that were written get a marker timestamp in the
// source file so a person looking at the sheet can see what was ingested.

// DefaultMarkerColumn is the header used for the marker column.
const DefaultMarkerColumn = "Ingestion Timestamp"

// MarkerLayout formats the marker timestamp written back to the source.
const MarkerLayout = "2006-01-02 15:04:05"

// Annotate marks the applied keys in the source with the run's wall-clock
// time. Failures come back as *AnnotationError; the destination commit is
// never affected.
func Annotate(ctx context.Context, a Annotator, cfg SourceConfig, primaryKey string, keys []string, marker string, at time.Time) (int, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	set := make(map[string]bool, len(keys))
	for _, k := range keys {
		set[k] = true
	}
	n, err := a.Annotate(ctx, cfg, primaryKey, marker, set, at.Format(MarkerLayout))
	if err != nil {
		return n, &AnnotationError{Source: cfg.String("path", ""), Err: err}
	}
	return n, nil
}
