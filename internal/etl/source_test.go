package etl

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sliceSource serves fixed rows and records annotations.
type sliceSource struct {
	typ     string
	header  []string
	rows    [][]any
	readErr error

	annotated map[string]bool
	marker    string
	value     string
	annErr    error
}

func (s *sliceSource) Spec() SourceSpec { return SourceSpec{Type: s.typ, Label: s.typ} }

func (s *sliceSource) Discover(ctx context.Context, cfg SourceConfig) (ColumnList, error) {
	cols := make(ColumnList, len(s.header))
	for i, h := range s.header {
		cols[i] = Column{Name: NormalizeColumnName(h), Type: TypeText}
	}
	return cols, nil
}

func (s *sliceSource) Read(ctx context.Context, cfg SourceConfig) (<-chan Row, <-chan error) {
	out := make(chan Row)
	errCh := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errCh)
		for i, r := range s.rows {
			select {
			case out <- Row{Index: i + 2, Values: r}:
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			}
		}
		if s.readErr != nil {
			errCh <- s.readErr
		}
	}()
	return out, errCh
}

func (s *sliceSource) Annotate(ctx context.Context, cfg SourceConfig, primaryKey, marker string, keys map[string]bool, value string) (int, error) {
	if s.annErr != nil {
		return 0, s.annErr
	}
	s.annotated, s.marker, s.value = keys, marker, value
	return len(keys), nil
}

func TestReadRecordSet_FiltersColumns(t *testing.T) {
	src := &sliceSource{
		header: []string{"City", "Temp", "2023-old", "Ingestion Timestamp", "updated_timestamp"},
		rows: [][]any{
			{"Pune", "30", "x", "2024-01-01 00:00:00", "stale"},
			{"Delhi", "35"},
		},
	}
	filter := ColumnFilter{
		IgnorePrefixes: []string{"2023-"},
		Drop:           []string{DefaultMarkerColumn, DefaultAuditColumn},
	}

	rs, err := ReadRecordSet(context.Background(), src, nil, "city", filter)
	require.NoError(t, err)
	assert.Equal(t, []string{"city", "temp"}, rs.Columns.Names())
	assert.Equal(t, []string{"Pune", "Delhi"}, rs.Keys())

	row, _ := rs.Lookup("Delhi")
	assert.Equal(t, 3, row.Index)
	assert.Equal(t, []any{"Delhi", "35"}, row.Values)
}

func TestReadRecordSet_DuplicateKeyStopsRead(t *testing.T) {
	rows := [][]any{{"Pune", "30"}, {"Pune", "31"}}
	for i := 0; i < 50; i++ {
		rows = append(rows, []any{string(rune('a' + i%26)) + "x" + string(rune('a'+i/26)), "1"})
	}
	src := &sliceSource{header: []string{"city", "temp"}, rows: rows}

	_, err := ReadRecordSet(context.Background(), src, nil, "city", ColumnFilter{})
	var de *DataError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "Pune", de.Key)
	assert.Equal(t, 2, de.OtherRow)
	assert.Equal(t, 3, de.Row)
}

func TestReadRecordSet_ReadError(t *testing.T) {
	src := &sliceSource{header: []string{"city"}, rows: [][]any{{"Pune"}}, readErr: errors.New("truncated")}
	_, err := ReadRecordSet(context.Background(), src, nil, "city", ColumnFilter{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read: truncated")
}

func TestReadRecordSet_MissingPrimaryKeyColumn(t *testing.T) {
	src := &sliceSource{header: []string{"city"}}
	_, err := ReadRecordSet(context.Background(), src, nil, "id", ColumnFilter{})
	assert.ErrorIs(t, err, ErrSchema)
}

func TestRegistry(t *testing.T) {
	RegisterSource(&sliceSource{typ: "zz_test"})

	src, err := GetSource("zz_test")
	require.NoError(t, err)
	assert.Equal(t, "zz_test", src.Spec().Type)

	_, err = GetSource("nope")
	assert.Error(t, err)

	specs := ListSources()
	for i := 1; i < len(specs); i++ {
		assert.Less(t, specs[i-1].Type, specs[i].Type)
	}
}

func TestSourceConfigString(t *testing.T) {
	cfg := SourceConfig{"path": "a.csv", "n": 3, "empty": ""}
	assert.Equal(t, "a.csv", cfg.String("path", "x"))
	assert.Equal(t, "x", cfg.String("n", "x"))
	assert.Equal(t, "x", cfg.String("empty", "x"))
	assert.Equal(t, "x", cfg.String("missing", "x"))
}

func TestAnnotate(t *testing.T) {
	src := &sliceSource{}
	at := time.Date(2024, 3, 15, 9, 30, 5, 0, time.UTC)

	n, err := Annotate(context.Background(), src, SourceConfig{"path": "w.csv"}, "city", []string{"Pune", "Delhi"}, "Ingestion Timestamp", at)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, map[string]bool{"Pune": true, "Delhi": true}, src.annotated)
	assert.Equal(t, "2024-03-15 09:30:05", src.value)

	n, err = Annotate(context.Background(), src, nil, "city", nil, "m", at)
	require.NoError(t, err)
	assert.Zero(t, n)

	src.annErr = errors.New("read-only file")
	_, err = Annotate(context.Background(), src, SourceConfig{"path": "w.csv"}, "city", []string{"Pune"}, "m", at)
	var ae *AnnotationError
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, "w.csv", ae.Source)
	assert.ErrorIs(t, err, ErrAnnotation)
}

func TestColumnFilter(t *testing.T) {
	f := ColumnFilter{IgnorePrefixes: []string{"Tmp "}, Drop: []string{"Ingestion Timestamp"}}

	assert.True(t, f.Keep("city"))
	assert.False(t, f.Keep("ingestion_timestamp"))
	assert.False(t, f.Keep("Ingestion Timestamp"))
	assert.False(t, f.Keep("tmp_scratch"))

	kept, idx := f.Apply(TextColumns("city", "tmp_a", "temp", "ingestion_timestamp"))
	assert.Equal(t, []string{"city", "temp"}, kept.Names())
	assert.Equal(t, []int{0, 2}, idx)

	assert.Equal(t, []string{"city"}, Without(TextColumns("city", "Notes"), []string{"notes"}).Names())
}
