package dbclient

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sheetsync/internal/domain"
	"sheetsync/internal/etl"
)

func newTestStore(t *testing.T) *sqlStore {
	t.Helper()
	s, err := newSQLiteStore(&domain.DatabaseConnection{
		Driver: domain.DatabaseDriverSQLite,
		Host:   filepath.Join(t.TempDir(), "dest.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Ping(context.Background()))
	return s
}

func withTx(t *testing.T, s *sqlStore, fn func(tx etl.Tx)) {
	t.Helper()
	ctx := context.Background()
	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	fn(tx)
	require.NoError(t, tx.Commit())
}

func readAll(t *testing.T, s *sqlStore, table string, cols ...string) [][]any {
	t.Helper()
	rows, err := s.ReadRows(context.Background(), table, etl.TextColumns(cols...))
	require.NoError(t, err)
	return rows
}

func TestSQLiteStore_DescribeMissingTable(t *testing.T) {
	s := newTestStore(t)

	info, err := s.Describe(context.Background(), "weather")
	require.NoError(t, err)
	assert.False(t, info.Exists)
	assert.Empty(t, info.Columns)
	assert.True(t, s.TransactionalDDL())
	assert.Equal(t, "sqlite", s.Driver())
}

func TestSQLiteStore_CreateAddInsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	withTx(t, s, func(tx etl.Tx) {
		require.NoError(t, tx.CreateTable(ctx, "weather", etl.TextColumns("city", "max_temp"), "city"))
		require.NoError(t, tx.AddColumn(ctx, "weather", etl.Column{Name: "humidity", Type: etl.TypeText}))
		// Adding twice is a no-op.
		require.NoError(t, tx.AddColumn(ctx, "weather", etl.Column{Name: "humidity", Type: etl.TypeText}))
		require.NoError(t, tx.InsertRows(ctx, "weather", []string{"city", "max_temp", "humidity"}, [][]any{
			{"Pune", "31", nil},
			{"Delhi", "40", "12"},
		}))
	})

	info, err := s.Describe(ctx, "weather")
	require.NoError(t, err)
	assert.True(t, info.Exists)
	assert.Equal(t, []string{"city", "max_temp", "humidity"}, info.Columns.Names())

	rows := readAll(t, s, "weather", "city", "max_temp", "humidity")
	assert.ElementsMatch(t, [][]any{{"Pune", "31", nil}, {"Delhi", "40", "12"}}, rows)
}

func TestSQLiteStore_CreateTableIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		withTx(t, s, func(tx etl.Tx) {
			require.NoError(t, tx.CreateTable(ctx, "t", etl.TextColumns("id", "v"), "id"))
		})
	}
}

func TestSQLiteStore_PrimaryKeyEnforced(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	withTx(t, s, func(tx etl.Tx) {
		require.NoError(t, tx.CreateTable(ctx, "t", etl.TextColumns("id", "v"), "id"))
		require.NoError(t, tx.InsertRows(ctx, "t", []string{"id", "v"}, [][]any{{"1", "a"}}))
	})

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback()
	assert.Error(t, tx.InsertRows(ctx, "t", []string{"id", "v"}, [][]any{{"1", "b"}}))
}

func TestSQLiteStore_KeysDifferingInCaseAreDistinct(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	withTx(t, s, func(tx etl.Tx) {
		require.NoError(t, tx.CreateTable(ctx, "t", etl.TextColumns("city", "v"), "city"))
		require.NoError(t, tx.InsertRows(ctx, "t", []string{"city", "v"}, [][]any{{"Pune", "a"}, {"pune", "b"}}))
	})
	assert.Len(t, readAll(t, s, "t", "city", "v"), 2)
}

func TestSQLiteStore_InsertChunksLargeBatches(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	const n = 1200 // 3 columns → more than one statement under 999 params
	rows := make([][]any, n)
	for i := range rows {
		rows[i] = []any{fmt.Sprintf("k%04d", i), "x", "y"}
	}
	withTx(t, s, func(tx etl.Tx) {
		require.NoError(t, tx.CreateTable(ctx, "big", etl.TextColumns("id", "a", "b"), "id"))
		require.NoError(t, tx.InsertRows(ctx, "big", []string{"id", "a", "b"}, rows))
	})

	assert.Len(t, readAll(t, s, "big", "id"), n)
}

func TestSQLiteStore_UpdateRow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	withTx(t, s, func(tx etl.Tx) {
		require.NoError(t, tx.CreateTable(ctx, "t", etl.TextColumns("id", "a", "b"), "id"))
		require.NoError(t, tx.InsertRows(ctx, "t", []string{"id", "a", "b"}, [][]any{{"1", "old", "keep"}}))
	})

	withTx(t, s, func(tx etl.Tx) {
		found, err := tx.UpdateRow(ctx, "t", "id", "1", []string{"a"}, []any{"new"})
		require.NoError(t, err)
		assert.True(t, found)

		found, err = tx.UpdateRow(ctx, "t", "id", "missing", []string{"a"}, []any{"new"})
		require.NoError(t, err)
		assert.False(t, found)
	})

	assert.Equal(t, [][]any{{"1", "new", "keep"}}, readAll(t, s, "t", "id", "a", "b"))
}

func TestSQLiteStore_UpsertRows(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	withTx(t, s, func(tx etl.Tx) {
		require.NoError(t, tx.CreateTable(ctx, "t", etl.TextColumns("id", "a", "b"), "id"))
		require.NoError(t, tx.InsertRows(ctx, "t", []string{"id", "a", "b"}, [][]any{{"1", "a1", "b1"}}))
	})

	withTx(t, s, func(tx etl.Tx) {
		require.NoError(t, tx.UpsertRows(ctx, "t", "id", []string{"id", "a"}, [][]any{
			{"1", "a2"},
			{"2", "new"},
		}))
	})

	rows := readAll(t, s, "t", "id", "a", "b")
	assert.ElementsMatch(t, [][]any{{"1", "a2", "b1"}, {"2", "new", nil}}, rows)
}

func TestSQLiteStore_RollbackDiscardsDDLAndRows(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.CreateTable(ctx, "t", etl.TextColumns("id"), "id"))
	require.NoError(t, tx.InsertRows(ctx, "t", []string{"id"}, [][]any{{"1"}}))
	require.NoError(t, tx.Rollback())

	info, err := s.Describe(ctx, "t")
	require.NoError(t, err)
	assert.False(t, info.Exists)
}

func TestOpenStore(t *testing.T) {
	store, err := OpenStore(&domain.DatabaseConnection{
		Driver: domain.DatabaseDriverSQLite,
		Host:   filepath.Join(t.TempDir(), "x.db"),
	}, "")
	require.NoError(t, err)
	defer store.Close()
	assert.Equal(t, "sqlite", store.Driver())

	_, err = OpenStore(&domain.DatabaseConnection{Driver: "oracle"}, "")
	assert.Error(t, err)
}
