package etl

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// memStore is an in-memory Store. A Tx buffers its writes and publishes
// them on Commit.
type memStore struct {
	mu      sync.Mutex
	txDDL   bool
	pk      string
	columns []string
	rows    map[string]map[string]any
	order   []string

	begins  int
	commits int

	// failOp fails the named Tx operation failN times.
	failOp string
	failN  int

	// vanish lists keys that disappear between snapshot and update.
	vanish map[string]bool
}

func newMemStore(transactionalDDL bool) *memStore {
	return &memStore{txDDL: transactionalDDL, rows: map[string]map[string]any{}}
}

func (m *memStore) Driver() string                 { return "mem" }
func (m *memStore) Ping(ctx context.Context) error { return nil }
func (m *memStore) TransactionalDDL() bool         { return m.txDDL }
func (m *memStore) Close() error                   { return nil }

func (m *memStore) Describe(ctx context.Context, table string) (*TableInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.columns == nil {
		return &TableInfo{}, nil
	}
	return &TableInfo{Exists: true, Columns: TextColumns(m.columns...)}, nil
}

func (m *memStore) ReadRows(ctx context.Context, table string, columns ColumnList) ([][]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]any, 0, len(m.order))
	for _, k := range m.order {
		row := make([]any, len(columns))
		for i, c := range columns {
			row[i] = m.rows[k][c.Name]
		}
		out = append(out, row)
	}
	return out, nil
}

func (m *memStore) Begin(ctx context.Context) (Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.begins++
	return &memTx{store: m}, nil
}

func (m *memStore) get(key, col string) any {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.rows[key]; ok {
		return r[col]
	}
	return nil
}

// rowColumns returns the column names stored for key.
func (m *memStore) rowColumns(key string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var cols []string
	for c := range m.rows[key] {
		cols = append(cols, c)
	}
	return cols
}

func (m *memStore) shouldFail(op string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failOp == op && m.failN > 0 {
		m.failN--
		return true
	}
	return false
}

type memTx struct {
	store *memStore
	ops   []func(m *memStore)
	done  bool
}

var errInjected = errors.New("injected failure")

func (t *memTx) CreateTable(ctx context.Context, table string, columns ColumnList, primaryKey string) error {
	if t.store.shouldFail("create_table") {
		return errInjected
	}
	t.ops = append(t.ops, func(m *memStore) {
		if m.columns == nil {
			m.columns = columns.Names()
			m.pk = primaryKey
		}
	})
	return nil
}

func (t *memTx) AddColumn(ctx context.Context, table string, column Column) error {
	if t.store.shouldFail("add_column") {
		return errInjected
	}
	t.ops = append(t.ops, func(m *memStore) {
		for _, c := range m.columns {
			if strings.EqualFold(c, column.Name) {
				return
			}
		}
		m.columns = append(m.columns, column.Name)
	})
	return nil
}

func (t *memTx) InsertRows(ctx context.Context, table string, columns []string, rows [][]any) error {
	if t.store.shouldFail("insert") {
		return errInjected
	}
	t.ops = append(t.ops, func(m *memStore) {
		for _, r := range rows {
			rec := map[string]any{}
			for i, c := range columns {
				rec[c] = r[i]
			}
			key := rec[m.pk].(string)
			m.rows[key] = rec
			m.order = append(m.order, key)
		}
	})
	return nil
}

func (t *memTx) UpdateRow(ctx context.Context, table, primaryKey, key string, columns []string, values []any) (bool, error) {
	if t.store.shouldFail("update") {
		return false, errInjected
	}
	t.store.mu.Lock()
	_, ok := t.store.rows[key]
	gone := t.store.vanish[key]
	t.store.mu.Unlock()
	if !ok || gone {
		return false, nil
	}
	t.ops = append(t.ops, func(m *memStore) {
		for i, c := range columns {
			m.rows[key][c] = values[i]
		}
	})
	return true, nil
}

func (t *memTx) UpsertRows(ctx context.Context, table, primaryKey string, columns []string, rows [][]any) error {
	if t.store.shouldFail("upsert") {
		return errInjected
	}
	t.ops = append(t.ops, func(m *memStore) {
		pk := 0
		for i, c := range columns {
			if strings.EqualFold(c, primaryKey) {
				pk = i
			}
		}
		for _, r := range rows {
			key := r[pk].(string)
			rec, ok := m.rows[key]
			if !ok {
				rec = map[string]any{}
				m.rows[key] = rec
				m.order = append(m.order, key)
			}
			for i, c := range columns {
				rec[c] = r[i]
			}
		}
	})
	return nil
}

func (t *memTx) Commit() error {
	if t.done {
		return nil
	}
	t.done = true
	if t.store.shouldFail("commit") {
		return errInjected
	}
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	for _, op := range t.ops {
		op(t.store)
	}
	t.store.commits++
	return nil
}

func (t *memTx) Rollback() error {
	t.done = true
	t.ops = nil
	return nil
}
