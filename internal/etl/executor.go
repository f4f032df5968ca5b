package etl

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"sheetsync/internal/logging"
)

// ── Write Executor ─────────────────────────────────────────
// Applies a schema plan and a diff to the destination as one unit.
// Stores with transactional DDL get a single transaction; the others get
// an idempotent DDL step followed by a retried DML transaction.

// DefaultWriteRetries is the DML retry count when none is configured.
const DefaultWriteRetries = 3

// AuditLayout formats the executor-assigned audit timestamp.
const AuditLayout = "2006-01-02 15:04:05"

// AppliedKeys lists the keys a successful Apply wrote.
type AppliedKeys struct {
	Inserted []string `json:"inserted" yaml:"inserted"`
	Updated  []string `json:"updated" yaml:"updated"`
	// Missing are update targets that matched no destination row.
	Missing []string `json:"missing,omitempty" yaml:"missing,omitempty"`
}

// All returns inserted and updated keys.
func (a *AppliedKeys) All() []string {
	if a == nil {
		return nil
	}
	out := make([]string, 0, len(a.Inserted)+len(a.Updated))
	out = append(out, a.Inserted...)
	return append(out, a.Updated...)
}

// Executor writes plans and diffs to one destination table.
type Executor struct {
	Store       Store
	Table       string
	AuditColumn string
	Mode        SyncMode
	Retries     int
	At          time.Time // audit timestamp; zero means time.Now()

	// Existing are the columns the table had before the run. Row writes
	// name them the way the destination spells them.
	Existing ColumnList

	// newBackOff overrides the retry schedule in tests.
	newBackOff func() backoff.BackOff
}

// Apply runs the DDL then the row writes. On any failure the batch is
// rolled back and a *WriteError is returned.
func (e *Executor) Apply(ctx context.Context, plan *SchemaPlan, diff *DiffResult, primaryKey string) (*AppliedKeys, error) {
	log := logging.FromContext(ctx)
	at := e.At
	if at.IsZero() {
		at = time.Now()
	}
	audit := at.Format(AuditLayout)

	if e.Store.TransactionalDDL() {
		var applied *AppliedKeys
		err := e.inTx(ctx, func(tx Tx) error {
			if err := e.applyDDL(ctx, tx, plan); err != nil {
				return err
			}
			var err error
			applied, err = e.applyDML(ctx, tx, diff, primaryKey, audit)
			return err
		})
		if err != nil {
			return nil, err
		}
		return applied, nil
	}

	// DDL commits on its own; both statements are idempotent so a retry of
	// the whole run is safe even if the DML below fails.
	if !plan.Empty() {
		if err := e.retry(ctx, func() error {
			return e.inTx(ctx, func(tx Tx) error { return e.applyDDL(ctx, tx, plan) })
		}); err != nil {
			return nil, err
		}
		log.Debug().Str("table", e.Table).Msg("schema changes committed")
	}
	if diff.Empty() {
		return &AppliedKeys{Inserted: []string{}, Updated: []string{}}, nil
	}

	var applied *AppliedKeys
	attempt := 0
	err := e.retry(ctx, func() error {
		attempt++
		if attempt > 1 {
			log.Warn().Str("table", e.Table).Int("attempt", attempt).Msg("retrying row writes")
		}
		return e.inTx(ctx, func(tx Tx) error {
			var err error
			applied, err = e.applyDML(ctx, tx, diff, primaryKey, audit)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	return applied, nil
}

// inTx runs fn in a transaction, committing on success.
func (e *Executor) inTx(ctx context.Context, fn func(Tx) error) error {
	tx, err := e.Store.Begin(ctx)
	if err != nil {
		return &WriteError{Op: "begin", Table: e.Table, Err: err}
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return &WriteError{Op: "commit", Table: e.Table, Err: err}
	}
	return nil
}

func (e *Executor) retry(ctx context.Context, op func() error) error {
	retries := e.Retries
	if retries <= 0 {
		retries = DefaultWriteRetries
	}
	var b backoff.BackOff
	if e.newBackOff != nil {
		b = e.newBackOff()
	} else {
		eb := backoff.NewExponentialBackOff()
		eb.InitialInterval = 200 * time.Millisecond
		eb.MaxInterval = 5 * time.Second
		b = eb
	}
	b = backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx)

	return backoff.Retry(func() error {
		err := op()
		if err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
			return backoff.Permanent(err)
		}
		return err
	}, b)
}

func (e *Executor) applyDDL(ctx context.Context, tx Tx, plan *SchemaPlan) error {
	if plan.Empty() {
		return nil
	}
	if plan.CreateTable {
		if err := tx.CreateTable(ctx, e.Table, plan.Columns, plan.PrimaryKey); err != nil {
			return &WriteError{Op: "create_table", Table: e.Table, Err: err}
		}
		return nil
	}
	for _, c := range plan.AddColumns {
		if err := tx.AddColumn(ctx, e.Table, c); err != nil {
			return &WriteError{Op: "add_column", Table: e.Table, Column: c.Name, Err: err}
		}
	}
	return nil
}

func (e *Executor) applyDML(ctx context.Context, tx Tx, diff *DiffResult, primaryKey, audit string) (*AppliedKeys, error) {
	applied := &AppliedKeys{Inserted: []string{}, Updated: []string{}}
	if diff.Empty() {
		return applied, nil
	}
	log := logging.FromContext(ctx)
	primaryKey = e.Existing.Spelling(primaryKey)
	auditColumn := e.Existing.Spelling(e.AuditColumn)

	if len(diff.ToInsert) > 0 {
		cols := make([]string, 0, len(diff.Columns)+1)
		for _, c := range diff.Columns {
			cols = append(cols, e.Existing.Spelling(c.Name))
		}
		if e.AuditColumn != "" {
			cols = append(cols, auditColumn)
		}
		rows := make([][]any, len(diff.ToInsert))
		for i, ins := range diff.ToInsert {
			row := make([]any, 0, len(cols))
			for _, v := range ins.Values {
				row = append(row, WriteValue(v))
			}
			if e.AuditColumn != "" {
				row = append(row, audit)
			}
			rows[i] = row
		}

		var err error
		op := "insert"
		if e.Mode == SyncUpsert {
			op = "upsert"
			err = tx.UpsertRows(ctx, e.Table, primaryKey, cols, rows)
		} else {
			err = tx.InsertRows(ctx, e.Table, cols, rows)
		}
		if err != nil {
			return nil, &WriteError{Op: op, Table: e.Table, Key: firstInsertKey(diff), Err: err}
		}
		for _, ins := range diff.ToInsert {
			applied.Inserted = append(applied.Inserted, ins.Key)
		}
	}

	for _, upd := range diff.ToUpdate {
		cols := make([]string, 0, len(upd.Changes)+1)
		vals := make([]any, 0, len(upd.Changes)+1)
		for _, ch := range upd.Changes {
			cols = append(cols, e.Existing.Spelling(ch.Column))
			vals = append(vals, WriteValue(ch.New))
		}
		if e.AuditColumn != "" {
			cols = append(cols, auditColumn)
			vals = append(vals, audit)
		}

		if e.Mode == SyncUpsert {
			row := append([]any{upd.Key}, vals...)
			if err := tx.UpsertRows(ctx, e.Table, primaryKey, append([]string{primaryKey}, cols...), [][]any{row}); err != nil {
				return nil, &WriteError{Op: "upsert", Table: e.Table, Key: upd.Key, Err: err}
			}
			applied.Updated = append(applied.Updated, upd.Key)
			continue
		}

		found, err := tx.UpdateRow(ctx, e.Table, primaryKey, upd.Key, cols, vals)
		if err != nil {
			return nil, &WriteError{Op: "update", Table: e.Table, Key: upd.Key, Err: err}
		}
		if !found {
			log.Warn().Str("table", e.Table).Str("key", upd.Key).Msg("update matched no row")
			applied.Missing = append(applied.Missing, upd.Key)
			continue
		}
		applied.Updated = append(applied.Updated, upd.Key)
	}
	return applied, nil
}

func firstInsertKey(diff *DiffResult) string {
	if len(diff.ToInsert) == 1 {
		return diff.ToInsert[0].Key
	}
	return ""
}
