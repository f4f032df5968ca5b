package etl

import (
	"errors"
	"fmt"
)

// ── Error taxonomy ─────────────────────────────────────────
// Every failure a run can hit maps onto one of these kinds.
// Callers test the kind with errors.Is against the sentinels and
// pull row/column context out with errors.As.

var (
	// ErrConnection means the destination store could not be reached.
	ErrConnection = errors.New("connection error")

	// ErrSchema means the source columns cannot produce a valid table.
	ErrSchema = errors.New("schema error")

	// ErrData means a source or destination row violates the record model.
	ErrData = errors.New("data error")

	// ErrWrite means a DDL or DML statement failed and the batch was rolled back.
	ErrWrite = errors.New("write error")

	// ErrAnnotation means the marker write-back to the source failed.
	ErrAnnotation = errors.New("annotation error")
)

// ConnectionError wraps a failure to open or ping the destination store.
type ConnectionError struct {
	Driver string
	Err    error
}

func (e *ConnectionError) Error() string {
	if e.Driver != "" {
		return fmt.Sprintf("connect %s: %v", e.Driver, e.Err)
	}
	return fmt.Sprintf("connect: %v", e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

func (e *ConnectionError) Is(target error) bool { return target == ErrConnection }

// SchemaError reports a malformed column set: no columns, a missing or
// excluded primary key, a duplicate or unsafe column name.
type SchemaError struct {
	Column  string
	Message string
}

func (e *SchemaError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("schema: column %q: %s", e.Column, e.Message)
	}
	return fmt.Sprintf("schema: %s", e.Message)
}

func (e *SchemaError) Is(target error) bool { return target == ErrSchema }

// DataError reports a row-level violation. Row and OtherRow are 1-based
// source row numbers; OtherRow is set for duplicate keys only.
type DataError struct {
	Key      string
	Column   string
	Row      int
	OtherRow int
	Message  string
}

func (e *DataError) Error() string {
	msg := "data: " + e.Message
	if e.Key != "" {
		msg += fmt.Sprintf(" (key %q)", e.Key)
	}
	if e.Column != "" {
		msg += fmt.Sprintf(" (column %q)", e.Column)
	}
	switch {
	case e.Row > 0 && e.OtherRow > 0:
		msg += fmt.Sprintf(" (rows %d and %d)", e.OtherRow, e.Row)
	case e.Row > 0:
		msg += fmt.Sprintf(" (row %d)", e.Row)
	}
	return msg
}

func (e *DataError) Is(target error) bool { return target == ErrData }

// WriteError wraps a failed destination statement. The whole batch has been
// rolled back when this error is returned.
type WriteError struct {
	Op     string // "create_table" | "add_column" | "insert" | "update" | "upsert" | "commit" | "begin"
	Table  string
	Key    string
	Column string
	Err    error
}

func (e *WriteError) Error() string {
	msg := fmt.Sprintf("write %s %s", e.Op, e.Table)
	if e.Key != "" {
		msg += fmt.Sprintf(" key %q", e.Key)
	}
	if e.Column != "" {
		msg += fmt.Sprintf(" column %q", e.Column)
	}
	return fmt.Sprintf("%s: %v", msg, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

func (e *WriteError) Is(target error) bool { return target == ErrWrite }

// AnnotationError wraps a failed marker write-back. It never fails a run.
type AnnotationError struct {
	Source string
	Err    error
}

func (e *AnnotationError) Error() string {
	return fmt.Sprintf("annotate %s: %v", e.Source, e.Err)
}

func (e *AnnotationError) Unwrap() error { return e.Err }

func (e *AnnotationError) Is(target error) bool { return target == ErrAnnotation }
