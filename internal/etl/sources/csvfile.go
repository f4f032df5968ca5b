package sources

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"unicode/utf8"

	"sheetsync/internal/etl"
)

// ── CSV File Source ─────────────────────────────────────────
// Reads rows from a local CSV file. Every cell is a string; empty cells
// read as NULL. The first record is the header.

type csvFileSource struct{}

func init() { etl.RegisterSource(&csvFileSource{}) }

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

func (s *csvFileSource) Spec() etl.SourceSpec {
	return etl.SourceSpec{
		Type:       "csv_file",
		Label:      "CSV File",
		Extensions: []string{".csv"},
		ConfigFields: []etl.ConfigField{
			{Key: "path", Label: "File Path", Type: "file", Required: true, Help: "Path to the CSV file"},
			{Key: "delimiter", Label: "Delimiter", Type: "string", Required: false, Default: ",", Help: "Column delimiter (default: comma)"},
		},
	}
}

func (s *csvFileSource) Discover(ctx context.Context, cfg etl.SourceConfig) (etl.ColumnList, error) {
	doc, err := loadCSV(cfg)
	if err != nil {
		return nil, err
	}
	return headerColumns(doc.header), nil
}

func (s *csvFileSource) Read(ctx context.Context, cfg etl.SourceConfig) (<-chan etl.Row, <-chan error) {
	out := make(chan etl.Row, 100)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		doc, err := loadCSV(cfg)
		if err != nil {
			errCh <- err
			return
		}

		width := len(doc.header)
		for _, rec := range doc.records[1:] {
			if blankRecord(rec.fields) {
				continue
			}
			vals := make([]any, width)
			for j := 0; j < width && j < len(rec.fields); j++ {
				if rec.fields[j] != "" {
					vals[j] = rec.fields[j]
				}
			}
			select {
			case out <- etl.Row{Index: rec.index, Values: vals}:
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			}
		}
	}()

	return out, errCh
}

// Annotate rewrites only the header (when the marker column is new) and the
// matched rows; every other byte of the file is copied through unchanged.
func (s *csvFileSource) Annotate(ctx context.Context, cfg etl.SourceConfig, primaryKey, marker string, keys map[string]bool, value string) (int, error) {
	doc, err := loadCSV(cfg)
	if err != nil {
		return 0, err
	}

	pk := columnIndex(doc.header, primaryKey)
	if pk < 0 {
		return 0, fmt.Errorf("primary key column %q not found", primaryKey)
	}
	markerIdx := columnIndex(doc.header, marker)
	addMarker := markerIdx < 0
	if addMarker {
		markerIdx = len(doc.header)
		if row := overflowRecord(doc); row > 0 {
			return 0, fmt.Errorf("row %d has values past the last header column; add a %q header to annotate", row, marker)
		}
	}

	var buf bytes.Buffer
	buf.Grow(len(doc.raw) + 32*len(keys))
	if doc.bom {
		buf.Write(utf8BOM)
	}

	marked := 0
	for i, rec := range doc.records {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		span := doc.raw[rec.start:rec.end]
		lead, body, eol := splitSpan(span)

		if i == 0 {
			if !addMarker {
				buf.Write(span)
				continue
			}
			buf.Write(lead)
			buf.Write(body)
			buf.WriteRune(doc.comma)
			buf.WriteString(encodeFields([]string{marker}, doc.comma))
			buf.Write(eol)
			continue
		}

		key := ""
		if pk < len(rec.fields) {
			key, _ = etl.KeyString(rec.fields[pk])
		}
		if key == "" || !keys[key] {
			buf.Write(span)
			continue
		}

		fields := rec.fields
		if len(fields) <= markerIdx {
			padded := make([]string, markerIdx+1)
			copy(padded, fields)
			fields = padded
		}
		fields[markerIdx] = value

		buf.Write(lead)
		buf.WriteString(encodeFields(fields, doc.comma))
		if len(eol) == 0 && i < len(doc.records)-1 {
			eol = []byte("\n")
		}
		buf.Write(eol)
		marked++
	}
	// Bytes after the last record (blank trailing lines).
	if len(doc.records) > 0 {
		buf.Write(doc.raw[doc.records[len(doc.records)-1].end:])
	}

	if err := writeFileAtomic(doc.path, buf.Bytes()); err != nil {
		return 0, err
	}
	return marked, nil
}

// overflowRecord returns the record number of the first data row with a
// non-empty field past the header, or 0. A new marker column would land
// on that field.
func overflowRecord(doc *csvDoc) int {
	for _, rec := range doc.records[1:] {
		for _, f := range rec.fields[min(len(rec.fields), len(doc.header)):] {
			if f != "" {
				return rec.index
			}
		}
	}
	return 0
}

// ── CSV parsing ────────────────────────────────────────────

type csvRecord struct {
	index  int // 1-based record number, header is 1
	start  int // byte span in csvDoc.raw, terminator included
	end    int
	fields []string
}

type csvDoc struct {
	path    string
	raw     []byte // file contents without the BOM
	bom     bool
	comma   rune
	header  []string
	records []csvRecord // records[0] is the header
}

func loadCSV(cfg etl.SourceConfig) (*csvDoc, error) {
	path := cfg.String("path", "")
	if path == "" {
		return nil, fmt.Errorf("path is required")
	}
	comma := ','
	if delim := cfg.String("delimiter", ""); delim != "" {
		r, size := utf8.DecodeRuneInString(delim)
		if size != len(delim) {
			return nil, fmt.Errorf("delimiter must be a single character, got %q", delim)
		}
		comma = r
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	doc := &csvDoc{path: path, comma: comma}
	if bytes.HasPrefix(data, utf8BOM) {
		doc.bom = true
		data = data[len(utf8BOM):]
	}
	doc.raw = data

	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = comma
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	start := 0
	for n := 1; ; n++ {
		fields, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse csv: %w", err)
		}
		end := int(reader.InputOffset())
		doc.records = append(doc.records, csvRecord{index: n, start: start, end: end, fields: fields})
		start = end
	}
	if len(doc.records) == 0 {
		return nil, fmt.Errorf("empty csv file")
	}
	doc.header = doc.records[0].fields
	return doc, nil
}

// splitSpan separates a record's raw bytes into the blank lines the reader
// skipped before it, the record text, and its line terminator.
func splitSpan(span []byte) (lead, body, eol []byte) {
	i := 0
	for i < len(span) && (span[i] == '\n' || span[i] == '\r') {
		i++
	}
	lead, body = span[:i], span[i:]
	switch {
	case bytes.HasSuffix(body, []byte("\r\n")):
		return lead, body[:len(body)-2], body[len(body)-2:]
	case bytes.HasSuffix(body, []byte("\n")):
		return lead, body[:len(body)-1], body[len(body)-1:]
	}
	return lead, body, nil
}

// encodeFields renders one record with csv quoting and no terminator.
func encodeFields(fields []string, comma rune) string {
	var b bytes.Buffer
	w := csv.NewWriter(&b)
	w.Comma = comma
	_ = w.Write(fields)
	w.Flush()
	return string(bytes.TrimSuffix(b.Bytes(), []byte("\n")))
}

func blankRecord(fields []string) bool {
	for _, f := range fields {
		if f != "" {
			return false
		}
	}
	return true
}

func writeFileAtomic(path string, data []byte) error {
	mode := os.FileMode(0o644)
	if fi, err := os.Stat(path); err == nil {
		mode = fi.Mode().Perm()
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), mode); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace %s: %w", filepath.Base(path), err)
	}
	return nil
}
