// Package dataset implements a row-indexed table stored as JSON lines, one
// object per row.
package dataset

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const maxRowSize = 64 * 1024 * 1024

// JSONL is an in-memory dataset loaded from, and saved to, a JSON lines file.
type JSONL struct {
	rows []map[string]any
	dir  string
}

// New wraps rows in a dataset. Relative paths in rows resolve against dir.
func New(rows []map[string]any, dir string) *JSONL {
	return &JSONL{rows: rows, dir: dir}
}

// Load reads a JSON lines file. Blank lines are ignored.
func Load(path string) (*JSONL, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset '%s': %w", path, err)
	}
	defer f.Close()

	d := &JSONL{dir: filepath.Dir(path)}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxRowSize)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var row map[string]any
		if err := json.Unmarshal(line, &row); err != nil {
			return nil, fmt.Errorf("dataset '%s' line %d: %w", path, lineNo, err)
		}
		if row == nil {
			return nil, fmt.Errorf("dataset '%s' line %d: row is not a JSON object", path, lineNo)
		}
		d.rows = append(d.rows, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read dataset '%s': %w", path, err)
	}
	return d, nil
}

// Len returns the number of rows.
func (d *JSONL) Len() int { return len(d.rows) }

// Dir is the directory relative file references in the dataset resolve against.
func (d *JSONL) Dir() string { return d.dir }

// Get returns the string value of column in row.
func (d *JSONL) Get(row int, column string) (string, bool) {
	if row < 0 || row >= len(d.rows) {
		return "", false
	}
	v, ok := d.rows[row][column].(string)
	return v, ok
}

// Set assigns value to column in row.
func (d *JSONL) Set(row int, column, value string) error {
	if row < 0 || row >= len(d.rows) {
		return fmt.Errorf("row %d out of range [0, %d)", row, len(d.rows))
	}
	d.rows[row][column] = value
	return nil
}

// EnsureColumn sets defaultValue on every row that lacks column.
func (d *JSONL) EnsureColumn(column, defaultValue string) {
	for _, row := range d.rows {
		if _, ok := row[column]; !ok {
			row[column] = defaultValue
		}
	}
}

// Save writes the dataset to path, replacing it atomically.
func (d *JSONL) Save(path string) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for i, row := range d.rows {
		if err := enc.Encode(row); err != nil {
			return fmt.Errorf("encode row %d: %w", i, err)
		}
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".dataset-*.jsonl")
	if err != nil {
		return fmt.Errorf("failed to create temporary dataset file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write dataset '%s': %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close dataset '%s': %w", tmp.Name(), err)
	}
	return os.Rename(tmp.Name(), path)
}
