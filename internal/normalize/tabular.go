package normalize

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// Table is a parsed CSV/TSV source. Cells are raw strings; an empty cell is a null.
type Table struct {
	Columns []string
	Rows    [][]string
}

// Column returns the cells of column name and whether it exists.
func (t *Table) Column(name string) ([]string, bool) {
	idx := -1
	for i, c := range t.Columns {
		if c == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, false
	}
	out := make([]string, len(t.Rows))
	for i, row := range t.Rows {
		out[i] = row[idx]
	}
	return out, true
}

// Render produces the text form that gets chunked: a header line then one line per record.
func (t *Table) Render() string {
	var b strings.Builder
	b.WriteString("columns: ")
	b.WriteString(strings.Join(t.Columns, ", "))
	b.WriteString("\n")
	for _, row := range t.Rows {
		parts := make([]string, 0, len(row))
		for i, cell := range row {
			if cell == "" {
				continue
			}
			parts = append(parts, t.Columns[i]+": "+cell)
		}
		b.WriteString(strings.Join(parts, "; "))
		b.WriteString(".\n")
	}
	return b.String()
}

func parseTable(data []byte, delimiter rune) (*Table, error) {
	r := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))))
	r.Comma = delimiter
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("missing header row")
	}
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(header))
	cols := make([]string, len(header))
	for i, h := range header {
		h = strings.TrimSpace(h)
		if h == "" {
			return nil, fmt.Errorf("column %d has an empty name", i+1)
		}
		if _, dup := seen[h]; dup {
			return nil, fmt.Errorf("duplicate column %q", h)
		}
		seen[h] = struct{}{}
		cols[i] = h
	}

	t := &Table{Columns: cols}
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		for i := range rec {
			rec[i] = strings.TrimSpace(rec[i])
		}
		t.Rows = append(t.Rows, rec)
	}
	return t, nil
}
