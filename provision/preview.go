// Package provision materializes a question's schema preview in the judging
// database: it turns an untrusted table/row descriptor into a bounded list of
// DROP/CREATE/INSERT statements and applies them.
package provision

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/errors"
	validation "github.com/go-ozzo/ozzo-validation/v3"
)

// ErrNoTables is returned when the preview holds no "tables" list, or an
// empty one.
var ErrNoTables = errors.New("schema preview has no tables")

// Preview is a validated schema preview. Row values are scalars as decoded
// from JSON, with numbers kept as json.Number.
type Preview struct {
	Tables []TableSpec
}

type TableSpec struct {
	Name    string           `json:"name"`
	Columns []string         `json:"columns"`
	Rows    []map[string]any `json:"rows"`
}

func (t *TableSpec) Validate() error {
	return validation.ValidateStruct(
		t,
		validation.Field(&t.Name, validation.Required),
		validation.Field(&t.Columns, validation.Required),
	)
}

// Rejection records a part of the preview that was dropped. Table is -1 for
// problems with the document itself.
type Rejection struct {
	Table  int
	Name   string
	Reason string
}

func (r Rejection) String() string {
	if r.Name != "" {
		return fmt.Sprintf("table %d (%s): %s", r.Table, r.Name, r.Reason)
	}
	return fmt.Sprintf("table %d: %s", r.Table, r.Reason)
}

// ParsePreview decodes a schema preview document of the form
//
//	{"tables": [{"name": "t", "columns": ["a"], "rows": [{"a": 1}]}]}
//
// Malformed tables, columns and rows are dropped and reported as rejections
// instead of failing the whole document.
func ParsePreview(data []byte) (*Preview, []Rejection, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil, ErrNoTables
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, nil, errors.Wrapf(err, "error decoding schema preview")
	}
	var rawTables []json.RawMessage
	if raw, ok := doc["tables"]; !ok || json.Unmarshal(raw, &rawTables) != nil || len(rawTables) == 0 {
		return nil, nil, ErrNoTables
	}

	var rejections []Rejection
	preview := &Preview{}
	for i, raw := range rawTables {
		tbl, rejs := parseTable(i, raw)
		rejections = append(rejections, rejs...)
		if tbl != nil {
			preview.Tables = append(preview.Tables, *tbl)
		}
	}
	return preview, rejections, nil
}

func parseTable(idx int, raw json.RawMessage) (*TableSpec, []Rejection) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return nil, []Rejection{{Table: idx, Reason: "table entry is not an object"}}
	}

	tbl := &TableSpec{}
	reject := func(format string, args ...any) Rejection {
		return Rejection{Table: idx, Name: tbl.Name, Reason: fmt.Sprintf(format, args...)}
	}
	var rejections []Rejection

	if raw, ok := fields["name"]; ok {
		if err := json.Unmarshal(raw, &tbl.Name); err != nil {
			return nil, []Rejection{reject("name is not a string")}
		}
	}

	if raw, ok := fields["columns"]; ok {
		var rawCols []json.RawMessage
		if err := json.Unmarshal(raw, &rawCols); err != nil {
			return nil, []Rejection{reject("columns is not a list")}
		}
		for j, rc := range rawCols {
			var col string
			if err := json.Unmarshal(rc, &col); err != nil {
				rejections = append(rejections, reject("column %d is not a string", j))
				continue
			}
			tbl.Columns = append(tbl.Columns, col)
		}
	}

	if err := tbl.Validate(); err != nil {
		return nil, append(rejections, reject("%s", err.Error()))
	}

	if raw, ok := fields["rows"]; ok && !isNull(raw) {
		var rawRows []json.RawMessage
		if err := json.Unmarshal(raw, &rawRows); err != nil {
			return tbl, append(rejections, reject("rows is not a list"))
		}
		for j, rr := range rawRows {
			row, err := decodeRow(rr)
			if err != nil {
				rejections = append(rejections, reject("row %d is not an object", j))
				continue
			}
			tbl.Rows = append(tbl.Rows, row)
		}
	}
	return tbl, rejections
}

func decodeRow(raw json.RawMessage) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var row map[string]any
	if err := dec.Decode(&row); err != nil {
		return nil, err
	}
	if row == nil {
		return nil, errors.New("null row")
	}
	return row, nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
