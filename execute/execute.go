// Package execute runs already-gated queries against the judging database
// and returns their rows as plain Go scalars.
package execute

import (
	"context"
	"encoding/binary"
	"strconv"
	"strings"

	"github.com/cockroachdb/apd/v3"
	"github.com/cockroachdb/errors"
	"github.com/elmanelman/sql-judge/sqlscan"
	"github.com/jmoiron/sqlx"
)

// Result is a query result in backend column and row order.
type Result struct {
	Columns []string
	Rows    [][]any
}

// ExecutionError is a query that did not run successfully at the backend.
// Its message is the backend's own.
type ExecutionError struct {
	cause error
}

func (e *ExecutionError) Error() string {
	return e.cause.Error()
}

func (e *ExecutionError) Unwrap() error {
	return e.cause
}

func IsExecutionError(err error) bool {
	var ee *ExecutionError
	return errors.As(err, &ee)
}

type Executor struct {
	maxRows int
}

// New returns an Executor failing results larger than maxRows rows. Zero
// means unlimited.
func New(maxRows int) *Executor {
	return &Executor{maxRows: maxRows}
}

// ErrMultipleStatements is wrapped by the ExecutionError returned for text
// holding more than one statement. Such text never reaches the backend.
var ErrMultipleStatements = errors.New("multiple statements are not supported")

func (e *Executor) Execute(ctx context.Context, q sqlx.QueryerContext, sql string) (*Result, error) {
	if !sqlscan.IsSingleStatement(sql) {
		return nil, &ExecutionError{cause: ErrMultipleStatements}
	}
	rows, err := q.QueryxContext(ctx, sql)
	if err != nil {
		return nil, &ExecutionError{cause: err}
	}
	defer func() { _ = rows.Close() }()

	cols, err := rows.Columns()
	if err != nil {
		return nil, &ExecutionError{cause: err}
	}
	colTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, &ExecutionError{cause: err}
	}
	typeNames := make([]string, len(colTypes))
	for i, ct := range colTypes {
		typeNames[i] = ct.DatabaseTypeName()
	}

	res := &Result{Columns: cols}
	for rows.Next() {
		if e.maxRows > 0 && len(res.Rows) >= e.maxRows {
			return nil, &ExecutionError{cause: errors.Newf("result exceeds %d rows", e.maxRows)}
		}
		vals, err := rows.SliceScan()
		if err != nil {
			return nil, &ExecutionError{cause: err}
		}
		for i, v := range vals {
			vals[i] = ConvertValue(v, typeNames[i])
		}
		res.Rows = append(res.Rows, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, &ExecutionError{cause: err}
	}
	return res, nil
}

// ConvertValue turns a raw driver value into a typed scalar using the
// column's database type name. Only byte slices are converted; drivers
// that already return typed values (SQLite) pass through unchanged.
func ConvertValue(v any, typeName string) any {
	b, ok := v.([]byte)
	if !ok {
		return v
	}
	name := strings.ToUpper(strings.TrimSpace(typeName))
	if i := strings.IndexByte(name, '('); i >= 0 {
		name = strings.TrimSpace(name[:i])
	}
	unsigned := strings.HasPrefix(name, "UNSIGNED ")
	name = strings.TrimPrefix(name, "UNSIGNED ")

	s := string(b)
	switch name {
	case "TINYINT", "SMALLINT", "MEDIUMINT", "INT", "INTEGER", "BIGINT", "YEAR":
		if unsigned {
			if u, err := strconv.ParseUint(s, 10, 64); err == nil {
				return u
			}
		} else if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i
		}
	case "DECIMAL", "NUMERIC":
		if d, _, err := apd.NewFromString(s); err == nil {
			return d
		}
	case "FLOAT", "DOUBLE", "REAL":
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	case "BIT":
		if len(b) <= 8 {
			buf := make([]byte, 8)
			copy(buf[8-len(b):], b)
			return int64(binary.BigEndian.Uint64(buf))
		}
	}
	return s
}
