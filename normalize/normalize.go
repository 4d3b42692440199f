// Package normalize reduces query results to canonical strings so results
// from different queries (and different numeric representations) can be
// compared directly.
package normalize

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/apd/v3"
	"github.com/elmanelman/sql-judge/execute"
)

const fractionDigits = 6

// Value is a canonical scalar. NULL and the empty string are distinct.
type Value struct {
	S    string
	Null bool
}

var Null = Value{Null: true}

func Str(s string) Value {
	return Value{S: s}
}

func (v Value) String() string {
	if v.Null {
		return "NULL"
	}
	return v.S
}

type Result struct {
	Columns []string
	Rows    [][]Value
}

// Normalize canonicalizes every value of r. Unless preserveOrder is set,
// rows are also sorted by their values in column order, which makes the
// result a canonical multiset.
func Normalize(r *execute.Result, preserveOrder bool) *Result {
	ret := &Result{
		Columns: r.Columns,
		Rows:    make([][]Value, len(r.Rows)),
	}
	for i, row := range r.Rows {
		vals := make([]Value, len(row))
		for j, v := range row {
			vals[j] = Canonical(v)
		}
		ret.Rows[i] = vals
	}
	if !preserveOrder {
		sort.SliceStable(ret.Rows, func(i, j int) bool {
			return CompareRows(ret.Rows[i], ret.Rows[j]) < 0
		})
	}
	return ret
}

// CompareRows orders rows lexicographically by value strings; on equal
// strings NULL sorts first.
func CompareRows(a, b []Value) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if c := strings.Compare(a[i].S, b[i].S); c != 0 {
			return c
		}
		if a[i].Null != b[i].Null {
			if a[i].Null {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	}
	return 0
}

// Canonical maps a single scalar to its canonical form.
func Canonical(v any) Value {
	switch v := v.(type) {
	case nil:
		return Null
	case bool:
		if v {
			return Str("1")
		}
		return Str("0")
	case int:
		return Str(formatNumber(float64(v)))
	case int8:
		return Str(formatNumber(float64(v)))
	case int16:
		return Str(formatNumber(float64(v)))
	case int32:
		return Str(formatNumber(float64(v)))
	case int64:
		return Str(formatNumber(float64(v)))
	case uint:
		return Str(formatNumber(float64(v)))
	case uint8:
		return Str(formatNumber(float64(v)))
	case uint16:
		return Str(formatNumber(float64(v)))
	case uint32:
		return Str(formatNumber(float64(v)))
	case uint64:
		return Str(formatNumber(float64(v)))
	case float32:
		return Str(formatNumber(float64(v)))
	case float64:
		return Str(formatNumber(v))
	case *apd.Decimal:
		if v == nil {
			return Null
		}
		return canonicalDecimal(v)
	case apd.Decimal:
		return canonicalDecimal(&v)
	case time.Time:
		return Str(formatTime(v))
	case []byte:
		return canonicalText(string(v))
	case string:
		return canonicalText(v)
	}
	return canonicalText(fmt.Sprint(v))
}

func canonicalDecimal(d *apd.Decimal) Value {
	f, err := d.Float64()
	if err != nil {
		return canonicalText(d.String())
	}
	return Str(formatNumber(f))
}

func canonicalText(s string) Value {
	return Str(strings.ToLower(strings.TrimSpace(s)))
}

// formatNumber rounds f to six fractional digits; integral results print
// without a decimal point.
func formatNumber(f float64) string {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return strings.ToLower(strconv.FormatFloat(f, 'f', -1, 64))
	}
	r, err := strconv.ParseFloat(strconv.FormatFloat(f, 'f', fractionDigits, 64), 64)
	if err != nil {
		r = f
	}
	if r == math.Trunc(r) {
		if r == 0 {
			return "0"
		}
		return strconv.FormatFloat(r, 'f', 0, 64)
	}
	return strconv.FormatFloat(r, 'f', -1, 64)
}

func formatTime(t time.Time) string {
	if t.Nanosecond() == 0 {
		return t.Format("2006-01-02 15:04:05")
	}
	return t.Format("2006-01-02 15:04:05.000000")
}
