// Package compare decides whether a student result is equivalent to the
// reference result under one of four comparison modes.
package compare

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/elmanelman/sql-judge/normalize"
)

// Mode combines name awareness (structural vs value-only) with order
// sensitivity.
type Mode int

const (
	StructuralUnordered Mode = iota
	StructuralOrdered
	ValueOnlyUnordered
	ValueOnlyOrdered
)

// SelectMode picks the structural modes when output aliases are enforced
// and the ordered modes when the reference declares an ordering.
func SelectMode(enforceAliases, ordered bool) Mode {
	switch {
	case enforceAliases && ordered:
		return StructuralOrdered
	case enforceAliases:
		return StructuralUnordered
	case ordered:
		return ValueOnlyOrdered
	}
	return ValueOnlyUnordered
}

func (m Mode) Ordered() bool {
	return m == StructuralOrdered || m == ValueOnlyOrdered
}

func (m Mode) Structural() bool {
	return m == StructuralUnordered || m == StructuralOrdered
}

// Unordered returns the order-insensitive mode with the same name awareness.
func (m Mode) Unordered() Mode {
	return SelectMode(m.Structural(), false)
}

func (m Mode) String() string {
	switch m {
	case StructuralUnordered:
		return "structural_unordered"
	case StructuralOrdered:
		return "structural_ordered"
	case ValueOnlyUnordered:
		return "value_only_unordered"
	case ValueOnlyOrdered:
		return "value_only_ordered"
	}
	return "unknown"
}

type MismatchKind int

const (
	RowCount MismatchKind = iota + 1
	ColumnStructure
	ColumnCount
	RowDiffers
	Content
)

func (k MismatchKind) String() string {
	switch k {
	case RowCount:
		return "row_count"
	case ColumnStructure:
		return "column_structure"
	case ColumnCount:
		return "column_count"
	case RowDiffers:
		return "row_differs"
	case Content:
		return "content"
	}
	return "unknown"
}

// Mismatch explains why two results differ. Row is 1-based and only set for
// RowDiffers; Expected and Got carry the reference and student counts for
// RowCount and ColumnCount.
type Mismatch struct {
	Kind     MismatchKind
	Row      int
	Expected int
	Got      int
	Missing  []string
	Extra    []string
}

func (m *Mismatch) Error() string {
	switch m.Kind {
	case RowCount:
		return fmt.Sprintf("row count mismatch: expected %d, got %d", m.Expected, m.Got)
	case ColumnStructure:
		var parts []string
		if len(m.Missing) > 0 {
			parts = append(parts, "missing columns: "+strings.Join(m.Missing, ", "))
		}
		if len(m.Extra) > 0 {
			parts = append(parts, "extra columns: "+strings.Join(m.Extra, ", "))
		}
		return "column structure mismatch: " + strings.Join(parts, "; ")
	case ColumnCount:
		return fmt.Sprintf("column count mismatch: expected %d, got %d", m.Expected, m.Got)
	case RowDiffers:
		return fmt.Sprintf("row %d differs from the reference (order or data is wrong)", m.Row)
	}
	return "result data does not match the reference"
}

type Outcome struct {
	Match    bool
	Message  string
	Mismatch *Mismatch
}

func match(mode Mode) Outcome {
	if mode.Ordered() {
		return Outcome{Match: true, Message: "results match (including order)"}
	}
	return Outcome{Match: true, Message: "results match"}
}

func mismatch(m *Mismatch) Outcome {
	return Outcome{Message: m.Error(), Mismatch: m}
}

// Compare checks student against reference. Row counts are checked first.
// When both sides have rows, structural modes then require identical column
// name sets and value-only modes identical column counts.
func Compare(student, reference *normalize.Result, mode Mode) Outcome {
	if len(student.Rows) != len(reference.Rows) {
		return mismatch(&Mismatch{Kind: RowCount, Expected: len(reference.Rows), Got: len(student.Rows)})
	}
	if len(reference.Rows) == 0 {
		return match(mode)
	}

	var studentKeys, referenceKeys []string
	if mode.Structural() {
		if missing, extra := columnDiff(student.Columns, reference.Columns); len(missing)+len(extra) > 0 {
			return mismatch(&Mismatch{Kind: ColumnStructure, Missing: missing, Extra: extra})
		}
		studentKeys = rowKeys(student, namedKey)
		referenceKeys = rowKeys(reference, namedKey)
	} else {
		if len(student.Columns) != len(reference.Columns) {
			return mismatch(&Mismatch{Kind: ColumnCount, Expected: len(reference.Columns), Got: len(student.Columns)})
		}
		studentKeys = rowKeys(student, positionalKey)
		referenceKeys = rowKeys(reference, positionalKey)
	}

	if mode.Ordered() {
		for i := range referenceKeys {
			if studentKeys[i] != referenceKeys[i] {
				return mismatch(&Mismatch{Kind: RowDiffers, Row: i + 1})
			}
		}
		return match(mode)
	}

	sort.Strings(studentKeys)
	sort.Strings(referenceKeys)
	for i := range referenceKeys {
		if studentKeys[i] != referenceKeys[i] {
			return mismatch(&Mismatch{Kind: Content})
		}
	}
	return match(mode)
}

// columnDiff returns the reference columns the student lacks and the
// student columns the reference lacks, each in first-seen order.
func columnDiff(student, reference []string) (missing, extra []string) {
	inStudent := setOf(student)
	inReference := setOf(reference)
	seen := map[string]struct{}{}
	for _, c := range reference {
		if _, ok := inStudent[c]; !ok {
			if _, dup := seen[c]; !dup {
				missing = append(missing, c)
				seen[c] = struct{}{}
			}
		}
	}
	for _, c := range student {
		if _, ok := inReference[c]; !ok {
			if _, dup := seen[c]; !dup {
				extra = append(extra, c)
				seen[c] = struct{}{}
			}
		}
	}
	return missing, extra
}

func setOf(cols []string) map[string]struct{} {
	ret := make(map[string]struct{}, len(cols))
	for _, c := range cols {
		ret[c] = struct{}{}
	}
	return ret
}

func rowKeys(r *normalize.Result, key func(columns []string, row []normalize.Value) string) []string {
	ret := make([]string, len(r.Rows))
	for i, row := range r.Rows {
		ret[i] = key(r.Columns, row)
	}
	return ret
}

// namedKey encodes a row as its sorted (column, value) pairs, so column
// order does not matter.
func namedKey(columns []string, row []normalize.Value) string {
	pairs := make([]string, len(row))
	for i, v := range row {
		pairs[i] = strconv.Quote(columns[i]) + "=" + encodeValue(v)
	}
	sort.Strings(pairs)
	return strings.Join(pairs, ",")
}

// positionalKey encodes a row as its values in column order.
func positionalKey(_ []string, row []normalize.Value) string {
	vals := make([]string, len(row))
	for i, v := range row {
		vals[i] = encodeValue(v)
	}
	return strings.Join(vals, ",")
}

func encodeValue(v normalize.Value) string {
	if v.Null {
		return "null"
	}
	return strconv.Quote(v.S)
}
