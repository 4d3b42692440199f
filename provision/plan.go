package provision

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

type StatementKind int

const (
	DropTable StatementKind = iota
	CreateTable
	InsertRows
)

func (k StatementKind) String() string {
	switch k {
	case DropTable:
		return "drop_table"
	case CreateTable:
		return "create_table"
	case InsertRows:
		return "insert_rows"
	}
	return "unknown"
}

type Statement struct {
	Kind  StatementKind
	Table string
	SQL   string
}

// Plan is the ordered list of statements that rebuilds every table of a
// preview from scratch.
type Plan struct {
	Statements []Statement
}

// Tables returns the distinct table names touched by the plan, in order.
func (p *Plan) Tables() []string {
	var ret []string
	seen := map[string]struct{}{}
	for _, s := range p.Statements {
		if _, ok := seen[s.Table]; ok {
			continue
		}
		seen[s.Table] = struct{}{}
		ret = append(ret, s.Table)
	}
	return ret
}

// Script renders the plan as a single semicolon separated script.
func (p *Plan) Script() string {
	var sb strings.Builder
	for _, s := range p.Statements {
		sb.WriteString(s.SQL)
		sb.WriteString(";\n")
	}
	return sb.String()
}

var (
	nonWordRe = regexp.MustCompile(`[^A-Za-z0-9_]`)
	dateRe    = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}[T ]?\d{2}:\d{2}`)
	numberRe  = regexp.MustCompile(`^-?\d+(\.\d+)?([eE][+-]?\d+)?$`)
)

// SanitizeIdent strips everything but [A-Za-z0-9_] from name.
func SanitizeIdent(name string) string {
	return nonWordRe.ReplaceAllString(name, "")
}

type planColumn struct {
	source string
	name   string
}

// NewPlan builds the provisioning plan for a preview. Tables whose name or
// columns sanitize to nothing are left out; nil is returned when no table
// survives.
func NewPlan(preview *Preview, d Dialect) *Plan {
	if preview == nil {
		return nil
	}
	plan := &Plan{}
	for _, tbl := range preview.Tables {
		plan.Statements = append(plan.Statements, tableStatements(tbl, d)...)
	}
	if len(plan.Statements) == 0 {
		return nil
	}
	return plan
}

func tableStatements(tbl TableSpec, d Dialect) []Statement {
	name := SanitizeIdent(tbl.Name)
	if name == "" {
		return nil
	}
	var cols []planColumn
	seen := map[string]struct{}{}
	for _, c := range tbl.Columns {
		safe := SanitizeIdent(c)
		if safe == "" {
			continue
		}
		key := strings.ToLower(safe)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		cols = append(cols, planColumn{source: c, name: safe})
	}
	if len(cols) == 0 {
		return nil
	}

	defs := make([]string, len(cols))
	for i, c := range cols {
		kind := InferColumnKind(c.name, sampleValue(tbl.Rows, c.source))
		defs[i] = fmt.Sprintf("%s %s", d.QuoteIdent(c.name), d.ColumnType(kind))
	}
	stmts := []Statement{
		{
			Kind:  DropTable,
			Table: name,
			SQL:   "DROP TABLE IF EXISTS " + d.QuoteIdent(name),
		},
		{
			Kind:  CreateTable,
			Table: name,
			SQL: fmt.Sprintf(
				"CREATE TABLE %s (\n  %s\n)%s",
				d.QuoteIdent(name), strings.Join(defs, ",\n  "), d.CreateTableSuffix(),
			),
		},
	}
	if len(tbl.Rows) == 0 {
		return stmts
	}

	names := make([]string, len(cols))
	upsertKey := ""
	for i, c := range cols {
		names[i] = c.name
		if strings.EqualFold(c.name, "id") {
			upsertKey = c.name
		}
	}
	rows := make([]string, len(tbl.Rows))
	for i, row := range tbl.Rows {
		vals := make([]string, len(cols))
		for j, c := range cols {
			vals[j] = Literal(row[c.source], d)
		}
		rows[i] = "(" + strings.Join(vals, ", ") + ")"
	}
	return append(stmts, Statement{
		Kind:  InsertRows,
		Table: name,
		SQL:   d.InsertRows(name, names, rows, upsertKey),
	})
}

// sampleValue returns the first non-null value of a column across rows.
func sampleValue(rows []map[string]any, column string) any {
	for _, row := range rows {
		if v, ok := row[column]; ok && v != nil {
			return v
		}
	}
	return nil
}

// InferColumnKind picks the storage class of a column from its name, then
// from a sample value.
func InferColumnKind(name string, sample any) ColumnKind {
	lower := strings.ToLower(name)
	switch {
	case lower == "id":
		return KindPrimaryKey
	case strings.HasSuffix(lower, "_id"):
		return KindForeignKey
	case strings.Contains(lower, "amount"), strings.Contains(lower, "price"), strings.Contains(lower, "sum"):
		return KindDecimal
	case strings.HasSuffix(lower, "_at"), lower == "date", lower == "time":
		return KindDateTime
	}
	switch v := sample.(type) {
	case bool:
		return KindBool
	case json.Number:
		if _, err := v.Int64(); err == nil {
			return KindInt
		}
		return KindDecimal
	case int, int32, int64:
		return KindInt
	case float32, float64:
		return KindDecimal
	case string:
		if dateRe.MatchString(v) {
			return KindDateTime
		}
	}
	return KindString
}

// Literal renders v as an SQL literal. Numbers are emitted unquoted, booleans
// as 0/1, nil as NULL and everything else as an escaped string.
func Literal(v any, d Dialect) string {
	switch v := v.(type) {
	case nil:
		return "NULL"
	case bool:
		if v {
			return "1"
		}
		return "0"
	case json.Number:
		if numberRe.MatchString(v.String()) {
			return v.String()
		}
		return d.QuoteString(v.String())
	case int:
		return strconv.Itoa(v)
	case int32:
		return strconv.FormatInt(int64(v), 10)
	case int64:
		return strconv.FormatInt(v, 10)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return "NULL"
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case string:
		return d.QuoteString(v)
	case map[string]any, []any:
		b, err := json.Marshal(v)
		if err != nil {
			return d.QuoteString(fmt.Sprint(v))
		}
		return d.QuoteString(string(b))
	}
	return d.QuoteString(fmt.Sprint(v))
}
