package provision

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
)

// ColumnKind is the storage class inferred for a preview column.
type ColumnKind int

const (
	KindString ColumnKind = iota
	KindPrimaryKey
	KindForeignKey
	KindDecimal
	KindDateTime
	KindBool
	KindInt
)

func (k ColumnKind) String() string {
	switch k {
	case KindPrimaryKey:
		return "primary_key"
	case KindForeignKey:
		return "foreign_key"
	case KindDecimal:
		return "decimal"
	case KindDateTime:
		return "datetime"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	}
	return "string"
}

// Dialect renders provisioning statements for one target engine. All
// identifiers passed in have already been reduced to [A-Za-z0-9_].
type Dialect interface {
	Name() string
	ColumnType(kind ColumnKind) string
	QuoteIdent(name string) string
	QuoteString(s string) string
	CreateTableSuffix() string
	// InsertRows renders a batched insert. When upsertKey is set, rows
	// colliding on it are overwritten, otherwise duplicates are ignored.
	InsertRows(table string, columns []string, rows []string, upsertKey string) string
}

// DialectByName returns the dialect for a driver name.
func DialectByName(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case "mysql":
		return MySQL{}, nil
	case "sqlite", "sqlite3":
		return SQLite{}, nil
	}
	return nil, errors.Newf("unsupported dialect %q", name)
}

func backtick(name string) string {
	return "`" + name + "`"
}

func joinIdents(d Dialect, names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = d.QuoteIdent(n)
	}
	return strings.Join(quoted, ", ")
}

type MySQL struct{}

var _ Dialect = MySQL{}

func (MySQL) Name() string { return "mysql" }

func (MySQL) ColumnType(kind ColumnKind) string {
	switch kind {
	case KindPrimaryKey:
		return "INT NOT NULL AUTO_INCREMENT PRIMARY KEY"
	case KindForeignKey:
		return "INT NOT NULL"
	case KindDecimal:
		return "DECIMAL(12,2) DEFAULT NULL"
	case KindDateTime:
		return "DATETIME DEFAULT NULL"
	case KindBool:
		return "TINYINT(1) DEFAULT NULL"
	case KindInt:
		return "INT DEFAULT NULL"
	}
	return "VARCHAR(255) DEFAULT NULL"
}

func (MySQL) QuoteIdent(name string) string { return backtick(name) }

func (MySQL) QuoteString(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `'`, `''`)
	return "'" + s + "'"
}

func (MySQL) CreateTableSuffix() string { return " ENGINE=InnoDB DEFAULT CHARSET=utf8mb4" }

func (d MySQL) InsertRows(table string, columns []string, rows []string, upsertKey string) string {
	values := strings.Join(rows, ",\n  ")
	if upsertKey == "" {
		return fmt.Sprintf("INSERT IGNORE INTO %s (%s) VALUES\n  %s", d.QuoteIdent(table), joinIdents(d, columns), values)
	}
	updates := make([]string, len(columns))
	for i, c := range columns {
		updates[i] = fmt.Sprintf("%s=VALUES(%s)", d.QuoteIdent(c), d.QuoteIdent(c))
	}
	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES\n  %s\nON DUPLICATE KEY UPDATE %s",
		d.QuoteIdent(table), joinIdents(d, columns), values, strings.Join(updates, ", "),
	)
}

// SQLite mirrors MySQL closely enough to run the same questions in-process.
// Backticks are accepted as identifier quotes, and backslashes carry no
// escaping meaning inside literals.
type SQLite struct{}

var _ Dialect = SQLite{}

func (SQLite) Name() string { return "sqlite" }

func (SQLite) ColumnType(kind ColumnKind) string {
	switch kind {
	case KindPrimaryKey:
		return "INTEGER PRIMARY KEY"
	case KindForeignKey:
		return "INTEGER NOT NULL"
	case KindDecimal:
		return "DECIMAL(12,2) DEFAULT NULL"
	case KindDateTime:
		return "DATETIME DEFAULT NULL"
	case KindBool:
		return "TINYINT DEFAULT NULL"
	case KindInt:
		return "INTEGER DEFAULT NULL"
	}
	return "VARCHAR(255) DEFAULT NULL"
}

func (SQLite) QuoteIdent(name string) string { return backtick(name) }

// QuoteString spells backslashes as char(92) so the literal reads the same
// whether or not a scanner treats backslash as an escape.
func (SQLite) QuoteString(s string) string {
	parts := strings.Split(s, `\`)
	for i, p := range parts {
		parts[i] = "'" + strings.ReplaceAll(p, `'`, `''`) + "'"
	}
	return strings.Join(parts, " || char(92) || ")
}

func (SQLite) CreateTableSuffix() string { return "" }

func (d SQLite) InsertRows(table string, columns []string, rows []string, upsertKey string) string {
	insert := fmt.Sprintf("INSERT INTO %s (%s) VALUES\n  %s", d.QuoteIdent(table), joinIdents(d, columns), strings.Join(rows, ",\n  "))
	if upsertKey == "" {
		return insert + "\nON CONFLICT DO NOTHING"
	}
	updates := make([]string, len(columns))
	for i, c := range columns {
		updates[i] = fmt.Sprintf("%s=excluded.%s", d.QuoteIdent(c), d.QuoteIdent(c))
	}
	return fmt.Sprintf("%s\nON CONFLICT(%s) DO UPDATE SET %s", insert, d.QuoteIdent(upsertKey), strings.Join(updates, ", "))
}
