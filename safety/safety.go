// Package safety decides which statements are allowed to reach the shared
// judging database.
package safety

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/elmanelman/sql-judge/sqlscan"
)

// Denylist is checked in order; the first keyword found is reported.
var Denylist = []string{
	"drop",
	"delete",
	"truncate",
	"alter",
	"create",
	"insert",
	"update",
	"grant",
	"revoke",
	"exec",
	"execute",
}

var denylistRes = func() []*regexp.Regexp {
	res := make([]*regexp.Regexp, len(Denylist))
	for i, kw := range Denylist {
		res[i] = regexp.MustCompile(`\b` + regexp.QuoteMeta(kw) + `\b`)
	}
	return res
}()

var (
	selectPrefixRe = regexp.MustCompile(`^select\b`)
	withPrefixRe   = regexp.MustCompile(`^with\b`)
	selectWordRe   = regexp.MustCompile(`\bselect\b`)
)

// Classification is the outcome of Classify. Keyword is set only when a
// denylisted keyword caused the rejection.
type Classification struct {
	Permitted      bool
	Keyword        string
	MultiStatement bool
}

// Classify reports whether sql is a read-only query. Keywords are matched as
// whole words anywhere in the statement, so a column named "deleted" is fine
// but a string literal containing "drop" is not.
func Classify(sql string) Classification {
	s := strings.ToLower(strings.TrimSpace(sqlscan.StripLeadingComments(sql)))
	if s == "" {
		return Classification{}
	}
	for i, re := range denylistRes {
		if re.MatchString(s) {
			return Classification{Keyword: Denylist[i]}
		}
	}
	// go-sqlite3 runs every statement of a ;-separated string.
	if !sqlscan.IsSingleStatement(s) {
		return Classification{MultiStatement: true}
	}
	if selectPrefixRe.MatchString(s) {
		return Classification{Permitted: true}
	}
	if withPrefixRe.MatchString(s) && selectWordRe.MatchString(s[len("with"):]) {
		return Classification{Permitted: true}
	}
	return Classification{}
}

// Err converts a rejected classification into a *SafetyError. It returns nil
// for permitted statements.
func (c Classification) Err() error {
	if c.Permitted {
		return nil
	}
	return &SafetyError{Keyword: c.Keyword, MultiStatement: c.MultiStatement}
}

// SafetyError is returned for statements that were refused by the gate.
// They are never executed.
type SafetyError struct {
	Keyword        string
	MultiStatement bool
}

func (e *SafetyError) Error() string {
	if e.MultiStatement {
		return "query contains multiple statements; only a single SELECT query is permitted"
	}
	if e.Keyword != "" {
		return fmt.Sprintf(
			"query contains a forbidden operation (keyword: %s); only SELECT queries are permitted",
			strings.ToUpper(e.Keyword),
		)
	}
	return "only SELECT queries are permitted"
}

// IsSafetyError reports whether err is or wraps a *SafetyError.
func IsSafetyError(err error) bool {
	var se *SafetyError
	return errors.As(err, &se)
}
