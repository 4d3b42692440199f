package safety

import (
	"regexp"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/elmanelman/sql-judge/sqlscan"
)

// ErrStatementShape is wrapped by every error from
// ValidateProvisioningStatement.
var ErrStatementShape = errors.New("statement shape not allowed for provisioning")

var provisioningShapes = []struct {
	prefix string
	re     *regexp.Regexp
}{
	{
		prefix: "drop",
		re:     regexp.MustCompile("(?is)^drop\\s+table\\s+if\\s+exists\\s+`?\\w+`?\\s*$"),
	},
	{
		prefix: "create",
		re:     regexp.MustCompile("(?is)^create\\s+table\\s+(?:if\\s+not\\s+exists\\s+)?`?\\w+`?\\s*\\("),
	},
	{
		prefix: "insert",
		re:     regexp.MustCompile("(?is)^insert\\s+(?:ignore\\s+)?into\\s+`?\\w+`?\\s*\\("),
	},
}

// ValidateProvisioningStatement checks a generated statement against the
// only shapes provisioning may run: DROP TABLE IF EXISTS, CREATE TABLE and
// INSERT [IGNORE] INTO, each on a single word-character identifier.
func ValidateProvisioningStatement(stmt string) error {
	s := strings.TrimSpace(stmt)
	if s == "" {
		return errors.Wrap(ErrStatementShape, "empty statement")
	}
	if !sqlscan.IsSingleStatement(s) {
		return errors.Wrap(ErrStatementShape, "multiple statements")
	}
	lower := strings.ToLower(s)
	for _, shape := range provisioningShapes {
		if !strings.HasPrefix(lower, shape.prefix) {
			continue
		}
		if shape.re.MatchString(s) {
			return nil
		}
		return errors.Wrapf(ErrStatementShape, "malformed %s statement", strings.ToUpper(shape.prefix))
	}
	return errors.Wrapf(ErrStatementShape, "unexpected statement %q", truncate(s, 40))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
