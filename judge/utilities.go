package judge

import (
	"encoding/json"
	"strings"
)

// prepareQuery drops surrounding whitespace and trailing statement
// terminators, which the backend would otherwise treat as an empty second
// statement.
func prepareQuery(query string) string {
	return strings.TrimRight(strings.TrimSpace(query), "; \t\r\n")
}

func isBlank(s *string) bool {
	return s == nil || strings.TrimSpace(*s) == ""
}

func isNullJSON(raw json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(raw))
	return trimmed == "" || trimmed == "null"
}
