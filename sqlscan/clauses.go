package sqlscan

import (
	"regexp"
	"strings"
)

// HasOrderBy reports whether the statement declares an explicit output
// ordering, i.e. an ORDER BY at parenthesis depth 0. ORDER BY inside
// subqueries, CTE bodies or window specifications does not count.
func HasOrderBy(sql string) bool {
	toks := Scan(sql)
	for i := 0; i+1 < len(toks); i++ {
		if toks[i].Depth == 0 && toks[i].Is("order") && toks[i+1].Is("by") {
			return true
		}
	}
	return false
}

var aliasRe = regexp.MustCompile(`^[\w\s]+$`)

// OutputColumns infers the output column names of a SELECT statement. An
// explicit alias wins, otherwise the last identifier of the expression is
// used (t.id -> id). It returns nil for SELECT *, for statements that are not
// a plain SELECT ... FROM, and when nothing could be inferred.
func OutputColumns(sql string) []string {
	toks := Scan(sql)
	if len(toks) == 0 || !toks[0].Is("select") {
		return nil
	}
	from := -1
	for i := 1; i < len(toks); i++ {
		if toks[i].Depth == 0 && toks[i].Is("from") {
			from = i
			break
		}
	}
	if from < 0 {
		return nil
	}
	var names []string
	for _, seg := range splitTopLevel(toks[1:from]) {
		if len(seg) == 0 {
			continue
		}
		if last := seg[len(seg)-1]; last.Kind == Punct && last.Text == "*" {
			return nil
		}
		if name, ok := explicitAlias(seg); ok {
			names = append(names, name)
			continue
		}
		if name, ok := lastIdentifier(seg); ok {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return nil
	}
	return names
}

// splitTopLevel splits tokens on commas at depth 0.
func splitTopLevel(toks []Token) [][]Token {
	var segs [][]Token
	start := 0
	for i, tok := range toks {
		if tok.Depth == 0 && tok.Kind == Punct && tok.Text == "," {
			segs = append(segs, toks[start:i])
			start = i + 1
		}
	}
	return append(segs, toks[start:])
}

func explicitAlias(seg []Token) (string, bool) {
	for i := len(seg) - 2; i >= 0; i-- {
		if seg[i].Depth != 0 || !seg[i].Is("as") {
			continue
		}
		next := seg[i+1]
		if next.Kind == Punct {
			return "", false
		}
		alias := strings.TrimSpace(next.Value())
		if alias == "" || !aliasRe.MatchString(alias) {
			return "", false
		}
		return alias, true
	}
	return "", false
}

func lastIdentifier(seg []Token) (string, bool) {
	for i := len(seg) - 1; i >= 0; i-- {
		switch seg[i].Kind {
		case Word, QuotedIdent:
			return seg[i].Value(), true
		}
	}
	return "", false
}
