// Package sqlscan is a small SQL tokenizer. It understands comments, quoted
// literals and parenthesis depth, which is enough to answer shallow questions
// about a statement without parsing it.
package sqlscan

import "strings"

type Kind int

const (
	// Word is an unquoted keyword, identifier or number.
	Word Kind = iota
	// String is a single or double quoted literal.
	String
	// QuotedIdent is a backtick quoted identifier.
	QuotedIdent
	// Punct is any other single byte, e.g. '(' or ','.
	Punct
)

func (k Kind) String() string {
	switch k {
	case Word:
		return "word"
	case String:
		return "string"
	case QuotedIdent:
		return "ident"
	case Punct:
		return "punct"
	}
	return "unknown"
}

type Token struct {
	Kind Kind
	// Text is the raw text of the token, including quotes.
	Text string
	// Pos is the byte offset of the token in the input.
	Pos int
	// Depth is the parenthesis depth the token sits at. Parentheses
	// themselves carry the depth of their enclosing context.
	Depth int
}

// Is reports whether the token is the given keyword, ignoring case.
func (t Token) Is(keyword string) bool {
	return t.Kind == Word && strings.EqualFold(t.Text, keyword)
}

// Value returns the token text with surrounding quotes removed and escapes
// resolved for quoted tokens.
func (t Token) Value() string {
	switch t.Kind {
	case String, QuotedIdent:
		return unquote(t.Text)
	}
	return t.Text
}

// Scan tokenizes sql. Whitespace and comments are dropped; unterminated
// literals and comments extend to the end of the input. Backslashes escape
// the next byte inside string literals, as in MySQL.
func Scan(sql string) []Token {
	return scan(sql, true)
}

func scan(sql string, backslash bool) []Token {
	var toks []Token
	depth := 0
	i := 0
	for i < len(sql) {
		c := sql[i]
		switch {
		case isSpace(c):
			i++
		case c == '-' && i+1 < len(sql) && sql[i+1] == '-':
			i = skipLineComment(sql, i)
		case c == '/' && i+1 < len(sql) && sql[i+1] == '*':
			i = skipBlockComment(sql, i)
		case c == '\'' || c == '"':
			end := skipQuoted(sql, i, c, backslash)
			toks = append(toks, Token{Kind: String, Text: sql[i:end], Pos: i, Depth: depth})
			i = end
		case c == '`':
			end := skipQuoted(sql, i, c, false)
			toks = append(toks, Token{Kind: QuotedIdent, Text: sql[i:end], Pos: i, Depth: depth})
			i = end
		case isWordByte(c):
			start := i
			for i < len(sql) && isWordByte(sql[i]) {
				i++
			}
			toks = append(toks, Token{Kind: Word, Text: sql[start:i], Pos: start, Depth: depth})
		default:
			if c == ')' && depth > 0 {
				depth--
			}
			toks = append(toks, Token{Kind: Punct, Text: sql[i : i+1], Pos: i, Depth: depth})
			if c == '(' {
				depth++
			}
			i++
		}
	}
	return toks
}

// StripLeadingComments removes leading whitespace and any number of leading
// line or block comments.
func StripLeadingComments(sql string) string {
	for {
		sql = strings.TrimLeftFunc(sql, func(r rune) bool { return r < 0x80 && isSpace(byte(r)) })
		switch {
		case strings.HasPrefix(sql, "--"):
			sql = sql[skipLineComment(sql, 0):]
		case strings.HasPrefix(sql, "/*"):
			sql = sql[skipBlockComment(sql, 0):]
		default:
			return sql
		}
	}
}

// SplitStatements splits a script on semicolons that sit outside literals
// and comments. Pieces holding nothing but whitespace or comments are
// dropped.
func SplitStatements(script string) []string {
	return split(script, Scan(script))
}

// IsSingleStatement reports whether sql holds at most one statement. The
// text is scanned with and without backslash escapes in literals, and both
// readings must agree, so a literal like 'a\' cannot hide a separator from
// a backend that treats the backslash as an ordinary character.
func IsSingleStatement(sql string) bool {
	return len(split(sql, scan(sql, true))) <= 1 &&
		len(split(sql, scan(sql, false))) <= 1
}

func split(script string, toks []Token) []string {
	var stmts []string
	start := 0
	seen := 0
	for _, tok := range toks {
		if tok.Kind == Punct && tok.Text == ";" {
			if seen > 0 {
				stmts = append(stmts, strings.TrimSpace(script[start:tok.Pos]))
			}
			start = tok.Pos + 1
			seen = 0
			continue
		}
		seen++
	}
	if seen > 0 {
		stmts = append(stmts, strings.TrimSpace(script[start:]))
	}
	return stmts
}

func skipLineComment(s string, i int) int {
	if j := strings.IndexByte(s[i:], '\n'); j >= 0 {
		return i + j + 1
	}
	return len(s)
}

func skipBlockComment(s string, i int) int {
	if j := strings.Index(s[i+2:], "*/"); j >= 0 {
		return i + 2 + j + 2
	}
	return len(s)
}

// skipQuoted returns the offset just past the literal starting at i. A
// doubled quote continues the literal; backslash escapes only apply to
// string literals.
func skipQuoted(s string, i int, quote byte, backslash bool) int {
	j := i + 1
	for j < len(s) {
		switch s[j] {
		case '\\':
			if backslash {
				j += 2
				continue
			}
		case quote:
			if j+1 < len(s) && s[j+1] == quote {
				j += 2
				continue
			}
			return j + 1
		}
		j++
	}
	return len(s)
}

func unquote(text string) string {
	if len(text) < 2 {
		return text
	}
	quote := text[0]
	body := text[1:]
	if body[len(body)-1] == quote {
		body = body[:len(body)-1]
	}
	var sb strings.Builder
	for i := 0; i < len(body); i++ {
		c := body[i]
		if c == '\\' && quote != '`' && i+1 < len(body) {
			i++
			sb.WriteByte(body[i])
			continue
		}
		if c == quote && i+1 < len(body) && body[i+1] == quote {
			i++
		}
		sb.WriteByte(c)
	}
	return sb.String()
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' || c == '\v'
}

func isWordByte(c byte) bool {
	return c == '_' || c == '$' || c >= 0x80 ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}
