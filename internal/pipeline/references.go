package pipeline

import (
	"regexp"
	"strings"
	"unicode"
)

var viewHeaderPattern = regexp.MustCompile(`(?is)^\s*create\s+(?:or\s+replace\s+)?(?:secure\s+)?(?:recursive\s+)?(?:(?:local\s+|global\s+)?(?:temporary|temp|volatile)\s+)?view\s+(?:if\s+not\s+exists\s+)?((?:"[^"]*"|[^\s("])+)`)

// Functions whose argument list may contain FROM without naming a relation.
var fromInsideCall = map[string]bool{
	"EXTRACT":   true,
	"TRIM":      true,
	"SUBSTRING": true,
	"POSITION":  true,
	"OVERLAY":   true,
}

// Words that end a FROM list element when they show up where an alias could.
var clauseKeywords = map[string]bool{
	"WHERE": true, "GROUP": true, "ORDER": true, "HAVING": true, "QUALIFY": true,
	"LIMIT": true, "UNION": true, "EXCEPT": true, "MINUS": true, "INTERSECT": true,
	"JOIN": true, "INNER": true, "LEFT": true, "RIGHT": true, "FULL": true,
	"CROSS": true, "NATURAL": true, "OUTER": true, "ON": true, "USING": true,
	"LATERAL": true, "WINDOW": true, "SAMPLE": true, "TABLESAMPLE": true,
	"PIVOT": true, "UNPIVOT": true, "MATCH_RECOGNIZE": true, "AT": true, "BEFORE": true,
	"CHANGES": true, "CONNECT": true, "START": true, "SELECT": true, "FROM": true,
}

// TargetOf returns the normalized name of the view a CREATE VIEW statement
// defines, or "" when query is not a view definition.
func TargetOf(query string) string {
	m := viewHeaderPattern.FindStringSubmatch(stripComments(query))
	if m == nil {
		return ""
	}
	return normalizeIdentifier(m[1])
}

// References returns the relations a query reads from: every name following
// FROM or JOIN, upper-cased unless quoted, in order of first appearance.
// Stage locations, sub-queries and table functions are skipped, as are the
// names a WITH clause defines.
func References(query string) []string {
	tokens := tokenize(query)
	ctes := commonTableNames(tokens)

	var (
		refs  []string
		seen  = make(map[string]bool)
		calls []string
	)

	add := func(name string) {
		if name == "" || seen[name] || ctes[name] {
			return
		}
		seen[name] = true
		refs = append(refs, name)
	}

	// relationAt reads a relation starting at tokens[i] and returns the
	// normalized name and the index after it.
	relationAt := func(i int) (string, int) {
		if i >= len(tokens) {
			return "", i
		}
		tok := tokens[i]
		if tok.kind != tokenWord {
			return "", i
		}
		if i+1 < len(tokens) && tokens[i+1].text == "(" {
			// table function such as TABLE(...) or FLATTEN(...)
			return "", i + 1
		}
		return normalizeIdentifier(tok.text), i + 1
	}

	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]

		switch {
		case tok.text == "(":
			name := ""
			if i > 0 && tokens[i-1].kind == tokenWord {
				name = strings.ToUpper(tokens[i-1].text)
			}
			calls = append(calls, name)
			continue
		case tok.text == ")":
			if len(calls) > 0 {
				calls = calls[:len(calls)-1]
			}
			continue
		case tok.kind != tokenWord:
			continue
		}

		keyword := strings.ToUpper(tok.text)
		if keyword != "FROM" && keyword != "JOIN" {
			continue
		}
		if keyword == "FROM" && len(calls) > 0 && fromInsideCall[calls[len(calls)-1]] {
			continue
		}

		name, next := relationAt(i + 1)
		add(name)
		if keyword == "JOIN" {
			continue
		}

		// FROM a [AS] x, b [AS] y
		for next < len(tokens) {
			j := next
			if j < len(tokens) && tokens[j].kind == tokenWord && strings.ToUpper(tokens[j].text) == "AS" {
				j++
			}
			if j < len(tokens) && tokens[j].kind == tokenWord && !clauseKeywords[strings.ToUpper(tokens[j].text)] {
				j++
			}
			if j < len(tokens) && tokens[j].text == "," {
				name, next = relationAt(j + 1)
				add(name)
				if name == "" {
					break
				}
				continue
			}
			break
		}
	}

	return refs
}

// commonTableNames returns the normalized names bound by every
// WITH [RECURSIVE] name [(columns)] AS (...) [, ...] clause in tokens.
func commonTableNames(tokens []token) map[string]bool {
	names := make(map[string]bool)

	isWord := func(i int, word string) bool {
		return i < len(tokens) && tokens[i].kind == tokenWord && strings.ToUpper(tokens[i].text) == word
	}
	isSymbol := func(i int, sym string) bool {
		return i < len(tokens) && tokens[i].kind == tokenSymbol && tokens[i].text == sym
	}

	for i := range tokens {
		if !isWord(i, "WITH") {
			continue
		}
		j := i + 1
		if isWord(j, "RECURSIVE") {
			j++
		}
		for j < len(tokens) && tokens[j].kind == tokenWord {
			name := normalizeIdentifier(tokens[j].text)
			k := j + 1
			if isSymbol(k, "(") {
				k = skipParens(tokens, k)
			}
			if !isWord(k, "AS") || !isSymbol(k+1, "(") {
				break
			}
			names[name] = true
			k = skipParens(tokens, k+1)
			if !isSymbol(k, ",") {
				break
			}
			j = k + 1
		}
	}

	return names
}

// skipParens returns the index after the parenthesis that closes tokens[open].
func skipParens(tokens []token, open int) int {
	depth := 0
	for i := open; i < len(tokens); i++ {
		switch tokens[i].text {
		case "(":
			depth++
		case ")":
			depth--
			if depth == 0 {
				return i + 1
			}
		}
	}
	return len(tokens)
}

type tokenKind int

const (
	tokenWord tokenKind = iota
	tokenSymbol
	tokenStage
)

type token struct {
	kind tokenKind
	text string
}

// tokenize splits SQL into identifier words (dotted and quoted parts kept
// together), stage references and single-character symbols. Comments and
// string literals are dropped.
func tokenize(sql string) []token {
	var tokens []token
	runes := []rune(sql)
	n := len(runes)

	for i := 0; i < n; {
		r := runes[i]

		switch {
		case unicode.IsSpace(r):
			i++

		case r == '-' && i+1 < n && runes[i+1] == '-':
			for i < n && runes[i] != '\n' {
				i++
			}

		case r == '/' && i+1 < n && runes[i+1] == '/':
			for i < n && runes[i] != '\n' {
				i++
			}

		case r == '/' && i+1 < n && runes[i+1] == '*':
			i += 2
			for i < n && !(runes[i] == '*' && i+1 < n && runes[i+1] == '/') {
				i++
			}
			i += 2

		case r == '\'':
			i++
			for i < n {
				if runes[i] == '\\' {
					i += 2
					continue
				}
				if runes[i] == '\'' {
					if i+1 < n && runes[i+1] == '\'' {
						i += 2
						continue
					}
					break
				}
				i++
			}
			i++

		case r == '@':
			start := i
			for i < n && !unicode.IsSpace(runes[i]) && runes[i] != '(' && runes[i] != ')' && runes[i] != ',' {
				i++
			}
			tokens = append(tokens, token{kind: tokenStage, text: string(runes[start:i])})

		case isWordRune(r) || r == '"':
			start := i
			for i < n {
				if runes[i] == '"' {
					i++
					for i < n && runes[i] != '"' {
						i++
					}
					i++
					continue
				}
				if isWordRune(runes[i]) || runes[i] == '.' {
					i++
					continue
				}
				break
			}
			if i > n {
				i = n
			}
			tokens = append(tokens, token{kind: tokenWord, text: string(runes[start:i])})

		default:
			tokens = append(tokens, token{kind: tokenSymbol, text: string(r)})
			i++
		}
	}

	return tokens
}

func isWordRune(r rune) bool {
	return r == '_' || r == '$' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// stripComments removes line and block comments, leaving string literals alone.
func stripComments(sql string) string {
	var b strings.Builder
	runes := []rune(sql)
	n := len(runes)

	for i := 0; i < n; i++ {
		switch {
		case runes[i] == '-' && i+1 < n && runes[i+1] == '-':
			for i < n && runes[i] != '\n' {
				i++
			}
			b.WriteRune('\n')
		case runes[i] == '/' && i+1 < n && runes[i+1] == '*':
			i += 2
			for i < n && !(runes[i] == '*' && i+1 < n && runes[i+1] == '/') {
				i++
			}
			i++
			b.WriteRune(' ')
		case runes[i] == '\'':
			b.WriteRune(runes[i])
			i++
			for i < n && runes[i] != '\'' {
				b.WriteRune(runes[i])
				i++
			}
			if i < n {
				b.WriteRune(runes[i])
			}
		default:
			b.WriteRune(runes[i])
		}
	}

	return b.String()
}

// normalizeIdentifier folds unquoted identifier parts to upper case the way
// Snowflake resolves them and strips quotes from quoted parts.
func normalizeIdentifier(ident string) string {
	var (
		parts   []string
		current strings.Builder
		quoted  bool
	)

	flush := func() {
		parts = append(parts, current.String())
		current.Reset()
	}

	for _, r := range ident {
		switch {
		case r == '"':
			quoted = !quoted
		case r == '.' && !quoted:
			flush()
		case quoted:
			current.WriteRune(r)
		default:
			current.WriteRune(unicode.ToUpper(r))
		}
	}
	flush()

	return strings.Join(parts, ".")
}

// unqualified returns the last part of a normalized name.
func unqualified(name string) string {
	if idx := strings.LastIndex(name, "."); idx >= 0 {
		return name[idx+1:]
	}
	return name
}
