package query

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

type lexer struct {
	src  string
	pos  int
	toks []Token
}

// Tokenize splits q into tokens and checks its structure: balanced quotes,
// brackets and parentheses, operators with operands, modifiers attached to
// something they can modify.
func Tokenize(q string) ([]Token, error) {
	l := &lexer{src: q, toks: make([]Token, 0, len(q)/3+1)}
	if err := l.run(); err != nil {
		return nil, err
	}
	if err := validate(l.toks); err != nil {
		return nil, err
	}
	markFuzzy(l.toks)
	return l.toks, nil
}

func (l *lexer) emit(kind Kind, start int, value string) {
	l.toks = append(l.toks, Token{
		Kind:  kind,
		Text:  l.src[start:l.pos],
		Value: value,
		Start: start,
		End:   l.pos,
	})
}

func (l *lexer) peek(offset int) (rune, int) {
	if l.pos+offset >= len(l.src) {
		return utf8.RuneError, 0
	}
	return utf8.DecodeRuneInString(l.src[l.pos+offset:])
}

func (l *lexer) run() error {
	for l.pos < len(l.src) {
		start := l.pos
		r, size := l.peek(0)
		switch {
		case unicode.IsSpace(r):
			for l.pos < len(l.src) {
				r, size := l.peek(0)
				if !unicode.IsSpace(r) {
					break
				}
				l.pos += size
			}
			l.emit(Space, start, "")
		case r == '"':
			if err := l.phrase(); err != nil {
				return err
			}
		case r == '(':
			l.pos += size
			l.emit(GroupOpen, start, "(")
		case r == ')':
			l.pos += size
			l.emit(GroupClose, start, ")")
		case r == '[' || r == '{':
			if err := l.rangeExpr(); err != nil {
				return err
			}
		case r == '/':
			if err := l.regex(); err != nil {
				return err
			}
		case r == '&' && strings.HasPrefix(l.src[l.pos:], "&&"):
			l.pos += 2
			l.emit(Operator, start, "AND")
		case r == '|' && strings.HasPrefix(l.src[l.pos:], "||"):
			l.pos += 2
			l.emit(Operator, start, "OR")
		case r == '!':
			l.pos += size
			l.emit(Operator, start, "NOT")
		case r == '+' || r == '-':
			l.pos += size
			l.emit(Operator, start, string(r))
		case r == '^' || r == '~':
			if err := l.modifier(r); err != nil {
				return err
			}
		case r == ':':
			return syntaxErrorf(start, "field qualifier without a field name")
		case r == '\\' || r == '*' || r == '?' || isWordRune(r):
			if err := l.word(); err != nil {
				return err
			}
		default:
			l.pos += size
			l.emit(Other, start, string(r))
		}
	}
	return nil
}

func (l *lexer) phrase() error {
	start := l.pos
	l.pos++
	var b strings.Builder
	for l.pos < len(l.src) {
		r, size := l.peek(0)
		switch r {
		case '\\':
			next, nsize := l.peek(size)
			if nsize == 0 {
				return syntaxErrorf(l.pos, "dangling escape in phrase")
			}
			b.WriteRune(next)
			l.pos += size + nsize
		case '"':
			l.pos += size
			l.emit(Phrase, start, b.String())
			return nil
		default:
			b.WriteRune(r)
			l.pos += size
		}
	}
	return syntaxErrorf(start, "unterminated phrase")
}

// rangeExpr consumes [a TO b], {a TO b} or a mixed-bound range as one
// atomic token. Quoted bounds may contain brackets.
func (l *lexer) rangeExpr() error {
	start := l.pos
	l.pos++
	inQuote := false
	for l.pos < len(l.src) {
		r, size := l.peek(0)
		switch {
		case r == '\\':
			_, nsize := l.peek(size)
			l.pos += size + nsize
			continue
		case r == '"':
			inQuote = !inQuote
		case !inQuote && (r == ']' || r == '}'):
			l.pos += size
			l.emit(Range, start, strings.TrimSpace(l.src[start+1:l.pos-1]))
			return nil
		case !inQuote && (r == '[' || r == '{'):
			return syntaxErrorf(l.pos, "nested range")
		}
		l.pos += size
	}
	return syntaxErrorf(start, "unterminated range")
}

func (l *lexer) regex() error {
	start := l.pos
	l.pos++
	for l.pos < len(l.src) {
		r, size := l.peek(0)
		if r == '\\' {
			_, nsize := l.peek(size)
			l.pos += size + nsize
			continue
		}
		l.pos += size
		if r == '/' {
			l.emit(Regex, start, l.src[start+1:l.pos-1])
			return nil
		}
	}
	return syntaxErrorf(start, "unterminated regular expression")
}

// modifier consumes ^boost (number required) or ~ with an optional number.
func (l *lexer) modifier(sym rune) error {
	start := l.pos
	l.pos++
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		if (c < '0' || c > '9') && c != '.' {
			break
		}
		l.pos++
	}
	value := l.src[start+1 : l.pos]
	if sym == '^' && value == "" {
		return syntaxErrorf(start, "boost without a value")
	}
	if strings.Count(value, ".") > 1 {
		return syntaxErrorf(start, "malformed modifier %q", l.src[start:l.pos])
	}
	l.emit(Modifier, start, string(sym)+value)
	return nil
}

// word consumes a term, wildcard, keyword operator or field qualifier.
func (l *lexer) word() error {
	start := l.pos
	var b strings.Builder
	wildcard, escaped, prevWord := false, false, false
loop:
	for l.pos < len(l.src) {
		r, size := l.peek(0)
		switch {
		case r == '\\':
			next, nsize := l.peek(size)
			if nsize == 0 {
				return syntaxErrorf(l.pos, "dangling escape")
			}
			b.WriteRune(next)
			l.pos += size + nsize
			escaped, prevWord = true, true
		case isWordRune(r):
			b.WriteRune(r)
			l.pos += size
			prevWord = true
		case r == '*' || r == '?':
			b.WriteRune(r)
			l.pos += size
			wildcard, prevWord = true, false
		case prevWord && isJoiner(r):
			next, _ := l.peek(size)
			if !isWordRune(next) {
				break loop
			}
			b.WriteRune(r)
			l.pos += size
			prevWord = false
		default:
			break loop
		}
	}
	value := b.String()

	if l.pos < len(l.src) && l.src[l.pos] == ':' {
		l.pos++
		if !l.operandFollows() {
			return syntaxErrorf(start, "field %q has no value", value)
		}
		l.emit(Field, start, value)
		return nil
	}
	switch {
	case wildcard:
		l.emit(Wildcard, start, value)
	case !escaped && (value == "AND" || value == "OR" || value == "NOT"):
		l.emit(Operator, start, value)
	default:
		l.emit(Term, start, value)
	}
	return nil
}

// operandFollows reports whether the character at pos can begin the value of
// a field qualifier.
func (l *lexer) operandFollows() bool {
	r, size := l.peek(0)
	if size == 0 {
		return false
	}
	switch r {
	case '"', '(', '[', '{', '/', '\\', '*', '?':
		return true
	}
	return isWordRune(r)
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r)
}

func isJoiner(r rune) bool {
	return r == '-' || r == '.' || r == '\''
}

// markFuzzy flags terms directly followed by a ~ modifier.
func markFuzzy(toks []Token) {
	for i := 0; i+1 < len(toks); i++ {
		if toks[i].Kind == Term && toks[i+1].Kind == Modifier && strings.HasPrefix(toks[i+1].Value, "~") {
			toks[i].fuzzy = true
		}
	}
}
