// Package query tokenizes Lucene-style queries into a flat, span-annotated
// token sequence. Tokens cover the input without gaps, so the original query
// can be rebuilt byte for byte and individual term spans can be spliced.
package query

import (
	"fmt"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/pkg/errors"
)

// Kind classifies a token.
type Kind int

const (
	Space Kind = iota
	Term
	Phrase
	Wildcard
	Field
	Operator
	GroupOpen
	GroupClose
	Modifier
	Range
	Regex
	Other
)

var kindNames = [...]string{
	Space:      "space",
	Term:       "term",
	Phrase:     "phrase",
	Wildcard:   "wildcard",
	Field:      "field",
	Operator:   "operator",
	GroupOpen:  "group_open",
	GroupClose: "group_close",
	Modifier:   "modifier",
	Range:      "range",
	Regex:      "regex",
	Other:      "other",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// MarshalText renders the kind by name in JSON payloads.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Token is one lexical unit. Text is always src[Start:End]. Value holds the
// payload: the unescaped word for terms and wildcards, the phrase content
// without quotes, the field name without the colon, and the canonical
// operator (AND, OR, NOT, +, -).
type Token struct {
	Kind  Kind   `json:"kind"`
	Text  string `json:"text"`
	Value string `json:"value"`
	Start int    `json:"start"`
	End   int    `json:"end"`

	fuzzy bool
}

// Expandable reports whether the token may be replaced by a disjunction.
// Only plain terms qualify; a term carrying a fuzziness modifier keeps its
// single-term semantics.
func (t Token) Expandable() bool {
	return t.Kind == Term && !t.fuzzy
}

// IsBinary reports whether t is a binary boolean operator.
func (t Token) IsBinary() bool {
	return t.Kind == Operator && (t.Value == "AND" || t.Value == "OR")
}

// Join concatenates token texts, rebuilding the source they came from.
func Join(tokens []Token) string {
	var b strings.Builder
	for _, t := range tokens {
		b.WriteString(t.Text)
	}
	return b.String()
}

// FieldOf returns the field qualifier attached to tokens[i], or "".
func FieldOf(tokens []Token, i int) string {
	if i > 0 && tokens[i-1].Kind == Field {
		return tokens[i-1].Value
	}
	return ""
}

// SyntaxError describes a structurally invalid query.
type SyntaxError struct {
	Pos int
	Msg string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error at offset %d: %s", e.Pos, e.Msg)
}

func (e *SyntaxError) Unwrap() error {
	return apperrors.ErrSyntax
}

func syntaxErrorf(pos int, format string, args ...any) *SyntaxError {
	return &SyntaxError{Pos: pos, Msg: fmt.Sprintf(format, args...)}
}
