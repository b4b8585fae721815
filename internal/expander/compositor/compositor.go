// Package compositor rebuilds a query with every expandable term replaced by
// a disjunction of the term and its accepted expansions. Only term spans are
// rewritten; everything else is copied through byte for byte.
package compositor

import (
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/internal/expander/dispatcher"
	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/internal/expander/merger"
	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/internal/module"
	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/internal/query"
)

// ExpandedQuery is the outcome of one expansion request. Template is the
// original query with each expandable term written as {{term}}.
type ExpandedQuery struct {
	Original    string                       `json:"original_query"`
	Query       string                       `json:"query"`
	Template    string                       `json:"query_expansion_template"`
	Results     []dispatcher.ExpansionResult `json:"terms"`
	Diagnostics []dispatcher.Diagnostic      `json:"diagnostics"`
}

// Options controls composition. Accept, when set, decides per expansion
// whether it enters the rewritten query; the Results are unaffected.
type Options struct {
	Accept func(term string, e merger.Expansion) bool
}

// Compose splices the results into the token stream.
func Compose(tokens []query.Token, results []dispatcher.ExpansionResult, opts Options) ExpandedQuery {
	byIndex := make(map[int]*dispatcher.ExpansionResult, len(results))
	for i := range results {
		byIndex[results[i].Index] = &results[i]
	}

	var q, tmpl strings.Builder
	for i, tok := range tokens {
		if !tok.Expandable() {
			q.WriteString(tok.Text)
			tmpl.WriteString(tok.Text)
			continue
		}
		tmpl.WriteString("{{")
		tmpl.WriteString(tok.Text)
		tmpl.WriteString("}}")

		var alts []string
		if r, ok := byIndex[i]; ok {
			alts = accepted(tok.Value, r.Expansions, opts.Accept)
		}
		writeDisjunction(&q, tok.Text, alts)
	}

	if results == nil {
		results = []dispatcher.ExpansionResult{}
	}
	return ExpandedQuery{
		Original: query.Join(tokens),
		Query:    q.String(),
		Template: tmpl.String(),
		Results:  results,
	}
}

func accepted(term string, exps []merger.Expansion, accept func(string, merger.Expansion) bool) []string {
	folded := module.Fold(term)
	seen := map[string]struct{}{folded: {}}
	var alts []string
	for _, e := range exps {
		key := module.Fold(e.Text)
		if _, dup := seen[key]; dup {
			continue
		}
		if accept != nil && !accept(term, e) {
			continue
		}
		seen[key] = struct{}{}
		alts = append(alts, e.Text)
	}
	return alts
}

func writeDisjunction(b *strings.Builder, term string, alts []string) {
	if len(alts) == 0 {
		b.WriteString(term)
		return
	}
	b.WriteByte('(')
	b.WriteString(term)
	for _, alt := range alts {
		b.WriteString(" OR ")
		b.WriteString(Quote(alt))
	}
	b.WriteByte(')')
}

// Quote returns s unchanged when it lexes as a single plain term, and as an
// escaped phrase otherwise, so multi-word or syntax-bearing expansions stay
// atomic in the rewritten query.
func Quote(s string) string {
	if toks, err := query.Tokenize(s); err == nil && len(toks) == 1 && toks[0].Kind == query.Term && toks[0].Value == s {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('"')
	for _, r := range s {
		if r == '"' || r == '\\' {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	b.WriteByte('"')
	return b.String()
}

// Resolve substitutes every {{term}} placeholder in template with the
// disjunction of term and its alternatives from expansions. Placeholders
// without an entry resolve to the bare term.
func Resolve(template string, expansions map[string][]string) string {
	var b strings.Builder
	b.Grow(len(template))
	rest := template
	for {
		open := strings.Index(rest, "{{")
		if open < 0 {
			break
		}
		end := strings.Index(rest[open+2:], "}}")
		if end < 0 {
			break
		}
		term := rest[open+2 : open+2+end]
		b.WriteString(rest[:open])

		folded := module.Fold(term)
		seen := map[string]struct{}{folded: {}}
		var alts []string
		for _, alt := range expansions[term] {
			key := module.Fold(alt)
			if _, dup := seen[key]; dup || alt == "" {
				continue
			}
			seen[key] = struct{}{}
			alts = append(alts, alt)
		}
		writeDisjunction(&b, term, alts)
		rest = rest[open+2+end+2:]
	}
	b.WriteString(rest)
	return b.String()
}
