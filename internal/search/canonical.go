package search

import (
	"fmt"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/multistep-search/internal/similarity"
)

// Canonical renders q like String, but also writes the descriptor of every
// clause that carries its own model. Two queries that match the same
// documents with different scoring render differently, so the result is
// safe to key scored results on.
func Canonical(q Query) string {
	var b strings.Builder
	writeCanonical(&b, q)
	return b.String()
}

func writeCanonical(b *strings.Builder, q Query) {
	switch t := q.(type) {
	case *TermQuery:
		b.WriteString(t.term.String())
		if t.model != nil {
			fmt.Fprintf(b, "{%s}", t.model.Descriptor())
		}
	case *BoostQuery:
		b.WriteByte('(')
		writeCanonical(b, t.query)
		fmt.Fprintf(b, ")^%v", t.boost)
	case *BooleanQuery:
		for i, c := range t.clauses {
			if i > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(c.Occur.prefix())
			b.WriteByte('(')
			writeCanonical(b, c.Query)
			b.WriteByte(')')
		}
	case nil:
	default:
		b.WriteString(q.String())
	}
}

// ScoringModels lists the distinct models that score q's clauses, in clause
// order. Term clauses without a model of their own score with ambient.
// Clauses that do not score through a model contribute nothing, so the
// result is empty for a query without term clauses.
func ScoringModels(q Query, ambient similarity.Model) []similarity.Model {
	var (
		out  []similarity.Model
		seen = make(map[similarity.Descriptor]bool)
	)
	var walk func(Query)
	walk = func(q Query) {
		switch t := q.(type) {
		case *TermQuery:
			m := t.model
			if m == nil {
				m = ambient
			}
			if m == nil || seen[m.Descriptor()] {
				return
			}
			seen[m.Descriptor()] = true
			out = append(out, m)
		case *BoostQuery:
			walk(t.query)
		case *BooleanQuery:
			for _, c := range t.clauses {
				if c.Occur != MustNot {
					walk(c.Query)
				}
			}
		}
	}
	walk(q)
	return out
}
