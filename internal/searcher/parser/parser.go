// Package parser turns the simple query syntax of the GET search endpoint
// into a search query. Words are combined with AND (the default) or OR,
// NOT excludes the following word, and field:word targets a field other
// than the default one.
package parser

import (
	"fmt"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/multistep-search/internal/analysis"
	"github.com/Adithya-Monish-Kumar-K/multistep-search/internal/search"
	"github.com/Adithya-Monish-Kumar-K/multistep-search/internal/searcher/builder"
	"github.com/Adithya-Monish-Kumar-K/multistep-search/internal/similarity"
	apperrors "github.com/Adithya-Monish-Kumar-K/multistep-search/pkg/errors"
)

type QueryType int

const (
	QueryAND QueryType = iota
	QueryOR
)

func (t QueryType) String() string {
	if t == QueryOR {
		return "OR"
	}
	return "AND"
}

// QueryPlan is a parsed query. Terms and ExcludeTerms hold the analyzed
// terms as field:text.
type QueryPlan struct {
	Query        search.Query
	Terms        []string
	ExcludeTerms []string
	Type         QueryType
	RawQuery     string
}

// Parser analyzes words with each field's search analyzer. When model is
// set, every term clause is scored with it instead of the ambient model.
type Parser struct {
	ctx          builder.QueryContext
	defaultField string
	model        similarity.Model
}

func New(ctx builder.QueryContext, defaultField string, model similarity.Model) *Parser {
	return &Parser{ctx: ctx, defaultField: defaultField, model: model}
}

type word struct {
	field   string
	text    string
	exclude bool
}

func (p *Parser) Parse(query string) (*QueryPlan, error) {
	plan := &QueryPlan{
		Terms:        make([]string, 0),
		ExcludeTerms: make([]string, 0),
		Type:         QueryAND,
		RawQuery:     query,
	}
	var words []word
	excludeNext := false
	for _, w := range strings.Fields(query) {
		switch strings.ToUpper(w) {
		case "AND":
			plan.Type = QueryAND
			continue
		case "OR":
			plan.Type = QueryOR
			continue
		case "NOT":
			excludeNext = true
			continue
		}
		field, text := p.defaultField, w
		if i := strings.IndexByte(w, ':'); i > 0 && i < len(w)-1 {
			field, text = w[:i], w[i+1:]
		}
		words = append(words, word{field: field, text: text, exclude: excludeNext})
		excludeNext = false
	}

	var clauses []search.BooleanClause
	positive := 0
	for _, w := range words {
		occur := search.Must
		switch {
		case w.exclude:
			occur = search.MustNot
		case plan.Type == QueryOR:
			occur = search.Should
		}
		if _, mapped := p.ctx.FieldMapping(w.field); !mapped {
			// The word matches nothing, which still constrains the other
			// clauses: a required one empties the result.
			reason := fmt.Sprintf("unmapped field [%s]", w.field)
			clauses = append(clauses, search.BooleanClause{Query: search.NewMatchNoDocsQuery(reason), Occur: occur})
			if !w.exclude {
				positive++
			}
			continue
		}
		terms, err := p.analyze(w.field, w.text)
		if err != nil {
			return nil, err
		}
		for _, term := range terms {
			clauses = append(clauses, search.BooleanClause{Query: p.termQuery(term), Occur: occur})
			if w.exclude {
				plan.ExcludeTerms = append(plan.ExcludeTerms, term.String())
			} else {
				plan.Terms = append(plan.Terms, term.String())
				positive++
			}
		}
	}

	switch {
	case len(clauses) == 0:
		plan.Query = search.NewMatchNoDocsQuery("no terms in query")
	case positive == 0:
		clauses = append([]search.BooleanClause{{Query: search.NewMatchAllDocsQuery(), Occur: search.Must}}, clauses...)
		plan.Query = search.NewBooleanQuery(clauses...)
	case len(clauses) == 1:
		plan.Query = clauses[0].Query
	default:
		plan.Query = search.NewBooleanQuery(clauses...)
	}
	return plan, nil
}

// analyze returns the terms of a word of a mapped field at new positions;
// stacked tokens such as synonyms are dropped.
func (p *Parser) analyze(field, text string) ([]search.Term, error) {
	ft, ok := p.ctx.FieldMapping(field)
	if !ok {
		return nil, fmt.Errorf("field [%s] is not mapped", field)
	}
	a, err := p.ctx.SearchAnalyzer(ft)
	if err != nil {
		return nil, err
	}
	tokens, err := analysis.Drain(a.TokenStream(field, text))
	if err != nil {
		return nil, fmt.Errorf("%w: error analyzing query text for [%s]: %w", apperrors.ErrAnalysis, field, err)
	}
	terms := make([]search.Term, 0, len(tokens))
	for _, tok := range tokens {
		if tok.PositionIncrement == 0 {
			continue
		}
		terms = append(terms, search.NewTerm(field, string(tok.Term)))
	}
	return terms, nil
}

func (p *Parser) termQuery(term search.Term) search.Query {
	if p.model == nil {
		return search.NewTermQuery(term)
	}
	return search.NewTermQueryWithModel(term, p.model)
}
