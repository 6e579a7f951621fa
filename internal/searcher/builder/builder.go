// Package builder turns analyzed query text into search queries. The
// multistep constructor scores every analyzed term with a Stepwise model
// while synonyms injected by the analyzer only widen recall.
package builder

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/multistep-search/internal/analysis"
	"github.com/Adithya-Monish-Kumar-K/multistep-search/internal/search"
	"github.com/Adithya-Monish-Kumar-K/multistep-search/internal/similarity"
	apperrors "github.com/Adithya-Monish-Kumar-K/multistep-search/pkg/errors"
)

// ZeroTermsQuery decides what a query whose text analyzes to no tokens
// becomes.
type ZeroTermsQuery uint8

const (
	// ZeroTermsNone matches no documents.
	ZeroTermsNone ZeroTermsQuery = iota
	// ZeroTermsAll matches every document.
	ZeroTermsAll
	// ZeroTermsNull produces no query at all, letting a caller drop the
	// clause from an enclosing query.
	ZeroTermsNull
)

func (z ZeroTermsQuery) String() string {
	switch z {
	case ZeroTermsAll:
		return "all"
	case ZeroTermsNull:
		return "null"
	default:
		return "none"
	}
}

// ParseZeroTermsQuery accepts "none" and "all" in any case. NULL is for
// internal callers only.
func ParseZeroTermsQuery(s string) (ZeroTermsQuery, error) {
	switch strings.ToLower(s) {
	case "none":
		return ZeroTermsNone, nil
	case "all":
		return ZeroTermsAll, nil
	default:
		return 0, apperrors.Configf(apperrors.ErrInvalidZeroTerms, "Unsupported zero_terms_query value [%s]", s)
	}
}

// NoTermsReason explains the empty query built for text without tokens.
const NoTermsReason = "Matching no documents because no terms present"

// Query shapes reported to an Observer.
const (
	ShapeUnmapped  = "unmapped"
	ShapeZeroTerms = "zero_terms"
	ShapeTerm      = "term"
	ShapeBoolean   = "boolean"
)

// QueryContext gives query construction access to the field mapping and
// the analyzers.
type QueryContext interface {
	FieldMapping(field string) (analysis.FieldType, bool)
	Analyzer(name string) (analysis.Analyzer, error)
	SearchAnalyzer(ft analysis.FieldType) (analysis.Analyzer, error)
}

// Observer is told the shape of every query a constructor builds.
type Observer interface {
	QueryBuilt(shape string)
}

// Multistep builds queries whose terms are scored with a Stepwise model.
// A Multistep is configured once and used for a single Parse.
type Multistep struct {
	ctx       QueryContext
	analyzer  analysis.Analyzer
	model     *similarity.Stepwise
	zeroTerms ZeroTermsQuery
	observer  Observer
	logger    *slog.Logger
}

func NewMultistep(ctx QueryContext) *Multistep {
	return &Multistep{
		ctx:    ctx,
		model:  similarity.DefaultStepwise(),
		logger: slog.Default().With("component", "multistep-builder"),
	}
}

// SetAnalyzer overrides the field's search analyzer.
func (b *Multistep) SetAnalyzer(name string) error {
	a, err := b.ctx.Analyzer(name)
	if err != nil {
		return fmt.Errorf("setting multistep analyzer: %w", err)
	}
	b.analyzer = a
	return nil
}

// SetBase sets the logarithm base of the Stepwise model. The default is e.
func (b *Multistep) SetBase(base float64) error {
	m, err := similarity.NewStepwise(base)
	if err != nil {
		return err
	}
	b.model = m
	return nil
}

func (b *Multistep) SetZeroTermsQuery(z ZeroTermsQuery) {
	b.zeroTerms = z
}

func (b *Multistep) SetObserver(o Observer) {
	b.observer = o
}

// Parse analyzes text for field and builds the query. It returns a nil
// query only under ZeroTermsNull. Analysis failures are ErrAnalysis errors
// and never yield a partial query.
func (b *Multistep) Parse(field, text string) (search.Query, error) {
	ft, ok := b.ctx.FieldMapping(field)
	if !ok {
		b.built(ShapeUnmapped, field, 0)
		return search.NewMatchNoDocsQuery(fmt.Sprintf("unmapped field [%s]", field)), nil
	}

	a := b.analyzer
	if a == nil {
		var err error
		if a, err = b.ctx.SearchAnalyzer(ft); err != nil {
			return nil, fmt.Errorf("resolving search analyzer of [%s]: %w", field, err)
		}
	}

	tokens, err := analysis.Drain(a.TokenStream(field, text))
	if err != nil {
		return nil, fmt.Errorf("%w: error analyzing query text for [%s]: %w", apperrors.ErrAnalysis, field, err)
	}

	switch len(tokens) {
	case 0:
		b.built(ShapeZeroTerms, field, 0)
		return b.zeroTermsQuery(), nil
	case 1:
		// A lone token is scored whatever its type.
		b.built(ShapeTerm, field, 1)
		term := search.Term{Field: field, Bytes: tokens[0].Term}
		return search.NewTermQueryWithModel(term, b.model), nil
	}

	clauses := make([]search.BooleanClause, len(tokens))
	for i, tok := range tokens {
		clauses[i] = search.BooleanClause{Query: b.termQuery(field, tok), Occur: search.Should}
	}
	b.built(ShapeBoolean, field, len(tokens))
	return search.NewBooleanQuery(clauses...), nil
}

// termQuery binds ordinary tokens to the Stepwise model. Synonyms keep the
// ambient model and contribute nothing to the score.
func (b *Multistep) termQuery(field string, tok analysis.Token) search.Query {
	term := search.Term{Field: field, Bytes: tok.Term}
	if tok.Type == analysis.TypeSynonym {
		return search.NewBoostQuery(search.NewTermQuery(term), 0)
	}
	return search.NewTermQueryWithModel(term, b.model)
}

func (b *Multistep) zeroTermsQuery() search.Query {
	switch b.zeroTerms {
	case ZeroTermsAll:
		return search.NewMatchAllDocsQuery()
	case ZeroTermsNull:
		return nil
	default:
		return search.NewMatchNoDocsQuery(NoTermsReason)
	}
}

func (b *Multistep) built(shape, field string, tokens int) {
	b.logger.Debug("multistep query built",
		"field", field,
		"shape", shape,
		"tokens", tokens,
		"base", b.model.Base(),
	)
	if b.observer != nil {
		b.observer.QueryBuilt(shape)
	}
}
