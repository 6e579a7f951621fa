package search

import (
	"github.com/Adithya-Monish-Kumar-K/multistep-search/internal/similarity"
	"github.com/cespare/xxhash/v2"
)

// MatchAllDocsQuery matches every document with a constant score equal to
// its boost.
type MatchAllDocsQuery struct{}

func NewMatchAllDocsQuery() *MatchAllDocsQuery { return &MatchAllDocsQuery{} }

func (q *MatchAllDocsQuery) CreateWeight(_ *Searcher, _ ScoreMode, boost float32) (Weight, error) {
	return &matchAllWeight{query: q, boost: boost}, nil
}

func (q *MatchAllDocsQuery) Equal(other Query) bool {
	_, ok := other.(*MatchAllDocsQuery)
	return ok
}

func (q *MatchAllDocsQuery) Hash() uint64   { return xxhash.Sum64String("match_all") }
func (q *MatchAllDocsQuery) String() string { return "*:*" }

type matchAllWeight struct {
	query *MatchAllDocsQuery
	boost float32
}

func (w *matchAllWeight) Query() Query { return w.query }

func (w *matchAllWeight) Scorer(leaf *LeafContext) (Scorer, error) {
	if leaf.Reader.MaxDoc() == 0 {
		return nil, nil
	}
	return &allScorer{maxDoc: leaf.Reader.MaxDoc(), doc: -1, score: w.boost}, nil
}

func (w *matchAllWeight) Explain(leaf *LeafContext, doc int) (*similarity.Explanation, error) {
	if doc < 0 || doc >= leaf.Reader.MaxDoc() {
		return queryMismatch(w.query, doc), nil
	}
	return similarity.Match(w.boost, "*:*"), nil
}

func (w *matchAllWeight) Matches(leaf *LeafContext, doc int) ([]FieldMatch, error) {
	return nil, nil
}

func (w *matchAllWeight) IsCacheable(*LeafContext) bool { return true }

type allScorer struct {
	maxDoc int
	doc    int
	score  float32
}

func (s *allScorer) DocID() int     { return s.doc }
func (s *allScorer) NextDoc() int   { return s.Advance(s.doc + 1) }
func (s *allScorer) Score() float32 { return s.score }

func (s *allScorer) Advance(target int) int {
	if target >= s.maxDoc {
		s.doc = NoMoreDocs
	} else {
		s.doc = target
	}
	return s.doc
}

// MatchNoDocsQuery matches nothing. Reason is reported by Explain.
type MatchNoDocsQuery struct {
	reason string
}

func NewMatchNoDocsQuery(reason string) *MatchNoDocsQuery {
	return &MatchNoDocsQuery{reason: reason}
}

func (q *MatchNoDocsQuery) Reason() string { return q.reason }

func (q *MatchNoDocsQuery) CreateWeight(*Searcher, ScoreMode, float32) (Weight, error) {
	return &matchNoWeight{query: q}, nil
}

func (q *MatchNoDocsQuery) Equal(other Query) bool {
	_, ok := other.(*MatchNoDocsQuery)
	return ok
}

func (q *MatchNoDocsQuery) Hash() uint64 { return xxhash.Sum64String("match_none") }

func (q *MatchNoDocsQuery) String() string {
	return "MatchNoDocsQuery(\"" + q.reason + "\")"
}

type matchNoWeight struct {
	query *MatchNoDocsQuery
}

func (w *matchNoWeight) Query() Query { return w.query }

func (w *matchNoWeight) Scorer(*LeafContext) (Scorer, error) { return nil, nil }

func (w *matchNoWeight) Matches(*LeafContext, int) ([]FieldMatch, error) { return nil, nil }

func (w *matchNoWeight) IsCacheable(*LeafContext) bool { return true }

func (w *matchNoWeight) Explain(*LeafContext, int) (*similarity.Explanation, error) {
	return similarity.NoMatch(w.query.reason), nil
}
