package search

import (
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/multistep-search/internal/similarity"
	"github.com/cespare/xxhash/v2"
)

// TermQuery matches documents containing a term. It may carry its own
// similarity model; when that model differs from the searcher's ambient
// one, the clause is scored through a searcher rebound to it. Equality and
// hashing only consider the term, so two clauses differing only in model
// are the same query for caching and deduplication.
type TermQuery struct {
	term  Term
	model similarity.Model
}

// NewTermQuery scores with the searcher's ambient model.
func NewTermQuery(term Term) *TermQuery {
	return &TermQuery{term: term}
}

// NewTermQueryWithModel scores with model regardless of the ambient one.
func NewTermQueryWithModel(term Term, model similarity.Model) *TermQuery {
	return &TermQuery{term: term, model: model}
}

func (q *TermQuery) Term() Term { return q.term }

// Model returns the requested model, or nil when the clause uses the
// ambient one.
func (q *TermQuery) Model() similarity.Model { return q.model }

func (q *TermQuery) CreateWeight(s *Searcher, mode ScoreMode, boost float32) (Weight, error) {
	searcher := s
	if q.model != nil && q.model.Descriptor() != s.Similarity().Descriptor() {
		searcher = s.rebind(q.model)
	}

	var (
		collection similarity.CollectionStatistics
		stats      *similarity.TermStatistics
	)
	if mode.NeedsScores() {
		collection = searcher.CollectionStatistics(q.term.Field)
		stats = searcher.TermStatistics(q.term)
	} else {
		// Scores are discarded, so skip the statistics lookup.
		collection = similarity.CollectionStatistics{Field: q.term.Field, MaxDoc: 1, DocCount: 1, SumTotalTermFreq: 1, SumDocFreq: 1}
		stats = &similarity.TermStatistics{Term: q.term.Bytes, DocFreq: 1, TotalTermFreq: 1}
	}

	w := &termWeight{query: q, model: searcher.Similarity(), mode: mode}
	if stats != nil {
		w.simScorer = w.model.Scorer(boost, collection, *stats)
	}
	return w, nil
}

func (q *TermQuery) Equal(other Query) bool {
	o, ok := other.(*TermQuery)
	return ok && q.term.Equal(o.term)
}

func (q *TermQuery) Hash() uint64 {
	d := xxhash.New()
	d.WriteString("term\x00")
	d.WriteString(q.term.Field)
	d.Write([]byte{0})
	d.Write(q.term.Bytes)
	return d.Sum64()
}

func (q *TermQuery) String() string {
	return q.term.String()
}

type termWeight struct {
	query     *TermQuery
	model     similarity.Model
	simScorer similarity.SimScorer
	mode      ScoreMode
}

func (w *termWeight) Query() Query { return w.query }

func (w *termWeight) postings(leaf *LeafContext, withPositions bool) (PostingsEnum, error) {
	if w.simScorer == nil {
		return nil, nil
	}
	p, err := leaf.Reader.Postings(w.query.term, withPositions)
	if err != nil {
		return nil, fmt.Errorf("reading postings for %s: %w", w.query.term, err)
	}
	return p, nil
}

func (w *termWeight) Scorer(leaf *LeafContext) (Scorer, error) {
	p, err := w.postings(leaf, false)
	if err != nil || p == nil {
		return nil, err
	}
	return &termScorer{
		postings:  p,
		simScorer: w.simScorer,
		leaf:      leaf.Reader,
		field:     w.query.term.Field,
	}, nil
}

func (w *termWeight) Explain(leaf *LeafContext, doc int) (*similarity.Explanation, error) {
	p, err := w.postings(leaf, false)
	if err != nil {
		return nil, err
	}
	if p == nil || p.Advance(doc) != doc {
		return queryMismatch(w.query, doc), nil
	}
	freq := float32(p.Freq())
	norm := leaf.Reader.Norm(w.query.term.Field, doc)
	scoreExpl := w.simScorer.Explain(similarity.Match(freq, "freq, occurrences of term within document"), norm)
	return similarity.Match(scoreExpl.Value,
		fmt.Sprintf("weight(%s in %d) [%s], result of:", w.query, doc, w.model),
		scoreExpl), nil
}

func (w *termWeight) Matches(leaf *LeafContext, doc int) ([]FieldMatch, error) {
	info, ok := leaf.Reader.FieldInfo(w.query.term.Field)
	if !ok {
		return nil, nil
	}
	withPositions := info.IndexOptions.HasPositions()
	p, err := w.postings(leaf, withPositions)
	if err != nil {
		return nil, err
	}
	if p == nil || p.Advance(doc) != doc {
		return nil, nil
	}
	m := FieldMatch{Term: w.query.term}
	if withPositions {
		m.Iter = NewMatchSpanIterator(p)
	}
	return []FieldMatch{m}, nil
}

// IsCacheable is always true: a term clause depends only on the postings
// and the statistics snapshot.
func (w *termWeight) IsCacheable(*LeafContext) bool { return true }

type termScorer struct {
	postings  PostingsEnum
	simScorer similarity.SimScorer
	leaf      LeafReader
	field     string
}

func (s *termScorer) DocID() int             { return s.postings.DocID() }
func (s *termScorer) NextDoc() int           { return s.postings.NextDoc() }
func (s *termScorer) Advance(target int) int { return s.postings.Advance(target) }

func (s *termScorer) Score() float32 {
	return s.simScorer.Score(float32(s.postings.Freq()), s.leaf.Norm(s.field, s.postings.DocID()))
}
