package search

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"

	"github.com/RoaringBitmap/roaring/v2"
	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/multistep-search/internal/similarity"
	apperrors "github.com/Adithya-Monish-Kumar-K/multistep-search/pkg/errors"
)

// checkEvery is how many collected docs pass between context checks.
const checkEvery = 1024

// Observer is notified when a clause forces scoring under a different model
// than the searcher's ambient one.
type Observer interface {
	SimilarityRebound(from, to similarity.Kind)
}

// Searcher runs queries over a fixed set of leaves. Statistics are summed
// over all leaves so scores are comparable across them. A Searcher is
// immutable and safe for concurrent use.
type Searcher struct {
	leaves     []*LeafContext
	maxDoc     int
	similarity similarity.Model
	cache      *QueryCache
	observer   Observer
	logger     *slog.Logger
}

type SearcherOption func(*Searcher)

// WithModel sets the ambient similarity model. The default is BM25.
func WithModel(m similarity.Model) SearcherOption {
	return func(s *Searcher) { s.similarity = m }
}

// WithQueryCache caches the matches of non-scoring searches.
func WithQueryCache(c *QueryCache) SearcherOption {
	return func(s *Searcher) { s.cache = c }
}

func WithSearchObserver(o Observer) SearcherOption {
	return func(s *Searcher) { s.observer = o }
}

func NewSearcher(readers []LeafReader, opts ...SearcherOption) *Searcher {
	s := &Searcher{
		leaves:     make([]*LeafContext, len(readers)),
		similarity: similarity.DefaultBM25(),
		logger:     slog.Default().With("component", "searcher"),
	}
	for i, r := range readers {
		s.leaves[i] = &LeafContext{Reader: r, Ord: i, DocBase: s.maxDoc}
		s.maxDoc += r.MaxDoc()
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Searcher) Similarity() similarity.Model { return s.similarity }
func (s *Searcher) Leaves() []*LeafContext       { return s.leaves }
func (s *Searcher) MaxDoc() int                  { return s.maxDoc }

// WithSimilarity returns a searcher over the same leaves and cache whose
// ambient model is m.
func (s *Searcher) WithSimilarity(m similarity.Model) *Searcher {
	clone := *s
	clone.similarity = m
	return &clone
}

func (s *Searcher) rebind(m similarity.Model) *Searcher {
	s.logger.Debug("rebinding similarity",
		"from", s.similarity.String(),
		"to", m.String(),
	)
	if s.observer != nil {
		s.observer.SimilarityRebound(s.similarity.Descriptor().Kind, m.Descriptor().Kind)
	}
	return s.WithSimilarity(m)
}

func (s *Searcher) createWeight(q Query, mode ScoreMode, boost float32) (Weight, error) {
	w, err := q.CreateWeight(s, mode, boost)
	if err != nil {
		return nil, fmt.Errorf("creating weight for %s: %w", q, err)
	}
	return w, nil
}

// CollectionStatistics sums the field statistics of every leaf.
func (s *Searcher) CollectionStatistics(field string) similarity.CollectionStatistics {
	cs := similarity.CollectionStatistics{Field: field, MaxDoc: int64(s.maxDoc)}
	for _, leaf := range s.leaves {
		info, ok := leaf.Reader.FieldInfo(field)
		if !ok {
			continue
		}
		cs.DocCount += info.DocCount
		cs.SumTotalTermFreq += info.SumTotalTermFreq
		cs.SumDocFreq += info.SumDocFreq
	}
	return cs
}

// TermStatistics sums the term's statistics over every leaf and returns nil
// when no document contains it.
func (s *Searcher) TermStatistics(term Term) *similarity.TermStatistics {
	ts := similarity.TermStatistics{Term: term.Bytes}
	for _, leaf := range s.leaves {
		df, ttf := leaf.Reader.TermStats(term)
		ts.DocFreq += df
		ts.TotalTermFreq += ttf
	}
	if ts.DocFreq == 0 {
		return nil
	}
	return &ts
}

// Search returns the n best scoring documents for q.
func (s *Searcher) Search(ctx context.Context, q Query, n int) (TopDocs, error) {
	w, err := s.createWeight(q, ScoreModeTopScores, 1)
	if err != nil {
		return TopDocs{}, err
	}
	results := make([]TopDocs, len(s.leaves))
	g, gctx := errgroup.WithContext(ctx)
	for i, leaf := range s.leaves {
		g.Go(func() error {
			td, err := s.searchLeaf(gctx, w, leaf, n)
			if err != nil {
				return fmt.Errorf("leaf %s: %w", leaf.Reader.ID(), err)
			}
			results[i] = td
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return TopDocs{}, err
	}
	return MergeTopDocs(n, results...), nil
}

func (s *Searcher) searchLeaf(ctx context.Context, w Weight, leaf *LeafContext, n int) (TopDocs, error) {
	if err := ctx.Err(); err != nil {
		return TopDocs{}, err
	}
	sc, err := w.Scorer(leaf)
	if err != nil || sc == nil {
		return TopDocs{}, err
	}
	c := newTopN(n)
	var total int
	for doc := sc.NextDoc(); doc != NoMoreDocs; doc = sc.NextDoc() {
		total++
		if total%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				return TopDocs{}, err
			}
		}
		c.collect(ScoreDoc{Doc: leaf.DocBase + doc, Score: sc.Score()})
	}
	return TopDocs{TotalHits: total, ScoreDocs: c.sorted()}, nil
}

// Count returns the number of matching documents without scoring them.
// Cacheable queries are answered from the query cache when one is set.
func (s *Searcher) Count(ctx context.Context, q Query) (int, error) {
	w, err := s.createWeight(q, ScoreModeCompleteNoScores, 1)
	if err != nil {
		return 0, err
	}
	counts := make([]uint64, len(s.leaves))
	g, gctx := errgroup.WithContext(ctx)
	for i, leaf := range s.leaves {
		g.Go(func() error {
			bm, err := s.matchingDocs(gctx, w, q, leaf)
			if err != nil {
				return fmt.Errorf("leaf %s: %w", leaf.Reader.ID(), err)
			}
			counts[i] = bm.GetCardinality()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	var total int
	for _, c := range counts {
		total += int(c)
	}
	return total, nil
}

func (s *Searcher) matchingDocs(ctx context.Context, w Weight, q Query, leaf *LeafContext) (*roaring.Bitmap, error) {
	cacheable := s.cache != nil && w.IsCacheable(leaf)
	if cacheable {
		if bm, ok := s.cache.Get(leaf.Reader.ID(), q); ok {
			return bm, nil
		}
	}
	bm := roaring.New()
	sc, err := w.Scorer(leaf)
	if err != nil {
		return nil, err
	}
	if sc != nil {
		var seen int
		for doc := sc.NextDoc(); doc != NoMoreDocs; doc = sc.NextDoc() {
			seen++
			if seen%checkEvery == 0 {
				if err := ctx.Err(); err != nil {
					return nil, err
				}
			}
			bm.Add(uint32(doc))
		}
	}
	bm.RunOptimize()
	if cacheable {
		s.cache.Put(leaf.Reader.ID(), q, bm)
	}
	return bm, nil
}

func (s *Searcher) leafFor(doc int) (*LeafContext, int, error) {
	if doc < 0 || doc >= s.maxDoc {
		return nil, 0, apperrors.Newf(apperrors.ErrDocumentNotFound, http.StatusNotFound, "doc %d out of range [0, %d)", doc, s.maxDoc)
	}
	i := sort.Search(len(s.leaves), func(i int) bool {
		return s.leaves[i].DocBase > doc
	}) - 1
	leaf := s.leaves[i]
	return leaf, doc - leaf.DocBase, nil
}

// Explain describes how q scores a document given by its global doc id.
func (s *Searcher) Explain(q Query, doc int) (*similarity.Explanation, error) {
	leaf, local, err := s.leafFor(doc)
	if err != nil {
		return nil, err
	}
	w, err := s.createWeight(q, ScoreModeComplete, 1)
	if err != nil {
		return nil, err
	}
	return w.Explain(leaf, local)
}

// Span is one occurrence of a query term in a document. Position and the
// offsets are -1 for fields indexed without positions.
type Span struct {
	Field       string `json:"field"`
	Term        string `json:"term"`
	Position    int    `json:"position"`
	StartOffset int    `json:"start_offset"`
	EndOffset   int    `json:"end_offset"`
}

// Matches lists where the terms of q occur in a matching document.
func (s *Searcher) Matches(q Query, doc int) ([]Span, error) {
	leaf, local, err := s.leafFor(doc)
	if err != nil {
		return nil, err
	}
	w, err := s.createWeight(q, ScoreModeCompleteNoScores, 1)
	if err != nil {
		return nil, err
	}
	matches, err := w.Matches(leaf, local)
	if err != nil {
		return nil, err
	}
	var spans []Span
	for _, m := range matches {
		if m.Iter == nil {
			spans = append(spans, Span{Field: m.Term.Field, Term: m.Term.Text(), Position: -1, StartOffset: -1, EndOffset: -1})
			continue
		}
		for m.Iter.Next() {
			spans = append(spans, Span{
				Field:       m.Term.Field,
				Term:        m.Term.Text(),
				Position:    m.Iter.StartPosition(),
				StartOffset: m.Iter.StartOffset(),
				EndOffset:   m.Iter.EndOffset(),
			})
		}
	}
	return spans, nil
}

// ExternalID maps a global doc id back to the id it was indexed under.
func (s *Searcher) ExternalID(doc int) (string, error) {
	leaf, local, err := s.leafFor(doc)
	if err != nil {
		return "", err
	}
	return leaf.Reader.ExternalID(local), nil
}
