package search

import (
	"context"
	"errors"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/multistep-search/internal/similarity"
	apperrors "github.com/Adithya-Monish-Kumar-K/multistep-search/pkg/errors"
)

type recordingObserver struct {
	rebinds [][2]similarity.Kind
}

func (o *recordingObserver) SimilarityRebound(from, to similarity.Kind) {
	o.rebinds = append(o.rebinds, [2]similarity.Kind{from, to})
}

// lengthLeaf holds ten documents with an average body length of 10. The
// term "fox" occurs in three of them.
func lengthLeaf() *fakeLeaf {
	l := newFakeLeaf("leaf-0")
	l.add("short", map[string]string{"body": "fox " + filler(4)})
	l.add("medium", map[string]string{"body": "fox fox fox " + filler(5)})
	l.add("long", map[string]string{"body": "fox fox fox fox " + filler(16)})
	for i := 0; i < 6; i++ {
		l.add("filler", map[string]string{"body": filler(10)})
	}
	l.add("last", map[string]string{"body": "dog " + filler(6)})
	return l
}

func mustStepwise(t *testing.T, base float64) *similarity.Stepwise {
	t.Helper()
	m, err := similarity.NewStepwise(base)
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func TestStepwiseTermQueryEndToEnd(t *testing.T) {
	s := NewSearcher([]LeafReader{lengthLeaf()})
	q := NewTermQueryWithModel(NewTerm("body", "fox"), mustStepwise(t, 2))

	top, err := s.Search(context.Background(), q, 10)
	if err != nil {
		t.Fatal(err)
	}
	if top.TotalHits != 3 {
		t.Fatalf("total hits = %d, want 3", top.TotalHits)
	}
	// idf = ceil(ln(1 + 7.5/3.5) / ln 2) = 2 for every hit.
	want := []ScoreDoc{
		{Doc: 1, Score: 6}, // dl 8 < avgdl, tf = 3
		{Doc: 2, Score: 4}, // dl 20, tf = round(4 / 2)
		{Doc: 0, Score: 2}, // dl 5 < avgdl, tf = 1
	}
	if len(top.ScoreDocs) != len(want) {
		t.Fatalf("hits = %v", top.ScoreDocs)
	}
	for i, sd := range top.ScoreDocs {
		if sd != want[i] {
			t.Errorf("hit %d = %+v, want %+v", i, sd, want[i])
		}
	}

	for _, sd := range top.ScoreDocs {
		e, err := s.Explain(q, sd.Doc)
		if err != nil {
			t.Fatal(err)
		}
		if !e.IsMatch || e.Value != sd.Score {
			t.Errorf("explain for doc %d = %v, want score %v", sd.Doc, e.Summary(), sd.Score)
		}
		if idf := e.Details[0].Details[0]; idf.Value != 2 {
			t.Errorf("doc %d idf = %v, want 2", sd.Doc, idf.Value)
		}
	}
}

func TestTermQueryRebindsOnlyWhenModelDiffers(t *testing.T) {
	obs := &recordingObserver{}
	s := NewSearcher([]LeafReader{lengthLeaf()}, WithSearchObserver(obs))
	term := NewTerm("body", "fox")
	ctx := context.Background()

	if _, err := s.Search(ctx, NewTermQuery(term), 5); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Search(ctx, NewTermQueryWithModel(term, similarity.DefaultBM25()), 5); err != nil {
		t.Fatal(err)
	}
	if len(obs.rebinds) != 0 {
		t.Fatalf("same model should not rebind, got %v", obs.rebinds)
	}

	if _, err := s.Search(ctx, NewTermQueryWithModel(term, mustStepwise(t, 2)), 5); err != nil {
		t.Fatal(err)
	}
	if len(obs.rebinds) != 1 || obs.rebinds[0] != [2]similarity.Kind{similarity.KindBM25, similarity.KindStepwise} {
		t.Fatalf("rebinds = %v", obs.rebinds)
	}
	if s.Similarity().Descriptor().Kind != similarity.KindBM25 {
		t.Error("rebinding must not change the searcher's own model")
	}

	tuned, err := similarity.NewBM25(2, 0.5)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Search(ctx, NewTermQueryWithModel(term, tuned), 5); err != nil {
		t.Fatal(err)
	}
	if len(obs.rebinds) != 2 {
		t.Errorf("different parameters should rebind, got %v", obs.rebinds)
	}
}

func TestTermQueryEqualityIgnoresModel(t *testing.T) {
	a := NewTermQuery(NewTerm("body", "fox"))
	b := NewTermQueryWithModel(NewTerm("body", "fox"), mustStepwise(t, 3))
	if !a.Equal(b) || !b.Equal(a) {
		t.Error("term queries on the same term should be equal")
	}
	if a.Hash() != b.Hash() {
		t.Error("term queries on the same term should hash alike")
	}
	c := NewTermQuery(NewTerm("title", "fox"))
	if a.Equal(c) || a.Hash() == c.Hash() {
		t.Error("term queries on different fields should differ")
	}
	if a.Equal(NewBoostQuery(a, 1)) {
		t.Error("a term query is not equal to a boost query")
	}
}

func TestCanonicalNamesClauseModels(t *testing.T) {
	term := NewTerm("body", "fox")
	base2 := NewTermQueryWithModel(term, mustStepwise(t, 2))
	base15 := NewTermQueryWithModel(term, mustStepwise(t, 1.5))
	if !base2.Equal(base15) {
		t.Fatal("clauses differing in model should stay equal")
	}
	if Canonical(base2) == Canonical(base15) {
		t.Errorf("canonical forms collide: %s", Canonical(base2))
	}
	if Canonical(base2) != Canonical(NewTermQueryWithModel(term, mustStepwise(t, 2))) {
		t.Error("same model should render the same")
	}

	nested := func(m similarity.Model) Query {
		return NewBooleanQuery(
			BooleanClause{Query: NewTermQuery(NewTerm("body", "dog")), Occur: Must},
			BooleanClause{Query: NewBoostQuery(NewTermQueryWithModel(term, m), 0), Occur: Should},
		)
	}
	if Canonical(nested(similarity.NewRawFreq())) == Canonical(nested(similarity.DefaultBM25())) {
		t.Error("nested clause models should reach the canonical form")
	}
}

func TestScoringModels(t *testing.T) {
	ambient := similarity.DefaultBM25()
	stepwise := mustStepwise(t, 2)
	q := NewBooleanQuery(
		BooleanClause{Query: NewTermQueryWithModel(NewTerm("body", "fox"), stepwise), Occur: Should},
		BooleanClause{Query: NewBoostQuery(NewTermQueryWithModel(NewTerm("body", "vixen"), mustStepwise(t, 2)), 0), Occur: Should},
		BooleanClause{Query: NewTermQuery(NewTerm("body", "cat")), Occur: MustNot},
	)
	got := ScoringModels(q, ambient)
	if len(got) != 1 || got[0].Descriptor() != stepwise.Descriptor() {
		t.Errorf("models = %v, want only %s", got, stepwise)
	}

	got = ScoringModels(NewTermQuery(NewTerm("body", "fox")), ambient)
	if len(got) != 1 || got[0] != ambient {
		t.Errorf("models = %v, want the ambient model", got)
	}
	if got := ScoringModels(NewMatchAllDocsQuery(), ambient); len(got) != 0 {
		t.Errorf("match all models = %v", got)
	}
}

func TestTermWeightIsCacheable(t *testing.T) {
	s := NewSearcher([]LeafReader{lengthLeaf()})
	for _, mode := range []ScoreMode{ScoreModeComplete, ScoreModeCompleteNoScores} {
		w, err := NewTermQueryWithModel(NewTerm("body", "fox"), similarity.NewClassic()).CreateWeight(s, mode, 1)
		if err != nil {
			t.Fatal(err)
		}
		if !w.IsCacheable(s.Leaves()[0]) {
			t.Errorf("term weight in mode %d is not cacheable", mode)
		}
	}
}

func TestMissingTermMatchesNothing(t *testing.T) {
	s := NewSearcher([]LeafReader{lengthLeaf()})
	q := NewTermQueryWithModel(NewTerm("body", "unicorn"), mustStepwise(t, 2))
	top, err := s.Search(context.Background(), q, 10)
	if err != nil {
		t.Fatal(err)
	}
	if top.TotalHits != 0 || len(top.ScoreDocs) != 0 {
		t.Errorf("hits = %+v", top)
	}
	e, err := s.Explain(q, 0)
	if err != nil {
		t.Fatal(err)
	}
	if e.IsMatch {
		t.Errorf("explain = %v", e.Summary())
	}
}

func TestZeroBoostClauseMatchesWithoutScore(t *testing.T) {
	s := NewSearcher([]LeafReader{lengthLeaf()})
	q := NewBooleanQuery(
		BooleanClause{Query: NewTermQuery(NewTerm("body", "fox")), Occur: Should},
		BooleanClause{Query: NewBoostQuery(NewTermQuery(NewTerm("body", "dog")), 0), Occur: Should},
	)
	top, err := s.Search(context.Background(), q, 10)
	if err != nil {
		t.Fatal(err)
	}
	if top.TotalHits != 4 {
		t.Fatalf("total hits = %d, want 4", top.TotalHits)
	}
	last := top.ScoreDocs[len(top.ScoreDocs)-1]
	if last.Doc != 9 || last.Score != 0 {
		t.Errorf("zero boost hit = %+v", last)
	}
	for _, sd := range top.ScoreDocs[:3] {
		if sd.Score <= 0 {
			t.Errorf("fox hit %+v should score", sd)
		}
	}
}

func TestBooleanOccurs(t *testing.T) {
	l := newFakeLeaf("bool")
	l.add("a", map[string]string{"body": "red fox"})
	l.add("b", map[string]string{"body": "red dog"})
	l.add("c", map[string]string{"body": "blue fox"})
	l.add("d", map[string]string{"body": "red fox dog"})
	s := NewSearcher([]LeafReader{l})
	term := func(text string) Query { return NewTermQuery(NewTerm("body", text)) }
	ctx := context.Background()

	cases := []struct {
		name string
		q    Query
		want []string
	}{
		{"must", NewBooleanQuery(BooleanClause{term("red"), Must}, BooleanClause{term("fox"), Must}), []string{"a", "d"}},
		{"must not", NewBooleanQuery(BooleanClause{term("red"), Must}, BooleanClause{term("dog"), MustNot}), []string{"a"}},
		{"should", NewBooleanQuery(BooleanClause{term("blue"), Should}, BooleanClause{term("dog"), Should}), []string{"b", "c", "d"}},
		{"only must not", NewBooleanQuery(BooleanClause{term("red"), MustNot}), nil},
		{"missing must", NewBooleanQuery(BooleanClause{term("red"), Should}, BooleanClause{term("cat"), Must}), nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			top, err := s.Search(ctx, tc.q, 10)
			if err != nil {
				t.Fatal(err)
			}
			got := map[string]bool{}
			for _, sd := range top.ScoreDocs {
				id, err := s.ExternalID(sd.Doc)
				if err != nil {
					t.Fatal(err)
				}
				got[id] = true
			}
			if len(got) != len(tc.want) {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
			for _, id := range tc.want {
				if !got[id] {
					t.Errorf("missing %s in %v", id, got)
				}
			}
		})
	}
}

func TestBooleanScoreIsSumOfClauses(t *testing.T) {
	s := NewSearcher([]LeafReader{lengthLeaf()})
	fox := NewTermQuery(NewTerm("body", "fox"))
	dog := NewTermQuery(NewTerm("body", "dog"))
	q := NewBooleanQuery(BooleanClause{fox, Should}, BooleanClause{dog, Should})
	e, err := s.Explain(q, 1)
	if err != nil {
		t.Fatal(err)
	}
	single, err := s.Explain(fox, 1)
	if err != nil {
		t.Fatal(err)
	}
	if e.Value != single.Value || len(e.Details) != 1 {
		t.Errorf("boolean explain = %v, term explain = %v", e, single)
	}
}

func TestMultipleLeavesShareStatistics(t *testing.T) {
	a := newFakeLeaf("a")
	a.add("a0", map[string]string{"body": "fox"})
	a.add("a1", map[string]string{"body": "dog"})
	b := newFakeLeaf("b")
	b.add("b0", map[string]string{"body": "fox fox"})
	s := NewSearcher([]LeafReader{a, b})

	ts := s.TermStatistics(NewTerm("body", "fox"))
	if ts == nil || ts.DocFreq != 2 || ts.TotalTermFreq != 3 {
		t.Fatalf("term stats = %+v", ts)
	}
	cs := s.CollectionStatistics("body")
	if cs.MaxDoc != 3 || cs.DocCount != 3 || cs.SumTotalTermFreq != 4 {
		t.Errorf("collection stats = %+v", cs)
	}
	if s.TermStatistics(NewTerm("body", "cat")) != nil {
		t.Error("absent term should have no statistics")
	}

	top, err := s.Search(context.Background(), NewTermQuery(NewTerm("body", "fox")), 10)
	if err != nil {
		t.Fatal(err)
	}
	if top.TotalHits != 2 || top.ScoreDocs[0].Doc != 2 {
		t.Fatalf("hits = %+v", top)
	}
	if id, _ := s.ExternalID(top.ScoreDocs[0].Doc); id != "b0" {
		t.Errorf("external id = %s", id)
	}
	if _, err := s.ExternalID(3); !errors.Is(err, apperrors.ErrDocumentNotFound) {
		t.Errorf("out of range error = %v", err)
	}
}

func TestCountUsesQueryCache(t *testing.T) {
	cache := NewQueryCache(8)
	s := NewSearcher([]LeafReader{lengthLeaf()}, WithQueryCache(cache))
	ctx := context.Background()
	term := NewTerm("body", "fox")

	n, err := s.Count(ctx, NewTermQuery(term))
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Fatalf("count = %d, want 3", n)
	}
	// Same term under another model is the same cache entry.
	n, err = s.Count(ctx, NewTermQueryWithModel(term, mustStepwise(t, 2)))
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Fatalf("cached count = %d, want 3", n)
	}
	hits, misses := cache.Stats()
	if hits != 1 || misses != 1 || cache.Len() != 1 {
		t.Errorf("hits=%d misses=%d len=%d", hits, misses, cache.Len())
	}
	cache.Clear()
	if cache.Len() != 0 {
		t.Error("cache not cleared")
	}
}

func TestQueryCacheEvictsLeastRecentlyUsed(t *testing.T) {
	cache := NewQueryCache(2)
	s := NewSearcher([]LeafReader{lengthLeaf()}, WithQueryCache(cache))
	ctx := context.Background()
	for _, text := range []string{"fox", "dog", "fox", "cat"} {
		if _, err := s.Count(ctx, NewTermQuery(NewTerm("body", text))); err != nil {
			t.Fatal(err)
		}
	}
	if _, ok := cache.Get("leaf-0", NewTermQuery(NewTerm("body", "dog"))); ok {
		t.Error("dog should have been evicted")
	}
	if _, ok := cache.Get("leaf-0", NewTermQuery(NewTerm("body", "fox"))); !ok {
		t.Error("fox should still be cached")
	}
}

func TestMatchesReportsPositions(t *testing.T) {
	l := newFakeLeaf("spans").withOptions("tag", similarity.IndexDocs)
	l.add("a", map[string]string{"body": "fox and fox", "tag": "fox"})
	l.add("b", map[string]string{"body": "dog", "tag": "fox"})
	s := NewSearcher([]LeafReader{l})

	spans, err := s.Matches(NewTermQuery(NewTerm("body", "fox")), 0)
	if err != nil {
		t.Fatal(err)
	}
	want := []Span{
		{Field: "body", Term: "fox", Position: 0, StartOffset: 0, EndOffset: 3},
		{Field: "body", Term: "fox", Position: 2, StartOffset: 8, EndOffset: 11},
	}
	if len(spans) != len(want) {
		t.Fatalf("spans = %+v", spans)
	}
	for i := range want {
		if spans[i] != want[i] {
			t.Errorf("span %d = %+v, want %+v", i, spans[i], want[i])
		}
	}

	spans, err = s.Matches(NewTermQuery(NewTerm("body", "fox")), 1)
	if err != nil || len(spans) != 0 {
		t.Errorf("non matching doc spans = %v, %v", spans, err)
	}

	spans, err = s.Matches(NewTermQuery(NewTerm("tag", "fox")), 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(spans) != 1 || spans[0] != (Span{Field: "tag", Term: "fox", Position: -1, StartOffset: -1, EndOffset: -1}) {
		t.Errorf("docs-only spans = %+v", spans)
	}
}

func TestMatchSpanIteratorStopsAtFreq(t *testing.T) {
	l := newFakeLeaf("it")
	l.add("a", map[string]string{"body": "x y x y x"})
	p, err := l.Postings(NewTerm("body", "x"), true)
	if err != nil {
		t.Fatal(err)
	}
	p.NextDoc()
	it := NewMatchSpanIterator(p)
	var positions []int
	for it.Next() {
		if it.StartPosition() != it.EndPosition() {
			t.Errorf("span %d-%d is not a single position", it.StartPosition(), it.EndPosition())
		}
		positions = append(positions, it.StartPosition())
	}
	if len(positions) != 3 || positions[0] != 0 || positions[1] != 2 || positions[2] != 4 {
		t.Errorf("positions = %v", positions)
	}
	if it.Next() {
		t.Error("exhausted iterator advanced")
	}
}

func TestMatchAllAndNoDocs(t *testing.T) {
	s := NewSearcher([]LeafReader{lengthLeaf()})
	ctx := context.Background()
	top, err := s.Search(ctx, NewBoostQuery(NewMatchAllDocsQuery(), 2), 3)
	if err != nil {
		t.Fatal(err)
	}
	if top.TotalHits != 10 || len(top.ScoreDocs) != 3 || top.ScoreDocs[0] != (ScoreDoc{Doc: 0, Score: 2}) {
		t.Errorf("match all = %+v", top)
	}

	none := NewMatchNoDocsQuery("nothing to see")
	n, err := s.Count(ctx, none)
	if err != nil || n != 0 {
		t.Errorf("match none count = %d, %v", n, err)
	}
	e, err := s.Explain(none, 0)
	if err != nil {
		t.Fatal(err)
	}
	if e.IsMatch || e.Description != "nothing to see" {
		t.Errorf("explain = %v", e.Summary())
	}
}

func TestSearchHonoursCancellation(t *testing.T) {
	l := newFakeLeaf("big")
	for i := 0; i < 3*checkEvery; i++ {
		l.add("doc", map[string]string{"body": "fox"})
	}
	s := NewSearcher([]LeafReader{l})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Search(ctx, NewTermQuery(NewTerm("body", "fox")), 10); !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestMergeTopDocsOrdering(t *testing.T) {
	merged := MergeTopDocs(3,
		TopDocs{TotalHits: 2, ScoreDocs: []ScoreDoc{{Doc: 4, Score: 1}, {Doc: 1, Score: 0.5}}},
		TopDocs{TotalHits: 3, ScoreDocs: []ScoreDoc{{Doc: 2, Score: 1}, {Doc: 9, Score: 3}, {Doc: 0, Score: 0.1}}},
	)
	want := []ScoreDoc{{Doc: 9, Score: 3}, {Doc: 2, Score: 1}, {Doc: 4, Score: 1}}
	if merged.TotalHits != 5 || len(merged.ScoreDocs) != 3 {
		t.Fatalf("merged = %+v", merged)
	}
	for i := range want {
		if merged.ScoreDocs[i] != want[i] {
			t.Errorf("hit %d = %+v, want %+v", i, merged.ScoreDocs[i], want[i])
		}
	}
}

func TestQueryStrings(t *testing.T) {
	q := NewBooleanQuery(
		BooleanClause{NewTermQuery(NewTerm("body", "fox")), Must},
		BooleanClause{NewBoostQuery(NewTermQuery(NewTerm("body", "vixen")), 0), Should},
		BooleanClause{NewTermQuery(NewTerm("body", "dog")), MustNot},
	)
	if got, want := q.String(), "+body:fox (body:vixen)^0 -body:dog"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
	if NewMatchAllDocsQuery().String() != "*:*" {
		t.Error("match all string")
	}
}
