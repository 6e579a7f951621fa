package index

import (
	"context"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/multistep-search/internal/analysis"
	"github.com/Adithya-Monish-Kumar-K/multistep-search/internal/search"
	"github.com/Adithya-Monish-Kumar-K/multistep-search/internal/similarity"
)

func analyze(t *testing.T, a analysis.Analyzer, field, text string, opts similarity.IndexOptions) AnalyzedField {
	t.Helper()
	tokens, err := analysis.Drain(a.TokenStream(field, text))
	if err != nil {
		t.Fatal(err)
	}
	return AnalyzedField{Name: field, Options: opts, Tokens: tokens}
}

func TestMemoryIndexPostingsAndNorms(t *testing.T) {
	std := analysis.NewStandard()
	m := NewMemoryIndex("shard-0", true)
	m.AddDocument("a", []AnalyzedField{
		analyze(t, std, "body", "the quick fox saw the fox", similarity.IndexDocsAndFreqsAndPositionsAndOffsets),
	})
	m.AddDocument("b", []AnalyzedField{
		analyze(t, std, "title", "Fox", similarity.IndexDocs),
	})

	r := m.Reader()
	if r.MaxDoc() != 2 || r.ExternalID(1) != "b" {
		t.Fatalf("reader docs = %v", r.DocIDs())
	}

	df, ttf := r.TermStats(search.NewTerm("body", "fox"))
	if df != 1 || ttf != 2 {
		t.Errorf("body:fox stats = %d, %d", df, ttf)
	}
	if r.Norm("body", 0) != similarity.EncodeNorm(6) || r.Norm("body", 1) != 0 {
		t.Errorf("body norms = %d, %d", r.Norm("body", 0), r.Norm("body", 1))
	}

	info, ok := r.FieldInfo("body")
	if !ok || info.DocCount != 1 || info.SumTotalTermFreq != 6 || info.SumDocFreq != 4 {
		t.Errorf("body info = %+v", info)
	}

	p, err := r.Postings(search.NewTerm("body", "fox"), true)
	if err != nil || p == nil {
		t.Fatalf("postings = %v, %v", p, err)
	}
	if p.NextDoc() != 0 || p.Freq() != 2 {
		t.Fatalf("doc %d freq %d", p.DocID(), p.Freq())
	}
	if pos := p.NextPosition(); pos != 2 || p.StartOffset() != 10 || p.EndOffset() != 13 {
		t.Errorf("first fox at %d [%d,%d)", pos, p.StartOffset(), p.EndOffset())
	}
	if pos := p.NextPosition(); pos != 5 {
		t.Errorf("second fox at %d", pos)
	}
	if p.NextDoc() != search.NoMoreDocs {
		t.Error("expected exhausted postings")
	}

	title, err := r.Postings(search.NewTerm("title", "fox"), true)
	if err != nil {
		t.Fatal(err)
	}
	title.NextDoc()
	if title.NextPosition() != -1 || title.StartOffset() != -1 {
		t.Error("docs-only field should not report positions")
	}
	if r.Norm("title", 1) != similarity.EncodeNorm(1) {
		t.Errorf("title norm = %d", r.Norm("title", 1))
	}

	if p, _ := r.Postings(search.NewTerm("body", "cat"), false); p != nil {
		t.Error("absent term should have nil postings")
	}
}

func TestMemoryIndexDiscountsSynonymOverlaps(t *testing.T) {
	syn, err := analysis.ParseSynonyms([]string{"quick, fast"})
	if err != nil {
		t.Fatal(err)
	}
	a := analysis.New("syn", analysis.StandardTokenizer, syn)
	opts := similarity.IndexDocsAndFreqsAndPositions

	discounted := NewMemoryIndex("d", true)
	discounted.AddDocument("x", []AnalyzedField{analyze(t, a, "body", "quick dog", opts)})
	counted := NewMemoryIndex("c", false)
	counted.AddDocument("x", []AnalyzedField{analyze(t, a, "body", "quick dog", opts)})

	if got := discounted.Reader().Norm("body", 0); got != similarity.EncodeNorm(2) {
		t.Errorf("discounted norm = %d", got)
	}
	if got := counted.Reader().Norm("body", 0); got != similarity.EncodeNorm(3) {
		t.Errorf("counted norm = %d", got)
	}

	p, _ := discounted.Reader().Postings(search.NewTerm("body", "fast"), true)
	p.NextDoc()
	if pos := p.NextPosition(); pos != 0 {
		t.Errorf("synonym position = %d, want 0", pos)
	}
}

func TestMemoryIndexSnapshotIsolation(t *testing.T) {
	std := analysis.NewStandard()
	opts := similarity.IndexDocsAndFreqs
	m := NewMemoryIndex("iso", true)
	m.AddDocument("a", []AnalyzedField{analyze(t, std, "body", "fox", opts)})
	before := m.Reader()
	if m.Reader() != before {
		t.Error("unchanged index should reuse its snapshot")
	}
	m.AddDocument("b", []AnalyzedField{analyze(t, std, "body", "fox fox", opts)})
	after := m.Reader()

	if before.ID() == after.ID() {
		t.Error("snapshots over different documents share an id")
	}
	if df, _ := before.TermStats(search.NewTerm("body", "fox")); df != 1 {
		t.Errorf("old snapshot sees df %d", df)
	}
	if df, _ := after.TermStats(search.NewTerm("body", "fox")); df != 2 {
		t.Errorf("new snapshot sees df %d", df)
	}

	frozen := m.Detach()
	if m.DocCount() != 0 || frozen.DocCount() != 2 {
		t.Fatalf("after detach: live %d, frozen %d", m.DocCount(), frozen.DocCount())
	}
	if frozen.Reader().ID() != after.ID() {
		t.Error("detached index should keep its snapshot id")
	}
	m.AddDocument("c", []AnalyzedField{analyze(t, std, "body", "fox", opts)})
	if id := m.Reader().ID(); id == before.ID() || id == after.ID() {
		t.Error("snapshot ids must change across detaches")
	}
	if before.MaxDoc() != 1 || after.MaxDoc() != 2 || frozen.Reader().MaxDoc() != 2 {
		t.Error("detach affected earlier snapshots")
	}
}

func TestSnapshotServesSearcher(t *testing.T) {
	std := analysis.NewStandard()
	opts := similarity.IndexDocsAndFreqsAndPositionsAndOffsets
	m := NewMemoryIndex("s", true)
	for id, text := range map[string]string{"1": "red fox", "2": "red red dog", "3": "blue bird"} {
		m.AddDocument(id, []AnalyzedField{analyze(t, std, "body", text, opts)})
	}
	s := search.NewSearcher([]search.LeafReader{m.Reader()})
	top, err := s.Search(context.Background(), search.NewTermQuery(search.NewTerm("body", "red")), 10)
	if err != nil {
		t.Fatal(err)
	}
	if top.TotalHits != 2 {
		t.Fatalf("hits = %+v", top)
	}
	id, err := s.ExternalID(top.ScoreDocs[0].Doc)
	if err != nil || id != "2" {
		t.Errorf("best hit = %s, %v", id, err)
	}
}
