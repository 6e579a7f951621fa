package analysis

import (
	"errors"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/multistep-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/multistep-search/pkg/errors"
)

func terms(tokens []Token) []string {
	out := make([]string, len(tokens))
	for i, tok := range tokens {
		out[i] = string(tok.Term)
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestStandardAnalyzer(t *testing.T) {
	tokens, err := Drain(NewStandard().TokenStream("body", "Hello, World! 42 ﬁsh"))
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"hello", "world", "42", "fish"}
	if !equalStrings(terms(tokens), want) {
		t.Fatalf("terms = %v, want %v", terms(tokens), want)
	}
	if tokens[0].StartOffset != 0 || tokens[0].EndOffset != 5 {
		t.Errorf("hello offsets = %d-%d", tokens[0].StartOffset, tokens[0].EndOffset)
	}
	if tokens[1].StartOffset != 7 || tokens[1].EndOffset != 12 {
		t.Errorf("world offsets = %d-%d", tokens[1].StartOffset, tokens[1].EndOffset)
	}
	if tokens[2].Type != TypeNum || tokens[0].Type != TypeAlphanum {
		t.Errorf("types = %s, %s", tokens[0].Type, tokens[2].Type)
	}
	for _, tok := range tokens {
		if tok.PositionIncrement != 1 {
			t.Errorf("%s has position increment %d", tok.Term, tok.PositionIncrement)
		}
	}
}

func TestEnglishAnalyzerCarriesStopWordGaps(t *testing.T) {
	tokens, err := Drain(NewEnglish().TokenStream("body", "the running of the dogs"))
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"runn", "dog"}
	if !equalStrings(terms(tokens), want) {
		t.Fatalf("terms = %v, want %v", terms(tokens), want)
	}
	if tokens[0].PositionIncrement != 2 || tokens[1].PositionIncrement != 3 {
		t.Errorf("position increments = %d, %d", tokens[0].PositionIncrement, tokens[1].PositionIncrement)
	}
}

func TestKeywordAnalyzer(t *testing.T) {
	tokens, err := Drain(NewKeyword().TokenStream("id", "New York"))
	if err != nil {
		t.Fatal(err)
	}
	if len(tokens) != 1 || string(tokens[0].Term) != "New York" {
		t.Fatalf("tokens = %v", tokens)
	}
	empty, err := Drain(NewKeyword().TokenStream("id", ""))
	if err != nil || len(empty) != 0 {
		t.Fatalf("empty value produced %v, %v", empty, err)
	}
}

func TestSynonymFilter(t *testing.T) {
	syn, err := ParseSynonyms([]string{"quick, fast", "tv => television", "# comment"})
	if err != nil {
		t.Fatal(err)
	}
	a := New("syn", StandardTokenizer, syn)
	tokens, err := Drain(a.TokenStream("body", "quick tv"))
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"quick", "fast", "tv", "television"}
	if !equalStrings(terms(tokens), want) {
		t.Fatalf("terms = %v, want %v", terms(tokens), want)
	}
	if tokens[1].Type != TypeSynonym || tokens[1].PositionIncrement != 0 {
		t.Errorf("synonym token = %v", tokens[1])
	}
	if tokens[1].StartOffset != tokens[0].StartOffset || tokens[1].EndOffset != tokens[0].EndOffset {
		t.Errorf("synonym offsets differ from original")
	}

	if _, err := ParseSynonyms([]string{"new york, nyc"}); err == nil {
		t.Error("multi-word synonyms should be rejected")
	}
}

func TestRegistry(t *testing.T) {
	r, err := NewRegistryFromConfig(config.AnalysisConfig{
		Analyzers: map[string]config.AnalyzerConfig{
			"english_synonyms": {Base: "english", Synonyms: []string{"car, auto"}},
			"limited":          {Base: "standard", MaxTokenCount: 2},
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := r.Get("missing"); !errors.Is(err, apperrors.ErrAnalyzerNotFound) {
		t.Errorf("Get(missing) error = %v", err)
	}

	a, err := r.Get("english_synonyms")
	if err != nil {
		t.Fatal(err)
	}
	tokens, err := Drain(a.TokenStream("body", "the car"))
	if err != nil {
		t.Fatal(err)
	}
	if !equalStrings(terms(tokens), []string{"car", "auto"}) {
		t.Errorf("terms = %v", terms(tokens))
	}
	if tokens[1].Type != TypeSynonym {
		t.Errorf("stemming should keep the synonym type, got %s", tokens[1].Type)
	}

	limited, err := r.Get("limited")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Drain(limited.TokenStream("body", "one two three")); err == nil {
		t.Error("expected token limit error")
	}
}

func TestRegistryRejectsUnknownBase(t *testing.T) {
	_, err := NewRegistryFromConfig(config.AnalysisConfig{
		Analyzers: map[string]config.AnalyzerConfig{"x": {Base: "klingon"}},
	})
	if !errors.Is(err, apperrors.ErrAnalyzerNotFound) {
		t.Errorf("error = %v, want ErrAnalyzerNotFound", err)
	}
}

func TestMapping(t *testing.T) {
	r, err := NewRegistryFromConfig(config.AnalysisConfig{
		Analyzers: map[string]config.AnalyzerConfig{"syn": {Base: "standard", Synonyms: []string{"tv, television"}}},
	})
	if err != nil {
		t.Fatal(err)
	}
	m, err := NewMapping(config.MappingConfig{
		DefaultField: "body",
		Fields: map[string]config.FieldConfig{
			"body": {Analyzer: "english", SearchAnalyzer: "syn"},
			"id":   {Analyzer: "keyword", IndexOptions: "docs"},
			"note": {},
		},
	}, r)
	if err != nil {
		t.Fatal(err)
	}
	if got := m.Fields(); !equalStrings(got, []string{"body", "id", "note"}) {
		t.Errorf("fields = %v", got)
	}
	if _, ok := m.FieldMapping("missing"); ok {
		t.Error("unmapped field reported as mapped")
	}

	body, _ := m.FieldMapping("body")
	search, err := m.SearchAnalyzer(body)
	if err != nil || search.Name() != "syn" {
		t.Errorf("search analyzer = %v, %v", search, err)
	}
	index, err := m.IndexAnalyzer(body)
	if err != nil || index.Name() != "english" {
		t.Errorf("index analyzer = %v, %v", index, err)
	}

	note, _ := m.FieldMapping("note")
	if note.Analyzer != "standard" || note.SearchAnalyzer != "standard" {
		t.Errorf("note defaults = %+v", note)
	}
	id, _ := m.FieldMapping("id")
	if id.IndexOptions.HasPositions() {
		t.Error("docs-only field should not have positions")
	}

	_, err = NewMapping(config.MappingConfig{
		Fields: map[string]config.FieldConfig{"body": {Analyzer: "nope"}},
	}, r)
	if !errors.Is(err, apperrors.ErrAnalyzerNotFound) {
		t.Errorf("unknown analyzer error = %v", err)
	}
}
