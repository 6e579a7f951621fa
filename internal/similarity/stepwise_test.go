package similarity

import (
	"errors"
	"math"
	"strings"
	"testing"

	apperrors "github.com/Adithya-Monish-Kumar-K/multistep-search/pkg/errors"
)

func TestNewStepwiseValidatesBase(t *testing.T) {
	for _, base := range []float64{1, 0, -2, math.NaN(), math.Inf(1)} {
		if _, err := NewStepwise(base); !errors.Is(err, apperrors.ErrInvalidParameter) {
			t.Errorf("NewStepwise(%v) error = %v, want ErrInvalidParameter", base, err)
		}
	}
	m, err := NewStepwise(1.0001)
	if err != nil {
		t.Fatalf("NewStepwise(1.0001): %v", err)
	}
	if m.Base() != 1.0001 {
		t.Errorf("Base() = %v", m.Base())
	}
}

func TestStepwiseIDFGrowsWithRarity(t *testing.T) {
	for _, base := range []float64{1.0001, 1.5, 2, math.E, 10} {
		m, err := NewStepwise(base)
		if err != nil {
			t.Fatal(err)
		}
		prev := m.IDF(100, 100)
		for df := int64(99); df >= 1; df-- {
			cur := m.IDF(df, 100)
			if cur < prev {
				t.Fatalf("base %v: idf(%d)=%v < idf(%d)=%v", base, df, cur, df+1, prev)
			}
			prev = cur
		}
	}
}

func TestStepwiseBaseEStaysWithinOneStepOfClassicIDF(t *testing.T) {
	m := DefaultStepwise()
	for n := int64(1); n <= 50; n++ {
		for df := int64(1); df <= n; df++ {
			classic := float32(probabilisticIDF(df, n))
			diff := m.IDF(df, n) - classic
			if diff < 0 || diff >= 1 {
				t.Fatalf("idf(%d,%d) = %v, classic %v", df, n, m.IDF(df, n), classic)
			}
		}
	}
}

func TestStepwiseScore(t *testing.T) {
	m, err := NewStepwise(2)
	if err != nil {
		t.Fatal(err)
	}
	collection := CollectionStatistics{Field: "body", MaxDoc: 10, DocCount: 10, SumTotalTermFreq: 100}
	scorer := m.Scorer(1, collection, TermStatistics{Term: []byte("x"), DocFreq: 3})

	idf := float32(math.Ceil(float64(float32(math.Log(1+(10-3+0.5)/(3+0.5))) / float32(math.Log(2)))))
	if idf != 2 {
		t.Fatalf("expected two idf steps, got %v", idf)
	}

	tests := []struct {
		name string
		freq float32
		dl   int
		tf   float32
	}{
		{"shorter than average keeps freq", 3, 5, 3},
		{"average length divides by one", 3, 10, 3},
		{"twice average halves freq", 3, 20, 2},
		{"ratio rounds half up", 3, 25, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := scorer.Score(tt.freq, EncodeNorm(tt.dl))
			if got != idf*tt.tf {
				t.Errorf("Score(%v, dl=%d) = %v, want %v", tt.freq, tt.dl, got, idf*tt.tf)
			}
		})
	}
}

func TestStepwisePhraseIDFIsSummed(t *testing.T) {
	m := DefaultStepwise()
	collection := CollectionStatistics{DocCount: 100, SumTotalTermFreq: 1000}
	a := TermStatistics{Term: []byte("a"), DocFreq: 2}
	b := TermStatistics{Term: []byte("b"), DocFreq: 40}
	got := m.Scorer(1, collection, a, b).Score(1, EncodeNorm(1))
	want := m.IDF(2, 100) + m.IDF(40, 100)
	if got != want {
		t.Errorf("phrase score = %v, want %v", got, want)
	}
}

func TestStepwiseExplain(t *testing.T) {
	m := DefaultStepwise()
	collection := CollectionStatistics{DocCount: 10, SumTotalTermFreq: 100}
	ts := TermStatistics{Term: []byte("x"), DocFreq: 3}

	scorer := m.Scorer(1, collection, ts)
	norm := EncodeNorm(100)
	expl := scorer.Explain(Match(4, "freq"), norm)
	if expl.Value != scorer.Score(4, norm) {
		t.Errorf("explain value %v != score %v", expl.Value, scorer.Score(4, norm))
	}
	if len(expl.Details) != 2 {
		t.Errorf("unit boost should be omitted, got %d details", len(expl.Details))
	}
	out := expl.String()
	for _, want := range []string{"idf, computed as", "base number for log", "(approximate)", "avgdl"} {
		if !strings.Contains(out, want) {
			t.Errorf("explanation missing %q:\n%s", want, out)
		}
	}

	boosted := m.Scorer(2, collection, ts).Explain(Match(1, "freq"), EncodeNorm(3))
	if len(boosted.Details) != 3 || boosted.Details[0].Description != "boost" {
		t.Errorf("boost detail missing:\n%s", boosted)
	}
	if strings.Contains(boosted.String(), "approximate") {
		t.Errorf("short field length should be exact:\n%s", boosted)
	}
}
