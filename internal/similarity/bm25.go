package similarity

import (
	"fmt"
	"math"

	apperrors "github.com/Adithya-Monish-Kumar-K/multistep-search/pkg/errors"
)

const (
	DefaultK1 float32 = 1.2
	DefaultB  float32 = 0.75
)

func validateBM25(k1, b float32) error {
	if math.IsNaN(float64(k1)) || math.IsInf(float64(k1), 0) || k1 < 0 {
		return apperrors.Configf(apperrors.ErrInvalidParameter,
			"illegal k1 value: %v, must be a non-negative finite value", k1)
	}
	if math.IsNaN(float64(b)) || b < 0 || b > 1 {
		return apperrors.Configf(apperrors.ErrInvalidParameter,
			"illegal b value: %v, must be between 0 and 1", b)
	}
	return nil
}

// BM25 is the classical probabilistic model and the searcher's default.
type BM25 struct {
	k1 float32
	b  float32
}

func DefaultBM25() *BM25 {
	return &BM25{k1: DefaultK1, b: DefaultB}
}

func NewBM25(k1, b float32) (*BM25, error) {
	if err := validateBM25(k1, b); err != nil {
		return nil, err
	}
	return &BM25{k1: k1, b: b}, nil
}

func (m *BM25) Descriptor() Descriptor {
	return Descriptor{Kind: KindBM25, K1: m.k1, B: m.b, TermFrequency: true}
}

func (m *BM25) String() string {
	return fmt.Sprintf("BM25(k1=%v,b=%v)", m.k1, m.b)
}

func (m *BM25) Scorer(boost float32, collection CollectionStatistics, terms ...TermStatistics) SimScorer {
	return newBM25Scorer(m.k1, m.b, true, boost, collection, terms)
}

// TunableBM25 is a BM25-shaped model whose k1 and b are set per query
// rather than per field. By default its score is boost * idf: the saturated
// term frequency is computed and explained but only applied to the score
// when the model is built WithTermFrequency.
type TunableBM25 struct {
	k1      float32
	b       float32
	applyTF bool
}

type TunableOption func(*TunableBM25)

// WithTermFrequency multiplies the score by the saturated term frequency.
func WithTermFrequency() TunableOption {
	return func(m *TunableBM25) { m.applyTF = true }
}

func DefaultTunableBM25() *TunableBM25 {
	return &TunableBM25{k1: DefaultK1, b: DefaultB}
}

func NewTunableBM25(k1, b float32, opts ...TunableOption) (*TunableBM25, error) {
	if err := validateBM25(k1, b); err != nil {
		return nil, err
	}
	m := &TunableBM25{k1: k1, b: b}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

func (m *TunableBM25) K1() float32 { return m.k1 }
func (m *TunableBM25) B() float32  { return m.b }

func (m *TunableBM25) Descriptor() Descriptor {
	return Descriptor{Kind: KindTunableBM25, K1: m.k1, B: m.b, TermFrequency: m.applyTF}
}

func (m *TunableBM25) String() string {
	return fmt.Sprintf("TunableBM25(k1=%v,b=%v)", m.k1, m.b)
}

func (m *TunableBM25) Scorer(boost float32, collection CollectionStatistics, terms ...TermStatistics) SimScorer {
	return newBM25Scorer(m.k1, m.b, m.applyTF, boost, collection, terms)
}

type bm25Scorer struct {
	boost   float32
	k1      float32
	b       float32
	avgdl   float32
	idf     *Explanation
	weight  float32
	applyTF bool
	cache   [256]float32
}

func newBM25Scorer(k1, b float32, applyTF bool, boost float32, collection CollectionStatistics, terms []TermStatistics) *bm25Scorer {
	s := &bm25Scorer{
		boost:   boost,
		k1:      k1,
		b:       b,
		avgdl:   avgFieldLength(collection),
		idf:     bm25IDFExplain(collection, terms),
		applyTF: applyTF,
	}
	s.weight = boost * s.idf.Value
	for i := range s.cache {
		s.cache[i] = k1 * ((1 - b) + b*lengthTable[i]/s.avgdl)
	}
	return s
}

func bm25IDFExplain(collection CollectionStatistics, terms []TermStatistics) *Explanation {
	n := docCount(collection)
	termIDF := func(ts TermStatistics) *Explanation {
		return Match(float32(probabilisticIDF(ts.DocFreq, n)),
			"idf, computed as log(1 + (N - n + 0.5) / (n + 0.5)) from:",
			Match(float32(ts.DocFreq), "n, number of documents containing term"),
			Match(float32(n), "N, total number of documents with field"),
		)
	}
	if len(terms) == 1 {
		return termIDF(terms[0])
	}
	var total float32
	details := make([]*Explanation, 0, len(terms))
	for _, ts := range terms {
		e := termIDF(ts)
		details = append(details, e)
		total += e.Value
	}
	return Match(total, "idf, sum of:", details...)
}

func (s *bm25Scorer) tf(freq float32, norm byte) float32 {
	return freq / (freq + s.cache[norm])
}

func (s *bm25Scorer) Score(freq float32, norm byte) float32 {
	if !s.applyTF {
		return s.weight
	}
	return s.weight * s.tf(freq, norm)
}

func (s *bm25Scorer) Explain(freq *Explanation, norm byte) *Explanation {
	f := freqValue(freq)
	tfDesc := "tf, computed as freq / (freq + k1 * (1 - b + b * dl / avgdl)) from:"
	scoreDesc := fmt.Sprintf("score(freq=%v), computed as boost * idf * tf from:", f)
	if !s.applyTF {
		tfDesc = "tf, computed as freq / (freq + k1 * (1 - b + b * dl / avgdl)), not applied to score, from:"
		scoreDesc = fmt.Sprintf("score(freq=%v), computed as boost * idf, ignoring tf, from:", f)
	}
	tf := Match(s.tf(f, norm), tfDesc,
		Match(f, "freq, occurrences of term within document"),
		Match(s.k1, "k1, term saturation parameter"),
		Match(s.b, "b, length normalization parameter"),
		dlExplanation(norm),
		Match(s.avgdl, "avgdl, average length of field"),
	)
	details := make([]*Explanation, 0, 4)
	if s.boost != 1 {
		details = append(details, boostExplanation(s.boost))
	}
	details = append(details, s.idf, tf)
	if !s.applyTF {
		details = append(details, Match(s.weight*tf.Value, "boost * idf * tf, the score with tf applied, not used"))
	}
	return Match(s.Score(f, norm), scoreDesc, details...)
}
