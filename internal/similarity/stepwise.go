package similarity

import (
	"fmt"
	"math"

	apperrors "github.com/Adithya-Monish-Kumar-K/multistep-search/pkg/errors"
)

// Stepwise quantizes the probabilistic idf into integer steps of width
// ln(base), so terms of similar rarity score identically. Documents longer
// than average divide their term frequency by a rounded length ratio.
type Stepwise struct {
	base    float64
	logBase float32
}

// DefaultStepwise returns a Stepwise model with base e.
func DefaultStepwise() *Stepwise {
	return &Stepwise{base: math.E, logBase: float32(math.Log(math.E))}
}

// NewStepwise returns a Stepwise model with the given logarithm base.
func NewStepwise(base float64) (*Stepwise, error) {
	if math.IsNaN(base) || math.IsInf(base, 0) || base <= 1 {
		return nil, apperrors.Configf(apperrors.ErrInvalidParameter,
			"illegal base value: %v, must be a finite number greater than 1", base)
	}
	return &Stepwise{base: base, logBase: float32(math.Log(base))}, nil
}

func (s *Stepwise) Base() float64 { return s.base }

func (s *Stepwise) Descriptor() Descriptor {
	return Descriptor{Kind: KindStepwise, Base: s.base}
}

func (s *Stepwise) String() string {
	return fmt.Sprintf("Stepwise(base=%v)", s.base)
}

// IDF returns the number of ln(base) steps needed to cover the classical
// idf of a term occurring in docFreq of docCount documents.
func (s *Stepwise) IDF(docFreq, docCount int64) float32 {
	classic := float32(probabilisticIDF(docFreq, docCount))
	return float32(math.Ceil(float64(classic / s.logBase)))
}

func (s *Stepwise) idfExplain(collection CollectionStatistics, terms []TermStatistics) *Explanation {
	n := docCount(collection)
	if len(terms) == 1 {
		return s.termIDFExplain(terms[0].DocFreq, n)
	}
	var total float32
	details := make([]*Explanation, 0, len(terms))
	for _, ts := range terms {
		e := s.termIDFExplain(ts.DocFreq, n)
		details = append(details, e)
		total += e.Value
	}
	return Match(total, "idf, sum of:", details...)
}

func (s *Stepwise) termIDFExplain(docFreq, docCount int64) *Explanation {
	return Match(s.IDF(docFreq, docCount),
		"idf, computed as ceil(log(1 + (N - n + 0.5) / (n + 0.5)) / log(base)) from:",
		Match(float32(docFreq), "n, number of documents containing term"),
		Match(float32(docCount), "N, total number of documents with field"),
		Match(float32(s.base), "base number for log"),
	)
}

func (s *Stepwise) Scorer(boost float32, collection CollectionStatistics, terms ...TermStatistics) SimScorer {
	idf := s.idfExplain(collection, terms)
	return &stepwiseScorer{
		boost:  boost,
		idf:    idf,
		avgdl:  avgFieldLength(collection),
		weight: boost * idf.Value,
	}
}

type stepwiseScorer struct {
	boost  float32
	idf    *Explanation
	avgdl  float32
	weight float32
}

func (s *stepwiseScorer) tf(freq float32, norm byte) float32 {
	dl := DecodeNorm(norm)
	if dl < s.avgdl {
		return float32(math.Trunc(float64(freq)))
	}
	ratio := roundHalfUp(dl / s.avgdl)
	return roundHalfUp(freq / ratio)
}

func (s *stepwiseScorer) Score(freq float32, norm byte) float32 {
	return s.weight * s.tf(freq, norm)
}

func (s *stepwiseScorer) Explain(freq *Explanation, norm byte) *Explanation {
	f := freqValue(freq)
	tf := Match(s.tf(f, norm),
		"tf, computed as freq if dl < avgdl, otherwise round(freq / round(dl / avgdl)) from:",
		Match(f, "freq, occurrences of term within document"),
		dlExplanation(norm),
		Match(s.avgdl, "avgdl, average length of field"),
	)
	details := make([]*Explanation, 0, 3)
	if s.boost != 1 {
		details = append(details, boostExplanation(s.boost))
	}
	details = append(details, s.idf, tf)
	return Match(s.Score(f, norm),
		fmt.Sprintf("score(freq=%v), computed as boost * idf * tf from:", f),
		details...)
}
