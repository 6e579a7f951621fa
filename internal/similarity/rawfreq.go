package similarity

import "fmt"

// RawFreq scores a document by its raw term frequency, ignoring rarity and
// field length.
type RawFreq struct{}

func NewRawFreq() *RawFreq { return &RawFreq{} }

func (*RawFreq) Descriptor() Descriptor { return Descriptor{Kind: KindRawFreq} }

func (*RawFreq) String() string { return "RawFreq" }

func (*RawFreq) Scorer(boost float32, _ CollectionStatistics, _ ...TermStatistics) SimScorer {
	return rawFreqScorer{boost: boost}
}

type rawFreqScorer struct {
	boost float32
}

func (s rawFreqScorer) Score(freq float32, _ byte) float32 {
	return s.boost * freq
}

func (s rawFreqScorer) Explain(freq *Explanation, norm byte) *Explanation {
	f := freqValue(freq)
	return Match(s.Score(f, norm), fmt.Sprintf("score(freq=%v), computed as boost * freq from:", f),
		boostExplanation(s.boost),
		Match(f, "freq, occurrences of term within document"),
	)
}
