package similarity

import (
	"fmt"
	"math"
)

var classicNormTable [256]float32

func init() {
	for i := 1; i < 256; i++ {
		classicNormTable[i] = float32(1 / math.Sqrt(float64(lengthTable[i])))
	}
	classicNormTable[0] = 1 / classicNormTable[255]
}

// Classic is the vector-space TF-IDF model: sqrt term frequency, a smoothed
// logarithmic idf and 1/sqrt(length) normalization.
type Classic struct{}

func NewClassic() *Classic { return &Classic{} }

func (*Classic) Descriptor() Descriptor { return Descriptor{Kind: KindClassic} }

func (*Classic) String() string { return "ClassicSimilarity" }

func classicIDF(docFreq, docCount int64) float32 {
	return float32(math.Log(float64(docCount+1)/float64(docFreq+1)) + 1)
}

func (c *Classic) Scorer(boost float32, collection CollectionStatistics, terms ...TermStatistics) SimScorer {
	n := docCount(collection)
	termIDF := func(ts TermStatistics) *Explanation {
		return Match(classicIDF(ts.DocFreq, n),
			fmt.Sprintf("idf(docFreq=%d, docCount=%d)", ts.DocFreq, n))
	}
	var idf *Explanation
	if len(terms) == 1 {
		idf = termIDF(terms[0])
	} else {
		var total float32
		details := make([]*Explanation, 0, len(terms))
		for _, ts := range terms {
			e := termIDF(ts)
			details = append(details, e)
			total += e.Value
		}
		idf = Match(total, "idf, sum of:", details...)
	}
	return &classicScorer{boost: boost, idf: idf, queryWeight: boost * idf.Value}
}

type classicScorer struct {
	boost       float32
	idf         *Explanation
	queryWeight float32
}

func (s *classicScorer) Score(freq float32, norm byte) float32 {
	return float32(math.Sqrt(float64(freq))) * s.queryWeight * classicNormTable[norm]
}

func (s *classicScorer) Explain(freq *Explanation, norm byte) *Explanation {
	f := freqValue(freq)
	details := make([]*Explanation, 0, 4)
	if s.boost != 1 {
		details = append(details, boostExplanation(s.boost))
	}
	details = append(details,
		s.idf,
		Match(float32(math.Sqrt(float64(f))), fmt.Sprintf("tf(freq=%v), with freq of:", f),
			Match(f, "freq, occurrences of term within document")),
		Match(classicNormTable[norm], fmt.Sprintf("fieldNorm(norm=%d)", norm)),
	)
	return Match(s.Score(f, norm),
		fmt.Sprintf("score(freq=%v), product of:", f), details...)
}
