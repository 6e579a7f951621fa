// Package similarity implements the relevance models the searcher can score
// term clauses with. A Model turns collection and term statistics into a
// SimScorer, which then scores individual documents from a raw term
// frequency and the document's encoded length norm.
package similarity

import (
	"fmt"
	"math"
)

// CollectionStatistics describes one field across the searched index.
type CollectionStatistics struct {
	Field            string
	MaxDoc           int64
	DocCount         int64
	SumTotalTermFreq int64
	SumDocFreq       int64
}

// TermStatistics describes one term of a field across the searched index.
type TermStatistics struct {
	Term          []byte
	DocFreq       int64
	TotalTermFreq int64
}

// Model builds per-clause scorers. Implementations hold only immutable
// parameters and are safe for concurrent use.
type Model interface {
	Scorer(boost float32, collection CollectionStatistics, terms ...TermStatistics) SimScorer
	Descriptor() Descriptor
	String() string
}

// SimScorer scores documents for one clause. It is built once per search
// and shared read-only across segments.
type SimScorer interface {
	Score(freq float32, norm byte) float32
	Explain(freq *Explanation, norm byte) *Explanation
}

// Kind identifies a scoring model family.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindBM25
	KindClassic
	KindTunableBM25
	KindStepwise
	KindRawFreq
)

func (k Kind) String() string {
	switch k {
	case KindBM25:
		return "bm25"
	case KindClassic:
		return "classic"
	case KindTunableBM25:
		return "tunable_bm25"
	case KindStepwise:
		return "stepwise"
	case KindRawFreq:
		return "raw_freq"
	default:
		return "unknown"
	}
}

// Descriptor is the comparable identity of a configured model: its kind
// plus every parameter that influences scoring. Two models with equal
// descriptors score identically.
type Descriptor struct {
	Kind          Kind
	Base          float64
	K1            float32
	B             float32
	TermFrequency bool
}

func (d Descriptor) String() string {
	switch d.Kind {
	case KindStepwise:
		return fmt.Sprintf("%s(base=%v)", d.Kind, d.Base)
	case KindBM25, KindTunableBM25:
		return fmt.Sprintf("%s(k1=%v,b=%v,tf=%t)", d.Kind, d.K1, d.B, d.TermFrequency)
	default:
		return d.Kind.String()
	}
}

// avgFieldLength returns the mean field length, or 1 when the collection
// gives no usable value.
func avgFieldLength(collection CollectionStatistics) float32 {
	if collection.DocCount <= 0 || collection.SumTotalTermFreq <= 0 {
		return 1
	}
	avg := float32(float64(collection.SumTotalTermFreq) / float64(collection.DocCount))
	if avg <= 0 || math.IsNaN(float64(avg)) || math.IsInf(float64(avg), 0) {
		return 1
	}
	return avg
}

// docCount is the number of documents with the field, falling back to
// MaxDoc for collections that do not track it.
func docCount(collection CollectionStatistics) int64 {
	if collection.DocCount > 0 {
		return collection.DocCount
	}
	return collection.MaxDoc
}

// probabilisticIDF is the classical BM25 inverse document frequency.
func probabilisticIDF(docFreq, docCount int64) float64 {
	return math.Log(1 + (float64(docCount)-float64(docFreq)+0.5)/(float64(docFreq)+0.5))
}

// roundHalfUp rounds to the nearest integer, ties toward positive infinity.
func roundHalfUp(v float32) float32 {
	return float32(math.Floor(float64(v) + 0.5))
}

func boostExplanation(boost float32) *Explanation {
	return Match(boost, "boost")
}

func freqValue(freq *Explanation) float32 {
	if freq == nil {
		return 0
	}
	return freq.Value
}

func dlExplanation(norm byte) *Explanation {
	desc := "dl, length of field"
	if norm > MaxExactNorm {
		desc = "dl, length of field (approximate)"
	}
	return Match(DecodeNorm(norm), desc)
}
