// Package search executes queries against a set of index leaves. A Query is
// compiled into a Weight once per search through a Searcher, which carries
// the ambient similarity model and aggregates statistics over all leaves;
// the Weight then produces one Scorer per leaf.
package search

import (
	"bytes"
	"fmt"
	"math"

	"github.com/Adithya-Monish-Kumar-K/multistep-search/internal/similarity"
)

// NoMoreDocs is returned by iterators once they are exhausted.
const NoMoreDocs = math.MaxInt32

// Term is a field name and the exact indexed bytes of one token.
type Term struct {
	Field string
	Bytes []byte
}

func NewTerm(field, text string) Term {
	return Term{Field: field, Bytes: []byte(text)}
}

func (t Term) Text() string { return string(t.Bytes) }

func (t Term) Equal(o Term) bool {
	return t.Field == o.Field && bytes.Equal(t.Bytes, o.Bytes)
}

func (t Term) String() string {
	return t.Field + ":" + string(t.Bytes)
}

// ScoreMode tells a weight whether its scorers must produce scores.
type ScoreMode uint8

const (
	ScoreModeComplete ScoreMode = iota
	ScoreModeCompleteNoScores
	ScoreModeTopScores
)

func (m ScoreMode) NeedsScores() bool {
	return m != ScoreModeCompleteNoScores
}

// FieldInfo holds per-leaf statistics and options for one field.
type FieldInfo struct {
	IndexOptions     similarity.IndexOptions
	DocCount         int64
	SumTotalTermFreq int64
	SumDocFreq       int64
}

// PostingsEnum iterates the documents containing a term in doc order. For
// fields indexed with positions, NextPosition may be called up to Freq
// times per document.
type PostingsEnum interface {
	DocID() int
	NextDoc() int
	Advance(target int) int
	Freq() int
	NextPosition() int
	StartOffset() int
	EndOffset() int
}

// LeafReader is the index view a query runs against: one segment, or the
// in-memory buffer of a shard.
type LeafReader interface {
	// ID identifies the leaf's content; a leaf whose documents change must
	// change its ID.
	ID() string
	MaxDoc() int
	// Postings returns nil, nil when the term does not occur in the leaf.
	Postings(term Term, withPositions bool) (PostingsEnum, error)
	TermStats(term Term) (docFreq, totalTermFreq int64)
	FieldInfo(field string) (FieldInfo, bool)
	Norm(field string, doc int) byte
	ExternalID(doc int) string
}

// LeafContext places a leaf inside a searcher's global doc id space.
type LeafContext struct {
	Reader  LeafReader
	Ord     int
	DocBase int
}

// Query is a node of a query tree.
type Query interface {
	CreateWeight(s *Searcher, mode ScoreMode, boost float32) (Weight, error)
	Equal(other Query) bool
	Hash() uint64
	String() string
}

// Weight is a query compiled against one searcher. It is shared read-only
// by the per-leaf scorers it creates.
type Weight interface {
	Query() Query
	// Scorer returns nil when no document of the leaf can match.
	Scorer(leaf *LeafContext) (Scorer, error)
	Explain(leaf *LeafContext, doc int) (*similarity.Explanation, error)
	// Matches returns nil when doc does not match.
	Matches(leaf *LeafContext, doc int) ([]FieldMatch, error)
	IsCacheable(leaf *LeafContext) bool
}

// Scorer iterates matching documents of one leaf and scores them.
type Scorer interface {
	DocID() int
	NextDoc() int
	Advance(target int) int
	Score() float32
}

// FieldMatch reports the occurrences of one term in a matching document.
// Iter is nil for fields indexed without positions.
type FieldMatch struct {
	Term Term
	Iter *MatchSpanIterator
}

func advanceTo(s Scorer, target int) int {
	if d := s.DocID(); d >= target {
		return d
	}
	return s.Advance(target)
}

func queryMismatch(q Query, doc int) *similarity.Explanation {
	return similarity.NoMatch(fmt.Sprintf("no matching term for %s in doc %d", q, doc))
}
