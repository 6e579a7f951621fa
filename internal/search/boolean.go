package search

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/multistep-search/internal/similarity"
	"github.com/cespare/xxhash/v2"
)

// Occur says how a clause takes part in a BooleanQuery.
type Occur uint8

const (
	Should Occur = iota
	Must
	MustNot
)

func (o Occur) prefix() string {
	switch o {
	case Must:
		return "+"
	case MustNot:
		return "-"
	default:
		return ""
	}
}

type BooleanClause struct {
	Query Query
	Occur Occur
}

// BooleanQuery combines clauses. A document matches when it matches every
// Must clause, no MustNot clause, and at least one Should clause if there
// are no Must clauses. Its score is the sum of the matching clauses'
// scores.
type BooleanQuery struct {
	clauses []BooleanClause
}

func NewBooleanQuery(clauses ...BooleanClause) *BooleanQuery {
	return &BooleanQuery{clauses: append([]BooleanClause(nil), clauses...)}
}

func (q *BooleanQuery) Clauses() []BooleanClause {
	return q.clauses
}

func (q *BooleanQuery) CreateWeight(s *Searcher, mode ScoreMode, boost float32) (Weight, error) {
	w := &booleanWeight{query: q, mode: mode, weights: make([]Weight, len(q.clauses))}
	for i, c := range q.clauses {
		clauseMode := mode
		if c.Occur == MustNot {
			clauseMode = ScoreModeCompleteNoScores
		}
		cw, err := s.createWeight(c.Query, clauseMode, boost)
		if err != nil {
			return nil, fmt.Errorf("clause %d (%s): %w", i, c.Query, err)
		}
		w.weights[i] = cw
	}
	return w, nil
}

func (q *BooleanQuery) Equal(other Query) bool {
	o, ok := other.(*BooleanQuery)
	if !ok || len(o.clauses) != len(q.clauses) {
		return false
	}
	for i, c := range q.clauses {
		if c.Occur != o.clauses[i].Occur || !c.Query.Equal(o.clauses[i].Query) {
			return false
		}
	}
	return true
}

func (q *BooleanQuery) Hash() uint64 {
	d := xxhash.New()
	d.WriteString("bool\x00")
	buf := make([]byte, 0, 9)
	for _, c := range q.clauses {
		buf = append(buf[:0], byte(c.Occur))
		buf = binary.LittleEndian.AppendUint64(buf, c.Query.Hash())
		d.Write(buf)
	}
	return d.Sum64()
}

func (q *BooleanQuery) String() string {
	parts := make([]string, len(q.clauses))
	for i, c := range q.clauses {
		s := c.Query.String()
		if _, nested := c.Query.(*BooleanQuery); nested {
			s = "(" + s + ")"
		}
		parts[i] = c.Occur.prefix() + s
	}
	return strings.Join(parts, " ")
}

type booleanWeight struct {
	query   *BooleanQuery
	mode    ScoreMode
	weights []Weight
}

func (w *booleanWeight) Query() Query { return w.query }

func (w *booleanWeight) Scorer(leaf *LeafContext) (Scorer, error) {
	var required, optional, prohibited []Scorer
	for i, c := range w.query.clauses {
		sc, err := w.weights[i].Scorer(leaf)
		if err != nil {
			return nil, err
		}
		if sc == nil {
			if c.Occur == Must {
				return nil, nil
			}
			continue
		}
		switch c.Occur {
		case Must:
			required = append(required, sc)
		case MustNot:
			prohibited = append(prohibited, sc)
		default:
			optional = append(optional, sc)
		}
	}

	var base Scorer
	switch {
	case len(required) > 0:
		base = newConjunction(required)
		if len(optional) > 0 {
			base = &reqOptScorer{req: base, opt: newDisjunction(optional)}
		}
	case len(optional) > 0:
		base = newDisjunction(optional)
	default:
		return nil, nil
	}
	if len(prohibited) > 0 {
		base = &reqExclScorer{req: base, excl: newDisjunction(prohibited), doc: -1}
	}
	return base, nil
}

func (w *booleanWeight) Explain(leaf *LeafContext, doc int) (*similarity.Explanation, error) {
	var (
		details       []*similarity.Explanation
		sum           float32
		matchedShould int
		hasMust       bool
	)
	for i, c := range w.query.clauses {
		e, err := w.weights[i].Explain(leaf, doc)
		if err != nil {
			return nil, err
		}
		switch c.Occur {
		case MustNot:
			if e.IsMatch {
				return similarity.NoMatch("match on prohibited clause ("+c.Query.String()+")", e), nil
			}
		case Must:
			hasMust = true
			if !e.IsMatch {
				return similarity.NoMatch("no match on required clause ("+c.Query.String()+")", e), nil
			}
			details = append(details, e)
			sum += e.Value
		default:
			if e.IsMatch {
				matchedShould++
				details = append(details, e)
				sum += e.Value
			}
		}
	}
	if !hasMust && matchedShould == 0 {
		return similarity.NoMatch("no matching clause"), nil
	}
	return similarity.Match(sum, "sum of:", details...), nil
}

func (w *booleanWeight) Matches(leaf *LeafContext, doc int) ([]FieldMatch, error) {
	sc, err := w.Scorer(leaf)
	if err != nil || sc == nil || advanceTo(sc, doc) != doc {
		return nil, err
	}
	var out []FieldMatch
	for i, c := range w.query.clauses {
		if c.Occur == MustNot {
			continue
		}
		m, err := w.weights[i].Matches(leaf, doc)
		if err != nil {
			return nil, err
		}
		out = append(out, m...)
	}
	return out, nil
}

func (w *booleanWeight) IsCacheable(leaf *LeafContext) bool {
	for _, cw := range w.weights {
		if !cw.IsCacheable(leaf) {
			return false
		}
	}
	return true
}

// disjunctionScorer matches documents matching any sub-scorer and sums the
// scores of those positioned on the current document.
type disjunctionScorer struct {
	subs []Scorer
	doc  int
}

func newDisjunction(subs []Scorer) Scorer {
	if len(subs) == 1 {
		return subs[0]
	}
	return &disjunctionScorer{subs: subs, doc: -1}
}

func (s *disjunctionScorer) DocID() int   { return s.doc }
func (s *disjunctionScorer) NextDoc() int { return s.Advance(s.doc + 1) }

func (s *disjunctionScorer) Advance(target int) int {
	next := NoMoreDocs
	for _, sub := range s.subs {
		if d := advanceTo(sub, target); d < next {
			next = d
		}
	}
	s.doc = next
	return next
}

func (s *disjunctionScorer) Score() float32 {
	var sum float32
	for _, sub := range s.subs {
		if sub.DocID() == s.doc {
			sum += sub.Score()
		}
	}
	return sum
}

// conjunctionScorer matches documents matching every sub-scorer.
type conjunctionScorer struct {
	subs []Scorer
	doc  int
}

func newConjunction(subs []Scorer) Scorer {
	if len(subs) == 1 {
		return subs[0]
	}
	return &conjunctionScorer{subs: subs, doc: -1}
}

func (s *conjunctionScorer) DocID() int   { return s.doc }
func (s *conjunctionScorer) NextDoc() int { return s.Advance(s.doc + 1) }

func (s *conjunctionScorer) Advance(target int) int {
	doc := target
	for {
		aligned := true
		for _, sub := range s.subs {
			d := advanceTo(sub, doc)
			if d == NoMoreDocs {
				s.doc = NoMoreDocs
				return s.doc
			}
			if d > doc {
				doc = d
				aligned = false
				break
			}
		}
		if aligned {
			s.doc = doc
			return doc
		}
	}
}

func (s *conjunctionScorer) Score() float32 {
	var sum float32
	for _, sub := range s.subs {
		sum += sub.Score()
	}
	return sum
}

// reqOptScorer iterates the required scorer and adds the optional score
// when it matches too.
type reqOptScorer struct {
	req Scorer
	opt Scorer
}

func (s *reqOptScorer) DocID() int             { return s.req.DocID() }
func (s *reqOptScorer) NextDoc() int           { return s.req.NextDoc() }
func (s *reqOptScorer) Advance(target int) int { return s.req.Advance(target) }

func (s *reqOptScorer) Score() float32 {
	doc := s.req.DocID()
	score := s.req.Score()
	if advanceTo(s.opt, doc) == doc {
		score += s.opt.Score()
	}
	return score
}

// reqExclScorer iterates the required scorer, skipping excluded documents.
type reqExclScorer struct {
	req  Scorer
	excl Scorer
	doc  int
}

func (s *reqExclScorer) DocID() int   { return s.doc }
func (s *reqExclScorer) NextDoc() int { return s.Advance(s.doc + 1) }

func (s *reqExclScorer) Advance(target int) int {
	doc := advanceTo(s.req, target)
	for doc != NoMoreDocs && advanceTo(s.excl, doc) == doc {
		doc = s.req.NextDoc()
	}
	s.doc = doc
	return doc
}

func (s *reqExclScorer) Score() float32 { return s.req.Score() }
