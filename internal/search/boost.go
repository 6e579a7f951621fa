package search

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/cespare/xxhash/v2"
)

// BoostQuery multiplies the scores of the wrapped query. A zero boost keeps
// the query's matches while removing its contribution to the score.
type BoostQuery struct {
	query Query
	boost float32
}

func NewBoostQuery(q Query, boost float32) *BoostQuery {
	return &BoostQuery{query: q, boost: boost}
}

func (q *BoostQuery) Query() Query   { return q.query }
func (q *BoostQuery) Boost() float32 { return q.boost }

func (q *BoostQuery) CreateWeight(s *Searcher, mode ScoreMode, boost float32) (Weight, error) {
	return s.createWeight(q.query, mode, boost*q.boost)
}

func (q *BoostQuery) Equal(other Query) bool {
	o, ok := other.(*BoostQuery)
	return ok && q.boost == o.boost && q.query.Equal(o.query)
}

func (q *BoostQuery) Hash() uint64 {
	buf := make([]byte, 0, 22)
	buf = append(buf, "boost\x00"...)
	buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(q.boost))
	buf = binary.LittleEndian.AppendUint64(buf, q.query.Hash())
	return xxhash.Sum64(buf)
}

func (q *BoostQuery) String() string {
	return fmt.Sprintf("(%s)^%v", q.query, q.boost)
}
