package index

import (
	"sort"

	"github.com/Adithya-Monish-Kumar-K/multistep-search/internal/search"
	"github.com/Adithya-Monish-Kumar-K/multistep-search/internal/similarity"
)

// Posting is one document's occurrences of a term. Positions and offsets
// are only kept for fields indexed with them.
type Posting struct {
	Doc          int   `json:"d"`
	Freq         int   `json:"f"`
	Positions    []int `json:"p,omitempty"`
	StartOffsets []int `json:"s,omitempty"`
	EndOffsets   []int `json:"e,omitempty"`
}

// PostingList is sorted by Doc.
type PostingList []Posting

func (pl PostingList) TotalTermFreq() int64 {
	var n int64
	for _, p := range pl {
		n += int64(p.Freq)
	}
	return n
}

type TermEntry struct {
	Field    string
	Term     string
	Postings PostingList
}

// FieldData holds everything indexed for one field of a leaf. Norms has
// one entry per document; documents without the field have norm 0.
type FieldData struct {
	Options          similarity.IndexOptions `json:"options"`
	Norms            []byte                  `json:"norms"`
	DocCount         int64                   `json:"doc_count"`
	SumTotalTermFreq int64                   `json:"sum_total_term_freq"`
	SumDocFreq       int64                   `json:"sum_doc_freq"`
	Terms            map[string]PostingList  `json:"-"`
}

func (f *FieldData) Info() search.FieldInfo {
	return search.FieldInfo{
		IndexOptions:     f.Options,
		DocCount:         f.DocCount,
		SumTotalTermFreq: f.SumTotalTermFreq,
		SumDocFreq:       f.SumDocFreq,
	}
}

func (f *FieldData) Norm(doc int) byte {
	if doc < 0 || doc >= len(f.Norms) {
		return 0
	}
	return f.Norms[doc]
}

type postingsEnum struct {
	list      PostingList
	idx       int
	doc       int
	next      int
	positions bool
}

// NewPostingsEnum iterates a posting list. Without positions, NextPosition
// and the offsets report -1.
func NewPostingsEnum(list PostingList, withPositions bool) search.PostingsEnum {
	return &postingsEnum{list: list, idx: -1, doc: -1, positions: withPositions}
}

func (e *postingsEnum) DocID() int   { return e.doc }
func (e *postingsEnum) NextDoc() int { return e.Advance(e.doc + 1) }

func (e *postingsEnum) Advance(target int) int {
	start := e.idx + 1
	i := start + sort.Search(len(e.list)-start, func(i int) bool {
		return e.list[start+i].Doc >= target
	})
	e.idx = i
	e.next = 0
	if i >= len(e.list) {
		e.doc = search.NoMoreDocs
	} else {
		e.doc = e.list[i].Doc
	}
	return e.doc
}

func (e *postingsEnum) Freq() int { return e.list[e.idx].Freq }

func (e *postingsEnum) NextPosition() int {
	p := e.list[e.idx]
	if !e.positions || e.next >= len(p.Positions) {
		return -1
	}
	pos := p.Positions[e.next]
	e.next++
	return pos
}

func (e *postingsEnum) StartOffset() int {
	return e.offset(e.list[e.idx].StartOffsets)
}

func (e *postingsEnum) EndOffset() int {
	return e.offset(e.list[e.idx].EndOffsets)
}

func (e *postingsEnum) offset(offsets []int) int {
	if !e.positions || e.next == 0 || e.next > len(offsets) {
		return -1
	}
	return offsets[e.next-1]
}
