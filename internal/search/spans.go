package search

// MatchSpanIterator walks the positions of a term inside one document. It
// is bounded by the document's term frequency and cannot be rewound; build
// a new iterator for every document.
type MatchSpanIterator struct {
	postings PostingsEnum
	upto     int
	pos      int
}

// NewMatchSpanIterator expects postings positioned on the document.
func NewMatchSpanIterator(postings PostingsEnum) *MatchSpanIterator {
	return &MatchSpanIterator{
		postings: postings,
		upto:     postings.Freq(),
		pos:      -1,
	}
}

// Next moves to the next occurrence and reports whether there was one.
func (it *MatchSpanIterator) Next() bool {
	if it.upto <= 0 {
		return false
	}
	it.upto--
	it.pos = it.postings.NextPosition()
	return true
}

func (it *MatchSpanIterator) StartPosition() int { return it.pos }
func (it *MatchSpanIterator) EndPosition() int   { return it.pos }
func (it *MatchSpanIterator) StartOffset() int   { return it.postings.StartOffset() }
func (it *MatchSpanIterator) EndOffset() int     { return it.postings.EndOffset() }
