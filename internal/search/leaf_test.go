package search

import (
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/multistep-search/internal/similarity"
)

type fakePosting struct {
	doc       int
	positions []int
	offsets   [][2]int
}

// fakeLeaf is an in-memory LeafReader over whitespace-separated documents.
type fakeLeaf struct {
	id       string
	ids      []string
	options  map[string]similarity.IndexOptions
	postings map[string]map[string][]fakePosting
	norms    map[string][]byte
	infos    map[string]*FieldInfo
}

func newFakeLeaf(id string) *fakeLeaf {
	return &fakeLeaf{
		id:       id,
		options:  map[string]similarity.IndexOptions{},
		postings: map[string]map[string][]fakePosting{},
		norms:    map[string][]byte{},
		infos:    map[string]*FieldInfo{},
	}
}

func (l *fakeLeaf) withOptions(field string, opts similarity.IndexOptions) *fakeLeaf {
	l.options[field] = opts
	return l
}

// add indexes one document whose fields hold whitespace-separated tokens.
func (l *fakeLeaf) add(externalID string, fields map[string]string) *fakeLeaf {
	doc := len(l.ids)
	l.ids = append(l.ids, externalID)
	for field := range l.norms {
		l.norms[field] = append(l.norms[field], 0)
	}
	names := make([]string, 0, len(fields))
	for f := range fields {
		names = append(names, f)
	}
	sort.Strings(names)
	for _, field := range names {
		text := fields[field]
		opts, ok := l.options[field]
		if !ok {
			opts = similarity.IndexDocsAndFreqsAndPositionsAndOffsets
			l.options[field] = opts
		}
		if _, ok := l.norms[field]; !ok {
			l.norms[field] = make([]byte, doc+1)
		}
		info, ok := l.infos[field]
		if !ok {
			info = &FieldInfo{IndexOptions: opts}
			l.infos[field] = info
		}
		if l.postings[field] == nil {
			l.postings[field] = map[string][]fakePosting{}
		}

		byTerm := map[string]*fakePosting{}
		var order []string
		offset := 0
		tokens := strings.Fields(text)
		for pos, tok := range tokens {
			start := strings.Index(text[offset:], tok) + offset
			offset = start + len(tok)
			p, ok := byTerm[tok]
			if !ok {
				p = &fakePosting{doc: doc}
				byTerm[tok] = p
				order = append(order, tok)
			}
			p.positions = append(p.positions, pos)
			p.offsets = append(p.offsets, [2]int{start, offset})
		}
		for _, tok := range order {
			l.postings[field][tok] = append(l.postings[field][tok], *byTerm[tok])
		}
		l.norms[field][doc] = similarity.ComputeNorm(similarity.FieldInvertState{
			Field:           field,
			IndexOptions:    opts,
			Length:          len(tokens),
			UniqueTermCount: len(order),
		}, true)
		info.DocCount++
		info.SumTotalTermFreq += int64(len(tokens))
		info.SumDocFreq += int64(len(order))
	}
	return l
}

func (l *fakeLeaf) ID() string  { return l.id }
func (l *fakeLeaf) MaxDoc() int { return len(l.ids) }

func (l *fakeLeaf) Postings(term Term, withPositions bool) (PostingsEnum, error) {
	list := l.postings[term.Field][term.Text()]
	if len(list) == 0 {
		return nil, nil
	}
	return &fakePostingsEnum{list: list, idx: -1, doc: -1}, nil
}

func (l *fakeLeaf) TermStats(term Term) (int64, int64) {
	list := l.postings[term.Field][term.Text()]
	var ttf int64
	for _, p := range list {
		ttf += int64(len(p.positions))
	}
	return int64(len(list)), ttf
}

func (l *fakeLeaf) FieldInfo(field string) (FieldInfo, bool) {
	info, ok := l.infos[field]
	if !ok {
		return FieldInfo{}, false
	}
	return *info, true
}

func (l *fakeLeaf) Norm(field string, doc int) byte {
	norms := l.norms[field]
	if doc >= len(norms) {
		return 0
	}
	return norms[doc]
}

func (l *fakeLeaf) ExternalID(doc int) string { return l.ids[doc] }

type fakePostingsEnum struct {
	list []fakePosting
	idx  int
	doc  int
	next int
}

func (e *fakePostingsEnum) DocID() int   { return e.doc }
func (e *fakePostingsEnum) NextDoc() int { return e.Advance(e.doc + 1) }

func (e *fakePostingsEnum) Advance(target int) int {
	for e.idx++; e.idx < len(e.list); e.idx++ {
		if e.list[e.idx].doc >= target {
			e.doc = e.list[e.idx].doc
			e.next = 0
			return e.doc
		}
	}
	e.doc = NoMoreDocs
	return e.doc
}

func (e *fakePostingsEnum) Freq() int { return len(e.list[e.idx].positions) }

func (e *fakePostingsEnum) NextPosition() int {
	p := e.list[e.idx].positions[e.next]
	e.next++
	return p
}

func (e *fakePostingsEnum) StartOffset() int { return e.list[e.idx].offsets[e.next-1][0] }
func (e *fakePostingsEnum) EndOffset() int   { return e.list[e.idx].offsets[e.next-1][1] }

// filler returns n distinct tokens that no test queries for.
func filler(n int) string {
	words := make([]string, n)
	for i := range words {
		words[i] = "w" + strings.Repeat("x", i%7) + string(rune('a'+i%26))
	}
	return strings.Join(words, " ")
}
