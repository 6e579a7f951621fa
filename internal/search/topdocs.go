package search

import "container/heap"

// ScoreDoc is one hit in the searcher's global doc id space.
type ScoreDoc struct {
	Doc   int     `json:"doc"`
	Score float32 `json:"score"`
}

type TopDocs struct {
	TotalHits int        `json:"total_hits"`
	ScoreDocs []ScoreDoc `json:"score_docs"`
}

// MergeTopDocs keeps the n best hits of several result sets, ordered by
// score descending and then by doc ascending.
func MergeTopDocs(n int, results ...TopDocs) TopDocs {
	c := newTopN(n)
	var total int
	for _, r := range results {
		total += r.TotalHits
		for _, sd := range r.ScoreDocs {
			c.collect(sd)
		}
	}
	return TopDocs{TotalHits: total, ScoreDocs: c.sorted()}
}

// topN is a bounded min-heap; its root is the weakest kept hit.
type topN struct {
	limit int
	h     scoreDocHeap
}

func newTopN(limit int) *topN {
	if limit <= 0 {
		limit = 10
	}
	return &topN{limit: limit, h: make(scoreDocHeap, 0, limit)}
}

func (c *topN) collect(sd ScoreDoc) {
	if c.h.Len() < c.limit {
		heap.Push(&c.h, sd)
		return
	}
	if worse(c.h[0], sd) {
		c.h[0] = sd
		heap.Fix(&c.h, 0)
	}
}

func (c *topN) sorted() []ScoreDoc {
	out := make([]ScoreDoc, c.h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(&c.h).(ScoreDoc)
	}
	return out
}

// worse reports whether a ranks below b.
func worse(a, b ScoreDoc) bool {
	if a.Score != b.Score {
		return a.Score < b.Score
	}
	return a.Doc > b.Doc
}

type scoreDocHeap []ScoreDoc

func (h scoreDocHeap) Len() int           { return len(h) }
func (h scoreDocHeap) Less(i, j int) bool { return worse(h[i], h[j]) }
func (h scoreDocHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *scoreDocHeap) Push(x any) {
	*h = append(*h, x.(ScoreDoc))
}

func (h *scoreDocHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
