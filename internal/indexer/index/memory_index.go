package index

import (
	"fmt"
	"sort"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/multistep-search/internal/analysis"
	"github.com/Adithya-Monish-Kumar-K/multistep-search/internal/search"
	"github.com/Adithya-Monish-Kumar-K/multistep-search/internal/similarity"
)

// AnalyzedField is one field of a document after analysis.
type AnalyzedField struct {
	Name    string
	Options similarity.IndexOptions
	Tokens  []analysis.Token
}

// MemoryIndex buffers documents until they are flushed to a segment.
// Documents get consecutive ordinals starting at 0.
type MemoryIndex struct {
	mu               sync.RWMutex
	name             string
	discountOverlaps bool
	generation       int
	docIDs           []string
	fields           map[string]*FieldData
	size             int64
	snapshot         *Snapshot
}

func NewMemoryIndex(name string, discountOverlaps bool) *MemoryIndex {
	return &MemoryIndex{
		name:             name,
		discountOverlaps: discountOverlaps,
		fields:           make(map[string]*FieldData),
	}
}

// AddDocument indexes the analyzed fields of a document and returns its
// ordinal.
func (m *MemoryIndex) AddDocument(externalID string, fields []AnalyzedField) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc := len(m.docIDs)
	m.docIDs = append(m.docIDs, externalID)
	for _, fd := range m.fields {
		fd.Norms = append(fd.Norms, 0)
	}
	m.size += int64(len(externalID) + 16)

	for _, field := range fields {
		if len(field.Tokens) == 0 {
			continue
		}
		fd, ok := m.fields[field.Name]
		if !ok {
			fd = &FieldData{
				Options: field.Options,
				Norms:   make([]byte, doc+1),
				Terms:   make(map[string]PostingList),
			}
			m.fields[field.Name] = fd
		}

		withPositions := fd.Options.HasPositions()
		withOffsets := fd.Options == similarity.IndexDocsAndFreqsAndPositionsAndOffsets
		byTerm := make(map[string]*Posting)
		order := make([]string, 0, len(field.Tokens))
		state := similarity.FieldInvertState{Field: field.Name, IndexOptions: fd.Options}
		pos := -1
		for _, tok := range field.Tokens {
			if tok.PositionIncrement == 0 {
				state.NumOverlap++
				if pos < 0 {
					pos = 0
				}
			} else {
				pos += tok.PositionIncrement
			}
			state.Length++

			term := string(tok.Term)
			p, ok := byTerm[term]
			if !ok {
				p = &Posting{Doc: doc}
				byTerm[term] = p
				order = append(order, term)
			}
			p.Freq++
			if withPositions {
				p.Positions = append(p.Positions, pos)
			}
			if withOffsets {
				p.StartOffsets = append(p.StartOffsets, tok.StartOffset)
				p.EndOffsets = append(p.EndOffsets, tok.EndOffset)
			}
		}
		state.UniqueTermCount = len(order)

		for _, term := range order {
			p := *byTerm[term]
			fd.Terms[term] = append(fd.Terms[term], p)
			m.size += int64(len(term) + len(p.Positions)*8 + len(p.StartOffsets)*16 + 32)
		}
		fd.Norms[doc] = similarity.ComputeNorm(state, m.discountOverlaps)
		fd.DocCount++
		fd.SumTotalTermFreq += int64(state.Length)
		fd.SumDocFreq += int64(state.UniqueTermCount)
	}
	m.snapshot = nil
	return doc
}

// Reader returns a point-in-time view of the buffered documents. Later
// additions are not visible through it.
func (m *MemoryIndex) Reader() *Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.snapshot != nil {
		return m.snapshot
	}
	n := len(m.docIDs)
	fields := make(map[string]*FieldData, len(m.fields))
	for name, fd := range m.fields {
		terms := make(map[string]PostingList, len(fd.Terms))
		for term, list := range fd.Terms {
			terms[term] = list[:len(list):len(list)]
		}
		fields[name] = &FieldData{
			Options:          fd.Options,
			Norms:            fd.Norms[:n:n],
			DocCount:         fd.DocCount,
			SumTotalTermFreq: fd.SumTotalTermFreq,
			SumDocFreq:       fd.SumDocFreq,
			Terms:            terms,
		}
	}
	m.snapshot = NewSnapshot(fmt.Sprintf("%s/mem-%d-%d", m.name, m.generation, n), m.docIDs[:n:n], fields)
	return m.snapshot
}

func (m *MemoryIndex) Size() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.size
}

func (m *MemoryIndex) DocCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docIDs)
}

// Detach moves the buffered documents into a new index and leaves m empty.
// A concurrent AddDocument lands either in the returned index or in m,
// never in neither. Snapshots of either index keep distinct ids.
func (m *MemoryIndex) Detach() *MemoryIndex {
	m.mu.Lock()
	defer m.mu.Unlock()
	frozen := &MemoryIndex{
		name:             m.name,
		discountOverlaps: m.discountOverlaps,
		generation:       m.generation,
		docIDs:           m.docIDs,
		fields:           m.fields,
		size:             m.size,
		snapshot:         m.snapshot,
	}
	m.generation++
	m.docIDs = nil
	m.fields = make(map[string]*FieldData)
	m.size = 0
	m.snapshot = nil
	return frozen
}

// Snapshot is an immutable leaf over fully loaded field data.
type Snapshot struct {
	id     string
	docIDs []string
	fields map[string]*FieldData
}

func NewSnapshot(id string, docIDs []string, fields map[string]*FieldData) *Snapshot {
	return &Snapshot{id: id, docIDs: docIDs, fields: fields}
}

func (s *Snapshot) ID() string       { return s.id }
func (s *Snapshot) MaxDoc() int      { return len(s.docIDs) }
func (s *Snapshot) DocIDs() []string { return s.docIDs }

// Fields returns the indexed field names in sorted order.
func (s *Snapshot) Fields() []string {
	names := make([]string, 0, len(s.fields))
	for name := range s.fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Snapshot) Field(name string) (*FieldData, bool) {
	fd, ok := s.fields[name]
	return fd, ok
}

// Entries lists every (field, term) with its postings, sorted by field and
// then term.
func (s *Snapshot) Entries() []TermEntry {
	var entries []TermEntry
	for _, field := range s.Fields() {
		fd := s.fields[field]
		terms := make([]string, 0, len(fd.Terms))
		for term := range fd.Terms {
			terms = append(terms, term)
		}
		sort.Strings(terms)
		for _, term := range terms {
			entries = append(entries, TermEntry{Field: field, Term: term, Postings: fd.Terms[term]})
		}
	}
	return entries
}

func (s *Snapshot) Postings(term search.Term, withPositions bool) (search.PostingsEnum, error) {
	fd, ok := s.fields[term.Field]
	if !ok {
		return nil, nil
	}
	list := fd.Terms[term.Text()]
	if len(list) == 0 {
		return nil, nil
	}
	return NewPostingsEnum(list, withPositions && fd.Options.HasPositions()), nil
}

func (s *Snapshot) TermStats(term search.Term) (int64, int64) {
	fd, ok := s.fields[term.Field]
	if !ok {
		return 0, 0
	}
	list := fd.Terms[term.Text()]
	return int64(len(list)), list.TotalTermFreq()
}

func (s *Snapshot) FieldInfo(field string) (search.FieldInfo, bool) {
	fd, ok := s.fields[field]
	if !ok {
		return search.FieldInfo{}, false
	}
	return fd.Info(), true
}

func (s *Snapshot) Norm(field string, doc int) byte {
	fd, ok := s.fields[field]
	if !ok {
		return 0
	}
	return fd.Norm(doc)
}

func (s *Snapshot) ExternalID(doc int) string {
	if doc < 0 || doc >= len(s.docIDs) {
		return ""
	}
	return s.docIDs[doc]
}
