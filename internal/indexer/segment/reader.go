package segment

import (
	"encoding/json"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/multistep-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/multistep-search/internal/search"
)

// Reader serves a segment file as a search leaf. Metadata is loaded on
// open; postings are read and decompressed per lookup.
type Reader struct {
	file     *os.File
	filePath string
	name     string
	header   SegmentHeader
	footer   SegmentFooter
	dict     map[string][]DictEntry
	meta     Meta
}

func OpenReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening segment file: %w", err)
	}
	r, err := load(f, path)
	if err != nil {
		f.Close()
		return nil, err
	}
	return r, nil
}

func load(f *os.File, path string) (*Reader, error) {
	headerBytes := make([]byte, HeaderSize)
	if _, err := f.ReadAt(headerBytes, 0); err != nil {
		return nil, fmt.Errorf("reading segment header: %w", err)
	}
	header := decodeHeader(headerBytes)
	if header.Magic != MagicBytes {
		return nil, fmt.Errorf("invalid segment file: bad magic bytes %x", header.Magic)
	}
	if header.Version != FormatVersion {
		return nil, fmt.Errorf("unsupported segment version %d", header.Version)
	}

	footerBytes := make([]byte, FooterSize)
	if _, err := f.ReadAt(footerBytes, header.MetaOffset+header.MetaSize); err != nil {
		return nil, fmt.Errorf("reading segment footer: %w", err)
	}
	footer := decodeFooter(footerBytes)

	dictBlock := make([]byte, header.DictSize)
	if _, err := f.ReadAt(dictBlock, header.DictOffset); err != nil {
		return nil, fmt.Errorf("reading dictionary: %w", err)
	}
	metaBlock := make([]byte, header.MetaSize)
	if _, err := f.ReadAt(metaBlock, header.MetaOffset); err != nil {
		return nil, fmt.Errorf("reading metadata: %w", err)
	}
	checksum := crc32.NewIEEE()
	checksum.Write(dictBlock)
	checksum.Write(metaBlock)
	if sum := checksum.Sum32(); sum != footer.Checksum {
		return nil, fmt.Errorf("segment checksum mismatch: got %08x, want %08x", sum, footer.Checksum)
	}

	dictRaw, err := decodeBlock(dictBlock, int(footer.DictRaw))
	if err != nil {
		return nil, fmt.Errorf("decompressing dictionary: %w", err)
	}
	var entries []DictEntry
	if err := json.Unmarshal(dictRaw, &entries); err != nil {
		return nil, fmt.Errorf("parsing dictionary: %w", err)
	}
	metaRaw, err := decodeBlock(metaBlock, int(footer.MetaRaw))
	if err != nil {
		return nil, fmt.Errorf("decompressing metadata: %w", err)
	}
	var meta Meta
	if err := json.Unmarshal(metaRaw, &meta); err != nil {
		return nil, fmt.Errorf("parsing metadata: %w", err)
	}

	dict := make(map[string][]DictEntry)
	for _, e := range entries {
		dict[e.Field] = append(dict[e.Field], e)
	}
	for _, list := range dict {
		sort.Slice(list, func(i, j int) bool { return list[i].Term < list[j].Term })
	}
	return &Reader{
		file:     f,
		filePath: path,
		name:     filepath.Base(path),
		header:   header,
		footer:   footer,
		dict:     dict,
		meta:     meta,
	}, nil
}

func (r *Reader) lookup(term search.Term) (DictEntry, bool) {
	list := r.dict[term.Field]
	text := term.Text()
	idx := sort.Search(len(list), func(i int) bool {
		return list[i].Term >= text
	})
	if idx >= len(list) || list[idx].Term != text {
		return DictEntry{}, false
	}
	return list[idx], true
}

// Search returns the postings of a term, or nil when the segment does not
// contain it.
func (r *Reader) Search(term search.Term) (index.PostingList, error) {
	entry, ok := r.lookup(term)
	if !ok {
		return nil, nil
	}
	block := make([]byte, entry.PostLen)
	if _, err := r.file.ReadAt(block, r.header.PostOffset+entry.PostOffset); err != nil {
		return nil, fmt.Errorf("reading postings: %w", err)
	}
	raw, err := decodeBlock(block, entry.RawLen)
	if err != nil {
		return nil, fmt.Errorf("decompressing postings: %w", err)
	}
	var postings index.PostingList
	if err := json.Unmarshal(raw, &postings); err != nil {
		return nil, fmt.Errorf("parsing postings: %w", err)
	}
	return postings, nil
}

func (r *Reader) ID() string  { return r.name }
func (r *Reader) MaxDoc() int { return len(r.meta.DocIDs) }

func (r *Reader) Postings(term search.Term, withPositions bool) (search.PostingsEnum, error) {
	list, err := r.Search(term)
	if err != nil || len(list) == 0 {
		return nil, err
	}
	fd := r.meta.Fields[term.Field]
	return index.NewPostingsEnum(list, withPositions && fd != nil && fd.Options.HasPositions()), nil
}

func (r *Reader) TermStats(term search.Term) (int64, int64) {
	entry, ok := r.lookup(term)
	if !ok {
		return 0, 0
	}
	return int64(entry.DocFreq), entry.TotalTermFreq
}

func (r *Reader) FieldInfo(field string) (search.FieldInfo, bool) {
	fd, ok := r.meta.Fields[field]
	if !ok {
		return search.FieldInfo{}, false
	}
	return fd.Info(), true
}

func (r *Reader) Norm(field string, doc int) byte {
	fd, ok := r.meta.Fields[field]
	if !ok {
		return 0
	}
	return fd.Norm(doc)
}

func (r *Reader) ExternalID(doc int) string {
	if doc < 0 || doc >= len(r.meta.DocIDs) {
		return ""
	}
	return r.meta.DocIDs[doc]
}

func (r *Reader) DocIDs() []string { return r.meta.DocIDs }

func (r *Reader) Name() string { return r.name }

func (r *Reader) Terms() int {
	return int(r.footer.TermCount)
}

func (r *Reader) DocCount() uint32 {
	return r.header.DocCount
}

func (r *Reader) Compression() Compression {
	return Compression(r.header.Compression)
}

func (r *Reader) Close() error {
	return r.file.Close()
}
