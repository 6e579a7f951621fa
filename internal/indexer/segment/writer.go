package segment

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/multistep-search/internal/indexer/index"
)

// MagicBytes identifies a valid .spdx segment file.
const (
	MagicBytes    uint32 = 0x53504458
	FormatVersion uint32 = 2
	HeaderSize    int    = 64
	FooterSize    int    = 32
	Extension            = ".spdx"
)

// SegmentHeader is the 64-byte header written at the start of every segment.
type SegmentHeader struct {
	Magic       uint32
	Version     uint32
	Compression uint32
	DocCount    uint32
	DictOffset  int64
	DictSize    int64
	PostOffset  int64
	PostSize    int64
	MetaOffset  int64
	MetaSize    int64
}

func (h SegmentHeader) encode() []byte {
	b := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(b[0:4], h.Magic)
	binary.LittleEndian.PutUint32(b[4:8], h.Version)
	binary.LittleEndian.PutUint32(b[8:12], h.Compression)
	binary.LittleEndian.PutUint32(b[12:16], h.DocCount)
	binary.LittleEndian.PutUint64(b[16:24], uint64(h.DictOffset))
	binary.LittleEndian.PutUint64(b[24:32], uint64(h.DictSize))
	binary.LittleEndian.PutUint64(b[32:40], uint64(h.PostOffset))
	binary.LittleEndian.PutUint64(b[40:48], uint64(h.PostSize))
	binary.LittleEndian.PutUint64(b[48:56], uint64(h.MetaOffset))
	binary.LittleEndian.PutUint64(b[56:64], uint64(h.MetaSize))
	return b
}

func decodeHeader(b []byte) SegmentHeader {
	return SegmentHeader{
		Magic:       binary.LittleEndian.Uint32(b[0:4]),
		Version:     binary.LittleEndian.Uint32(b[4:8]),
		Compression: binary.LittleEndian.Uint32(b[8:12]),
		DocCount:    binary.LittleEndian.Uint32(b[12:16]),
		DictOffset:  int64(binary.LittleEndian.Uint64(b[16:24])),
		DictSize:    int64(binary.LittleEndian.Uint64(b[24:32])),
		PostOffset:  int64(binary.LittleEndian.Uint64(b[32:40])),
		PostSize:    int64(binary.LittleEndian.Uint64(b[40:48])),
		MetaOffset:  int64(binary.LittleEndian.Uint64(b[48:56])),
		MetaSize:    int64(binary.LittleEndian.Uint64(b[56:64])),
	}
}

// SegmentFooter closes a segment. Checksum covers the dictionary and
// metadata blocks.
type SegmentFooter struct {
	Checksum  uint32
	TermCount uint32
	DictRaw   int64
	MetaRaw   int64
	CreatedAt int64
}

func (f SegmentFooter) encode() []byte {
	b := make([]byte, FooterSize)
	binary.LittleEndian.PutUint32(b[0:4], f.Checksum)
	binary.LittleEndian.PutUint32(b[4:8], f.TermCount)
	binary.LittleEndian.PutUint64(b[8:16], uint64(f.DictRaw))
	binary.LittleEndian.PutUint64(b[16:24], uint64(f.MetaRaw))
	binary.LittleEndian.PutUint64(b[24:32], uint64(f.CreatedAt))
	return b
}

func decodeFooter(b []byte) SegmentFooter {
	return SegmentFooter{
		Checksum:  binary.LittleEndian.Uint32(b[0:4]),
		TermCount: binary.LittleEndian.Uint32(b[4:8]),
		DictRaw:   int64(binary.LittleEndian.Uint64(b[8:16])),
		MetaRaw:   int64(binary.LittleEndian.Uint64(b[16:24])),
		CreatedAt: int64(binary.LittleEndian.Uint64(b[24:32])),
	}
}

// DictEntry maps a (field, term) to its postings block and statistics.
type DictEntry struct {
	Field         string `json:"f"`
	Term          string `json:"t"`
	PostOffset    int64  `json:"o"`
	PostLen       int    `json:"l"`
	RawLen        int    `json:"r"`
	DocFreq       int    `json:"d"`
	TotalTermFreq int64  `json:"n"`
}

// Meta holds the per-document data of a segment: external ids, norms and
// field statistics.
type Meta struct {
	DocIDs []string                    `json:"doc_ids"`
	Fields map[string]*index.FieldData `json:"fields"`
}

// Writer serialises memory index snapshots into new .spdx segment files.
type Writer struct {
	dataDir     string
	compression Compression
	seq         atomic.Uint64
}

// NewWriter creates a Writer that writes segments into the given directory.
func NewWriter(dataDir string, compression Compression) *Writer {
	return &Writer{dataDir: dataDir, compression: compression}
}

// Write atomically creates a new segment file holding every document of
// the snapshot. It writes to a .tmp file first and renames on success.
func (w *Writer) Write(snap *index.Snapshot) (string, error) {
	if snap.MaxDoc() == 0 {
		return "", fmt.Errorf("cannot write empty segment")
	}
	// The sequence keeps names unique when flushes share a clock tick.
	segmentName := fmt.Sprintf("seg_%d_%06d%s", time.Now().UnixNano(), w.seq.Add(1), Extension)
	finalPath := filepath.Join(w.dataDir, segmentName)
	tmpPath := finalPath + ".tmp"

	if err := os.MkdirAll(w.dataDir, 0755); err != nil {
		return "", fmt.Errorf("creating segment directory: %w", err)
	}
	f, err := os.Create(tmpPath)
	if err != nil {
		return "", fmt.Errorf("creating temp segment file: %w", err)
	}
	defer f.Close()

	header := SegmentHeader{
		Magic:       MagicBytes,
		Version:     FormatVersion,
		Compression: uint32(w.compression),
		DocCount:    uint32(snap.MaxDoc()),
		PostOffset:  int64(HeaderSize),
	}
	if _, err := f.Write(header.encode()); err != nil {
		return "", fmt.Errorf("writing header: %w", err)
	}

	entries := snap.Entries()
	dict := make([]DictEntry, 0, len(entries))
	var offset int64
	for _, entry := range entries {
		raw, err := json.Marshal(entry.Postings)
		if err != nil {
			return "", fmt.Errorf("marshaling postings for %s:%s: %w", entry.Field, entry.Term, err)
		}
		block, err := encodeBlock(raw, w.compression)
		if err != nil {
			return "", fmt.Errorf("compressing postings for %s:%s: %w", entry.Field, entry.Term, err)
		}
		if _, err := f.Write(block); err != nil {
			return "", fmt.Errorf("writing postings for %s:%s: %w", entry.Field, entry.Term, err)
		}
		dict = append(dict, DictEntry{
			Field:         entry.Field,
			Term:          entry.Term,
			PostOffset:    offset,
			PostLen:       len(block),
			RawLen:        len(raw),
			DocFreq:       len(entry.Postings),
			TotalTermFreq: entry.Postings.TotalTermFreq(),
		})
		offset += int64(len(block))
	}
	header.PostSize = offset

	meta := Meta{DocIDs: snap.DocIDs(), Fields: make(map[string]*index.FieldData)}
	for _, name := range snap.Fields() {
		fd, _ := snap.Field(name)
		meta.Fields[name] = fd
	}

	dictRaw, err := json.Marshal(dict)
	if err != nil {
		return "", fmt.Errorf("marshaling dictionary: %w", err)
	}
	metaRaw, err := json.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("marshaling metadata: %w", err)
	}
	dictBlock, err := encodeBlock(dictRaw, w.compression)
	if err != nil {
		return "", fmt.Errorf("compressing dictionary: %w", err)
	}
	metaBlock, err := encodeBlock(metaRaw, w.compression)
	if err != nil {
		return "", fmt.Errorf("compressing metadata: %w", err)
	}

	header.DictOffset = header.PostOffset + header.PostSize
	header.DictSize = int64(len(dictBlock))
	header.MetaOffset = header.DictOffset + header.DictSize
	header.MetaSize = int64(len(metaBlock))
	if _, err := f.Write(dictBlock); err != nil {
		return "", fmt.Errorf("writing dictionary: %w", err)
	}
	if _, err := f.Write(metaBlock); err != nil {
		return "", fmt.Errorf("writing metadata: %w", err)
	}

	checksum := crc32.NewIEEE()
	checksum.Write(dictBlock)
	checksum.Write(metaBlock)
	footer := SegmentFooter{
		Checksum:  checksum.Sum32(),
		TermCount: uint32(len(dict)),
		DictRaw:   int64(len(dictRaw)),
		MetaRaw:   int64(len(metaRaw)),
		CreatedAt: time.Now().Unix(),
	}
	if _, err := f.Write(footer.encode()); err != nil {
		return "", fmt.Errorf("writing footer: %w", err)
	}
	if _, err := f.WriteAt(header.encode(), 0); err != nil {
		return "", fmt.Errorf("updating header: %w", err)
	}
	if err := f.Sync(); err != nil {
		return "", fmt.Errorf("syncing segment file: %w", err)
	}
	f.Close()
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return "", fmt.Errorf("renaming segment file: %w", err)
	}
	return segmentName, nil
}
