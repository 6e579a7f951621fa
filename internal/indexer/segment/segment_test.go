package segment

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/multistep-search/internal/analysis"
	"github.com/Adithya-Monish-Kumar-K/multistep-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/multistep-search/internal/search"
	"github.com/Adithya-Monish-Kumar-K/multistep-search/internal/similarity"
)

func buildSnapshot(t *testing.T) *index.Snapshot {
	t.Helper()
	std := analysis.NewStandard()
	field := func(name, text string, opts similarity.IndexOptions) index.AnalyzedField {
		tokens, err := analysis.Drain(std.TokenStream(name, text))
		if err != nil {
			t.Fatal(err)
		}
		return index.AnalyzedField{Name: name, Options: opts, Tokens: tokens}
	}
	m := index.NewMemoryIndex("shard-0", true)
	m.AddDocument("a", []index.AnalyzedField{
		field("body", "the quick brown fox jumps over the lazy fox", similarity.IndexDocsAndFreqsAndPositionsAndOffsets),
		field("title", "Fox", similarity.IndexDocs),
	})
	m.AddDocument("b", []index.AnalyzedField{
		field("body", "a lazy dog", similarity.IndexDocsAndFreqsAndPositionsAndOffsets),
	})
	m.AddDocument("c", []index.AnalyzedField{
		field("body", strings.Repeat("fox dog ", 50), similarity.IndexDocsAndFreqsAndPositionsAndOffsets),
	})
	return m.Reader()
}

func writeSegment(t *testing.T, c Compression, snap *index.Snapshot) string {
	t.Helper()
	dir := t.TempDir()
	name, err := NewWriter(dir, c).Write(snap)
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Ext(name) != Extension {
		t.Errorf("segment name %q lacks %s", name, Extension)
	}
	return filepath.Join(dir, name)
}

func TestSegmentRoundTrip(t *testing.T) {
	snap := buildSnapshot(t)
	for _, c := range []Compression{CompressionNone, CompressionLZ4, CompressionZstd} {
		t.Run(c.String(), func(t *testing.T) {
			r, err := OpenReader(writeSegment(t, c, snap))
			if err != nil {
				t.Fatal(err)
			}
			defer r.Close()

			if r.MaxDoc() != 3 || r.DocCount() != 3 || r.ExternalID(2) != "c" {
				t.Fatalf("docs = %v", r.DocIDs())
			}
			if r.Compression() != c {
				t.Errorf("compression = %s", r.Compression())
			}
			for _, term := range []search.Term{
				search.NewTerm("body", "fox"),
				search.NewTerm("body", "dog"),
				search.NewTerm("title", "fox"),
			} {
				df, ttf := r.TermStats(term)
				wdf, wttf := snap.TermStats(term)
				if df != wdf || ttf != wttf {
					t.Errorf("%v stats = %d/%d, want %d/%d", term, df, ttf, wdf, wttf)
				}
			}
			for _, field := range []string{"body", "title"} {
				got, _ := r.FieldInfo(field)
				want, _ := snap.FieldInfo(field)
				if got != want {
					t.Errorf("%s info = %+v, want %+v", field, got, want)
				}
				for doc := 0; doc < 3; doc++ {
					if r.Norm(field, doc) != snap.Norm(field, doc) {
						t.Errorf("%s norm of doc %d differs", field, doc)
					}
				}
			}

			p, err := r.Postings(search.NewTerm("body", "fox"), true)
			if err != nil {
				t.Fatal(err)
			}
			if p.NextDoc() != 0 || p.Freq() != 2 {
				t.Fatalf("doc %d freq %d", p.DocID(), p.Freq())
			}
			if pos := p.NextPosition(); pos != 3 || p.StartOffset() != 16 || p.EndOffset() != 19 {
				t.Errorf("first fox at %d [%d,%d)", pos, p.StartOffset(), p.EndOffset())
			}
			if p.NextDoc() != 2 || p.Freq() != 50 {
				t.Errorf("doc %d freq %d", p.DocID(), p.Freq())
			}
			if p.NextDoc() != search.NoMoreDocs {
				t.Errorf("postings not exhausted at %d", p.DocID())
			}
		})
	}
}

func TestSegmentMissingTerm(t *testing.T) {
	r, err := OpenReader(writeSegment(t, CompressionZstd, buildSnapshot(t)))
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	if pl, err := r.Search(search.NewTerm("body", "cat")); err != nil || pl != nil {
		t.Errorf("Search(cat) = %v, %v", pl, err)
	}
	if p, err := r.Postings(search.NewTerm("unmapped", "fox"), false); err != nil || p != nil {
		t.Errorf("Postings(unmapped) = %v, %v", p, err)
	}
	if df, _ := r.TermStats(search.NewTerm("body", "cat")); df != 0 {
		t.Errorf("df(cat) = %d", df)
	}
}

func TestSegmentChecksumMismatch(t *testing.T) {
	path := writeSegment(t, CompressionNone, buildSnapshot(t))
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	h := decodeHeader(data[:HeaderSize])
	data[h.DictOffset+2] ^= 0xff
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := OpenReader(path); err == nil || !strings.Contains(err.Error(), "checksum") {
		t.Errorf("err = %v, want checksum mismatch", err)
	}
}

func TestSegmentBadMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junk"+Extension)
	if err := os.WriteFile(path, bytes.Repeat([]byte{0x42}, HeaderSize+FooterSize), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := OpenReader(path); err == nil || !strings.Contains(err.Error(), "magic") {
		t.Errorf("err = %v, want bad magic", err)
	}
}

func TestBlockCodecs(t *testing.T) {
	compressible := bytes.Repeat([]byte("posting "), 256)
	tiny := []byte{7}
	for _, c := range []Compression{CompressionNone, CompressionLZ4, CompressionZstd} {
		for _, data := range [][]byte{compressible, tiny} {
			block, err := encodeBlock(data, c)
			if err != nil {
				t.Fatalf("%s: %v", c, err)
			}
			if len(data) == 1 && Compression(block[0]) != CompressionNone {
				t.Errorf("%s: incompressible block tagged %s", c, Compression(block[0]))
			}
			out, err := decodeBlock(block, len(data))
			if err != nil {
				t.Fatalf("%s: %v", c, err)
			}
			if !bytes.Equal(out, data) {
				t.Errorf("%s: block round trip changed data", c)
			}
		}
	}
	if _, err := decodeBlock([]byte{9, 1}, 1); err == nil {
		t.Error("unknown codec tag accepted")
	}
}

func TestParseCompression(t *testing.T) {
	for name, want := range map[string]Compression{"": CompressionZstd, "zstd": CompressionZstd, "lz4": CompressionLZ4, "none": CompressionNone} {
		got, err := ParseCompression(name)
		if err != nil || got != want {
			t.Errorf("ParseCompression(%q) = %s, %v", name, got, err)
		}
	}
	if _, err := ParseCompression("snappy"); err == nil {
		t.Error("snappy accepted")
	}
}
