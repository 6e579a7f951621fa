package similarity

import (
	"math"
	"math/bits"
)

// IndexOptions describes how much per-document information a field's
// postings carry.
type IndexOptions uint8

const (
	IndexDocs IndexOptions = iota
	IndexDocsAndFreqs
	IndexDocsAndFreqsAndPositions
	IndexDocsAndFreqsAndPositionsAndOffsets
)

func (o IndexOptions) String() string {
	switch o {
	case IndexDocs:
		return "docs"
	case IndexDocsAndFreqs:
		return "freqs"
	case IndexDocsAndFreqsAndPositions:
		return "positions"
	case IndexDocsAndFreqsAndPositionsAndOffsets:
		return "offsets"
	default:
		return "unknown"
	}
}

// HasPositions reports whether postings record token positions.
func (o IndexOptions) HasPositions() bool {
	return o >= IndexDocsAndFreqsAndPositions
}

// ParseIndexOptions maps the config spelling of an index option. Unknown
// values fall back to offsets, the richest option.
func ParseIndexOptions(s string) IndexOptions {
	switch s {
	case "docs":
		return IndexDocs
	case "freqs":
		return IndexDocsAndFreqs
	case "positions":
		return IndexDocsAndFreqsAndPositions
	default:
		return IndexDocsAndFreqsAndPositionsAndOffsets
	}
}

// FieldInvertState is the per-document, per-field accumulator the indexer
// fills while consuming a token stream.
type FieldInvertState struct {
	Field           string
	IndexOptions    IndexOptions
	Length          int
	NumOverlap      int
	UniqueTermCount int
}

const (
	numFreeValues = 24
	// MaxExactNorm is the largest norm byte whose decoded length is exact.
	MaxExactNorm = 39
)

var lengthTable [256]float32

func init() {
	for i := range lengthTable {
		lengthTable[i] = float32(byte4ToInt(byte(i)))
	}
}

// EncodeNorm quantizes a field length into a single byte: 24 exact values
// followed by a float-like encoding with a 3-bit mantissa.
func EncodeNorm(numTerms int) byte {
	if numTerms < 0 {
		numTerms = 0
	}
	if numTerms > math.MaxInt32 {
		numTerms = math.MaxInt32
	}
	if numTerms < numFreeValues {
		return byte(numTerms)
	}
	return byte(numFreeValues + longToInt4(uint64(numTerms-numFreeValues)))
}

// DecodeNorm returns the approximate field length a norm byte stands for.
func DecodeNorm(b byte) float32 {
	return lengthTable[b]
}

// ComputeNorm derives the norm byte for one field of one document. Fields
// indexed without frequencies use their unique term count; otherwise the
// token count, minus same-position tokens when discountOverlaps is set.
func ComputeNorm(state FieldInvertState, discountOverlaps bool) byte {
	var numTerms int
	switch {
	case state.IndexOptions == IndexDocs:
		numTerms = state.UniqueTermCount
	case discountOverlaps:
		numTerms = state.Length - state.NumOverlap
	default:
		numTerms = state.Length
	}
	return EncodeNorm(numTerms)
}

func longToInt4(i uint64) int {
	numBits := bits.Len64(i)
	if numBits < 4 {
		return int(i)
	}
	shift := numBits - 4
	encoded := int(i>>shift) & 0x07
	return encoded | (shift+1)<<3
}

func int4ToLong(i int) int64 {
	mantissa := int64(i & 0x07)
	shift := (i >> 3) - 1
	if shift == -1 {
		return mantissa
	}
	return (mantissa | 0x08) << shift
}

func byte4ToInt(b byte) int64 {
	i := int(b)
	if i < numFreeValues {
		return int64(i)
	}
	return numFreeValues + int4ToLong(i-numFreeValues)
}
