package analysis

import (
	"strings"
	"unicode"

	"github.com/clipperhouse/uax29/v2/words"
	"golang.org/x/text/unicode/norm"
)

const maxTokenLength = 255

// StandardTokenizer segments text on Unicode word boundaries (UAX #29),
// drops punctuation and whitespace segments, and NFKC-normalizes and
// lower-cases the remaining words.
func StandardTokenizer(text string) []Token {
	segments := words.FromString(text)
	var tokens []Token
	offset := 0
	for segments.Next() {
		seg := segments.Value()
		start := offset
		offset += len(seg)
		if len(seg) > maxTokenLength || !isWordSegment(seg) {
			continue
		}
		tokens = append(tokens, Token{
			Term:              []byte(strings.ToLower(norm.NFKC.String(seg))),
			Type:              segmentType(seg),
			PositionIncrement: 1,
			StartOffset:       start,
			EndOffset:         offset,
		})
	}
	return tokens
}

// KeywordTokenizer emits the whole value as a single token.
func KeywordTokenizer(text string) []Token {
	if text == "" {
		return nil
	}
	return []Token{{
		Term:              []byte(text),
		Type:              TypeWord,
		PositionIncrement: 1,
		StartOffset:       0,
		EndOffset:         len(text),
	}}
}

func isWordSegment(seg string) bool {
	for _, r := range seg {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

func segmentType(seg string) string {
	for _, r := range seg {
		if !unicode.IsDigit(r) && r != '.' && r != ',' {
			return TypeAlphanum
		}
	}
	return TypeNum
}

// NewStandard returns the "standard" analyzer.
func NewStandard() Analyzer {
	return standard()
}

func standard() *chainAnalyzer {
	return &chainAnalyzer{name: "standard", tokenize: StandardTokenizer}
}

// NewKeyword returns the "keyword" analyzer.
func NewKeyword() Analyzer {
	return &chainAnalyzer{name: "keyword", tokenize: KeywordTokenizer}
}
