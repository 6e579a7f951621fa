package analysis

import (
	"fmt"
	"strings"
)

var englishStopWords = []string{
	"a", "an", "and", "are", "as", "at",
	"be", "by", "for", "from", "has", "he",
	"in", "is", "it", "its", "of", "on",
	"or", "that", "the", "to", "was", "were",
	"will", "with", "this", "but", "they",
	"have", "had", "what", "when", "where",
	"who", "which", "their", "if", "each",
	"do", "not", "no", "so", "can",
}

// NewEnglish returns the "english" analyzer: standard tokenization, stop
// word removal and suffix stemming.
func NewEnglish() Analyzer {
	return english()
}

func english() *chainAnalyzer {
	return &chainAnalyzer{
		name:     "english",
		tokenize: StandardTokenizer,
		filters:  []TokenFilter{NewStopFilter(englishStopWords), StemFilter()},
	}
}

// NewStopFilter drops the given words. The position increments of removed
// tokens carry over to the next kept token so phrase positions survive.
func NewStopFilter(stopWords []string) TokenFilter {
	set := make(map[string]struct{}, len(stopWords))
	for _, w := range stopWords {
		set[strings.ToLower(w)] = struct{}{}
	}
	return TokenFilterFunc(func(tokens []Token) ([]Token, error) {
		out := tokens[:0:0]
		skipped := 0
		for _, tok := range tokens {
			if _, stop := set[string(tok.Term)]; stop {
				skipped += tok.PositionIncrement
				continue
			}
			tok.PositionIncrement += skipped
			skipped = 0
			out = append(out, tok)
		}
		return out, nil
	})
}

// StemFilter applies the suffix stemmer to every token.
func StemFilter() TokenFilter {
	return TokenFilterFunc(func(tokens []Token) ([]Token, error) {
		out := make([]Token, 0, len(tokens))
		for _, tok := range tokens {
			stemmed := stem(string(tok.Term))
			if stemmed == "" {
				continue
			}
			tok.Term = []byte(stemmed)
			out = append(out, tok)
		}
		return out, nil
	})
}

// LimitFilter fails analysis of values producing more than max tokens.
func LimitFilter(max int) TokenFilter {
	return TokenFilterFunc(func(tokens []Token) ([]Token, error) {
		if len(tokens) > max {
			return nil, fmt.Errorf("token count %d exceeds the limit of %d", len(tokens), max)
		}
		return tokens, nil
	})
}

var stemRules = []struct {
	suffix      string
	replacement string
	minLen      int
}{
	{"ational", "ate", 2},
	{"tional", "tion", 2},
	{"encies", "ence", 2},
	{"ances", "ance", 2},
	{"ments", "ment", 2},
	{"izing", "ize", 2},
	{"ating", "ate", 2},
	{"iness", "y", 2},
	{"ously", "ous", 2},
	{"ively", "ive", 2},
	{"eness", "ene", 2},
	{"tion", "t", 3},
	{"sion", "s", 3},
	{"ying", "y", 2},
	{"ling", "l", 3},
	{"ies", "y", 2},
	{"ing", "", 3},
	{"ers", "er", 2},
	{"est", "", 3},
	{"ful", "", 3},
	{"ous", "", 3},
	{"ess", "", 3},
	{"ble", "", 3},
	{"ed", "", 3},
	{"er", "", 3},
	{"ly", "", 3},
	{"es", "", 3},
	{"ss", "ss", 2},
	{"s", "", 3},
}

func stem(word string) string {
	for _, rule := range stemRules {
		if strings.HasSuffix(word, rule.suffix) {
			newWord := word[:len(word)-len(rule.suffix)] + rule.replacement
			if len(newWord) >= rule.minLen {
				return newWord
			}
		}
	}
	return word
}
