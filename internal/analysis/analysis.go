// Package analysis turns field text into token streams. Analyzers are a
// tokenizer followed by a chain of token filters; the Registry resolves
// them by name for indexing and query construction.
package analysis

import "fmt"

// Token types.
const (
	TypeAlphanum = "<ALPHANUM>"
	TypeNum      = "<NUM>"
	TypeWord     = "word"
	TypeSynonym  = "SYNONYM"
)

// Token is one analyzed term. A PositionIncrement of 0 places the token at
// the same position as the previous one. Offsets are byte offsets into the
// analyzed text.
type Token struct {
	Term              []byte
	Type              string
	PositionIncrement int
	StartOffset       int
	EndOffset         int
}

func (t Token) String() string {
	return fmt.Sprintf("%s[%s,+%d,%d-%d]", t.Term, t.Type, t.PositionIncrement, t.StartOffset, t.EndOffset)
}

// TokenStream iterates over the tokens of one analyzed value.
type TokenStream interface {
	Next() bool
	Token() Token
	Err() error
	Close() error
}

// Analyzer produces token streams for field values.
type Analyzer interface {
	Name() string
	TokenStream(field, text string) TokenStream
}

// Drain consumes a stream completely and closes it. On error no tokens are
// returned.
func Drain(ts TokenStream) ([]Token, error) {
	var tokens []Token
	for ts.Next() {
		tokens = append(tokens, ts.Token())
	}
	err := ts.Err()
	if cerr := ts.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, err
	}
	return tokens, nil
}

type sliceStream struct {
	tokens []Token
	pos    int
	err    error
}

// NewSliceStream returns a stream over pre-built tokens.
func NewSliceStream(tokens []Token) TokenStream {
	return &sliceStream{tokens: tokens, pos: -1}
}

// NewErrorStream returns a stream that yields nothing and reports err.
func NewErrorStream(err error) TokenStream {
	return &sliceStream{pos: -1, err: err}
}

func (s *sliceStream) Next() bool {
	if s.err != nil || s.pos+1 >= len(s.tokens) {
		return false
	}
	s.pos++
	return true
}

func (s *sliceStream) Token() Token {
	if s.pos < 0 || s.pos >= len(s.tokens) {
		return Token{}
	}
	return s.tokens[s.pos]
}

func (s *sliceStream) Err() error { return s.err }

func (s *sliceStream) Close() error {
	s.tokens = nil
	return nil
}

// TokenFilter rewrites a token sequence.
type TokenFilter interface {
	Filter(tokens []Token) ([]Token, error)
}

// TokenFilterFunc adapts a function to TokenFilter.
type TokenFilterFunc func(tokens []Token) ([]Token, error)

func (f TokenFilterFunc) Filter(tokens []Token) ([]Token, error) { return f(tokens) }

// Tokenizer splits raw text into tokens.
type Tokenizer func(text string) []Token

type chainAnalyzer struct {
	name     string
	tokenize Tokenizer
	filters  []TokenFilter
}

// New builds an analyzer from a tokenizer and filters applied in order.
func New(name string, tokenize Tokenizer, filters ...TokenFilter) Analyzer {
	return &chainAnalyzer{name: name, tokenize: tokenize, filters: filters}
}

func (a *chainAnalyzer) Name() string { return a.name }

func (a *chainAnalyzer) TokenStream(field, text string) TokenStream {
	tokens := a.tokenize(text)
	for _, f := range a.filters {
		var err error
		tokens, err = f.Filter(tokens)
		if err != nil {
			return NewErrorStream(fmt.Errorf("analyzer [%s] on field [%s]: %w", a.name, field, err))
		}
	}
	return NewSliceStream(tokens)
}

// extend returns a copy of a with extra filters inserted before and after
// its own chain.
func (a *chainAnalyzer) extend(name string, before, after []TokenFilter) *chainAnalyzer {
	filters := make([]TokenFilter, 0, len(before)+len(a.filters)+len(after))
	filters = append(filters, before...)
	filters = append(filters, a.filters...)
	filters = append(filters, after...)
	return &chainAnalyzer{name: name, tokenize: a.tokenize, filters: filters}
}
