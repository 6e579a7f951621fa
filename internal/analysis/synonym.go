package analysis

import (
	"fmt"
	"strings"
)

// SynonymFilter injects alternative forms of a token at the same position.
// Injected tokens are typed TypeSynonym and share the original's offsets.
type SynonymFilter struct {
	mappings map[string][]string
}

// ParseSynonyms reads rules in the usual line format:
//
//	quick, fast, speedy     equivalent terms, each expands to the others
//	tv, telly => television  left-hand terms expand to the right-hand ones
//
// Only single-word terms are supported.
func ParseSynonyms(rules []string) (*SynonymFilter, error) {
	f := &SynonymFilter{mappings: make(map[string][]string)}
	for i, rule := range rules {
		rule = strings.TrimSpace(rule)
		if rule == "" || strings.HasPrefix(rule, "#") {
			continue
		}
		lhs, rhs, explicit := strings.Cut(rule, "=>")
		from, err := synonymTerms(lhs)
		if err != nil {
			return nil, fmt.Errorf("synonym rule %d: %w", i+1, err)
		}
		if !explicit {
			for _, term := range from {
				f.add(term, from)
			}
			continue
		}
		to, err := synonymTerms(rhs)
		if err != nil {
			return nil, fmt.Errorf("synonym rule %d: %w", i+1, err)
		}
		for _, term := range from {
			f.add(term, to)
		}
	}
	return f, nil
}

func synonymTerms(s string) ([]string, error) {
	var terms []string
	for _, part := range strings.Split(s, ",") {
		term := strings.ToLower(strings.TrimSpace(part))
		if term == "" {
			continue
		}
		if strings.ContainsAny(term, " \t") {
			return nil, fmt.Errorf("multi-word synonym %q is not supported", term)
		}
		terms = append(terms, term)
	}
	if len(terms) == 0 {
		return nil, fmt.Errorf("empty synonym list")
	}
	return terms, nil
}

func (f *SynonymFilter) add(term string, alternatives []string) {
	existing := f.mappings[term]
	for _, alt := range alternatives {
		if alt == term || contains(existing, alt) {
			continue
		}
		existing = append(existing, alt)
	}
	f.mappings[term] = existing
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (f *SynonymFilter) Filter(tokens []Token) ([]Token, error) {
	out := make([]Token, 0, len(tokens))
	for _, tok := range tokens {
		out = append(out, tok)
		for _, alt := range f.mappings[string(tok.Term)] {
			out = append(out, Token{
				Term:              []byte(alt),
				Type:              TypeSynonym,
				PositionIncrement: 0,
				StartOffset:       tok.StartOffset,
				EndOffset:         tok.EndOffset,
			})
		}
	}
	return out, nil
}
