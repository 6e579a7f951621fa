package analysis

import (
	"sort"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/multistep-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/multistep-search/pkg/errors"
)

// Registry resolves analyzers by name.
type Registry struct {
	mu        sync.RWMutex
	analyzers map[string]Analyzer
}

// NewRegistry returns a registry holding the built-in analyzers.
func NewRegistry() *Registry {
	r := &Registry{analyzers: make(map[string]Analyzer)}
	r.Register(NewStandard())
	r.Register(NewEnglish())
	r.Register(NewKeyword())
	return r
}

// NewRegistryFromConfig adds the configured custom analyzers to the
// built-in ones. Each custom analyzer extends a built-in base with optional
// synonyms, extra stop words and a token count limit.
func NewRegistryFromConfig(cfg config.AnalysisConfig) (*Registry, error) {
	r := NewRegistry()
	names := make([]string, 0, len(cfg.Analyzers))
	for name := range cfg.Analyzers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		a, err := buildCustom(name, cfg.Analyzers[name])
		if err != nil {
			return nil, err
		}
		r.Register(a)
	}
	return r, nil
}

func buildCustom(name string, cfg config.AnalyzerConfig) (Analyzer, error) {
	var base *chainAnalyzer
	switch cfg.Base {
	case "", "standard":
		base = standard()
	case "english":
		base = english()
	case "keyword":
		base = &chainAnalyzer{name: "keyword", tokenize: KeywordTokenizer}
	default:
		return nil, apperrors.Configf(apperrors.ErrAnalyzerNotFound,
			"analyzer [%s]: base analyzer [%s] not found", name, cfg.Base)
	}

	var before, after []TokenFilter
	if len(cfg.Synonyms) > 0 {
		syn, err := ParseSynonyms(cfg.Synonyms)
		if err != nil {
			return nil, apperrors.Configf(apperrors.ErrInvalidParameter, "analyzer [%s]: %v", name, err)
		}
		before = append(before, syn)
	}
	if len(cfg.StopWords) > 0 {
		after = append(after, NewStopFilter(cfg.StopWords))
	}
	if cfg.MaxTokenCount > 0 {
		after = append(after, LimitFilter(cfg.MaxTokenCount))
	}
	return base.extend(name, before, after), nil
}

func (r *Registry) Register(a Analyzer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.analyzers[a.Name()] = a
}

// Get returns the named analyzer or an ErrAnalyzerNotFound configuration
// error.
func (r *Registry) Get(name string) (Analyzer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.analyzers[name]
	if !ok {
		return nil, apperrors.Configf(apperrors.ErrAnalyzerNotFound, "analyzer [%s] not found", name)
	}
	return a, nil
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.analyzers))
	for name := range r.analyzers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
