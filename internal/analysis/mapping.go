package analysis

import (
	"sort"

	"github.com/Adithya-Monish-Kumar-K/multistep-search/internal/similarity"
	"github.com/Adithya-Monish-Kumar-K/multistep-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/multistep-search/pkg/errors"
)

// FieldType describes how a mapped field is indexed and searched.
type FieldType struct {
	Name           string
	Analyzer       string
	SearchAnalyzer string
	IndexOptions   similarity.IndexOptions
}

// Mapping resolves field types and their analyzers.
type Mapping struct {
	defaultField string
	fields       map[string]FieldType
	registry     *Registry
}

// NewMapping checks that every configured analyzer exists in the registry.
func NewMapping(cfg config.MappingConfig, registry *Registry) (*Mapping, error) {
	m := &Mapping{
		defaultField: cfg.DefaultField,
		fields:       make(map[string]FieldType, len(cfg.Fields)),
		registry:     registry,
	}
	for name, fc := range cfg.Fields {
		ft := FieldType{
			Name:           name,
			Analyzer:       fc.Analyzer,
			SearchAnalyzer: fc.SearchAnalyzer,
			IndexOptions:   similarity.ParseIndexOptions(fc.IndexOptions),
		}
		if ft.Analyzer == "" {
			ft.Analyzer = "standard"
		}
		if ft.SearchAnalyzer == "" {
			ft.SearchAnalyzer = ft.Analyzer
		}
		for _, a := range []string{ft.Analyzer, ft.SearchAnalyzer} {
			if _, err := registry.Get(a); err != nil {
				return nil, apperrors.Configf(apperrors.ErrAnalyzerNotFound,
					"field [%s]: analyzer [%s] not found", name, a)
			}
		}
		m.fields[name] = ft
	}
	return m, nil
}

func (m *Mapping) DefaultField() string { return m.defaultField }

func (m *Mapping) FieldMapping(field string) (FieldType, bool) {
	ft, ok := m.fields[field]
	return ft, ok
}

// Fields returns the mapped field names in sorted order.
func (m *Mapping) Fields() []string {
	names := make([]string, 0, len(m.fields))
	for name := range m.fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (m *Mapping) Analyzer(name string) (Analyzer, error) {
	return m.registry.Get(name)
}

func (m *Mapping) IndexAnalyzer(ft FieldType) (Analyzer, error) {
	return m.registry.Get(ft.Analyzer)
}

func (m *Mapping) SearchAnalyzer(ft FieldType) (Analyzer, error) {
	return m.registry.Get(ft.SearchAnalyzer)
}
