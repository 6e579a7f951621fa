// Package app wires configuration into the analysis, similarity and index
// components shared by the indexer and searcher binaries.
package app

import (
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/multistep-search/internal/analysis"
	"github.com/Adithya-Monish-Kumar-K/multistep-search/internal/similarity"
	"github.com/Adithya-Monish-Kumar-K/multistep-search/pkg/config"
)

// Mapping builds the analyzer registry and field mapping.
func Mapping(cfg *config.Config) (*analysis.Mapping, error) {
	registry, err := analysis.NewRegistryFromConfig(cfg.Analysis)
	if err != nil {
		return nil, fmt.Errorf("building analyzers: %w", err)
	}
	mapping, err := analysis.NewMapping(cfg.Mapping, registry)
	if err != nil {
		return nil, fmt.Errorf("building field mapping: %w", err)
	}
	return mapping, nil
}

// Resolver builds the selector resolver and the ambient model.
func Resolver(cfg config.SimilarityConfig, observer similarity.Observer) (*similarity.Resolver, similarity.Model, error) {
	bm25, err := similarity.NewBM25(cfg.BM25.K1, cfg.BM25.B)
	if err != nil {
		return nil, nil, fmt.Errorf("configuring bm25: %w", err)
	}
	var tunableOpts []similarity.TunableOption
	if cfg.Tunable.ApplyTermFrequency {
		tunableOpts = append(tunableOpts, similarity.WithTermFrequency())
	}
	tunable, err := similarity.NewTunableBM25(cfg.Tunable.K1, cfg.Tunable.B, tunableOpts...)
	if err != nil {
		return nil, nil, fmt.Errorf("configuring tunable bm25: %w", err)
	}
	opts := []similarity.ResolverOption{
		similarity.WithFallback(bm25),
		similarity.WithTunable(tunable),
	}
	if observer != nil {
		opts = append(opts, similarity.WithObserver(observer))
	}
	resolver := similarity.NewResolver(opts...)

	ambient := resolver.Default()
	if cfg.Default != "" {
		if ambient, err = resolver.Resolve(cfg.Default); err != nil {
			return nil, nil, fmt.Errorf("resolving default similarity: %w", err)
		}
	}
	return resolver, ambient, nil
}
