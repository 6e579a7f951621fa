// Package executor runs search queries over the leaves of every shard with
// collection-wide statistics.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/multistep-search/internal/search"
	"github.com/Adithya-Monish-Kumar-K/multistep-search/internal/similarity"
	apperrors "github.com/Adithya-Monish-Kumar-K/multistep-search/pkg/errors"
)

// LeafSource supplies the current leaves. *shard.Router and
// *indexer.Engine both satisfy it.
type LeafSource interface {
	Leaves() []search.LeafReader
}

// Hit is one search result.
type Hit struct {
	ID          string                  `json:"id"`
	Score       float32                 `json:"score"`
	Explanation *similarity.Explanation `json:"explanation,omitempty"`
	Matches     []search.Span           `json:"matches,omitempty"`

	// MatchedQueries holds the request's query name when it has one.
	MatchedQueries []string `json:"matched_queries,omitempty"`
}

// SearchResult is one page of hits. Similarity names the models that scored
// the query's clauses, joined with "; " when clauses were rebound to
// different models.
type SearchResult struct {
	Query      string `json:"query"`
	Similarity string `json:"similarity"`
	TotalHits  int    `json:"total_hits"`
	Results    []Hit  `json:"results"`
}

// Options select per-hit extras. Model, when set, replaces the ambient
// model for one search. Name is reported on every hit as a matched query.
type Options struct {
	Explain bool
	Matches bool
	Model   similarity.Model
	Name    string
}

type Executor struct {
	source   LeafSource
	model    similarity.Model
	cache    *search.QueryCache
	observer search.Observer
	timeout  time.Duration
	logger   *slog.Logger
}

type Option func(*Executor)

// WithQueryCache shares a doc-set cache across searches. Leaf ids change
// whenever a memory snapshot or segment changes, so stale entries are only
// evicted, never served.
func WithQueryCache(c *search.QueryCache) Option {
	return func(e *Executor) { e.cache = c }
}

func WithObserver(o search.Observer) Option {
	return func(e *Executor) { e.observer = o }
}

// WithTimeout bounds every search. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(e *Executor) { e.timeout = d }
}

// New creates an executor scoring with model unless a clause asks for
// another one.
func New(source LeafSource, model similarity.Model, opts ...Option) *Executor {
	e := &Executor{
		source: source,
		model:  model,
		logger: slog.Default().With("component", "query-executor"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Model is the ambient similarity model.
func (e *Executor) Model() similarity.Model { return e.model }

// Searcher returns a searcher over the leaves as they are now, scoring
// with model or the ambient model when model is nil.
func (e *Executor) Searcher(model similarity.Model) *search.Searcher {
	if model == nil {
		model = e.model
	}
	opts := []search.SearcherOption{search.WithModel(model)}
	if e.cache != nil {
		opts = append(opts, search.WithQueryCache(e.cache))
	}
	if e.observer != nil {
		opts = append(opts, search.WithSearchObserver(e.observer))
	}
	return search.NewSearcher(e.source.Leaves(), opts...)
}

func (e *Executor) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, e.timeout)
}

// Execute returns the limit best hits for q.
func (e *Executor) Execute(ctx context.Context, q search.Query, limit int, opts Options) (*SearchResult, error) {
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	s := e.Searcher(opts.Model)
	top, err := s.Search(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("executing %s: %w", q, err)
	}
	result := &SearchResult{
		Query:      q.String(),
		Similarity: scoringModels(q, s.Similarity()),
		TotalHits:  top.TotalHits,
		Results:    make([]Hit, 0, len(top.ScoreDocs)),
	}
	for _, sd := range top.ScoreDocs {
		id, err := s.ExternalID(sd.Doc)
		if err != nil {
			return nil, err
		}
		hit := Hit{ID: id, Score: sd.Score}
		if opts.Name != "" {
			hit.MatchedQueries = []string{opts.Name}
		}
		if opts.Explain {
			if hit.Explanation, err = s.Explain(q, sd.Doc); err != nil {
				return nil, fmt.Errorf("explaining %s: %w", id, err)
			}
		}
		if opts.Matches {
			if hit.Matches, err = s.Matches(q, sd.Doc); err != nil {
				return nil, fmt.Errorf("collecting matches of %s: %w", id, err)
			}
		}
		result.Results = append(result.Results, hit)
	}
	e.logger.Info("query executed",
		"query", result.Query,
		"leaves", len(s.Leaves()),
		"total_hits", result.TotalHits,
		"results", len(result.Results),
		"took", time.Since(start),
	)
	return result, nil
}

func scoringModels(q search.Query, ambient similarity.Model) string {
	models := search.ScoringModels(q, ambient)
	if len(models) == 0 {
		return ambient.String()
	}
	names := make([]string, len(models))
	for i, m := range models {
		names[i] = m.String()
	}
	return strings.Join(names, "; ")
}

// Count returns how many documents match q.
func (e *Executor) Count(ctx context.Context, q search.Query) (int, error) {
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()
	n, err := e.Searcher(nil).Count(ctx, q)
	if err != nil {
		return 0, fmt.Errorf("counting %s: %w", q, err)
	}
	return n, nil
}

// Explain describes how q scores the document indexed under id. model may
// be nil.
func (e *Executor) Explain(ctx context.Context, q search.Query, id string, model similarity.Model) (*similarity.Explanation, error) {
	s := e.Searcher(model)
	doc, err := findDoc(ctx, s, id)
	if err != nil {
		return nil, err
	}
	return s.Explain(q, doc)
}

// findDoc scans the leaves for an external id. The newest copy wins.
func findDoc(ctx context.Context, s *search.Searcher, id string) (int, error) {
	leaves := s.Leaves()
	for i := len(leaves) - 1; i >= 0; i-- {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		leaf := leaves[i]
		for doc := leaf.Reader.MaxDoc() - 1; doc >= 0; doc-- {
			if leaf.Reader.ExternalID(doc) == id {
				return leaf.DocBase + doc, nil
			}
		}
	}
	return 0, apperrors.Newf(apperrors.ErrDocumentNotFound, http.StatusNotFound, "document %s not found", id)
}
