// Package handler exposes search over HTTP: the query DSL on POST, the
// simple AND/OR/NOT syntax on GET, explanations, counts and the result
// cache.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/multistep-search/internal/search"
	"github.com/Adithya-Monish-Kumar-K/multistep-search/internal/searcher/builder"
	"github.com/Adithya-Monish-Kumar-K/multistep-search/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/multistep-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/multistep-search/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/multistep-search/internal/similarity"
	apperrors "github.com/Adithya-Monish-Kumar-K/multistep-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/multistep-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/multistep-search/pkg/metrics"
)

const maxBodyBytes = 1 << 20

type SearchExecutor interface {
	Execute(ctx context.Context, q search.Query, limit int, opts executor.Options) (*executor.SearchResult, error)
	Count(ctx context.Context, q search.Query) (int, error)
	Explain(ctx context.Context, q search.Query, id string, model similarity.Model) (*similarity.Explanation, error)
}

// Config holds the handler's limits. Metrics may be nil.
type Config struct {
	DefaultField string
	DefaultLimit int
	MaxResults   int
	Metrics      *metrics.Metrics
}

type Handler struct {
	executor SearchExecutor
	cache    *cache.QueryCache
	env      builder.Env
	cfg      Config
	logger   *slog.Logger
}

// New creates a Handler. queryCache may be nil to disable result caching.
func New(exec SearchExecutor, queryCache *cache.QueryCache, env builder.Env, cfg Config) *Handler {
	if env.Resolver == nil {
		env.Resolver = similarity.NewResolver()
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 10
	}
	if cfg.MaxResults < cfg.DefaultLimit {
		cfg.MaxResults = cfg.DefaultLimit
	}
	return &Handler{
		executor: exec,
		cache:    queryCache,
		env:      env,
		cfg:      cfg,
		logger:   slog.Default().With("component", "search-handler"),
	}
}

// Register mounts every endpoint on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("POST /api/v1/search", h.SearchDSL)
	mux.HandleFunc("POST /api/v1/count", h.Count)
	mux.HandleFunc("POST /api/v1/explain", h.Explain)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
}

// SearchRequest is the body of POST /api/v1/search and /api/v1/count.
type SearchRequest struct {
	Query      json.RawMessage `json:"query"`
	Size       *int            `json:"size,omitempty"`
	Explain    bool            `json:"explain,omitempty"`
	Matches    bool            `json:"matches,omitempty"`
	Similarity string          `json:"similarity,omitempty"`
}

// ExplainRequest is the body of POST /api/v1/explain.
type ExplainRequest struct {
	Query      json.RawMessage `json:"query"`
	ID         string          `json:"id"`
	Similarity string          `json:"similarity,omitempty"`
}

// Search handles GET /api/v1/search?q=...&field=...&similarity=...&limit=...
// The similarity selector applies to every term of q.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	params := r.URL.Query()

	query := params.Get("q")
	if query == "" {
		h.writeError(w, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}
	limit, err := h.limit(params.Get("limit"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	field := params.Get("field")
	if field == "" {
		field = h.cfg.DefaultField
	}
	selector := params.Get("similarity")
	var model similarity.Model
	if selector != "" {
		if model, err = h.env.Resolver.Resolve(selector); err != nil {
			h.fail(ctx, w, "resolving similarity", err)
			return
		}
	}
	plan, err := parser.New(h.env.Context, field, model).Parse(query)
	if err != nil {
		h.fail(ctx, w, "parsing query", err)
		return
	}
	opts := executor.Options{Explain: params.Get("explain") == "true"}
	key := cache.Key(search.Canonical(plan.Query), strconv.Itoa(limit), strconv.FormatBool(opts.Explain))
	h.run(w, r, start, key, plan.Query, limit, opts)
}

// SearchDSL handles POST /api/v1/search. The optional top-level similarity
// replaces the ambient model for the whole request.
func (h *Handler) SearchDSL(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	var req SearchRequest
	if err := h.decode(w, r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit := h.cfg.DefaultLimit
	if req.Size != nil {
		var err error
		if limit, err = h.limit(strconv.Itoa(*req.Size)); err != nil {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	q, name, err := h.buildQuery(req.Query)
	if err != nil {
		h.fail(ctx, w, "building query", err)
		return
	}
	opts := executor.Options{Explain: req.Explain, Matches: req.Matches, Name: name}
	ambient := ""
	if req.Similarity != "" {
		if opts.Model, err = h.env.Resolver.Resolve(req.Similarity); err != nil {
			h.fail(ctx, w, "resolving similarity", err)
			return
		}
		ambient = opts.Model.Descriptor().String()
	}
	key := cache.Key(search.Canonical(q), ambient, name, strconv.Itoa(limit),
		strconv.FormatBool(opts.Explain), strconv.FormatBool(opts.Matches))
	h.run(w, r, start, key, q, limit, opts)
}

func (h *Handler) run(w http.ResponseWriter, r *http.Request, start time.Time, key string, q search.Query, limit int, opts executor.Options) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	var (
		result   *executor.SearchResult
		err      error
		cacheHit bool
	)
	if h.cache != nil {
		result, cacheHit, err = h.cache.GetOrCompute(ctx, key, func() (*executor.SearchResult, error) {
			return h.executor.Execute(ctx, q, limit, opts)
		})
	} else {
		result, err = h.executor.Execute(ctx, q, limit, opts)
	}
	if err != nil {
		h.cfg.Metrics.SearchFailed()
		h.fail(ctx, w, "search execution failed", err)
		return
	}

	cacheStatus := "miss"
	if cacheHit {
		cacheStatus = "hit"
	}
	latency := time.Since(start)
	h.cfg.Metrics.ObserveSearch(cacheStatus, latency.Seconds(), len(result.Results))
	log.Info("search completed",
		"query", result.Query,
		"similarity", result.Similarity,
		"total_hits", result.TotalHits,
		"returned", len(result.Results),
		"cache_hit", cacheHit,
		"latency_ms", latency.Milliseconds(),
	)
	h.writeJSON(w, http.StatusOK, result)
}

// Count handles POST /api/v1/count.
func (h *Handler) Count(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req SearchRequest
	if err := h.decode(w, r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	q, _, err := h.buildQuery(req.Query)
	if err != nil {
		h.fail(ctx, w, "building query", err)
		return
	}
	n, err := h.executor.Count(ctx, q)
	if err != nil {
		h.fail(ctx, w, "count failed", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"query": q.String(), "count": n})
}

// Explain handles POST /api/v1/explain.
func (h *Handler) Explain(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req ExplainRequest
	if err := h.decode(w, r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.ID == "" {
		h.writeError(w, http.StatusBadRequest, "field 'id' is required")
		return
	}
	q, name, err := h.buildQuery(req.Query)
	if err != nil {
		h.fail(ctx, w, "building query", err)
		return
	}
	var model similarity.Model
	if req.Similarity != "" {
		if model, err = h.env.Resolver.Resolve(req.Similarity); err != nil {
			h.fail(ctx, w, "resolving similarity", err)
			return
		}
	}
	expl, err := h.executor.Explain(ctx, q, req.ID, model)
	if err != nil {
		h.fail(ctx, w, "explain failed", err)
		return
	}
	body := map[string]any{
		"id":          req.ID,
		"query":       q.String(),
		"matched":     expl.IsMatch,
		"explanation": expl,
	}
	if expl.IsMatch && name != "" {
		body["matched_queries"] = []string{name}
	}
	h.writeJSON(w, http.StatusOK, body)
}

// buildQuery decodes a query body into a query and its "_name".
func (h *Handler) buildQuery(raw json.RawMessage) (search.Query, string, error) {
	if len(raw) == 0 {
		return nil, "", apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "field 'query' is required")
	}
	req, err := builder.DecodeRequest(raw)
	if err != nil {
		return nil, "", err
	}
	q, err := req.ToQuery(h.env)
	if err != nil {
		return nil, "", err
	}
	if q == nil {
		q = search.NewMatchNoDocsQuery(builder.NoTermsReason)
	}
	return q, req.Name(), nil
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}

	stats := h.cache.Stats()
	var hitRate float64
	if total := stats.Hits + stats.Misses; total > 0 {
		hitRate = float64(stats.Hits) / float64(total)
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":       stats.Hits,
		"misses":     stats.Misses,
		"generation": stats.Generation,
		"hit_rate":   hitRate,
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}

	if err := h.cache.Invalidate(r.Context()); err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

func (h *Handler) limit(raw string) (int, error) {
	if raw == "" {
		return h.cfg.DefaultLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, errors.New("limit must be a positive integer")
	}
	return min(n, h.cfg.MaxResults), nil
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// fail maps err to a status. Client errors carry their message; server
// errors are logged and reported generically.
func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, what string, err error) {
	status := apperrors.HTTPStatusCode(err)
	message := err.Error()
	if status >= http.StatusInternalServerError {
		logger.FromContext(ctx).Error(what, "error", err)
		message = what
	} else {
		logger.FromContext(ctx).Debug(what, "status", status, "error", err)
	}
	h.writeJSON(w, status, map[string]string{"error": message, "code": apperrors.Code(err)})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
