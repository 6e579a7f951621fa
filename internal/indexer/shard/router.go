// Package shard spreads documents over a fixed number of indexer engines,
// one per data sub-directory, and presents their leaves as one index.
package shard

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/multistep-search/internal/analysis"
	"github.com/Adithya-Monish-Kumar-K/multistep-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/multistep-search/internal/search"
	"github.com/Adithya-Monish-Kumar-K/multistep-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/multistep-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/multistep-search/pkg/metrics"
)

// Router owns the shard engines. The shard set is fixed at construction,
// so lookups need no locking.
type Router struct {
	engines   []*indexer.Engine
	closeOnce sync.Once
	closeErr  error
	logger    *slog.Logger
}

// Dir is the data directory of shard id under base.
func Dir(base string, id int) string {
	return filepath.Join(base, fmt.Sprintf("shard-%d", id))
}

// NewRouter opens cfg.NumShards engines. Engines opened before a failure
// are closed again.
func NewRouter(cfg config.IndexerConfig, mapping *analysis.Mapping, discountOverlaps bool) (*Router, error) {
	if cfg.NumShards <= 0 {
		return nil, fmt.Errorf("number of shards must be positive, got %d", cfg.NumShards)
	}
	r := &Router{
		engines: make([]*indexer.Engine, 0, cfg.NumShards),
		logger:  slog.Default().With("component", "shard-router"),
	}
	for id := 0; id < cfg.NumShards; id++ {
		shardCfg := cfg
		shardCfg.DataDir = Dir(cfg.DataDir, id)
		engine, err := indexer.NewEngine(shardCfg, mapping, discountOverlaps)
		if err != nil {
			return nil, errors.Join(fmt.Errorf("opening shard %d: %w", id, err), r.Close())
		}
		r.engines = append(r.engines, engine)
		r.logger.Debug("shard opened", "shard_id", id, "data_dir", shardCfg.DataDir, "docs", engine.DocCount())
	}
	r.logger.Info("shard router ready", "num_shards", cfg.NumShards)
	return r, nil
}

// For maps a document id onto one of numShards shards. Ingestion and
// indexing must agree on it, so it only depends on the id.
func For(docID string, numShards int) int {
	return int(xxhash.Sum64String(docID) % uint64(numShards))
}

func (r *Router) ShardFor(docID string) int {
	return For(docID, len(r.engines))
}

func (r *Router) NumShards() int {
	return len(r.engines)
}

// Route returns the engine of shardID.
func (r *Router) Route(shardID int) (*indexer.Engine, error) {
	if shardID < 0 || shardID >= len(r.engines) {
		return nil, apperrors.Configf(apperrors.ErrInvalidInput,
			"shard %d does not exist, router has %d shards", shardID, len(r.engines))
	}
	return r.engines[shardID], nil
}

// Engines returns the engines indexed by shard id.
func (r *Router) Engines() []*indexer.Engine {
	return append([]*indexer.Engine(nil), r.engines...)
}

// Leaves lists every shard's leaves in shard order, so document ordinals in
// a Searcher built from them are global across shards.
func (r *Router) Leaves() []search.LeafReader {
	var leaves []search.LeafReader
	for _, engine := range r.engines {
		leaves = append(leaves, engine.Leaves()...)
	}
	return leaves
}

// Stats counts searchable leaves and indexed documents over all shards.
func (r *Router) Stats() (leaves, docs int) {
	for _, engine := range r.engines {
		leaves += len(engine.Leaves())
		docs += engine.DocCount()
	}
	return leaves, docs
}

// SetMetrics makes every engine count its flushes towards m.
func (r *Router) SetMetrics(m *metrics.Metrics) {
	for _, engine := range r.engines {
		engine.SetMetrics(m)
	}
}

// Report publishes per-shard document counts and the open segment total.
func (r *Router) Report(m *metrics.Metrics) {
	segments := 0
	for id, engine := range r.engines {
		m.ObserveShard(id, engine.DocCount())
		segments += engine.SegmentCount()
	}
	m.SetActiveSegments(segments)
}

// FlushAll flushes the shards in parallel and joins their errors.
func (r *Router) FlushAll() error {
	return r.each("flush", (*indexer.Engine).Flush)
}

// ReloadAll re-scans every shard directory for segments another process
// flushed and returns how many were added.
func (r *Router) ReloadAll() int {
	total := 0
	for _, engine := range r.engines {
		total += engine.ReloadSegments()
	}
	return total
}

// Close flushes and closes every engine. Later calls return the first
// result.
func (r *Router) Close() error {
	r.closeOnce.Do(func() {
		r.closeErr = r.each("close", (*indexer.Engine).Close)
	})
	return r.closeErr
}

func (r *Router) each(op string, fn func(*indexer.Engine) error) error {
	errs := make([]error, len(r.engines))
	var g errgroup.Group
	for id, engine := range r.engines {
		g.Go(func() error {
			if err := fn(engine); err != nil {
				r.logger.Error(op+" failed", "shard_id", id, "error", err)
				errs[id] = fmt.Errorf("%s shard %d: %w", op, id, err)
			}
			return nil
		})
	}
	g.Wait()
	return errors.Join(errs...)
}
