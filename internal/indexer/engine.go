package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/multistep-search/internal/analysis"
	"github.com/Adithya-Monish-Kumar-K/multistep-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/multistep-search/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/multistep-search/internal/search"
	"github.com/Adithya-Monish-Kumar-K/multistep-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/multistep-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/multistep-search/pkg/metrics"
)

// Engine indexes documents of one shard. New documents are buffered in a
// memory index and flushed into immutable segments. A flush detaches the
// buffer first, so writes continue into a fresh one while the segment is
// written; the detached buffer stays searchable until its segment opens.
type Engine struct {
	memIndex *index.MemoryIndex
	flushing *index.MemoryIndex // guarded by readerMu
	writer   *segment.Writer
	mapping  *analysis.Mapping
	readers  []*segment.Reader
	loaded   map[string]bool
	seen     map[string]bool
	readerMu sync.RWMutex
	flushMu  sync.Mutex
	cfg      config.IndexerConfig
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

func NewEngine(cfg config.IndexerConfig, mapping *analysis.Mapping, discountOverlaps bool) (*Engine, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("creating index data directory: %w", err)
	}
	compression, err := segment.ParseCompression(cfg.Compression)
	if err != nil {
		return nil, err
	}
	e := &Engine{
		memIndex: index.NewMemoryIndex(filepath.Base(cfg.DataDir), discountOverlaps),
		writer:   segment.NewWriter(cfg.DataDir, compression),
		mapping:  mapping,
		loaded:   make(map[string]bool),
		seen:     make(map[string]bool),
		cfg:      cfg,
		logger:   slog.Default().With("component", "indexer", "data_dir", cfg.DataDir),
	}
	if err := e.loadExistingSegments(); err != nil {
		return nil, fmt.Errorf("loading existing segments: %w", err)
	}
	return e, nil
}

// Analyze runs each mapped field through its index analyzer. Unmapped
// fields are skipped.
func (e *Engine) Analyze(fields map[string]string) ([]index.AnalyzedField, error) {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]index.AnalyzedField, 0, len(names))
	for _, name := range names {
		ft, ok := e.mapping.FieldMapping(name)
		if !ok {
			e.logger.Debug("skipping unmapped field", "field", name)
			continue
		}
		a, err := e.mapping.IndexAnalyzer(ft)
		if err != nil {
			return nil, err
		}
		tokens, err := analysis.Drain(a.TokenStream(name, fields[name]))
		if err != nil {
			return nil, fmt.Errorf("%w: analyzing field [%s]: %w", apperrors.ErrAnalysis, name, err)
		}
		out = append(out, index.AnalyzedField{Name: name, Options: ft.IndexOptions, Tokens: tokens})
	}
	return out, nil
}

// IndexDocument analyzes and buffers a document. Re-indexing an id the
// shard already holds is rejected.
func (e *Engine) IndexDocument(docID string, fields map[string]string) error {
	analyzed, err := e.Analyze(fields)
	if err != nil {
		return err
	}

	e.readerMu.Lock()
	if e.seen[docID] {
		e.readerMu.Unlock()
		return apperrors.Newf(apperrors.ErrDocumentExists, http.StatusConflict, "document %s already indexed", docID)
	}
	e.seen[docID] = true
	e.readerMu.Unlock()

	ord := e.memIndex.AddDocument(docID, analyzed)
	e.logger.Debug("document indexed in memory",
		"doc_id", docID,
		"ordinal", ord,
		"fields", len(analyzed),
		"mem_size", e.memIndex.Size(),
	)
	if e.memIndex.Size() >= e.cfg.SegmentMaxSize {
		e.logger.Info("memory index reached max size, flushing to disk",
			"size", e.memIndex.Size(),
			"threshold", e.cfg.SegmentMaxSize,
		)
		if err := e.Flush(); err != nil {
			return fmt.Errorf("flushing memory index: %w", err)
		}
	}
	return nil
}

// SetMetrics makes flushes count towards m. A nil m disables counting.
func (e *Engine) SetMetrics(m *metrics.Metrics) {
	e.flushMu.Lock()
	defer e.flushMu.Unlock()
	e.metrics = m
}

// Flush writes the buffered documents to a new segment and opens it. A
// buffer whose flush failed is retried before any newer documents.
func (e *Engine) Flush() error {
	e.flushMu.Lock()
	defer e.flushMu.Unlock()

	e.readerMu.Lock()
	if e.flushing == nil && e.memIndex.DocCount() > 0 {
		e.flushing = e.memIndex.Detach()
	}
	pending := e.flushing
	e.readerMu.Unlock()
	if pending == nil {
		return nil
	}

	segmentName, err := e.writer.Write(pending.Reader())
	if err != nil {
		e.metrics.Flushed(err)
		return fmt.Errorf("writing segment: %w", err)
	}
	path := filepath.Join(e.cfg.DataDir, segmentName)
	reader, err := segment.OpenReader(path)
	if err != nil {
		e.metrics.Flushed(err)
		if rmErr := os.Remove(path); rmErr != nil {
			e.logger.Error("removing unreadable segment", "segment", segmentName, "error", rmErr)
		}
		return fmt.Errorf("opening new segment for reading: %w", err)
	}
	e.metrics.Flushed(nil)
	e.readerMu.Lock()
	e.readers = append(e.readers, reader)
	e.loaded[segmentName] = true
	e.flushing = nil
	active := len(e.readers)
	e.readerMu.Unlock()
	e.logger.Info("segment flushed",
		"segment", segmentName,
		"terms", reader.Terms(),
		"docs", reader.DocCount(),
		"compression", reader.Compression(),
		"active_segments", active,
	)
	return nil
}

// Leaves returns the open segments followed by snapshots of the buffer
// being flushed and of the memory index, when they hold documents.
func (e *Engine) Leaves() []search.LeafReader {
	e.readerMu.RLock()
	defer e.readerMu.RUnlock()
	leaves := make([]search.LeafReader, 0, len(e.readers)+2)
	for _, r := range e.readers {
		leaves = append(leaves, r)
	}
	if e.flushing != nil {
		leaves = append(leaves, e.flushing.Reader())
	}
	if snap := e.memIndex.Reader(); snap.MaxDoc() > 0 {
		leaves = append(leaves, snap)
	}
	return leaves
}

// DocCount is the number of documents across segments and memory.
func (e *Engine) DocCount() int {
	e.readerMu.RLock()
	defer e.readerMu.RUnlock()
	return len(e.seen)
}

func (e *Engine) SegmentCount() int {
	e.readerMu.RLock()
	defer e.readerMu.RUnlock()
	return len(e.readers)
}

func (e *Engine) StartFlushLoop(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.FlushInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				e.logger.Info("flush loop stopping, performing final flush")
				if err := e.Flush(); err != nil {
					e.logger.Error("final flush failed", "error", err)
				}
				return
			case <-ticker.C:
				if err := e.Flush(); err != nil {
					e.logger.Error("periodic flush failed", "error", err)
				}
			}
		}
	}()
}

// ReloadSegments opens segments written by another process since the last
// scan and returns how many were added.
func (e *Engine) ReloadSegments() int {
	names, err := e.segmentFiles()
	if err != nil {
		e.logger.Error("scanning for segments", "error", err)
		return 0
	}
	added := 0
	for _, name := range names {
		e.readerMu.RLock()
		known := e.loaded[name]
		e.readerMu.RUnlock()
		if known {
			continue
		}
		if err := e.open(name); err != nil {
			e.logger.Error("failed to open segment, skipping", "segment", name, "error", err)
			continue
		}
		added++
	}
	if added > 0 {
		e.logger.Info("reloaded segments", "added", added)
	}
	return added
}

func (e *Engine) Close() error {
	if err := e.Flush(); err != nil {
		e.logger.Error("final flush on close failed", "error", err)
	}
	e.readerMu.Lock()
	defer e.readerMu.Unlock()
	for _, reader := range e.readers {
		if err := reader.Close(); err != nil {
			e.logger.Error("closing segment reader", "error", err)
		}
	}
	e.readers = nil
	e.loaded = make(map[string]bool)
	return nil
}

func (e *Engine) segmentFiles() ([]string, error) {
	entries, err := os.ReadDir(e.cfg.DataDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading data directory: %w", err)
	}
	names := make([]string, 0)
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), segment.Extension) {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func (e *Engine) open(name string) error {
	reader, err := segment.OpenReader(filepath.Join(e.cfg.DataDir, name))
	if err != nil {
		return err
	}
	e.readerMu.Lock()
	defer e.readerMu.Unlock()
	e.readers = append(e.readers, reader)
	e.loaded[name] = true
	for _, id := range reader.DocIDs() {
		e.seen[id] = true
	}
	return nil
}

func (e *Engine) loadExistingSegments() error {
	names, err := e.segmentFiles()
	if err != nil {
		return err
	}
	for _, name := range names {
		if err := e.open(name); err != nil {
			e.logger.Error("failed to open segment, skipping",
				"segment", name,
				"error", err,
			)
			continue
		}
		e.logger.Info("loaded existing segment", "segment", name)
	}
	e.logger.Info("segment recovery complete", "segments_loaded", len(e.readers))
	return nil
}
