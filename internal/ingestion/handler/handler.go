// Package handler serves the document ingestion API: single and bulk
// ingestion plus status lookups.
package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/Adithya-Monish-Kumar-K/multistep-search/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/multistep-search/internal/ingestion/validator"
	apperrors "github.com/Adithya-Monish-Kumar-K/multistep-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/multistep-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/multistep-search/pkg/postgres"
)

const (
	maxBodyBytes     = 8 << 20
	maxBulkBodyBytes = 64 << 20
	// maxBulkLineBytes leaves room for a document at the per-field cap plus
	// its JSON framing.
	maxBulkLineBytes = 2 << 20
)

// Ingester is satisfied by *publisher.Publisher.
type Ingester interface {
	Ingest(ctx context.Context, req *ingestion.IngestRequest) (*ingestion.IngestResponse, error)
}

// StatusReader is satisfied by *postgres.Client.
type StatusReader interface {
	Status(ctx context.Context, docID string) (*postgres.DocumentStatus, error)
	StatusCounts(ctx context.Context) (map[string]int64, error)
}

type Handler struct {
	ingester Ingester
	fields   validator.FieldSet
	statuses StatusReader
	logger   *slog.Logger
}

// New builds the handler. statuses may be nil, which disables the status
// routes.
func New(ingester Ingester, fields validator.FieldSet, statuses StatusReader) *Handler {
	return &Handler{
		ingester: ingester,
		fields:   fields,
		statuses: statuses,
		logger:   slog.Default().With("component", "ingestion-handler"),
	}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/documents", h.Ingest)
	mux.HandleFunc("POST /api/v1/documents/_bulk", h.Bulk)
	mux.HandleFunc("GET /api/v1/documents/_stats", h.Stats)
	mux.HandleFunc("GET /api/v1/documents/{id}", h.Status)
}

// Ingest accepts one JSON document and answers 202 once it is queued.
func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	var req ingestion.IngestRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		h.writeError(w, apperrors.Configf(apperrors.ErrInvalidInput, "invalid JSON body: %v", err))
		return
	}
	resp, err := h.ingest(r.Context(), &req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusAccepted, resp)
}

func (h *Handler) ingest(ctx context.Context, req *ingestion.IngestRequest) (*ingestion.IngestResponse, error) {
	if err := validator.ValidateIngestRequest(req, h.fields); err != nil {
		return nil, err
	}
	resp, err := h.ingester.Ingest(ctx, req)
	if err != nil {
		logger.FromContext(ctx).Error("ingestion failed", "doc_id", req.ID, "error", err)
		return nil, err
	}
	logger.FromContext(ctx).Debug("document queued", "doc_id", resp.DocumentID, "shard_id", resp.ShardID)
	return resp, nil
}

// BulkItem is the outcome of one line of a bulk request.
type BulkItem struct {
	Line       int               `json:"line"`
	DocumentID string            `json:"document_id,omitempty"`
	ShardID    *int              `json:"shard_id,omitempty"`
	Status     string            `json:"status,omitempty"`
	Error      string            `json:"error,omitempty"`
	Fields     map[string]string `json:"fields,omitempty"`
}

// BulkResponse mirrors the request line by line. Errors is true when any
// item failed.
type BulkResponse struct {
	Errors bool       `json:"errors"`
	Items  []BulkItem `json:"items"`
}

// Bulk accepts newline-delimited JSON documents. Every line is handled on
// its own, so one bad document does not reject its neighbours. A publish
// outage stops the batch: the remaining lines are reported as not attempted.
func (h *Handler) Bulk(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sc := bufio.NewScanner(http.MaxBytesReader(w, r.Body, maxBulkBodyBytes))
	sc.Buffer(make([]byte, 0, 64<<10), maxBulkLineBytes)

	var resp BulkResponse
	var halted error
	line := 0
	for sc.Scan() {
		line++
		raw := sc.Bytes()
		if len(raw) == 0 {
			continue
		}
		item := BulkItem{Line: line}
		if halted != nil {
			item.Error = "not attempted: " + halted.Error()
			resp.Errors = true
			resp.Items = append(resp.Items, item)
			continue
		}
		var req ingestion.IngestRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			item.Error = fmt.Sprintf("invalid JSON: %v", err)
		} else if out, err := h.ingest(ctx, &req); err != nil {
			item.DocumentID = req.ID
			item.Error = err.Error()
			var verr *validator.ValidationError
			if errors.As(err, &verr) {
				item.Fields = verr.Fields
			} else if apperrors.HTTPStatusCode(err) >= http.StatusInternalServerError {
				halted = err
			}
		} else {
			item.DocumentID, item.Status = out.DocumentID, out.Status
			item.ShardID = &out.ShardID
		}
		resp.Errors = resp.Errors || item.Error != ""
		resp.Items = append(resp.Items, item)
	}
	if err := sc.Err(); err != nil {
		h.writeError(w, apperrors.Configf(apperrors.ErrInvalidInput, "reading bulk body after line %d: %v", line, err))
		return
	}
	if len(resp.Items) == 0 {
		h.writeError(w, apperrors.Configf(apperrors.ErrInvalidInput, "bulk body holds no documents"))
		return
	}
	h.logger.Info("bulk request handled", "items", len(resp.Items), "errors", resp.Errors)
	h.writeJSON(w, http.StatusOK, resp)
}

// Status reports where a document is in the pipeline.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	if h.statuses == nil {
		h.writeError(w, apperrors.New(apperrors.ErrShardUnavailable, http.StatusServiceUnavailable, "status tracking is disabled"))
		return
	}
	st, err := h.statuses.Status(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, st)
}

// Stats reports document counts per status.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	if h.statuses == nil {
		h.writeError(w, apperrors.New(apperrors.ErrShardUnavailable, http.StatusServiceUnavailable, "status tracking is disabled"))
		return
	}
	counts, err := h.statuses.StatusCounts(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"statuses": counts})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

// writeError renders err with its status. Validation errors carry their
// per-field messages; server-side failures hide their cause.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	body := map[string]any{"code": apperrors.Code(err)}
	status := apperrors.HTTPStatusCode(err)
	var verr *validator.ValidationError
	switch {
	case errors.As(err, &verr):
		status = http.StatusBadRequest
		body["code"] = "validation_failed"
		body["error"] = "validation failed"
		body["fields"] = verr.Fields
	case status >= http.StatusInternalServerError:
		body["error"] = http.StatusText(status)
	default:
		body["error"] = err.Error()
	}
	h.writeJSON(w, status, body)
}
