// Package ingestion defines the request and response types of the document
// ingestion endpoint.
package ingestion

// IngestRequest is the JSON body accepted by POST /api/v1/documents. An
// empty ID is replaced with a generated one.
type IngestRequest struct {
	ID     string            `json:"id"`
	Fields map[string]string `json:"fields"`
}

// IngestResponse is returned once the document is queued for indexing.
type IngestResponse struct {
	DocumentID string `json:"document_id"`
	Status     string `json:"status"`
	ShardID    int    `json:"shard_id"`
}
