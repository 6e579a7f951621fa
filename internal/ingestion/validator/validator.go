// Package validator checks ingestion requests against the field mapping
// and returns per-field error details.
package validator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/multistep-search/internal/analysis"
	"github.com/Adithya-Monish-Kumar-K/multistep-search/internal/ingestion"
)

const (
	maxIDLength    = 255
	maxFieldLength = 1048576
)

// FieldSet is satisfied by *analysis.Mapping.
type FieldSet interface {
	FieldMapping(field string) (analysis.FieldType, bool)
}

// ValidationError holds per-field validation failure messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for field := range e.Fields {
		names = append(names, field)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, field := range names {
		parts = append(parts, fmt.Sprintf("%s: %s", field, e.Fields[field]))
	}
	return strings.Join(parts, "; ")
}

// ValidateIngestRequest rejects unmapped fields, oversized values and
// documents with no indexable text.
func ValidateIngestRequest(req *ingestion.IngestRequest, fields FieldSet) error {
	errs := make(map[string]string)
	if len(req.ID) > maxIDLength {
		errs["id"] = fmt.Sprintf("id must be at most %d characters", maxIDLength)
	}
	if strings.TrimSpace(req.ID) != req.ID {
		errs["id"] = "id must not have leading or trailing whitespace"
	}

	indexable := 0
	for name, value := range req.Fields {
		if _, ok := fields.FieldMapping(name); !ok {
			errs[name] = "field is not mapped"
			continue
		}
		if len(value) > maxFieldLength {
			errs[name] = fmt.Sprintf("value must be at most %d bytes", maxFieldLength)
			continue
		}
		if strings.TrimSpace(value) != "" {
			indexable++
		}
	}
	if indexable == 0 && len(errs) == 0 {
		errs["fields"] = "at least one mapped field must have a value"
	}
	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}
