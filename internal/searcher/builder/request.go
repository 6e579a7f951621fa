package builder

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/Adithya-Monish-Kumar-K/multistep-search/internal/search"
	"github.com/Adithya-Monish-Kumar-K/multistep-search/internal/similarity"
	apperrors "github.com/Adithya-Monish-Kumar-K/multistep-search/pkg/errors"
)

// Request type names as they appear in a query body.
const (
	MultistepName = "multistep_score"
	TermName      = "custom_similarity_term"
)

// Env is what requests need to become queries. DefaultBase, when set, is
// the stepwise base of multistep requests that do not give one.
type Env struct {
	Context     QueryContext
	Resolver    *similarity.Resolver
	Observer    Observer
	DefaultBase float64
}

// Request is a decoded query request.
type Request interface {
	// Name is the request's query name (the "_name" field), if any.
	Name() string
	ToQuery(env Env) (search.Query, error)
}

// MultistepRequest is the "multistep_score" request.
type MultistepRequest struct {
	Field          string
	Query          string
	Analyzer       string
	Base           *float64
	ZeroTermsQuery ZeroTermsQuery
	Boost          float32
	QueryName      string
}

func NewMultistepRequest(field, text string) *MultistepRequest {
	return &MultistepRequest{Field: field, Query: text, Boost: 1}
}

func (r *MultistepRequest) Name() string { return r.QueryName }

func (r *MultistepRequest) Validate() error {
	if r.Field == "" {
		return apperrors.Configf(apperrors.ErrInvalidInput, "[%s] requires fieldName", MultistepName)
	}
	if r.Base != nil && !(*r.Base > 1) {
		return apperrors.Configf(apperrors.ErrInvalidParameter,
			"[%s] requires base to be greater than 1, but got %v", MultistepName, *r.Base)
	}
	return nil
}

// ToQuery validates the request against the context and builds the query.
// The result is nil only for ZeroTermsNull with text that analyzes to no
// tokens.
func (r *MultistepRequest) ToQuery(env Env) (search.Query, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	b := NewMultistep(env.Context)
	if env.Observer != nil {
		b.SetObserver(env.Observer)
	}
	if r.Analyzer != "" {
		if err := b.SetAnalyzer(r.Analyzer); err != nil {
			return nil, apperrors.Configf(apperrors.ErrAnalyzerNotFound,
				"[%s] analyzer [%s] not found", MultistepName, r.Analyzer)
		}
	}
	switch {
	case r.Base != nil:
		if err := b.SetBase(*r.Base); err != nil {
			return nil, err
		}
	case env.DefaultBase != 0:
		if err := b.SetBase(env.DefaultBase); err != nil {
			return nil, err
		}
	}
	b.SetZeroTermsQuery(r.ZeroTermsQuery)

	q, err := b.Parse(r.Field, r.Query)
	if err != nil {
		return nil, err
	}
	return withBoost(q, r.Boost), nil
}

// TermRequest is the "custom_similarity_term" request: an exact term scored
// with the model named by Similarity, or the ambient model when empty.
type TermRequest struct {
	Field      string
	Value      string
	Similarity string
	Boost      float32
	QueryName  string
}

func (r *TermRequest) Name() string { return r.QueryName }

func (r *TermRequest) ToQuery(env Env) (search.Query, error) {
	if r.Field == "" {
		return nil, apperrors.Configf(apperrors.ErrInvalidInput, "[%s] requires fieldName", TermName)
	}
	term := search.NewTerm(r.Field, r.Value)
	if r.Similarity == "" {
		return withBoost(search.NewTermQuery(term), r.Boost), nil
	}
	resolver := env.Resolver
	if resolver == nil {
		resolver = similarity.NewResolver()
	}
	model, err := resolver.Resolve(r.Similarity)
	if err != nil {
		return nil, fmt.Errorf("[%s] resolving similarity: %w", TermName, err)
	}
	return withBoost(search.NewTermQueryWithModel(term, model), r.Boost), nil
}

func withBoost(q search.Query, boost float32) search.Query {
	if q == nil || boost == 1 {
		return q
	}
	return search.NewBoostQuery(q, boost)
}

// DecodeRequest parses a query body such as
//
//	{"multistep_score": {"title": {"query": "quick fox", "base": 2}}}
//	{"custom_similarity_term": {"title": "fox"}}
//
// Unknown parameters and malformed values are configuration errors.
func DecodeRequest(data []byte) (Request, error) {
	outer, err := decodeObject(data)
	if err != nil {
		return nil, apperrors.Configf(apperrors.ErrInvalidInput, "malformed query: %v", err)
	}
	if len(outer) != 1 {
		return nil, apperrors.Configf(apperrors.ErrInvalidInput,
			"query must hold exactly one of [%s] or [%s]", MultistepName, TermName)
	}
	kind := sortedKeys(outer)[0]
	switch kind {
	case MultistepName:
		return decodeMultistep(outer[kind])
	case TermName:
		return decodeTerm(outer[kind])
	default:
		return nil, apperrors.Configf(apperrors.ErrUnsupportedField, "unknown query [%s]", kind)
	}
}

func decodeMultistep(data []byte) (*MultistepRequest, error) {
	field, body, err := singleField(MultistepName, data)
	if err != nil {
		return nil, err
	}
	r := NewMultistepRequest(field, "")
	var hasQuery bool
	if body.short != nil {
		r.Query, hasQuery = *body.short, true
	}
	for _, key := range sortedKeys(body.params) {
		raw := body.params[key]
		switch key {
		case "query":
			text, ok, err := scalarText(MultistepName, key, raw)
			if err != nil {
				return nil, err
			}
			r.Query, hasQuery = text, ok
		case "analyzer":
			if r.Analyzer, err = stringParam(MultistepName, key, raw); err != nil {
				return nil, err
			}
		case "base":
			base, err := floatParam(MultistepName, key, raw)
			if err != nil {
				return nil, err
			}
			r.Base = &base
		case "boost":
			if r.Boost, err = boostParam(MultistepName, raw); err != nil {
				return nil, err
			}
		case "zero_terms_query":
			s, err := stringParam(MultistepName, key, raw)
			if err != nil {
				return nil, err
			}
			if r.ZeroTermsQuery, err = ParseZeroTermsQuery(s); err != nil {
				return nil, err
			}
		case "_name":
			if r.QueryName, err = stringParam(MultistepName, key, raw); err != nil {
				return nil, err
			}
		default:
			return nil, apperrors.Configf(apperrors.ErrUnsupportedField,
				"[%s] query does not support [%s]", MultistepName, key)
		}
	}
	if !hasQuery {
		return nil, apperrors.Configf(apperrors.ErrInvalidInput, "No text specified for text query")
	}
	return r, nil
}

func decodeTerm(data []byte) (*TermRequest, error) {
	field, body, err := singleField(TermName, data)
	if err != nil {
		return nil, err
	}
	r := &TermRequest{Field: field, Boost: 1}
	var hasValue bool
	if body.short != nil {
		r.Value, hasValue = *body.short, true
	}
	for _, key := range sortedKeys(body.params) {
		raw := body.params[key]
		switch key {
		case "query", "value":
			text, ok, err := scalarText(TermName, key, raw)
			if err != nil {
				return nil, err
			}
			r.Value, hasValue = text, ok
		case "similarity":
			if r.Similarity, err = stringParam(TermName, key, raw); err != nil {
				return nil, err
			}
		case "boost":
			if r.Boost, err = boostParam(TermName, raw); err != nil {
				return nil, err
			}
		case "_name":
			if r.QueryName, err = stringParam(TermName, key, raw); err != nil {
				return nil, err
			}
		default:
			return nil, apperrors.Configf(apperrors.ErrUnsupportedField,
				"[%s] query does not support [%s]", TermName, key)
		}
	}
	if !hasValue {
		return nil, apperrors.Configf(apperrors.ErrInvalidInput, "[%s] requires query value", TermName)
	}
	return r, nil
}

// fieldBody is either the short form {"field": "text"} or the long form
// {"field": {params}}.
type fieldBody struct {
	short  *string
	params map[string]json.RawMessage
}

func singleField(kind string, data []byte) (string, fieldBody, error) {
	obj, err := decodeObject(data)
	if err != nil {
		return "", fieldBody{}, apperrors.Configf(apperrors.ErrInvalidInput, "[%s] malformed query: %v", kind, err)
	}
	if len(obj) == 0 {
		return "", fieldBody{}, apperrors.Configf(apperrors.ErrInvalidInput, "[%s] requires fieldName", kind)
	}
	if len(obj) > 1 {
		keys := sortedKeys(obj)
		return "", fieldBody{}, apperrors.Configf(apperrors.ErrInvalidInput,
			"[%s] query doesn't support multiple fields, found [%s] and [%s]", kind, keys[0], keys[1])
	}
	field := sortedKeys(obj)[0]
	raw := obj[field]
	if isObject(raw) {
		params, err := decodeObject(raw)
		if err != nil {
			return "", fieldBody{}, apperrors.Configf(apperrors.ErrInvalidInput, "[%s] malformed query: %v", kind, err)
		}
		return field, fieldBody{params: params}, nil
	}
	text, ok, err := scalarText(kind, field, raw)
	if err != nil {
		return "", fieldBody{}, err
	}
	if !ok {
		return field, fieldBody{}, nil
	}
	return field, fieldBody{short: &text}, nil
}

func decodeObject(data []byte) (map[string]json.RawMessage, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, fmt.Errorf("expected an object")
	}
	return obj, nil
}

func isObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '{'
}

// scalarText renders a string, number or boolean as query text. ok is false
// for null.
func scalarText(kind, key string, raw json.RawMessage) (string, bool, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return "", false, apperrors.Configf(apperrors.ErrInvalidInput, "[%s] malformed [%s]: %v", kind, key, err)
	}
	switch t := v.(type) {
	case nil:
		return "", false, nil
	case string:
		return t, true, nil
	case json.Number:
		return t.String(), true, nil
	case bool:
		return strconv.FormatBool(t), true, nil
	default:
		return "", false, apperrors.Configf(apperrors.ErrInvalidInput,
			"[%s] unknown token after [%s], expected a value", kind, key)
	}
}

func stringParam(kind, key string, raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", apperrors.Configf(apperrors.ErrInvalidInput, "[%s] [%s] must be a string", kind, key)
	}
	return s, nil
}

// floatParam accepts numbers and numeric strings. NaN and infinities are
// rejected.
func floatParam(kind, key string, raw json.RawMessage) (float64, error) {
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, apperrors.Configf(apperrors.ErrInvalidParameter, "[%s] [%s] must be a number", kind, key)
		}
		if f, err = strconv.ParseFloat(s, 64); err != nil {
			return 0, apperrors.Configf(apperrors.ErrInvalidParameter, "[%s] [%s] must be a number", kind, key)
		}
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, apperrors.Configf(apperrors.ErrInvalidParameter, "[%s] [%s] must be a finite number, got %v", kind, key, f)
	}
	return f, nil
}

func boostParam(kind string, raw json.RawMessage) (float32, error) {
	f, err := floatParam(kind, "boost", raw)
	if err != nil {
		return 0, err
	}
	if f < 0 || f > math.MaxFloat32 {
		return 0, apperrors.Configf(apperrors.ErrInvalidParameter, "[%s] [boost] must be between 0 and %v, got %v", kind, math.MaxFloat32, f)
	}
	return float32(f), nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
