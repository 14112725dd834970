package query

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/asaidimu/go-kikapu/utils"
)

// These helpers reshape raw response payloads into the builder's result
// contracts. They never touch the network.

func isEmptyJSON(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// decodeDocuments accepts an array of objects or a single object.
func decodeDocuments(raw json.RawMessage) ([]Document, error) {
	if isEmptyJSON(raw) {
		return []Document{}, nil
	}
	trimmed := bytes.TrimSpace(raw)
	if trimmed[0] == '{' {
		doc, err := decodeDocument(raw)
		if err != nil {
			return nil, err
		}
		return []Document{doc}, nil
	}

	var docs []Document
	if err := json.Unmarshal(trimmed, &docs); err != nil {
		return nil, fmt.Errorf("unexpected list payload: %w", err)
	}
	if docs == nil {
		docs = []Document{}
	}
	return docs, nil
}

// decodeDocument returns nil for an empty or null payload.
func decodeDocument(raw json.RawMessage) (Document, error) {
	if isEmptyJSON(raw) {
		return nil, nil
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("unexpected record payload: %w", err)
	}
	return doc, nil
}

// resultCount prefers meta.total, then meta.count, then n.
func resultCount(meta map[string]any, n int) int {
	for _, key := range []string{"total", "count"} {
		if v, ok := meta[key]; ok {
			if f, ok := ToFloat64(v); ok {
				return int(f)
			}
		}
	}
	return n
}

// normalizeSearch maps {results, total} to a QueryResult. A bare array is
// accepted as the results.
func normalizeSearch(raw json.RawMessage) (*QueryResult, error) {
	if isEmptyJSON(raw) {
		return &QueryResult{Data: []Document{}}, nil
	}
	if bytes.TrimSpace(raw)[0] == '[' {
		docs, err := decodeDocuments(raw)
		if err != nil {
			return nil, err
		}
		return &QueryResult{Data: docs, Count: len(docs)}, nil
	}

	var payload struct {
		Results json.RawMessage `json:"results"`
		Total   any             `json:"total"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("unexpected search payload: %w", err)
	}
	docs, err := decodeDocuments(payload.Results)
	if err != nil {
		return nil, err
	}
	count := len(docs)
	if f, ok := ToFloat64(payload.Total); ok {
		count = int(f)
	}
	return &QueryResult{Data: docs, Count: count}, nil
}

// countValue reads a count that is either a bare number or {"count": n}.
func countValue(raw json.RawMessage) int {
	if isEmptyJSON(raw) {
		return 0
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0
	}
	if obj, ok := v.(map[string]any); ok {
		v = obj["count"]
	}
	f, _ := ToFloat64(v)
	return int(f)
}

// singleDeleteCount maps {"deleted": bool} to 1 or 0.
func singleDeleteCount(raw json.RawMessage) int {
	doc, err := decodeDocument(raw)
	if err != nil || doc == nil {
		return 0
	}
	if deleted, ok := doc["deleted"].(bool); ok && deleted {
		return 1
	}
	return 0
}

// batchDeleteCount reads {"count": n}, falling back to {"deleted": n}.
func batchDeleteCount(raw json.RawMessage) int {
	doc, err := decodeDocument(raw)
	if err != nil || doc == nil {
		return 0
	}
	for _, key := range []string{"count", "deleted"} {
		if f, ok := ToFloat64(doc[key]); ok {
			return int(f)
		}
	}
	return 0
}

// aggregateNumber reads doc[key] as a number, defaulting to 0.
func aggregateNumber(doc Document, key string) float64 {
	f, _ := ToFloat64(doc[key])
	return f
}

// aggregateKey is the response key the backend uses for function over field.
func aggregateKey(function, field string) string {
	return function + "_" + field
}

// Decode converts a document into T using its json tags.
func Decode[T any](doc Document) (T, error) {
	return utils.MapToStruct[T](doc)
}

// DecodeAll converts every document of a result into T.
func DecodeAll[T any](docs []Document) ([]T, error) {
	out := make([]T, 0, len(docs))
	for i, doc := range docs {
		v, err := Decode[T](doc)
		if err != nil {
			return nil, fmt.Errorf("document %d: %w", i, err)
		}
		out = append(out, v)
	}
	return out, nil
}
