package transport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEncodeParams(t *testing.T) {
	tests := []struct {
		name     string
		params   Params
		expected map[string][]string
	}{
		{
			name:     "string scalar",
			params:   Params{"where[0][value]": "paid"},
			expected: map[string][]string{"where[0][value]": {"paid"}},
		},
		{
			name:     "nil is written as null",
			params:   Params{"where[0][value]": nil},
			expected: map[string][]string{"where[0][value]": {"null"}},
		},
		{
			name:     "integers and zero",
			params:   Params{"limit": 0, "offset": 20},
			expected: map[string][]string{"limit": {"0"}, "offset": {"20"}},
		},
		{
			name:     "floats and bools",
			params:   Params{"a": 1.5, "b": true},
			expected: map[string][]string{"a": {"1.5"}, "b": {"true"}},
		},
		{
			name:     "any slice is repeated with brackets",
			params:   Params{"where[0][value]": []any{"a", 2, nil}},
			expected: map[string][]string{"where[0][value][]": {"a", "2", "null"}},
		},
		{
			name:     "typed slice",
			params:   Params{"ids": []int{1, 2}},
			expected: map[string][]string{"ids[]": {"1", "2"}},
		},
		{
			name:     "time",
			params:   Params{"start": time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)},
			expected: map[string][]string{"start": {"2024-01-02T03:04:05Z"}},
		},
		{
			name:     "map values are JSON",
			params:   Params{"meta": map[string]any{"k": "v"}},
			expected: map[string][]string{"meta": {`{"k":"v"}`}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			values := EncodeParams(tt.params)
			assert.Equal(t, len(tt.expected), len(values))
			for key, want := range tt.expected {
				assert.Equal(t, want, values[key], "key %s", key)
			}
		})
	}
}

func TestDecodeResponse(t *testing.T) {
	t.Run("envelope with meta", func(t *testing.T) {
		resp, err := decodeResponse([]byte(`{"data":[{"id":1}],"meta":{"total":7}}`))
		assert.NoError(t, err)
		assert.JSONEq(t, `[{"id":1}]`, string(resp.Data))
		assert.Equal(t, float64(7), resp.Meta["total"])
	})

	t.Run("object without data key is taken whole", func(t *testing.T) {
		resp, err := decodeResponse([]byte(`{"deleted":true}`))
		assert.NoError(t, err)
		assert.JSONEq(t, `{"deleted":true}`, string(resp.Data))
		assert.Nil(t, resp.Meta)
	})

	t.Run("bare array", func(t *testing.T) {
		resp, err := decodeResponse([]byte(`[1,2]`))
		assert.NoError(t, err)
		assert.JSONEq(t, `[1,2]`, string(resp.Data))
	})

	t.Run("empty body", func(t *testing.T) {
		resp, err := decodeResponse(nil)
		assert.NoError(t, err)
		assert.Empty(t, resp.Data)
	})

	t.Run("invalid JSON", func(t *testing.T) {
		_, err := decodeResponse([]byte(`{"data":`))
		assert.Error(t, err)
	})
}

func TestDecodeError(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		code    string
		message string
	}{
		{"flat", 400, `{"code":"BAD_FILTER","message":"unknown field"}`, "BAD_FILTER", "unknown field"},
		{"string error", 403, `{"error":"forbidden table"}`, "", "forbidden table"},
		{"nested error", 409, `{"error":{"code":"CONFLICT","message":"duplicate key"}}`, "CONFLICT", "duplicate key"},
		{"not JSON", 502, `<html>bad gateway</html>`, "", "Bad Gateway"},
		{"empty", 404, ``, "", "Not Found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := decodeError(tt.status, []byte(tt.body), "req-1")
			assert.Equal(t, tt.status, e.StatusCode)
			assert.Equal(t, tt.code, e.Code)
			assert.Equal(t, tt.message, e.Message)
			assert.Equal(t, "req-1", e.RequestID)
		})
	}
}

func TestFormatScalar(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected string
	}{
		{"integral float from json", float64(1234567), "1234567"},
		{"large integral float", float64(98765432101), "98765432101"},
		{"fractional float", 12.5, "12.5"},
		{"int", 42, "42"},
		{"string", "o-1", "o-1"},
		{"bool", true, "true"},
		{"nil", nil, "null"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FormatScalar(tt.input))
		})
	}
}
