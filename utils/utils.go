// Package utils converts between typed records and the loosely typed
// documents exchanged with the backend.
package utils

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// StructToMap converts a struct, or a pointer to one, into a map keyed by its
// json field names. Tags such as omitempty and "-" are honoured, and nested
// structs become nested maps.
//
//	type Order struct {
//		ID     string `json:"id,omitempty"`
//		Status string `json:"status"`
//	}
//	m, _ := StructToMap(Order{Status: "paid"}) // map[status:paid]
func StructToMap[T any](record T) (map[string]any, error) {
	val := reflect.ValueOf(record)
	if !val.IsValid() {
		return nil, fmt.Errorf("StructToMap: record cannot be nil")
	}
	if val.Kind() == reflect.Ptr {
		if val.IsNil() {
			return nil, fmt.Errorf("StructToMap: record cannot be a nil pointer")
		}
		val = val.Elem()
	}
	if val.Kind() != reflect.Struct {
		return nil, fmt.Errorf("StructToMap: record must be a struct or a pointer to a struct, got %s", val.Kind())
	}

	raw, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("StructToMap: failed to marshal record: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("StructToMap: failed to unmarshal record: %w", err)
	}
	return out, nil
}

// MapToStruct is the inverse of StructToMap. T must be a struct or a pointer
// to a struct.
func MapToStruct[T any](input map[string]any) (T, error) {
	var zero T
	if input == nil {
		return zero, fmt.Errorf("MapToStruct: input map cannot be nil")
	}

	typ := reflect.TypeOf(zero)
	if typ != nil && typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}
	if typ == nil || typ.Kind() != reflect.Struct {
		return zero, fmt.Errorf("MapToStruct: type parameter must be a struct or a pointer to a struct, got %v", typ)
	}

	raw, err := json.Marshal(input)
	if err != nil {
		return zero, fmt.Errorf("MapToStruct: failed to marshal input: %w", err)
	}
	var result T
	if err := json.Unmarshal(raw, &result); err != nil {
		return zero, fmt.Errorf("MapToStruct: failed to unmarshal into %v: %w", typ, err)
	}
	return result, nil
}
