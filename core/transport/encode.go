package transport

import (
	"encoding/json"
	"fmt"
	"net/url"
	"reflect"
	"strconv"
	"time"
)

// EncodeParams flattens params into url.Values. Slices are written as repeated
// "key[]" entries so the backend can tell a one-element list from a scalar.
func EncodeParams(params Params) url.Values {
	values := url.Values{}
	for key, value := range params {
		encodeValue(values, key, value)
	}
	return values
}

func encodeValue(values url.Values, key string, value any) {
	switch v := value.(type) {
	case nil:
		values.Add(key, "null")
		return
	case string:
		values.Add(key, v)
		return
	case []byte:
		values.Add(key, string(v))
		return
	case json.RawMessage:
		values.Add(key, string(v))
		return
	}

	rv := reflect.ValueOf(value)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		for i := 0; i < rv.Len(); i++ {
			values.Add(key+"[]", FormatScalar(rv.Index(i).Interface()))
		}
		return
	}
	values.Add(key, FormatScalar(value))
}

// FormatScalar renders a single value the way the backend expects it in a
// query string or path segment. Floats never use exponent notation, so ids
// decoded from JSON keep their integer form.
func FormatScalar(value any) string {
	switch v := value.(type) {
	case nil:
		return "null"
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case time.Time:
		return v.Format(time.RFC3339Nano)
	case fmt.Stringer:
		return v.String()
	}

	switch reflect.ValueOf(value).Kind() {
	case reflect.Map, reflect.Struct, reflect.Slice, reflect.Array:
		raw, err := json.Marshal(value)
		if err == nil {
			return string(raw)
		}
	}
	return fmt.Sprint(value)
}
