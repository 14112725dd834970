package query

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/asaidimu/go-kikapu/core/transport"
	"github.com/gorilla/schema"
	"go.uber.org/zap"
)

// Interval is the bucket width of a time series.
type Interval string

const (
	IntervalHour  Interval = "hour"
	IntervalDay   Interval = "day"
	IntervalWeek  Interval = "week"
	IntervalMonth Interval = "month"
	IntervalYear  Interval = "year"
)

// TimeSeriesOptions describes a time-bucketed aggregation.
type TimeSeriesOptions struct {
	Field     string     `schema:"field"`
	Interval  Interval   `schema:"interval"`
	Aggregate string     `schema:"aggregate,omitempty"`
	Target    string     `schema:"target,omitempty"`
	Start     *time.Time `schema:"-"`
	End       *time.Time `schema:"-"`
}

// GroupByOptions describes an aggregation per distinct value of Field.
type GroupByOptions struct {
	Field     string `schema:"field"`
	Aggregate string `schema:"aggregate,omitempty"`
	Target    string `schema:"target,omitempty"`
	Limit     int    `schema:"limit,omitempty"`
}

// Bucket is one point of a time series or one group.
type Bucket struct {
	Key   any     `json:"key"`
	Value float64 `json:"value"`
}

// Analytics issues fixed-shape aggregation requests for one table under
// /analytics/{table}. Like Builder, it is meant for a single goroutine.
type Analytics struct {
	table     string
	transport transport.Transport
	logger    *zap.Logger
	encoder   *schema.Encoder
	filters   []Filter
	err       error
}

// NewAnalytics creates an analytics sub-builder for table.
func NewAnalytics(table string, t transport.Transport, logger *zap.Logger) *Analytics {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analytics{
		table:     table,
		transport: t,
		logger:    logger,
		encoder:   schema.NewEncoder(),
	}
}

// Where restricts every following request to records matching the filter.
func (a *Analytics) Where(field string, operator Operator, value any) *Analytics {
	f, err := newFilter(field, operator, value)
	if err != nil {
		if a.err == nil {
			a.err = err
		}
		return a
	}
	a.filters = append(a.filters, f)
	return a
}

func (a *Analytics) path(function string) string {
	return "/analytics/" + url.PathEscape(a.table) + "/" + function
}

func (a *Analytics) get(ctx context.Context, function string, params transport.Params) (json.RawMessage, error) {
	if a.err != nil {
		return nil, a.err
	}
	if params == nil {
		params = transport.Params{}
	}
	writeWhere(params, a.filters)

	a.logger.Debug("Dispatching analytics request", zap.String("table", a.table), zap.String("function", function))
	resp, err := a.transport.Get(ctx, a.path(function), params)
	if err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// Count returns the number of matching records.
func (a *Analytics) Count(ctx context.Context) (int, error) {
	raw, err := a.get(ctx, "count", nil)
	if err != nil {
		return 0, err
	}
	return int(numberValue(raw, "count", "value")), nil
}

// Sum returns the sum of field, or 0 when the backend sends no number.
func (a *Analytics) Sum(ctx context.Context, field string) (float64, error) {
	return a.number(ctx, "sum", field)
}

// Avg returns the average of field, or 0 when the backend sends no number.
func (a *Analytics) Avg(ctx context.Context, field string) (float64, error) {
	return a.number(ctx, "avg", field)
}

// Min returns the raw minimum of field.
func (a *Analytics) Min(ctx context.Context, field string) (any, error) {
	return a.value(ctx, "min", field)
}

// Max returns the raw maximum of field.
func (a *Analytics) Max(ctx context.Context, field string) (any, error) {
	return a.value(ctx, "max", field)
}

// Distinct returns the distinct values of field.
func (a *Analytics) Distinct(ctx context.Context, field string) ([]any, error) {
	raw, err := a.get(ctx, "distinct", transport.Params{"field": field})
	if err != nil {
		return nil, err
	}
	values := []any{}
	if isEmptyJSON(raw) {
		return values, nil
	}
	list := raw
	if bytes.TrimSpace(raw)[0] == '{' {
		var wrapped struct {
			Values json.RawMessage `json:"values"`
		}
		if err := json.Unmarshal(raw, &wrapped); err != nil {
			return nil, fmt.Errorf("unexpected distinct payload: %w", err)
		}
		list = wrapped.Values
	}
	if isEmptyJSON(list) {
		return values, nil
	}
	if err := json.Unmarshal(list, &values); err != nil {
		return nil, fmt.Errorf("unexpected distinct payload: %w", err)
	}
	return values, nil
}

// TimeSeries returns one bucket per interval between Start and End.
func (a *Analytics) TimeSeries(ctx context.Context, opts TimeSeriesOptions) ([]Bucket, error) {
	if opts.Interval == "" {
		opts.Interval = IntervalDay
	}
	params, err := a.encode(&opts)
	if err != nil {
		return nil, err
	}
	if opts.Start != nil {
		params["start"] = opts.Start.UTC().Format(time.RFC3339)
	}
	if opts.End != nil {
		params["end"] = opts.End.UTC().Format(time.RFC3339)
	}

	raw, err := a.get(ctx, "timeseries", params)
	if err != nil {
		return nil, err
	}
	return decodeBuckets(raw)
}

// GroupBy returns one bucket per distinct value of opts.Field.
func (a *Analytics) GroupBy(ctx context.Context, opts GroupByOptions) ([]Bucket, error) {
	if opts.Field == "" {
		return nil, fmt.Errorf("%w: GroupBy needs a field", ErrInvalidArguments)
	}
	params, err := a.encode(&opts)
	if err != nil {
		return nil, err
	}
	raw, err := a.get(ctx, "groupby", params)
	if err != nil {
		return nil, err
	}
	return decodeBuckets(raw)
}

// encode turns an options struct into params using its schema tags.
func (a *Analytics) encode(opts any) (transport.Params, error) {
	values := map[string][]string{}
	if err := a.encoder.Encode(opts, values); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	params := transport.Params{}
	for k, v := range values {
		if len(v) == 1 {
			params[k] = v[0]
		} else {
			params[k] = v
		}
	}
	return params, nil
}

func (a *Analytics) number(ctx context.Context, function, field string) (float64, error) {
	raw, err := a.get(ctx, function, transport.Params{"field": field})
	if err != nil {
		return 0, err
	}
	return numberValue(raw, "value", aggregateKey(function, field)), nil
}

func (a *Analytics) value(ctx context.Context, function, field string) (any, error) {
	raw, err := a.get(ctx, function, transport.Params{"field": field})
	if err != nil {
		return nil, err
	}
	return rawValue(raw, "value", aggregateKey(function, field)), nil
}

// rawValue returns a bare JSON value, or the first present key of an object.
func rawValue(raw json.RawMessage, keys ...string) any {
	if isEmptyJSON(raw) {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return v
	}
	for _, k := range keys {
		if val, ok := obj[k]; ok {
			return val
		}
	}
	return nil
}

// numberValue is rawValue coerced to a number, defaulting to 0.
func numberValue(raw json.RawMessage, keys ...string) float64 {
	f, _ := ToFloat64(rawValue(raw, keys...))
	return f
}

// decodeBuckets accepts a bare array or {"buckets": [...]}.
func decodeBuckets(raw json.RawMessage) ([]Bucket, error) {
	buckets := []Bucket{}
	if isEmptyJSON(raw) {
		return buckets, nil
	}
	list := raw
	if bytes.TrimSpace(raw)[0] == '{' {
		var wrapped struct {
			Buckets json.RawMessage `json:"buckets"`
		}
		if err := json.Unmarshal(raw, &wrapped); err != nil {
			return nil, fmt.Errorf("unexpected bucket payload: %w", err)
		}
		list = wrapped.Buckets
	}
	if isEmptyJSON(list) {
		return buckets, nil
	}

	var rows []map[string]any
	if err := json.Unmarshal(list, &rows); err != nil {
		return nil, fmt.Errorf("unexpected bucket payload: %w", err)
	}
	for _, row := range rows {
		value, _ := ToFloat64(row["value"])
		buckets = append(buckets, Bucket{Key: row["key"], Value: value})
	}
	return buckets, nil
}
