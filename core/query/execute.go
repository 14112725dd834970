package query

import (
	"context"
	"fmt"
	"net/url"
	"reflect"
	"strings"

	"github.com/asaidimu/go-kikapu/core/transport"
	"github.com/asaidimu/go-kikapu/utils"
	"go.uber.org/zap"
)

// path builds /data/{table}[/{segment}...].
func (b *Builder) path(segments ...string) string {
	p := "/data/" + url.PathEscape(b.table)
	for _, s := range segments {
		p += "/" + url.PathEscape(s)
	}
	return p
}

// singleID returns the id of a lone id/eq filter. With strict set, any sort,
// limit or offset disqualifies the lookup.
func (b *Builder) singleID(strict bool) (string, bool) {
	if len(b.state.filters) != 1 {
		return "", false
	}
	f := b.state.filters[0]
	if f.Field != "id" || f.Operator != OpEq || f.Value == nil || f.Value == Undefined {
		return "", false
	}
	if strict && (b.state.limit != nil || b.state.offset != nil || len(b.state.sorts) > 0) {
		return "", false
	}
	return transport.FormatScalar(f.Value), true
}

// Execute runs the query. A lone id/eq filter with no sort or pagination is
// sent as a get-by-id request, and a 404 then yields an empty result.
func (b *Builder) Execute(ctx context.Context) (*QueryResult, error) {
	if b.err != nil {
		return nil, b.err
	}

	if id, ok := b.singleID(true); ok {
		b.logger.Debug("Dispatching get by id", zap.String("table", b.table), zap.String("id", id))
		doc, err := b.fetchByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if doc == nil {
			return &QueryResult{Data: []Document{}, Count: 0}, nil
		}
		return &QueryResult{Data: []Document{doc}, Count: 1}, nil
	}

	params, err := b.Compile()
	if err != nil {
		return nil, err
	}
	b.logger.Debug("Dispatching list query", zap.String("table", b.table), zap.Int("params", len(params)))

	resp, err := b.transport.Get(ctx, b.path(), params)
	if err != nil {
		return nil, err
	}
	docs, err := decodeDocuments(resp.Data)
	if err != nil {
		return nil, err
	}
	return &QueryResult{Data: docs, Count: resultCount(resp.Meta, len(docs))}, nil
}

// FindByID fetches one record. It returns nil, nil when the record does not exist.
func (b *Builder) FindByID(ctx context.Context, id any) (Document, error) {
	if b.err != nil {
		return nil, b.err
	}
	return b.fetchByID(ctx, transport.FormatScalar(id))
}

func (b *Builder) fetchByID(ctx context.Context, id string) (Document, error) {
	var params transport.Params
	if !isDefaultSelect(b.state.fields) {
		params = transport.Params{"select": strings.Join(b.state.fields, ",")}
	}

	resp, err := b.transport.Get(ctx, b.path(id), params)
	if err != nil {
		if transport.IsNotFound(err) {
			b.logger.Warn("Record not found", zap.String("table", b.table), zap.String("id", id))
			return nil, nil
		}
		return nil, err
	}
	return decodeDocument(resp.Data)
}

// First runs the query with a limit of 1 and returns the first record, or nil.
// The limit is applied to a copy; the builder itself is left unchanged.
func (b *Builder) First(ctx context.Context) (Document, error) {
	result, err := b.Clone().Limit(1).Execute(ctx)
	if err != nil {
		return nil, err
	}
	if len(result.Data) == 0 {
		return nil, nil
	}
	return result.Data[0], nil
}

// Count returns the number of records matching the filters and OR groups.
func (b *Builder) Count(ctx context.Context) (int, error) {
	params, err := b.filterParams()
	if err != nil {
		return 0, err
	}
	resp, err := b.transport.Get(ctx, b.path("count"), params)
	if err != nil {
		return 0, err
	}
	return countValue(resp.Data), nil
}

// Exists reports whether at least one record matches.
func (b *Builder) Exists(ctx context.Context) (bool, error) {
	n, err := b.Count(ctx)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Insert creates one record. data is a map or a struct with json tags.
func (b *Builder) Insert(ctx context.Context, data any) (Document, error) {
	payload, err := toPayload(data)
	if err != nil {
		return nil, err
	}
	resp, err := b.transport.Post(ctx, b.path(), payload)
	if err != nil {
		return nil, err
	}
	return decodeDocument(resp.Data)
}

// InsertMany creates records through the bulk endpoint. records must be a
// slice; a one-element slice is still sent as a batch.
func (b *Builder) InsertMany(ctx context.Context, records any) ([]Document, error) {
	rv := reflect.ValueOf(records)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, fmt.Errorf("%w: InsertMany expects a slice, got %T", ErrInvalidArguments, records)
	}

	payloads := make([]map[string]any, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		payload, err := toPayload(rv.Index(i).Interface())
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		payloads[i] = payload
	}

	resp, err := b.transport.Post(ctx, b.path("bulk"), map[string]any{"records": payloads})
	if err != nil {
		return nil, err
	}
	return decodeDocuments(resp.Data)
}

// Update applies data to the matching records and always returns a slice. A
// lone id/eq filter updates that record; anything else is sent as a batch
// update carrying the filters, which not every backend version accepts yet.
func (b *Builder) Update(ctx context.Context, data any) ([]Document, error) {
	if b.err != nil {
		return nil, b.err
	}
	payload, err := toPayload(data)
	if err != nil {
		return nil, err
	}

	if id, ok := b.singleID(false); ok {
		b.logger.Debug("Dispatching single update", zap.String("table", b.table), zap.String("id", id))
		resp, err := b.transport.Patch(ctx, b.path(id), payload)
		if err != nil {
			return nil, err
		}
		doc, err := decodeDocument(resp.Data)
		if err != nil {
			return nil, err
		}
		return []Document{doc}, nil
	}

	b.logger.Debug("Dispatching batch update", zap.String("table", b.table), zap.Int("filters", len(b.state.filters)))
	resp, err := b.transport.Patch(ctx, b.path(), b.batchBody(payload))
	if err != nil {
		return nil, err
	}
	return decodeDocuments(resp.Data)
}

func (b *Builder) batchBody(payload map[string]any) map[string]any {
	body := map[string]any{
		"data":  payload,
		"where": wireFilters(b.state.filters),
	}
	if len(b.state.orGroups) > 0 {
		groups := make([][]map[string]any, len(b.state.orGroups))
		for i, g := range b.state.orGroups {
			groups[i] = wireFilters(g)
		}
		body["or"] = groups
	}
	return body
}

// Upsert inserts or updates one record, resolving conflicts on
// conflictFields ("id" when none are given).
func (b *Builder) Upsert(ctx context.Context, data any, conflictFields ...string) (Document, error) {
	payload, err := toPayload(data)
	if err != nil {
		return nil, err
	}
	if len(conflictFields) == 0 {
		conflictFields = []string{"id"}
	}
	resp, err := b.transport.Post(ctx, b.path("upsert"), map[string]any{
		"data":           payload,
		"conflictFields": conflictFields,
	})
	if err != nil {
		return nil, err
	}
	return decodeDocument(resp.Data)
}

// Delete removes the matching records. A lone id/eq filter deletes that
// record; otherwise the compiled filters are sent as query parameters.
func (b *Builder) Delete(ctx context.Context) (*DeleteResult, error) {
	if b.err != nil {
		return nil, b.err
	}

	if id, ok := b.singleID(false); ok {
		b.logger.Debug("Dispatching single delete", zap.String("table", b.table), zap.String("id", id))
		resp, err := b.transport.Delete(ctx, b.path(id), nil)
		if err != nil {
			return nil, err
		}
		return &DeleteResult{Count: singleDeleteCount(resp.Data)}, nil
	}

	params, err := b.filterParams()
	if err != nil {
		return nil, err
	}
	b.logger.Debug("Dispatching batch delete", zap.String("table", b.table), zap.Int("filters", len(b.state.filters)))
	resp, err := b.transport.Delete(ctx, b.path(), params)
	if err != nil {
		return nil, err
	}
	return &DeleteResult{Count: batchDeleteCount(resp.Data)}, nil
}

// Search runs a free-text search constrained by the main filters.
func (b *Builder) Search(ctx context.Context, text string, opts SearchOptions) (*QueryResult, error) {
	if b.err != nil {
		return nil, b.err
	}
	body := map[string]any{"query": text}
	if len(b.state.filters) > 0 {
		body["filters"] = wireFilters(b.state.filters)
	}
	if len(opts.Fields) > 0 {
		body["fields"] = opts.Fields
	}
	if opts.Limit != nil {
		body["limit"] = *opts.Limit
	}
	if opts.Offset != nil {
		body["offset"] = *opts.Offset
	}
	if opts.Fuzzy {
		body["fuzzy"] = true
	}

	resp, err := b.transport.Post(ctx, b.path("search"), body)
	if err != nil {
		return nil, err
	}
	return normalizeSearch(resp.Data)
}

// Aggregate runs aggregation functions over the main filters, grouping and
// having state. OR groups are not sent. Each returned document holds one
// "<function>_<field>" key per function, plus the group fields when grouped.
func (b *Builder) Aggregate(ctx context.Context, functions ...AggregateFunction) ([]Document, error) {
	if b.err != nil {
		return nil, b.err
	}
	if len(functions) == 0 {
		return nil, fmt.Errorf("%w: Aggregate needs at least one function", ErrInvalidArguments)
	}

	body := map[string]any{"functions": functions}
	if len(b.state.filters) > 0 {
		body["where"] = wireFilters(b.state.filters)
	}
	if len(b.state.groupBy) > 0 {
		body["groupBy"] = b.state.groupBy
	}
	if len(b.state.having) > 0 {
		body["having"] = wireFilters(b.state.having)
	}

	resp, err := b.transport.Post(ctx, b.path("aggregate"), body)
	if err != nil {
		return nil, err
	}
	return decodeDocuments(resp.Data)
}

// Sum returns the sum of field, or 0 when the response has no usable value.
func (b *Builder) Sum(ctx context.Context, field string) (float64, error) {
	return b.aggregateNumber(ctx, "sum", field)
}

// Avg returns the average of field, or 0 when the response has no usable value.
func (b *Builder) Avg(ctx context.Context, field string) (float64, error) {
	return b.aggregateNumber(ctx, "avg", field)
}

// Min returns the raw minimum of field as sent by the backend.
func (b *Builder) Min(ctx context.Context, field string) (any, error) {
	return b.aggregateValue(ctx, "min", field)
}

// Max returns the raw maximum of field as sent by the backend.
func (b *Builder) Max(ctx context.Context, field string) (any, error) {
	return b.aggregateValue(ctx, "max", field)
}

func (b *Builder) aggregateNumber(ctx context.Context, function, field string) (float64, error) {
	docs, err := b.Aggregate(ctx, AggregateFunction{Function: function, Field: field})
	if err != nil {
		return 0, err
	}
	if len(docs) == 0 {
		return 0, nil
	}
	return aggregateNumber(docs[0], aggregateKey(function, field)), nil
}

func (b *Builder) aggregateValue(ctx context.Context, function, field string) (any, error) {
	docs, err := b.Aggregate(ctx, AggregateFunction{Function: function, Field: field})
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, nil
	}
	return docs[0][aggregateKey(function, field)], nil
}

// toPayload accepts maps as-is and converts structs with utils.StructToMap.
func toPayload(data any) (map[string]any, error) {
	switch v := data.(type) {
	case nil:
		return nil, fmt.Errorf("%w: payload must not be nil", ErrInvalidArguments)
	case map[string]any:
		return v, nil
	case Document:
		return v, nil
	}
	m, err := utils.StructToMap(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	return m, nil
}
