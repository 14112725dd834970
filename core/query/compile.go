package query

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/asaidimu/go-kikapu/core/transport"
)

// Compile translates the accumulated state into the flat parameter map sent
// with list reads:
//
//	select                  comma-joined fields, omitted for "*"
//	where[i][field|operator|value]
//	or                      JSON array of arrays of filters
//	orderBy[i][field|direction]
//	limit, offset           only when set
//	joins                   JSON array
//	groupBy                 comma-joined fields
//	having                  JSON array of filters
//
// It returns the first argument error recorded by a chain call.
func (b *Builder) Compile() (transport.Params, error) {
	if b.err != nil {
		return nil, b.err
	}

	params := transport.Params{}
	if !isDefaultSelect(b.state.fields) {
		params["select"] = strings.Join(b.state.fields, ",")
	}

	if err := b.compileFilters(params); err != nil {
		return nil, err
	}

	for i, s := range b.state.sorts {
		params[fmt.Sprintf("orderBy[%d][field]", i)] = s.Field
		params[fmt.Sprintf("orderBy[%d][direction]", i)] = string(s.Direction)
	}

	if b.state.limit != nil {
		params["limit"] = *b.state.limit
	}
	if b.state.offset != nil {
		params["offset"] = *b.state.offset
	}

	if len(b.state.joins) > 0 {
		raw, err := json.Marshal(b.state.joins)
		if err != nil {
			return nil, fmt.Errorf("failed to encode joins: %w", err)
		}
		params["joins"] = string(raw)
	}

	if len(b.state.groupBy) > 0 {
		params["groupBy"] = strings.Join(b.state.groupBy, ",")
	}
	if len(b.state.having) > 0 {
		raw, err := json.Marshal(wireFilters(b.state.having))
		if err != nil {
			return nil, fmt.Errorf("failed to encode having filters: %w", err)
		}
		params["having"] = string(raw)
	}

	return params, nil
}

// compileFilters writes the main filters and OR groups, the part of the
// parameters shared by list reads, counts and batch deletes.
func (b *Builder) compileFilters(params transport.Params) error {
	writeWhere(params, b.state.filters)

	if len(b.state.orGroups) > 0 {
		groups := make([][]map[string]any, len(b.state.orGroups))
		for i, g := range b.state.orGroups {
			groups[i] = wireFilters(g)
		}
		raw, err := json.Marshal(groups)
		if err != nil {
			return fmt.Errorf("failed to encode or groups: %w", err)
		}
		params["or"] = string(raw)
	}
	return nil
}

// filterParams compiles only the filter part of the state.
func (b *Builder) filterParams() (transport.Params, error) {
	if b.err != nil {
		return nil, b.err
	}
	params := transport.Params{}
	if err := b.compileFilters(params); err != nil {
		return nil, err
	}
	return params, nil
}

// writeWhere writes filters as indexed where[i][...] triples.
func writeWhere(params transport.Params, filters []Filter) {
	for i, f := range filters {
		params[fmt.Sprintf("where[%d][field]", i)] = f.Field
		params[fmt.Sprintf("where[%d][operator]", i)] = string(f.Operator)
		if f.Value != Undefined {
			params[fmt.Sprintf("where[%d][value]", i)] = f.Value
		}
	}
}

// wireFilters renders filters as JSON objects, dropping undefined values.
func wireFilters(filters []Filter) []map[string]any {
	out := make([]map[string]any, len(filters))
	for i, f := range filters {
		w := map[string]any{"field": f.Field, "operator": string(f.Operator)}
		if f.Value != Undefined {
			w["value"] = f.Value
		}
		out[i] = w
	}
	return out
}
