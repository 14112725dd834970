// Package query provides a fluent, chainable builder over the backend's
// table-scoped REST API. A Builder accumulates filters, OR groups, sorting,
// joins, pagination and grouping, compiles them into flat wire parameters and
// dispatches read, write, aggregate and search calls through a Transport.
package query

import "errors"

// Operator is a comparison operator understood by the backend.
type Operator string

// Supported comparison operators. Is and Not are used only for null comparisons.
const (
	OpEq    Operator = "eq"
	OpNe    Operator = "ne"
	OpGt    Operator = "gt"
	OpGte   Operator = "gte"
	OpLt    Operator = "lt"
	OpLte   Operator = "lte"
	OpLike  Operator = "like"
	OpILike Operator = "ilike"
	OpIn    Operator = "in"
	OpNin   Operator = "nin"
	OpIs    Operator = "is"
	OpNot   Operator = "not"
)

var knownOperators = map[Operator]struct{}{
	OpEq: {}, OpNe: {}, OpGt: {}, OpGte: {}, OpLt: {}, OpLte: {},
	OpLike: {}, OpILike: {}, OpIn: {}, OpNin: {}, OpIs: {}, OpNot: {},
}

// IsValid reports whether o is one of the supported operators.
func (o Operator) IsValid() bool {
	_, ok := knownOperators[o]
	return ok
}

// ErrInvalidArguments is returned by terminal operations when a where-family
// call was made with an unsupported argument shape.
var ErrInvalidArguments = errors.New("invalid arguments")

type undefined struct{}

// Undefined marks a filter value as absent. Such filters compile without a
// value key, unlike nil which is sent as an explicit null.
var Undefined any = undefined{}

// Filter is a single (field, operator, value) comparison.
type Filter struct {
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`
	Value    any      `json:"value"`
}

// OrGroup is a list of filters ANDed together. The groups held by a builder
// are ORed with each other and ANDed with the main filter list.
type OrGroup []Filter

// SortDirection specifies the direction for sorting.
type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// Sort is one sort key; the first one added is the primary key.
type Sort struct {
	Field     string        `json:"field"`
	Direction SortDirection `json:"direction"`
}

// JoinType specifies the type of join to be performed.
type JoinType string

const (
	JoinInner JoinType = "inner"
	JoinLeft  JoinType = "left"
	JoinRight JoinType = "right"
	JoinFull  JoinType = "full"
)

// Join describes a join with another table, applied in insertion order.
type Join struct {
	Type  JoinType `json:"type"`
	Table string   `json:"table"`
	On    string   `json:"on"`
	Alias string   `json:"alias,omitempty"`
}

// AggregateFunction names one aggregation for Aggregate. Alias is optional;
// the backend defaults it to "<function>_<field>".
type AggregateFunction struct {
	Function string `json:"function"`
	Field    string `json:"field,omitempty"`
	Alias    string `json:"alias,omitempty"`
}

// Document is a single record as returned by the backend.
type Document map[string]any

// QueryResult is the result of a list read or a search.
type QueryResult struct {
	Data  []Document `json:"data"`
	Count int        `json:"count"`
}

// DeleteResult reports how many records a delete removed.
type DeleteResult struct {
	Count int `json:"count"`
}

// SearchOptions tunes a free-text search.
type SearchOptions struct {
	Fields []string `json:"fields,omitempty"`
	Limit  *int     `json:"limit,omitempty"`
	Offset *int     `json:"offset,omitempty"`
	Fuzzy  bool     `json:"fuzzy,omitempty"`
}
